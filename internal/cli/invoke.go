// internal/cli/invoke.go
package cli

import (
	"encoding/json"
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"

	"github.com/pagebound/scrape/internal/transport/function"
	"github.com/pagebound/scrape/pkg/models"
)

var invokeFile string

// invokeCmd represents the invoke command
var invokeCmd = &cobra.Command{
	Use:   "invoke",
	Short: "Run one scrape request from a JSON event",
	Long: `Executes a single scrape request read from a file or stdin and
prints the response envelope as JSON. This is the same request/response
shape the serverless handler uses, so an event can be tested locally
before deployment.`,
	Example: `  # Invoke from a file
  scrape invoke -f request.json

  # Invoke from stdin
  echo '{"url":"https://example.com","rules":[{"field":"title","selector":"h1"}]}' | scrape invoke`,
	RunE: runInvoke,
}

// functionCmd runs the serverless runtime loop. Used as the container
// entry point when deployed as a function; blocks until the runtime
// terminates the process.
var functionCmd = &cobra.Command{
	Use:    "function",
	Short:  "Run as a serverless function handler",
	Hidden: true,
	RunE: func(cmd *cobra.Command, args []string) error {
		function.Start(GetApp().Invoker)
		return nil
	},
}

func init() {
	rootCmd.AddCommand(invokeCmd)
	rootCmd.AddCommand(functionCmd)

	invokeCmd.Flags().StringVarP(&invokeFile, "file", "f", "", "Path to the request JSON (defaults to stdin)")
}

func runInvoke(cmd *cobra.Command, args []string) error {
	var input []byte
	var err error
	if invokeFile != "" {
		input, err = os.ReadFile(invokeFile)
	} else {
		input, err = io.ReadAll(os.Stdin)
	}
	if err != nil {
		return fmt.Errorf("failed to read request: %w", err)
	}

	var req models.ScrapeRequest
	if err := json.Unmarshal(input, &req); err != nil {
		return fmt.Errorf("invalid request JSON: %w", err)
	}

	handler := function.NewHandler(GetApp().Invoker)
	resp, err := handler(cmd.Context(), req)
	if err != nil {
		return err
	}

	data, err := json.MarshalIndent(resp, "", "  ")
	if err != nil {
		return err
	}
	fmt.Println(string(data))

	if !resp.Success {
		return fmt.Errorf("scrape failed: %s", resp.Error.Message)
	}
	return nil
}
