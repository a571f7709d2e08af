// internal/cli/batch.go
package cli

import (
	"bufio"
	"encoding/json"
	"fmt"
	"os"
	"strings"
	"sync"

	"github.com/schollz/progressbar/v3"
	"github.com/spf13/cobra"

	"github.com/pagebound/scrape/internal/ui"
	"github.com/pagebound/scrape/pkg/models"
)

var (
	batchConcurrency int
	batchOutput      string
)

// batchCmd represents the batch command
var batchCmd = &cobra.Command{
	Use:   "batch <url-file>",
	Short: "Scrape many URLs with shared extraction rules",
	Long: `Reads URLs from a file (one per line, # comments allowed) and
scrapes them concurrently. The rule flags of the get command apply to
every URL. Concurrency above the session pool size just queues on the
pool.

Results are written as JSON Lines, one response per input URL.`,
	Example: `  # Scrape a list of product pages
  scrape batch urls.txt -s "name=h1" -s "price=.price" -o results.jsonl

  # Limit concurrency to 2 sessions
  scrape batch urls.txt --concurrency=2`,
	Args: cobra.ExactArgs(1),
	RunE: runBatch,
}

func init() {
	rootCmd.AddCommand(batchCmd)

	batchCmd.Flags().StringArrayVarP(&getSelectors, "selector", "s", nil, "Field as name=css (e.g., title=h1)")
	batchCmd.Flags().StringArrayVarP(&getPatterns, "pattern", "p", nil, "Field as name=regex over the page source")
	batchCmd.Flags().StringSliceVar(&getListOf, "list", nil, "Fields that collect every match instead of the first")
	batchCmd.Flags().StringSliceVar(&getOptional, "optional", nil, "Fields that may be absent without failing")
	batchCmd.Flags().StringArrayVar(&getAttrs, "attr", nil, "Attribute extraction as field=attribute")
	batchCmd.Flags().StringVarP(&getMode, "mode", "m", "text", "Selector extraction mode: text, html, or markdown")
	batchCmd.Flags().StringVarP(&getWaitFor, "wait-for", "w", "", "CSS selector each page must render before extraction")
	batchCmd.Flags().StringVar(&getSession, "session", "", "Name of a saved auth session to use")
	batchCmd.Flags().IntVarP(&batchConcurrency, "concurrency", "c", 0, "Concurrent requests (defaults to pool size)")
	batchCmd.Flags().StringVarP(&batchOutput, "output", "o", "", "File to write JSON Lines results (defaults to stdout)")
}

type batchLine struct {
	URL      string                `json:"url"`
	Response *models.ScrapeResponse `json:"response"`
}

func runBatch(cmd *cobra.Command, args []string) error {
	urls, err := readURLFile(args[0])
	if err != nil {
		return err
	}
	if len(urls) == 0 {
		return fmt.Errorf("no URLs found in %s", args[0])
	}

	rules, err := buildRules(getSelectors, getPatterns, getListOf, getOptional, getAttrs, getMode)
	if err != nil {
		return err
	}

	appCtx := GetApp()
	concurrency := batchConcurrency
	if concurrency <= 0 {
		concurrency = appCtx.Config.MaxSessions
	}

	out := os.Stdout
	if batchOutput != "" {
		f, err := os.Create(batchOutput)
		if err != nil {
			return fmt.Errorf("failed to create output file: %w", err)
		}
		defer f.Close()
		out = f
	}

	bar := progressbar.NewOptions(len(urls),
		progressbar.OptionSetDescription("scraping"),
		progressbar.OptionSetWriter(os.Stderr),
		progressbar.OptionShowCount(),
		progressbar.OptionClearOnFinish(),
	)

	responses := make([]*models.ScrapeResponse, len(urls))
	sem := make(chan struct{}, concurrency)
	var wg sync.WaitGroup

	for i, url := range urls {
		wg.Add(1)
		go func(i int, url string) {
			defer wg.Done()
			sem <- struct{}{}
			defer func() { <-sem }()

			req := &models.ScrapeRequest{
				URL:          url,
				Rules:        rules,
				WaitSelector: getWaitFor,
				SessionName:  getSession,
			}
			responses[i] = appCtx.Invoker.Invoke(cmd.Context(), req)
			bar.Add(1)
		}(i, url)
	}
	wg.Wait()
	bar.Finish()

	enc := json.NewEncoder(out)
	failed := 0
	for i, url := range urls {
		if !responses[i].Success {
			failed++
		}
		if err := enc.Encode(batchLine{URL: url, Response: responses[i]}); err != nil {
			return err
		}
	}

	if failed > 0 {
		fmt.Fprintln(os.Stderr, ui.Error(fmt.Sprintf("✗ %d of %d URLs failed", failed, len(urls))))
	} else {
		fmt.Fprintln(os.Stderr, ui.Success(fmt.Sprintf("✓ %d URLs scraped", len(urls))))
	}
	return nil
}

// readURLFile parses one URL per line, skipping blanks and # comments.
func readURLFile(path string) ([]string, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open URL file: %w", err)
	}
	defer f.Close()

	var urls []string
	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		urls = append(urls, line)
	}
	return urls, scanner.Err()
}
