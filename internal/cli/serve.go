// internal/cli/serve.go
package cli

import (
	"github.com/spf13/cobra"

	"github.com/pagebound/scrape/internal/transport/httpserver"
)

var (
	serveHost string
	servePort int
)

// serveCmd represents the serve command
var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the HTTP scrape API",
	Long: `Starts the HTTP server exposing POST /api/v1/scrape and
GET /api/v1/health. The server drains in-flight requests on SIGINT or
SIGTERM before shutting down the browser pool.

Set SCRAPE_AUTH_TOKEN to require a token on every scrape request.`,
	Example: `  # Serve on the default port
  scrape serve

  # Serve on a specific host/port with auth
  SCRAPE_AUTH_TOKEN=secret scrape serve --host 127.0.0.1 --port 9000`,
	RunE: runServe,
}

func init() {
	rootCmd.AddCommand(serveCmd)

	serveCmd.Flags().StringVar(&serveHost, "host", "", "Listen address (defaults to config)")
	serveCmd.Flags().IntVar(&servePort, "port", 0, "Listen port (defaults to config)")
}

func runServe(cmd *cobra.Command, args []string) error {
	appCtx := GetApp()
	cfg := appCtx.Config

	host := cfg.ServerHost
	if serveHost != "" {
		host = serveHost
	}
	port := cfg.ServerPort
	if servePort > 0 {
		port = servePort
	}

	srv := httpserver.New(appCtx.Invoker, appCtx.Sessions, appCtx.Cache, httpserver.Options{
		Host:      host,
		Port:      port,
		AuthToken: cfg.AuthToken,
	})

	return srv.Run(cmd.Context())
}
