// Package cli provides the command-line interface for the scrape application.
package cli

import (
	"github.com/spf13/cobra"

	"github.com/pagebound/scrape/internal/app"
)

// Global reference - set once by the root command's PersistentPreRunE
var globalApp *app.Application

// SetApp stores the Application for command handlers
func SetApp(cmd *cobra.Command, a *app.Application) {
	globalApp = a
}

// GetApp retrieves the Application
func GetApp() *app.Application {
	return globalApp
}
