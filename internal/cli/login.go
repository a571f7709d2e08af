// internal/cli/login.go
package cli

import (
	"fmt"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"github.com/pagebound/scrape/internal/auth"
	"github.com/pagebound/scrape/internal/ui"
)

var (
	loginSession string
	loginWait    string
	loginTimeout string
)

// loginCmd represents the login command
var loginCmd = &cobra.Command{
	Use:   "login <url>",
	Short: "Interactively login to a website and save the session",
	Long: `Opens a visible browser window for you to manually log in to a website.
After successful login, cookies are extracted and securely stored in your OS keyring.

The stored session can then be passed to scrape requests with --session
(or session_name over the API) to access authenticated content.`,
	Example: `  # Login and save as "github"
  scrape login https://github.com/login --session=github --wait="#dashboard"

  # Login without waiting for a specific element (manual confirmation)
  scrape login https://example.com/login --session=example

  # Use the saved session
  scrape get https://github.com/settings/profile --session=github`,
	Args: cobra.ExactArgs(1),
	RunE: runLogin,
}

func init() {
	rootCmd.AddCommand(loginCmd)

	loginCmd.Flags().StringVar(&loginSession, "session", "", "Session name to save (required)")
	loginCmd.Flags().StringVarP(&loginWait, "wait", "w", "", "CSS selector to wait for after login (e.g., '#dashboard')")
	loginCmd.Flags().StringVar(&loginTimeout, "login-timeout", "5m", "Timeout for login process")
	loginCmd.MarkFlagRequired("session")
}

func runLogin(cmd *cobra.Command, args []string) error {
	url := args[0]

	timeout, err := time.ParseDuration(loginTimeout)
	if err != nil {
		return fmt.Errorf("invalid timeout: %w", err)
	}

	log.Info().
		Str("url", url).
		Str("session", loginSession).
		Msg("Initiating login")

	session, err := auth.InteractiveLogin(auth.LoginOptions{
		SessionName:  loginSession,
		URL:          url,
		WaitSelector: loginWait,
		Timeout:      timeout,
		ChromePath:   GetApp().Config.ChromePath,
	})
	if err != nil {
		return fmt.Errorf("login failed: %w", err)
	}

	if err := GetApp().AuthStore.Save(session); err != nil {
		return fmt.Errorf("failed to save session: %w", err)
	}

	fmt.Println(ui.Success("\n✓ Session saved successfully!"))
	fmt.Printf("\nUse it with:\n  scrape get <url> --session=%s\n\n", loginSession)

	if !session.ExpiresAt.IsZero() {
		fmt.Printf("Session expires: %s\n\n", session.ExpiresAt.Format(time.RFC1123))
	}

	return nil
}
