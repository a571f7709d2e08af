// internal/cli/sessions.go
package cli

import (
	"bufio"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/pagebound/scrape/internal/auth"
	"github.com/pagebound/scrape/internal/ui"
	"github.com/pagebound/scrape/pkg/models"
)

var (
	importURL    string
	importFormat string
)

// sessionsCmd represents the sessions command
var sessionsCmd = &cobra.Command{
	Use:   "sessions",
	Short: "Manage saved authentication sessions",
	Long: `List, view, import, and delete saved authentication sessions.

Sessions are stored securely in your OS keyring and contain the cookies
applied to a browser session before navigation.`,
	Example: `  # List all saved sessions
  scrape sessions list

  # View details of a specific session
  scrape sessions view github

  # Import cookies from your browser's DevTools
  scrape sessions import github --url=https://github.com < cookies.json

  # Delete a session
  scrape sessions delete old-session`,
}

var sessionsListCmd = &cobra.Command{
	Use:   "list",
	Short: "List all saved sessions",
	RunE:  runSessionsList,
}

var sessionsViewCmd = &cobra.Command{
	Use:   "view <session-name>",
	Short: "View details of a saved session",
	Args:  cobra.ExactArgs(1),
	RunE:  runSessionsView,
}

var sessionsDeleteCmd = &cobra.Command{
	Use:   "delete <session-name>",
	Short: "Delete a saved session",
	Args:  cobra.ExactArgs(1),
	RunE:  runSessionsDelete,
}

var sessionsImportCmd = &cobra.Command{
	Use:   "import <session-name>",
	Short: "Import cookies from your browser to create a session",
	Long: `Creates a session from cookies copied out of your browser's
developer tools. This is the headless-environment alternative to the
interactive login command.

Supported formats: json (DevTools cookie export) and netscape
(cookies.txt as used by curl and wget).`,
	Example: `  # Import from a DevTools JSON export
  scrape sessions import github --url=https://github.com --format=json < cookies.json

  # Import from Netscape/curl format
  scrape sessions import github --url=https://github.com --format=netscape < cookies.txt`,
	Args: cobra.ExactArgs(1),
	RunE: runSessionsImport,
}

func init() {
	rootCmd.AddCommand(sessionsCmd)
	sessionsCmd.AddCommand(sessionsListCmd)
	sessionsCmd.AddCommand(sessionsViewCmd)
	sessionsCmd.AddCommand(sessionsDeleteCmd)
	sessionsCmd.AddCommand(sessionsImportCmd)

	sessionsImportCmd.Flags().StringVar(&importURL, "url", "", "Website URL for this session (required)")
	sessionsImportCmd.Flags().StringVar(&importFormat, "format", "json", "Import format: json or netscape")
	sessionsImportCmd.MarkFlagRequired("url")
}

func runSessionsList(cmd *cobra.Command, args []string) error {
	store := GetApp().AuthStore
	sessions, err := store.List()
	if err != nil {
		return fmt.Errorf("failed to list sessions: %w", err)
	}

	if len(sessions) == 0 {
		fmt.Println("\nNo saved sessions found.")
		fmt.Println("\nCreate a session with:")
		fmt.Println("  scrape login <url> --session=<name>")
		fmt.Println()
		return nil
	}

	fmt.Printf("\n%s\n\n", ui.Bold(fmt.Sprintf("Saved Sessions (%d)", len(sessions))))

	for i, name := range sessions {
		fmt.Printf("%d. %s\n", i+1, name)

		session, err := store.Load(name)
		if err != nil {
			fmt.Printf("   %s\n", ui.Error(fmt.Sprintf("error loading: %v", err)))
			continue
		}

		fmt.Printf("   URL: %s\n", session.URL)
		fmt.Printf("   Cookies: %d\n", len(session.Cookies))
		fmt.Printf("   Created: %s\n", session.CreatedAt.Format(time.RFC1123))
		if !session.ExpiresAt.IsZero() {
			fmt.Printf("   Expires: %s\n", session.ExpiresAt.Format(time.RFC1123))
		}
		if i < len(sessions)-1 {
			fmt.Println()
		}
	}

	fmt.Println()
	return nil
}

func runSessionsView(cmd *cobra.Command, args []string) error {
	name := args[0]

	session, err := GetApp().AuthStore.Load(name)
	if err != nil {
		return fmt.Errorf("failed to load session '%s': %w", name, err)
	}

	fmt.Printf("\n%s\n\n", ui.Bold("Session Details: "+name))
	fmt.Printf("Name:     %s\n", session.Name)
	fmt.Printf("URL:      %s\n", session.URL)
	fmt.Printf("Created:  %s\n", session.CreatedAt.Format(time.RFC1123))
	if !session.ExpiresAt.IsZero() {
		fmt.Printf("Expires:  %s\n", session.ExpiresAt.Format(time.RFC1123))
	}

	fmt.Printf("\nCookies (%d):\n", len(session.Cookies))
	for i, cookie := range session.Cookies {
		if i >= 5 {
			fmt.Printf("  ... and %d more\n", len(session.Cookies)-5)
			break
		}
		fmt.Printf("  - %s (domain: %s)\n", cookie.Name, cookie.Domain)
	}

	fmt.Println()
	return nil
}

func runSessionsDelete(cmd *cobra.Command, args []string) error {
	name := args[0]

	fmt.Printf("\nDelete session '%s'? [y/N]: ", name)
	var confirm string
	fmt.Scanln(&confirm)
	if confirm != "y" && confirm != "Y" {
		fmt.Println("Cancelled.")
		return nil
	}

	if err := GetApp().AuthStore.Delete(name); err != nil {
		return fmt.Errorf("failed to delete session: %w", err)
	}

	fmt.Println(ui.Success(fmt.Sprintf("\n✓ Session '%s' deleted.\n", name)))
	return nil
}

func runSessionsImport(cmd *cobra.Command, args []string) error {
	name := args[0]

	var cookies []models.Cookie
	var err error
	switch importFormat {
	case "json":
		cookies, err = importJSONCookies(os.Stdin)
	case "netscape":
		cookies, err = importNetscapeCookies(os.Stdin)
	default:
		return fmt.Errorf("unsupported format: %s (use: json or netscape)", importFormat)
	}
	if err != nil {
		return fmt.Errorf("failed to import cookies: %w", err)
	}
	if len(cookies) == 0 {
		return fmt.Errorf("no cookies imported")
	}

	session := &auth.SessionData{
		Name:      name,
		URL:       importURL,
		Cookies:   cookies,
		CreatedAt: time.Now(),
	}

	// The session is only as durable as its shortest-lived cookie.
	var earliest time.Time
	for _, c := range cookies {
		if c.Expires > 0 {
			expiry := time.Unix(int64(c.Expires), 0)
			if earliest.IsZero() || expiry.Before(earliest) {
				earliest = expiry
			}
		}
	}
	if !earliest.IsZero() {
		session.ExpiresAt = earliest
	}

	if err := GetApp().AuthStore.Save(session); err != nil {
		return fmt.Errorf("failed to save session: %w", err)
	}

	fmt.Println(ui.Success(fmt.Sprintf("\n✓ Session '%s' created with %d cookies.", name, len(cookies))))
	fmt.Printf("\nUse it with:\n  scrape get <url> --session=%s\n\n", name)
	return nil
}

func importJSONCookies(r io.Reader) ([]models.Cookie, error) {
	data, err := io.ReadAll(r)
	if err != nil {
		return nil, err
	}
	var cookies []models.Cookie
	if err := json.Unmarshal(data, &cookies); err != nil {
		return nil, fmt.Errorf("invalid cookie JSON: %w", err)
	}
	return cookies, nil
}

// importNetscapeCookies parses the cookies.txt format:
// domain flag path secure expiry name value
func importNetscapeCookies(r io.Reader) ([]models.Cookie, error) {
	var cookies []models.Cookie
	scanner := bufio.NewScanner(r)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		parts := strings.Split(line, "\t")
		if len(parts) < 7 {
			continue
		}
		expires, _ := strconv.ParseFloat(parts[4], 64)
		cookies = append(cookies, models.Cookie{
			Domain:  parts[0],
			Path:    parts[2],
			Secure:  strings.EqualFold(parts[3], "TRUE"),
			Expires: expires,
			Name:    parts[5],
			Value:   parts[6],
		})
	}
	return cookies, scanner.Err()
}
