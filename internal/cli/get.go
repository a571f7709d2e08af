// internal/cli/get.go
package cli

import (
	"encoding/json"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"github.com/pagebound/scrape/internal/ui"
	"github.com/pagebound/scrape/pkg/models"
)

var (
	getSelectors []string
	getPatterns  []string
	getListOf    []string
	getOptional  []string
	getAttrs     []string
	getMode      string
	getWaitFor   string
	getSession   string
	getMaxAge    string
	getOutput    string
)

// getCmd represents the get command
var getCmd = &cobra.Command{
	Use:   "get <url>",
	Short: "Scrape a URL and extract fields",
	Long: `Loads the URL in a pooled browser session, waits for the page to
settle, and extracts the requested fields. Each --selector or --pattern
flag declares one output field as name=value.

Without any rule flags the whole page body is returned as one field.`,
	Example: `  # Extract a title and a list of links
  scrape get https://example.com -s "title=h1" -s "links=a" --list=links

  # Extract via regex over the page source
  scrape get https://example.com -p "price=\$([0-9.]+)"

  # Attribute extraction
  scrape get https://example.com -s "image=img.hero" --attr "image=src"

  # Use a saved auth session and tolerate a cached result
  scrape get https://example.com --session=mysite --max-age=5m`,
	Args: cobra.ExactArgs(1),
	RunE: runGet,
}

func init() {
	rootCmd.AddCommand(getCmd)

	getCmd.Flags().StringArrayVarP(&getSelectors, "selector", "s", nil, "Field as name=css (e.g., title=h1)")
	getCmd.Flags().StringArrayVarP(&getPatterns, "pattern", "p", nil, "Field as name=regex over the page source")
	getCmd.Flags().StringSliceVar(&getListOf, "list", nil, "Fields that collect every match instead of the first")
	getCmd.Flags().StringSliceVar(&getOptional, "optional", nil, "Fields that may be absent without failing")
	getCmd.Flags().StringArrayVar(&getAttrs, "attr", nil, "Attribute extraction as field=attribute (e.g., image=src)")
	getCmd.Flags().StringVarP(&getMode, "mode", "m", "text", "Selector extraction mode: text, html, or markdown")
	getCmd.Flags().StringVarP(&getWaitFor, "wait-for", "w", "", "CSS selector the page must render before extraction")
	getCmd.Flags().StringVar(&getSession, "session", "", "Name of a saved auth session to use")
	getCmd.Flags().StringVar(&getMaxAge, "max-age", "", "Accept a cached result no older than this (e.g., 5m)")
	getCmd.Flags().StringVarP(&getOutput, "output", "o", "", "File path to save the JSON result")
}

func runGet(cmd *cobra.Command, args []string) error {
	url := args[0]

	rules, err := buildRules(getSelectors, getPatterns, getListOf, getOptional, getAttrs, getMode)
	if err != nil {
		return err
	}

	req := &models.ScrapeRequest{
		URL:          url,
		Rules:        rules,
		WaitSelector: getWaitFor,
		SessionName:  getSession,
	}
	if getMaxAge != "" {
		d, err := time.ParseDuration(getMaxAge)
		if err != nil {
			return fmt.Errorf("invalid --max-age: %w", err)
		}
		req.MaxAge = d
	}

	appCtx := GetApp()
	resp := appCtx.Invoker.Invoke(cmd.Context(), req)

	data, err := json.MarshalIndent(resp, "", "  ")
	if err != nil {
		return err
	}

	if getOutput != "" {
		if err := os.WriteFile(getOutput, data, 0644); err != nil {
			return fmt.Errorf("failed to write output: %w", err)
		}
		fmt.Println(ui.Success(fmt.Sprintf("✓ Result saved to %s", getOutput)))
	} else {
		fmt.Println(string(data))
	}

	if !resp.Success {
		log.Debug().Str("code", string(resp.Error.Code)).Msg("Scrape failed")
		return fmt.Errorf("scrape failed: %s", resp.Error.Message)
	}
	return nil
}

// buildRules assembles extraction rules from the flag surface. When no
// selector or pattern flags are given, the page body becomes a single
// field named "content".
func buildRules(selectors, patterns, listOf, optional, attrs []string, mode string) ([]models.ExtractionRule, error) {
	extractMode := models.ExtractMode(mode)
	switch extractMode {
	case models.ModeText, models.ModeHTML, models.ModeMarkdown:
	default:
		return nil, fmt.Errorf("invalid mode: %s (must be text, html, or markdown)", mode)
	}

	attrOf := make(map[string]string)
	for _, a := range attrs {
		field, attr, err := splitKV(a)
		if err != nil {
			return nil, fmt.Errorf("invalid --attr %q: %w", a, err)
		}
		attrOf[field] = attr
	}

	listSet := toSet(listOf)
	optionalSet := toSet(optional)

	var rules []models.ExtractionRule
	for _, s := range selectors {
		field, sel, err := splitKV(s)
		if err != nil {
			return nil, fmt.Errorf("invalid --selector %q: %w", s, err)
		}
		rule := models.ExtractionRule{Field: field, Selector: sel, Mode: extractMode}
		if attr, ok := attrOf[field]; ok {
			rule.Mode = models.ModeAttr
			rule.Attr = attr
		}
		if listSet[field] {
			rule.Cardinality = models.CardinalityList
		}
		rule.Optional = optionalSet[field]
		rules = append(rules, rule)
	}
	for _, p := range patterns {
		field, pat, err := splitKV(p)
		if err != nil {
			return nil, fmt.Errorf("invalid --pattern %q: %w", p, err)
		}
		rule := models.ExtractionRule{Field: field, Pattern: pat}
		if listSet[field] {
			rule.Cardinality = models.CardinalityList
		}
		rule.Optional = optionalSet[field]
		rules = append(rules, rule)
	}

	if len(rules) == 0 {
		rules = []models.ExtractionRule{{Field: "content", Selector: "body", Mode: extractMode}}
	}
	return rules, nil
}

func splitKV(s string) (string, string, error) {
	name, value, found := strings.Cut(s, "=")
	if !found || name == "" || value == "" {
		return "", "", fmt.Errorf("expected name=value")
	}
	return name, value, nil
}

func toSet(names []string) map[string]bool {
	set := make(map[string]bool, len(names))
	for _, n := range names {
		set[n] = true
	}
	return set
}
