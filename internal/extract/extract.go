// Package extract implements the rule-driven extraction pipeline: a pure
// transformation from rendered page HTML to ordered output fields. Given
// identical content and rules the output is byte-identical.
package extract

import (
	"fmt"
	"regexp"
	"strings"

	md "github.com/JohannesKaufmann/html-to-markdown"
	"github.com/JohannesKaufmann/html-to-markdown/plugin"
	"github.com/PuerkitoBio/goquery"
	"github.com/andybalholm/cascadia"
	"golang.org/x/net/html"

	"github.com/pagebound/scrape/pkg/models"
)

// Run applies the ordered rule list to the rendered page HTML.
//
// Selector rules are evaluated against the parsed document tree, pattern
// rules against the raw serialization. A syntactically invalid rule fails
// fast with a Permanent INVALID_RULE; a required single-cardinality rule
// with zero matches fails with a Transient MISSING_FIELD so the caller
// can re-navigate.
func Run(pageHTML string, rules []models.ExtractionRule) (models.Fields, error) {
	root, err := html.Parse(strings.NewReader(pageHTML))
	if err != nil {
		return nil, models.NewScrapeError(models.ErrCodeNavigation,
			"page content could not be parsed", err).AsTransient()
	}
	doc := goquery.NewDocumentFromNode(root)

	// Shared by all markdown-mode rules in this run.
	var converter *md.Converter

	fields := make(models.Fields, 0, len(rules))
	for _, rule := range rules {
		if err := validateRule(rule); err != nil {
			return nil, err
		}

		var values []string
		if rule.Selector != "" {
			if rule.Mode == models.ModeMarkdown && converter == nil {
				converter = md.NewConverter("", true, nil)
				converter.Use(plugin.GitHubFlavored())
			}
			values, err = applySelector(doc, rule, converter)
		} else {
			values, err = applyPattern(pageHTML, rule)
		}
		if err != nil {
			return nil, err
		}

		field, err := toField(rule, values)
		if err != nil {
			return nil, err
		}
		fields = append(fields, field)
	}

	return fields, nil
}

func validateRule(rule models.ExtractionRule) error {
	reason := ""
	switch {
	case rule.Field == "":
		reason = "rule has no field name"
	case rule.Selector == "" && rule.Pattern == "":
		reason = "rule needs a selector or a pattern"
	case rule.Selector != "" && rule.Pattern != "":
		reason = "rule cannot have both a selector and a pattern"
	case rule.Mode == models.ModeAttr && rule.Attr == "":
		reason = "attr mode requires an attribute name"
	case rule.Pattern != "" && rule.Mode != "" && rule.Mode != models.ModeText:
		reason = fmt.Sprintf("mode %q does not apply to pattern rules", rule.Mode)
	default:
		switch rule.Mode {
		case "", models.ModeText, models.ModeHTML, models.ModeAttr, models.ModeMarkdown:
		default:
			reason = fmt.Sprintf("unknown extraction mode %q", rule.Mode)
		}
		if reason == "" {
			switch rule.Cardinality {
			case "", models.CardinalitySingle, models.CardinalityList:
			default:
				reason = fmt.Sprintf("unknown cardinality %q", rule.Cardinality)
			}
		}
	}
	if reason == "" {
		return nil
	}
	return invalidRule(rule.Field, reason, nil)
}

// applySelector returns the rule's values for every matched element in
// document order.
func applySelector(doc *goquery.Document, rule models.ExtractionRule, converter *md.Converter) ([]string, error) {
	matcher, err := cascadia.Compile(rule.Selector)
	if err != nil {
		return nil, invalidRule(rule.Field, fmt.Sprintf("invalid selector %q", rule.Selector), err)
	}

	var values []string
	var convErr error
	doc.FindMatcher(matcher).EachWithBreak(func(_ int, sel *goquery.Selection) bool {
		switch rule.Mode {
		case models.ModeHTML:
			h, err := goquery.OuterHtml(sel)
			if err != nil {
				convErr = invalidRule(rule.Field, "failed to serialize element", err)
				return false
			}
			values = append(values, strings.TrimSpace(h))
		case models.ModeAttr:
			if v, ok := sel.Attr(rule.Attr); ok {
				values = append(values, v)
			}
		case models.ModeMarkdown:
			h, err := goquery.OuterHtml(sel)
			if err != nil {
				convErr = invalidRule(rule.Field, "failed to serialize element", err)
				return false
			}
			m, err := converter.ConvertString(h)
			if err != nil {
				convErr = invalidRule(rule.Field, "markdown conversion failed", err)
				return false
			}
			values = append(values, strings.TrimSpace(m))
		default: // text
			values = append(values, strings.TrimSpace(sel.Text()))
		}
		return true
	})
	if convErr != nil {
		return nil, convErr
	}
	return values, nil
}

// applyPattern matches the rule's regular expression against the raw
// page serialization. The first capture group wins when present,
// otherwise the whole match is used.
func applyPattern(pageHTML string, rule models.ExtractionRule) ([]string, error) {
	re, err := regexp.Compile(rule.Pattern)
	if err != nil {
		return nil, invalidRule(rule.Field, fmt.Sprintf("invalid pattern %q", rule.Pattern), err)
	}

	matches := re.FindAllStringSubmatch(pageHTML, -1)
	values := make([]string, 0, len(matches))
	for _, m := range matches {
		if len(m) > 1 {
			values = append(values, m[1])
		} else {
			values = append(values, m[0])
		}
	}
	return values, nil
}

func toField(rule models.ExtractionRule, values []string) (models.Field, error) {
	field := models.Field{Name: rule.Field}

	if rule.Cardinality == models.CardinalityList {
		if values == nil {
			values = []string{}
		}
		field.List = values
		return field, nil
	}

	// single cardinality
	if len(values) == 0 {
		if rule.Optional {
			return field, nil // absent
		}
		return models.Field{}, missingField(rule.Field)
	}
	field.Single = &values[0]
	return field, nil
}

func invalidRule(fieldName, reason string, err error) *models.ScrapeError {
	return models.NewScrapeError(models.ErrCodeInvalidRule, reason, err).
		WithDetail("field", fieldName)
}

// missingField is Transient by default: the page may simply not have
// finished rendering, so the orchestrator re-navigates instead of
// failing outright.
func missingField(fieldName string) *models.ScrapeError {
	return models.NewScrapeError(models.ErrCodeMissingField,
		fmt.Sprintf("no match for required field %q", fieldName), nil).
		AsTransient().
		WithDetail("field", fieldName)
}
