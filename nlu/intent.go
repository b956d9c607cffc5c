// Package nlu parses free-form audit queries into structured intent data.
// Extraction is purely lexical: fixed regular expressions for identifier
// tokens plus a priority-ordered keyword classifier for the intent label.
package nlu

import (
	"regexp"
	"sort"
	"strings"

	"github.com/auditecx/audit_backend/utils"
)

var (
	vendorPattern  = regexp.MustCompile(`(?i)\bVEND-\d+\b`)
	invoicePattern = regexp.MustCompile(`(?i)\bINV-\d+\b`)
	poPattern      = regexp.MustCompile(`(?i)\bPO-\d+\b`)
	datePattern    = regexp.MustCompile(`\b\d{4}-\d{2}-\d{2}\b`)
	quarterPattern = regexp.MustCompile(`(?i)\bQ([1-4])\s*(20\d{2})\b`)
)

// DateRange is either a pair of ISO dates or a pair of normalized quarter
// labels (Q1 2025). Empty strings mean no range was found.
type DateRange struct {
	From string `json:"from"`
	To   string `json:"to"`
}

type Entities struct {
	VendorIDs  []string  `json:"vendor_ids"`
	InvoiceIDs []string  `json:"invoice_ids"`
	POIDs      []string  `json:"po_ids"`
	DateRange  DateRange `json:"date_range"`
	Actions    []string  `json:"actions"`
}

// ParsedIntent is the structured interpretation of a query.
type ParsedIntent struct {
	Intent   string   `json:"intent"`
	Entities Entities `json:"entities"`
	Raw      string   `json:"raw"`
}

// Identifiers returns vendor, invoice and PO tokens deduplicated in order
// of first appearance across the three buckets.
func (p ParsedIntent) Identifiers() []string {
	var ids []string
	for _, bucket := range [][]string{p.Entities.VendorIDs, p.Entities.InvoiceIDs, p.Entities.POIDs} {
		for _, value := range bucket {
			ids = utils.AppendUnique(ids, value)
		}
	}
	return ids
}

// ParseIntent never fails: queries with no recognizable tokens produce a
// general_query intent with empty entity lists.
func ParseIntent(text string) ParsedIntent {
	trimmed := strings.TrimSpace(text)
	if trimmed == "" {
		return ParsedIntent{Intent: "general_query", Raw: text}
	}

	lower := strings.ToLower(trimmed)
	actions := inferActions(lower)
	parsed := ParsedIntent{
		Intent: inferIntent(lower),
		Entities: Entities{
			VendorIDs:  extractTokens(vendorPattern, trimmed),
			InvoiceIDs: extractTokens(invoicePattern, trimmed),
			POIDs:      extractTokens(poPattern, trimmed),
			Actions:    actions,
		},
		Raw: text,
	}
	parsed.Entities.DateRange = extractDateRange(trimmed)
	return parsed
}

func extractTokens(pattern *regexp.Regexp, text string) []string {
	var tokens []string
	for _, match := range pattern.FindAllString(text, -1) {
		tokens = utils.AppendUnique(tokens, strings.ToUpper(match))
	}
	return tokens
}

func extractDateRange(text string) DateRange {
	isoDates := extractTokens(datePattern, text)
	if len(isoDates) > 0 {
		sorted := append([]string(nil), isoDates...)
		sort.Strings(sorted)
		return DateRange{From: sorted[0], To: sorted[len(sorted)-1]}
	}

	quarters := quarterPattern.FindAllStringSubmatch(text, -1)
	if len(quarters) > 0 {
		var labels []string
		for _, q := range quarters {
			labels = utils.AppendUnique(labels, "Q"+q[1]+" "+q[2])
		}
		sort.Strings(labels)
		return DateRange{From: labels[0], To: labels[len(labels)-1]}
	}

	return DateRange{}
}

func inferActions(lower string) []string {
	var actions []string
	if strings.Contains(lower, "send") || strings.Contains(lower, "email") {
		actions = append(actions, "send")
	}
	if strings.Contains(lower, "download") || strings.Contains(lower, "export") {
		actions = append(actions, "export")
	}
	if strings.Contains(lower, "summar") {
		actions = append(actions, "summarize")
	}
	if strings.Contains(lower, "package") {
		actions = append(actions, "package")
	}
	return actions
}

// inferIntent applies the classifier rules in priority order; the first
// matching rule wins.
func inferIntent(lower string) string {
	switch {
	case strings.Contains(lower, "download") || strings.Contains(lower, "export"):
		return "download_package"
	case strings.Contains(lower, "send") && strings.Contains(lower, "package"):
		return "send_package"
	case strings.Contains(lower, "summar") && !strings.Contains(lower, "package"):
		return "get_summary"
	case strings.Contains(lower, "prepare") || strings.Contains(lower, "generate") || strings.Contains(lower, "package"):
		return "generate_package"
	case strings.Contains(lower, "notify"):
		return "send_package"
	case strings.Contains(lower, "share"):
		return "send_package"
	default:
		return "general_query"
	}
}
