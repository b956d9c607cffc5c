// Package summary reduces reconciliation results into an auditor-facing
// markdown report plus the computed coverage metrics.
package summary

import (
	"fmt"
	"math"
	"strings"

	"github.com/auditecx/audit_backend/dataset"
	"github.com/auditecx/audit_backend/reconcile"
	"github.com/shopspring/decimal"
)

// Totals carries the aggregate metrics interpolated into the report.
type Totals struct {
	JournalEntries    int     `json:"journal_entries"`
	Documents         int     `json:"documents"`
	TotalAmount       string  `json:"total_amount"`
	AverageConfidence float64 `json:"average_confidence"`
	CoverageRatio     float64 `json:"coverage_ratio"`
}

// Bundle is the synthesized report: fixed-layout markdown, the anomaly
// lines and the totals. Anomalies carries only genuine anomaly reasons,
// prefixed with the ledger entry id; confirmed-match rationales stay in
// the per-row notes and never appear here.
type Bundle struct {
	Markdown  string   `json:"markdown"`
	Anomalies []string `json:"anomalies"`
	Totals    Totals   `json:"totals"`
}

type docRow struct {
	document   string
	docType    string
	vendor     string
	invoice    string
	po         string
	date       string
	amount     decimal.Decimal
	currency   string
	path       string
	confidence float64
}

// Generate aggregates per-row match results. Coverage ratio and average
// confidence default to zero rather than dividing by zero when the inputs
// are empty.
func Generate(results []reconcile.MatchResult) Bundle {
	var docRows []docRow
	var anomalies []string
	var confidences []float64
	totalAmount := decimal.Zero

	for _, match := range results {
		totalAmount = totalAmount.Add(match.LedgerEntry.Amount)
		for _, link := range match.Documents {
			doc := link.Document
			docRows = append(docRows, docRow{
				document:   doc.Filename,
				docType:    doc.DocType,
				vendor:     doc.VendorName,
				invoice:    doc.InvoiceId,
				po:         doc.POId,
				date:       doc.Date,
				amount:     doc.Amount,
				currency:   doc.Currency,
				path:       doc.Path,
				confidence: doc.ExtractionConfidence,
			})
			confidences = append(confidences, doc.ExtractionConfidence)
		}
		for _, reason := range match.Anomalies {
			if match.LedgerEntry.EntryId != "" {
				anomalies = append(anomalies, fmt.Sprintf("%s: %s", match.LedgerEntry.EntryId, reason))
			} else {
				anomalies = append(anomalies, reason)
			}
		}
	}

	entryCount := len(results)
	coverage := 0.0
	if len(docRows) > 0 && entryCount > 0 {
		coverage = round2(float64(len(docRows)) / float64(entryCount))
	}
	avgConf := 0.0
	if len(confidences) > 0 {
		var sum float64
		for _, c := range confidences {
			sum += c
		}
		avgConf = round3(sum / float64(len(confidences)))
	}

	markdown := renderMarkdown(docRows, entryCount, anomalies, totalAmount, avgConf, coverage)

	return Bundle{
		Markdown:  markdown,
		Anomalies: anomalies,
		Totals: Totals{
			JournalEntries:    entryCount,
			Documents:         len(docRows),
			TotalAmount:       totalAmount.StringFixed(2),
			AverageConfidence: avgConf,
			CoverageRatio:     coverage,
		},
	}
}

// StreamContext is the raw run context the streaming path renders from:
// every discovered document and ledger row, not only the matched ones.
type StreamContext struct {
	Documents      []dataset.DocumentRecord
	JournalEntries []dataset.LedgerEntry
	Anomalies      []reconcile.Anomaly
}

// Render produces the deterministic markdown for a stream context.
func Render(ctx StreamContext) string {
	var docRows []docRow
	var confidences []float64
	for _, doc := range ctx.Documents {
		docRows = append(docRows, docRow{
			document:   doc.Filename,
			docType:    doc.DocType,
			vendor:     doc.VendorName,
			invoice:    doc.InvoiceId,
			po:         doc.POId,
			date:       doc.Date,
			amount:     doc.Amount,
			currency:   doc.Currency,
			path:       doc.Path,
			confidence: doc.ExtractionConfidence,
		})
		confidences = append(confidences, doc.ExtractionConfidence)
	}

	totalAmount := decimal.Zero
	for _, row := range ctx.JournalEntries {
		totalAmount = totalAmount.Add(row.Amount)
	}

	var anomalies []string
	for _, anomaly := range ctx.Anomalies {
		if anomaly.LedgerEntry.EntryId != "" {
			anomalies = append(anomalies, fmt.Sprintf("%s: %s", anomaly.LedgerEntry.EntryId, anomaly.Reason))
		} else {
			anomalies = append(anomalies, anomaly.Reason)
		}
	}

	coverage := 0.0
	if len(ctx.JournalEntries) > 0 {
		coverage = round2(float64(len(docRows)) / float64(len(ctx.JournalEntries)))
	}
	avgConf := 0.0
	if len(confidences) > 0 {
		var sum float64
		for _, c := range confidences {
			sum += c
		}
		avgConf = round3(sum / float64(len(confidences)))
	}

	return renderMarkdown(docRows, len(ctx.JournalEntries), anomalies, totalAmount, avgConf, coverage)
}

func renderMarkdown(docRows []docRow, entryCount int, anomalies []string, totalAmount decimal.Decimal, avgConf, coverage float64) string {
	lines := []string{
		"# Audit Summary",
		"",
		"## Executive Overview",
		fmt.Sprintf(
			"Reviewed %d journal entries linked to %d documents totalling %s. Evidence coverage ratio is %.2f%% with average extraction confidence of %.2f.",
			entryCount,
			len(docRows),
			totalAmount.StringFixed(2),
			coverage*100,
			avgConf,
		),
		"",
		"## Evidence Map",
		"| Document | Type | Vendor | Invoice | PO | Date | Amount | Path | Confidence |",
		"| --- | --- | --- | --- | --- | --- | --- | --- | --- |",
	}

	for _, row := range docRows {
		lines = append(lines, fmt.Sprintf(
			"| %s | %s | %s | %s | %s | %s | %s %s | %s | %.2f |",
			row.document, row.docType, row.vendor, row.invoice, row.po, row.date,
			row.amount.StringFixed(2), row.currency, row.path, row.confidence,
		))
	}

	lines = append(lines, "", "## Anomalies")
	if len(anomalies) > 0 {
		for _, issue := range anomalies {
			lines = append(lines, "- "+issue)
		}
	} else {
		lines = append(lines, "- None observed")
	}

	return strings.Join(lines, "\n")
}

func round2(v float64) float64 {
	return math.Round(v*100) / 100
}

func round3(v float64) float64 {
	return math.Round(v*1000) / 1000
}
