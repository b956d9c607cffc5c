// Package reconcile pairs ledger rows with supporting documents and
// classifies each pairing as a confirmed match or an anomaly.
//
// A candidate pair exists when the row and document share at least one of
// vendor, invoice or PO id (case-insensitive). A candidate is confirmed
// when the document amount lies within max(1% of the ledger amount, 0.50)
// and the dates are within seven days of each other; otherwise it becomes
// an anomaly. Pairs without identifier overlap are ignored entirely.
package reconcile

import (
	"fmt"
	"strings"
	"time"

	"github.com/auditecx/audit_backend/dataset"
	"github.com/auditecx/audit_backend/utils"
	"github.com/shopspring/decimal"
)

var (
	relativeTolerance = decimal.NewFromFloat(0.01)
	absoluteTolerance = decimal.NewFromFloat(0.5)
)

const dateWindowDays = 7

// LinkedDocument is a confirmed document with the rationale for linking it.
type LinkedDocument struct {
	Document  dataset.DocumentRecord `json:"document"`
	Rationale []string               `json:"rationale"`
}

// MatchResult summarizes one ledger row's outcome: its confirmed documents,
// a binary score and the flattened rationale/anomaly notes. Anomalies holds
// only that row's anomaly reasons, never linkage rationales, so downstream
// consumers can tell the two apart. Results are built once per
// reconciliation pass and never mutated afterwards.
type MatchResult struct {
	LedgerEntry dataset.LedgerEntry `json:"ledger_entry"`
	Documents   []LinkedDocument    `json:"documents"`
	Score       float64             `json:"score"`
	Notes       []string            `json:"notes"`
	Anomalies   []string            `json:"anomalies,omitempty"`
}

// Anomaly records either a candidate pair that failed the amount or date
// check (Document set) or a ledger row with no confirmed documents at all
// (Document nil).
type Anomaly struct {
	LedgerEntry dataset.LedgerEntry     `json:"ledger_entry"`
	Document    *dataset.DocumentRecord `json:"document"`
	Reason      string                  `json:"reason"`
}

// Outcome carries the two collections the orchestrator stores in the run
// context plus the per-row results the summary consumes. Matches holds only
// rows with at least one confirmed document; Results covers every row.
type Outcome struct {
	Matches   []MatchResult `json:"matches"`
	Anomalies []Anomaly     `json:"anomalies"`
	Results   []MatchResult `json:"-"`
}

// Reconcile is deterministic: the same inputs always produce identical
// matches and anomalies, in row-major candidate order.
func Reconcile(rows []dataset.LedgerEntry, docs []dataset.DocumentRecord) Outcome {
	var outcome Outcome

	for _, row := range rows {
		var linked []LinkedDocument
		var rowAnomalyReasons []string

		for i := range docs {
			doc := docs[i]
			okId, idComment := identifierOverlap(row, doc)
			if !okId {
				continue
			}
			okAmount, amountComment := amountWithinTolerance(row, doc)
			okDate, dateComment := dateWithinWindow(row, doc)

			if okAmount && okDate {
				rationale := make([]string, 0, 3)
				for _, note := range []string{idComment, amountComment, dateComment} {
					if note != "" {
						rationale = append(rationale, note)
					}
				}
				linked = append(linked, LinkedDocument{Document: doc, Rationale: rationale})
				continue
			}

			reason := "Partial match without clear reason"
			if !okAmount {
				reason = amountComment
			} else if !okDate {
				reason = dateComment
			}
			outcome.Anomalies = append(outcome.Anomalies, Anomaly{LedgerEntry: row, Document: &docs[i], Reason: reason})
			rowAnomalyReasons = append(rowAnomalyReasons, reason)
		}

		if len(linked) == 0 {
			// Rows without a single confirmed document always carry the
			// catch-all anomaly, after any candidate-specific ones.
			reason := "No supporting document found"
			outcome.Anomalies = append(outcome.Anomalies, Anomaly{LedgerEntry: row, Reason: reason})
			rowAnomalyReasons = append(rowAnomalyReasons, reason)
		}

		result := MatchResult{LedgerEntry: row, Documents: linked, Anomalies: rowAnomalyReasons}
		for _, link := range linked {
			result.Notes = append(result.Notes, link.Rationale...)
		}
		result.Notes = append(result.Notes, rowAnomalyReasons...)
		if len(linked) > 0 {
			result.Score = 1.0
			outcome.Matches = append(outcome.Matches, result)
		}
		outcome.Results = append(outcome.Results, result)
	}

	return outcome
}

func identifierOverlap(row dataset.LedgerEntry, doc dataset.DocumentRecord) (bool, string) {
	ledgerTokens := map[string]struct{}{}
	for _, value := range []string{row.VendorId, row.InvoiceId, row.POId} {
		if token := utils.NormalizeToken(value); token != "" {
			ledgerTokens[token] = struct{}{}
		}
	}

	var overlap []string
	for _, value := range []string{doc.VendorId, doc.InvoiceId, doc.POId} {
		token := utils.NormalizeToken(value)
		if token == "" {
			continue
		}
		if _, ok := ledgerTokens[token]; ok {
			overlap = utils.AppendUnique(overlap, token)
		}
	}
	if len(overlap) == 0 {
		return false, ""
	}
	return true, "ID match on " + strings.Join(overlap, ", ")
}

// amountWithinTolerance accepts when |row-doc| <= max(1%*|row|, 0.50).
// The tolerance derives from the ledger amount only, so near-zero rows
// fall back to the 0.50 floor regardless of the document amount.
func amountWithinTolerance(row dataset.LedgerEntry, doc dataset.DocumentRecord) (bool, string) {
	tolerance := row.Amount.Abs().Mul(relativeTolerance)
	if tolerance.LessThan(absoluteTolerance) {
		tolerance = absoluteTolerance
	}
	delta := row.Amount.Sub(doc.Amount).Abs()
	if delta.LessThanOrEqual(tolerance) {
		return true, fmt.Sprintf("Amount within tolerance (Δ=%s)", delta.StringFixed(2))
	}
	return false, fmt.Sprintf("Amount delta %s exceeds tolerance %s", delta.StringFixed(2), tolerance.StringFixed(2))
}

// dateWithinWindow accepts when both dates parse and differ by at most
// seven days. An unparseable date on either side passes, not fails:
// documents dated by quarter label should not be flagged on dates alone.
func dateWithinWindow(row dataset.LedgerEntry, doc dataset.DocumentRecord) (bool, string) {
	ledgerDate, okLedger := parseDate(row.PostingDate)
	docDate, okDoc := parseDate(doc.Date)
	if !okLedger || !okDoc {
		return true, "Date unavailable"
	}
	gap := int(ledgerDate.Sub(docDate).Hours() / 24)
	if gap < 0 {
		gap = -gap
	}
	if gap <= dateWindowDays {
		return true, "Date within ±7 days"
	}
	return false, fmt.Sprintf("Date gap %d days outside window", gap)
}

func parseDate(value string) (time.Time, bool) {
	value = strings.TrimSpace(value)
	if value == "" {
		return time.Time{}, false
	}
	for _, layout := range []string{"2006-01-02", "02-01-2006"} {
		if t, err := time.Parse(layout, value); err == nil {
			return t, true
		}
	}
	return time.Time{}, false
}
