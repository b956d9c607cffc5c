// Package dataset loads the deterministic mock datasets: a CSV journal of
// ledger entries and a directory of key/value-annotated document files.
package dataset

import (
	"encoding/csv"
	"io"
	"os"
	"strings"

	"github.com/auditecx/audit_backend/utils"
	"github.com/shopspring/decimal"
)

// LedgerEntry is one journal row. Entries are immutable for the lifetime
// of a run; entry_id is unique within a dataset.
type LedgerEntry struct {
	EntryId     string          `json:"entry_id"`
	VendorId    string          `json:"vendor_id"`
	VendorName  string          `json:"vendor_name"`
	InvoiceId   string          `json:"invoice_id"`
	POId        string          `json:"po_id"`
	Amount      decimal.Decimal `json:"amount"`
	Currency    string          `json:"currency"`
	Status      string          `json:"status"`
	PostingDate string          `json:"posting_date"`
}

// QueryJournal returns the ledger rows whose vendor, invoice or PO id
// intersects the identifier set (case-insensitive). An empty identifier set
// returns the whole dataset. A missing file yields no rows and no error.
func QueryJournal(csvPath string, identifiers []string) ([]LedgerEntry, error) {
	f, err := os.Open(csvPath)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, err
	}
	defer f.Close()

	idSet := normalizeIdentifierSet(identifiers)

	reader := csv.NewReader(f)
	reader.FieldsPerRecord = -1
	header, err := reader.Read()
	if err == io.EOF {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}

	col := map[string]int{}
	for i, name := range header {
		col[strings.ToLower(strings.TrimSpace(name))] = i
	}
	field := func(record []string, name string) string {
		idx, ok := col[name]
		if !ok || idx >= len(record) {
			return ""
		}
		return strings.TrimSpace(record[idx])
	}

	var matched []LedgerEntry
	for {
		record, err := reader.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, err
		}

		entry := LedgerEntry{
			EntryId:     field(record, "entry_id"),
			VendorId:    field(record, "vendor_id"),
			VendorName:  field(record, "vendor_name"),
			InvoiceId:   field(record, "invoice_id"),
			POId:        field(record, "po_id"),
			Amount:      safeAmount(field(record, "amount")),
			Currency:    defaultString(field(record, "currency"), "USD"),
			Status:      defaultString(field(record, "status"), "recorded"),
			PostingDate: field(record, "posting_date"),
		}
		if len(idSet) > 0 && !identifierMatch(idSet, entry.VendorId, entry.InvoiceId, entry.POId) {
			continue
		}
		matched = append(matched, entry)
	}
	return matched, nil
}

func normalizeIdentifierSet(identifiers []string) map[string]struct{} {
	set := map[string]struct{}{}
	for _, id := range identifiers {
		if token := utils.NormalizeToken(id); token != "" {
			set[token] = struct{}{}
		}
	}
	return set
}

func identifierMatch(idSet map[string]struct{}, values ...string) bool {
	for _, value := range values {
		token := utils.NormalizeToken(value)
		if token == "" {
			continue
		}
		if _, ok := idSet[token]; ok {
			return true
		}
	}
	return false
}

// safeAmount tolerates thousands separators and malformed values; anything
// unparseable becomes zero rather than an error.
func safeAmount(raw string) decimal.Decimal {
	cleaned := strings.ReplaceAll(strings.TrimSpace(raw), ",", "")
	if cleaned == "" {
		return decimal.Zero
	}
	amount, err := decimal.NewFromString(cleaned)
	if err != nil {
		return decimal.Zero
	}
	return amount
}

func defaultString(value, fallback string) string {
	if value == "" {
		return fallback
	}
	return value
}
