// Package metrics compiles per-vendor risk rollups from the mock datasets
// and the durable run manifests.
package metrics

import (
	"encoding/csv"
	"encoding/json"
	"errors"
	"io"
	"os"
	"path/filepath"
	"regexp"
	"sort"
	"strings"

	"github.com/shopspring/decimal"
)

var ErrJournalRequired = errors.New("journal_entries.csv is required to build vendor risk metrics")

var docTokenPattern = regexp.MustCompile(`(INV-\d+|JE-\d+|PO-\d+|PAY-\d+|GRN-\d+)`)

// VendorRisk is one vendor's rollup. Score starts at 100 and loses ten
// points per anomaly attributed to the vendor.
type VendorRisk struct {
	VendorId    string          `json:"vendor_id"`
	VendorName  string          `json:"vendor_name"`
	Invoices    int             `json:"invoices"`
	Anomalies   int             `json:"anomalies"`
	TotalAmount decimal.Decimal `json:"total_amount"`
	Score       int             `json:"score"`
	Band        string          `json:"band"`
}

// Builder points at the inputs of a rollup.
type Builder struct {
	VendorProfilesPath string
	JournalPath        string
	AuditLogDir        string
}

type journalIndex struct {
	invoiceToVendor map[string]string
	entryToVendor   map[string]string
	vendorInvoices  map[string]map[string]bool
	vendorAmounts   map[string]decimal.Decimal
}

// Build compiles the rollup, sorted by descending score then vendor id.
func (b Builder) Build() ([]VendorRisk, error) {
	names, err := b.loadVendorNames()
	if err != nil {
		return nil, err
	}
	index, err := b.loadJournal()
	if err != nil {
		return nil, err
	}
	anomalies, err := b.countAnomalies(index)
	if err != nil {
		return nil, err
	}

	vendorIds := map[string]bool{}
	for vendorId := range index.vendorInvoices {
		vendorIds[vendorId] = true
	}
	for vendorId := range anomalies {
		vendorIds[vendorId] = true
	}
	for vendorId := range names {
		vendorIds[vendorId] = true
	}

	var results []VendorRisk
	for vendorId := range vendorIds {
		name := names[vendorId]
		if name == "" {
			name = vendorId
		}
		anomalyCount := anomalies[vendorId]
		score := 100 - anomalyCount*10
		if score < 0 {
			score = 0
		}
		amount, ok := index.vendorAmounts[vendorId]
		if !ok {
			amount = decimal.Zero
		}
		results = append(results, VendorRisk{
			VendorId:    vendorId,
			VendorName:  name,
			Invoices:    len(index.vendorInvoices[vendorId]),
			Anomalies:   anomalyCount,
			TotalAmount: amount,
			Score:       score,
			Band:        band(score),
		})
	}

	sort.Slice(results, func(i, j int) bool {
		if results[i].Score != results[j].Score {
			return results[i].Score > results[j].Score
		}
		return results[i].VendorId < results[j].VendorId
	})
	return results, nil
}

func band(score int) string {
	switch {
	case score >= 80:
		return "low"
	case score >= 50:
		return "medium"
	}
	return "high"
}

func (b Builder) loadVendorNames() (map[string]string, error) {
	names := map[string]string{}
	f, err := os.Open(b.VendorProfilesPath)
	if err != nil {
		if os.IsNotExist(err) {
			return names, nil
		}
		return nil, err
	}
	defer f.Close()

	reader := csv.NewReader(f)
	reader.FieldsPerRecord = -1
	header, err := reader.Read()
	if err == io.EOF {
		return names, nil
	}
	if err != nil {
		return nil, err
	}
	col := columnIndex(header)
	for {
		record, err := reader.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, err
		}
		vendorId := field(record, col, "vendor_id")
		if vendorId == "" {
			continue
		}
		name := field(record, col, "vendor_name")
		if name == "" {
			name = vendorId
		}
		names[vendorId] = name
	}
	return names, nil
}

func (b Builder) loadJournal() (journalIndex, error) {
	index := journalIndex{
		invoiceToVendor: map[string]string{},
		entryToVendor:   map[string]string{},
		vendorInvoices:  map[string]map[string]bool{},
		vendorAmounts:   map[string]decimal.Decimal{},
	}

	f, err := os.Open(b.JournalPath)
	if err != nil {
		if os.IsNotExist(err) {
			return index, ErrJournalRequired
		}
		return index, err
	}
	defer f.Close()

	reader := csv.NewReader(f)
	reader.FieldsPerRecord = -1
	header, err := reader.Read()
	if err == io.EOF {
		return index, nil
	}
	if err != nil {
		return index, err
	}
	col := columnIndex(header)
	for {
		record, err := reader.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return index, err
		}
		vendorId := field(record, col, "vendor_id")
		if vendorId == "" {
			vendorId = "UNKNOWN"
		}
		if index.vendorInvoices[vendorId] == nil {
			index.vendorInvoices[vendorId] = map[string]bool{}
		}
		if invoiceId := field(record, col, "invoice_id"); invoiceId != "" {
			index.invoiceToVendor[invoiceId] = vendorId
			index.vendorInvoices[vendorId][invoiceId] = true
		}
		if entryId := field(record, col, "entry_id"); entryId != "" {
			index.entryToVendor[entryId] = vendorId
		}
		// PO lookups share the invoice map so token resolution can use one
		// dictionary.
		if poId := field(record, col, "po_id"); poId != "" {
			index.invoiceToVendor[poId] = vendorId
		}
		if raw := strings.ReplaceAll(field(record, col, "amount"), ",", ""); raw != "" {
			if amount, err := decimal.NewFromString(raw); err == nil {
				index.vendorAmounts[vendorId] = index.vendorAmounts[vendorId].Add(amount)
			}
		}
	}
	return index, nil
}

// countAnomalies scans the durable run manifests and attributes each
// anomaly line to a vendor through its identifier tokens.
func (b Builder) countAnomalies(index journalIndex) (map[string]int, error) {
	counts := map[string]int{}
	if b.AuditLogDir == "" {
		return counts, nil
	}
	entries, err := os.ReadDir(b.AuditLogDir)
	if err != nil {
		if os.IsNotExist(err) {
			return counts, nil
		}
		return nil, err
	}

	for _, entry := range entries {
		if entry.IsDir() || !strings.HasSuffix(entry.Name(), ".json") {
			continue
		}
		raw, err := os.ReadFile(filepath.Join(b.AuditLogDir, entry.Name()))
		if err != nil {
			continue
		}
		var manifest struct {
			Summary struct {
				Anomalies []string `json:"anomalies"`
			} `json:"summary"`
		}
		if err := json.Unmarshal(raw, &manifest); err != nil {
			continue
		}
		for _, anomaly := range manifest.Summary.Anomalies {
			if !anomalyReason(anomaly) {
				continue
			}
			if vendorId := resolveVendor(anomaly, index); vendorId != "" {
				counts[vendorId]++
			}
		}
	}
	return counts, nil
}

var anomalyReasonMarkers = []string{
	"Amount delta",
	"Date gap",
	"No supporting document found",
	"Partial match without clear reason",
}

// anomalyReason accepts only lines stating a reconciliation failure. Some
// manifests also carry confirmed-match rationale lines ("ID match on ...",
// "Amount within tolerance ..."); those must not dock the vendor score.
func anomalyReason(text string) bool {
	for _, marker := range anomalyReasonMarkers {
		if strings.Contains(text, marker) {
			return true
		}
	}
	return false
}

func resolveVendor(text string, index journalIndex) string {
	for _, token := range docTokenPattern.FindAllString(text, -1) {
		switch {
		case strings.HasPrefix(token, "JE-"):
			if vendorId, ok := index.entryToVendor[token]; ok {
				return vendorId
			}
		default:
			if vendorId, ok := index.invoiceToVendor[token]; ok {
				return vendorId
			}
		}
	}
	return ""
}

func columnIndex(header []string) map[string]int {
	col := map[string]int{}
	for i, name := range header {
		col[strings.ToLower(strings.TrimSpace(name))] = i
	}
	return col
}

func field(record []string, col map[string]int, name string) string {
	idx, ok := col[name]
	if !ok || idx >= len(record) {
		return ""
	}
	return strings.TrimSpace(record[idx])
}
