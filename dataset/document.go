package dataset

import (
	"os"
	"path/filepath"
	"regexp"
	"sort"
	"strings"
	"unicode/utf8"

	"github.com/shopspring/decimal"
)

// DocumentRecord is one parsed evidence file. The leading `KEY: value`
// lines carry the metadata; the first non-matching line starts the body.
type DocumentRecord struct {
	Filename             string          `json:"filename"`
	Path                 string          `json:"path"`
	DocType              string          `json:"doc_type"`
	VendorId             string          `json:"vendor_id"`
	VendorName           string          `json:"vendor_name"`
	InvoiceId            string          `json:"invoice_id"`
	POId                 string          `json:"po_id"`
	Date                 string          `json:"date"`
	Amount               decimal.Decimal `json:"amount"`
	Currency             string          `json:"currency"`
	Text                 string          `json:"text"`
	ManifestRef          string          `json:"manifest_ref"`
	ExtractionConfidence float64         `json:"extraction_confidence"`
}

var metadataLine = regexp.MustCompile(`(?i)^([A-Z_ ]+):\s*(.+)$`)

// Mock extraction always reports the same confidence; a real extractor
// would vary it per document.
const mockExtractionConfidence = 0.9

// FindDocs scans the given directories for documents whose vendor, invoice
// or PO id intersects the identifier set. An empty identifier set returns
// every parseable document. Missing directories are skipped.
func FindDocs(identifiers []string, directories []string) ([]DocumentRecord, error) {
	idSet := normalizeIdentifierSet(identifiers)

	var documents []DocumentRecord
	for _, dir := range directories {
		entries, err := os.ReadDir(dir)
		if err != nil {
			if os.IsNotExist(err) {
				continue
			}
			return nil, err
		}
		names := make([]string, 0, len(entries))
		for _, entry := range entries {
			if entry.IsDir() {
				continue
			}
			names = append(names, entry.Name())
		}
		sort.Strings(names)

		for _, name := range names {
			path := filepath.Join(dir, name)
			metadata, body, ok := parseDocumentFile(path)
			if !ok || len(metadata) == 0 {
				continue
			}
			if len(idSet) > 0 && !identifierMatch(idSet, metadata["vendor_id"], metadata["invoice_id"], metadata["po_id"]) {
				continue
			}

			docType := metadata["document_type"]
			if docType == "" {
				docType = metadata["doc_type"]
			}
			if docType == "" {
				docType = "unknown"
			}
			date := metadata["document_date"]
			if date == "" {
				date = metadata["date"]
			}
			manifestRef := metadata["manifest_ref"]
			if manifestRef == "" {
				manifestRef = strings.ToUpper(strings.TrimSuffix(name, filepath.Ext(name)))
			}

			documents = append(documents, DocumentRecord{
				Filename:             name,
				Path:                 path,
				DocType:              docType,
				VendorId:             metadata["vendor_id"],
				VendorName:           metadata["vendor_name"],
				InvoiceId:            metadata["invoice_id"],
				POId:                 metadata["po_id"],
				Date:                 date,
				Amount:               safeAmount(metadata["amount"]),
				Currency:             defaultString(metadata["currency"], "USD"),
				Text:                 body,
				ManifestRef:          manifestRef,
				ExtractionConfidence: mockExtractionConfidence,
			})
		}
	}
	return documents, nil
}

// parseDocumentFile splits a file into normalized metadata and free text.
// Binary files (invalid UTF-8) are skipped entirely.
func parseDocumentFile(path string) (map[string]string, string, bool) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, "", false
	}
	if !utf8.Valid(raw) {
		return nil, "", false
	}

	metadata := map[string]string{}
	var bodyLines []string
	inBody := false
	for _, line := range strings.Split(string(raw), "\n") {
		line = strings.TrimRight(line, "\r")
		if !inBody {
			if m := metadataLine.FindStringSubmatch(line); m != nil {
				key := strings.ToLower(strings.TrimSpace(m[1]))
				key = strings.ReplaceAll(key, " ", "_")
				metadata[key] = strings.TrimSpace(m[2])
				continue
			}
			if strings.TrimSpace(line) == "" && len(bodyLines) == 0 {
				continue
			}
			inBody = true
		}
		bodyLines = append(bodyLines, line)
	}
	return metadata, strings.TrimSpace(strings.Join(bodyLines, "\n")), true
}
