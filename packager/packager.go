// Package packager materializes a finished run into its durable artifacts:
// the evidence package (zip), the audit-log manifest and a summary copy.
package packager

import (
	"archive/zip"
	"encoding/json"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"

	"github.com/auditecx/audit_backend/config"
	"github.com/auditecx/audit_backend/reconcile"
	"github.com/auditecx/audit_backend/summary"
	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"
	"github.com/xuri/excelize/v2"
)

// Packager owns the two output roots. OutputDir holds transient working
// directories and the finished zips; AuditLogDir holds the durable
// manifests and summary copies that survive package cleanup.
type Packager struct {
	OutputDir   string
	AuditLogDir string
	Logger      *logrus.Logger
}

// Artifacts points at the three files a packaging pass leaves behind.
// The durable manifest is written before the zip is assembled, so callers
// may observe the manifest slightly ahead of the package; the two are
// independent artifacts with no joint atomicity guarantee.
type Artifacts struct {
	PackagePath  string `json:"package_path"`
	SummaryPath  string `json:"summary_path"`
	ManifestPath string `json:"manifest_path"`
}

type journalRow struct {
	EntryId     string          `json:"entry_id"`
	VendorId    string          `json:"vendor_id"`
	InvoiceId   string          `json:"invoice_id"`
	POId        string          `json:"po_id"`
	Amount      decimal.Decimal `json:"amount"`
	Currency    string          `json:"currency"`
	PostingDate string          `json:"posting_date"`
	Status      string          `json:"status"`
}

type documentEntry struct {
	Document    string          `json:"document"`
	ManifestRef string          `json:"manifest_ref"`
	Path        string          `json:"path"`
	SourcePath  string          `json:"source_path"`
	Amount      decimal.Decimal `json:"amount"`
	Currency    string          `json:"currency"`
	Vendor      string          `json:"vendor"`
	Invoice     string          `json:"invoice"`
	PO          string          `json:"po"`
	Date        string          `json:"date"`
	Confidence  float64         `json:"confidence"`
}

func New(outputDir, auditLogDir string, logger *logrus.Logger) *Packager {
	if logger == nil {
		logger = config.GetLogger()
	}
	return &Packager{OutputDir: outputDir, AuditLogDir: auditLogDir, Logger: logger}
}

// CreatePackage copies every matched document into a per-run working
// directory (writing the extracted text when the source file is missing),
// writes summary.md, journal_entries.json, documents.json, an xlsx export
// and a manifest, zips the directory and removes it.
func (p *Packager) CreatePackage(runId string, bundle summary.Bundle, matches []reconcile.MatchResult) (Artifacts, error) {
	workDir := filepath.Join(p.OutputDir, "run_"+runId)
	documentsDir := filepath.Join(workDir, "documents")
	if err := os.MkdirAll(documentsDir, 0o755); err != nil {
		return Artifacts{}, err
	}
	if err := os.MkdirAll(p.AuditLogDir, 0o755); err != nil {
		return Artifacts{}, err
	}

	var journalEntries []journalRow
	var docEntries []documentEntry
	var uniqueDocs []documentEntry
	seen := map[string]documentEntry{}

	for _, match := range matches {
		ledger := match.LedgerEntry
		journalEntries = append(journalEntries, journalRow{
			EntryId:     ledger.EntryId,
			VendorId:    ledger.VendorId,
			InvoiceId:   ledger.InvoiceId,
			POId:        ledger.POId,
			Amount:      ledger.Amount,
			Currency:    ledger.Currency,
			PostingDate: ledger.PostingDate,
			Status:      ledger.Status,
		})
		for _, link := range match.Documents {
			doc := link.Document
			record, ok := seen[doc.Filename]
			if !ok {
				copyTarget := filepath.Join(documentsDir, doc.Filename)
				if err := copyFile(doc.Path, copyTarget); err != nil {
					// Missing evidence files are tolerated in mock mode:
					// fall back to the extracted text.
					if writeErr := os.WriteFile(copyTarget, []byte(doc.Text), 0o644); writeErr != nil {
						return Artifacts{}, writeErr
					}
				}
				record = documentEntry{
					Document:    doc.Filename,
					ManifestRef: doc.ManifestRef,
					Path:        filepath.Join("documents", doc.Filename),
					SourcePath:  doc.Path,
					Amount:      doc.Amount,
					Currency:    doc.Currency,
					Vendor:      doc.VendorName,
					Invoice:     doc.InvoiceId,
					PO:          doc.POId,
					Date:        doc.Date,
					Confidence:  doc.ExtractionConfidence,
				}
				seen[doc.Filename] = record
				uniqueDocs = append(uniqueDocs, record)
			}
			docEntries = append(docEntries, record)
		}
	}
	if journalEntries == nil {
		journalEntries = []journalRow{}
	}
	if docEntries == nil {
		docEntries = []documentEntry{}
	}
	if uniqueDocs == nil {
		uniqueDocs = []documentEntry{}
	}

	if err := os.WriteFile(filepath.Join(workDir, "summary.md"), []byte(bundle.Markdown), 0o644); err != nil {
		return Artifacts{}, err
	}
	if err := writeJSON(filepath.Join(workDir, "journal_entries.json"), journalEntries); err != nil {
		return Artifacts{}, err
	}
	if err := writeJSON(filepath.Join(workDir, "documents.json"), docEntries); err != nil {
		return Artifacts{}, err
	}
	if err := writeWorkbook(filepath.Join(workDir, "journal_entries.xlsx"), journalEntries); err != nil {
		return Artifacts{}, err
	}

	manifest := map[string]interface{}{
		"run_id":          runId,
		"summary":         bundle,
		"journal_entries": journalEntries,
		"documents":       uniqueDocs,
	}

	// The durable manifest lands before the zip: manifest availability may
	// be observed slightly ahead of package completion.
	manifestPath := filepath.Join(p.AuditLogDir, runId+".json")
	if err := writeJSON(manifestPath, manifest); err != nil {
		return Artifacts{}, err
	}
	if err := writeJSON(filepath.Join(workDir, "manifest.json"), manifest); err != nil {
		return Artifacts{}, err
	}

	summaryPath := filepath.Join(p.AuditLogDir, runId+"_summary.md")
	if err := os.WriteFile(summaryPath, []byte(bundle.Markdown), 0o644); err != nil {
		return Artifacts{}, err
	}

	zipPath := filepath.Join(p.OutputDir, "package_"+runId+".zip")
	if err := zipDirectory(workDir, zipPath); err != nil {
		return Artifacts{}, err
	}

	if err := os.RemoveAll(workDir); err != nil {
		config.LogError(p.Logger, "packager.go", "CreatePackage", "removing work dir", workDir, err)
	}

	return Artifacts{PackagePath: zipPath, SummaryPath: summaryPath, ManifestPath: manifestPath}, nil
}

func copyFile(src, dst string) error {
	in, err := os.Open(src)
	if err != nil {
		return err
	}
	defer in.Close()
	out, err := os.Create(dst)
	if err != nil {
		return err
	}
	defer out.Close()
	_, err = io.Copy(out, in)
	return err
}

func writeJSON(path string, value interface{}) error {
	raw, err := json.MarshalIndent(value, "", "  ")
	if err != nil {
		return err
	}
	return os.WriteFile(path, raw, 0o644)
}

func writeWorkbook(path string, rows []journalRow) error {
	wb := excelize.NewFile()
	defer wb.Close()

	const sheet = "Journal Entries"
	idx, err := wb.NewSheet(sheet)
	if err != nil {
		return err
	}
	wb.SetActiveSheet(idx)
	if err := wb.DeleteSheet("Sheet1"); err != nil {
		return err
	}

	header := []interface{}{"Entry ID", "Vendor ID", "Invoice ID", "PO ID", "Amount", "Currency", "Posting Date", "Status"}
	if err := wb.SetSheetRow(sheet, "A1", &header); err != nil {
		return err
	}
	for i, row := range rows {
		amount, _ := row.Amount.Float64()
		cells := []interface{}{row.EntryId, row.VendorId, row.InvoiceId, row.POId, amount, row.Currency, row.PostingDate, row.Status}
		cell := fmt.Sprintf("A%d", i+2)
		if err := wb.SetSheetRow(sheet, cell, &cells); err != nil {
			return err
		}
	}
	return wb.SaveAs(path)
}

func zipDirectory(root, zipPath string) error {
	out, err := os.Create(zipPath)
	if err != nil {
		return err
	}
	defer out.Close()

	writer := zip.NewWriter(out)
	defer writer.Close()

	return filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			return nil
		}
		rel, err := filepath.Rel(root, path)
		if err != nil {
			return err
		}
		header := &zip.FileHeader{Name: filepath.ToSlash(rel), Method: zip.Deflate}
		entry, err := writer.CreateHeader(header)
		if err != nil {
			return err
		}
		in, err := os.Open(path)
		if err != nil {
			return err
		}
		defer in.Close()
		_, err = io.Copy(entry, in)
		return err
	})
}
