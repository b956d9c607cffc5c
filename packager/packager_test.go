package packager

import (
	"archive/zip"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/auditecx/audit_backend/dataset"
	"github.com/auditecx/audit_backend/reconcile"
	"github.com/auditecx/audit_backend/summary"
	"github.com/shopspring/decimal"
)

func buildMatches(t *testing.T, docDir string) []reconcile.MatchResult {
	t.Helper()
	docPath := filepath.Join(docDir, "inv_2002.txt")
	if err := os.WriteFile(docPath, []byte("VENDOR_ID: VEND-100\n\nInvoice body."), 0o644); err != nil {
		t.Fatalf("write doc: %v", err)
	}
	rows := []dataset.LedgerEntry{
		{EntryId: "JE-1", VendorId: "VEND-100", InvoiceId: "INV-2002", Amount: decimal.RequireFromString("1000.00"), Currency: "USD", Status: "recorded", PostingDate: "2025-01-10"},
	}
	docs := []dataset.DocumentRecord{
		{Filename: "inv_2002.txt", Path: docPath, DocType: "invoice", VendorId: "VEND-100", InvoiceId: "INV-2002", Date: "2025-01-12", Amount: decimal.RequireFromString("1005.00"), Currency: "USD", Text: "Invoice body.", ManifestRef: "INV_2002", ExtractionConfidence: 0.9},
	}
	return reconcile.Reconcile(rows, docs).Matches
}

func zipNames(t *testing.T, path string) map[string]bool {
	t.Helper()
	reader, err := zip.OpenReader(path)
	if err != nil {
		t.Fatalf("open zip: %v", err)
	}
	defer reader.Close()
	names := map[string]bool{}
	for _, f := range reader.File {
		names[f.Name] = true
	}
	return names
}

func TestCreatePackage_ProducesAllArtifacts(t *testing.T) {
	outDir := t.TempDir()
	logDir := t.TempDir()
	docDir := t.TempDir()

	matches := buildMatches(t, docDir)
	results := matches
	bundle := summary.Generate(results)

	p := New(outDir, logDir, nil)
	artifacts, err := p.CreatePackage("20250110093000-abcd", bundle, matches)
	if err != nil {
		t.Fatalf("CreatePackage: %v", err)
	}

	if _, err := os.Stat(artifacts.ManifestPath); err != nil {
		t.Fatalf("durable manifest missing: %v", err)
	}
	if _, err := os.Stat(artifacts.SummaryPath); err != nil {
		t.Fatalf("summary copy missing: %v", err)
	}
	info, err := os.Stat(artifacts.PackagePath)
	if err != nil {
		t.Fatalf("package missing: %v", err)
	}
	if info.Size() == 0 {
		t.Fatalf("package is empty")
	}

	names := zipNames(t, artifacts.PackagePath)
	for _, want := range []string{"summary.md", "journal_entries.json", "documents.json", "journal_entries.xlsx", "manifest.json", "documents/inv_2002.txt"} {
		if !names[want] {
			t.Fatalf("zip missing %s (has %v)", want, names)
		}
	}

	// Work dir must be cleaned up after zipping.
	if _, err := os.Stat(filepath.Join(outDir, "run_20250110093000-abcd")); !os.IsNotExist(err) {
		t.Fatalf("work dir should be removed, stat err = %v", err)
	}
}

func TestCreatePackage_ManifestContents(t *testing.T) {
	outDir := t.TempDir()
	logDir := t.TempDir()
	docDir := t.TempDir()

	matches := buildMatches(t, docDir)
	bundle := summary.Generate(matches)

	p := New(outDir, logDir, nil)
	artifacts, err := p.CreatePackage("run-1", bundle, matches)
	if err != nil {
		t.Fatalf("CreatePackage: %v", err)
	}

	raw, err := os.ReadFile(artifacts.ManifestPath)
	if err != nil {
		t.Fatalf("read manifest: %v", err)
	}
	var manifest map[string]json.RawMessage
	if err := json.Unmarshal(raw, &manifest); err != nil {
		t.Fatalf("manifest is not valid JSON: %v", err)
	}
	for _, key := range []string{"run_id", "summary", "journal_entries", "documents"} {
		if _, ok := manifest[key]; !ok {
			t.Fatalf("manifest missing %q", key)
		}
	}
}

func TestCreatePackage_MissingSourceFallsBackToText(t *testing.T) {
	outDir := t.TempDir()
	logDir := t.TempDir()

	rows := []dataset.LedgerEntry{
		{EntryId: "JE-1", VendorId: "VEND-100", Amount: decimal.RequireFromString("10.00"), PostingDate: "2025-01-10"},
	}
	docs := []dataset.DocumentRecord{
		{Filename: "ghost.txt", Path: "/nonexistent/ghost.txt", VendorId: "VEND-100", Date: "2025-01-10", Amount: decimal.RequireFromString("10.00"), Text: "Recovered text body.", ExtractionConfidence: 0.9},
	}
	matches := reconcile.Reconcile(rows, docs).Matches
	bundle := summary.Generate(matches)

	p := New(outDir, logDir, nil)
	artifacts, err := p.CreatePackage("run-2", bundle, matches)
	if err != nil {
		t.Fatalf("CreatePackage: %v", err)
	}

	reader, err := zip.OpenReader(artifacts.PackagePath)
	if err != nil {
		t.Fatalf("open zip: %v", err)
	}
	defer reader.Close()
	for _, f := range reader.File {
		if f.Name == "documents/ghost.txt" {
			rc, err := f.Open()
			if err != nil {
				t.Fatalf("open entry: %v", err)
			}
			defer rc.Close()
			buf := make([]byte, 64)
			n, _ := rc.Read(buf)
			if string(buf[:n]) != "Recovered text body." {
				t.Fatalf("fallback content = %q", string(buf[:n]))
			}
			return
		}
	}
	t.Fatalf("documents/ghost.txt not present in package")
}
