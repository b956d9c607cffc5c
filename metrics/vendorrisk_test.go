package metrics

import (
	"os"
	"path/filepath"
	"testing"
)

func writeFixtures(t *testing.T) Builder {
	t.Helper()
	dir := t.TempDir()
	logDir := filepath.Join(dir, "audit_logs")
	if err := os.MkdirAll(logDir, 0o755); err != nil {
		t.Fatalf("mkdir: %v", err)
	}

	vendors := "vendor_id,vendor_name\nVEND-100,Acme Supplies\nVEND-200,Globex\n"
	if err := os.WriteFile(filepath.Join(dir, "vendor_profiles.csv"), []byte(vendors), 0o644); err != nil {
		t.Fatalf("write vendors: %v", err)
	}

	journal := "entry_id,vendor_id,invoice_id,po_id,amount\n" +
		"JE-1,VEND-100,INV-2002,PO-77,1000.00\n" +
		"JE-2,VEND-100,INV-2003,,250.50\n" +
		"JE-3,VEND-200,INV-9001,,400.00\n"
	if err := os.WriteFile(filepath.Join(dir, "journal_entries.csv"), []byte(journal), 0o644); err != nil {
		t.Fatalf("write journal: %v", err)
	}

	manifest := `{"run_id":"r1","summary":{"anomalies":["JE-3: Amount delta 200.00 exceeds tolerance 4.00","INV-9001: No supporting document found"]}}`
	if err := os.WriteFile(filepath.Join(logDir, "r1.json"), []byte(manifest), 0o644); err != nil {
		t.Fatalf("write manifest: %v", err)
	}

	return Builder{
		VendorProfilesPath: filepath.Join(dir, "vendor_profiles.csv"),
		JournalPath:        filepath.Join(dir, "journal_entries.csv"),
		AuditLogDir:        logDir,
	}
}

func TestBuild_RollsUpInvoicesAnomaliesAndAmounts(t *testing.T) {
	builder := writeFixtures(t)
	results, err := builder.Build()
	if err != nil {
		t.Fatalf("Build: %v", err)
	}
	if len(results) != 2 {
		t.Fatalf("results = %+v", results)
	}

	// Sorted by descending score: the clean vendor first.
	first := results[0]
	if first.VendorId != "VEND-100" || first.Score != 100 || first.Band != "low" {
		t.Fatalf("first = %+v", first)
	}
	if first.Invoices != 2 || first.Anomalies != 0 {
		t.Fatalf("first rollup = %+v", first)
	}
	if first.TotalAmount.String() != "1250.5" {
		t.Fatalf("total = %s", first.TotalAmount)
	}

	second := results[1]
	if second.VendorId != "VEND-200" || second.VendorName != "Globex" {
		t.Fatalf("second = %+v", second)
	}
	// Both anomaly lines resolve to VEND-200: one via the JE token, one
	// via the invoice token.
	if second.Anomalies != 2 || second.Score != 80 || second.Band != "low" {
		t.Fatalf("second rollup = %+v", second)
	}
}

func TestBuild_MatchRationalesDoNotDockScore(t *testing.T) {
	builder := writeFixtures(t)

	// A run where every row matched: its manifest carries only the
	// linkage rationales of the confirmed match, no anomaly reasons.
	manifest := `{"run_id":"r2","summary":{"anomalies":["ID match on INV-2002","Amount within tolerance (Δ=5.00)","Date within ±7 days"]}}`
	if err := os.WriteFile(filepath.Join(builder.AuditLogDir, "r2.json"), []byte(manifest), 0o644); err != nil {
		t.Fatalf("write manifest: %v", err)
	}

	results, err := builder.Build()
	if err != nil {
		t.Fatalf("Build: %v", err)
	}
	for _, result := range results {
		if result.VendorId == "VEND-100" {
			if result.Anomalies != 0 || result.Score != 100 || result.Band != "low" {
				t.Fatalf("clean vendor penalized: %+v", result)
			}
			return
		}
	}
	t.Fatalf("VEND-100 missing from %v", results)
}

func TestBuild_MissingJournalIsAnError(t *testing.T) {
	builder := Builder{JournalPath: filepath.Join(t.TempDir(), "absent.csv")}
	if _, err := builder.Build(); err != ErrJournalRequired {
		t.Fatalf("err = %v, want ErrJournalRequired", err)
	}
}

func TestBuild_VendorWithoutJournalRowsStillListed(t *testing.T) {
	builder := writeFixtures(t)
	vendors := "vendor_id,vendor_name\nVEND-100,Acme Supplies\nVEND-300,Initech\n"
	if err := os.WriteFile(builder.VendorProfilesPath, []byte(vendors), 0o644); err != nil {
		t.Fatalf("write vendors: %v", err)
	}
	results, err := builder.Build()
	if err != nil {
		t.Fatalf("Build: %v", err)
	}
	var found bool
	for _, result := range results {
		if result.VendorId == "VEND-300" {
			found = true
			if result.Invoices != 0 || result.Score != 100 {
				t.Fatalf("VEND-300 = %+v", result)
			}
		}
	}
	if !found {
		t.Fatalf("VEND-300 missing from %v", results)
	}
}

func TestBand_Thresholds(t *testing.T) {
	cases := []struct {
		score int
		want  string
	}{
		{100, "low"}, {80, "low"}, {79, "medium"}, {50, "medium"}, {49, "high"}, {0, "high"},
	}
	for _, tc := range cases {
		if got := band(tc.score); got != tc.want {
			t.Fatalf("band(%d) = %s, want %s", tc.score, got, tc.want)
		}
	}
}
