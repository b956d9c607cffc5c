package dataset

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/shopspring/decimal"
)

const journalFixture = `entry_id,vendor_id,vendor_name,invoice_id,po_id,amount,currency,status,posting_date
JE-1,VEND-100,Acme Supplies,INV-2002,PO-77,1000.00,USD,recorded,2025-01-10
JE-2,VEND-200,Globex,INV-3003,PO-88,250.50,USD,posted,2025-02-01
JE-3,VEND-100,Acme Supplies,INV-2005,,not-a-number,,,2025-03-15
`

func writeJournal(t *testing.T) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "journal_entries.csv")
	if err := os.WriteFile(path, []byte(journalFixture), 0o644); err != nil {
		t.Fatalf("write fixture: %v", err)
	}
	return path
}

func TestQueryJournal_EmptyIdentifierSetReturnsEverything(t *testing.T) {
	rows, err := QueryJournal(writeJournal(t), nil)
	if err != nil {
		t.Fatalf("QueryJournal: %v", err)
	}
	if len(rows) != 3 {
		t.Fatalf("got %d rows, want 3", len(rows))
	}
}

func TestQueryJournal_FiltersCaseInsensitively(t *testing.T) {
	rows, err := QueryJournal(writeJournal(t), []string{"vend-100"})
	if err != nil {
		t.Fatalf("QueryJournal: %v", err)
	}
	if len(rows) != 2 {
		t.Fatalf("got %d rows, want 2", len(rows))
	}
	for _, row := range rows {
		if row.VendorId != "VEND-100" {
			t.Fatalf("unexpected row %+v", row)
		}
	}

	rows, err = QueryJournal(writeJournal(t), []string{"INV-3003"})
	if err != nil {
		t.Fatalf("QueryJournal: %v", err)
	}
	if len(rows) != 1 || rows[0].EntryId != "JE-2" {
		t.Fatalf("invoice filter rows = %+v", rows)
	}
}

func TestQueryJournal_MalformedAmountDefaultsToZero(t *testing.T) {
	rows, err := QueryJournal(writeJournal(t), []string{"INV-2005"})
	if err != nil {
		t.Fatalf("QueryJournal: %v", err)
	}
	if len(rows) != 1 {
		t.Fatalf("got %d rows, want 1", len(rows))
	}
	if !rows[0].Amount.Equal(decimal.Zero) {
		t.Fatalf("amount = %s, want 0", rows[0].Amount)
	}
	if rows[0].Currency != "USD" || rows[0].Status != "recorded" {
		t.Fatalf("defaults not applied: %+v", rows[0])
	}
}

func TestQueryJournal_MissingFileYieldsNoRows(t *testing.T) {
	rows, err := QueryJournal(filepath.Join(t.TempDir(), "absent.csv"), nil)
	if err != nil {
		t.Fatalf("QueryJournal: %v", err)
	}
	if rows != nil {
		t.Fatalf("expected no rows, got %+v", rows)
	}
}
