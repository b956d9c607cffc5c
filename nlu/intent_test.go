package nlu

import (
	"reflect"
	"testing"
)

func TestParseIntent_ExtractsIdentifiers(t *testing.T) {
	parsed := ParseIntent("Generate an audit package for vend-100 covering INV-2002 and inv-2002, PO-77.")

	if got, want := parsed.Entities.VendorIDs, []string{"VEND-100"}; !reflect.DeepEqual(got, want) {
		t.Fatalf("vendor ids = %v, want %v", got, want)
	}
	if got, want := parsed.Entities.InvoiceIDs, []string{"INV-2002"}; !reflect.DeepEqual(got, want) {
		t.Fatalf("invoice ids = %v, want %v", got, want)
	}
	if got, want := parsed.Entities.POIDs, []string{"PO-77"}; !reflect.DeepEqual(got, want) {
		t.Fatalf("po ids = %v, want %v", got, want)
	}
	if got, want := parsed.Identifiers(), []string{"VEND-100", "INV-2002", "PO-77"}; !reflect.DeepEqual(got, want) {
		t.Fatalf("identifiers = %v, want %v", got, want)
	}
}

func TestParseIntent_IntentPriority(t *testing.T) {
	cases := []struct {
		text   string
		intent string
	}{
		{"Download the package for VEND-1", "download_package"},
		{"Export last month's evidence", "download_package"},
		{"Send the audit package to finance", "send_package"},
		{"Summarize VEND-100 activity", "get_summary"},
		{"Summarize and package VEND-100 activity", "generate_package"},
		{"Prepare an audit for Q1 2025", "generate_package"},
		{"Generate evidence for INV-9", "generate_package"},
		{"Please notify the auditors", "send_package"},
		{"Share results with the team", "send_package"},
		{"What vendors exist?", "general_query"},
		{"", "general_query"},
		{"   ", "general_query"},
	}
	for _, tc := range cases {
		if got := ParseIntent(tc.text).Intent; got != tc.intent {
			t.Fatalf("ParseIntent(%q).Intent = %q, want %q", tc.text, got, tc.intent)
		}
	}
}

func TestParseIntent_DateRanges(t *testing.T) {
	parsed := ParseIntent("Audit from 2025-03-01 to 2025-01-15")
	if parsed.Entities.DateRange.From != "2025-01-15" || parsed.Entities.DateRange.To != "2025-03-01" {
		t.Fatalf("iso range = %+v", parsed.Entities.DateRange)
	}

	parsed = ParseIntent("Compare q3 2024 against Q1 2025")
	if parsed.Entities.DateRange.From != "Q1 2025" || parsed.Entities.DateRange.To != "Q3 2024" {
		t.Fatalf("quarter range = %+v", parsed.Entities.DateRange)
	}

	parsed = ParseIntent("no dates here")
	if parsed.Entities.DateRange.From != "" || parsed.Entities.DateRange.To != "" {
		t.Fatalf("expected empty range, got %+v", parsed.Entities.DateRange)
	}
}

func TestParseIntent_Actions(t *testing.T) {
	parsed := ParseIntent("send an email and download a summarized package")
	want := []string{"send", "export", "summarize", "package"}
	if !reflect.DeepEqual(parsed.Entities.Actions, want) {
		t.Fatalf("actions = %v, want %v", parsed.Entities.Actions, want)
	}
}
