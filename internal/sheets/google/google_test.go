package google

import (
	"context"
	"strings"
	"testing"

	"github.com/shopspring/decimal"

	"replenishment/internal/core"
)

func TestNewFromEnv_MissingSpreadsheetID(t *testing.T) {
	t.Setenv("GOOGLE_SPREADSHEET_ID", "")

	_, err := NewFromEnv(context.Background())
	if err == nil {
		t.Fatal("expected error for missing GOOGLE_SPREADSHEET_ID")
	}
	if err.Error() != "missing GOOGLE_SPREADSHEET_ID" {
		t.Errorf("unexpected error: %v", err)
	}
}

func TestNewFromEnv_MissingCredentials(t *testing.T) {
	t.Setenv("GOOGLE_SPREADSHEET_ID", "test-id")
	t.Setenv("GOOGLE_SERVICE_ACCOUNT_JSON", "")
	t.Setenv("GOOGLE_SERVICE_ACCOUNT_FILE", "")
	t.Setenv("GOOGLE_APPLICATION_CREDENTIALS", "")

	_, err := NewFromEnv(context.Background())
	if err == nil {
		t.Fatal("expected error without credentials")
	}
	if !strings.Contains(err.Error(), "missing service account credentials") {
		t.Errorf("unexpected error: %v", err)
	}
}

func TestNewFromEnv_UnreadableCredentialsFile(t *testing.T) {
	t.Setenv("GOOGLE_SPREADSHEET_ID", "test-id")
	t.Setenv("GOOGLE_SERVICE_ACCOUNT_JSON", "")
	t.Setenv("GOOGLE_SERVICE_ACCOUNT_FILE", "/nonexistent/credentials.json")

	_, err := NewFromEnv(context.Background())
	if err == nil || !strings.Contains(err.Error(), "read service account file") {
		t.Fatalf("expected read error, got %v", err)
	}
}

func TestSheetName(t *testing.T) {
	p := core.Period{StartYear: 2024, EndYear: 2026}

	tests := []struct {
		suffix string
		want   string
	}{
		{"", "2024-2026 SoA"},
		{"SoA", "2024-2026 SoA"},
		{" Scale ", "2024-2026 Scale"},
	}
	for _, tt := range tests {
		c := &Client{sheetSuffix: tt.suffix}
		if got := c.SheetName(p); got != tt.want {
			t.Errorf("SheetName(%q) = %q, want %q", tt.suffix, got, tt.want)
		}
	}
}

func TestExportScale_NotInitialized(t *testing.T) {
	c := &Client{spreadsheetID: "test"}
	_, err := c.ExportScale(context.Background(), core.Period{StartYear: 2024, EndYear: 2026}, nil)
	if err == nil || !strings.Contains(err.Error(), "not initialized") {
		t.Fatalf("expected not initialized error, got %v", err)
	}
}

func TestBuildRows(t *testing.T) {
	p := core.Period{StartYear: 2024, EndYear: 2026}
	fra := core.ContributionRecord{
		Country:  "France",
		ISO3:     "FRA",
		UnSoA:    core.Value(decimal.NewFromInt(5)),
		AdjUnSoA: core.Value(decimal.RequireFromString("35.5")),
		QualFERM: core.Value(true),
		FERMCur:  core.Value("Euro"),
	}
	fra.AnnualContributions = core.Dec(355000)
	fra.FERMCur.Set(core.Ptr("Franc"))
	usa := core.ContributionRecord{
		Country:  "United States",
		ISO3:     "USA",
		UnSoA:    core.Value(decimal.NewFromInt(22)),
		AdjUnSoA: core.Value(decimal.NewFromInt(22)),
	}
	usa.AnnualContributions = core.Dec(220000)
	gone := core.ContributionRecord{Country: "Removed", ISO3: "RMV", Removed: true}

	rows := buildRows(p, []core.ContributionRecord{usa, fra, gone})

	if len(rows) != 4 {
		t.Fatalf("expected header, 2 rows and totals, got %d rows", len(rows))
	}
	if len(rows[0]) != len(rows[1]) {
		t.Fatalf("row width %d does not match header width %d", len(rows[1]), len(rows[0]))
	}
	if rows[2][8] != "Franc" {
		t.Errorf("expected overridden currency, got %v", rows[2][8])
	}
	if rows[2][6] != "Yes" || rows[1][6] != "" {
		t.Errorf("unexpected qualification cells: %v / %v", rows[2][6], rows[1][6])
	}
	if rows[1][9] != "" {
		t.Errorf("missing rate should be blank, got %v", rows[1][9])
	}
	total := rows[3]
	if total[0] != "Total" || total[3] != "57.5" || total[4] != "575000" {
		t.Errorf("unexpected totals row: %v", total)
	}
}
