package memory

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/shopspring/decimal"

	"replenishment/internal/core"
)

func TestMemoryStoreReplaceAndList(t *testing.T) {
	ctx := context.Background()
	p := core.Period{StartYear: 2024, EndYear: 2026, Amount: decimal.NewFromInt(100)}
	s := New([]core.Period{p}, map[string][]core.ContributionRecord{
		"2024-2026": {{Country: "United States", ISO3: "USA", UnSoA: core.Value(decimal.NewFromInt(22))}},
	})

	records, err := s.ListContributions(ctx, "2024-2026")
	if err != nil || len(records) != 1 || records[0].InitialID != "1" {
		t.Fatalf("unexpected list: %+v err=%v", records, err)
	}

	records = append(records, core.ContributionRecord{Country: "France", ISO3: "FRA", RowID: "tmp", UnSoA: core.Value(decimal.NewFromInt(5))})
	version, err := s.ReplaceContributions(ctx, "2024-2026", records)
	if err != nil || version != 1 {
		t.Fatalf("unexpected replace: version=%d err=%v", version, err)
	}

	got, _ := s.ListContributions(ctx, "2024-2026")
	if len(got) != 2 || got[1].InitialID != "2" || got[1].RowID != "" {
		t.Fatalf("unexpected records after replace: %+v", got)
	}

	pending, _ := s.PendingExports(ctx, 10)
	if len(pending) != 1 || pending[0].Version != 1 {
		t.Fatalf("expected one pending export, got %+v", pending)
	}
	if err := s.MarkExported(ctx, "2024-2026", 1); err != nil {
		t.Fatalf("mark exported: %v", err)
	}
	pending, _ = s.PendingExports(ctx, 10)
	if len(pending) != 0 {
		t.Fatalf("expected no pending exports, got %+v", pending)
	}
	period, _ := s.GetPeriod(ctx, "2024-2026")
	if period.ExportStatus != core.ExportSynced {
		t.Fatalf("expected synced status, got %q", period.ExportStatus)
	}
}

func TestMemoryStoreRejectsInvalid(t *testing.T) {
	ctx := context.Background()
	s := New(nil, nil)

	if _, err := s.ListContributions(ctx, "1999-2001"); !errors.Is(err, core.ErrPeriodNotFound) {
		t.Fatalf("expected ErrPeriodNotFound, got %v", err)
	}
	if err := s.UpsertPeriod(ctx, core.Period{StartYear: 2026, EndYear: 2024}); !errors.Is(err, core.ErrInvalidPeriod) {
		t.Fatalf("expected ErrInvalidPeriod, got %v", err)
	}
	_ = s.UpsertPeriod(ctx, core.Period{StartYear: 2024, EndYear: 2026})
	_, err := s.ReplaceContributions(ctx, "2024-2026", []core.ContributionRecord{{ISO3: "USA"}})
	if !errors.Is(err, core.ErrEmptyCountry) {
		t.Fatalf("expected ErrEmptyCountry, got %v", err)
	}
}

func TestNewFromFilesSeeds(t *testing.T) {
	dir := t.TempDir()
	s := NewFromFiles(dir)
	periods, _ := s.ListPeriods(context.Background())
	if len(periods) == 0 {
		t.Fatalf("expected default seed when files missing")
	}

	mustWrite := func(name, content string) {
		t.Helper()
		if err := os.WriteFile(filepath.Join(dir, name), []byte(content), 0o644); err != nil {
			t.Fatalf("write %s: %v", name, err)
		}
	}
	mustWrite("seed_periods.txt", "# start-end amount unused\n2021-2023 540000000 20000000\nbogus\n")
	mustWrite("seed_contributions.txt", "2021-2023;USA;United States;22\n2021-2023;MEX;Mexico;1,2;3.5;Peso;17\n\n2021-2023;bad\n")

	s = NewFromFiles(dir)
	p, err := s.GetPeriod(context.Background(), "2021-2023")
	if err != nil {
		t.Fatalf("get period: %v", err)
	}
	if !p.TotalReplenishment().Equal(decimal.NewFromInt(520000000)) {
		t.Fatalf("unexpected total: %s", p.TotalReplenishment())
	}
	records, _ := s.ListContributions(context.Background(), "2021-2023")
	if len(records) != 2 {
		t.Fatalf("expected 2 records, got %d", len(records))
	}
	if cur := records[1].FERMCur.Effective(); cur == nil || *cur != "Peso" {
		t.Fatalf("unexpected currency: %v", cur)
	}
	if !records[1].UnSoA.Effective().Equal(decimal.RequireFromString("1.2")) {
		t.Fatalf("unexpected un_soa: %s", records[1].UnSoA.Effective())
	}
}
