package services

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/shopspring/decimal"

	"replenishment/internal/core"
	"replenishment/internal/drafts"
	"replenishment/internal/sheets/memory"
	"replenishment/internal/soa"
)

const testPeriod = "2024-2026"

type fakePublisher struct {
	mu    sync.Mutex
	calls []string
	err   error
}

func (f *fakePublisher) PublishScaleSaved(_ context.Context, period string, version int64) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, period)
	return f.err
}

func newTestStore() *memory.Store {
	p := core.Period{StartYear: 2024, EndYear: 2026, Amount: decimal.NewFromInt(1_000_000)}
	return memory.New([]core.Period{p}, map[string][]core.ContributionRecord{
		testPeriod: {
			{Country: "United States", ISO3: "USA", UnSoA: core.Value(decimal.NewFromInt(22))},
			{Country: "France", ISO3: "FRA", UnSoA: core.Value(decimal.NewFromInt(5))},
			{Country: "Germany", ISO3: "DEU", UnSoA: core.Value(decimal.NewFromInt(6))},
		},
	})
}

func newTestService(pub Publisher) *ScaleService {
	return NewScaleService(newTestStore(), drafts.NewManager(drafts.NewMemoryStore()), pub, soa.DefaultOptions())
}

func indexOf(t *testing.T, records []core.ContributionRecord, iso3 string) int {
	t.Helper()
	for i, r := range records {
		if r.ISO3 == iso3 {
			return i
		}
	}
	t.Fatalf("record %s not found", iso3)
	return -1
}

func TestScaleService_Load(t *testing.T) {
	svc := newTestService(nil)

	table, err := svc.Load(context.Background(), testPeriod)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if len(table.Records) != 3 {
		t.Fatalf("expected 3 records, got %d", len(table.Records))
	}

	sum := decimal.Zero
	for _, r := range table.Records {
		if r.RowID == "" {
			t.Errorf("record %s has no row id", r.ISO3)
		}
		sum = sum.Add(*r.AdjUnSoA.Effective())
	}
	if sum.Sub(decimal.NewFromInt(100)).Abs().GreaterThan(decimal.RequireFromString("0.00000001")) {
		t.Errorf("adjusted scale sums to %s, want 100", sum)
	}

	usa := table.Records[indexOf(t, table.Records, "USA")]
	if !usa.AnnualContributions.Equal(decimal.NewFromInt(220_000)) {
		t.Errorf("USA annual contribution = %s, want 220000", usa.AnnualContributions)
	}
}

func TestScaleService_LoadUnknownPeriod(t *testing.T) {
	svc := newTestService(nil)

	_, err := svc.Load(context.Background(), "1999-2001")
	if !errors.Is(err, core.ErrPeriodNotFound) {
		t.Fatalf("expected ErrPeriodNotFound, got %v", err)
	}
}

func TestScaleService_EditAndSave(t *testing.T) {
	ctx := context.Background()
	pub := &fakePublisher{}
	svc := newTestService(pub)

	table, err := svc.Load(ctx, testPeriod)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	fra := indexOf(t, table.Records, "FRA")

	edited, err := svc.Edit(ctx, testPeriod, table.Records, soa.Edit{Row: fra, Field: soa.FieldUnSoA, Value: "4"})
	if err != nil {
		t.Fatalf("Edit: %v", err)
	}
	if !edited.Records[fra].UnSoA.Overridden {
		t.Fatal("expected un_soa override after edit")
	}
	if table.Records[fra].UnSoA.Overridden {
		t.Fatal("edit must not modify the caller's working set")
	}

	res, err := svc.Save(ctx, testPeriod, edited.Records)
	if err != nil {
		t.Fatalf("Save: %v", err)
	}
	if res.Version != 1 || !res.Published {
		t.Errorf("unexpected save result: %+v", res)
	}
	if len(pub.calls) != 1 || pub.calls[0] != testPeriod {
		t.Errorf("expected one publish for %s, got %v", testPeriod, pub.calls)
	}

	reloaded, err := svc.Load(ctx, testPeriod)
	if err != nil {
		t.Fatalf("reload: %v", err)
	}
	got := reloaded.Records[indexOf(t, reloaded.Records, "FRA")]
	if got.UnSoA.Overridden || !got.UnSoA.Base.Equal(decimal.NewFromInt(4)) {
		t.Errorf("expected plain un_soa 4 after save, got %+v", got.UnSoA)
	}
}

func TestScaleService_EditErrors(t *testing.T) {
	ctx := context.Background()
	svc := newTestService(nil)
	table, err := svc.Load(ctx, testPeriod)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}

	t.Run("validation", func(t *testing.T) {
		_, err := svc.Edit(ctx, testPeriod, table.Records, soa.Edit{Row: 1, Field: soa.FieldUnSoA, Value: "30"})
		var fe *soa.FieldError
		if !errors.As(err, &fe) {
			t.Fatalf("expected FieldError, got %v", err)
		}
	})

	t.Run("confirmation", func(t *testing.T) {
		_, err := svc.Edit(ctx, testPeriod, table.Records, soa.Edit{Row: 1, Field: soa.FieldAdjUnSoA, Value: "30"})
		if !errors.Is(err, soa.ErrConfirmationRequired) {
			t.Fatalf("expected ErrConfirmationRequired, got %v", err)
		}
	})

	t.Run("row out of range", func(t *testing.T) {
		_, err := svc.Revert(ctx, testPeriod, table.Records, 10, soa.FieldUnSoA)
		if !errors.Is(err, soa.ErrRowOutOfRange) {
			t.Fatalf("expected ErrRowOutOfRange, got %v", err)
		}
	})

	t.Run("bad period key", func(t *testing.T) {
		_, err := svc.Compute(ctx, "soon", table.Records)
		if !errors.Is(err, core.ErrInvalidPeriod) {
			t.Fatalf("expected ErrInvalidPeriod, got %v", err)
		}
	})
}

func TestScaleService_AddRemoveAndSort(t *testing.T) {
	ctx := context.Background()
	svc := newTestService(nil)
	table, err := svc.Load(ctx, testPeriod)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}

	added, err := svc.AddRow(ctx, testPeriod, table.Records, 99, "Mexico", "mex")
	if err != nil {
		t.Fatalf("AddRow: %v", err)
	}
	if len(added.Records) != 4 || added.Records[3].ISO3 != "MEX" {
		t.Fatalf("unexpected records after add: %d", len(added.Records))
	}

	sorted, err := svc.Sort(ctx, testPeriod, added.Records, soa.FieldUnSoA, soa.Desc)
	if err != nil {
		t.Fatalf("Sort: %v", err)
	}
	if sorted.Records[0].ISO3 != "USA" || sorted.Records[3].ISO3 != "MEX" {
		t.Errorf("unexpected order: %s ... %s", sorted.Records[0].ISO3, sorted.Records[3].ISO3)
	}

	removed, err := svc.RemoveRow(ctx, testPeriod, sorted.Records, 3)
	if err != nil {
		t.Fatalf("RemoveRow: %v", err)
	}
	res, err := svc.Save(ctx, testPeriod, removed.Records)
	if err != nil {
		t.Fatalf("Save: %v", err)
	}
	if res.Published {
		t.Error("nothing should be published without a publisher")
	}

	reloaded, _ := svc.Load(ctx, testPeriod)
	if len(reloaded.Records) != 3 {
		t.Errorf("removed row was persisted: %d records", len(reloaded.Records))
	}
}

func TestScaleService_SavePublishFailure(t *testing.T) {
	ctx := context.Background()
	pub := &fakePublisher{err: errors.New("broker down")}
	svc := newTestService(pub)
	table, _ := svc.Load(ctx, testPeriod)

	res, err := svc.Save(ctx, testPeriod, table.Records)
	if err != nil {
		t.Fatalf("publish failure must not fail the save: %v", err)
	}
	if res.Published || res.Version != 1 {
		t.Errorf("unexpected save result: %+v", res)
	}
}

func TestScaleService_SaveUnknownPeriod(t *testing.T) {
	pub := &fakePublisher{}
	svc := newTestService(pub)

	_, err := svc.Save(context.Background(), "1999-2001", nil)
	if !errors.Is(err, core.ErrPeriodNotFound) {
		t.Fatalf("expected ErrPeriodNotFound, got %v", err)
	}
	if len(pub.calls) != 0 {
		t.Errorf("nothing should be published on failure, got %v", pub.calls)
	}
}

func TestScaleService_RejectsOutOfRangeWorkingSet(t *testing.T) {
	ctx := context.Background()
	svc := newTestService(nil)
	table, err := svc.Load(ctx, testPeriod)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}

	huge := decimal.RequireFromString("1e50000000")
	records := core.CloneRecords(table.Records)
	records[indexOf(t, records, "FRA")].UnSoA.Base = &huge

	start := time.Now()
	if _, err := svc.Compute(ctx, testPeriod, records); !errors.Is(err, core.ErrOutOfRange) {
		t.Errorf("Compute: expected ErrOutOfRange, got %v", err)
	}
	if _, err := svc.Edit(ctx, testPeriod, records, soa.Edit{Row: 0, Field: soa.FieldAvgIR, Value: "2"}); !errors.Is(err, core.ErrOutOfRange) {
		t.Errorf("Edit: expected ErrOutOfRange, got %v", err)
	}
	if _, err := svc.Sort(ctx, testPeriod, records, soa.FieldUnSoA, soa.Desc); !errors.Is(err, core.ErrOutOfRange) {
		t.Errorf("Sort: expected ErrOutOfRange, got %v", err)
	}
	if _, err := svc.Save(ctx, testPeriod, records); !errors.Is(err, core.ErrOutOfRange) {
		t.Errorf("Save: expected ErrOutOfRange, got %v", err)
	}
	key := drafts.Key{RecordType: "contributions", Period: testPeriod, TableType: "soa"}
	if _, err := svc.SaveDraft(ctx, key, records); !errors.Is(err, core.ErrOutOfRange) {
		t.Errorf("SaveDraft: expected ErrOutOfRange, got %v", err)
	}
	if elapsed := time.Since(start); elapsed > 5*time.Second {
		t.Errorf("rejecting out of range input took %s", elapsed)
	}
}

func TestScaleService_SaveValidatesEffectiveValues(t *testing.T) {
	ctx := context.Background()
	pub := &fakePublisher{}
	svc := newTestService(pub)
	table, err := svc.Load(ctx, testPeriod)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	fra := indexOf(t, table.Records, "FRA")

	tests := []struct {
		name  string
		field soa.FieldName
		edit  func(r *core.ContributionRecord)
	}{
		{"un_soa above 22", soa.FieldUnSoA, func(r *core.ContributionRecord) { r.UnSoA.Set(core.Dec(50)) }},
		{"negative rate base", soa.FieldFERMRate, func(r *core.ContributionRecord) {
			r.FERMCur = core.Value("Euro")
			r.FERMRate = core.Value(decimal.NewFromInt(-3))
		}},
		{"avg_ir below -100", soa.FieldAvgIR, func(r *core.ContributionRecord) { r.AvgIR = core.Value(decimal.NewFromInt(-150)) }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			records := core.CloneRecords(table.Records)
			tt.edit(&records[fra])

			_, err := svc.Save(ctx, testPeriod, records)
			var fe *soa.FieldError
			if !errors.As(err, &fe) {
				t.Fatalf("expected field error, got %v", err)
			}
			if fe.Field != tt.field {
				t.Errorf("field = %s, want %s", fe.Field, tt.field)
			}
		})
	}

	// Removed rows are dropped on save and not validated.
	records := core.CloneRecords(table.Records)
	records[fra].UnSoA.Set(core.Dec(50))
	records[fra].Removed = true
	if _, err := svc.Save(ctx, testPeriod, records); err != nil {
		t.Fatalf("Save with removed invalid row: %v", err)
	}
	if len(pub.calls) != 1 {
		t.Errorf("only the valid save should publish, got %v", pub.calls)
	}
}

func TestScaleService_SaveRejectsDuplicateCountry(t *testing.T) {
	ctx := context.Background()
	svc := newTestService(nil)
	table, err := svc.Load(ctx, testPeriod)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}

	records := append(core.CloneRecords(table.Records), core.ContributionRecord{
		Country: "France", ISO3: " fra ", UnSoA: core.Value(decimal.NewFromInt(1)),
	})
	if _, err := svc.Save(ctx, testPeriod, records); !errors.Is(err, core.ErrDuplicateRecord) {
		t.Fatalf("expected ErrDuplicateRecord, got %v", err)
	}

	reloaded, err := svc.Load(ctx, testPeriod)
	if err != nil {
		t.Fatalf("reload: %v", err)
	}
	if len(reloaded.Records) != 3 {
		t.Errorf("rejected save must not write, got %d records", len(reloaded.Records))
	}
}

func TestScaleService_Summary(t *testing.T) {
	svc := newTestService(nil)

	s, err := svc.Summary(context.Background(), testPeriod)
	if err != nil {
		t.Fatalf("Summary: %v", err)
	}
	if s.Countries != 3 || !s.TotalUnSoA.Equal(decimal.NewFromInt(33)) {
		t.Errorf("unexpected summary: %+v", s)
	}
	if !s.TotalReplenishment.Equal(decimal.NewFromInt(1_000_000)) {
		t.Errorf("unexpected total replenishment %s", s.TotalReplenishment)
	}
}

func TestScaleService_Drafts(t *testing.T) {
	ctx := context.Background()
	svc := newTestService(nil)
	key := drafts.Key{RecordType: "contributions", Period: testPeriod, TableType: "soa"}

	table, _ := svc.Load(ctx, testPeriod)
	edited, err := svc.Edit(ctx, testPeriod, table.Records, soa.Edit{Row: 1, Field: soa.FieldUnSoA, Value: "4"})
	if err != nil {
		t.Fatalf("Edit: %v", err)
	}
	if _, err := svc.SaveDraft(ctx, key, edited.Records); err != nil {
		t.Fatalf("SaveDraft: %v", err)
	}

	rec, err := svc.RecoverDraft(ctx, key)
	if err != nil {
		t.Fatalf("RecoverDraft: %v", err)
	}
	if !rec.NeedsDecision || rec.Draft == nil || len(rec.Diff.Changed) == 0 {
		t.Fatalf("expected a draft needing a decision, got %+v", rec)
	}

	if err := svc.DiscardDraft(ctx, key); err != nil {
		t.Fatalf("DiscardDraft: %v", err)
	}
	if _, err := svc.LoadDraft(ctx, key); !errors.Is(err, drafts.ErrNotFound) {
		t.Errorf("expected ErrNotFound after discard, got %v", err)
	}
}

func TestScaleService_DraftsDisabled(t *testing.T) {
	svc := NewScaleService(newTestStore(), nil, nil, soa.DefaultOptions())
	key := drafts.Key{RecordType: "contributions", Period: testPeriod, TableType: "soa"}

	if _, err := svc.SaveDraft(context.Background(), key, nil); !errors.Is(err, ErrDraftsDisabled) {
		t.Fatalf("expected ErrDraftsDisabled, got %v", err)
	}
}
