package storage

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"replenishment/internal/core"
	"replenishment/internal/drafts"
)

func newTestRepo(t *testing.T) *SQLiteRepository {
	t.Helper()
	repo, err := NewSQLiteRepository(filepath.Join(t.TempDir(), "data", "test.db"))
	require.NoError(t, err)
	t.Cleanup(func() { repo.Close() })
	return repo
}

func seedPeriod(t *testing.T, repo *SQLiteRepository) core.Period {
	t.Helper()
	p := core.Period{
		StartYear:        2024,
		EndYear:          2026,
		Amount:           decimal.NewFromInt(1_000_000),
		PreviouslyUnused: decimal.NewFromInt(50_000),
	}
	require.NoError(t, repo.UpsertPeriod(context.Background(), p))
	return p
}

func TestPeriods(t *testing.T) {
	ctx := context.Background()
	repo := newTestRepo(t)
	seedPeriod(t, repo)

	p, err := repo.GetPeriod(ctx, "2024-2026")
	require.NoError(t, err)
	assert.True(t, p.TotalReplenishment().Equal(decimal.NewFromInt(950_000)))
	assert.Equal(t, core.ExportSynced, p.ExportStatus)

	p.Amount = decimal.NewFromInt(1_200_000)
	require.NoError(t, repo.UpsertPeriod(ctx, p))
	periods, err := repo.ListPeriods(ctx)
	require.NoError(t, err)
	require.Len(t, periods, 1)
	assert.True(t, periods[0].Amount.Equal(decimal.NewFromInt(1_200_000)))

	_, err = repo.GetPeriod(ctx, "1990-1992")
	assert.ErrorIs(t, err, core.ErrPeriodNotFound)
}

func TestReplaceContributions(t *testing.T) {
	ctx := context.Background()
	repo := newTestRepo(t)
	seedPeriod(t, repo)

	records := []core.ContributionRecord{
		{CountryID: 1, Country: "United States", ISO3: "USA", UnSoA: core.Value(decimal.NewFromInt(22))},
		{
			CountryID: 2, Country: "France", ISO3: "FRA",
			UnSoA:        core.Value(decimal.RequireFromString("4.318")),
			AvgIR:        core.Value(decimal.RequireFromString("2.5")),
			QualFERM:     core.Value(true),
			OptedForFERM: core.Value(false),
			FERMCur:      core.Value("Euro"),
			FERMRate:     core.Value(decimal.RequireFromString("0.9215")),
		},
	}
	records[1].FERMRate.Set(core.Dec(0.93))

	version, err := repo.ReplaceContributions(ctx, "2024-2026", records)
	require.NoError(t, err)
	assert.Equal(t, int64(1), version)

	got, err := repo.ListContributions(ctx, "2024-2026")
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Equal(t, "USA", got[0].ISO3)
	assert.NotEmpty(t, got[0].InitialID)
	assert.Nil(t, got[0].AvgIR.Effective())
	assert.True(t, got[1].FERMRate.Effective().Equal(decimal.RequireFromString("0.93")))
	assert.False(t, got[1].FERMRate.Overridden)
	assert.True(t, *got[1].QualFERM.Effective())
	assert.False(t, *got[1].OptedForFERM.Effective())
	assert.Equal(t, "Euro", *got[1].FERMCur.Effective())

	// ids survive a second save
	firstIDs := []string{got[0].InitialID, got[1].InitialID}
	version, err = repo.ReplaceContributions(ctx, "2024-2026", got)
	require.NoError(t, err)
	assert.Equal(t, int64(2), version)
	again, err := repo.ListContributions(ctx, "2024-2026")
	require.NoError(t, err)
	assert.Equal(t, firstIDs, []string{again[0].InitialID, again[1].InitialID})

	pending, err := repo.PendingExports(ctx, 10)
	require.NoError(t, err)
	require.Len(t, pending, 1)
	assert.Equal(t, int64(2), pending[0].Version)

	require.NoError(t, repo.MarkExported(ctx, "2024-2026", 1))
	pending, err = repo.PendingExports(ctx, 10)
	require.NoError(t, err)
	assert.Len(t, pending, 1, "stale export must not clear a newer version")

	require.NoError(t, repo.MarkExported(ctx, "2024-2026", 2))
	pending, err = repo.PendingExports(ctx, 10)
	require.NoError(t, err)
	assert.Empty(t, pending)
}

func TestReplaceContributionsIsAtomic(t *testing.T) {
	ctx := context.Background()
	repo := newTestRepo(t)
	seedPeriod(t, repo)

	_, err := repo.ReplaceContributions(ctx, "2024-2026", []core.ContributionRecord{
		{Country: "United States", ISO3: "USA", UnSoA: core.Value(decimal.NewFromInt(22))},
	})
	require.NoError(t, err)

	_, err = repo.ReplaceContributions(ctx, "2024-2026", []core.ContributionRecord{
		{Country: "France", ISO3: "FRA"},
		{Country: "France", ISO3: "fra"},
	})
	assert.ErrorIs(t, err, core.ErrDuplicateRecord)

	got, err := repo.ListContributions(ctx, "2024-2026")
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, "USA", got[0].ISO3)

	_, err = repo.ReplaceContributions(ctx, "1990-1992", nil)
	assert.ErrorIs(t, err, core.ErrPeriodNotFound)
}

func TestReplaceContributionsKeepsIDsWithinPeriod(t *testing.T) {
	ctx := context.Background()
	repo := newTestRepo(t)
	seedPeriod(t, repo)
	require.NoError(t, repo.UpsertPeriod(ctx, core.Period{StartYear: 2027, EndYear: 2029, Amount: decimal.NewFromInt(2_000_000)}))

	_, err := repo.ReplaceContributions(ctx, "2024-2026", []core.ContributionRecord{
		{Country: "United States", ISO3: "USA", UnSoA: core.Value(decimal.NewFromInt(22))},
		{Country: "France", ISO3: "FRA", UnSoA: core.Value(decimal.NewFromInt(5))},
	})
	require.NoError(t, err)
	current, err := repo.ListContributions(ctx, "2024-2026")
	require.NoError(t, err)
	require.Len(t, current, 2)

	// Copying a period's rows into another must not steal their ids.
	_, err = repo.ReplaceContributions(ctx, "2027-2029", current)
	require.NoError(t, err)

	next, err := repo.ListContributions(ctx, "2027-2029")
	require.NoError(t, err)
	require.Len(t, next, 2)
	for i := range next {
		assert.NotEqual(t, current[i].InitialID, next[i].InitialID)
	}

	kept, err := repo.ListContributions(ctx, "2024-2026")
	require.NoError(t, err)
	require.Len(t, kept, 2)
	assert.Equal(t, current[0].InitialID, kept[0].InitialID)
	assert.Equal(t, current[1].InitialID, kept[1].InitialID)

	// A repeated initial id within one save only keeps its id once.
	dup := core.CloneRecords(kept)
	dup[1].InitialID = dup[0].InitialID
	_, err = repo.ReplaceContributions(ctx, "2024-2026", dup)
	require.NoError(t, err)
	again, err := repo.ListContributions(ctx, "2024-2026")
	require.NoError(t, err)
	require.Len(t, again, 2)
	assert.Equal(t, kept[0].InitialID, again[0].InitialID)
	assert.NotEqual(t, again[0].InitialID, again[1].InitialID)
}

func TestMarkExportError(t *testing.T) {
	ctx := context.Background()
	repo := newTestRepo(t)
	seedPeriod(t, repo)

	version, err := repo.ReplaceContributions(ctx, "2024-2026", nil)
	require.NoError(t, err)
	require.NoError(t, repo.MarkExportError(ctx, "2024-2026", version))

	p, err := repo.GetPeriod(ctx, "2024-2026")
	require.NoError(t, err)
	assert.Equal(t, core.ExportError, p.ExportStatus)

	pending, err := repo.PendingExports(ctx, 10)
	require.NoError(t, err)
	assert.Empty(t, pending)
}

func TestDraftStore(t *testing.T) {
	ctx := context.Background()
	repo := newTestRepo(t)
	m := drafts.NewManager(repo)
	key := drafts.Key{RecordType: "contributions", Period: "2024-2026", TableType: "soa"}

	records := []core.ContributionRecord{{Country: "France", ISO3: "FRA", InitialID: "7", UnSoA: core.Value(decimal.NewFromInt(5))}}
	records[0].UnSoA.Set(core.Dec(6))

	_, err := m.Save(ctx, key, records)
	require.NoError(t, err)

	d, err := m.Load(ctx, key)
	require.NoError(t, err)
	require.Len(t, d.Records, 1)
	assert.True(t, d.Records[0].UnSoA.Overridden)
	assert.WithinDuration(t, time.Now(), d.SavedAt, time.Minute)

	require.NoError(t, repo.PutDraft(ctx, "old/2020-2022/soa", []byte{0x90}, time.Now().Add(-72*time.Hour)))
	n, err := repo.PurgeDrafts(ctx, time.Now().Add(-24*time.Hour))
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	require.NoError(t, m.Discard(ctx, key))
	_, _, err = repo.GetDraft(ctx, key.String())
	assert.ErrorIs(t, err, drafts.ErrNotFound)
	assert.ErrorIs(t, repo.DeleteDraft(ctx, key.String()), drafts.ErrNotFound)
}
