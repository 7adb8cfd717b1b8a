package drafts

import (
	"context"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"replenishment/internal/core"
)

func sample() []core.ContributionRecord {
	fra := core.ContributionRecord{
		CountryID: 2, Country: "France", ISO3: "FRA", InitialID: "2", RowID: "r2",
		UnSoA:    core.Value(decimal.NewFromInt(5)),
		AdjUnSoA: core.Value(decimal.RequireFromString("35.4545454545")),
		FERMCur:  core.Value("Euro"),
		FERMRate: core.Value(decimal.RequireFromString("0.92")),
		QualFERM: core.Value(true),
	}
	fra.AnnualContributions = core.Dec(354545.454545)
	usa := core.ContributionRecord{
		CountryID: 1, Country: "United States", ISO3: "USA", InitialID: "1", RowID: "r1",
		UnSoA: core.Value(decimal.NewFromInt(22)),
	}
	return []core.ContributionRecord{usa, fra}
}

var testKey = Key{RecordType: "contributions", Period: "2024-2026", TableType: "soa"}

func TestKey(t *testing.T) {
	assert.Equal(t, "contributions/2024-2026/soa", testKey.String())

	k, err := ParseKey("contributions/2024-2026/soa")
	require.NoError(t, err)
	assert.Equal(t, testKey, k)

	for _, bad := range []string{"", "a/b", "a//c", "a/b/c/d", " /b/c"} {
		_, err := ParseKey(bad)
		assert.ErrorIs(t, err, ErrInvalidKey, bad)
	}
}

func TestEncodeDecodeKeepsOverrides(t *testing.T) {
	records := sample()
	records[1].FERMRate.Set(core.Dec(0.95))
	records[1].AvgIR.Set(nil)

	data, err := Encode(records)
	require.NoError(t, err)
	got, err := Decode(data)
	require.NoError(t, err)

	require.Len(t, got, 2)
	assert.True(t, Compare(got, records).Empty())
	assert.True(t, got[1].AvgIR.Overridden)
	assert.Nil(t, got[1].AvgIR.Effective())
	assert.Equal(t, "r2", got[1].RowID)
}

func TestCompare(t *testing.T) {
	server := sample()

	t.Run("row id is ignored", func(t *testing.T) {
		draft := core.CloneRecords(server)
		draft[0].RowID = "other"
		assert.True(t, Compare(draft, server).Empty())
	})

	t.Run("override is a change", func(t *testing.T) {
		draft := core.CloneRecords(server)
		draft[1].UnSoA.Set(core.Dec(6))
		d := Compare(draft, server)
		assert.Equal(t, map[string][]string{"2": {"un_soa"}}, d.Changed)
	})

	t.Run("equal decimals with different scale match", func(t *testing.T) {
		draft := core.CloneRecords(server)
		draft[1].FERMRate = core.Value(decimal.RequireFromString("0.9200"))
		assert.True(t, Compare(draft, server).Empty())
	})

	t.Run("added and removed rows", func(t *testing.T) {
		draft := core.CloneRecords(server)[:1]
		draft = append(draft, core.ContributionRecord{Country: "Mexico", ISO3: "MEX"})
		d := Compare(draft, server)
		assert.Equal(t, []string{"new:MEX"}, d.Added)
		assert.Equal(t, []string{"2"}, d.Removed)
	})
}

func TestManagerRecover(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore()
	m := NewManager(store)
	server := sample()

	rec, err := m.Recover(ctx, testKey, server)
	require.NoError(t, err)
	assert.False(t, rec.NeedsDecision)
	assert.Nil(t, rec.Draft)

	draft := core.CloneRecords(server)
	draft[1].FERMCur.Set(core.Ptr("Franc"))
	_, err = m.Save(ctx, testKey, draft)
	require.NoError(t, err)

	rec, err = m.Recover(ctx, testKey, server)
	require.NoError(t, err)
	assert.True(t, rec.NeedsDecision)
	require.NotNil(t, rec.Draft)
	assert.Equal(t, "Franc", *rec.Draft.Records[1].FERMCur.Effective())

	require.NoError(t, m.Discard(ctx, testKey))
	_, err = m.Load(ctx, testKey)
	assert.ErrorIs(t, err, ErrNotFound)
	assert.NoError(t, m.Discard(ctx, testKey))
}

func TestManagerRecoverDropsIdenticalDraft(t *testing.T) {
	ctx := context.Background()
	m := NewManager(NewMemoryStore())
	server := sample()

	_, err := m.Save(ctx, testKey, server)
	require.NoError(t, err)

	rec, err := m.Recover(ctx, testKey, server)
	require.NoError(t, err)
	assert.False(t, rec.NeedsDecision)

	_, err = m.Load(ctx, testKey)
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestManagerRecoverDiscardsCorruptDraft(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore()
	m := NewManager(store)
	require.NoError(t, store.PutDraft(ctx, testKey.String(), []byte{0xc1, 0x00}, time.Now()))

	rec, err := m.Recover(ctx, testKey, sample())
	require.NoError(t, err)
	assert.False(t, rec.NeedsDecision)

	_, _, err = store.GetDraft(ctx, testKey.String())
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestManagerPurgeStale(t *testing.T) {
	ctx := context.Background()
	m := NewManager(NewMemoryStore())
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

	m.now = func() time.Time { return now.Add(-48 * time.Hour) }
	_, err := m.Save(ctx, Key{RecordType: "contributions", Period: "2021-2023", TableType: "soa"}, sample())
	require.NoError(t, err)

	m.now = func() time.Time { return now }
	_, err = m.Save(ctx, testKey, sample())
	require.NoError(t, err)

	n, err := m.PurgeStale(ctx, 24*time.Hour)
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	_, err = m.Load(ctx, testKey)
	assert.NoError(t, err)
}

func TestSaveRejectsInvalidKey(t *testing.T) {
	m := NewManager(NewMemoryStore())
	_, err := m.Save(context.Background(), Key{RecordType: "contributions"}, sample())
	assert.ErrorIs(t, err, ErrInvalidKey)
}
