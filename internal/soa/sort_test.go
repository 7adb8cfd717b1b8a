package soa

import (
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"replenishment/internal/core"
)

func isoOrder(records []core.ContributionRecord) []string {
	out := make([]string, len(records))
	for i, r := range records {
		out[i] = r.ISO3
	}
	return out
}

func currencyTable() []core.ContributionRecord {
	a := withCurrency(rec("ARG", 0.7), "Peso", 2)
	b := rec("BRA", 2)
	c := withCurrency(rec("DEU", 6), "Euro", 1)
	d := rec("IND", 1)
	d.FERMCur = core.Value("  ")
	e := withCurrency(rec("CHL", 0.4), "Dollar", 900)
	e.FERMRate.Set(nil)
	return []core.ContributionRecord{a, b, c, d, e}
}

func TestSort_CurrencyMissingPlacement(t *testing.T) {
	records := currencyTable()

	asc := Sort(records, FieldFERMCur, Asc)
	assert.Equal(t, []string{"CHL", "DEU", "ARG", "BRA", "IND"}, isoOrder(asc))

	desc := Sort(records, FieldFERMCur, Desc)
	assert.Equal(t, []string{"BRA", "IND", "ARG", "DEU", "CHL"}, isoOrder(desc))
}

func TestSort_CurrencyUsesOverride(t *testing.T) {
	records := currencyTable()
	records[0].FERMCur.Set(core.Ptr("Austral"))

	asc := Sort(records, FieldFERMCur, Asc)
	assert.Equal(t, "ARG", asc[0].ISO3)
}

func TestSort_RateMissingPlacement(t *testing.T) {
	records := currencyTable()

	asc := Sort(records, FieldFERMRate, Asc)
	assert.Equal(t, []string{"DEU", "ARG", "BRA", "IND", "CHL"}, isoOrder(asc))

	desc := Sort(records, FieldFERMRate, Desc)
	assert.Equal(t, []string{"BRA", "IND", "CHL", "ARG", "DEU"}, isoOrder(desc))
}

func TestSort_Generic(t *testing.T) {
	records := []core.ContributionRecord{rec("USA", 22), rec("FRA", 5), rec("DEU", 6), rec("AUT", 0.679)}
	records[0].Country = "United States"
	records[1].Country = "france"
	records[2].Country = "Germany"
	records[3].Country = "Austria"
	records[1].UnSoA.Set(core.Dec(7))

	byUn := Sort(records, FieldUnSoA, Desc)
	assert.Equal(t, []string{"USA", "FRA", "DEU", "AUT"}, isoOrder(byUn))

	byName := Sort(records, FieldCountry, Asc)
	assert.Equal(t, []string{"AUT", "FRA", "DEU", "USA"}, isoOrder(byName))

	computed := ComputeTable(records, decimal.NewFromInt(100))
	computed[2].QualFERM.Set(core.Ptr(true))
	byQual := Sort(computed, FieldQualFERM, Desc)
	assert.Equal(t, "DEU", byQual[0].ISO3)
}

func TestSort_StableAndNonMutating(t *testing.T) {
	records := []core.ContributionRecord{rec("USA", 22), rec("FRA", 5), rec("DEU", 5), rec("ITA", 5)}

	out := Sort(records, FieldUnSoA, Asc)
	assert.Equal(t, []string{"FRA", "DEU", "ITA", "USA"}, isoOrder(out))
	assert.Equal(t, []string{"USA", "FRA", "DEU", "ITA"}, isoOrder(records))
}

func TestParseDirection(t *testing.T) {
	d, err := ParseDirection("DESC")
	require.NoError(t, err)
	assert.Equal(t, Desc, d)

	d, err = ParseDirection("")
	require.NoError(t, err)
	assert.Equal(t, Asc, d)

	_, err = ParseDirection("sideways")
	assert.Error(t, err)
}

func TestDisplay(t *testing.T) {
	records := []core.ContributionRecord{rec("USA", 22), rec("FRA", 5), rec("DEU", 0)}
	records[1].UnSoA.Set(core.Dec(6))
	records[2].Removed = true

	rows := Display(ComputeTable(records, decimal.NewFromInt(1_000_000)))
	require.Len(t, rows, 2)

	assert.Equal(t, 1, rows[1].Index)
	assert.True(t, rows[1].UnSoA.Overridden)
	assert.False(t, rows[1].AdjUnSoA.Overridden)
	assert.Equal(t, "No", rows[0].QualFERM.Value)
	assert.Equal(t, NotAvailable, rows[0].FERMCur.Value)
	assert.Equal(t, NotAvailable, rows[0].FERMRate.Value)
	assert.Equal(t, NotAvailable, rows[0].FERMCurAmount.Value)
	assert.Equal(t, NotAvailable, rows[0].OptedForFERM.Value)
	assert.NotEqual(t, NotAvailable, rows[0].AnnualContributions.Value)
}
