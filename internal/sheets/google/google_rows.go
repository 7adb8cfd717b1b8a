package google

import (
	"github.com/shopspring/decimal"

	"replenishment/internal/core"
)

var header = []any{
	"Country", "ISO3", "UN scale of assessment", "Adjusted UN scale of assessment",
	"Annual contributions", "Average inflation rate", "Qualifies for FERM",
	"Opted for FERM", "Currency", "Exchange rate", "National currency amount",
}

// buildRows renders the live records as sheet values: a header, one row per
// country and a totals row. Decimals are written as plain strings so the
// sheet parses them without float rounding.
func buildRows(period core.Period, records []core.ContributionRecord) [][]any {
	values := [][]any{header}
	var sumUn, sumAdj, sumAnnual decimal.Decimal
	for _, r := range records {
		if r.Removed {
			continue
		}
		values = append(values, []any{
			r.Country,
			r.ISO3,
			decimalCell(r.UnSoA.Effective()),
			decimalCell(r.AdjUnSoA.Effective()),
			decimalCell(r.AnnualContributions),
			decimalCell(r.AvgIR.Effective()),
			boolCell(r.QualFERM.Effective()),
			boolCell(r.OptedForFERM.Effective()),
			stringCell(r.FERMCur.Effective()),
			decimalCell(r.FERMRate.Effective()),
			decimalCell(r.FERMCurAmount),
		})
		sumUn = addPtr(sumUn, r.UnSoA.Effective())
		sumAdj = addPtr(sumAdj, r.AdjUnSoA.Effective())
		sumAnnual = addPtr(sumAnnual, r.AnnualContributions)
	}
	values = append(values, []any{
		"Total", period.Key(), sumUn.String(), sumAdj.String(), sumAnnual.String(),
		"", "", "", "", "", "",
	})
	return values
}

func addPtr(sum decimal.Decimal, d *decimal.Decimal) decimal.Decimal {
	if d == nil {
		return sum
	}
	return sum.Add(*d)
}

func decimalCell(d *decimal.Decimal) any {
	if d == nil {
		return ""
	}
	return d.String()
}

func boolCell(b *bool) any {
	switch {
	case b == nil:
		return ""
	case *b:
		return "Yes"
	}
	return "No"
}

func stringCell(s *string) any {
	if s == nil {
		return ""
	}
	return *s
}
