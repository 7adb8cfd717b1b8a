package core

import "github.com/shopspring/decimal"

// ScaleSummary aggregates a computed scale table. It is built fresh on every
// call and never shared between requests.
type ScaleSummary struct {
	Period              string          `json:"period"`
	Countries           int             `json:"countries"`
	TotalUnSoA          decimal.Decimal `json:"total_un_soa"`
	TotalAdjUnSoA       decimal.Decimal `json:"total_adj_un_soa"`
	TotalContributions  decimal.Decimal `json:"total_contributions"`
	TotalReplenishment  decimal.Decimal `json:"total_replenishment"`
	QualifiedFERM       int             `json:"qualified_ferm"`
	OptedForFERM        int             `json:"opted_for_ferm"`
	Overrides           int             `json:"overrides"`
	UnresolvedCountries int             `json:"unresolved_countries"`
}

// Summarize builds a ScaleSummary from computed records. Removed rows are skipped.
func Summarize(period Period, records []ContributionRecord) ScaleSummary {
	s := ScaleSummary{
		Period:             period.Key(),
		TotalReplenishment: period.TotalReplenishment(),
	}
	for _, r := range records {
		if r.Removed {
			continue
		}
		s.Countries++
		if v := r.UnSoA.Effective(); v != nil {
			s.TotalUnSoA = s.TotalUnSoA.Add(*v)
		}
		if v := r.AdjUnSoA.Effective(); v != nil {
			s.TotalAdjUnSoA = s.TotalAdjUnSoA.Add(*v)
		} else {
			s.UnresolvedCountries++
		}
		if r.AnnualContributions != nil {
			s.TotalContributions = s.TotalContributions.Add(*r.AnnualContributions)
		}
		if q := r.QualFERM.Effective(); q != nil && *q {
			s.QualifiedFERM++
		}
		if o := r.OptedForFERM.Effective(); o != nil && *o {
			s.OptedForFERM++
		}
		s.Overrides += r.OverrideCount()
	}
	return s
}

// OverrideCount returns how many editable cells carry an override.
func (r ContributionRecord) OverrideCount() int {
	n := 0
	for _, o := range []bool{
		r.UnSoA.Overridden, r.AdjUnSoA.Overridden, r.AvgIR.Overridden,
		r.QualFERM.Overridden, r.OptedForFERM.Overridden,
		r.FERMCur.Overridden, r.FERMRate.Overridden,
	} {
		if o {
			n++
		}
	}
	return n
}
