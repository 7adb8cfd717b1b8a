// Package soa implements the scale-of-assessment reallocation engine.
//
// ComputeTable distributes the percentage left over by the anchor country and
// by pinned adjusted values across the remaining countries, proportionally to
// their own UN scale, then derives annual contributions and FERM amounts.
// Every value is truncated to core.Scale decimal places so that repeated
// recomputation does not drift.
package soa

import (
	"strings"

	"github.com/shopspring/decimal"

	"replenishment/internal/core"
)

// Options tunes the FERM qualification rule.
type Options struct {
	// InflationThreshold qualifies countries whose average inflation rate is
	// strictly below it.
	InflationThreshold decimal.Decimal
	// ReserveCurrencies always qualify regardless of inflation.
	ReserveCurrencies []string
}

// DefaultOptions returns the qualification rule used by the fund: inflation
// below 10% or contributions in Euro.
func DefaultOptions() Options {
	return Options{
		InflationThreshold: decimal.NewFromInt(10),
		ReserveCurrencies:  []string{"Euro"},
	}
}

// ComputeTable recomputes every record with DefaultOptions.
func ComputeTable(records []core.ContributionRecord, totalReplenishment decimal.Decimal) []core.ContributionRecord {
	return ComputeTableWith(records, totalReplenishment, DefaultOptions())
}

// ComputeTableWith recomputes adjusted percentages, annual contributions and
// FERM values. The input slice is not modified. Removed records are returned
// unchanged and take no part in the computation.
func ComputeTableWith(records []core.ContributionRecord, totalReplenishment decimal.Decimal, opts Options) []core.ContributionRecord {
	out := core.CloneRecords(records)
	if len(out) == 0 {
		return out
	}
	total := core.Trunc(totalReplenishment)

	// percent starts at 100 and ends as the share freed up for proportional
	// redistribution; adjTotal is the combined base of the rescaled countries.
	percent := core.Hundred()
	adjTotal := decimal.Zero
	for i := range out {
		r := &out[i]
		if r.Removed {
			continue
		}
		un := effectiveUnSoA(r)
		switch {
		case r.IsAnchor():
			if r.AdjUnSoA.Overridden && r.AdjUnSoA.Override != nil {
				percent = percent.Sub(core.Trunc(*r.AdjUnSoA.Override))
			} else {
				percent = percent.Sub(un)
			}
		case r.AdjUnSoA.Overridden:
			if r.AdjUnSoA.Override != nil {
				percent = percent.Sub(core.Trunc(*r.AdjUnSoA.Override))
			}
		default:
			adjTotal = adjTotal.Add(un)
			percent = percent.Sub(un)
		}
	}

	for i := range out {
		r := &out[i]
		if r.Removed {
			continue
		}
		un := effectiveUnSoA(r)
		switch {
		case r.IsAnchor():
			r.AdjUnSoA.Base = &un
		case r.AdjUnSoA.Overridden:
			// pinned by the operator, base left as last computed
		case adjTotal.IsZero():
			r.AdjUnSoA.Base = nil
		default:
			share := core.Trunc(un.Mul(percent).Div(adjTotal))
			adj := core.Trunc(share.Add(un))
			r.AdjUnSoA.Base = &adj
		}

		r.AnnualContributions = nil
		if adj := r.AdjUnSoA.Effective(); adj != nil {
			amount := core.Trunc(adj.Mul(total).Div(core.Hundred()))
			r.AnnualContributions = &amount
		}

		applyFERM(r, opts)
	}
	return out
}

func effectiveUnSoA(r *core.ContributionRecord) decimal.Decimal {
	if v := r.UnSoA.Effective(); v != nil {
		return core.Trunc(*v)
	}
	return decimal.Zero
}

// applyFERM recomputes qualification, normalizes the opt-in flag and derives
// the national currency amount.
func applyFERM(r *core.ContributionRecord, opts Options) {
	qualifies := false
	if ir := r.AvgIR.Effective(); ir != nil && ir.LessThan(opts.InflationThreshold) {
		qualifies = true
	}
	if cur := r.FERMCur.Effective(); cur != nil && isReserveCurrency(*cur, opts.ReserveCurrencies) {
		qualifies = true
	}
	r.QualFERM.Base = &qualifies

	effective := false
	if q := r.QualFERM.Effective(); q != nil {
		effective = *q
	}

	if effective {
		if r.OptedForFERM.Effective() == nil {
			notYet := false
			if r.OptedForFERM.Overridden {
				r.OptedForFERM.Set(&notYet)
			} else {
				r.OptedForFERM.Base = &notYet
			}
		}
	} else {
		r.OptedForFERM.Base = nil
		r.OptedForFERM.Revert()
	}

	r.FERMCurAmount = nil
	rate := r.FERMRate.Effective()
	if effective && rate != nil && r.AnnualContributions != nil {
		amount := core.Trunc(rate.Mul(*r.AnnualContributions))
		r.FERMCurAmount = &amount
	}
}

func isReserveCurrency(name string, reserve []string) bool {
	name = strings.TrimSpace(name)
	for _, c := range reserve {
		if strings.EqualFold(name, c) {
			return true
		}
	}
	return false
}
