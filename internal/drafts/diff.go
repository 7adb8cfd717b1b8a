package drafts

import (
	"sort"

	"github.com/shopspring/decimal"

	"replenishment/internal/core"
)

// Diff lists the records that differ between a draft and the server data,
// identified by initial id. Rows added in the draft have no initial id and
// are identified by iso3.
type Diff struct {
	Changed map[string][]string `json:"changed,omitempty"`
	Added   []string            `json:"added,omitempty"`
	Removed []string            `json:"removed,omitempty"`
}

func (d Diff) Empty() bool {
	return len(d.Changed) == 0 && len(d.Added) == 0 && len(d.Removed) == 0
}

func identity(r core.ContributionRecord) string {
	if r.InitialID != "" {
		return r.InitialID
	}
	return "new:" + r.ISO3
}

// Compare diffs draft against server field by field. The synthetic row id is
// never compared.
func Compare(draft, server []core.ContributionRecord) Diff {
	byID := make(map[string]core.ContributionRecord, len(server))
	for _, r := range server {
		byID[identity(r)] = r
	}

	var d Diff
	seen := make(map[string]bool, len(draft))
	for _, r := range draft {
		id := identity(r)
		seen[id] = true
		s, ok := byID[id]
		if !ok {
			if !r.Removed {
				d.Added = append(d.Added, id)
			}
			continue
		}
		if fields := changedFields(r, s); len(fields) > 0 {
			if d.Changed == nil {
				d.Changed = make(map[string][]string)
			}
			d.Changed[id] = fields
		}
	}
	for id := range byID {
		if !seen[id] {
			d.Removed = append(d.Removed, id)
		}
	}
	sort.Strings(d.Added)
	sort.Strings(d.Removed)
	return d
}

func changedFields(a, b core.ContributionRecord) []string {
	var out []string
	add := func(name string, equal bool) {
		if !equal {
			out = append(out, name)
		}
	}
	add("country", a.Country == b.Country)
	add("iso3", a.ISO3 == b.ISO3)
	add("removed", a.Removed == b.Removed)
	add("un_soa", fieldEqual(a.UnSoA, b.UnSoA, decimalEqual))
	add("adj_un_soa", fieldEqual(a.AdjUnSoA, b.AdjUnSoA, decimalEqual))
	add("annual_contributions", ptrEqual(a.AnnualContributions, b.AnnualContributions, decimalEqual))
	add("avg_ir", fieldEqual(a.AvgIR, b.AvgIR, decimalEqual))
	add("qual_ferm", fieldEqual(a.QualFERM, b.QualFERM, plainEqual[bool]))
	add("opted_for_ferm", fieldEqual(a.OptedForFERM, b.OptedForFERM, plainEqual[bool]))
	add("ferm_cur", fieldEqual(a.FERMCur, b.FERMCur, plainEqual[string]))
	add("ferm_rate", fieldEqual(a.FERMRate, b.FERMRate, decimalEqual))
	add("ferm_cur_amount", ptrEqual(a.FERMCurAmount, b.FERMCurAmount, decimalEqual))
	return out
}

func fieldEqual[T any](a, b core.Field[T], eq func(x, y T) bool) bool {
	if a.Overridden != b.Overridden {
		return false
	}
	if !ptrEqual(a.Base, b.Base, eq) {
		return false
	}
	return !a.Overridden || ptrEqual(a.Override, b.Override, eq)
}

func ptrEqual[T any](a, b *T, eq func(x, y T) bool) bool {
	if a == nil || b == nil {
		return a == nil && b == nil
	}
	return eq(*a, *b)
}

func decimalEqual(x, y decimal.Decimal) bool { return x.Equal(y) }

func plainEqual[T comparable](x, y T) bool { return x == y }
