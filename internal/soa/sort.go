package soa

import (
	"fmt"
	"slices"
	"strings"

	"github.com/shopspring/decimal"
	"golang.org/x/text/collate"
	"golang.org/x/text/language"

	"replenishment/internal/core"
)

// Direction is the order of a column sort.
type Direction string

const (
	Asc  Direction = "asc"
	Desc Direction = "desc"
)

// ParseDirection accepts "asc" or "desc"; blank means ascending.
func ParseDirection(s string) (Direction, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "asc":
		return Asc, nil
	case "desc":
		return Desc, nil
	}
	return "", fmt.Errorf("invalid sort direction %q", s)
}

// Sort returns a stably sorted copy of records ordered by the effective value
// of field. Missing values rank above every present value, so they come last
// when ascending and first when descending.
func Sort(records []core.ContributionRecord, field FieldName, dir Direction) []core.ContributionRecord {
	out := core.CloneRecords(records)
	col := collate.New(language.English, collate.Loose)
	cmp := comparatorFor(field, col)

	slices.SortStableFunc(out, func(a, b core.ContributionRecord) int {
		c := cmp(a, b)
		if dir == Desc {
			return -c
		}
		return c
	})
	return out
}

type comparator func(a, b core.ContributionRecord) int

func comparatorFor(field FieldName, col *collate.Collator) comparator {
	switch field {
	case FieldCountry:
		return byString(col, func(r core.ContributionRecord) *string { return &r.Country })
	case FieldISO3:
		return byString(col, func(r core.ContributionRecord) *string { return &r.ISO3 })
	case FieldFERMCur:
		return byString(col, func(r core.ContributionRecord) *string {
			v := r.FERMCur.Effective()
			if v == nil || strings.TrimSpace(*v) == "" {
				return nil
			}
			return v
		})
	case FieldQualFERM:
		return byBool(func(r core.ContributionRecord) *bool { return r.QualFERM.Effective() })
	case FieldOptedForFERM:
		return byBool(func(r core.ContributionRecord) *bool { return r.OptedForFERM.Effective() })
	case FieldAnnualContributions:
		return byDecimal(func(r core.ContributionRecord) *decimal.Decimal { return r.AnnualContributions })
	case FieldFERMCurAmount:
		return byDecimal(func(r core.ContributionRecord) *decimal.Decimal { return r.FERMCurAmount })
	case FieldUnSoA:
		return byDecimal(func(r core.ContributionRecord) *decimal.Decimal { return r.UnSoA.Effective() })
	case FieldAdjUnSoA:
		return byDecimal(func(r core.ContributionRecord) *decimal.Decimal { return r.AdjUnSoA.Effective() })
	case FieldAvgIR:
		return byDecimal(func(r core.ContributionRecord) *decimal.Decimal { return r.AvgIR.Effective() })
	case FieldFERMRate:
		return byDecimal(func(r core.ContributionRecord) *decimal.Decimal { return r.FERMRate.Effective() })
	}
	return func(a, b core.ContributionRecord) int { return 0 }
}

// missingLast orders nil after any present value. ok is false when both
// values are present and the caller must compare them.
func missingLast(aNil, bNil bool) (int, bool) {
	switch {
	case aNil && bNil:
		return 0, true
	case aNil:
		return 1, true
	case bNil:
		return -1, true
	}
	return 0, false
}

func byString(col *collate.Collator, get func(core.ContributionRecord) *string) comparator {
	return func(a, b core.ContributionRecord) int {
		av, bv := get(a), get(b)
		if c, ok := missingLast(av == nil, bv == nil); ok {
			return c
		}
		return col.CompareString(*av, *bv)
	}
}

func byDecimal(get func(core.ContributionRecord) *decimal.Decimal) comparator {
	return func(a, b core.ContributionRecord) int {
		av, bv := get(a), get(b)
		if c, ok := missingLast(av == nil, bv == nil); ok {
			return c
		}
		return av.Cmp(*bv)
	}
}

func byBool(get func(core.ContributionRecord) *bool) comparator {
	return func(a, b core.ContributionRecord) int {
		av, bv := get(a), get(b)
		if c, ok := missingLast(av == nil, bv == nil); ok {
			return c
		}
		switch {
		case *av == *bv:
			return 0
		case !*av:
			return -1
		}
		return 1
	}
}
