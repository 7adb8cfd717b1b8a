package soa

import (
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"replenishment/internal/core"
)

// Edit is a single cell change requested by an operator.
type Edit struct {
	Row       int       `json:"row"`
	Field     FieldName `json:"field"`
	Value     string    `json:"value"`
	Confirmed bool      `json:"confirmed"`
}

// CurrencyGroups maps each effective FERM currency name to the indices of the
// live records using it.
func CurrencyGroups(records []core.ContributionRecord) map[string][]int {
	groups := make(map[string][]int)
	for i, r := range records {
		if r.Removed {
			continue
		}
		cur := r.FERMCur.Effective()
		if cur == nil || strings.TrimSpace(*cur) == "" {
			continue
		}
		name := strings.TrimSpace(*cur)
		groups[name] = append(groups[name], i)
	}
	return groups
}

// ApplyEdit returns a copy of records with the edit applied. On any error the
// caller's working set is left as it was.
func ApplyEdit(records []core.ContributionRecord, e Edit) ([]core.ContributionRecord, error) {
	if e.Row < 0 || e.Row >= len(records) || records[e.Row].Removed {
		return nil, fmt.Errorf("%w: %d", ErrRowOutOfRange, e.Row)
	}
	if !e.Field.Editable() {
		return nil, fmt.Errorf("%w: %s", ErrFieldNotEditable, e.Field)
	}
	if RequiresConfirmation(e.Field) && !e.Confirmed {
		return nil, fmt.Errorf("%w: %s", ErrConfirmationRequired, e.Field)
	}
	if err := core.CheckRecords(records); err != nil {
		return nil, err
	}

	out := core.CloneRecords(records)
	row := &out[e.Row]

	switch e.Field {
	case FieldUnSoA, FieldAdjUnSoA, FieldAvgIR:
		v, err := parseDecimalCell(e.Field, e.Value)
		if err != nil {
			return nil, err
		}
		setDecimal(decimalField(row, e.Field), v)
	case FieldQualFERM, FieldOptedForFERM:
		v, err := parseBoolCell(e.Field, e.Value)
		if err != nil {
			return nil, err
		}
		f := &row.QualFERM
		if e.Field == FieldOptedForFERM {
			f = &row.OptedForFERM
		}
		setBool(f, v)
	case FieldFERMCur:
		name, err := parseStringCell(e.Field, e.Value)
		if err != nil {
			return nil, err
		}
		editCurrency(out, e.Row, name)
	case FieldFERMRate:
		v, err := parseDecimalCell(e.Field, e.Value)
		if err != nil {
			return nil, err
		}
		editRate(out, e.Row, v)
	}
	return out, nil
}

// editCurrency adopts an existing currency, assigns a fresh one, or renames
// the currency shared by the row's group.
func editCurrency(out []core.ContributionRecord, idx int, name *string) {
	row := &out[idx]
	if name == nil {
		setString(&row.FERMCur, nil)
		setDecimal(&row.FERMRate, nil)
		return
	}

	groups := CurrencyGroups(out)
	for _, other := range groups[*name] {
		if other == idx {
			continue
		}
		setString(&row.FERMCur, name)
		setDecimal(&row.FERMRate, out[other].FERMRate.Effective())
		return
	}

	old := row.FERMCur.Effective()
	if old == nil || strings.TrimSpace(*old) == "" {
		setString(&row.FERMCur, name)
		return
	}
	for _, member := range groups[strings.TrimSpace(*old)] {
		setString(&out[member].FERMCur, name)
	}
}

// editRate applies the rate to every record sharing the row's currency.
func editRate(out []core.ContributionRecord, idx int, rate *decimal.Decimal) {
	cur := out[idx].FERMCur.Effective()
	if cur == nil || strings.TrimSpace(*cur) == "" {
		setDecimal(&out[idx].FERMRate, rate)
		return
	}
	for _, member := range CurrencyGroups(out)[strings.TrimSpace(*cur)] {
		setDecimal(&out[member].FERMRate, rate)
	}
}

// Revert clears the override of one cell. Currency and rate reverts apply to
// every record sharing the row's current currency.
func Revert(records []core.ContributionRecord, rowIdx int, field FieldName) ([]core.ContributionRecord, error) {
	if rowIdx < 0 || rowIdx >= len(records) {
		return nil, fmt.Errorf("%w: %d", ErrRowOutOfRange, rowIdx)
	}
	if !field.Editable() {
		return nil, fmt.Errorf("%w: %s", ErrFieldNotEditable, field)
	}
	out := core.CloneRecords(records)
	row := &out[rowIdx]

	switch field {
	case FieldFERMCur, FieldFERMRate:
		members := []int{rowIdx}
		if cur := row.FERMCur.Effective(); cur != nil && strings.TrimSpace(*cur) != "" {
			if group := CurrencyGroups(out)[strings.TrimSpace(*cur)]; len(group) > 0 {
				members = group
			}
		}
		for _, m := range members {
			if field == FieldFERMCur {
				out[m].FERMCur.Revert()
			}
			out[m].FERMRate.Revert()
		}
	case FieldQualFERM:
		row.QualFERM.Revert()
	case FieldOptedForFERM:
		row.OptedForFERM.Revert()
	default:
		decimalField(row, field).Revert()
	}
	return out, nil
}

// AddRecord appends a new country with a zero scale of assessment.
func AddRecord(records []core.ContributionRecord, countryID int64, country, iso3 string) ([]core.ContributionRecord, error) {
	r := core.ContributionRecord{
		CountryID: countryID,
		Country:   strings.TrimSpace(country),
		ISO3:      strings.ToUpper(strings.TrimSpace(iso3)),
		RowID:     uuid.NewString(),
		UnSoA:     core.Value(decimal.Zero),
	}
	if err := r.Validate(); err != nil {
		return nil, err
	}
	for _, existing := range records {
		if !existing.Removed && strings.EqualFold(existing.ISO3, r.ISO3) {
			return nil, fmt.Errorf("%w: %s", core.ErrDuplicateRecord, r.ISO3)
		}
	}
	out := core.CloneRecords(records)
	return append(out, r), nil
}

// RemoveRecord soft-removes a row from the working set.
func RemoveRecord(records []core.ContributionRecord, rowIdx int) ([]core.ContributionRecord, error) {
	if rowIdx < 0 || rowIdx >= len(records) {
		return nil, fmt.Errorf("%w: %d", ErrRowOutOfRange, rowIdx)
	}
	out := core.CloneRecords(records)
	out[rowIdx].Removed = true
	return out, nil
}

// StripOverrides drops removed rows and flattens every override into plain
// base values, ready to persist.
func StripOverrides(records []core.ContributionRecord) []core.ContributionRecord {
	out := make([]core.ContributionRecord, 0, len(records))
	for _, r := range records {
		if r.Removed {
			continue
		}
		c := r.Clone()
		c.UnSoA.Flatten()
		c.AdjUnSoA.Flatten()
		c.AvgIR.Flatten()
		c.QualFERM.Flatten()
		c.OptedForFERM.Flatten()
		c.FERMCur.Flatten()
		c.FERMRate.Flatten()
		out = append(out, c)
	}
	return out
}

// AssignRowIDs gives every record lacking one a synthetic row id.
func AssignRowIDs(records []core.ContributionRecord) {
	for i := range records {
		if records[i].RowID == "" {
			records[i].RowID = uuid.NewString()
		}
	}
}

func decimalField(r *core.ContributionRecord, f FieldName) *core.Field[decimal.Decimal] {
	switch f {
	case FieldAdjUnSoA:
		return &r.AdjUnSoA
	case FieldAvgIR:
		return &r.AvgIR
	case FieldFERMRate:
		return &r.FERMRate
	default:
		return &r.UnSoA
	}
}

// setDecimal stores v as an override unless it equals the base value, in
// which case any override is removed.
func setDecimal(f *core.Field[decimal.Decimal], v *decimal.Decimal) {
	switch {
	case v == nil && f.Base == nil:
		f.Revert()
	case v != nil && f.Base != nil && f.Base.Equal(*v):
		f.Revert()
	default:
		f.Set(v)
	}
}

func setBool(f *core.Field[bool], v *bool) {
	switch {
	case v == nil && f.Base == nil:
		f.Revert()
	case v != nil && f.Base != nil && *f.Base == *v:
		f.Revert()
	default:
		f.Set(v)
	}
}

func setString(f *core.Field[string], v *string) {
	switch {
	case v == nil && f.Base == nil:
		f.Revert()
	case v != nil && f.Base != nil && strings.TrimSpace(*f.Base) == *v:
		f.Revert()
	default:
		f.Set(v)
	}
}

func parseDecimalCell(f FieldName, raw string) (*decimal.Decimal, error) {
	d, err := core.ParseDecimal(raw)
	switch {
	case errors.Is(err, core.ErrNotANumber):
		return nil, nil
	case errors.Is(err, core.ErrOutOfRange):
		return nil, &FieldError{Field: f, Value: raw, Message: msgOutOfRange}
	case err != nil:
		return nil, &FieldError{Field: f, Value: raw, Message: "must be a number"}
	}
	if err := ValidateDecimal(f, d); err != nil {
		return nil, err
	}
	return &d, nil
}

func parseBoolCell(f FieldName, raw string) (*bool, error) {
	s := strings.ToLower(strings.TrimSpace(raw))
	switch s {
	case "":
		return nil, nil
	case "yes", "y":
		v := true
		return &v, nil
	case "no", "n":
		v := false
		return &v, nil
	}
	v, err := strconv.ParseBool(s)
	if err != nil {
		return nil, &FieldError{Field: f, Value: raw, Message: ErrInvalidBool.Error()}
	}
	return &v, nil
}

func parseStringCell(f FieldName, raw string) (*string, error) {
	s := strings.TrimSpace(raw)
	if s == "" {
		return nil, nil
	}
	if err := ValidateString(f, s); err != nil {
		return nil, err
	}
	return &s, nil
}
