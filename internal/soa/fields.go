package soa

import (
	"fmt"
	"strings"
)

// FieldName names a column of the scale table.
type FieldName string

const (
	FieldCountry             FieldName = "country"
	FieldISO3                FieldName = "iso3"
	FieldUnSoA               FieldName = "un_soa"
	FieldAdjUnSoA            FieldName = "adj_un_soa"
	FieldAnnualContributions FieldName = "annual_contributions"
	FieldAvgIR               FieldName = "avg_ir"
	FieldQualFERM            FieldName = "qual_ferm"
	FieldOptedForFERM        FieldName = "opted_for_ferm"
	FieldFERMCur             FieldName = "ferm_cur"
	FieldFERMRate            FieldName = "ferm_rate"
	FieldFERMCurAmount       FieldName = "ferm_cur_amount"
)

var allFields = []FieldName{
	FieldCountry, FieldISO3, FieldUnSoA, FieldAdjUnSoA, FieldAnnualContributions,
	FieldAvgIR, FieldQualFERM, FieldOptedForFERM, FieldFERMCur, FieldFERMRate,
	FieldFERMCurAmount,
}

var editableFields = map[FieldName]bool{
	FieldUnSoA:        true,
	FieldAdjUnSoA:     true,
	FieldAvgIR:        true,
	FieldQualFERM:     true,
	FieldOptedForFERM: true,
	FieldFERMCur:      true,
	FieldFERMRate:     true,
}

// Editable reports whether operators may override the field.
func (f FieldName) Editable() bool {
	return editableFields[f]
}

func (f FieldName) String() string { return string(f) }

// ParseFieldName accepts a column name in any case.
func ParseFieldName(s string) (FieldName, error) {
	name := FieldName(strings.ToLower(strings.TrimSpace(s)))
	for _, f := range allFields {
		if f == name {
			return f, nil
		}
	}
	return "", fmt.Errorf("%w: %q", ErrUnknownField, s)
}
