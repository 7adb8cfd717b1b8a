package soa

import (
	"errors"
	"fmt"

	"github.com/go-playground/validator/v10"
	"github.com/shopspring/decimal"

	"replenishment/internal/core"
)

var (
	ErrUnknownField         = errors.New("unknown field")
	ErrFieldNotEditable     = errors.New("field is not editable")
	ErrRowOutOfRange        = errors.New("row out of range")
	ErrConfirmationRequired = errors.New("confirmation required")
	ErrInvalidBool          = errors.New("invalid boolean")
)

var validate = validator.New()

// fieldRules are validator tags applied to candidate cell values.
var fieldRules = map[FieldName]string{
	FieldUnSoA:    "gte=0,lte=22",
	FieldAdjUnSoA: "gte=0,lte=100",
	FieldAvgIR:    "gte=-100",
	FieldFERMRate: "gt=0",
	FieldFERMCur:  "max=64",
}

// confirmationPolicy lists system-computed fields an operator must confirm
// before an override is applied.
var confirmationPolicy = map[FieldName]bool{
	FieldAdjUnSoA: true,
	FieldQualFERM: true,
}

// RequiresConfirmation reports whether edits to f need explicit confirmation.
func RequiresConfirmation(f FieldName) bool {
	return confirmationPolicy[f]
}

// FieldError is a cell-local validation failure.
type FieldError struct {
	Field   FieldName `json:"field"`
	Value   string    `json:"value"`
	Message string    `json:"message"`
}

func (e *FieldError) Error() string {
	return fmt.Sprintf("%s: %s", e.Field, e.Message)
}

const msgOutOfRange = "is out of range"

// ValidateDecimal checks a numeric candidate against the field's rule.
func ValidateDecimal(f FieldName, v decimal.Decimal) error {
	if err := core.CheckRange(v); err != nil {
		return &FieldError{Field: f, Value: "", Message: msgOutOfRange}
	}
	rule, ok := fieldRules[f]
	if !ok {
		return nil
	}
	return toFieldError(f, v.String(), validate.Var(v.InexactFloat64(), rule))
}

// ValidateString checks a text candidate against the field's rule.
func ValidateString(f FieldName, v string) error {
	rule, ok := fieldRules[f]
	if !ok {
		return nil
	}
	return toFieldError(f, v, validate.Var(v, rule))
}

// ValidateRecord applies the field rules to the effective value of every
// editable cell of a live record. Removed records are not checked.
func ValidateRecord(r core.ContributionRecord) error {
	if r.Removed {
		return nil
	}
	decimals := []struct {
		name FieldName
		v    *decimal.Decimal
	}{
		{FieldUnSoA, r.UnSoA.Effective()},
		{FieldAdjUnSoA, r.AdjUnSoA.Effective()},
		{FieldAvgIR, r.AvgIR.Effective()},
		{FieldFERMRate, r.FERMRate.Effective()},
	}
	for _, d := range decimals {
		if d.v == nil {
			continue
		}
		if err := ValidateDecimal(d.name, *d.v); err != nil {
			return err
		}
	}
	if cur := r.FERMCur.Effective(); cur != nil {
		return ValidateString(FieldFERMCur, *cur)
	}
	return nil
}

func toFieldError(f FieldName, raw string, err error) error {
	if err == nil {
		return nil
	}
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) || len(verrs) == 0 {
		return &FieldError{Field: f, Value: raw, Message: err.Error()}
	}
	fe := verrs[0]
	var msg string
	switch fe.Tag() {
	case "gte":
		msg = "must be at least " + fe.Param()
	case "lte":
		msg = "must be at most " + fe.Param()
	case "gt":
		msg = "must be greater than " + fe.Param()
	case "max":
		msg = "must be at most " + fe.Param() + " characters"
	default:
		msg = "failed " + fe.Tag() + " validation"
	}
	return &FieldError{Field: f, Value: raw, Message: msg}
}
