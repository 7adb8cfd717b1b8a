package core

import (
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/shopspring/decimal"
)

// AnchorISO3 identifies the country whose adjusted scale is never rescaled.
const AnchorISO3 = "USA"

type (
	// Field is an editable cell: a base value plus an optional operator override.
	// Overridden with a nil Override means the operator forced the value unset.
	Field[T any] struct {
		Base       *T   `json:"base"`
		Overridden bool `json:"overridden,omitempty"`
		Override   *T   `json:"override,omitempty"`
	}

	ContributionRecord struct {
		CountryID int64  `json:"country_id"`
		Country   string `json:"country"`
		ISO3      string `json:"iso3"`

		// InitialID is stable across edits and is used to match drafts against
		// persisted rows. RowID is synthetic and never compared.
		InitialID string `json:"initial_id"`
		RowID     string `json:"row_id"`
		Removed   bool   `json:"removed,omitempty"`

		UnSoA               Field[decimal.Decimal] `json:"un_soa"`
		AdjUnSoA            Field[decimal.Decimal] `json:"adj_un_soa"`
		AnnualContributions *decimal.Decimal       `json:"annual_contributions"`
		AvgIR               Field[decimal.Decimal] `json:"avg_ir"`
		QualFERM            Field[bool]            `json:"qual_ferm"`
		OptedForFERM        Field[bool]            `json:"opted_for_ferm"`
		FERMCur             Field[string]          `json:"ferm_cur"`
		FERMRate            Field[decimal.Decimal] `json:"ferm_rate"`
		FERMCurAmount       *decimal.Decimal       `json:"ferm_cur_amount"`
	}

	// Period is a replenishment period with its budget figures.
	Period struct {
		StartYear        int             `json:"start_year"`
		EndYear          int             `json:"end_year"`
		Amount           decimal.Decimal `json:"amount"`
		PreviouslyUnused decimal.Decimal `json:"previously_unused"`
		ExportStatus     ExportStatus    `json:"export_status,omitempty"`
	}

	ExportStatus string
)

const (
	ExportPending ExportStatus = "pending"
	ExportSynced  ExportStatus = "synced"
	ExportError   ExportStatus = "error"
)

var (
	ErrInvalidPeriod   = errors.New("invalid period")
	ErrInvalidAmount   = errors.New("invalid amount")
	ErrEmptyCountry    = errors.New("empty country")
	ErrInvalidISO3     = errors.New("invalid iso3 code")
	ErrPeriodNotFound  = errors.New("period not found")
	ErrRecordNotFound  = errors.New("record not found")
	ErrNegativeScale   = errors.New("scale of assessment cannot be negative")
	ErrDuplicateRecord = errors.New("duplicate country in period")
)

// Value returns a Field with the given base value and no override.
func Value[T any](v T) Field[T] {
	return Field[T]{Base: &v}
}

// Ptr returns a pointer to a copy of v.
func Ptr[T any](v T) *T {
	return &v
}

// Effective resolves the override when present, else the base value.
func (f Field[T]) Effective() *T {
	if f.Overridden {
		return f.Override
	}
	return f.Base
}

// Set stores an override; nil forces the value unset.
func (f *Field[T]) Set(v *T) {
	f.Overridden = true
	if v == nil {
		f.Override = nil
		return
	}
	cp := *v
	f.Override = &cp
}

// Revert drops any override.
func (f *Field[T]) Revert() {
	f.Overridden = false
	f.Override = nil
}

// Flatten moves the effective value into the base and clears the override.
func (f *Field[T]) Flatten() {
	f.Base = f.Effective()
	f.Revert()
}

// Clone copies the field so the copy shares no pointers with the original.
func (f Field[T]) Clone() Field[T] {
	out := Field[T]{Overridden: f.Overridden}
	if f.Base != nil {
		b := *f.Base
		out.Base = &b
	}
	if f.Override != nil {
		o := *f.Override
		out.Override = &o
	}
	return out
}

// IsAnchor reports whether the record is the fixed anchor of the scale.
func (r ContributionRecord) IsAnchor() bool {
	return strings.EqualFold(strings.TrimSpace(r.ISO3), AnchorISO3)
}

// Clone returns a deep copy of the record.
func (r ContributionRecord) Clone() ContributionRecord {
	out := r
	out.UnSoA = r.UnSoA.Clone()
	out.AdjUnSoA = r.AdjUnSoA.Clone()
	out.AvgIR = r.AvgIR.Clone()
	out.QualFERM = r.QualFERM.Clone()
	out.OptedForFERM = r.OptedForFERM.Clone()
	out.FERMCur = r.FERMCur.Clone()
	out.FERMRate = r.FERMRate.Clone()
	out.AnnualContributions = cloneDecimal(r.AnnualContributions)
	out.FERMCurAmount = cloneDecimal(r.FERMCurAmount)
	return out
}

// CloneRecords deep-copies a working set.
func CloneRecords(in []ContributionRecord) []ContributionRecord {
	out := make([]ContributionRecord, len(in))
	for i, r := range in {
		out[i] = r.Clone()
	}
	return out
}

func cloneDecimal(d *decimal.Decimal) *decimal.Decimal {
	if d == nil {
		return nil
	}
	c := *d
	return &c
}

func (r ContributionRecord) Validate() error {
	if strings.TrimSpace(r.Country) == "" {
		return ErrEmptyCountry
	}
	iso := strings.TrimSpace(r.ISO3)
	if len(iso) != 3 {
		return ErrInvalidISO3
	}
	if v := r.UnSoA.Effective(); v != nil && v.IsNegative() {
		return ErrNegativeScale
	}
	return nil
}

// CheckRange bounds every decimal carried by the record, base and override
// alike, so callers can reject oversized input before computing with it.
func (r ContributionRecord) CheckRange() error {
	values := []*decimal.Decimal{
		r.UnSoA.Base, r.UnSoA.Override,
		r.AdjUnSoA.Base, r.AdjUnSoA.Override,
		r.AvgIR.Base, r.AvgIR.Override,
		r.FERMRate.Base, r.FERMRate.Override,
		r.AnnualContributions, r.FERMCurAmount,
	}
	for _, v := range values {
		if v == nil {
			continue
		}
		if err := CheckRange(*v); err != nil {
			return err
		}
	}
	return nil
}

// CheckRecords runs CheckRange over a working set.
func CheckRecords(records []ContributionRecord) error {
	for i, r := range records {
		if err := r.CheckRange(); err != nil {
			return fmt.Errorf("record %d (%s): %w", i, r.ISO3, err)
		}
	}
	return nil
}

// Key formats the period as "<start>-<end>".
func (p Period) Key() string {
	return fmt.Sprintf("%d-%d", p.StartYear, p.EndYear)
}

// TotalReplenishment is the budget net of the previously unused deduction.
func (p Period) TotalReplenishment() decimal.Decimal {
	return p.Amount.Sub(p.PreviouslyUnused)
}

func (p Period) Validate() error {
	if p.StartYear < 1900 || p.EndYear < p.StartYear {
		return ErrInvalidPeriod
	}
	if p.Amount.IsNegative() || p.PreviouslyUnused.IsNegative() {
		return ErrInvalidAmount
	}
	if err := CheckRange(p.Amount); err != nil {
		return err
	}
	if err := CheckRange(p.PreviouslyUnused); err != nil {
		return err
	}
	if p.PreviouslyUnused.GreaterThan(p.Amount) {
		return fmt.Errorf("%w: previously unused exceeds amount", ErrInvalidAmount)
	}
	return nil
}

// ParsePeriodKey parses "2024-2026" into start and end years.
func ParsePeriodKey(key string) (start, end int, err error) {
	parts := strings.Split(strings.TrimSpace(key), "-")
	if len(parts) != 2 {
		return 0, 0, fmt.Errorf("%w: %q", ErrInvalidPeriod, key)
	}
	start, err = strconv.Atoi(parts[0])
	if err != nil {
		return 0, 0, fmt.Errorf("%w: %q", ErrInvalidPeriod, key)
	}
	end, err = strconv.Atoi(parts[1])
	if err != nil {
		return 0, 0, fmt.Errorf("%w: %q", ErrInvalidPeriod, key)
	}
	if start < 1900 || end < start {
		return 0, 0, fmt.Errorf("%w: %q", ErrInvalidPeriod, key)
	}
	return start, end, nil
}
