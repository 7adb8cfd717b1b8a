package soa

import (
	"strings"

	"github.com/shopspring/decimal"
	"golang.org/x/text/language"
	"golang.org/x/text/message"

	"replenishment/internal/core"
)

// NotAvailable is shown for unset or uncomputable values.
const NotAvailable = "N/A"

// Cell is a formatted value plus whether it comes from an operator override.
type Cell struct {
	Value      string `json:"value"`
	Overridden bool   `json:"overridden,omitempty"`
}

// DisplayRow is the rendered form of a record.
type DisplayRow struct {
	Index               int    `json:"index"`
	RowID               string `json:"row_id"`
	Country             string `json:"country"`
	ISO3                string `json:"iso3"`
	UnSoA               Cell   `json:"un_soa"`
	AdjUnSoA            Cell   `json:"adj_un_soa"`
	AnnualContributions Cell   `json:"annual_contributions"`
	AvgIR               Cell   `json:"avg_ir"`
	QualFERM            Cell   `json:"qual_ferm"`
	OptedForFERM        Cell   `json:"opted_for_ferm"`
	FERMCur             Cell   `json:"ferm_cur"`
	FERMRate            Cell   `json:"ferm_rate"`
	FERMCurAmount       Cell   `json:"ferm_cur_amount"`
}

// Display formats live records for rendering. Index refers to the position in
// the input slice so edits can be addressed back to the working set.
func Display(records []core.ContributionRecord) []DisplayRow {
	p := message.NewPrinter(language.English)
	rows := make([]DisplayRow, 0, len(records))
	for i, r := range records {
		if r.Removed {
			continue
		}
		rows = append(rows, DisplayRow{
			Index:               i,
			RowID:               r.RowID,
			Country:             r.Country,
			ISO3:                r.ISO3,
			UnSoA:               percentCell(p, r.UnSoA),
			AdjUnSoA:            percentCell(p, r.AdjUnSoA),
			AnnualContributions: Cell{Value: formatAmount(p, r.AnnualContributions)},
			AvgIR:               percentCell(p, r.AvgIR),
			QualFERM:            boolCell(r.QualFERM),
			OptedForFERM:        boolCell(r.OptedForFERM),
			FERMCur:             stringCell(r.FERMCur),
			FERMRate:            Cell{Value: formatRate(r.FERMRate.Effective()), Overridden: r.FERMRate.Overridden},
			FERMCurAmount:       Cell{Value: formatAmount(p, r.FERMCurAmount)},
		})
	}
	return rows
}

func percentCell(p *message.Printer, f core.Field[decimal.Decimal]) Cell {
	return Cell{Value: formatPercent(p, f.Effective()), Overridden: f.Overridden}
}

func boolCell(f core.Field[bool]) Cell {
	v := f.Effective()
	c := Cell{Value: NotAvailable, Overridden: f.Overridden}
	if v != nil {
		c.Value = "No"
		if *v {
			c.Value = "Yes"
		}
	}
	return c
}

func stringCell(f core.Field[string]) Cell {
	v := f.Effective()
	c := Cell{Value: NotAvailable, Overridden: f.Overridden}
	if v != nil && strings.TrimSpace(*v) != "" {
		c.Value = *v
	}
	return c
}

// formatAmount renders money with thousands grouping and two decimals.
func formatAmount(p *message.Printer, d *decimal.Decimal) string {
	if d == nil {
		return NotAvailable
	}
	return p.Sprintf("%.2f", d.Round(2).InexactFloat64())
}

// formatPercent keeps enough precision for shares to visibly add up.
func formatPercent(p *message.Printer, d *decimal.Decimal) string {
	if d == nil {
		return NotAvailable
	}
	return p.Sprintf("%.3f", d.Round(3).InexactFloat64())
}

func formatRate(d *decimal.Decimal) string {
	if d == nil {
		return NotAvailable
	}
	return d.String()
}
