package sheets

import (
	"context"
	"errors"
	"time"

	"replenishment/internal/core"
)

// ErrExportDisabled is returned by exporters that are not configured.
var ErrExportDisabled = errors.New("sheet export disabled")

// Ports for outbound adapters.
type (
	PeriodReader interface {
		ListPeriods(ctx context.Context) ([]core.Period, error)
		// GetPeriod returns core.ErrPeriodNotFound for an unknown key.
		GetPeriod(ctx context.Context, key string) (core.Period, error)
	}

	PeriodWriter interface {
		UpsertPeriod(ctx context.Context, p core.Period) error
	}

	ContributionReader interface {
		// ListContributions returns the persisted plain records of a period.
		ListContributions(ctx context.Context, periodKey string) ([]core.ContributionRecord, error)
	}

	// ContributionWriter replaces a period's records in a single transaction
	// and marks the period as pending export. It returns the new version.
	ContributionWriter interface {
		ReplaceContributions(ctx context.Context, periodKey string, records []core.ContributionRecord) (version int64, err error)
	}

	// ExportTracker records the export state of saved periods.
	ExportTracker interface {
		PendingExports(ctx context.Context, limit int) ([]PendingExport, error)
		MarkExported(ctx context.Context, periodKey string, version int64) error
		MarkExportError(ctx context.Context, periodKey string, version int64) error
	}

	// ScaleExporter writes a computed scale table to an external sheet.
	ScaleExporter interface {
		ExportScale(ctx context.Context, period core.Period, records []core.ContributionRecord) (ref string, err error)
	}
)

// PendingExport is a saved period waiting to be exported.
type PendingExport struct {
	PeriodKey string
	Version   int64
	SavedAt   time.Time
}
