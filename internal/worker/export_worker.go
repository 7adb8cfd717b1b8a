package worker

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"replenishment/internal/amqp"
	"replenishment/internal/sheets"
)

// Exporter writes a saved period to the sheet and reports how many pending
// periods a sweep exported.
type Exporter interface {
	Export(ctx context.Context, periodKey string, version int64) error
	Sweep(ctx context.Context) (int, error)
}

// ExportWorker handles scale saved messages from AMQP by exporting the
// saved period to Google Sheets.
type ExportWorker struct {
	exporter Exporter
}

func NewExportWorker(exporter Exporter) *ExportWorker {
	return &ExportWorker{exporter: exporter}
}

// HandleScaleSaved processes a single scale saved message from AMQP
func (w *ExportWorker) HandleScaleSaved(ctx context.Context, msg *amqp.ScaleSavedMessage) error {
	slog.InfoContext(ctx, "Processing scale saved message",
		"period", msg.Period,
		"version", msg.Version,
		"timestamp", msg.Timestamp)

	err := w.exporter.Export(ctx, msg.Period, msg.Version)
	if errors.Is(err, sheets.ErrExportDisabled) {
		slog.WarnContext(ctx, "No exporter configured, dropping scale saved message",
			"period", msg.Period)
		return nil
	}
	if err != nil {
		return fmt.Errorf("export period %s: %w", msg.Period, err)
	}
	return nil
}

// StartupExportCheck exports periods saved while the worker was down.
func (w *ExportWorker) StartupExportCheck(ctx context.Context) error {
	n, err := w.exporter.Sweep(ctx)
	if err != nil {
		return fmt.Errorf("startup export check: %w", err)
	}
	if n == 0 {
		slog.InfoContext(ctx, "No pending exports found on startup")
		return nil
	}
	slog.InfoContext(ctx, "Startup export check completed", "exported", n)
	return nil
}
