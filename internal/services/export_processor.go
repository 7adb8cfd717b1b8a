package services

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	"golang.org/x/sync/errgroup"

	"replenishment/internal/core"
	"replenishment/internal/sheets"
	"replenishment/internal/soa"
)

// ExportProcessorConfig holds configuration for the export processor
type ExportProcessorConfig struct {
	// BatchSize is the max number of periods exported per sweep (default: 10)
	BatchSize int

	// MaxRetries is the number of failed attempts before a period is marked
	// as errored (default: 3)
	MaxRetries int
}

// DefaultExportProcessorConfig returns sensible defaults
func DefaultExportProcessorConfig() ExportProcessorConfig {
	return ExportProcessorConfig{
		BatchSize:  10,
		MaxRetries: 3,
	}
}

// ExportSource is what the processor reads to rebuild a saved table.
type ExportSource interface {
	sheets.PeriodReader
	sheets.ContributionReader
	sheets.ExportTracker
}

// ExportProcessor computes saved scales and writes them to the sheet.
// It serves both the message-driven worker and the periodic sweep that
// recovers periods whose message was lost.
type ExportProcessor struct {
	source   ExportSource
	exporter sheets.ScaleExporter
	opts     soa.Options
	config   ExportProcessorConfig

	mu       sync.Mutex
	failures map[string]int
}

// NewExportProcessor creates a new export processor
func NewExportProcessor(source ExportSource, exporter sheets.ScaleExporter, opts soa.Options, config ExportProcessorConfig) *ExportProcessor {
	if config.BatchSize <= 0 {
		config.BatchSize = DefaultExportProcessorConfig().BatchSize
	}
	if config.MaxRetries <= 0 {
		config.MaxRetries = DefaultExportProcessorConfig().MaxRetries
	}
	return &ExportProcessor{
		source:   source,
		exporter: exporter,
		opts:     opts,
		config:   config,
		failures: make(map[string]int),
	}
}

// Export writes the current table of a period and records the outcome
// against version.
func (p *ExportProcessor) Export(ctx context.Context, periodKey string, version int64) error {
	if p.exporter == nil {
		return sheets.ErrExportDisabled
	}

	var (
		period  core.Period
		records []core.ContributionRecord
	)
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		var err error
		period, err = p.source.GetPeriod(gctx, periodKey)
		return err
	})
	g.Go(func() error {
		var err error
		records, err = p.source.ListContributions(gctx, periodKey)
		return err
	})
	if err := g.Wait(); err != nil {
		return p.handleFailure(ctx, periodKey, version, fmt.Errorf("read period %s: %w", periodKey, err))
	}

	table := soa.ComputeTableWith(records, period.TotalReplenishment(), p.opts)
	ref, err := p.exporter.ExportScale(ctx, period, table)
	if err != nil {
		return p.handleFailure(ctx, periodKey, version, fmt.Errorf("export scale: %w", err))
	}

	if err := p.source.MarkExported(ctx, periodKey, version); err != nil {
		// The sheet is already written; the next sweep rewrites it.
		slog.WarnContext(ctx, "Failed to mark period as exported",
			"period", periodKey, "version", version, "error", err)
	}
	p.resetFailures(periodKey)

	slog.InfoContext(ctx, "Exported scale",
		"period", periodKey,
		"version", version,
		"sheets_ref", ref)
	return nil
}

// Sweep exports up to BatchSize pending periods. It returns how many were
// exported successfully.
func (p *ExportProcessor) Sweep(ctx context.Context) (int, error) {
	if p.exporter == nil {
		slog.DebugContext(ctx, "No exporter configured, skipping export sweep")
		return 0, nil
	}

	pending, err := p.source.PendingExports(ctx, p.config.BatchSize)
	if err != nil {
		return 0, fmt.Errorf("list pending exports: %w", err)
	}
	if len(pending) == 0 {
		return 0, nil
	}

	slog.DebugContext(ctx, "Processing export batch", "count", len(pending))

	exported := 0
	for _, item := range pending {
		if err := ctx.Err(); err != nil {
			return exported, err
		}
		if err := p.Export(ctx, item.PeriodKey, item.Version); err != nil {
			slog.WarnContext(ctx, "Export failed",
				"period", item.PeriodKey,
				"version", item.Version,
				"error", err)
			continue
		}
		exported++
	}
	return exported, nil
}

// handleFailure counts a failed attempt and marks the period as errored once
// MaxRetries is reached. It returns err unchanged.
func (p *ExportProcessor) handleFailure(ctx context.Context, periodKey string, version int64, err error) error {
	p.mu.Lock()
	p.failures[periodKey]++
	attempts := p.failures[periodKey]
	p.mu.Unlock()

	slog.WarnContext(ctx, "Export attempt failed",
		"period", periodKey,
		"attempt", attempts,
		"error", err)

	if attempts >= p.config.MaxRetries {
		if markErr := p.source.MarkExportError(ctx, periodKey, version); markErr != nil {
			slog.ErrorContext(ctx, "Failed to mark export error",
				"period", periodKey, "error", markErr)
		}
		slog.ErrorContext(ctx, "Export failed permanently after max retries",
			"period", periodKey,
			"version", version,
			"attempts", attempts)
		p.resetFailures(periodKey)
	}
	return err
}

func (p *ExportProcessor) resetFailures(periodKey string) {
	p.mu.Lock()
	delete(p.failures, periodKey)
	p.mu.Unlock()
}
