package services

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"golang.org/x/sync/errgroup"

	"replenishment/internal/core"
	"replenishment/internal/drafts"
	"replenishment/internal/sheets"
	"replenishment/internal/soa"
)

// ErrDraftsDisabled is returned by draft operations when no draft store is wired.
var ErrDraftsDisabled = errors.New("draft storage not configured")

// Repository is the persistence surface the scale service needs.
type Repository interface {
	sheets.PeriodReader
	sheets.PeriodWriter
	sheets.ContributionReader
	sheets.ContributionWriter
}

// Publisher announces saved scales to the export worker.
type Publisher interface {
	PublishScaleSaved(ctx context.Context, period string, version int64) error
}

// Table is a computed working set together with its period.
type Table struct {
	Period  core.Period               `json:"period"`
	Records []core.ContributionRecord `json:"records"`
}

// SaveResult reports the version written by Save.
type SaveResult struct {
	Period    string `json:"period"`
	Version   int64  `json:"version"`
	Published bool   `json:"published"`
}

// ScaleService orchestrates load, edit, save and publish of a period's scale.
// Working sets are owned by the caller; every operation returns a new one.
type ScaleService struct {
	repo      Repository
	drafts    *drafts.Manager
	publisher Publisher
	opts      soa.Options
}

func NewScaleService(repo Repository, draftManager *drafts.Manager, publisher Publisher, opts soa.Options) *ScaleService {
	return &ScaleService{
		repo:      repo,
		drafts:    draftManager,
		publisher: publisher,
		opts:      opts,
	}
}

// Periods lists every known replenishment period, newest first.
func (s *ScaleService) Periods(ctx context.Context) ([]core.Period, error) {
	periods, err := s.repo.ListPeriods(ctx)
	if err != nil {
		return nil, fmt.Errorf("list periods: %w", err)
	}
	return periods, nil
}

// UpsertPeriod creates or updates a period's budget figures.
func (s *ScaleService) UpsertPeriod(ctx context.Context, p core.Period) error {
	if err := p.Validate(); err != nil {
		return err
	}
	if err := s.repo.UpsertPeriod(ctx, p); err != nil {
		return fmt.Errorf("upsert period %s: %w", p.Key(), err)
	}
	slog.InfoContext(ctx, "Period saved",
		"period", p.Key(),
		"amount", p.Amount.String(),
		"previously_unused", p.PreviouslyUnused.String())
	return nil
}

// Load reads the persisted records of a period and computes the table.
func (s *ScaleService) Load(ctx context.Context, periodKey string) (Table, error) {
	var (
		period  core.Period
		records []core.ContributionRecord
	)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		p, err := s.repo.GetPeriod(gctx, periodKey)
		if err != nil {
			return fmt.Errorf("get period: %w", err)
		}
		period = p
		return nil
	})
	g.Go(func() error {
		r, err := s.repo.ListContributions(gctx, periodKey)
		if err != nil {
			return fmt.Errorf("list contributions: %w", err)
		}
		records = r
		return nil
	})
	if err := g.Wait(); err != nil {
		return Table{}, err
	}

	soa.AssignRowIDs(records)
	return s.table(period, records), nil
}

// Compute recomputes a caller-held working set.
func (s *ScaleService) Compute(ctx context.Context, periodKey string, records []core.ContributionRecord) (Table, error) {
	period, err := s.workingPeriod(ctx, periodKey, records)
	if err != nil {
		return Table{}, err
	}
	return s.table(period, records), nil
}

// Edit applies one cell edit and recomputes. On error the caller's working
// set is still valid and untouched.
func (s *ScaleService) Edit(ctx context.Context, periodKey string, records []core.ContributionRecord, e soa.Edit) (Table, error) {
	period, err := s.workingPeriod(ctx, periodKey, records)
	if err != nil {
		return Table{}, err
	}
	next, err := soa.ApplyEdit(records, e)
	if err != nil {
		return Table{}, err
	}
	slog.DebugContext(ctx, "Cell edited",
		"period", periodKey,
		"row", e.Row,
		"field", e.Field.String())
	return s.table(period, next), nil
}

// Revert drops the override of one cell and recomputes.
func (s *ScaleService) Revert(ctx context.Context, periodKey string, records []core.ContributionRecord, row int, field soa.FieldName) (Table, error) {
	period, err := s.workingPeriod(ctx, periodKey, records)
	if err != nil {
		return Table{}, err
	}
	next, err := soa.Revert(records, row, field)
	if err != nil {
		return Table{}, err
	}
	return s.table(period, next), nil
}

// Sort orders the working set. Computed values do not depend on order, so
// the table is recomputed only to pick up the current period budget.
func (s *ScaleService) Sort(ctx context.Context, periodKey string, records []core.ContributionRecord, field soa.FieldName, dir soa.Direction) (Table, error) {
	period, err := s.workingPeriod(ctx, periodKey, records)
	if err != nil {
		return Table{}, err
	}
	return s.table(period, soa.Sort(records, field, dir)), nil
}

// AddRow appends a country with a zero scale of assessment.
func (s *ScaleService) AddRow(ctx context.Context, periodKey string, records []core.ContributionRecord, countryID int64, country, iso3 string) (Table, error) {
	period, err := s.workingPeriod(ctx, periodKey, records)
	if err != nil {
		return Table{}, err
	}
	next, err := soa.AddRecord(records, countryID, country, iso3)
	if err != nil {
		return Table{}, err
	}
	return s.table(period, next), nil
}

// RemoveRow hides a row from the working set; it is dropped on save.
func (s *ScaleService) RemoveRow(ctx context.Context, periodKey string, records []core.ContributionRecord, row int) (Table, error) {
	period, err := s.workingPeriod(ctx, periodKey, records)
	if err != nil {
		return Table{}, err
	}
	next, err := soa.RemoveRecord(records, row)
	if err != nil {
		return Table{}, err
	}
	return s.table(period, next), nil
}

// Save flattens overrides into plain values and replaces the period's
// records in one transaction. Publishing the saved event is best effort:
// the export sweep picks up periods whose message was lost.
func (s *ScaleService) Save(ctx context.Context, periodKey string, records []core.ContributionRecord) (SaveResult, error) {
	if _, err := s.workingPeriod(ctx, periodKey, records); err != nil {
		return SaveResult{}, err
	}

	plain := soa.StripOverrides(records)
	seen := make(map[string]bool, len(plain))
	for _, r := range plain {
		if err := r.Validate(); err != nil {
			return SaveResult{}, fmt.Errorf("record %s: %w", r.ISO3, err)
		}
		if err := soa.ValidateRecord(r); err != nil {
			return SaveResult{}, fmt.Errorf("record %s: %w", r.ISO3, err)
		}
		iso := strings.ToUpper(strings.TrimSpace(r.ISO3))
		if seen[iso] {
			return SaveResult{}, fmt.Errorf("%w: %s", core.ErrDuplicateRecord, iso)
		}
		seen[iso] = true
	}

	version, err := s.repo.ReplaceContributions(ctx, periodKey, plain)
	if err != nil {
		return SaveResult{}, fmt.Errorf("save contributions: %w", err)
	}
	slog.InfoContext(ctx, "Scale saved",
		"period", periodKey,
		"version", version,
		"records", len(plain))

	res := SaveResult{Period: periodKey, Version: version}
	if err := s.publishSaved(ctx, periodKey, version); err != nil {
		slog.ErrorContext(ctx, "Failed to publish scale saved message",
			"period", periodKey,
			"version", version,
			"error", err)
	} else {
		res.Published = s.publisher != nil
	}
	return res, nil
}

// Summary loads and computes a period and aggregates the result.
func (s *ScaleService) Summary(ctx context.Context, periodKey string) (core.ScaleSummary, error) {
	t, err := s.Load(ctx, periodKey)
	if err != nil {
		return core.ScaleSummary{}, err
	}
	return core.Summarize(t.Period, t.Records), nil
}

// SaveDraft stores the working set under key.
func (s *ScaleService) SaveDraft(ctx context.Context, key drafts.Key, records []core.ContributionRecord) (drafts.Draft, error) {
	if err := s.draftsEnabled(); err != nil {
		return drafts.Draft{}, err
	}
	if err := core.CheckRecords(records); err != nil {
		return drafts.Draft{}, err
	}
	return s.drafts.Save(ctx, key, records)
}

// LoadDraft returns the draft stored under key.
func (s *ScaleService) LoadDraft(ctx context.Context, key drafts.Key) (drafts.Draft, error) {
	if err := s.draftsEnabled(); err != nil {
		return drafts.Draft{}, err
	}
	return s.drafts.Load(ctx, key)
}

// DiscardDraft deletes the draft stored under key.
func (s *ScaleService) DiscardDraft(ctx context.Context, key drafts.Key) error {
	if err := s.draftsEnabled(); err != nil {
		return err
	}
	return s.drafts.Discard(ctx, key)
}

// RecoverDraft compares the draft under key with the freshly computed
// server table of its period.
func (s *ScaleService) RecoverDraft(ctx context.Context, key drafts.Key) (drafts.Recovery, error) {
	if err := s.draftsEnabled(); err != nil {
		return drafts.Recovery{}, err
	}
	if err := key.Validate(); err != nil {
		return drafts.Recovery{}, err
	}
	t, err := s.Load(ctx, key.Period)
	if err != nil {
		return drafts.Recovery{}, err
	}
	return s.drafts.Recover(ctx, key, t.Records)
}

func (s *ScaleService) draftsEnabled() error {
	if s.drafts == nil {
		return ErrDraftsDisabled
	}
	return nil
}

func (s *ScaleService) period(ctx context.Context, key string) (core.Period, error) {
	if _, _, err := core.ParsePeriodKey(key); err != nil {
		return core.Period{}, err
	}
	p, err := s.repo.GetPeriod(ctx, key)
	if err != nil {
		return core.Period{}, fmt.Errorf("get period: %w", err)
	}
	return p, nil
}

// workingPeriod rejects a caller-held working set with out of range numbers
// before anything computes with it, then resolves the period.
func (s *ScaleService) workingPeriod(ctx context.Context, key string, records []core.ContributionRecord) (core.Period, error) {
	if err := core.CheckRecords(records); err != nil {
		return core.Period{}, err
	}
	return s.period(ctx, key)
}

func (s *ScaleService) table(p core.Period, records []core.ContributionRecord) Table {
	return Table{
		Period:  p,
		Records: soa.ComputeTableWith(records, p.TotalReplenishment(), s.opts),
	}
}

func (s *ScaleService) publishSaved(ctx context.Context, period string, version int64) error {
	if s.publisher == nil {
		slog.WarnContext(ctx, "AMQP client not available, skipping scale saved message")
		return nil
	}
	return s.publisher.PublishScaleSaved(ctx, period, version)
}
