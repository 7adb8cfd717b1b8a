package memory

import (
	"bufio"
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/shopspring/decimal"

	"replenishment/internal/core"
	"replenishment/internal/sheets"
)

type periodState struct {
	period   core.Period
	records  []core.ContributionRecord
	version  int64
	exported int64
	savedAt  time.Time
}

// Store is an in-process backend for development and tests.
type Store struct {
	mu      sync.Mutex
	periods map[string]*periodState
}

func New(periods []core.Period, records map[string][]core.ContributionRecord) *Store {
	s := &Store{periods: make(map[string]*periodState)}
	for _, p := range periods {
		st := &periodState{period: p}
		for i, r := range records[p.Key()] {
			r = r.Clone()
			if r.InitialID == "" {
				r.InitialID = strconv.Itoa(i + 1)
			}
			st.records = append(st.records, r)
		}
		s.periods[p.Key()] = st
	}
	return s
}

// NewFromFiles seeds the store from seed_periods.txt and
// seed_contributions.txt under base, falling back to a small built-in table.
//
// seed_periods.txt:        2024-2026 1000000 0
// seed_contributions.txt:  2024-2026;USA;United States;22[;avg_ir;ferm_cur;ferm_rate]
func NewFromFiles(base string) *Store {
	periods := parsePeriods(readLines(filepath.Join(base, "seed_periods.txt")))
	records := parseContributions(readLines(filepath.Join(base, "seed_contributions.txt")))
	if len(periods) == 0 {
		periods, records = defaultSeed()
	}
	return New(periods, records)
}

func (s *Store) ListPeriods(_ context.Context) ([]core.Period, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]core.Period, 0, len(s.periods))
	for _, st := range s.periods {
		out = append(out, st.period)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].StartYear > out[j].StartYear })
	return out, nil
}

func (s *Store) GetPeriod(_ context.Context, key string) (core.Period, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	st, ok := s.periods[key]
	if !ok {
		return core.Period{}, fmt.Errorf("%w: %s", core.ErrPeriodNotFound, key)
	}
	return st.period, nil
}

func (s *Store) UpsertPeriod(_ context.Context, p core.Period) error {
	if err := p.Validate(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if st, ok := s.periods[p.Key()]; ok {
		p.ExportStatus = st.period.ExportStatus
		st.period = p
		return nil
	}
	s.periods[p.Key()] = &periodState{period: p}
	return nil
}

func (s *Store) ListContributions(_ context.Context, periodKey string) ([]core.ContributionRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	st, ok := s.periods[periodKey]
	if !ok {
		return nil, fmt.Errorf("%w: %s", core.ErrPeriodNotFound, periodKey)
	}
	return core.CloneRecords(st.records), nil
}

func (s *Store) ReplaceContributions(_ context.Context, periodKey string, records []core.ContributionRecord) (int64, error) {
	for _, r := range records {
		if err := r.Validate(); err != nil {
			return 0, fmt.Errorf("record %s: %w", r.ISO3, err)
		}
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	st, ok := s.periods[periodKey]
	if !ok {
		return 0, fmt.Errorf("%w: %s", core.ErrPeriodNotFound, periodKey)
	}

	next := core.CloneRecords(records)
	maxID := 0
	for _, r := range st.records {
		if n, err := strconv.Atoi(r.InitialID); err == nil && n > maxID {
			maxID = n
		}
	}
	for i := range next {
		next[i].RowID = ""
		if next[i].InitialID == "" {
			maxID++
			next[i].InitialID = strconv.Itoa(maxID)
		}
	}

	st.records = next
	st.version++
	st.savedAt = time.Now().UTC()
	st.period.ExportStatus = core.ExportPending
	return st.version, nil
}

func (s *Store) PendingExports(_ context.Context, limit int) ([]sheets.PendingExport, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []sheets.PendingExport
	for key, st := range s.periods {
		if st.version > st.exported && st.period.ExportStatus == core.ExportPending {
			out = append(out, sheets.PendingExport{PeriodKey: key, Version: st.version, SavedAt: st.savedAt})
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].SavedAt.Before(out[j].SavedAt) })
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (s *Store) MarkExported(_ context.Context, periodKey string, version int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	st, ok := s.periods[periodKey]
	if !ok {
		return fmt.Errorf("%w: %s", core.ErrPeriodNotFound, periodKey)
	}
	if version < st.version {
		return nil
	}
	st.exported = version
	st.period.ExportStatus = core.ExportSynced
	return nil
}

func (s *Store) MarkExportError(_ context.Context, periodKey string, version int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	st, ok := s.periods[periodKey]
	if !ok {
		return fmt.Errorf("%w: %s", core.ErrPeriodNotFound, periodKey)
	}
	if version == st.version {
		st.period.ExportStatus = core.ExportError
	}
	return nil
}

func readLines(path string) []string {
	f, err := os.Open(path)
	if err != nil {
		return nil
	}
	defer f.Close()
	var out []string
	sc := bufio.NewScanner(f)
	for sc.Scan() {
		line := strings.TrimSpace(sc.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		out = append(out, line)
	}
	return out
}

func parsePeriods(lines []string) []core.Period {
	var out []core.Period
	for _, line := range lines {
		fields := strings.Fields(line)
		if len(fields) < 2 {
			continue
		}
		start, end, err := core.ParsePeriodKey(fields[0])
		if err != nil {
			continue
		}
		amount, err := core.ParseDecimal(fields[1])
		if err != nil {
			continue
		}
		p := core.Period{StartYear: start, EndYear: end, Amount: amount}
		if len(fields) > 2 {
			if unused, err := core.ParseDecimal(fields[2]); err == nil {
				p.PreviouslyUnused = unused
			}
		}
		if p.Validate() == nil {
			out = append(out, p)
		}
	}
	return out
}

func parseContributions(lines []string) map[string][]core.ContributionRecord {
	out := make(map[string][]core.ContributionRecord)
	for _, line := range lines {
		parts := strings.Split(line, ";")
		if len(parts) < 4 {
			continue
		}
		for i := range parts {
			parts[i] = strings.TrimSpace(parts[i])
		}
		un, err := core.ParseDecimal(parts[3])
		if err != nil {
			continue
		}
		r := core.ContributionRecord{
			CountryID: int64(len(out[parts[0]]) + 1),
			ISO3:      strings.ToUpper(parts[1]),
			Country:   parts[2],
			UnSoA:     core.Value(un),
		}
		if len(parts) > 4 {
			if ir, err := core.ParseDecimal(parts[4]); err == nil {
				r.AvgIR = core.Value(ir)
			}
		}
		if len(parts) > 5 && parts[5] != "" {
			r.FERMCur = core.Value(parts[5])
		}
		if len(parts) > 6 {
			if rate, err := core.ParseDecimal(parts[6]); err == nil {
				r.FERMRate = core.Value(rate)
			}
		}
		if r.Validate() == nil {
			out[parts[0]] = append(out[parts[0]], r)
		}
	}
	return out
}

func defaultSeed() ([]core.Period, map[string][]core.ContributionRecord) {
	p := core.Period{StartYear: 2024, EndYear: 2026, Amount: decimal.NewFromInt(1_000_000)}
	records := parseContributions([]string{
		"2024-2026;USA;United States of America;22",
		"2024-2026;FRA;France;5;2.1;Euro;0.92",
		"2024-2026;DEU;Germany;6;2.4;Euro;0.92",
		"2024-2026;JPN;Japan;8.033;0.8;Yen;150.2",
		"2024-2026;ARG;Argentina;0.719;95",
	})
	return []core.Period{p}, records
}
