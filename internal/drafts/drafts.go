// Package drafts keeps in-progress scale edits so an operator can recover them
// after a reload. A draft is the whole working set; it either replaces the
// server data or is discarded, it is never merged.
package drafts

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/vmihailenco/msgpack/v5"

	"replenishment/internal/core"
)

var (
	ErrNotFound   = errors.New("draft not found")
	ErrInvalidKey = errors.New("invalid draft key")
)

// Key addresses a draft by record type, period and table variant.
type Key struct {
	RecordType string `json:"record_type"`
	Period     string `json:"period"`
	TableType  string `json:"table_type"`
}

func (k Key) String() string {
	return k.RecordType + "/" + k.Period + "/" + k.TableType
}

func (k Key) Validate() error {
	for _, part := range []string{k.RecordType, k.Period, k.TableType} {
		if strings.TrimSpace(part) == "" || strings.Contains(part, "/") {
			return fmt.Errorf("%w: %q", ErrInvalidKey, k.String())
		}
	}
	return nil
}

// ParseKey splits "<record_type>/<period>/<table_type>".
func ParseKey(s string) (Key, error) {
	parts := strings.Split(s, "/")
	if len(parts) != 3 {
		return Key{}, fmt.Errorf("%w: %q", ErrInvalidKey, s)
	}
	k := Key{RecordType: parts[0], Period: parts[1], TableType: parts[2]}
	return k, k.Validate()
}

// Draft is a saved working set.
type Draft struct {
	Key     Key                       `json:"key"`
	Records []core.ContributionRecord `json:"records"`
	SavedAt time.Time                 `json:"saved_at"`
}

// Store persists encoded drafts.
type Store interface {
	PutDraft(ctx context.Context, key string, data []byte, savedAt time.Time) error
	GetDraft(ctx context.Context, key string) ([]byte, time.Time, error)
	DeleteDraft(ctx context.Context, key string) error
	PurgeDrafts(ctx context.Context, olderThan time.Time) (int, error)
}

// Manager encodes drafts and compares them against server data.
type Manager struct {
	store Store
	now   func() time.Time
}

func NewManager(store Store) *Manager {
	return &Manager{store: store, now: time.Now}
}

// Save replaces the draft stored under key.
func (m *Manager) Save(ctx context.Context, key Key, records []core.ContributionRecord) (Draft, error) {
	if err := key.Validate(); err != nil {
		return Draft{}, err
	}
	d := Draft{Key: key, Records: core.CloneRecords(records), SavedAt: m.now().UTC()}
	data, err := Encode(d.Records)
	if err != nil {
		return Draft{}, err
	}
	if err := m.store.PutDraft(ctx, key.String(), data, d.SavedAt); err != nil {
		return Draft{}, fmt.Errorf("put draft: %w", err)
	}
	slog.DebugContext(ctx, "Draft saved", "key", key.String(), "records", len(records), "bytes", len(data))
	return d, nil
}

// Load returns the draft under key or ErrNotFound.
func (m *Manager) Load(ctx context.Context, key Key) (Draft, error) {
	if err := key.Validate(); err != nil {
		return Draft{}, err
	}
	data, savedAt, err := m.store.GetDraft(ctx, key.String())
	if err != nil {
		return Draft{}, err
	}
	records, err := Decode(data)
	if err != nil {
		return Draft{}, err
	}
	return Draft{Key: key, Records: records, SavedAt: savedAt}, nil
}

// Discard deletes the draft. Missing drafts are not an error.
func (m *Manager) Discard(ctx context.Context, key Key) error {
	if err := key.Validate(); err != nil {
		return err
	}
	if err := m.store.DeleteDraft(ctx, key.String()); err != nil && !errors.Is(err, ErrNotFound) {
		return fmt.Errorf("delete draft: %w", err)
	}
	return nil
}

// Recovery is the outcome of checking a draft against fresh server data.
type Recovery struct {
	Draft         *Draft `json:"draft,omitempty"`
	Diff          Diff   `json:"diff"`
	NeedsDecision bool   `json:"needs_decision"`
}

// Recover loads the draft under key and diffs it against server. A draft
// identical to the server data is dropped and reported as nothing to recover.
func (m *Manager) Recover(ctx context.Context, key Key, server []core.ContributionRecord) (Recovery, error) {
	d, err := m.Load(ctx, key)
	if errors.Is(err, ErrNotFound) {
		return Recovery{}, nil
	}
	if err != nil {
		// An unreadable draft is stale data, not a failure of the caller.
		slog.WarnContext(ctx, "Discarding unreadable draft", "key", key.String(), "error", err)
		_ = m.Discard(ctx, key)
		return Recovery{}, nil
	}

	diff := Compare(d.Records, server)
	if diff.Empty() {
		_ = m.Discard(ctx, key)
		return Recovery{Diff: diff}, nil
	}
	return Recovery{Draft: &d, Diff: diff, NeedsDecision: true}, nil
}

// PurgeStale removes drafts saved more than maxAge ago.
func (m *Manager) PurgeStale(ctx context.Context, maxAge time.Duration) (int, error) {
	n, err := m.store.PurgeDrafts(ctx, m.now().UTC().Add(-maxAge))
	if err != nil {
		return 0, fmt.Errorf("purge drafts: %w", err)
	}
	if n > 0 {
		slog.InfoContext(ctx, "Stale drafts purged", "count", n, "max_age", maxAge)
	}
	return n, nil
}

// Encode serializes records with msgpack using their json field names.
func Encode(records []core.ContributionRecord) ([]byte, error) {
	var buf bytes.Buffer
	enc := msgpack.NewEncoder(&buf)
	enc.SetCustomStructTag("json")
	if err := enc.Encode(records); err != nil {
		return nil, fmt.Errorf("encode draft: %w", err)
	}
	return buf.Bytes(), nil
}

func Decode(data []byte) ([]core.ContributionRecord, error) {
	dec := msgpack.NewDecoder(bytes.NewReader(data))
	dec.SetCustomStructTag("json")
	var records []core.ContributionRecord
	if err := dec.Decode(&records); err != nil {
		return nil, fmt.Errorf("decode draft: %w", err)
	}
	return records, nil
}
