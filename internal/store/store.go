// Package store persists the pipeline's mutable state: the geocode cache,
// the fetch ledger, the verification report, the province cache and run
// history. Every write is durable before it returns so an interrupted run
// resumes from what is already recorded.
package store

import (
	"context"
	"encoding/json"
	"sort"

	"github.com/rotisserie/eris"

	"github.com/sells-group/marketmap-cli/internal/model"
)

// Bucket names shared by every backend.
const (
	BucketGeocode  = "geocache"
	BucketLedger   = "ledger"
	BucketReport   = "verify_report"
	BucketProvince = "provinces"
	BucketRuns     = "runs"
)

// Buckets lists every bucket in a stable order.
func Buckets() []string {
	return []string{BucketGeocode, BucketLedger, BucketReport, BucketProvince, BucketRuns}
}

// Record is one key/value pair of a bucket.
type Record struct {
	Key   string
	Value json.RawMessage
}

// Backend is the key/value contract each driver implements. List returns
// records in first-insertion order; Put on an existing key keeps its
// position.
type Backend interface {
	Get(ctx context.Context, bucket, key string) (json.RawMessage, error)
	Put(ctx context.Context, bucket, key string, value json.RawMessage) error
	List(ctx context.Context, bucket string) ([]Record, error)
	Migrate(ctx context.Context) error
	Close() error
}

// Store is the typed view of a Backend used by the pipeline phases.
type Store struct {
	b Backend
}

// New wraps a backend.
func New(b Backend) *Store {
	return &Store{b: b}
}

// Migrate prepares the backend (creates tables, directories).
func (s *Store) Migrate(ctx context.Context) error {
	return s.b.Migrate(ctx)
}

// Close releases the backend.
func (s *Store) Close() error {
	return s.b.Close()
}

func getJSON[T any](ctx context.Context, b Backend, bucket, key string) (*T, error) {
	raw, err := b.Get(ctx, bucket, key)
	if err != nil {
		return nil, err
	}
	if raw == nil || string(raw) == "null" {
		return nil, nil
	}
	var v T
	if err := json.Unmarshal(raw, &v); err != nil {
		return nil, eris.Wrapf(err, "store: decode %s/%s", bucket, key)
	}
	return &v, nil
}

func putJSON(ctx context.Context, b Backend, bucket, key string, v any) error {
	raw, err := json.Marshal(v)
	if err != nil {
		return eris.Wrapf(err, "store: encode %s/%s", bucket, key)
	}
	return b.Put(ctx, bucket, key, raw)
}

// Geocode returns the cached coordinate for key, or nil on a miss.
func (s *Store) Geocode(ctx context.Context, key string) (*model.Coordinate, error) {
	return getJSON[model.Coordinate](ctx, s.b, BucketGeocode, key)
}

// PutGeocode caches a coordinate.
func (s *Store) PutGeocode(ctx context.Context, key string, c model.Coordinate) error {
	return putJSON(ctx, s.b, BucketGeocode, key, c)
}

// LedgerRecord is one ledger entry together with its source URL.
type LedgerRecord struct {
	URL   string
	Entry model.LedgerEntry
}

// LedgerEntry returns the ledger entry for url, or nil.
func (s *Store) LedgerEntry(ctx context.Context, url string) (*model.LedgerEntry, error) {
	return getJSON[model.LedgerEntry](ctx, s.b, BucketLedger, url)
}

// PutLedgerEntry records the fetch outcome for url.
func (s *Store) PutLedgerEntry(ctx context.Context, url string, e model.LedgerEntry) error {
	return putJSON(ctx, s.b, BucketLedger, url, e)
}

// Ledger returns every ledger entry in ledger order.
func (s *Store) Ledger(ctx context.Context) ([]LedgerRecord, error) {
	recs, err := s.b.List(ctx, BucketLedger)
	if err != nil {
		return nil, err
	}
	out := make([]LedgerRecord, 0, len(recs))
	for _, r := range recs {
		var e model.LedgerEntry
		if err := json.Unmarshal(r.Value, &e); err != nil {
			return nil, eris.Wrapf(err, "store: decode ledger entry %s", r.Key)
		}
		out = append(out, LedgerRecord{URL: r.Key, Entry: e})
	}
	return out, nil
}

// Report returns the raw verification result stored for url, or nil.
func (s *Store) Report(ctx context.Context, url string) (json.RawMessage, error) {
	return s.b.Get(ctx, BucketReport, url)
}

// PutReport stores a verification result for url.
func (s *Store) PutReport(ctx context.Context, url string, raw json.RawMessage) error {
	return s.b.Put(ctx, BucketReport, url, raw)
}

// Reports returns every stored verification result in report order.
func (s *Store) Reports(ctx context.Context) ([]Record, error) {
	return s.b.List(ctx, BucketReport)
}

// Province returns the cached reverse-geocoded province for key. A cached
// miss is reported as ("", true).
func (s *Store) Province(ctx context.Context, key string) (string, bool, error) {
	raw, err := s.b.Get(ctx, BucketProvince, key)
	if err != nil || raw == nil {
		return "", false, err
	}
	var p *string
	if err := json.Unmarshal(raw, &p); err != nil {
		return "", false, eris.Wrapf(err, "store: decode province %s", key)
	}
	if p == nil {
		return "", true, nil
	}
	return *p, true, nil
}

// PutProvince caches a reverse-geocoded province. An empty province is
// stored as null.
func (s *Store) PutProvince(ctx context.Context, key, province string) error {
	var v *string
	if province != "" {
		v = &province
	}
	return putJSON(ctx, s.b, BucketProvince, key, v)
}

// SaveRun records a pipeline run.
func (s *Store) SaveRun(ctx context.Context, run *model.Run) error {
	return putJSON(ctx, s.b, BucketRuns, run.ID, run)
}

// Runs returns the most recent runs, newest first. limit <= 0 returns all.
func (s *Store) Runs(ctx context.Context, limit int) ([]model.Run, error) {
	recs, err := s.b.List(ctx, BucketRuns)
	if err != nil {
		return nil, err
	}
	runs := make([]model.Run, 0, len(recs))
	for _, r := range recs {
		var run model.Run
		if err := json.Unmarshal(r.Value, &run); err != nil {
			return nil, eris.Wrapf(err, "store: decode run %s", r.Key)
		}
		runs = append(runs, run)
	}
	sort.SliceStable(runs, func(i, j int) bool {
		return runs[i].StartedAt.After(runs[j].StartedAt)
	})
	if limit > 0 && len(runs) > limit {
		runs = runs[:limit]
	}
	return runs, nil
}
