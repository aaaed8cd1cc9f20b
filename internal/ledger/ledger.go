// Package ledger downloads every distinct source URL once and records the
// outcome in the fetch ledger, persisting after each URL so an interrupted
// run resumes where it stopped.
package ledger

import (
	"context"
	"net/http"
	"os"
	"path/filepath"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/marketmap-cli/internal/dataset"
	"github.com/sells-group/marketmap-cli/internal/fetcher"
	"github.com/sells-group/marketmap-cli/internal/model"
	"github.com/sells-group/marketmap-cli/internal/progress"
	"github.com/sells-group/marketmap-cli/internal/resilience"
)

// Store is the ledger persistence the runner needs.
type Store interface {
	LedgerEntry(ctx context.Context, url string) (*model.LedgerEntry, error)
	PutLedgerEntry(ctx context.Context, url string, e model.LedgerEntry) error
}

// Options controls a fetch run.
type Options struct {
	// Force re-downloads URLs already recorded as ok.
	Force bool
}

// Summary counts what a fetch run did.
type Summary struct {
	URLs       int `json:"urls"`
	Downloaded int `json:"downloaded"`
	Skipped    int `json:"skipped"`
	Failed     int `json:"failed"`
}

// Runner executes the fetch phase.
type Runner struct {
	store    Store
	fetcher  fetcher.Fetcher
	pacer    *resilience.Pacer
	dir      string
	now      func() time.Time
	progress progress.Factory
}

// NewRunner creates a Runner writing artifacts into dir.
func NewRunner(st Store, f fetcher.Fetcher, pacer *resilience.Pacer, dir string) *Runner {
	return &Runner{
		store:   st,
		fetcher: f,
		pacer:   pacer,
		dir:     dir,
		now:     time.Now,
	}
}

// WithProgress draws a progress bar while fetching.
func (r *Runner) WithProgress(f progress.Factory) *Runner {
	r.progress = f
	return r
}

// WithClock overrides the clock used for the downloaded date.
func (r *Runner) WithClock(now func() time.Time) *Runner {
	r.now = now
	return r
}

// Run fetches the distinct source URLs of rows in first-seen order.
func (r *Runner) Run(ctx context.Context, rows []*model.Row, opts Options) (*Summary, error) {
	sources := model.GroupBySource(rows)
	sum := &Summary{URLs: len(sources)}
	log := zap.L().With(zap.String("phase", "fetch"))
	log.Info("ledger: starting fetch", zap.Int("urls", len(sources)), zap.Int("rows", len(rows)))

	if err := os.MkdirAll(r.dir, 0o755); err != nil {
		return nil, eris.Wrap(err, "ledger: create sources dir")
	}

	bar := progress.Start(r.progress, len(sources), "fetch ")
	defer bar.Finish()

	for _, src := range sources {
		if err := ctx.Err(); err != nil {
			return sum, eris.Wrap(err, "ledger: interrupted")
		}
		bar.Increment()

		file := FileName(src.URL)
		path := filepath.Join(r.dir, file)

		if !opts.Force && dataset.Exists(path) {
			prev, err := r.store.LedgerEntry(ctx, src.URL)
			if err != nil {
				return sum, eris.Wrapf(err, "ledger: read entry %s", src.URL)
			}
			if prev != nil && prev.Status == model.FetchOK {
				sum.Skipped++
				continue
			}
		}

		if err := r.pacer.Wait(ctx); err != nil {
			return sum, eris.Wrap(err, "ledger: interrupted")
		}

		status, httpStatus := r.fetchOne(ctx, src.URL, path)
		entry := model.LedgerEntry{
			File:       file,
			Markets:    len(src.Rows),
			Downloaded: r.now().UTC().Format("2006-01-02"),
			Status:     status,
		}
		if err := r.store.PutLedgerEntry(ctx, src.URL, entry); err != nil {
			return sum, eris.Wrapf(err, "ledger: save entry %s", src.URL)
		}

		if status == model.FetchOK {
			sum.Downloaded++
		} else {
			sum.Failed++
		}

		if httpStatus == http.StatusTooManyRequests || httpStatus == http.StatusForbidden {
			log.Warn("ledger: backing off", zap.String("url", src.URL), zap.Int("status", httpStatus))
			if err := r.pacer.Cooldown(ctx); err != nil {
				return sum, eris.Wrap(err, "ledger: interrupted")
			}
		}
	}

	log.Info("ledger: fetch complete",
		zap.Int("downloaded", sum.Downloaded),
		zap.Int("skipped", sum.Skipped),
		zap.Int("failed", sum.Failed),
	)
	return sum, nil
}

// fetchOne downloads url into path and returns the ledger status together
// with the HTTP status (0 on a transport error).
func (r *Runner) fetchOne(ctx context.Context, url, path string) (model.FetchStatus, int) {
	log := zap.L().With(zap.String("phase", "fetch"), zap.String("url", url))

	resp, err := r.fetcher.Fetch(ctx, url)
	if err != nil {
		log.Warn("ledger: fetch failed", zap.Error(err))
		return model.FetchError, 0
	}

	switch {
	case resp.Status >= 200 && resp.Status <= 299:
		if err := os.WriteFile(path, resp.Body, 0o644); err != nil {
			log.Error("ledger: write artifact failed", zap.String("path", path), zap.Error(err))
			return model.FetchError, resp.Status
		}
		log.Debug("ledger: fetched", zap.Int("bytes", len(resp.Body)))
		return model.FetchOK, resp.Status
	case resp.Status == http.StatusNotFound:
		log.Warn("ledger: not found")
		return model.FetchNotFound, resp.Status
	case resp.Status == http.StatusForbidden:
		log.Warn("ledger: forbidden", zap.String("block_type", string(resp.Block)))
		return model.FetchForbidden, resp.Status
	default:
		log.Warn("ledger: unexpected status", zap.Int("status", resp.Status))
		return model.FetchError, resp.Status
	}
}
