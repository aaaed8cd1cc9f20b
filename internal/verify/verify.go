// Package verify asks a language model whether each source page supports
// the dataset rows that cite it, and keeps the answers in the verification
// report.
package verify

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"path/filepath"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/marketmap-cli/internal/dataset"
	"github.com/sells-group/marketmap-cli/internal/extract"
	"github.com/sells-group/marketmap-cli/internal/jsonx"
	"github.com/sells-group/marketmap-cli/internal/model"
	"github.com/sells-group/marketmap-cli/internal/progress"
	"github.com/sells-group/marketmap-cli/internal/resilience"
	"github.com/sells-group/marketmap-cli/internal/store"
	"github.com/sells-group/marketmap-cli/pkg/anthropic"
)

// DefaultModel is the model used when none is configured.
const DefaultModel = "claude-haiku-4-5"

// ErrURLNotInLedger is returned when a single-URL run names a URL the fetch
// ledger does not know.
var ErrURLNotInLedger = eris.New("verify: url not found in ledger")

// Store is the persistence the verifier needs.
type Store interface {
	Ledger(ctx context.Context) ([]store.LedgerRecord, error)
	LedgerEntry(ctx context.Context, url string) (*model.LedgerEntry, error)
	Report(ctx context.Context, url string) (json.RawMessage, error)
	PutReport(ctx context.Context, url string, raw json.RawMessage) error
	Reports(ctx context.Context) ([]store.Record, error)
}

// Config tunes the verifier.
type Config struct {
	Model     string
	MaxTokens int64
	// Delay is the spacing between two verified sources.
	Delay   time.Duration
	Retry   resilience.RetryConfig
	Circuit resilience.CircuitBreakerConfig
}

// DefaultConfig returns the production settings.
func DefaultConfig() Config {
	return Config{
		Model:     DefaultModel,
		MaxTokens: 4096,
		Delay:     time.Second,
		Retry:     resilience.DefaultRetryConfig(),
		Circuit:   resilience.DefaultCircuitBreakerConfig(),
	}
}

// Options controls one verification run.
type Options struct {
	// Force re-verifies sources already in the report.
	Force bool
	// URL restricts the run to one ledger URL. It implies Force.
	URL string
}

// Summary counts what a run did and tallies the whole report afterwards.
type Summary struct {
	Targets   int    `json:"targets"`
	Verified  int    `json:"verified"`
	Skipped   int    `json:"skipped"`
	Failed    int    `json:"failed"`
	Totals    Totals `json:"totals"`
	ModelUsed string `json:"model"`
	// Circuit is the breaker state when the run ended; "open" means the
	// model service was failing and later sources were not attempted.
	Circuit string `json:"circuit"`
}

// Verifier runs the semantic verification phase.
type Verifier struct {
	store    Store
	client   anthropic.Client
	dir      string
	cfg      Config
	pacer    *resilience.Pacer
	breaker  *resilience.CircuitBreaker
	now      func() time.Time
	progress progress.Factory
}

// NewVerifier creates a Verifier reading saved pages from dir.
func NewVerifier(st Store, client anthropic.Client, dir string, cfg Config) *Verifier {
	if cfg.Model == "" {
		cfg.Model = DefaultModel
	}
	if cfg.MaxTokens <= 0 {
		cfg.MaxTokens = 4096
	}
	if cfg.Retry.Classify == nil {
		cfg.Retry.Classify = classify
	}
	if cfg.Retry.OnRetry == nil {
		cfg.Retry.OnRetry = resilience.RetryLogger("anthropic", "verify")
	}
	if cfg.Circuit.ShouldTrip == nil {
		cfg.Circuit.ShouldTrip = isOutage
	}
	if cfg.Circuit.Name == "" {
		cfg.Circuit.Name = "anthropic"
	}
	return &Verifier{
		store:   st,
		client:  client,
		dir:     dir,
		cfg:     cfg,
		pacer:   resilience.NewPacer(cfg.Delay, 0),
		breaker: resilience.NewCircuitBreaker(cfg.Circuit),
		now:     time.Now,
	}
}

// WithProgress draws a progress bar while verifying.
func (v *Verifier) WithProgress(f progress.Factory) *Verifier {
	v.progress = f
	return v
}

// WithClock overrides the clock used for verified_at.
func (v *Verifier) WithClock(now func() time.Time) *Verifier {
	v.now = now
	return v
}

// Run verifies every ok ledger source against the rows citing it. The
// report is persisted after each source.
func (v *Verifier) Run(ctx context.Context, rows []*model.Row, opts Options) (*Summary, error) {
	log := zap.L().With(zap.String("phase", "verify"))

	targets, err := v.targets(ctx, opts)
	if err != nil {
		return nil, err
	}
	bySource := make(map[string][]*model.Row)
	for _, src := range model.GroupBySource(rows) {
		bySource[src.URL] = src.Rows
	}

	sum := &Summary{Targets: len(targets), ModelUsed: v.cfg.Model}
	force := opts.Force || opts.URL != ""
	log.Info("verify: starting", zap.Int("targets", len(targets)), zap.String("model", v.cfg.Model))

	bar := progress.Start(v.progress, len(targets), "verify ")
	defer bar.Finish()

	for _, t := range targets {
		if err := ctx.Err(); err != nil {
			return sum, eris.Wrap(err, "verify: interrupted")
		}
		bar.Increment()

		if !force {
			prev, err := v.store.Report(ctx, t.URL)
			if err != nil {
				return sum, eris.Wrapf(err, "verify: read report %s", t.URL)
			}
			if prev != nil {
				sum.Skipped++
				continue
			}
		}

		path := filepath.Join(v.dir, t.Entry.File)
		if !dataset.Exists(path) {
			log.Warn("verify: source file missing", zap.String("url", t.URL), zap.String("file", t.Entry.File))
			sum.Skipped++
			continue
		}
		srcRows := bySource[t.URL]
		if len(srcRows) == 0 {
			sum.Skipped++
			continue
		}

		if err := v.pacer.Wait(ctx); err != nil {
			return sum, eris.Wrap(err, "verify: interrupted")
		}

		entry, ok := v.verifyOne(ctx, t.URL, t.Entry.File, path, srcRows)
		if err := ctx.Err(); err != nil {
			// An interrupted call is not a result; leave the source for the next run.
			return sum, eris.Wrap(err, "verify: interrupted")
		}
		raw, err := entry.MarshalJSON()
		if err != nil {
			return sum, eris.Wrapf(err, "verify: encode result %s", t.URL)
		}
		if err := v.store.PutReport(ctx, t.URL, raw); err != nil {
			return sum, eris.Wrapf(err, "verify: save result %s", t.URL)
		}
		if ok {
			sum.Verified++
		} else {
			sum.Failed++
		}
	}

	totals, err := ReportTotals(ctx, v.store)
	if err != nil {
		return sum, err
	}
	sum.Totals = *totals
	sum.Circuit = v.breaker.State().String()

	log.Info("verify: complete",
		zap.Int("verified", sum.Verified),
		zap.Int("skipped", sum.Skipped),
		zap.Int("failed", sum.Failed),
		zap.Int("conclusive", totals.Conclusive),
		zap.Int("inconclusive", totals.Inconclusive),
		zap.Int("extra", totals.Extra),
		zap.String("circuit", sum.Circuit),
	)
	return sum, nil
}

func (v *Verifier) targets(ctx context.Context, opts Options) ([]store.LedgerRecord, error) {
	if opts.URL != "" {
		e, err := v.store.LedgerEntry(ctx, opts.URL)
		if err != nil {
			return nil, eris.Wrapf(err, "verify: read ledger entry %s", opts.URL)
		}
		if e == nil {
			return nil, eris.Wrapf(ErrURLNotInLedger, "verify: %s", opts.URL)
		}
		return []store.LedgerRecord{{URL: opts.URL, Entry: *e}}, nil
	}

	all, err := v.store.Ledger(ctx)
	if err != nil {
		return nil, eris.Wrap(err, "verify: read ledger")
	}
	out := all[:0:0]
	for _, r := range all {
		if r.Entry.Status == model.FetchOK {
			out = append(out, r)
		}
	}
	return out, nil
}

// verifyOne returns the report entry for one source and whether the model
// produced a usable answer.
func (v *Verifier) verifyOne(ctx context.Context, url, file, path string, rows []*model.Row) (*jsonx.Object, bool) {
	log := zap.L().With(zap.String("phase", "verify"), zap.String("url", url))
	verifiedAt := v.now().UTC().Format("2006-01-02T15:04:05.000Z07:00")

	fail := func(err error) (*jsonx.Object, bool) {
		log.Warn("verify: source failed", zap.Error(err))
		out := jsonx.NewObject()
		_ = out.SetValue("source_url", url)
		_ = out.SetValue("file", file)
		_ = out.SetValue("error", err.Error())
		_ = out.SetValue("verified_at", verifiedAt)
		return out, false
	}

	html, err := extract.ReadPage(path)
	if err != nil {
		return fail(err)
	}
	prompt := BuildPrompt(extract.Article(html), rows, url)

	if err := v.breaker.Allow(); err != nil {
		return fail(err)
	}

	res := resilience.Attempt(ctx, v.cfg.Retry, func(ctx context.Context, _ int) (*jsonx.Object, error) {
		return v.ask(ctx, prompt)
	})
	v.breaker.Record(res.Err)

	if !res.OK() {
		if res.Outcome == resilience.OutcomeRetryable {
			return fail(fmt.Errorf("failed after %d attempts: %w", res.Attempts, res.Err))
		}
		return fail(res.Err)
	}

	out := res.Value
	_ = out.SetValue("file", file)
	_ = out.SetValue("json_count", len(rows))
	_ = out.SetValue("verified_at", verifiedAt)
	_ = out.SetValue("model", v.cfg.Model)
	log.Debug("verify: source verified", zap.Int("attempts", res.Attempts))
	return out, true
}

func (v *Verifier) ask(ctx context.Context, prompt string) (*jsonx.Object, error) {
	temp := 0.0
	resp, err := v.client.CreateMessage(ctx, anthropic.MessageRequest{
		Model:       v.cfg.Model,
		MaxTokens:   v.cfg.MaxTokens,
		System:      SystemPrompt,
		Prompt:      prompt,
		Temperature: &temp,
	})
	if err != nil {
		return nil, err
	}
	resp.Usage.Log(v.cfg.Model, "verify")
	return ParseResponse(resp.Text)
}

// classify retries rate limits, overloads, transient server errors and
// unparseable answers. Everything else is permanent.
func classify(err error) resilience.Outcome {
	if err == nil {
		return resilience.OutcomeSuccess
	}
	var pe *ParseError
	if errors.As(err, &pe) || isOutage(err) {
		return resilience.OutcomeRetryable
	}
	return resilience.OutcomePermanent
}

// isOutage reports whether err says the service itself is struggling.
func isOutage(err error) bool {
	switch code := anthropic.StatusCode(err); {
	case code == http.StatusTooManyRequests, code == anthropic.StatusOverloaded:
		return true
	case code != 0:
		return resilience.IsTransientHTTPStatus(code)
	}
	return resilience.IsTransient(err)
}

var _ Store = (*store.Store)(nil)
