// Package pipeline runs the seed phases in order: geocode, validate,
// publish and verify. Each phase is tracked as a named result on a run
// record that is persisted when the run ends.
package pipeline

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/marketmap-cli/internal/dataset"
	"github.com/sells-group/marketmap-cli/internal/geocache"
	"github.com/sells-group/marketmap-cli/internal/merge"
	"github.com/sells-group/marketmap-cli/internal/model"
	"github.com/sells-group/marketmap-cli/internal/validate"
	"github.com/sells-group/marketmap-cli/internal/verify"
)

// Phase names, in run order.
const (
	PhaseGeocode  = "geocode"
	PhaseValidate = "validate"
	PhasePublish  = "publish"
	PhaseVerify   = "verify"
)

// ErrValidationFailed stops a run before anything is published.
var ErrValidationFailed = eris.New("pipeline: validation failed")

// Geocoder fills coordinates in place.
type Geocoder interface {
	Run(ctx context.Context, ds *model.Dataset) (*geocache.Summary, error)
}

// Indexer publishes documents to the search index.
type Indexer interface {
	Publish(ctx context.Context, docs []model.Document) (*PublishSummary, error)
}

// Verifier checks source pages against the dataset.
type Verifier interface {
	Run(ctx context.Context, rows []*model.Row, opts verify.Options) (*verify.Summary, error)
}

// RunStore persists run records.
type RunStore interface {
	SaveRun(ctx context.Context, run *model.Run) error
}

// Config selects which optional phases run. Validate always runs.
type Config struct {
	SkipGeocode bool
	SkipPublish bool
	SkipVerify  bool
}

// Deps are the collaborators of a Pipeline. Verifier may be nil, in which
// case the verify phase is skipped.
type Deps struct {
	DatasetPath string
	Rules       validate.Rules
	Geocoder    Geocoder
	Indexer     Indexer
	Verifier    Verifier
	Runs        RunStore
}

// Result is everything a run produced.
type Result struct {
	Run        *model.Run
	Geocode    *geocache.Summary
	Validation *validate.Result
	Publish    *PublishSummary
	Skipped    int
	Verify     *verify.Summary
}

// Pipeline orchestrates the seed phases.
type Pipeline struct {
	deps Deps
	now  func() time.Time
}

// New creates a Pipeline.
func New(deps Deps) *Pipeline {
	return &Pipeline{deps: deps, now: time.Now}
}

type phase struct {
	name string
	// skip is the reason the phase does not run, or "".
	skip string
	// optional phases record a failure without failing the run.
	optional bool
	run      func(ctx context.Context) (map[string]any, error)
}

// Run executes the phases in order against the dataset file. A validation
// failure returns ErrValidationFailed and nothing is published; the result
// still carries every issue.
func (p *Pipeline) Run(ctx context.Context, cfg Config) (*Result, error) {
	run := &model.Run{
		ID:        uuid.New().String(),
		Status:    model.RunStatusRunning,
		StartedAt: p.now().UTC(),
	}
	log := zap.L().With(zap.String("run_id", run.ID))
	log.Info("pipeline: starting run",
		zap.Bool("skip_geocode", cfg.SkipGeocode),
		zap.Bool("skip_publish", cfg.SkipPublish),
		zap.Bool("skip_verify", cfg.SkipVerify),
	)
	res := &Result{Run: run}

	ds, err := dataset.Load(p.deps.DatasetPath)
	if err != nil {
		return res, p.finish(ctx, run, err)
	}

	for _, ph := range p.phases(cfg, ds, res) {
		if err := ctx.Err(); err != nil {
			return res, p.finish(ctx, run, eris.Wrap(err, "pipeline: interrupted"))
		}

		if ph.skip != "" {
			log.Info("pipeline: phase skipped", zap.String("phase", ph.name), zap.String("reason", ph.skip))
			run.Phases = append(run.Phases, model.PhaseResult{
				Name:     ph.name,
				Status:   model.PhaseStatusSkipped,
				Metadata: map[string]any{"reason": ph.skip},
			})
			continue
		}

		pr, err := p.track(ctx, ph)
		run.Phases = append(run.Phases, pr)
		if err != nil && !ph.optional {
			return res, p.finish(ctx, run, err)
		}
	}

	return res, p.finish(ctx, run, nil)
}

func (p *Pipeline) phases(cfg Config, ds *model.Dataset, res *Result) []phase {
	geocodeSkip := ""
	switch {
	case cfg.SkipGeocode:
		geocodeSkip = "disabled"
	case p.deps.Geocoder == nil:
		geocodeSkip = "no geocoder configured"
	}
	publishSkip := ""
	switch {
	case cfg.SkipPublish:
		publishSkip = "disabled"
	case p.deps.Indexer == nil:
		publishSkip = "no index configured"
	}
	verifySkip := ""
	switch {
	case cfg.SkipVerify:
		verifySkip = "disabled"
	case p.deps.Verifier == nil:
		verifySkip = "no language model credential configured"
	}

	return []phase{
		{
			name: PhaseGeocode,
			skip: geocodeSkip,
			run: func(ctx context.Context) (map[string]any, error) {
				sum, err := p.deps.Geocoder.Run(ctx, ds)
				if sum != nil && !sum.NoOp && sum.Groups > 0 {
					// Persist whatever was resolved, even on interruption.
					if serr := dataset.Save(p.deps.DatasetPath, ds); serr != nil {
						return nil, eris.Wrap(serr, "pipeline: save dataset")
					}
				}
				if err != nil {
					return nil, err
				}
				res.Geocode = sum
				return map[string]any{
					"groups":    sum.Groups,
					"missing":   sum.Missing,
					"cached":    sum.Cached,
					"corrected": sum.Corrected,
					"skipped":   sum.Skipped,
					"noop":      sum.NoOp,
				}, nil
			},
		},
		{
			name: PhaseValidate,
			run: func(context.Context) (map[string]any, error) {
				vr := validate.Validate(ds.Markets, p.deps.Rules)
				res.Validation = vr
				meta := map[string]any{"rows": vr.Rows, "issues": len(vr.Issues)}
				if !vr.OK() {
					return meta, eris.Wrapf(ErrValidationFailed, "pipeline: %d issue(s)", len(vr.Issues))
				}
				return meta, nil
			},
		},
		{
			name: PhasePublish,
			skip: publishSkip,
			run: func(ctx context.Context) (map[string]any, error) {
				docs, skipped := merge.Documents(ds.Markets)
				res.Skipped = skipped
				sum, err := p.deps.Indexer.Publish(ctx, docs)
				if err != nil {
					return map[string]any{"documents": len(docs), "skipped": skipped}, err
				}
				res.Publish = sum
				return map[string]any{
					"documents": sum.Documents,
					"skipped":   skipped,
					"status":    sum.TaskStatus,
				}, nil
			},
		},
		{
			name:     PhaseVerify,
			skip:     verifySkip,
			optional: true,
			run: func(ctx context.Context) (map[string]any, error) {
				sum, err := p.deps.Verifier.Run(ctx, ds.Markets, verify.Options{})
				if err != nil {
					return nil, err
				}
				res.Verify = sum
				return map[string]any{
					"verified":     sum.Verified,
					"skipped":      sum.Skipped,
					"failed":       sum.Failed,
					"conclusive":   sum.Totals.Conclusive,
					"inconclusive": sum.Totals.Inconclusive,
					"extra":        sum.Totals.Extra,
					"circuit":      sum.Circuit,
				}, nil
			},
		},
	}
}

// track runs one phase and turns its outcome into a PhaseResult.
func (p *Pipeline) track(ctx context.Context, ph phase) (model.PhaseResult, error) {
	log := zap.L().With(zap.String("phase", ph.name))

	start := time.Now()
	meta, err := ph.run(ctx)
	duration := time.Since(start).Milliseconds()

	pr := model.PhaseResult{Name: ph.name, Duration: duration, Metadata: meta}
	if err != nil {
		pr.Status = model.PhaseStatusFailed
		pr.Error = err.Error()
		log.Error("pipeline: phase failed", zap.Int64("duration_ms", duration), zap.Error(err))
		return pr, err
	}
	pr.Status = model.PhaseStatusComplete
	log.Info("pipeline: phase complete", zap.Int64("duration_ms", duration))
	return pr, nil
}

// finish stamps and persists the run, then returns runErr.
func (p *Pipeline) finish(ctx context.Context, run *model.Run, runErr error) error {
	run.FinishedAt = p.now().UTC()
	run.Status = model.RunStatusComplete
	if runErr != nil {
		run.Status = model.RunStatusFailed
		run.Error = runErr.Error()
	}

	if p.deps.Runs != nil {
		// The run record outlives a cancelled context.
		if err := p.deps.Runs.SaveRun(context.WithoutCancel(ctx), run); err != nil {
			zap.L().Warn("pipeline: failed to save run", zap.String("run_id", run.ID), zap.Error(err))
		}
	}
	zap.L().Info("pipeline: run finished",
		zap.String("run_id", run.ID),
		zap.String("status", string(run.Status)),
		zap.Duration("elapsed", run.FinishedAt.Sub(run.StartedAt)),
	)
	return runErr
}
