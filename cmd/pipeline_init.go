package main

import (
	"context"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/marketmap-cli/internal/fetcher"
	"github.com/sells-group/marketmap-cli/internal/geocache"
	"github.com/sells-group/marketmap-cli/internal/pipeline"
	"github.com/sells-group/marketmap-cli/internal/resilience"
	"github.com/sells-group/marketmap-cli/internal/store"
	"github.com/sells-group/marketmap-cli/internal/validate"
	"github.com/sells-group/marketmap-cli/internal/verify"
	anthropicpkg "github.com/sells-group/marketmap-cli/pkg/anthropic"
	"github.com/sells-group/marketmap-cli/pkg/meili"
	"github.com/sells-group/marketmap-cli/pkg/nominatim"
)

// pipelineEnv holds the store and the pipeline needed by the seed and
// serve commands.
type pipelineEnv struct {
	Store    *store.Store
	Pipeline *pipeline.Pipeline
}

// Close releases resources held by the pipeline environment.
func (pe *pipelineEnv) Close() {
	if pe.Store != nil {
		_ = pe.Store.Close()
	}
}

// initPipeline validates the configuration for mode, opens the store and
// builds the Pipeline. Callers should defer env.Close().
func initPipeline(ctx context.Context, mode string) (*pipelineEnv, error) {
	if err := cfg.Validate(mode); err != nil {
		return nil, err
	}

	rules, err := loadRules()
	if err != nil {
		return nil, err
	}

	st, err := initStore(ctx)
	if err != nil {
		return nil, err
	}

	deps := pipeline.Deps{
		DatasetPath: cfg.Data.Dataset,
		Rules:       rules,
		Geocoder:    geocache.NewPhase(newResolver(st)).WithProgress(progressFactory()),
		Runs:        st,
	}

	if cfg.Meili.URL != "" {
		deps.Indexer = newPublisher()
	} else {
		zap.L().Warn("meili.url not set, publish phase will be skipped")
	}

	// Verifier stays a nil interface without a key so the phase is skipped.
	if cfg.Anthropic.Key != "" {
		deps.Verifier = newVerifier(st, "")
		zap.L().Info("semantic verification enabled", zap.String("model", cfg.Anthropic.Model))
	} else {
		zap.L().Debug("MARKETMAP_ANTHROPIC_KEY not set, verify phase will be skipped")
	}

	return &pipelineEnv{
		Store:    st,
		Pipeline: pipeline.New(deps),
	}, nil
}

// loadRules returns the validation rules file when one is configured, else
// the built-in rules.
func loadRules() (validate.Rules, error) {
	if cfg.Data.RulesFile == "" {
		return validate.DefaultRules(), nil
	}
	rules, err := validate.LoadRules(cfg.Data.RulesFile)
	if err != nil {
		return rules, eris.Wrap(err, "load validation rules")
	}
	return rules, nil
}

func newNominatim() nominatim.Client {
	return nominatim.NewClient(
		nominatim.WithBaseURL(cfg.Nominatim.BaseURL),
		nominatim.WithUserAgent(cfg.Nominatim.UserAgent),
		nominatim.WithCountryCodes(cfg.Nominatim.CountryCodes),
	)
}

func nominatimPacer() *resilience.Pacer {
	return resilience.NewPacer(
		resilience.Millis(cfg.Nominatim.DelayMs),
		resilience.Millis(cfg.Nominatim.CooldownMs),
	)
}

func newResolver(st *store.Store) *geocache.Resolver {
	return geocache.NewResolver(st, newNominatim(), nominatimPacer()).
		WithCountry(cfg.Nominatim.Country)
}

func newProvinceFixer(st *store.Store, aliases map[string]string) *geocache.ProvinceFixer {
	return geocache.NewProvinceFixer(st, newNominatim(), nominatimPacer()).
		WithAliases(aliases).
		WithProgress(progressFactory())
}

func newFetcher() *fetcher.HTTPFetcher {
	return fetcher.NewHTTPFetcher(fetcher.HTTPOptions{
		UserAgent:    cfg.Fetch.UserAgent,
		Timeout:      time.Duration(cfg.Fetch.TimeoutSecs) * time.Second,
		MaxBodyBytes: cfg.Fetch.MaxBodyBytes,
	})
}

func fetchPacer() *resilience.Pacer {
	return resilience.NewPacer(
		resilience.Millis(cfg.Fetch.DelayMs),
		resilience.Millis(cfg.Fetch.CooldownMs),
	)
}

// newVerifier builds the semantic verifier. model overrides the configured
// model when set.
func newVerifier(st *store.Store, model string) *verify.Verifier {
	vc := verify.DefaultConfig()
	vc.Model = cfg.Anthropic.Model
	if model != "" {
		vc.Model = model
	}
	vc.MaxTokens = cfg.Anthropic.MaxTokens
	vc.Delay = resilience.Millis(cfg.Anthropic.DelayMs)
	vc.Retry = resilience.FromRetryConfig(cfg.Anthropic.MaxRetries, 0, 0)
	vc.Circuit = resilience.FromCircuitConfig(cfg.Anthropic.CircuitThreshold, 0)

	client := anthropicpkg.NewClient(cfg.Anthropic.Key)
	return verify.NewVerifier(st, client, cfg.Data.SourcesPath(), vc).
		WithProgress(progressFactory())
}

func newPublisher() *pipeline.Publisher {
	opts := []meili.Option{}
	if cfg.Meili.Key != "" {
		opts = append(opts, meili.WithAPIKey(cfg.Meili.Key))
	}
	return pipeline.NewPublisher(meili.NewClient(cfg.Meili.URL, opts...), cfg.Meili.Index)
}
