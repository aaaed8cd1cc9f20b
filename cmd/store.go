package main

import (
	"context"

	"github.com/rotisserie/eris"

	"github.com/sells-group/marketmap-cli/internal/config"
	"github.com/sells-group/marketmap-cli/internal/store"
)

// initStore opens and migrates the configured state backend. Callers should
// defer st.Close().
func initStore(ctx context.Context) (*store.Store, error) {
	b, err := newBackend(ctx, cfg)
	if err != nil {
		return nil, err
	}
	st := store.New(b)
	if err := st.Migrate(ctx); err != nil {
		_ = st.Close()
		return nil, eris.Wrap(err, "migrate store")
	}
	return st, nil
}

func newBackend(ctx context.Context, c *config.Config) (store.Backend, error) {
	switch c.Store.Driver {
	case "", "file":
		return store.NewFile(filePaths(c.Data)), nil
	case "sqlite":
		dsn := c.Store.DatabaseURL
		if dsn == "" {
			dsn = c.Data.Path("marketmap.db")
		}
		return store.NewSQLite(dsn)
	case "postgres":
		return store.NewPostgres(ctx, c.Store.DatabaseURL, nil)
	default:
		return nil, eris.Errorf("unsupported store driver: %s", c.Store.Driver)
	}
}

// filePaths maps each bucket onto its operator-facing JSON file.
func filePaths(d config.DataConfig) map[string]string {
	return map[string]string{
		store.BucketGeocode:  d.Path(d.GeocacheFile),
		store.BucketLedger:   d.Path(d.ManifestFile),
		store.BucketReport:   d.Path(d.ReportFile),
		store.BucketProvince: d.Path(d.ProvinceCache),
		store.BucketRuns:     d.Path(d.RunsFile),
	}
}
