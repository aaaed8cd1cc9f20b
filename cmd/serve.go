package main

import (
	"context"
	"crypto/subtle"
	"encoding/json"
	"fmt"
	"math"
	"net/http"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/sells-group/marketmap-cli/internal/pipeline"
)

var servePort int

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the reindex webhook server",
	Long:  "Serves GET /reindex?token=..., which reruns the pipeline without geocoding at most once per interval, and GET /health.",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		env, err := initPipeline(ctx, "serve")
		if err != nil {
			return err
		}
		defer env.Close()

		reindex := newReindexHandler(env.Pipeline, cfg.Server.ReindexToken,
			time.Duration(cfg.Server.ReindexIntervalSecs)*time.Second)

		port := servePort
		if port == 0 {
			port = cfg.Server.Port
		}

		srv := &http.Server{
			Addr:              fmt.Sprintf(":%d", port),
			Handler:           newRouter(reindex),
			ReadHeaderTimeout: 10 * time.Second,
		}

		g, gctx := errgroup.WithContext(ctx)
		g.Go(func() error {
			zap.L().Info("starting server", zap.Int("port", port))
			if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
				return eris.Wrap(err, "server listen")
			}
			return nil
		})
		g.Go(func() error {
			<-gctx.Done()
			zap.L().Info("shutting down server")
			shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 30*time.Second)
			defer cancel()
			return srv.Shutdown(shutdownCtx)
		})
		return g.Wait()
	},
}

func init() {
	serveCmd.Flags().IntVar(&servePort, "port", 0, "server port (default from config)")
	rootCmd.AddCommand(serveCmd)
}

// newRouter wires the server routes.
func newRouter(reindex http.Handler) http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: []string{"*"},
		AllowedMethods: []string{http.MethodGet, http.MethodOptions},
		MaxAge:         300,
	}))

	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})
	r.Method(http.MethodGet, "/reindex", reindex)
	return r
}

// reindexRunner is the part of the pipeline the reindex handler drives.
type reindexRunner interface {
	Run(ctx context.Context, cfg pipeline.Config) (*pipeline.Result, error)
}

// reindexHandler reruns the pipeline on request. A request is accepted at
// most once per interval, counted from the last accepted request whether
// or not its run succeeded, and never while another run is still going.
type reindexHandler struct {
	runner   reindexRunner
	token    string
	interval time.Duration
	now      func() time.Time

	mu      sync.Mutex
	last    time.Time
	running bool
}

func newReindexHandler(runner reindexRunner, token string, interval time.Duration) *reindexHandler {
	return &reindexHandler{runner: runner, token: token, interval: interval, now: time.Now}
}

func (h *reindexHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	token := r.URL.Query().Get("token")
	if h.token == "" || subtle.ConstantTimeCompare([]byte(token), []byte(h.token)) != 1 {
		writeJSON(w, http.StatusUnauthorized, map[string]string{"error": "Unauthorized"})
		return
	}

	if msg, ok := h.reserve(); !ok {
		writeJSON(w, http.StatusTooManyRequests, map[string]string{"error": msg})
		return
	}
	defer h.release()

	// A client hanging up must not stop a run halfway through publishing.
	res, err := h.runner.Run(context.WithoutCancel(r.Context()), pipeline.Config{SkipGeocode: true})
	if err != nil {
		zap.L().Error("reindex failed", zap.Error(err))
		writeJSON(w, http.StatusInternalServerError, map[string]string{
			"error":   "Reindex failed",
			"details": err.Error(),
		})
		return
	}

	body := map[string]any{
		"success":   true,
		"message":   "Reindex complete",
		"timestamp": h.now().UTC().Format(time.RFC3339Nano),
	}
	if res != nil && res.Run != nil {
		body["run_id"] = res.Run.ID
		body["phases"] = res.Run.Phases
	}
	if res != nil && res.Publish != nil {
		body["documents"] = res.Publish.Documents
	}
	writeJSON(w, http.StatusOK, body)
}

// reserve claims the next run slot. When it cannot, it returns the reason
// for the client and false.
func (h *reindexHandler) reserve() (string, bool) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if h.running {
		return "Reindex already running.", false
	}
	now := h.now()
	if !h.last.IsZero() {
		if elapsed := now.Sub(h.last); elapsed < h.interval {
			wait := h.interval - elapsed
			return fmt.Sprintf("Rate limited. Try again in %ds.", int(math.Ceil(wait.Seconds()))), false
		}
	}
	h.last = now
	h.running = true
	return "", true
}

func (h *reindexHandler) release() {
	h.mu.Lock()
	h.running = false
	h.mu.Unlock()
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		zap.L().Warn("write response", zap.Error(err))
	}
}
