package main

import (
	"context"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	httpSwagger "github.com/swaggo/http-swagger"

	"github.com/corelearn/ale/internal/advisor"
	"github.com/corelearn/ale/internal/aggregator"
	"github.com/corelearn/ale/internal/api"
	"github.com/corelearn/ale/internal/domain/prerequisite"
	"github.com/corelearn/ale/internal/evaluator"
	"github.com/corelearn/ale/internal/infrastructure/config"
	"github.com/corelearn/ale/internal/session"
	"github.com/corelearn/ale/internal/store"

	_ "github.com/corelearn/ale/docs" // hand-authored swagger docs
)

// @title           Adaptive Learning Engine API
// @version         1.0
// @description     Spaced-repetition scheduling, mastery-weighted quiz selection, and adaptive tutoring advice.

// @host      localhost:8080
// @BasePath  /

func main() {
	cfg := config.Load()
	logger := slog.New(slog.NewJSONHandler(os.Stdout, nil))

	// ── Dependencies ────────────────────────────────────────────────
	db, err := store.NewSQLite(cfg.DatabasePath)
	if err != nil {
		logger.Error("failed to open database", "error", err)
		os.Exit(1)
	}
	defer db.Close()

	graph, err := loadPrerequisiteGraph(db)
	if err != nil {
		logger.Error("failed to load prerequisite graph", "error", err)
		os.Exit(1)
	}

	eval := evaluator.NewHTTPEvaluator(cfg.EvaluatorURL)
	agg := aggregator.New(db)
	mgr := session.New(db, eval, agg, logger)
	adv := advisor.New(db, graph)
	handler := api.NewHandler(db, mgr, adv, graph, logger)

	// ── Routes ──────────────────────────────────────────────────────
	mux := http.NewServeMux()

	mux.HandleFunc("GET /health", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte(`{"status": "ok"}`))
	})

	api.RegisterRoutes(mux, handler)

	// Swagger UI served at /swagger/
	mux.Handle("GET /swagger/", httpSwagger.WrapHandler)

	// ── Middleware chain: Logging → CORS → mux ──────────────────────
	logged := api.Logging(logger)(api.CORS(mux))

	// ── Server ──────────────────────────────────────────────────────
	server := &http.Server{
		Addr:              cfg.ServerAddress,
		Handler:           logged,
		ReadTimeout:       15 * time.Second,
		ReadHeaderTimeout: 5 * time.Second,
		WriteTimeout:      30 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	go func() {
		sigChan := make(chan os.Signal, 1)
		signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
		<-sigChan

		ctx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
		defer cancel()

		logger.Info("shutting down server")
		if err := server.Shutdown(ctx); err != nil {
			logger.Error("server forced to shutdown", "error", err)
		}
	}()

	logger.Info("starting server", "address", cfg.ServerAddress)
	if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		logger.Error("server failed to start", "error", err)
		os.Exit(1)
	}
}

// loadPrerequisiteGraph hydrates an in-memory prerequisite.Graph from
// every edge already persisted in the store, so a restart does not lose
// the gating relation.
func loadPrerequisiteGraph(db store.MasteryStore) (*prerequisite.Graph, error) {
	graph := prerequisite.New()

	edges, err := db.ListEdges(context.Background())
	if err != nil {
		return nil, err
	}
	for _, e := range edges {
		if err := graph.AddEdge(e.PrereqCoreLoopID, e.DependentCoreLoopID); err != nil {
			return nil, err
		}
	}
	return graph, nil
}
