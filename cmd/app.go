package cmd

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"time"

	"github.com/firebase/genkit/go/genkit"
	"github.com/firebase/genkit/go/plugins/googlegenai"
	"github.com/jackc/pgx/v5/pgxpool"
	pgxvector "github.com/pgvector/pgvector-go/pgx"

	"github.com/mvarela/triage/db"
	"github.com/mvarela/triage/internal/confidence"
	"github.com/mvarela/triage/internal/config"
	"github.com/mvarela/triage/internal/evidence"
	"github.com/mvarela/triage/internal/ingest"
	"github.com/mvarela/triage/internal/llm"
	"github.com/mvarela/triage/internal/log"
	"github.com/mvarela/triage/internal/observability"
	"github.com/mvarela/triage/internal/resolution"
	"github.com/mvarela/triage/internal/retrieval"
	"github.com/mvarela/triage/internal/ticket"
)

// Pool sizing and startup timeouts.
const (
	poolMaxConns        = 10
	poolMinConns        = 2
	poolMaxConnLifetime = 30 * time.Minute
	poolMaxConnIdleTime = 5 * time.Minute
	pingTimeout         = 5 * time.Second
	shutdownTimeout     = 5 * time.Second
)

// app holds the fully wired application. Construction order matters:
// config, logger, database (with migrations), tracing, Genkit, and only
// then the domain components layered on top.
type app struct {
	Config  *config.Config
	Logger  log.Logger
	Pool    *pgxpool.Pool
	Genkit  *genkit.Genkit
	Store   *evidence.Store
	Ledger  *ticket.Ledger
	Indexer *ingest.Indexer

	shutdownTracing func(context.Context) error
}

// setup builds the application. Components are constructed explicitly so
// the dependency graph stays readable in one place.
func setup(ctx context.Context) (*app, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, fmt.Errorf("loading config: %w", err)
	}

	level := slog.LevelInfo
	if os.Getenv("DEBUG") != "" {
		level = slog.LevelDebug
	}
	logger := log.New(log.Config{Level: level})

	if err := db.Migrate(cfg.PostgresURL(), logger); err != nil {
		return nil, fmt.Errorf("running migrations: %w", err)
	}

	poolCfg, err := pgxpool.ParseConfig(cfg.PostgresConnectionString())
	if err != nil {
		return nil, fmt.Errorf("parsing connection config: %w", err)
	}
	// pgvector types must be registered on every connection before the
	// evidence store can bind embedding parameters.
	poolCfg.AfterConnect = pgxvector.RegisterTypes
	poolCfg.MaxConns = poolMaxConns
	poolCfg.MinConns = poolMinConns
	poolCfg.MaxConnLifetime = poolMaxConnLifetime
	poolCfg.MaxConnIdleTime = poolMaxConnIdleTime

	pool, err := pgxpool.NewWithConfig(ctx, poolCfg)
	if err != nil {
		return nil, fmt.Errorf("creating connection pool: %w", err)
	}

	pingCtx, pingCancel := context.WithTimeout(ctx, pingTimeout)
	defer pingCancel()
	if err := pool.Ping(pingCtx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("pinging database: %w", err)
	}

	// Tracing attaches to Genkit's provider, so it is set up before Init.
	shutdownTracing, err := observability.Setup(ctx, observability.Config{
		Endpoint:    cfg.OTLPEndpoint,
		ServiceName: cfg.ServiceName,
	}, logger)
	if err != nil {
		pool.Close()
		return nil, fmt.Errorf("setting up tracing: %w", err)
	}

	g := genkit.Init(ctx, genkit.WithPlugins(&googlegenai.GoogleAI{}))
	if g == nil {
		pool.Close()
		return nil, fmt.Errorf("initializing Genkit")
	}

	embedder := googlegenai.GoogleAIEmbedder(g, cfg.Models.Embedder)
	client := llm.New(g, cfg.Models, logger)

	store := evidence.New(evidence.NewPGQuerier(pool), embedder, config.EmbeddingDimension, logger)
	strategy := retrieval.New(store, client, cfg.Retrieval, logger)
	estimator := confidence.NewEstimator(cfg.Confidence, cfg.NegativePhrases)

	checkpoints := resolution.NewPGCheckpointer(pool)
	machine := resolution.New(strategy, store, client, client, estimator, checkpoints,
		resolution.Config{AutoThreshold: cfg.AutoThreshold}, logger)
	ledger := ticket.New(machine, checkpoints, logger)

	splitter := ingest.NewSplitter(ingest.DefaultChunkSize, ingest.DefaultChunkOverlap)
	indexer := ingest.NewIndexer(store, splitter, nil, logger)

	return &app{
		Config:          cfg,
		Logger:          logger,
		Pool:            pool,
		Genkit:          g,
		Store:           store,
		Ledger:          ledger,
		Indexer:         indexer,
		shutdownTracing: shutdownTracing,
	}, nil
}

// Close flushes tracing and releases the connection pool.
func (a *app) Close() error {
	var err error
	if a.shutdownTracing != nil {
		ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		err = a.shutdownTracing(ctx)
	}
	if a.Pool != nil {
		a.Pool.Close()
	}
	return err
}
