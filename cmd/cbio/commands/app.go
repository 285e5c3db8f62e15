package commands

import (
	"context"
	"errors"
	"fmt"
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/greenledger/cbio-forecast/internal/audit"
	"github.com/greenledger/cbio-forecast/internal/external/yahoo"
	"github.com/greenledger/cbio-forecast/internal/forecast"
	"github.com/greenledger/cbio-forecast/internal/loader"
	"github.com/greenledger/cbio-forecast/pkg/config"
	"github.com/greenledger/cbio-forecast/pkg/database"
	"github.com/greenledger/cbio-forecast/pkg/httputil"
	"github.com/greenledger/cbio-forecast/pkg/logger"
	"github.com/greenledger/cbio-forecast/pkg/metrics"
	"github.com/greenledger/cbio-forecast/pkg/redis"
)

// app holds everything a command needs
// ⭐ SSOT: dependencies are assembled only in this function
type app struct {
	cfg     *config.Config
	log     *logger.Logger
	db      *database.DB  // nil without DATABASE_URL
	redis   *redis.Client // disabled unless REDIS_ENABLED
	service *forecast.Service
	metrics http.Handler      // nil when METRICS_ENABLED=false
	runs    *audit.Repository // nil without DATABASE_URL
}

// newApp loads configuration and assembles the pipeline
func newApp() (*app, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}
	if verbose {
		cfg.LogLevel = "debug"
	}
	if pipelineConfig != "" {
		cfg.PipelineConfigPath = pipelineConfig
	}

	log := logger.New(cfg)

	pipeline, err := forecast.LoadPipelineConfig(cfg.PipelineConfigPath)
	if err != nil {
		return nil, err
	}

	a := &app{cfg: cfg, log: log}

	var rec *metrics.Recorder
	if cfg.MetricsEnabled {
		rec = metrics.New(prometheus.DefaultRegisterer)
		a.metrics = promhttp.Handler()
	}

	// Database is only needed for postgres: sources
	var querier database.Querier
	db, err := database.New(cfg)
	switch {
	case errors.Is(err, database.ErrNotConfigured):
		log.Debug("No DATABASE_URL, postgres sources disabled")
	case err != nil:
		return nil, fmt.Errorf("connect to database: %w", err)
	default:
		a.db = db
		querier = db.Pool
		a.runs = audit.NewRepository(db.Pool)
		if err := a.runs.EnsureSchema(context.Background()); err != nil {
			a.close()
			return nil, err
		}
		log.Info("Connected to database")
	}

	rdb, err := redis.New(cfg)
	if err != nil {
		a.close()
		return nil, fmt.Errorf("connect to redis: %w", err)
	}
	a.redis = rdb

	httpClient := httputil.New(cfg, log).WithUserAgent("cbio-forecast/1.0")
	chart := yahoo.NewClient(httpClient, cfg.MarketData.BaseURL, rec, log.Zerolog())
	macro := loader.NewCachedProvider(chart, redis.NewCache(rdb, "cbio"), cfg.Redis.CacheTTL, log.Zerolog())

	ld := loader.New(
		loader.NewSources(querier),
		macro,
		loader.Columns{Target: pipeline.TargetColumn, Secondary: pipeline.SecondaryColumn},
		log.Zerolog(),
	)

	sources := forecast.Sources{
		Target:            cfg.Data.TargetSource,
		Secondary:         cfg.Data.SecondarySource,
		SecondaryFallback: cfg.Data.SecondaryFallbackSource,
	}
	store := forecast.NewArtifactStore(cfg.Data.ModelPath(), cfg.Data.FeaturesPath())

	a.service = forecast.NewService(
		forecast.NewTrainer(pipeline, sources, ld, store, log.Zerolog()),
		forecast.NewPredictor(pipeline, sources, ld, store, log.Zerolog()),
		pipeline,
		redis.NewLocker(rdb, "cbio"),
		cfg.Redis.LockTTL,
		rec,
		log.Zerolog(),
	)
	if a.runs != nil {
		a.service.RecordRunsTo(a.runs)
	}

	return a, nil
}

// close releases connections
func (a *app) close() {
	a.db.Close()
	if a.redis != nil {
		if err := a.redis.Close(); err != nil {
			a.log.WithError(err).Warn("Failed to close redis")
		}
	}
}
