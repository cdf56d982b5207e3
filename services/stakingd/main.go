package stakingd

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"

	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"

	"nftstake/config"
	"nftstake/core"
	"nftstake/core/events"
	"nftstake/gateway/middleware"
	"nftstake/observability/logging"
	"nftstake/observability/metrics"
	telemetry "nftstake/observability/otel"
	"nftstake/storage"
)

// Main initialises and runs the staking daemon.
func Main() error {
	var cfgPath string
	flag.StringVar(&cfgPath, "config", "services/stakingd/config.yaml", "path to stakingd configuration")
	flag.Parse()

	cfg, err := LoadConfig(cfgPath)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	env := strings.TrimSpace(cfg.Environment)
	if env == "" {
		env = strings.TrimSpace(os.Getenv("STAKING_ENV"))
	}
	logOpts := logging.Options{Level: logging.ParseLevel(cfg.Logging.Level)}
	if cfg.Logging.File != "" {
		logOpts.File = &logging.FileOptions{
			Path:       cfg.Logging.File,
			MaxSizeMB:  cfg.Logging.MaxSizeMB,
			MaxBackups: cfg.Logging.MaxBackups,
			MaxAgeDays: cfg.Logging.MaxAgeDays,
		}
	}
	logger := logging.SetupWithOptions("stakingd", env, logOpts)

	shutdownTelemetry, err := telemetry.Init(context.Background(), telemetry.Config{
		ServiceName: "stakingd",
		Environment: env,
		Endpoint:    cfg.Telemetry.Endpoint,
		Insecure:    cfg.Telemetry.Insecure,
		Headers:     telemetry.ParseHeaders(cfg.Telemetry.Headers),
		Metrics:     cfg.Telemetry.Metrics,
		Traces:      cfg.Telemetry.Traces,
		SampleRatio: cfg.Telemetry.SampleRatio,
	})
	if err != nil {
		return fmt.Errorf("init telemetry: %w", err)
	}
	defer func() { _ = shutdownTelemetry(context.Background()) }()

	broadcaster := events.NewBroadcaster(cfg.Events.Backlog)
	node, err := OpenNode(cfg, logger, broadcaster)
	if err != nil {
		return err
	}
	defer node.Close()

	audit, err := NewAuditStore(cfg.AuditDB)
	if err != nil {
		return fmt.Errorf("open audit store: %w", err)
	}
	defer audit.Close()

	limits := make(map[string]middleware.RateLimit, len(cfg.RateLimits))
	for group, limit := range cfg.RateLimits {
		limits[group] = middleware.RateLimit{RequestsPerMinute: limit.RequestsPerMinute, Burst: limit.Burst}
	}
	limiter := middleware.NewRateLimiter(limits, logger)

	server := NewServer(node, ServerOptions{
		Auth: middleware.NewAuthenticator(middleware.AuthConfig{
			Enabled:    cfg.Auth.Enabled,
			HMACSecret: cfg.Auth.HMACSecret,
			Issuer:     cfg.Auth.Issuer,
			Audience:   cfg.Auth.Audience,
			ClockSkew:  cfg.Auth.ClockSkew.Duration,
		}, logger),
		RateLimiter:   limiter,
		Observability: middleware.NewObservability(middleware.ObservabilityConfig{ServiceName: "stakingd", LogRequests: cfg.Logging.Requests}, logger),
		CORS:          middleware.CORSConfig{AllowedOrigins: cfg.CORS.AllowedOrigins},
		Audit:         audit,
		Broadcaster:   broadcaster,
		CacheSize:     cfg.Cache.Size,
		CacheTTL:      cfg.Cache.TTL.Duration,
		EventBuffer:   cfg.Events.Buffer,
		Logger:        logger,
	})

	httpServer := &http.Server{
		Addr:         cfg.ListenAddress,
		Handler:      otelhttp.NewHandler(server, "stakingd"),
		ReadTimeout:  cfg.Timeouts.Read.Duration,
		WriteTimeout: cfg.Timeouts.Write.Duration,
		IdleTimeout:  cfg.Timeouts.Idle.Duration,
	}

	stopCtx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()
	go limiter.Run(stopCtx)

	errs := make(chan error, 1)
	go func() {
		logger.Info("stakingd listening", slog.String("addr", cfg.ListenAddress))
		errs <- httpServer.ListenAndServe()
	}()

	select {
	case <-stopCtx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Timeouts.Shutdown.Duration)
		defer cancel()
		if err := httpServer.Shutdown(shutdownCtx); err != nil {
			_ = httpServer.Close()
			return err
		}
		return nil
	case err := <-errs:
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	}
}

// OpenNode loads the node configuration, opens state storage and installs
// the genesis on first start.
func OpenNode(cfg Config, logger *slog.Logger, emitter events.Emitter) (*core.Node, error) {
	nodeCfg, err := config.Load(cfg.NodeConfig)
	if err != nil {
		return nil, fmt.Errorf("load node config: %w", err)
	}
	params, err := nodeCfg.StakingParams()
	if err != nil {
		return nil, err
	}
	genesis, err := nodeCfg.Genesis()
	if err != nil {
		return nil, err
	}

	dir := cfg.Storage.DataDir
	if dir == "" {
		dir = nodeCfg.DataDir
		if !filepath.IsAbs(dir) {
			dir = filepath.Join(filepath.Dir(cfg.NodeConfig), dir)
		}
	}
	var db storage.Database
	switch cfg.Storage.Backend {
	case "memory":
		db = storage.NewMemDB()
	case "bolt":
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, err
		}
		bdb, err := storage.NewBoltDB(filepath.Join(dir, "state.bolt"))
		if err != nil {
			return nil, fmt.Errorf("open bolt %s: %w", dir, err)
		}
		db = bdb
	default:
		ldb, err := storage.NewLevelDB(dir)
		if err != nil {
			return nil, fmt.Errorf("open leveldb %s: %w", dir, err)
		}
		db = ldb
	}

	node, err := core.NewNode(db, params)
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("open node: %w", err)
	}
	node.SetLogger(logger)
	node.SetMetrics(metrics.Staking())
	node.SetEmitter(events.MultiEmitter{emitter, eventCounter{}})

	installed, err := node.InitGenesis(genesis)
	if err != nil {
		node.Close()
		return nil, fmt.Errorf("install genesis: %w", err)
	}
	if installed {
		logger.Info("genesis installed",
			slog.String("master", accountString(genesis.Config.Address)),
			slog.Int("items", len(genesis.Items)),
			slog.Int("rarities", len(genesis.Rarities)))
	}
	return node, nil
}
