package app

import (
	"context"
	"errors"
	"fmt"
	"net/http"

	"github.com/coder/quartz"
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	goredis "github.com/redis/go-redis/v9"
	"go.uber.org/zap"
	"gorm.io/gorm"

	"github.com/pulsetrack/pulse/internal/config"
	"github.com/pulsetrack/pulse/internal/database"
	"github.com/pulsetrack/pulse/internal/middleware"
	"github.com/pulsetrack/pulse/internal/modules/site/token"
	"github.com/pulsetrack/pulse/internal/modules/tracking/events"
	"github.com/pulsetrack/pulse/internal/modules/tracking/presence"
	"github.com/pulsetrack/pulse/internal/pkg/bark"
	pkgcron "github.com/pulsetrack/pulse/internal/pkg/cron"
	"github.com/pulsetrack/pulse/internal/pkg/metrics"
	"github.com/pulsetrack/pulse/internal/pkg/ratelimit"
	pkgredis "github.com/pulsetrack/pulse/internal/pkg/redis"
)

// App holds all application dependencies.
type App struct {
	cfg    *config.AppConfig
	router *gin.Engine
	logger *zap.Logger
	clock  quartz.Clock

	db    *gorm.DB
	redis *pkgredis.Client
	mongo *events.MongoLog

	registry *prometheus.Registry
	metrics  *metrics.Metrics
	limiter  ratelimit.Limiter
	policies ratelimit.Policies

	tokens   *token.Service
	presence *presence.Service
	events   *events.Service
	bark     *bark.Service
	sched    *pkgcron.Scheduler

	cancel context.CancelFunc
}

type Option func(*App)

// WithClock replaces the wall clock for every time-dependent component.
func WithClock(clock quartz.Clock) Option {
	return func(a *App) { a.clock = clock }
}

// WithDB adopts an already opened database instead of dialing cfg.DSN. The
// schema is still migrated.
func WithDB(db *gorm.DB) Option {
	return func(a *App) { a.db = db }
}

// WithRedis adopts an existing Redis client instead of dialing cfg.RedisURL.
func WithRedis(rdb *goredis.Client) Option {
	return func(a *App) { a.redis = pkgredis.Wrap(rdb) }
}

// New initializes the application: config → DB → Redis → Mongo → services →
// routes. Background jobs are registered but not started; see Start.
func New(ctx context.Context, logger *zap.Logger, cfg *config.AppConfig, opts ...Option) (*App, error) {
	if cfg == nil {
		return nil, errors.New("config is nil")
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	if err := applyRuntimeSettings(cfg); err != nil {
		return nil, err
	}

	a := &App{cfg: cfg, logger: logger, clock: quartz.NewReal()}
	for _, opt := range opts {
		opt(a)
	}

	if err := a.connect(ctx); err != nil {
		a.closeStores(ctx)
		return nil, err
	}
	if err := a.buildServices(); err != nil {
		a.closeStores(ctx)
		return nil, err
	}

	if cfg.IsDev() {
		gin.SetMode(gin.DebugMode)
	} else {
		gin.SetMode(gin.ReleaseMode)
	}
	router := gin.New()
	router.HandleMethodNotAllowed = true
	if err := router.SetTrustedProxies(cfg.TrustedProxies); err != nil {
		a.closeStores(ctx)
		return nil, fmt.Errorf("trusted_proxies: %w", err)
	}
	router.Use(gin.Recovery())
	router.Use(middleware.Logger(logger.Named("http")))
	a.router = router

	if err := a.registerRoutes(); err != nil {
		a.closeStores(ctx)
		return nil, err
	}
	a.registerCronJobs()
	return a, nil
}

func (a *App) connect(ctx context.Context) error {
	if a.db == nil {
		db, err := database.Connect(a.cfg, true)
		if err != nil {
			return fmt.Errorf("database: %w", err)
		}
		a.db = db
	} else if err := database.Migrate(a.db); err != nil {
		return fmt.Errorf("database: %w", err)
	}

	if a.redis == nil && a.cfg.Redis.Enable {
		rc, err := pkgredis.Connect(ctx, a.cfg.RedisURL)
		if err != nil {
			return fmt.Errorf("redis: %w", err)
		}
		a.redis = rc
	}

	if a.cfg.Events.Backend == config.BackendMongo {
		ml, err := events.DialMongo(ctx, a.cfg.Events.Mongo.URI, a.cfg.Events.Mongo.Database)
		if err != nil {
			return fmt.Errorf("mongo: %w", err)
		}
		a.mongo = ml
	}
	return nil
}

func (a *App) buildServices() error {
	cfg := a.cfg
	logger := a.logger

	if cfg.Metrics.Enable {
		a.registry = prometheus.NewRegistry()
		a.registry.MustRegister(
			collectors.NewGoCollector(),
			collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		)
		m, err := metrics.NewMetrics(a.registry)
		if err != nil {
			return fmt.Errorf("metrics: %w", err)
		}
		a.metrics = m
	}

	a.policies = ratelimit.PoliciesFromConfig(cfg.RateLimit)
	switch cfg.RateLimit.Backend {
	case config.BackendRedis:
		if a.redis == nil {
			return errors.New("rate_limit: redis backend selected but redis is not connected")
		}
		a.limiter = ratelimit.NewRedis(a.redis.Raw())
	default:
		a.limiter = ratelimit.NewMemory(ratelimit.WithClock(a.clock))
	}

	var store presence.Store
	switch cfg.Presence.Backend {
	case config.BackendRedis:
		if a.redis == nil {
			return errors.New("presence: redis backend selected but redis is not connected")
		}
		store = presence.NewRedisStore(a.redis.Raw())
	default:
		store = presence.NewSQLStore(a.db)
	}
	a.presence = presence.NewService(store,
		presence.WithClock(a.clock),
		presence.WithWindows(cfg.Presence.OnlineWindow, cfg.Presence.Horizon),
		presence.WithLogger(logger),
	)

	var log events.Log = events.NewSQLLog(a.db)
	if a.mongo != nil {
		log = a.mongo
	}
	windows := events.DefaultWindows()
	windows.TopPages = hours(cfg.Events.TopPagesHours)
	windows.Timeline = minutes(cfg.Events.TimelineMinutes)
	windows.Retention = cfg.EventRetention()
	a.events = events.NewService(log,
		events.WithClock(a.clock),
		events.WithWindows(windows),
		events.WithLogger(logger),
		events.WithMetrics(a.metrics),
	)

	a.tokens = token.NewService(a.db,
		token.WithLogger(logger),
		token.WithMetrics(a.metrics),
		token.WithPurgers(a.presence, a.events),
	)

	a.bark = bark.New(cfg.Abuse.BarkKey, cfg.Abuse.BarkServerURL, bark.WithClock(a.clock))
	a.sched = pkgcron.New(pkgcron.WithClock(a.clock), pkgcron.WithLogger(logger))
	return nil
}

// Addr returns the listen address.
func (a *App) Addr() string { return fmt.Sprintf(":%d", a.cfg.Port) }

// Router returns the HTTP handler.
func (a *App) Router() http.Handler { return a.router }

// Start runs the background jobs until Shutdown.
func (a *App) Start(ctx context.Context) {
	ctx, a.cancel = context.WithCancel(ctx)
	a.sched.Start(ctx)
}

// Shutdown stops background jobs and releases every connection.
func (a *App) Shutdown(ctx context.Context) {
	if a.cancel != nil {
		a.cancel()
	}
	// manual runs from the admin API may still hold the stores
	a.sched.Wait()
	a.closeStores(ctx)
}

func (a *App) closeStores(ctx context.Context) {
	if a.mongo != nil {
		if err := a.mongo.Close(ctx); err != nil {
			a.logger.Warn("close mongo", zap.Error(err))
		}
	}
	if a.redis != nil {
		if err := a.redis.Close(); err != nil {
			a.logger.Warn("close redis", zap.Error(err))
		}
	}
	if a.db != nil {
		database.Close(a.db)
	}
}

// Tokens exposes the registry for operator tooling.
func (a *App) Tokens() *token.Service { return a.tokens }

func (a *App) Presence() *presence.Service { return a.presence }

func (a *App) Events() *events.Service { return a.events }

func (a *App) Config() *config.AppConfig { return a.cfg }
