// Package app assembles the register server from configuration.
package app

import (
	"context"
	"crypto/subtle"
	"errors"
	"fmt"
	"net/http"
	"net/http/pprof"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	validator "github.com/go-playground/validator/v10"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/extra/redisotel/v9"
	redis "github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"github.com/noah-isme/toko-pos/internal/common"
	"github.com/noah-isme/toko-pos/internal/config"
	"github.com/noah-isme/toko-pos/internal/discount"
	"github.com/noah-isme/toko-pos/internal/docs"
	"github.com/noah-isme/toko-pos/internal/events"
	"github.com/noah-isme/toko-pos/internal/health"
	"github.com/noah-isme/toko-pos/internal/lock"
	"github.com/noah-isme/toko-pos/internal/obs"
	"github.com/noah-isme/toko-pos/internal/pos"
	"github.com/noah-isme/toko-pos/internal/ratelimit"
	"github.com/noah-isme/toko-pos/internal/receipt"
	"github.com/noah-isme/toko-pos/internal/sale"
	"github.com/noah-isme/toko-pos/internal/security"
	"github.com/noah-isme/toko-pos/internal/settings"
	"github.com/noah-isme/toko-pos/internal/store"
	"github.com/noah-isme/toko-pos/internal/wholesale"
)

// Backend is everything the register needs from persistence. Both the
// Postgres and in-memory stores implement it.
type Backend interface {
	pos.Inventory
	settings.Querier
	discount.Querier
	events.EventStore
	sale.Committer
	CreateClient(ctx context.Context, in store.NewClient) (store.Client, error)
}

// App is a wired server ready to be mounted on an http.Server.
type App struct {
	Handler http.Handler
	Store   Backend
	Redis   *redis.Client

	closers []func()
}

// Options override parts of the wiring.
type Options struct {
	// Store replaces the store selected from configuration.
	Store Backend
	// Registerer receives the Prometheus collectors. Defaults to the global registry.
	Registerer prometheus.Registerer
}

// New connects the configured dependencies and builds the router.
func New(ctx context.Context, cfg *config.Config, logger zerolog.Logger, opts Options) (*App, error) {
	if cfg == nil {
		return nil, errors.New("app: config is required")
	}
	a := &App{}

	var pool *pgxpool.Pool
	switch {
	case opts.Store != nil:
		a.Store = opts.Store
	case cfg.UsesMemoryStore():
		logger.Warn().Msg("DATABASE_URL not set, using the in-memory sample store")
		a.Store = store.NewSeededMemory()
	default:
		p, err := connectPostgres(ctx, cfg.DatabaseURL)
		if err != nil {
			return nil, err
		}
		pool = p
		a.closers = append(a.closers, pool.Close)
		a.Store = store.NewPostgres(pool)
	}

	if cfg.RedisURL != "" {
		rdb, err := connectRedis(ctx, cfg.RedisURL, logger)
		if err != nil {
			a.Close()
			return nil, err
		}
		a.Redis = rdb
		a.closers = append(a.closers, func() {
			if err := rdb.Close(); err != nil {
				logger.Error().Err(err).Msg("close redis")
			}
		})
	}
	// Redis-backed helpers take interfaces; a typed nil client must not leak into them.
	var cmd redis.Cmdable
	var locker sale.Locker
	var reserver sale.Reserver
	if a.Redis != nil {
		cmd = a.Redis
		l := lock.Locker{Client: a.Redis}
		locker, reserver = l, l
	}

	obs.MustRegisterDomainMetrics(cfg.MetricsNamespace, opts.Registerer)
	httpMetrics := obs.NewHTTPMetrics(cfg.MetricsNamespace, nil, opts.Registerer)

	settingsSvc := &settings.Service{Q: a.Store, Logger: logger}
	if cfg.DocumentsDir != "" {
		if err := settingsSvc.Set(ctx, settings.KeySavePath, cfg.DocumentsDir); err != nil {
			logger.Warn().Err(err).Msg("store documents dir")
		}
	}

	catalog := &discount.Catalog{
		Q:      a.Store,
		Cache:  discount.NewCache(a.Redis, cfg.DiscountCacheTTL),
		Logger: logger,
	}
	catalog.Reload(ctx)

	bus := &events.Bus{
		Store:     a.Store,
		Notifiers: []events.Notifier{events.LogNotifier{Logger: logger.With().Str("component", "events").Logger()}},
	}
	renderer := receipt.Renderer{Business: business(cfg.Business), Logger: logger}
	v := validator.New(validator.WithRequiredStructEnabled())

	coordinator := func(prefix, kind, channel string) *sale.Coordinator {
		return &sale.Coordinator{
			Store:       a.Store,
			IDs:         &sale.IDGenerator{Prefix: prefix, Reserver: reserver, Logger: logger},
			Locker:      locker,
			LockTTL:     cfg.SaleLockTTL,
			Events:      bus,
			Logger:      logger,
			ReceiptKind: kind,
			Channel:     channel,
		}
	}

	handler := &pos.Handler{
		Inventory: a.Store,
		Discounts: catalog,
		Registers: &pos.Registers{Coordinator: coordinator(sale.PrefixPOS, sale.ReceiptHTML, "pos")},
		Wizards: &pos.Wizards{Service: &wholesale.Service{
			Coordinator: coordinator(sale.PrefixWholesale, sale.ReceiptWholesale, "wholesale"),
			Products:    a.Store,
			Clients:     a.Store,
			Discounts:   catalog,
			Renderer:    renderer,
			Saver:       &docs.Saver{Settings: settingsSvc, Sink: docs.DirSink{}, Logger: logger},
			Events:      bus,
			Validator:   v,
			OperatorID:  cfg.OperatorID,
			Logger:      logger,
		}},
		Renderer:        renderer,
		Settings:        settingsSvc,
		Validator:       v,
		DefaultOperator: cfg.OperatorID,
		WriteGuards:     []func(http.Handler) http.Handler{common.Idem{R: cmd, TTL: cfg.IdempotencyTTL}.Middleware},
		Logger:          logger,
	}

	limiter := ratelimit.Handler{
		Limiter: ratelimit.Limiter{Client: cmd, Prefix: "rl:"},
		Config:  ratelimit.Config{Window: cfg.RateLimitWindow, Max: cfg.RateLimitMax},
		OnError: func(err error) { logger.Warn().Err(err).Msg("rate_limit_unavailable") },
	}

	checks := []health.Check{{Name: "db"}, {Name: "redis"}}
	if pool != nil {
		checks[0].Ping = pool.Ping
	}
	if a.Redis != nil {
		checks[1].Ping = func(ctx context.Context) error { return a.Redis.Ping(ctx).Err() }
	}
	healthHandler := health.Handler{Checks: checks}

	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	r.Use(obs.SpanRouteMiddleware)
	r.Use(httpMetrics.Middleware)
	r.Use(obs.RequestLogger{Logger: logger}.Middleware)
	r.Use(security.Headers{Enable: cfg.SecurityHeaders, EnableHSTS: cfg.AppEnv == "production"}.Middleware)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: allowedOrigins(cfg),
		AllowedMethods: []string{http.MethodGet, http.MethodPost, http.MethodPut, http.MethodDelete, http.MethodOptions},
		AllowedHeaders: []string{"Accept", "Content-Type", obs.OperatorHeader, common.IdempotencyHeader},
		ExposedHeaders: []string{"X-RateLimit-Remaining", "Retry-After"},
		MaxAge:         300,
	}))

	r.Handle("/metrics", metricsHandler(opts.Registerer))
	if cfg.EnablePprof {
		r.Mount("/debug/pprof", protectPprof(newPprofMux(), cfg.PprofUser, cfg.PprofPass))
	}
	r.Get("/health/live", healthHandler.Live)
	r.Get("/health/ready", healthHandler.Ready)

	r.Route("/api/v1", func(api chi.Router) {
		api.Use(security.BodyLimit{Max: cfg.MaxBodyBytes}.Middleware)
		api.Use(limiter.Middleware)
		handler.Routes(api)
	})

	a.Handler = r
	return a, nil
}

// Close releases the connections opened by New in reverse order.
func (a *App) Close() {
	for i := len(a.closers) - 1; i >= 0; i-- {
		a.closers[i]()
	}
	a.closers = nil
}

func connectPostgres(ctx context.Context, url string) (*pgxpool.Pool, error) {
	poolConfig, err := pgxpool.ParseConfig(url)
	if err != nil {
		return nil, fmt.Errorf("parse database config: %w", err)
	}
	poolConfig.ConnConfig.Tracer = obs.PGXTracer{}
	if poolConfig.ConnConfig.RuntimeParams == nil {
		poolConfig.ConnConfig.RuntimeParams = map[string]string{}
	}
	poolConfig.ConnConfig.RuntimeParams["application_name"] = "toko-pos"

	pool, err := pgxpool.NewWithConfig(ctx, poolConfig)
	if err != nil {
		return nil, fmt.Errorf("connect database: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}
	return pool, nil
}

func connectRedis(ctx context.Context, url string, logger zerolog.Logger) (*redis.Client, error) {
	opts, err := redis.ParseURL(url)
	if err != nil {
		return nil, fmt.Errorf("parse redis url: %w", err)
	}
	client := redis.NewClient(opts)
	if err := redisotel.InstrumentTracing(client); err != nil {
		logger.Error().Err(err).Msg("instrument redis tracing")
	}
	if err := redisotel.InstrumentMetrics(client); err != nil {
		logger.Error().Err(err).Msg("instrument redis metrics")
	}
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("ping redis: %w", err)
	}
	return client, nil
}

func business(c config.BusinessConfig) receipt.Business {
	b := receipt.DefaultBusiness()
	if c.Name != "" {
		b.Name = c.Name
	}
	if c.RTN != "" {
		b.RTN = c.RTN
	}
	if c.Phone != "" {
		b.Phone = c.Phone
	}
	if len(c.Address) > 0 {
		b.Address = c.Address
	}
	if c.Email != "" {
		b.Email = c.Email
	}
	if c.City != "" {
		b.City = c.City
	}
	if c.CurrencySymbol != "" {
		b.Currency = c.CurrencySymbol
	}
	return b
}

func allowedOrigins(cfg *config.Config) []string {
	if len(cfg.CORSAllowedOrigins) == 0 {
		return []string{"*"}
	}
	return cfg.CORSAllowedOrigins
}

func metricsHandler(reg prometheus.Registerer) http.Handler {
	if g, ok := reg.(prometheus.Gatherer); ok {
		return promhttp.HandlerFor(g, promhttp.HandlerOpts{})
	}
	return promhttp.Handler()
}

func newPprofMux() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/", pprof.Index)
	mux.HandleFunc("/cmdline", pprof.Cmdline)
	mux.HandleFunc("/profile", pprof.Profile)
	mux.HandleFunc("/symbol", pprof.Symbol)
	mux.HandleFunc("/trace", pprof.Trace)
	mux.Handle("/goroutine", pprof.Handler("goroutine"))
	mux.Handle("/heap", pprof.Handler("heap"))
	return mux
}

func protectPprof(handler http.Handler, user, pass string) http.Handler {
	user = strings.TrimSpace(user)
	pass = strings.TrimSpace(pass)
	if user == "" {
		return handler
	}
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		u, p, ok := r.BasicAuth()
		if !ok || subtle.ConstantTimeCompare([]byte(u), []byte(user)) != 1 || subtle.ConstantTimeCompare([]byte(p), []byte(pass)) != 1 {
			w.Header().Set("WWW-Authenticate", "Basic realm=restricted")
			http.Error(w, "unauthorised", http.StatusUnauthorized)
			return
		}
		handler.ServeHTTP(w, r)
	})
}
