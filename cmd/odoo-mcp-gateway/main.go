// Command odoo-mcp-gateway wires every internal package into a running
// process: it loads GatewayConfig, builds the Odoo connection pool,
// cache, session store, rate limiter, security layer, domain compiler,
// tool registry, subscription bus, and dispatcher, then serves whichever
// transport the config selects. Grounded on the teacher's example
// entrypoints (examples/readme/main.go, examples/vibes/vibes.go): a flat
// main() that constructs collaborators and hands them to a transport's
// Serve/ListenAndServe loop, no framework indirection.
package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"sync/atomic"
	"syscall"
	"time"

	goredis "github.com/redis/go-redis/v9"

	"github.com/odoomcp/gateway/internal/cache"
	"github.com/odoomcp/gateway/internal/config"
	"github.com/odoomcp/gateway/internal/dispatcher"
	"github.com/odoomcp/gateway/internal/domain"
	"github.com/odoomcp/gateway/internal/odoorpc"
	"github.com/odoomcp/gateway/internal/odoorpc/factory"
	"github.com/odoomcp/gateway/internal/pool"
	"github.com/odoomcp/gateway/internal/ratelimit"
	"github.com/odoomcp/gateway/internal/registry"
	"github.com/odoomcp/gateway/internal/security"
	"github.com/odoomcp/gateway/internal/session"
	"github.com/odoomcp/gateway/internal/subscribe"
	"github.com/odoomcp/gateway/internal/transport/httpapi"
	"github.com/odoomcp/gateway/internal/transport/stdio"
)

func main() {
	configPath := flag.String("config", "", "path to a YAML config file (defaults + env vars apply either way)")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintln(os.Stderr, "odoo-mcp-gateway:", err)
		os.Exit(1)
	}

	log := buildLogger(cfg.Logging)
	slog.SetDefault(log)

	if err := run(cfg, *configPath, log); err != nil {
		log.Error("odoo-mcp-gateway: fatal", "error", err)
		os.Exit(1)
	}
}

func buildLogger(lc config.LoggingConfig) *slog.Logger {
	level := slog.LevelInfo
	switch lc.Level {
	case "debug":
		level = slog.LevelDebug
	case "warn":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	}
	opts := &slog.HandlerOptions{Level: level, AddSource: lc.AddSource}
	var handler slog.Handler
	if lc.Format == "text" {
		handler = slog.NewTextHandler(os.Stderr, opts)
	} else {
		handler = slog.NewJSONHandler(os.Stderr, opts)
	}
	return slog.New(handler)
}

func run(cfg *config.GatewayConfig, configPath string, log *slog.Logger) error {
	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	var authedUID atomic.Int64
	connFactory := func(ctx context.Context) (odoorpc.Handler, error) {
		handler, err := factory.New(cfg, cfg.PoolSize)
		if err != nil {
			return nil, err
		}
		secret := cfg.APIKey
		uid, err := handler.Authenticate(ctx, cfg.Database, cfg.Username, secret)
		if err != nil {
			return nil, err
		}
		authedUID.Store(uid)
		return handler, nil
	}

	p := pool.New(connFactory, pool.Options{
		Size:                     cfg.PoolSize,
		AcquireTimeout:           cfg.Timeout,
		RetryCount:               cfg.RetryCount,
		BaseRetryDelay:           cfg.BaseRetryDelay,
		ConnectionHealthInterval: cfg.ConnectionHealthInterval,
		Logger:                   log,
	})
	defer p.Close()

	// Force construction of the first connection so authedUID is populated
	// and startup fails fast on bad credentials rather than on first call.
	if _, release, err := p.Acquire(ctx); err != nil {
		return fmt.Errorf("connect to odoo: %w", err)
	} else {
		release(true)
	}
	p.StartHealthLoop(ctx)

	var cacheBackend cache.Cache
	var sessionStore session.Store
	if cfg.RedisAddr != "" {
		client := goredis.NewClient(&goredis.Options{Addr: cfg.RedisAddr})
		cacheBackend = cache.NewRedis(client, "odoo-mcp:cache:")
		sessionStore = session.NewRedisStore(client, "odoo-mcp:session:")
	} else {
		mem, err := cache.NewMemory(cfg.CacheMaxItems)
		if err != nil {
			return fmt.Errorf("build cache: %w", err)
		}
		defer mem.Close()
		cacheBackend = mem
		sessionStore = session.NewMemoryStore()
	}

	sessions := session.NewManager(sessionStore, func(ctx context.Context, username, secret string) (int64, error) {
		// create_session authenticates against Odoo directly, independent
		// of the shared pool, since a session's uid is never the identity
		// the gateway wires onto pooled connections (spec §4.3's caveat).
		h, err := factory.New(cfg, 1)
		if err != nil {
			return 0, err
		}
		defer h.Close()
		return h.Authenticate(ctx, cfg.Database, username, secret)
	}, cfg.SessionTTL(), cfg.SessionCleanupInterval)
	defer sessions.Close()

	limiter := ratelimit.New(cfg.RequestsPerMinute, time.Duration(cfg.RateLimitMaxWaitSeconds*float64(time.Second)))
	limiter.StartEvictionLoop(ctx, 5*time.Minute, 30*time.Minute)

	bus := subscribe.NewBus()
	if cfg.OdooBusEnabled {
		listener := subscribe.NewOdooBusListener(cfg.OdooURL, bus, log)
		go func() {
			if err := listener.Run(ctx); err != nil && ctx.Err() == nil {
				log.Warn("odoo bus listener stopped", "error", err)
			}
		}()
	}

	disp := dispatcher.New(dispatcher.Deps{
		Registry:          registry.New(),
		Pool:              p,
		Cache:             cacheBackend,
		CacheTTL:          cfg.CacheTTL,
		Domain:            domain.New(cfg.MaxPayloadSize, domain.DefaultPlaceholders(nil)),
		Masker:            security.NewMasker(cfg.PIIMasking, cfg.PIIRules),
		Implicit:          security.NewRegistry(cfg.ImplicitDomains, cfg.ImplicitDomainRules),
		Audit:             security.NewAuditLogger(cfg.AuditLogging, log),
		Sessions:          sessions,
		RateLimiter:       limiter,
		Bus:               bus,
		Credentials: odoorpc.Credentials{Database: cfg.Database, UID: authedUID.Load(), Secret: cfg.APIKey},
		// AllowedCompanyIDs is left empty: Odoo's res.company multi-company
		// access list is per-user server-side state with no static config
		// equivalent, so security.Registry.Inject's company filter simply
		// no-ops until a future session-scoped lookup populates this.
		AllowedCompanyIDs: nil,
		MaxRecordsLimit:   cfg.MaxRecordsLimit,
		MaxFieldsLimit:    cfg.MaxFieldsLimit,
		IdempotencyWindow: 4096,
		Log:               log,
	})

	if configPath != "" {
		stop := make(chan struct{})
		go func() {
			<-ctx.Done()
			close(stop)
		}()
		watcher := config.NewWatcher(configPath, 0, log)
		go func() {
			if err := watcher.Watch(stop, func(fresh *config.GatewayConfig) {
				disp.ReloadSecurity(
					security.NewMasker(fresh.PIIMasking, fresh.PIIRules),
					security.NewRegistry(fresh.ImplicitDomains, fresh.ImplicitDomainRules),
					security.NewAuditLogger(fresh.AuditLogging, log),
					ratelimit.New(fresh.RequestsPerMinute, time.Duration(fresh.RateLimitMaxWaitSeconds*float64(time.Second))),
				)
			}); err != nil {
				log.Warn("config: watcher stopped", "error", err)
			}
		}()
	}

	switch cfg.Transport {
	case config.TransportStdio:
		h := stdio.NewHandler(disp, stdio.WithLogger(log))
		return h.Serve(ctx)
	default:
		return serveHTTP(ctx, cfg, disp, p, log)
	}
}

func serveHTTP(ctx context.Context, cfg *config.GatewayConfig, disp *dispatcher.Dispatcher, p *pool.Pool, log *slog.Logger) error {
	var guard httpapi.Guard
	if cfg.APIJWTSecret != "" {
		guard = httpapi.NewJWTGuard(cfg.APIJWTSecret)
	} else {
		bg, err := httpapi.NewBearerGuard(cfg.APIBearerPassphrase)
		if err != nil {
			return fmt.Errorf("build bearer guard: %w", err)
		}
		guard = bg
	}
	streamable := cfg.Transport == config.TransportStreamableHTTP || (cfg.Transport == config.TransportHTTP && cfg.HTTP.Streamable)
	srv := httpapi.New(disp, p, guard, cfg.AllowedOrigins, streamable, log)

	addr := fmt.Sprintf("%s:%d", cfg.HTTP.Host, cfg.HTTP.Port)
	httpServer := &http.Server{Addr: addr, Handler: srv}

	errCh := make(chan error, 1)
	go func() {
		log.Info("odoo-mcp-gateway: listening", "addr", addr, "transport", cfg.Transport)
		if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
	}()

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return httpServer.Shutdown(shutdownCtx)
	case err := <-errCh:
		return err
	}
}
