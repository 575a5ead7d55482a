package app

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/arnavshah/coordination-api/internal/config"
	"github.com/arnavshah/coordination-api/pkg/auth"
	"github.com/arnavshah/coordination-api/pkg/coordination"
	"github.com/arnavshah/coordination-api/pkg/database"
	"github.com/arnavshah/coordination-api/pkg/handlers"
	"github.com/arnavshah/coordination-api/pkg/lock"
	"github.com/arnavshah/coordination-api/pkg/notify"
	"github.com/arnavshah/coordination-api/pkg/ratelimit"
	"github.com/arnavshah/coordination-api/pkg/scheduler"
	"github.com/arnavshah/coordination-api/pkg/store"
	"github.com/redis/go-redis/v9"
	"github.com/rs/cors"
	"gorm.io/gorm"
)

// rateBurst caps how many requests a key can fire back to back
const rateBurst = 100

// App holds the wired service graph
type App struct {
	Config  *config.Config
	DB      *gorm.DB
	Redis   *redis.Client
	Hub     *notify.Hub
	Service *coordination.Service
	Handler *handlers.Handler
	Limiter *ratelimit.Limiter
	Logger  *slog.Logger

	closers []func(context.Context) error
}

// New connects every backend named in cfg and wires the handlers
func New(ctx context.Context, cfg *config.Config, logger *slog.Logger) (*App, error) {
	a := &App{Config: cfg, Logger: logger}

	db, err := database.InitDB(cfg.DatabaseURL, cfg.DataPath)
	if err != nil {
		return nil, err
	}
	a.DB = db

	authn := auth.New(cfg.JWTSecret, cfg.APIMasterSecret)
	if err := authn.EnsureAdminExists(db, cfg.AdminUsername, cfg.AdminPassword, logger); err != nil {
		return nil, fmt.Errorf("ensure admin: %w", err)
	}

	var st store.NegotiationStore
	switch cfg.StoreBackend {
	case "mongo":
		client, mdb, err := store.Connect(ctx, cfg.MongoURI, cfg.MongoDatabase)
		if err != nil {
			return nil, err
		}
		a.closers = append(a.closers, client.Disconnect)
		ms := store.NewMongoStore(mdb)
		if err := ms.EnsureIndexes(ctx); err != nil {
			return nil, fmt.Errorf("mongo indexes: %w", err)
		}
		st = ms
	default:
		st = store.NewSQLStore(db)
	}

	a.Hub = notify.NewHub(logger)
	var locker lock.Locker = lock.NewMemoryLocker()
	var publisher notify.Publisher = a.Hub
	if cfg.RedisAddr != "" {
		a.Redis = redis.NewClient(&redis.Options{Addr: cfg.RedisAddr, Password: cfg.RedisPassword})
		if err := a.Redis.Ping(ctx).Err(); err != nil {
			return nil, fmt.Errorf("ping redis: %w", err)
		}
		a.closers = append(a.closers, func(context.Context) error { return a.Redis.Close() })
		locker = lock.NewRedisLocker(a.Redis, cfg.LockTTL)
		publisher = &notify.RedisPublisher{Client: a.Redis}
		logger.Info("redis enabled for room locks and negotiation events", "addr", cfg.RedisAddr)
	}

	builder, err := scheduler.NewBuilder(cfg.WeekdayLocale, logger)
	if err != nil {
		return nil, err
	}
	a.Service = coordination.New(st, locker, publisher, builder, logger, cfg.NegotiationTTL)
	a.Limiter = ratelimit.New(rateBurst)

	a.Handler = &handlers.Handler{
		DB:             db,
		Auth:           authn,
		Service:        a.Service,
		Hub:            a.Hub,
		Limiter:        a.Limiter,
		Logger:         logger,
		AdminUsername:  cfg.AdminUsername,
		AdminPassword:  cfg.AdminPassword,
		AllowedOrigins: cfg.CORSOrigins,
	}
	return a, nil
}

// HTTPHandler returns the router wrapped in the CORS policy
func (a *App) HTTPHandler() http.Handler {
	router := handlers.NewRouter(a.Handler)
	return cors.New(cors.Options{
		AllowedOrigins: a.Config.CORSOrigins,
		AllowedMethods: []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowedHeaders: []string{"Content-Type", "Authorization", "X-Request-ID"},
		ExposedHeaders: []string{"X-Request-ID"},
	}).Handler(router)
}

// RunBackground starts the expiry sweep, the limiter cleanup and, with
// Redis, the event relay. They stop with ctx.
func (a *App) RunBackground(ctx context.Context) {
	go a.Service.RunExpiry(ctx, a.Config.ExpiryInterval)

	go func() {
		ticker := time.NewTicker(10 * time.Minute)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				if n := a.Limiter.Cleanup(time.Hour); n > 0 {
					a.Logger.Debug("dropped idle rate limiters", "count", n)
				}
			}
		}
	}()

	if a.Redis != nil {
		go func() {
			if err := notify.Relay(ctx, a.Redis, a.Hub, a.Logger); err != nil {
				a.Logger.Error("negotiation event relay stopped", "error", err)
			}
		}()
	}
}

// Close releases backend connections
func (a *App) Close(ctx context.Context) {
	for i := len(a.closers) - 1; i >= 0; i-- {
		if err := a.closers[i](ctx); err != nil {
			a.Logger.Warn("close backend", "error", err)
		}
	}
	if sqlDB, err := a.DB.DB(); err == nil {
		_ = sqlDB.Close()
	}
}
