// Package server initializes and runs the auth server: it opens PostgreSQL
// and Redis, applies migrations, wires the services and serves HTTP until a
// termination signal arrives, purging the refresh-token ledger in the
// background.
package server

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/dmitrijs2005/hiresify/internal/logging"
	"github.com/dmitrijs2005/hiresify/internal/server/auth"
	"github.com/dmitrijs2005/hiresify/internal/server/cache"
	"github.com/dmitrijs2005/hiresify/internal/server/config"
	"github.com/dmitrijs2005/hiresify/internal/server/httpapi"
	"github.com/dmitrijs2005/hiresify/internal/server/password"
	"github.com/dmitrijs2005/hiresify/internal/server/repositories/repomanager"
	"github.com/dmitrijs2005/hiresify/internal/server/services"
)

type App struct {
	config      *config.Config
	logger      logging.Logger
	db          *sql.DB
	redis       *redis.Client
	authService *services.AuthService
	userService *services.UserService
}

func NewApp(ctx context.Context, c *config.Config) (*App, error) {

	level := slog.LevelInfo
	if !c.Production {
		level = slog.LevelDebug
	}
	logger := logging.NewJSONLogger(os.Stdout, level)

	if err := c.Validate(); err != nil {
		return nil, fmt.Errorf("config: %w", err)
	}

	db, err := repomanager.OpenPostgres(ctx, c.DatabaseDSN)
	if err != nil {
		return nil, fmt.Errorf("db init error: %w", err)
	}

	rm := repomanager.NewPostgresRepositoryManager()
	if err := rm.RunMigrations(ctx, db); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("migrations: %w", err)
	}

	rdb, err := cache.NewRedisClient(ctx, c.RedisURL)
	if err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("redis init error: %w", err)
	}

	sessions := cache.New(cache.NewRedisStore(rdb), cache.Options{
		Prefix:     c.CachePrefix,
		CSRFTTL:    c.SessionValidityDuration,
		SessionTTL: c.SessionValidityDuration,
		CodeTTL:    c.CodeValidityDuration,
		Logger:     logger,
	})

	codec, err := auth.NewCodec(auth.CodecConfig{
		Secret:   []byte(c.SecretKey),
		Issuer:   c.TokenIssuer,
		Audience: c.TokenAudience,
	})
	if err != nil {
		_ = db.Close()
		_ = rdb.Close()
		return nil, fmt.Errorf("token codec: %w", err)
	}

	hasher := password.NewArgon2(password.DefaultParams)

	return &App{
		config:      c,
		logger:      logger,
		db:          db,
		redis:       rdb,
		authService: services.NewAuthService(db, rm, sessions, codec, hasher, c, logger),
		userService: services.NewUserService(db, rm, hasher, logger),
	}, nil
}

func (app *App) initSignalHandler(cancelFunc context.CancelFunc) {
	// Channel to catch OS signals.
	sigs := make(chan os.Signal, 1)
	signal.Notify(sigs, syscall.SIGINT, syscall.SIGTERM, syscall.SIGQUIT)

	go func() {
		<-sigs
		cancelFunc()
	}()
}

func (app *App) startHTTPServer(ctx context.Context, cancelFunc context.CancelFunc) {

	s := httpapi.NewHTTPServer(app.config.EndpointAddrHTTP, app.logger, app.authService, httpapi.Options{
		Production: app.config.Production,
		LoginRate:  app.config.LoginRatePerSecond,
		LoginBurst: app.config.LoginRateBurst,
	})

	if err := s.Run(ctx); err != nil {
		app.logger.Error(ctx, err.Error())
		cancelFunc()
	}
}

// purgeLoop calls purge every interval until ctx is done.
func purgeLoop(ctx context.Context, interval time.Duration, logger logging.Logger, purge func(context.Context) (int64, error)) {
	if interval <= 0 {
		return
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if _, err := purge(ctx); err != nil {
				logger.Error(ctx, "ledger purge failed", "error", err)
			}
		}
	}
}

func (app *App) Run(ctx context.Context) {

	ctx, cancelFunc := context.WithCancel(ctx)
	defer cancelFunc()

	app.logger.Info(ctx, "Starting app...")

	app.initSignalHandler(cancelFunc)

	var wg sync.WaitGroup

	wg.Add(2)
	go func() {
		defer wg.Done()
		app.startHTTPServer(ctx, cancelFunc)
	}()
	go func() {
		defer wg.Done()
		purgeLoop(ctx, app.config.PurgeInterval, app.logger, func(ctx context.Context) (int64, error) {
			return app.userService.PurgeExpired(ctx, app.config.RefreshRetentionDays)
		})
	}()

	wg.Wait()

	app.close(ctx)
}

func (app *App) close(ctx context.Context) {
	if err := app.redis.Close(); err != nil {
		app.logger.Error(ctx, "redis close", "error", err)
	}
	if err := app.db.Close(); err != nil {
		app.logger.Error(ctx, "db close", "error", err)
	}
	app.logger.Info(ctx, "Stopped")
}
