package main

import (
	"context"
	"database/sql"
	"log"
	"log/slog"
	"os/signal"
	"syscall"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/vbonduro/bannerfront/internal/api"
	"github.com/vbonduro/bannerfront/internal/artwork/local"
	"github.com/vbonduro/bannerfront/internal/config"
	"github.com/vbonduro/bannerfront/internal/db"
	"github.com/vbonduro/bannerfront/internal/logging"
	"github.com/vbonduro/bannerfront/internal/quote"
	"github.com/vbonduro/bannerfront/internal/service"
	"github.com/vbonduro/bannerfront/internal/session"
	"github.com/vbonduro/bannerfront/internal/store"
	"github.com/vbonduro/bannerfront/internal/web"
	"github.com/vbonduro/bannerfront/internal/web/templates"
)

// quoteCacheSize bounds the in-process quote cache used without Redis.
const quoteCacheSize = 1024

const (
	pruneInterval   = time.Hour
	shutdownTimeout = 10 * time.Second
)

func main() {
	cfg := config.Load()

	logger, cleanup, err := logging.New(cfg.LogLevel, cfg.LogFormat, cfg.LogFile)
	if err != nil {
		log.Fatalf("failed to initialize logger: %v", err)
	}
	defer cleanup()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	database, err := openDatabase(cfg, logger)
	if err != nil {
		logger.Error("failed to open database", "error", err)
		return
	}
	defer func() {
		if err := database.Close(); err != nil {
			logger.Error("failed to close database", "error", err)
		}
	}()

	localStorage := store.NewLocalStorage(database)
	go pruneStorage(ctx, localStorage, cfg.StorageRetention, logger)

	files, err := local.NewLocalStore(cfg.ArtworkPath)
	if err != nil {
		logger.Error("failed to initialize artwork store", "error", err)
		return
	}
	if n, err := files.Purge(); err != nil {
		logger.Warn("failed to purge stale artwork", "error", err)
	} else if n > 0 {
		logger.Info("purged stale artwork", "files", n)
	}

	client := api.NewClient(cfg.APIBase, cfg.APITimeout, logger)
	accounts := service.NewAccountService(client, logger)
	quoter := quote.NewQuoter(client, newQuoteCache(ctx, cfg, logger), cfg.APITimeout, logger)

	server := web.NewServer(web.Services{
		Sessions: session.NewRegistry(localStorage, files, cfg.MaxUploadBytes, cfg.SessionIdleTTL, logger),
		Accounts: accounts,
		Checkout: service.NewCheckoutService(client, accounts, files, logger),
		Orders:   service.NewOrderService(client, accounts, logger),
		Quoter:   quoter,
		Files:    files,
	}, templates.FS, logger,
		web.WithSecureCookies(cfg.CookieSecure),
		web.WithMaxUpload(cfg.MaxUploadBytes),
	)

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		if err := server.Shutdown(shutdownCtx); err != nil {
			logger.Error("shutdown error", "error", err)
		}
	}()

	logger.Info("backend configured", "api_base", cfg.APIBase)
	if err := server.ListenAndServe(cfg.ListenAddr); err != nil {
		logger.Error("server error", "error", err)
	}
}

// openDatabase opens the local storage database. Test mode keeps it in
// memory so every run starts with no visitors.
func openDatabase(cfg *config.Config, logger *slog.Logger) (*sql.DB, error) {
	if cfg.TestMode {
		logger.Warn("test mode: local storage is in memory")
		return db.OpenForTesting()
	}
	return db.Open(cfg.DBPath)
}

// newQuoteCache uses Redis when configured and reachable so replicas share
// quotes, otherwise an in-process cache.
func newQuoteCache(ctx context.Context, cfg *config.Config, logger *slog.Logger) quote.Cache {
	if cfg.RedisAddr == "" {
		return quote.NewMemoryCache(quoteCacheSize, cfg.QuoteTTL)
	}

	rdb := redis.NewClient(&redis.Options{Addr: cfg.RedisAddr})
	pingCtx, cancel := context.WithTimeout(ctx, 3*time.Second)
	defer cancel()
	if err := rdb.Ping(pingCtx).Err(); err != nil {
		logger.Warn("redis unavailable, using in-memory quote cache", "addr", cfg.RedisAddr, "error", err)
		if cerr := rdb.Close(); cerr != nil {
			logger.Error("failed to close redis client", "error", cerr)
		}
		return quote.NewMemoryCache(quoteCacheSize, cfg.QuoteTTL)
	}
	logger.Info("using redis quote cache", "addr", cfg.RedisAddr)
	return quote.NewRedisCache(rdb, cfg.QuoteTTL)
}

// pruneStorage periodically drops local storage of visitors who have not
// been seen within retention.
func pruneStorage(ctx context.Context, ls *store.LocalStorage, retention time.Duration, logger *slog.Logger) {
	ticker := time.NewTicker(pruneInterval)
	defer ticker.Stop()
	for {
		n, err := ls.PruneBefore(ctx, time.Now().Add(-retention))
		if err != nil {
			logger.Warn("local storage prune failed", "error", err)
		} else if n > 0 {
			logger.Info("pruned local storage", "entries", n)
		}

		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
	}
}
