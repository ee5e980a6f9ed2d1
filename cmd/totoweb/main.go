// Command totoweb serves the ticket checker pages and JSON API.
package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"

	lottery "github.com/kydenul/lottery-checker"
	"github.com/kydenul/lottery-checker/internal/web"
	"github.com/kydenul/lottery-checker/ocr"
	"github.com/kydenul/lottery-checker/source"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "totoweb: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	cm := lottery.NewConfigManager()
	config, err := cm.LoadConfig()
	if err != nil {
		return err
	}

	logger, err := lottery.NewLogger(config.Log)
	if err != nil {
		return err
	}
	defer logger.Sync()

	// 热更新只调整日志级别, 其余配置需要重启
	cm.WatchConfig(logger, func(c *lottery.Config) {
		if err := logger.SetLevel(c.Log.Level); err != nil {
			logger.Warn("Keeping log level: %v", err)
		}
	})

	if !config.Log.Development {
		gin.SetMode(gin.ReleaseMode)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	store, closeStore, err := lottery.OpenStore(ctx, config.Store, logger)
	if err != nil {
		return fmt.Errorf("open store: %w", err)
	}
	defer closeStore()

	breaker := lottery.NewBreakerSource(source.New(config.Source, logger), config.CircuitBreaker, logger)

	opts := []lottery.SyncOption{lottery.WithSyncLogger(logger)}
	if config.Redis.Enabled {
		rdb := lottery.NewRedisClientFromConfig(config.Redis)
		defer rdb.Close()
		opts = append(opts, lottery.RedisSyncOptions(ctx, rdb, config.Sync, logger)...)
	}
	syncer := lottery.NewSynchronizer(store, breaker, config.Sync, opts...)

	provider, err := ocr.NewProvider(config.OCR)
	if err != nil && !errors.Is(err, ocr.ErrNoProvider) {
		return err
	}
	scanner := ocr.NewScanner(provider, config.OCR, logger)

	srv, err := web.New(web.Options{
		Store:   store,
		Scanner: scanner,
		Syncer:  syncer,
		Breaker: breaker,
		Config:  config.Web,
		Logger:  logger,
	})
	if err != nil {
		return err
	}

	httpServer := srv.HTTPServer()
	errCh := make(chan error, 1)
	go func() {
		logger.Info("Listening on %s (store=%s, ocr=%s)", httpServer.Addr, config.Store.Backend, config.OCR.Provider)
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	logger.Info("Shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	return httpServer.Shutdown(shutdownCtx)
}
