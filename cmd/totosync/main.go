// Command totosync brings the local TOTO draw history up to date with the
// official results page. It takes no flags; configuration comes from
// config.yaml, .env and TOTO_* environment variables.
//
// Exit status: 0 when the run finished (including "already up to date" and a
// scan stopped by a failed draw request after saving earlier draws), 1 when
// the latest draw number could not be determined, 2 when the store or the
// configuration could not be used.
package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	lottery "github.com/kydenul/lottery-checker"
	"github.com/kydenul/lottery-checker/source"
)

const (
	exitOK                = 0
	exitSourceUnavailable = 1
	exitFailure           = 2
)

func main() {
	os.Exit(run())
}

func run() int {
	config, err := lottery.NewConfigManager().LoadConfig()
	if err != nil {
		fmt.Fprintf(os.Stderr, "totosync: %v\n", err)
		return exitFailure
	}

	logger, err := lottery.NewLogger(config.Log)
	if err != nil {
		fmt.Fprintf(os.Stderr, "totosync: %v\n", err)
		return exitFailure
	}
	defer logger.Sync()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	store, closeStore, err := lottery.OpenStore(ctx, config.Store, logger)
	if err != nil {
		logger.Error("Opening %s store failed: %v", config.Store.Backend, err)
		return exitFailure
	}
	defer closeStore()

	src := lottery.NewBreakerSource(source.New(config.Source, logger), config.CircuitBreaker, logger)

	opts := []lottery.SyncOption{lottery.WithSyncLogger(logger)}
	if config.Redis.Enabled {
		rdb := lottery.NewRedisClientFromConfig(config.Redis)
		defer rdb.Close()
		opts = append(opts, lottery.RedisSyncOptions(ctx, rdb, config.Sync, logger)...)
	}

	syncer := lottery.NewSynchronizer(store, src, config.Sync, opts...)
	report, err := syncer.Sync(ctx)
	logReport(logger, syncer, report, err)

	return exitCode(err)
}

// exitCode maps the outcome of a run to the process status
func exitCode(err error) int {
	switch {
	case err == nil:
		return exitOK
	case errors.Is(err, lottery.ErrSourceUnavailable):
		return exitSourceUnavailable
	case errors.Is(err, lottery.ErrLockAcquisitionFailed):
		// another run holds the lock and will do the work
		return exitOK
	default:
		return exitFailure
	}
}

func logReport(logger lottery.Logger, syncer *lottery.Synchronizer, report *lottery.SyncReport, err error) {
	m := syncer.Monitor().Snapshot()

	switch {
	case errors.Is(err, lottery.ErrLockAcquisitionFailed):
		logger.Info("Another synchronization is running; nothing to do")
	case lottery.IsCritical(err):
		logger.Error("Synchronization failed and needs attention: %v", err)
		if report != nil && len(report.Pending) > 0 {
			logger.Error("%d fetched draws were not written", len(report.Pending))
		}
	case err != nil:
		logger.Error("Synchronization failed: %v", err)
		if report != nil && len(report.Pending) > 0 {
			logger.Error("%d fetched draws were not written", len(report.Pending))
		}
	case report.UpToDate():
		logger.Info("Already up to date at draw %d", report.RemoteLatest)
	default:
		logger.Info("Synchronization %s: added %v, stopped at %d, %d requests (avg %v)",
			report.State, report.Added, report.StopDrawNo, m.Fetches, m.AverageFetchTime())
		if report.FetchErr != nil {
			logger.Warn("Scan stopped early: %v", report.FetchErr)
		}
	}
}
