package lottery

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"
)

// Synchronizer brings the store up to date with the draw source, one draw at a time
type Synchronizer struct {
	store  DrawStore
	source DrawSource
	config *SyncConfig

	logger  Logger
	locker  SyncLocker
	pending PendingBuffer
	monitor *SyncMonitor
	retry   *RetryPolicy

	// running is held for a whole run; a second caller in this process is turned away
	running sync.Mutex

	// lastRequest is when the source was last called, guarded by running
	lastRequest time.Time
	now         func() time.Time
}

// SyncOption configures optional collaborators
type SyncOption func(*Synchronizer)

// WithSyncLogger sets the logger
func WithSyncLogger(logger Logger) SyncOption {
	return func(s *Synchronizer) {
		if logger != nil {
			s.logger = logger
		}
	}
}

// WithSyncLocker guards each run with a cross-process lock
func WithSyncLocker(locker SyncLocker) SyncOption {
	return func(s *Synchronizer) { s.locker = locker }
}

// WithPendingBuffer keeps unwritten batches for the next run
func WithPendingBuffer(buf PendingBuffer) SyncOption {
	return func(s *Synchronizer) { s.pending = buf }
}

// WithSyncMonitor records run and fetch metrics
func WithSyncMonitor(m *SyncMonitor) SyncOption {
	return func(s *Synchronizer) {
		if m != nil {
			s.monitor = m
		}
	}
}

// NewSynchronizer creates a synchronizer over store and source
func NewSynchronizer(store DrawStore, source DrawSource, config *SyncConfig, opts ...SyncOption) *Synchronizer {
	if config == nil {
		config = DefaultSyncConfig()
	}

	s := &Synchronizer{
		store:   store,
		source:  source,
		config:  config,
		logger:  NewSilentLogger(),
		monitor: NewSyncMonitor(),
		now:     time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	s.retry = NewRetryPolicy(config.RetryAttempts, config.RetryInterval, s.logger)
	return s
}

// Monitor returns the metrics collector
func (s *Synchronizer) Monitor() *SyncMonitor { return s.monitor }

// Sync scans (max stored .. remote latest] in ascending order and appends what it found in one batch.
//
// The returned error is set only when the run failed as a whole: SourceUnavailable,
// PersistenceError or a held lock. A scan stopped by a failed draw request still
// persists the draws fetched before it and reports the failure in SyncReport.FetchErr.
// Runs never overlap: a call made while another run is in progress returns
// ErrLockAcquisitionFailed without touching the source.
func (s *Synchronizer) Sync(ctx context.Context) (*SyncReport, error) {
	start := time.Now()
	report := &SyncReport{State: ScanScanning}
	defer func() { report.Duration = time.Since(start) }()

	if !s.running.TryLock() {
		report.State = ScanStoppedError
		return report, wrapError(ErrLockAcquisitionFailed, nil, "a synchronization is already running in this process")
	}
	defer s.running.Unlock()

	s.monitor.RecordRun()

	if s.locker != nil {
		release, err := s.locker.Acquire(ctx)
		if err != nil {
			report.State = ScanStoppedError
			s.monitor.RecordFailedRun()
			return report, err
		}
		defer func() {
			if err := release(context.WithoutCancel(ctx)); err != nil {
				s.logger.Warn("Releasing sync lock: %v", err)
			}
		}()
	}

	if err := s.flushPending(ctx, report); err != nil {
		report.State = ScanStoppedError
		s.monitor.RecordFailedRun()
		return report, err
	}

	latest, latestErr := s.fetchLatest(ctx)
	if latestErr != nil && s.config.DegradedScanLimit == 0 {
		s.logger.Error("Cannot determine latest draw: %v", latestErr)
		report.State = ScanStoppedError
		s.monitor.RecordFailedRun()
		return report, wrapError(ErrSourceUnavailable, latestErr, "latest draw number")
	}

	maxNo, err := s.store.MaxDrawNo(ctx)
	if err != nil {
		report.State = ScanStoppedError
		s.monitor.RecordFailedRun()
		return report, err
	}

	if latestErr != nil {
		latest = maxNo + s.config.DegradedScanLimit
		report.Degraded = true
		s.logger.Warn("Latest draw unknown (%v); degraded scan up to draw %d", latestErr, latest)
	}

	report.RemoteLatest = latest
	report.StartDrawNo = maxNo + 1

	if maxNo >= latest {
		report.State = ScanComplete
		s.logger.Info("Store is up to date at draw %d", maxNo)
		return report, nil
	}

	s.logger.Info("Scanning draws %d..%d", maxNo+1, latest)
	report.Pending = s.scan(ctx, report, maxNo+1, latest)

	if len(report.Pending) == 0 {
		return report, nil
	}
	// 扫描被取消时, 已获取的记录仍然要写入
	if err := s.persist(context.WithoutCancel(ctx), report); err != nil {
		s.monitor.RecordFailedRun()
		return report, err
	}
	return report, nil
}

// scan runs the state machine and returns the accumulated records
func (s *Synchronizer) scan(ctx context.Context, report *SyncReport, from, to int) []DrawRecord {
	var found []DrawRecord

	for no := from; no <= to && report.State == ScanScanning; no++ {
		rec, outcome, err := s.fetch(ctx, no)
		report.Outcomes = append(report.Outcomes, DrawOutcome{DrawNo: no, Outcome: outcome})

		switch outcome {
		case OutcomeFound:
			s.logger.Debug("Fetched draw %d (%s)", no, rec.DrawDate)
			found = append(found, *rec)
		default:
			s.stop(report, no, outcome, err)
		}
	}

	if report.State == ScanScanning {
		report.State = ScanComplete
	}
	return found
}

// stop moves the scan to its terminal state for the given outcome
func (s *Synchronizer) stop(report *SyncReport, drawNo int, outcome FetchOutcome, err error) {
	report.StopDrawNo = drawNo

	switch outcome {
	case OutcomeNotPublished:
		report.State = ScanStoppedNotPublished
		s.logger.Info("Draw %d is not published yet; stopping", drawNo)
	default:
		report.State = ScanStoppedError
		report.FetchErr = wrapError(ErrTransientFetch, err, fmt.Sprintf("draw %d", drawNo))
		s.logger.Error("Fetching draw %d failed, keeping earlier draws: %v", drawNo, err)
	}
}

func (s *Synchronizer) fetchLatest(ctx context.Context) (int, error) {
	var latest int
	err := s.retry.Do(ctx, "fetch latest draw number", func(ctx context.Context) error {
		if err := s.pace(ctx); err != nil {
			return err
		}
		n, err := s.source.LatestDrawNo(ctx)
		s.lastRequest = s.now()
		if err != nil {
			return err
		}
		if n <= 0 {
			return fmt.Errorf("source reported latest draw %d", n)
		}
		latest = n
		return nil
	})
	return latest, err
}

func (s *Synchronizer) fetch(ctx context.Context, drawNo int) (*DrawRecord, FetchOutcome, error) {
	startTime := time.Now()

	var rec *DrawRecord
	err := s.retry.Do(ctx, fmt.Sprintf("fetch draw %d", drawNo), func(ctx context.Context) error {
		if err := s.pace(ctx); err != nil {
			return err
		}
		r, err := s.source.FetchDraw(ctx, drawNo)
		s.lastRequest = s.now()
		rec = r
		return err
	})

	outcome, err := classifyFetch(drawNo, rec, err)
	s.monitor.RecordFetch(outcome, time.Since(startTime))
	return rec, outcome, err
}

// pace blocks until MinRequestDelay has passed since the previous source request
// finished; retries are paced the same way
func (s *Synchronizer) pace(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	if !s.lastRequest.IsZero() && s.config.MinRequestDelay > 0 {
		if remaining := s.config.MinRequestDelay - s.now().Sub(s.lastRequest); remaining > 0 {
			timer := time.NewTimer(remaining)
			select {
			case <-ctx.Done():
				timer.Stop()
				return ctx.Err()
			case <-timer.C:
			}
		}
	}
	return nil
}

// persist appends report.Pending in one batch; on failure the batch stays in the report
// and, when configured, in the pending buffer
func (s *Synchronizer) persist(ctx context.Context, report *SyncReport) error {
	result, err := s.store.Append(ctx, report.Pending)
	if err != nil {
		s.logger.Error("Appending %d draws failed: %v", len(report.Pending), err)
		if s.pending != nil {
			if saveErr := s.pending.Save(ctx, report.Pending); saveErr != nil {
				s.logger.Error("Saving pending draws failed: %v", saveErr)
			}
		}
		if errors.Is(err, ErrPersistence) {
			return err
		}
		return wrapError(ErrPersistence, err, "append")
	}

	report.Added = append(report.Added, result.Added...)
	report.Skipped = append(report.Skipped, result.Skipped...)
	report.Pending = nil
	s.monitor.RecordAppend(len(result.Added))

	s.logger.Info("Added %d draws (skipped %d)", len(result.Added), len(result.Skipped))
	return nil
}

// Flush retries writing a report's pending records; it waits for a running sync to finish
func (s *Synchronizer) Flush(ctx context.Context, report *SyncReport) error {
	if report == nil || len(report.Pending) == 0 {
		return nil
	}

	s.running.Lock()
	defer s.running.Unlock()
	if err := s.persist(ctx, report); err != nil {
		return err
	}
	if s.pending != nil {
		if err := s.pending.Clear(ctx); err != nil {
			s.logger.Warn("Clearing pending draws failed: %v", err)
		}
	}
	return nil
}

// flushPending writes a batch left behind by an earlier run before scanning
func (s *Synchronizer) flushPending(ctx context.Context, report *SyncReport) error {
	if s.pending == nil {
		return nil
	}

	records, err := s.pending.Load(ctx)
	if err != nil {
		s.logger.Warn("Loading pending draws failed, continuing without them: %v", err)
		return nil
	}
	if len(records) == 0 {
		return nil
	}

	result, err := s.store.Append(ctx, records)
	if err != nil {
		s.logger.Error("Pending draws still cannot be written: %v", err)
		if errors.Is(err, ErrPersistence) {
			return err
		}
		return wrapError(ErrPersistence, err, "append pending")
	}

	report.Recovered = result.Added
	s.monitor.RecordAppend(len(result.Added))
	s.logger.Info("Recovered %d pending draws", len(result.Added))

	if err := s.pending.Clear(ctx); err != nil {
		s.logger.Warn("Clearing pending draws failed: %v", err)
	}
	return nil
}
