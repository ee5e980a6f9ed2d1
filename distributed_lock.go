package lottery

import (
	"context"
	"time"

	"github.com/go-redis/redis/v8"
)

// Sync lock strategy:
// - Acquire: Redis SET NX with an expiry, so a crashed run cannot block forever
// - Release: Lua compare-and-delete, so a run whose lock expired cannot delete the next run's lock

const releaseLockScript = `
		if redis.call("GET", KEYS[1]) == ARGV[1] then
			return redis.call("DEL", KEYS[1])
		else
			return 0
		end
	`

// RedisSyncLock implements SyncLocker with a Redis key
type RedisSyncLock struct {
	redisClient   *redis.Client
	key           string
	lockTimeout   time.Duration
	retryAttempts int
	retryInterval time.Duration
	logger        Logger

	newValue func() string
}

// NewRedisSyncLock creates the lock guarding synchronization runs
func NewRedisSyncLock(redisClient *redis.Client, lockTimeout time.Duration, logger Logger) *RedisSyncLock {
	if lockTimeout <= 0 {
		lockTimeout = DefaultLockTimeout
	}
	if logger == nil {
		logger = NewSilentLogger()
	}
	return &RedisSyncLock{
		redisClient:   redisClient,
		key:           LockKeyPrefix + SyncLockKey,
		lockTimeout:   lockTimeout,
		retryAttempts: DefaultRetryAttempts,
		retryInterval: DefaultRetryInterval,
		logger:        logger,
		newValue:      generateLockValue,
	}
}

// Acquire takes the lock with SET NX; a held lock is not waited on, the caller's run is skipped
func (m *RedisSyncLock) Acquire(ctx context.Context) (func(context.Context) error, error) {
	value := m.newValue()

	for attempt := 0; attempt <= m.retryAttempts; attempt++ {
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		default:
		}

		acquired, err := m.redisClient.SetNX(ctx, m.key, value, m.lockTimeout).Result()
		if err != nil {
			if attempt == m.retryAttempts {
				return nil, wrapError(ErrRedisConnectionFailed, err, "acquire "+m.key)
			}
			m.logger.Debug("Lock acquire on %s failed (attempt %d): %v", m.key, attempt+1, err)
			time.Sleep(m.retryInterval)
			continue
		}

		if !acquired {
			return nil, wrapError(ErrLockAcquisitionFailed, nil, m.key+" is held by another run")
		}

		m.logger.Debug("Acquired %s for %v", m.key, m.lockTimeout)
		return func(ctx context.Context) error { return m.release(ctx, value) }, nil
	}

	return nil, wrapError(ErrLockAcquisitionFailed, nil, m.key)
}

func (m *RedisSyncLock) release(ctx context.Context, value string) error {
	result, err := m.redisClient.Eval(ctx, releaseLockScript, []string{m.key}, value).Result()
	if err != nil {
		return wrapError(ErrLockReleaseFailure, err, m.key)
	}

	if n, ok := result.(int64); !ok || n == 0 {
		m.logger.Warn("Lock %s expired before release", m.key)
		return wrapError(ErrLockReleaseFailure, nil, m.key+" was no longer held")
	}
	return nil
}

// RedisSyncOptions pings rdb and, when it answers, returns the options wiring the Redis
// sync lock and pending buffer. An unreachable Redis yields no options.
func RedisSyncOptions(ctx context.Context, rdb *redis.Client, config *SyncConfig, logger Logger) []SyncOption {
	if logger == nil {
		logger = NewSilentLogger()
	}
	if config == nil {
		config = DefaultSyncConfig()
	}

	if err := rdb.Ping(ctx).Err(); err != nil {
		// 没有 Redis 也能同步, 只是失去跨进程互斥和待写缓冲
		logger.Warn("Redis at %s unreachable, running without sync lock: %v", rdb.Options().Addr, err)
		return nil
	}

	return []SyncOption{
		WithSyncLocker(NewRedisSyncLock(rdb, config.LockTimeout, logger)),
		WithPendingBuffer(NewRedisPendingBuffer(rdb, SyncLockKey, config.PendingTTL, logger)),
	}
}
