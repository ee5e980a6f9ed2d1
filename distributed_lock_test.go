package lottery

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/go-redis/redismock/v8"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestLock(t *testing.T) (*RedisSyncLock, redismock.ClientMock) {
	t.Helper()
	db, mock := redismock.NewClientMock()
	t.Cleanup(func() { db.Close() })

	lock := NewRedisSyncLock(db, 30*time.Second, nil)
	lock.retryInterval = 0
	lock.newValue = func() string { return "run-1" }
	return lock, mock
}

func TestRedisSyncLock_Acquire(t *testing.T) {
	key := LockKeyPrefix + SyncLockKey

	tests := []struct {
		name      string
		setupMock func(mock redismock.ClientMock)
		wantErr   error
	}{
		{
			name: "free",
			setupMock: func(mock redismock.ClientMock) {
				mock.ExpectSetNX(key, "run-1", 30*time.Second).SetVal(true)
			},
		},
		{
			name: "held by another run",
			setupMock: func(mock redismock.ClientMock) {
				mock.ExpectSetNX(key, "run-1", 30*time.Second).SetVal(false)
			},
			wantErr: ErrLockAcquisitionFailed,
		},
		{
			name: "redis recovers on retry",
			setupMock: func(mock redismock.ClientMock) {
				mock.ExpectSetNX(key, "run-1", 30*time.Second).SetErr(errors.New("connection reset"))
				mock.ExpectSetNX(key, "run-1", 30*time.Second).SetVal(true)
			},
		},
		{
			name: "redis down",
			setupMock: func(mock redismock.ClientMock) {
				mock.ExpectSetNX(key, "run-1", 30*time.Second).SetErr(errors.New("connection refused"))
				mock.ExpectSetNX(key, "run-1", 30*time.Second).SetErr(errors.New("connection refused"))
			},
			wantErr: ErrRedisConnectionFailed,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			lock, mock := newTestLock(t)
			tt.setupMock(mock)

			release, err := lock.Acquire(context.Background())
			if tt.wantErr != nil {
				assert.ErrorIs(t, err, tt.wantErr)
				assert.Nil(t, release)
			} else {
				require.NoError(t, err)
				assert.NotNil(t, release)
			}

			assert.NoError(t, mock.ExpectationsWereMet())
		})
	}
}

func TestRedisSyncLock_Release(t *testing.T) {
	key := LockKeyPrefix + SyncLockKey

	t.Run("owner deletes the key", func(t *testing.T) {
		lock, mock := newTestLock(t)
		mock.ExpectSetNX(key, "run-1", 30*time.Second).SetVal(true)
		mock.ExpectEval(releaseLockScript, []string{key}, "run-1").SetVal(int64(1))

		release, err := lock.Acquire(context.Background())
		require.NoError(t, err)
		assert.NoError(t, release(context.Background()))
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("expired lock is reported", func(t *testing.T) {
		lock, mock := newTestLock(t)
		mock.ExpectSetNX(key, "run-1", 30*time.Second).SetVal(true)
		mock.ExpectEval(releaseLockScript, []string{key}, "run-1").SetVal(int64(0))

		release, err := lock.Acquire(context.Background())
		require.NoError(t, err)
		assert.ErrorIs(t, release(context.Background()), ErrLockReleaseFailure)
		assert.NoError(t, mock.ExpectationsWereMet())
	})
}

func TestRedisSyncLock_CancelledContext(t *testing.T) {
	lock, mock := newTestLock(t)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := lock.Acquire(ctx)
	assert.ErrorIs(t, err, context.Canceled)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestGenerateLockValue(t *testing.T) {
	a, b := generateLockValue(), generateLockValue()
	assert.Len(t, a, 32)
	assert.NotEqual(t, a, b)
}

func TestRedisSyncOptions(t *testing.T) {
	tests := []struct {
		name      string
		setupMock func(mock redismock.ClientMock)
		wantRedis bool
	}{
		{
			name: "reachable",
			setupMock: func(mock redismock.ClientMock) {
				mock.ExpectPing().SetVal("PONG")
			},
			wantRedis: true,
		},
		{
			name: "unreachable",
			setupMock: func(mock redismock.ClientMock) {
				mock.ExpectPing().SetErr(errors.New("dial tcp 127.0.0.1:6379: connection refused"))
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			db, mock := redismock.NewClientMock()
			defer db.Close()
			tt.setupMock(mock)

			opts := RedisSyncOptions(context.Background(), db, DefaultSyncConfig(), nil)
			s := NewSynchronizer(newTestCSVStore(t), &fakeSource{}, nil, opts...)

			if tt.wantRedis {
				assert.Len(t, opts, 2)
				assert.IsType(t, &RedisSyncLock{}, s.locker)
				assert.IsType(t, &RedisPendingBuffer{}, s.pending)
			} else {
				assert.Empty(t, opts)
				assert.Nil(t, s.locker)
				assert.Nil(t, s.pending)
			}
			assert.NoError(t, mock.ExpectationsWereMet())
		})
	}
}
