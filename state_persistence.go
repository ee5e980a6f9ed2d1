package lottery

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/go-redis/redis/v8"
)

// MaxSerializationSize is the maximum allowed size for a serialized pending batch (10MB)
const MaxSerializationSize = 10 * 1024 * 1024

// PendingBatch is a fetched batch that the store refused, kept for the next run
type PendingBatch struct {
	Name    string       `json:"name"`
	Records []DrawRecord `json:"records"`
	SavedAt int64        `json:"saved_at"`
}

// Validate checks the batch before it is written or after it is read
func (b *PendingBatch) Validate() error {
	if b == nil || b.Name == "" {
		return ErrInvalidParameters
	}
	for i := range b.Records {
		if err := b.Records[i].Validate(); err != nil {
			return err
		}
	}
	return nil
}

// RedisPendingBuffer implements PendingBuffer with one JSON value per store
type RedisPendingBuffer struct {
	redisClient *redis.Client
	name        string
	ttl         time.Duration
	logger      Logger
	retry       *RetryPolicy

	now func() time.Time
}

// NewRedisPendingBuffer creates a buffer keyed by name, usually the store path or DSN label
func NewRedisPendingBuffer(redisClient *redis.Client, name string, ttl time.Duration, logger Logger) *RedisPendingBuffer {
	if ttl <= 0 {
		ttl = DefaultPendingTTL
	}
	if logger == nil {
		logger = NewSilentLogger()
	}
	return &RedisPendingBuffer{
		redisClient: redisClient,
		name:        name,
		ttl:         ttl,
		logger:      logger,
		retry:       NewRetryPolicy(DefaultRetryAttempts, DefaultRetryInterval, logger),
		now:         time.Now,
	}
}

func (b *RedisPendingBuffer) key() string { return PendingKeyPrefix + b.name }

// serializePendingBatch serializes a PendingBatch to JSON bytes
func serializePendingBatch(batch *PendingBatch) ([]byte, error) {
	if err := batch.Validate(); err != nil {
		return nil, err
	}

	data, err := json.Marshal(batch)
	if err != nil {
		return nil, wrapError(ErrSerializationFailed, err, batch.Name)
	}
	if len(data) > MaxSerializationSize {
		return nil, wrapError(ErrSerializationFailed, nil,
			fmt.Sprintf("pending batch %s is %d bytes, limit %d", batch.Name, len(data), MaxSerializationSize))
	}
	return data, nil
}

// deserializePendingBatch deserializes JSON bytes back to a PendingBatch
func deserializePendingBatch(data []byte) (*PendingBatch, error) {
	if len(data) == 0 {
		return nil, ErrInvalidParameters
	}

	var batch PendingBatch
	if err := json.Unmarshal(data, &batch); err != nil {
		return nil, wrapError(ErrDeserializationFailed, err, "")
	}
	if err := batch.Validate(); err != nil {
		return nil, wrapError(ErrDeserializationFailed, err, "pending batch failed validation")
	}
	return &batch, nil
}

// Save stores the batch, replacing any earlier one
func (b *RedisPendingBuffer) Save(ctx context.Context, records []DrawRecord) error {
	if len(records) == 0 {
		return nil
	}

	data, err := serializePendingBatch(&PendingBatch{
		Name:    b.name,
		Records: records,
		SavedAt: b.now().Unix(),
	})
	if err != nil {
		return err
	}

	err = b.retry.Do(ctx, "save pending batch", func(ctx context.Context) error {
		return b.redisClient.Set(ctx, b.key(), data, b.ttl).Err()
	})
	if err != nil {
		return wrapError(ErrStateSaveFailure, err, b.key())
	}

	b.logger.Info("Saved %d pending draws under %s", len(records), b.key())
	return nil
}

// Load returns the saved batch, or nil when there is none
func (b *RedisPendingBuffer) Load(ctx context.Context) ([]DrawRecord, error) {
	var data []byte
	err := b.retry.Do(ctx, "load pending batch", func(ctx context.Context) error {
		var err error
		data, err = b.redisClient.Get(ctx, b.key()).Bytes()
		return err
	})
	if errors.Is(err, redis.Nil) {
		return nil, nil
	}
	if err != nil {
		return nil, wrapError(ErrStateLoadFailure, err, b.key())
	}

	batch, err := deserializePendingBatch(data)
	if err != nil {
		return nil, err
	}
	return batch.Records, nil
}

// Clear removes the saved batch
func (b *RedisPendingBuffer) Clear(ctx context.Context) error {
	err := b.retry.Do(ctx, "clear pending batch", func(ctx context.Context) error {
		return b.redisClient.Del(ctx, b.key()).Err()
	})
	if err != nil {
		return wrapError(ErrStateSaveFailure, err, b.key())
	}
	return nil
}
