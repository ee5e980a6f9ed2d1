package lottery

import "context"

// DrawStore is the durable, append-only table of historical draws
type DrawStore interface {
	// Latest returns the record with the highest draw number, or ErrStoreEmpty
	Latest(ctx context.Context) (*DrawRecord, error)

	// MaxDrawNo returns the highest stored draw number, or the history floor when empty
	MaxDrawNo(ctx context.Context) (int, error)

	// FindByDate returns the most recently appended record whose normalized date matches
	FindByDate(ctx context.Context, date string) (*DrawRecord, error)

	// FindByDrawNo returns the record with the given draw number, or ErrDrawNotFound
	FindByDrawNo(ctx context.Context, drawNo int) (*DrawRecord, error)

	// Append adds new records, skipping draw numbers already stored
	Append(ctx context.Context, records []DrawRecord) (*AppendReport, error)
}

// DrawSource is the external publisher of official draw results
type DrawSource interface {
	// LatestDrawNo returns the latest published draw number
	LatestDrawNo(ctx context.Context) (int, error)

	// FetchDraw returns one draw, or ErrNotYetPublished when the source answers with a different draw
	FetchDraw(ctx context.Context, drawNo int) (*DrawRecord, error)
}

// SyncLocker serializes synchronization runs across processes
type SyncLocker interface {
	// Acquire takes the lock and returns the function releasing it
	Acquire(ctx context.Context) (release func(context.Context) error, err error)
}

// PendingBuffer keeps a fetched batch that could not be appended, for the next run
type PendingBuffer interface {
	Save(ctx context.Context, records []DrawRecord) error
	Load(ctx context.Context) ([]DrawRecord, error)
	Clear(ctx context.Context) error
}

// Logger defines the interface for logging operations
type Logger interface {
	Info(msg string, args ...any)
	Warn(msg string, args ...any)
	Error(msg string, args ...any)
	Debug(msg string, args ...any)
}
