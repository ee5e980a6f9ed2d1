package lottery

import "time"

const (
	// NumbersPerDraw is the count of official winning numbers in one draw
	NumbersPerDraw = 6

	// MinNumber is the lowest number on the TOTO board
	MinNumber = 1

	// MaxNumber is the highest number on the TOTO board
	MaxNumber = 49

	// MinTicketNumbers is the smallest ticket (an ordinary entry)
	MinTicketNumbers = 6

	// MaxTicketNumbers is the largest system entry accepted
	MaxTicketNumbers = 12

	// PrizeUnavailable is written when a tier has no published amount
	PrizeUnavailable = "-"

	// DefaultHistoryFloor is reported by an empty store; draws at or below it are never backfilled
	DefaultHistoryFloor = 3850
)

const (
	// DefaultSourceBaseURL is the official result page, keyed by the sppl query parameter
	DefaultSourceBaseURL = "https://www.singaporepools.com.sg/en/product/sr/Pages/toto_results.aspx"

	// DefaultSourceUserAgent is sent with every result page request
	DefaultSourceUserAgent = "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/120.0.0.0 Safari/537.36"

	// DefaultSourceTimeout bounds one result page round trip
	DefaultSourceTimeout = 10 * time.Second

	// DefaultRetryAttempts is the default number of retry attempts
	DefaultRetryAttempts = 1

	// DefaultRetryInterval is the default interval between retry attempts
	DefaultRetryInterval = 500 * time.Millisecond

	// MaxRetryAttempts is the maximum number of retry attempts allowed
	MaxRetryAttempts = 10

	// DefaultMinRequestDelay is the politeness gap between consecutive source requests
	DefaultMinRequestDelay = 1 * time.Second

	// DefaultDegradedScanLimit disables degraded scanning
	DefaultDegradedScanLimit = 0

	// MaxDegradedScanLimit caps how far a degraded run may scan past the stored maximum
	MaxDegradedScanLimit = 50
)

const (
	// LockKeyPrefix is the prefix for Redis lock keys
	LockKeyPrefix = "toto:lock:"

	// SyncLockKey names the lock held for a whole synchronization run
	SyncLockKey = "sync"

	// DefaultLockTimeout is the expiration of the sync lock
	DefaultLockTimeout = 5 * time.Minute

	// MinLockTimeout is the minimum lock timeout allowed
	MinLockTimeout = 1 * time.Second

	// MaxLockTimeout is the maximum lock timeout allowed
	MaxLockTimeout = 1 * time.Hour

	// PendingKeyPrefix is the prefix for Redis pending-batch keys
	PendingKeyPrefix = "toto:pending:"

	// DefaultPendingTTL keeps an unwritten batch around for a week of daily runs
	DefaultPendingTTL = 7 * 24 * time.Hour
)

const (
	// DefaultCircuitBreakerName is the default name for Circuit Breaker
	DefaultCircuitBreakerName = "toto-source"

	// DefaultCircuitBreakerMaxRequests is the default max requests
	DefaultCircuitBreakerMaxRequests = 1

	// DefaultCircuitBreakerInterval is the default interval
	DefaultCircuitBreakerInterval = 60 * time.Second

	// DefaultCircuitBreakerTimeout is the default timeout
	DefaultCircuitBreakerTimeout = 5 * time.Minute

	// DefaultCircuitBreakerFailureRatio is the default failure ratio
	DefaultCircuitBreakerFailureRatio = 0.6

	// DefaultCircuitBreakerMinRequests is the default min requests
	DefaultCircuitBreakerMinRequests = 3

	// DefaultCircuitBreakerOnStateChange is the default on state change
	DefaultCircuitBreakerOnStateChange = true
)

const (
	DefaultRedisAddr         = "localhost:6379"
	DefaultRedisPassword     = ""
	DefaultRedisDB           = 0
	DefaultRedisPoolSize     = 10
	DefaultRedisMinIdleConns = 1
	DefaultRedisMaxRetries   = 3
	DefaultRedisDialTimeout  = 5 * time.Second
	DefaultRedisReadTimeout  = 3 * time.Second
	DefaultRedisWriteTimeout = 3 * time.Second
	DefaultRedisPoolTimeout  = 4 * time.Second
)

const (
	StoreBackendCSV      = "csv"
	StoreBackendPostgres = "postgres"

	DefaultStoreBackend = StoreBackendCSV
	DefaultCSVPath      = "toto_history.csv"
)
