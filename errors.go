package lottery

import (
	"context"
	"errors"
	"fmt"
	"math"
	"math/rand"
	"strings"
	"time"
)

// ErrorCode 错误代码类型
type ErrorCode string

// 错误代码常量
const (
	// 系统级错误 (1000-1999)
	ErrCodeSourceUnavailable ErrorCode = "LOTTERY_1001"
	ErrCodeTransientFetch    ErrorCode = "LOTTERY_1002"
	ErrCodeRedisConnection   ErrorCode = "LOTTERY_1003"
	ErrCodeConfigInvalid     ErrorCode = "LOTTERY_1004"
	ErrCodePersistence       ErrorCode = "LOTTERY_1006"

	// 业务级错误 (2000-2999)
	ErrCodeInvalidParameters  ErrorCode = "LOTTERY_2000"
	ErrCodeInvalidDrawRecord  ErrorCode = "LOTTERY_2001"
	ErrCodeDrawNotFound       ErrorCode = "LOTTERY_2002"
	ErrCodeStoreEmpty         ErrorCode = "LOTTERY_2003"
	ErrCodeNotYetPublished    ErrorCode = "LOTTERY_2004"
	ErrCodeInvalidRetry       ErrorCode = "LOTTERY_2011"
	ErrCodeInvalidLockTimeout ErrorCode = "LOTTERY_2012"
	ErrCodeMalformedInput     ErrorCode = "LOTTERY_2100"

	// 锁相关错误 (3000-3999)
	ErrCodeLockAcquisitionFailed ErrorCode = "LOTTERY_3000"
	ErrCodeLockReleaseFailure    ErrorCode = "LOTTERY_3002"

	// 限流相关错误 (5000-5999)
	ErrCodeCircuitBreakerOpen ErrorCode = "LOTTERY_5002"

	// 状态相关错误 (6000-6999)
	ErrCodeStateSaveFailure      ErrorCode = "LOTTERY_6001"
	ErrCodeStateLoadFailure      ErrorCode = "LOTTERY_6002"
	ErrCodeSerializationFailed   ErrorCode = "LOTTERY_6004"
	ErrCodeDeserializationFailed ErrorCode = "LOTTERY_6005"
)

// ErrorSeverity 错误严重程度
type ErrorSeverity string

const (
	// SeverityCritical 需要人工处理, 重跑也不会自行恢复
	SeverityCritical ErrorSeverity = "critical"
	SeverityMedium   ErrorSeverity = "medium"
)

// LotteryError 带错误码的错误类型
type LotteryError struct {
	Code      ErrorCode      `json:"code"`
	Message   string         `json:"message"`
	Details   string         `json:"details,omitempty"`
	Severity  ErrorSeverity  `json:"severity"`
	Timestamp time.Time      `json:"timestamp"`
	Operation string         `json:"operation,omitempty"`
	Cause     error          `json:"-"`
	Retryable bool           `json:"retryable"`
	Metadata  map[string]any `json:"metadata,omitempty"`
}

// Error 实现 error 接口
func (e *LotteryError) Error() string {
	if e.Details != "" {
		return fmt.Sprintf("[%s] %s: %s", e.Code, e.Message, e.Details)
	}
	return fmt.Sprintf("[%s] %s", e.Code, e.Message)
}

// Unwrap 实现 errors.Unwrap 接口
func (e *LotteryError) Unwrap() error { return e.Cause }

// Is 按错误码比较
func (e *LotteryError) Is(target error) bool {
	if t, ok := target.(*LotteryError); ok {
		return e.Code == t.Code
	}
	return false
}

// Clone 复制一个新的错误实例; 预定义错误是共享的, 附加信息前必须先复制
func (e *LotteryError) Clone() *LotteryError {
	cp := *e
	cp.Timestamp = time.Now()
	cp.Metadata = nil
	return &cp
}

// WithCause 添加原因错误
func (e *LotteryError) WithCause(cause error) *LotteryError {
	e.Cause = cause
	return e
}

// WithDetails 添加详细信息
func (e *LotteryError) WithDetails(details string) *LotteryError {
	e.Details = details
	return e
}

// WithOperation 添加操作信息
func (e *LotteryError) WithOperation(operation string) *LotteryError {
	e.Operation = operation
	return e
}

// WithMetadata 添加元数据
func (e *LotteryError) WithMetadata(key string, value any) *LotteryError {
	if e.Metadata == nil {
		e.Metadata = make(map[string]any)
	}
	e.Metadata[key] = value
	return e
}

// NewError 创建新的错误
func NewError(code ErrorCode, message string) *LotteryError {
	return &LotteryError{
		Code:      code,
		Message:   message,
		Severity:  SeverityMedium,
		Timestamp: time.Now(),
	}
}

// NewRetryableError 创建可重试的错误
func NewRetryableError(code ErrorCode, message string) *LotteryError {
	err := NewError(code, message)
	err.Retryable = true
	return err
}

// NewCriticalError 创建严重错误
func NewCriticalError(code ErrorCode, message string) *LotteryError {
	err := NewError(code, message)
	err.Severity = SeverityCritical
	return err
}

// 预定义的错误实例, 只用于 errors.Is 比较
var (
	// 系统级错误
	ErrSourceUnavailable     = NewRetryableError(ErrCodeSourceUnavailable, "draw source unavailable")
	ErrTransientFetch        = NewRetryableError(ErrCodeTransientFetch, "draw fetch failed")
	ErrRedisConnectionFailed = NewRetryableError(ErrCodeRedisConnection, "Redis connection failed")
	ErrConfigInvalid         = NewCriticalError(ErrCodeConfigInvalid, "configuration is invalid")
	ErrPersistence           = NewCriticalError(ErrCodePersistence, "draw store could not be written")

	// 业务级错误
	ErrInvalidParameters  = NewError(ErrCodeInvalidParameters, "invalid parameters provided")
	ErrInvalidDrawRecord  = NewError(ErrCodeInvalidDrawRecord, "invalid draw record")
	ErrDrawNotFound       = NewError(ErrCodeDrawNotFound, "no draw record for that date")
	ErrStoreEmpty         = NewError(ErrCodeStoreEmpty, "draw store is empty")
	ErrNotYetPublished    = NewError(ErrCodeNotYetPublished, "draw not yet published")
	ErrInvalidRetry       = NewError(ErrCodeInvalidRetry, "invalid retry settings: attempts must be between 0 and 10, interval cannot be negative")
	ErrInvalidLockTimeout = NewError(ErrCodeInvalidLockTimeout, "invalid lock timeout: must be between 1s and 1h")
	ErrMalformedInput     = NewError(ErrCodeMalformedInput, "malformed ticket")

	// 锁相关错误
	ErrLockAcquisitionFailed = NewRetryableError(ErrCodeLockAcquisitionFailed, "failed to acquire distributed lock")
	ErrLockReleaseFailure    = NewError(ErrCodeLockReleaseFailure, "failed to release lock")

	// 限流相关错误
	ErrCircuitBreakerOpen = NewRetryableError(ErrCodeCircuitBreakerOpen, "circuit breaker is open")

	// 状态相关错误
	ErrStateSaveFailure      = NewRetryableError(ErrCodeStateSaveFailure, "failed to save pending batch")
	ErrStateLoadFailure      = NewRetryableError(ErrCodeStateLoadFailure, "failed to load pending batch")
	ErrSerializationFailed   = NewError(ErrCodeSerializationFailed, "serialization failed")
	ErrDeserializationFailed = NewError(ErrCodeDeserializationFailed, "deserialization failed")
)

// wrapError 从预定义错误派生新错误并附加原因
func wrapError(base *LotteryError, cause error, details string) *LotteryError {
	err := base.Clone()
	if details != "" {
		err.WithDetails(details)
	}
	if cause != nil {
		err.WithCause(cause)
	}
	return err
}

// malformed 构造 MalformedInput 错误
func malformed(format string, args ...any) *LotteryError {
	return wrapError(ErrMalformedInput, nil, fmt.Sprintf(format, args...))
}

// NewMalformedInput 供外部包 (识别, 表单) 构造 MalformedInput 错误
func NewMalformedInput(details string, cause error) *LotteryError {
	return wrapError(ErrMalformedInput, cause, details)
}

// UserMessage 把错误转换成面向用户的简短提示
func UserMessage(err error) string {
	switch {
	case err == nil:
		return ""
	case errors.Is(err, ErrDrawNotFound):
		return "No draw record was found for that date."
	case errors.Is(err, ErrStoreEmpty):
		return "No draw results have been downloaded yet."
	case errors.Is(err, ErrSourceUnavailable),
		errors.Is(err, ErrTransientFetch),
		errors.Is(err, ErrCircuitBreakerOpen):
		return "Could not reach the official results source. Please try again later."
	case errors.Is(err, ErrMalformedInput):
		var le *LotteryError
		if errors.As(err, &le) && le.Details != "" {
			return "Malformed ticket: " + le.Details + "."
		}
		return "Malformed ticket."
	default:
		return "Something went wrong while checking the ticket."
	}
}

// IsCritical 检查错误链中是否有严重级别的 LotteryError
func IsCritical(err error) bool {
	var le *LotteryError
	return errors.As(err, &le) && le.Severity == SeverityCritical
}

// IsRetryableError 检查是否为可重试错误
func IsRetryableError(err error) bool {
	if err == nil {
		return false
	}

	var le *LotteryError
	if errors.As(err, &le) {
		return le.Retryable
	}

	errStr := strings.ToLower(err.Error())
	retryablePatterns := []string{
		"connection refused",
		"connection reset",
		"timeout",
		"network is unreachable",
		"temporary failure",
		"server closed",
		"broken pipe",
		"i/o timeout",
		"dial tcp",
		"read tcp",
		"write tcp",
		"no route to host",
		"eof",
		"redis: connection pool timeout",
		"context deadline exceeded",
	}

	for _, pattern := range retryablePatterns {
		if strings.Contains(errStr, pattern) {
			return true
		}
	}

	return false
}

// RetryPolicy 指数退避重试策略
type RetryPolicy struct {
	Attempts      int
	BaseDelay     time.Duration
	MaxDelay      time.Duration
	BackoffFactor float64

	logger Logger
}

// NewRetryPolicy 创建重试策略; attempts 是首次执行之外的重试次数
func NewRetryPolicy(attempts int, baseDelay time.Duration, logger Logger) *RetryPolicy {
	if logger == nil {
		logger = NewSilentLogger()
	}
	return &RetryPolicy{
		Attempts:      attempts,
		BaseDelay:     baseDelay,
		MaxDelay:      30 * time.Second,
		BackoffFactor: 2.0,
		logger:        logger,
	}
}

// Delay 计算第 attempt 次重试前的等待时间
func (p *RetryPolicy) Delay(attempt int) time.Duration {
	if attempt <= 1 {
		return p.BaseDelay
	}

	delay := time.Duration(float64(p.BaseDelay) * math.Pow(p.BackoffFactor, float64(attempt-1)))

	// 添加抖动 (±25%)
	jitter := time.Duration(float64(delay) * 0.25 * (2*rand.Float64() - 1))
	delay += jitter

	if delay > p.MaxDelay {
		delay = p.MaxDelay
	}
	return delay
}

// Do 执行带重试的操作, 返回最后一次的原始错误以便调用方做 errors.Is 判断
func (p *RetryPolicy) Do(ctx context.Context, operation string, fn func(ctx context.Context) error) error {
	var lastErr error

	for attempt := 0; attempt <= p.Attempts; attempt++ {
		if attempt > 0 {
			delay := p.Delay(attempt)
			p.logger.Debug("Retrying %s in %v (attempt %d/%d)", operation, delay, attempt, p.Attempts)

			timer := time.NewTimer(delay)
			select {
			case <-ctx.Done():
				timer.Stop()
				return ctx.Err()
			case <-timer.C:
			}
		}

		err := fn(ctx)
		if err == nil {
			if attempt > 0 {
				p.logger.Info("%s succeeded after %d retries", operation, attempt)
			}
			return nil
		}
		lastErr = err

		if !IsRetryableError(err) {
			p.logger.Debug("%s failed with non-retryable error: %v", operation, err)
			break
		}
	}

	return lastErr
}
