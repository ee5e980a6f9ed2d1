package lottery

import (
	"context"
	"errors"

	"github.com/sony/gobreaker"
)

// BreakerSource 带熔断器的开奖数据源
type BreakerSource struct {
	source DrawSource

	breaker *gobreaker.CircuitBreaker
	logger  Logger
	config  *CircuitBreakerConfig
}

// NewBreakerSource 创建带熔断器的数据源; "尚未开奖" 不计为失败
func NewBreakerSource(source DrawSource, config *CircuitBreakerConfig, logger Logger) *BreakerSource {
	if config == nil {
		config = DefaultCircuitBreakerConfig()
	}
	if logger == nil {
		logger = NewSilentLogger()
	}
	if !config.Enabled {
		// 如果熔断器未启用，返回一个透传的包装器
		return &BreakerSource{source: source, logger: logger, config: config}
	}

	settings := gobreaker.Settings{
		Name:        config.Name,
		MaxRequests: config.MaxRequests,
		Interval:    config.Interval,
		Timeout:     config.Timeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			// 当请求数达到最小要求且失败率超过阈值时触发熔断
			return counts.Requests >= config.MinRequests &&
				float64(counts.TotalFailures)/float64(counts.Requests) >= config.FailureRatio
		},
		IsSuccessful: func(err error) bool {
			return err == nil || errors.Is(err, ErrNotYetPublished)
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			if config.OnStateChange {
				logger.Warn("Circuit breaker '%s' state changed from %s to %s", name, from, to)
			}
		},
	}

	return &BreakerSource{
		source:  source,
		breaker: gobreaker.NewCircuitBreaker(settings),
		logger:  logger,
		config:  config,
	}
}

// executeWithBreaker 使用熔断器执行操作
func (c *BreakerSource) executeWithBreaker(operation func() (any, error)) (any, error) {
	if c.breaker == nil {
		return operation()
	}

	result, err := c.breaker.Execute(operation)
	switch {
	case errors.Is(err, gobreaker.ErrOpenState):
		return nil, wrapError(ErrCircuitBreakerOpen, err, "requests to the draw source are being rejected")
	case errors.Is(err, gobreaker.ErrTooManyRequests):
		return nil, wrapError(ErrCircuitBreakerOpen, err, "too many requests while half-open")
	}
	return result, err
}

// LatestDrawNo 查询最新期号
func (c *BreakerSource) LatestDrawNo(ctx context.Context) (int, error) {
	result, err := c.executeWithBreaker(func() (any, error) {
		return c.source.LatestDrawNo(ctx)
	})
	if err != nil {
		return 0, err
	}
	return result.(int), nil
}

// FetchDraw 查询指定期号
func (c *BreakerSource) FetchDraw(ctx context.Context, drawNo int) (*DrawRecord, error) {
	result, err := c.executeWithBreaker(func() (any, error) {
		return c.source.FetchDraw(ctx, drawNo)
	})
	if err != nil {
		return nil, err
	}
	return result.(*DrawRecord), nil
}

// State 返回熔断器状态
func (c *BreakerSource) State() string {
	if c.breaker == nil {
		return "disabled"
	}
	return c.breaker.State().String()
}

// Counts 返回当前统计窗口的计数
func (c *BreakerSource) Counts() gobreaker.Counts {
	if c.breaker == nil {
		return gobreaker.Counts{}
	}
	return c.breaker.Counts()
}

// HealthCheck 返回熔断器健康信息
func (c *BreakerSource) HealthCheck() map[string]any {
	counts := c.Counts()
	return map[string]any{
		"name":                  c.config.Name,
		"state":                 c.State(),
		"requests":              counts.Requests,
		"total_successes":       counts.TotalSuccesses,
		"total_failures":        counts.TotalFailures,
		"consecutive_failures":  counts.ConsecutiveFailures,
		"consecutive_successes": counts.ConsecutiveSuccesses,
	}
}
