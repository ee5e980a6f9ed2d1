package lottery

import (
	"sync/atomic"
	"time"
)

// SyncMetrics 同步指标
type SyncMetrics struct {
	Runs          int64 `json:"runs"`            // 同步次数
	FailedRuns    int64 `json:"failed_runs"`     // 失败的同步次数
	Fetches       int64 `json:"fetches"`         // 单期请求次数
	Found         int64 `json:"found"`           // 成功获取的期数
	NotPublished  int64 `json:"not_published"`   // 尚未开奖的结果次数
	FetchErrors   int64 `json:"fetch_errors"`    // 请求失败次数
	FetchTimeNs   int64 `json:"fetch_time_ns"`   // 请求总耗时(纳秒)
	DrawsAppended int64 `json:"draws_appended"`  // 写入的期数
	LastRunUnix   int64 `json:"last_run_unix"`   // 最近一次同步开始时间
	LastAddedUnix int64 `json:"last_added_unix"` // 最近一次写入新数据的时间
}

// SyncMonitor 同步监控器, 可被 CLI 和 Web 服务共享
type SyncMonitor struct {
	metrics SyncMetrics
}

// NewSyncMonitor 创建同步监控器
func NewSyncMonitor() *SyncMonitor { return &SyncMonitor{} }

// RecordRun 记录一次同步开始
func (m *SyncMonitor) RecordRun() {
	atomic.AddInt64(&m.metrics.Runs, 1)
	atomic.StoreInt64(&m.metrics.LastRunUnix, time.Now().Unix())
}

// RecordFailedRun 记录一次失败的同步
func (m *SyncMonitor) RecordFailedRun() { atomic.AddInt64(&m.metrics.FailedRuns, 1) }

// RecordFetch 记录一次单期请求的结果和耗时
func (m *SyncMonitor) RecordFetch(outcome FetchOutcome, d time.Duration) {
	atomic.AddInt64(&m.metrics.Fetches, 1)
	atomic.AddInt64(&m.metrics.FetchTimeNs, int64(d))

	switch outcome {
	case OutcomeFound:
		atomic.AddInt64(&m.metrics.Found, 1)
	case OutcomeNotPublished:
		atomic.AddInt64(&m.metrics.NotPublished, 1)
	case OutcomeTransportError:
		atomic.AddInt64(&m.metrics.FetchErrors, 1)
	}
}

// RecordAppend 记录写入的期数
func (m *SyncMonitor) RecordAppend(n int) {
	if n <= 0 {
		return
	}
	atomic.AddInt64(&m.metrics.DrawsAppended, int64(n))
	atomic.StoreInt64(&m.metrics.LastAddedUnix, time.Now().Unix())
}

// Snapshot 返回指标快照
func (m *SyncMonitor) Snapshot() SyncMetrics {
	return SyncMetrics{
		Runs:          atomic.LoadInt64(&m.metrics.Runs),
		FailedRuns:    atomic.LoadInt64(&m.metrics.FailedRuns),
		Fetches:       atomic.LoadInt64(&m.metrics.Fetches),
		Found:         atomic.LoadInt64(&m.metrics.Found),
		NotPublished:  atomic.LoadInt64(&m.metrics.NotPublished),
		FetchErrors:   atomic.LoadInt64(&m.metrics.FetchErrors),
		FetchTimeNs:   atomic.LoadInt64(&m.metrics.FetchTimeNs),
		DrawsAppended: atomic.LoadInt64(&m.metrics.DrawsAppended),
		LastRunUnix:   atomic.LoadInt64(&m.metrics.LastRunUnix),
		LastAddedUnix: atomic.LoadInt64(&m.metrics.LastAddedUnix),
	}
}

// AverageFetchTime 平均单期请求耗时
func (s SyncMetrics) AverageFetchTime() time.Duration {
	if s.Fetches == 0 {
		return 0
	}
	return time.Duration(s.FetchTimeNs / s.Fetches)
}
