// ============================================================================
// Hash-Queue Metrics - Prometheus 監控指標
// ============================================================================
//
// Package: internal/metrics
// 文件: metrics.go
// 功能: 收集和暴露佇列運行指標，支持 Prometheus 抓取
//
// 指標分類:
//
//   1. 任務計數器 (Counter):
//      - hashqueue_jobs_submitted_total: 通過准入的任務總數
//      - hashqueue_jobs_rejected_total{reason}: 被拒絕的提交
//        reason ∈ invalid_algorithm | invalid_input | queue_full
//      - hashqueue_jobs_dispatched_total: 已交給 worker 的任務總數
//      - hashqueue_jobs_completed_total: 成功完成任務總數
//      - hashqueue_jobs_failed_total: 失敗任務總數
//
//   2. 性能指標 (Histogram):
//      - hashqueue_job_duration_seconds{algorithm}: 執行時間分佈
//
//   3. 狀態指標 (Gauge):
//      - hashqueue_jobs_queued / hashqueue_jobs_in_flight / hashqueue_history_size
//      - hashqueue_tick_interval_seconds: 當前 tick 間隔
//
// Prometheus 查詢示例:
//
//   # 每分鐘完成任務數
//   rate(hashqueue_jobs_completed_total[1m])
//
//   # 各演算法 95 分位執行時間
//   histogram_quantile(0.95, sum by (le, algorithm) (rate(hashqueue_job_duration_seconds_bucket[5m])))
//
//   # 佇列滿拒絕率
//   rate(hashqueue_jobs_rejected_total{reason="queue_full"}[5m])
//
// 每個 Collector 擁有自己的 Registry，因此同一進程可以建立多個實例
// （測試中每個 Controller 一個）。
//
// ============================================================================

package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "hashqueue"

// 拒絕原因標籤
const (
	ReasonInvalidAlgorithm = "invalid_algorithm"
	ReasonInvalidInput     = "invalid_input"
	ReasonQueueFull        = "queue_full"
)

// Collector Prometheus 指標收集器
type Collector struct {
	registry *prometheus.Registry

	// 任務相關指標
	jobsSubmitted  prometheus.Counter
	jobsRejected   *prometheus.CounterVec
	jobsDispatched prometheus.Counter
	jobsCompleted  prometheus.Counter
	jobsFailed     prometheus.Counter

	// 效能指標
	jobDuration *prometheus.HistogramVec

	// 狀態指標
	jobsQueued   prometheus.Gauge
	jobsInFlight prometheus.Gauge
	historySize  prometheus.Gauge
	tickInterval prometheus.Gauge
}

// NewCollector 創建新的指標收集器
//
// withRuntime 為 true 時同時註冊 Go runtime 與 process 指標。
func NewCollector(withRuntime bool) *Collector {
	c := &Collector{
		registry: prometheus.NewRegistry(),
		jobsSubmitted: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "jobs_submitted_total",
			Help:      "Total number of jobs admitted to the queue",
		}),
		jobsRejected: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "jobs_rejected_total",
			Help:      "Total number of submissions rejected at admission",
		}, []string{"reason"}),
		jobsDispatched: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "jobs_dispatched_total",
			Help:      "Total number of jobs handed to a worker",
		}),
		jobsCompleted: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "jobs_completed_total",
			Help:      "Total number of jobs that finished with a result",
		}),
		jobsFailed: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "jobs_failed_total",
			Help:      "Total number of jobs that finished with an error",
		}),
		jobDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "job_duration_seconds",
			Help:      "Algorithm execution time in seconds",
			Buckets:   []float64{0.001, 0.01, 0.1, 0.5, 1, 2.5, 5, 10, 30},
		}, []string{"algorithm"}),
		jobsQueued: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "jobs_queued",
			Help:      "Current number of queued jobs",
		}),
		jobsInFlight: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "jobs_in_flight",
			Help:      "Current number of processing jobs",
		}),
		historySize: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "history_size",
			Help:      "Current number of terminal jobs retained in history",
		}),
		tickInterval: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "tick_interval_seconds",
			Help:      "Current scheduler tick interval in seconds",
		}),
	}

	c.registry.MustRegister(
		c.jobsSubmitted,
		c.jobsRejected,
		c.jobsDispatched,
		c.jobsCompleted,
		c.jobsFailed,
		c.jobDuration,
		c.jobsQueued,
		c.jobsInFlight,
		c.historySize,
		c.tickInterval,
	)
	if withRuntime {
		c.registry.MustRegister(
			collectors.NewGoCollector(),
			collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		)
	}

	return c
}

// RecordSubmitted 記錄任務通過准入
func (c *Collector) RecordSubmitted() {
	c.jobsSubmitted.Inc()
}

// RecordRejected 記錄提交被拒絕
func (c *Collector) RecordRejected(reason string) {
	c.jobsRejected.WithLabelValues(reason).Inc()
}

// RecordDispatch 記錄任務分派
func (c *Collector) RecordDispatch() {
	c.jobsDispatched.Inc()
}

// RecordCompleted 記錄任務完成
func (c *Collector) RecordCompleted(algorithm string, d time.Duration) {
	c.jobsCompleted.Inc()
	c.jobDuration.WithLabelValues(algorithm).Observe(d.Seconds())
}

// RecordFailed 記錄任務失敗；d 為 0 表示未實際執行（例如演算法已被移除）
func (c *Collector) RecordFailed(algorithm string, d time.Duration) {
	c.jobsFailed.Inc()
	if d > 0 {
		c.jobDuration.WithLabelValues(algorithm).Observe(d.Seconds())
	}
}

// UpdateQueueStats 更新佇列狀態統計
func (c *Collector) UpdateQueueStats(queued, inFlight, history int) {
	c.jobsQueued.Set(float64(queued))
	c.jobsInFlight.Set(float64(inFlight))
	c.historySize.Set(float64(history))
}

// SetInterval 記錄當前 tick 間隔
func (c *Collector) SetInterval(d time.Duration) {
	c.tickInterval.Set(d.Seconds())
}

// Handler 返回 /metrics 端點
func (c *Collector) Handler() http.Handler {
	return promhttp.HandlerFor(c.registry, promhttp.HandlerOpts{Registry: c.registry})
}
