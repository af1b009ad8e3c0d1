// ============================================================================
// Hash-Queue 控制器 - 系統核心協調器
// ============================================================================
//
// Package: internal/controller
// 文件: controller.go
// 功能: 協調准入、調度、執行與完成，對外提供所有佇列操作
//
// 架構設計:
//   Controller 負責協調以下組件：
//   - JobManager: 任務狀態（queued / processing / history）
//   - Registry: 演算法名稱 -> 實作
//   - config.Store: 執行期參數（interval, maxQueue, maxParallelJobs）
//   - WorkerPool: 每個任務一個 goroutine
//   - Snapshot: 歷史紀錄持久化（可選）
//   - Hub: 生命週期事件推送
//
// 核心循環 (2 個並發 Goroutine):
//   1. Dispatch Loop - 每個 tick 呼叫 Tick()，interval 改變時重建 ticker
//   2. Result Loop - 接收 worker 執行結果，寫入完成紀錄
//
// Tick 規則:
//   while queue 非空 && inFlight < maxParallelJobs:
//     pop head → 紀錄不存在則跳過 → processing
//     → 演算法不存在則立即 failed(unsupported)
//     → 否則交給 Pool（不阻塞）
//
// 關閉順序:
//   1. close(stopCh)      → dispatchLoop 退出，不再提交新任務
//   2. pool.Stop(ctx)     → 等待執行中任務；ctx 到期則取消
//   3. resultLoop 排空結果後退出
//   4. 寫入歷史快照，關閉 Hub
//
// ============================================================================

package controller

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/ChuLiYu/hash-queue/internal/algorithm"
	"github.com/ChuLiYu/hash-queue/internal/config"
	"github.com/ChuLiYu/hash-queue/internal/events"
	"github.com/ChuLiYu/hash-queue/internal/jobmanager"
	"github.com/ChuLiYu/hash-queue/internal/metrics"
	"github.com/ChuLiYu/hash-queue/internal/snapshot"
	"github.com/ChuLiYu/hash-queue/internal/worker"
	"github.com/ChuLiYu/hash-queue/pkg/types"
)

// ============================================================================
// 錯誤定義
// ============================================================================

var (
	ErrAlreadyStarted = errors.New("controller already started")
	ErrStopped        = errors.New("controller is stopped")
)

// ============================================================================
// 資料結構定義
// ============================================================================

// Options Controller 配置
type Options struct {
	Runtime      types.RuntimeConfig // 初始執行期參數
	JobTimeout   time.Duration       // 單一任務執行上限，0 表示不限時
	HistorySize  int                 // 歷史紀錄容量，<= 0 使用預設 500
	SnapshotPath string              // 歷史快照路徑，空字串表示不持久化
	Registry     *algorithm.Registry // nil 時使用預設演算法
	Metrics      *metrics.Collector  // nil 時建立一個不含 runtime 指標的 Collector
	Hub          *events.Hub         // nil 時建立新的 Hub
	ResultBuffer int                 // 結果通道緩衝，<= 0 時為 64
	Logger       *slog.Logger        // nil 時使用 slog.Default()
}

// Controller 核心控制器
type Controller struct {
	tickMu   sync.Mutex // 序列化 Tick，保證 inFlight 上限
	mu       sync.Mutex // 保護 started/stopped
	jobs     *jobmanager.JobManager
	registry *algorithm.Registry
	store    *config.Store
	pool     *worker.Pool
	metrics  *metrics.Collector
	snapshot *snapshot.Manager // 可能為 nil
	hub      *events.Hub
	log      *slog.Logger

	jobTimeout time.Duration
	startTime  time.Time
	started    bool
	stopped    bool

	stopCh       chan struct{}
	dispatchDone chan struct{}
	resultDone   chan struct{}
}

// ============================================================================
// 建構與生命週期
// ============================================================================

// New 建立新的 Controller 實例
//
// 返回值：
//   - error: 初始執行期參數不合法（*config.ValidationError）
func New(opts Options) (*Controller, error) {
	store, err := config.NewStore(opts.Runtime)
	if err != nil {
		return nil, err
	}

	if opts.Registry == nil {
		opts.Registry = algorithm.NewDefaultRegistry()
	}
	if opts.Metrics == nil {
		opts.Metrics = metrics.NewCollector(false)
	}
	if opts.Hub == nil {
		opts.Hub = events.NewHub(64)
	}
	if opts.ResultBuffer <= 0 {
		opts.ResultBuffer = 64
	}
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}

	c := &Controller{
		jobs:         jobmanager.NewJobManager(opts.HistorySize),
		registry:     opts.Registry,
		store:        store,
		pool:         worker.NewPool(opts.ResultBuffer),
		metrics:      opts.Metrics,
		hub:          opts.Hub,
		log:          opts.Logger.With("component", "controller"),
		jobTimeout:   opts.JobTimeout,
		stopCh:       make(chan struct{}),
		dispatchDone: make(chan struct{}),
		resultDone:   make(chan struct{}),
	}
	if opts.SnapshotPath != "" {
		c.snapshot = snapshot.NewManager(opts.SnapshotPath)
	}
	c.metrics.SetInterval(opts.Runtime.Interval)
	return c, nil
}

// Start 啟動 Controller
//
// 流程：
//  1. 載入歷史快照（若有設定）
//  2. 啟動 Worker Pool
//  3. 啟動 dispatch / result 循環
func (c *Controller) Start() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.stopped {
		return ErrStopped
	}
	if c.started {
		return ErrAlreadyStarted
	}
	c.startTime = time.Now()

	if err := c.loadSnapshot(); err != nil {
		return fmt.Errorf("loadSnapshot failed: %w", err)
	}

	if err := c.pool.Start(); err != nil {
		return fmt.Errorf("failed to start worker pool: %w", err)
	}

	go c.dispatchLoop()
	go c.resultLoop()
	c.started = true

	cfg := c.store.Get()
	c.log.Info("Controller started",
		"interval", cfg.Interval,
		"maxQueue", cfg.MaxQueue,
		"maxParallelJobs", cfg.MaxParallelJobs)
	return nil
}

// Stop 優雅關閉 Controller
//
// ctx 到期時仍在執行的任務會被取消並以 failed 結束。
// 佇列中尚未調度的任務不會被持久化。
func (c *Controller) Stop(ctx context.Context) error {
	c.mu.Lock()
	if c.stopped {
		c.mu.Unlock()
		return nil
	}
	c.stopped = true
	wasStarted := c.started
	c.mu.Unlock()

	c.log.Info("Stopping controller...")

	var stopErr error
	if wasStarted {
		close(c.stopCh)
		<-c.dispatchDone
	}
	if c.pool.IsStarted() {
		stopErr = c.pool.Stop(ctx)
		<-c.resultDone
	}

	if err := c.saveSnapshot(); err != nil {
		c.log.Error("Failed to write history snapshot", "error", err)
	}
	c.hub.Close()

	c.log.Info("Controller stopped",
		"queued_dropped", c.jobs.QueueLen(),
		"history", c.jobs.HistoryLen())
	return stopErr
}

func (c *Controller) loadSnapshot() error {
	if c.snapshot == nil {
		return nil
	}
	if !c.snapshot.Exists() {
		c.log.Info("No history snapshot, starting empty", "path", c.snapshot.Path())
		return nil
	}
	start := time.Now()

	data, err := c.snapshot.Load()
	if err != nil {
		return err
	}
	restored := c.jobs.Restore(data)
	c.updateGauges()

	c.log.Info("History snapshot loaded",
		"path", c.snapshot.Path(),
		"duration", time.Since(start),
		"jobs", restored)
	return nil
}

func (c *Controller) saveSnapshot() error {
	if c.snapshot == nil {
		return nil
	}
	data := c.jobs.Snapshot()
	if err := c.snapshot.Write(data); err != nil {
		return err
	}
	c.log.Info("History snapshot written",
		"path", c.snapshot.Path(),
		"jobs", len(data.History))
	return nil
}

// ============================================================================
// 核心循環
// ============================================================================

// dispatchLoop 以當前 interval 週期性呼叫 Tick
//
// interval 改變時在同一個 goroutine 內 Stop 舊 ticker 並建立新的，
// 不會出現兩個 ticker 同時觸發。
func (c *Controller) dispatchLoop() {
	defer close(c.dispatchDone)

	interval := c.store.Get().Interval
	ticker := time.NewTicker(interval)
	defer func() { ticker.Stop() }()

	for {
		select {
		case <-c.stopCh:
			c.log.Info("Dispatch loop stopped")
			return

		case cfg := <-c.store.Changes():
			if cfg.Interval == interval {
				continue
			}
			ticker.Stop()
			ticker = time.NewTicker(cfg.Interval)
			c.log.Info("Tick interval changed", "from", interval, "to", cfg.Interval)
			interval = cfg.Interval
			c.metrics.SetInterval(interval)

		case <-ticker.C:
			// ticker 觸發後再次檢查 stop
			select {
			case <-c.stopCh:
				c.log.Info("Dispatch loop stopped")
				return
			default:
			}
			c.Tick()
		}
	}
}

// Tick 執行一次調度，返回本次交給 worker 的任務數
// （調度時即失敗的任務不計入）
//
// 可以獨立於 dispatchLoop 呼叫（測試、手動觸發）。
func (c *Controller) Tick() int {
	c.tickMu.Lock()
	defer c.tickMu.Unlock()

	cfg := c.store.Get()
	started := 0

	for c.jobs.QueueLen() > 0 && c.jobs.InFlightCount() < cfg.MaxParallelJobs {
		id, queued, ok := c.jobs.PopQueued()
		if !ok {
			break
		}
		if queued == nil {
			c.log.Warn("Queued job record missing, skipping", "jobID", id)
			continue
		}

		job, err := c.jobs.MarkProcessing(id)
		if err != nil {
			c.log.Error("Failed to mark processing", "jobID", id, "error", err)
			continue
		}
		c.metrics.RecordDispatch()
		c.hub.Publish(events.ForJob(job))

		fn, found := c.registry.Lookup(job.Algorithm)
		if !found {
			// 不佔用 worker slot
			c.finish(job.ID, job.Algorithm, nil, fmt.Errorf("%w: %s", jobmanager.ErrUnsupportedAlgorithm, job.Algorithm), 0)
			continue
		}

		task := worker.Task{Job: job, Fn: fn, Timeout: c.jobTimeout}
		if err := c.pool.Submit(task); err != nil {
			c.finish(job.ID, job.Algorithm, nil, err, 0)
			continue
		}

		c.log.Debug("Job dispatched", "jobID", job.ID, "algorithm", job.Algorithm)
		started++
	}

	c.updateGauges()
	return started
}

// resultLoop 處理 Worker 執行結果，直到 Pool 關閉
func (c *Controller) resultLoop() {
	defer close(c.resultDone)
	for {
		result, err := c.pool.ReceiveResult()
		if err != nil {
			if errors.Is(err, worker.ErrPoolClosed) {
				c.log.Info("Result loop stopped")
				return
			}
			c.log.Error("Failed to receive result", "error", err)
			continue
		}
		c.handleResult(result)
	}
}

// handleResult 將一個結果寫入完成紀錄
func (c *Controller) handleResult(result worker.Result) {
	job, ok := c.jobs.Get(result.JobID)
	algorithmName := ""
	if ok {
		algorithmName = job.Algorithm
	}
	if result.Success() {
		c.finish(result.JobID, algorithmName, result.Output, nil, result.Duration)
		return
	}
	c.finish(result.JobID, algorithmName, nil, result.Err, result.Duration)
}

// finish 完成或失敗，更新指標並推送事件
func (c *Controller) finish(id types.JobID, algorithmName string, output *types.Result, cause error, d time.Duration) {
	var (
		job *types.Job
		err error
	)
	if cause != nil {
		job, err = c.jobs.Fail(id, cause)
	} else {
		job, err = c.jobs.Complete(id, output)
	}
	if err != nil {
		c.log.Error("Failed to record completion", "jobID", id, "error", err)
		return
	}

	if cause != nil {
		c.metrics.RecordFailed(algorithmName, d)
		c.log.Warn("Job failed",
			"jobID", id,
			"algorithm", algorithmName,
			"error", job.Error)
	} else {
		c.metrics.RecordCompleted(algorithmName, d)
		c.log.Debug("Job completed",
			"jobID", id,
			"algorithm", algorithmName,
			"duration", d)
	}
	c.hub.Publish(events.ForJob(job))
	c.updateGauges()
}

func (c *Controller) updateGauges() {
	c.metrics.UpdateQueueStats(c.jobs.QueueLen(), c.jobs.InFlightCount(), c.jobs.HistoryLen())
}

// ============================================================================
// 公開方法
// ============================================================================

// Submit 准入檢查並建立任務，同步返回
//
// 錯誤處理：
//   - jobmanager.ErrInvalidAlgorithm: 演算法未註冊
//   - jobmanager.ErrInvalidInput: 輸入不是字串或結構化物件
//   - jobmanager.ErrQueueFull: 佇列已滿
func (c *Controller) Submit(algorithmName string, input any) (*types.Job, error) {
	c.mu.Lock()
	stopped := c.stopped
	c.mu.Unlock()
	if stopped {
		return nil, ErrStopped
	}

	if !c.registry.Has(algorithmName) {
		c.metrics.RecordRejected(metrics.ReasonInvalidAlgorithm)
		return nil, fmt.Errorf("%w: %q", jobmanager.ErrInvalidAlgorithm, algorithmName)
	}
	if err := jobmanager.ValidateInput(input); err != nil {
		c.metrics.RecordRejected(metrics.ReasonInvalidInput)
		return nil, err
	}

	job := &types.Job{
		ID:        types.JobID(uuid.NewString()),
		Algorithm: algorithmName,
		Input:     input,
	}
	if err := c.jobs.Enqueue(job, c.store.Get().MaxQueue); err != nil {
		if errors.Is(err, jobmanager.ErrQueueFull) {
			c.metrics.RecordRejected(metrics.ReasonQueueFull)
		}
		return nil, err
	}

	queued := job.Clone()
	c.metrics.RecordSubmitted()
	c.hub.Publish(events.ForJob(queued))
	c.updateGauges()

	c.log.Debug("Job submitted", "jobID", queued.ID, "algorithm", algorithmName)
	return queued, nil
}

// GetJob 查詢任務（先查 live，再查 history）
func (c *Controller) GetJob(id types.JobID) (*types.Job, error) {
	job, ok := c.jobs.Get(id)
	if !ok {
		return nil, jobmanager.ErrJobNotFound
	}
	return job, nil
}

// ListJobs 列出 queued 與 processing 任務
func (c *Controller) ListJobs() []types.JobSummary {
	return c.jobs.ListLive()
}

// ListHistory 列出歷史紀錄（由舊到新）
func (c *Controller) ListHistory() []types.JobSummary {
	return c.jobs.ListHistory()
}

// GetConfig 取得目前執行期參數
func (c *Controller) GetConfig() types.RuntimeConfig {
	return c.store.Get()
}

// UpdateConfig 套用部分更新；任何欄位不合法則整體拒絕
func (c *Controller) UpdateConfig(patch config.Patch) (types.RuntimeConfig, error) {
	cfg, err := c.store.Update(patch)
	if err != nil {
		return cfg, err
	}
	c.hub.Publish(events.Event{Type: events.ConfigUpdated, At: types.NowMillis(), Config: &cfg})
	c.log.Info("Runtime config updated",
		"interval", cfg.Interval,
		"maxQueue", cfg.MaxQueue,
		"maxParallelJobs", cfg.MaxParallelJobs)
	return cfg, nil
}

// Algorithms 已註冊的演算法名稱
func (c *Controller) Algorithms() []string {
	return c.registry.Names()
}

// Stats 取得系統狀態
func (c *Controller) Stats() map[string]any {
	stats := c.jobs.Stats()
	cfg := c.store.Get()

	uptime := time.Duration(0)
	c.mu.Lock()
	if c.started {
		uptime = time.Since(c.startTime)
	}
	c.mu.Unlock()

	return map[string]any{
		"uptime":          uptime.Round(time.Millisecond).String(),
		"queued":          stats["queued"],
		"processing":      stats["processing"],
		"history":         stats["history"],
		"done_total":      stats["done_total"],
		"failed_total":    stats["failed_total"],
		"running_tasks":   c.pool.Running(),
		"interval":        cfg.Interval.Milliseconds(),
		"maxQueue":        cfg.MaxQueue,
		"maxParallelJobs": cfg.MaxParallelJobs,
	}
}

// Events 生命週期事件 Hub
func (c *Controller) Events() *events.Hub {
	return c.hub
}

// Metrics 指標收集器
func (c *Controller) Metrics() *metrics.Collector {
	return c.metrics
}
