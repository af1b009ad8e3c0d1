// ============================================================================
// Hash-Queue Worker Pool - 並發任務執行器
// ============================================================================
//
// Package: internal/worker
// 文件: worker_pool.go
// 功能: 為每個被調度的任務啟動 goroutine，並透過結果通道回報
//
// 架構組件:
//   ┌─────────────┐
//   │ Controller  │ --Submit()--> go run(task)
//   └─────────────┘                    │
//         ↑                            ↓
//   ReceiveResult() <────────────  resultCh
//
// 並發控制:
//   Pool 本身不限制並行數；上限由 Controller 的 tick 檢查
//   (inFlight < maxParallelJobs) 保證。Submit 永不阻塞。
//
// 生命週期:
//   1. NewPool() - 初始化 channels
//   2. Start()   - 允許提交
//   3. Submit()  - 啟動 task goroutine
//   4. ReceiveResult() - 讀取結果，直到 Stop 之後通道關閉
//   5. Stop(ctx) - 拒絕新任務，等待執行中任務；ctx 到期時取消它們
//
// ============================================================================

package worker

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
)

// ============================================================================
// 錯誤定義
// ============================================================================

var (
	// ErrPoolClosed 表示當前 Pool 已關閉，無法提交新任務
	ErrPoolClosed = errors.New("worker pool is closed")
	// ErrPoolNotStarted 表示 Pool 尚未啟動，無法提交任務
	ErrPoolNotStarted = errors.New("worker pool not started")
)

// Pool 任務執行池
type Pool struct {
	resultCh chan Result        // 結果通道
	ctx      context.Context    // 所有任務共用的父 context
	cancel   context.CancelFunc // 強制取消執行中任務
	wg       sync.WaitGroup     // 追蹤執行中的 task goroutine
	running  atomic.Int64       // 執行中任務數
	started  bool
	stopped  bool
	mu       sync.Mutex // 保護 started/stopped 以及 wg.Add 與 Stop 的順序
}

// NewPool 建立新的 Pool
//
// 參數：
//   - bufferSize: 結果通道的緩衝大小
func NewPool(bufferSize int) *Pool {
	ctx, cancel := context.WithCancel(context.Background())
	return &Pool{
		resultCh: make(chan Result, bufferSize),
		ctx:      ctx,
		cancel:   cancel,
	}
}

// Start 允許提交任務
func (p *Pool) Start() error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.started {
		return errors.New("pool already started")
	}
	p.started = true
	return nil
}

// Submit 啟動一個 goroutine 執行 task，立即返回
func (p *Pool) Submit(task Task) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if !p.started {
		return ErrPoolNotStarted
	}
	if p.stopped {
		return ErrPoolClosed
	}

	p.wg.Add(1)
	p.running.Add(1)
	go func() {
		defer p.wg.Done()
		result := run(p.ctx, task)
		p.running.Add(-1)
		p.resultCh <- result
	}()
	return nil
}

// ReceiveResult 從結果通道接收執行結果
//
// 返回值：
//   - error: Stop 完成且通道清空後返回 ErrPoolClosed
func (p *Pool) ReceiveResult() (Result, error) {
	result, ok := <-p.resultCh
	if !ok {
		return Result{}, ErrPoolClosed
	}
	return result, nil
}

// Stop 優雅地關閉 Pool
//
// 關閉流程：
//  1. 設定 stopped，拒絕新任務
//  2. 等待所有執行中任務送出結果；ctx 到期時取消它們再等待
//  3. 關閉 resultCh
//
// 呼叫端必須持續 ReceiveResult 直到 ErrPoolClosed，否則緩衝滿時會卡住。
func (p *Pool) Stop(ctx context.Context) error {
	p.mu.Lock()
	if !p.started || p.stopped {
		p.mu.Unlock()
		return nil
	}
	p.stopped = true
	p.mu.Unlock()

	done := make(chan struct{})
	go func() {
		p.wg.Wait()
		close(done)
	}()

	var err error
	select {
	case <-done:
	case <-ctx.Done():
		err = ctx.Err()
		p.cancel()
		<-done
	}

	p.cancel()
	close(p.resultCh)
	return err
}

// Running 執行中任務數
func (p *Pool) Running() int {
	return int(p.running.Load())
}

// IsStarted 檢查 Pool 是否已啟動
func (p *Pool) IsStarted() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.started
}
