// ============================================================================
// Hash-Queue 任務管理器 - 任務狀態機實現
// ============================================================================
//
// Package: internal/jobmanager
// 文件: job_manager.go
// 功能: 管理任務的完整生命週期、准入檢查與歷史紀錄
//
// 任務狀態轉換 (State Machine):
//   Queued (待處理)
//      ↓ PopQueued() + MarkProcessing()
//   Processing (執行中)
//      ↓ Complete() 或 Fail()
//   Done / Failed (終態) → 移入 History
//
// 數據結構設計:
//   jobs map[JobID]*Job - live table，只包含非終態任務
//   queue []JobID       - queued 任務，保證 FIFO
//   inFlight map        - processing 任務
//   history *History    - 終態任務的環形緩衝區（預設 500 筆）
//
// 所有權不變式:
//   非終態任務只存在於 jobs + (queue 或 inFlight) 其中之一；
//   終態轉換在同一次加鎖內從 jobs 移除並寫入 history，
//   因此任何時刻都不會同時出現在 live table 與 history。
//
// 並發安全:
//   - 使用 sync.RWMutex 保護所有數據結構
//   - 對外回傳的 *Job 都是副本
//
// ============================================================================

package jobmanager

import (
	"errors"
	"fmt"
	"reflect"
	"sort"
	"sync"

	"github.com/ChuLiYu/hash-queue/pkg/types"
)

// ============================================================================
// 錯誤定義
// ============================================================================

var (
	// 演算法未註冊（准入時）
	ErrInvalidAlgorithm = errors.New("invalid algorithm")
	// 輸入不是字串或結構化物件
	ErrInvalidInput = errors.New("invalid input")
	// 佇列已滿
	ErrQueueFull = errors.New("queue is full")
	// 調度時演算法不存在
	ErrUnsupportedAlgorithm = errors.New("unsupported algorithm")
	// 任務 ID 重複錯誤
	ErrDuplicateJob = errors.New("job already exists")
	// 任務不存在
	ErrJobNotFound = errors.New("job not found")
	// 任務不在待處理狀態
	ErrNotQueued = errors.New("job not queued")
	// 任務已是終態，重複完成
	ErrAlreadyTerminal = errors.New("job already terminal")
	// 任務不在執行中狀態
	ErrNotProcessing = errors.New("job not processing")
)

// JobManager 代表任務管理器
type JobManager struct {
	mu       sync.RWMutex
	jobs     map[types.JobID]*types.Job // live table
	queue    []types.JobID              // 待處理佇列
	inFlight map[types.JobID]*types.Job // 執行中任務
	history  *History                   // 終態任務

	doneTotal   int
	failedTotal int
}

// NewJobManager 建立新的任務管理器實例
//
// 參數說明：
//   - historySize: 歷史紀錄容量，<= 0 時使用 DefaultHistorySize
func NewJobManager(historySize int) *JobManager {
	return &JobManager{
		jobs:     make(map[types.JobID]*types.Job),
		queue:    make([]types.JobID, 0),
		inFlight: make(map[types.JobID]*types.Job),
		history:  NewHistory(historySize),
	}
}

// ValidateInput 檢查輸入是否為字串或結構化值
//
// 結構化值指 map / slice / array / struct（或指向它們的指標），執行時以 JSON 編碼。
// 空字串可以通過准入，會在執行時失敗；nil 與純量（數字、布林）在准入時拒絕。
func ValidateInput(input any) error {
	if input == nil {
		return fmt.Errorf("%w: input is required", ErrInvalidInput)
	}
	if _, ok := input.(string); ok {
		return nil
	}

	v := reflect.ValueOf(input)
	for v.Kind() == reflect.Pointer || v.Kind() == reflect.Interface {
		if v.IsNil() {
			return fmt.Errorf("%w: input is required", ErrInvalidInput)
		}
		v = v.Elem()
	}

	switch v.Kind() {
	case reflect.Map, reflect.Slice:
		if v.IsNil() {
			return fmt.Errorf("%w: input is required", ErrInvalidInput)
		}
		return nil
	case reflect.Array, reflect.Struct, reflect.String:
		return nil
	default:
		return fmt.Errorf("%w: expected string or object, got %T", ErrInvalidInput, input)
	}
}

// Enqueue 將新任務加入系統，設定為待處理狀態
//
// 參數說明：
//   - job: 要加入的任務，必須包含唯一 ID
//   - maxQueue: 佇列長度上限（只計算 queue，不含 inFlight）
//
// 錯誤處理：
//   - ErrDuplicateJob: 任務 ID 已存在於系統中
//   - ErrQueueFull: len(queue) >= maxQueue
//
// 併發安全：使用互斥鎖保護
func (jm *JobManager) Enqueue(job *types.Job, maxQueue int) error {
	jm.mu.Lock()
	defer jm.mu.Unlock()

	if _, exists := jm.jobs[job.ID]; exists {
		return ErrDuplicateJob
	}
	if _, exists := jm.history.Get(job.ID); exists {
		return ErrDuplicateJob
	}

	// 只比較 queue 長度，執行中任務不佔用名額
	if len(jm.queue) >= maxQueue {
		return ErrQueueFull
	}

	job.Status = types.StatusQueued
	job.CreatedAt = types.NowMillis()
	job.StartedAt, job.CompletedAt, job.FailedAt = nil, nil, nil
	job.Result, job.Error = nil, ""

	jm.jobs[job.ID] = job
	jm.queue = append(jm.queue, job.ID)
	return nil
}

// PopQueued 取出佇列頭部的任務 ID，但不改變其狀態
//
// 返回值：
//   - id: 任務 ID
//   - job: 任務副本；如果紀錄已不存在則為 nil（呼叫端應跳過）
//   - ok: 佇列為空時為 false
//
// 併發安全：使用互斥鎖保護
func (jm *JobManager) PopQueued() (types.JobID, *types.Job, bool) {
	jm.mu.Lock()
	defer jm.mu.Unlock()

	if len(jm.queue) == 0 {
		return "", nil, false
	}

	id := jm.queue[0]
	jm.queue[0] = ""
	jm.queue = jm.queue[1:]

	job, exists := jm.jobs[id]
	if !exists {
		return id, nil, true
	}
	return id, job.Clone(), true
}

// MarkProcessing 將任務標記為執行中狀態並設定 StartedAt
//
// 錯誤處理：
//   - ErrJobNotFound: 任務不存在於 live table
//   - ErrNotQueued: 任務狀態不是 StatusQueued
//
// 併發安全：使用互斥鎖保護
func (jm *JobManager) MarkProcessing(id types.JobID) (*types.Job, error) {
	jm.mu.Lock()
	defer jm.mu.Unlock()

	job, exists := jm.jobs[id]
	if !exists {
		return nil, ErrJobNotFound
	}
	if job.Status != types.StatusQueued {
		return nil, ErrNotQueued
	}

	now := types.NowMillis()
	job.Status = types.StatusProcessing
	job.StartedAt = &now

	jm.inFlight[id] = job
	return job.Clone(), nil
}

// Complete 將任務標記為 done 並移入歷史紀錄
//
// 併發安全：使用互斥鎖保護
func (jm *JobManager) Complete(id types.JobID, result *types.Result) (*types.Job, error) {
	jm.mu.Lock()
	defer jm.mu.Unlock()

	job, err := jm.terminalLocked(id)
	if err != nil {
		return nil, err
	}

	now := types.NowMillis()
	job.Status = types.StatusDone
	job.CompletedAt = &now
	job.Result = result
	jm.doneTotal++

	jm.retireLocked(job)
	return job.Clone(), nil
}

// Fail 將任務標記為 failed 並移入歷史紀錄
//
// 併發安全：使用互斥鎖保護
func (jm *JobManager) Fail(id types.JobID, reason error) (*types.Job, error) {
	jm.mu.Lock()
	defer jm.mu.Unlock()

	job, err := jm.terminalLocked(id)
	if err != nil {
		return nil, err
	}

	msg := "job failed"
	if reason != nil && reason.Error() != "" {
		msg = reason.Error()
	}

	now := types.NowMillis()
	job.Status = types.StatusFailed
	job.FailedAt = &now
	job.Error = msg
	jm.failedTotal++

	jm.retireLocked(job)
	return job.Clone(), nil
}

// terminalLocked 檢查任務可以進入終態（防止重複完成）
func (jm *JobManager) terminalLocked(id types.JobID) (*types.Job, error) {
	job, exists := jm.jobs[id]
	if !exists {
		if _, done := jm.history.Get(id); done {
			return nil, ErrAlreadyTerminal
		}
		return nil, ErrJobNotFound
	}
	if job.Status != types.StatusProcessing {
		return nil, ErrNotProcessing
	}
	return job, nil
}

// retireLocked 從 inFlight 與 live table 移除並寫入 history
func (jm *JobManager) retireLocked(job *types.Job) {
	delete(jm.inFlight, job.ID)
	delete(jm.jobs, job.ID)
	jm.history.Append(job)
}

// ============================================================================
// 查詢方法
// ============================================================================

// Get 先查 live table，再查 history
//
// 併發安全：使用讀鎖保護
func (jm *JobManager) Get(id types.JobID) (*types.Job, bool) {
	jm.mu.RLock()
	defer jm.mu.RUnlock()

	if job, ok := jm.jobs[id]; ok {
		return job.Clone(), true
	}
	if job, ok := jm.history.Get(id); ok {
		return job.Clone(), true
	}
	return nil, false
}

// ListLive 列出 live 任務：先 queue（FIFO 順序），再 inFlight（依開始時間）
func (jm *JobManager) ListLive() []types.JobSummary {
	jm.mu.RLock()
	defer jm.mu.RUnlock()

	out := make([]types.JobSummary, 0, len(jm.jobs))
	for _, id := range jm.queue {
		if job, ok := jm.jobs[id]; ok {
			out = append(out, job.Summary())
		}
	}

	running := make([]*types.Job, 0, len(jm.inFlight))
	for _, job := range jm.inFlight {
		running = append(running, job)
	}
	sort.Slice(running, func(i, j int) bool {
		a, b := running[i], running[j]
		if *a.StartedAt != *b.StartedAt {
			return *a.StartedAt < *b.StartedAt
		}
		return a.CreatedAt < b.CreatedAt
	})
	for _, job := range running {
		out = append(out, job.Summary())
	}
	return out
}

// ListHistory 列出歷史紀錄（由舊到新，最多 history 容量筆）
func (jm *JobManager) ListHistory() []types.JobSummary {
	jm.mu.RLock()
	defer jm.mu.RUnlock()

	jobs := jm.history.List()
	out := make([]types.JobSummary, 0, len(jobs))
	for _, job := range jobs {
		out = append(out, job.Summary())
	}
	return out
}

// QueueLen 目前佇列長度
func (jm *JobManager) QueueLen() int {
	jm.mu.RLock()
	defer jm.mu.RUnlock()
	return len(jm.queue)
}

// InFlightCount 目前執行中任務數
func (jm *JobManager) InFlightCount() int {
	jm.mu.RLock()
	defer jm.mu.RUnlock()
	return len(jm.inFlight)
}

// HistoryLen 目前歷史筆數
func (jm *JobManager) HistoryLen() int {
	jm.mu.RLock()
	defer jm.mu.RUnlock()
	return jm.history.Len()
}

// Stats 取得各狀態的統計資訊
//
// 使用範例：
//
//	stats := jm.Stats()
//	log.Printf("queued: %d, processing: %d", stats["queued"], stats["processing"])
func (jm *JobManager) Stats() map[string]int {
	jm.mu.RLock()
	defer jm.mu.RUnlock()

	return map[string]int{
		"queued":       len(jm.queue),
		"processing":   len(jm.inFlight),
		"history":      jm.history.Len(),
		"done_total":   jm.doneTotal,
		"failed_total": jm.failedTotal,
	}
}

// ============================================================================
// 快照與恢復相關方法
// ============================================================================

// Snapshot 生成歷史紀錄的快照資料（深拷貝）
func (jm *JobManager) Snapshot() types.SnapshotData {
	jm.mu.RLock()
	defer jm.mu.RUnlock()

	jobs := jm.history.List()
	history := make([]*types.Job, 0, len(jobs))
	for _, job := range jobs {
		history = append(history, job.Clone())
	}

	return types.SnapshotData{
		History:   history,
		SchemaVer: 1,
	}
}

// Restore 從快照恢復歷史紀錄；非終態的紀錄會被略過
//
// 返回值：
//   - int: 實際恢復的筆數
func (jm *JobManager) Restore(data types.SnapshotData) int {
	jm.mu.Lock()
	defer jm.mu.Unlock()

	jm.history = NewHistory(jm.history.Cap())
	restored := 0
	for _, job := range data.History {
		if job == nil || !job.Status.IsTerminal() {
			continue
		}
		if _, live := jm.jobs[job.ID]; live {
			continue
		}
		if _, dup := jm.history.Get(job.ID); dup {
			continue
		}
		jm.history.Append(job)
		restored++
	}
	if restored > jm.history.Cap() {
		restored = jm.history.Cap()
	}
	return restored
}
