// Package types 定義了 hash-queue 系統中使用的核心領域模型
package types

import (
	"encoding/json"
	"time"
)

// JobID 任務唯一識別碼
type JobID string

// JobStatus 任務狀態
type JobStatus string

// 定義任務狀態常數
const (
	StatusQueued     JobStatus = "queued"     // 待處理狀態：已通過准入檢查，等待調度
	StatusProcessing JobStatus = "processing" // 執行中狀態：已被調度並開始計算
	StatusDone       JobStatus = "done"       // 完成狀態：計算成功，Result 有值
	StatusFailed     JobStatus = "failed"     // 失敗狀態：計算失敗，Error 有值
)

// IsTerminal reports whether no further transition is allowed.
func (s JobStatus) IsTerminal() bool {
	return s == StatusDone || s == StatusFailed
}

// Job 任務結構，代表一次雜湊計算
type Job struct {
	// 識別與資料
	ID        JobID  `json:"id"`        // 任務唯一識別碼
	Algorithm string `json:"algorithm"` // 演算法名稱（Registry key）
	Input     any    `json:"input"`     // 字串或任意 JSON 結構

	// 狀態追蹤
	Status JobStatus `json:"status"`

	// 時間管理（Unix 毫秒時間戳），每個欄位只設定一次
	CreatedAt   int64  `json:"createdAt"`
	StartedAt   *int64 `json:"startedAt,omitempty"`
	CompletedAt *int64 `json:"completedAt,omitempty"`
	FailedAt    *int64 `json:"failedAt,omitempty"`

	// 執行結果：Result 僅在 done 時存在，Error 僅在 failed 時存在
	Result *Result `json:"result,omitempty"`
	Error  string  `json:"error,omitempty"`
}

// Summary strips the input and result payloads for list views.
func (j *Job) Summary() JobSummary {
	return JobSummary{
		ID:          j.ID,
		Status:      j.Status,
		Algorithm:   j.Algorithm,
		CreatedAt:   j.CreatedAt,
		StartedAt:   j.StartedAt,
		CompletedAt: j.CompletedAt,
		FailedAt:    j.FailedAt,
		Error:       j.Error,
	}
}

// Clone returns a copy that can be handed out without holding the owner's lock.
// Input and Result are shared: neither is mutated after admission/completion.
func (j *Job) Clone() *Job {
	cp := *j
	return &cp
}

// JobSummary 列表視圖，不含 input 與 result
type JobSummary struct {
	ID          JobID     `json:"id"`
	Status      JobStatus `json:"status"`
	Algorithm   string    `json:"algorithm"`
	CreatedAt   int64     `json:"createdAt"`
	StartedAt   *int64    `json:"startedAt,omitempty"`
	CompletedAt *int64    `json:"completedAt,omitempty"`
	FailedAt    *int64    `json:"failedAt,omitempty"`
	Error       string    `json:"error,omitempty"`
}

// ResultKind identifies which algorithm family produced a Result.
type ResultKind string

const (
	ResultDigest ResultKind = "digest"
	ResultSlow   ResultKind = "slow"
)

// Result 計算結果
//
// Digest fields are always present. SlowDetails is set only by the slow
// family; its fields are flattened into the JSON object.
type Result struct {
	Algorithm string `json:"algorithm"`
	Hex       string `json:"hex"`
	Bytes     int    `json:"bytes"`
	InputSize int    `json:"inputSize"`

	*SlowDetails
}

// SlowDetails slow 演算法額外回報的資訊
type SlowDetails struct {
	BaseAlgorithm string `json:"baseAlgorithm"`
	Iterations    int    `json:"iterations"`
	DelayMs       int64  `json:"delayMs"`
}

// Kind returns the variant tag.
func (r *Result) Kind() ResultKind {
	if r.SlowDetails != nil {
		return ResultSlow
	}
	return ResultDigest
}

// RuntimeConfig 執行期可調參數
type RuntimeConfig struct {
	Interval        time.Duration // tick 間隔
	MaxQueue        int           // 佇列長度上限
	MaxParallelJobs int           // 同時執行任務上限
}

type runtimeConfigJSON struct {
	Interval        int64 `json:"interval"`
	MaxQueue        int   `json:"maxQueue"`
	MaxParallelJobs int   `json:"maxParallelJobs"`
}

// MarshalJSON encodes Interval as milliseconds.
func (c RuntimeConfig) MarshalJSON() ([]byte, error) {
	return json.Marshal(runtimeConfigJSON{
		Interval:        c.Interval.Milliseconds(),
		MaxQueue:        c.MaxQueue,
		MaxParallelJobs: c.MaxParallelJobs,
	})
}

// UnmarshalJSON decodes Interval from milliseconds.
func (c *RuntimeConfig) UnmarshalJSON(data []byte) error {
	var raw runtimeConfigJSON
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	c.Interval = time.Duration(raw.Interval) * time.Millisecond
	c.MaxQueue = raw.MaxQueue
	c.MaxParallelJobs = raw.MaxParallelJobs
	return nil
}

// SnapshotData 快照資料，保存歷史環形緩衝區以便重啟後查詢
type SnapshotData struct {
	History   []*Job `json:"history"`    // 由舊到新排列的終態任務
	SchemaVer int    `json:"schema_ver"` // 資料結構版本號，用於向後相容性
	SavedAt   int64  `json:"saved_at"`   // 寫入時間（Unix 毫秒）
}

// NowMillis returns the current Unix time in milliseconds.
func NowMillis() int64 {
	return time.Now().UnixMilli()
}
