package worker

import (
	"fmt"
	"time"

	"github.com/ChuLiYu/hash-queue/internal/algorithm"
	"github.com/ChuLiYu/hash-queue/pkg/types"
)

// Task 代表一次要執行的計算
type Task struct {
	Job     *types.Job     // 任務副本，執行期間唯讀
	Fn      algorithm.Func // 已查找到的演算法
	Timeout time.Duration  // 0 表示不限時
}

// Result 代表任務執行結果
type Result struct {
	JobID    types.JobID   // 任務 ID
	Output   *types.Result // 成功時的計算結果
	Err      error         // 失敗時為 *ExecutionError
	Duration time.Duration // 實際執行時間
}

// Success reports whether the algorithm returned a result.
func (r Result) Success() bool {
	return r.Err == nil
}

// ExecutionError wraps anything an algorithm returned or panicked with.
type ExecutionError struct {
	JobID     types.JobID
	Algorithm string
	Err       error
	Panic     any
}

func (e *ExecutionError) Error() string {
	if e.Panic != nil {
		return fmt.Sprintf("algorithm %s panicked: %v", e.Algorithm, e.Panic)
	}
	return e.Err.Error()
}

func (e *ExecutionError) Unwrap() error { return e.Err }
