package jobmanager

import "github.com/ChuLiYu/hash-queue/pkg/types"

// DefaultHistorySize 歷史環形緩衝區容量
const DefaultHistorySize = 500

// History 固定容量的終態任務紀錄
//
// 寫入順序即完成順序；滿了之後覆蓋最舊的一筆（FIFO，非 LRU）。
// 不是執行緒安全的，由 JobManager 的鎖保護。
type History struct {
	buf   []*types.Job
	start int // 最舊一筆的位置
	size  int
	index map[types.JobID]*types.Job
}

// NewHistory 建立容量為 capacity 的環形緩衝區（capacity <= 0 時使用預設值）
func NewHistory(capacity int) *History {
	if capacity <= 0 {
		capacity = DefaultHistorySize
	}
	return &History{
		buf:   make([]*types.Job, capacity),
		index: make(map[types.JobID]*types.Job, capacity),
	}
}

// Append 加入一筆終態任務，回傳被淘汰的任務（若有）
func (h *History) Append(job *types.Job) *types.Job {
	var evicted *types.Job

	if h.size == len(h.buf) {
		evicted = h.buf[h.start]
		// 同 ID 的較新紀錄仍在環內時保留其索引
		if h.index[evicted.ID] == evicted {
			delete(h.index, evicted.ID)
		}
		h.buf[h.start] = job
		h.start = (h.start + 1) % len(h.buf)
	} else {
		h.buf[(h.start+h.size)%len(h.buf)] = job
		h.size++
	}

	h.index[job.ID] = job
	return evicted
}

// Get O(1) 查找
func (h *History) Get(id types.JobID) (*types.Job, bool) {
	job, ok := h.index[id]
	return job, ok
}

// List 由舊到新
func (h *History) List() []*types.Job {
	out := make([]*types.Job, 0, h.size)
	for i := 0; i < h.size; i++ {
		out = append(out, h.buf[(h.start+i)%len(h.buf)])
	}
	return out
}

// Len 目前筆數
func (h *History) Len() int { return h.size }

// Cap 容量
func (h *History) Cap() int { return len(h.buf) }
