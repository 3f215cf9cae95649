package crawler

import "sync/atomic"

// Progress counts outcomes as the collector records them. It is safe to read
// from other goroutines while a batch runs.
type Progress struct {
	total     atomic.Int64
	succeeded atomic.Int64
	failed    atomic.Int64
}

// ProgressSnapshot is a point-in-time copy of Progress.
type ProgressSnapshot struct {
	Total     int64 `json:"total"`
	Completed int64 `json:"completed"`
	Succeeded int64 `json:"succeeded"`
	Failed    int64 `json:"failed"`
}

func (p *Progress) start(total int) {
	p.total.Store(int64(total))
	p.succeeded.Store(0)
	p.failed.Store(0)
}

func (p *Progress) record(o Outcome) {
	if o.Failed() {
		p.failed.Add(1)
		return
	}
	p.succeeded.Add(1)
}

// Snapshot returns the current counts.
func (p *Progress) Snapshot() ProgressSnapshot {
	s := ProgressSnapshot{
		Total:     p.total.Load(),
		Succeeded: p.succeeded.Load(),
		Failed:    p.failed.Load(),
	}
	s.Completed = s.Succeeded + s.Failed
	return s
}
