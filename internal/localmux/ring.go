package localmux

import "sync"

const defaultHistoryBytes = 256 * 1024

// outputRing is a byte-bounded capture of a process's output. Polls
// read the full retained buffer; once the cap is exceeded the oldest
// bytes are dropped, which is exactly the "bounded history" a client's
// prefix reconciliation must tolerate.
type outputRing struct {
	mu  sync.Mutex
	max int
	buf []byte
}

func newOutputRing(max int) *outputRing {
	if max <= 0 {
		max = defaultHistoryBytes
	}
	return &outputRing{max: max}
}

func (r *outputRing) append(data []byte) {
	if r == nil || len(data) == 0 {
		return
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	r.buf = append(r.buf, data...)
	if len(r.buf) > r.max {
		trimmed := make([]byte, r.max)
		copy(trimmed, r.buf[len(r.buf)-r.max:])
		r.buf = trimmed
	}
}

func (r *outputRing) snapshot() string {
	if r == nil {
		return ""
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	return string(r.buf)
}
