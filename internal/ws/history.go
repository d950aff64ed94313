package ws

import "github.com/postprober/healthwatch/internal/domain"

// historyRing keeps the last N emitted verdicts, oldest evicted first.
// Not safe for concurrent use; the hub serializes access.
type historyRing struct {
	buf []domain.Verdict
	cap int
}

func newHistoryRing(capacity int) *historyRing {
	if capacity <= 0 {
		capacity = 50
	}
	return &historyRing{buf: make([]domain.Verdict, 0, capacity), cap: capacity}
}

func (h *historyRing) append(v domain.Verdict) {
	if len(h.buf) == h.cap {
		copy(h.buf, h.buf[1:])
		h.buf[len(h.buf)-1] = v
		return
	}
	h.buf = append(h.buf, v)
}

// list returns up to limit entries, newest last. limit <= 0 means all.
func (h *historyRing) list(limit int) []domain.Verdict {
	n := len(h.buf)
	if limit > 0 && limit < n {
		n = limit
	}
	out := make([]domain.Verdict, n)
	copy(out, h.buf[len(h.buf)-n:])
	return out
}

func (h *historyRing) len() int { return len(h.buf) }
