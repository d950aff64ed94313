package wsclient

import (
	"fmt"
	"sync"

	"github.com/postprober/healthwatch/internal/domain"
)

// alertBuffer mirrors the server's alert history locally. Appends are
// idempotent on (target, timestamp) because a reconnect replays history that
// can overlap alerts already buffered.
type alertBuffer struct {
	mu   sync.Mutex
	cap  int
	buf  []domain.Verdict
	seen map[string]bool
}

func newAlertBuffer(capacity int) *alertBuffer {
	return &alertBuffer{
		cap:  capacity,
		buf:  make([]domain.Verdict, 0, capacity),
		seen: make(map[string]bool, capacity),
	}
}

func alertKey(v domain.Verdict) string {
	return fmt.Sprintf("%s|%d", v.TargetID, v.At.UnixNano())
}

func (b *alertBuffer) append(v domain.Verdict) {
	key := alertKey(v)

	b.mu.Lock()
	defer b.mu.Unlock()
	if b.seen[key] {
		return
	}
	if len(b.buf) == b.cap {
		delete(b.seen, alertKey(b.buf[0]))
		copy(b.buf, b.buf[1:])
		b.buf[len(b.buf)-1] = v
	} else {
		b.buf = append(b.buf, v)
	}
	b.seen[key] = true
}

func (b *alertBuffer) list() []domain.Verdict {
	b.mu.Lock()
	defer b.mu.Unlock()
	out := make([]domain.Verdict, len(b.buf))
	copy(out, b.buf)
	return out
}
