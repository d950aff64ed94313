// Package ws is the connection manager for the real-time health channel:
// it owns the subscriber registry, the alert history ring, broadcast fan-out
// and keepalive.
package ws

import (
	"context"
	"encoding/json"
	"net/http"
	"net/url"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/postprober/healthwatch/internal/domain"
)

const (
	sendQueueSize   = 64
	historyOnOpen   = 10 // entries replayed right after the connection frame
	historyOnDemand = 20 // entries answered to an explicit get_history
)

type subscription struct {
	id          string
	conn        *websocket.Conn
	send        chan []byte
	done        chan struct{} // closed exactly once on removal
	closeOnce   sync.Once
	connectedAt time.Time

	mu           sync.Mutex
	lastActivity time.Time
	alertsSent   int
}

func (s *subscription) touch() {
	s.mu.Lock()
	s.lastActivity = time.Now()
	s.mu.Unlock()
}

func (s *subscription) idleSince() time.Time {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.lastActivity
}

func (s *subscription) countAlert() {
	s.mu.Lock()
	s.alertsSent++
	s.mu.Unlock()
}

func (s *subscription) sent() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.alertsSent
}

// Hub owns the set of live subscriptions. All registry mutation goes through
// Hub methods under one mutex; nothing else may touch the set.
type Hub struct {
	logger       *zap.Logger
	upgrader     websocket.Upgrader
	pingInterval time.Duration
	idleGrace    time.Duration

	mu      sync.RWMutex
	subs    map[string]*subscription
	history *historyRing
}

type Options struct {
	AllowedOrigins []string
	PingInterval   time.Duration
	IdleGrace      time.Duration // silence past this closes the subscription
	HistorySize    int
}

func NewHub(logger *zap.Logger, opts Options) *Hub {
	if logger == nil {
		logger = zap.NewNop()
	}
	if opts.PingInterval <= 0 {
		opts.PingInterval = 30 * time.Second
	}
	if opts.IdleGrace <= 0 {
		opts.IdleGrace = 3 * opts.PingInterval
	}

	allowed := make(map[string]bool, len(opts.AllowedOrigins))
	for _, o := range opts.AllowedOrigins {
		allowed[o] = true
	}

	return &Hub{
		logger:       logger,
		pingInterval: opts.PingInterval,
		idleGrace:    opts.IdleGrace,
		subs:         make(map[string]*subscription),
		history:      newHistoryRing(opts.HistorySize),
		upgrader: websocket.Upgrader{
			CheckOrigin: func(r *http.Request) bool {
				origin := r.Header.Get("Origin")
				if origin == "" {
					return true // non-browser clients
				}
				if allowed[origin] {
					return true
				}
				u, err := url.Parse(origin)
				if err != nil {
					return false
				}
				host := u.Hostname()
				return host == "localhost" || host == "127.0.0.1" || host == "::1"
			},
		},
	}
}

// HandleConnect upgrades the request and runs the subscription lifecycle:
// register, confirmation frame, history replay, then pumps until the peer
// goes away.
func (h *Hub) HandleConnect(w http.ResponseWriter, r *http.Request) {
	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.logger.Warn("ws_upgrade_failed", zap.Error(err))
		return
	}

	sub := &subscription{
		id:           uuid.NewString(),
		conn:         conn,
		send:         make(chan []byte, sendQueueSize),
		done:         make(chan struct{}),
		connectedAt:  time.Now().UTC(),
		lastActivity: time.Now(),
	}

	h.mu.Lock()
	h.subs[sub.id] = sub
	total := len(h.subs)
	replay := h.history.list(historyOnOpen)
	h.mu.Unlock()

	h.logger.Info("subscriber_connected",
		zap.String("client_id", sub.id),
		zap.Int("active_connections", total),
	)

	h.sendTo(sub, Envelope{
		Type:      MsgConnection,
		Status:    "connected",
		ClientID:  sub.id,
		Message:   "Connected to healthwatch monitor",
		Timestamp: time.Now().UTC(),
	})
	h.sendTo(sub, Envelope{
		Type:      MsgHistory,
		Alerts:    replay,
		Timestamp: time.Now().UTC(),
	})

	go h.writePump(sub)
	h.readPump(sub)
}

// BroadcastAlert records an admitted verdict and fans it out to every live
// subscription.
func (h *Hub) BroadcastAlert(v domain.Verdict) {
	h.mu.Lock()
	h.history.append(v)
	h.mu.Unlock()

	h.broadcast(Envelope{
		Type:      MsgHealthAlert,
		Alert:     &v,
		Timestamp: time.Now().UTC(),
	}, true)
}

// BroadcastSnapshot sends the full per-cycle health picture to everyone.
func (h *Hub) BroadcastSnapshot(platforms []domain.CheckedTarget) {
	h.broadcast(Envelope{
		Type:      MsgHealthUpdate,
		Platforms: platforms,
		Timestamp: time.Now().UTC(),
	}, false)
}

// History returns up to limit recorded alerts, newest last. limit <= 0
// returns the whole ring.
func (h *Hub) History(limit int) []domain.Verdict {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.history.list(limit)
}

func (h *Hub) Stats() Stats {
	h.mu.RLock()
	defer h.mu.RUnlock()

	clients := make([]ClientInfo, 0, len(h.subs))
	for _, s := range h.subs {
		clients = append(clients, ClientInfo{
			ClientID:    s.id,
			ConnectedAt: s.connectedAt,
			AlertsSent:  s.sent(),
		})
	}
	return Stats{
		ActiveConnections: len(h.subs),
		TotalAlerts:       h.history.len(),
		Clients:           clients,
	}
}

// Run drives the keepalive loop until ctx is cancelled.
func (h *Hub) Run(ctx context.Context) {
	t := time.NewTicker(h.pingInterval)
	defer t.Stop()

	for {
		select {
		case <-ctx.Done():
			h.closeAll()
			return
		case <-t.C:
			h.pingAll()
		}
	}
}

func (h *Hub) pingAll() {
	h.broadcast(Envelope{Type: MsgPing, Timestamp: time.Now().UTC()}, false)

	cutoff := time.Now().Add(-h.idleGrace)
	h.mu.RLock()
	var stale []*subscription
	for _, s := range h.subs {
		if s.idleSince().Before(cutoff) {
			stale = append(stale, s)
		}
	}
	h.mu.RUnlock()

	for _, s := range stale {
		h.logger.Info("subscriber_keepalive_timeout", zap.String("client_id", s.id))
		h.remove(s)
	}
}

func (h *Hub) closeAll() {
	h.mu.Lock()
	subs := make([]*subscription, 0, len(h.subs))
	for _, s := range h.subs {
		subs = append(subs, s)
	}
	h.mu.Unlock()
	for _, s := range subs {
		h.remove(s)
	}
}

// broadcast serializes once and fans out. A subscription whose queue is full
// is dropped; one dead client never blocks the rest.
func (h *Hub) broadcast(env Envelope, countAlert bool) {
	data, err := json.Marshal(env)
	if err != nil {
		h.logger.Error("ws_marshal_failed", zap.Error(err))
		return
	}

	h.mu.RLock()
	var dead []*subscription
	for _, s := range h.subs {
		select {
		case s.send <- data:
			if countAlert {
				s.countAlert()
			}
		default:
			dead = append(dead, s)
		}
	}
	h.mu.RUnlock()

	for _, s := range dead {
		h.logger.Warn("subscriber_send_queue_full", zap.String("client_id", s.id))
		h.remove(s)
	}
}

func (h *Hub) sendTo(s *subscription, env Envelope) {
	data, err := json.Marshal(env)
	if err != nil {
		h.logger.Error("ws_marshal_failed", zap.Error(err))
		return
	}
	select {
	case s.send <- data:
	default:
		h.remove(s)
	}
}

func (h *Hub) remove(s *subscription) {
	h.mu.Lock()
	_, ok := h.subs[s.id]
	if ok {
		delete(h.subs, s.id)
	}
	total := len(h.subs)
	h.mu.Unlock()

	s.closeOnce.Do(func() { close(s.done) })
	_ = s.conn.Close()

	if ok {
		h.logger.Info("subscriber_disconnected",
			zap.String("client_id", s.id),
			zap.Int("active_connections", total),
		)
	}
}

func (h *Hub) writePump(s *subscription) {
	defer s.conn.Close()
	for {
		select {
		case <-s.done:
			return
		case msg := <-s.send:
			if err := s.conn.WriteMessage(websocket.TextMessage, msg); err != nil {
				h.remove(s)
				return
			}
		}
	}
}

func (h *Hub) readPump(s *subscription) {
	defer h.remove(s)
	for {
		_, data, err := s.conn.ReadMessage()
		if err != nil {
			return
		}
		s.touch()

		var env Envelope
		if err := json.Unmarshal(data, &env); err != nil {
			h.logger.Warn("ws_bad_frame", zap.String("client_id", s.id), zap.Error(err))
			continue
		}

		switch env.Type {
		case MsgPong:
			// activity already refreshed above
		case MsgGetHistory:
			h.mu.RLock()
			alerts := h.history.list(historyOnDemand)
			h.mu.RUnlock()
			h.sendTo(s, Envelope{Type: MsgHistory, Alerts: alerts, Timestamp: time.Now().UTC()})
		case MsgGetStats:
			stats := h.Stats()
			h.sendTo(s, Envelope{Type: MsgStats, Stats: &stats, Timestamp: time.Now().UTC()})
		default:
			h.logger.Warn("ws_unknown_message",
				zap.String("client_id", s.id),
				zap.String("type", string(env.Type)),
			)
		}
	}
}
