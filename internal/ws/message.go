package ws

import (
	"time"

	"github.com/postprober/healthwatch/internal/domain"
)

// MessageType is the closed set of frame kinds on the health channel.
type MessageType string

const (
	// server -> client
	MsgConnection   MessageType = "connection"
	MsgHistory      MessageType = "history"
	MsgHealthAlert  MessageType = "health_alert"
	MsgHealthUpdate MessageType = "health_update"
	MsgStats        MessageType = "stats"
	MsgPing         MessageType = "ping"

	// client -> server
	MsgPong       MessageType = "pong"
	MsgGetHistory MessageType = "get_history"
	MsgGetStats   MessageType = "get_stats"
)

// Envelope is the wire frame. Exactly one payload field is set, selected by
// Type.
type Envelope struct {
	Type      MessageType            `json:"type"`
	Status    string                 `json:"status,omitempty"`
	ClientID  string                 `json:"client_id,omitempty"`
	Message   string                 `json:"message,omitempty"`
	Alert     *domain.Verdict        `json:"alert,omitempty"`
	Alerts    []domain.Verdict       `json:"alerts,omitempty"`
	Platforms []domain.CheckedTarget `json:"platforms,omitempty"`
	Stats     *Stats                 `json:"data,omitempty"`
	Timestamp time.Time              `json:"timestamp"`
}

// ClientInfo describes one live subscription in stats responses.
type ClientInfo struct {
	ClientID    string    `json:"client_id"`
	ConnectedAt time.Time `json:"connected_at"`
	AlertsSent  int       `json:"alerts_sent"`
}

// Stats summarizes hub state for get_stats and the HTTP stats endpoint.
type Stats struct {
	ActiveConnections int          `json:"active_connections"`
	TotalAlerts       int          `json:"total_alerts"`
	Clients           []ClientInfo `json:"clients"`
}
