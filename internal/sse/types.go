package sse

import "github.com/dgnsrekt/gexflow/internal/session"

// StatusEvent is the periodic session heartbeat. It also opens every stream
// so a subscriber learns the current alert sequence before any backlog.
type StatusEvent struct {
	BroadcasterID string         `json:"broadcaster_id"`
	Symbol        string         `json:"symbol"`
	Timestamp     int64          `json:"timestamp"` // unix millis
	Sequence      uint64         `json:"sequence"`  // heartbeat counter
	Status        session.Status `json:"status"`
}
