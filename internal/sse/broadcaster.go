// Package sse streams session alerts and heartbeats as server-sent events.
package sse

import (
	"context"
	"fmt"
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/google/uuid"
	jsoniter "github.com/json-iterator/go"
	"go.uber.org/zap"

	"github.com/dgnsrekt/gexflow/internal/alert"
	"github.com/dgnsrekt/gexflow/internal/session"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

const clientBufferSize = 64

// Broadcaster fans alerts out to connected SSE subscribers. A subscriber
// that reconnects with Last-Event-ID (or ?after=) first receives the alerts
// it missed from the session buffer.
type Broadcaster struct {
	broadcasterID string
	symbol        string
	session       *session.Session
	interval      time.Duration
	logger        *zap.Logger
	now           func() time.Time

	mu       sync.RWMutex
	sequence uint64
	clients  map[*sseClient]bool
}

type sseEvent struct {
	seq  uint64 // alert seq; zero for heartbeats
	data []byte
}

// sseClient represents a connected SSE subscriber.
type sseClient struct {
	id     string
	dataCh chan sseEvent
}

// NewBroadcaster creates a Broadcaster sending a status heartbeat every
// interval.
func NewBroadcaster(sess *session.Session, symbol string, interval time.Duration, logger *zap.Logger) *Broadcaster {
	return &Broadcaster{
		broadcasterID: uuid.New().String(),
		symbol:        symbol,
		session:       sess,
		interval:      interval,
		logger:        logger,
		now:           time.Now,
		clients:       make(map[*sseClient]bool),
	}
}

// Run subscribes to session alerts and sends heartbeats until ctx is
// cancelled.
func (b *Broadcaster) Run(ctx context.Context) error {
	unsubscribe, err := b.session.Subscribe(b.Publish)
	if err != nil {
		return err
	}
	defer unsubscribe()

	b.logger.Info("sse broadcaster starting",
		zap.String("broadcaster_id", b.broadcasterID),
		zap.Duration("interval", b.interval),
	)

	ticker := time.NewTicker(b.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			b.logger.Info("sse broadcaster stopping")
			return nil
		case <-ticker.C:
			b.heartbeat()
		}
	}
}

// Publish sends one alert to every subscriber. Slow subscribers miss it and
// can catch up by reconnecting with Last-Event-ID.
func (b *Broadcaster) Publish(a alert.Alert) {
	data, err := formatEvent("alert", strconv.FormatUint(a.Seq, 10), a)
	if err != nil {
		b.logger.Debug("failed to encode alert event", zap.Error(err))
		return
	}
	b.fanOut(sseEvent{seq: a.Seq, data: data})
}

func (b *Broadcaster) heartbeat() {
	b.mu.RLock()
	idle := len(b.clients) == 0
	b.mu.RUnlock()
	if idle {
		return
	}

	data, err := formatEvent("status", "", b.buildStatus())
	if err != nil {
		return
	}
	b.fanOut(sseEvent{data: data})
}

func (b *Broadcaster) fanOut(ev sseEvent) {
	b.mu.RLock()
	defer b.mu.RUnlock()

	for client := range b.clients {
		select {
		case client.dataCh <- ev:
		default:
			// Channel full, client is slow
			b.logger.Debug("client channel full, dropping event",
				zap.String("client", client.id),
				zap.Uint64("seq", ev.seq),
			)
		}
	}
}

// HandleSSE handles the SSE endpoint for subscribers.
func (b *Broadcaster) HandleSSE(w http.ResponseWriter, r *http.Request) {
	after, err := resumePoint(r)
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	// Check if SSE is supported
	flusher, ok := w.(http.Flusher)
	if !ok {
		http.Error(w, "SSE not supported", http.StatusInternalServerError)
		return
	}
	// The stream outlives the server's write timeout
	_ = http.NewResponseController(w).SetWriteDeadline(time.Time{})

	// Set SSE headers
	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.Header().Set("X-Accel-Buffering", "no")

	client := &sseClient{
		id:     uuid.New().String(),
		dataCh: make(chan sseEvent, clientBufferSize),
	}

	// Register before reading the backlog so nothing falls in between;
	// duplicates are filtered by seq below.
	b.addClient(client)
	defer b.removeClient(client)

	b.logger.Info("sse client connected",
		zap.String("client", client.id),
		zap.String("remote_addr", r.RemoteAddr),
		zap.Uint64("after", after),
	)

	write := func(data []byte) bool {
		if _, err := w.Write(data); err != nil {
			b.logger.Debug("failed to write to client", zap.Error(err))
			return false
		}
		flusher.Flush()
		return true
	}

	status, err := formatEvent("status", "", b.buildStatus())
	if err != nil || !write(status) {
		return
	}

	last := after
	for _, a := range b.session.Alerts(after) {
		data, err := formatEvent("alert", strconv.FormatUint(a.Seq, 10), a)
		if err != nil {
			continue
		}
		if !write(data) {
			return
		}
		last = a.Seq
	}

	// Stream events
	for {
		select {
		case <-r.Context().Done():
			b.logger.Info("sse client disconnected", zap.String("client", client.id))
			return
		case ev := <-client.dataCh:
			if ev.seq != 0 {
				if ev.seq <= last {
					continue
				}
				last = ev.seq
			}
			if !write(ev.data) {
				return
			}
		}
	}
}

// Clients returns the number of connected subscribers.
func (b *Broadcaster) Clients() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.clients)
}

func (b *Broadcaster) addClient(client *sseClient) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.clients[client] = true
}

func (b *Broadcaster) removeClient(client *sseClient) {
	b.mu.Lock()
	defer b.mu.Unlock()
	delete(b.clients, client)
}

func (b *Broadcaster) buildStatus() *StatusEvent {
	b.mu.Lock()
	b.sequence++
	seq := b.sequence
	b.mu.Unlock()

	now := b.now()
	return &StatusEvent{
		BroadcasterID: b.broadcasterID,
		Symbol:        b.symbol,
		Timestamp:     now.UnixMilli(),
		Sequence:      seq,
		Status:        b.session.Status(now),
	}
}

// resumePoint reads the last seen alert seq from Last-Event-ID or ?after=.
func resumePoint(r *http.Request) (uint64, error) {
	raw := r.Header.Get("Last-Event-ID")
	if raw == "" {
		raw = r.URL.Query().Get("after")
	}
	if raw == "" {
		return 0, nil
	}
	after, err := strconv.ParseUint(raw, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("invalid resume point %q", raw)
	}
	return after, nil
}

func formatEvent(eventType, id string, data any) ([]byte, error) {
	jsonData, err := json.Marshal(data)
	if err != nil {
		return nil, err
	}
	if id == "" {
		return []byte(fmt.Sprintf("event: %s\ndata: %s\n\n", eventType, jsonData)), nil
	}
	return []byte(fmt.Sprintf("event: %s\nid: %s\ndata: %s\n\n", eventType, id, jsonData)), nil
}
