package sse

import (
	"bufio"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"go.uber.org/zap"

	"github.com/dgnsrekt/gexflow/internal/alert"
	"github.com/dgnsrekt/gexflow/internal/gex"
	"github.com/dgnsrekt/gexflow/internal/market"
	"github.com/dgnsrekt/gexflow/internal/orderflow"
	"github.com/dgnsrekt/gexflow/internal/pricing"
	"github.com/dgnsrekt/gexflow/internal/session"
)

var t0 = time.Date(2025, 10, 15, 9, 15, 0, 0, time.UTC)

func newSession(t *testing.T) *session.Session {
	t.Helper()
	sess, err := session.New(session.Config{
		Expiry:         t0.Add(24 * time.Hour),
		MinT:           pricing.DefaultMinT,
		Rate:           0.065,
		MaxQuoteAge:    time.Minute,
		StrikeInterval: 50,
		Solver:         pricing.DefaultSolver(),
		GEX:            gex.Params{Multiplier: 75, OIPerContract: 75},
		OrderFlow: orderflow.Config{
			TickSize: 0.05, Retention: 100, CandleInterval: time.Minute, CandleRetention: 10,
		},
		Alerts: alert.Config{
			BigBlockThreshold:    3750,
			ImbalanceRatio:       2.5,
			ImbalanceWindow:      time.Minute,
			HighVolumeMultiplier: 3,
			VolumeBucket:         time.Minute,
			VolumeLookback:       5,
			DivergenceLookback:   20,
		},
		AlertBuffer: 16,
	}, zap.NewNop())
	if err != nil {
		t.Fatalf("creating session: %v", err)
	}
	return sess
}

type event struct {
	name string
	id   string
	data string
}

func readEvent(t *testing.T, r *bufio.Reader) event {
	t.Helper()
	var ev event
	for {
		line, err := r.ReadString('\n')
		if err != nil {
			t.Fatalf("reading event: %v", err)
		}
		line = strings.TrimRight(line, "\n")
		if line == "" {
			return ev
		}
		key, value, _ := strings.Cut(line, ": ")
		switch key {
		case "event":
			ev.name = value
		case "id":
			ev.id = value
		case "data":
			ev.data = value
		}
	}
}

func waitForClients(t *testing.T, b *Broadcaster, n int) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for b.Clients() != n {
		if time.Now().After(deadline) {
			t.Fatalf("expected %d clients, have %d", n, b.Clients())
		}
		time.Sleep(5 * time.Millisecond)
	}
}

func TestHandleSSE_BacklogThenLive(t *testing.T) {
	sess := newSession(t)
	b := NewBroadcaster(sess, "NIFTY", time.Hour, zap.NewNop())
	b.now = func() time.Time { return t0 }

	// one-sided flow fires BIG_BLOCK then IMBALANCE
	_, fired, err := sess.OnTick(market.Tick{
		LTP: 100, LTQ: 4000, BestBids: []float64{99.95}, BestAsks: []float64{100}, Timestamp: t0,
	})
	if err != nil {
		t.Fatal(err)
	}
	if len(fired) < 2 || fired[0].Kind != alert.BigBlock {
		t.Fatalf("expected BIG_BLOCK first, got %v", fired)
	}

	srv := httptest.NewServer(http.HandlerFunc(b.HandleSSE))
	defer srv.Close()

	req, _ := http.NewRequest(http.MethodGet, srv.URL, nil)
	req.Header.Set("Last-Event-ID", "1")
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatal(err)
	}
	defer resp.Body.Close()

	if ct := resp.Header.Get("Content-Type"); ct != "text/event-stream" {
		t.Errorf("unexpected content type %q", ct)
	}

	r := bufio.NewReader(resp.Body)

	status := readEvent(t, r)
	if status.name != "status" {
		t.Fatalf("expected status event first, got %+v", status)
	}
	var st StatusEvent
	if err := json.Unmarshal([]byte(status.data), &st); err != nil {
		t.Fatal(err)
	}
	if st.Symbol != "NIFTY" || st.Status.AlertSeq != fired[len(fired)-1].Seq {
		t.Errorf("unexpected status %+v", st)
	}

	backlog := readEvent(t, r)
	if backlog.name != "alert" || backlog.id != "2" {
		t.Fatalf("expected backlog alert 2, got %+v", backlog)
	}

	waitForClients(t, b, 1)

	// already delivered from the backlog; filtered
	b.Publish(fired[1])
	b.Publish(alert.Alert{Seq: 99, Kind: alert.HighVolume, Severity: alert.Info, Timestamp: t0,
		Payload: alert.Payload{Value: 900, Threshold: 300, Message: "volume spike"}})

	live := readEvent(t, r)
	if live.name != "alert" || live.id != "99" {
		t.Fatalf("expected live alert 99, got %+v", live)
	}
	if !strings.Contains(live.data, `"HIGH_VOLUME"`) {
		t.Errorf("unexpected payload %s", live.data)
	}
}

func TestHandleSSE_BadResumePoint(t *testing.T) {
	b := NewBroadcaster(newSession(t), "NIFTY", time.Hour, zap.NewNop())

	rec := httptest.NewRecorder()
	b.HandleSSE(rec, httptest.NewRequest(http.MethodGet, "/?after=abc", nil))
	if rec.Code != http.StatusBadRequest {
		t.Errorf("expected 400, got %d", rec.Code)
	}
}

func TestHeartbeat_SkipsWithoutClients(t *testing.T) {
	b := NewBroadcaster(newSession(t), "NIFTY", time.Hour, zap.NewNop())
	b.heartbeat()
	if b.sequence != 0 {
		t.Errorf("expected no status built without clients, got sequence %d", b.sequence)
	}
}

func TestFormatEvent(t *testing.T) {
	raw, err := formatEvent("alert", "7", map[string]int{"seq": 7})
	if err != nil {
		t.Fatal(err)
	}
	if got := string(raw); got != "event: alert\nid: 7\ndata: {\"seq\":7}\n\n" {
		t.Errorf("unexpected frame %q", got)
	}
}
