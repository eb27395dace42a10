package ws

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/dgnsrekt/gexflow/internal/alert"
	"github.com/dgnsrekt/gexflow/internal/gex"
	"github.com/dgnsrekt/gexflow/internal/orderflow"
	"github.com/dgnsrekt/gexflow/internal/session"
)

// ResetChecker lets the streamer pause while the session is being reset.
type ResetChecker interface {
	IsResetting() bool
}

type StreamerConfig struct {
	Interval         time.Duration // snapshot broadcast period
	EvaluateInterval time.Duration // cadence for trade-less alert evaluation
	Compression      bool
	StrikeWindow     int
	StrikeInterval   float64
}

// Streamer pushes periodic session snapshots to subscribed groups, forwards
// alerts as they fire and drives the alert evaluation cadence.
type Streamer struct {
	hub     *Hub
	session *session.Session
	resets  ResetChecker
	encoder *Encoder
	cfg     StreamerConfig
	logger  *zap.Logger
	now     func() time.Time
}

// NewStreamer creates a new Streamer. resets may be nil.
func NewStreamer(hub *Hub, sess *session.Session, resets ResetChecker, cfg StreamerConfig, logger *zap.Logger) (*Streamer, error) {
	enc, err := NewEncoder(cfg.Compression)
	if err != nil {
		return nil, err
	}

	return &Streamer{
		hub:     hub,
		session: sess,
		resets:  resets,
		encoder: enc,
		cfg:     cfg,
		logger:  logger,
		now:     time.Now,
	}, nil
}

// Run starts the streaming loop. Call in a goroutine.
// Returns when context is cancelled.
func (s *Streamer) Run(ctx context.Context) error {
	unsubscribe, err := s.session.Subscribe(s.PublishAlert)
	if err != nil {
		return err
	}
	defer unsubscribe()
	defer s.encoder.Close()

	stream := time.NewTicker(s.cfg.Interval)
	defer stream.Stop()
	evaluate := time.NewTicker(s.cfg.EvaluateInterval)
	defer evaluate.Stop()

	s.logger.Info("streamer started",
		zap.Duration("interval", s.cfg.Interval),
		zap.Duration("evaluateInterval", s.cfg.EvaluateInterval),
	)

	for {
		select {
		case <-ctx.Done():
			s.logger.Info("streamer stopping")
			return nil

		case <-stream.C:
			s.broadcast(s.now())

		case <-evaluate.C:
			if s.paused() {
				continue
			}
			// fired alerts reach clients through the subscription
			s.session.Evaluate(s.now())
		}
	}
}

func (s *Streamer) paused() bool {
	return s.resets != nil && s.resets.IsResetting()
}

// PublishAlert forwards one alert to the alerts group.
func (s *Streamer) PublishAlert(a alert.Alert) {
	if !s.hub.HasSubscribers(GroupAlerts) {
		return
	}
	frame, err := s.encoder.Encode(GroupAlerts, a.Timestamp, a)
	if err != nil {
		s.logger.Debug("failed to encode alert", zap.Error(err))
		return
	}
	s.hub.Broadcast(GroupAlerts, frame)
}

type gexPayload struct {
	Report gex.Report `json:"report"`
	Wall   *gex.Level `json:"wall,omitempty"`
	Flip   *gex.Level `json:"flip,omitempty"`
}

type cvdPayload struct {
	CVD    orderflow.CVDState `json:"cvd"`
	Candle *orderflow.Candle  `json:"candle,omitempty"` // the bar in progress
}

type footprintPayload struct {
	Levels []orderflow.Level `json:"levels"`
}

// broadcast sends the current state to every active group.
func (s *Streamer) broadcast(now time.Time) {
	if s.paused() {
		s.logger.Debug("skipping broadcast during reset")
		return
	}

	for _, group := range s.hub.ActiveGroups() {
		payload, ok := s.payload(group, now)
		if !ok {
			continue
		}

		frame, err := s.encoder.Encode(group, now, payload)
		if err != nil {
			s.logger.Debug("failed to encode payload",
				zap.String("group", group),
				zap.Error(err),
			)
			continue
		}
		s.hub.Broadcast(group, frame)
	}
}

func (s *Streamer) payload(group string, now time.Time) (any, bool) {
	switch group {
	case GroupGEX:
		report, err := s.session.GEXRows()
		if err != nil {
			return nil, false
		}
		p := gexPayload{Report: report}
		if wall, err := gex.Wall(report.Rows); err == nil {
			p.Wall = &wall
		}
		if flip, err := gex.Flip(report.Rows, report.Spot); err == nil {
			p.Flip = &flip
		}
		atm := s.session.Status(now).ATMStrike
		p.Report.Rows = gex.Window(report.Rows, atm, s.cfg.StrikeInterval, s.cfg.StrikeWindow)
		return p, true

	case GroupCVD:
		p := cvdPayload{CVD: s.session.CVD()}
		if candles := s.session.Candles(); len(candles) > 0 {
			last := candles[len(candles)-1]
			p.Candle = &last
		}
		return p, true

	case GroupFootprint:
		return footprintPayload{Levels: s.session.Footprint()}, true

	default:
		// alerts are pushed as they fire
		return nil, false
	}
}
