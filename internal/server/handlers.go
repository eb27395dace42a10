package server

import (
	"errors"
	"fmt"
	"net/http"
	"time"

	jsoniter "github.com/json-iterator/go"
	"github.com/oapi-codegen/runtime"
	"go.uber.org/zap"

	"github.com/dgnsrekt/gexflow/internal/alert"
	"github.com/dgnsrekt/gexflow/internal/config"
	"github.com/dgnsrekt/gexflow/internal/gex"
	"github.com/dgnsrekt/gexflow/internal/market"
	"github.com/dgnsrekt/gexflow/internal/orderflow"
	"github.com/dgnsrekt/gexflow/internal/session"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

// maxBodyBytes bounds ingest payloads; a full chain is well under 1 MiB.
const maxBodyBytes = 8 << 20

type Server struct {
	session *session.Session
	resets  *ResetManager
	cfg     *config.Config
	logger  *zap.Logger
	started time.Time
	now     func() time.Time
}

func NewServer(sess *session.Session, resets *ResetManager, cfg *config.Config, logger *zap.Logger) *Server {
	return &Server{
		session: sess,
		resets:  resets,
		cfg:     cfg,
		logger:  logger,
		started: time.Now(),
		now:     time.Now,
	}
}

type healthResponse struct {
	Status    string         `json:"status"`
	Symbol    string         `json:"symbol"`
	Uptime    string         `json:"uptime"`
	LastReset time.Time      `json:"last_reset,omitempty"`
	Session   session.Status `json:"session"`
}

func (s *Server) health(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, healthResponse{
		Status:    "ok",
		Symbol:    s.cfg.Instrument.Symbol,
		Uptime:    time.Since(s.started).Round(time.Second).String(),
		LastReset: s.resets.LastReset(),
		Session:   s.session.Status(s.now()),
	})
}

type chainResponse struct {
	Contracts []session.ContractGreeks `json:"contracts"`
	Count     int                      `json:"count"`
}

func (s *Server) getGreeks(w http.ResponseWriter, r *http.Request) {
	var (
		strike *float64
		typ    *string
	)
	if err := runtime.BindQueryParameter("form", true, false, "strike", r.URL.Query(), &strike); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	if err := runtime.BindQueryParameter("form", true, false, "type", r.URL.Query(), &typ); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	if strike == nil {
		chain := s.session.Chain()
		if len(chain) == 0 {
			s.writeSessionError(w, session.ErrNoSnapshot)
			return
		}
		writeJSON(w, http.StatusOK, chainResponse{Contracts: chain, Count: len(chain)})
		return
	}
	if typ == nil {
		writeError(w, http.StatusBadRequest, "type is required when strike is given")
		return
	}

	optType, err := market.ParseOptionType(*typ)
	if err != nil {
		s.writeSessionError(w, err)
		return
	}
	g, err := s.session.Greeks(*strike, optType)
	if err != nil {
		s.writeSessionError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, g)
}

func (s *Server) getGEX(w http.ResponseWriter, r *http.Request) {
	window := s.cfg.Instrument.StrikeWindow
	if err := runtime.BindQueryParameter("form", true, false, "window", r.URL.Query(), &window); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	report, err := s.session.GEXRows()
	if err != nil {
		s.writeSessionError(w, err)
		return
	}
	atm := s.session.Status(s.now()).ATMStrike
	report.Rows = gex.Window(report.Rows, atm, s.cfg.Instrument.StrikeInterval, window)
	writeJSON(w, http.StatusOK, report)
}

func (s *Server) getGammaWall(w http.ResponseWriter, r *http.Request) {
	level, err := s.session.GammaWall()
	if err != nil {
		s.writeSessionError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, level)
}

func (s *Server) getGammaFlip(w http.ResponseWriter, r *http.Request) {
	level, err := s.session.GammaFlip()
	if err != nil {
		s.writeSessionError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, level)
}

func (s *Server) getCVD(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.session.CVD())
}

type footprintResponse struct {
	Levels []orderflow.Level `json:"levels"`
	Count  int               `json:"count"`
}

func (s *Server) getFootprint(w http.ResponseWriter, r *http.Request) {
	levels := s.session.Footprint()
	writeJSON(w, http.StatusOK, footprintResponse{Levels: levels, Count: len(levels)})
}

type candlesResponse struct {
	Candles []orderflow.Candle `json:"candles"`
	Count   int                `json:"count"`
}

func (s *Server) getCandles(w http.ResponseWriter, r *http.Request) {
	candles := s.session.Candles()
	writeJSON(w, http.StatusOK, candlesResponse{Candles: candles, Count: len(candles)})
}

type alertsResponse struct {
	Alerts []alert.Alert `json:"alerts"`
	Count  int           `json:"count"`
	Last   uint64        `json:"last_seq"`
}

func (s *Server) getAlerts(w http.ResponseWriter, r *http.Request) {
	var after uint64
	if err := runtime.BindQueryParameter("form", true, false, "after", r.URL.Query(), &after); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	alerts := s.session.Alerts(after)
	resp := alertsResponse{Alerts: alerts, Count: len(alerts), Last: after}
	if n := len(alerts); n > 0 {
		resp.Last = alerts[n-1].Seq
	}
	writeJSON(w, http.StatusOK, resp)
}

func (s *Server) postSnapshot(w http.ResponseWriter, r *http.Request) {
	var snap market.ChainSnapshot
	if err := decodeBody(w, r, &snap); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	summary, err := s.session.OnSnapshot(snap, s.now())
	if err != nil {
		s.writeSessionError(w, err)
		return
	}

	s.logger.Debug("snapshot ingested",
		zap.Float64("spot", summary.Spot),
		zap.Int("contracts", summary.Contracts),
		zap.Int("failed", summary.Failed),
	)
	writeJSON(w, http.StatusOK, summary)
}

type rejectedTick struct {
	Index int    `json:"index"`
	Error string `json:"error"`
}

type ticksResponse struct {
	Trades   []orderflow.Trade `json:"trades"`
	Alerts   []alert.Alert     `json:"alerts"`
	Rejected []rejectedTick    `json:"rejected,omitempty"`
	CVD      float64           `json:"cumulative_delta"`
}

// postTicks applies ticks in order. Invalid ticks are reported and skipped;
// the request fails only when none were accepted.
func (s *Server) postTicks(w http.ResponseWriter, r *http.Request) {
	var ticks []market.Tick
	if err := decodeBody(w, r, &ticks); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	if len(ticks) == 0 {
		writeError(w, http.StatusBadRequest, "no ticks in request")
		return
	}

	resp := ticksResponse{Trades: make([]orderflow.Trade, 0, len(ticks)), Alerts: []alert.Alert{}}
	for i, t := range ticks {
		trade, fired, err := s.session.OnTick(t)
		if err != nil {
			resp.Rejected = append(resp.Rejected, rejectedTick{Index: i, Error: err.Error()})
			continue
		}
		resp.Trades = append(resp.Trades, trade)
		resp.Alerts = append(resp.Alerts, fired...)
	}
	resp.CVD = s.session.CVD().CumulativeDelta

	if len(resp.Trades) == 0 {
		writeJSON(w, http.StatusBadRequest, resp)
		return
	}
	writeJSON(w, http.StatusOK, resp)
}

func (s *Server) resetSession(w http.ResponseWriter, r *http.Request) {
	result, err := s.resets.Reset(s.now())
	if err != nil {
		if errors.Is(err, ErrResetInProgress) {
			writeError(w, http.StatusConflict, err.Error())
			return
		}
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, result)
}

// writeSessionError maps session and domain errors onto HTTP status codes.
func (s *Server) writeSessionError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, session.ErrNoSnapshot):
		writeError(w, http.StatusServiceUnavailable, err.Error())
	case errors.Is(err, session.ErrNotFound), errors.Is(err, gex.ErrNoLevel):
		writeError(w, http.StatusNotFound, err.Error())
	case errors.Is(err, market.ErrInvalidInput):
		writeError(w, http.StatusBadRequest, err.Error())
	default:
		s.logger.Error("request failed", zap.Error(err))
		writeError(w, http.StatusInternalServerError, err.Error())
	}
}

func decodeBody(w http.ResponseWriter, r *http.Request, dst any) error {
	body := http.MaxBytesReader(w, r.Body, maxBodyBytes)
	defer body.Close()
	if err := json.NewDecoder(body).Decode(dst); err != nil {
		return fmt.Errorf("decoding request body: %w", err)
	}
	return nil
}

type errorResponse struct {
	Error string `json:"error"`
}

func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, errorResponse{Error: message})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
