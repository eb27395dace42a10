package server

import (
	"errors"
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/zap"

	"github.com/dgnsrekt/gexflow/internal/pricing"
	"github.com/dgnsrekt/gexflow/internal/session"
)

var ErrResetInProgress = errors.New("reset already in progress")

// ResetManager coordinates the daily session reset across components.
// It clears order-flow and alert state and rolls the expiry forward once
// the current one has passed.
type ResetManager struct {
	session  *session.Session
	calendar *pricing.ExpiryCalendar // nil keeps a pinned expiry
	logger   *zap.Logger

	// Reset state
	isResetting atomic.Bool
	resetMu     sync.Mutex // prevents concurrent resets

	lastReset time.Time
	stateMu   sync.RWMutex
}

// NewResetManager creates a new ResetManager.
func NewResetManager(sess *session.Session, calendar *pricing.ExpiryCalendar, logger *zap.Logger) *ResetManager {
	return &ResetManager{
		session:  sess,
		calendar: calendar,
		logger:   logger,
	}
}

// IsResetting returns true while a reset is running.
// WebSocket streamers check this and skip broadcasts in the meantime.
func (rm *ResetManager) IsResetting() bool {
	return rm.isResetting.Load()
}

// LastReset returns when the session was last reset, zero if never.
func (rm *ResetManager) LastReset() time.Time {
	rm.stateMu.RLock()
	defer rm.stateMu.RUnlock()
	return rm.lastReset
}

// ResetResult describes one completed reset.
type ResetResult struct {
	PreviousExpiry time.Time `json:"previous_expiry"`
	Expiry         time.Time `json:"expiry"`
	Rolled         bool      `json:"rolled"`
	ResetAt        time.Time `json:"reset_at"`
}

// Reset clears the session and advances the expiry when now is at or past it.
func (rm *ResetManager) Reset(now time.Time) (*ResetResult, error) {
	if !rm.resetMu.TryLock() {
		return nil, ErrResetInProgress
	}
	defer rm.resetMu.Unlock()

	rm.isResetting.Store(true)
	defer rm.isResetting.Store(false)

	previous := rm.session.Expiry()
	result := &ResetResult{PreviousExpiry: previous, Expiry: previous, ResetAt: now}

	rm.session.Reset()

	if rm.calendar != nil && !now.Before(previous) {
		next := rm.calendar.Next(now)
		if err := rm.session.SetExpiry(next); err != nil {
			return nil, err
		}
		result.Expiry = next
		result.Rolled = true
	}

	rm.stateMu.Lock()
	rm.lastReset = now
	rm.stateMu.Unlock()

	rm.logger.Info("session reset complete",
		zap.Time("previousExpiry", previous),
		zap.Time("expiry", result.Expiry),
		zap.Bool("rolled", result.Rolled),
	)

	return result, nil
}

// ScheduledReset runs Reset from a scheduler. Non-business days are skipped
// when a calendar is configured and businessDaysOnly is set.
func (rm *ResetManager) ScheduledReset(now time.Time, businessDaysOnly bool) {
	if businessDaysOnly && rm.calendar != nil && !rm.calendar.IsBusinessDay(now) {
		rm.logger.Debug("skipping reset on non-business day", zap.Time("now", now))
		return
	}
	if _, err := rm.Reset(now); err != nil {
		rm.logger.Warn("scheduled reset failed", zap.Error(err))
	}
}
