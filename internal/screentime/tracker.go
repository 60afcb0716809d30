// Package screentime tracks a child's screen usage sessions.
package screentime

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"time"

	"github.com/dukerupert/merelax/internal/clock"
	"github.com/dukerupert/merelax/internal/metrics"
	"github.com/dukerupert/merelax/internal/model"
	"github.com/dukerupert/merelax/internal/store"
)

// alertThresholdMinutes marks an ended session as over the limit.
const alertThresholdMinutes = 30

var ErrNoActiveSession = errors.New("active session not found")

type Status struct {
	SessionID  int64      `json:"screentime_id"`
	Active     bool       `json:"is_active"`
	StartTime  *time.Time `json:"start_time"`
	Elapsed    int64      `json:"elapsed_seconds"`
	Message    string     `json:"message"`
	AlertLevel int        `json:"alert_level"`
}

type Tracker struct {
	store   *store.ScreenTimeStore
	clock   clock.Clock
	logger  *slog.Logger
	metrics *metrics.Metrics
}

func NewTracker(s *store.ScreenTimeStore, c clock.Clock, logger *slog.Logger, m *metrics.Metrics) *Tracker {
	if logger == nil {
		logger = slog.Default()
	}
	return &Tracker{store: s, clock: c, logger: logger, metrics: m}
}

// Start opens a session for the child, or resumes the one already open.
func (t *Tracker) Start(ctx context.Context, childID int64) (*Status, error) {
	active, err := t.store.GetActive(ctx, childID)
	if err != nil {
		return nil, err
	}
	if active != nil {
		t.metrics.ScreenTime("resume")
		return t.status(active), nil
	}

	created, err := t.store.Create(ctx, childID, t.clock.Now())
	if errors.Is(err, store.ErrDuplicate) {
		// A concurrent start opened the session first.
		active, err = t.store.GetActive(ctx, childID)
		if err != nil {
			return nil, err
		}
		if active == nil {
			return nil, fmt.Errorf("start session for child %d: active session vanished", childID)
		}
		t.metrics.ScreenTime("resume")
		return t.status(active), nil
	}
	if err != nil {
		return nil, err
	}
	t.metrics.ScreenTime("start")
	t.logger.Debug("screen time started", "child_id", childID, "screentime_id", created.ID)
	return t.status(created), nil
}

// Status reports the open session without changing it.
func (t *Tracker) Status(ctx context.Context, childID int64) (*Status, error) {
	active, err := t.store.GetActive(ctx, childID)
	if err != nil {
		return nil, err
	}
	if active == nil {
		return &Status{Message: messageIdle}, nil
	}
	return t.status(active), nil
}

// End closes the open session, rounding its length up to whole minutes.
func (t *Tracker) End(ctx context.Context, childID int64) (*model.ScreenTimeSession, error) {
	active, err := t.store.GetActive(ctx, childID)
	if err != nil {
		return nil, err
	}
	if active == nil {
		return nil, ErrNoActiveSession
	}

	now := t.clock.Now()
	total := totalMinutes(now.Sub(active.StartTime))
	alert := total >= alertThresholdMinutes

	ok, err := t.store.End(ctx, active.ID, now, total, alert)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, ErrNoActiveSession
	}
	t.metrics.ScreenTime("end")
	t.logger.Debug("screen time ended", "child_id", childID, "screentime_id", active.ID, "total_minutes", total)

	return t.store.GetByID(ctx, active.ID)
}

func (t *Tracker) status(s *model.ScreenTimeSession) *Status {
	elapsed := max(t.clock.Now().Sub(s.StartTime), 0)
	alert := AlertFor(elapsed)
	start := s.StartTime
	return &Status{
		SessionID:  s.ID,
		Active:     true,
		StartTime:  &start,
		Elapsed:    int64(elapsed / time.Second),
		Message:    alert.Message,
		AlertLevel: alert.Level,
	}
}

func totalMinutes(d time.Duration) int {
	return int(math.Ceil(max(d, 0).Seconds() / 60))
}
