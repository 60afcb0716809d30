package exercise

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/dukerupert/merelax/internal/clock"
	"github.com/dukerupert/merelax/internal/metrics"
	"github.com/dukerupert/merelax/internal/model"
	"github.com/dukerupert/merelax/internal/store"
)

var (
	ErrUnknownExercise = errors.New("unknown exercise")
	ErrInvalidDate     = errors.New("exercise_date must be YYYY-MM-DD")
)

type Outcome string

const (
	OutcomeLogged    Outcome = "logged"
	OutcomeDuplicate Outcome = "duplicate"
)

const (
	messageLogged    = "Well done!"
	messageDuplicate = "Already done today!"
)

type Stats struct {
	ConsecutiveDays int      `json:"consecutive_days"`
	ThisWeekCount   int      `json:"this_week_count"`
	TodayCompleted  []string `json:"today_completed"`
	TodayPending    []string `json:"today_pending"`
}

// LogResult is the outcome of a log attempt. A duplicate is an expected
// outcome, not an error.
type LogResult struct {
	Outcome Outcome
	Message string
	Log     *model.ExerciseLog
	Stats   *Stats
}

func (r *LogResult) Success() bool {
	return r.Outcome == OutcomeLogged
}

type Tracker struct {
	store   *store.ExerciseStore
	clock   clock.Clock
	loc     *time.Location
	logger  *slog.Logger
	metrics *metrics.Metrics
}

func NewTracker(s *store.ExerciseStore, c clock.Clock, loc *time.Location, logger *slog.Logger, m *metrics.Metrics) *Tracker {
	if loc == nil {
		loc = time.Local
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Tracker{store: s, clock: c, loc: loc, logger: logger, metrics: m}
}

// Today returns the current calendar day in the tracker's time zone.
func (t *Tracker) Today() time.Time {
	return startOfDay(t.clock.Now().In(t.loc))
}

// ParseDate parses a YYYY-MM-DD date in the tracker's time zone.
func (t *Tracker) ParseDate(s string) (time.Time, error) {
	d, err := time.ParseInLocation(model.DateLayout, s, t.loc)
	if err != nil {
		return time.Time{}, ErrInvalidDate
	}
	return d, nil
}

func (t *Tracker) Exercises(ctx context.Context) ([]model.Exercise, error) {
	return t.store.List(ctx)
}

func (t *Tracker) Stats(ctx context.Context, childID int64) (*Stats, error) {
	raw, err := t.store.ListDates(ctx, childID)
	if err != nil {
		return nil, err
	}
	dates := make([]time.Time, 0, len(raw))
	for _, s := range raw {
		d, err := t.ParseDate(s)
		if err != nil {
			return nil, fmt.Errorf("stored exercise date %q: %w", s, err)
		}
		dates = append(dates, d)
	}

	today := t.Today()
	all, err := t.store.List(ctx)
	if err != nil {
		return nil, err
	}
	completed, err := t.store.CompletedOn(ctx, childID, today.Format(model.DateLayout))
	if err != nil {
		return nil, err
	}
	done, pending := TodayStatus(all, completed)

	return &Stats{
		ConsecutiveDays: ConsecutiveDays(dates, today),
		ThisWeekCount:   WeeklyCount(dates, today),
		TodayCompleted:  done,
		TodayPending:    pending,
	}, nil
}

// Log records that the child did the exercise on date. A zero date means
// today. Logging the same exercise twice on one day yields OutcomeDuplicate.
func (t *Tracker) Log(ctx context.Context, childID, exerciseID int64, date time.Time) (*LogResult, error) {
	ex, err := t.store.GetByID(ctx, exerciseID)
	if err != nil {
		return nil, err
	}
	if ex == nil {
		return nil, ErrUnknownExercise
	}
	if date.IsZero() {
		date = t.Today()
	}

	result := &LogResult{Outcome: OutcomeLogged, Message: messageLogged}
	l, err := t.store.CreateLog(ctx, childID, exerciseID, date.Format(model.DateLayout), t.clock.Now())
	switch {
	case errors.Is(err, store.ErrDuplicate):
		result.Outcome = OutcomeDuplicate
		result.Message = messageDuplicate
	case err != nil:
		return nil, err
	default:
		result.Log = l
		t.logger.Debug("exercise logged", "child_id", childID, "exercise", ex.Type, "date", l.ExerciseDate)
	}
	t.metrics.ExerciseLog(string(result.Outcome))

	result.Stats, err = t.Stats(ctx, childID)
	if err != nil {
		return nil, err
	}
	return result, nil
}
