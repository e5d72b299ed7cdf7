package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"strings"
	"sync"
	"time"

	"auction_scout/internal/domain"
)

type trackerState int

const (
	trackerIdle trackerState = iota
	trackerOpen
	trackerClosed
)

func (s trackerState) String() string {
	switch s {
	case trackerOpen:
		return "open"
	case trackerClosed:
		return "closed"
	default:
		return "not opened"
	}
}

// SessionTracker owns one scrape session. Counters are buffered in memory and
// written on Flush and Close.
type SessionTracker struct {
	store  SessionStore
	logger *slog.Logger
	now    func() time.Time

	mu       sync.Mutex
	state    trackerState
	session  domain.ScrapeSession
	dirty    bool
	errCount map[string]int
}

func NewSessionTracker(store SessionStore, logger *slog.Logger) *SessionTracker {
	return &SessionTracker{
		store:    store,
		logger:   logger,
		now:      time.Now,
		errCount: make(map[string]int),
	}
}

func (t *SessionTracker) Open(ctx context.Context) (int64, error) {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.state != trackerIdle {
		return 0, &domain.InvalidStateError{Op: "open session", State: t.state.String()}
	}

	t.session = domain.ScrapeSession{
		StartedAt: t.now(),
		Status:    domain.SessionRunning,
	}
	id, err := t.store.Create(ctx, &t.session)
	if err != nil {
		return 0, &domain.StoreError{Op: "create session", Err: err}
	}
	t.session.ID = id
	t.state = trackerOpen

	t.logger.Info("session opened", "session_id", id)
	return id, nil
}

func (t *SessionTracker) RecordFound(n int) {
	t.add(&t.session.ItemsFound, n)
}

func (t *SessionTracker) RecordFlagged(n int) {
	t.add(&t.session.ItemsFlagged, n)
}

func (t *SessionTracker) add(counter *int, n int) {
	if n <= 0 {
		return
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	*counter += n
	t.dirty = true
}

// RecordError counts an error of the given kind toward the session's error message.
func (t *SessionTracker) RecordError(kind string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.errCount[kind]++
}

func (t *SessionTracker) Counters() (found, flagged int) {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.session.ItemsFound, t.session.ItemsFlagged
}

// Flush writes buffered counters to the store.
func (t *SessionTracker) Flush(ctx context.Context) error {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.state != trackerOpen {
		return &domain.InvalidStateError{Op: "flush session", State: t.state.String()}
	}
	if !t.dirty {
		return nil
	}
	if err := t.store.UpdateCounters(ctx, t.session.ID, t.session.ItemsFound, t.session.ItemsFlagged); err != nil {
		return &domain.StoreError{Op: "update session counters", Err: err}
	}
	t.dirty = false
	return nil
}

// Close ends the session with status. The error message combines cause, when
// given, with a summary of recorded errors. Closing twice is an InvalidStateError.
func (t *SessionTracker) Close(ctx context.Context, status domain.SessionStatus, cause error) error {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.state != trackerOpen {
		return &domain.InvalidStateError{Op: "close session", State: t.state.String()}
	}

	endedAt := t.now()
	closing := t.session
	closing.Status = status
	closing.EndedAt = &endedAt
	closing.ErrorMessage = t.errorMessage(cause)

	if err := t.store.Close(ctx, &closing); err != nil {
		var invalid *domain.InvalidStateError
		if errors.As(err, &invalid) {
			return err
		}
		return &domain.StoreError{Op: "close session", Err: err}
	}
	t.session = closing
	t.state = trackerClosed
	t.dirty = false

	t.logger.Info("session closed",
		"session_id", closing.ID,
		"status", status,
		"items_found", closing.ItemsFound,
		"items_flagged", closing.ItemsFlagged,
		"duration", endedAt.Sub(closing.StartedAt),
	)
	return nil
}

func (t *SessionTracker) errorMessage(cause error) *string {
	var parts []string
	if cause != nil {
		parts = append(parts, cause.Error())
	}

	kinds := make([]string, 0, len(t.errCount))
	for kind := range t.errCount {
		kinds = append(kinds, kind)
	}
	slices.Sort(kinds)
	for _, kind := range kinds {
		parts = append(parts, fmt.Sprintf("%s errors: %d", kind, t.errCount[kind]))
	}

	if len(parts) == 0 {
		return nil
	}
	msg := strings.Join(parts, "; ")
	return &msg
}
