package postgres

import (
	"context"
	"fmt"

	"github.com/jmoiron/sqlx"

	"auction_scout/internal/domain"
)

type SessionStore struct {
	db *sqlx.DB
}

func NewSessionStore(db *sqlx.DB) *SessionStore {
	return &SessionStore{db: db}
}

func (s *SessionStore) Create(ctx context.Context, session *domain.ScrapeSession) (int64, error) {
	query := `
		INSERT INTO scrape_sessions (started_at, items_found, items_flagged, status)
		VALUES ($1, $2, $3, $4)
		RETURNING session_id
	`

	var id int64
	err := GetExecutor(ctx, s.db).QueryRowxContext(ctx, query,
		session.StartedAt,
		session.ItemsFound,
		session.ItemsFlagged,
		session.Status,
	).Scan(&id)
	if err != nil {
		return 0, err
	}
	return id, nil
}

func (s *SessionStore) UpdateCounters(ctx context.Context, sessionID int64, found, flagged int) error {
	query := `
		UPDATE scrape_sessions
		SET items_found = $2, items_flagged = $3
		WHERE session_id = $1 AND ended_at IS NULL
	`
	return execOne(ctx, GetExecutor(ctx, s.db), query, sessionID, found, flagged)
}

// Close finalizes an open session. Closing an already closed or unknown
// session is an InvalidStateError.
func (s *SessionStore) Close(ctx context.Context, session *domain.ScrapeSession) error {
	query := `
		UPDATE scrape_sessions
		SET ended_at = $2, items_found = $3, items_flagged = $4, status = $5, error_message = $6
		WHERE session_id = $1 AND ended_at IS NULL
	`

	res, err := GetExecutor(ctx, s.db).ExecContext(ctx, query,
		session.ID,
		session.EndedAt,
		session.ItemsFound,
		session.ItemsFlagged,
		session.Status,
		session.ErrorMessage,
	)
	if err != nil {
		return err
	}

	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return &domain.InvalidStateError{Op: "close session", State: fmt.Sprintf("session %d not open", session.ID)}
	}
	return nil
}

func (s *SessionStore) Recent(ctx context.Context, limit int) ([]domain.ScrapeSession, error) {
	query := `
		SELECT session_id, started_at, ended_at, items_found, items_flagged, status, error_message
		FROM scrape_sessions
		ORDER BY started_at DESC, session_id DESC
		LIMIT $1
	`

	var sessions []domain.ScrapeSession
	if err := sqlx.SelectContext(ctx, GetExecutor(ctx, s.db), &sessions, query, limit); err != nil {
		return nil, err
	}
	return sessions, nil
}
