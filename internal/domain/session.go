package domain

import "time"

type SessionStatus string

const (
	SessionRunning   SessionStatus = "running"
	SessionCompleted SessionStatus = "completed"
	SessionFailed    SessionStatus = "failed"
	SessionCancelled SessionStatus = "cancelled"
)

type ScrapeSession struct {
	ID           int64         `db:"session_id"`
	StartedAt    time.Time     `db:"started_at"`
	EndedAt      *time.Time    `db:"ended_at"`
	ItemsFound   int           `db:"items_found"`
	ItemsFlagged int           `db:"items_flagged"`
	Status       SessionStatus `db:"status"`
	ErrorMessage *string       `db:"error_message"`
}

// RunStats holds statistics about one ingestion run.
type RunStats struct {
	SessionID     int64
	Status        SessionStatus
	Pages         int
	FetchFailures int
	ParseErrors   int
	Skipped       int
	Found         int
	Created       int
	BidUpdated    int
	Unchanged     int
	Deactivated   int
	Flagged       int
	RedFlagged    int
	Analyses      int
	StoreErrors   int
	Published     int
	PublishErrors int
	Expired       int64
	Duration      time.Duration
}
