package journal

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/nerrad567/feedwatch/internal/infrastructure/database"
)

// DefaultListLimit caps ListByTopic when the caller passes a non-positive limit.
const DefaultListLimit = 50

// abandonedError marks sessions left open by a previous run.
const abandonedError = "abandoned: process exited while session was open"

// Repository stores sessions.
type Repository interface {
	Start(ctx context.Context, s Session) error
	MarkSubscribed(ctx context.Context, id string, at time.Time) error
	AddEvent(ctx context.Context, id string) error
	AddFailure(ctx context.Context, id string) error
	End(ctx context.Context, id string, at time.Time, endState, errMsg string) error
	CloseOpen(ctx context.Context, at time.Time) (int64, error)
	Get(ctx context.Context, id string) (Session, error)
	ListByTopic(ctx context.Context, topic string, limit int) ([]Session, error)
}

// SQLiteRepository implements Repository on the sessions table.
type SQLiteRepository struct {
	db *database.DB
}

// NewSQLiteRepository wraps a migrated database.
func NewSQLiteRepository(db *database.DB) *SQLiteRepository {
	return &SQLiteRepository{db: db}
}

const sessionColumns = `id, topic, url, started_at, subscribed_at, ended_at, end_state, events, failures, error`

// Start inserts a new open session.
func (r *SQLiteRepository) Start(ctx context.Context, s Session) error {
	if s.ID == "" || s.Topic == "" {
		return ErrInvalidSession
	}
	if s.StartedAt.IsZero() {
		s.StartedAt = time.Now()
	}

	_, err := r.db.ExecContext(ctx,
		`INSERT INTO sessions (id, topic, url, started_at) VALUES (?, ?, ?, ?)`,
		s.ID, s.Topic, s.URL, formatTime(s.StartedAt),
	)
	if err != nil {
		return fmt.Errorf("inserting session %s: %w", s.ID, err)
	}
	return nil
}

// MarkSubscribed records when the join was sent.
func (r *SQLiteRepository) MarkSubscribed(ctx context.Context, id string, at time.Time) error {
	return r.update(ctx, id, `UPDATE sessions SET subscribed_at = ? WHERE id = ?`, formatTime(at), id)
}

// AddEvent increments the event counter.
func (r *SQLiteRepository) AddEvent(ctx context.Context, id string) error {
	return r.update(ctx, id, `UPDATE sessions SET events = events + 1 WHERE id = ?`, id)
}

// AddFailure increments the failure counter.
func (r *SQLiteRepository) AddFailure(ctx context.Context, id string) error {
	return r.update(ctx, id, `UPDATE sessions SET failures = failures + 1 WHERE id = ?`, id)
}

// End closes a session. errMsg is empty for a clean shutdown.
func (r *SQLiteRepository) End(ctx context.Context, id string, at time.Time, endState, errMsg string) error {
	return r.update(ctx, id,
		`UPDATE sessions SET ended_at = ?, end_state = ?, error = ? WHERE id = ?`,
		formatTime(at), endState, nullString(errMsg), id,
	)
}

// CloseOpen ends every session that is still open, marking it abandoned.
// It is called at startup to clean up after a crash.
func (r *SQLiteRepository) CloseOpen(ctx context.Context, at time.Time) (int64, error) {
	res, err := r.db.ExecContext(ctx,
		`UPDATE sessions SET ended_at = ?, error = ? WHERE ended_at IS NULL`,
		formatTime(at), abandonedError,
	)
	if err != nil {
		return 0, fmt.Errorf("closing open sessions: %w", err)
	}
	return res.RowsAffected()
}

// Get returns one session.
func (r *SQLiteRepository) Get(ctx context.Context, id string) (Session, error) {
	row := r.db.QueryRowContext(ctx, `SELECT `+sessionColumns+` FROM sessions WHERE id = ?`, id)
	s, err := scanSession(row)
	if errors.Is(err, sql.ErrNoRows) {
		return Session{}, fmt.Errorf("%w: %s", ErrSessionNotFound, id)
	}
	return s, err
}

// ListByTopic returns the newest sessions of a topic first.
func (r *SQLiteRepository) ListByTopic(ctx context.Context, topic string, limit int) ([]Session, error) {
	if limit <= 0 {
		limit = DefaultListLimit
	}

	rows, err := r.db.QueryContext(ctx,
		`SELECT `+sessionColumns+` FROM sessions WHERE topic = ? ORDER BY started_at DESC, rowid DESC LIMIT ?`,
		topic, limit,
	)
	if err != nil {
		return nil, fmt.Errorf("querying sessions: %w", err)
	}
	defer rows.Close()

	sessions := make([]Session, 0)
	for rows.Next() {
		s, err := scanSession(rows)
		if err != nil {
			return nil, err
		}
		sessions = append(sessions, s)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating sessions: %w", err)
	}
	return sessions, nil
}

func (r *SQLiteRepository) update(ctx context.Context, id, query string, args ...any) error {
	res, err := r.db.ExecContext(ctx, query, args...)
	if err != nil {
		return fmt.Errorf("updating session %s: %w", id, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("updating session %s: %w", id, err)
	}
	if n == 0 {
		return fmt.Errorf("%w: %s", ErrSessionNotFound, id)
	}
	return nil
}

type scanner interface {
	Scan(dest ...any) error
}

func scanSession(sc scanner) (Session, error) {
	var (
		s                 Session
		started           string
		subscribed, ended sql.NullString
		endState, errMsg  sql.NullString
	)
	err := sc.Scan(&s.ID, &s.Topic, &s.URL, &started, &subscribed, &ended, &endState, &s.Events, &s.Failures, &errMsg)
	if err != nil {
		return Session{}, fmt.Errorf("scanning session: %w", err)
	}

	s.StartedAt = parseTime(started)
	if subscribed.Valid {
		s.SubscribedAt = parseTime(subscribed.String)
	}
	if ended.Valid {
		s.EndedAt = parseTime(ended.String)
	}
	s.EndState = endState.String
	s.Error = errMsg.String
	return s, nil
}

// Timestamps are stored as RFC 3339 text with nanoseconds in UTC so they
// sort lexically.
const timeLayout = "2006-01-02T15:04:05.000000000Z07:00"

func formatTime(t time.Time) string {
	return t.UTC().Format(timeLayout)
}

func parseTime(s string) time.Time {
	t, err := time.Parse(time.RFC3339Nano, s)
	if err != nil {
		return time.Time{}
	}
	return t
}

func nullString(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}
