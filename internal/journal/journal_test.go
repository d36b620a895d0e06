package journal

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"github.com/nerrad567/feedwatch/internal/channel"
	"github.com/nerrad567/feedwatch/internal/infrastructure/database"
	"github.com/nerrad567/feedwatch/migrations"
)

func newTestRepo(t *testing.T) *SQLiteRepository {
	t.Helper()
	ctx := context.Background()

	db, err := database.Open(ctx, database.Config{
		Path:        filepath.Join(t.TempDir(), "journal.db"),
		WALMode:     true,
		BusyTimeout: 5,
	})
	if err != nil {
		t.Fatalf("Open() error = %v", err)
	}
	t.Cleanup(func() { db.Close() }) //nolint:errcheck // Test cleanup

	if err := db.Migrate(ctx, migrations.FS); err != nil {
		t.Fatalf("Migrate() error = %v", err)
	}
	return NewSQLiteRepository(db)
}

func TestRepository_Lifecycle(t *testing.T) {
	repo := newTestRepo(t)
	ctx := context.Background()
	start := time.Date(2026, 10, 1, 12, 0, 0, 0, time.UTC)

	if err := repo.Start(ctx, Session{ID: "s1", Topic: "tag:go", URL: "ws://x", StartedAt: start}); err != nil {
		t.Fatalf("Start() error = %v", err)
	}
	if err := repo.MarkSubscribed(ctx, "s1", start.Add(time.Second)); err != nil {
		t.Fatalf("MarkSubscribed() error = %v", err)
	}
	for range 3 {
		if err := repo.AddEvent(ctx, "s1"); err != nil {
			t.Fatalf("AddEvent() error = %v", err)
		}
	}
	if err := repo.AddFailure(ctx, "s1"); err != nil {
		t.Fatalf("AddFailure() error = %v", err)
	}

	open, err := repo.Get(ctx, "s1")
	if err != nil {
		t.Fatalf("Get() error = %v", err)
	}
	if !open.Open() || open.Events != 3 || open.Failures != 1 {
		t.Errorf("open session = %+v", open)
	}

	if err := repo.End(ctx, "s1", start.Add(time.Minute), "subscribed", "connection lost: EOF"); err != nil {
		t.Fatalf("End() error = %v", err)
	}

	got, err := repo.Get(ctx, "s1")
	if err != nil {
		t.Fatalf("Get() error = %v", err)
	}
	if got.Open() {
		t.Error("session still open after End")
	}
	if !got.StartedAt.Equal(start) || !got.SubscribedAt.Equal(start.Add(time.Second)) {
		t.Errorf("times = %v / %v", got.StartedAt, got.SubscribedAt)
	}
	if got.Duration(time.Now()) != time.Minute {
		t.Errorf("Duration() = %v, want 1m", got.Duration(time.Now()))
	}
	if got.EndState != "subscribed" || got.Error != "connection lost: EOF" || got.URL != "ws://x" {
		t.Errorf("session = %+v", got)
	}
}

func TestRepository_Errors(t *testing.T) {
	repo := newTestRepo(t)
	ctx := context.Background()

	if err := repo.Start(ctx, Session{Topic: "tag:go"}); !errors.Is(err, ErrInvalidSession) {
		t.Errorf("Start() without id error = %v, want ErrInvalidSession", err)
	}
	if err := repo.AddEvent(ctx, "missing"); !errors.Is(err, ErrSessionNotFound) {
		t.Errorf("AddEvent() error = %v, want ErrSessionNotFound", err)
	}
	if _, err := repo.Get(ctx, "missing"); !errors.Is(err, ErrSessionNotFound) {
		t.Errorf("Get() error = %v, want ErrSessionNotFound", err)
	}

	if err := repo.Start(ctx, Session{ID: "dup", Topic: "tag:go"}); err != nil {
		t.Fatalf("Start() error = %v", err)
	}
	if err := repo.Start(ctx, Session{ID: "dup", Topic: "tag:go"}); err == nil {
		t.Error("Start() with duplicate id expected error")
	}
}

func TestRepository_ListByTopic(t *testing.T) {
	repo := newTestRepo(t)
	ctx := context.Background()
	base := time.Date(2026, 10, 1, 0, 0, 0, 0, time.UTC)

	for i, id := range []string{"a", "b", "c"} {
		if err := repo.Start(ctx, Session{ID: id, Topic: "bookmark:feed", StartedAt: base.Add(time.Duration(i) * time.Minute)}); err != nil {
			t.Fatalf("Start(%s) error = %v", id, err)
		}
	}
	if err := repo.Start(ctx, Session{ID: "other", Topic: "tag:go", StartedAt: base}); err != nil {
		t.Fatalf("Start(other) error = %v", err)
	}

	got, err := repo.ListByTopic(ctx, "bookmark:feed", 2)
	if err != nil {
		t.Fatalf("ListByTopic() error = %v", err)
	}
	if len(got) != 2 || got[0].ID != "c" || got[1].ID != "b" {
		t.Errorf("ListByTopic() = %+v, want c then b", got)
	}

	none, err := repo.ListByTopic(ctx, "tag:rust", 0)
	if err != nil {
		t.Fatalf("ListByTopic() error = %v", err)
	}
	if none == nil || len(none) != 0 {
		t.Errorf("ListByTopic() for unknown topic = %#v, want empty slice", none)
	}
}

func TestRepository_CloseOpen(t *testing.T) {
	repo := newTestRepo(t)
	ctx := context.Background()

	_ = repo.Start(ctx, Session{ID: "open", Topic: "tag:go"})
	_ = repo.Start(ctx, Session{ID: "closed", Topic: "tag:go"})
	_ = repo.End(ctx, "closed", time.Now(), "connecting", "")

	n, err := repo.CloseOpen(ctx, time.Now())
	if err != nil {
		t.Fatalf("CloseOpen() error = %v", err)
	}
	if n != 1 {
		t.Errorf("CloseOpen() = %d, want 1", n)
	}

	s, _ := repo.Get(ctx, "open")
	if s.Open() || s.Error != abandonedError {
		t.Errorf("session = %+v", s)
	}
	c, _ := repo.Get(ctx, "closed")
	if c.Error != "" {
		t.Errorf("clean session error = %q, want empty", c.Error)
	}
}

func TestRecorder_RecordsSessions(t *testing.T) {
	repo := newTestRepo(t)
	rec := NewRecorder(repo, "ws://feed", nil)
	ctx := context.Background()
	now := time.Now()

	tr := func(id string, from, to channel.State, err error) channel.Transition {
		return channel.Transition{Topic: "tag:go", SessionID: id, From: from, To: to, At: now, Err: err}
	}

	// First attempt fails to dial.
	rec.ObserveTransition(tr("one", channel.StateDisconnected, channel.StateConnecting, nil))
	rec.ObserveTransition(tr("one", channel.StateConnecting, channel.StateDisconnected, channel.ErrConnect))

	// Events between sessions are not counted anywhere.
	if err := rec.HandleEvent(ctx, "tag:go", "bookmark:created", channel.Payload{}); err != nil {
		t.Errorf("HandleEvent() without session error = %v", err)
	}

	// Second attempt subscribes, receives events, then is cancelled.
	rec.ObserveTransition(tr("two", channel.StateDisconnected, channel.StateConnecting, nil))
	rec.ObserveTransition(tr("two", channel.StateConnecting, channel.StateJoining, nil))
	rec.ObserveTransition(tr("two", channel.StateJoining, channel.StateSubscribed, nil))
	for range 2 {
		if err := rec.HandleEvent(ctx, "tag:go", "bookmark:created", channel.Payload{}); err != nil {
			t.Fatalf("HandleEvent() error = %v", err)
		}
	}
	rec.ObserveError("tag:go", errors.New("malformed"))
	rec.ObserveTransition(tr("two", channel.StateSubscribed, channel.StateDisconnected, nil))

	sessions, err := rec.Sessions(ctx, "tag:go", 10)
	if err != nil {
		t.Fatalf("Sessions() error = %v", err)
	}
	if len(sessions) != 2 {
		t.Fatalf("len(sessions) = %d, want 2", len(sessions))
	}

	byID := map[string]Session{}
	for _, s := range sessions {
		byID[s.ID] = s
	}

	one := byID["one"]
	if one.EndState != "connecting" || one.Error != channel.ErrConnect.Error() || !one.SubscribedAt.IsZero() {
		t.Errorf("failed session = %+v", one)
	}

	two := byID["two"]
	if two.EndState != "subscribed" || two.Error != "" || two.SubscribedAt.IsZero() || two.Open() {
		t.Errorf("cancelled session = %+v", two)
	}
	if two.Events != 2 || two.Failures != 1 {
		t.Errorf("counters = %d events, %d failures; want 2 and 1", two.Events, two.Failures)
	}
	if two.URL != "ws://feed" {
		t.Errorf("URL = %q", two.URL)
	}
}

func TestRecorder_Recover(t *testing.T) {
	repo := newTestRepo(t)
	ctx := context.Background()
	_ = repo.Start(ctx, Session{ID: "stale", Topic: "bookmark:feed"})

	rec := NewRecorder(repo, "ws://feed", nil)
	if err := rec.Recover(ctx); err != nil {
		t.Fatalf("Recover() error = %v", err)
	}
	s, _ := repo.Get(ctx, "stale")
	if s.Open() {
		t.Error("stale session still open after Recover")
	}
}
