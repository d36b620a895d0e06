package main

import (
	"bytes"
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gorilla/websocket"

	"github.com/nerrad567/feedwatch/internal/channel"
	"github.com/nerrad567/feedwatch/internal/infrastructure/database"
	"github.com/nerrad567/feedwatch/internal/journal"
)

// syncBuffer is a bytes.Buffer safe for concurrent writers and readers.
type syncBuffer struct {
	mu  sync.Mutex
	buf bytes.Buffer
}

func (b *syncBuffer) Write(p []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.Write(p)
}

func (b *syncBuffer) String() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.String()
}

func TestParseArgs(t *testing.T) {
	tests := []struct {
		name    string
		args    []string
		want    []string
		wantErr bool
	}{
		{name: "no args uses config", args: nil, want: nil},
		{name: "tag", args: []string{"rust"}, want: []string{"tag:rust"}},
		{name: "tag with spaces", args: []string{" go "}, want: []string{"tag:go"}},
		{name: "empty tag", args: []string{""}, wantErr: true},
		{name: "too many", args: []string{"go", "rust"}, wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := parseArgs(tt.args)
			if (err != nil) != tt.wantErr {
				t.Fatalf("parseArgs() error = %v, wantErr %v", err, tt.wantErr)
			}
			if fmt.Sprint(got) != fmt.Sprint(tt.want) {
				t.Errorf("parseArgs() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestRun_Usage(t *testing.T) {
	var stdout, stderr bytes.Buffer
	code := run(context.Background(), []string{"go", "rust"}, &stdout, &stderr)

	if code != exitUsage {
		t.Errorf("run() = %d, want %d", code, exitUsage)
	}
	if !strings.Contains(stderr.String(), usage) {
		t.Errorf("stderr = %q, want usage message", stderr.String())
	}
	if stdout.Len() != 0 {
		t.Errorf("stdout = %q, want empty", stdout.String())
	}
}

func TestRun_InvalidConfig(t *testing.T) {
	t.Setenv("FEEDWATCH_CONFIG", "/nonexistent/path/feedwatch.yaml")

	var stdout, stderr bytes.Buffer
	code := run(context.Background(), nil, &stdout, &stderr)

	if code != exitError {
		t.Errorf("run() = %d, want %d", code, exitError)
	}
	if !strings.Contains(stderr.String(), "loading config") {
		t.Errorf("stderr = %q", stderr.String())
	}
}

func TestRun_JournalPathInvalid(t *testing.T) {
	tmp := t.TempDir()
	blocker := filepath.Join(tmp, "file")
	if err := os.WriteFile(blocker, nil, 0600); err != nil {
		t.Fatalf("WriteFile() error = %v", err)
	}
	t.Setenv("FEEDWATCH_CONFIG", writeConfig(t, fmt.Sprintf(`
journal:
  enabled: true
  path: %q
`, filepath.Join(blocker, "sub", "journal.db"))))

	var stdout, stderr bytes.Buffer
	if code := run(context.Background(), nil, &stdout, &stderr); code != exitError {
		t.Errorf("run() = %d, want %d (stderr %s)", code, exitError, stderr.String())
	}
}

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "feedwatch.yaml")
	if err := os.WriteFile(path, []byte(content), 0600); err != nil {
		t.Fatalf("failed to write test config: %v", err)
	}
	return path
}

// newFeedServer records joined topics and answers each join with one
// bookmark:created event.
func newFeedServer(t *testing.T, joined chan<- string) string {
	t.Helper()

	upgrader := websocket.Upgrader{}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		defer conn.Close()

		_, data, err := conn.ReadMessage()
		if err != nil {
			return
		}
		join, err := channel.DecodeEnvelope(data)
		if err != nil {
			return
		}
		select {
		case joined <- join.Topic:
		default:
		}

		event := fmt.Sprintf(`{"topic":%q,"event":"bookmark:created","payload":{"title":"Go Proverbs","url":"https://go-proverbs.github.io","tags":["go","style"]},"ref":null}`, join.Topic)
		if err := conn.WriteMessage(websocket.TextMessage, []byte(event)); err != nil {
			return
		}
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}))
	t.Cleanup(srv.Close)
	return "ws" + strings.TrimPrefix(srv.URL, "http") + "/socket/websocket"
}

func TestRun_EndToEnd(t *testing.T) {
	joined := make(chan string, 4)
	url := newFeedServer(t, joined)
	dbPath := filepath.Join(t.TempDir(), "journal.db")

	t.Setenv("FEEDWATCH_CONFIG", writeConfig(t, fmt.Sprintf(`
endpoint:
  url: %q
subscription:
  topics: ["bookmark:feed"]
  reconnect_delay: 50ms
logging:
  level: error
journal:
  enabled: true
  path: %q
`, url, dbPath)))

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	stdout, stderr := &syncBuffer{}, &syncBuffer{}
	done := make(chan int, 1)
	go func() { done <- run(ctx, []string{"go"}, stdout, stderr) }()

	select {
	case topic := <-joined:
		if topic != "tag:go" {
			t.Errorf("joined topic = %q, want tag:go", topic)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("server never saw a join")
	}

	want := "=== New Bookmark with tag: go ===\nTitle: Go Proverbs\nURL: https://go-proverbs.github.io\nTags: go, style\n"
	deadline := time.Now().Add(5 * time.Second)
	for !strings.Contains(stdout.String(), want) {
		if time.Now().After(deadline) {
			t.Fatalf("stdout = %q, want block %q", stdout.String(), want)
		}
		time.Sleep(10 * time.Millisecond)
	}
	if !strings.HasPrefix(stdout.String(), "Starting tag feed client...\n") {
		t.Errorf("stdout does not start with the banner: %q", stdout.String())
	}
	if !strings.Contains(stdout.String(), "Connected to "+url+" for tag: go") {
		t.Errorf("stdout missing connection notice: %q", stdout.String())
	}

	cancel()
	select {
	case code := <-done:
		if code != exitOK {
			t.Errorf("run() = %d, want 0 (stderr %s)", code, stderr.String())
		}
	case <-time.After(5 * time.Second):
		t.Fatal("run() did not return after cancel")
	}

	db, err := database.Open(context.Background(), database.Config{Path: dbPath, BusyTimeout: 5})
	if err != nil {
		t.Fatalf("database.Open() error = %v", err)
	}
	defer db.Close()

	sessions, err := journal.NewSQLiteRepository(db).ListByTopic(context.Background(), "tag:go", 10)
	if err != nil {
		t.Fatalf("ListByTopic() error = %v", err)
	}
	if len(sessions) == 0 {
		t.Fatal("journal recorded no sessions")
	}
	if sessions[0].URL != url || sessions[0].SubscribedAt.IsZero() {
		t.Errorf("session = %+v", sessions[0])
	}
}
