//go:build integration

package postgres

import (
	"context"
	"log/slog"
	"os"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/jkaninda/shellguide/internal/ledger"
	"github.com/jkaninda/shellguide/internal/lesson"
	"github.com/jkaninda/shellguide/internal/security"
)

func testDB(t *testing.T) *DB {
	t.Helper()
	dsn := os.Getenv("TEST_POSTGRES_DSN")
	if dsn == "" {
		t.Skip("TEST_POSTGRES_DSN not set, skipping integration test")
	}
	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelWarn}))
	db, err := Open(Config{DSN: dsn}, logger)
	if err != nil {
		t.Fatalf("opening postgres: %v", err)
	}
	t.Cleanup(func() { db.Close() })
	return db
}

func testLearner() string {
	return "learner-" + uuid.New().String()[:8]
}

func TestLedgerUpsert_ConcurrentSaves(t *testing.T) {
	db := testDB(t)
	repo := NewLedgerRepository(db.GormDB())
	learner := testLearner()
	ctx := context.Background()

	const numWorkers = 20
	var wg sync.WaitGroup
	wg.Add(numWorkers)
	for i := 0; i < numWorkers; i++ {
		go func() {
			defer wg.Done()
			if err := repo.SaveEntry(ctx, learner, ledger.Entry{Command: "ls -a", Description: "all"}); err != nil {
				t.Errorf("SaveEntry: %v", err)
			}
		}()
	}
	wg.Wait()

	entries, err := repo.LoadEntries(ctx, learner)
	if err != nil {
		t.Fatal(err)
	}
	if len(entries) != 1 {
		t.Fatalf("got %d rows for one command, want 1", len(entries))
	}
}

func TestProgressRoundTrip(t *testing.T) {
	db := testDB(t)
	repo := NewProgressRepository(db.GormDB())
	learner := testLearner()
	ctx := context.Background()

	if err := repo.SaveProgress(ctx, learner, lesson.Status{LessonID: "navigation", State: lesson.StateInProgress, Index: 1}); err != nil {
		t.Fatal(err)
	}
	if err := repo.SaveProgress(ctx, learner, lesson.Status{LessonID: "navigation", State: lesson.StateComplete}); err != nil {
		t.Fatal(err)
	}
	got, err := repo.LoadProgress(ctx, learner)
	if err != nil {
		t.Fatal(err)
	}
	if len(got) != 1 || got[0].State != lesson.StateComplete {
		t.Fatalf("LoadProgress = %+v", got)
	}
	other, _ := repo.LoadProgress(ctx, testLearner())
	if len(other) != 0 {
		t.Errorf("another learner sees %d rows", len(other))
	}
}

func TestAuditAppendAndRecent(t *testing.T) {
	db := testDB(t)
	repo := NewAuditRepository(db.GormDB())
	session := uuid.New().String()
	ctx := context.Background()

	base := time.Now().UTC()
	for i, cmd := range []string{"ls", "pwd", "cd /"} {
		err := repo.Append(ctx, security.AuditEvent{
			Timestamp: base.Add(time.Duration(i) * time.Second),
			SessionID: session,
			Command:   cmd,
			Status:    "success",
		})
		if err != nil {
			t.Fatal(err)
		}
	}
	events, err := repo.Recent(ctx, session, 2)
	if err != nil {
		t.Fatal(err)
	}
	if len(events) != 2 || events[0].Command != "cd /" {
		t.Fatalf("Recent = %+v", events)
	}
}
