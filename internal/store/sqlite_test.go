package store

import (
	"context"
	"path/filepath"
	"testing"
	"time"
)

func newTestStore(t *testing.T) Repository {
	t.Helper()
	repo, err := NewSQLite(filepath.Join(t.TempDir(), "nested", "geochat.db"))
	if err != nil {
		t.Fatalf("NewSQLite failed: %v", err)
	}
	t.Cleanup(func() { _ = repo.Close() })
	return repo
}

func TestCredentialRoundTrip(t *testing.T) {
	repo := newTestStore(t)
	ctx := context.Background()

	got, err := repo.GetCredential(ctx, "accessToken")
	if err != nil {
		t.Fatalf("GetCredential failed: %v", err)
	}
	if got != "" {
		t.Errorf("Expected empty credential, got %q", got)
	}

	if err := repo.PutCredential(ctx, "accessToken", "first"); err != nil {
		t.Fatalf("PutCredential failed: %v", err)
	}
	if err := repo.PutCredential(ctx, "accessToken", "second"); err != nil {
		t.Fatalf("PutCredential overwrite failed: %v", err)
	}
	got, _ = repo.GetCredential(ctx, "accessToken")
	if got != "second" {
		t.Errorf("Expected second, got %q", got)
	}

	if err := repo.DeleteCredential(ctx, "accessToken"); err != nil {
		t.Fatalf("DeleteCredential failed: %v", err)
	}
	got, _ = repo.GetCredential(ctx, "accessToken")
	if got != "" {
		t.Errorf("Expected deleted credential, got %q", got)
	}
}

func TestRecentSessionsOrder(t *testing.T) {
	repo := newTestStore(t)
	ctx := context.Background()
	base := time.Now()

	for i, id := range []string{"a", "b", "c"} {
		if err := repo.RecordSession(ctx, id, base.Add(time.Duration(i)*time.Second)); err != nil {
			t.Fatalf("RecordSession failed: %v", err)
		}
	}
	// Reopening moves a session to the front.
	if err := repo.RecordSession(ctx, "a", base.Add(10*time.Second)); err != nil {
		t.Fatalf("RecordSession reopen failed: %v", err)
	}

	recent, err := repo.RecentSessions(ctx, 2)
	if err != nil {
		t.Fatalf("RecentSessions failed: %v", err)
	}
	if len(recent) != 2 {
		t.Fatalf("Expected 2 sessions, got %d", len(recent))
	}
	if recent[0].ChatUUID != "a" || recent[1].ChatUUID != "c" {
		t.Errorf("Unexpected order: %s, %s", recent[0].ChatUUID, recent[1].ChatUUID)
	}
	if !recent[0].CreatedAt.Before(recent[0].LastOpenedAt) {
		t.Errorf("Expected created_at to be kept on reopen")
	}
}

func TestPruneHistory(t *testing.T) {
	repo := newTestStore(t)
	ctx := context.Background()

	if err := repo.RecordSession(ctx, "old", time.Now().Add(-48*time.Hour)); err != nil {
		t.Fatalf("RecordSession failed: %v", err)
	}
	if err := repo.RecordSession(ctx, "fresh", time.Now()); err != nil {
		t.Fatalf("RecordSession failed: %v", err)
	}

	removed, err := repo.PruneHistory(ctx, 24*time.Hour)
	if err != nil {
		t.Fatalf("PruneHistory failed: %v", err)
	}
	if removed != 1 {
		t.Errorf("Expected 1 removed, got %d", removed)
	}

	if err := repo.RecordSession(ctx, "stale", time.Now().Add(-2*time.Hour)); err != nil {
		t.Fatalf("RecordSession failed: %v", err)
	}
	var called int64
	pruneHistory(ctx, repo, time.Hour, func(n int64) { called = n })
	if called != 1 {
		t.Errorf("Expected callback with 1 removal, got %d", called)
	}
}
