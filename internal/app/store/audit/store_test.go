package audit_test

import (
	"testing"
	"time"

	"github.com/dalemusser/formguard/internal/app/store/audit"
	"github.com/dalemusser/formguard/internal/testutil"
)

func TestStore_Log_AutoGeneratesIDAndTimestamp(t *testing.T) {
	db := testutil.SetupTestDB(t)
	store := audit.New(db)
	ctx, cancel := testutil.TestContext()
	defer cancel()

	before := time.Now().Add(-time.Second)
	err := store.Log(ctx, audit.Event{
		Category:  audit.CategorySecurity,
		EventType: audit.EventTurnstilePassed,
		IP:        "192.168.1.1",
		UserAgent: "TestBrowser/1.0",
		Path:      "/contact",
		Success:   true,
	})
	if err != nil {
		t.Fatalf("Log failed: %v", err)
	}

	events, err := store.GetRecent(ctx, 10)
	if err != nil {
		t.Fatalf("GetRecent failed: %v", err)
	}
	if len(events) != 1 {
		t.Fatalf("expected 1 event, got %d", len(events))
	}
	if events[0].ID.IsZero() {
		t.Error("expected ID to be auto-generated")
	}
	if events[0].Timestamp.Before(before) {
		t.Errorf("expected Timestamp to be set, got %v", events[0].Timestamp)
	}
	if events[0].Path != "/contact" {
		t.Errorf("Path: got %q, want %q", events[0].Path, "/contact")
	}
}

func TestStore_Query_Filters(t *testing.T) {
	db := testutil.SetupTestDB(t)
	store := audit.New(db)
	ctx, cancel := testutil.TestContext()
	defer cancel()

	if err := store.EnsureIndexes(ctx); err != nil {
		t.Fatalf("EnsureIndexes failed: %v", err)
	}

	events := []audit.Event{
		{Category: audit.CategorySecurity, EventType: audit.EventTurnstilePassed, IP: "1.1.1.1", Success: true},
		{Category: audit.CategorySecurity, EventType: audit.EventTurnstileRejected, IP: "1.1.1.1", Success: false},
		{Category: audit.CategorySecurity, EventType: audit.EventTurnstileMissingToken, IP: "2.2.2.2", Success: false},
		{Category: audit.CategoryAdmin, EventType: audit.EventSettingsUpdated, IP: "3.3.3.3", Success: true},
	}
	for _, e := range events {
		if err := store.Log(ctx, e); err != nil {
			t.Fatalf("Log failed: %v", err)
		}
	}

	byIP, err := store.Query(ctx, audit.QueryFilter{IP: "1.1.1.1"})
	if err != nil {
		t.Fatalf("Query failed: %v", err)
	}
	if len(byIP) != 2 {
		t.Errorf("by IP: got %d events, want 2", len(byIP))
	}

	failed, err := store.GetFailedVerifications(ctx, time.Now().Add(-time.Hour), 10)
	if err != nil {
		t.Fatalf("GetFailedVerifications failed: %v", err)
	}
	if len(failed) != 2 {
		t.Errorf("failed verifications: got %d, want 2", len(failed))
	}
	for _, e := range failed {
		if e.Success {
			t.Errorf("unexpected successful event %q in failures", e.EventType)
		}
	}

	count, err := store.CountByFilter(ctx, audit.QueryFilter{Category: audit.CategoryAdmin})
	if err != nil {
		t.Fatalf("CountByFilter failed: %v", err)
	}
	if count != 1 {
		t.Errorf("admin count: got %d, want 1", count)
	}
}

func TestStore_Query_DefaultLimitAndOrder(t *testing.T) {
	db := testutil.SetupTestDB(t)
	store := audit.New(db)
	ctx, cancel := testutil.TestContext()
	defer cancel()

	base := time.Now().Add(-time.Minute)
	for i := 0; i < 3; i++ {
		err := store.Log(ctx, audit.Event{
			Timestamp: base.Add(time.Duration(i) * time.Second),
			Category:  audit.CategorySecurity,
			EventType: audit.EventTurnstilePassed,
			Success:   true,
		})
		if err != nil {
			t.Fatalf("Log failed: %v", err)
		}
	}

	events, err := store.Query(ctx, audit.QueryFilter{})
	if err != nil {
		t.Fatalf("Query failed: %v", err)
	}
	if len(events) != 3 {
		t.Fatalf("expected 3 events, got %d", len(events))
	}
	if !events[0].Timestamp.After(events[2].Timestamp) {
		t.Error("expected newest event first")
	}
}

func TestStore_DeleteBefore(t *testing.T) {
	db := testutil.SetupTestDB(t)
	store := audit.New(db)
	ctx, cancel := testutil.TestContext()
	defer cancel()

	now := time.Now()
	for _, ts := range []time.Time{now.Add(-48 * time.Hour), now.Add(-30 * time.Hour), now} {
		if err := store.Log(ctx, audit.Event{Category: audit.CategorySecurity, EventType: audit.EventTurnstilePassed, Timestamp: ts}); err != nil {
			t.Fatalf("Log failed: %v", err)
		}
	}

	deleted, err := store.DeleteBefore(ctx, now.Add(-24*time.Hour))
	if err != nil {
		t.Fatalf("DeleteBefore failed: %v", err)
	}
	if deleted != 2 {
		t.Errorf("deleted: got %d, want 2", deleted)
	}
	left, err := store.CountByFilter(ctx, audit.QueryFilter{})
	if err != nil {
		t.Fatalf("CountByFilter failed: %v", err)
	}
	if left != 1 {
		t.Errorf("remaining: got %d, want 1", left)
	}
}
