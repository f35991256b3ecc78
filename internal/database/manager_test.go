package database

import (
	"context"
	"fmt"
	"path/filepath"
	"sync"
	"testing"
	"time"

	dbconfig "pollroom/pkg/database"
	"pollroom/pkg/types"
)

func setupTestManager(t *testing.T) *Manager {
	t.Helper()
	cfg := dbconfig.DefaultConfig()
	cfg.DatabasePath = filepath.Join(t.TempDir(), "archive.db")

	m, err := NewManager(cfg)
	if err != nil {
		t.Fatalf("NewManager failed: %v", err)
	}
	m.retryDelay = time.Millisecond
	t.Cleanup(func() { _ = m.Close() })
	return m
}

func boolPtr(b bool) *bool { return &b }

func sampleEntry(id, question string, completedAt time.Time) *types.HistoryEntry {
	return &types.HistoryEntry{
		ID:       id,
		Question: question,
		Options:  []string{"A", "B"},
		Results: []types.ResultEntry{
			{Option: "A", Count: 2, Percentage: 67, IsCorrect: boolPtr(true)},
			{Option: "B", Count: 1, Percentage: 33, IsCorrect: boolPtr(false)},
		},
		CompletedAt:       completedAt,
		TotalParticipants: 3,
	}
}

func TestManager_StoreAndList(t *testing.T) {
	m := setupTestManager(t)
	ctx := context.Background()
	now := time.Now().UTC().Truncate(time.Second)

	if err := m.StoreHistoryEntry(ctx, sampleEntry("h1", "Q1", now)); err != nil {
		t.Fatalf("StoreHistoryEntry failed: %v", err)
	}

	entries, err := m.ListHistory(ctx, 0)
	if err != nil {
		t.Fatalf("ListHistory failed: %v", err)
	}
	if len(entries) != 1 {
		t.Fatalf("Expected 1 entry, got %d", len(entries))
	}

	got := entries[0]
	if got.ID != "h1" || got.Question != "Q1" || got.TotalParticipants != 3 {
		t.Errorf("Unexpected entry: %+v", got)
	}
	if len(got.Options) != 2 || got.Options[1] != "B" {
		t.Errorf("Options did not round-trip: %v", got.Options)
	}
	if got.Results[0].Percentage != 67 || got.Results[0].IsCorrect == nil || !*got.Results[0].IsCorrect {
		t.Errorf("Results did not round-trip: %+v", got.Results)
	}
	if !got.CompletedAt.Equal(now) {
		t.Errorf("Expected completedAt %v, got %v", now, got.CompletedAt)
	}
}

func TestManager_ListIsMostRecentFirstWithLimit(t *testing.T) {
	m := setupTestManager(t)
	ctx := context.Background()
	base := time.Now().UTC().Truncate(time.Second)

	for i := 0; i < 3; i++ {
		entry := sampleEntry(fmt.Sprintf("h%d", i), fmt.Sprintf("Q%d", i), base.Add(time.Duration(i)*time.Minute))
		if err := m.StoreHistoryEntry(ctx, entry); err != nil {
			t.Fatalf("StoreHistoryEntry failed: %v", err)
		}
	}

	entries, err := m.ListHistory(ctx, 2)
	if err != nil {
		t.Fatalf("ListHistory failed: %v", err)
	}
	if len(entries) != 2 || entries[0].ID != "h2" || entries[1].ID != "h1" {
		t.Errorf("Unexpected order: %+v", entries)
	}
}

func TestManager_DuplicateIDFails(t *testing.T) {
	m := setupTestManager(t)
	ctx := context.Background()

	if err := m.StoreHistoryEntry(ctx, sampleEntry("dup", "Q", time.Now())); err != nil {
		t.Fatalf("First store failed: %v", err)
	}
	if err := m.StoreHistoryEntry(ctx, sampleEntry("dup", "Q", time.Now())); err == nil {
		t.Error("Expected duplicate id to fail after retry")
	}
}

func TestManager_RejectsEntryWithoutID(t *testing.T) {
	m := setupTestManager(t)
	if err := m.StoreHistoryEntry(context.Background(), sampleEntry("", "Q", time.Now())); err == nil {
		t.Error("Expected error for missing id")
	}
}

func TestManager_EmptyListIsNotNil(t *testing.T) {
	m := setupTestManager(t)
	entries, err := m.ListHistory(context.Background(), 10)
	if err != nil {
		t.Fatalf("ListHistory failed: %v", err)
	}
	if entries == nil || len(entries) != 0 {
		t.Errorf("Expected empty non-nil slice, got %#v", entries)
	}
}

func TestManager_HealthCheck(t *testing.T) {
	m := setupTestManager(t)
	if err := m.HealthCheck(context.Background()); err != nil {
		t.Errorf("HealthCheck failed: %v", err)
	}
}

func TestManager_CloseIsIdempotent(t *testing.T) {
	m := setupTestManager(t)

	if err := m.Close(); err != nil {
		t.Fatalf("Close failed: %v", err)
	}
	if err := m.Close(); err != nil {
		t.Errorf("Second close failed: %v", err)
	}
	if err := m.StoreHistoryEntry(context.Background(), sampleEntry("late", "Q", time.Now())); err != ErrManagerClosed {
		t.Errorf("Expected ErrManagerClosed, got %v", err)
	}
}

func TestManager_ReopenKeepsArchive(t *testing.T) {
	cfg := dbconfig.DefaultConfig()
	cfg.DatabasePath = filepath.Join(t.TempDir(), "archive.db")

	m, err := NewManager(cfg)
	if err != nil {
		t.Fatalf("NewManager failed: %v", err)
	}
	if err := m.StoreHistoryEntry(context.Background(), sampleEntry("h1", "Q", time.Now())); err != nil {
		t.Fatalf("Store failed: %v", err)
	}
	_ = m.Close()

	m, err = NewManager(cfg)
	if err != nil {
		t.Fatalf("Reopen failed: %v", err)
	}
	defer m.Close()

	entries, _ := m.ListHistory(context.Background(), 0)
	if len(entries) != 1 {
		t.Errorf("Expected archived entry after reopen, got %d", len(entries))
	}
}

// Technical Validation Tests (Race Detection)
func TestManager_ConcurrentWrites(t *testing.T) {
	m := setupTestManager(t)
	ctx := context.Background()

	const n = 20
	var wg sync.WaitGroup
	wg.Add(n)
	for i := 0; i < n; i++ {
		go func(i int) {
			defer wg.Done()
			if err := m.StoreHistoryEntry(ctx, sampleEntry(fmt.Sprintf("c%d", i), "Q", time.Now())); err != nil {
				t.Errorf("Concurrent store failed: %v", err)
			}
		}(i)
	}
	wg.Wait()

	entries, _ := m.ListHistory(ctx, 0)
	if len(entries) != n {
		t.Errorf("Expected %d entries, got %d", n, len(entries))
	}
}
