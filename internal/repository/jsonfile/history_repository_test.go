package jsonfile

import (
	"context"
	"fmt"
	"path/filepath"
	"testing"
	"time"

	"github.com/Qaquka/aatm-qaquka/internal/domain"
	"github.com/Qaquka/aatm-qaquka/internal/repository"
)

func TestHistoryRepositoryNewestFirstAndBounded(t *testing.T) {
	ctx := context.Background()
	repo := NewHistoryRepository(filepath.Join(t.TempDir(), "history.json"))
	if err := repo.Init(ctx); err != nil {
		t.Fatalf("init: %v", err)
	}

	entries, err := repo.List(ctx, 0)
	if err != nil {
		t.Fatalf("list empty: %v", err)
	}
	if len(entries) != 0 {
		t.Fatalf("expected empty history, got %d", len(entries))
	}

	base := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	total := repository.MaxHistoryEntries + 5
	for i := 0; i < total; i++ {
		entry := &domain.HistoryEntry{
			ID:           fmt.Sprintf("entry-%d", i),
			Timestamp:    base.Add(time.Duration(i) * time.Second),
			LacaleUpload: domain.PushPending,
			QbitPush:     domain.PushPending,
		}
		if err := repo.Append(ctx, entry); err != nil {
			t.Fatalf("append %d: %v", i, err)
		}
	}

	entries, err = repo.List(ctx, 0)
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(entries) != repository.MaxHistoryEntries {
		t.Fatalf("expected %d entries, got %d", repository.MaxHistoryEntries, len(entries))
	}
	if entries[0].ID != fmt.Sprintf("entry-%d", total-1) {
		t.Fatalf("expected newest first, got %s", entries[0].ID)
	}
	if last := entries[len(entries)-1].ID; last != "entry-5" {
		t.Fatalf("expected oldest retained entry-5, got %s", last)
	}

	limited, err := repo.List(ctx, 3)
	if err != nil {
		t.Fatalf("list limited: %v", err)
	}
	if len(limited) != 3 || limited[0].ID != entries[0].ID {
		t.Fatalf("unexpected limited list: %+v", limited)
	}
}

func TestHistoryRepositoryInitKeepsExistingEntries(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "history.json")
	repo := NewHistoryRepository(path)
	if err := repo.Append(ctx, &domain.HistoryEntry{ID: "kept"}); err != nil {
		t.Fatalf("append: %v", err)
	}
	if err := NewHistoryRepository(path).Init(ctx); err != nil {
		t.Fatalf("init: %v", err)
	}
	entries, err := repo.List(ctx, 10)
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(entries) != 1 || entries[0].ID != "kept" {
		t.Fatalf("expected existing entry to survive init, got %+v", entries)
	}
}
