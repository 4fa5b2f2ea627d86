package repository

import (
	"context"

	"github.com/Qaquka/aatm-qaquka/internal/domain"
)

// MaxHistoryEntries bounds every history backend.
const MaxHistoryEntries = 500

// HistoryRepository persists the bounded, newest-first operation log.
type HistoryRepository interface {
	Init(ctx context.Context) error
	Append(ctx context.Context, entry *domain.HistoryEntry) error
	List(ctx context.Context, limit int) ([]domain.HistoryEntry, error)
}
