package jsonfile

import (
	"context"

	"github.com/Qaquka/aatm-qaquka/internal/docstore"
	"github.com/Qaquka/aatm-qaquka/internal/domain"
	"github.com/Qaquka/aatm-qaquka/internal/repository"
)

// HistoryRepository keeps history as a single JSON array, newest entry first.
type HistoryRepository struct {
	doc *docstore.File
}

func NewHistoryRepository(path string) repository.HistoryRepository {
	return &HistoryRepository{doc: docstore.New(path)}
}

func (r *HistoryRepository) Init(ctx context.Context) error {
	var entries []domain.HistoryEntry
	return r.doc.Modify(&entries, func(exists bool) error {
		if entries == nil {
			entries = []domain.HistoryEntry{}
		}
		return nil
	})
}

func (r *HistoryRepository) Append(ctx context.Context, entry *domain.HistoryEntry) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	var entries []domain.HistoryEntry
	return r.doc.Modify(&entries, func(bool) error {
		entries = append([]domain.HistoryEntry{*entry}, entries...)
		if len(entries) > repository.MaxHistoryEntries {
			entries = entries[:repository.MaxHistoryEntries]
		}
		return nil
	})
}

func (r *HistoryRepository) List(ctx context.Context, limit int) ([]domain.HistoryEntry, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	var entries []domain.HistoryEntry
	if _, err := r.doc.Load(&entries); err != nil {
		return nil, err
	}
	if limit > 0 && len(entries) > limit {
		entries = entries[:limit]
	}
	if entries == nil {
		entries = []domain.HistoryEntry{}
	}
	return entries, nil
}

var _ repository.HistoryRepository = (*HistoryRepository)(nil)
