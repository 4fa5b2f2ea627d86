package service

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/Qaquka/aatm-qaquka/internal/domain"
	"github.com/Qaquka/aatm-qaquka/internal/repository"
)

// TargetLacale is the only push target recorded under lacaleUpload. Every
// other target records into qbitPush.
const TargetLacale = "lacale"

// PackagingRecord describes the outcome of a packaging or NFO-only run.
type PackagingRecord struct {
	SourcePath     string
	OutputDir      string
	TorrentPath    string
	NFOPath        string
	MediaType      string
	InfoHash       string
	TorrentCreated bool
	NFOCreated     bool
	Err            error
}

// PushRecord describes one push attempt to a named target.
type PushRecord struct {
	Target      string
	SourcePath  string
	TorrentPath string
	NFOPath     string
	MediaType   string
	Err         error
}

// HistoryService appends and reads the operation log.
type HistoryService interface {
	RecordPackaging(ctx context.Context, rec PackagingRecord) (*domain.HistoryEntry, error)
	RecordPush(ctx context.Context, rec PushRecord) (*domain.HistoryEntry, error)
	Recent(ctx context.Context, limit int) ([]domain.HistoryEntry, error)
}

type historyService struct {
	entries repository.HistoryRepository
	now     func() time.Time
}

func NewHistoryService(entries repository.HistoryRepository) HistoryService {
	return &historyService{
		entries: entries,
		now:     time.Now,
	}
}

func (s *historyService) RecordPackaging(ctx context.Context, rec PackagingRecord) (*domain.HistoryEntry, error) {
	entry := s.newEntry()
	entry.SourcePath = rec.SourcePath
	entry.OutputDir = rec.OutputDir
	entry.TorrentPath = rec.TorrentPath
	entry.NFOPath = rec.NFOPath
	entry.MediaType = rec.MediaType
	entry.InfoHash = rec.InfoHash
	entry.TorrentCreated = rec.TorrentCreated
	entry.NFOCreated = rec.NFOCreated
	if rec.Err != nil {
		entry.LacaleUpload = domain.PushKO
		entry.QbitPush = domain.PushKO
		entry.Error = rec.Err.Error()
	}
	if err := s.entries.Append(ctx, entry); err != nil {
		return nil, err
	}
	return entry, nil
}

func (s *historyService) RecordPush(ctx context.Context, rec PushRecord) (*domain.HistoryEntry, error) {
	if strings.TrimSpace(rec.Target) == "" {
		return nil, errors.New("push target is required")
	}
	entry := s.newEntry()
	entry.Target = rec.Target
	entry.SourcePath = rec.SourcePath
	entry.TorrentPath = rec.TorrentPath
	entry.NFOPath = rec.NFOPath
	entry.MediaType = rec.MediaType
	entry.TorrentCreated = rec.TorrentPath != ""
	entry.NFOCreated = rec.NFOPath != ""

	outcome := domain.PushOK
	if rec.Err != nil {
		outcome = domain.PushKO
		entry.Error = rec.Err.Error()
	}
	if rec.Target == TargetLacale {
		entry.LacaleUpload = outcome
	} else {
		entry.QbitPush = outcome
	}

	if err := s.entries.Append(ctx, entry); err != nil {
		return nil, err
	}
	return entry, nil
}

func (s *historyService) Recent(ctx context.Context, limit int) ([]domain.HistoryEntry, error) {
	if limit <= 0 || limit > repository.MaxHistoryEntries {
		limit = repository.MaxHistoryEntries
	}
	return s.entries.List(ctx, limit)
}

func (s *historyService) newEntry() *domain.HistoryEntry {
	return &domain.HistoryEntry{
		ID:           uuid.NewString(),
		Timestamp:    s.now().UTC(),
		LacaleUpload: domain.PushPending,
		QbitPush:     domain.PushPending,
	}
}
