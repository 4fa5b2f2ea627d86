package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/Qaquka/aatm-qaquka/internal/domain"
	"github.com/Qaquka/aatm-qaquka/internal/repository"
)

const createHistoryTable = `
CREATE TABLE IF NOT EXISTS history (
	seq INTEGER PRIMARY KEY AUTOINCREMENT,
	id TEXT NOT NULL UNIQUE,
	ts DATETIME NOT NULL,
	source_path TEXT NOT NULL DEFAULT '',
	output_dir TEXT NOT NULL DEFAULT '',
	torrent_path TEXT NOT NULL DEFAULT '',
	nfo_path TEXT NOT NULL DEFAULT '',
	media_type TEXT NOT NULL DEFAULT '',
	torrent_created INTEGER NOT NULL DEFAULT 0,
	nfo_created INTEGER NOT NULL DEFAULT 0,
	lacale_upload TEXT NOT NULL DEFAULT 'pending',
	qbit_push TEXT NOT NULL DEFAULT 'pending',
	error TEXT NOT NULL DEFAULT ''
);
`

type HistoryRepository struct {
	db *sql.DB
}

func NewHistoryRepository(db *sql.DB) repository.HistoryRepository {
	return &HistoryRepository{db: db}
}

func (r *HistoryRepository) Init(ctx context.Context) error {
	if _, err := r.db.ExecContext(ctx, createHistoryTable); err != nil {
		return fmt.Errorf("create history table: %w", err)
	}
	return r.ensureHistoryColumns(ctx)
}

// ensureHistoryColumns upgrades databases created before info hashes and
// push targets were recorded.
func (r *HistoryRepository) ensureHistoryColumns(ctx context.Context) error {
	rows, err := r.db.QueryContext(ctx, `PRAGMA table_info(history)`)
	if err != nil {
		return fmt.Errorf("describe history table: %w", err)
	}
	defer rows.Close()

	columns := map[string]struct{}{}
	for rows.Next() {
		var (
			cid       int
			name      string
			ctype     string
			notnull   int
			dfltValue any
			pk        int
		)
		if err := rows.Scan(&cid, &name, &ctype, &notnull, &dfltValue, &pk); err != nil {
			return fmt.Errorf("scan pragma table info: %w", err)
		}
		columns[name] = struct{}{}
	}
	if err := rows.Err(); err != nil {
		return fmt.Errorf("iterate pragma table info: %w", err)
	}

	addColumn := func(name, statement string) error {
		if _, exists := columns[name]; exists {
			return nil
		}
		if _, err := r.db.ExecContext(ctx, statement); err != nil {
			return fmt.Errorf("add column %s: %w", name, err)
		}
		return nil
	}

	if err := addColumn("info_hash", `ALTER TABLE history ADD COLUMN info_hash TEXT NOT NULL DEFAULT ''`); err != nil {
		return err
	}
	if err := addColumn("target", `ALTER TABLE history ADD COLUMN target TEXT NOT NULL DEFAULT ''`); err != nil {
		return err
	}
	return nil
}

func (r *HistoryRepository) Append(ctx context.Context, entry *domain.HistoryEntry) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback() // safe no-op on commit

	if _, err := tx.ExecContext(ctx, `
INSERT INTO history (id, ts, source_path, output_dir, torrent_path, nfo_path, media_type, info_hash, target, torrent_created, nfo_created, lacale_upload, qbit_push, error)
VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		entry.ID,
		entry.Timestamp.UTC(),
		entry.SourcePath,
		entry.OutputDir,
		entry.TorrentPath,
		entry.NFOPath,
		entry.MediaType,
		entry.InfoHash,
		entry.Target,
		entry.TorrentCreated,
		entry.NFOCreated,
		string(entry.LacaleUpload),
		string(entry.QbitPush),
		entry.Error,
	); err != nil {
		return fmt.Errorf("insert history entry: %w", err)
	}

	if _, err := tx.ExecContext(ctx, `
DELETE FROM history
WHERE seq NOT IN (SELECT seq FROM history ORDER BY seq DESC LIMIT ?)`, repository.MaxHistoryEntries); err != nil {
		return fmt.Errorf("trim history: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit tx: %w", err)
	}
	return nil
}

func (r *HistoryRepository) List(ctx context.Context, limit int) ([]domain.HistoryEntry, error) {
	if limit <= 0 || limit > repository.MaxHistoryEntries {
		limit = repository.MaxHistoryEntries
	}
	rows, err := r.db.QueryContext(ctx, `
SELECT id, ts, source_path, output_dir, torrent_path, nfo_path, media_type, info_hash, target, torrent_created, nfo_created, lacale_upload, qbit_push, error
FROM history
ORDER BY seq DESC
LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("query history: %w", err)
	}
	defer rows.Close()

	entries := []domain.HistoryEntry{}
	for rows.Next() {
		var (
			entry        domain.HistoryEntry
			ts           time.Time
			lacaleUpload string
			qbitPush     string
		)
		if err := rows.Scan(
			&entry.ID,
			&ts,
			&entry.SourcePath,
			&entry.OutputDir,
			&entry.TorrentPath,
			&entry.NFOPath,
			&entry.MediaType,
			&entry.InfoHash,
			&entry.Target,
			&entry.TorrentCreated,
			&entry.NFOCreated,
			&lacaleUpload,
			&qbitPush,
			&entry.Error,
		); err != nil {
			return nil, fmt.Errorf("scan history entry: %w", err)
		}
		entry.Timestamp = ts.UTC()
		entry.LacaleUpload = domain.PushOutcome(lacaleUpload)
		entry.QbitPush = domain.PushOutcome(qbitPush)
		entries = append(entries, entry)
	}
	return entries, rows.Err()
}

var _ repository.HistoryRepository = (*HistoryRepository)(nil)
