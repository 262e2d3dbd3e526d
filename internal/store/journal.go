// Package store provides the SQLite ingestion journal. The journal records
// the lifecycle of every ingestion run — which documents were started, which
// chunks were written, skipped, or rejected, and whether the run finished —
// so an operator can detect and re-run interrupted ingestions after a crash.
//
// The vector index itself is the source of truth for retrieval; the journal
// is bookkeeping on the side and the pipeline keeps working if it is disabled.
package store

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	_ "modernc.org/sqlite"
)

// Document statuses.
const (
	// StatusPending marks a document whose ingestion has started.
	StatusPending = "pending"
	// StatusComplete marks a document whose ingestion finished normally.
	StatusComplete = "complete"
	// StatusIncomplete marks a document whose ingestion was aborted partway.
	StatusIncomplete = "incomplete"
)

// Chunk outcome statuses.
const (
	// ChunkWritten marks a chunk that was embedded and stored.
	ChunkWritten = "written"
	// ChunkDuplicate marks a chunk skipped as a near-duplicate.
	ChunkDuplicate = "duplicate"
	// ChunkRejected marks a chunk rejected by the quality gate.
	ChunkRejected = "rejected"
	// ChunkFailed marks a chunk that hit an error during embedding or storage.
	ChunkFailed = "failed"
)

// Journal is the SQLite-backed ingestion journal.
// SQLite in WAL mode with a single connection: the journal sees only the
// ingestion path's sequential writes, so one connection avoids SQLITE_BUSY
// without any retry machinery.
type Journal struct {
	db *sql.DB
}

// DocumentRecord is one journaled document.
type DocumentRecord struct {
	ID         string
	Collection string
	ChunkCount int
	Status     string
	StartedAt  time.Time
}

// Open opens (and migrates) the journal database at path.
func Open(path string) (*Journal, error) {
	dsn := fmt.Sprintf("file:%s?_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)&_pragma=foreign_keys(1)", path)
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("journal: open %s: %w", path, err)
	}
	db.SetMaxOpenConns(1)

	j := &Journal{db: db}
	if err := j.migrate(); err != nil {
		db.Close()
		return nil, err
	}
	return j, nil
}

func (j *Journal) migrate() error {
	const schema = `
CREATE TABLE IF NOT EXISTS documents (
	id          TEXT PRIMARY KEY,
	collection  TEXT NOT NULL,
	chunk_count INTEGER NOT NULL DEFAULT 0,
	status      TEXT NOT NULL,
	started_at  TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP
);
CREATE TABLE IF NOT EXISTS chunks (
	document_id TEXT NOT NULL REFERENCES documents(id) ON DELETE CASCADE,
	chunk_id    TEXT NOT NULL,
	status      TEXT NOT NULL,
	recorded_at TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP,
	PRIMARY KEY (document_id, chunk_id)
);
CREATE INDEX IF NOT EXISTS idx_documents_status ON documents(status);
`
	if _, err := j.db.Exec(schema); err != nil {
		return fmt.Errorf("journal: migrate schema: %w", err)
	}
	return nil
}

// BeginDocument records that ingestion of a document has started. Re-running
// a document resets its journal entry.
func (j *Journal) BeginDocument(ctx context.Context, documentID, collection string, chunkCount int) error {
	tx, err := j.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("journal: begin tx: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, `DELETE FROM chunks WHERE document_id = ?`, documentID); err != nil {
		return fmt.Errorf("journal: reset chunks for %s: %w", documentID, err)
	}
	if _, err := tx.ExecContext(ctx, `
		INSERT INTO documents (id, collection, chunk_count, status, started_at)
		VALUES (?, ?, ?, ?, CURRENT_TIMESTAMP)
		ON CONFLICT(id) DO UPDATE SET
			collection = excluded.collection,
			chunk_count = excluded.chunk_count,
			status = excluded.status,
			started_at = CURRENT_TIMESTAMP
	`, documentID, collection, chunkCount, StatusPending); err != nil {
		return fmt.Errorf("journal: begin document %s: %w", documentID, err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("journal: commit begin document: %w", err)
	}
	return nil
}

// MarkChunk records the outcome of one chunk of a document.
func (j *Journal) MarkChunk(ctx context.Context, documentID, chunkID, status string) error {
	_, err := j.db.ExecContext(ctx, `
		INSERT INTO chunks (document_id, chunk_id, status)
		VALUES (?, ?, ?)
		ON CONFLICT(document_id, chunk_id) DO UPDATE SET
			status = excluded.status,
			recorded_at = CURRENT_TIMESTAMP
	`, documentID, chunkID, status)
	if err != nil {
		return fmt.Errorf("journal: mark chunk %s/%s: %w", documentID, chunkID, err)
	}
	return nil
}

// CompleteDocument marks a document's ingestion as finished.
func (j *Journal) CompleteDocument(ctx context.Context, documentID string) error {
	return j.setStatus(ctx, documentID, StatusComplete)
}

// AbortDocument marks a document's ingestion as interrupted partway.
func (j *Journal) AbortDocument(ctx context.Context, documentID string) error {
	return j.setStatus(ctx, documentID, StatusIncomplete)
}

func (j *Journal) setStatus(ctx context.Context, documentID, status string) error {
	res, err := j.db.ExecContext(ctx, `UPDATE documents SET status = ? WHERE id = ?`, status, documentID)
	if err != nil {
		return fmt.Errorf("journal: set status %s on %s: %w", status, documentID, err)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return fmt.Errorf("journal: unknown document %s", documentID)
	}
	return nil
}

// Incomplete returns every journaled document that did not finish: both
// documents still pending (crashed mid-run) and those explicitly aborted.
func (j *Journal) Incomplete(ctx context.Context) ([]DocumentRecord, error) {
	rows, err := j.db.QueryContext(ctx, `
		SELECT id, collection, chunk_count, status, started_at
		FROM documents
		WHERE status != ?
		ORDER BY started_at
	`, StatusComplete)
	if err != nil {
		return nil, fmt.Errorf("journal: query incomplete: %w", err)
	}
	defer rows.Close()

	var out []DocumentRecord
	for rows.Next() {
		var rec DocumentRecord
		if err := rows.Scan(&rec.ID, &rec.Collection, &rec.ChunkCount, &rec.Status, &rec.StartedAt); err != nil {
			return nil, fmt.Errorf("journal: scan document row: %w", err)
		}
		out = append(out, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("journal: iterate documents: %w", err)
	}
	return out, nil
}

// ChunkOutcomes returns the per-chunk outcome counts of one document, keyed
// by chunk status.
func (j *Journal) ChunkOutcomes(ctx context.Context, documentID string) (map[string]int, error) {
	rows, err := j.db.QueryContext(ctx, `
		SELECT status, COUNT(*) FROM chunks WHERE document_id = ? GROUP BY status
	`, documentID)
	if err != nil {
		return nil, fmt.Errorf("journal: query chunk outcomes for %s: %w", documentID, err)
	}
	defer rows.Close()

	out := make(map[string]int)
	for rows.Next() {
		var status string
		var n int
		if err := rows.Scan(&status, &n); err != nil {
			return nil, fmt.Errorf("journal: scan outcome row: %w", err)
		}
		out[status] = n
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("journal: iterate outcomes: %w", err)
	}
	return out, nil
}

// Close closes the underlying database.
func (j *Journal) Close() error {
	if err := j.db.Close(); err != nil {
		return fmt.Errorf("journal: close: %w", err)
	}
	return nil
}
