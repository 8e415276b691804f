package postgres

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/kirillkom/nhs-clinical-assistant/internal/core/domain"
)

const defaultTranscriptLimit = 50

// TranscriptRepository stores finished question/answer exchanges per chat
// session.
type TranscriptRepository struct {
	db *sql.DB
}

func NewTranscriptRepository(db *sql.DB) *TranscriptRepository {
	return &TranscriptRepository{db: db}
}

func (r *TranscriptRepository) EnsureSchema(ctx context.Context) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin schema tx: %w", err)
	}
	defer func() {
		_ = tx.Rollback()
	}()

	// Serialize bootstrap DDL across api/worker startups.
	if _, err := tx.ExecContext(ctx, `SELECT pg_advisory_xact_lock($1)`, int64(2025031401)); err != nil {
		return fmt.Errorf("acquire schema lock: %w", err)
	}

	const query = `
CREATE TABLE IF NOT EXISTS answer_transcripts (
	id TEXT PRIMARY KEY,
	session_id TEXT NOT NULL,
	query TEXT NOT NULL,
	answer TEXT NOT NULL,
	sources JSONB NOT NULL DEFAULT '[]'::jsonb,
	model TEXT NOT NULL,
	state TEXT NOT NULL,
	error_kind TEXT,
	created_at TIMESTAMPTZ NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_answer_transcripts_session ON answer_transcripts(session_id, created_at);
`
	if _, err := tx.ExecContext(ctx, query); err != nil {
		return fmt.Errorf("execute schema ddl: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit schema tx: %w", err)
	}
	return nil
}

// Record inserts entry. Replayed entries with a known id are ignored.
func (r *TranscriptRepository) Record(ctx context.Context, entry domain.TranscriptEntry) error {
	if strings.TrimSpace(entry.ID) == "" || strings.TrimSpace(entry.SessionID) == "" {
		return domain.NewError(domain.ErrValidation, "record transcript", "id and session id are required")
	}
	sources := entry.Sources
	if sources == nil {
		sources = []domain.Source{}
	}
	sourcesJSON, err := json.Marshal(sources)
	if err != nil {
		return fmt.Errorf("marshal transcript sources: %w", err)
	}
	createdAt := entry.CreatedAt
	if createdAt.IsZero() {
		createdAt = time.Now().UTC()
	}

	const query = `
INSERT INTO answer_transcripts (id, session_id, query, answer, sources, model, state, error_kind, created_at)
VALUES ($1, $2, $3, $4, $5::jsonb, $6, $7, $8, $9)
ON CONFLICT (id) DO NOTHING
`
	if _, err := r.db.ExecContext(ctx, query,
		entry.ID,
		entry.SessionID,
		entry.Query,
		entry.Answer,
		string(sourcesJSON),
		entry.Model,
		string(entry.State),
		nullableString(string(entry.ErrorKind)),
		createdAt,
	); err != nil {
		return fmt.Errorf("insert transcript: %w", err)
	}
	return nil
}

// ListBySession returns the latest limit entries of a session, oldest first.
func (r *TranscriptRepository) ListBySession(ctx context.Context, sessionID string, limit int) ([]domain.TranscriptEntry, error) {
	if limit <= 0 {
		limit = defaultTranscriptLimit
	}
	const query = `
SELECT id, session_id, query, answer, sources, model, state, COALESCE(error_kind, ''), created_at
FROM (
	SELECT id, session_id, query, answer, sources, model, state, error_kind, created_at
	FROM answer_transcripts
	WHERE session_id = $1
	ORDER BY created_at DESC
	LIMIT $2
) recent
ORDER BY created_at ASC
`
	rows, err := r.db.QueryContext(ctx, query, sessionID, limit)
	if err != nil {
		return nil, fmt.Errorf("query transcripts: %w", err)
	}
	defer rows.Close()

	out := make([]domain.TranscriptEntry, 0)
	for rows.Next() {
		var (
			entry       domain.TranscriptEntry
			sourcesJSON []byte
			state       string
			errorKind   string
		)
		if err := rows.Scan(
			&entry.ID,
			&entry.SessionID,
			&entry.Query,
			&entry.Answer,
			&sourcesJSON,
			&entry.Model,
			&state,
			&errorKind,
			&entry.CreatedAt,
		); err != nil {
			return nil, fmt.Errorf("scan transcript: %w", err)
		}
		if len(sourcesJSON) > 0 {
			if err := json.Unmarshal(sourcesJSON, &entry.Sources); err != nil {
				return nil, fmt.Errorf("unmarshal transcript sources: %w", err)
			}
		}
		entry.State = domain.AnswerState(state)
		entry.ErrorKind = domain.ErrorKind(errorKind)
		out = append(out, entry)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate transcripts: %w", err)
	}
	return out, nil
}

// DeleteSession removes a session's history. Deleting an unknown session is
// reported as not found.
func (r *TranscriptRepository) DeleteSession(ctx context.Context, sessionID string) error {
	res, err := r.db.ExecContext(ctx, `DELETE FROM answer_transcripts WHERE session_id = $1`, sessionID)
	if err != nil {
		return fmt.Errorf("delete transcripts: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("delete transcripts rows affected: %w", err)
	}
	if affected == 0 {
		return domain.WrapError(domain.ErrNotFound, "delete transcripts", fmt.Errorf("session %s", sessionID))
	}
	return nil
}

func nullableString(v string) any {
	if v == "" {
		return nil
	}
	return v
}
