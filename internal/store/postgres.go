package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"coedit/api/internal/collab"
)

type PostgresStore struct {
	db *sql.DB
}

func NewPostgresStore(db *sql.DB) *PostgresStore {
	return &PostgresStore{db: db}
}

func (s *PostgresStore) DB() *sql.DB {
	return s.db
}

func (s *PostgresStore) InsertOperation(ctx context.Context, op collab.TextOperation) error {
	trail := op.TransformedAgainst
	if trail == nil {
		trail = []string{}
	}
	encodedTrail, err := json.Marshal(trail)
	if err != nil {
		return fmt.Errorf("marshal transform trail: %w", err)
	}
	_, err = s.db.ExecContext(ctx, `
		INSERT INTO operations (id, session_id, file_id, author_id, kind, line, col, text, removed, transformed_against, superseded, superseded_by, observed_at, committed_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10::jsonb, $11, NULLIF($12, ''), $13, $14)
		ON CONFLICT (id) DO NOTHING
	`, op.ID, op.SessionID, op.FileID, op.AuthorID, string(op.Kind), op.Position.Line, op.Position.Column,
		op.Text, op.Removed, string(encodedTrail), op.Superseded, op.SupersededBy, op.ObservedAt, op.CommittedAt)
	if err != nil {
		return fmt.Errorf("insert operation: %w", err)
	}
	return nil
}

// MarkSuperseded flags the losing operations of a settled conflict. The rows
// themselves are never deleted.
func (s *PostgresStore) MarkSuperseded(ctx context.Context, conflictID string, operationIDs []string) error {
	if len(operationIDs) == 0 {
		return nil
	}
	_, err := s.db.ExecContext(ctx, `
		UPDATE operations SET superseded=TRUE, superseded_by=$1
		WHERE id = ANY($2)
	`, conflictID, operationIDs)
	if err != nil {
		return fmt.Errorf("mark superseded: %w", err)
	}
	return nil
}

func (s *PostgresStore) ListOperations(ctx context.Context, sessionID, fileID string, limit int) ([]collab.TextOperation, error) {
	if limit <= 0 {
		limit = 200
	}
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, session_id, file_id, author_id, kind, line, col, text, removed, transformed_against, superseded, COALESCE(superseded_by, ''), observed_at, committed_at
		FROM operations
		WHERE session_id=$1 AND ($2='' OR file_id=$2)
		ORDER BY id
		LIMIT $3
	`, sessionID, fileID, limit)
	if err != nil {
		return nil, fmt.Errorf("list operations: %w", err)
	}
	defer rows.Close()

	items := make([]collab.TextOperation, 0)
	for rows.Next() {
		var (
			op       collab.TextOperation
			kind     string
			trailRaw []byte
		)
		if err := rows.Scan(
			&op.ID,
			&op.SessionID,
			&op.FileID,
			&op.AuthorID,
			&kind,
			&op.Position.Line,
			&op.Position.Column,
			&op.Text,
			&op.Removed,
			&trailRaw,
			&op.Superseded,
			&op.SupersededBy,
			&op.ObservedAt,
			&op.CommittedAt,
		); err != nil {
			return nil, fmt.Errorf("scan operation: %w", err)
		}
		op.Kind = collab.OperationKind(kind)
		_ = json.Unmarshal(trailRaw, &op.TransformedAgainst)
		items = append(items, op)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate operations: %w", err)
	}
	return items, nil
}

// UpsertComment stores the latest state of a comment thread. Replies,
// reactions and mentions travel in the jsonb payload; the body is a plain
// column for FTS.
func (s *PostgresStore) UpsertComment(ctx context.Context, c collab.Comment) error {
	payload, err := json.Marshal(c)
	if err != nil {
		return fmt.Errorf("marshal comment: %w", err)
	}
	_, err = s.db.ExecContext(ctx, `
		INSERT INTO comments (id, session_id, file_id, author_id, body, kind, status, priority, anchor_line, anchor_col, payload, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11::jsonb, $12, $13)
		ON CONFLICT (id) DO UPDATE SET status=EXCLUDED.status, payload=EXCLUDED.payload, updated_at=EXCLUDED.updated_at
	`, c.ID, c.SessionID, c.FileID, c.AuthorID, c.Body, string(c.Kind), string(c.Status), c.Priority,
		c.Anchor.Line, c.Anchor.Column, string(payload), c.CreatedAt, c.UpdatedAt)
	if err != nil {
		return fmt.Errorf("upsert comment: %w", err)
	}
	return nil
}

func (s *PostgresStore) GetComment(ctx context.Context, commentID string) (collab.Comment, error) {
	var payload []byte
	err := s.db.QueryRowContext(ctx, `SELECT payload FROM comments WHERE id=$1`, commentID).Scan(&payload)
	if errors.Is(err, sql.ErrNoRows) {
		return collab.Comment{}, fmt.Errorf("comment %s not found: %w", commentID, sql.ErrNoRows)
	}
	if err != nil {
		return collab.Comment{}, fmt.Errorf("get comment: %w", err)
	}
	var c collab.Comment
	if err := json.Unmarshal(payload, &c); err != nil {
		return collab.Comment{}, fmt.Errorf("unmarshal comment: %w", err)
	}
	return c, nil
}

func (s *PostgresStore) ListComments(ctx context.Context, sessionID string, limit int) ([]collab.Comment, error) {
	if limit <= 0 {
		limit = 100
	}
	rows, err := s.db.QueryContext(ctx, `
		SELECT payload FROM comments
		WHERE session_id=$1
		ORDER BY created_at
		LIMIT $2
	`, sessionID, limit)
	if err != nil {
		return nil, fmt.Errorf("list comments: %w", err)
	}
	defer rows.Close()

	items := make([]collab.Comment, 0)
	for rows.Next() {
		var payload []byte
		if err := rows.Scan(&payload); err != nil {
			return nil, fmt.Errorf("scan comment: %w", err)
		}
		var c collab.Comment
		if err := json.Unmarshal(payload, &c); err != nil {
			return nil, fmt.Errorf("unmarshal comment: %w", err)
		}
		items = append(items, c)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate comments: %w", err)
	}
	return items, nil
}

// UpsertConflict stores the latest state of a conflict record. The detector
// writes it pending or auto-resolved; the resolver rewrites it terminal.
func (s *PostgresStore) UpsertConflict(ctx context.Context, c collab.ConflictResolution) error {
	payload, err := json.Marshal(c)
	if err != nil {
		return fmt.Errorf("marshal conflict: %w", err)
	}
	_, err = s.db.ExecContext(ctx, `
		INSERT INTO conflicts (id, session_id, file_id, kind, strategy, status, resolved_by, payload, detected_at, resolved_at)
		VALUES ($1, $2, $3, $4, $5, $6, NULLIF($7, ''), $8::jsonb, $9, NULLIF($10::timestamptz, '0001-01-01 00:00:00+00'::timestamptz))
		ON CONFLICT (id) DO UPDATE SET strategy=EXCLUDED.strategy, status=EXCLUDED.status, resolved_by=EXCLUDED.resolved_by, payload=EXCLUDED.payload, resolved_at=EXCLUDED.resolved_at
	`, c.ID, c.SessionID, c.FileID, string(c.Kind), string(c.Strategy), string(c.Status), c.ResolvedBy,
		string(payload), c.DetectedAt, c.ResolvedAt)
	if err != nil {
		return fmt.Errorf("upsert conflict: %w", err)
	}
	return nil
}

func (s *PostgresStore) ListConflicts(ctx context.Context, sessionID string, limit int) ([]collab.ConflictResolution, error) {
	if limit <= 0 {
		limit = 100
	}
	rows, err := s.db.QueryContext(ctx, `
		SELECT payload FROM conflicts
		WHERE session_id=$1
		ORDER BY detected_at
		LIMIT $2
	`, sessionID, limit)
	if err != nil {
		return nil, fmt.Errorf("list conflicts: %w", err)
	}
	defer rows.Close()

	items := make([]collab.ConflictResolution, 0)
	for rows.Next() {
		var payload []byte
		if err := rows.Scan(&payload); err != nil {
			return nil, fmt.Errorf("scan conflict: %w", err)
		}
		c, err := decodeConflict(payload)
		if err != nil {
			return nil, err
		}
		items = append(items, c)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate conflicts: %w", err)
	}
	return items, nil
}

// decodeConflict rebuilds the tagged resolution variant that MarshalJSON
// inlined.
func decodeConflict(payload []byte) (collab.ConflictResolution, error) {
	var c collab.ConflictResolution
	if err := json.Unmarshal(payload, &c); err != nil {
		return collab.ConflictResolution{}, fmt.Errorf("unmarshal conflict: %w", err)
	}
	var envelope struct {
		Resolution json.RawMessage `json:"resolution"`
	}
	if err := json.Unmarshal(payload, &envelope); err != nil {
		return collab.ConflictResolution{}, fmt.Errorf("unmarshal conflict resolution: %w", err)
	}
	if len(envelope.Resolution) > 0 {
		res, err := collab.ParseResolution(envelope.Resolution)
		if err != nil {
			return collab.ConflictResolution{}, err
		}
		c.Resolution = res
	}
	return c, nil
}

// InsertTranscript archives an ended session. The row is written once and
// never updated.
func (s *PostgresStore) InsertTranscript(ctx context.Context, tr collab.Transcript) error {
	payload, err := json.Marshal(tr)
	if err != nil {
		return fmt.Errorf("marshal transcript: %w", err)
	}
	a := tr.Session.Metadata.Analytics
	_, err = s.db.ExecContext(ctx, `
		INSERT INTO transcripts (session_id, workspace_id, name, host_user_id, participants, edits, comments, conflicts, payload, ended_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9::jsonb, $10)
		ON CONFLICT (session_id) DO NOTHING
	`, tr.Session.ID, tr.Session.WorkspaceID, tr.Session.Name, tr.Session.HostUserID,
		len(tr.Participants), a.TotalEdits, a.TotalComments, a.TotalConflicts, string(payload), tr.EndedAt)
	if err != nil {
		return fmt.Errorf("insert transcript: %w", err)
	}
	return nil
}

func (s *PostgresStore) GetTranscript(ctx context.Context, sessionID string) (collab.Transcript, error) {
	var payload []byte
	err := s.db.QueryRowContext(ctx, `SELECT payload FROM transcripts WHERE session_id=$1`, sessionID).Scan(&payload)
	if errors.Is(err, sql.ErrNoRows) {
		return collab.Transcript{}, fmt.Errorf("transcript %s not found: %w", sessionID, sql.ErrNoRows)
	}
	if err != nil {
		return collab.Transcript{}, fmt.Errorf("get transcript: %w", err)
	}
	var tr collab.Transcript
	if err := json.Unmarshal(payload, &tr); err != nil {
		return collab.Transcript{}, fmt.Errorf("unmarshal transcript: %w", err)
	}
	return tr, nil
}

func (s *PostgresStore) ListTranscripts(ctx context.Context, workspaceID string, limit int) ([]SessionSummary, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := s.db.QueryContext(ctx, `
		SELECT session_id, workspace_id, name, host_user_id, participants, edits, comments, conflicts, ended_at
		FROM transcripts
		WHERE ($1='' OR workspace_id=$1)
		ORDER BY ended_at DESC
		LIMIT $2
	`, workspaceID, limit)
	if err != nil {
		return nil, fmt.Errorf("list transcripts: %w", err)
	}
	defer rows.Close()

	items := make([]SessionSummary, 0)
	for rows.Next() {
		var item SessionSummary
		if err := rows.Scan(
			&item.SessionID,
			&item.WorkspaceID,
			&item.Name,
			&item.HostUserID,
			&item.Participants,
			&item.Edits,
			&item.Comments,
			&item.Conflicts,
			&item.EndedAt,
		); err != nil {
			return nil, fmt.Errorf("scan transcript: %w", err)
		}
		items = append(items, item)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate transcripts: %w", err)
	}
	return items, nil
}

// PurgeBefore removes audit rows for sessions that ended before the cutoff.
func (s *PostgresStore) PurgeBefore(ctx context.Context, cutoff time.Time) (int64, error) {
	result, err := s.db.ExecContext(ctx, `
		WITH old AS (SELECT session_id FROM transcripts WHERE ended_at < $1)
		DELETE FROM transcripts WHERE session_id IN (SELECT session_id FROM old)
	`, cutoff)
	if err != nil {
		return 0, fmt.Errorf("purge transcripts: %w", err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("purge transcripts rows: %w", err)
	}
	return affected, nil
}
