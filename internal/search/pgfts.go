package search

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
)

// PgFTS implements Searcher using PostgreSQL full-text search as a fallback.
// It reads the same audit tables the store package writes.
type PgFTS struct {
	db *sql.DB
}

// NewPgFTS creates a PostgreSQL FTS searcher.
func NewPgFTS(db *sql.DB) *PgFTS {
	return &PgFTS{db: db}
}

// Healthy always returns true: if Postgres is down, the whole app is down.
func (p *PgFTS) Healthy() bool {
	return true
}

// Search executes a UNION ALL query across comments and conflicts using
// plainto_tsquery and ts_rank, with ts_headline for snippets.
func (p *PgFTS) Search(q Query) ([]Result, int, error) {
	if strings.TrimSpace(q.Text) == "" {
		return nil, 0, nil
	}

	limit := q.Limit
	if limit <= 0 {
		limit = 20
	}
	offset := q.Offset
	if offset < 0 {
		offset = 0
	}

	tsQuery := "plainto_tsquery('english', $1)"
	args := []any{q.Text}
	argN := 2

	var subQueries []string

	if q.FilterType == "" || q.FilterType == ResultComment {
		where := "to_tsvector('english', c.body) @@ " + tsQuery
		if q.FilterSessionID != "" {
			where += fmt.Sprintf(" AND c.session_id = $%d", argN)
			args = append(args, q.FilterSessionID)
			argN++
		}
		subQueries = append(subQueries, fmt.Sprintf(`
			SELECT 'comment'::text AS type, c.id, c.kind AS title,
				ts_headline('english', c.body, %s, 'MaxFragments=1,MaxWords=30') AS snippet,
				c.session_id, c.file_id, c.author_id,
				ts_rank(to_tsvector('english', c.body), %s) AS rank
			FROM comments c
			WHERE %s`, tsQuery, tsQuery, where))
	}

	if q.FilterType == "" || q.FilterType == ResultConflict {
		where := "to_tsvector('english', coalesce(cf.payload->>'justification', '')) @@ " + tsQuery
		if q.FilterSessionID != "" {
			where += fmt.Sprintf(" AND cf.session_id = $%d", argN)
			args = append(args, q.FilterSessionID)
			argN++
		}
		subQueries = append(subQueries, fmt.Sprintf(`
			SELECT 'conflict'::text AS type, cf.id, cf.status AS title,
				ts_headline('english', coalesce(cf.payload->>'justification', ''), %s, 'MaxFragments=1,MaxWords=30') AS snippet,
				cf.session_id, cf.file_id, coalesce(cf.resolved_by, '') AS author_id,
				ts_rank(to_tsvector('english', coalesce(cf.payload->>'justification', '')), %s) AS rank
			FROM conflicts cf
			WHERE %s`, tsQuery, tsQuery, where))
	}

	if len(subQueries) == 0 {
		return nil, 0, nil
	}

	countSQL := fmt.Sprintf("SELECT count(*) FROM (%s) sub",
		strings.Join(subQueries, " UNION ALL "))

	dataSQL := fmt.Sprintf(`SELECT type, id, title, snippet, session_id, file_id, author_id
		FROM (%s) sub
		ORDER BY rank DESC
		LIMIT %d OFFSET %d`,
		strings.Join(subQueries, " UNION ALL "),
		limit, offset)

	ctx := context.Background()

	var total int
	if err := p.db.QueryRowContext(ctx, countSQL, args...).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("pgfts count: %w", err)
	}

	rows, err := p.db.QueryContext(ctx, dataSQL, args...)
	if err != nil {
		return nil, 0, fmt.Errorf("pgfts query: %w", err)
	}
	defer rows.Close()

	var results []Result
	for rows.Next() {
		var r Result
		var typ string
		if err := rows.Scan(&typ, &r.ID, &r.Title, &r.Snippet, &r.SessionID, &r.FileID, &r.AuthorID); err != nil {
			return nil, 0, fmt.Errorf("pgfts scan: %w", err)
		}
		r.Type = ResultType(typ)
		results = append(results, r)
	}

	return results, total, rows.Err()
}

// LoadAllRecords returns all searchable records for full reindexing.
func (p *PgFTS) LoadAllRecords(ctx context.Context) ([]CommentRecord, []ConflictRecord, error) {
	commentRows, err := p.db.QueryContext(ctx, `
		SELECT id, body, session_id, file_id, author_id, kind, status, priority
		FROM comments
	`)
	if err != nil {
		return nil, nil, fmt.Errorf("load comments: %w", err)
	}
	defer commentRows.Close()

	comments := make([]CommentRecord, 0)
	for commentRows.Next() {
		var c CommentRecord
		if err := commentRows.Scan(&c.ID, &c.Body, &c.SessionID, &c.FileID, &c.AuthorID, &c.Kind, &c.Status, &c.Priority); err != nil {
			return nil, nil, fmt.Errorf("scan comment: %w", err)
		}
		comments = append(comments, c)
	}
	if err := commentRows.Err(); err != nil {
		return nil, nil, fmt.Errorf("iterate comments: %w", err)
	}

	conflictRows, err := p.db.QueryContext(ctx, `
		SELECT id, coalesce(payload->>'justification', ''), session_id, file_id, kind, status, coalesce(resolved_by, '')
		FROM conflicts
	`)
	if err != nil {
		return nil, nil, fmt.Errorf("load conflicts: %w", err)
	}
	defer conflictRows.Close()

	conflicts := make([]ConflictRecord, 0)
	for conflictRows.Next() {
		var c ConflictRecord
		if err := conflictRows.Scan(&c.ID, &c.Justification, &c.SessionID, &c.FileID, &c.Kind, &c.Status, &c.ResolvedBy); err != nil {
			return nil, nil, fmt.Errorf("scan conflict: %w", err)
		}
		conflicts = append(conflicts, c)
	}
	if err := conflictRows.Err(); err != nil {
		return nil, nil, fmt.Errorf("iterate conflicts: %w", err)
	}

	return comments, conflicts, nil
}
