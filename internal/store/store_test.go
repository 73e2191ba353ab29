package store

import (
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"regexp"
	"testing"
	"time"

	"coedit/api/internal/collab"
)

func TestMigrationsHaveMatchingUpAndDownFiles(t *testing.T) {
	migrationsDir := filepath.Join("..", "..", "db", "migrations")
	entries, err := os.ReadDir(migrationsDir)
	if err != nil {
		t.Fatalf("read migrations dir: %v", err)
	}

	pattern := regexp.MustCompile(`^(\d+)_.*\.(up|down)\.sql$`)
	byVersion := map[string]map[string]bool{}

	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		match := pattern.FindStringSubmatch(entry.Name())
		if match == nil {
			t.Errorf("unexpected file in migrations dir: %s", entry.Name())
			continue
		}
		version, direction := match[1], match[2]
		if byVersion[version] == nil {
			byVersion[version] = map[string]bool{}
		}
		byVersion[version][direction] = true
	}

	if len(byVersion) == 0 {
		t.Fatal("no migrations found")
	}
	for version, dirs := range byVersion {
		if !dirs["up"] || !dirs["down"] {
			t.Errorf("migration %s missing up or down file: %v", version, dirs)
		}
	}
}

func TestDecodeConflictRestoresResolutionVariant(t *testing.T) {
	src := collab.ConflictResolution{
		ID:           "cfl_1",
		SessionID:    "sess_1",
		FileID:       "main.go",
		Kind:         collab.ConflictConcurrentEdit,
		Strategy:     collab.StrategyAutomatic,
		Status:       collab.ConflictResolved,
		OperationIDs: []string{"op_a", "op_b"},
		Resolution:   collab.AcceptOperation{OperationID: "op_b"},
		ResolvedBy:   "system",
		DetectedAt:   time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC),
	}
	payload, err := json.Marshal(src)
	if err != nil {
		t.Fatalf("marshal conflict: %v", err)
	}

	got, err := decodeConflict(payload)
	if err != nil {
		t.Fatalf("decodeConflict: %v", err)
	}
	if got.ID != src.ID || got.Status != src.Status {
		t.Errorf("decoded record mismatch: %+v", got)
	}
	accept, ok := got.Resolution.(collab.AcceptOperation)
	if !ok {
		t.Fatalf("resolution type %T, want AcceptOperation", got.Resolution)
	}
	if accept.OperationID != "op_b" {
		t.Errorf("accepted operation %q, want op_b", accept.OperationID)
	}
}

func TestDecodeConflictWithoutResolution(t *testing.T) {
	src := collab.ConflictResolution{
		ID:        "cfl_2",
		SessionID: "sess_1",
		Kind:      collab.ConflictConcurrentEdit,
		Strategy:  collab.StrategyManual,
		Status:    collab.ConflictPending,
	}
	payload, err := json.Marshal(src)
	if err != nil {
		t.Fatalf("marshal conflict: %v", err)
	}

	got, err := decodeConflict(payload)
	if err != nil {
		t.Fatalf("decodeConflict: %v", err)
	}
	if got.Resolution != nil {
		t.Errorf("pending conflict decoded with resolution %#v", got.Resolution)
	}
}

func getTestDatabaseURL(t *testing.T) string {
	t.Helper()
	url := os.Getenv("COEDIT_TEST_DATABASE_URL")
	if url == "" {
		t.Skip("COEDIT_TEST_DATABASE_URL not set; skipping integration test")
	}
	return url
}

// TestAuditRoundTrip exercises the full audit path against a real database.
func TestAuditRoundTrip(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test in short mode")
	}

	ctx := context.Background()
	db, err := Open(ctx, getTestDatabaseURL(t))
	if err != nil {
		t.Fatalf("open database: %v", err)
	}
	defer db.Close()

	if err := ApplyMigrations(ctx, db, filepath.Join("..", "..", "db", "migrations")); err != nil {
		t.Fatalf("apply migrations: %v", err)
	}

	s := NewPostgresStore(db)
	now := time.Now().UTC().Truncate(time.Microsecond)

	op := collab.TextOperation{
		ID:          "01TESTOP0000000000000000AA",
		SessionID:   "sess_it",
		AuthorID:    "alice",
		FileID:      "main.go",
		Kind:        collab.OpInsert,
		Position:    collab.Position{Line: 1, Column: 2},
		Text:        "hello",
		ObservedAt:  now,
		CommittedAt: now,
	}
	if err := s.InsertOperation(ctx, op); err != nil {
		t.Fatalf("InsertOperation: %v", err)
	}
	// Re-recording the same id is a no-op, not an error.
	if err := s.InsertOperation(ctx, op); err != nil {
		t.Fatalf("duplicate InsertOperation: %v", err)
	}

	ops, err := s.ListOperations(ctx, "sess_it", "main.go", 0)
	if err != nil {
		t.Fatalf("ListOperations: %v", err)
	}
	if len(ops) != 1 || ops[0].Text != "hello" || ops[0].Position.Column != 2 {
		t.Fatalf("operations round trip: %+v", ops)
	}

	if err := s.MarkSuperseded(ctx, "cfl_it", []string{op.ID}); err != nil {
		t.Fatalf("MarkSuperseded: %v", err)
	}
	ops, _ = s.ListOperations(ctx, "sess_it", "", 0)
	if !ops[0].Superseded || ops[0].SupersededBy != "cfl_it" {
		t.Fatalf("superseded flags not written: %+v", ops[0])
	}

	c := collab.Comment{
		ID: "cmt_it", SessionID: "sess_it", FileID: "main.go",
		AuthorID: "rita", Body: "check this", Kind: collab.CommentIssue,
		Status: collab.CommentOpen, Priority: "high",
		CreatedAt: now, UpdatedAt: now,
	}
	if err := s.UpsertComment(ctx, c); err != nil {
		t.Fatalf("UpsertComment: %v", err)
	}
	c.Status = collab.CommentResolved
	c.UpdatedAt = now.Add(time.Second)
	if err := s.UpsertComment(ctx, c); err != nil {
		t.Fatalf("UpsertComment update: %v", err)
	}
	back, err := s.GetComment(ctx, "cmt_it")
	if err != nil {
		t.Fatalf("GetComment: %v", err)
	}
	if back.Status != collab.CommentResolved {
		t.Fatalf("comment status = %q, want resolved", back.Status)
	}

	tr := collab.Transcript{
		Session: collab.Session{ID: "sess_it", WorkspaceID: "ws-it", Name: "it", HostUserID: "alice"},
		EndedAt: now,
	}
	if err := s.InsertTranscript(ctx, tr); err != nil {
		t.Fatalf("InsertTranscript: %v", err)
	}
	summaries, err := s.ListTranscripts(ctx, "ws-it", 10)
	if err != nil {
		t.Fatalf("ListTranscripts: %v", err)
	}
	if len(summaries) == 0 || summaries[0].SessionID != "sess_it" {
		t.Fatalf("transcript listing: %+v", summaries)
	}
}
