package app

import (
	"context"
	"database/sql"
	"database/sql/driver"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"coedit/api/internal/collab"
	"coedit/api/internal/export"
	"coedit/api/internal/journal"
	"coedit/api/internal/store"
)

// emptyDriver is a database/sql driver whose every query matches zero rows,
// standing in for a Postgres store that has no transcript for the session.
type emptyDriver struct{}

func (emptyDriver) Open(string) (driver.Conn, error) { return emptyConn{}, nil }

type emptyConn struct{}

func (emptyConn) Prepare(string) (driver.Stmt, error) { return emptyStmt{}, nil }
func (emptyConn) Close() error                        { return nil }
func (emptyConn) Begin() (driver.Tx, error)           { return nil, driver.ErrSkip }

type emptyStmt struct{}

func (emptyStmt) Close() error  { return nil }
func (emptyStmt) NumInput() int { return -1 }

func (emptyStmt) Exec([]driver.Value) (driver.Result, error) {
	return driver.RowsAffected(0), nil
}

func (emptyStmt) Query([]driver.Value) (driver.Rows, error) { return emptyRows{}, nil }

type emptyRows struct{}

func (emptyRows) Columns() []string        { return []string{"payload"} }
func (emptyRows) Close() error             { return nil }
func (emptyRows) Next([]driver.Value) error { return io.EOF }

func init() {
	sql.Register("emptyrows", emptyDriver{})
}

func endedSession(t *testing.T, manager *collab.Manager) collab.Session {
	t.Helper()
	session, err := manager.CreateSession(collab.CreateSessionSpec{
		Name:            "API Review",
		WorkspaceID:     "ws-main",
		HostUserID:      "u_alice",
		MaxParticipants: 4,
	})
	if err != nil {
		t.Fatalf("CreateSession() error = %v", err)
	}
	host := collab.Identity{UserID: "u_alice", DisplayName: "Alice Chen"}
	if _, err := manager.JoinSession(session.ID, host, collab.JoinOptions{}); err != nil {
		t.Fatalf("JoinSession() error = %v", err)
	}
	if err := manager.EndSession(session.ID, "u_alice"); err != nil {
		t.Fatalf("EndSession() error = %v", err)
	}
	return session
}

func TestTranscriptFallsBackToJournalWhenStoreMisses(t *testing.T) {
	db, err := sql.Open("emptyrows", "")
	if err != nil {
		t.Fatalf("sql.Open() error = %v", err)
	}
	defer db.Close()

	manager := collab.NewManager(collab.Config{})
	session := endedSession(t, manager)

	journalService := journal.New(t.TempDir())
	if _, err := journalService.RecordTranscript(collab.Transcript{
		Session:      session,
		Participants: []collab.Participant{{ID: "u_alice", DisplayName: "Alice Chen"}},
		EndedAt:      time.Date(2025, 6, 1, 13, 0, 0, 0, time.UTC),
	}); err != nil {
		t.Fatalf("RecordTranscript() error = %v", err)
	}

	service := NewService(Deps{
		Manager: manager,
		DB:      db,
		Store:   store.NewPostgresStore(db),
		Journal: journalService,
	})

	tr, err := service.Transcript(context.Background(), session.ID)
	if err != nil {
		t.Fatalf("Transcript() error = %v, want journal fallback", err)
	}
	if tr.Session.ID != session.ID {
		t.Errorf("transcript session = %q, want %q", tr.Session.ID, session.ID)
	}
	if tr.Session.WorkspaceID != "ws-main" {
		t.Errorf("transcript workspace = %q, want ws-main", tr.Session.WorkspaceID)
	}
}

func TestTranscriptUnavailableWhenStoreAndJournalMiss(t *testing.T) {
	db, err := sql.Open("emptyrows", "")
	if err != nil {
		t.Fatalf("sql.Open() error = %v", err)
	}
	defer db.Close()

	manager := collab.NewManager(collab.Config{})
	session := endedSession(t, manager)

	service := NewService(Deps{
		Manager: manager,
		DB:      db,
		Store:   store.NewPostgresStore(db),
		Journal: journal.New(t.TempDir()),
	})

	_, err = service.Transcript(context.Background(), session.ID)
	if !errors.Is(err, export.ErrTranscriptUnavailable) {
		t.Fatalf("Transcript() error = %v, want ErrTranscriptUnavailable", err)
	}

	srv := httptest.NewServer(NewHTTPServer(service, nil, "*").Handler())
	defer srv.Close()
	resp, body := doJSON(t, srv, http.MethodGet, "/api/transcripts/"+session.ID, "u_alice", nil)
	if resp.StatusCode != http.StatusNotFound {
		t.Errorf("GET transcript status = %d, want 404 (body %v)", resp.StatusCode, body)
	}
}

func TestStoreMissIsNoRows(t *testing.T) {
	db, err := sql.Open("emptyrows", "")
	if err != nil {
		t.Fatalf("sql.Open() error = %v", err)
	}
	defer db.Close()

	pg := store.NewPostgresStore(db)
	if _, err := pg.GetTranscript(context.Background(), "sess-missing"); !errors.Is(err, sql.ErrNoRows) {
		t.Errorf("GetTranscript() error = %v, want sql.ErrNoRows", err)
	}
	if _, err := pg.GetComment(context.Background(), "cmt-missing"); !errors.Is(err, sql.ErrNoRows) {
		t.Errorf("GetComment() error = %v, want sql.ErrNoRows", err)
	}
}
