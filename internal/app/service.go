package app

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"coedit/api/internal/archive"
	"coedit/api/internal/collab"
	"coedit/api/internal/export"
	"coedit/api/internal/journal"
	"coedit/api/internal/presence"
	"coedit/api/internal/search"
	"coedit/api/internal/store"
)

// Service wires the session manager to its surrounding services. All
// fields except the manager are optional; a nil field disables that
// capability and the HTTP layer reports it as unavailable.
type Service struct {
	manager  *collab.Manager
	db       *sql.DB
	store    *store.PostgresStore
	search   *search.Service
	exporter *export.Service
	journal  *journal.Service
	archive  *archive.Service
	presence *presence.RedisMirror
}

type Deps struct {
	Manager  *collab.Manager
	DB       *sql.DB
	Store    *store.PostgresStore
	Search   *search.Service
	Journal  *journal.Service
	Archive  *archive.Service
	Presence *presence.RedisMirror
}

func NewService(deps Deps) *Service {
	s := &Service{
		manager:  deps.Manager,
		db:       deps.DB,
		store:    deps.Store,
		search:   deps.Search,
		journal:  deps.Journal,
		archive:  deps.Archive,
		presence: deps.Presence,
	}
	s.exporter = export.NewService(s)
	return s
}

func (s *Service) Manager() *collab.Manager { return s.manager }

// Ping reports backing-store connectivity for the readiness probe.
func (s *Service) Ping(ctx context.Context) error {
	if s.db == nil {
		return nil
	}
	return s.db.PingContext(ctx)
}

// Transcript loads an ended session's transcript from the relational
// store, falling back to the workspace journal.
func (s *Service) Transcript(ctx context.Context, sessionID string) (collab.Transcript, error) {
	if s.store != nil {
		tr, err := s.store.GetTranscript(ctx, sessionID)
		if err == nil {
			return tr, nil
		}
		if !errors.Is(err, sql.ErrNoRows) {
			return collab.Transcript{}, err
		}
	}
	if s.journal != nil {
		if session, err := s.manager.GetSession(sessionID); err == nil {
			if tr, err := s.journal.ReadTranscript(session.WorkspaceID, sessionID); err == nil {
				return tr, nil
			}
		}
	}
	return collab.Transcript{}, fmt.Errorf("session %s: %w", sessionID, export.ErrTranscriptUnavailable)
}

// Export renders an ended session's transcript in the requested format.
func (s *Service) Export(ctx context.Context, req export.Request) (*export.Result, error) {
	return s.exporter.Export(ctx, req)
}

// Search queries the comment and conflict indexes. Returns an empty
// response when no search backend is configured.
func (s *Service) Search(q search.Query) search.Response {
	if s.search == nil {
		return search.Response{Results: []search.Result{}}
	}
	return s.search.Search(q)
}

// Transcripts lists archived session summaries for a workspace.
func (s *Service) Transcripts(ctx context.Context, workspaceID string, limit int) ([]store.SessionSummary, error) {
	if s.store == nil {
		return nil, errors.New("transcript store not configured")
	}
	return s.store.ListTranscripts(ctx, workspaceID, limit)
}

// JournalHistory lists the workspace journal's commit log.
func (s *Service) JournalHistory(workspaceID string, limit int) ([]journal.CommitInfo, error) {
	if s.journal == nil {
		return nil, errors.New("journal not configured")
	}
	return s.journal.History(workspaceID, limit)
}

// PresenceSnapshot reads the session's mirrored cursor state.
func (s *Service) PresenceSnapshot(ctx context.Context, sessionID string) ([]presence.Entry, error) {
	if s.presence == nil {
		return nil, errors.New("presence mirror not configured")
	}
	return s.presence.Snapshot(ctx, sessionID)
}
