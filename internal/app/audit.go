package app

import (
	"context"
	"log"
	"time"

	"coedit/api/internal/archive"
	"coedit/api/internal/collab"
	"coedit/api/internal/journal"
	"coedit/api/internal/search"
)

// AuditFanout multiplexes the manager's audit callbacks to every
// configured target. Targets never see each other's failures.
type AuditFanout struct {
	targets []collab.Auditor
}

func NewAuditFanout(targets ...collab.Auditor) *AuditFanout {
	fanout := &AuditFanout{}
	for _, t := range targets {
		if t != nil {
			fanout.targets = append(fanout.targets, t)
		}
	}
	return fanout
}

func (f *AuditFanout) RecordOperation(ctx context.Context, op collab.TextOperation) {
	for _, t := range f.targets {
		t.RecordOperation(ctx, op)
	}
}

func (f *AuditFanout) RecordComment(ctx context.Context, c collab.Comment) {
	for _, t := range f.targets {
		t.RecordComment(ctx, c)
	}
}

func (f *AuditFanout) RecordConflict(ctx context.Context, c collab.ConflictResolution) {
	for _, t := range f.targets {
		t.RecordConflict(ctx, c)
	}
}

func (f *AuditFanout) RecordSessionEnd(ctx context.Context, tr collab.Transcript) {
	for _, t := range f.targets {
		t.RecordSessionEnd(ctx, tr)
	}
}

// searchAuditor keeps the search indexes in step with comment and
// conflict state. Every mutation re-indexes the latest document.
type searchAuditor struct {
	search *search.Service
}

func NewSearchAuditor(s *search.Service) collab.Auditor {
	return &searchAuditor{search: s}
}

func (a *searchAuditor) RecordOperation(context.Context, collab.TextOperation) {}

func (a *searchAuditor) RecordComment(_ context.Context, c collab.Comment) {
	a.search.IndexComment(commentRecord(c))
}

func (a *searchAuditor) RecordConflict(_ context.Context, c collab.ConflictResolution) {
	a.search.IndexConflict(conflictRecord(c))
}

func (a *searchAuditor) RecordSessionEnd(context.Context, collab.Transcript) {}

func commentRecord(c collab.Comment) search.CommentRecord {
	return search.CommentRecord{
		ID:        c.ID,
		Body:      c.Body,
		SessionID: c.SessionID,
		FileID:    c.FileID,
		AuthorID:  c.AuthorID,
		Kind:      string(c.Kind),
		Status:    string(c.Status),
		Priority:  c.Priority,
	}
}

func conflictRecord(c collab.ConflictResolution) search.ConflictRecord {
	return search.ConflictRecord{
		ID:            c.ID,
		Justification: c.Justification,
		SessionID:     c.SessionID,
		FileID:        c.FileID,
		Kind:          string(c.Kind),
		Status:        string(c.Status),
		ResolvedBy:    c.ResolvedBy,
	}
}

// journalAuditor commits ended-session transcripts to the workspace
// journal.
type journalAuditor struct {
	journal *journal.Service
}

func NewJournalAuditor(j *journal.Service) collab.Auditor {
	return &journalAuditor{journal: j}
}

func (a *journalAuditor) RecordOperation(context.Context, collab.TextOperation)     {}
func (a *journalAuditor) RecordComment(context.Context, collab.Comment)             {}
func (a *journalAuditor) RecordConflict(context.Context, collab.ConflictResolution) {}

func (a *journalAuditor) RecordSessionEnd(_ context.Context, tr collab.Transcript) {
	go func() {
		if _, err := a.journal.RecordTranscript(tr); err != nil {
			log.Printf("app: journal transcript %s: %v", tr.Session.ID, err)
		}
	}()
}

// archiveAuditor uploads ended-session transcripts to object storage.
type archiveAuditor struct {
	archive *archive.Service
	timeout time.Duration
}

func NewArchiveAuditor(a *archive.Service) collab.Auditor {
	return &archiveAuditor{archive: a, timeout: 30 * time.Second}
}

func (a *archiveAuditor) RecordOperation(context.Context, collab.TextOperation)     {}
func (a *archiveAuditor) RecordComment(context.Context, collab.Comment)             {}
func (a *archiveAuditor) RecordConflict(context.Context, collab.ConflictResolution) {}

func (a *archiveAuditor) RecordSessionEnd(_ context.Context, tr collab.Transcript) {
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), a.timeout)
		defer cancel()
		if _, err := a.archive.StoreTranscript(ctx, tr); err != nil {
			log.Printf("app: archive transcript %s: %v", tr.Session.ID, err)
		}
	}()
}
