package export

import (
	"context"
	"encoding/json"
	"fmt"

	"coedit/api/internal/collab"
)

// TranscriptSource loads the transcript of an ended session.
type TranscriptSource interface {
	Transcript(ctx context.Context, sessionID string) (collab.Transcript, error)
}

// Service provides transcript export functionality
type Service struct {
	source TranscriptSource
}

// NewService creates a new export service
func NewService(source TranscriptSource) *Service {
	return &Service{source: source}
}

// Export generates an export in the requested format
func (s *Service) Export(ctx context.Context, req Request) (*Result, error) {
	tr, err := s.source.Transcript(ctx, req.SessionID)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrTranscriptUnavailable, err)
	}

	if req.Format == FormatJSON {
		return exportJSON(tr)
	}

	data := buildTemplateData(tr, req)

	switch req.Format {
	case FormatMarkdown:
		md := RenderTranscriptMarkdown(data)
		return &Result{
			Data:     []byte(md),
			Filename: sanitizeFilename(data.SessionName) + ".md",
			MimeType: "text/markdown; charset=utf-8",
		}, nil
	case FormatHTML:
		html, err := RenderTranscriptHTML(data)
		if err != nil {
			return nil, fmt.Errorf("render template: %w", err)
		}
		return &Result{
			Data:     []byte(html),
			Filename: sanitizeFilename(data.SessionName) + ".html",
			MimeType: "text/html; charset=utf-8",
		}, nil
	case FormatPDF:
		html, err := RenderTranscriptHTML(data)
		if err != nil {
			return nil, fmt.Errorf("render template: %w", err)
		}
		return exportPDF(html, data.SessionName)
	default:
		return nil, fmt.Errorf("unsupported format: %s", req.Format)
	}
}

func exportJSON(tr collab.Transcript) (*Result, error) {
	data, err := json.MarshalIndent(tr, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("marshal transcript: %w", err)
	}
	return &Result{
		Data:     data,
		Filename: sanitizeFilename(tr.Session.Name) + ".json",
		MimeType: "application/json",
	}, nil
}

func buildTemplateData(tr collab.Transcript, req Request) TemplateData {
	names := make(map[string]string, len(tr.Participants))
	data := TemplateData{
		SessionName:  tr.Session.Name,
		WorkspaceID:  tr.Session.WorkspaceID,
		StartedAt:    tr.Session.CreatedAt,
		EndedAt:      tr.EndedAt,
		Edits:        tr.Session.Metadata.Analytics.TotalEdits,
		ConflictsRun: tr.Session.Metadata.Analytics.TotalConflicts,
	}

	for _, p := range tr.Participants {
		names[p.ID] = p.DisplayName
		data.Participants = append(data.Participants, TemplateParticipant{
			Name: p.DisplayName,
			Role: string(p.Role),
		})
	}
	data.Host = displayName(names, tr.Session.HostUserID)

	if req.IncludeOperations {
		for _, op := range tr.Operations {
			data.Operations = append(data.Operations, TemplateOperation{
				Author:     displayName(names, op.AuthorID),
				FileID:     op.FileID,
				Kind:       string(op.Kind),
				Line:       op.Position.Line,
				Column:     op.Position.Column,
				Text:       op.Text,
				Superseded: op.Superseded,
				At:         op.CommittedAt,
			})
		}
	}

	if req.IncludeComments {
		for _, c := range tr.Comments {
			tc := TemplateComment{
				Author:   displayName(names, c.AuthorID),
				FileID:   c.FileID,
				Line:     c.Anchor.Line,
				Body:     c.Body,
				Kind:     string(c.Kind),
				Status:   string(c.Status),
				Priority: c.Priority,
			}
			for _, r := range c.Replies {
				tc.Replies = append(tc.Replies, TemplateReply{
					Author: displayName(names, r.AuthorID),
					Body:   r.Body,
				})
			}
			data.Comments = append(data.Comments, tc)
		}
	}

	if req.IncludeConflicts {
		for _, cf := range tr.Conflicts {
			data.Conflicts = append(data.Conflicts, TemplateConflict{
				FileID:        cf.FileID,
				Status:        string(cf.Status),
				Strategy:      string(cf.Strategy),
				ResolvedBy:    displayName(names, cf.ResolvedBy),
				Justification: cf.Justification,
			})
		}
	}
	return data
}

// displayName resolves a participant id to a name, falling back to the id for
// users who were never in the session (mentions, system).
func displayName(names map[string]string, id string) string {
	if name, ok := names[id]; ok && name != "" {
		return name
	}
	return id
}
