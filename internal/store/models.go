package store

import "time"

// SessionSummary is the transcript listing row; the full transcript lives in
// the jsonb payload.
type SessionSummary struct {
	SessionID    string
	WorkspaceID  string
	Name         string
	HostUserID   string
	Participants int
	Edits        int
	Comments     int
	Conflicts    int
	EndedAt      time.Time
}
