package collab

import (
	"time"

	"coedit/api/internal/rbac"
)

type SessionStatus string

const (
	SessionActive SessionStatus = "active"
	SessionPaused SessionStatus = "paused"
	SessionEnded  SessionStatus = "ended"
)

// SessionPolicy governs admission. InviteCodeHash is a bcrypt hash; empty
// means no code is required.
type SessionPolicy struct {
	MaxParticipants int         `json:"maxParticipants"`
	AllowedRoles    []rbac.Role `json:"allowedRoles"`
	Public          bool        `json:"public"`
	RequireApproval bool        `json:"requireApproval"`
	InviteCodeHash  string      `json:"-"`
	ExpiresAt       time.Time   `json:"expiresAt,omitempty"`
}

// Analytics are the minimal per-session health counters. They are part of
// the metadata bag, not an observability layer.
type Analytics struct {
	TotalEdits       int `json:"totalEdits"`
	TotalComments    int `json:"totalComments"`
	TotalConflicts   int `json:"totalConflicts"`
	PeakParticipants int `json:"peakParticipants"`
}

type SessionMetadata struct {
	Language  string    `json:"language,omitempty"`
	Tags      []string  `json:"tags,omitempty"`
	Analytics Analytics `json:"analytics"`
}

type Session struct {
	ID             string          `json:"id"`
	Name           string          `json:"name"`
	WorkspaceID    string          `json:"workspaceId"`
	HostUserID     string          `json:"hostUserId"`
	Status         SessionStatus   `json:"status"`
	Type           string          `json:"type,omitempty"`
	Policy         SessionPolicy   `json:"policy"`
	Metadata       SessionMetadata `json:"metadata"`
	CreatedAt      time.Time       `json:"createdAt"`
	LastActivityAt time.Time       `json:"lastActivityAt"`
	EndedAt        time.Time       `json:"endedAt,omitempty"`
}

// Transcript is the final end-of-session snapshot handed to the audit
// collaborators (durable store, journal, archive).
type Transcript struct {
	Session      Session              `json:"session"`
	Participants []Participant        `json:"participants"`
	Operations   []TextOperation      `json:"operations"`
	Comments     []Comment            `json:"comments"`
	Conflicts    []ConflictResolution `json:"conflicts"`
	EndedAt      time.Time            `json:"endedAt"`
}

type CreateSessionSpec struct {
	Name            string      `json:"name"`
	WorkspaceID     string      `json:"workspaceId"`
	HostUserID      string      `json:"hostUserId"`
	Type            string      `json:"type"`
	Language        string      `json:"language"`
	Tags            []string    `json:"tags"`
	MaxParticipants int         `json:"maxParticipants"`
	AllowedRoles    []rbac.Role `json:"allowedRoles"`
	Public          bool        `json:"public"`
	RequireApproval bool        `json:"requireApproval"`
	InviteCode      string      `json:"inviteCode"`
	ExpiresAt       time.Time   `json:"expiresAt"`
}
