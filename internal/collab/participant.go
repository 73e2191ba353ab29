package collab

import (
	"time"

	"coedit/api/internal/rbac"
)

type PresenceStatus string

const (
	PresenceActive  PresenceStatus = "active"
	PresenceIdle    PresenceStatus = "idle"
	PresenceAway    PresenceStatus = "away"
	PresenceOffline PresenceStatus = "offline"
)

type CursorPosition struct {
	FileID string `json:"fileId"`
	Line   int    `json:"line"`
	Column int    `json:"column"`
}

type Selection struct {
	FileID      string `json:"fileId"`
	StartLine   int    `json:"startLine"`
	StartColumn int    `json:"startColumn"`
	EndLine     int    `json:"endLine"`
	EndColumn   int    `json:"endColumn"`
}

// Identity is what the external identity provider hands the core at join
// time. The core trusts it as-is.
type Identity struct {
	UserID      string `json:"userId"`
	DisplayName string `json:"displayName"`
	AvatarURL   string `json:"avatarUrl,omitempty"`
}

// Participant is one identity's live membership in a session. ConnectionID
// is a transport delivery handle, never an identity.
type Participant struct {
	ID           string             `json:"id"`
	DisplayName  string             `json:"displayName"`
	AvatarURL    string             `json:"avatarUrl,omitempty"`
	Role         rbac.Role          `json:"role"`
	Capabilities rbac.CapabilitySet `json:"capabilities"`
	Status       PresenceStatus     `json:"status"`
	JoinedAt     time.Time          `json:"joinedAt"`
	LastActiveAt time.Time          `json:"lastActiveAt"`
	Cursor       *CursorPosition    `json:"cursor,omitempty"`
	Selection    *Selection         `json:"selection,omitempty"`
	ConnectionID string             `json:"-"`
}

type JoinOptions struct {
	RequestedRole string `json:"requestedRole"`
	InviteCode    string `json:"inviteCode"`
	ConnectionID  string `json:"-"`
}
