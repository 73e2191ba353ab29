package collab

import "time"

type CommentKind string

const (
	CommentGeneral    CommentKind = "general"
	CommentSuggestion CommentKind = "suggestion"
	CommentIssue      CommentKind = "issue"
	CommentQuestion   CommentKind = "question"
	CommentApproval   CommentKind = "approval"
)

type CommentStatus string

const (
	CommentOpen      CommentStatus = "open"
	CommentResolved  CommentStatus = "resolved"
	CommentDismissed CommentStatus = "dismissed"
)

type Reply struct {
	ID        string    `json:"id"`
	AuthorID  string    `json:"authorId"`
	Body      string    `json:"body"`
	CreatedAt time.Time `json:"createdAt"`
}

type Reaction struct {
	ParticipantID string    `json:"participantId"`
	Emoji         string    `json:"emoji"`
	CreatedAt     time.Time `json:"createdAt"`
}

// Comment is a position-anchored discussion thread. Never hard-deleted;
// dismissal is a status transition.
type Comment struct {
	ID         string        `json:"id"`
	SessionID  string        `json:"sessionId"`
	FileID     string        `json:"fileId"`
	Anchor     Position      `json:"anchor"`
	AuthorID   string        `json:"authorId"`
	Body       string        `json:"body"`
	Kind       CommentKind   `json:"kind"`
	Status     CommentStatus `json:"status"`
	Priority   string        `json:"priority"`
	Tags       []string      `json:"tags,omitempty"`
	Replies    []Reply       `json:"replies"`
	Reactions  []Reaction    `json:"reactions"`
	Mentions   []string      `json:"mentions,omitempty"`
	CreatedAt  time.Time     `json:"createdAt"`
	UpdatedAt  time.Time     `json:"updatedAt"`
	ResolvedBy string        `json:"resolvedBy,omitempty"`
	ResolvedAt time.Time     `json:"resolvedAt,omitempty"`
}

type CommentInput struct {
	AuthorID string      `json:"authorId"`
	FileID   string      `json:"fileId"`
	Anchor   Position    `json:"anchor"`
	Body     string      `json:"body"`
	Kind     CommentKind `json:"kind"`
	Priority string      `json:"priority"`
	Tags     []string    `json:"tags"`
	Mentions []string    `json:"mentions"`
}

func (k CommentKind) valid() bool {
	switch k {
	case CommentGeneral, CommentSuggestion, CommentIssue, CommentQuestion, CommentApproval:
		return true
	default:
		return false
	}
}
