package collab

import "time"

type EventType string

const (
	EventUserJoin        EventType = "user_join"
	EventUserLeave       EventType = "user_leave"
	EventTextInsert      EventType = "text_insert"
	EventTextDelete      EventType = "text_delete"
	EventTextReplace     EventType = "text_replace"
	EventCursorMove      EventType = "cursor_move"
	EventSelectionChange EventType = "selection_change"
	EventCommentAdd      EventType = "comment_add"
	EventCommentResolve  EventType = "comment_resolve"
	EventConflictResolve EventType = "conflict_resolve"
	EventSessionControl  EventType = "session_control"
)

// Event is the single broadcast envelope. Every mutating call on the Manager
// emits zero or one Event, delivered synchronously to every attached sink
// before the call returns. ActorID identifies the originating participant
// ("" for system actions); sinks that fan out to clients skip the actor when
// ExcludeActor is set.
type Event struct {
	Type         EventType `json:"type"`
	SessionID    string    `json:"sessionId"`
	ActorID      string    `json:"actorId,omitempty"`
	ExcludeActor bool      `json:"-"`
	Timestamp    time.Time `json:"timestamp"`
	Payload      any       `json:"payload,omitempty"`
}

// Sink receives broadcast events. Implementations must not block: anything
// that does I/O queues internally and delivers on its own goroutines.
type Sink interface {
	Name() string
	Deliver(Event)
}

type JoinPayload struct {
	Participant Participant `json:"participant"`
}

type LeavePayload struct {
	ParticipantID string `json:"participantId"`
}

type OperationPayload struct {
	Operation TextOperation `json:"operation"`
}

type CursorPayload struct {
	ParticipantID string         `json:"participantId"`
	Cursor        CursorPosition `json:"cursor"`
}

type SelectionPayload struct {
	ParticipantID string    `json:"participantId"`
	Selection     Selection `json:"selection"`
}

type CommentPayload struct {
	Comment Comment `json:"comment"`
}

type ConflictPayload struct {
	Conflict ConflictResolution `json:"conflict"`
}

// ControlPayload carries session_control events: host transfer, role change,
// pause/resume, session end.
type ControlPayload struct {
	Action        string `json:"action"`
	TargetID      string `json:"targetId,omitempty"`
	Role          string `json:"role,omitempty"`
	SessionStatus string `json:"sessionStatus,omitempty"`
}
