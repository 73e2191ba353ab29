package collab

import "time"

type OperationKind string

const (
	OpInsert  OperationKind = "insert"
	OpDelete  OperationKind = "delete"
	OpReplace OperationKind = "replace"
)

type Position struct {
	Line   int `json:"line"`
	Column int `json:"column"`
}

// TextOperation is one committed edit. Immutable once appended; a conflict
// resolution may mark it superseded but never removes it from the log.
type TextOperation struct {
	ID                 string        `json:"id"`
	SessionID          string        `json:"sessionId"`
	AuthorID           string        `json:"authorId"`
	FileID             string        `json:"fileId"`
	Kind               OperationKind `json:"kind"`
	Position           Position      `json:"position"`
	Text               string        `json:"text,omitempty"`
	Removed            string        `json:"removed,omitempty"`
	ObservedAt         time.Time     `json:"observedAt"`
	CommittedAt        time.Time     `json:"committedAt"`
	TransformedAgainst []string      `json:"transformedAgainst,omitempty"`
	Superseded         bool          `json:"superseded,omitempty"`
	SupersededBy       string        `json:"supersededBy,omitempty"`
}

type OperationInput struct {
	AuthorID   string        `json:"authorId"`
	FileID     string        `json:"fileId"`
	Kind       OperationKind `json:"kind"`
	Position   Position      `json:"position"`
	Text       string        `json:"text"`
	Removed    string        `json:"removed"`
	ObservedAt time.Time     `json:"observedAt"`
}

// fileLog is the append-only operation history for one file. Entries are in
// commit order; the slice only ever grows.
type fileLog struct {
	ops []*TextOperation
}

func (l *fileLog) append(op *TextOperation) {
	l.ops = append(l.ops, op)
}

func (l *fileLog) len() int {
	return len(l.ops)
}

// find returns the logged operation with the given id, or nil.
func (l *fileLog) find(id string) *TextOperation {
	for _, op := range l.ops {
		if op.ID == id {
			return op
		}
	}
	return nil
}

// snapshot returns value copies of the log in commit order.
func (l *fileLog) snapshot() []TextOperation {
	out := make([]TextOperation, len(l.ops))
	for i, op := range l.ops {
		out[i] = *op
	}
	return out
}

func (k OperationKind) valid() bool {
	return k == OpInsert || k == OpDelete || k == OpReplace
}

func (k OperationKind) eventType() EventType {
	switch k {
	case OpDelete:
		return EventTextDelete
	case OpReplace:
		return EventTextReplace
	default:
		return EventTextInsert
	}
}
