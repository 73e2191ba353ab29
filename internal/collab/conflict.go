package collab

import (
	"encoding/json"
	"fmt"
	"time"
)

type ConflictKind string

const (
	ConflictConcurrentEdit ConflictKind = "concurrent_edit"
	ConflictMerge          ConflictKind = "merge_conflict"
	ConflictPermission     ConflictKind = "permission_conflict"
	ConflictVersion        ConflictKind = "version_conflict"
)

type ResolutionStrategy string

const (
	StrategyManual    ResolutionStrategy = "manual"
	StrategyAutomatic ResolutionStrategy = "automatic"
	StrategyDefer     ResolutionStrategy = "defer"
	StrategyRollback  ResolutionStrategy = "rollback"
)

type ConflictStatus string

const (
	ConflictPending   ConflictStatus = "pending"
	ConflictResolved  ConflictStatus = "resolved"
	ConflictEscalated ConflictStatus = "escalated"
)

// Resolution is the closed set of resolution payloads: accept one operation,
// supply merged content, or supply custom replacement text.
type Resolution interface {
	isResolution()
	kind() string
}

type AcceptOperation struct {
	OperationID string `json:"operationId"`
}

type MergedContent struct {
	Content string `json:"content"`
}

type CustomText struct {
	Text string `json:"text"`
}

func (AcceptOperation) isResolution() {}
func (MergedContent) isResolution()  {}
func (CustomText) isResolution()     {}

func (AcceptOperation) kind() string { return "accept_operation" }
func (MergedContent) kind() string   { return "merged_content" }
func (CustomText) kind() string      { return "custom_text" }

type resolutionEnvelope struct {
	Kind        string `json:"kind"`
	OperationID string `json:"operationId,omitempty"`
	Content     string `json:"content,omitempty"`
	Text        string `json:"text,omitempty"`
}

func marshalResolution(r Resolution) *resolutionEnvelope {
	switch v := r.(type) {
	case AcceptOperation:
		return &resolutionEnvelope{Kind: v.kind(), OperationID: v.OperationID}
	case MergedContent:
		return &resolutionEnvelope{Kind: v.kind(), Content: v.Content}
	case CustomText:
		return &resolutionEnvelope{Kind: v.kind(), Text: v.Text}
	default:
		return nil
	}
}

// ParseResolution converts a wire envelope back into a Resolution variant.
func ParseResolution(raw json.RawMessage) (Resolution, error) {
	var env resolutionEnvelope
	if err := json.Unmarshal(raw, &env); err != nil {
		return nil, fmt.Errorf("parse resolution: %w", err)
	}
	switch env.Kind {
	case "accept_operation":
		return AcceptOperation{OperationID: env.OperationID}, nil
	case "merged_content":
		return MergedContent{Content: env.Content}, nil
	case "custom_text":
		return CustomText{Text: env.Text}, nil
	default:
		return nil, fmt.Errorf("unknown resolution kind %q", env.Kind)
	}
}

// ConflictResolution is created by the detector and mutated only by the
// resolver; terminal once resolved or escalated.
type ConflictResolution struct {
	ID             string             `json:"id"`
	SessionID      string             `json:"sessionId"`
	FileID         string             `json:"fileId"`
	Kind           ConflictKind       `json:"kind"`
	Strategy       ResolutionStrategy `json:"strategy"`
	Status         ConflictStatus     `json:"status"`
	OperationIDs   []string           `json:"operationIds"`
	ParticipantIDs []string           `json:"participantIds"`
	Resolution     Resolution         `json:"-"`
	Justification  string             `json:"justification,omitempty"`
	ResolvedBy     string             `json:"resolvedBy,omitempty"`
	DetectedAt     time.Time          `json:"detectedAt"`
	ResolvedAt     time.Time          `json:"resolvedAt,omitempty"`
}

// MarshalJSON inlines the tagged resolution variant as a "resolution" field.
func (c ConflictResolution) MarshalJSON() ([]byte, error) {
	type alias ConflictResolution
	return json.Marshal(struct {
		alias
		Resolution *resolutionEnvelope `json:"resolution,omitempty"`
	}{alias: alias(c), Resolution: marshalResolution(c.Resolution)})
}

// detectConflict scans the file log for operations by other authors committed
// within the trailing window of op whose anchors overlap op's anchor. Returns
// nil when op is unconflicted.
func detectConflict(op *TextOperation, log *fileLog, window time.Duration, lineRadius, columnRadius int) []*TextOperation {
	var overlapping []*TextOperation
	for _, prior := range log.ops {
		if prior.ID == op.ID || prior.AuthorID == op.AuthorID {
			continue
		}
		gap := op.CommittedAt.Sub(prior.CommittedAt)
		if gap < 0 || gap > window {
			continue
		}
		if !anchorsOverlap(prior.Position, op.Position, lineRadius, columnRadius) {
			continue
		}
		overlapping = append(overlapping, prior)
	}
	return overlapping
}

// anchorsOverlap is the proximity heuristic: within lineRadius lines and,
// measured on raw columns, within columnRadius columns.
func anchorsOverlap(a, b Position, lineRadius, columnRadius int) bool {
	if abs(a.Line-b.Line) > lineRadius {
		return false
	}
	return abs(a.Column-b.Column) <= columnRadius
}

// pickWinner returns the most recently committed operation; ids are monotonic
// ULIDs, so the id comparison is a deterministic tie-break for equal commit
// times.
func pickWinner(ops []*TextOperation) *TextOperation {
	winner := ops[0]
	for _, op := range ops[1:] {
		if op.CommittedAt.After(winner.CommittedAt) {
			winner = op
			continue
		}
		if op.CommittedAt.Equal(winner.CommittedAt) && op.ID > winner.ID {
			winner = op
		}
	}
	return winner
}

func abs(n int) int {
	if n < 0 {
		return -n
	}
	return n
}
