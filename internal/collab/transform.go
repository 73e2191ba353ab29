package collab

import "strings"

// transformOp rewrites op's anchor against every logged operation on the same
// file that the author had not observed (committed after the author's causal
// timestamp), in commit order. The transform trail records each prior exactly
// once, so a replayed transform is a no-op.
//
// This is the pragmatic line/column subset, not convergent OT: a prior that
// precedes the anchor shifts the line by its net newline delta and, on the
// same line, the column by its net payload length; a prior strictly after the
// anchor leaves it untouched.
func transformOp(op *TextOperation, log *fileLog) {
	for _, prior := range log.ops {
		if prior.ID == op.ID || prior.AuthorID == op.AuthorID {
			continue
		}
		if !prior.CommittedAt.After(op.ObservedAt) {
			continue
		}
		if inTrail(op, prior.ID) {
			continue
		}
		applyTransform(op, prior)
		op.TransformedAgainst = append(op.TransformedAgainst, prior.ID)
	}
}

func inTrail(op *TextOperation, priorID string) bool {
	for _, id := range op.TransformedAgainst {
		if id == priorID {
			return true
		}
	}
	return false
}

func applyTransform(op *TextOperation, prior *TextOperation) {
	if !precedes(prior.Position, op.Position) {
		return
	}
	sameLine := prior.Position.Line == op.Position.Line
	op.Position.Line += lineDelta(prior)
	if sameLine {
		op.Position.Column += columnDelta(prior)
		if op.Position.Column < 0 {
			op.Position.Column = 0
		}
	}
	if op.Position.Line < 0 {
		op.Position.Line = 0
	}
}

// precedes reports whether a sits at or before b, ordered by line then
// column. Equal anchors count as preceding: the prior got there first.
func precedes(a, b Position) bool {
	if a.Line != b.Line {
		return a.Line < b.Line
	}
	return a.Column <= b.Column
}

// lineDelta is the net newline count an operation adds to the document.
func lineDelta(op *TextOperation) int {
	return strings.Count(op.Text, "\n") - strings.Count(op.Removed, "\n")
}

// columnDelta is the net character count an operation adds on its own line:
// positive for inserts, negative for deletes, the difference for replaces.
func columnDelta(op *TextOperation) int {
	return len(op.Text) - len(op.Removed)
}
