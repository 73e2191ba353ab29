package collab

import (
	"context"

	"coedit/api/internal/util"
)

// HandleTextOperation transforms, commits and broadcasts one edit, then runs
// conflict detection over the trailing window. The returned operation carries
// the transformed anchor, the assigned id and the transform trail.
func (m *Manager) HandleTextOperation(sessionID string, in OperationInput) (TextOperation, error) {
	st := m.state(sessionID)
	if st == nil {
		return TextOperation{}, notFound("session", sessionID)
	}

	st.mu.Lock()
	defer st.mu.Unlock()

	now := m.now()
	if m.expireLocked(st, now) || st.session.Status != SessionActive {
		return TextOperation{}, notActive(sessionID, string(st.session.Status))
	}
	author, ok := st.participants[in.AuthorID]
	if !ok {
		return TextOperation{}, permissionDenied("author is not a participant of this session")
	}
	if !author.Capabilities.CanEdit {
		return TextOperation{}, permissionDenied("role " + string(author.Role) + " cannot edit")
	}
	if !in.Kind.valid() {
		return TextOperation{}, invalidState("unknown operation kind " + string(in.Kind))
	}
	if in.FileID == "" {
		return TextOperation{}, invalidState("fileId is required")
	}
	if in.Position.Line < 0 || in.Position.Column < 0 {
		return TextOperation{}, invalidState("operation position must not be negative")
	}

	observed := in.ObservedAt
	if observed.IsZero() {
		observed = now
	}

	log := st.logFor(in.FileID)
	op := &TextOperation{
		ID:          util.NewOpID(),
		SessionID:   sessionID,
		AuthorID:    in.AuthorID,
		FileID:      in.FileID,
		Kind:        in.Kind,
		Position:    in.Position,
		Text:        in.Text,
		Removed:     in.Removed,
		ObservedAt:  observed,
		CommittedAt: now,
	}
	transformOp(op, log)
	log.append(op)

	author.LastActiveAt = now
	author.Status = PresenceActive
	st.session.LastActivityAt = now
	st.session.Metadata.Analytics.TotalEdits++

	m.emit(Event{
		Type:         op.Kind.eventType(),
		SessionID:    sessionID,
		ActorID:      in.AuthorID,
		ExcludeActor: true,
		Payload:      OperationPayload{Operation: *op},
	})
	if m.audit != nil {
		m.audit.RecordOperation(context.Background(), *op)
	}

	m.detectAndResolveLocked(st, log, op)
	return *op, nil
}

// detectAndResolveLocked raises a conflict record for overlapping concurrent
// edits and, unless automatic resolution is disabled, settles it in favor of
// the most recently committed operation.
func (m *Manager) detectAndResolveLocked(st *sessionState, log *fileLog, op *TextOperation) {
	overlapping := detectConflict(op, log, m.cfg.ConflictWindow, m.cfg.ConflictLineRadius, m.cfg.ConflictColumnRadius)
	if len(overlapping) == 0 {
		return
	}

	set := append(overlapping, op)
	now := m.now()
	conflict := &ConflictResolution{
		ID:         util.NewID("cfl"),
		SessionID:  st.session.ID,
		FileID:     op.FileID,
		Kind:       ConflictConcurrentEdit,
		Strategy:   StrategyAutomatic,
		Status:     ConflictPending,
		DetectedAt: now,
	}
	seen := make(map[string]bool)
	for _, o := range set {
		conflict.OperationIDs = append(conflict.OperationIDs, o.ID)
		if !seen[o.AuthorID] {
			seen[o.AuthorID] = true
			conflict.ParticipantIDs = append(conflict.ParticipantIDs, o.AuthorID)
		}
	}

	if !m.cfg.DisableAutoResolve {
		winner := pickWinner(set)
		for _, o := range set {
			if o.ID != winner.ID {
				o.Superseded = true
				o.SupersededBy = conflict.ID
			}
		}
		conflict.Resolution = AcceptOperation{OperationID: winner.ID}
		conflict.Status = ConflictResolved
		conflict.ResolvedBy = "system"
		conflict.ResolvedAt = now
		conflict.Justification = "most recently committed operation accepted"
	}

	st.conflicts = append(st.conflicts, conflict)
	st.conflictIndex[conflict.ID] = conflict
	st.session.Metadata.Analytics.TotalConflicts++

	m.emit(Event{
		Type:      EventConflictResolve,
		SessionID: st.session.ID,
		Payload:   ConflictPayload{Conflict: cloneConflict(conflict)},
	})
	if m.audit != nil {
		m.audit.RecordConflict(context.Background(), cloneConflict(conflict))
	}
}

// UpdateCursorPosition is presence metadata: never logged, never conflict
// checked, broadcast to everyone but the author. An absent participant is a
// no-op (leave races are routine at cursor frequency).
func (m *Manager) UpdateCursorPosition(sessionID, participantID string, cur CursorPosition) error {
	st := m.state(sessionID)
	if st == nil {
		return notFound("session", sessionID)
	}

	st.mu.Lock()
	defer st.mu.Unlock()

	if st.session.Status == SessionEnded {
		return notActive(sessionID, string(st.session.Status))
	}
	p, ok := st.participants[participantID]
	if !ok {
		return nil
	}

	now := m.now()
	p.Cursor = &cur
	p.LastActiveAt = now
	p.Status = PresenceActive
	st.session.LastActivityAt = now

	m.emit(Event{
		Type:         EventCursorMove,
		SessionID:    sessionID,
		ActorID:      participantID,
		ExcludeActor: true,
		Payload:      CursorPayload{ParticipantID: participantID, Cursor: cur},
	})
	if m.mirror != nil {
		m.mirror.MirrorCursor(context.Background(), sessionID, participantID, cur)
	}
	return nil
}

func (m *Manager) UpdateSelection(sessionID, participantID string, sel Selection) error {
	st := m.state(sessionID)
	if st == nil {
		return notFound("session", sessionID)
	}

	st.mu.Lock()
	defer st.mu.Unlock()

	if st.session.Status == SessionEnded {
		return notActive(sessionID, string(st.session.Status))
	}
	p, ok := st.participants[participantID]
	if !ok {
		return nil
	}

	now := m.now()
	p.Selection = &sel
	p.LastActiveAt = now
	p.Status = PresenceActive
	st.session.LastActivityAt = now

	m.emit(Event{
		Type:         EventSelectionChange,
		SessionID:    sessionID,
		ActorID:      participantID,
		ExcludeActor: true,
		Payload:      SelectionPayload{ParticipantID: participantID, Selection: sel},
	})
	if m.mirror != nil {
		m.mirror.MirrorSelection(context.Background(), sessionID, participantID, sel)
	}
	return nil
}

// Heartbeat refreshes a participant's activity clock without broadcasting.
func (m *Manager) Heartbeat(sessionID, participantID string) error {
	st := m.state(sessionID)
	if st == nil {
		return notFound("session", sessionID)
	}

	st.mu.Lock()
	defer st.mu.Unlock()

	if st.session.Status == SessionEnded {
		return notActive(sessionID, string(st.session.Status))
	}
	p, ok := st.participants[participantID]
	if !ok {
		return nil
	}
	now := m.now()
	p.LastActiveAt = now
	p.Status = PresenceActive
	st.session.LastActivityAt = now
	return nil
}
