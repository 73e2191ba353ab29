package collab

import "context"

// ResolveConflict settles a pending conflict with an explicit resolution
// payload. This is the manual path; automatic resolution is a UX
// responsiveness feature, not a correctness guarantee, and sessions that
// disable it land every conflict here.
func (m *Manager) ResolveConflict(sessionID, conflictID, actorID string, res Resolution, justification string) (ConflictResolution, error) {
	st := m.state(sessionID)
	if st == nil {
		return ConflictResolution{}, notFound("session", sessionID)
	}

	st.mu.Lock()
	defer st.mu.Unlock()

	if st.session.Status != SessionActive {
		return ConflictResolution{}, notActive(sessionID, string(st.session.Status))
	}
	actor, ok := st.participants[actorID]
	if !ok || !actor.Capabilities.CanModerate {
		return ConflictResolution{}, permissionDenied("resolving conflicts requires the moderate capability")
	}
	conflict, ok := st.conflictIndex[conflictID]
	if !ok {
		return ConflictResolution{}, notFound("conflict", conflictID)
	}
	if conflict.Status != ConflictPending {
		return ConflictResolution{}, invalidState("conflict is already " + string(conflict.Status))
	}
	if res == nil {
		return ConflictResolution{}, invalidState("a resolution payload is required")
	}

	if accept, ok := res.(AcceptOperation); ok {
		log, ok := st.logs[conflict.FileID]
		if !ok || log.find(accept.OperationID) == nil {
			return ConflictResolution{}, notFound("operation", accept.OperationID)
		}
		for _, opID := range conflict.OperationIDs {
			if opID == accept.OperationID {
				continue
			}
			if op := log.find(opID); op != nil {
				op.Superseded = true
				op.SupersededBy = conflict.ID
			}
		}
	}

	now := m.now()
	conflict.Strategy = StrategyManual
	conflict.Status = ConflictResolved
	conflict.Resolution = res
	conflict.Justification = justification
	conflict.ResolvedBy = actorID
	conflict.ResolvedAt = now
	actor.LastActiveAt = now
	st.session.LastActivityAt = now

	m.emit(Event{
		Type:      EventConflictResolve,
		SessionID: sessionID,
		ActorID:   actorID,
		Payload:   ConflictPayload{Conflict: cloneConflict(conflict)},
	})
	if m.audit != nil {
		m.audit.RecordConflict(context.Background(), cloneConflict(conflict))
	}
	return cloneConflict(conflict), nil
}

// EscalateConflict marks a pending conflict escalated; escalated is
// terminal, the compensating edits happen as new operations.
func (m *Manager) EscalateConflict(sessionID, conflictID, actorID, reason string) (ConflictResolution, error) {
	st := m.state(sessionID)
	if st == nil {
		return ConflictResolution{}, notFound("session", sessionID)
	}

	st.mu.Lock()
	defer st.mu.Unlock()

	if st.session.Status != SessionActive {
		return ConflictResolution{}, notActive(sessionID, string(st.session.Status))
	}
	actor, ok := st.participants[actorID]
	if !ok || !actor.Capabilities.CanModerate {
		return ConflictResolution{}, permissionDenied("escalating conflicts requires the moderate capability")
	}
	conflict, ok := st.conflictIndex[conflictID]
	if !ok {
		return ConflictResolution{}, notFound("conflict", conflictID)
	}
	if conflict.Status != ConflictPending {
		return ConflictResolution{}, invalidState("conflict is already " + string(conflict.Status))
	}

	now := m.now()
	conflict.Status = ConflictEscalated
	conflict.Strategy = StrategyDefer
	conflict.Justification = reason
	conflict.ResolvedBy = actorID
	conflict.ResolvedAt = now
	st.session.LastActivityAt = now

	m.emit(Event{
		Type:      EventConflictResolve,
		SessionID: sessionID,
		ActorID:   actorID,
		Payload:   ConflictPayload{Conflict: cloneConflict(conflict)},
	})
	if m.audit != nil {
		m.audit.RecordConflict(context.Background(), cloneConflict(conflict))
	}
	return cloneConflict(conflict), nil
}
