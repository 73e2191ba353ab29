package collab

import (
	"context"

	"coedit/api/internal/util"
)

func (m *Manager) AddComment(sessionID string, in CommentInput) (Comment, error) {
	st := m.state(sessionID)
	if st == nil {
		return Comment{}, notFound("session", sessionID)
	}

	st.mu.Lock()
	defer st.mu.Unlock()

	now := m.now()
	if m.expireLocked(st, now) || st.session.Status != SessionActive {
		return Comment{}, notActive(sessionID, string(st.session.Status))
	}
	author, ok := st.participants[in.AuthorID]
	if !ok {
		return Comment{}, permissionDenied("author is not a participant of this session")
	}
	if !author.Capabilities.CanComment {
		return Comment{}, permissionDenied("role " + string(author.Role) + " cannot comment")
	}
	if in.Body == "" {
		return Comment{}, invalidState("comment body must not be empty")
	}
	kind := in.Kind
	if kind == "" {
		kind = CommentGeneral
	}
	if !kind.valid() {
		return Comment{}, invalidState("unknown comment kind " + string(kind))
	}
	priority := in.Priority
	if priority == "" {
		priority = "normal"
	}

	c := &Comment{
		ID:        util.NewID("cmt"),
		SessionID: sessionID,
		FileID:    in.FileID,
		Anchor:    in.Anchor,
		AuthorID:  in.AuthorID,
		Body:      in.Body,
		Kind:      kind,
		Status:    CommentOpen,
		Priority:  priority,
		Tags:      append([]string(nil), in.Tags...),
		Replies:   []Reply{},
		Reactions: []Reaction{},
		Mentions:  append([]string(nil), in.Mentions...),
		CreatedAt: now,
		UpdatedAt: now,
	}
	st.comments = append(st.comments, c)
	st.commentIndex[c.ID] = c
	author.LastActiveAt = now
	st.session.LastActivityAt = now
	st.session.Metadata.Analytics.TotalComments++

	m.emit(Event{
		Type:         EventCommentAdd,
		SessionID:    sessionID,
		ActorID:      in.AuthorID,
		ExcludeActor: true,
		Payload:      CommentPayload{Comment: cloneComment(c)},
	})
	if m.audit != nil {
		m.audit.RecordComment(context.Background(), cloneComment(c))
	}
	// Mentioned users need not be present; whether they are reachable is the
	// notifier's concern.
	if m.notifier != nil {
		for _, mentioned := range c.Mentions {
			m.notifier.NotifyMention(context.Background(), st.session, cloneComment(c), mentioned)
		}
	}
	return cloneComment(c), nil
}

func (m *Manager) ReplyToComment(sessionID, commentID, authorID, body string) (Comment, error) {
	st := m.state(sessionID)
	if st == nil {
		return Comment{}, notFound("session", sessionID)
	}

	st.mu.Lock()
	defer st.mu.Unlock()

	if st.session.Status != SessionActive {
		return Comment{}, notActive(sessionID, string(st.session.Status))
	}
	author, ok := st.participants[authorID]
	if !ok || !author.Capabilities.CanComment {
		return Comment{}, permissionDenied("replying requires the comment capability")
	}
	c, ok := st.commentIndex[commentID]
	if !ok {
		return Comment{}, notFound("comment", commentID)
	}
	if c.Status == CommentDismissed {
		return Comment{}, invalidState("cannot reply to a dismissed comment")
	}
	if body == "" {
		return Comment{}, invalidState("reply body must not be empty")
	}

	now := m.now()
	c.Replies = append(c.Replies, Reply{
		ID:        util.NewID("rpl"),
		AuthorID:  authorID,
		Body:      body,
		CreatedAt: now,
	})
	c.UpdatedAt = now
	author.LastActiveAt = now
	st.session.LastActivityAt = now

	m.emit(Event{
		Type:         EventCommentAdd,
		SessionID:    sessionID,
		ActorID:      authorID,
		ExcludeActor: true,
		Payload:      CommentPayload{Comment: cloneComment(c)},
	})
	if m.audit != nil {
		m.audit.RecordComment(context.Background(), cloneComment(c))
	}
	return cloneComment(c), nil
}

// AddReaction records a reaction once per participant/emoji pair; repeats
// are no-ops with no broadcast.
func (m *Manager) AddReaction(sessionID, commentID, participantID, emoji string) (Comment, error) {
	st := m.state(sessionID)
	if st == nil {
		return Comment{}, notFound("session", sessionID)
	}

	st.mu.Lock()
	defer st.mu.Unlock()

	if st.session.Status != SessionActive {
		return Comment{}, notActive(sessionID, string(st.session.Status))
	}
	actor, ok := st.participants[participantID]
	if !ok || !actor.Capabilities.CanComment {
		return Comment{}, permissionDenied("reacting requires the comment capability")
	}
	c, ok := st.commentIndex[commentID]
	if !ok {
		return Comment{}, notFound("comment", commentID)
	}
	if emoji == "" {
		return Comment{}, invalidState("reaction emoji must not be empty")
	}
	for _, r := range c.Reactions {
		if r.ParticipantID == participantID && r.Emoji == emoji {
			return cloneComment(c), nil
		}
	}

	now := m.now()
	c.Reactions = append(c.Reactions, Reaction{
		ParticipantID: participantID,
		Emoji:         emoji,
		CreatedAt:     now,
	})
	c.UpdatedAt = now
	actor.LastActiveAt = now
	st.session.LastActivityAt = now

	m.emit(Event{
		Type:         EventCommentAdd,
		SessionID:    sessionID,
		ActorID:      participantID,
		ExcludeActor: true,
		Payload:      CommentPayload{Comment: cloneComment(c)},
	})
	if m.audit != nil {
		m.audit.RecordComment(context.Background(), cloneComment(c))
	}
	return cloneComment(c), nil
}

// ResolveComment is idempotent: resolving an already-resolved comment
// succeeds without mutation or broadcast, so duplicate client retries are
// harmless.
func (m *Manager) ResolveComment(sessionID, commentID, actorID string) (Comment, error) {
	st := m.state(sessionID)
	if st == nil {
		return Comment{}, notFound("session", sessionID)
	}

	st.mu.Lock()
	defer st.mu.Unlock()

	if st.session.Status != SessionActive {
		return Comment{}, notActive(sessionID, string(st.session.Status))
	}
	actor, ok := st.participants[actorID]
	if !ok || !actor.Capabilities.CanComment {
		return Comment{}, permissionDenied("resolving requires the comment capability")
	}
	c, ok := st.commentIndex[commentID]
	if !ok {
		return Comment{}, notFound("comment", commentID)
	}
	if c.Status == CommentResolved {
		return cloneComment(c), nil
	}
	if c.Status == CommentDismissed {
		return Comment{}, invalidState("cannot resolve a dismissed comment")
	}

	now := m.now()
	c.Status = CommentResolved
	c.ResolvedBy = actorID
	c.ResolvedAt = now
	c.UpdatedAt = now
	actor.LastActiveAt = now
	st.session.LastActivityAt = now

	m.emit(Event{
		Type:         EventCommentResolve,
		SessionID:    sessionID,
		ActorID:      actorID,
		ExcludeActor: true,
		Payload:      CommentPayload{Comment: cloneComment(c)},
	})
	if m.audit != nil {
		m.audit.RecordComment(context.Background(), cloneComment(c))
	}
	return cloneComment(c), nil
}

// DismissComment transitions a comment to dismissed; comments are never
// hard-deleted. Dismissing twice is a no-op.
func (m *Manager) DismissComment(sessionID, commentID, actorID string) (Comment, error) {
	st := m.state(sessionID)
	if st == nil {
		return Comment{}, notFound("session", sessionID)
	}

	st.mu.Lock()
	defer st.mu.Unlock()

	if st.session.Status != SessionActive {
		return Comment{}, notActive(sessionID, string(st.session.Status))
	}
	actor, ok := st.participants[actorID]
	if !ok || !actor.Capabilities.CanComment {
		return Comment{}, permissionDenied("dismissing requires the comment capability")
	}
	c, ok := st.commentIndex[commentID]
	if !ok {
		return Comment{}, notFound("comment", commentID)
	}
	if c.Status == CommentDismissed {
		return cloneComment(c), nil
	}

	now := m.now()
	c.Status = CommentDismissed
	c.UpdatedAt = now
	actor.LastActiveAt = now
	st.session.LastActivityAt = now

	m.emit(Event{
		Type:         EventCommentResolve,
		SessionID:    sessionID,
		ActorID:      actorID,
		ExcludeActor: true,
		Payload:      CommentPayload{Comment: cloneComment(c)},
	})
	if m.audit != nil {
		m.audit.RecordComment(context.Background(), cloneComment(c))
	}
	return cloneComment(c), nil
}
