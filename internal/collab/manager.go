package collab

import (
	"context"
	"sort"
	"sync"
	"time"

	"coedit/api/internal/invite"
	"coedit/api/internal/rbac"
	"coedit/api/internal/util"
)

// Auditor is the optional write-through sink for the durable audit trail.
// Implementations must not block; they queue or spawn internally and report
// their own failures. The core never reads anything back.
type Auditor interface {
	RecordOperation(context.Context, TextOperation)
	RecordComment(context.Context, Comment)
	RecordConflict(context.Context, ConflictResolution)
	RecordSessionEnd(context.Context, Transcript)
}

// PresenceMirror receives cursor/selection/heartbeat state for consumers
// outside this process. Fire-and-forget, same contract as Auditor.
type PresenceMirror interface {
	MirrorCursor(ctx context.Context, sessionID, participantID string, cur CursorPosition)
	MirrorSelection(ctx context.Context, sessionID, participantID string, sel Selection)
	Clear(ctx context.Context, sessionID, participantID string)
}

// Notifier delivers mention notifications. The mention list is core state;
// delivery (and whether the mentioned user is reachable) is the notifier's
// concern.
type Notifier interface {
	NotifyMention(ctx context.Context, session Session, comment Comment, mentionedID string)
}

type Config struct {
	IdleTimeout          time.Duration
	ConflictWindow       time.Duration
	ConflictLineRadius   int
	ConflictColumnRadius int
	DisableAutoResolve   bool
}

func (c Config) withDefaults() Config {
	if c.IdleTimeout <= 0 {
		c.IdleTimeout = 30 * time.Minute
	}
	if c.ConflictWindow <= 0 {
		c.ConflictWindow = 5 * time.Second
	}
	if c.ConflictLineRadius <= 0 {
		c.ConflictLineRadius = 1
	}
	if c.ConflictColumnRadius <= 0 {
		c.ConflictColumnRadius = 10
	}
	return c
}

// sessionState is the exclusively-owned runtime state for one session. All
// mutation happens under mu, which is the per-session serialization point:
// no two mutations to the same session ever interleave mid-step.
type sessionState struct {
	mu            sync.Mutex
	session       Session
	participants  map[string]*Participant
	logs          map[string]*fileLog
	fileOrder     []string
	comments      []*Comment
	commentIndex  map[string]*Comment
	conflicts     []*ConflictResolution
	conflictIndex map[string]*ConflictResolution
}

func (st *sessionState) logFor(fileID string) *fileLog {
	if l, ok := st.logs[fileID]; ok {
		return l
	}
	l := &fileLog{}
	st.logs[fileID] = l
	st.fileOrder = append(st.fileOrder, fileID)
	return l
}

// Manager owns the session registry and orchestrates every mutation. It is
// an explicit instance, not a process-wide singleton: independent managers
// (e.g. per shard) never share state.
type Manager struct {
	cfg Config

	mu       sync.RWMutex
	sessions map[string]*sessionState

	sinks    []Sink
	audit    Auditor
	mirror   PresenceMirror
	notifier Notifier

	now func() time.Time
}

func NewManager(cfg Config) *Manager {
	return &Manager{
		cfg:      cfg.withDefaults(),
		sessions: make(map[string]*sessionState),
		now:      time.Now,
	}
}

// AttachSink registers a broadcast sink. Sinks receive every emitted event
// synchronously, in attach order.
func (m *Manager) AttachSink(s Sink) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.sinks = append(m.sinks, s)
}

func (m *Manager) SetAuditor(a Auditor)        { m.audit = a }
func (m *Manager) SetPresenceMirror(p PresenceMirror) { m.mirror = p }
func (m *Manager) SetNotifier(n Notifier)      { m.notifier = n }

func (m *Manager) emit(ev Event) {
	if ev.Timestamp.IsZero() {
		ev.Timestamp = m.now()
	}
	m.mu.RLock()
	sinks := m.sinks
	m.mu.RUnlock()
	for _, s := range sinks {
		s.Deliver(ev)
	}
}

func (m *Manager) state(sessionID string) *sessionState {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.sessions[sessionID]
}

var defaultAllowedRoles = []rbac.Role{rbac.RoleEditor, rbac.RoleReviewer, rbac.RoleObserver, rbac.RoleGuest}

func (m *Manager) CreateSession(spec CreateSessionSpec) (Session, error) {
	if spec.MaxParticipants <= 0 {
		return Session{}, invalidState("maxParticipants must be positive")
	}
	if spec.HostUserID == "" {
		return Session{}, invalidState("hostUserId is required")
	}

	allowed := spec.AllowedRoles
	if allowed == nil {
		allowed = defaultAllowedRoles
	}
	if len(allowed) == 0 {
		return Session{}, invalidState("allowedRoles must not be empty")
	}
	for _, role := range allowed {
		if rbac.Normalize(string(role)) != role || role == rbac.RoleHost {
			return Session{}, invalidState("invalid role in allowedRoles: " + string(role))
		}
	}

	var codeHash string
	if spec.InviteCode != "" {
		hash, err := invite.Hash(spec.InviteCode)
		if err != nil {
			return Session{}, err
		}
		codeHash = hash
	}

	now := m.now()
	sess := Session{
		ID:          util.NewID("sess"),
		Name:        spec.Name,
		WorkspaceID: spec.WorkspaceID,
		HostUserID:  spec.HostUserID,
		Status:      SessionActive,
		Type:        spec.Type,
		Policy: SessionPolicy{
			MaxParticipants: spec.MaxParticipants,
			AllowedRoles:    allowed,
			Public:          spec.Public,
			RequireApproval: spec.RequireApproval,
			InviteCodeHash:  codeHash,
			ExpiresAt:       spec.ExpiresAt,
		},
		Metadata: SessionMetadata{
			Language: spec.Language,
			Tags:     spec.Tags,
		},
		CreatedAt:      now,
		LastActivityAt: now,
	}

	st := &sessionState{
		session:       sess,
		participants:  make(map[string]*Participant),
		logs:          make(map[string]*fileLog),
		commentIndex:  make(map[string]*Comment),
		conflictIndex: make(map[string]*ConflictResolution),
	}

	m.mu.Lock()
	m.sessions[sess.ID] = st
	m.mu.Unlock()

	return sess, nil
}

func (m *Manager) JoinSession(sessionID string, identity Identity, opts JoinOptions) (Participant, error) {
	st := m.state(sessionID)
	if st == nil {
		return Participant{}, notFound("session", sessionID)
	}

	st.mu.Lock()
	defer st.mu.Unlock()

	now := m.now()
	if m.expireLocked(st, now) {
		return Participant{}, notActive(sessionID, string(st.session.Status))
	}
	if st.session.Status != SessionActive {
		return Participant{}, notActive(sessionID, string(st.session.Status))
	}

	if existing, ok := st.participants[identity.UserID]; ok {
		// Rejoin: refresh the delivery handle, no broadcast.
		existing.ConnectionID = opts.ConnectionID
		existing.Status = PresenceActive
		existing.LastActiveAt = now
		return cloneParticipant(existing), nil
	}

	if len(st.participants) >= st.session.Policy.MaxParticipants {
		return Participant{}, capacityExceeded(sessionID, st.session.Policy.MaxParticipants)
	}

	isHostIdentity := identity.UserID == st.session.HostUserID
	if !st.session.Policy.Public && st.session.Policy.InviteCodeHash != "" && !isHostIdentity {
		if !invite.Verify(st.session.Policy.InviteCodeHash, opts.InviteCode) {
			return Participant{}, permissionDenied("invite code required")
		}
	}

	role, err := m.admissionRole(st, identity, opts)
	if err != nil {
		return Participant{}, err
	}

	p := &Participant{
		ID:           identity.UserID,
		DisplayName:  identity.DisplayName,
		AvatarURL:    identity.AvatarURL,
		Role:         role,
		Capabilities: rbac.Capabilities(role),
		Status:       PresenceActive,
		JoinedAt:     now,
		LastActiveAt: now,
		ConnectionID: opts.ConnectionID,
	}
	st.participants[p.ID] = p
	st.session.LastActivityAt = now
	if n := len(st.participants); n > st.session.Metadata.Analytics.PeakParticipants {
		st.session.Metadata.Analytics.PeakParticipants = n
	}

	m.emit(Event{
		Type:         EventUserJoin,
		SessionID:    sessionID,
		ActorID:      p.ID,
		ExcludeActor: true,
		Payload:      JoinPayload{Participant: cloneParticipant(p)},
	})
	return cloneParticipant(p), nil
}

// admissionRole decides the role a joining identity receives. The session's
// host id claims the host role only while no host is present; approval-gated
// sessions admit everyone else as guest until the host promotes them.
func (m *Manager) admissionRole(st *sessionState, identity Identity, opts JoinOptions) (rbac.Role, error) {
	if identity.UserID == st.session.HostUserID && !hostPresent(st) {
		return rbac.RoleHost, nil
	}
	if st.session.Policy.RequireApproval {
		return rbac.RoleGuest, nil
	}
	requested := rbac.Normalize(opts.RequestedRole)
	if requested == rbac.RoleHost {
		requested = rbac.RoleEditor
	}
	if !roleAllowed(st.session.Policy.AllowedRoles, requested) {
		return "", permissionDenied("role " + string(requested) + " not allowed in this session")
	}
	return requested, nil
}

func hostPresent(st *sessionState) bool {
	for _, p := range st.participants {
		if p.Role == rbac.RoleHost {
			return true
		}
	}
	return false
}

func roleAllowed(allowed []rbac.Role, role rbac.Role) bool {
	for _, r := range allowed {
		if r == role {
			return true
		}
	}
	return false
}

// LeaveSession is idempotent: unknown sessions and absent participants are
// treated as success, because leave is routinely retried by clients.
func (m *Manager) LeaveSession(sessionID, participantID string) error {
	st := m.state(sessionID)
	if st == nil {
		return nil
	}

	st.mu.Lock()
	defer st.mu.Unlock()

	if st.session.Status == SessionEnded {
		return nil
	}
	p, ok := st.participants[participantID]
	if !ok {
		return nil
	}

	now := m.now()
	delete(st.participants, participantID)
	st.session.LastActivityAt = now
	if m.mirror != nil {
		m.mirror.Clear(context.Background(), sessionID, participantID)
	}
	m.emit(Event{
		Type:         EventUserLeave,
		SessionID:    sessionID,
		ActorID:      participantID,
		ExcludeActor: true,
		Payload:      LeavePayload{ParticipantID: participantID},
	})

	if p.Role == rbac.RoleHost && len(st.participants) > 0 {
		successor := earliestParticipant(st)
		m.transferHostLocked(st, successor)
	}
	return nil
}

// earliestParticipant picks the deterministic host successor: earliest join
// time, participant id as tie-break.
func earliestParticipant(st *sessionState) *Participant {
	var pick *Participant
	for _, p := range st.participants {
		if pick == nil || p.JoinedAt.Before(pick.JoinedAt) ||
			(p.JoinedAt.Equal(pick.JoinedAt) && p.ID < pick.ID) {
			pick = p
		}
	}
	return pick
}

func (m *Manager) transferHostLocked(st *sessionState, target *Participant) {
	for _, p := range st.participants {
		if p.Role == rbac.RoleHost {
			p.Role = rbac.RoleEditor
			p.Capabilities = rbac.Capabilities(rbac.RoleEditor)
		}
	}
	target.Role = rbac.RoleHost
	target.Capabilities = rbac.Capabilities(rbac.RoleHost)
	st.session.HostUserID = target.ID
	m.emit(Event{
		Type:      EventSessionControl,
		SessionID: st.session.ID,
		Payload:   ControlPayload{Action: "host_transfer", TargetID: target.ID},
	})
}

// TransferHost moves the host role to a present participant.
func (m *Manager) TransferHost(sessionID, actorID, targetID string) error {
	st := m.state(sessionID)
	if st == nil {
		return notFound("session", sessionID)
	}

	st.mu.Lock()
	defer st.mu.Unlock()

	if st.session.Status != SessionActive {
		return notActive(sessionID, string(st.session.Status))
	}
	actor, ok := st.participants[actorID]
	if !ok || !actor.Capabilities.CanModerate {
		return permissionDenied("host transfer requires the moderate capability")
	}
	target, ok := st.participants[targetID]
	if !ok {
		return invalidState("cannot transfer host to a participant who is not present")
	}
	if target.ID == actor.ID {
		return nil
	}
	m.transferHostLocked(st, target)
	return nil
}

// ChangeRole updates a present participant's role (and resets their
// capability set to the role default). The host role moves only via
// TransferHost, preserving host uniqueness.
func (m *Manager) ChangeRole(sessionID, actorID, targetID, role string) error {
	st := m.state(sessionID)
	if st == nil {
		return notFound("session", sessionID)
	}

	st.mu.Lock()
	defer st.mu.Unlock()

	if st.session.Status != SessionActive {
		return notActive(sessionID, string(st.session.Status))
	}
	actor, ok := st.participants[actorID]
	if !ok || !actor.Capabilities.CanModerate {
		return permissionDenied("role change requires the moderate capability")
	}
	target, ok := st.participants[targetID]
	if !ok {
		return invalidState("participant " + targetID + " is not present")
	}
	newRole := rbac.Normalize(role)
	if newRole == rbac.RoleHost || target.Role == rbac.RoleHost {
		return invalidState("the host role moves via host transfer")
	}
	target.Role = newRole
	target.Capabilities = rbac.Capabilities(newRole)
	m.emit(Event{
		Type:      EventSessionControl,
		SessionID: sessionID,
		ActorID:   actorID,
		Payload:   ControlPayload{Action: "role_change", TargetID: targetID, Role: string(newRole)},
	})
	return nil
}

func (m *Manager) PauseSession(sessionID, actorID string) error {
	return m.setStatus(sessionID, actorID, SessionActive, SessionPaused, "session_pause")
}

func (m *Manager) ResumeSession(sessionID, actorID string) error {
	return m.setStatus(sessionID, actorID, SessionPaused, SessionActive, "session_resume")
}

func (m *Manager) setStatus(sessionID, actorID string, from, to SessionStatus, action string) error {
	st := m.state(sessionID)
	if st == nil {
		return notFound("session", sessionID)
	}

	st.mu.Lock()
	defer st.mu.Unlock()

	actor, ok := st.participants[actorID]
	if !ok || !actor.Capabilities.CanModerate {
		return permissionDenied(action + " requires the moderate capability")
	}
	if st.session.Status != from {
		return invalidState("session is " + string(st.session.Status))
	}
	st.session.Status = to
	st.session.LastActivityAt = m.now()
	m.emit(Event{
		Type:      EventSessionControl,
		SessionID: sessionID,
		ActorID:   actorID,
		Payload:   ControlPayload{Action: action, SessionStatus: string(to)},
	})
	return nil
}

// EndSession transitions the session to ended, snapshots the transcript for
// the audit collaborators and releases the in-memory collections. actorID ""
// is the system (sweeper). Ending an already-ended session is a no-op.
func (m *Manager) EndSession(sessionID, actorID string) error {
	st := m.state(sessionID)
	if st == nil {
		return notFound("session", sessionID)
	}

	st.mu.Lock()
	defer st.mu.Unlock()

	if st.session.Status == SessionEnded {
		return nil
	}
	if actorID != "" {
		actor, ok := st.participants[actorID]
		if !ok || !actor.Capabilities.CanModerate {
			return permissionDenied("ending a session requires the moderate capability")
		}
	}
	m.endLocked(st, actorID)
	return nil
}

func (m *Manager) endLocked(st *sessionState, actorID string) {
	now := m.now()
	st.session.Status = SessionEnded
	st.session.EndedAt = now
	st.session.LastActivityAt = now

	transcript := Transcript{
		Session:      st.session,
		Participants: participantsLocked(st),
		Operations:   operationsLocked(st, "", 0),
		Comments:     commentsLocked(st),
		Conflicts:    conflictsLocked(st),
		EndedAt:      now,
	}

	m.emit(Event{
		Type:      EventSessionControl,
		SessionID: st.session.ID,
		ActorID:   actorID,
		Payload:   ControlPayload{Action: "session_end", SessionStatus: string(SessionEnded)},
	})
	if m.audit != nil {
		m.audit.RecordSessionEnd(context.Background(), transcript)
	}

	// Release per-session collections; the session record itself is retained
	// so late callers get NotActive rather than a vanished id.
	st.participants = make(map[string]*Participant)
	st.logs = make(map[string]*fileLog)
	st.fileOrder = nil
	st.comments = nil
	st.commentIndex = make(map[string]*Comment)
	st.conflicts = nil
	st.conflictIndex = make(map[string]*ConflictResolution)
}

// expireLocked ends a session whose policy expiry has passed. Reports
// whether the session is (now) ended.
func (m *Manager) expireLocked(st *sessionState, now time.Time) bool {
	if st.session.Status == SessionEnded {
		return true
	}
	exp := st.session.Policy.ExpiresAt
	if !exp.IsZero() && now.After(exp) {
		m.endLocked(st, "")
		return true
	}
	return false
}

// SweepIdle ends sessions with zero participants whose last activity exceeds
// the idle timeout, plus sessions past their policy expiry. Returns the
// number of sessions ended.
func (m *Manager) SweepIdle() int {
	m.mu.RLock()
	states := make([]*sessionState, 0, len(m.sessions))
	for _, st := range m.sessions {
		states = append(states, st)
	}
	m.mu.RUnlock()

	ended := 0
	now := m.now()
	for _, st := range states {
		st.mu.Lock()
		if st.session.Status == SessionEnded {
			st.mu.Unlock()
			continue
		}
		if m.expireLocked(st, now) {
			ended++
			st.mu.Unlock()
			continue
		}
		if len(st.participants) == 0 && now.Sub(st.session.LastActivityAt) > m.cfg.IdleTimeout {
			m.endLocked(st, "")
			ended++
		}
		st.mu.Unlock()
	}
	return ended
}

// StartSweeper runs the idle sweep on a ticker until ctx is done.
func (m *Manager) StartSweeper(ctx context.Context, interval time.Duration) {
	if interval <= 0 {
		interval = time.Minute
	}
	go func() {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				m.SweepIdle()
			}
		}
	}()
}

// ---- read accessors ----

func (m *Manager) GetSession(sessionID string) (Session, error) {
	st := m.state(sessionID)
	if st == nil {
		return Session{}, notFound("session", sessionID)
	}
	st.mu.Lock()
	defer st.mu.Unlock()
	return st.session, nil
}

func (m *Manager) ListSessions() []Session {
	m.mu.RLock()
	states := make([]*sessionState, 0, len(m.sessions))
	for _, st := range m.sessions {
		states = append(states, st)
	}
	m.mu.RUnlock()

	out := make([]Session, 0, len(states))
	for _, st := range states {
		st.mu.Lock()
		out = append(out, st.session)
		st.mu.Unlock()
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	return out
}

func (m *Manager) Participants(sessionID string) ([]Participant, error) {
	st := m.state(sessionID)
	if st == nil {
		return nil, notFound("session", sessionID)
	}
	st.mu.Lock()
	defer st.mu.Unlock()
	return participantsLocked(st), nil
}

func participantsLocked(st *sessionState) []Participant {
	out := make([]Participant, 0, len(st.participants))
	for _, p := range st.participants {
		out = append(out, cloneParticipant(p))
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].JoinedAt.Equal(out[j].JoinedAt) {
			return out[i].JoinedAt.Before(out[j].JoinedAt)
		}
		return out[i].ID < out[j].ID
	})
	return out
}

// Operations returns the committed log for one file (or all files when
// fileID is empty), oldest first. limit > 0 keeps only the newest entries.
func (m *Manager) Operations(sessionID, fileID string, limit int) ([]TextOperation, error) {
	st := m.state(sessionID)
	if st == nil {
		return nil, notFound("session", sessionID)
	}
	st.mu.Lock()
	defer st.mu.Unlock()
	return operationsLocked(st, fileID, limit), nil
}

func operationsLocked(st *sessionState, fileID string, limit int) []TextOperation {
	var out []TextOperation
	if fileID != "" {
		if l, ok := st.logs[fileID]; ok {
			out = l.snapshot()
		}
	} else {
		for _, fid := range st.fileOrder {
			out = append(out, st.logs[fid].snapshot()...)
		}
	}
	if limit > 0 && limit < len(out) {
		out = out[len(out)-limit:]
	}
	if out == nil {
		out = []TextOperation{}
	}
	return out
}

func (m *Manager) Comments(sessionID string) ([]Comment, error) {
	st := m.state(sessionID)
	if st == nil {
		return nil, notFound("session", sessionID)
	}
	st.mu.Lock()
	defer st.mu.Unlock()
	return commentsLocked(st), nil
}

func commentsLocked(st *sessionState) []Comment {
	out := make([]Comment, 0, len(st.comments))
	for _, c := range st.comments {
		out = append(out, cloneComment(c))
	}
	return out
}

func (m *Manager) GetComment(sessionID, commentID string) (Comment, error) {
	st := m.state(sessionID)
	if st == nil {
		return Comment{}, notFound("session", sessionID)
	}
	st.mu.Lock()
	defer st.mu.Unlock()
	c, ok := st.commentIndex[commentID]
	if !ok {
		return Comment{}, notFound("comment", commentID)
	}
	return cloneComment(c), nil
}

func (m *Manager) Conflicts(sessionID string) ([]ConflictResolution, error) {
	st := m.state(sessionID)
	if st == nil {
		return nil, notFound("session", sessionID)
	}
	st.mu.Lock()
	defer st.mu.Unlock()
	return conflictsLocked(st), nil
}

func conflictsLocked(st *sessionState) []ConflictResolution {
	out := make([]ConflictResolution, 0, len(st.conflicts))
	for _, c := range st.conflicts {
		out = append(out, cloneConflict(c))
	}
	return out
}

func (m *Manager) GetConflict(sessionID, conflictID string) (ConflictResolution, error) {
	st := m.state(sessionID)
	if st == nil {
		return ConflictResolution{}, notFound("session", sessionID)
	}
	st.mu.Lock()
	defer st.mu.Unlock()
	c, ok := st.conflictIndex[conflictID]
	if !ok {
		return ConflictResolution{}, notFound("conflict", conflictID)
	}
	return cloneConflict(c), nil
}

// ---- snapshot helpers ----

func cloneParticipant(p *Participant) Participant {
	out := *p
	if p.Cursor != nil {
		cur := *p.Cursor
		out.Cursor = &cur
	}
	if p.Selection != nil {
		sel := *p.Selection
		out.Selection = &sel
	}
	return out
}

func cloneComment(c *Comment) Comment {
	out := *c
	out.Tags = append([]string(nil), c.Tags...)
	out.Replies = append([]Reply(nil), c.Replies...)
	out.Reactions = append([]Reaction(nil), c.Reactions...)
	out.Mentions = append([]string(nil), c.Mentions...)
	if out.Replies == nil {
		out.Replies = []Reply{}
	}
	if out.Reactions == nil {
		out.Reactions = []Reaction{}
	}
	return out
}

func cloneConflict(c *ConflictResolution) ConflictResolution {
	out := *c
	out.OperationIDs = append([]string(nil), c.OperationIDs...)
	out.ParticipantIDs = append([]string(nil), c.ParticipantIDs...)
	return out
}
