package collab

import (
	"context"
	"sync"
	"testing"
)

type fakeNotifier struct {
	mu       sync.Mutex
	mentions []string
}

func (f *fakeNotifier) NotifyMention(_ context.Context, _ Session, _ Comment, mentionedID string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.mentions = append(f.mentions, mentionedID)
}

func commentingSession(t *testing.T) (*Manager, *recordSink, string) {
	t.Helper()
	m := NewManager(Config{})
	m.now = newFakeClock().Now
	sink := &recordSink{}
	m.AttachSink(sink)
	sess := mustCreate(t, m, "alice", 8)
	mustJoin(t, m, sess.ID, "alice", "")
	mustJoin(t, m, sess.ID, "rita", "reviewer")
	return m, sink, sess.ID
}

func TestAddCommentAndBroadcast(t *testing.T) {
	m, sink, sessID := commentingSession(t)

	c, err := m.AddComment(sessID, CommentInput{
		AuthorID: "rita",
		FileID:   "main.go",
		Anchor:   Position{Line: 12, Column: 0},
		Body:     "this branch is unreachable",
		Kind:     CommentIssue,
		Priority: "high",
	})
	if err != nil {
		t.Fatalf("AddComment: %v", err)
	}
	if c.Status != CommentOpen || c.Kind != CommentIssue {
		t.Fatalf("comment state: %+v", c)
	}

	var adds int
	for _, ev := range sink.all() {
		if ev.Type == EventCommentAdd {
			adds++
			if !ev.ExcludeActor || ev.ActorID != "rita" {
				t.Fatalf("comment broadcast misattributed: %+v", ev)
			}
		}
	}
	if adds != 1 {
		t.Fatalf("comment_add broadcasts = %d, want 1", adds)
	}
}

func TestAddCommentValidation(t *testing.T) {
	m, _, sessID := commentingSession(t)

	if _, err := m.AddComment(sessID, CommentInput{AuthorID: "rita", FileID: "main.go"}); !IsCode(err, "INVALID_STATE") {
		t.Fatalf("empty body: got %v, want INVALID_STATE", err)
	}
	if _, err := m.AddComment(sessID, CommentInput{
		AuthorID: "rita", FileID: "main.go", Body: "x", Kind: CommentKind("rant"),
	}); !IsCode(err, "INVALID_STATE") {
		t.Fatalf("bad kind: got %v, want INVALID_STATE", err)
	}
	if _, err := m.AddComment(sessID, CommentInput{
		AuthorID: "stranger", FileID: "main.go", Body: "x",
	}); !IsCode(err, "PERMISSION_DENIED") {
		t.Fatalf("non-participant: got %v, want PERMISSION_DENIED", err)
	}
}

func TestObserverCannotComment(t *testing.T) {
	m, _, sessID := commentingSession(t)
	mustJoin(t, m, sessID, "olga", "observer")

	_, err := m.AddComment(sessID, CommentInput{AuthorID: "olga", FileID: "main.go", Body: "hi"})
	if !IsCode(err, "PERMISSION_DENIED") {
		t.Fatalf("got %v, want PERMISSION_DENIED", err)
	}
}

func TestMentionsNotifyAbsentUsers(t *testing.T) {
	m, _, sessID := commentingSession(t)
	notifier := &fakeNotifier{}
	m.SetNotifier(notifier)

	// dave is mentioned but not in the session.
	c, err := m.AddComment(sessID, CommentInput{
		AuthorID: "rita",
		FileID:   "main.go",
		Body:     "needs dave's sign-off",
		Mentions: []string{"dave", "alice"},
	})
	if err != nil {
		t.Fatalf("AddComment: %v", err)
	}

	notifier.mu.Lock()
	got := append([]string(nil), notifier.mentions...)
	notifier.mu.Unlock()
	if len(got) != 2 || got[0] != "dave" || got[1] != "alice" {
		t.Fatalf("notified = %v, want [dave alice]", got)
	}

	stored, err := m.GetComment(sessID, c.ID)
	if err != nil {
		t.Fatalf("GetComment: %v", err)
	}
	if len(stored.Mentions) != 2 {
		t.Fatalf("mentions persisted = %v", stored.Mentions)
	}
}

func TestReplyAndReactionFlow(t *testing.T) {
	m, _, sessID := commentingSession(t)

	c, err := m.AddComment(sessID, CommentInput{AuthorID: "rita", FileID: "main.go", Body: "typo"})
	if err != nil {
		t.Fatalf("AddComment: %v", err)
	}

	withReply, err := m.ReplyToComment(sessID, c.ID, "alice", "fixed, thanks")
	if err != nil {
		t.Fatalf("ReplyToComment: %v", err)
	}
	if len(withReply.Replies) != 1 || withReply.Replies[0].AuthorID != "alice" {
		t.Fatalf("replies: %+v", withReply.Replies)
	}

	withReaction, err := m.AddReaction(sessID, c.ID, "alice", "👍")
	if err != nil {
		t.Fatalf("AddReaction: %v", err)
	}
	if len(withReaction.Reactions) != 1 {
		t.Fatalf("reactions: %+v", withReaction.Reactions)
	}

	// Same participant, same emoji: no duplicate.
	again, err := m.AddReaction(sessID, c.ID, "alice", "👍")
	if err != nil {
		t.Fatalf("duplicate AddReaction: %v", err)
	}
	if len(again.Reactions) != 1 {
		t.Fatalf("duplicate reaction stored: %+v", again.Reactions)
	}
}

func TestResolveCommentIsIdempotent(t *testing.T) {
	m, sink, sessID := commentingSession(t)

	c, _ := m.AddComment(sessID, CommentInput{AuthorID: "rita", FileID: "main.go", Body: "check this"})
	resolved, err := m.ResolveComment(sessID, c.ID, "alice")
	if err != nil {
		t.Fatalf("ResolveComment: %v", err)
	}
	if resolved.Status != CommentResolved || resolved.ResolvedBy != "alice" {
		t.Fatalf("resolved state: %+v", resolved)
	}

	before := sink.count()
	again, err := m.ResolveComment(sessID, c.ID, "rita")
	if err != nil {
		t.Fatalf("second resolve: %v", err)
	}
	if again.ResolvedBy != "alice" {
		t.Fatalf("second resolve rewrote resolver to %q", again.ResolvedBy)
	}
	if sink.count() != before {
		t.Fatal("second resolve broadcast again")
	}
}

func TestDismissedCommentRejectsReplies(t *testing.T) {
	m, _, sessID := commentingSession(t)

	c, _ := m.AddComment(sessID, CommentInput{AuthorID: "rita", FileID: "main.go", Body: "off topic"})
	if _, err := m.DismissComment(sessID, c.ID, "alice"); err != nil {
		t.Fatalf("DismissComment: %v", err)
	}

	if _, err := m.ReplyToComment(sessID, c.ID, "alice", "still here?"); !IsCode(err, "INVALID_STATE") {
		t.Fatalf("reply to dismissed: got %v, want INVALID_STATE", err)
	}
	if _, err := m.ResolveComment(sessID, c.ID, "alice"); !IsCode(err, "INVALID_STATE") {
		t.Fatalf("resolve dismissed: got %v, want INVALID_STATE", err)
	}

	// Dismissal keeps the record.
	got, err := m.GetComment(sessID, c.ID)
	if err != nil {
		t.Fatalf("GetComment: %v", err)
	}
	if got.Status != CommentDismissed {
		t.Fatalf("status = %q, want dismissed", got.Status)
	}
}

func TestCommentCountsInAnalytics(t *testing.T) {
	m, _, sessID := commentingSession(t)

	m.AddComment(sessID, CommentInput{AuthorID: "rita", FileID: "main.go", Body: "one"})
	m.AddComment(sessID, CommentInput{AuthorID: "alice", FileID: "main.go", Body: "two"})

	sess, err := m.GetSession(sessID)
	if err != nil {
		t.Fatalf("GetSession: %v", err)
	}
	if sess.Metadata.Analytics.TotalComments != 2 {
		t.Fatalf("TotalComments = %d, want 2", sess.Metadata.Analytics.TotalComments)
	}
}
