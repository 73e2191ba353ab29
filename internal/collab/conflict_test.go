package collab

import (
	"encoding/json"
	"testing"
	"time"
)

func editingSession(t *testing.T, cfg Config) (*Manager, *recordSink, string) {
	t.Helper()
	m := NewManager(cfg)
	m.now = newFakeClock().Now
	sink := &recordSink{}
	m.AttachSink(sink)
	sess := mustCreate(t, m, "alice", 8)
	mustJoin(t, m, sess.ID, "alice", "")
	mustJoin(t, m, sess.ID, "bob", "")
	return m, sink, sess.ID
}

func TestConcurrentInsertsTransformAndAutoResolve(t *testing.T) {
	m, sink, sessID := editingSession(t, Config{})

	opA, err := m.HandleTextOperation(sessID, OperationInput{
		AuthorID: "alice", FileID: "main.go",
		Kind: OpInsert, Position: Position{Line: 0, Column: 0}, Text: "foo",
	})
	if err != nil {
		t.Fatalf("alice op: %v", err)
	}
	// Bob typed before seeing alice's insert.
	opB, err := m.HandleTextOperation(sessID, OperationInput{
		AuthorID: "bob", FileID: "main.go",
		Kind: OpInsert, Position: Position{Line: 0, Column: 0}, Text: "bar",
		ObservedAt: opA.CommittedAt.Add(-time.Millisecond),
	})
	if err != nil {
		t.Fatalf("bob op: %v", err)
	}

	if opB.Position != (Position{Line: 0, Column: 3}) {
		t.Fatalf("bob anchor = %+v, want transformed {0 3}", opB.Position)
	}

	conflicts, err := m.Conflicts(sessID)
	if err != nil {
		t.Fatalf("Conflicts: %v", err)
	}
	if len(conflicts) != 1 {
		t.Fatalf("conflict count = %d, want 1", len(conflicts))
	}
	c := conflicts[0]
	if c.Status != ConflictResolved || c.Strategy != StrategyAutomatic {
		t.Fatalf("conflict state = %s/%s, want resolved/automatic", c.Status, c.Strategy)
	}
	accept, ok := c.Resolution.(AcceptOperation)
	if !ok {
		t.Fatalf("resolution type %T, want AcceptOperation", c.Resolution)
	}
	// Last write wins: bob committed later.
	if accept.OperationID != opB.ID {
		t.Fatalf("accepted %s, want bob's %s", accept.OperationID, opB.ID)
	}

	ops, err := m.Operations(sessID, "main.go", 0)
	if err != nil {
		t.Fatalf("Operations: %v", err)
	}
	if len(ops) != 2 {
		t.Fatalf("log length = %d, want 2 (append only, no rewrites)", len(ops))
	}
	if !ops[0].Superseded || ops[0].SupersededBy != c.ID {
		t.Fatalf("losing op not marked superseded: %+v", ops[0])
	}
	if ops[1].Superseded {
		t.Fatal("winning op marked superseded")
	}

	var conflictEvents int
	for _, ev := range sink.all() {
		if ev.Type == EventConflictResolve {
			conflictEvents++
		}
	}
	if conflictEvents != 1 {
		t.Fatalf("conflict broadcasts = %d, want 1", conflictEvents)
	}
}

func TestConflictResolutionIsDeterministic(t *testing.T) {
	run := func() string {
		m, _, sessID := editingSession(t, Config{})
		a, err := m.HandleTextOperation(sessID, OperationInput{
			AuthorID: "alice", FileID: "main.go",
			Kind: OpInsert, Position: Position{Line: 4, Column: 2}, Text: "left",
		})
		if err != nil {
			t.Fatalf("alice op: %v", err)
		}
		if _, err := m.HandleTextOperation(sessID, OperationInput{
			AuthorID: "bob", FileID: "main.go",
			Kind: OpInsert, Position: Position{Line: 4, Column: 4}, Text: "right",
			ObservedAt: a.CommittedAt.Add(-time.Millisecond),
		}); err != nil {
			t.Fatalf("bob op: %v", err)
		}
		conflicts, err := m.Conflicts(sessID)
		if err != nil || len(conflicts) != 1 {
			t.Fatalf("conflicts = %d (%v), want 1", len(conflicts), err)
		}
		accept := conflicts[0].Resolution.(AcceptOperation)
		for _, op := range conflicts[0].OperationIDs {
			if op == accept.OperationID {
				ops, _ := m.Operations(sessID, "main.go", 0)
				for _, o := range ops {
					if o.ID == accept.OperationID {
						return o.AuthorID
					}
				}
			}
		}
		t.Fatal("accepted operation not found in log")
		return ""
	}

	first := run()
	for i := 0; i < 5; i++ {
		if got := run(); got != first {
			t.Fatalf("replay %d accepted %q, first run accepted %q", i, got, first)
		}
	}
}

func TestDistantEditsDoNotConflict(t *testing.T) {
	m, _, sessID := editingSession(t, Config{})

	a, _ := m.HandleTextOperation(sessID, OperationInput{
		AuthorID: "alice", FileID: "main.go",
		Kind: OpInsert, Position: Position{Line: 0, Column: 0}, Text: "top",
	})
	if _, err := m.HandleTextOperation(sessID, OperationInput{
		AuthorID: "bob", FileID: "main.go",
		Kind: OpInsert, Position: Position{Line: 40, Column: 0}, Text: "bottom",
		ObservedAt: a.CommittedAt.Add(-time.Millisecond),
	}); err != nil {
		t.Fatalf("bob op: %v", err)
	}

	conflicts, _ := m.Conflicts(sessID)
	if len(conflicts) != 0 {
		t.Fatalf("distant edits raised %d conflicts", len(conflicts))
	}
}

func TestSeparateFilesDoNotConflict(t *testing.T) {
	m, _, sessID := editingSession(t, Config{})

	a, _ := m.HandleTextOperation(sessID, OperationInput{
		AuthorID: "alice", FileID: "main.go",
		Kind: OpInsert, Position: Position{Line: 0, Column: 0}, Text: "foo",
	})
	if _, err := m.HandleTextOperation(sessID, OperationInput{
		AuthorID: "bob", FileID: "util.go",
		Kind: OpInsert, Position: Position{Line: 0, Column: 0}, Text: "bar",
		ObservedAt: a.CommittedAt.Add(-time.Millisecond),
	}); err != nil {
		t.Fatalf("bob op: %v", err)
	}

	conflicts, _ := m.Conflicts(sessID)
	if len(conflicts) != 0 {
		t.Fatalf("edits in separate files raised %d conflicts", len(conflicts))
	}
}

func TestManualResolutionWhenAutoDisabled(t *testing.T) {
	m, _, sessID := editingSession(t, Config{DisableAutoResolve: true})

	a, _ := m.HandleTextOperation(sessID, OperationInput{
		AuthorID: "alice", FileID: "main.go",
		Kind: OpInsert, Position: Position{Line: 1, Column: 0}, Text: "foo",
	})
	if _, err := m.HandleTextOperation(sessID, OperationInput{
		AuthorID: "bob", FileID: "main.go",
		Kind: OpInsert, Position: Position{Line: 1, Column: 1}, Text: "bar",
		ObservedAt: a.CommittedAt.Add(-time.Millisecond),
	}); err != nil {
		t.Fatalf("bob op: %v", err)
	}

	conflicts, _ := m.Conflicts(sessID)
	if len(conflicts) != 1 || conflicts[0].Status != ConflictPending {
		t.Fatalf("conflicts = %+v, want one pending", conflicts)
	}
	cID := conflicts[0].ID

	// Editors cannot moderate.
	if _, err := m.ResolveConflict(sessID, cID, "bob", AcceptOperation{OperationID: a.ID}, ""); !IsCode(err, "PERMISSION_DENIED") {
		t.Fatalf("editor resolve: got %v, want PERMISSION_DENIED", err)
	}

	resolved, err := m.ResolveConflict(sessID, cID, "alice", AcceptOperation{OperationID: a.ID}, "alice's version kept")
	if err != nil {
		t.Fatalf("host resolve: %v", err)
	}
	if resolved.Status != ConflictResolved || resolved.Strategy != StrategyManual || resolved.ResolvedBy != "alice" {
		t.Fatalf("resolved state: %+v", resolved)
	}

	ops, _ := m.Operations(sessID, "main.go", 0)
	for _, op := range ops {
		if op.ID == a.ID && op.Superseded {
			t.Fatal("accepted operation marked superseded")
		}
		if op.ID != a.ID && !op.Superseded {
			t.Fatalf("losing operation %s not superseded", op.ID)
		}
	}

	// Terminal: a second resolution attempt is rejected.
	if _, err := m.ResolveConflict(sessID, cID, "alice", CustomText{Text: "x"}, ""); !IsCode(err, "INVALID_STATE") {
		t.Fatalf("re-resolve: got %v, want INVALID_STATE", err)
	}
}

func TestResolveConflictValidatesAcceptedOperation(t *testing.T) {
	m, _, sessID := editingSession(t, Config{DisableAutoResolve: true})

	a, _ := m.HandleTextOperation(sessID, OperationInput{
		AuthorID: "alice", FileID: "main.go",
		Kind: OpInsert, Position: Position{Line: 0, Column: 0}, Text: "foo",
	})
	m.HandleTextOperation(sessID, OperationInput{
		AuthorID: "bob", FileID: "main.go",
		Kind: OpInsert, Position: Position{Line: 0, Column: 0}, Text: "bar",
		ObservedAt: a.CommittedAt.Add(-time.Millisecond),
	})
	conflicts, _ := m.Conflicts(sessID)

	_, err := m.ResolveConflict(sessID, conflicts[0].ID, "alice", AcceptOperation{OperationID: "op_unknown"}, "")
	if !IsCode(err, "NOT_FOUND") {
		t.Fatalf("got %v, want NOT_FOUND", err)
	}
}

func TestEscalateConflict(t *testing.T) {
	m, _, sessID := editingSession(t, Config{DisableAutoResolve: true})

	a, _ := m.HandleTextOperation(sessID, OperationInput{
		AuthorID: "alice", FileID: "main.go",
		Kind: OpInsert, Position: Position{Line: 0, Column: 0}, Text: "foo",
	})
	m.HandleTextOperation(sessID, OperationInput{
		AuthorID: "bob", FileID: "main.go",
		Kind: OpInsert, Position: Position{Line: 0, Column: 0}, Text: "bar",
		ObservedAt: a.CommittedAt.Add(-time.Millisecond),
	})
	conflicts, _ := m.Conflicts(sessID)

	esc, err := m.EscalateConflict(sessID, conflicts[0].ID, "alice", "needs discussion")
	if err != nil {
		t.Fatalf("EscalateConflict: %v", err)
	}
	if esc.Status != ConflictEscalated || esc.Strategy != StrategyDefer {
		t.Fatalf("escalated state: %+v", esc)
	}

	if _, err := m.ResolveConflict(sessID, conflicts[0].ID, "alice", CustomText{Text: "x"}, ""); !IsCode(err, "INVALID_STATE") {
		t.Fatalf("resolve after escalation: got %v, want INVALID_STATE", err)
	}
}

func TestResolutionEnvelopeRoundTrip(t *testing.T) {
	for _, res := range []Resolution{
		AcceptOperation{OperationID: "op_1"},
		MergedContent{Content: "merged body"},
		CustomText{Text: "fallback"},
	} {
		raw, err := json.Marshal(marshalResolution(res))
		if err != nil {
			t.Fatalf("marshal %T: %v", res, err)
		}
		back, err := ParseResolution(raw)
		if err != nil {
			t.Fatalf("parse %T: %v", res, err)
		}
		if back != res {
			t.Fatalf("round trip %T: got %#v", res, back)
		}
	}

	if _, err := ParseResolution(json.RawMessage(`{"kind":"coin_flip"}`)); err == nil {
		t.Fatal("unknown kind accepted")
	}
}

func TestReviewerCannotEdit(t *testing.T) {
	m, _, sessID := editingSession(t, Config{})
	mustJoin(t, m, sessID, "rita", "reviewer")

	_, err := m.HandleTextOperation(sessID, OperationInput{
		AuthorID: "rita", FileID: "main.go",
		Kind: OpInsert, Position: Position{Line: 0, Column: 0}, Text: "nope",
	})
	if !IsCode(err, "PERMISSION_DENIED") {
		t.Fatalf("got %v, want PERMISSION_DENIED", err)
	}
	ops, _ := m.Operations(sessID, "main.go", 0)
	if len(ops) != 0 {
		t.Fatalf("rejected edit reached the log: %d ops", len(ops))
	}
}

func TestNonParticipantCannotEdit(t *testing.T) {
	m, _, sessID := editingSession(t, Config{})

	_, err := m.HandleTextOperation(sessID, OperationInput{
		AuthorID: "stranger", FileID: "main.go",
		Kind: OpInsert, Position: Position{Line: 0, Column: 0}, Text: "hi",
	})
	if !IsCode(err, "PERMISSION_DENIED") {
		t.Fatalf("got %v, want PERMISSION_DENIED", err)
	}
}

func TestOperationLogIsAppendOnly(t *testing.T) {
	m, _, sessID := editingSession(t, Config{})

	var ids []string
	for i := 0; i < 5; i++ {
		op, err := m.HandleTextOperation(sessID, OperationInput{
			AuthorID: "alice", FileID: "main.go",
			Kind: OpInsert, Position: Position{Line: i * 3, Column: 0}, Text: "line\n",
		})
		if err != nil {
			t.Fatalf("op %d: %v", i, err)
		}
		ids = append(ids, op.ID)

		ops, err := m.Operations(sessID, "main.go", 0)
		if err != nil {
			t.Fatalf("Operations: %v", err)
		}
		if len(ops) != len(ids) {
			t.Fatalf("log length = %d, want %d", len(ops), len(ids))
		}
		for j, want := range ids {
			if ops[j].ID != want {
				t.Fatalf("log prefix changed at %d: %s != %s", j, ops[j].ID, want)
			}
		}
	}

	// Ids are monotonic, so ordering is reproducible across restarts.
	for i := 1; i < len(ids); i++ {
		if ids[i] <= ids[i-1] {
			t.Fatalf("operation ids not monotonic: %s after %s", ids[i], ids[i-1])
		}
	}
}

func TestCursorUpdatesAreNeverLogged(t *testing.T) {
	m, sink, sessID := editingSession(t, Config{})

	before := sink.count()
	if err := m.UpdateCursorPosition(sessID, "bob", CursorPosition{FileID: "main.go", Line: 3, Column: 7}); err != nil {
		t.Fatalf("UpdateCursorPosition: %v", err)
	}
	if err := m.UpdateSelection(sessID, "bob", Selection{FileID: "main.go", StartLine: 1, EndLine: 2}); err != nil {
		t.Fatalf("UpdateSelection: %v", err)
	}

	ops, _ := m.Operations(sessID, "", 0)
	if len(ops) != 0 {
		t.Fatalf("presence updates reached the operation log: %d ops", len(ops))
	}

	evs := sink.all()[before:]
	if len(evs) != 2 {
		t.Fatalf("broadcasts = %d, want 2", len(evs))
	}
	for _, ev := range evs {
		if !ev.ExcludeActor {
			t.Fatalf("%s broadcast echoed to its author", ev.Type)
		}
	}

	ps, _ := m.Participants(sessID)
	for _, p := range ps {
		if p.ID == "bob" {
			if p.Cursor == nil || p.Cursor.Line != 3 || p.Cursor.Column != 7 {
				t.Fatalf("cursor not stored: %+v", p.Cursor)
			}
			if p.Selection == nil || p.Selection.EndLine != 2 {
				t.Fatalf("selection not stored: %+v", p.Selection)
			}
		}
	}
}

func TestPresenceUpdateForAbsentParticipantIsNoOp(t *testing.T) {
	m, sink, sessID := editingSession(t, Config{})
	before := sink.count()

	if err := m.UpdateCursorPosition(sessID, "ghost", CursorPosition{FileID: "main.go"}); err != nil {
		t.Fatalf("got %v, want nil", err)
	}
	if sink.count() != before {
		t.Fatal("absent participant cursor update broadcast")
	}
}

func TestOperationsFilterAndLimit(t *testing.T) {
	m, _, sessID := editingSession(t, Config{})

	for i := 0; i < 3; i++ {
		if _, err := m.HandleTextOperation(sessID, OperationInput{
			AuthorID: "alice", FileID: "a.go",
			Kind: OpInsert, Position: Position{Line: i * 5, Column: 0}, Text: "x",
		}); err != nil {
			t.Fatalf("a.go op %d: %v", i, err)
		}
	}
	if _, err := m.HandleTextOperation(sessID, OperationInput{
		AuthorID: "alice", FileID: "b.go",
		Kind: OpInsert, Position: Position{Line: 0, Column: 0}, Text: "y",
	}); err != nil {
		t.Fatalf("b.go op: %v", err)
	}

	all, _ := m.Operations(sessID, "", 0)
	if len(all) != 4 {
		t.Fatalf("all ops = %d, want 4", len(all))
	}
	onlyA, _ := m.Operations(sessID, "a.go", 0)
	if len(onlyA) != 3 {
		t.Fatalf("a.go ops = %d, want 3", len(onlyA))
	}
	newest, _ := m.Operations(sessID, "a.go", 2)
	if len(newest) != 2 {
		t.Fatalf("limited ops = %d, want 2", len(newest))
	}
	if newest[0].ID != onlyA[1].ID || newest[1].ID != onlyA[2].ID {
		t.Fatal("limit did not keep the newest operations")
	}
}
