package transport

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"

	"coedit/api/internal/collab"
)

type wsFrame struct {
	Type          string          `json:"type"`
	SessionID     string          `json:"sessionId"`
	ActorID       string          `json:"actorId"`
	ParticipantID string          `json:"participantId"`
	Payload       json.RawMessage `json:"payload"`
}

func startHubServer(t *testing.T, hub *Hub) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hub.ServeSession(w, r, r.URL.Query().Get("session"), r.URL.Query().Get("participant"))
	}))
	t.Cleanup(srv.Close)
	return srv
}

func dial(t *testing.T, srv *httptest.Server, sessionID, participantID string) *websocket.Conn {
	t.Helper()
	u := "ws" + strings.TrimPrefix(srv.URL, "http") + "?session=" + sessionID + "&participant=" + participantID
	conn, _, err := websocket.DefaultDialer.Dial(u, nil)
	if err != nil {
		t.Fatalf("dial %s/%s: %v", sessionID, participantID, err)
	}
	t.Cleanup(func() { conn.Close() })
	return conn
}

func readFrame(t *testing.T, conn *websocket.Conn) wsFrame {
	t.Helper()
	_ = conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	var frame wsFrame
	if err := conn.ReadJSON(&frame); err != nil {
		t.Fatalf("read frame: %v", err)
	}
	return frame
}

func waitForConnected(t *testing.T, hub *Hub, sessionID string, want int) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for hub.ConnectedCount(sessionID) != want {
		if time.Now().After(deadline) {
			t.Fatalf("connected count = %d, want %d", hub.ConnectedCount(sessionID), want)
		}
		time.Sleep(5 * time.Millisecond)
	}
}

func TestHubSendsWelcomeFrame(t *testing.T) {
	hub := NewHub()
	srv := startHubServer(t, hub)

	conn := dial(t, srv, "sess-1", "u_alice")
	frame := readFrame(t, conn)
	if frame.Type != "welcome" {
		t.Errorf("first frame type = %q, want welcome", frame.Type)
	}
	if frame.SessionID != "sess-1" || frame.ParticipantID != "u_alice" {
		t.Errorf("welcome frame = %+v", frame)
	}
}

func TestHubBroadcastsToSessionMembers(t *testing.T) {
	hub := NewHub()
	srv := startHubServer(t, hub)

	alice := dial(t, srv, "sess-1", "u_alice")
	bob := dial(t, srv, "sess-1", "u_bob")
	other := dial(t, srv, "sess-2", "u_carol")
	readFrame(t, alice)
	readFrame(t, bob)
	readFrame(t, other)
	waitForConnected(t, hub, "sess-1", 2)

	hub.Deliver(collab.Event{
		Type:      collab.EventCommentAdd,
		SessionID: "sess-1",
		ActorID:   "u_alice",
		Timestamp: time.Now().UTC(),
	})

	for _, conn := range []*websocket.Conn{alice, bob} {
		frame := readFrame(t, conn)
		if frame.Type != string(collab.EventCommentAdd) {
			t.Errorf("frame type = %q, want comment_add", frame.Type)
		}
	}

	_ = other.SetReadDeadline(time.Now().Add(150 * time.Millisecond))
	if _, _, err := other.ReadMessage(); err == nil {
		t.Error("sess-2 socket received a sess-1 event")
	}
}

func TestHubSkipsActorWhenExcluded(t *testing.T) {
	hub := NewHub()
	srv := startHubServer(t, hub)

	alice := dial(t, srv, "sess-1", "u_alice")
	bob := dial(t, srv, "sess-1", "u_bob")
	readFrame(t, alice)
	readFrame(t, bob)
	waitForConnected(t, hub, "sess-1", 2)

	hub.Deliver(collab.Event{
		Type:         collab.EventCursorMove,
		SessionID:    "sess-1",
		ActorID:      "u_alice",
		ExcludeActor: true,
		Timestamp:    time.Now().UTC(),
	})

	frame := readFrame(t, bob)
	if frame.Type != string(collab.EventCursorMove) {
		t.Errorf("bob frame type = %q", frame.Type)
	}

	_ = alice.SetReadDeadline(time.Now().Add(150 * time.Millisecond))
	if _, _, err := alice.ReadMessage(); err == nil {
		t.Error("actor received its own excluded event")
	}
}

func TestHubReplacesDuplicateParticipantSocket(t *testing.T) {
	hub := NewHub()
	srv := startHubServer(t, hub)

	first := dial(t, srv, "sess-1", "u_alice")
	readFrame(t, first)
	second := dial(t, srv, "sess-1", "u_alice")
	readFrame(t, second)
	waitForConnected(t, hub, "sess-1", 1)

	hub.Deliver(collab.Event{
		Type:      collab.EventCommentAdd,
		SessionID: "sess-1",
		Timestamp: time.Now().UTC(),
	})

	frame := readFrame(t, second)
	if frame.Type != string(collab.EventCommentAdd) {
		t.Errorf("frame type = %q", frame.Type)
	}
}

func TestHubClosesSocketsWhenSessionEnds(t *testing.T) {
	hub := NewHub()
	srv := startHubServer(t, hub)

	alice := dial(t, srv, "sess-1", "u_alice")
	readFrame(t, alice)
	waitForConnected(t, hub, "sess-1", 1)

	hub.Deliver(collab.Event{
		Type:      collab.EventSessionControl,
		SessionID: "sess-1",
		Payload:   collab.ControlPayload{Action: "end", SessionStatus: string(collab.SessionEnded)},
		Timestamp: time.Now().UTC(),
	})

	// The end event arrives, then the server closes the socket.
	frame := readFrame(t, alice)
	if frame.Type != string(collab.EventSessionControl) {
		t.Errorf("frame type = %q", frame.Type)
	}
	_ = alice.SetReadDeadline(time.Now().Add(2 * time.Second))
	for {
		if _, _, err := alice.ReadMessage(); err != nil {
			if !websocket.IsCloseError(err, websocket.CloseNormalClosure) {
				t.Errorf("expected normal closure, got %v", err)
			}
			break
		}
	}
	waitForConnected(t, hub, "sess-1", 0)
}

func TestHubDisconnectRemovesParticipant(t *testing.T) {
	hub := NewHub()
	srv := startHubServer(t, hub)

	conn := dial(t, srv, "sess-1", "u_alice")
	readFrame(t, conn)
	waitForConnected(t, hub, "sess-1", 1)

	hub.Disconnect("sess-1", "u_alice")
	waitForConnected(t, hub, "sess-1", 0)
}

func TestClientSendAfterShutdownIsDropped(t *testing.T) {
	c := &client{sessionID: "sess-1", participantID: "u_alice", send: make(chan []byte, 1)}
	c.shutdown()
	if c.trySend([]byte(`{}`)) {
		t.Fatal("expected send to a shut-down client to be dropped")
	}
	c.shutdown()
}

func TestHubDeliverSurvivesConcurrentReplacement(t *testing.T) {
	hub := NewHub()
	srv := startHubServer(t, hub)

	conn := dial(t, srv, "sess-1", "u_alice")
	readFrame(t, conn)
	waitForConnected(t, hub, "sess-1", 1)

	done := make(chan struct{})
	go func() {
		defer close(done)
		for i := 0; i < 50; i++ {
			hub.Deliver(collab.Event{
				Type:      collab.EventCursorMove,
				SessionID: "sess-1",
				ActorID:   "u_bob",
				Timestamp: time.Now().UTC(),
			})
		}
	}()
	for i := 0; i < 10; i++ {
		replacement := dial(t, srv, "sess-1", "u_alice")
		readFrame(t, replacement)
	}
	<-done
	waitForConnected(t, hub, "sess-1", 1)
}
