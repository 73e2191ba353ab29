package archive

import (
	"context"
	"os"
	"testing"
	"time"

	"coedit/api/internal/collab"
)

func TestObjectKey(t *testing.T) {
	key := objectKey("ws-main", "sess-1")
	if key != "sessions/ws-main/sess-1.json" {
		t.Errorf("objectKey = %q", key)
	}
}

// Integration test against a live MinIO. Set COEDIT_TEST_MINIO_ENDPOINT
// (plus COEDIT_TEST_MINIO_ACCESS_KEY / COEDIT_TEST_MINIO_SECRET_KEY) to run.
func TestArchiveRoundTrip(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test in short mode")
	}
	endpoint := os.Getenv("COEDIT_TEST_MINIO_ENDPOINT")
	if endpoint == "" {
		t.Skip("COEDIT_TEST_MINIO_ENDPOINT not set")
	}

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	svc, err := New(ctx, endpoint,
		os.Getenv("COEDIT_TEST_MINIO_ACCESS_KEY"),
		os.Getenv("COEDIT_TEST_MINIO_SECRET_KEY"),
		"coedit-test-transcripts", false)
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}

	tr := collab.Transcript{
		Session: collab.Session{
			ID:          "sess-archive-1",
			Name:        "API Review",
			WorkspaceID: "ws-main",
			HostUserID:  "u_alice",
		},
		EndedAt: time.Now().UTC().Truncate(time.Second),
	}

	key, err := svc.StoreTranscript(ctx, tr)
	if err != nil {
		t.Fatalf("StoreTranscript() error = %v", err)
	}
	if key != "sessions/ws-main/sess-archive-1.json" {
		t.Errorf("key = %q", key)
	}

	back, err := svc.FetchTranscript(ctx, "ws-main", "sess-archive-1")
	if err != nil {
		t.Fatalf("FetchTranscript() error = %v", err)
	}
	if back.Session.Name != tr.Session.Name || back.Session.ID != tr.Session.ID {
		t.Errorf("round trip session = %+v", back.Session)
	}

	keys, err := svc.ListSessionKeys(ctx, "ws-main")
	if err != nil {
		t.Fatalf("ListSessionKeys() error = %v", err)
	}
	found := false
	for _, k := range keys {
		if k == key {
			found = true
		}
	}
	if !found {
		t.Errorf("archived key %q not listed in %v", key, keys)
	}
}
