// Package presence mirrors live cursor and selection state into Redis so
// dashboards and other read-side consumers can poll it without touching the
// session manager.
package presence

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"time"

	"github.com/redis/go-redis/v9"

	"coedit/api/internal/collab"
)

// Entry is the JSON document stored per participant.
type Entry struct {
	ParticipantID string                 `json:"participant_id"`
	Cursor        *collab.CursorPosition `json:"cursor,omitempty"`
	Selection     *collab.Selection      `json:"selection,omitempty"`
	UpdatedAt     time.Time              `json:"updated_at"`
}

// RedisMirror implements collab.PresenceMirror on a Redis hash per session.
// Writes are best effort: failures are logged and never surface to the
// editing path.
type RedisMirror struct {
	client *redis.Client
	prefix string
	ttl    time.Duration
}

// NewRedisMirror connects to Redis and verifies the connection.
func NewRedisMirror(redisURL string) (*RedisMirror, error) {
	opts, err := redis.ParseURL(redisURL)
	if err != nil {
		return nil, fmt.Errorf("parse redis url: %w", err)
	}

	client := redis.NewClient(opts)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("connect to redis: %w", err)
	}

	return &RedisMirror{
		client: client,
		prefix: "presence:",
		ttl:    2 * time.Minute,
	}, nil
}

// NewRedisMirrorWithClient creates a mirror from an existing Redis client.
func NewRedisMirrorWithClient(client *redis.Client) *RedisMirror {
	return &RedisMirror{
		client: client,
		prefix: "presence:",
		ttl:    2 * time.Minute,
	}
}

// key generates the Redis key for a session's presence hash.
func (m *RedisMirror) key(sessionID string) string {
	return m.prefix + sessionID
}

func (m *RedisMirror) write(ctx context.Context, sessionID string, entry Entry) {
	jsonData, err := json.Marshal(entry)
	if err != nil {
		log.Printf("presence: marshal entry for %s: %v", entry.ParticipantID, err)
		return
	}

	key := m.key(sessionID)
	pipe := m.client.Pipeline()
	pipe.HSet(ctx, key, entry.ParticipantID, jsonData)
	pipe.Expire(ctx, key, m.ttl)
	if _, err := pipe.Exec(ctx); err != nil {
		log.Printf("presence: mirror %s/%s: %v", sessionID, entry.ParticipantID, err)
	}
}

func (m *RedisMirror) MirrorCursor(ctx context.Context, sessionID, participantID string, cur collab.CursorPosition) {
	m.write(ctx, sessionID, Entry{
		ParticipantID: participantID,
		Cursor:        &cur,
		UpdatedAt:     time.Now(),
	})
}

func (m *RedisMirror) MirrorSelection(ctx context.Context, sessionID, participantID string, sel collab.Selection) {
	m.write(ctx, sessionID, Entry{
		ParticipantID: participantID,
		Selection:     &sel,
		UpdatedAt:     time.Now(),
	})
}

// Clear removes a participant's presence entry when they leave.
func (m *RedisMirror) Clear(ctx context.Context, sessionID, participantID string) {
	if err := m.client.HDel(ctx, m.key(sessionID), participantID).Err(); err != nil {
		log.Printf("presence: clear %s/%s: %v", sessionID, participantID, err)
	}
}

// Snapshot returns every mirrored entry for a session.
func (m *RedisMirror) Snapshot(ctx context.Context, sessionID string) ([]Entry, error) {
	fields, err := m.client.HGetAll(ctx, m.key(sessionID)).Result()
	if err != nil {
		return nil, fmt.Errorf("read presence for %s: %w", sessionID, err)
	}

	entries := make([]Entry, 0, len(fields))
	for _, raw := range fields {
		var e Entry
		if err := json.Unmarshal([]byte(raw), &e); err != nil {
			return nil, fmt.Errorf("unmarshal presence entry: %w", err)
		}
		entries = append(entries, e)
	}
	return entries, nil
}

// Close closes the Redis connection.
func (m *RedisMirror) Close() error {
	return m.client.Close()
}

// Ping checks if Redis is reachable.
func (m *RedisMirror) Ping(ctx context.Context) error {
	return m.client.Ping(ctx).Err()
}
