// Package archive stores ended-session transcripts in S3-compatible
// object storage for long-term retention, independent of the relational
// audit tables.
package archive

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"path"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"

	"coedit/api/internal/collab"
)

// Service uploads and retrieves transcript objects. One object per ended
// session, keyed by workspace so retention policies can apply per tenant.
type Service struct {
	client *minio.Client
	bucket string
}

// New connects to the object store and ensures the transcript bucket exists.
func New(ctx context.Context, endpoint, accessKey, secretKey, bucket string, useSSL bool) (*Service, error) {
	client, err := minio.New(endpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(accessKey, secretKey, ""),
		Secure: useSSL,
	})
	if err != nil {
		return nil, fmt.Errorf("connect object store: %w", err)
	}

	svc := &Service{client: client, bucket: bucket}
	if err := svc.ensureBucket(ctx); err != nil {
		return nil, err
	}
	return svc, nil
}

func (s *Service) ensureBucket(ctx context.Context) error {
	exists, err := s.client.BucketExists(ctx, s.bucket)
	if err != nil {
		return fmt.Errorf("check bucket %s: %w", s.bucket, err)
	}
	if exists {
		return nil
	}
	if err := s.client.MakeBucket(ctx, s.bucket, minio.MakeBucketOptions{}); err != nil {
		return fmt.Errorf("create bucket %s: %w", s.bucket, err)
	}
	return nil
}

// StoreTranscript uploads the transcript as JSON and returns the object key.
func (s *Service) StoreTranscript(ctx context.Context, tr collab.Transcript) (string, error) {
	data, err := json.MarshalIndent(tr, "", "  ")
	if err != nil {
		return "", fmt.Errorf("encode transcript: %w", err)
	}

	key := objectKey(tr.Session.WorkspaceID, tr.Session.ID)
	_, err = s.client.PutObject(ctx, s.bucket, key, bytes.NewReader(data), int64(len(data)), minio.PutObjectOptions{
		ContentType: "application/json",
	})
	if err != nil {
		return "", fmt.Errorf("upload transcript %s: %w", key, err)
	}
	return key, nil
}

// FetchTranscript downloads a previously archived transcript.
func (s *Service) FetchTranscript(ctx context.Context, workspaceID, sessionID string) (collab.Transcript, error) {
	key := objectKey(workspaceID, sessionID)
	obj, err := s.client.GetObject(ctx, s.bucket, key, minio.GetObjectOptions{})
	if err != nil {
		return collab.Transcript{}, fmt.Errorf("fetch transcript %s: %w", key, err)
	}
	defer obj.Close()

	data, err := io.ReadAll(obj)
	if err != nil {
		return collab.Transcript{}, fmt.Errorf("read transcript %s: %w", key, err)
	}
	var tr collab.Transcript
	if err := json.Unmarshal(data, &tr); err != nil {
		return collab.Transcript{}, fmt.Errorf("decode transcript %s: %w", key, err)
	}
	return tr, nil
}

// ListSessionKeys returns the object keys archived for a workspace.
func (s *Service) ListSessionKeys(ctx context.Context, workspaceID string) ([]string, error) {
	prefix := "sessions/" + workspaceID + "/"
	var keys []string
	for obj := range s.client.ListObjects(ctx, s.bucket, minio.ListObjectsOptions{Prefix: prefix, Recursive: true}) {
		if obj.Err != nil {
			return nil, fmt.Errorf("list %s: %w", prefix, obj.Err)
		}
		keys = append(keys, obj.Key)
	}
	return keys, nil
}

func objectKey(workspaceID, sessionID string) string {
	return path.Join("sessions", workspaceID, sessionID+".json")
}
