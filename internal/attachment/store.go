package attachment

import (
	"bytes"
	"context"
	"fmt"
	"io"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"
)

// Store persists attachment bytes in a MinIO (S3-compatible) bucket.
type Store struct {
	client *minio.Client
	bucket string
}

// NewStore connects to MinIO and ensures the bucket exists.
func NewStore(ctx context.Context, endpoint, accessKey, secretKey, bucket string, useSSL bool) (*Store, error) {
	client, err := minio.New(endpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(accessKey, secretKey, ""),
		Secure: useSSL,
	})
	if err != nil {
		return nil, fmt.Errorf("create minio client: %w", err)
	}

	exists, err := client.BucketExists(ctx, bucket)
	if err != nil {
		return nil, fmt.Errorf("check bucket %q: %w", bucket, err)
	}
	if !exists {
		if err := client.MakeBucket(ctx, bucket, minio.MakeBucketOptions{}); err != nil {
			return nil, fmt.Errorf("create bucket %q: %w", bucket, err)
		}
	}

	return &Store{client: client, bucket: bucket}, nil
}

// Upload writes the attachment bytes under the attachment's object key.
func (s *Store) Upload(ctx context.Context, a Attachment, content []byte) error {
	_, err := s.client.PutObject(ctx, s.bucket, a.ObjectKey(), bytes.NewReader(content), int64(len(content)),
		minio.PutObjectOptions{ContentType: a.ContentType})
	if err != nil {
		return fmt.Errorf("upload attachment %s: %w", a.ObjectKey(), err)
	}
	return nil
}

// Download reads the attachment bytes back.
func (s *Store) Download(ctx context.Context, a Attachment) ([]byte, error) {
	obj, err := s.client.GetObject(ctx, s.bucket, a.ObjectKey(), minio.GetObjectOptions{})
	if err != nil {
		return nil, fmt.Errorf("download attachment %s: %w", a.ObjectKey(), err)
	}
	defer obj.Close()

	content, err := io.ReadAll(obj)
	if err != nil {
		return nil, fmt.Errorf("read attachment %s: %w", a.ObjectKey(), err)
	}
	return content, nil
}

// Remove deletes the attachment bytes.
func (s *Store) Remove(ctx context.Context, a Attachment) error {
	if err := s.client.RemoveObject(ctx, s.bucket, a.ObjectKey(), minio.RemoveObjectOptions{}); err != nil {
		return fmt.Errorf("remove attachment %s: %w", a.ObjectKey(), err)
	}
	return nil
}
