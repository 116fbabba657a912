package storage

import (
	"bytes"
	"context"
	"errors"
	"fmt"

	"github.com/supabase-community/supabase-go"
)

// ErrNotConfigured is returned when Supabase credentials are missing.
var ErrNotConfigured = errors.New("storage: SUPABASE_URL and SUPABASE_SERVICE_ROLE_KEY required")

// Uploader stores one object.
type Uploader interface {
	Upload(ctx context.Context, objectKey string, body []byte) error
}

type fileUploader interface {
	upload(bucket, key string, body []byte) error
}

type sdkUploader struct {
	client *supabase.Client
}

func (u sdkUploader) upload(bucket, key string, body []byte) error {
	_, err := u.client.Storage.UploadFile(bucket, key, bytes.NewReader(body))
	return err
}

// SupabaseStorage uploads objects into one Supabase Storage bucket.
type SupabaseStorage struct {
	Bucket string
	files  fileUploader
}

// NewSupabaseStorage constructs a new Supabase storage client.
func NewSupabaseStorage(baseURL, serviceKey, bucket string) (*SupabaseStorage, error) {
	if baseURL == "" || serviceKey == "" {
		return nil, ErrNotConfigured
	}
	client, err := supabase.NewClient(baseURL, serviceKey, &supabase.ClientOptions{})
	if err != nil {
		return nil, fmt.Errorf("storage: supabase client: %w", err)
	}
	return &SupabaseStorage{Bucket: bucket, files: sdkUploader{client: client}}, nil
}

// Upload writes body under objectKey. The SDK call is not cancellable; ctx
// bounds the wait only.
func (s *SupabaseStorage) Upload(ctx context.Context, objectKey string, body []byte) error {
	done := make(chan error, 1)
	go func() { done <- s.files.upload(s.Bucket, objectKey, body) }()
	select {
	case err := <-done:
		if err != nil {
			return fmt.Errorf("storage: upload %s/%s: %w", s.Bucket, objectKey, err)
		}
		return nil
	case <-ctx.Done():
		return fmt.Errorf("storage: upload %s/%s: %w", s.Bucket, objectKey, ctx.Err())
	}
}
