package supabase

import (
	"bytes"
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	storage "github.com/supabase-community/storage-go"

	"thumbforge-backend/internal/jobs"
)

const uploadAttempts = 3

// StorageClient keeps generated thumbnails in a Supabase Storage bucket.
type StorageClient struct {
	client   *storage.Client
	bucket   string
	baseURL  string
	backoffs []time.Duration
}

func NewStorageClient(supabaseURL, serviceRoleKey, bucket string) *StorageClient {
	baseURL := strings.TrimRight(supabaseURL, "/")
	client := storage.NewClient(baseURL+"/storage/v1", serviceRoleKey, nil)

	return &StorageClient{
		client:   client,
		bucket:   bucket,
		baseURL:  baseURL,
		backoffs: []time.Duration{500 * time.Millisecond, time.Second, 2 * time.Second},
	}
}

// Put uploads the generated bytes to users/{owner}/thumbnails/{job}.{ext}.
func (s *StorageClient) Put(ctx context.Context, ownerID string, jobID uuid.UUID, content *jobs.Content) (string, string, error) {
	contentType := content.MIMEType
	if contentType == "" {
		contentType = "image/png"
	}
	storagePath := fmt.Sprintf("users/%s/thumbnails/%s%s", ownerID, jobID.String(), extensionFor(contentType))

	upsert := true
	err := s.retryWithBackoff(ctx, func() error {
		_, err := s.client.UploadFile(s.bucket, storagePath, bytes.NewReader(content.Data), storage.FileOptions{
			ContentType: &contentType,
			Upsert:      &upsert,
		})
		return err
	})
	if err != nil {
		return "", "", fmt.Errorf("failed to upload file: %w", err)
	}

	return storagePath, s.GetPublicURL(storagePath), nil
}

func (s *StorageClient) GetPublicURL(storagePath string) string {
	return fmt.Sprintf("%s/storage/v1/object/public/%s/%s", s.baseURL, s.bucket, storagePath)
}

// Remove deletes a previously uploaded object.
func (s *StorageClient) Remove(ctx context.Context, storagePath string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if _, err := s.client.RemoveFile(s.bucket, []string{storagePath}); err != nil {
		return fmt.Errorf("failed to delete file: %w", err)
	}
	return nil
}

func (s *StorageClient) retryWithBackoff(ctx context.Context, fn func() error) error {
	var lastErr error
	for i := 0; i < uploadAttempts; i++ {
		if err := ctx.Err(); err != nil {
			return err
		}
		lastErr = fn()
		if lastErr == nil {
			return nil
		}
		if i < len(s.backoffs) && i < uploadAttempts-1 {
			select {
			case <-time.After(s.backoffs[i]):
			case <-ctx.Done():
				return ctx.Err()
			}
		}
	}
	return fmt.Errorf("failed after %d attempts: %w", uploadAttempts, lastErr)
}

func extensionFor(contentType string) string {
	switch contentType {
	case "image/jpeg":
		return ".jpg"
	case "image/webp":
		return ".webp"
	case "image/gif":
		return ".gif"
	default:
		return ".png"
	}
}
