package documents

import (
	"context"
	"fmt"
	"io"
	"path"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"document-portal/portal-backend/internal/audit"
	"document-portal/portal-backend/pkg/storage"
)

const defaultPresignTTL = 15 * time.Minute

// AttachmentStore keeps attachment blobs in one bucket.
type AttachmentStore struct {
	client     storage.S3Client
	bucket     string
	presignTTL time.Duration
}

func NewAttachmentStore(client storage.S3Client, bucket string, presignTTL time.Duration) *AttachmentStore {
	if presignTTL <= 0 {
		presignTTL = defaultPresignTTL
	}
	return &AttachmentStore{client: client, bucket: bucket, presignTTL: presignTTL}
}

// Key builds the object key for a new upload of fileName.
func (a *AttachmentStore) Key(kind audit.Kind, documentID uint, fileName string) string {
	return fmt.Sprintf("%s/%d/%s-%s", kind, documentID, uuid.NewString(), cleanFileName(fileName))
}

// Put uploads body and returns the number of bytes written.
func (a *AttachmentStore) Put(ctx context.Context, key, contentType string, body io.Reader) (int64, error) {
	counter := &countingReader{r: body}
	if err := a.client.Upload(ctx, a.bucket, key, contentType, counter); err != nil {
		return 0, err
	}
	return counter.n, nil
}

func (a *AttachmentStore) Open(ctx context.Context, key string) (io.ReadCloser, error) {
	return a.client.Download(ctx, a.bucket, key)
}

func (a *AttachmentStore) Remove(ctx context.Context, key string) error {
	return a.client.Delete(ctx, a.bucket, key)
}

func (a *AttachmentStore) URL(ctx context.Context, key string) (string, time.Time, error) {
	url, err := a.client.GetPresignedURL(ctx, a.bucket, key, a.presignTTL)
	if err != nil {
		return "", time.Time{}, err
	}
	return url, time.Now().Add(a.presignTTL), nil
}

// purgeFiles removes blobs whose rows were already deleted. Failures only
// leave orphans, so they are logged.
func (s *Service) purgeFiles(ctx context.Context, removed []Attachment) {
	if s.files == nil {
		return
	}
	for _, att := range removed {
		if err := s.files.Remove(ctx, att.StoragePath); err != nil {
			s.logger.Warn("Failed to remove attachment blob",
				zap.Uint("attachment_id", att.ID),
				zap.String("key", att.StoragePath),
				zap.Error(err))
		}
	}
}

func cleanFileName(name string) string {
	name = path.Base(strings.ReplaceAll(strings.TrimSpace(name), "\\", "/"))
	if name == "." || name == "/" || name == "" {
		return "file"
	}
	return strings.Map(func(r rune) rune {
		if r < 0x20 || r == '?' || r == '#' || r == '%' {
			return '_'
		}
		return r
	}, name)
}

type countingReader struct {
	r io.Reader
	n int64
}

func (c *countingReader) Read(p []byte) (int, error) {
	n, err := c.r.Read(p)
	c.n += int64(n)
	return n, err
}
