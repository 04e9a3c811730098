package blobstore

import (
	"DocRAG/backend/go/internal/rag_service/rag/interfaces"
	"bytes"
	"context"
	"fmt"
	"io"
	"path"
	"strings"
	"time"

	"github.com/minio/minio-go/v7"
)

// ObjectPutter is the part of *minio.Client the archiver needs.
type ObjectPutter interface {
	PutObject(ctx context.Context, bucketName, objectName string, reader io.Reader, objectSize int64, opts minio.PutObjectOptions) (minio.UploadInfo, error)
}

// MinIOArchiver keeps a copy of every uploaded PDF under uploads/YYYY/MM/DD/<source>.
type MinIOArchiver struct {
	client ObjectPutter
	bucket string
	now    func() time.Time
}

// NewMinIOArchiver creates an archiver writing to bucket.
func NewMinIOArchiver(client ObjectPutter, bucket string) (*MinIOArchiver, error) {
	if client == nil {
		return nil, fmt.Errorf("minio client is required")
	}
	if bucket == "" {
		return nil, fmt.Errorf("bucket name is required")
	}
	return &MinIOArchiver{client: client, bucket: bucket, now: time.Now}, nil
}

// Archive uploads data as an application/pdf object.
func (a *MinIOArchiver) Archive(ctx context.Context, sourceID string, data []byte) error {
	name := a.ObjectName(sourceID)
	_, err := a.client.PutObject(ctx, a.bucket, name, bytes.NewReader(data), int64(len(data)), minio.PutObjectOptions{
		ContentType: "application/pdf",
		UserMetadata: map[string]string{
			"source-id": sourceID,
		},
	})
	if err != nil {
		return fmt.Errorf("failed to archive %s to %s/%s: %w", sourceID, a.bucket, name, err)
	}
	return nil
}

// ObjectName returns the object key for sourceID. Path separators in the source are replaced.
func (a *MinIOArchiver) ObjectName(sourceID string) string {
	base := strings.NewReplacer("/", "_", "\\", "_").Replace(sourceID)
	if base == "" || base == "." || base == ".." {
		base = "unnamed.pdf"
	}
	return path.Join("uploads", a.now().UTC().Format("2006/01/02"), base)
}

var _ interfaces.Archiver = (*MinIOArchiver)(nil)
