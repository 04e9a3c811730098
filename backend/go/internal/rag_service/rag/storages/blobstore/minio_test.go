package blobstore

import (
	"context"
	"errors"
	"io"
	"testing"
	"time"

	"github.com/minio/minio-go/v7"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakePutter struct {
	bucket, name string
	body         []byte
	opts         minio.PutObjectOptions
	err          error
}

func (f *fakePutter) PutObject(_ context.Context, bucket, name string, r io.Reader, size int64, opts minio.PutObjectOptions) (minio.UploadInfo, error) {
	if f.err != nil {
		return minio.UploadInfo{}, f.err
	}
	body, err := io.ReadAll(r)
	if err != nil {
		return minio.UploadInfo{}, err
	}
	f.bucket, f.name, f.body, f.opts = bucket, name, body, opts
	return minio.UploadInfo{Bucket: bucket, Key: name, Size: size}, nil
}

func newArchiver(t *testing.T, p ObjectPutter) *MinIOArchiver {
	t.Helper()
	a, err := NewMinIOArchiver(p, "rag-uploads")
	require.NoError(t, err)
	a.now = func() time.Time { return time.Date(2026, 3, 9, 23, 0, 0, 0, time.UTC) }
	return a
}

func TestMinIOArchiver_Archive(t *testing.T) {
	p := &fakePutter{}
	a := newArchiver(t, p)

	require.NoError(t, a.Archive(context.Background(), "report.pdf", []byte("%PDF-1.4")))
	assert.Equal(t, "rag-uploads", p.bucket)
	assert.Equal(t, "uploads/2026/03/09/report.pdf", p.name)
	assert.Equal(t, []byte("%PDF-1.4"), p.body)
	assert.Equal(t, "application/pdf", p.opts.ContentType)
}

func TestMinIOArchiver_ObjectName(t *testing.T) {
	a := newArchiver(t, &fakePutter{})
	assert.Equal(t, "uploads/2026/03/09/.._etc_passwd.pdf", a.ObjectName("../etc/passwd.pdf"))
	assert.Equal(t, "uploads/2026/03/09/unnamed.pdf", a.ObjectName(""))
}

func TestMinIOArchiver_Error(t *testing.T) {
	a := newArchiver(t, &fakePutter{err: errors.New("access denied")})
	err := a.Archive(context.Background(), "x.pdf", []byte("data"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "access denied")
}
