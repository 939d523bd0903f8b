package compile

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"os"
	"path"
	"path/filepath"
	"time"

	"github.com/gogotex/gogotex/backend/collab/internal/storage"
)

// ArtifactStore persists a validated artifact and returns a reference the
// requester can fetch it from.
type ArtifactStore interface {
	Put(ctx context.Context, documentID, jobID string, pdf []byte) (string, error)
}

// FileStore writes <Dir>/<documentID>.pdf, served under URLPrefix. A later
// compile of the same document replaces the file.
type FileStore struct {
	Dir       string
	URLPrefix string
}

func (f *FileStore) Put(_ context.Context, documentID, _ string, pdf []byte) (string, error) {
	if err := os.MkdirAll(f.Dir, 0o755); err != nil {
		return "", fmt.Errorf("create download dir: %w", err)
	}
	tmp, err := os.CreateTemp(f.Dir, documentID+".*.tmp")
	if err != nil {
		return "", err
	}
	defer os.Remove(tmp.Name())
	if _, err := tmp.Write(pdf); err != nil {
		tmp.Close()
		return "", err
	}
	if err := tmp.Close(); err != nil {
		return "", err
	}
	name := documentID + ".pdf"
	if err := os.Rename(tmp.Name(), filepath.Join(f.Dir, name)); err != nil {
		return "", err
	}
	prefix := f.URLPrefix
	if prefix == "" {
		prefix = "/downloads"
	}
	return path.Join(prefix, name), nil
}

// ObjectStorage is the part of the MinIO client the artifact store needs.
type ObjectStorage interface {
	UploadFile(ctx context.Context, key string, r io.Reader, size int64, contentType string) error
	GetPresignedURL(ctx context.Context, key string, expires time.Duration) (string, error)
}

// MinIOStore uploads artifacts to compiled/<doc>/<job>.pdf and hands out
// presigned links.
type MinIOStore struct {
	Storage ObjectStorage
	Expiry  time.Duration
}

func NewMinIOStore(s *storage.MinIOStorage, expiry time.Duration) *MinIOStore {
	return &MinIOStore{Storage: s, Expiry: expiry}
}

func (m *MinIOStore) Put(ctx context.Context, documentID, jobID string, pdf []byte) (string, error) {
	key := path.Join("compiled", documentID, jobID+".pdf")
	if err := m.Storage.UploadFile(ctx, key, bytes.NewReader(pdf), int64(len(pdf)), "application/pdf"); err != nil {
		return "", fmt.Errorf("upload artifact: %w", err)
	}
	expiry := m.Expiry
	if expiry <= 0 {
		expiry = time.Hour
	}
	return m.Storage.GetPresignedURL(ctx, key, expiry)
}
