package dataset

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/google/uuid"
)

// BlobStorage is the external blob collaborator. The core calls it only
// during source upload and dataset materialization and assumes nothing beyond
// read-after-write.
type BlobStorage interface {
	Upload(ctx context.Context, fileName string, data []byte) (blobName, url string, err error)
	Download(ctx context.Context, blobName string) ([]byte, error)
	Delete(ctx context.Context, blobName string) (bool, error)
}

// DirBlobStorage stores blobs as files under a directory. It stands in for a
// cloud blob service in local deployments and tests.
type DirBlobStorage struct {
	Dir string
}

// NewDirBlobStorage creates the backing directory if needed.
func NewDirBlobStorage(dir string) (*DirBlobStorage, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("blob: create dir %s: %w", dir, err)
	}
	return &DirBlobStorage{Dir: dir}, nil
}

// Upload writes the payload under a collision-free blob name.
func (s *DirBlobStorage) Upload(ctx context.Context, fileName string, data []byte) (string, string, error) {
	base := filepath.Base(strings.TrimSpace(fileName))
	if base == "" || base == "." {
		base = "blob"
	}
	blobName := uuid.NewString() + "_" + base
	path := filepath.Join(s.Dir, blobName)
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return "", "", fmt.Errorf("blob: write %s: %w", blobName, err)
	}
	return blobName, "file://" + path, nil
}

// Download reads a stored blob.
func (s *DirBlobStorage) Download(ctx context.Context, blobName string) ([]byte, error) {
	data, err := os.ReadFile(filepath.Join(s.Dir, filepath.Base(blobName)))
	if err != nil {
		return nil, fmt.Errorf("blob: read %s: %w", blobName, err)
	}
	return data, nil
}

// Delete removes a stored blob, reporting whether it existed.
func (s *DirBlobStorage) Delete(ctx context.Context, blobName string) (bool, error) {
	err := os.Remove(filepath.Join(s.Dir, filepath.Base(blobName)))
	if os.IsNotExist(err) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("blob: delete %s: %w", blobName, err)
	}
	return true, nil
}
