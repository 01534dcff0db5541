// Package cas keeps re-encoded images on disk under their SHA-256 digest so
// they can be downloaded after the request that produced them has finished.
package cas

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"regexp"

	"github.com/FocuswithJustin/convertkit/core/digest"
	"github.com/FocuswithJustin/convertkit/core/errors"
)

// Indirections over the filesystem calls that can fail mid-write.
var (
	osRename      = os.Rename
	tempFileWrite = func(f *os.File, data []byte) (int, error) { return f.Write(data) }
	tempFileClose = func(f io.Closer) error { return f.Close() }
)

// ErrBlobNotFound matches errors.ErrNotFound.
var ErrBlobNotFound = errors.Wrap(errors.ErrNotFound, "blob")

// ErrInvalidHash matches errors.ErrInvalidInput.
var ErrInvalidHash = errors.Wrap(errors.ErrInvalidInput, "invalid hash format")

var sha256Pattern = regexp.MustCompile(`^[a-f0-9]{64}$`)

// Store is a directory of blobs laid out as <root>/blobs/sha256/<ab>/<hash>.
type Store struct {
	root string
}

// NewStore creates the blob directory under root if needed.
func NewStore(root string) (*Store, error) {
	if err := os.MkdirAll(filepath.Join(root, "blobs", "sha256"), 0o755); err != nil {
		return nil, errors.NewIO("create", root, err)
	}
	return &Store{root: root}, nil
}

// Root returns the directory the store was opened on.
func (s *Store) Root() string {
	return s.root
}

// Store writes data and returns its hash. Writing content that is already
// present is a no-op.
func (s *Store) Store(data []byte) (string, error) {
	hash := Hash(data)
	blobPath := s.pathForHash(hash)
	if _, err := os.Stat(blobPath); err == nil {
		return hash, nil
	}

	dir := filepath.Dir(blobPath)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", errors.NewIO("create", dir, err)
	}

	tmp, err := os.CreateTemp(dir, ".blob-*")
	if err != nil {
		return "", fmt.Errorf("failed to create temp file: %w", err)
	}
	tmpPath := tmp.Name()

	if _, err := tempFileWrite(tmp, data); err != nil {
		tempFileClose(tmp)
		os.Remove(tmpPath)
		return "", errors.NewIO("write", tmpPath, err)
	}
	if err := tempFileClose(tmp); err != nil {
		os.Remove(tmpPath)
		return "", errors.NewIO("close", tmpPath, err)
	}
	if err := osRename(tmpPath, blobPath); err != nil {
		os.Remove(tmpPath)
		return "", errors.NewIO("rename", blobPath, err)
	}

	return hash, nil
}

// Retrieve returns the blob stored under hash.
func (s *Store) Retrieve(hash string) ([]byte, error) {
	if !ValidHash(hash) {
		return nil, ErrInvalidHash
	}

	data, err := os.ReadFile(s.pathForHash(hash))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, ErrBlobNotFound
		}
		return nil, errors.NewIO("read", hash, err)
	}
	return data, nil
}

// Exists reports whether a blob is stored under hash.
func (s *Store) Exists(hash string) bool {
	if !ValidHash(hash) {
		return false
	}
	_, err := os.Stat(s.pathForHash(hash))
	return err == nil
}

func (s *Store) pathForHash(hash string) string {
	return filepath.Join(s.root, "blobs", "sha256", hash[:2], hash)
}

// ValidHash reports whether hash is a lowercase hex SHA-256 digest.
func ValidHash(hash string) bool {
	return sha256Pattern.MatchString(hash)
}

// Hash returns the key data would be stored under.
func Hash(data []byte) string {
	h, _ := digest.Sum(data, "sha256")
	return h
}
