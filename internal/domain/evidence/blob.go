package evidence

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/google/uuid"
)

// BlobStore keeps the original evidence files.
type BlobStore interface {
	Put(ctx context.Context, filename string, data []byte) (url string, err error)
	Get(ctx context.Context, url string) ([]byte, error)
	Delete(ctx context.Context, url string) error
}

// Cipher encrypts blobs at rest. *crypto.Service satisfies it and passes
// data through unchanged when no key is configured.
type Cipher interface {
	Encrypt(plain []byte) ([]byte, error)
	Decrypt(ciphertext []byte) ([]byte, error)
}

const urlPrefix = "evidence/"

var ErrBlobNotFound = errors.New("evidence blob not found")

type FileBlobStore struct {
	dir    string
	cipher Cipher
}

func NewFileBlobStore(dir string, cipher Cipher) (*FileBlobStore, error) {
	if err := os.MkdirAll(dir, 0o750); err != nil {
		return nil, fmt.Errorf("create evidence dir: %w", err)
	}
	return &FileBlobStore{dir: dir, cipher: cipher}, nil
}

func (s *FileBlobStore) Put(_ context.Context, filename string, data []byte) (string, error) {
	name := uuid.NewString() + strings.ToLower(filepath.Ext(filename))
	payload := data
	if s.cipher != nil {
		enc, err := s.cipher.Encrypt(data)
		if err != nil {
			return "", fmt.Errorf("encrypt evidence: %w", err)
		}
		payload = enc
	}
	if err := os.WriteFile(filepath.Join(s.dir, name), payload, 0o640); err != nil {
		return "", fmt.Errorf("write evidence: %w", err)
	}
	return urlPrefix + name, nil
}

func (s *FileBlobStore) Get(_ context.Context, url string) ([]byte, error) {
	path, err := s.path(url)
	if err != nil {
		return nil, err
	}
	payload, err := os.ReadFile(path)
	if errors.Is(err, os.ErrNotExist) {
		return nil, ErrBlobNotFound
	}
	if err != nil {
		return nil, err
	}
	if s.cipher == nil {
		return payload, nil
	}
	return s.cipher.Decrypt(payload)
}

func (s *FileBlobStore) Delete(_ context.Context, url string) error {
	path, err := s.path(url)
	if err != nil {
		return err
	}
	if err := os.Remove(path); err != nil && !errors.Is(err, os.ErrNotExist) {
		return err
	}
	return nil
}

func (s *FileBlobStore) path(url string) (string, error) {
	name := strings.TrimPrefix(url, urlPrefix)
	if name == url || name == "" || name != filepath.Base(name) {
		return "", ErrBlobNotFound
	}
	return filepath.Join(s.dir, name), nil
}
