package blob

import (
	"bytes"
	"context"
	"crypto/rand"
	"encoding/base64"
	"errors"
	"fmt"
	"image"
	"io"
	"os"
	"path"
	"path/filepath"
	"strings"
)

type Kind string

const (
	KindProfilePicture Kind = "profile_pictures"
	KindChatImage      Kind = "chat_images"
)

var (
	ErrInvalidKind = errors.New("invalid blob kind")
	ErrInvalidPath = errors.New("invalid blob path")
)

// Store persists user content under slash separated keys.
type Store interface {
	Put(ctx context.Context, key, contentType string, data []byte) error
	Delete(ctx context.Context, key string) error
}

// Service names, encodes and stores images.
type Service struct {
	store Store
}

func NewService(store Store) *Service {
	return &Service{store: store}
}

// SaveImage stores img as PNG under a fresh random key of the given kind and
// returns the key.
func (s *Service) SaveImage(ctx context.Context, kind Kind, img image.Image) (string, error) {
	if !isValidKind(kind) {
		return "", ErrInvalidKind
	}

	data, err := EncodePNG(img)
	if err != nil {
		return "", err
	}

	name, err := randomName()
	if err != nil {
		return "", fmt.Errorf("generating blob name: %w", err)
	}

	key := path.Join(string(kind), name+".png")
	if err := s.store.Put(ctx, key, "image/png", data); err != nil {
		return "", err
	}
	return key, nil
}

func (s *Service) Delete(ctx context.Context, key string) error {
	return s.store.Delete(ctx, key)
}

// FileStore keeps blobs under a root directory.
type FileStore struct {
	rootDir string
}

func NewFileStore(rootDir string) (*FileStore, error) {
	if strings.TrimSpace(rootDir) == "" {
		return nil, fmt.Errorf("blob root directory is required")
	}
	if err := os.MkdirAll(rootDir, 0o755); err != nil {
		return nil, fmt.Errorf("creating blob root directory: %w", err)
	}
	return &FileStore{rootDir: rootDir}, nil
}

func (s *FileStore) Root() string {
	return s.rootDir
}

func (s *FileStore) Put(_ context.Context, key, _ string, data []byte) error {
	absPath, err := s.resolveStoragePath(key)
	if err != nil {
		return err
	}

	if err := os.MkdirAll(filepath.Dir(absPath), 0o755); err != nil {
		return fmt.Errorf("creating blob directory: %w", err)
	}

	tmpFile, err := os.CreateTemp(filepath.Dir(absPath), "blob-write-*.tmp")
	if err != nil {
		return fmt.Errorf("creating temporary blob file: %w", err)
	}
	tmpPath := tmpFile.Name()
	defer func() {
		_ = tmpFile.Close()
		_ = os.Remove(tmpPath)
	}()

	if _, err := io.Copy(tmpFile, bytes.NewReader(data)); err != nil {
		return fmt.Errorf("writing blob file: %w", err)
	}
	if err := tmpFile.Close(); err != nil {
		return fmt.Errorf("closing temporary blob file: %w", err)
	}

	if err := os.Rename(tmpPath, absPath); err != nil {
		return fmt.Errorf("finalizing blob file: %w", err)
	}
	return nil
}

func (s *FileStore) Open(key string) (*os.File, error) {
	absPath, err := s.resolveStoragePath(key)
	if err != nil {
		return nil, err
	}
	return os.Open(absPath)
}

func (s *FileStore) Delete(_ context.Context, key string) error {
	absPath, err := s.resolveStoragePath(key)
	if err != nil {
		return err
	}

	err = os.Remove(absPath)
	if errors.Is(err, os.ErrNotExist) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("deleting blob file: %w", err)
	}
	return nil
}

func (s *FileStore) resolveStoragePath(key string) (string, error) {
	clean := filepath.Clean(filepath.FromSlash(key))
	if clean == "." || strings.HasPrefix(clean, "..") || filepath.IsAbs(clean) {
		return "", ErrInvalidPath
	}
	return filepath.Join(s.rootDir, clean), nil
}

func randomName() (string, error) {
	b := make([]byte, 64)
	if _, err := rand.Read(b); err != nil {
		return "", err
	}
	return base64.RawURLEncoding.EncodeToString(b), nil
}

func isValidKind(kind Kind) bool {
	switch kind {
	case KindProfilePicture, KindChatImage:
		return true
	default:
		return false
	}
}
