package storage

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/google/uuid"
)

// StoredFile references a persisted upload. URL is what gets recorded on
// domain records; Handle is what Delete needs.
type StoredFile struct {
	URL    string
	Handle string
}

// FileStore persists opaque blobs and hands back stable references. Used for
// payment proofs, certificate documents and cover photos.
type FileStore interface {
	Store(data []byte, folderHint, nameHint string) (StoredFile, error)
	Delete(handle string) error
}

// LocalStore keeps files on disk under a base directory and serves them from
// a public base URL.
type LocalStore struct {
	baseDir string
	baseURL string
}

// NewLocalStore ensures the base directory exists and returns a store.
func NewLocalStore(baseDir, baseURL string) (*LocalStore, error) {
	if baseDir == "" {
		baseDir = "./uploads"
	}
	if err := os.MkdirAll(baseDir, 0o755); err != nil {
		return nil, fmt.Errorf("create upload directory: %w", err)
	}
	return &LocalStore{baseDir: baseDir, baseURL: strings.TrimRight(baseURL, "/")}, nil
}

// Store writes the blob under folderHint with a generated name. The extension
// of nameHint, if any, is kept so served files keep a usable content type.
func (s *LocalStore) Store(data []byte, folderHint, nameHint string) (StoredFile, error) {
	folder := sanitizeFolder(folderHint)
	handle := filepath.Join(folder, uuid.NewString()+safeExt(nameHint))
	path := filepath.Join(s.baseDir, handle)
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return StoredFile{}, fmt.Errorf("prepare upload directory: %w", err)
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return StoredFile{}, fmt.Errorf("write upload: %w", err)
	}
	return StoredFile{
		URL:    s.baseURL + "/" + filepath.ToSlash(handle),
		Handle: handle,
	}, nil
}

// Delete removes a stored file if present.
func (s *LocalStore) Delete(handle string) error {
	if handle == "" {
		return nil
	}
	path := filepath.Join(s.baseDir, filepath.FromSlash(handle))
	if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("delete upload: %w", err)
	}
	return nil
}

// Path exposes the underlying absolute path (useful for debugging).
func (s *LocalStore) Path(handle string) string {
	return filepath.Join(s.baseDir, filepath.FromSlash(handle))
}

func sanitizeFolder(hint string) string {
	hint = strings.Trim(strings.ReplaceAll(hint, "..", ""), "/")
	if hint == "" {
		hint = "misc"
	}
	return hint
}

func safeExt(nameHint string) string {
	ext := strings.ToLower(filepath.Ext(nameHint))
	if len(ext) > 10 || strings.ContainsAny(ext, "/\\") {
		return ""
	}
	return ext
}
