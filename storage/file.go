package storage

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/CreativeUnicorns/leafprefs"
)

const (
	// EnvRoot overrides the directory container files are kept in.
	EnvRoot = "LEAFPREFS_ROOT"

	containerExt = ".json"
	tmpPattern   = ".leafprefs-tmp-*"
)

// DefaultRoot returns $LEAFPREFS_ROOT, or the Maple preference directory under
// the user's home.
func DefaultRoot() (string, error) {
	if root := os.Getenv(EnvRoot); root != "" {
		return root, nil
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("file storage: resolve home directory: %w", err)
	}
	return filepath.Join(home, "Library", "Application Support", "Maple", ".prefs"), nil
}

// FileStorage keeps one JSON object per container at <root>/<container>.json.
// Every write reads the file, merges the update and replaces the whole file.
// Nothing coordinates writers in different processes: the last one wins.
type FileStorage struct {
	root string
	mu   sync.Mutex
}

// NewFileStorage creates a FileStorage rooted at root, or at DefaultRoot when root is empty.
// The directory is created on first write.
func NewFileStorage(root string) (*FileStorage, error) {
	if root == "" {
		var err error
		if root, err = DefaultRoot(); err != nil {
			return nil, err
		}
	}
	return &FileStorage{root: root}, nil
}

// Root returns the directory holding container files.
func (s *FileStorage) Root() string { return s.root }

// Path returns the file backing container.
func (s *FileStorage) Path(container string) (string, error) {
	if err := leafprefs.ValidateContainer(container); err != nil {
		return "", err
	}
	return filepath.Join(s.root, container+containerExt), nil
}

// Get retrieves the token stored under key in container.
func (s *FileStorage) Get(ctx context.Context, container, key string) (string, error) {
	values, err := s.LoadAll(ctx, container)
	if err != nil {
		return "", err
	}
	token, ok := values[key]
	if !ok {
		return "", leafprefs.ErrNotFound
	}
	return token, nil
}

// LoadAll reads container. A missing, unreadable or corrupt file reads as nil.
func (s *FileStorage) LoadAll(_ context.Context, container string) (map[string]string, error) {
	path, err := s.Path(container)
	if err != nil {
		return nil, err
	}
	return readContainerFile(path), nil
}

// SetAll merges values into container and rewrites its file.
func (s *FileStorage) SetAll(_ context.Context, container string, values map[string]string) error {
	path, err := s.Path(container)
	if err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	merged := readContainerFile(path)
	if merged == nil {
		merged = make(map[string]string, len(values))
	}
	for k, v := range values {
		merged[k] = v
	}

	data, err := json.Marshal(merged)
	if err != nil {
		return fmt.Errorf("%w: container %q: %v", leafprefs.ErrSerialization, container, err)
	}
	if err := os.MkdirAll(s.root, 0o755); err != nil {
		return fmt.Errorf("file storage: create %s: %w", s.root, err)
	}
	if err := atomicWrite(path, data, 0o644); err != nil {
		return fmt.Errorf("file storage: write container %q: %w", container, err)
	}
	return nil
}

// Containers lists the containers that have a file under the root.
func (s *FileStorage) Containers() ([]string, error) {
	entries, err := os.ReadDir(s.root)
	if errors.Is(err, fs.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("file storage: list %s: %w", s.root, err)
	}

	var names []string
	for _, e := range entries {
		if name, ok := containerName(e.Name()); ok && !e.IsDir() {
			names = append(names, name)
		}
	}
	return names, nil
}

// Close is a no-op for FileStorage.
func (s *FileStorage) Close() error {
	return nil
}

// containerName maps a file name back to its container. Temporary and hidden
// files are not containers.
func containerName(file string) (string, bool) {
	if strings.HasPrefix(file, ".") || !strings.HasSuffix(file, containerExt) {
		return "", false
	}
	name := strings.TrimSuffix(file, containerExt)
	if leafprefs.ValidateContainer(name) != nil {
		return "", false
	}
	return name, true
}

func readContainerFile(path string) map[string]string {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil
	}
	var values map[string]string
	if err := json.Unmarshal(data, &values); err != nil {
		return nil
	}
	return values
}

// atomicWrite writes data to a temp file next to path and renames it into place.
func atomicWrite(path string, data []byte, perm os.FileMode) error {
	tmpFile, err := os.CreateTemp(filepath.Dir(path), tmpPattern)
	if err != nil {
		return fmt.Errorf("failed to create temp file: %w", err)
	}
	tmpPath := tmpFile.Name()

	defer func() {
		if tmpFile != nil {
			_ = tmpFile.Close()
			_ = os.Remove(tmpPath)
		}
	}()

	if _, err := tmpFile.Write(data); err != nil {
		return fmt.Errorf("failed to write to temp file: %w", err)
	}
	if err := tmpFile.Sync(); err != nil {
		return fmt.Errorf("failed to sync temp file: %w", err)
	}
	if err := tmpFile.Close(); err != nil {
		return fmt.Errorf("failed to close temp file: %w", err)
	}
	if err := os.Chmod(tmpPath, perm); err != nil {
		return fmt.Errorf("failed to set permissions: %w", err)
	}
	if err := os.Rename(tmpPath, path); err != nil {
		return fmt.Errorf("failed to rename temp file: %w", err)
	}

	tmpFile = nil
	return nil
}
