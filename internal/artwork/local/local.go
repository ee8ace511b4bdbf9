// Package local spools uploaded banner artwork to disk until checkout sends
// it to the backend.
package local

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"
)

var (
	// ErrNotFound means no artwork is spooled under the key.
	ErrNotFound = errors.New("artwork not found")
	// ErrInvalidKey means the key does not name a file in the spool directory.
	ErrInvalidKey = errors.New("invalid artwork key")
)

// artworkExt maps the accepted upload types to spool file extensions.
var artworkExt = map[string]string{
	"image/jpeg":      ".jpg",
	"image/png":       ".png",
	"application/pdf": ".pdf",
}

// LocalStore spools uploaded artwork to a directory on disk. Keys are bare
// file names inside that directory.
type LocalStore struct {
	dir string
}

func NewLocalStore(dir string) (*LocalStore, error) {
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create artwork spool %s: %w", dir, err)
	}
	return &LocalStore{dir: dir}, nil
}

// Save spools r and returns its key. The artwork only appears under the key
// once it has been written completely.
func (s *LocalStore) Save(ctx context.Context, prefix, mimeType string, r io.Reader) (string, error) {
	ext, ok := artworkExt[mimeType]
	if !ok {
		ext = ".jpg"
	}
	key := fmt.Sprintf("%s_%d%s", prefix, time.Now().UnixNano(), ext)

	tmp, err := os.CreateTemp(s.dir, ".upload-*")
	if err != nil {
		return "", fmt.Errorf("failed to spool artwork: %w", err)
	}
	n, err := io.Copy(tmp, r)
	if cerr := tmp.Close(); err == nil {
		err = cerr
	}
	if err == nil {
		err = os.Rename(tmp.Name(), filepath.Join(s.dir, key))
	}
	if err != nil {
		if rerr := os.Remove(tmp.Name()); rerr != nil && !os.IsNotExist(rerr) {
			slog.Warn("partial artwork left in spool", "file", tmp.Name(), "error", rerr)
		}
		return "", fmt.Errorf("failed to spool artwork %s: %w", key, err)
	}
	slog.Debug("artwork spooled", "key", key, "bytes", n)
	return key, nil
}

// Get opens spooled artwork along with the MIME type its key implies.
func (s *LocalStore) Get(ctx context.Context, key string) (io.ReadCloser, string, error) {
	path, err := s.path(key)
	if err != nil {
		return nil, "", err
	}
	f, err := os.Open(path)
	switch {
	case os.IsNotExist(err):
		return nil, "", ErrNotFound
	case err != nil:
		return nil, "", fmt.Errorf("failed to open artwork %s: %w", key, err)
	}
	return f, mimeTypeOf(key), nil
}

func (s *LocalStore) Delete(ctx context.Context, key string) error {
	path, err := s.path(key)
	if err != nil {
		return err
	}
	err = os.Remove(path)
	switch {
	case os.IsNotExist(err):
		return ErrNotFound
	case err != nil:
		return fmt.Errorf("failed to drop artwork %s: %w", key, err)
	}
	return nil
}

// Purge removes every spooled file. Handles do not outlive the process, so
// files left over from a previous run are unreachable.
func (s *LocalStore) Purge() (int, error) {
	entries, err := os.ReadDir(s.dir)
	if err != nil {
		return 0, fmt.Errorf("failed to list artwork spool: %w", err)
	}
	removed := 0
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		if err := os.Remove(filepath.Join(s.dir, e.Name())); err != nil {
			return removed, fmt.Errorf("failed to drop stale artwork %s: %w", e.Name(), err)
		}
		removed++
	}
	return removed, nil
}

// path resolves key inside the spool. Anything but a plain file name is
// rejected.
func (s *LocalStore) path(key string) (string, error) {
	if key == "" || key != filepath.Base(key) || strings.HasPrefix(key, ".") {
		return "", fmt.Errorf("%w: %q", ErrInvalidKey, key)
	}
	return filepath.Join(s.dir, key), nil
}

func mimeTypeOf(key string) string {
	ext := strings.ToLower(filepath.Ext(key))
	for mimeType, e := range artworkExt {
		if e == ext {
			return mimeType
		}
	}
	return "image/jpeg"
}
