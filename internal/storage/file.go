package storage

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/spf13/afero"

	logx "schedbot/pkg/logx"
)

// fileStore keeps one file per blob:
//
//	<base>/<namespace>/<key>.json
//
// Names are path-escaped so account IDs cannot walk out of base. Writes go to a
// temp file first and are renamed into place, so a crash never leaves a torn blob.
type fileStore struct {
	fs   afero.Fs
	base string
	log  logx.Logger

	mu     sync.Mutex
	closed bool
}

// OpenFile opens a file-backed BlobStore rooted at base on fs.
func OpenFile(fs afero.Fs, base string, log logx.Logger) (BlobStore, error) {
	base = strings.TrimSpace(base)
	if base == "" {
		return nil, errors.New("storage.path is required for file driver")
	}
	if log.IsZero() {
		log = logx.Nop()
	}
	if err := fs.MkdirAll(base, 0o755); err != nil {
		return nil, err
	}
	return &fileStore{fs: fs, base: base, log: log}, nil
}

func escapeName(s string) (string, error) {
	s = strings.TrimSpace(s)
	if s == "" || s == "." || s == ".." {
		return "", fmt.Errorf("invalid blob name %q", s)
	}
	return url.PathEscape(s), nil
}

func (s *fileStore) pathFor(namespace, key string) (dir, file string, err error) {
	ns, err := escapeName(namespace)
	if err != nil {
		return "", "", err
	}
	k, err := escapeName(key)
	if err != nil {
		return "", "", err
	}
	dir = filepath.Join(s.base, ns)
	return dir, filepath.Join(dir, k+".json"), nil
}

func (s *fileStore) Get(_ context.Context, namespace, key string) ([]byte, bool, error) {
	_, path, err := s.pathFor(namespace, key)
	if err != nil {
		return nil, false, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil, false, ErrClosed
	}
	b, err := afero.ReadFile(s.fs, path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, false, nil
		}
		return nil, false, err
	}
	return b, true, nil
}

func (s *fileStore) Put(_ context.Context, namespace, key string, data []byte) error {
	dir, path, err := s.pathFor(namespace, key)
	if err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return ErrClosed
	}
	if err := s.fs.MkdirAll(dir, 0o755); err != nil {
		return err
	}
	tmp := path + ".tmp"
	if err := afero.WriteFile(s.fs, tmp, data, 0o600); err != nil {
		_ = s.fs.Remove(tmp)
		return err
	}
	if err := s.fs.Rename(tmp, path); err != nil {
		_ = s.fs.Remove(tmp)
		return err
	}
	s.log.Trace("blob written", logx.String("path", path), logx.Int("bytes", len(data)))
	return nil
}

func (s *fileStore) Close() error {
	s.mu.Lock()
	s.closed = true
	s.mu.Unlock()
	return nil
}
