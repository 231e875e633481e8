package storage

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"mediagen/internal/domain"
)

// FileStore persists artifacts onto the local filesystem. It is intended for
// single node deployments and tests where an object storage service is not
// available.
type FileStore struct {
	basePath string
	now      func() time.Time
}

// NewFileStore initializes a FileStore rooted at basePath.
func NewFileStore(basePath string) (*FileStore, error) {
	basePath = strings.TrimSpace(basePath)
	if basePath == "" {
		return nil, errors.New("storage: base path is required")
	}
	if err := os.MkdirAll(basePath, 0o755); err != nil {
		return nil, fmt.Errorf("storage: ensure base path: %w", err)
	}
	return &FileStore{basePath: basePath, now: time.Now}, nil
}

// BasePath returns the configured root directory.
func (s *FileStore) BasePath() string {
	if s == nil {
		return ""
	}
	return s.basePath
}

// Write persists a under a fresh key and returns its artifact URI.
func (s *FileStore) Write(ctx context.Context, a domain.Artifact) (string, error) {
	if s == nil {
		return "", errors.New("storage: no store configured")
	}
	if err := ctx.Err(); err != nil {
		return "", err
	}
	if len(a.Data) == 0 {
		return "", errors.New("storage: empty artifact")
	}
	key := NewKey(a.Tag, a.Kind, a.ContentType, s.now())
	if _, err := s.put(key, a.Data); err != nil {
		return "", err
	}
	return URI(key), nil
}

func (s *FileStore) put(key string, data []byte) (string, error) {
	cleanKey, err := sanitizeKey(key)
	if err != nil {
		return "", err
	}
	fullPath := filepath.Join(s.basePath, filepath.FromSlash(cleanKey))
	if err := os.MkdirAll(filepath.Dir(fullPath), 0o755); err != nil {
		return "", fmt.Errorf("storage: ensure directory: %w", err)
	}
	// write-then-rename so readers never observe a partial file
	tmp := fullPath + ".tmp"
	if err := writeFileInDir(tmp, data); err != nil {
		return "", fmt.Errorf("storage: write file: %w", err)
	}
	if err := os.Rename(tmp, fullPath); err != nil {
		_ = os.Remove(tmp)
		return "", fmt.Errorf("storage: commit file: %w", err)
	}
	return cleanKey, nil
}

// writeFileInDir writes path, recreating its directory once if a concurrent
// Cleanup pruned it after MkdirAll.
func writeFileInDir(path string, data []byte) error {
	err := os.WriteFile(path, data, 0o644)
	if !errors.Is(err, fs.ErrNotExist) {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	return os.WriteFile(path, data, 0o644)
}

// Read loads the artifact behind uri.
func (s *FileStore) Read(ctx context.Context, uri string) (domain.Artifact, error) {
	if err := ctx.Err(); err != nil {
		return domain.Artifact{}, err
	}
	key, err := KeyFromURI(uri)
	if err != nil {
		return domain.Artifact{}, err
	}
	fullPath := filepath.Join(s.basePath, filepath.FromSlash(key))
	info, err := os.Stat(fullPath)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return domain.Artifact{}, domain.ErrNotFound
		}
		return domain.Artifact{}, fmt.Errorf("storage: stat: %w", err)
	}
	if info.IsDir() {
		return domain.Artifact{}, domain.ErrNotFound
	}
	data, err := os.ReadFile(fullPath)
	if err != nil {
		return domain.Artifact{}, fmt.Errorf("storage: read file: %w", err)
	}
	return domain.Artifact{
		Key:         key,
		Kind:        kindForKey(key),
		Tag:         TagOf(key),
		ContentType: MIMEForKey(key),
		Data:        data,
		Bytes:       int64(len(data)),
		ModifiedAt:  info.ModTime().UTC(),
	}, nil
}

// Cleanup deletes files whose modification time is older than maxAge and
// prunes directories left empty.
func (s *FileStore) Cleanup(ctx context.Context, maxAge time.Duration) (int, error) {
	cutoff := s.now().Add(-maxAge)
	removed := 0
	var dirs []string
	err := filepath.WalkDir(s.basePath, func(p string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if ctxErr := ctx.Err(); ctxErr != nil {
			return ctxErr
		}
		if d.IsDir() {
			if p != s.basePath {
				dirs = append(dirs, p)
			}
			return nil
		}
		info, err := d.Info()
		if err != nil {
			return err
		}
		if info.ModTime().Before(cutoff) {
			if err := os.Remove(p); err != nil && !errors.Is(err, fs.ErrNotExist) {
				return fmt.Errorf("storage: remove %s: %w", p, err)
			}
			removed++
		}
		return nil
	})
	if err != nil {
		return removed, err
	}
	// deepest first so parents empty out after their children
	sort.Slice(dirs, func(i, j int) bool { return len(dirs[i]) > len(dirs[j]) })
	for _, dir := range dirs {
		entries, err := os.ReadDir(dir)
		if err == nil && len(entries) == 0 {
			_ = os.Remove(dir)
		}
	}
	return removed, nil
}
