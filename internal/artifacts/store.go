// Package artifacts stores run outputs (screenshots, reports) either on the
// local filesystem or in an S3-compatible bucket.
package artifacts

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path"
	"path/filepath"
	"strings"
)

// ErrNotFound is returned when a requested artifact does not exist.
var ErrNotFound = errors.New("artifacts: not found")

// Store persists named artifacts. Keys use forward slashes.
type Store interface {
	// Put stores data under key and returns where it can be found.
	Put(ctx context.Context, key string, data []byte, contentType string) (string, error)
	Get(ctx context.Context, key string) ([]byte, error)
}

// Key joins path segments into a clean, slash-separated artifact key.
func Key(parts ...string) string {
	cleaned := make([]string, 0, len(parts))
	for _, p := range parts {
		p = strings.Trim(strings.ReplaceAll(p, "\\", "/"), "/")
		if p != "" {
			cleaned = append(cleaned, p)
		}
	}
	return path.Clean(strings.Join(cleaned, "/"))
}

// Local writes artifacts under a root directory.
type Local struct {
	root string
}

// NewLocal creates the root directory if needed.
func NewLocal(root string) (*Local, error) {
	if err := os.MkdirAll(root, 0o755); err != nil {
		return nil, fmt.Errorf("artifacts: create %s: %w", root, err)
	}
	return &Local{root: root}, nil
}

func (l *Local) resolve(key string) (string, error) {
	key = Key(key)
	if key == "." || strings.HasPrefix(key, "../") || key == ".." {
		return "", fmt.Errorf("artifacts: invalid key %q", key)
	}
	return filepath.Join(l.root, filepath.FromSlash(key)), nil
}

func (l *Local) Put(ctx context.Context, key string, data []byte, _ string) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	p, err := l.resolve(key)
	if err != nil {
		return "", err
	}
	if err := os.MkdirAll(filepath.Dir(p), 0o755); err != nil {
		return "", fmt.Errorf("artifacts: create dir for %q: %w", key, err)
	}
	if err := os.WriteFile(p, data, 0o644); err != nil {
		return "", fmt.Errorf("artifacts: write %q: %w", key, err)
	}
	return p, nil
}

func (l *Local) Get(ctx context.Context, key string) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	p, err := l.resolve(key)
	if err != nil {
		return nil, err
	}
	data, err := os.ReadFile(p)
	if errors.Is(err, os.ErrNotExist) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("artifacts: read %q: %w", key, err)
	}
	return data, nil
}
