// Package storage keeps ticket attachment blobs.
package storage

import (
	"context"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"math/rand/v2"
	"os"
	"path"
	"path/filepath"
	"strings"
	"time"

	"github.com/zeebo/blake3"
)

var (
	// ErrTooLarge is returned when a blob exceeds the store's ceiling.
	ErrTooLarge = errors.New("file exceeds upload limit")
	// ErrInvalidName is returned for names that would escape the store.
	ErrInvalidName = errors.New("invalid blob name")
)

// Object describes a stored blob.
type Object struct {
	Name     string
	Path     string
	Size     int64
	Checksum string
}

// BlobStore is an opaque blob store keyed by name.
type BlobStore interface {
	Put(ctx context.Context, name string, r io.Reader) (Object, error)
	Open(ctx context.Context, name string) (io.ReadCloser, error)
	Delete(ctx context.Context, name string) error
	MaxBytes() int64
}

// LocalStore writes blobs under a directory on disk. Public paths are
// prefix + "/" + name.
type LocalStore struct {
	dir      string
	prefix   string
	maxBytes int64
}

// NewLocalStore creates dir if needed.
func NewLocalStore(dir, publicPrefix string, maxBytes int64) (*LocalStore, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create upload dir: %w", err)
	}
	return &LocalStore{dir: dir, prefix: strings.TrimRight(publicPrefix, "/"), maxBytes: maxBytes}, nil
}

// Dir is the directory served as static files.
func (s *LocalStore) Dir() string { return s.dir }

// MaxBytes is the per-blob ceiling; zero means unlimited.
func (s *LocalStore) MaxBytes() int64 { return s.maxBytes }

// Put streams r into name, hashing it with BLAKE3 on the way. The blob is
// written to a temporary file first and renamed into place, so readers
// never observe partial content.
func (s *LocalStore) Put(ctx context.Context, name string, r io.Reader) (Object, error) {
	if err := validName(name); err != nil {
		return Object{}, err
	}
	if err := ctx.Err(); err != nil {
		return Object{}, err
	}

	tmp, err := os.CreateTemp(s.dir, ".upload-*")
	if err != nil {
		return Object{}, fmt.Errorf("create temp blob: %w", err)
	}
	defer os.Remove(tmp.Name())

	src := r
	if s.maxBytes > 0 {
		src = io.LimitReader(r, s.maxBytes+1)
	}
	hasher := blake3.New()
	size, err := io.Copy(io.MultiWriter(tmp, hasher), src)
	if closeErr := tmp.Close(); err == nil {
		err = closeErr
	}
	if err != nil {
		return Object{}, fmt.Errorf("write blob: %w", err)
	}
	if s.maxBytes > 0 && size > s.maxBytes {
		return Object{}, ErrTooLarge
	}

	if err := os.Rename(tmp.Name(), filepath.Join(s.dir, name)); err != nil {
		return Object{}, fmt.Errorf("store blob: %w", err)
	}
	return Object{
		Name:     name,
		Path:     s.prefix + "/" + name,
		Size:     size,
		Checksum: hex.EncodeToString(hasher.Sum(nil)),
	}, nil
}

// Open returns a reader for name.
func (s *LocalStore) Open(_ context.Context, name string) (io.ReadCloser, error) {
	if err := validName(name); err != nil {
		return nil, err
	}
	return os.Open(filepath.Join(s.dir, name))
}

// Delete removes name. Missing blobs are not an error.
func (s *LocalStore) Delete(_ context.Context, name string) error {
	if err := validName(name); err != nil {
		return err
	}
	err := os.Remove(filepath.Join(s.dir, name))
	if err != nil && !errors.Is(err, os.ErrNotExist) {
		return err
	}
	return nil
}

func validName(name string) error {
	if name == "" || name != filepath.Base(name) || strings.HasPrefix(name, ".") {
		return fmt.Errorf("%w: %q", ErrInvalidName, name)
	}
	return nil
}

// AttachmentName builds "attachment-<unix-ms>-<rand><ext>" keeping the
// extension of the uploaded file.
func AttachmentName(originalName string, now time.Time) string {
	return fmt.Sprintf("attachment-%d-%d%s", now.UnixMilli(), rand.Int64N(1_000_000_000), safeExt(originalName))
}

func safeExt(originalName string) string {
	ext := strings.ToLower(path.Ext(strings.ReplaceAll(originalName, `\`, "/")))
	if len(ext) > 16 {
		return ""
	}
	for _, r := range ext[min(1, len(ext)):] {
		if !(r >= 'a' && r <= 'z' || r >= '0' && r <= '9') {
			return ""
		}
	}
	return ext
}
