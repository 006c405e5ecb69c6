package storage

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"syscall"
	"time"
)

// LocalStorage implements Storage on the local filesystem. Files live in a
// flat directory as "<unix-millis>-<filename>" and are addressed by their
// public path, e.g. "/uploads/1691763771123-photo.png".
type LocalStorage struct {
	dir       string
	urlPrefix string
	now       func() time.Time
}

// NewLocalStorage creates dir if needed and returns a LocalStorage serving
// files under urlPrefix.
func NewLocalStorage(dir, urlPrefix string) (*LocalStorage, error) {
	abs, err := filepath.Abs(dir)
	if err != nil {
		return nil, fmt.Errorf("resolve upload dir: %w", err)
	}
	if err := os.MkdirAll(abs, 0o755); err != nil {
		return nil, fmt.Errorf("create upload dir: %w", err)
	}
	return &LocalStorage{
		dir:       abs,
		urlPrefix: "/" + strings.Trim(urlPrefix, "/"),
		now:       time.Now,
	}, nil
}

// Dir returns the absolute directory files are written to.
func (s *LocalStorage) Dir() string { return s.dir }

// URLPrefix returns the public path prefix, without a trailing slash.
func (s *LocalStorage) URLPrefix() string { return s.urlPrefix }

// Save writes f.Body to a new file and returns its public path.
// The name is not checked for collisions; a millisecond timestamp plus the
// original filename is unique enough for the expected load.
func (s *LocalStorage) Save(ctx context.Context, f File) (*Object, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	name := fmt.Sprintf("%d-%s", s.now().UnixMilli(), sanitizeFileName(f.Name))
	path := filepath.Join(s.dir, name)

	out, err := os.Create(path)
	if err != nil {
		return nil, fmt.Errorf("create file: %w", err)
	}

	if _, err := io.Copy(out, f.Body); err != nil {
		out.Close()
		os.Remove(path)
		return nil, fmt.Errorf("write file: %w", err)
	}
	if err := out.Close(); err != nil {
		os.Remove(path)
		return nil, fmt.Errorf("close file: %w", err)
	}

	return &Object{URL: s.urlPrefix + "/" + name}, nil
}

// Delete removes the file referenced by ref, which may be a public path
// ("/uploads/x.png") or a bare file name. References that point outside
// the upload directory, or at nothing, yield ErrNotFound.
func (s *LocalStorage) Delete(ctx context.Context, ref string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	path, err := s.resolve(ref)
	if err != nil {
		return err
	}
	info, err := os.Lstat(path)
	if err != nil {
		if isMissing(err) {
			return fmt.Errorf("%w: %s", ErrNotFound, ref)
		}
		return fmt.Errorf("stat file: %w", err)
	}
	if !info.Mode().IsRegular() {
		return fmt.Errorf("%w: %s", ErrNotFound, ref)
	}
	if err := os.Remove(path); err != nil {
		if isMissing(err) {
			return fmt.Errorf("%w: %s", ErrNotFound, ref)
		}
		return fmt.Errorf("delete file: %w", err)
	}
	return nil
}

// Open returns the stored file with the given name for reading.
func (s *LocalStorage) Open(ctx context.Context, name string) (*os.File, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	path, err := s.resolve(name)
	if err != nil {
		return nil, err
	}
	f, err := os.Open(path)
	if err != nil {
		if isMissing(err) {
			return nil, fmt.Errorf("%w: %s", ErrNotFound, name)
		}
		return nil, fmt.Errorf("open file: %w", err)
	}
	info, err := f.Stat()
	if err != nil {
		f.Close()
		return nil, fmt.Errorf("stat file: %w", err)
	}
	if !info.Mode().IsRegular() {
		f.Close()
		return nil, fmt.Errorf("%w: %s", ErrNotFound, name)
	}
	return f, nil
}

// maxNameBytes is the longest file name common filesystems accept.
const maxNameBytes = 255

// resolve maps a reference to an absolute path directly inside s.dir.
func (s *LocalStorage) resolve(ref string) (string, error) {
	name := strings.TrimSpace(ref)
	name = strings.TrimPrefix(name, s.urlPrefix+"/")
	if name == "" || name == "." || name == ".." || len(name) > maxNameBytes ||
		strings.ContainsAny(name, "/\\\x00") {
		return "", fmt.Errorf("%w: %q is not a file in the upload directory", ErrNotFound, ref)
	}
	return filepath.Join(s.dir, name), nil
}

// isMissing reports whether err means no file can exist at the path.
func isMissing(err error) bool {
	return os.IsNotExist(err) ||
		errors.Is(err, syscall.ENAMETOOLONG) ||
		errors.Is(err, syscall.EINVAL) ||
		errors.Is(err, syscall.ENOTDIR)
}

var unsafeNameChars = regexp.MustCompile(`[^A-Za-z0-9._-]+`)

// sanitizeFileName keeps the base name of a client-supplied filename and
// replaces characters that are awkward in URLs or on disk.
func sanitizeFileName(name string) string {
	name = strings.ReplaceAll(name, `\`, "/")
	base := filepath.Base(strings.TrimSpace(name))
	base = unsafeNameChars.ReplaceAllString(base, "_")
	base = strings.TrimLeft(base, ".")
	if base == "" || base == "_" {
		return "image"
	}
	return base
}
