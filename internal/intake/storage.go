package intake

import (
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"sync"
	"time"
)

// TimeSource provides the current time
type TimeSource interface {
	Now() time.Time
}

type defaultTimeSource struct{}

func (defaultTimeSource) Now() time.Time { return time.Now() }

var (
	unsafeChars = regexp.MustCompile(`[^a-zA-Z0-9\s\-_]`)
	spaces      = regexp.MustCompile(`\s+`)
)

// maxAttempts bounds the -N suffix search
const maxAttempts = 10000

// SanitizeFilename strips directories and special characters and truncates long names
func SanitizeFilename(filename string) string {
	filename = filepath.Base(strings.ReplaceAll(filename, `\`, "/"))
	ext := strings.ToLower(filepath.Ext(filename))
	base := strings.TrimSuffix(filename, filepath.Ext(filename))

	base = unsafeChars.ReplaceAllString(base, "")
	base = spaces.ReplaceAllString(base, " ")
	base = strings.TrimSpace(base)

	if len(base) > 50 {
		base = base[:50]
	}
	if base == "" {
		base = "document"
	}
	if !strings.HasPrefix(ext, ".") || unsafeChars.MatchString(ext[1:]) {
		ext = ""
	}
	return base + ext
}

// Allocator hands out collision-free paths under the attachments root
type Allocator interface {
	// Allocate reserves a fresh path for filename; the same path is never returned twice
	Allocate(filename string) (string, error)
	// Release frees a reservation that was not used
	Release(path string) error
}

// LocalStorage implements Allocator on the local filesystem and moves documents into it
type LocalStorage struct {
	root       string
	timeSource TimeSource
	mu         sync.Mutex
}

// NewLocalStorage creates the root directory if needed
func NewLocalStorage(root string) (*LocalStorage, error) {
	return NewLocalStorageWithTime(root, defaultTimeSource{})
}

// NewLocalStorageWithTime creates a LocalStorage with an injected clock
func NewLocalStorageWithTime(root string, ts TimeSource) (*LocalStorage, error) {
	if err := os.MkdirAll(root, 0755); err != nil {
		return nil, fmt.Errorf("creating storage directory: %w", err)
	}
	return &LocalStorage{root: root, timeSource: ts}, nil
}

// Root returns the attachments directory
func (l *LocalStorage) Root() string { return l.root }

// Allocate returns root/YYYY-MM-DD-name, adding -1, -2, ... before the extension on collision.
// The path is reserved by creating an empty placeholder exclusively.
func (l *LocalStorage) Allocate(filename string) (string, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	if err := os.MkdirAll(l.root, 0755); err != nil {
		return "", fmt.Errorf("creating storage directory: %w", err)
	}

	clean := SanitizeFilename(filename)
	ext := filepath.Ext(clean)
	stem := l.timeSource.Now().Format("2006-01-02") + "-" + strings.TrimSuffix(clean, ext)

	for n := 0; n < maxAttempts; n++ {
		name := stem + ext
		if n > 0 {
			name = fmt.Sprintf("%s-%d%s", stem, n, ext)
		}
		path := filepath.Join(l.root, name)

		f, err := os.OpenFile(path, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0644)
		if errors.Is(err, os.ErrExist) {
			continue
		}
		if err != nil {
			return "", fmt.Errorf("reserving %s: %w", name, err)
		}
		if err := f.Close(); err != nil {
			return "", fmt.Errorf("reserving %s: %w", name, err)
		}
		return path, nil
	}
	return "", fmt.Errorf("no free name for %s after %d attempts", clean, maxAttempts)
}

// Release removes an unused reservation
func (l *LocalStorage) Release(path string) error {
	if err := os.Remove(path); err != nil && !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("releasing %s: %w", path, err)
	}
	return nil
}

// Open opens a stored document for reading
func (l *LocalStorage) Open(path string) (*os.File, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("opening stored file: %w", err)
	}
	return f, nil
}

// Move relocates src to dst. A rename is attempted first; across filesystems the
// file is copied, synced and the source removed.
func Move(src, dst string) error {
	if err := os.Rename(src, dst); err == nil {
		return nil
	}

	if err := copyFile(src, dst); err != nil {
		return err
	}
	if err := os.Remove(src); err != nil {
		return fmt.Errorf("removing source after copy: %w", err)
	}
	return nil
}

func copyFile(src, dst string) error {
	in, err := os.Open(src)
	if err != nil {
		return fmt.Errorf("opening source: %w", err)
	}
	defer in.Close()

	out, err := os.OpenFile(dst, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, 0644)
	if err != nil {
		return fmt.Errorf("creating destination: %w", err)
	}
	if _, err := io.Copy(out, in); err != nil {
		out.Close()
		return fmt.Errorf("copying file: %w", err)
	}
	if err := out.Sync(); err != nil {
		out.Close()
		return fmt.Errorf("syncing destination: %w", err)
	}
	if err := out.Close(); err != nil {
		return fmt.Errorf("closing destination: %w", err)
	}
	return nil
}
