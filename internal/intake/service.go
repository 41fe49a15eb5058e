package intake

import (
	"errors"
	"fmt"
	"io"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"github.com/google/uuid"

	"github.com/zombor/billbox/internal/inbox"
)

// SupportedExtensions lists the document types accepted for intake
var SupportedExtensions = map[string]bool{
	".pdf":  true,
	".jpg":  true,
	".jpeg": true,
	".png":  true,
	".gif":  true,
	".heic": true,
	".heif": true,
}

// Repository is the part of inbox.Store intake needs
type Repository interface {
	FindByChecksum(checksum string) (*inbox.Item, error)
	Save(item inbox.Item) error
}

// IDGenerator generates unique IDs for inbox items
type IDGenerator interface {
	Generate() string
}

type uuidGenerator struct{}

func (uuidGenerator) Generate() string { return uuid.NewString() }

// Status classifies the outcome of processing one file
type Status string

const (
	StatusCreated   Status = "created"
	StatusDuplicate Status = "duplicate"
	StatusNotReady  Status = "not_ready"
)

// Outcome describes what happened to one incoming file
type Outcome struct {
	Status Status `json:"status"`
	// Item is the new inbox item when Status is created
	Item *inbox.Item `json:"item,omitempty"`
	// Existing is the item already holding the same content when Status is duplicate
	Existing *inbox.Item `json:"existing,omitempty"`
	// Reason explains a not_ready outcome
	Reason string `json:"reason,omitempty"`
}

// Service moves incoming files into storage and registers them as inbox items
type Service struct {
	repo        Repository
	storage     Allocator
	checksummer Checksummer
	idGenerator IDGenerator
	timeSource  TimeSource
}

// NewService creates a new Service with SHA-256 checksums and UUID ids
func NewService(repo Repository, storage Allocator) *Service {
	return &Service{
		repo:        repo,
		storage:     storage,
		checksummer: SHA256{},
		idGenerator: uuidGenerator{},
		timeSource:  defaultTimeSource{},
	}
}

// NewServiceWithDeps creates a new Service with custom dependencies for testing
func NewServiceWithDeps(repo Repository, storage Allocator, checksummer Checksummer, idGen IDGenerator, timeSrc TimeSource) *Service {
	return &Service{
		repo:        repo,
		storage:     storage,
		checksummer: checksummer,
		idGenerator: idGen,
		timeSource:  timeSrc,
	}
}

// Ready reports whether path looks like a complete, supported document
func Ready(path string) (bool, string) {
	ext := strings.ToLower(filepath.Ext(path))
	if !SupportedExtensions[ext] {
		return false, fmt.Sprintf("unsupported file type %q", ext)
	}

	info, err := os.Stat(path)
	if err != nil {
		return false, fmt.Sprintf("file is not accessible: %v", err)
	}
	if !info.Mode().IsRegular() {
		return false, "not a regular file"
	}
	if info.Size() == 0 {
		return false, "file is empty"
	}

	f, err := os.Open(path)
	if err != nil {
		return false, fmt.Sprintf("file is not readable: %v", err)
	}
	defer f.Close()
	if _, err := f.Read(make([]byte, 1)); err != nil && !errors.Is(err, io.EOF) {
		return false, fmt.Sprintf("file is not readable: %v", err)
	}
	return true, ""
}

// Process ingests one file. Deduplication is global: content already stored for any
// user is reported as a duplicate and the incoming file is left where it is.
func (s *Service) Process(path, userID string) (Outcome, error) {
	if ok, reason := Ready(path); !ok {
		slog.Info("File not ready for intake", "path", path, "reason", reason)
		return Outcome{Status: StatusNotReady, Reason: reason}, nil
	}

	sum, err := s.checksummer.Checksum(path)
	if err != nil {
		return Outcome{}, fmt.Errorf("computing checksum: %w", err)
	}

	existing, err := s.repo.FindByChecksum(sum)
	if err != nil {
		return Outcome{}, fmt.Errorf("checking for duplicate: %w", err)
	}
	if existing != nil {
		slog.Info("Duplicate file skipped", "path", path, "existing", existing.ID)
		return Outcome{Status: StatusDuplicate, Existing: existing}, nil
	}

	dst, err := s.storage.Allocate(filepath.Base(path))
	if err != nil {
		return Outcome{}, fmt.Errorf("allocating storage path: %w", err)
	}
	if err := Move(path, dst); err != nil {
		if relErr := s.storage.Release(dst); relErr != nil {
			slog.Error("Failed to release storage path", "path", dst, "error", relErr)
		}
		return Outcome{}, fmt.Errorf("moving file to storage: %w", err)
	}

	item := inbox.NewItem(s.idGenerator.Generate(), filepath.Base(path), dst, sum, userID, s.timeSource.Now())
	if err := s.repo.Save(item); err != nil {
		if mvErr := Move(dst, path); mvErr != nil {
			slog.Error("Failed to restore file after save error", "from", dst, "to", path, "error", mvErr)
		}
		if errors.Is(err, inbox.ErrDuplicateChecksum) {
			existing, findErr := s.repo.FindByChecksum(sum)
			if findErr == nil && existing != nil {
				return Outcome{Status: StatusDuplicate, Existing: existing}, nil
			}
		}
		return Outcome{}, fmt.Errorf("saving inbox item: %w", err)
	}

	slog.Info("File ingested", "id", item.ID, "path", dst, "user", userID)
	return Outcome{Status: StatusCreated, Item: &item}, nil
}

// Stats summarises a directory ingest
type Stats struct {
	Scanned    int `json:"scanned"`
	Created    int `json:"created"`
	Duplicates int `json:"duplicates"`
	NotReady   int `json:"not_ready"`
	Failed     int `json:"failed"`
}

// ProcessDirectory ingests every file below root, skipping hidden entries.
// Per-file errors are logged and counted; only a walk error aborts.
func (s *Service) ProcessDirectory(root, userID string) (Stats, error) {
	var stats Stats
	err := filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if path != root && strings.HasPrefix(d.Name(), ".") {
			if d.IsDir() {
				return filepath.SkipDir
			}
			return nil
		}
		if d.IsDir() {
			return nil
		}

		stats.Scanned++
		out, err := s.Process(path, userID)
		if err != nil {
			slog.Error("Failed to ingest file", "path", path, "error", err)
			stats.Failed++
			return nil
		}
		switch out.Status {
		case StatusCreated:
			stats.Created++
		case StatusDuplicate:
			stats.Duplicates++
		case StatusNotReady:
			stats.NotReady++
		}
		return nil
	})
	if err != nil {
		return stats, fmt.Errorf("walking %s: %w", root, err)
	}
	return stats, nil
}
