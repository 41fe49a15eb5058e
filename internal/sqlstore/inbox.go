package sqlstore

import (
	"database/sql"
	"encoding/json"
	"fmt"

	"github.com/cockroachdb/errors"

	"github.com/zombor/billbox/internal/inbox"
)

const itemColumns = `id, original_filename, storage_path, uploaded_at, checksum, user_id, status,
	ocr, failure_reason, linked_id, linked_type, created_at, updated_at`

// InboxStore implements inbox.Store on SQLite. UNIQUE(checksum) backs deduplication.
type InboxStore struct {
	db *sql.DB
}

// NewInboxStore wraps an opened database
func NewInboxStore(db *sql.DB) *InboxStore {
	return &InboxStore{db: db}
}

// FindByChecksum returns the item with the given checksum, or nil
func (s *InboxStore) FindByChecksum(checksum string) (*inbox.Item, error) {
	row := s.db.QueryRow(`SELECT `+itemColumns+` FROM inbox_items WHERE checksum = ?`, checksum)
	item, err := scanItem(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("finding item by checksum: %w", err)
	}
	return &item, nil
}

// Save inserts or replaces an item by ID
func (s *InboxStore) Save(item inbox.Item) error {
	var ocr sql.NullString
	if item.OCR != nil {
		data, err := json.Marshal(item.OCR)
		if err != nil {
			return fmt.Errorf("marshaling ocr data: %w", err)
		}
		ocr = sql.NullString{String: string(data), Valid: true}
	}

	_, err := s.db.Exec(`INSERT INTO inbox_items (`+itemColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			original_filename = excluded.original_filename,
			storage_path = excluded.storage_path,
			uploaded_at = excluded.uploaded_at,
			checksum = excluded.checksum,
			user_id = excluded.user_id,
			status = excluded.status,
			ocr = excluded.ocr,
			failure_reason = excluded.failure_reason,
			linked_id = excluded.linked_id,
			linked_type = excluded.linked_type,
			updated_at = excluded.updated_at`,
		item.ID, item.OriginalFilename, item.StoragePath, formatTime(item.UploadedAt),
		item.Checksum, item.UserID, string(item.Status), ocr, item.FailureReason,
		item.LinkedID, string(item.LinkedType), formatTime(item.CreatedAt), formatTime(item.UpdatedAt),
	)
	if isUniqueViolation(err) {
		return errors.Wrapf(inbox.ErrDuplicateChecksum, "checksum %s", item.Checksum)
	}
	if err != nil {
		return fmt.Errorf("saving item: %w", err)
	}
	return nil
}

// Get retrieves an item by ID
func (s *InboxStore) Get(id string) (inbox.Item, error) {
	row := s.db.QueryRow(`SELECT `+itemColumns+` FROM inbox_items WHERE id = ?`, id)
	item, err := scanItem(row)
	if errors.Is(err, sql.ErrNoRows) {
		return inbox.Item{}, errors.Wrapf(inbox.ErrNotFound, "item %s", id)
	}
	if err != nil {
		return inbox.Item{}, fmt.Errorf("getting item: %w", err)
	}
	return item, nil
}

// List returns every item
func (s *InboxStore) List() ([]inbox.Item, error) {
	return s.query(`SELECT ` + itemColumns + ` FROM inbox_items ORDER BY uploaded_at, id`)
}

// FindByStatus returns the items in a given state
func (s *InboxStore) FindByStatus(status inbox.Status) ([]inbox.Item, error) {
	return s.query(`SELECT `+itemColumns+` FROM inbox_items WHERE status = ? ORDER BY uploaded_at, id`, string(status))
}

// FindByUserIDAndStatus returns one user's items in a given state
func (s *InboxStore) FindByUserIDAndStatus(userID string, status inbox.Status) ([]inbox.Item, error) {
	return s.query(`SELECT `+itemColumns+` FROM inbox_items WHERE user_id = ? AND status = ? ORDER BY uploaded_at, id`, userID, string(status))
}

// Close closes the database
func (s *InboxStore) Close() error {
	return s.db.Close()
}

func (s *InboxStore) query(q string, args ...any) ([]inbox.Item, error) {
	rows, err := s.db.Query(q, args...)
	if err != nil {
		return nil, fmt.Errorf("querying items: %w", err)
	}
	defer rows.Close()

	items := make([]inbox.Item, 0)
	for rows.Next() {
		item, err := scanItem(rows)
		if err != nil {
			return nil, err
		}
		items = append(items, item)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating items: %w", err)
	}
	return items, nil
}

type scanner interface {
	Scan(dest ...any) error
}

func scanItem(row scanner) (inbox.Item, error) {
	var (
		item                       inbox.Item
		status, linkedType         string
		uploaded, created, updated string
		ocr                        sql.NullString
	)
	err := row.Scan(&item.ID, &item.OriginalFilename, &item.StoragePath, &uploaded, &item.Checksum,
		&item.UserID, &status, &ocr, &item.FailureReason, &item.LinkedID, &linkedType, &created, &updated)
	if err != nil {
		return inbox.Item{}, err
	}

	item.Status = inbox.Status(status)
	item.LinkedType = inbox.LinkType(linkedType)
	if ocr.Valid {
		var data inbox.OCRData
		if err := json.Unmarshal([]byte(ocr.String), &data); err != nil {
			return inbox.Item{}, fmt.Errorf("unmarshaling ocr data: %w", err)
		}
		item.OCR = &data
	}
	if item.UploadedAt, err = parseTime(uploaded); err != nil {
		return inbox.Item{}, err
	}
	if item.CreatedAt, err = parseTime(created); err != nil {
		return inbox.Item{}, err
	}
	if item.UpdatedAt, err = parseTime(updated); err != nil {
		return inbox.Item{}, err
	}
	return item, nil
}
