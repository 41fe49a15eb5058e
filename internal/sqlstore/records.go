package sqlstore

import (
	"database/sql"
	"fmt"

	"github.com/cockroachdb/errors"

	"github.com/zombor/billbox/internal/receipt"
)

const recordColumns = `id, kind, user_id, provider, date, amount_cents, currency, description,
	state, inbox_item_id, created_at, updated_at`

// RecordDB implements receipt.DB on SQLite
type RecordDB struct {
	db *sql.DB
}

// NewRecordDB wraps an opened database
func NewRecordDB(db *sql.DB) *RecordDB {
	return &RecordDB{db: db}
}

// SaveRecord inserts or replaces a record by ID
func (r *RecordDB) SaveRecord(record receipt.Record) error {
	if record.Kind != receipt.KindBill && record.Kind != receipt.KindReceipt {
		return errors.Wrapf(receipt.ErrInvalid, "unknown kind %q", record.Kind)
	}
	_, err := r.db.Exec(`INSERT OR REPLACE INTO records (`+recordColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		record.ID, string(record.Kind), record.UserID, record.Provider, formatTime(record.Date),
		record.AmountCents, record.Currency, record.Description, string(record.State),
		record.InboxItemID, formatTime(record.CreatedAt), formatTime(record.UpdatedAt),
	)
	if err != nil {
		return fmt.Errorf("saving record: %w", err)
	}
	return nil
}

// GetRecord retrieves a record by kind and ID
func (r *RecordDB) GetRecord(kind receipt.Kind, id string) (receipt.Record, error) {
	row := r.db.QueryRow(`SELECT `+recordColumns+` FROM records WHERE kind = ? AND id = ?`, string(kind), id)
	record, err := scanRecord(row)
	if errors.Is(err, sql.ErrNoRows) {
		return receipt.Record{}, errors.Wrapf(receipt.ErrNotFound, "%s %s", kind, id)
	}
	if err != nil {
		return receipt.Record{}, fmt.Errorf("getting record: %w", err)
	}
	return record, nil
}

// ListRecords returns every record of a kind, newest date first
func (r *RecordDB) ListRecords(kind receipt.Kind) ([]receipt.Record, error) {
	rows, err := r.db.Query(`SELECT `+recordColumns+` FROM records WHERE kind = ? ORDER BY date DESC, id`, string(kind))
	if err != nil {
		return nil, fmt.Errorf("querying records: %w", err)
	}
	defer rows.Close()

	records := make([]receipt.Record, 0)
	for rows.Next() {
		record, err := scanRecord(rows)
		if err != nil {
			return nil, err
		}
		records = append(records, record)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating records: %w", err)
	}
	return records, nil
}

// Close closes the database
func (r *RecordDB) Close() error {
	return r.db.Close()
}

func scanRecord(row scanner) (receipt.Record, error) {
	var (
		rec                    receipt.Record
		kind, state            string
		date, created, updated string
	)
	err := row.Scan(&rec.ID, &kind, &rec.UserID, &rec.Provider, &date, &rec.AmountCents,
		&rec.Currency, &rec.Description, &state, &rec.InboxItemID, &created, &updated)
	if err != nil {
		return receipt.Record{}, err
	}
	rec.Kind = receipt.Kind(kind)
	rec.State = receipt.State(state)
	if rec.Date, err = parseTime(date); err != nil {
		return receipt.Record{}, err
	}
	if rec.CreatedAt, err = parseTime(created); err != nil {
		return receipt.Record{}, err
	}
	if rec.UpdatedAt, err = parseTime(updated); err != nil {
		return receipt.Record{}, err
	}
	return rec, nil
}
