package receipt

import (
	"encoding/json"
	"fmt"
	"sort"
	"time"

	"github.com/cockroachdb/errors"
	"go.etcd.io/bbolt"
)

const (
	billsBucket    = "bills"
	receiptsBucket = "receipts"
)

// DB defines the interface for record persistence
type DB interface {
	// SaveRecord inserts or replaces a record by ID
	SaveRecord(record Record) error

	// GetRecord retrieves a record by kind and ID, failing with ErrNotFound
	GetRecord(kind Kind, id string) (Record, error)

	// ListRecords returns every record of a kind, removed ones included
	ListRecords(kind Kind) ([]Record, error)

	// Close closes the database connection
	Close() error
}

// BoltDB implements the DB interface using BoltDB
type BoltDB struct {
	db *bbolt.DB
}

// NewBoltDB creates a new BoltDB instance
func NewBoltDB(path string) (*BoltDB, error) {
	db, err := bbolt.Open(path, 0600, &bbolt.Options{Timeout: 1 * time.Second})
	if err != nil {
		return nil, fmt.Errorf("opening boltdb: %w", err)
	}
	b, err := NewBoltDBFromDB(db)
	if err != nil {
		db.Close()
		return nil, err
	}
	return b, nil
}

// NewBoltDBFromDB shares an already opened database, creating the buckets it needs
func NewBoltDBFromDB(db *bbolt.DB) (*BoltDB, error) {
	err := db.Update(func(tx *bbolt.Tx) error {
		if _, err := tx.CreateBucketIfNotExists([]byte(billsBucket)); err != nil {
			return err
		}
		if _, err := tx.CreateBucketIfNotExists([]byte(receiptsBucket)); err != nil {
			return err
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("creating buckets: %w", err)
	}
	return &BoltDB{db: db}, nil
}

func bucketFor(kind Kind) ([]byte, error) {
	switch kind {
	case KindBill:
		return []byte(billsBucket), nil
	case KindReceipt:
		return []byte(receiptsBucket), nil
	}
	return nil, errors.Wrapf(ErrInvalid, "unknown kind %q", kind)
}

// SaveRecord saves a record to the bucket of its kind
func (b *BoltDB) SaveRecord(record Record) error {
	name, err := bucketFor(record.Kind)
	if err != nil {
		return err
	}
	return b.db.Update(func(tx *bbolt.Tx) error {
		data, err := json.Marshal(record)
		if err != nil {
			return fmt.Errorf("marshaling record: %w", err)
		}
		return tx.Bucket(name).Put([]byte(record.ID), data)
	})
}

// GetRecord retrieves a record by ID
func (b *BoltDB) GetRecord(kind Kind, id string) (Record, error) {
	name, err := bucketFor(kind)
	if err != nil {
		return Record{}, err
	}
	var record Record
	err = b.db.View(func(tx *bbolt.Tx) error {
		data := tx.Bucket(name).Get([]byte(id))
		if data == nil {
			return errors.Wrapf(ErrNotFound, "%s %s", kind, id)
		}
		return json.Unmarshal(data, &record)
	})
	if err != nil {
		return Record{}, err
	}
	return record, nil
}

// ListRecords returns all records of a kind, newest date first
func (b *BoltDB) ListRecords(kind Kind) ([]Record, error) {
	name, err := bucketFor(kind)
	if err != nil {
		return nil, err
	}
	records := make([]Record, 0)
	err = b.db.View(func(tx *bbolt.Tx) error {
		return tx.Bucket(name).ForEach(func(k, v []byte) error {
			var record Record
			if err := json.Unmarshal(v, &record); err != nil {
				return fmt.Errorf("unmarshaling record: %w", err)
			}
			records = append(records, record)
			return nil
		})
	})
	if err != nil {
		return nil, err
	}
	SortByDate(records)
	return records, nil
}

// SortByDate orders records newest first, ties broken by ID
func SortByDate(records []Record) {
	sort.SliceStable(records, func(i, j int) bool {
		if records[i].Date.Equal(records[j].Date) {
			return records[i].ID < records[j].ID
		}
		return records[i].Date.After(records[j].Date)
	})
}

// Close closes the database connection
func (b *BoltDB) Close() error {
	return b.db.Close()
}
