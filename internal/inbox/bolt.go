package inbox

import (
	"encoding/json"
	"fmt"
	"sort"
	"time"

	"github.com/cockroachdb/errors"
	"go.etcd.io/bbolt"
)

const (
	itemsBucket     = "inbox_items"
	checksumsBucket = "inbox_checksums"
)

// BoltStore implements Store using BoltDB. A second bucket maps checksum to item ID.
type BoltStore struct {
	db *bbolt.DB
}

// NewBoltStore opens (or creates) the database at path
func NewBoltStore(path string) (*BoltStore, error) {
	db, err := bbolt.Open(path, 0600, &bbolt.Options{Timeout: 1 * time.Second})
	if err != nil {
		return nil, fmt.Errorf("opening boltdb: %w", err)
	}
	s, err := NewBoltStoreFromDB(db)
	if err != nil {
		db.Close()
		return nil, err
	}
	return s, nil
}

// NewBoltStoreFromDB shares an already opened database, creating the buckets it needs
func NewBoltStoreFromDB(db *bbolt.DB) (*BoltStore, error) {
	err := db.Update(func(tx *bbolt.Tx) error {
		if _, err := tx.CreateBucketIfNotExists([]byte(itemsBucket)); err != nil {
			return err
		}
		if _, err := tx.CreateBucketIfNotExists([]byte(checksumsBucket)); err != nil {
			return err
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("creating buckets: %w", err)
	}
	return &BoltStore{db: db}, nil
}

// FindByChecksum returns the item with the given checksum, or nil
func (b *BoltStore) FindByChecksum(checksum string) (*Item, error) {
	var item *Item
	err := b.db.View(func(tx *bbolt.Tx) error {
		id := tx.Bucket([]byte(checksumsBucket)).Get([]byte(checksum))
		if id == nil {
			return nil
		}
		data := tx.Bucket([]byte(itemsBucket)).Get(id)
		if data == nil {
			return nil
		}
		return json.Unmarshal(data, &item)
	})
	if err != nil {
		return nil, fmt.Errorf("finding item by checksum: %w", err)
	}
	return item, nil
}

// Save inserts or replaces an item, keeping the checksum index unique
func (b *BoltStore) Save(item Item) error {
	return b.db.Update(func(tx *bbolt.Tx) error {
		items := tx.Bucket([]byte(itemsBucket))
		sums := tx.Bucket([]byte(checksumsBucket))

		if owner := sums.Get([]byte(item.Checksum)); owner != nil && string(owner) != item.ID {
			return errors.Wrapf(ErrDuplicateChecksum, "checksum %s already belongs to item %s", item.Checksum, owner)
		}

		if prev := items.Get([]byte(item.ID)); prev != nil {
			var old Item
			if err := json.Unmarshal(prev, &old); err != nil {
				return fmt.Errorf("unmarshaling item: %w", err)
			}
			if old.Checksum != item.Checksum {
				if err := sums.Delete([]byte(old.Checksum)); err != nil {
					return err
				}
			}
		}

		data, err := json.Marshal(item)
		if err != nil {
			return fmt.Errorf("marshaling item: %w", err)
		}
		if err := items.Put([]byte(item.ID), data); err != nil {
			return err
		}
		return sums.Put([]byte(item.Checksum), []byte(item.ID))
	})
}

// Get retrieves an item by ID
func (b *BoltStore) Get(id string) (Item, error) {
	var item Item
	err := b.db.View(func(tx *bbolt.Tx) error {
		data := tx.Bucket([]byte(itemsBucket)).Get([]byte(id))
		if data == nil {
			return errors.Wrapf(ErrNotFound, "item %s", id)
		}
		return json.Unmarshal(data, &item)
	})
	if err != nil {
		return Item{}, err
	}
	return item, nil
}

// List returns every item
func (b *BoltStore) List() ([]Item, error) {
	return b.filter(func(Item) bool { return true })
}

// FindByStatus returns the items in a given state
func (b *BoltStore) FindByStatus(status Status) ([]Item, error) {
	return b.filter(func(i Item) bool { return i.Status == status })
}

// FindByUserIDAndStatus returns one user's items in a given state
func (b *BoltStore) FindByUserIDAndStatus(userID string, status Status) ([]Item, error) {
	return b.filter(func(i Item) bool { return i.UserID == userID && i.Status == status })
}

func (b *BoltStore) filter(keep func(Item) bool) ([]Item, error) {
	items := make([]Item, 0)
	err := b.db.View(func(tx *bbolt.Tx) error {
		return tx.Bucket([]byte(itemsBucket)).ForEach(func(k, v []byte) error {
			var item Item
			if err := json.Unmarshal(v, &item); err != nil {
				return fmt.Errorf("unmarshaling item: %w", err)
			}
			if keep(item) {
				items = append(items, item)
			}
			return nil
		})
	})
	if err != nil {
		return nil, err
	}
	SortByUpload(items)
	return items, nil
}

// SortByUpload orders items oldest upload first, ties broken by ID
func SortByUpload(items []Item) {
	sort.SliceStable(items, func(a, b int) bool {
		if items[a].UploadedAt.Equal(items[b].UploadedAt) {
			return items[a].ID < items[b].ID
		}
		return items[a].UploadedAt.Before(items[b].UploadedAt)
	})
}

// Close closes the database
func (b *BoltStore) Close() error {
	return b.db.Close()
}
