package inbox

// Store persists inbox items. Implementations own item identity: Save replaces the stored value by ID.
type Store interface {
	// FindByChecksum returns the item with the given checksum, or nil when there is none
	FindByChecksum(checksum string) (*Item, error)

	// Save inserts or replaces an item. A new item whose checksum already belongs
	// to another item fails with ErrDuplicateChecksum.
	Save(item Item) error

	// Get retrieves an item by ID, failing with ErrNotFound
	Get(id string) (Item, error)

	// List returns every item, oldest upload first
	List() ([]Item, error)

	// FindByStatus returns the items in a given state, oldest upload first
	FindByStatus(status Status) ([]Item, error)

	// FindByUserIDAndStatus narrows FindByStatus to one user
	FindByUserIDAndStatus(userID string, status Status) ([]Item, error)

	// Close closes the underlying database
	Close() error
}
