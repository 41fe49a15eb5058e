package receipt

import (
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/zombor/billbox/internal/inbox"
)

// IDGenerator generates unique IDs for records
type IDGenerator interface {
	Generate() string
}

// TimeSource provides the current time
type TimeSource interface {
	Now() time.Time
}

type defaultIDGenerator struct{}

func (defaultIDGenerator) Generate() string {
	return uuid.NewString()
}

type defaultTimeSource struct{}

func (defaultTimeSource) Now() time.Time {
	return time.Now()
}

// NewRecord is the input for creating a bill or receipt
type NewRecord struct {
	Kind        Kind      `json:"kind"`
	UserID      string    `json:"user_id,omitempty"`
	Provider    string    `json:"provider"`
	Date        time.Time `json:"date"`
	Amount      float64   `json:"amount"`
	Currency    string    `json:"currency"`
	Description string    `json:"description,omitempty"`
	InboxItemID string    `json:"inbox_item_id,omitempty"`
}

// Service handles bill and receipt operations
type Service struct {
	db          DB
	idGenerator IDGenerator
	timeSource  TimeSource
}

// NewService creates a new Service with default ID generator and time source
func NewService(db DB) *Service {
	return &Service{
		db:          db,
		idGenerator: defaultIDGenerator{},
		timeSource:  defaultTimeSource{},
	}
}

// NewServiceWithDeps creates a new Service with custom dependencies for testing
func NewServiceWithDeps(db DB, idGen IDGenerator, timeSrc TimeSource) *Service {
	return &Service{
		db:          db,
		idGenerator: idGen,
		timeSource:  timeSrc,
	}
}

// Create validates and stores a new active record
func (s *Service) Create(in NewRecord) (Record, error) {
	now := s.timeSource.Now()
	record := Record{
		ID:          s.idGenerator.Generate(),
		Kind:        in.Kind,
		UserID:      in.UserID,
		Provider:    strings.TrimSpace(in.Provider),
		Date:        in.Date,
		AmountCents: ToCents(in.Amount),
		Currency:    strings.ToUpper(strings.TrimSpace(in.Currency)),
		Description: strings.TrimSpace(in.Description),
		State:       StateActive,
		InboxItemID: in.InboxItemID,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	if err := record.validate(); err != nil {
		return Record{}, err
	}
	if err := s.db.SaveRecord(record); err != nil {
		return Record{}, fmt.Errorf("saving %s: %w", strings.ToLower(string(record.Kind)), err)
	}

	slog.Info("Record created", "kind", record.Kind, "id", record.ID, "provider", record.Provider, "amount", FormatAmount(record.AmountCents, record.Currency, FormatUS))
	return record, nil
}

// CreateRecord creates the record for an approved inbox item and returns its ID
func (s *Service) CreateRecord(in inbox.RecordInput) (string, error) {
	kind := KindReceipt
	if in.Type == inbox.LinkBill {
		kind = KindBill
	}
	record, err := s.Create(NewRecord{
		Kind:        kind,
		UserID:      in.UserID,
		Provider:    in.Provider,
		Date:        in.Date,
		Amount:      in.Amount,
		Currency:    in.Currency,
		Description: in.Description,
		InboxItemID: in.InboxItemID,
	})
	if err != nil {
		return "", err
	}
	return record.ID, nil
}

// Get retrieves a record
func (s *Service) Get(kind Kind, id string) (Record, error) {
	return s.db.GetRecord(kind, id)
}

// ListOptions filters List
type ListOptions struct {
	UserID         string
	IncludeRemoved bool
}

// List returns the records of a kind, newest first
func (s *Service) List(kind Kind, opts ListOptions) ([]Record, error) {
	all, err := s.db.ListRecords(kind)
	if err != nil {
		return nil, fmt.Errorf("listing records: %w", err)
	}
	records := make([]Record, 0, len(all))
	for _, r := range all {
		if opts.UserID != "" && r.UserID != opts.UserID {
			continue
		}
		if !opts.IncludeRemoved && !r.Active() {
			continue
		}
		records = append(records, r)
	}
	return records, nil
}

// UpdateAmount changes a record's amount
func (s *Service) UpdateAmount(kind Kind, id string, amount float64) (Record, error) {
	return s.update(kind, id, func(r Record, now time.Time) (Record, error) {
		return r.WithAmount(ToCents(amount), now)
	})
}

// UpdateProvider changes a record's provider
func (s *Service) UpdateProvider(kind Kind, id string, provider string) (Record, error) {
	return s.update(kind, id, func(r Record, now time.Time) (Record, error) {
		return r.WithProvider(provider, now)
	})
}

// UpdateDescription changes a record's description
func (s *Service) UpdateDescription(kind Kind, id string, description string) (Record, error) {
	return s.update(kind, id, func(r Record, now time.Time) (Record, error) {
		return r.WithDescription(description, now)
	})
}

// Remove marks a record removed
func (s *Service) Remove(kind Kind, id string) (Record, error) {
	return s.update(kind, id, func(r Record, now time.Time) (Record, error) {
		return r.Remove(now)
	})
}

func (s *Service) update(kind Kind, id string, apply func(Record, time.Time) (Record, error)) (Record, error) {
	record, err := s.db.GetRecord(kind, id)
	if err != nil {
		return Record{}, err
	}
	next, err := apply(record, s.timeSource.Now())
	if err != nil {
		return record, err
	}
	if err := s.db.SaveRecord(next); err != nil {
		return record, fmt.Errorf("saving %s: %w", strings.ToLower(string(kind)), err)
	}
	return next, nil
}
