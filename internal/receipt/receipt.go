package receipt

import (
	"math"
	"strings"
	"time"

	"github.com/cockroachdb/errors"
)

// Kind distinguishes bills from receipts
type Kind string

const (
	KindBill    Kind = "BILL"
	KindReceipt Kind = "RECEIPT"
)

// ParseKind accepts "bill", "bills", "receipt" or "receipts" in any case
func ParseKind(s string) (Kind, error) {
	switch strings.ToUpper(strings.TrimSuffix(strings.ToLower(strings.TrimSpace(s)), "s")) {
	case string(KindBill):
		return KindBill, nil
	case string(KindReceipt):
		return KindReceipt, nil
	}
	return "", errors.Newf("unknown record kind %q", s)
}

// State is the lifecycle state of a record
type State string

const (
	StateActive  State = "ACTIVE"
	StateRemoved State = "REMOVED"
)

var (
	// ErrNotFound is returned when no record has the requested ID
	ErrNotFound = errors.New("record not found")
	// ErrRemoved is returned when mutating a removed record
	ErrRemoved = errors.New("record has been removed")
	// ErrInvalid is returned for records that fail validation
	ErrInvalid = errors.New("invalid record")
)

// Record is a bill or receipt. Mutations return new values; the database tracks identity.
type Record struct {
	ID          string    `json:"id"`
	Kind        Kind      `json:"kind"`
	UserID      string    `json:"user_id,omitempty"`
	Provider    string    `json:"provider"`
	Date        time.Time `json:"date"`
	AmountCents int64     `json:"amount"` // Amount in cents
	Currency    string    `json:"currency"`
	Description string    `json:"description,omitempty"`
	State       State     `json:"state"`
	InboxItemID string    `json:"inbox_item_id,omitempty"` // inbox item this record was approved from
	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`
}

// ToCents converts a decimal amount to cents, rounding half away from zero
func ToCents(amount float64) int64 {
	return int64(math.Round(amount * 100))
}

// Active reports whether the record has not been removed
func (r Record) Active() bool { return r.State != StateRemoved }

func (r Record) mutable() error {
	if !r.Active() {
		return errors.Wrapf(ErrRemoved, "%s %s", strings.ToLower(string(r.Kind)), r.ID)
	}
	return nil
}

// WithAmount returns a copy with a new amount
func (r Record) WithAmount(cents int64, now time.Time) (Record, error) {
	if err := r.mutable(); err != nil {
		return r, err
	}
	if cents < 0 {
		return r, errors.Wrap(ErrInvalid, "amount must not be negative")
	}
	next := r
	next.AmountCents = cents
	next.UpdatedAt = now
	return next, nil
}

// WithProvider returns a copy with a new provider
func (r Record) WithProvider(provider string, now time.Time) (Record, error) {
	if err := r.mutable(); err != nil {
		return r, err
	}
	provider = strings.TrimSpace(provider)
	if provider == "" {
		return r, errors.Wrap(ErrInvalid, "provider is required")
	}
	next := r
	next.Provider = provider
	next.UpdatedAt = now
	return next, nil
}

// WithDescription returns a copy with a new description
func (r Record) WithDescription(description string, now time.Time) (Record, error) {
	if err := r.mutable(); err != nil {
		return r, err
	}
	next := r
	next.Description = strings.TrimSpace(description)
	next.UpdatedAt = now
	return next, nil
}

// Remove marks the record removed. There is no way back.
func (r Record) Remove(now time.Time) (Record, error) {
	if err := r.mutable(); err != nil {
		return r, err
	}
	next := r
	next.State = StateRemoved
	next.UpdatedAt = now
	return next, nil
}

func (r Record) validate() error {
	var problems []string
	if r.Kind != KindBill && r.Kind != KindReceipt {
		problems = append(problems, "kind must be BILL or RECEIPT")
	}
	if strings.TrimSpace(r.Provider) == "" {
		problems = append(problems, "provider is required")
	}
	if r.Date.IsZero() {
		problems = append(problems, "date is required")
	}
	if r.AmountCents < 0 {
		problems = append(problems, "amount must not be negative")
	}
	if len(r.Currency) != 3 {
		problems = append(problems, "currency must be a 3 letter code")
	}
	if len(problems) > 0 {
		return errors.Wrap(ErrInvalid, strings.Join(problems, "; "))
	}
	return nil
}
