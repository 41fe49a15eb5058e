package inbox

import (
	"encoding/json"
	"strings"
	"time"

	"github.com/cockroachdb/errors"

	"github.com/zombor/billbox/internal/scanning"
)

// Status is the lifecycle state of an inbox item
type Status string

const (
	StatusCreated    Status = "CREATED"
	StatusProcessing Status = "PROCESSING"
	StatusProcessed  Status = "PROCESSED"
	StatusFailed     Status = "FAILED"
	StatusApproved   Status = "APPROVED"
	StatusRejected   Status = "REJECTED"
)

// Statuses lists every status in lifecycle order
var Statuses = []Status{StatusCreated, StatusProcessing, StatusProcessed, StatusFailed, StatusApproved, StatusRejected}

// ParseStatus accepts a status name in any case
func ParseStatus(s string) (Status, error) {
	st := Status(strings.ToUpper(strings.TrimSpace(s)))
	for _, known := range Statuses {
		if st == known {
			return st, nil
		}
	}
	return "", errors.Newf("unknown status %q", s)
}

// LinkType names the kind of record an approved item is bound to
type LinkType string

const (
	LinkBill    LinkType = "BILL"
	LinkReceipt LinkType = "RECEIPT"
)

// ParseLinkType accepts a link type in any case
func ParseLinkType(s string) (LinkType, error) {
	switch lt := LinkType(strings.ToUpper(strings.TrimSpace(s))); lt {
	case LinkBill, LinkReceipt:
		return lt, nil
	}
	return "", errors.Newf("unknown link type %q", s)
}

var (
	// ErrIllegalTransition marks every rejected state change
	ErrIllegalTransition = errors.New("illegal inbox transition")
	// ErrNotFound is returned when no item has the requested ID
	ErrNotFound = errors.New("inbox item not found")
	// ErrDuplicateChecksum is returned when saving a new item whose checksum is already stored
	ErrDuplicateChecksum = errors.New("duplicate checksum")
)

// OCRData is the structured result attached to a processed item
type OCRData struct {
	Provider   *string         `json:"provider,omitempty"`
	Amount     *float64        `json:"amount,omitempty"`
	Date       *time.Time      `json:"date,omitempty"`
	Currency   *string         `json:"currency,omitempty"`
	Confidence *float64        `json:"confidence,omitempty"`
	Engine     string          `json:"engine,omitempty"`
	Raw        json.RawMessage `json:"raw,omitempty"`
}

// OCRDataFrom copies the fields of a successful scan
func OCRDataFrom(s scanning.Success) OCRData {
	return OCRData{
		Provider:   s.Provider,
		Amount:     s.Amount,
		Date:       s.Date,
		Currency:   s.Currency,
		Confidence: s.Confidence,
		Engine:     s.Engine,
		Raw:        s.RawJSON(),
	}
}

// Item is an ingested document moving through the review lifecycle.
// Items are values: every transition returns a new Item and leaves the receiver untouched.
type Item struct {
	ID               string    `json:"id"`
	OriginalFilename string    `json:"original_filename"`
	StoragePath      string    `json:"storage_path"`
	UploadedAt       time.Time `json:"uploaded_at"`
	Checksum         string    `json:"checksum"`
	UserID           string    `json:"user_id"`
	Status           Status    `json:"status"`
	OCR              *OCRData  `json:"ocr,omitempty"`
	FailureReason    string    `json:"failure_reason,omitempty"`
	LinkedID         string    `json:"linked_id,omitempty"`
	LinkedType       LinkType  `json:"linked_type,omitempty"`
	CreatedAt        time.Time `json:"created_at"`
	UpdatedAt        time.Time `json:"updated_at"`
}

// NewItem builds an item in the CREATED state
func NewItem(id, originalFilename, storagePath, checksum, userID string, now time.Time) Item {
	return Item{
		ID:               id,
		OriginalFilename: originalFilename,
		StoragePath:      storagePath,
		UploadedAt:       now,
		Checksum:         checksum,
		UserID:           userID,
		Status:           StatusCreated,
		CreatedAt:        now,
		UpdatedAt:        now,
	}
}

func (i Item) illegal(op string) error {
	return errors.Mark(
		errors.AssertionFailedf("cannot %s item %s in state %s", op, i.ID, i.Status),
		ErrIllegalTransition,
	)
}

func (i Item) in(states ...Status) bool {
	for _, s := range states {
		if i.Status == s {
			return true
		}
	}
	return false
}

// StartProcessing moves a CREATED item to PROCESSING
func (i Item) StartProcessing(now time.Time) (Item, error) {
	if !i.in(StatusCreated) {
		return i, i.illegal("start processing")
	}
	next := i
	next.Status = StatusProcessing
	next.UpdatedAt = now
	return next, nil
}

// Complete stores OCR data and moves the item to PROCESSED
func (i Item) Complete(data OCRData, now time.Time) (Item, error) {
	if !i.in(StatusCreated, StatusProcessing) {
		return i, i.illegal("complete")
	}
	next := i
	next.Status = StatusProcessed
	next.OCR = &data
	next.FailureReason = ""
	next.UpdatedAt = now
	return next, nil
}

// Fail records the reason and moves the item to FAILED
func (i Item) Fail(reason string, now time.Time) (Item, error) {
	if !i.in(StatusCreated, StatusProcessing) {
		return i, i.illegal("fail")
	}
	reason = strings.TrimSpace(reason)
	if reason == "" {
		return i, errors.AssertionFailedf("failure reason is required for item %s", i.ID)
	}
	next := i
	next.Status = StatusFailed
	next.FailureReason = reason
	next.UpdatedAt = now
	return next, nil
}

// ApplyResult completes or fails the item depending on the scan outcome
func (i Item) ApplyResult(r scanning.Result, now time.Time) (Item, error) {
	switch res := r.(type) {
	case scanning.Success:
		return i.Complete(OCRDataFrom(res), now)
	case scanning.Failure:
		return i.Fail(res.ErrorMessage(), now)
	default:
		return i, errors.AssertionFailedf("unexpected scan result %T", r)
	}
}

// Retry resets a FAILED item back to CREATED, clearing failure and OCR data
func (i Item) Retry(now time.Time) (Item, error) {
	if !i.CanRetry() {
		return i, i.illegal("retry")
	}
	next := i
	next.Status = StatusCreated
	next.FailureReason = ""
	next.OCR = nil
	next.UpdatedAt = now
	return next, nil
}

// Approve links a PROCESSED item to the record created from it
func (i Item) Approve(targetID string, linkType LinkType, now time.Time) (Item, error) {
	if !i.CanApprove() {
		return i, i.illegal("approve")
	}
	if strings.TrimSpace(targetID) == "" {
		return i, errors.AssertionFailedf("approval of item %s requires a target id", i.ID)
	}
	if linkType != LinkBill && linkType != LinkReceipt {
		return i, errors.AssertionFailedf("approval of item %s has invalid link type %q", i.ID, linkType)
	}
	next := i
	next.Status = StatusApproved
	next.LinkedID = targetID
	next.LinkedType = linkType
	next.UpdatedAt = now
	return next, nil
}

// Reject discards a CREATED or FAILED item
func (i Item) Reject(now time.Time) (Item, error) {
	if !i.CanReject() {
		return i, i.illegal("reject")
	}
	next := i
	next.Status = StatusRejected
	next.UpdatedAt = now
	return next, nil
}

func (i Item) CanApprove() bool { return i.Status == StatusProcessed }

func (i Item) CanRetry() bool { return i.Status == StatusFailed }

func (i Item) CanReject() bool { return i.in(StatusCreated, StatusFailed) }

// Terminal reports whether no further transition is possible
func (i Item) Terminal() bool { return i.in(StatusApproved, StatusRejected) }
