package inbox

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/cockroachdb/errors"

	"github.com/zombor/billbox/internal/scanning"
)

var (
	// ErrUnknownEngine is returned when Submit names an engine that is not registered
	ErrUnknownEngine = errors.New("unknown ocr engine")
	// ErrNoEngines is returned when Submit is called with an empty registry
	ErrNoEngines = errors.New("no ocr engine configured")
	// ErrIncomplete is returned when an approval lacks a required record field
	ErrIncomplete = errors.New("approval is missing required fields")
)

// TimeSource provides the current time
type TimeSource interface {
	Now() time.Time
}

type defaultTimeSource struct{}

func (defaultTimeSource) Now() time.Time { return time.Now() }

// RecordInput describes the bill or receipt to create when an item is approved
type RecordInput struct {
	Type        LinkType
	UserID      string
	Provider    string
	Amount      float64
	Date        time.Time
	Currency    string
	Description string
	InboxItemID string
}

// RecordCreator creates the record an approved item is linked to and returns its ID
type RecordCreator interface {
	CreateRecord(in RecordInput) (string, error)
}

// ApproveInput selects the record type and optionally overrides OCR values
type ApproveInput struct {
	Type        LinkType   `json:"type"`
	Provider    *string    `json:"provider,omitempty"`
	Amount      *float64   `json:"amount,omitempty"`
	Date        *time.Time `json:"date,omitempty"`
	Currency    *string    `json:"currency,omitempty"`
	Description string     `json:"description,omitempty"`
}

// Service drives inbox items through OCR and review
type Service struct {
	store           Store
	engines         *scanning.Registry
	records         RecordCreator
	timeSource      TimeSource
	requestOpts     []scanning.RequestOption
	defaultCurrency string
}

// Option customises a Service
type Option func(*Service)

// WithRequestOptions sets the options applied to every OCR request
func WithRequestOptions(opts ...scanning.RequestOption) Option {
	return func(s *Service) { s.requestOpts = append(s.requestOpts, opts...) }
}

// WithDefaultCurrency sets the currency used when neither OCR nor the reviewer supplies one
func WithDefaultCurrency(code string) Option {
	return func(s *Service) { s.defaultCurrency = strings.ToUpper(code) }
}

// WithTimeSource replaces the clock
func WithTimeSource(ts TimeSource) Option {
	return func(s *Service) { s.timeSource = ts }
}

// NewService creates a new Service
func NewService(store Store, engines *scanning.Registry, records RecordCreator, opts ...Option) *Service {
	s := &Service{
		store:           store,
		engines:         engines,
		records:         records,
		timeSource:      defaultTimeSource{},
		defaultCurrency: "USD",
	}
	for _, o := range opts {
		o(s)
	}
	return s
}

// Get retrieves an item
func (s *Service) Get(id string) (Item, error) {
	return s.store.Get(id)
}

// List returns items, optionally filtered by status and user
func (s *Service) List(status Status, userID string) ([]Item, error) {
	switch {
	case status != "" && userID != "":
		return s.store.FindByUserIDAndStatus(userID, status)
	case status != "":
		return s.store.FindByStatus(status)
	}

	items, err := s.store.List()
	if err != nil || userID == "" {
		return items, err
	}
	mine := make([]Item, 0, len(items))
	for _, i := range items {
		if i.UserID == userID {
			mine = append(mine, i)
		}
	}
	return mine, nil
}

// Submit runs OCR for a CREATED item. With an engine name only that engine is used;
// otherwise engines are tried in registry order until one succeeds.
// The item is saved as PROCESSING before any provider is contacted.
func (s *Service) Submit(ctx context.Context, id string, engine string) (Item, error) {
	item, err := s.store.Get(id)
	if err != nil {
		return Item{}, err
	}
	if item.Status != StatusCreated {
		return item, item.illegal("submit")
	}

	req := scanning.NewRequest(item.StoragePath, s.requestOpts...)
	if err := req.Validate(); err != nil {
		return item, err
	}

	candidates, err := s.candidates(engine)
	if err != nil {
		return item, err
	}

	processing, err := item.StartProcessing(s.timeSource.Now())
	if err != nil {
		return item, err
	}
	if err := s.store.Save(processing); err != nil {
		return item, fmt.Errorf("saving item: %w", err)
	}

	result := s.scan(ctx, candidates, req)

	done, err := processing.ApplyResult(result, s.timeSource.Now())
	if err != nil {
		return processing, err
	}
	if err := s.store.Save(done); err != nil {
		return processing, fmt.Errorf("saving item: %w", err)
	}

	if done.Status == StatusFailed {
		slog.Warn("OCR failed", "id", done.ID, "reason", done.FailureReason)
	} else {
		slog.Info("OCR completed", "id", done.ID, "engine", result.EngineName(), "duration", result.Elapsed())
	}
	return done, nil
}

func (s *Service) candidates(name string) ([]scanning.Engine, error) {
	if s.engines == nil || s.engines.Empty() {
		return nil, ErrNoEngines
	}
	if name == "" {
		return s.engines.Engines(), nil
	}
	e, ok := s.engines.Lookup(name)
	if !ok {
		return nil, errors.Wrapf(ErrUnknownEngine, "%q (available: %s)", name, strings.Join(s.engines.Names(), ", "))
	}
	return []scanning.Engine{e}, nil
}

// scan tries each engine in turn and returns the first success, or a failure naming every attempt
func (s *Service) scan(ctx context.Context, engines []scanning.Engine, req scanning.Request) scanning.Result {
	var failures []scanning.Result
	for _, e := range engines {
		r := e.Extract(ctx, req)
		if r.Succeeded() {
			return r
		}
		slog.Warn("OCR engine failed", "engine", e.Name(), "error", r.ErrorMessage())
		failures = append(failures, r)
		if ctx.Err() != nil {
			break
		}
	}

	if len(failures) == 1 {
		return failures[0]
	}
	msgs := make([]string, 0, len(failures))
	var elapsed time.Duration
	for _, f := range failures {
		msgs = append(msgs, fmt.Sprintf("%s: %s", f.EngineName(), f.ErrorMessage()))
		elapsed += f.Elapsed()
	}
	last := failures[len(failures)-1]
	return scanning.NewFailure(strings.Join(msgs, "; "), last.RawJSON(), elapsed)
}

// Retry returns a FAILED item to CREATED so it can be submitted again
func (s *Service) Retry(id string) (Item, error) {
	return s.transition(id, func(i Item, now time.Time) (Item, error) { return i.Retry(now) })
}

// Reject discards a CREATED or FAILED item
func (s *Service) Reject(id string) (Item, error) {
	return s.transition(id, func(i Item, now time.Time) (Item, error) { return i.Reject(now) })
}

func (s *Service) transition(id string, apply func(Item, time.Time) (Item, error)) (Item, error) {
	item, err := s.store.Get(id)
	if err != nil {
		return Item{}, err
	}
	next, err := apply(item, s.timeSource.Now())
	if err != nil {
		return item, err
	}
	if err := s.store.Save(next); err != nil {
		return item, fmt.Errorf("saving item: %w", err)
	}
	return next, nil
}

// Approve creates a bill or receipt from a PROCESSED item and links the two
func (s *Service) Approve(ctx context.Context, id string, in ApproveInput) (Item, error) {
	item, err := s.store.Get(id)
	if err != nil {
		return Item{}, err
	}
	if !item.CanApprove() {
		return item, item.illegal("approve")
	}

	rec, err := s.recordInput(item, in)
	if err != nil {
		return item, err
	}
	if err := ctx.Err(); err != nil {
		return item, err
	}

	targetID, err := s.records.CreateRecord(rec)
	if err != nil {
		return item, fmt.Errorf("creating %s: %w", strings.ToLower(string(rec.Type)), err)
	}

	approved, err := item.Approve(targetID, rec.Type, s.timeSource.Now())
	if err != nil {
		return item, err
	}
	if err := s.store.Save(approved); err != nil {
		slog.Error("Record created but inbox item not linked", "id", id, "target", targetID, "error", err)
		return item, fmt.Errorf("saving item: %w", err)
	}

	slog.Info("Inbox item approved", "id", id, "type", rec.Type, "target", targetID)
	return approved, nil
}

func (s *Service) recordInput(item Item, in ApproveInput) (RecordInput, error) {
	rec := RecordInput{
		Type:        in.Type,
		UserID:      item.UserID,
		Description: strings.TrimSpace(in.Description),
		InboxItemID: item.ID,
		Currency:    s.defaultCurrency,
	}
	if rec.Type != LinkBill && rec.Type != LinkReceipt {
		return rec, errors.Wrapf(ErrIncomplete, "type must be %s or %s", LinkBill, LinkReceipt)
	}

	ocr := OCRData{}
	if item.OCR != nil {
		ocr = *item.OCR
	}

	var missing []string
	switch {
	case in.Provider != nil && strings.TrimSpace(*in.Provider) != "":
		rec.Provider = strings.TrimSpace(*in.Provider)
	case ocr.Provider != nil:
		rec.Provider = *ocr.Provider
	default:
		missing = append(missing, "provider")
	}
	switch {
	case in.Amount != nil:
		rec.Amount = *in.Amount
	case ocr.Amount != nil:
		rec.Amount = *ocr.Amount
	default:
		missing = append(missing, "amount")
	}
	switch {
	case in.Date != nil:
		rec.Date = *in.Date
	case ocr.Date != nil:
		rec.Date = *ocr.Date
	default:
		missing = append(missing, "date")
	}
	switch {
	case in.Currency != nil && *in.Currency != "":
		rec.Currency = strings.ToUpper(*in.Currency)
	case ocr.Currency != nil:
		rec.Currency = *ocr.Currency
	}

	if len(missing) > 0 {
		return rec, errors.Wrapf(ErrIncomplete, "missing %s", strings.Join(missing, ", "))
	}
	if rec.Amount < 0 {
		return rec, errors.Wrap(ErrIncomplete, "amount must not be negative")
	}
	return rec, nil
}

// Recover fails items left in PROCESSING by an interrupted run so they can be retried
func (s *Service) Recover() (int, error) {
	stuck, err := s.store.FindByStatus(StatusProcessing)
	if err != nil {
		return 0, fmt.Errorf("listing processing items: %w", err)
	}
	for _, item := range stuck {
		failed, err := item.Fail("processing interrupted", s.timeSource.Now())
		if err != nil {
			return 0, err
		}
		if err := s.store.Save(failed); err != nil {
			return 0, fmt.Errorf("saving item: %w", err)
		}
		slog.Warn("Recovered interrupted item", "id", item.ID)
	}
	return len(stuck), nil
}
