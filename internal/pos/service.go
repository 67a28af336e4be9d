package pos

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"reflect"
	"sort"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/zombor/pos-tracker/internal/scanning"
)

const (
	// DefaultWriteTimeout bounds a single persistence write
	DefaultWriteTimeout = 30 * time.Second
	// DefaultBaseCurrency is the reporting currency outlet exchange rates are quoted against
	DefaultBaseCurrency = "USD"
)

var (
	// ErrWriteTimeout is returned when a write did not commit within the write timeout. Nothing was stored.
	ErrWriteTimeout = errors.New("saving took too long and was cancelled; please try again")
	// ErrAlreadyDecided is returned when a bill that was approved or rejected is changed
	ErrAlreadyDecided = errors.New("bill has already been decided")
	// ErrExtractionFailed is returned when a bill document yielded no usable data
	ErrExtractionFailed = errors.New("could not extract bill details from the document; ensure the image is clear and try again")
)

// FieldError reports invalid request fields keyed by their JSON name
type FieldError struct {
	Fields map[string]string
}

func (e *FieldError) Error() string {
	keys := make([]string, 0, len(e.Fields))
	for k := range e.Fields {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	msgs := make([]string, 0, len(keys))
	for _, k := range keys {
		msgs = append(msgs, k+": "+e.Fields[k])
	}
	return "invalid request: " + strings.Join(msgs, "; ")
}

func fieldError(field, message string) *FieldError {
	return &FieldError{Fields: map[string]string{field: message}}
}

// RateFetcher provides exchange rates, falling back to 1 when none is available
type RateFetcher interface {
	RateOrDefault(ctx context.Context, base, target string) decimal.Decimal
}

// IDGenerator generates unique record IDs
type IDGenerator interface {
	Generate() string
}

// TimeSource provides the current time
type TimeSource interface {
	Now() time.Time
}

type uuidGenerator struct{}

func (g *uuidGenerator) Generate() string {
	return uuid.NewString()
}

type defaultTimeSource struct{}

func (t *defaultTimeSource) Now() time.Time {
	return time.Now()
}

// Options tunes a Service. Zero values select the defaults.
type Options struct {
	BaseCurrency string
	WriteTimeout time.Duration
}

// Service handles outlet, sales and bill operations
type Service struct {
	db           DB
	scanner      scanning.Scanner
	storage      Storage
	rates        RateFetcher
	idGenerator  IDGenerator
	timeSource   TimeSource
	validate     *validator.Validate
	baseCurrency string
	writeTimeout time.Duration
}

// NewService creates a new Service with a uuid ID generator and the wall clock
func NewService(db DB, scanner scanning.Scanner, storage Storage, rates RateFetcher, opts Options) *Service {
	return NewServiceWithDeps(db, scanner, storage, rates, opts, &uuidGenerator{}, &defaultTimeSource{})
}

// NewServiceWithDeps creates a new Service with custom dependencies for testing
func NewServiceWithDeps(db DB, scanner scanning.Scanner, storage Storage, rates RateFetcher, opts Options, idGen IDGenerator, timeSrc TimeSource) *Service {
	if opts.BaseCurrency == "" {
		opts.BaseCurrency = DefaultBaseCurrency
	}
	if opts.WriteTimeout <= 0 {
		opts.WriteTimeout = DefaultWriteTimeout
	}

	v := scanning.NewValidator()
	v.RegisterTagNameFunc(func(f reflect.StructField) string {
		name := strings.SplitN(f.Tag.Get("json"), ",", 2)[0]
		if name == "-" {
			return ""
		}
		return name
	})

	return &Service{
		db:           db,
		scanner:      scanner,
		storage:      storage,
		rates:        rates,
		idGenerator:  idGen,
		timeSource:   timeSrc,
		validate:     v,
		baseCurrency: strings.ToUpper(opts.BaseCurrency),
		writeTimeout: opts.WriteTimeout,
	}
}

// write runs fn under the write timeout. A deadline hit inside fn becomes ErrWriteTimeout.
func (s *Service) write(ctx context.Context, record string, fn func(ctx context.Context) error) error {
	ctx, cancel := context.WithTimeout(ctx, s.writeTimeout)
	defer cancel()

	start := time.Now()
	err := fn(ctx)
	if errors.Is(err, context.DeadlineExceeded) {
		slog.Error("Database write timed out", "record", record, "timeout", s.writeTimeout)
		err = ErrWriteTimeout
	}
	observeWrite(record, start, err)
	return err
}

// requestErrors converts struct validation failures into a FieldError
func requestErrors(err error) error {
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		if errors.Is(err, scanning.ErrTaxExceedsTotal) {
			return fieldError("tax_amount", "Tax amount must not exceed the total amount")
		}
		return err
	}

	fields := make(map[string]string, len(verrs))
	for _, fe := range verrs {
		fields[fe.Field()] = fieldMessage(fe)
	}
	return &FieldError{Fields: fields}
}

func fieldMessage(fe validator.FieldError) string {
	name := fe.Field()
	switch fe.Tag() {
	case "required":
		return name + " is required"
	case "max":
		return fmt.Sprintf("%s must be at most %s characters", name, fe.Param())
	case "uuid":
		return name + " must be a UUID"
	case "oneof":
		return fmt.Sprintf("%s must be one of: %s", name, fe.Param())
	case "gt":
		return fmt.Sprintf("%s must be greater than %s", name, fe.Param())
	case "gte":
		return fmt.Sprintf("%s must be at least %s", name, fe.Param())
	case "lte":
		return fmt.Sprintf("%s must be at most %s", name, fe.Param())
	case "datetime":
		return name + " must be a date in YYYY-MM-DD format"
	case "iso4217":
		return name + " must be an ISO 4217 currency code"
	default:
		return name + " is invalid"
	}
}

// today is the current date in YYYY-MM-DD form
func (s *Service) today() string {
	return s.timeSource.Now().Format(dateLayout)
}

// OutletRequest is the registration form for a new outlet
type OutletRequest struct {
	RequestID string `json:"request_id" validate:"omitempty,uuid"`
	Name      string `json:"name" validate:"required,max=100"`
	Location  string `json:"location" validate:"required,max=200"`
	Country   string `json:"country" validate:"required"`
}

// RegisterOutlet creates an outlet in the given country, quoting its currency against the base currency.
// Repeating a request ID returns the outlet created by the first request.
func (s *Service) RegisterOutlet(ctx context.Context, req OutletRequest) (*Outlet, error) {
	req.Name = strings.TrimSpace(req.Name)
	req.Location = strings.TrimSpace(req.Location)
	if err := s.validate.Struct(req); err != nil {
		return nil, requestErrors(err)
	}

	country, ok := LookupCountry(req.Country)
	if !ok {
		return nil, fieldError("country", fmt.Sprintf("Unknown country %q", req.Country))
	}

	rate := decimal.NewFromInt(1)
	if country.Currency != s.baseCurrency {
		rate = s.rates.RateOrDefault(ctx, s.baseCurrency, country.Currency)
	}

	outlet := &Outlet{
		ID:               s.idGenerator.Generate(),
		Name:             req.Name,
		Location:         req.Location,
		Country:          country.Name,
		Currency:         country.Currency,
		BaseExchangeRate: rate,
		CreatedAt:        s.timeSource.Now(),
	}

	var created *Outlet
	err := s.write(ctx, "outlet", func(ctx context.Context) error {
		var err error
		created, err = s.db.CreateOutlet(ctx, req.RequestID, outlet)
		return err
	})
	if err != nil {
		return nil, fmt.Errorf("registering outlet: %w", err)
	}

	slog.Info("Outlet registered", "outlet_id", created.ID, "country", created.Country, "currency", created.Currency)
	return created, nil
}

// GetOutlet retrieves an outlet by ID
func (s *Service) GetOutlet(id string) (*Outlet, error) {
	outlet, err := s.db.GetOutlet(id)
	if err != nil {
		return nil, fmt.Errorf("getting outlet: %w", err)
	}
	return outlet, nil
}

// ListOutlets returns all outlets, oldest first
func (s *Service) ListOutlets() ([]*Outlet, error) {
	outlets, err := s.db.ListOutlets()
	if err != nil {
		return nil, fmt.Errorf("listing outlets: %w", err)
	}
	sort.SliceStable(outlets, func(i, j int) bool {
		return outlets[i].CreatedAt.Before(outlets[j].CreatedAt)
	})
	return outlets, nil
}
