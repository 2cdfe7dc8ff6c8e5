package quota

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"time"

	"github.com/rbright/murmur/internal/metrics"
)

// Policy decides availability when the counter store cannot answer.
type Policy int

const (
	FailOpen Policy = iota
	FailClosed
)

// StoreErrorPolicy applies when Check cannot read or write a counter.
// Quotas are advisory, so a broken store does not block requests.
const StoreErrorPolicy = FailOpen

// Outcome distinguishes how Check reached its answer.
type Outcome int

const (
	// OutcomeTracked means an existing counter was evaluated.
	OutcomeTracked Outcome = iota
	// OutcomeCreated means no usage data existed and a fresh counter was created.
	OutcomeCreated
	// OutcomeStoreError means availability came from StoreErrorPolicy.
	OutcomeStoreError
)

func (o Outcome) String() string {
	switch o {
	case OutcomeTracked:
		return "tracked"
	case OutcomeCreated:
		return "created"
	case OutcomeStoreError:
		return "store_error"
	default:
		return fmt.Sprintf("outcome(%d)", int(o))
	}
}

// Availability is the result of Check.
type Availability struct {
	Service   string
	Available bool
	Remaining int64
	Outcome   Outcome
	Counter   Counter
	Err       error
}

// ErrInvalidUnits is returned by Track for non-positive usage.
var ErrInvalidUnits = errors.New("tracked units must be positive")

// Arbiter owns the daily counters and the backend selection policy.
type Arbiter struct {
	store    Store
	limits   map[string]Limit
	services Services
	location *time.Location
	now      func() time.Time
	logger   *slog.Logger
	metrics  *metrics.Metrics
}

// Option configures an Arbiter.
type Option func(*Arbiter)

// WithClock overrides time.Now.
func WithClock(now func() time.Time) Option {
	return func(a *Arbiter) { a.now = now }
}

// WithLocation sets the zone whose calendar dates drive rollover. Defaults to time.Local.
func WithLocation(loc *time.Location) Option {
	return func(a *Arbiter) {
		if loc != nil {
			a.location = loc
		}
	}
}

// WithServices maps backend variants to counter names.
func WithServices(s Services) Option {
	return func(a *Arbiter) { a.services = s }
}

func WithLogger(logger *slog.Logger) Option {
	return func(a *Arbiter) { a.logger = logger }
}

func WithMetrics(m *metrics.Metrics) Option {
	return func(a *Arbiter) { a.metrics = m }
}

// NewArbiter builds an arbiter over store. Services missing from limits are Unlimited.
func NewArbiter(store Store, limits map[string]Limit, opts ...Option) *Arbiter {
	copied := make(map[string]Limit, len(limits))
	for name, limit := range limits {
		copied[name] = limit
	}

	a := &Arbiter{
		store:    store,
		limits:   copied,
		services: DefaultServices(),
		location: time.Local,
		now:      time.Now,
		logger:   slog.New(slog.DiscardHandler),
	}
	for _, opt := range opts {
		opt(a)
	}
	return a
}

// Services returns the variant-to-counter mapping in use.
func (a *Arbiter) Services() Services {
	return a.services
}

// LimitFor returns the configured daily limit for service.
func (a *Arbiter) LimitFor(service string) Limit {
	if limit, ok := a.limits[service]; ok {
		return limit
	}
	return Unlimited
}

// Check creates the counter on first access, applies day rollover, and reports availability.
func (a *Arbiter) Check(ctx context.Context, service string) Availability {
	now := a.now()

	counter, found, err := a.store.Get(ctx, service)
	if err != nil {
		return a.storeFailure(service, "get", err)
	}

	outcome := OutcomeTracked
	dirty := false
	if !found {
		counter = a.fresh(service, now)
		outcome = OutcomeCreated
		dirty = true
	} else if a.rollover(&counter, now) {
		dirty = true
	}

	if dirty {
		if err := a.store.Upsert(ctx, counter); err != nil {
			return a.storeFailure(service, "upsert", err)
		}
	}

	available := counter.Available()
	a.metrics.QuotaChecked(service, available)
	return Availability{
		Service:   service,
		Available: available,
		Remaining: counter.Remaining(),
		Outcome:   outcome,
		Counter:   counter,
	}
}

// Track adds units of usage to service. It is not idempotent: call it once per consumed unit
// batch and only after the backend call succeeded.
func (a *Arbiter) Track(ctx context.Context, service string, units int) error {
	if units <= 0 {
		return fmt.Errorf("%w: %d", ErrInvalidUnits, units)
	}
	now := a.now()

	counter, found, err := a.store.Get(ctx, service)
	if err != nil {
		a.metrics.QuotaStoreFailed("get")
		return fmt.Errorf("read quota counter %q: %w", service, err)
	}
	if !found {
		counter = a.fresh(service, now)
	} else {
		a.rollover(&counter, now)
	}

	counter.DailyCalls += int64(units)
	counter.UpdatedAt = now
	counter.syncExceeded()

	if err := a.store.Upsert(ctx, counter); err != nil {
		a.metrics.QuotaStoreFailed("upsert")
		return fmt.Errorf("write quota counter %q: %w", service, err)
	}

	a.metrics.QuotaConsumed(service, units)
	if counter.Exceeded {
		a.logger.Info("quota exhausted",
			"service", service,
			"daily_calls", counter.DailyCalls,
			"daily_limit", int64(counter.DailyLimit),
		)
	}
	return nil
}

// Status checks every configured service plus the variant services, sorted by name.
func (a *Arbiter) Status(ctx context.Context) []Availability {
	names := make(map[string]struct{}, len(a.limits))
	for name := range a.limits {
		names[name] = struct{}{}
	}
	for _, name := range a.services.All() {
		names[name] = struct{}{}
	}

	ordered := make([]string, 0, len(names))
	for name := range names {
		ordered = append(ordered, name)
	}
	sort.Strings(ordered)

	out := make([]Availability, 0, len(ordered))
	for _, name := range ordered {
		out = append(out, a.Check(ctx, name))
	}
	return out
}

func (a *Arbiter) fresh(service string, now time.Time) Counter {
	c := Counter{
		Service:    service,
		DailyLimit: a.LimitFor(service),
		LastReset:  now,
		UpdatedAt:  now,
	}
	c.syncExceeded()
	return c
}

// rollover zeroes usage when now falls on a later calendar date than LastReset.
func (a *Arbiter) rollover(c *Counter, now time.Time) bool {
	if !a.earlierDate(c.LastReset, now) {
		return false
	}
	c.DailyCalls = 0
	c.LastReset = now
	c.UpdatedAt = now
	c.syncExceeded()
	return true
}

func (a *Arbiter) earlierDate(last, now time.Time) bool {
	ly, lm, ld := last.In(a.location).Date()
	ny, nm, nd := now.In(a.location).Date()
	lastDay := time.Date(ly, lm, ld, 0, 0, 0, 0, time.UTC)
	nowDay := time.Date(ny, nm, nd, 0, 0, 0, 0, time.UTC)
	return lastDay.Before(nowDay)
}

func (a *Arbiter) storeFailure(service, op string, err error) Availability {
	a.metrics.QuotaStoreFailed(op)
	a.logger.Warn("quota store unavailable",
		"service", service,
		"op", op,
		"policy", StoreErrorPolicy.String(),
		"error", err.Error(),
	)
	return Availability{
		Service:   service,
		Available: StoreErrorPolicy == FailOpen,
		Remaining: 0,
		Outcome:   OutcomeStoreError,
		Err:       fmt.Errorf("quota %s %q: %w", op, service, err),
	}
}

func (p Policy) String() string {
	if p == FailClosed {
		return "fail_closed"
	}
	return "fail_open"
}
