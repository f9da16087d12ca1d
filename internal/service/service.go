package service

import (
	"context"
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/sirupsen/logrus"

	"billbook/backend/internal/cache"
	"billbook/backend/internal/domain"
	"billbook/backend/internal/locker"
	"billbook/backend/internal/store"
)

type actorContextKey struct{}

func WithActor(ctx context.Context, actor domain.Actor) context.Context {
	return context.WithValue(ctx, actorContextKey{}, actor)
}

func ActorFromContext(ctx context.Context) (domain.Actor, bool) {
	actor, ok := ctx.Value(actorContextKey{}).(domain.Actor)
	return actor, ok
}

type Options struct {
	Locker      locker.Locker
	Totals      cache.TotalsCache
	TotalsTTL   time.Duration
	PhoneRegion string
	Logger      *logrus.Logger
	// Now is overridable so tests can pin "today".
	Now func() time.Time
}

type Service struct {
	repo        store.Repository
	locks       locker.Locker
	totals      cache.TotalsCache
	totalsTTL   time.Duration
	phoneRegion string
	logger      *logrus.Logger
	validate    *validator.Validate
	now         func() time.Time
}

func New(repo store.Repository, opts Options) *Service {
	if opts.Locker == nil {
		opts.Locker = locker.NewLocal()
	}
	if opts.Totals == nil {
		opts.Totals = cache.NoopTotalsCache{}
	}
	if opts.TotalsTTL <= 0 {
		opts.TotalsTTL = time.Minute
	}
	if opts.PhoneRegion == "" {
		opts.PhoneRegion = "IN"
	}
	if opts.Logger == nil {
		opts.Logger = logrus.New()
		opts.Logger.SetOutput(io.Discard)
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}

	return &Service{
		repo:        repo,
		locks:       opts.Locker,
		totals:      opts.Totals,
		totalsTTL:   opts.TotalsTTL,
		phoneRegion: opts.PhoneRegion,
		logger:      opts.Logger,
		validate:    newValidator(),
		now:         opts.Now,
	}
}

func (s *Service) log(funcName string) *logrus.Entry {
	return s.logger.WithFields(logrus.Fields{
		"module":   "service",
		"funcName": funcName,
	})
}

func (s *Service) today() time.Time {
	return truncateDay(s.now())
}

func (s *Service) lock(ctx context.Context, key string) (func(), error) {
	release, err := s.locks.Acquire(ctx, key)
	if err != nil {
		return nil, fmt.Errorf("acquire %s: %w", key, err)
	}
	return release, nil
}

func lookupErr(err error, kind string, id string) error {
	if errors.Is(err, store.ErrNotFound) {
		return fmt.Errorf("%s %q %w", kind, id, store.ErrNotFound)
	}
	return err
}

func invalidf(format string, args ...any) error {
	return fmt.Errorf("%w: %s", store.ErrInvalidInput, fmt.Sprintf(format, args...))
}

func txLockKey(id string) string {
	return "txn:" + id
}

func billLockKey(id string) string {
	return "bill:" + id
}

// customerLockKey guards a customer against deletion while a ledger entry is
// being written for it. Locks nest as bill or txn, then invoice-number, then
// customer.
func customerLockKey(id string) string {
	return "customer:" + id
}

const invoiceLockKey = "invoice-number"
