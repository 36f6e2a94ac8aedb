package uow

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/cenkalti/backoff/v5"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"gymbooking/internal/domain"
	"gymbooking/internal/pkg/logger"
)

// Transactor runs a function inside a unit of work scope.
type Transactor interface {
	Run(ctx context.Context, op string, fn func(ctx context.Context, u UnitOfWork) error) error
}

// Runner opens a fresh unit per attempt, commits when fn succeeds and rolls
// back when it fails or panics. Attempts that end in a version conflict are
// retried with exponential backoff, so fn must not produce side effects.
type Runner struct {
	factory     Factory
	log         *logger.Logger
	tracer      trace.Tracer
	maxAttempts uint
	newBackOff  func() backoff.BackOff
}

type RunnerOption func(*Runner)

func WithMaxAttempts(n int) RunnerOption {
	return func(r *Runner) {
		if n > 0 {
			r.maxAttempts = uint(n)
		}
	}
}

func WithBackOff(fn func() backoff.BackOff) RunnerOption {
	return func(r *Runner) {
		if fn != nil {
			r.newBackOff = fn
		}
	}
}

func NewRunner(factory Factory, log *logger.Logger, opts ...RunnerOption) *Runner {
	r := &Runner{
		factory:     factory,
		log:         log,
		tracer:      otel.Tracer("gymbooking/uow"),
		maxAttempts: 3,
		newBackOff: func() backoff.BackOff {
			b := backoff.NewExponentialBackOff()
			b.InitialInterval = 10 * time.Millisecond
			b.MaxInterval = 200 * time.Millisecond
			return b
		},
	}
	for _, opt := range opts {
		opt(r)
	}
	if r.log == nil {
		r.log = logger.NewNop()
	}
	return r
}

func (r *Runner) Run(ctx context.Context, op string, fn func(ctx context.Context, u UnitOfWork) error) error {
	ctx, span := r.tracer.Start(ctx, "uow.run", trace.WithAttributes(attribute.String("uow.op", op)))
	defer span.End()

	attempt := 0
	_, err := backoff.Retry(ctx, func() (struct{}, error) {
		attempt++
		err := r.once(ctx, fn)
		if err == nil {
			return struct{}{}, nil
		}
		if domain.IsCode(err, domain.CodeConflict) {
			return struct{}{}, err
		}
		return struct{}{}, backoff.Permanent(err)
	},
		backoff.WithBackOff(r.newBackOff()),
		backoff.WithMaxTries(r.maxAttempts),
		backoff.WithNotify(func(err error, next time.Duration) {
			r.log.Warn("unit of work conflict, retrying", "op", op, "attempt", attempt, "retry_in", next, "error", err)
		}),
	)
	span.SetAttributes(attribute.Int("uow.attempts", attempt))
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return err
	}
	return nil
}

func (r *Runner) once(ctx context.Context, fn func(ctx context.Context, u UnitOfWork) error) (err error) {
	u, err := r.factory.Begin(ctx)
	if err != nil {
		return err
	}
	defer func() {
		if p := recover(); p != nil {
			_ = u.Rollback(ctx)
			panic(p)
		}
	}()
	if err := fn(ctx, u); err != nil {
		if rbErr := u.Rollback(ctx); rbErr != nil && !errors.Is(rbErr, ErrUnitClosed) {
			r.log.Error("unit of work rollback failed", "error", rbErr)
		}
		return err
	}
	if err := u.Commit(ctx); err != nil {
		return fmt.Errorf("commit: %w", err)
	}
	return nil
}
