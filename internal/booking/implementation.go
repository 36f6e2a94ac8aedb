// internal/booking/implementation.go
package booking

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"gymbooking/internal/domain"
	"gymbooking/internal/notify"
	"gymbooking/internal/pkg/logger"
	"gymbooking/internal/uow"
)

// service implements the Service interface.
type service struct {
	tx       uow.Transactor
	notifier notify.Notifier
	log      *logger.Logger
	clock    func() time.Time
	loc      *time.Location
	tracer   trace.Tracer
	metrics  *metrics
}

type Option func(*service)

// WithClock replaces time.Now, mostly for tests.
func WithClock(clock func() time.Time) Option {
	return func(s *service) {
		if clock != nil {
			s.clock = clock
		}
	}
}

// WithLocation sets the zone class time slots are interpreted in.
func WithLocation(loc *time.Location) Option {
	return func(s *service) {
		if loc != nil {
			s.loc = loc
		}
	}
}

// NewService creates a new booking service instance.
func NewService(tx uow.Transactor, notifier notify.Notifier, log *logger.Logger, opts ...Option) Service {
	s := &service{
		tx:       tx,
		notifier: notifier,
		log:      log,
		clock:    time.Now,
		loc:      time.UTC,
		tracer:   otel.Tracer("gymbooking/booking"),
		metrics:  newMetrics(),
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.log == nil {
		s.log = logger.NewNop()
	}
	if s.notifier == nil {
		s.notifier = notify.Multi(nil)
	}
	return s
}

func (s *service) now() time.Time {
	return s.clock().In(s.loc)
}

func (s *service) span(ctx context.Context, op string, attrs ...attribute.KeyValue) (context.Context, trace.Span) {
	return s.tracer.Start(ctx, "booking."+op, trace.WithAttributes(attrs...))
}

func (s *service) failed(ctx context.Context, span trace.Span, op string, err error) {
	span.RecordError(err)
	span.SetStatus(codes.Error, err.Error())
	s.metrics.fail(ctx, op, err)
	s.log.Warn("use case failed", "op", op, "code", domain.CodeOf(err), "error", err)
}

// BookClass reserves a spot for a member and spends one credit.
func (s *service) BookClass(ctx context.Context, memberID, classID uuid.UUID) (*domain.Booking, error) {
	ctx, span := s.span(ctx, "book_class",
		attribute.String("member.id", memberID.String()),
		attribute.String("class.id", classID.String()))
	defer span.End()

	var (
		booking *domain.Booking
		notice  notify.Notice
	)
	err := s.tx.Run(ctx, "book_class", func(ctx context.Context, u uow.UnitOfWork) error {
		now := s.now()

		// Step 1: Load both aggregates
		member, err := u.Members().GetByID(ctx, memberID)
		if err != nil {
			return err
		}
		class, err := u.Classes().GetByID(ctx, classID)
		if err != nil {
			return err
		}

		// Step 2: Reject a second confirmed booking for the same class
		if err := ensureNotBooked(ctx, u, memberID, classID); err != nil {
			return err
		}

		// Step 3: Mutate the aggregates; class-full aborts the whole scope
		if err := member.DeductCredit(now); err != nil {
			return err
		}
		if err := class.AddBooking(memberID); err != nil {
			return err
		}
		b, err := domain.NewBooking(uuid.New(), memberID, classID, now)
		if err != nil {
			return err
		}

		// Step 4: Stage the change set
		if err := u.Members().Save(member); err != nil {
			return err
		}
		if err := u.Classes().Save(class); err != nil {
			return err
		}
		if err := u.Bookings().Add(b); err != nil {
			return err
		}

		booking = b
		notice = newNotice(notify.EventBookingConfirmed, member, class, now)
		notice.BookingID = b.ID()
		return nil
	})
	if err != nil {
		s.failed(ctx, span, "book_class", err)
		return nil, fmt.Errorf("failed to book class: %w", err)
	}

	s.metrics.confirmed.Add(ctx, 1)
	s.log.Info("class booked", "booking_id", booking.ID(), "member_id", memberID, "class_id", classID)
	s.notifier.BookingConfirmed(ctx, notice)
	return booking, nil
}

func ensureNotBooked(ctx context.Context, u uow.UnitOfWork, memberID, classID uuid.UUID) error {
	existing, err := u.Bookings().FindByMemberAndClass(ctx, memberID, classID)
	if err != nil {
		return err
	}
	for _, b := range existing {
		if b.Status() == domain.StatusConfirmed {
			return domain.NewError(domain.CodeAlreadyBooked, "booking.book",
				fmt.Sprintf("member %s already holds booking %s for class %s", memberID, b.ID(), classID), nil)
		}
	}
	return nil
}

// CancelBooking cancels a confirmed booking, refunds the credit and frees the spot.
func (s *service) CancelBooking(ctx context.Context, bookingID uuid.UUID) (*domain.Booking, error) {
	ctx, span := s.span(ctx, "cancel_booking", attribute.String("booking.id", bookingID.String()))
	defer span.End()

	var (
		booking *domain.Booking
		notice  notify.Notice
	)
	err := s.tx.Run(ctx, "cancel_booking", func(ctx context.Context, u uow.UnitOfWork) error {
		now := s.now()

		b, err := u.Bookings().GetByID(ctx, bookingID)
		if err != nil {
			return err
		}
		class, err := u.Classes().GetByID(ctx, b.ClassID())
		if err != nil {
			return err
		}
		member, err := u.Members().GetByID(ctx, b.MemberID())
		if err != nil {
			return err
		}

		if err := b.Cancel(class.TimeSlot().NextStart(now), now); err != nil {
			return err
		}
		member.RefundCredit(now)
		if err := class.RemoveBooking(member.ID()); err != nil {
			return err
		}

		if err := u.Bookings().Save(b); err != nil {
			return err
		}
		if err := u.Members().Save(member); err != nil {
			return err
		}
		if err := u.Classes().Save(class); err != nil {
			return err
		}

		booking = b
		notice = newNotice(notify.EventCancellationConfirmed, member, class, now)
		notice.BookingID = b.ID()
		return nil
	})
	if err != nil {
		s.failed(ctx, span, "cancel_booking", err)
		return nil, fmt.Errorf("failed to cancel booking: %w", err)
	}

	s.metrics.cancelled.Add(ctx, 1)
	s.log.Info("booking cancelled", "booking_id", bookingID, "member_id", booking.MemberID())
	s.notifier.CancellationConfirmed(ctx, notice)
	return booking, nil
}

// JoinWaitlist queues a member for a full class.
func (s *service) JoinWaitlist(ctx context.Context, memberID, classID uuid.UUID) (*domain.WaitlistEntry, error) {
	ctx, span := s.span(ctx, "join_waitlist",
		attribute.String("member.id", memberID.String()),
		attribute.String("class.id", classID.String()))
	defer span.End()

	var (
		entry  *domain.WaitlistEntry
		notice notify.Notice
	)
	err := s.tx.Run(ctx, "join_waitlist", func(ctx context.Context, u uow.UnitOfWork) error {
		now := s.now()

		member, err := u.Members().GetByID(ctx, memberID)
		if err != nil {
			return err
		}
		class, err := u.Classes().GetByID(ctx, classID)
		if err != nil {
			return err
		}
		if !class.IsFull() {
			return domain.NewError(domain.CodeClassHasSpace, "waitlist.join",
				fmt.Sprintf("class %s has %d open spots", classID, class.AvailableSpots()), nil)
		}
		if err := ensureNotBooked(ctx, u, memberID, classID); err != nil {
			return err
		}
		queued, err := u.Waitlist().FindByMemberAndClass(ctx, memberID, classID)
		switch {
		case err == nil:
			return domain.NewError(domain.CodeAlreadyWaitlisted, "waitlist.join",
				fmt.Sprintf("member %s already queued as %s", memberID, queued.ID()), nil)
		case !domain.IsCode(err, domain.CodeNotFound):
			return err
		}

		w, err := domain.NewWaitlistEntry(uuid.New(), memberID, classID, now)
		if err != nil {
			return err
		}
		if err := u.Waitlist().Add(w); err != nil {
			return err
		}

		entry = w
		notice = newNotice(notify.EventAddedToWaitlist, member, class, now)
		notice.EntryID = w.ID()
		return nil
	})
	if err != nil {
		s.failed(ctx, span, "join_waitlist", err)
		return nil, fmt.Errorf("failed to join waitlist: %w", err)
	}

	s.log.Info("member waitlisted", "entry_id", entry.ID(), "member_id", memberID, "class_id", classID)
	s.notifier.AddedToWaitlist(ctx, notice)
	return entry, nil
}

// LeaveWaitlist withdraws a queued entry.
func (s *service) LeaveWaitlist(ctx context.Context, entryID uuid.UUID) error {
	ctx, span := s.span(ctx, "leave_waitlist", attribute.String("entry.id", entryID.String()))
	defer span.End()

	err := s.tx.Run(ctx, "leave_waitlist", func(ctx context.Context, u uow.UnitOfWork) error {
		w, err := u.Waitlist().GetByID(ctx, entryID)
		if err != nil {
			return err
		}
		return u.Waitlist().Remove(w)
	})
	if err != nil {
		s.failed(ctx, span, "leave_waitlist", err)
		return fmt.Errorf("failed to leave waitlist: %w", err)
	}
	return nil
}

func (s *service) MarkAttended(ctx context.Context, bookingID uuid.UUID) (*domain.Booking, error) {
	return s.close(ctx, "mark_attended", bookingID, (*domain.Booking).MarkAttended)
}

func (s *service) MarkNoShow(ctx context.Context, bookingID uuid.UUID) (*domain.Booking, error) {
	return s.close(ctx, "mark_no_show", bookingID, (*domain.Booking).MarkNoShow)
}

func (s *service) close(ctx context.Context, op string, bookingID uuid.UUID, transition func(*domain.Booking, time.Time) error) (*domain.Booking, error) {
	ctx, span := s.span(ctx, op, attribute.String("booking.id", bookingID.String()))
	defer span.End()

	var booking *domain.Booking
	err := s.tx.Run(ctx, op, func(ctx context.Context, u uow.UnitOfWork) error {
		b, err := u.Bookings().GetByID(ctx, bookingID)
		if err != nil {
			return err
		}
		if err := transition(b, s.now()); err != nil {
			return err
		}
		booking = b
		return u.Bookings().Save(b)
	})
	if err != nil {
		s.failed(ctx, span, op, err)
		return nil, fmt.Errorf("failed to close booking: %w", err)
	}
	s.log.Info("booking closed", "booking_id", bookingID, "status", booking.Status())
	return booking, nil
}

func (s *service) GetBooking(ctx context.Context, bookingID uuid.UUID) (*domain.Booking, error) {
	var booking *domain.Booking
	err := s.tx.Run(ctx, "get_booking", func(ctx context.Context, u uow.UnitOfWork) error {
		b, err := u.Bookings().GetByID(ctx, bookingID)
		booking = b
		return err
	})
	if err != nil {
		return nil, fmt.Errorf("failed to get booking: %w", err)
	}
	return booking, nil
}

func (s *service) ListMemberBookings(ctx context.Context, memberID uuid.UUID) ([]*domain.Booking, error) {
	return s.list(ctx, "list_member_bookings", func(ctx context.Context, u uow.UnitOfWork) ([]*domain.Booking, error) {
		if _, err := u.Members().GetByID(ctx, memberID); err != nil {
			return nil, err
		}
		return u.Bookings().FindByMember(ctx, memberID)
	})
}

func (s *service) ListClassBookings(ctx context.Context, classID uuid.UUID) ([]*domain.Booking, error) {
	return s.list(ctx, "list_class_bookings", func(ctx context.Context, u uow.UnitOfWork) ([]*domain.Booking, error) {
		if _, err := u.Classes().GetByID(ctx, classID); err != nil {
			return nil, err
		}
		return u.Bookings().FindByClass(ctx, classID)
	})
}

func (s *service) ListBookingsByStatus(ctx context.Context, status domain.BookingStatus) ([]*domain.Booking, error) {
	return s.list(ctx, "list_bookings_by_status", func(ctx context.Context, u uow.UnitOfWork) ([]*domain.Booking, error) {
		return u.Bookings().FindByStatus(ctx, status)
	})
}

func (s *service) list(ctx context.Context, op string, query func(context.Context, uow.UnitOfWork) ([]*domain.Booking, error)) ([]*domain.Booking, error) {
	var out []*domain.Booking
	err := s.tx.Run(ctx, op, func(ctx context.Context, u uow.UnitOfWork) error {
		found, err := query(ctx, u)
		out = found
		return err
	})
	if err != nil {
		return nil, fmt.Errorf("failed to list bookings: %w", err)
	}
	return out, nil
}

func (s *service) ClassesWithWaitlist(ctx context.Context) ([]uuid.UUID, error) {
	var ids []uuid.UUID
	err := s.tx.Run(ctx, "classes_with_waitlist", func(ctx context.Context, u uow.UnitOfWork) error {
		found, err := u.Waitlist().ClassesWithEntries(ctx)
		ids = found
		return err
	})
	if err != nil {
		return nil, fmt.Errorf("failed to list waitlisted classes: %w", err)
	}
	return ids, nil
}
