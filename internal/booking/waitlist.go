// internal/booking/waitlist.go
package booking

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"

	"gymbooking/internal/domain"
	"gymbooking/internal/notify"
	"gymbooking/internal/uow"
)

// ProcessWaitlist promotes at most one queued member into a free spot.
// Entries that cannot be promoted are dropped on the way; every drop and the
// promotion land in the same commit.
func (s *service) ProcessWaitlist(ctx context.Context, classID uuid.UUID) (*WaitlistResult, error) {
	ctx, span := s.span(ctx, "process_waitlist", attribute.String("class.id", classID.String()))
	defer span.End()

	var (
		result  *WaitlistResult
		notices []notify.Notice
	)
	err := s.tx.Run(ctx, "process_waitlist", func(ctx context.Context, u uow.UnitOfWork) error {
		result = &WaitlistResult{ClassID: classID}
		notices = notices[:0]
		now := s.now()

		class, err := u.Classes().GetByID(ctx, classID)
		if err != nil {
			return err
		}
		if class.IsFull() {
			result.Outcome = OutcomeNoAction
			return nil
		}

		queue, err := u.Waitlist().ListForClass(ctx, classID)
		if err != nil {
			return err
		}
		for remaining := len(queue); remaining > 0; remaining-- {
			entry, err := u.Waitlist().GetNextForClass(ctx, classID)
			if domain.IsCode(err, domain.CodeNotFound) {
				break
			}
			if err != nil {
				return err
			}

			promoted, notice, err := s.promote(ctx, u, class, entry, result, now)
			if err != nil {
				return err
			}
			if notice != nil {
				notices = append(notices, *notice)
			}
			if promoted {
				return nil
			}
		}
		result.Outcome = OutcomeQueueExhausted
		return nil
	})
	if err != nil {
		s.failed(ctx, span, "process_waitlist", err)
		return nil, fmt.Errorf("failed to process waitlist: %w", err)
	}

	span.SetAttributes(attribute.String("waitlist.outcome", string(result.Outcome)))
	if len(result.Skipped) > 0 {
		s.metrics.skipped.Add(ctx, int64(len(result.Skipped)))
	}
	if result.Outcome == OutcomePromoted {
		s.metrics.promotions.Add(ctx, 1)
		s.metrics.confirmed.Add(ctx, 1, metric.WithAttributes(attribute.Bool("waitlist", true)))
		s.log.Info("waitlist entry promoted",
			"class_id", classID, "entry_id", result.Promoted, "booking_id", result.Booking.ID(), "skipped", len(result.Skipped))
	}
	for _, n := range notices {
		notify.Dispatch(ctx, s.notifier, n)
	}
	return result, nil
}

// promote tries one entry. It reports whether a booking was created; a
// dropped entry yields false and no error so the caller moves on.
func (s *service) promote(ctx context.Context, u uow.UnitOfWork, class *domain.FitnessClass, entry *domain.WaitlistEntry, result *WaitlistResult, now time.Time) (bool, *notify.Notice, error) {
	drop := func(reason SkipReason) error {
		result.Skipped = append(result.Skipped, SkippedEntry{EntryID: entry.ID(), MemberID: entry.MemberID(), Reason: reason})
		return u.Waitlist().Remove(entry)
	}

	member, err := u.Members().GetByID(ctx, entry.MemberID())
	if domain.IsCode(err, domain.CodeNotFound) {
		return false, nil, drop(SkipMemberMissing)
	}
	if err != nil {
		return false, nil, err
	}

	if err := member.DeductCredit(now); err != nil {
		if !domain.IsCode(err, domain.CodeInsufficientCredits) {
			return false, nil, err
		}
		n := newNotice(notify.EventSkippedInsufficientCredits, member, class, now)
		n.EntryID = entry.ID()
		return false, &n, drop(SkipInsufficientCredits)
	}

	if err := class.AddBooking(member.ID()); err != nil {
		member.RefundCredit(now)
		if domain.IsCode(err, domain.CodeDuplicateBooking) {
			return false, nil, drop(SkipAlreadyBooked)
		}
		return false, nil, err
	}

	booking, err := domain.NewBooking(uuid.New(), member.ID(), class.ID(), now)
	if err != nil {
		return false, nil, err
	}
	if err := u.Members().Save(member); err != nil {
		return false, nil, err
	}
	if err := u.Classes().Save(class); err != nil {
		return false, nil, err
	}
	if err := u.Bookings().Add(booking); err != nil {
		return false, nil, err
	}
	if err := u.Waitlist().Remove(entry); err != nil {
		return false, nil, err
	}

	result.Outcome = OutcomePromoted
	result.Booking = booking
	result.Promoted = entry.ID()
	n := newNotice(notify.EventPromotedFromWaitlist, member, class, now)
	n.BookingID = booking.ID()
	n.EntryID = entry.ID()
	return true, &n, nil
}
