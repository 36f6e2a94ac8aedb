// internal/booking/domain.go
package booking

import (
	"time"

	"github.com/google/uuid"

	"gymbooking/internal/domain"
	"gymbooking/internal/notify"
)

// Outcome describes what a ProcessWaitlist call did.
type Outcome string

const (
	// OutcomeNoAction means the class was full and nothing was touched.
	OutcomeNoAction       Outcome = "no_action"
	OutcomePromoted       Outcome = "promoted"
	OutcomeQueueExhausted Outcome = "queue_exhausted"
)

// SkipReason explains why a waitlist entry was dropped without a promotion.
type SkipReason string

const (
	SkipMemberMissing       SkipReason = "member_missing"
	SkipInsufficientCredits SkipReason = "insufficient_credits"
	SkipAlreadyBooked       SkipReason = "already_booked"
)

type SkippedEntry struct {
	EntryID  uuid.UUID  `json:"entry_id"`
	MemberID uuid.UUID  `json:"member_id"`
	Reason   SkipReason `json:"reason"`
}

// WaitlistResult is returned by ProcessWaitlist.
type WaitlistResult struct {
	ClassID  uuid.UUID       `json:"class_id"`
	Outcome  Outcome         `json:"outcome"`
	Booking  *domain.Booking `json:"-"`
	Promoted uuid.UUID       `json:"promoted_entry_id,omitempty"`
	Skipped  []SkippedEntry  `json:"skipped,omitempty"`
}

// BookingView is the JSON shape of a booking.
type BookingView struct {
	ID          uuid.UUID            `json:"id"`
	MemberID    uuid.UUID            `json:"member_id"`
	ClassID     uuid.UUID            `json:"class_id"`
	Status      domain.BookingStatus `json:"status"`
	BookedAt    time.Time            `json:"booked_at"`
	CancelledAt *time.Time           `json:"cancelled_at,omitempty"`
}

func NewBookingView(b *domain.Booking) BookingView {
	v := BookingView{
		ID:       b.ID(),
		MemberID: b.MemberID(),
		ClassID:  b.ClassID(),
		Status:   b.Status(),
		BookedAt: b.BookedAt(),
	}
	if at := b.CancelledAt(); !at.IsZero() {
		v.CancelledAt = &at
	}
	return v
}

type WaitlistEntryView struct {
	ID       uuid.UUID `json:"id"`
	MemberID uuid.UUID `json:"member_id"`
	ClassID  uuid.UUID `json:"class_id"`
	AddedAt  time.Time `json:"added_at"`
}

func NewWaitlistEntryView(w *domain.WaitlistEntry) WaitlistEntryView {
	return WaitlistEntryView{ID: w.ID(), MemberID: w.MemberID(), ClassID: w.ClassID(), AddedAt: w.AddedAt()}
}

func newNotice(event notify.Event, m *domain.Member, c *domain.FitnessClass, now time.Time) notify.Notice {
	return notify.Notice{
		Event:       event,
		MemberID:    m.ID(),
		MemberName:  m.Name(),
		Email:       m.Email().String(),
		ClassID:     c.ID(),
		ClassName:   c.Name(),
		ClassStarts: c.TimeSlot().NextStart(now),
		Credits:     m.Credits(now),
		OccurredAt:  now,
	}
}
