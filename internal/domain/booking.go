package domain

import (
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
)

// CancellationCutoff is the minimum notice required to cancel a booking.
const CancellationCutoff = 2 * time.Hour

// BookingStatus is the lifecycle state of a Booking.
type BookingStatus uint8

const (
	StatusConfirmed BookingStatus = iota + 1
	StatusCancelled
	StatusAttended
	StatusNoShow
)

func (s BookingStatus) String() string {
	switch s {
	case StatusConfirmed:
		return "CONFIRMED"
	case StatusCancelled:
		return "CANCELLED"
	case StatusAttended:
		return "ATTENDED"
	case StatusNoShow:
		return "NO_SHOW"
	default:
		return fmt.Sprintf("BookingStatus(%d)", uint8(s))
	}
}

// IsTerminal reports whether no further transition is possible.
func (s BookingStatus) IsTerminal() bool {
	return s == StatusCancelled || s == StatusAttended || s == StatusNoShow
}

// CanTransitionTo allows only CONFIRMED -> {CANCELLED, ATTENDED, NO_SHOW}.
func (s BookingStatus) CanTransitionTo(next BookingStatus) bool {
	return s == StatusConfirmed && next.IsTerminal()
}

func ParseBookingStatus(raw string) (BookingStatus, error) {
	switch strings.ToUpper(strings.TrimSpace(raw)) {
	case "CONFIRMED":
		return StatusConfirmed, nil
	case "CANCELLED":
		return StatusCancelled, nil
	case "ATTENDED":
		return StatusAttended, nil
	case "NO_SHOW":
		return StatusNoShow, nil
	default:
		return 0, invalid("booking_status.parse", "unknown booking status %q", raw)
	}
}

func (s BookingStatus) MarshalText() ([]byte, error) { return []byte(s.String()), nil }

func (s *BookingStatus) UnmarshalText(b []byte) error {
	v, err := ParseBookingStatus(string(b))
	if err != nil {
		return err
	}
	*s = v
	return nil
}

// Booking is a member's spot on a class. It references both by id only.
type Booking struct {
	id          uuid.UUID
	memberID    uuid.UUID
	classID     uuid.UUID
	status      BookingStatus
	bookedAt    time.Time
	cancelledAt time.Time
	closedAt    time.Time
	version     int
}

// NewBooking creates a CONFIRMED booking.
func NewBooking(id, memberID, classID uuid.UUID, now time.Time) (*Booking, error) {
	if id == uuid.Nil || memberID == uuid.Nil || classID == uuid.Nil {
		return nil, invalid("booking.new", "booking, member and class ids are required")
	}
	return &Booking{
		id:       id,
		memberID: memberID,
		classID:  classID,
		status:   StatusConfirmed,
		bookedAt: now,
	}, nil
}

func (b *Booking) ID() uuid.UUID          { return b.id }
func (b *Booking) MemberID() uuid.UUID    { return b.memberID }
func (b *Booking) ClassID() uuid.UUID     { return b.classID }
func (b *Booking) Status() BookingStatus  { return b.status }
func (b *Booking) BookedAt() time.Time    { return b.bookedAt }
func (b *Booking) CancelledAt() time.Time { return b.cancelledAt }
func (b *Booking) Version() int           { return b.version }

// Cancel cancels a CONFIRMED booking at least CancellationCutoff before classStart.
func (b *Booking) Cancel(classStart, now time.Time) error {
	if b.status != StatusConfirmed {
		return NewError(CodeNotCancellable, "booking.cancel", "booking is "+b.status.String(), nil)
	}
	if classStart.Sub(now) < CancellationCutoff {
		return NewError(CodeNotCancellable, "booking.cancel",
			fmt.Sprintf("class starts at %s, less than %s away", classStart.Format(time.RFC3339), CancellationCutoff), nil)
	}
	b.status = StatusCancelled
	b.cancelledAt = now
	return nil
}

func (b *Booking) MarkAttended(now time.Time) error {
	return b.close(StatusAttended, now)
}

func (b *Booking) MarkNoShow(now time.Time) error {
	return b.close(StatusNoShow, now)
}

func (b *Booking) close(next BookingStatus, now time.Time) error {
	if !b.status.CanTransitionTo(next) {
		return NewError(CodeInvalidTransition, "booking.transition",
			fmt.Sprintf("cannot move booking from %s to %s", b.status, next), nil)
	}
	b.status = next
	b.closedAt = now
	return nil
}

// BookingState is the persisted form of a Booking.
type BookingState struct {
	ID          uuid.UUID     `json:"id"`
	MemberID    uuid.UUID     `json:"member_id"`
	ClassID     uuid.UUID     `json:"class_id"`
	Status      BookingStatus `json:"status"`
	BookedAt    time.Time     `json:"booked_at"`
	CancelledAt time.Time     `json:"cancelled_at,omitempty"`
	ClosedAt    time.Time     `json:"closed_at,omitempty"`
	Version     int           `json:"version"`
}

func (b *Booking) State() BookingState {
	return BookingState{
		ID:          b.id,
		MemberID:    b.memberID,
		ClassID:     b.classID,
		Status:      b.status,
		BookedAt:    b.bookedAt,
		CancelledAt: b.cancelledAt,
		ClosedAt:    b.closedAt,
		Version:     b.version,
	}
}

func RestoreBooking(s BookingState) (*Booking, error) {
	b, err := NewBooking(s.ID, s.MemberID, s.ClassID, s.BookedAt)
	if err != nil {
		return nil, err
	}
	if s.Status < StatusConfirmed || s.Status > StatusNoShow {
		return nil, invalid("booking.restore", "booking %s has unknown status %d", s.ID, s.Status)
	}
	b.status = s.Status
	b.cancelledAt = s.CancelledAt
	b.closedAt = s.ClosedAt
	b.version = s.Version
	return b, nil
}
