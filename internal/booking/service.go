// internal/booking/service.go
package booking

import (
	"context"

	"github.com/google/uuid"

	"gymbooking/internal/domain"
)

// Service defines the booking use cases.
type Service interface {
	BookClass(ctx context.Context, memberID, classID uuid.UUID) (*domain.Booking, error)
	CancelBooking(ctx context.Context, bookingID uuid.UUID) (*domain.Booking, error)
	ProcessWaitlist(ctx context.Context, classID uuid.UUID) (*WaitlistResult, error)
	JoinWaitlist(ctx context.Context, memberID, classID uuid.UUID) (*domain.WaitlistEntry, error)
	LeaveWaitlist(ctx context.Context, entryID uuid.UUID) error
	MarkAttended(ctx context.Context, bookingID uuid.UUID) (*domain.Booking, error)
	MarkNoShow(ctx context.Context, bookingID uuid.UUID) (*domain.Booking, error)

	GetBooking(ctx context.Context, bookingID uuid.UUID) (*domain.Booking, error)
	ListMemberBookings(ctx context.Context, memberID uuid.UUID) ([]*domain.Booking, error)
	ListClassBookings(ctx context.Context, classID uuid.UUID) ([]*domain.Booking, error)
	ListBookingsByStatus(ctx context.Context, status domain.BookingStatus) ([]*domain.Booking, error)
	ClassesWithWaitlist(ctx context.Context) ([]uuid.UUID, error)
}
