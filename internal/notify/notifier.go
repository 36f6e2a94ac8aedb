// Package notify defines the port use cases call after a successful commit.
package notify

import (
	"context"
	"time"

	"github.com/google/uuid"

	"gymbooking/internal/pkg/logger"
)

// Event names one business event delivered through a Notifier.
type Event string

const (
	EventBookingConfirmed           Event = "booking.confirmed"
	EventCancellationConfirmed      Event = "booking.cancelled"
	EventAddedToWaitlist            Event = "waitlist.added"
	EventPromotedFromWaitlist       Event = "waitlist.promoted"
	EventSkippedInsufficientCredits Event = "waitlist.skipped_insufficient_credits"
)

// Notice carries what a member needs to hear about an event.
type Notice struct {
	Event       Event     `json:"event"`
	MemberID    uuid.UUID `json:"member_id"`
	MemberName  string    `json:"member_name,omitempty"`
	Email       string    `json:"email,omitempty"`
	ClassID     uuid.UUID `json:"class_id"`
	ClassName   string    `json:"class_name,omitempty"`
	BookingID   uuid.UUID `json:"booking_id,omitempty"`
	EntryID     uuid.UUID `json:"entry_id,omitempty"`
	ClassStarts time.Time `json:"class_starts,omitempty"`
	Credits     int       `json:"credits"`
	OccurredAt  time.Time `json:"occurred_at"`
}

// Notifier delivers business events. Calls are fire-and-forget: delivery
// failures are handled and logged by the implementation.
type Notifier interface {
	BookingConfirmed(ctx context.Context, n Notice)
	CancellationConfirmed(ctx context.Context, n Notice)
	AddedToWaitlist(ctx context.Context, n Notice)
	PromotedFromWaitlist(ctx context.Context, n Notice)
	SkippedInsufficientCredits(ctx context.Context, n Notice)
}

// Dispatch routes n to the Notifier method for n.Event.
func Dispatch(ctx context.Context, to Notifier, n Notice) {
	switch n.Event {
	case EventBookingConfirmed:
		to.BookingConfirmed(ctx, n)
	case EventCancellationConfirmed:
		to.CancellationConfirmed(ctx, n)
	case EventAddedToWaitlist:
		to.AddedToWaitlist(ctx, n)
	case EventPromotedFromWaitlist:
		to.PromotedFromWaitlist(ctx, n)
	case EventSkippedInsufficientCredits:
		to.SkippedInsufficientCredits(ctx, n)
	}
}

// Sender is a single-method delivery channel that can back a Notifier.
type Sender interface {
	Send(ctx context.Context, n Notice) error
}

// FromSender adapts a Sender into a Notifier that logs failed deliveries.
func FromSender(s Sender, log *logger.Logger) Notifier {
	return &senderNotifier{sender: s, log: log}
}

type senderNotifier struct {
	sender Sender
	log    *logger.Logger
}

func (n *senderNotifier) send(ctx context.Context, notice Notice) {
	if err := n.sender.Send(ctx, notice); err != nil {
		n.log.Warn("notification delivery failed", "event", notice.Event, "member_id", notice.MemberID, "error", err)
	}
}

func (n *senderNotifier) BookingConfirmed(ctx context.Context, notice Notice) {
	n.send(ctx, notice)
}

func (n *senderNotifier) CancellationConfirmed(ctx context.Context, notice Notice) {
	n.send(ctx, notice)
}

func (n *senderNotifier) AddedToWaitlist(ctx context.Context, notice Notice) {
	n.send(ctx, notice)
}

func (n *senderNotifier) PromotedFromWaitlist(ctx context.Context, notice Notice) {
	n.send(ctx, notice)
}

func (n *senderNotifier) SkippedInsufficientCredits(ctx context.Context, notice Notice) {
	n.send(ctx, notice)
}

// LogNotifier writes every event to the structured log.
type LogNotifier struct {
	log *logger.Logger
}

func NewLogNotifier(log *logger.Logger) *LogNotifier {
	return &LogNotifier{log: log}
}

func (l *LogNotifier) write(n Notice) {
	l.log.Info("member notified",
		"event", n.Event,
		"member_id", n.MemberID,
		"email", n.Email,
		"class_id", n.ClassID,
		"booking_id", n.BookingID,
	)
}

func (l *LogNotifier) BookingConfirmed(_ context.Context, n Notice)           { l.write(n) }
func (l *LogNotifier) CancellationConfirmed(_ context.Context, n Notice)      { l.write(n) }
func (l *LogNotifier) AddedToWaitlist(_ context.Context, n Notice)            { l.write(n) }
func (l *LogNotifier) PromotedFromWaitlist(_ context.Context, n Notice)       { l.write(n) }
func (l *LogNotifier) SkippedInsufficientCredits(_ context.Context, n Notice) { l.write(n) }

// Multi fans a notice out to several notifiers in order.
type Multi []Notifier

func (m Multi) BookingConfirmed(ctx context.Context, n Notice) {
	for _, to := range m {
		to.BookingConfirmed(ctx, n)
	}
}

func (m Multi) CancellationConfirmed(ctx context.Context, n Notice) {
	for _, to := range m {
		to.CancellationConfirmed(ctx, n)
	}
}

func (m Multi) AddedToWaitlist(ctx context.Context, n Notice) {
	for _, to := range m {
		to.AddedToWaitlist(ctx, n)
	}
}

func (m Multi) PromotedFromWaitlist(ctx context.Context, n Notice) {
	for _, to := range m {
		to.PromotedFromWaitlist(ctx, n)
	}
}

func (m Multi) SkippedInsufficientCredits(ctx context.Context, n Notice) {
	for _, to := range m {
		to.SkippedInsufficientCredits(ctx, n)
	}
}
