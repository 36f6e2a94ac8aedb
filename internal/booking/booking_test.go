package booking_test

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/sync/errgroup"

	"gymbooking/internal/booking"
	"gymbooking/internal/chaos"
	"gymbooking/internal/domain"
	"gymbooking/internal/notify"
	"gymbooking/internal/uow"
	"gymbooking/internal/uow/memstore"
)

// Monday 2026-10-19 09:00 UTC.
var now = time.Date(2026, 10, 19, 9, 0, 0, 0, time.UTC)

type recorder struct {
	mu      sync.Mutex
	notices []notify.Notice
}

func (r *recorder) add(n notify.Notice) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.notices = append(r.notices, n)
}

func (r *recorder) BookingConfirmed(_ context.Context, n notify.Notice)           { r.add(n) }
func (r *recorder) CancellationConfirmed(_ context.Context, n notify.Notice)      { r.add(n) }
func (r *recorder) AddedToWaitlist(_ context.Context, n notify.Notice)            { r.add(n) }
func (r *recorder) PromotedFromWaitlist(_ context.Context, n notify.Notice)       { r.add(n) }
func (r *recorder) SkippedInsufficientCredits(_ context.Context, n notify.Notice) { r.add(n) }

func (r *recorder) events() []notify.Event {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]notify.Event, len(r.notices))
	for i, n := range r.notices {
		out[i] = n.Event
	}
	return out
}

type fixture struct {
	store  *memstore.Store
	faults *chaos.FaultyStore
	svc    booking.Service
	notes  *recorder
}

func newFixture(t *testing.T, opts ...uow.RunnerOption) *fixture {
	t.Helper()
	store := memstore.New()
	faults := chaos.NewFaultyStore(store)
	notes := &recorder{}
	runner := uow.NewRunner(uow.NewManager(faults), nil, opts...)
	return &fixture{
		store:  store,
		faults: faults,
		svc:    booking.NewService(runner, notes, nil, booking.WithClock(func() time.Time { return now })),
		notes:  notes,
	}
}

func (f *fixture) seed(t *testing.T, aggs ...uow.Aggregate) {
	t.Helper()
	ctx := context.Background()
	u, err := uow.NewManager(f.store).Begin(ctx)
	require.NoError(t, err)
	for _, a := range aggs {
		require.NoError(t, u.RegisterNew(a))
	}
	require.NoError(t, u.Commit(ctx))
}

func (f *fixture) member(t *testing.T, tier domain.MembershipType) *domain.Member {
	t.Helper()
	email, err := domain.NewEmailAddress(uuid.NewString() + "@gym.test")
	require.NoError(t, err)
	m, err := domain.NewMember(uuid.New(), "Alex", email, tier, now)
	require.NoError(t, err)
	f.seed(t, m)
	return m
}

// class seeds a class on day at hour, with bookings already held by members.
func (f *fixture) class(t *testing.T, capacity int, day time.Weekday, hour int, members ...uuid.UUID) *domain.FitnessClass {
	t.Helper()
	c, err := domain.NewClassCapacity(capacity)
	require.NoError(t, err)
	slot, err := domain.NewTimeSlot(day, time.Duration(hour)*time.Hour, time.Duration(hour+1)*time.Hour)
	require.NoError(t, err)
	class, err := domain.NewFitnessClass(uuid.New(), "Yoga", c, slot, uuid.New())
	require.NoError(t, err)
	for _, m := range members {
		require.NoError(t, class.AddBooking(m))
	}
	f.seed(t, class)
	return class
}

func (f *fixture) credits(t *testing.T, id uuid.UUID) int {
	t.Helper()
	st, ok := f.store.Member(id)
	require.True(t, ok)
	return st.Credits
}

func (f *fixture) booked(t *testing.T, id uuid.UUID) []uuid.UUID {
	t.Helper()
	st, ok := f.store.Class(id)
	require.True(t, ok)
	return st.BookedMembers
}

func TestBookClass(t *testing.T) {
	f := newFixture(t)
	m := f.member(t, domain.TierBasic)
	class := f.class(t, 10, time.Saturday, 9)

	b, err := f.svc.BookClass(context.Background(), m.ID(), class.ID())
	require.NoError(t, err)
	assert.Equal(t, domain.StatusConfirmed, b.Status())
	assert.Equal(t, now, b.BookedAt())

	assert.Equal(t, 9, f.credits(t, m.ID()))
	assert.Equal(t, []uuid.UUID{m.ID()}, f.booked(t, class.ID()))
	_, ok := f.store.Booking(b.ID())
	assert.True(t, ok)
	assert.Equal(t, 3, f.store.Commits(), "member, class and booking land in one commit after two seeds")

	require.Len(t, f.notes.notices, 1)
	n := f.notes.notices[0]
	assert.Equal(t, notify.EventBookingConfirmed, n.Event)
	assert.Equal(t, b.ID(), n.BookingID)
	assert.Equal(t, time.Date(2026, 10, 24, 9, 0, 0, 0, time.UTC), n.ClassStarts)
	assert.Equal(t, 9, n.Credits)
}

func TestBookClassFullIsAtomic(t *testing.T) {
	f := newFixture(t)
	holder := f.member(t, domain.TierBasic)
	m := f.member(t, domain.TierBasic)
	class := f.class(t, 1, time.Saturday, 9, holder.ID())
	commits := f.store.Commits()

	_, err := f.svc.BookClass(context.Background(), m.ID(), class.ID())
	require.Error(t, err)
	assert.ErrorIs(t, err, domain.ErrClassFull)

	assert.Equal(t, 10, f.credits(t, m.ID()), "credit deduction rolled back")
	assert.Equal(t, []uuid.UUID{holder.ID()}, f.booked(t, class.ID()))
	assert.Equal(t, commits, f.store.Commits())
	assert.Empty(t, f.notes.events())
}

func TestBookClassRejections(t *testing.T) {
	f := newFixture(t)
	broke, err := domain.NewMembershipType("trial", 0, 0)
	require.NoError(t, err)
	poor := f.member(t, broke)
	m := f.member(t, domain.TierBasic)
	class := f.class(t, 5, time.Saturday, 9)
	ctx := context.Background()

	_, err = f.svc.BookClass(ctx, poor.ID(), class.ID())
	assert.ErrorIs(t, err, domain.ErrInsufficientCredits)

	_, err = f.svc.BookClass(ctx, uuid.New(), class.ID())
	assert.ErrorIs(t, err, domain.ErrNotFound)
	_, err = f.svc.BookClass(ctx, m.ID(), uuid.New())
	assert.ErrorIs(t, err, domain.ErrNotFound)

	_, err = f.svc.BookClass(ctx, m.ID(), class.ID())
	require.NoError(t, err)
	_, err = f.svc.BookClass(ctx, m.ID(), class.ID())
	assert.True(t, domain.IsCode(err, domain.CodeAlreadyBooked))
	assert.Equal(t, 9, f.credits(t, m.ID()), "second attempt charged nothing")
}

func TestNotifyOnlyAfterCommit(t *testing.T) {
	f := newFixture(t)
	m := f.member(t, domain.TierBasic)
	class := f.class(t, 5, time.Saturday, 9)

	f.faults.FailNext(1)
	_, err := f.svc.BookClass(context.Background(), m.ID(), class.ID())
	require.ErrorIs(t, err, chaos.ErrInjectedFault)

	assert.Empty(t, f.notes.events(), "nothing is announced for a failed commit")
	assert.Equal(t, 10, f.credits(t, m.ID()))
	assert.Empty(t, f.booked(t, class.ID()))
	assert.Equal(t, 1, f.faults.Injected())
}

func TestCancelBooking(t *testing.T) {
	f := newFixture(t)
	m := f.member(t, domain.TierBasic)
	class := f.class(t, 5, time.Saturday, 9)
	ctx := context.Background()

	b, err := f.svc.BookClass(ctx, m.ID(), class.ID())
	require.NoError(t, err)

	cancelled, err := f.svc.CancelBooking(ctx, b.ID())
	require.NoError(t, err)
	assert.Equal(t, domain.StatusCancelled, cancelled.Status())
	assert.Equal(t, now, cancelled.CancelledAt())
	assert.Equal(t, 10, f.credits(t, m.ID()), "credit refunded")
	assert.Empty(t, f.booked(t, class.ID()))

	_, err = f.svc.CancelBooking(ctx, b.ID())
	assert.ErrorIs(t, err, domain.ErrNotCancellable)
	assert.Equal(t, 10, f.credits(t, m.ID()), "no double refund")

	assert.Equal(t, []notify.Event{notify.EventBookingConfirmed, notify.EventCancellationConfirmed}, f.notes.events())

	_, err = f.svc.CancelBooking(ctx, uuid.New())
	assert.ErrorIs(t, err, domain.ErrNotFound)
}

func TestCancelBookingInsideCutoff(t *testing.T) {
	f := newFixture(t)
	m := f.member(t, domain.TierBasic)
	// Starts at 10:00 today, one hour from now.
	class := f.class(t, 5, time.Monday, 10)
	ctx := context.Background()

	b, err := f.svc.BookClass(ctx, m.ID(), class.ID())
	require.NoError(t, err)

	_, err = f.svc.CancelBooking(ctx, b.ID())
	assert.ErrorIs(t, err, domain.ErrNotCancellable)
	assert.Equal(t, 9, f.credits(t, m.ID()))
	assert.Equal(t, []uuid.UUID{m.ID()}, f.booked(t, class.ID()))
}

func TestJoinWaitlist(t *testing.T) {
	f := newFixture(t)
	holder := f.member(t, domain.TierBasic)
	m := f.member(t, domain.TierBasic)
	full := f.class(t, 1, time.Saturday, 9)
	open := f.class(t, 5, time.Saturday, 11)
	ctx := context.Background()

	_, err := f.svc.BookClass(ctx, holder.ID(), full.ID())
	require.NoError(t, err)

	_, err = f.svc.JoinWaitlist(ctx, m.ID(), open.ID())
	assert.True(t, domain.IsCode(err, domain.CodeClassHasSpace))

	_, err = f.svc.JoinWaitlist(ctx, holder.ID(), full.ID())
	assert.True(t, domain.IsCode(err, domain.CodeAlreadyBooked))

	entry, err := f.svc.JoinWaitlist(ctx, m.ID(), full.ID())
	require.NoError(t, err)
	assert.Equal(t, now, entry.AddedAt())

	_, err = f.svc.JoinWaitlist(ctx, m.ID(), full.ID())
	assert.True(t, domain.IsCode(err, domain.CodeAlreadyWaitlisted))

	assert.Equal(t, []notify.Event{notify.EventBookingConfirmed, notify.EventAddedToWaitlist}, f.notes.events())

	require.NoError(t, f.svc.LeaveWaitlist(ctx, entry.ID()))
	_, ok := f.store.WaitlistEntry(entry.ID())
	assert.False(t, ok)
	assert.ErrorIs(t, f.svc.LeaveWaitlist(ctx, entry.ID()), domain.ErrNotFound)
}

func TestProcessWaitlistPromotesFirstInLine(t *testing.T) {
	f := newFixture(t)
	holder := f.member(t, domain.TierBasic)
	first := f.member(t, domain.TierBasic)
	second := f.member(t, domain.TierBasic)
	class := f.class(t, 1, time.Saturday, 9)
	ctx := context.Background()

	held, err := f.svc.BookClass(ctx, holder.ID(), class.ID())
	require.NoError(t, err)

	e1, err := domain.NewWaitlistEntry(uuid.New(), first.ID(), class.ID(), now.Add(-2*time.Hour))
	require.NoError(t, err)
	e2, err := domain.NewWaitlistEntry(uuid.New(), second.ID(), class.ID(), now.Add(-time.Hour))
	require.NoError(t, err)
	f.seed(t, e2, e1)

	res, err := f.svc.ProcessWaitlist(ctx, class.ID())
	require.NoError(t, err)
	assert.Equal(t, booking.OutcomeNoAction, res.Outcome, "full class is left alone")
	_, ok := f.store.WaitlistEntry(e1.ID())
	assert.True(t, ok)

	_, err = f.svc.CancelBooking(ctx, held.ID())
	require.NoError(t, err)

	res, err = f.svc.ProcessWaitlist(ctx, class.ID())
	require.NoError(t, err)
	require.Equal(t, booking.OutcomePromoted, res.Outcome)
	assert.Equal(t, e1.ID(), res.Promoted)
	require.NotNil(t, res.Booking)
	assert.Equal(t, first.ID(), res.Booking.MemberID())
	assert.Empty(t, res.Skipped)

	assert.Equal(t, 9, f.credits(t, first.ID()))
	assert.Equal(t, []uuid.UUID{first.ID()}, f.booked(t, class.ID()))
	_, ok = f.store.WaitlistEntry(e1.ID())
	assert.False(t, ok, "promoted entry leaves the queue")
	_, ok = f.store.WaitlistEntry(e2.ID())
	assert.True(t, ok)

	events := f.notes.events()
	assert.Equal(t, notify.EventPromotedFromWaitlist, events[len(events)-1])
}

func TestProcessWaitlistSkipsUnpromotable(t *testing.T) {
	f := newFixture(t)
	broke, err := domain.NewMembershipType("trial", 0, 0)
	require.NoError(t, err)
	poor := f.member(t, broke)
	already := f.member(t, domain.TierBasic)
	winner := f.member(t, domain.TierBasic)
	class := f.class(t, 2, time.Saturday, 9, already.ID())

	ghost, err := domain.NewWaitlistEntry(uuid.New(), uuid.New(), class.ID(), now.Add(-4*time.Hour))
	require.NoError(t, err)
	noCredit, err := domain.NewWaitlistEntry(uuid.New(), poor.ID(), class.ID(), now.Add(-3*time.Hour))
	require.NoError(t, err)
	dup, err := domain.NewWaitlistEntry(uuid.New(), already.ID(), class.ID(), now.Add(-2*time.Hour))
	require.NoError(t, err)
	next, err := domain.NewWaitlistEntry(uuid.New(), winner.ID(), class.ID(), now.Add(-time.Hour))
	require.NoError(t, err)
	f.seed(t, ghost, noCredit, dup, next)

	res, err := f.svc.ProcessWaitlist(context.Background(), class.ID())
	require.NoError(t, err)
	require.Equal(t, booking.OutcomePromoted, res.Outcome)
	assert.Equal(t, next.ID(), res.Promoted)

	reasons := make([]booking.SkipReason, len(res.Skipped))
	for i, s := range res.Skipped {
		reasons[i] = s.Reason
	}
	assert.Equal(t, []booking.SkipReason{
		booking.SkipMemberMissing,
		booking.SkipInsufficientCredits,
		booking.SkipAlreadyBooked,
	}, reasons)

	for _, e := range []*domain.WaitlistEntry{ghost, noCredit, dup, next} {
		_, ok := f.store.WaitlistEntry(e.ID())
		assert.False(t, ok, "entry %s still queued", e.ID())
	}
	assert.Equal(t, 10, f.credits(t, already.ID()), "already-booked member not charged")
	assert.Equal(t, 9, f.credits(t, winner.ID()))
	assert.Equal(t, []notify.Event{notify.EventSkippedInsufficientCredits, notify.EventPromotedFromWaitlist}, f.notes.events())
}

func TestProcessWaitlistQueueExhausted(t *testing.T) {
	f := newFixture(t)
	class := f.class(t, 3, time.Saturday, 9)
	ctx := context.Background()

	res, err := f.svc.ProcessWaitlist(ctx, class.ID())
	require.NoError(t, err)
	assert.Equal(t, booking.OutcomeQueueExhausted, res.Outcome)
	assert.Nil(t, res.Booking)

	ghost, err := domain.NewWaitlistEntry(uuid.New(), uuid.New(), class.ID(), now)
	require.NoError(t, err)
	f.seed(t, ghost)

	res, err = f.svc.ProcessWaitlist(ctx, class.ID())
	require.NoError(t, err)
	assert.Equal(t, booking.OutcomeQueueExhausted, res.Outcome)
	require.Len(t, res.Skipped, 1)
	_, ok := f.store.WaitlistEntry(ghost.ID())
	assert.False(t, ok, "skipped entries are dropped even without a promotion")

	_, err = f.svc.ProcessWaitlist(ctx, uuid.New())
	assert.ErrorIs(t, err, domain.ErrNotFound)
}

func TestCloseBooking(t *testing.T) {
	f := newFixture(t)
	m := f.member(t, domain.TierBasic)
	class := f.class(t, 5, time.Saturday, 9)
	ctx := context.Background()

	b, err := f.svc.BookClass(ctx, m.ID(), class.ID())
	require.NoError(t, err)
	attended, err := f.svc.MarkAttended(ctx, b.ID())
	require.NoError(t, err)
	assert.Equal(t, domain.StatusAttended, attended.Status())

	_, err = f.svc.MarkNoShow(ctx, b.ID())
	assert.True(t, domain.IsCode(err, domain.CodeInvalidTransition))

	byStatus, err := f.svc.ListBookingsByStatus(ctx, domain.StatusAttended)
	require.NoError(t, err)
	require.Len(t, byStatus, 1)
	assert.Equal(t, b.ID(), byStatus[0].ID())

	mine, err := f.svc.ListMemberBookings(ctx, m.ID())
	require.NoError(t, err)
	assert.Len(t, mine, 1)
	_, err = f.svc.ListClassBookings(ctx, uuid.New())
	assert.ErrorIs(t, err, domain.ErrNotFound)
}

func TestConcurrentBookingsNeverOverbook(t *testing.T) {
	const seats, contenders = 3, 24
	f := newFixture(t, uow.WithMaxAttempts(contenders))
	class := f.class(t, seats, time.Saturday, 9)
	members := make([]*domain.Member, contenders)
	for i := range members {
		members[i] = f.member(t, domain.TierBasic)
	}

	var g errgroup.Group
	var mu sync.Mutex
	won := 0
	for _, m := range members {
		g.Go(func() error {
			_, err := f.svc.BookClass(context.Background(), m.ID(), class.ID())
			switch {
			case err == nil:
				mu.Lock()
				won++
				mu.Unlock()
				return nil
			case domain.IsCode(err, domain.CodeClassFull), domain.IsCode(err, domain.CodeConflict):
				return nil
			default:
				return err
			}
		})
	}
	require.NoError(t, g.Wait())

	booked := f.booked(t, class.ID())
	assert.Equal(t, seats, won)
	assert.Len(t, booked, seats)

	spent := 0
	for _, m := range members {
		spent += 10 - f.credits(t, m.ID())
	}
	assert.Equal(t, len(booked), spent, "one credit per seat")
}

// seatTaker hands out units whose waitlist fills the class's last seat right
// before the next entry is read, as a concurrent booking would.
type seatTaker struct {
	uow.Transactor
	classID uuid.UUID
}

func (s seatTaker) Run(ctx context.Context, op string, fn func(ctx context.Context, u uow.UnitOfWork) error) error {
	return s.Transactor.Run(ctx, op, func(ctx context.Context, u uow.UnitOfWork) error {
		return fn(ctx, seatTakingUnit{UnitOfWork: u, classID: s.classID})
	})
}

type seatTakingUnit struct {
	uow.UnitOfWork
	classID uuid.UUID
}

func (u seatTakingUnit) Waitlist() uow.WaitlistRepository {
	return seatTakingWaitlist{WaitlistRepository: u.UnitOfWork.Waitlist(), unit: u}
}

type seatTakingWaitlist struct {
	uow.WaitlistRepository
	unit seatTakingUnit
}

func (w seatTakingWaitlist) GetNextForClass(ctx context.Context, classID uuid.UUID) (*domain.WaitlistEntry, error) {
	class, err := w.unit.Classes().GetByID(ctx, w.unit.classID)
	if err != nil {
		return nil, err
	}
	for !class.IsFull() {
		if err := class.AddBooking(uuid.New()); err != nil {
			return nil, err
		}
	}
	return w.WaitlistRepository.GetNextForClass(ctx, classID)
}

func TestProcessWaitlistLosesSeatToRace(t *testing.T) {
	f := newFixture(t)
	holder := f.member(t, domain.TierBasic)
	queued := f.member(t, domain.TierBasic)
	class := f.class(t, 2, time.Saturday, 9, holder.ID())
	entry, err := domain.NewWaitlistEntry(uuid.New(), queued.ID(), class.ID(), now)
	require.NoError(t, err)
	f.seed(t, entry)
	commits := f.store.Commits()

	runner := uow.NewRunner(uow.NewManager(f.store), nil)
	svc := booking.NewService(seatTaker{Transactor: runner, classID: class.ID()}, f.notes, nil,
		booking.WithClock(func() time.Time { return now }))

	result, err := svc.ProcessWaitlist(context.Background(), class.ID())
	require.Error(t, err)
	assert.Nil(t, result)
	assert.ErrorIs(t, err, domain.ErrClassFull)

	assert.Equal(t, 10, f.credits(t, queued.ID()), "deducted credit never committed")
	assert.Equal(t, []uuid.UUID{holder.ID()}, f.booked(t, class.ID()))
	_, ok := f.store.WaitlistEntry(entry.ID())
	assert.True(t, ok, "entry stays queued")
	assert.Equal(t, commits, f.store.Commits())
	assert.Empty(t, f.notes.events())
}
