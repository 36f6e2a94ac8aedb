package uow

import (
	"context"
	"fmt"
	"sort"

	"github.com/google/uuid"

	"gymbooking/internal/domain"
)

type unitState uint8

const (
	stateOpen unitState = iota
	stateCommitted
	stateRolledBack
)

// unit tracks loaded aggregates and staged changes for one Tx.
type unit struct {
	tx       Tx
	state    unitState
	identity map[uuid.UUID]Aggregate
	removed  map[uuid.UUID]bool
	changes  []Change
}

func newUnit(tx Tx) *unit {
	return &unit{
		tx:       tx,
		identity: make(map[uuid.UUID]Aggregate),
		removed:  make(map[uuid.UUID]bool),
	}
}

func (u *unit) Members() MemberRepository    { return memberRepo{u} }
func (u *unit) Classes() ClassRepository     { return classRepo{u} }
func (u *unit) Bookings() BookingRepository  { return bookingRepo{u} }
func (u *unit) Waitlist() WaitlistRepository { return waitlistRepo{u} }

func (u *unit) checkOpen() error {
	if u.state != stateOpen {
		return ErrUnitClosed
	}
	return nil
}

func (u *unit) changeIndex(id uuid.UUID) int {
	for i, c := range u.changes {
		if c.Aggregate.ID() == id {
			return i
		}
	}
	return -1
}

func checkKnown(a Aggregate) error {
	switch a.(type) {
	case *domain.Member, *domain.FitnessClass, *domain.Booking, *domain.WaitlistEntry:
		return nil
	default:
		return fmt.Errorf("%w: %T", ErrUnknownAggregate, a)
	}
}

func (u *unit) RegisterNew(a Aggregate) error {
	if err := u.checkOpen(); err != nil {
		return err
	}
	if err := checkKnown(a); err != nil {
		return err
	}
	id := a.ID()
	if i := u.changeIndex(id); i >= 0 {
		if u.changes[i].Kind == ChangeNew {
			return nil
		}
		return domain.NewError(domain.CodeConflict, "uow.register_new", fmt.Sprintf("aggregate %s already tracked as %s", id, u.changes[i].Kind), nil)
	}
	if _, loaded := u.identity[id]; loaded {
		return domain.NewError(domain.CodeConflict, "uow.register_new", fmt.Sprintf("aggregate %s already exists", id), nil)
	}
	u.identity[id] = a
	delete(u.removed, id)
	u.changes = append(u.changes, Change{Kind: ChangeNew, Aggregate: a})
	return nil
}

func (u *unit) RegisterDirty(a Aggregate) error {
	if err := u.checkOpen(); err != nil {
		return err
	}
	if err := checkKnown(a); err != nil {
		return err
	}
	id := a.ID()
	if u.removed[id] {
		return domain.NewError(domain.CodeConflict, "uow.register_dirty", fmt.Sprintf("aggregate %s is removed", id), nil)
	}
	u.identity[id] = a
	if i := u.changeIndex(id); i >= 0 {
		u.changes[i].Aggregate = a
		return nil
	}
	u.changes = append(u.changes, Change{Kind: ChangeDirty, Aggregate: a})
	return nil
}

func (u *unit) RegisterRemoved(a Aggregate) error {
	if err := u.checkOpen(); err != nil {
		return err
	}
	if err := checkKnown(a); err != nil {
		return err
	}
	id := a.ID()
	if u.removed[id] {
		return nil
	}
	u.removed[id] = true
	delete(u.identity, id)
	if i := u.changeIndex(id); i >= 0 {
		if u.changes[i].Kind == ChangeNew {
			u.changes = append(u.changes[:i], u.changes[i+1:]...)
			return nil
		}
		u.changes[i] = Change{Kind: ChangeRemoved, Aggregate: a}
		return nil
	}
	u.changes = append(u.changes, Change{Kind: ChangeRemoved, Aggregate: a})
	return nil
}

// Changes returns a copy of the staged change set.
func (u *unit) Changes() []Change {
	out := make([]Change, len(u.changes))
	copy(out, u.changes)
	return out
}

func (u *unit) Commit(ctx context.Context) error {
	if err := u.checkOpen(); err != nil {
		return err
	}
	if err := u.tx.Commit(ctx, u.Changes()); err != nil {
		u.state = stateRolledBack
		_ = u.tx.Rollback(ctx)
		return domain.Wrap(domain.CodeInternal, "uow.commit", err)
	}
	u.state = stateCommitted
	return nil
}

func (u *unit) Rollback(ctx context.Context) error {
	if err := u.checkOpen(); err != nil {
		return err
	}
	u.state = stateRolledBack
	u.changes = nil
	return u.tx.Rollback(ctx)
}

// get resolves id through the identity map before falling back to load.
func get[T Aggregate](u *unit, ctx context.Context, kind string, id uuid.UUID, load func(context.Context, uuid.UUID) (T, error)) (T, error) {
	var zero T
	if err := u.checkOpen(); err != nil {
		return zero, err
	}
	if u.removed[id] {
		return zero, domain.NotFound(kind, id)
	}
	if a, ok := u.identity[id]; ok {
		if t, ok := a.(T); ok {
			return t, nil
		}
		return zero, domain.NotFound(kind, id)
	}
	t, err := load(ctx, id)
	if err != nil {
		return zero, err
	}
	u.identity[id] = t
	return t, nil
}

// merge overlays staged state on adapter query results: removed aggregates are
// dropped, tracked instances replace fresh copies, and staged new aggregates
// matching the filter are added.
func merge[T Aggregate](u *unit, loaded []T, match func(T) bool, less func(a, b T) bool) []T {
	seen := make(map[uuid.UUID]bool, len(loaded))
	out := make([]T, 0, len(loaded))
	for _, l := range loaded {
		id := l.ID()
		seen[id] = true
		if u.removed[id] {
			continue
		}
		if a, ok := u.identity[id]; ok {
			if t, ok := a.(T); ok {
				l = t
			}
		} else {
			u.identity[id] = l
		}
		if match(l) {
			out = append(out, l)
		}
	}
	for _, c := range u.changes {
		if c.Kind != ChangeNew || seen[c.Aggregate.ID()] {
			continue
		}
		if t, ok := c.Aggregate.(T); ok && match(t) {
			out = append(out, t)
		}
	}
	sort.SliceStable(out, func(i, j int) bool { return less(out[i], out[j]) })
	return out
}

type memberRepo struct{ u *unit }

func (r memberRepo) GetByID(ctx context.Context, id uuid.UUID) (*domain.Member, error) {
	return get(r.u, ctx, "member", id, r.u.tx.LoadMember)
}

func (r memberRepo) FindByEmail(ctx context.Context, email domain.EmailAddress) (*domain.Member, error) {
	if err := r.u.checkOpen(); err != nil {
		return nil, err
	}
	for _, c := range r.u.changes {
		if m, ok := c.Aggregate.(*domain.Member); ok && c.Kind != ChangeRemoved && m.Email() == email {
			return m, nil
		}
	}
	m, err := r.u.tx.FindMemberByEmail(ctx, email.String())
	if err != nil {
		return nil, err
	}
	return get(r.u, ctx, "member", m.ID(), func(context.Context, uuid.UUID) (*domain.Member, error) { return m, nil })
}

func (r memberRepo) Add(m *domain.Member) error  { return r.u.RegisterNew(m) }
func (r memberRepo) Save(m *domain.Member) error { return r.u.RegisterDirty(m) }

type classRepo struct{ u *unit }

func (r classRepo) GetByID(ctx context.Context, id uuid.UUID) (*domain.FitnessClass, error) {
	return get(r.u, ctx, "class", id, r.u.tx.LoadClass)
}

func (r classRepo) FindByRoom(ctx context.Context, roomID uuid.UUID) ([]*domain.FitnessClass, error) {
	return r.find(ctx, ClassFilter{RoomID: roomID})
}

func (r classRepo) List(ctx context.Context) ([]*domain.FitnessClass, error) {
	return r.find(ctx, ClassFilter{})
}

func (r classRepo) find(ctx context.Context, f ClassFilter) ([]*domain.FitnessClass, error) {
	if err := r.u.checkOpen(); err != nil {
		return nil, err
	}
	loaded, err := r.u.tx.FindClasses(ctx, f)
	if err != nil {
		return nil, err
	}
	return merge(r.u, loaded, f.Match, classBefore), nil
}

func classBefore(a, b *domain.FitnessClass) bool {
	sa, sb := a.TimeSlot(), b.TimeSlot()
	if sa.Day() != sb.Day() {
		return sa.Day() < sb.Day()
	}
	if sa.Start() != sb.Start() {
		return sa.Start() < sb.Start()
	}
	return a.ID().String() < b.ID().String()
}

func (r classRepo) Add(c *domain.FitnessClass) error  { return r.u.RegisterNew(c) }
func (r classRepo) Save(c *domain.FitnessClass) error { return r.u.RegisterDirty(c) }

type bookingRepo struct{ u *unit }

func (r bookingRepo) GetByID(ctx context.Context, id uuid.UUID) (*domain.Booking, error) {
	return get(r.u, ctx, "booking", id, r.u.tx.LoadBooking)
}

func (r bookingRepo) FindByMember(ctx context.Context, memberID uuid.UUID) ([]*domain.Booking, error) {
	return r.find(ctx, BookingFilter{MemberID: memberID})
}

func (r bookingRepo) FindByClass(ctx context.Context, classID uuid.UUID) ([]*domain.Booking, error) {
	return r.find(ctx, BookingFilter{ClassID: classID})
}

func (r bookingRepo) FindByMemberAndClass(ctx context.Context, memberID, classID uuid.UUID) ([]*domain.Booking, error) {
	return r.find(ctx, BookingFilter{MemberID: memberID, ClassID: classID})
}

func (r bookingRepo) FindByStatus(ctx context.Context, status domain.BookingStatus) ([]*domain.Booking, error) {
	return r.find(ctx, BookingFilter{Status: status})
}

func (r bookingRepo) find(ctx context.Context, f BookingFilter) ([]*domain.Booking, error) {
	if err := r.u.checkOpen(); err != nil {
		return nil, err
	}
	// Status may have changed in memory, so the adapter is queried without it
	// and the full filter is applied after the overlay.
	loaded, err := r.u.tx.FindBookings(ctx, BookingFilter{MemberID: f.MemberID, ClassID: f.ClassID})
	if err != nil {
		return nil, err
	}
	return merge(r.u, loaded, f.Match, func(a, b *domain.Booking) bool {
		if !a.BookedAt().Equal(b.BookedAt()) {
			return a.BookedAt().Before(b.BookedAt())
		}
		return a.ID().String() < b.ID().String()
	}), nil
}

func (r bookingRepo) Add(b *domain.Booking) error  { return r.u.RegisterNew(b) }
func (r bookingRepo) Save(b *domain.Booking) error { return r.u.RegisterDirty(b) }

type waitlistRepo struct{ u *unit }

func (r waitlistRepo) GetByID(ctx context.Context, id uuid.UUID) (*domain.WaitlistEntry, error) {
	return get(r.u, ctx, "waitlist entry", id, r.u.tx.LoadWaitlistEntry)
}

func (r waitlistRepo) GetNextForClass(ctx context.Context, classID uuid.UUID) (*domain.WaitlistEntry, error) {
	entries, err := r.ListForClass(ctx, classID)
	if err != nil {
		return nil, err
	}
	if len(entries) == 0 {
		return nil, domain.NewError(domain.CodeNotFound, "waitlist.next", "waitlist for class "+classID.String()+" is empty", nil)
	}
	return entries[0], nil
}

func (r waitlistRepo) ListForClass(ctx context.Context, classID uuid.UUID) ([]*domain.WaitlistEntry, error) {
	return r.find(ctx, WaitlistFilter{ClassID: classID})
}

func (r waitlistRepo) FindByMemberAndClass(ctx context.Context, memberID, classID uuid.UUID) (*domain.WaitlistEntry, error) {
	entries, err := r.find(ctx, WaitlistFilter{MemberID: memberID, ClassID: classID})
	if err != nil {
		return nil, err
	}
	if len(entries) == 0 {
		return nil, domain.NewError(domain.CodeNotFound, "waitlist.find", "member "+memberID.String()+" is not queued", nil)
	}
	return entries[0], nil
}

func (r waitlistRepo) ClassesWithEntries(ctx context.Context) ([]uuid.UUID, error) {
	entries, err := r.find(ctx, WaitlistFilter{})
	if err != nil {
		return nil, err
	}
	seen := make(map[uuid.UUID]bool)
	var out []uuid.UUID
	for _, e := range entries {
		if !seen[e.ClassID()] {
			seen[e.ClassID()] = true
			out = append(out, e.ClassID())
		}
	}
	return out, nil
}

func (r waitlistRepo) find(ctx context.Context, f WaitlistFilter) ([]*domain.WaitlistEntry, error) {
	if err := r.u.checkOpen(); err != nil {
		return nil, err
	}
	loaded, err := r.u.tx.FindWaitlist(ctx, f)
	if err != nil {
		return nil, err
	}
	return merge(r.u, loaded, f.Match, (*domain.WaitlistEntry).QueuedBefore), nil
}

func (r waitlistRepo) Add(w *domain.WaitlistEntry) error    { return r.u.RegisterNew(w) }
func (r waitlistRepo) Remove(w *domain.WaitlistEntry) error { return r.u.RegisterRemoved(w) }
