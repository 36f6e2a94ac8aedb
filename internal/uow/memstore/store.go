// Package memstore is an in-process uow.Store. It keeps persisted state
// structs, never live aggregates, and applies a whole change set under one
// lock after checking every version.
package memstore

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"github.com/google/uuid"

	"gymbooking/internal/domain"
	"gymbooking/internal/uow"
)

type Store struct {
	mu       sync.RWMutex
	members  map[uuid.UUID]domain.MemberState
	classes  map[uuid.UUID]domain.FitnessClassState
	bookings map[uuid.UUID]domain.BookingState
	waitlist map[uuid.UUID]domain.WaitlistEntryState
	commits  int
}

func New() *Store {
	return &Store{
		members:  make(map[uuid.UUID]domain.MemberState),
		classes:  make(map[uuid.UUID]domain.FitnessClassState),
		bookings: make(map[uuid.UUID]domain.BookingState),
		waitlist: make(map[uuid.UUID]domain.WaitlistEntryState),
	}
}

func (s *Store) Begin(ctx context.Context) (uow.Tx, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return &tx{store: s}, nil
}

// Commits reports how many change sets were applied.
func (s *Store) Commits() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.commits
}

// Member returns the committed state of a member.
func (s *Store) Member(id uuid.UUID) (domain.MemberState, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	st, ok := s.members[id]
	return st, ok
}

func (s *Store) Class(id uuid.UUID) (domain.FitnessClassState, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	st, ok := s.classes[id]
	if ok {
		st.BookedMembers = append([]uuid.UUID(nil), st.BookedMembers...)
	}
	return st, ok
}

func (s *Store) Booking(id uuid.UUID) (domain.BookingState, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	st, ok := s.bookings[id]
	return st, ok
}

func (s *Store) WaitlistEntry(id uuid.UUID) (domain.WaitlistEntryState, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	st, ok := s.waitlist[id]
	return st, ok
}

// tx reads committed state directly; isolation comes from the version checks at commit.
type tx struct {
	store *Store
	done  bool
}

func (t *tx) LoadMember(ctx context.Context, id uuid.UUID) (*domain.Member, error) {
	t.store.mu.RLock()
	st, ok := t.store.members[id]
	t.store.mu.RUnlock()
	if !ok {
		return nil, domain.NotFound("member", id)
	}
	return domain.RestoreMember(st)
}

func (t *tx) FindMemberByEmail(ctx context.Context, email string) (*domain.Member, error) {
	t.store.mu.RLock()
	var found *domain.MemberState
	for _, st := range t.store.members {
		if st.Email == email {
			st := st
			found = &st
			break
		}
	}
	t.store.mu.RUnlock()
	if found == nil {
		return nil, domain.NewError(domain.CodeNotFound, "member.find_by_email", "no member with email "+email, nil)
	}
	return domain.RestoreMember(*found)
}

func (t *tx) LoadClass(ctx context.Context, id uuid.UUID) (*domain.FitnessClass, error) {
	st, ok := t.store.Class(id)
	if !ok {
		return nil, domain.NotFound("class", id)
	}
	return domain.RestoreFitnessClass(st)
}

func (t *tx) FindClasses(ctx context.Context, f uow.ClassFilter) ([]*domain.FitnessClass, error) {
	t.store.mu.RLock()
	states := make([]domain.FitnessClassState, 0, len(t.store.classes))
	for _, st := range t.store.classes {
		if f.RoomID == uuid.Nil || st.RoomID == f.RoomID {
			st.BookedMembers = append([]uuid.UUID(nil), st.BookedMembers...)
			states = append(states, st)
		}
	}
	t.store.mu.RUnlock()
	out := make([]*domain.FitnessClass, 0, len(states))
	for _, st := range states {
		c, err := domain.RestoreFitnessClass(st)
		if err != nil {
			return nil, err
		}
		out = append(out, c)
	}
	return out, nil
}

func (t *tx) LoadBooking(ctx context.Context, id uuid.UUID) (*domain.Booking, error) {
	st, ok := t.store.Booking(id)
	if !ok {
		return nil, domain.NotFound("booking", id)
	}
	return domain.RestoreBooking(st)
}

func (t *tx) FindBookings(ctx context.Context, f uow.BookingFilter) ([]*domain.Booking, error) {
	t.store.mu.RLock()
	states := make([]domain.BookingState, 0)
	for _, st := range t.store.bookings {
		if f.MemberID != uuid.Nil && st.MemberID != f.MemberID {
			continue
		}
		if f.ClassID != uuid.Nil && st.ClassID != f.ClassID {
			continue
		}
		if f.Status != 0 && st.Status != f.Status {
			continue
		}
		states = append(states, st)
	}
	t.store.mu.RUnlock()
	sort.Slice(states, func(i, j int) bool { return states[i].BookedAt.Before(states[j].BookedAt) })
	out := make([]*domain.Booking, 0, len(states))
	for _, st := range states {
		b, err := domain.RestoreBooking(st)
		if err != nil {
			return nil, err
		}
		out = append(out, b)
	}
	return out, nil
}

func (t *tx) LoadWaitlistEntry(ctx context.Context, id uuid.UUID) (*domain.WaitlistEntry, error) {
	st, ok := t.store.WaitlistEntry(id)
	if !ok {
		return nil, domain.NotFound("waitlist entry", id)
	}
	return domain.RestoreWaitlistEntry(st)
}

func (t *tx) FindWaitlist(ctx context.Context, f uow.WaitlistFilter) ([]*domain.WaitlistEntry, error) {
	t.store.mu.RLock()
	states := make([]domain.WaitlistEntryState, 0)
	for _, st := range t.store.waitlist {
		if f.MemberID != uuid.Nil && st.MemberID != f.MemberID {
			continue
		}
		if f.ClassID != uuid.Nil && st.ClassID != f.ClassID {
			continue
		}
		states = append(states, st)
	}
	t.store.mu.RUnlock()
	out := make([]*domain.WaitlistEntry, 0, len(states))
	for _, st := range states {
		w, err := domain.RestoreWaitlistEntry(st)
		if err != nil {
			return nil, err
		}
		out = append(out, w)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].QueuedBefore(out[j]) })
	return out, nil
}

func (t *tx) Commit(ctx context.Context, changes []uow.Change) error {
	if t.done {
		return uow.ErrUnitClosed
	}
	t.done = true
	if err := ctx.Err(); err != nil {
		return err
	}
	if len(changes) == 0 {
		return nil
	}

	s := t.store
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, c := range changes {
		if err := s.check(c); err != nil {
			return err
		}
	}
	if err := s.checkEmails(changes); err != nil {
		return err
	}
	for _, c := range changes {
		s.apply(c)
	}
	s.commits++
	return nil
}

func (t *tx) Rollback(ctx context.Context) error {
	t.done = true
	return nil
}

func (s *Store) storedVersion(a uow.Aggregate) (int, bool) {
	id := a.ID()
	switch a.(type) {
	case *domain.Member:
		st, ok := s.members[id]
		return st.Version, ok
	case *domain.FitnessClass:
		st, ok := s.classes[id]
		return st.Version, ok
	case *domain.Booking:
		st, ok := s.bookings[id]
		return st.Version, ok
	case *domain.WaitlistEntry:
		st, ok := s.waitlist[id]
		return st.Version, ok
	}
	return 0, false
}

func (s *Store) check(c uow.Change) error {
	id := c.Aggregate.ID()
	switch c.Aggregate.(type) {
	case *domain.Member, *domain.FitnessClass, *domain.Booking, *domain.WaitlistEntry:
	default:
		return fmt.Errorf("%w: %T", uow.ErrUnknownAggregate, c.Aggregate)
	}
	version, exists := s.storedVersion(c.Aggregate)
	switch c.Kind {
	case uow.ChangeNew:
		if exists {
			return domain.NewError(domain.CodeConflict, "memstore.insert", fmt.Sprintf("aggregate %s already exists", id), nil)
		}
	case uow.ChangeDirty, uow.ChangeRemoved:
		if !exists {
			return domain.NewError(domain.CodeConflict, "memstore.update", fmt.Sprintf("aggregate %s no longer exists", id), nil)
		}
		if version != c.Aggregate.Version() {
			return domain.NewError(domain.CodeConflict, "memstore.update",
				fmt.Sprintf("aggregate %s version %d, expected %d", id, version, c.Aggregate.Version()), nil)
		}
	}
	return nil
}

// checkEmails rejects a change set that would leave two members sharing an
// email, counting inserts and email changes alike.
func (s *Store) checkEmails(changes []uow.Change) error {
	touched := make(map[uuid.UUID]bool)
	for _, c := range changes {
		if m, ok := c.Aggregate.(*domain.Member); ok {
			touched[m.ID()] = true
		}
	}
	owners := make(map[string]uuid.UUID, len(s.members))
	for id, st := range s.members {
		if !touched[id] {
			owners[st.Email] = id
		}
	}
	for _, c := range changes {
		m, ok := c.Aggregate.(*domain.Member)
		if !ok || c.Kind == uow.ChangeRemoved {
			continue
		}
		email := m.Email().String()
		if owner, taken := owners[email]; taken && owner != m.ID() {
			return domain.NewError(domain.CodeConflict, "memstore.commit", "email "+email+" already taken", nil)
		}
		owners[email] = m.ID()
	}
	return nil
}

func (s *Store) apply(c uow.Change) {
	id := c.Aggregate.ID()
	next := c.Aggregate.Version() + 1
	if c.Kind == uow.ChangeRemoved {
		switch c.Aggregate.(type) {
		case *domain.Member:
			delete(s.members, id)
		case *domain.FitnessClass:
			delete(s.classes, id)
		case *domain.Booking:
			delete(s.bookings, id)
		case *domain.WaitlistEntry:
			delete(s.waitlist, id)
		}
		return
	}
	switch a := c.Aggregate.(type) {
	case *domain.Member:
		st := a.State()
		st.Version = next
		s.members[id] = st
	case *domain.FitnessClass:
		st := a.State()
		st.Version = next
		s.classes[id] = st
	case *domain.Booking:
		st := a.State()
		st.Version = next
		s.bookings[id] = st
	case *domain.WaitlistEntry:
		st := a.State()
		st.Version = next
		s.waitlist[id] = st
	}
}
