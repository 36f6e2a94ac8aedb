// Package uow coordinates changes to several aggregates into one atomic commit.
//
// A UnitOfWork is opened per use case invocation. Repositories obtained from it
// read through an identity map that reflects staged changes, and every write is
// recorded as a Change. Commit hands the change set to the backing Store in one
// transaction; on any failure nothing is written.
package uow

import (
	"context"
	"errors"

	"github.com/google/uuid"

	"gymbooking/internal/domain"
)

var (
	// ErrUnitClosed is returned by any call on a committed or rolled back unit.
	ErrUnitClosed = errors.New("uow: unit of work already closed")
	// ErrUnknownAggregate is returned when registering a type no store can persist.
	ErrUnknownAggregate = errors.New("uow: unknown aggregate type")
)

// Aggregate is anything a unit of work can track.
type Aggregate interface {
	ID() uuid.UUID
	Version() int
}

type ChangeKind uint8

const (
	ChangeNew ChangeKind = iota + 1
	ChangeDirty
	ChangeRemoved
)

func (k ChangeKind) String() string {
	switch k {
	case ChangeNew:
		return "new"
	case ChangeDirty:
		return "dirty"
	case ChangeRemoved:
		return "removed"
	default:
		return "unknown"
	}
}

// Change is one staged write. Dirty and removed changes carry the version the
// aggregate was loaded with; stores reject them when the stored version differs.
type Change struct {
	Kind      ChangeKind
	Aggregate Aggregate
}

type BookingFilter struct {
	MemberID uuid.UUID
	ClassID  uuid.UUID
	Status   domain.BookingStatus
}

func (f BookingFilter) Match(b *domain.Booking) bool {
	if f.MemberID != uuid.Nil && b.MemberID() != f.MemberID {
		return false
	}
	if f.ClassID != uuid.Nil && b.ClassID() != f.ClassID {
		return false
	}
	if f.Status != 0 && b.Status() != f.Status {
		return false
	}
	return true
}

type WaitlistFilter struct {
	MemberID uuid.UUID
	ClassID  uuid.UUID
}

func (f WaitlistFilter) Match(w *domain.WaitlistEntry) bool {
	if f.MemberID != uuid.Nil && w.MemberID() != f.MemberID {
		return false
	}
	if f.ClassID != uuid.Nil && w.ClassID() != f.ClassID {
		return false
	}
	return true
}

type ClassFilter struct {
	RoomID uuid.UUID
}

func (f ClassFilter) Match(c *domain.FitnessClass) bool {
	return f.RoomID == uuid.Nil || c.RoomID() == f.RoomID
}

// Tx is the contract a storage adapter implements. All reads of one Tx observe
// the same store, and Commit writes the whole change set or nothing.
// Loads return a domain not-found error when the aggregate is absent, and hand
// out fresh instances on every call.
type Tx interface {
	LoadMember(ctx context.Context, id uuid.UUID) (*domain.Member, error)
	FindMemberByEmail(ctx context.Context, email string) (*domain.Member, error)
	LoadClass(ctx context.Context, id uuid.UUID) (*domain.FitnessClass, error)
	FindClasses(ctx context.Context, f ClassFilter) ([]*domain.FitnessClass, error)
	LoadBooking(ctx context.Context, id uuid.UUID) (*domain.Booking, error)
	FindBookings(ctx context.Context, f BookingFilter) ([]*domain.Booking, error)
	LoadWaitlistEntry(ctx context.Context, id uuid.UUID) (*domain.WaitlistEntry, error)
	FindWaitlist(ctx context.Context, f WaitlistFilter) ([]*domain.WaitlistEntry, error)

	Commit(ctx context.Context, changes []Change) error
	Rollback(ctx context.Context) error
}

// Store opens adapter transactions.
type Store interface {
	Begin(ctx context.Context) (Tx, error)
}

type MemberRepository interface {
	GetByID(ctx context.Context, id uuid.UUID) (*domain.Member, error)
	FindByEmail(ctx context.Context, email domain.EmailAddress) (*domain.Member, error)
	Add(m *domain.Member) error
	Save(m *domain.Member) error
}

type ClassRepository interface {
	GetByID(ctx context.Context, id uuid.UUID) (*domain.FitnessClass, error)
	FindByRoom(ctx context.Context, roomID uuid.UUID) ([]*domain.FitnessClass, error)
	List(ctx context.Context) ([]*domain.FitnessClass, error)
	Add(c *domain.FitnessClass) error
	Save(c *domain.FitnessClass) error
}

type BookingRepository interface {
	GetByID(ctx context.Context, id uuid.UUID) (*domain.Booking, error)
	FindByMember(ctx context.Context, memberID uuid.UUID) ([]*domain.Booking, error)
	FindByClass(ctx context.Context, classID uuid.UUID) ([]*domain.Booking, error)
	FindByMemberAndClass(ctx context.Context, memberID, classID uuid.UUID) ([]*domain.Booking, error)
	FindByStatus(ctx context.Context, status domain.BookingStatus) ([]*domain.Booking, error)
	Add(b *domain.Booking) error
	Save(b *domain.Booking) error
}

type WaitlistRepository interface {
	GetByID(ctx context.Context, id uuid.UUID) (*domain.WaitlistEntry, error)
	// GetNextForClass returns the earliest queued entry, or a not-found error when the queue is empty.
	GetNextForClass(ctx context.Context, classID uuid.UUID) (*domain.WaitlistEntry, error)
	ListForClass(ctx context.Context, classID uuid.UUID) ([]*domain.WaitlistEntry, error)
	FindByMemberAndClass(ctx context.Context, memberID, classID uuid.UUID) (*domain.WaitlistEntry, error)
	ClassesWithEntries(ctx context.Context) ([]uuid.UUID, error)
	Add(w *domain.WaitlistEntry) error
	Remove(w *domain.WaitlistEntry) error
}

// UnitOfWork is one open scope. It is not safe for concurrent use.
type UnitOfWork interface {
	Members() MemberRepository
	Classes() ClassRepository
	Bookings() BookingRepository
	Waitlist() WaitlistRepository

	RegisterNew(a Aggregate) error
	RegisterDirty(a Aggregate) error
	RegisterRemoved(a Aggregate) error

	Commit(ctx context.Context) error
	Rollback(ctx context.Context) error
}

// Factory opens units of work.
type Factory interface {
	Begin(ctx context.Context) (UnitOfWork, error)
}

// Manager is the Factory backed by a Store.
type Manager struct {
	store Store
}

func NewManager(store Store) *Manager {
	return &Manager{store: store}
}

func (m *Manager) Begin(ctx context.Context) (UnitOfWork, error) {
	tx, err := m.store.Begin(ctx)
	if err != nil {
		return nil, domain.Wrap(domain.CodeInternal, "uow.begin", err)
	}
	return newUnit(tx), nil
}
