package memstore

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"gymbooking/internal/domain"
	"gymbooking/internal/uow"
)

var now = time.Date(2026, 10, 19, 9, 0, 0, 0, time.UTC)

func member(t *testing.T, email string) *domain.Member {
	t.Helper()
	addr, err := domain.NewEmailAddress(email)
	require.NoError(t, err)
	m, err := domain.NewMember(uuid.New(), "Sam", addr, domain.TierPremium, now)
	require.NoError(t, err)
	return m
}

func commit(t *testing.T, s *Store, changes ...uow.Change) error {
	t.Helper()
	tx, err := s.Begin(context.Background())
	require.NoError(t, err)
	return tx.Commit(context.Background(), changes)
}

func TestInsertAndLoad(t *testing.T) {
	s := New()
	m := member(t, "sam@example.com")
	require.NoError(t, commit(t, s, uow.Change{Kind: uow.ChangeNew, Aggregate: m}))

	st, ok := s.Member(m.ID())
	require.True(t, ok)
	assert.Equal(t, 1, st.Version)
	assert.Equal(t, 1, s.Commits())

	tx, err := s.Begin(context.Background())
	require.NoError(t, err)
	a, err := tx.LoadMember(context.Background(), m.ID())
	require.NoError(t, err)
	b, err := tx.LoadMember(context.Background(), m.ID())
	require.NoError(t, err)
	assert.NotSame(t, a, b, "every load restores a fresh instance")
	assert.Equal(t, 1, a.Version())

	byEmail, err := tx.FindMemberByEmail(context.Background(), "sam@example.com")
	require.NoError(t, err)
	assert.Equal(t, m.ID(), byEmail.ID())

	_, err = tx.LoadMember(context.Background(), uuid.New())
	assert.ErrorIs(t, err, domain.ErrNotFound)
	_, err = tx.FindMemberByEmail(context.Background(), "nobody@example.com")
	assert.True(t, domain.IsCode(err, domain.CodeNotFound))
}

func TestDuplicateInsertConflicts(t *testing.T) {
	s := New()
	m := member(t, "dup@example.com")
	require.NoError(t, commit(t, s, uow.Change{Kind: uow.ChangeNew, Aggregate: m}))

	err := commit(t, s, uow.Change{Kind: uow.ChangeNew, Aggregate: m})
	assert.True(t, domain.IsCode(err, domain.CodeConflict))

	twin := member(t, "dup@example.com")
	err = commit(t, s, uow.Change{Kind: uow.ChangeNew, Aggregate: twin})
	assert.True(t, domain.IsCode(err, domain.CodeConflict), "email is unique")
	_, ok := s.Member(twin.ID())
	assert.False(t, ok)
}

func TestEmailUniqueAcrossChangeSet(t *testing.T) {
	s := New()
	a, b := member(t, "same@example.com"), member(t, "same@example.com")
	err := commit(t, s,
		uow.Change{Kind: uow.ChangeNew, Aggregate: a},
		uow.Change{Kind: uow.ChangeNew, Aggregate: b},
	)
	assert.True(t, domain.IsCode(err, domain.CodeConflict), "two inserts in one set")
	assert.Zero(t, s.Commits())

	holder, mover := member(t, "holder@example.com"), member(t, "mover@example.com")
	require.NoError(t, commit(t, s,
		uow.Change{Kind: uow.ChangeNew, Aggregate: holder},
		uow.Change{Kind: uow.ChangeNew, Aggregate: mover},
	))

	tx, err := s.Begin(context.Background())
	require.NoError(t, err)
	loaded, err := tx.LoadMember(context.Background(), mover.ID())
	require.NoError(t, err)
	taken, err := domain.NewEmailAddress("holder@example.com")
	require.NoError(t, err)
	require.NoError(t, loaded.ChangeEmail(taken))
	err = tx.Commit(context.Background(), []uow.Change{{Kind: uow.ChangeDirty, Aggregate: loaded}})
	assert.True(t, domain.IsCode(err, domain.CodeConflict), "dirty member moving onto a taken email")
	st, _ := s.Member(mover.ID())
	assert.Equal(t, "mover@example.com", st.Email)

	// Removing the holder in the same set frees the address.
	tx, err = s.Begin(context.Background())
	require.NoError(t, err)
	gone, err := tx.LoadMember(context.Background(), holder.ID())
	require.NoError(t, err)
	moved, err := tx.LoadMember(context.Background(), mover.ID())
	require.NoError(t, err)
	require.NoError(t, moved.ChangeEmail(taken))
	require.NoError(t, tx.Commit(context.Background(), []uow.Change{
		{Kind: uow.ChangeRemoved, Aggregate: gone},
		{Kind: uow.ChangeDirty, Aggregate: moved},
	}))
	st, _ = s.Member(mover.ID())
	assert.Equal(t, "holder@example.com", st.Email)
}

func TestVersionCheckedBeforeAnyWrite(t *testing.T) {
	s := New()
	m := member(t, "v@example.com")
	require.NoError(t, commit(t, s, uow.Change{Kind: uow.ChangeNew, Aggregate: m}))

	tx, err := s.Begin(context.Background())
	require.NoError(t, err)
	loaded, err := tx.LoadMember(context.Background(), m.ID())
	require.NoError(t, err)
	require.NoError(t, loaded.DeductCredit(now))

	fresh := member(t, "fresh@example.com")
	// m still carries version 0 while the stored row is at 1.
	err = commit(t, s,
		uow.Change{Kind: uow.ChangeNew, Aggregate: fresh},
		uow.Change{Kind: uow.ChangeDirty, Aggregate: m},
	)
	assert.True(t, domain.IsCode(err, domain.CodeConflict))
	_, ok := s.Member(fresh.ID())
	assert.False(t, ok, "no partial write")

	require.NoError(t, tx.Commit(context.Background(), []uow.Change{{Kind: uow.ChangeDirty, Aggregate: loaded}}))
	st, _ := s.Member(m.ID())
	assert.Equal(t, 2, st.Version)
	assert.Equal(t, 19, st.Credits)
}

func TestRemove(t *testing.T) {
	s := New()
	classID := uuid.New()
	entry, err := domain.NewWaitlistEntry(uuid.New(), uuid.New(), classID, now)
	require.NoError(t, err)
	require.NoError(t, commit(t, s, uow.Change{Kind: uow.ChangeNew, Aggregate: entry}))

	tx, err := s.Begin(context.Background())
	require.NoError(t, err)
	loaded, err := tx.LoadWaitlistEntry(context.Background(), entry.ID())
	require.NoError(t, err)
	require.NoError(t, tx.Commit(context.Background(), []uow.Change{{Kind: uow.ChangeRemoved, Aggregate: loaded}}))

	_, ok := s.WaitlistEntry(entry.ID())
	assert.False(t, ok)

	err = commit(t, s, uow.Change{Kind: uow.ChangeRemoved, Aggregate: loaded})
	assert.True(t, domain.IsCode(err, domain.CodeConflict), "removing twice conflicts")
}

func TestFindWaitlistIsFIFO(t *testing.T) {
	s := New()
	classID := uuid.New()
	var changes []uow.Change
	var want []uuid.UUID
	for i := 3; i >= 0; i-- {
		e, err := domain.NewWaitlistEntry(uuid.New(), uuid.New(), classID, now.Add(time.Duration(i)*time.Minute))
		require.NoError(t, err)
		changes = append(changes, uow.Change{Kind: uow.ChangeNew, Aggregate: e})
		want = append([]uuid.UUID{e.ID()}, want...)
	}
	other, err := domain.NewWaitlistEntry(uuid.New(), uuid.New(), uuid.New(), now)
	require.NoError(t, err)
	changes = append(changes, uow.Change{Kind: uow.ChangeNew, Aggregate: other})
	require.NoError(t, commit(t, s, changes...))

	tx, err := s.Begin(context.Background())
	require.NoError(t, err)
	entries, err := tx.FindWaitlist(context.Background(), uow.WaitlistFilter{ClassID: classID})
	require.NoError(t, err)

	got := make([]uuid.UUID, len(entries))
	for i, e := range entries {
		got[i] = e.ID()
	}
	assert.Equal(t, want, got)
}

func TestFindBookingsFilters(t *testing.T) {
	s := New()
	memberID, classID := uuid.New(), uuid.New()
	kept, err := domain.NewBooking(uuid.New(), memberID, classID, now)
	require.NoError(t, err)
	cancelled, err := domain.NewBooking(uuid.New(), memberID, uuid.New(), now.Add(time.Minute))
	require.NoError(t, err)
	require.NoError(t, cancelled.Cancel(now.Add(48*time.Hour), now))
	stranger, err := domain.NewBooking(uuid.New(), uuid.New(), classID, now)
	require.NoError(t, err)
	require.NoError(t, commit(t, s,
		uow.Change{Kind: uow.ChangeNew, Aggregate: kept},
		uow.Change{Kind: uow.ChangeNew, Aggregate: cancelled},
		uow.Change{Kind: uow.ChangeNew, Aggregate: stranger},
	))

	tx, err := s.Begin(context.Background())
	require.NoError(t, err)
	ctx := context.Background()

	mine, err := tx.FindBookings(ctx, uow.BookingFilter{MemberID: memberID})
	require.NoError(t, err)
	assert.Len(t, mine, 2)

	confirmed, err := tx.FindBookings(ctx, uow.BookingFilter{MemberID: memberID, Status: domain.StatusConfirmed})
	require.NoError(t, err)
	require.Len(t, confirmed, 1)
	assert.Equal(t, kept.ID(), confirmed[0].ID())

	forClass, err := tx.FindBookings(ctx, uow.BookingFilter{ClassID: classID})
	require.NoError(t, err)
	assert.Len(t, forClass, 2)
}

func TestClosedTx(t *testing.T) {
	s := New()
	tx, err := s.Begin(context.Background())
	require.NoError(t, err)
	require.NoError(t, tx.Commit(context.Background(), nil))
	assert.Zero(t, s.Commits(), "empty change set is a no-op")
	assert.ErrorIs(t, tx.Commit(context.Background(), nil), uow.ErrUnitClosed)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err = s.Begin(ctx)
	assert.ErrorIs(t, err, context.Canceled)
}
