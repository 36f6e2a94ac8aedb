package domain

import (
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"pgregory.net/rapid"
)

func newTestClass(t require.TestingT, capacity int, slot TimeSlot) *FitnessClass {
	c, err := NewClassCapacity(capacity)
	require.NoError(t, err)
	class, err := NewFitnessClass(uuid.New(), "Spin", c, slot, uuid.New())
	require.NoError(t, err)
	return class
}

func mondayNine(t require.TestingT) TimeSlot {
	slot, err := NewTimeSlot(time.Monday, 9*time.Hour, 10*time.Hour)
	require.NoError(t, err)
	return slot
}

func TestNewFitnessClassValidation(t *testing.T) {
	capacity, err := NewClassCapacity(10)
	require.NoError(t, err)
	slot := mondayNine(t)

	_, err = NewFitnessClass(uuid.Nil, "Spin", capacity, slot, uuid.New())
	assert.Error(t, err)
	_, err = NewFitnessClass(uuid.New(), " ", capacity, slot, uuid.New())
	assert.Error(t, err)
	_, err = NewFitnessClass(uuid.New(), "Spin", ClassCapacity{}, slot, uuid.New())
	assert.Error(t, err)
	_, err = NewFitnessClass(uuid.New(), "Spin", capacity, TimeSlot{}, uuid.New())
	assert.Error(t, err)
}

func TestFitnessClassBookings(t *testing.T) {
	class := newTestClass(t, 2, mondayNine(t))
	a, b, c := uuid.New(), uuid.New(), uuid.New()
	assert.False(t, class.IsFull(), "empty class has room")
	assert.Equal(t, 2, class.AvailableSpots())

	require.NoError(t, class.AddBooking(a))
	assert.Equal(t, 1, class.AvailableSpots())
	assert.False(t, class.IsFull())

	err := class.AddBooking(a)
	assert.True(t, IsCode(err, CodeDuplicateBooking))

	require.NoError(t, class.AddBooking(b))
	assert.True(t, class.IsFull())

	err = class.AddBooking(c)
	assert.ErrorIs(t, err, ErrClassFull)
	assert.Equal(t, []uuid.UUID{a, b}, class.BookedMembers())

	require.NoError(t, class.RemoveBooking(a))
	assert.Equal(t, []uuid.UUID{b}, class.BookedMembers(), "order preserved")
	assert.True(t, IsCode(class.RemoveBooking(a), CodeNotFound))
}

func TestSingleSeatClass(t *testing.T) {
	class := newTestClass(t, 1, mondayNine(t))
	require.False(t, class.IsFull())

	require.NoError(t, class.AddBooking(uuid.New()))
	assert.True(t, class.IsFull())
	assert.ErrorIs(t, class.AddBooking(uuid.New()), ErrClassFull)
}

func TestFitnessClassBookedMembersIsCopy(t *testing.T) {
	class := newTestClass(t, 3, mondayNine(t))
	require.NoError(t, class.AddBooking(uuid.New()))

	ids := class.BookedMembers()
	ids[0] = uuid.Nil
	assert.NotEqual(t, uuid.Nil, class.BookedMembers()[0])
}

func TestRestoreFitnessClass(t *testing.T) {
	class := newTestClass(t, 2, mondayNine(t))
	require.NoError(t, class.AddBooking(uuid.New()))

	restored, err := RestoreFitnessClass(class.State())
	require.NoError(t, err)
	assert.Equal(t, class.State(), restored.State())
	assert.True(t, restored.TimeSlot() == class.TimeSlot())

	overfull := class.State()
	overfull.BookedMembers = []uuid.UUID{uuid.New(), uuid.New(), uuid.New()}
	_, err = RestoreFitnessClass(overfull)
	assert.True(t, IsCode(err, CodeInternal))

	dup := class.State()
	dup.BookedMembers = []uuid.UUID{dup.BookedMembers[0], dup.BookedMembers[0]}
	_, err = RestoreFitnessClass(dup)
	assert.Error(t, err)
}

// Whatever mix of adds and removes runs, the class never holds more members
// than its capacity and never holds a member twice.
func TestFitnessClassCapacityInvariant(t *testing.T) {
	rapid.Check(t, func(t *rapid.T) {
		capacity := rapid.IntRange(MinClassCapacity, MaxClassCapacity).Draw(t, "capacity")
		class := newTestClass(t, capacity, mondayNine(t))
		pool := make([]uuid.UUID, rapid.IntRange(1, 60).Draw(t, "pool"))
		for i := range pool {
			pool[i] = uuid.New()
		}

		ops := rapid.IntRange(1, 200).Draw(t, "ops")
		for i := 0; i < ops; i++ {
			member := rapid.SampledFrom(pool).Draw(t, "member")
			if rapid.Bool().Draw(t, "add") {
				count, had := len(class.BookedMembers()), class.HasBooking(member)
				wasFull := count >= capacity
				require.Equal(t, wasFull, class.IsFull())
				err := class.AddBooking(member)
				switch {
				case wasFull:
					require.True(t, IsCode(err, CodeClassFull))
				case had:
					require.True(t, IsCode(err, CodeDuplicateBooking))
				default:
					require.NoError(t, err)
				}
			} else {
				_ = class.RemoveBooking(member)
			}

			booked := class.BookedMembers()
			require.LessOrEqual(t, len(booked), capacity)
			seen := make(map[uuid.UUID]bool, len(booked))
			for _, id := range booked {
				require.False(t, seen[id], "duplicate member %s", id)
				seen[id] = true
			}
		}
	})
}
