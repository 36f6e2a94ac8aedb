package domain

import (
	"strings"

	"github.com/google/uuid"
)

// FitnessClass is a weekly class held in a room with a bounded number of spots.
type FitnessClass struct {
	id       uuid.UUID
	name     string
	capacity ClassCapacity
	slot     TimeSlot
	roomID   uuid.UUID
	booked   []uuid.UUID
	version  int
}

func NewFitnessClass(id uuid.UUID, name string, capacity ClassCapacity, slot TimeSlot, roomID uuid.UUID) (*FitnessClass, error) {
	if id == uuid.Nil {
		return nil, invalid("class.new", "class id is required")
	}
	name = strings.TrimSpace(name)
	if name == "" {
		return nil, invalid("class.new", "class name must not be empty")
	}
	if capacity.Value() == 0 {
		return nil, invalid("class.new", "class capacity is required")
	}
	if slot.Duration() <= 0 {
		return nil, invalid("class.new", "class time slot is required")
	}
	return &FitnessClass{
		id:       id,
		name:     name,
		capacity: capacity,
		slot:     slot,
		roomID:   roomID,
	}, nil
}

func (c *FitnessClass) ID() uuid.UUID           { return c.id }
func (c *FitnessClass) Name() string            { return c.name }
func (c *FitnessClass) Capacity() ClassCapacity { return c.capacity }
func (c *FitnessClass) TimeSlot() TimeSlot      { return c.slot }
func (c *FitnessClass) RoomID() uuid.UUID       { return c.roomID }
func (c *FitnessClass) Version() int            { return c.version }
func (c *FitnessClass) BookingCount() int       { return len(c.booked) }

// BookedMembers returns a copy of the booked member ids in booking order.
func (c *FitnessClass) BookedMembers() []uuid.UUID {
	out := make([]uuid.UUID, len(c.booked))
	copy(out, c.booked)
	return out
}

func (c *FitnessClass) IsFull() bool {
	return c.capacity.IsExceededBy(len(c.booked) + 1)
}

func (c *FitnessClass) AvailableSpots() int {
	return c.capacity.Value() - len(c.booked)
}

func (c *FitnessClass) HasBooking(memberID uuid.UUID) bool {
	for _, id := range c.booked {
		if id == memberID {
			return true
		}
	}
	return false
}

// AddBooking takes one spot for memberID.
func (c *FitnessClass) AddBooking(memberID uuid.UUID) error {
	if c.IsFull() {
		return NewError(CodeClassFull, "class.add_booking", "class "+c.id.String()+" is full", nil)
	}
	if c.HasBooking(memberID) {
		return NewError(CodeDuplicateBooking, "class.add_booking", "member "+memberID.String()+" already booked", nil)
	}
	c.booked = append(c.booked, memberID)
	return nil
}

// RemoveBooking frees memberID's spot.
func (c *FitnessClass) RemoveBooking(memberID uuid.UUID) error {
	for i, id := range c.booked {
		if id == memberID {
			c.booked = append(c.booked[:i:i], c.booked[i+1:]...)
			return nil
		}
	}
	return NewError(CodeNotFound, "class.remove_booking", "member "+memberID.String()+" not booked on class", nil)
}

// FitnessClassState is the persisted form of a FitnessClass.
type FitnessClassState struct {
	ID            uuid.UUID   `json:"id"`
	Name          string      `json:"name"`
	Capacity      int         `json:"capacity"`
	Day           int         `json:"day"`
	StartMinutes  int         `json:"start_minutes"`
	EndMinutes    int         `json:"end_minutes"`
	RoomID        uuid.UUID   `json:"room_id"`
	BookedMembers []uuid.UUID `json:"booked_members"`
	Version       int         `json:"version"`
}

func (c *FitnessClass) State() FitnessClassState {
	return FitnessClassState{
		ID:            c.id,
		Name:          c.name,
		Capacity:      c.capacity.Value(),
		Day:           int(c.slot.Day()),
		StartMinutes:  int(c.slot.Start().Minutes()),
		EndMinutes:    int(c.slot.End().Minutes()),
		RoomID:        c.roomID,
		BookedMembers: c.BookedMembers(),
		Version:       c.version,
	}
}

// RestoreFitnessClass rebuilds a class, replaying bookings through AddBooking
// so a corrupted record cannot exceed capacity or hold duplicates.
func RestoreFitnessClass(s FitnessClassState) (*FitnessClass, error) {
	capacity, err := NewClassCapacity(s.Capacity)
	if err != nil {
		return nil, err
	}
	slot, err := NewTimeSlot(timeWeekday(s.Day), minutes(s.StartMinutes), minutes(s.EndMinutes))
	if err != nil {
		return nil, err
	}
	c, err := NewFitnessClass(s.ID, s.Name, capacity, slot, s.RoomID)
	if err != nil {
		return nil, err
	}
	for _, id := range s.BookedMembers {
		if err := c.AddBooking(id); err != nil {
			return nil, NewError(CodeInternal, "class.restore", err.Error(), err)
		}
	}
	c.version = s.Version
	return c, nil
}
