package domain

import (
	"time"

	"github.com/google/uuid"
)

// WaitlistEntry is a member's queued intent to join a full class.
type WaitlistEntry struct {
	id       uuid.UUID
	memberID uuid.UUID
	classID  uuid.UUID
	addedAt  time.Time
	version  int
}

func NewWaitlistEntry(id, memberID, classID uuid.UUID, now time.Time) (*WaitlistEntry, error) {
	if id == uuid.Nil || memberID == uuid.Nil || classID == uuid.Nil {
		return nil, invalid("waitlist.new", "entry, member and class ids are required")
	}
	return &WaitlistEntry{id: id, memberID: memberID, classID: classID, addedAt: now}, nil
}

func (w *WaitlistEntry) ID() uuid.UUID       { return w.id }
func (w *WaitlistEntry) MemberID() uuid.UUID { return w.memberID }
func (w *WaitlistEntry) ClassID() uuid.UUID  { return w.classID }
func (w *WaitlistEntry) AddedAt() time.Time  { return w.addedAt }
func (w *WaitlistEntry) Version() int        { return w.version }

// QueuedBefore orders entries FIFO by added-at, falling back to id for ties.
func (w *WaitlistEntry) QueuedBefore(other *WaitlistEntry) bool {
	if !w.addedAt.Equal(other.addedAt) {
		return w.addedAt.Before(other.addedAt)
	}
	return w.id.String() < other.id.String()
}

type WaitlistEntryState struct {
	ID       uuid.UUID `json:"id"`
	MemberID uuid.UUID `json:"member_id"`
	ClassID  uuid.UUID `json:"class_id"`
	AddedAt  time.Time `json:"added_at"`
	Version  int       `json:"version"`
}

func (w *WaitlistEntry) State() WaitlistEntryState {
	return WaitlistEntryState{
		ID:       w.id,
		MemberID: w.memberID,
		ClassID:  w.classID,
		AddedAt:  w.addedAt,
		Version:  w.version,
	}
}

func RestoreWaitlistEntry(s WaitlistEntryState) (*WaitlistEntry, error) {
	w, err := NewWaitlistEntry(s.ID, s.MemberID, s.ClassID, s.AddedAt)
	if err != nil {
		return nil, err
	}
	w.version = s.Version
	return w, nil
}
