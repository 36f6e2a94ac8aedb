package domain

import (
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
)

const (
	MinClassCapacity = 1
	MaxClassCapacity = 50
)

// EmailAddress is a validated, lower-cased email address.
type EmailAddress struct {
	value string
}

func NewEmailAddress(raw string) (EmailAddress, error) {
	v := strings.ToLower(strings.TrimSpace(raw))
	if v == "" {
		return EmailAddress{}, invalid("email.new", "email must not be empty")
	}
	local, host, ok := strings.Cut(v, "@")
	if !ok || local == "" || host == "" || strings.Contains(host, "@") {
		return EmailAddress{}, invalid("email.new", "email %q is not a valid address", raw)
	}
	return EmailAddress{value: v}, nil
}

func (e EmailAddress) String() string { return e.value }

func (e EmailAddress) IsZero() bool { return e.value == "" }

// TimeSlot is a weekly recurring slot: a weekday plus start and end offsets from midnight.
type TimeSlot struct {
	day   time.Weekday
	start time.Duration
	end   time.Duration
}

func NewTimeSlot(day time.Weekday, start, end time.Duration) (TimeSlot, error) {
	if day < time.Sunday || day > time.Saturday {
		return TimeSlot{}, invalid("timeslot.new", "weekday %d out of range", int(day))
	}
	if start < 0 || end > 24*time.Hour {
		return TimeSlot{}, invalid("timeslot.new", "slot must lie within one day")
	}
	if start >= end {
		return TimeSlot{}, invalid("timeslot.new", "start %s must be before end %s", start, end)
	}
	return TimeSlot{day: day, start: start, end: end}, nil
}

func (s TimeSlot) Day() time.Weekday       { return s.day }
func (s TimeSlot) Start() time.Duration    { return s.start }
func (s TimeSlot) End() time.Duration      { return s.end }
func (s TimeSlot) Duration() time.Duration { return s.end - s.start }

// OverlapsWith reports whether both slots fall on the same day and their
// half-open [start, end) intervals intersect.
func (s TimeSlot) OverlapsWith(other TimeSlot) bool {
	if s.day != other.day {
		return false
	}
	return s.start < other.end && other.start < s.end
}

// NextStart returns the first occurrence of the slot start at or after after,
// in after's location.
func (s TimeSlot) NextStart(after time.Time) time.Time {
	y, m, d := after.Date()
	midnight := time.Date(y, m, d, 0, 0, 0, 0, after.Location())
	days := (int(s.day) - int(after.Weekday()) + 7) % 7
	next := midnight.AddDate(0, 0, days).Add(s.start)
	if next.Before(after) {
		next = next.AddDate(0, 0, 7)
	}
	return next
}

func (s TimeSlot) String() string {
	return fmt.Sprintf("%s %s-%s", s.day, clock(s.start), clock(s.end))
}

func timeWeekday(d int) time.Weekday { return time.Weekday(d) }

func minutes(n int) time.Duration { return time.Duration(n) * time.Minute }

func clock(d time.Duration) string {
	return fmt.Sprintf("%02d:%02d", int(d.Hours()), int(d.Minutes())%60)
}

// ClassCapacity is the bounded number of spots in a class.
type ClassCapacity struct {
	value int
}

func NewClassCapacity(n int) (ClassCapacity, error) {
	if n < MinClassCapacity || n > MaxClassCapacity {
		return ClassCapacity{}, invalid("capacity.new", "capacity %d outside [%d, %d]", n, MinClassCapacity, MaxClassCapacity)
	}
	return ClassCapacity{value: n}, nil
}

func (c ClassCapacity) Value() int { return c.value }

// IsExceededBy reports whether n attendees would not fit.
func (c ClassCapacity) IsExceededBy(n int) bool { return n > c.value }

// MembershipType describes a tier: its monthly credit grant and price.
type MembershipType struct {
	name           string
	monthlyCredits int
	priceCents     int64
}

func NewMembershipType(name string, monthlyCredits int, priceCents int64) (MembershipType, error) {
	name = strings.ToLower(strings.TrimSpace(name))
	if name == "" {
		return MembershipType{}, invalid("membership_type.new", "tier name must not be empty")
	}
	if monthlyCredits < 0 || priceCents < 0 {
		return MembershipType{}, invalid("membership_type.new", "credits and price must be non-negative")
	}
	return MembershipType{name: name, monthlyCredits: monthlyCredits, priceCents: priceCents}, nil
}

func (t MembershipType) Name() string        { return t.name }
func (t MembershipType) MonthlyCredits() int { return t.monthlyCredits }
func (t MembershipType) PriceCents() int64   { return t.priceCents }

var (
	TierBasic   = MembershipType{name: "basic", monthlyCredits: 10, priceCents: 4900}
	TierPremium = MembershipType{name: "premium", monthlyCredits: 20, priceCents: 8900}
)

// MembershipTypeByName resolves one of the predefined tiers.
func MembershipTypeByName(name string) (MembershipType, error) {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case "", TierBasic.name:
		return TierBasic, nil
	case TierPremium.name:
		return TierPremium, nil
	default:
		return MembershipType{}, invalid("membership_type.lookup", "unknown tier %q", name)
	}
}

// Room is a physical space classes are scheduled into.
type Room struct {
	id       uuid.UUID
	name     string
	capacity int
}

func NewRoom(id uuid.UUID, name string, capacity int) (Room, error) {
	if id == uuid.Nil {
		return Room{}, invalid("room.new", "room id is required")
	}
	if strings.TrimSpace(name) == "" {
		return Room{}, invalid("room.new", "room name must not be empty")
	}
	if capacity < 1 {
		return Room{}, invalid("room.new", "room capacity must be positive")
	}
	return Room{id: id, name: strings.TrimSpace(name), capacity: capacity}, nil
}

func (r Room) ID() uuid.UUID { return r.id }
func (r Room) Name() string  { return r.name }
func (r Room) Capacity() int { return r.capacity }

// Credential holds a salted password hash. Hashing happens outside the domain.
type Credential struct {
	hash string
	salt string
}

func NewCredential(hash, salt string) (Credential, error) {
	if hash == "" || salt == "" {
		return Credential{}, invalid("credential.new", "hash and salt are required")
	}
	return Credential{hash: hash, salt: salt}, nil
}

func (c Credential) Hash() string { return c.hash }
func (c Credential) Salt() string { return c.salt }
func (c Credential) IsZero() bool { return c.hash == "" }
