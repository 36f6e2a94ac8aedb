// internal/schedule/domain.go
package schedule

import (
	"fmt"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"

	"gymbooking/internal/domain"
)

// ScheduleRequest describes a class to put on the weekly timetable.
// Start and End are wall-clock "HH:MM" strings.
type ScheduleRequest struct {
	Name     string    `json:"name"`
	Capacity int       `json:"capacity"`
	Day      string    `json:"day"`
	Start    string    `json:"start"`
	End      string    `json:"end"`
	RoomID   uuid.UUID `json:"room_id"`
}

// ClassQuery filters ListClasses. Zero values match everything.
type ClassQuery struct {
	RoomID uuid.UUID
	Day    *time.Weekday
	Name   string
}

func (q ClassQuery) match(c *domain.FitnessClass) bool {
	if q.RoomID != uuid.Nil && c.RoomID() != q.RoomID {
		return false
	}
	if q.Day != nil && c.TimeSlot().Day() != *q.Day {
		return false
	}
	if q.Name != "" && !strings.Contains(strings.ToLower(c.Name()), strings.ToLower(q.Name)) {
		return false
	}
	return true
}

type ClassView struct {
	ID             uuid.UUID   `json:"id"`
	Name           string      `json:"name"`
	Capacity       int         `json:"capacity"`
	Booked         int         `json:"booked"`
	AvailableSpots int         `json:"available_spots"`
	Day            string      `json:"day"`
	Start          string      `json:"start"`
	End            string      `json:"end"`
	RoomID         uuid.UUID   `json:"room_id"`
	Members        []uuid.UUID `json:"members,omitempty"`
	Version        int         `json:"version"`
}

func NewClassView(c *domain.FitnessClass) ClassView {
	slot := c.TimeSlot()
	return ClassView{
		ID:             c.ID(),
		Name:           c.Name(),
		Capacity:       c.Capacity().Value(),
		Booked:         c.BookingCount(),
		AvailableSpots: c.AvailableSpots(),
		Day:            slot.Day().String(),
		Start:          FormatClock(slot.Start()),
		End:            FormatClock(slot.End()),
		RoomID:         c.RoomID(),
		Members:        c.BookedMembers(),
		Version:        c.Version(),
	}
}

// RoomDirectory holds the rooms classes may be scheduled into.
type RoomDirectory struct {
	rooms map[uuid.UUID]domain.Room
}

func NewRoomDirectory(rooms ...domain.Room) *RoomDirectory {
	d := &RoomDirectory{rooms: make(map[uuid.UUID]domain.Room, len(rooms))}
	for _, r := range rooms {
		d.rooms[r.ID()] = r
	}
	return d
}

func (d *RoomDirectory) Get(id uuid.UUID) (domain.Room, error) {
	r, ok := d.rooms[id]
	if !ok {
		return domain.Room{}, domain.NotFound("room", id)
	}
	return r, nil
}

// All returns the rooms ordered by name.
func (d *RoomDirectory) All() []domain.Room {
	out := make([]domain.Room, 0, len(d.rooms))
	for _, r := range d.rooms {
		out = append(out, r)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name() < out[j].Name() })
	return out
}

// ParseWeekday accepts English day names ("monday", "Mon") in any case.
func ParseWeekday(raw string) (time.Weekday, error) {
	v := strings.ToLower(strings.TrimSpace(raw))
	if len(v) >= 3 {
		for d := time.Sunday; d <= time.Saturday; d++ {
			name := strings.ToLower(d.String())
			if v == name || v == name[:3] {
				return d, nil
			}
		}
	}
	return 0, domain.NewError(domain.CodeInvalidValue, "schedule.parse_day", fmt.Sprintf("unknown weekday %q", raw), nil)
}

// ParseClock turns "HH:MM" into an offset from midnight. "24:00" is allowed as an end of day.
func ParseClock(raw string) (time.Duration, error) {
	bad := domain.NewError(domain.CodeInvalidValue, "schedule.parse_clock", fmt.Sprintf("invalid clock time %q", raw), nil)
	hh, mm, ok := strings.Cut(strings.TrimSpace(raw), ":")
	if !ok {
		return 0, bad
	}
	h, err := strconv.Atoi(hh)
	if err != nil {
		return 0, bad
	}
	m, err := strconv.Atoi(mm)
	if err != nil || m < 0 || m > 59 || h < 0 || h > 24 || (h == 24 && m != 0) {
		return 0, bad
	}
	return time.Duration(h)*time.Hour + time.Duration(m)*time.Minute, nil
}

func FormatClock(d time.Duration) string {
	return fmt.Sprintf("%02d:%02d", int(d.Hours()), int(d.Minutes())%60)
}

func (r ScheduleRequest) build(id uuid.UUID) (*domain.FitnessClass, error) {
	day, err := ParseWeekday(r.Day)
	if err != nil {
		return nil, err
	}
	start, err := ParseClock(r.Start)
	if err != nil {
		return nil, err
	}
	end, err := ParseClock(r.End)
	if err != nil {
		return nil, err
	}
	slot, err := domain.NewTimeSlot(day, start, end)
	if err != nil {
		return nil, err
	}
	capacity, err := domain.NewClassCapacity(r.Capacity)
	if err != nil {
		return nil, err
	}
	return domain.NewFitnessClass(id, r.Name, capacity, slot, r.RoomID)
}
