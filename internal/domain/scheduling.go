package domain

// SchedulingChecker decides whether a class fits into a room's timetable.
// It holds no state.
type SchedulingChecker struct{}

// CanSchedule is false when the class needs more spots than the room holds or
// when its slot overlaps any class already scheduled there.
func (SchedulingChecker) CanSchedule(candidate *FitnessClass, room Room, existing []*FitnessClass) bool {
	if candidate.Capacity().Value() > room.Capacity() {
		return false
	}
	return len(SchedulingChecker{}.Conflicts(candidate, existing)) == 0
}

// Conflicts lists every existing class whose slot overlaps the candidate's.
func (SchedulingChecker) Conflicts(candidate *FitnessClass, existing []*FitnessClass) []*FitnessClass {
	var out []*FitnessClass
	for _, other := range existing {
		if other == nil || other.ID() == candidate.ID() {
			continue
		}
		if candidate.TimeSlot().OverlapsWith(other.TimeSlot()) {
			out = append(out, other)
		}
	}
	return out
}
