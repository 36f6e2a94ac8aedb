// internal/schedule/implementation.go
package schedule

import (
	"context"
	"fmt"
	"strings"

	"github.com/google/uuid"

	"gymbooking/internal/domain"
	"gymbooking/internal/pkg/logger"
	"gymbooking/internal/uow"
)

// service implements the Service interface.
type service struct {
	tx      uow.Transactor
	rooms   *RoomDirectory
	checker domain.SchedulingChecker
	log     *logger.Logger
}

// NewService creates a new schedule service instance.
func NewService(tx uow.Transactor, rooms *RoomDirectory, log *logger.Logger) Service {
	if log == nil {
		log = logger.NewNop()
	}
	if rooms == nil {
		rooms = NewRoomDirectory()
	}
	return &service{tx: tx, rooms: rooms, log: log}
}

// ScheduleClass adds a class to a room's weekly timetable.
func (s *service) ScheduleClass(ctx context.Context, req ScheduleRequest) (*domain.FitnessClass, error) {
	room, err := s.rooms.Get(req.RoomID)
	if err != nil {
		return nil, err
	}
	class, err := req.build(uuid.New())
	if err != nil {
		return nil, err
	}

	err = s.tx.Run(ctx, "schedule_class", func(ctx context.Context, u uow.UnitOfWork) error {
		existing, err := u.Classes().FindByRoom(ctx, room.ID())
		if err != nil {
			return err
		}
		if !s.checker.CanSchedule(class, room, existing) {
			return rejection(class, room, s.checker.Conflicts(class, existing))
		}
		return u.Classes().Add(class)
	})
	if err != nil {
		return nil, fmt.Errorf("failed to schedule class: %w", err)
	}

	s.log.Info("class scheduled", "class_id", class.ID(), "room_id", room.ID(), "slot", class.TimeSlot().String())
	return class, nil
}

func rejection(class *domain.FitnessClass, room domain.Room, conflicts []*domain.FitnessClass) error {
	if len(conflicts) == 0 {
		return domain.NewError(domain.CodeScheduleConflict, "schedule.class",
			fmt.Sprintf("capacity %d exceeds room %s capacity %d", class.Capacity().Value(), room.Name(), room.Capacity()), nil)
	}
	names := make([]string, 0, len(conflicts))
	for _, c := range conflicts {
		names = append(names, fmt.Sprintf("%s (%s)", c.Name(), c.TimeSlot()))
	}
	return domain.NewError(domain.CodeScheduleConflict, "schedule.class",
		fmt.Sprintf("%s overlaps %s in room %s", class.TimeSlot(), strings.Join(names, ", "), room.Name()), nil)
}

// GetClass retrieves a class by its ID.
func (s *service) GetClass(ctx context.Context, id uuid.UUID) (*domain.FitnessClass, error) {
	var class *domain.FitnessClass
	err := s.tx.Run(ctx, "get_class", func(ctx context.Context, u uow.UnitOfWork) error {
		c, err := u.Classes().GetByID(ctx, id)
		class = c
		return err
	})
	if err != nil {
		return nil, fmt.Errorf("failed to get class: %w", err)
	}
	return class, nil
}

// ListClasses returns the timetable ordered by day and start time.
func (s *service) ListClasses(ctx context.Context, q ClassQuery) ([]*domain.FitnessClass, error) {
	var out []*domain.FitnessClass
	err := s.tx.Run(ctx, "list_classes", func(ctx context.Context, u uow.UnitOfWork) error {
		var (
			all []*domain.FitnessClass
			err error
		)
		if q.RoomID != uuid.Nil {
			all, err = u.Classes().FindByRoom(ctx, q.RoomID)
		} else {
			all, err = u.Classes().List(ctx)
		}
		if err != nil {
			return err
		}
		out = out[:0]
		for _, c := range all {
			if q.match(c) {
				out = append(out, c)
			}
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("failed to list classes: %w", err)
	}
	return out, nil
}

// Conflicts reports which scheduled classes a request would overlap, without scheduling it.
func (s *service) Conflicts(ctx context.Context, req ScheduleRequest) ([]*domain.FitnessClass, error) {
	if _, err := s.rooms.Get(req.RoomID); err != nil {
		return nil, err
	}
	candidate, err := req.build(uuid.New())
	if err != nil {
		return nil, err
	}
	var conflicts []*domain.FitnessClass
	err = s.tx.Run(ctx, "class_conflicts", func(ctx context.Context, u uow.UnitOfWork) error {
		existing, err := u.Classes().FindByRoom(ctx, req.RoomID)
		if err != nil {
			return err
		}
		conflicts = s.checker.Conflicts(candidate, existing)
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("failed to check conflicts: %w", err)
	}
	return conflicts, nil
}

func (s *service) Rooms() []domain.Room {
	return s.rooms.All()
}
