// internal/schedule/service.go
package schedule

import (
	"context"

	"github.com/google/uuid"

	"gymbooking/internal/domain"
)

// Service defines the interface for the class timetable.
type Service interface {
	ScheduleClass(ctx context.Context, req ScheduleRequest) (*domain.FitnessClass, error)
	GetClass(ctx context.Context, id uuid.UUID) (*domain.FitnessClass, error)
	ListClasses(ctx context.Context, q ClassQuery) ([]*domain.FitnessClass, error)
	Conflicts(ctx context.Context, req ScheduleRequest) ([]*domain.FitnessClass, error)
	Rooms() []domain.Room
}
