// internal/membership/service.go
package membership

import (
	"context"

	"github.com/google/uuid"

	"gymbooking/internal/domain"
)

// Service defines the interface for the membership service.
type Service interface {
	RegisterMember(ctx context.Context, req RegisterRequest) (*domain.Member, error)
	Authenticate(ctx context.Context, email, password string) (*Session, error)
	GetMember(ctx context.Context, id uuid.UUID) (*domain.Member, error)
	ChangeTier(ctx context.Context, id uuid.UUID, tier string) (*domain.Member, error)
	ChangeEmail(ctx context.Context, id uuid.UUID, email string) (*domain.Member, error)
	RenewCredits(ctx context.Context, id uuid.UUID) (*domain.Member, error)
}
