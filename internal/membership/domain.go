// internal/membership/domain.go
package membership

import (
	"time"

	"github.com/google/uuid"

	"gymbooking/internal/domain"
)

// MemberView is the JSON shape of a member. Credentials never leave the service.
type MemberView struct {
	ID              uuid.UUID `json:"id"`
	Email           string    `json:"email"`
	Name            string    `json:"name"`
	MembershipTier  string    `json:"membership_tier"`
	Credits         int       `json:"credits"`
	CreditsExpireAt time.Time `json:"credits_expire_at"`
	RegisteredAt    time.Time `json:"registered_at"`
	Version         int       `json:"version"`
}

func NewMemberView(m *domain.Member, now time.Time) MemberView {
	return MemberView{
		ID:              m.ID(),
		Email:           m.Email().String(),
		Name:            m.Name(),
		MembershipTier:  m.Tier().Name(),
		Credits:         m.Credits(now),
		CreditsExpireAt: m.CreditsExpireAt(),
		RegisteredAt:    m.RegisteredAt(),
		Version:         m.Version(),
	}
}

// Session is returned by a successful login.
type Session struct {
	Member    *domain.Member
	Token     string
	ExpiresAt time.Time
}

type RegisterRequest struct {
	Email    string `json:"email"`
	Name     string `json:"name"`
	Password string `json:"password"`
	Tier     string `json:"membership_tier"`
}
