package domain

import (
	"strings"
	"time"

	"github.com/google/uuid"
)

// CreditValidity is how long granted or refunded credits stay usable.
const CreditValidity = 30 * 24 * time.Hour

// Member is a gym member. Credits are spent on bookings and expire together.
type Member struct {
	id              uuid.UUID
	name            string
	email           EmailAddress
	tier            MembershipType
	credits         int
	creditsExpireAt time.Time
	credential      Credential
	registeredAt    time.Time
	version         int
}

// NewMember registers a member and grants the tier's monthly credits.
func NewMember(id uuid.UUID, name string, email EmailAddress, tier MembershipType, now time.Time) (*Member, error) {
	if id == uuid.Nil {
		return nil, invalid("member.new", "member id is required")
	}
	name = strings.TrimSpace(name)
	if name == "" {
		return nil, invalid("member.new", "member name must not be empty")
	}
	if email.IsZero() {
		return nil, invalid("member.new", "member email is required")
	}
	if tier.Name() == "" {
		return nil, invalid("member.new", "membership tier is required")
	}
	m := &Member{
		id:           id,
		name:         name,
		email:        email,
		tier:         tier,
		registeredAt: now,
	}
	m.GrantMonthlyCredits(now)
	return m, nil
}

func (m *Member) ID() uuid.UUID              { return m.id }
func (m *Member) Name() string               { return m.name }
func (m *Member) Email() EmailAddress        { return m.email }
func (m *Member) Tier() MembershipType       { return m.tier }
func (m *Member) CreditsExpireAt() time.Time { return m.creditsExpireAt }
func (m *Member) Credential() Credential     { return m.credential }
func (m *Member) RegisteredAt() time.Time    { return m.registeredAt }
func (m *Member) Version() int               { return m.version }

// Credits returns the usable balance at now. Expired credits read as zero.
func (m *Member) Credits(now time.Time) int {
	if !now.Before(m.creditsExpireAt) {
		return 0
	}
	return m.credits
}

// DeductCredit spends one credit.
func (m *Member) DeductCredit(now time.Time) error {
	available := m.Credits(now)
	if available <= 0 {
		return NewError(CodeInsufficientCredits, "member.deduct_credit", "member "+m.id.String()+" has no usable credits", nil)
	}
	m.credits = available - 1
	return nil
}

// RefundCredit returns one credit and restarts the validity window.
func (m *Member) RefundCredit(now time.Time) {
	m.credits = m.Credits(now) + 1
	m.creditsExpireAt = now.Add(CreditValidity)
}

// GrantMonthlyCredits resets the balance to the tier's monthly grant.
func (m *Member) GrantMonthlyCredits(now time.Time) {
	m.credits = m.tier.MonthlyCredits()
	m.creditsExpireAt = now.Add(CreditValidity)
}

func (m *Member) ChangeEmail(email EmailAddress) error {
	if email.IsZero() {
		return invalid("member.change_email", "member email is required")
	}
	m.email = email
	return nil
}

// ChangeTier switches tier. The balance is kept until the next grant.
func (m *Member) ChangeTier(tier MembershipType) error {
	if tier.Name() == "" {
		return invalid("member.change_tier", "membership tier is required")
	}
	m.tier = tier
	return nil
}

func (m *Member) SetCredential(c Credential) error {
	if c.IsZero() {
		return invalid("member.set_credential", "credential is required")
	}
	m.credential = c
	return nil
}

// MemberState is the persisted form of a Member.
type MemberState struct {
	ID              uuid.UUID `json:"id"`
	Name            string    `json:"name"`
	Email           string    `json:"email"`
	Tier            string    `json:"tier"`
	TierCredits     int       `json:"tier_credits"`
	TierPriceCents  int64     `json:"tier_price_cents"`
	Credits         int       `json:"credits"`
	CreditsExpireAt time.Time `json:"credits_expire_at"`
	PasswordHash    string    `json:"-"`
	PasswordSalt    string    `json:"-"`
	RegisteredAt    time.Time `json:"registered_at"`
	Version         int       `json:"version"`
}

func (m *Member) State() MemberState {
	return MemberState{
		ID:              m.id,
		Name:            m.name,
		Email:           m.email.String(),
		Tier:            m.tier.Name(),
		TierCredits:     m.tier.MonthlyCredits(),
		TierPriceCents:  m.tier.PriceCents(),
		Credits:         m.credits,
		CreditsExpireAt: m.creditsExpireAt,
		PasswordHash:    m.credential.Hash(),
		PasswordSalt:    m.credential.Salt(),
		RegisteredAt:    m.registeredAt,
		Version:         m.version,
	}
}

// RestoreMember rebuilds a Member from persisted state, re-validating it.
func RestoreMember(s MemberState) (*Member, error) {
	if s.ID == uuid.Nil || strings.TrimSpace(s.Name) == "" {
		return nil, invalid("member.restore", "member id and name are required")
	}
	email, err := NewEmailAddress(s.Email)
	if err != nil {
		return nil, err
	}
	tier, err := NewMembershipType(s.Tier, s.TierCredits, s.TierPriceCents)
	if err != nil {
		return nil, err
	}
	if s.Credits < 0 {
		return nil, invalid("member.restore", "member %s has negative credits", s.ID)
	}
	m := &Member{
		id:              s.ID,
		name:            strings.TrimSpace(s.Name),
		email:           email,
		tier:            tier,
		credits:         s.Credits,
		creditsExpireAt: s.CreditsExpireAt,
		registeredAt:    s.RegisteredAt,
		version:         s.Version,
	}
	if s.PasswordHash != "" {
		m.credential = Credential{hash: s.PasswordHash, salt: s.PasswordSalt}
	}
	return m, nil
}
