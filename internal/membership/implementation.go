// internal/membership/implementation.go
package membership

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"golang.org/x/time/rate"

	"gymbooking/internal/auth"
	"gymbooking/internal/domain"
	"gymbooking/internal/pkg/logger"
	"gymbooking/internal/uow"
)

// service implements the Service interface.
type service struct {
	tx           uow.Transactor
	issuer       *auth.Issuer
	log          *logger.Logger
	clock        func() time.Time
	registration *rate.Limiter
	login        *rate.Limiter
}

type Option func(*service)

// WithRateLimit allows perMinute registrations and logins per minute each.
func WithRateLimit(perMinute int) Option {
	return func(s *service) {
		if perMinute > 0 {
			s.registration = rate.NewLimiter(rate.Every(time.Minute/time.Duration(perMinute)), perMinute)
			s.login = rate.NewLimiter(rate.Every(time.Minute/time.Duration(perMinute)), perMinute)
		}
	}
}

func WithClock(clock func() time.Time) Option {
	return func(s *service) {
		if clock != nil {
			s.clock = clock
		}
	}
}

// NewService creates a new membership service instance.
func NewService(tx uow.Transactor, issuer *auth.Issuer, log *logger.Logger, opts ...Option) Service {
	s := &service{
		tx:           tx,
		issuer:       issuer,
		log:          log,
		clock:        time.Now,
		registration: rate.NewLimiter(rate.Every(12*time.Second), 5), // 5 requests per minute
		login:        rate.NewLimiter(rate.Every(12*time.Second), 5),
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.log == nil {
		s.log = logger.NewNop()
	}
	return s
}

func rateLimited(op string) error {
	return domain.NewError(domain.CodeRateLimited, op, "rate limit exceeded", nil)
}

// RegisterMember creates a new member with the tier's monthly credits.
func (s *service) RegisterMember(ctx context.Context, req RegisterRequest) (*domain.Member, error) {
	if !s.registration.Allow() {
		return nil, rateLimited("member.register")
	}

	email, err := domain.NewEmailAddress(req.Email)
	if err != nil {
		return nil, err
	}
	tierName := req.Tier
	if strings.TrimSpace(tierName) == "" {
		tierName = domain.TierBasic.Name()
	}
	tier, err := domain.MembershipTypeByName(tierName)
	if err != nil {
		return nil, err
	}
	credential, err := hashPassword(req.Password)
	if err != nil {
		return nil, fmt.Errorf("failed to hash password: %w", err)
	}

	var member *domain.Member
	err = s.tx.Run(ctx, "register_member", func(ctx context.Context, u uow.UnitOfWork) error {
		_, err := u.Members().FindByEmail(ctx, email)
		switch {
		case err == nil:
			return domain.NewError(domain.CodeAlreadyExists, "member.register", "email "+email.String()+" is already registered", nil)
		case !domain.IsCode(err, domain.CodeNotFound):
			return err
		}

		m, err := domain.NewMember(uuid.New(), req.Name, email, tier, s.clock())
		if err != nil {
			return err
		}
		if err := m.SetCredential(credential); err != nil {
			return err
		}
		member = m
		return u.Members().Add(m)
	})
	if err != nil {
		return nil, fmt.Errorf("failed to register member: %w", err)
	}

	s.log.Info("member registered", "member_id", member.ID(), "tier", tier.Name())
	return member, nil
}

// Authenticate verifies a member's credentials and issues a token when signing is enabled.
func (s *service) Authenticate(ctx context.Context, email, password string) (*Session, error) {
	if !s.login.Allow() {
		return nil, rateLimited("member.authenticate")
	}
	denied := domain.NewError(domain.CodeUnauthorized, "member.authenticate", "invalid credentials", nil)

	addr, err := domain.NewEmailAddress(email)
	if err != nil {
		return nil, denied
	}
	member, err := s.memberByEmail(ctx, addr)
	if domain.IsCode(err, domain.CodeNotFound) {
		return nil, denied
	}
	if err != nil {
		return nil, fmt.Errorf("authentication failed: %w", err)
	}
	if member.Credential().IsZero() {
		return nil, denied
	}

	ok, err := verifyPassword(password, member.Credential())
	if err != nil {
		return nil, fmt.Errorf("authentication failed: %w", err)
	}
	if !ok {
		s.log.Warn("failed login", "member_id", member.ID())
		return nil, denied
	}

	session := &Session{Member: member}
	if s.issuer.Enabled() {
		token, expires, err := s.issuer.Issue(member.ID(), member.Email().String(), member.Tier().Name())
		if err != nil {
			return nil, fmt.Errorf("failed to issue token: %w", err)
		}
		session.Token = token
		session.ExpiresAt = expires
	}
	return session, nil
}

func (s *service) memberByEmail(ctx context.Context, email domain.EmailAddress) (*domain.Member, error) {
	var member *domain.Member
	err := s.tx.Run(ctx, "get_member_by_email", func(ctx context.Context, u uow.UnitOfWork) error {
		m, err := u.Members().FindByEmail(ctx, email)
		member = m
		return err
	})
	if err != nil {
		return nil, err
	}
	return member, nil
}

// GetMember retrieves a member by their ID.
func (s *service) GetMember(ctx context.Context, id uuid.UUID) (*domain.Member, error) {
	var member *domain.Member
	err := s.tx.Run(ctx, "get_member", func(ctx context.Context, u uow.UnitOfWork) error {
		m, err := u.Members().GetByID(ctx, id)
		member = m
		return err
	})
	if err != nil {
		return nil, fmt.Errorf("failed to get member: %w", err)
	}
	return member, nil
}

// ChangeTier moves a member to another membership type.
func (s *service) ChangeTier(ctx context.Context, id uuid.UUID, tierName string) (*domain.Member, error) {
	tier, err := domain.MembershipTypeByName(tierName)
	if err != nil {
		return nil, err
	}
	member, err := s.update(ctx, "change_tier", id, func(m *domain.Member, _ time.Time) error {
		return m.ChangeTier(tier)
	})
	if err != nil {
		return nil, fmt.Errorf("failed to change tier: %w", err)
	}
	s.log.Info("member tier changed", "member_id", id, "tier", tier.Name())
	return member, nil
}

// ChangeEmail moves a member to an address no other member holds.
func (s *service) ChangeEmail(ctx context.Context, id uuid.UUID, raw string) (*domain.Member, error) {
	email, err := domain.NewEmailAddress(raw)
	if err != nil {
		return nil, err
	}
	var member *domain.Member
	err = s.tx.Run(ctx, "change_email", func(ctx context.Context, u uow.UnitOfWork) error {
		m, err := u.Members().GetByID(ctx, id)
		if err != nil {
			return err
		}
		holder, err := u.Members().FindByEmail(ctx, email)
		switch {
		case err == nil && holder.ID() != id:
			return domain.NewError(domain.CodeAlreadyExists, "member.change_email", "email "+email.String()+" is already registered", nil)
		case err != nil && !domain.IsCode(err, domain.CodeNotFound):
			return err
		}
		if err := m.ChangeEmail(email); err != nil {
			return err
		}
		member = m
		return u.Members().Save(m)
	})
	if err != nil {
		return nil, fmt.Errorf("failed to change email: %w", err)
	}
	s.log.Info("member email changed", "member_id", id)
	return member, nil
}

// RenewCredits resets the balance to the tier's monthly grant.
func (s *service) RenewCredits(ctx context.Context, id uuid.UUID) (*domain.Member, error) {
	member, err := s.update(ctx, "renew_credits", id, func(m *domain.Member, now time.Time) error {
		m.GrantMonthlyCredits(now)
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("failed to renew credits: %w", err)
	}
	s.log.Info("member credits renewed", "member_id", id, "expires_at", member.CreditsExpireAt())
	return member, nil
}

func (s *service) update(ctx context.Context, op string, id uuid.UUID, mutate func(*domain.Member, time.Time) error) (*domain.Member, error) {
	var member *domain.Member
	err := s.tx.Run(ctx, op, func(ctx context.Context, u uow.UnitOfWork) error {
		m, err := u.Members().GetByID(ctx, id)
		if err != nil {
			return err
		}
		if err := mutate(m, s.clock()); err != nil {
			return err
		}
		member = m
		return u.Members().Save(m)
	})
	return member, err
}
