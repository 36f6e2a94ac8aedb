package membership

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"gymbooking/internal/auth"
	"gymbooking/internal/domain"
	"gymbooking/internal/uow"
	"gymbooking/internal/uow/memstore"
)

var now = time.Date(2026, 10, 19, 9, 0, 0, 0, time.UTC)

func newTestService(t *testing.T, issuer *auth.Issuer, opts ...Option) (Service, *memstore.Store) {
	t.Helper()
	store := memstore.New()
	runner := uow.NewRunner(uow.NewManager(store), nil)
	opts = append([]Option{WithRateLimit(100), WithClock(func() time.Time { return now })}, opts...)
	return NewService(runner, issuer, nil, opts...), store
}

func register(t *testing.T, svc Service, email string) *domain.Member {
	t.Helper()
	m, err := svc.RegisterMember(context.Background(), RegisterRequest{
		Email:    email,
		Name:     "Robin",
		Password: "correct horse",
	})
	require.NoError(t, err)
	return m
}

func TestRegisterMember(t *testing.T) {
	svc, store := newTestService(t, nil)

	m := register(t, svc, "Robin@Example.com")
	assert.Equal(t, "robin@example.com", m.Email().String())
	assert.Equal(t, domain.TierBasic.Name(), m.Tier().Name(), "basic is the default tier")
	assert.Equal(t, 10, m.Credits(now))
	assert.False(t, m.Credential().IsZero())

	st, ok := store.Member(m.ID())
	require.True(t, ok)
	assert.NotEqual(t, "correct horse", st.PasswordHash)

	_, err := svc.RegisterMember(context.Background(), RegisterRequest{Email: "robin@example.com", Name: "Twin", Password: "another secret"})
	assert.True(t, domain.IsCode(err, domain.CodeAlreadyExists))
}

func TestRegisterMemberValidation(t *testing.T) {
	svc, store := newTestService(t, nil)
	ctx := context.Background()

	tests := []struct {
		name string
		req  RegisterRequest
	}{
		{name: "bad email", req: RegisterRequest{Email: "nope", Name: "A", Password: "long enough"}},
		{name: "short password", req: RegisterRequest{Email: "a@b.co", Name: "A", Password: "short"}},
		{name: "unknown tier", req: RegisterRequest{Email: "a@b.co", Name: "A", Password: "long enough", Tier: "platinum"}},
		{name: "blank name", req: RegisterRequest{Email: "a@b.co", Name: " ", Password: "long enough"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := svc.RegisterMember(ctx, tt.req)
			assert.True(t, domain.IsCode(err, domain.CodeInvalidValue), "got %v", err)
		})
	}
	assert.Zero(t, store.Commits())
}

func TestAuthenticate(t *testing.T) {
	issuer := auth.NewIssuer("test-secret", time.Hour)
	svc, _ := newTestService(t, issuer)
	m := register(t, svc, "login@example.com")
	ctx := context.Background()

	session, err := svc.Authenticate(ctx, "login@example.com", "correct horse")
	require.NoError(t, err)
	assert.Equal(t, m.ID(), session.Member.ID())
	require.NotEmpty(t, session.Token)

	claims, err := issuer.Validate(session.Token)
	require.NoError(t, err)
	assert.Equal(t, m.ID(), claims.MemberID)
	assert.Equal(t, "basic", claims.Tier)

	for _, attempt := range []struct{ email, password string }{
		{"login@example.com", "wrong horse"},
		{"ghost@example.com", "correct horse"},
		{"not-an-email", "correct horse"},
	} {
		_, err := svc.Authenticate(ctx, attempt.email, attempt.password)
		assert.True(t, domain.IsCode(err, domain.CodeUnauthorized), "%s: %v", attempt.email, err)
	}
}

func TestAuthenticateWithoutSigning(t *testing.T) {
	svc, _ := newTestService(t, nil)
	register(t, svc, "plain@example.com")

	session, err := svc.Authenticate(context.Background(), "plain@example.com", "correct horse")
	require.NoError(t, err)
	assert.Empty(t, session.Token)
}

func TestRateLimit(t *testing.T) {
	svc, _ := newTestService(t, nil, WithRateLimit(1))
	register(t, svc, "first@example.com")

	_, err := svc.RegisterMember(context.Background(), RegisterRequest{Email: "second@example.com", Name: "B", Password: "long enough"})
	assert.True(t, domain.IsCode(err, domain.CodeRateLimited))
}

func TestChangeTierAndRenew(t *testing.T) {
	svc, store := newTestService(t, nil)
	m := register(t, svc, "tier@example.com")
	ctx := context.Background()

	updated, err := svc.ChangeTier(ctx, m.ID(), "premium")
	require.NoError(t, err)
	assert.Equal(t, "premium", updated.Tier().Name())
	assert.Equal(t, 10, updated.Credits(now), "balance kept until renewal")

	renewed, err := svc.RenewCredits(ctx, m.ID())
	require.NoError(t, err)
	assert.Equal(t, 20, renewed.Credits(now))

	st, _ := store.Member(m.ID())
	assert.Equal(t, 20, st.Credits)
	assert.Equal(t, 3, st.Version)

	_, err = svc.ChangeTier(ctx, m.ID(), "gold")
	assert.True(t, domain.IsCode(err, domain.CodeInvalidValue))
	_, err = svc.GetMember(ctx, uuid.New())
	assert.ErrorIs(t, err, domain.ErrNotFound)
}

func TestChangeEmail(t *testing.T) {
	svc, store := newTestService(t, nil)
	m := register(t, svc, "old@example.com")
	other := register(t, svc, "taken@example.com")
	ctx := context.Background()

	updated, err := svc.ChangeEmail(ctx, m.ID(), "  New@Example.com ")
	require.NoError(t, err)
	assert.Equal(t, "new@example.com", updated.Email().String())
	st, _ := store.Member(m.ID())
	assert.Equal(t, "new@example.com", st.Email)

	_, err = svc.ChangeEmail(ctx, m.ID(), "new@example.com")
	assert.NoError(t, err, "keeping the current address is allowed")

	_, err = svc.ChangeEmail(ctx, m.ID(), "TAKEN@example.com")
	assert.True(t, domain.IsCode(err, domain.CodeAlreadyExists))
	st, _ = store.Member(m.ID())
	assert.Equal(t, "new@example.com", st.Email)
	st, _ = store.Member(other.ID())
	assert.Equal(t, "taken@example.com", st.Email)

	_, err = svc.ChangeEmail(ctx, m.ID(), "not-an-email")
	assert.True(t, domain.IsCode(err, domain.CodeInvalidValue))
	_, err = svc.ChangeEmail(ctx, uuid.New(), "free@example.com")
	assert.ErrorIs(t, err, domain.ErrNotFound)

	// The old address is free again.
	register(t, svc, "old@example.com")
}

func TestPasswordHashing(t *testing.T) {
	a, err := hashPassword("correct horse")
	require.NoError(t, err)
	b, err := hashPassword("correct horse")
	require.NoError(t, err)
	assert.NotEqual(t, a.Salt(), b.Salt(), "fresh salt per hash")

	ok, err := verifyPassword("correct horse", a)
	require.NoError(t, err)
	assert.True(t, ok)
	ok, err = verifyPassword("Correct horse", a)
	require.NoError(t, err)
	assert.False(t, ok)
}
