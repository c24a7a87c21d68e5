package users

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"

	"github.com/fieldserve/fieldserve/internal/authz"
	"github.com/fieldserve/fieldserve/internal/credential"
	"github.com/fieldserve/fieldserve/internal/platform/httpx"
	"github.com/fieldserve/fieldserve/internal/principal"
	"github.com/fieldserve/fieldserve/internal/trust"
)

const testSecret = "users-test-secret-users-test-secret"

type fixture struct {
	service   *Service
	repo      *MemoryRepository
	authority *credential.Authority
}

func newFixture(t *testing.T) fixture {
	t.Helper()
	authority, err := credential.NewAuthority([]byte(testSecret),
		credential.WithTTL(15*time.Minute),
		credential.WithRevocations(credential.NewMemoryRevocationList()))
	require.NoError(t, err)
	repo := NewMemoryRepository()
	return fixture{
		service:   NewService(repo, authority, WithHashCost(bcrypt.MinCost)),
		repo:      repo,
		authority: authority,
	}
}

func admin() trust.RequestIdentity {
	return trust.RequestIdentity{UserID: "admin-1", Role: "ADMIN"}
}

func TestRegisterAndLogin(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	user, err := f.service.Register(ctx, "  Ada@Example.com ", "correct-horse")
	require.NoError(t, err)
	assert.Equal(t, "ada@example.com", user.Email)
	assert.Equal(t, principal.RoleCustomer, user.Role)
	assert.False(t, user.NeedsPasswordChange)

	cred, logged, err := f.service.Login(ctx, "ADA@example.com", "correct-horse")
	require.NoError(t, err)
	assert.Equal(t, user.ID, logged.ID)

	claims, err := f.authority.Validate(ctx, cred.Token)
	require.NoError(t, err)
	assert.Equal(t, user.ID, claims.UserID)
	assert.Equal(t, "CUSTOMER", claims.Role)
	assert.Equal(t, "ada@example.com", claims.Subject)

	_, err = f.service.Register(ctx, "ada@example.com", "another-pass")
	assert.ErrorIs(t, err, ErrEmailTaken)
	assert.ErrorIs(t, err, httpx.ErrConflict)
}

func TestLoginRejectsBadCredentials(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	_, err := f.service.Register(ctx, "bob@example.com", "correct-horse")
	require.NoError(t, err)

	hash, err := bcrypt.GenerateFromPassword([]byte("correct-horse"), bcrypt.MinCost)
	require.NoError(t, err)
	require.NoError(t, f.repo.Create(ctx, User{ID: "u-off", Email: "off@example.com", PasswordHash: string(hash), Role: principal.RoleCustomer}))

	for _, tc := range []struct{ email, password string }{
		{"bob@example.com", "wrong-horse"},
		{"nobody@example.com", "correct-horse"},
		{"off@example.com", "correct-horse"},
	} {
		_, _, err := f.service.Login(ctx, tc.email, tc.password)
		assert.ErrorIs(t, err, ErrInvalidCredentials, tc.email)
	}
}

func TestCreateStaffRequiresAdmin(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	_, err := f.service.CreateStaff(ctx, trust.RequestIdentity{UserID: "m-1", Role: "MANAGER"}, "tech@example.com", "initial-pass", "TECHNICIAN")
	assert.ErrorIs(t, err, authz.ErrForbidden)

	_, err = f.service.CreateStaff(ctx, trust.RequestIdentity{}, "tech@example.com", "initial-pass", "TECHNICIAN")
	assert.ErrorIs(t, err, authz.ErrUnauthenticated)

	_, err = f.service.CreateStaff(ctx, admin(), "tech@example.com", "initial-pass", "PLUMBER")
	assert.ErrorIs(t, err, httpx.ErrValidation)

	user, err := f.service.CreateStaff(ctx, admin(), "tech@example.com", "initial-pass", "role_technician")
	require.NoError(t, err)
	assert.Equal(t, principal.RoleTechnician, user.Role)
	assert.True(t, user.NeedsPasswordChange)

	cred, _, err := f.service.Login(ctx, "tech@example.com", "initial-pass")
	require.NoError(t, err)
	assert.True(t, cred.Claims.NeedsPasswordChange)
}

func TestChangePasswordClearsFlagAndRevokesOldCredential(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	user, err := f.service.CreateStaff(ctx, admin(), "mgr@example.com", "initial-pass", "MANAGER")
	require.NoError(t, err)
	old, _, err := f.service.Login(ctx, "mgr@example.com", "initial-pass")
	require.NoError(t, err)
	id := trust.RequestIdentity{UserID: user.ID, Role: "MANAGER"}

	_, err = f.service.ChangePassword(ctx, id, old.Token, "not-the-password", "brand-new-pass")
	assert.ErrorIs(t, err, ErrWrongPassword)
	_, err = f.service.ChangePassword(ctx, id, old.Token, "initial-pass", "initial-pass")
	assert.ErrorIs(t, err, ErrSamePassword)

	fresh, err := f.service.ChangePassword(ctx, id, old.Token, "initial-pass", "brand-new-pass")
	require.NoError(t, err)
	assert.False(t, fresh.Claims.NeedsPasswordChange)

	_, err = f.authority.Validate(ctx, old.Token)
	assert.ErrorIs(t, err, credential.ErrRevoked)
	_, err = f.authority.Validate(ctx, fresh.Token)
	assert.NoError(t, err)

	_, _, err = f.service.Login(ctx, "mgr@example.com", "initial-pass")
	assert.ErrorIs(t, err, ErrInvalidCredentials)
	_, _, err = f.service.Login(ctx, "mgr@example.com", "brand-new-pass")
	assert.NoError(t, err)
}

func TestRefreshRotatesCredential(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	user, err := f.service.Register(ctx, "cy@example.com", "correct-horse")
	require.NoError(t, err)
	old, _, err := f.service.Login(ctx, "cy@example.com", "correct-horse")
	require.NoError(t, err)

	fresh, err := f.service.Refresh(ctx, old.Token)
	require.NoError(t, err)
	assert.Equal(t, user.ID, fresh.Claims.UserID)
	assert.NotEqual(t, old.Claims.ID, fresh.Claims.ID)

	_, err = f.service.Refresh(ctx, old.Token)
	assert.ErrorIs(t, err, httpx.ErrUnauthorized)
	assert.Equal(t, credential.KindRevoked, credential.KindOf(err))

	_, err = f.service.Refresh(ctx, "garbage")
	assert.Equal(t, credential.KindMalformed, credential.KindOf(err))
}

func TestLogoutRevokes(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	_, err := f.service.Register(ctx, "di@example.com", "correct-horse")
	require.NoError(t, err)
	cred, _, err := f.service.Login(ctx, "di@example.com", "correct-horse")
	require.NoError(t, err)

	require.NoError(t, f.service.Logout(ctx, cred.Token))
	_, err = f.authority.Validate(ctx, cred.Token)
	assert.ErrorIs(t, err, credential.ErrRevoked)

	assert.ErrorIs(t, f.service.Logout(ctx, cred.Token), httpx.ErrUnauthorized)
}

func TestListAndMe(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	user, err := f.service.Register(ctx, "eve@example.com", "correct-horse")
	require.NoError(t, err)

	me, err := f.service.Me(ctx, trust.RequestIdentity{UserID: user.ID, Role: "CUSTOMER"})
	require.NoError(t, err)
	assert.Equal(t, user.Email, me.Email)

	_, err = f.service.List(ctx, trust.RequestIdentity{UserID: user.ID, Role: "CUSTOMER"})
	assert.ErrorIs(t, err, authz.ErrForbidden)
	all, err := f.service.List(ctx, trust.RequestIdentity{UserID: "m", Role: "MANAGER"})
	require.NoError(t, err)
	assert.Len(t, all, 1)
}

func TestEnsureBootstrapAdmin(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	require.NoError(t, f.service.EnsureBootstrapAdmin(ctx, "root@example.com", ""))
	all, _ := f.repo.List(ctx)
	assert.Empty(t, all)

	require.NoError(t, f.service.EnsureBootstrapAdmin(ctx, "root@example.com", "bootstrap-pass"))
	require.NoError(t, f.service.EnsureBootstrapAdmin(ctx, "root@example.com", "bootstrap-pass"))
	all, _ = f.repo.List(ctx)
	require.Len(t, all, 1)
	assert.Equal(t, principal.RoleAdmin, all[0].Role)
	assert.True(t, all[0].NeedsPasswordChange)
}
