package identity

import (
	"context"
	"testing"

	"github.com/kasuganosora/socialgraph/config"
	"github.com/kasuganosora/socialgraph/model"
	"github.com/kasuganosora/socialgraph/social"
	"github.com/kasuganosora/socialgraph/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"
)

func newService(t *testing.T) *Service {
	t.Helper()
	return NewService(testutil.SetupTestDB(t), bcrypt.MinCost, testutil.Logger(t))
}

func TestRegister(t *testing.T) {
	svc := newService(t)
	ctx := context.Background()

	u, err := svc.Register(ctx, "alice", "secret1")
	require.NoError(t, err)
	assert.NotZero(t, u.ID)
	assert.Equal(t, model.RoleUser, u.Role)
	assert.NotEqual(t, "secret1", u.PasswordHash)

	_, err = svc.Register(ctx, "alice", "another1")
	assert.ErrorIs(t, err, social.ErrAlreadyExists)
}

func TestRegister_Validation(t *testing.T) {
	svc := newService(t)
	ctx := context.Background()

	_, err := svc.Register(ctx, "a", "secret1")
	assert.ErrorIs(t, err, social.ErrInvalidArgument)
	_, err = svc.Register(ctx, "bob", "123")
	assert.ErrorIs(t, err, social.ErrInvalidArgument)
}

func TestAuthenticate(t *testing.T) {
	svc := newService(t)
	ctx := context.Background()
	_, err := svc.Register(ctx, "alice", "secret1")
	require.NoError(t, err)

	u, err := svc.Authenticate(ctx, "alice", "secret1")
	require.NoError(t, err)
	require.NotNil(t, u.LastLoginAt)

	_, err = svc.Authenticate(ctx, "alice", "wrong-pass")
	assert.ErrorIs(t, err, social.ErrNotAuthorized)
	_, err = svc.Authenticate(ctx, "nobody", "secret1")
	assert.ErrorIs(t, err, social.ErrNotAuthorized)
}

func TestAuthenticate_BannedRefused(t *testing.T) {
	svc := newService(t)
	ctx := context.Background()
	u, err := svc.Register(ctx, "mallory", "secret1")
	require.NoError(t, err)
	require.NoError(t, svc.db.Model(u).Update("banned", true).Error)

	_, err = svc.Authenticate(ctx, "mallory", "secret1")
	assert.ErrorIs(t, err, social.ErrNotAuthorized)

	banned, err := svc.IsBanned(ctx, u.ID)
	require.NoError(t, err)
	assert.True(t, banned)

	_, err = svc.RequireActive(ctx, u.ID)
	assert.ErrorIs(t, err, social.ErrNotAuthorized)
}

func TestExistsAndRoleOf(t *testing.T) {
	svc := newService(t)
	ctx := context.Background()
	u := testutil.CreateUserWithRole(t, svc.db, "tech", model.RoleTechAdmin)

	ok, err := svc.Exists(ctx, u.ID)
	require.NoError(t, err)
	assert.True(t, ok)
	ok, err = svc.Exists(ctx, u.ID+100)
	require.NoError(t, err)
	assert.False(t, ok)

	role, err := svc.RoleOf(ctx, u.ID)
	require.NoError(t, err)
	assert.Equal(t, model.RoleTechAdmin, role)

	_, err = svc.RoleOf(ctx, 999)
	assert.ErrorIs(t, err, social.ErrNotFound)
}

func TestBootstrap_Idempotent(t *testing.T) {
	svc := newService(t)
	ctx := context.Background()
	accounts := []config.BootstrapAccount{
		{Username: "root", Password: "rootpass", Role: model.RoleTechAdmin},
		{Username: "ops", Password: "opspass", Role: model.RoleAdmin},
	}
	require.NoError(t, svc.Bootstrap(ctx, accounts))
	require.NoError(t, svc.Bootstrap(ctx, accounts))

	var n int64
	svc.db.Model(&model.User{}).Count(&n)
	assert.Equal(t, int64(2), n)

	u, err := svc.Authenticate(ctx, "root", "rootpass")
	require.NoError(t, err)
	assert.Equal(t, model.RoleTechAdmin, u.Role)
}

func TestBootstrap_CorrectsRole(t *testing.T) {
	svc := newService(t)
	ctx := context.Background()
	_, err := svc.Register(ctx, "root", "rootpass")
	require.NoError(t, err)

	require.NoError(t, svc.Bootstrap(ctx, []config.BootstrapAccount{
		{Username: "root", Password: "ignored", Role: model.RoleTechAdmin},
	}))
	u, err := svc.Authenticate(ctx, "root", "rootpass")
	require.NoError(t, err)
	assert.Equal(t, model.RoleTechAdmin, u.Role)
}

func TestBootstrap_InvalidRole(t *testing.T) {
	svc := newService(t)
	err := svc.Bootstrap(context.Background(), []config.BootstrapAccount{
		{Username: "root", Password: "rootpass", Role: "superuser"},
	})
	assert.ErrorIs(t, err, social.ErrInvalidArgument)
}

func TestSearch(t *testing.T) {
	svc := newService(t)
	ctx := context.Background()
	viewer := testutil.CreateUser(t, svc.db, "anna")
	testutil.CreateUser(t, svc.db, "annabel")
	testutil.CreateUser(t, svc.db, "hannah")
	banned := testutil.CreateUser(t, svc.db, "annette")
	require.NoError(t, svc.db.Model(banned).Update("banned", true).Error)
	testutil.CreateUser(t, svc.db, "bob")

	users, err := svc.Search(ctx, viewer.ID, "ann", 10)
	require.NoError(t, err)
	names := make([]string, 0, len(users))
	for _, u := range users {
		names = append(names, u.Username)
	}
	assert.Equal(t, []string{"annabel", "hannah"}, names)

	_, err = svc.Search(ctx, viewer.ID, "  ", 10)
	assert.ErrorIs(t, err, social.ErrInvalidArgument)
}

func TestSearch_WildcardsAreLiteral(t *testing.T) {
	svc := newService(t)
	ctx := context.Background()
	viewer := testutil.CreateUser(t, svc.db, "viewer")
	testutil.CreateUser(t, svc.db, "a_b")
	testutil.CreateUser(t, svc.db, "axb")

	users, err := svc.Search(ctx, viewer.ID, "_", 10)
	require.NoError(t, err)
	require.Len(t, users, 1)
	assert.Equal(t, "a_b", users[0].Username)
}

func TestUpdateProfile(t *testing.T) {
	svc := newService(t)
	ctx := context.Background()
	u := testutil.CreateUser(t, svc.db, "alice")

	got, err := svc.UpdateProfile(ctx, u.ID, Profile{FullName: " Alice A ", Bio: "hi", Location: "Kyoto"})
	require.NoError(t, err)
	assert.Equal(t, "Alice A", got.FullName)
	assert.Equal(t, "Kyoto", got.Location)

	_, err = svc.UpdateProfile(ctx, 999, Profile{})
	assert.ErrorIs(t, err, social.ErrNotFound)
}

func TestGetMany(t *testing.T) {
	svc := newService(t)
	ctx := context.Background()
	b := testutil.CreateUser(t, svc.db, "bravo")
	a := testutil.CreateUser(t, svc.db, "alpha")

	users, err := svc.GetMany(ctx, []int64{b.ID, a.ID, 999})
	require.NoError(t, err)
	require.Len(t, users, 2)
	assert.Equal(t, "alpha", users[0].Username)

	users, err = svc.GetMany(ctx, nil)
	require.NoError(t, err)
	assert.Empty(t, users)
}
