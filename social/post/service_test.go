package post

import (
	"context"
	"strings"
	"testing"

	"github.com/kasuganosora/socialgraph/model"
	"github.com/kasuganosora/socialgraph/plugin/hook"
	"github.com/kasuganosora/socialgraph/social"
	"github.com/kasuganosora/socialgraph/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
)

func setup(t *testing.T, hooks *hook.Center) (*gorm.DB, *Service) {
	t.Helper()
	db := testutil.SetupTestDB(t)
	return db, NewService(db, hooks, testutil.Logger(t))
}

func befriend(t *testing.T, db *gorm.DB, a, b int64) {
	t.Helper()
	require.NoError(t, db.Create(&model.Friendship{SenderID: a, ReceiverID: b, Status: model.FriendshipAccepted}).Error)
}

func makeGroup(t *testing.T, db *gorm.DB, creator int64, visibility, postPerm string) *model.Group {
	t.Helper()
	g := &model.Group{Name: "g-" + visibility + postPerm, Visibility: visibility, CreatorID: creator,
		PostPermission: postPerm, RequestPermission: model.PermModerators}
	require.NoError(t, db.Create(g).Error)
	require.NoError(t, db.Create(&model.GroupMember{GroupID: g.ID, UserID: creator, Role: model.GroupRoleAdmin}).Error)
	return g
}

func TestCreate(t *testing.T) {
	db, svc := setup(t, nil)
	ctx := context.Background()
	u := testutil.CreateUser(t, db, "alice")

	p, err := svc.Create(ctx, u.ID, "  hello  ", "")
	require.NoError(t, err)
	assert.Equal(t, "hello", p.Content)
	assert.Equal(t, model.PostPublic, p.Visibility)

	_, err = svc.Create(ctx, u.ID, "   ", "")
	assert.ErrorIs(t, err, social.ErrInvalidArgument)
	_, err = svc.Create(ctx, u.ID, strings.Repeat("x", maxContent+1), "")
	assert.ErrorIs(t, err, social.ErrInvalidArgument)
	_, err = svc.Create(ctx, u.ID, "hi", "everyone")
	assert.ErrorIs(t, err, social.ErrInvalidArgument)
	_, err = svc.Create(ctx, 9999, "hi", "")
	assert.ErrorIs(t, err, social.ErrNotFound)
}

func TestCreate_Hooks(t *testing.T) {
	hooks := hook.New(testutil.Logger(t))
	hooks.Register(hook.BeforePostCreate, 0, "mask", hook.MaskWords([]string{"darn"}))
	hooks.Register(hook.BeforePostCreate, 1, "limit", hook.MaxLength(10))
	db, svc := setup(t, hooks)
	ctx := context.Background()
	u := testutil.CreateUser(t, db, "alice")

	p, err := svc.Create(ctx, u.ID, "oh darn", "")
	require.NoError(t, err)
	assert.Equal(t, "oh ****", p.Content)

	_, err = svc.Create(ctx, u.ID, "this is far too long", "")
	assert.ErrorIs(t, err, social.ErrInvalidArgument)

	var n int64
	db.Model(&model.Post{}).Count(&n)
	assert.Equal(t, int64(1), n)
}

func TestCreateGroupPost_Policy(t *testing.T) {
	db, svc := setup(t, nil)
	ctx := context.Background()
	admin := testutil.CreateUser(t, db, "admin")
	member := testutil.CreateUser(t, db, "member")
	outsider := testutil.CreateUser(t, db, "outsider")

	g := makeGroup(t, db, admin.ID, model.GroupPublic, model.PermModerators)
	require.NoError(t, db.Create(&model.GroupMember{GroupID: g.ID, UserID: member.ID, Role: model.GroupRoleMember}).Error)

	_, err := svc.CreateGroupPost(ctx, g.ID, outsider.ID, "hi")
	assert.ErrorIs(t, err, social.ErrNotAuthorized)
	_, err = svc.CreateGroupPost(ctx, g.ID, member.ID, "hi")
	assert.ErrorIs(t, err, social.ErrNotAuthorized)

	p, err := svc.CreateGroupPost(ctx, g.ID, admin.ID, "welcome")
	require.NoError(t, err)
	assert.Equal(t, g.ID, p.GroupID)

	_, err = svc.CreateGroupPost(ctx, 9999, admin.ID, "hi")
	assert.ErrorIs(t, err, social.ErrNotFound)
}

func TestDelete(t *testing.T) {
	db, svc := setup(t, nil)
	ctx := context.Background()
	author := testutil.CreateUser(t, db, "author")
	other := testutil.CreateUser(t, db, "other")
	tech := testutil.CreateUserWithRole(t, db, "tech", model.RoleTechAdmin)

	p, err := svc.Create(ctx, author.ID, "one", "")
	require.NoError(t, err)
	_, _, err = svc.ToggleLike(ctx, model.KindPost, p.ID, other.ID)
	require.NoError(t, err)

	assert.ErrorIs(t, svc.Delete(ctx, p.ID, other.ID), social.ErrNotAuthorized)
	require.NoError(t, svc.Delete(ctx, p.ID, author.ID))
	assert.ErrorIs(t, svc.Delete(ctx, p.ID, author.ID), social.ErrNotFound)

	var likes int64
	db.Model(&model.PostLike{}).Count(&likes)
	assert.Zero(t, likes)

	p2, err := svc.Create(ctx, author.ID, "two", "")
	require.NoError(t, err)
	require.NoError(t, svc.Delete(ctx, p2.ID, tech.ID))
}

func TestToggleLike(t *testing.T) {
	db, svc := setup(t, nil)
	ctx := context.Background()
	author := testutil.CreateUser(t, db, "author")
	fan := testutil.CreateUser(t, db, "fan")
	stranger := testutil.CreateUser(t, db, "stranger")

	p, err := svc.Create(ctx, author.ID, "likeable", model.PostFriends)
	require.NoError(t, err)

	_, _, err = svc.ToggleLike(ctx, model.KindPost, p.ID, stranger.ID)
	assert.ErrorIs(t, err, social.ErrNotAuthorized)

	befriend(t, db, author.ID, fan.ID)
	liked, count, err := svc.ToggleLike(ctx, model.KindPost, p.ID, fan.ID)
	require.NoError(t, err)
	assert.True(t, liked)
	assert.Equal(t, int64(1), count)

	liked, count, err = svc.ToggleLike(ctx, model.KindPost, p.ID, fan.ID)
	require.NoError(t, err)
	assert.False(t, liked)
	assert.Zero(t, count)

	_, _, err = svc.ToggleLike(ctx, "comment", p.ID, fan.ID)
	assert.ErrorIs(t, err, social.ErrInvalidArgument)
	_, _, err = svc.ToggleLike(ctx, model.KindGroupPost, p.ID, fan.ID)
	assert.ErrorIs(t, err, social.ErrNotFound)
}

func TestToggleLike_PrivateGroup(t *testing.T) {
	db, svc := setup(t, nil)
	ctx := context.Background()
	admin := testutil.CreateUser(t, db, "admin")
	outsider := testutil.CreateUser(t, db, "outsider")
	g := makeGroup(t, db, admin.ID, model.GroupPrivate, model.PermAll)

	gp, err := svc.CreateGroupPost(ctx, g.ID, admin.ID, "secret")
	require.NoError(t, err)

	_, _, err = svc.ToggleLike(ctx, model.KindGroupPost, gp.ID, outsider.ID)
	assert.ErrorIs(t, err, social.ErrNotAuthorized)
	liked, count, err := svc.ToggleLike(ctx, model.KindGroupPost, gp.ID, admin.ID)
	require.NoError(t, err)
	assert.True(t, liked)
	assert.Equal(t, int64(1), count)

	n, err := svc.LikeCount(ctx, model.KindGroupPost, gp.ID)
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)
}

func TestListByAuthor_Visibility(t *testing.T) {
	db, svc := setup(t, nil)
	ctx := context.Background()
	author := testutil.CreateUser(t, db, "author")
	friend := testutil.CreateUser(t, db, "friend")
	stranger := testutil.CreateUser(t, db, "stranger")
	befriend(t, db, author.ID, friend.ID)

	_, err := svc.Create(ctx, author.ID, "for everyone", model.PostPublic)
	require.NoError(t, err)
	_, err = svc.Create(ctx, author.ID, "for friends", model.PostFriends)
	require.NoError(t, err)

	own, err := svc.ListByAuthor(ctx, author.ID, author.ID)
	require.NoError(t, err)
	assert.Len(t, own, 2)

	fr, err := svc.ListByAuthor(ctx, friend.ID, author.ID)
	require.NoError(t, err)
	assert.Len(t, fr, 2)

	st, err := svc.ListByAuthor(ctx, stranger.ID, author.ID)
	require.NoError(t, err)
	require.Len(t, st, 1)
	assert.Equal(t, "for everyone", st[0].Content)

	require.NoError(t, db.Create(&model.BlacklistEntry{BlockerID: author.ID, BlockedID: stranger.ID}).Error)
	_, err = svc.ListByAuthor(ctx, stranger.ID, author.ID)
	assert.ErrorIs(t, err, social.ErrNotAuthorized)

	_, err = svc.ListByAuthor(ctx, stranger.ID, 9999)
	assert.ErrorIs(t, err, social.ErrNotFound)
}

func TestListByGroup(t *testing.T) {
	db, svc := setup(t, nil)
	ctx := context.Background()
	admin := testutil.CreateUser(t, db, "admin")
	outsider := testutil.CreateUser(t, db, "outsider")

	pub := makeGroup(t, db, admin.ID, model.GroupPublic, model.PermAll)
	priv := makeGroup(t, db, admin.ID, model.GroupPrivate, model.PermAll)
	_, err := svc.CreateGroupPost(ctx, pub.ID, admin.ID, "open")
	require.NoError(t, err)
	_, err = svc.CreateGroupPost(ctx, priv.ID, admin.ID, "closed")
	require.NoError(t, err)

	posts, err := svc.ListByGroup(ctx, outsider.ID, pub.ID)
	require.NoError(t, err)
	assert.Len(t, posts, 1)

	_, err = svc.ListByGroup(ctx, outsider.ID, priv.ID)
	assert.ErrorIs(t, err, social.ErrNotAuthorized)

	posts, err = svc.ListByGroup(ctx, admin.ID, priv.ID)
	require.NoError(t, err)
	assert.Len(t, posts, 1)
}

func TestComments(t *testing.T) {
	db, svc := setup(t, nil)
	ctx := context.Background()
	author := testutil.CreateUser(t, db, "author")
	friend := testutil.CreateUser(t, db, "friend")
	stranger := testutil.CreateUser(t, db, "stranger")
	befriend(t, db, author.ID, friend.ID)

	p, err := svc.Create(ctx, author.ID, "talk to me", model.PostFriends)
	require.NoError(t, err)

	_, err = svc.Comment(ctx, model.KindPost, p.ID, stranger.ID, "hi")
	assert.ErrorIs(t, err, social.ErrNotAuthorized)
	_, err = svc.Comment(ctx, model.KindPost, p.ID, friend.ID, "   ")
	assert.ErrorIs(t, err, social.ErrInvalidArgument)
	_, err = svc.Comment(ctx, model.KindPost, p.ID, friend.ID, strings.Repeat("x", maxComment+1))
	assert.ErrorIs(t, err, social.ErrInvalidArgument)
	_, err = svc.Comment(ctx, "photo", p.ID, friend.ID, "hi")
	assert.ErrorIs(t, err, social.ErrInvalidArgument)
	_, err = svc.Comment(ctx, model.KindPost, 9999, friend.ID, "hi")
	assert.ErrorIs(t, err, social.ErrNotFound)

	first, err := svc.Comment(ctx, model.KindPost, p.ID, friend.ID, " first ")
	require.NoError(t, err)
	assert.Equal(t, "first", first.Content)
	_, err = svc.Comment(ctx, model.KindPost, p.ID, author.ID, "second")
	require.NoError(t, err)

	list, err := svc.Comments(ctx, author.ID, model.KindPost, p.ID)
	require.NoError(t, err)
	require.Len(t, list, 2)
	assert.Equal(t, "first", list[0].Content)
	assert.Equal(t, "second", list[1].Content)

	_, err = svc.Comments(ctx, stranger.ID, model.KindPost, p.ID)
	assert.ErrorIs(t, err, social.ErrNotAuthorized)

	// Banned commenters drop out of the thread.
	require.NoError(t, db.Model(friend).Update("banned", true).Error)
	list, err = svc.Comments(ctx, author.ID, model.KindPost, p.ID)
	require.NoError(t, err)
	require.Len(t, list, 1)
	assert.Equal(t, author.ID, list[0].UserID)
	_, err = svc.Comment(ctx, model.KindPost, p.ID, friend.ID, "again")
	assert.ErrorIs(t, err, social.ErrNotAuthorized)

	require.NoError(t, svc.Delete(ctx, p.ID, author.ID))
	var left int64
	require.NoError(t, db.Model(&model.PostComment{}).Where("post_id = ?", p.ID).Count(&left).Error)
	assert.Zero(t, left)
}

func TestComments_BlockedCommenterHidden(t *testing.T) {
	db, svc := setup(t, nil)
	ctx := context.Background()
	author := testutil.CreateUser(t, db, "author")
	troll := testutil.CreateUser(t, db, "troll")
	reader := testutil.CreateUser(t, db, "reader")

	p, err := svc.Create(ctx, author.ID, "open thread", model.PostPublic)
	require.NoError(t, err)
	_, err = svc.Comment(ctx, model.KindPost, p.ID, troll.ID, "noise")
	require.NoError(t, err)
	require.NoError(t, db.Create(&model.BlacklistEntry{BlockerID: reader.ID, BlockedID: troll.ID}).Error)

	list, err := svc.Comments(ctx, reader.ID, model.KindPost, p.ID)
	require.NoError(t, err)
	assert.Empty(t, list)

	list, err = svc.Comments(ctx, author.ID, model.KindPost, p.ID)
	require.NoError(t, err)
	assert.Len(t, list, 1)
}
