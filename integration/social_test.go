package integration

import (
	"fmt"
	"net/http"
	"strings"
	"testing"
	"time"

	"github.com/kasuganosora/socialgraph/model"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const wait = 2 * time.Second

func TestFriendRequestNotifications(t *testing.T) {
	ts := NewTestServer(t)
	defer ts.Close()

	tokenA, idA := ts.Register(t, UniqueID("frA"), "pass1234")
	tokenB, idB := ts.Register(t, UniqueID("frB"), "pass1234")
	streamA := ts.ConnectSSE(t, tokenA)
	streamB := ts.ConnectSSE(t, tokenB)

	// A asks; B hears about it.
	resp := ts.PostJSON(t, fmt.Sprintf("/api/social/friends/%d", idB), nil, tokenA)
	require.Equal(t, http.StatusCreated, resp.StatusCode)
	var sent struct {
		Friendship model.Friendship `json:"friendship"`
	}
	ReadJSON(t, resp, &sent)

	n := streamB.Expect(t, "friend_request", wait).Notification(t)
	assert.Equal(t, idA, n.ActorID)
	assert.Equal(t, sent.Friendship.ID, n.RefID)

	// B accepts; A hears about it.
	Expect(t, http.StatusOK, ts.PostJSON(t, fmt.Sprintf("/api/social/requests/%d/accept", n.RefID), nil, tokenB))
	n = streamA.Expect(t, "friend_accepted", wait).Notification(t)
	assert.Equal(t, idB, n.ActorID)

	var friends struct {
		Friends []model.User `json:"friends"`
	}
	ReadJSON(t, ts.Get(t, "/api/social/friends", tokenA), &friends)
	require.Len(t, friends.Friends, 1)
	assert.Equal(t, idB, friends.Friends[0].ID)

	// Blocking severs the friendship.
	Expect(t, http.StatusCreated, ts.PostJSON(t, fmt.Sprintf("/api/social/blacklist/%d", idB), nil, tokenA))
	ReadJSON(t, ts.Get(t, "/api/social/friends", tokenA), &friends)
	assert.Empty(t, friends.Friends)
	Expect(t, http.StatusForbidden, ts.PostJSON(t, fmt.Sprintf("/api/social/friends/%d", idA), nil, tokenB))
}

func TestPrivateGroupJoinFlow(t *testing.T) {
	ts := NewTestServer(t)
	defer ts.Close()

	tokenOwner, _ := ts.Register(t, UniqueID("own"), "pass1234")
	tokenJoiner, idJoiner := ts.Register(t, UniqueID("join"), "pass1234")
	ownerStream := ts.ConnectSSE(t, tokenOwner)
	joinerStream := ts.ConnectSSE(t, tokenJoiner)

	resp := ts.PostJSON(t, "/api/groups", map[string]string{
		"name":       UniqueID("Hidden"),
		"visibility": "private",
	}, tokenOwner)
	require.Equal(t, http.StatusCreated, resp.StatusCode)
	var created struct {
		Group model.Group `json:"group"`
	}
	ReadJSON(t, resp, &created)
	gid := created.Group.ID

	// Outsiders cannot read posts of a private group.
	Expect(t, http.StatusCreated, ts.PostJSON(t, fmt.Sprintf("/api/groups/%d/posts", gid),
		map[string]string{"content": "members only"}, tokenOwner))
	Expect(t, http.StatusForbidden, ts.Get(t, fmt.Sprintf("/api/groups/%d/posts", gid), tokenJoiner))

	Expect(t, http.StatusOK, ts.PostJSON(t, fmt.Sprintf("/api/groups/%d/join", gid), nil, tokenJoiner))
	n := ownerStream.Expect(t, "join_request", wait).Notification(t)
	assert.Equal(t, idJoiner, n.ActorID)
	assert.Equal(t, gid, n.GroupID)

	Expect(t, http.StatusOK, ts.PostJSON(t,
		fmt.Sprintf("/api/groups/%d/requests/%d/approve", gid, n.RefID), nil, tokenOwner))
	n = joinerStream.Expect(t, "join_approved", wait).Notification(t)
	assert.Equal(t, gid, n.GroupID)

	// The new member sees the group post in their feed.
	var feed struct {
		Items []struct {
			Kind    string `json:"kind"`
			Content string `json:"content"`
		} `json:"items"`
	}
	ReadJSON(t, ts.Get(t, "/api/feed", tokenJoiner), &feed)
	require.Len(t, feed.Items, 1)
	assert.Equal(t, "group_post", feed.Items[0].Kind)

	// Creator leaving tears the group down and tells the members.
	Expect(t, http.StatusOK, ts.PostJSON(t, fmt.Sprintf("/api/groups/%d/leave", gid), nil, tokenOwner))
	joinerStream.Expect(t, "group_deleted", wait)
	ReadJSON(t, ts.Get(t, "/api/feed", tokenJoiner), &feed)
	assert.Empty(t, feed.Items)
}

func TestReportBanEndsSession(t *testing.T) {
	ts := NewTestServer(t)
	defer ts.Close()

	tokenReporter, _ := ts.Register(t, UniqueID("rep"), "pass1234")
	tokenTarget, idTarget := ts.Register(t, UniqueID("tgt"), "pass1234")
	tokenAdmin, idAdmin := ts.Register(t, UniqueID("tech"), "pass1234")
	ts.Promote(t, idAdmin, model.RoleTechAdmin)
	targetStream := ts.ConnectSSE(t, tokenTarget)

	resp := ts.PostJSON(t, fmt.Sprintf("/api/reports/%d", idTarget),
		map[string]string{"reason": "harassing people in comments"}, tokenReporter)
	require.Equal(t, http.StatusCreated, resp.StatusCode)
	var filed struct {
		Report model.Report `json:"report"`
	}
	ReadJSON(t, resp, &filed)

	Expect(t, http.StatusOK, ts.PostJSON(t,
		fmt.Sprintf("/api/techadmin/reports/%d/approve", filed.Report.ID), nil, tokenAdmin))

	n := targetStream.Expect(t, "user_banned", wait).Notification(t)
	assert.Equal(t, filed.Report.ID, n.RefID)
	Expect(t, http.StatusForbidden, ts.Get(t, "/api/feed", tokenTarget))

	// Banned authors drop out of search.
	var found struct {
		Users []model.User `json:"users"`
	}
	ReadJSON(t, ts.Get(t, "/api/users/search?q=tgt", tokenReporter), &found)
	assert.Empty(t, found.Users)
}

func TestPostHooksAndAnnouncements(t *testing.T) {
	ts := NewTestServer(t)
	defer ts.Close()

	token, _ := ts.Register(t, UniqueID("hook"), "pass1234")
	stream := ts.ConnectSSE(t, token)

	resp := ts.PostJSON(t, "/api/posts", map[string]string{"content": "what a " + MaskedWord + " day"}, token)
	require.Equal(t, http.StatusCreated, resp.StatusCode)
	var created struct {
		Post model.Post `json:"post"`
	}
	ReadJSON(t, resp, &created)
	assert.NotContains(t, created.Post.Content, MaskedWord)
	assert.Equal(t, "what a **** day", created.Post.Content)

	Expect(t, http.StatusBadRequest, ts.PostJSON(t, "/api/posts",
		map[string]string{"content": strings.Repeat("a", 5001)}, token))

	Expect(t, http.StatusOK, ts.Admin(t, http.MethodPost, "/api/admin/announce",
		map[string]string{"message": "maintenance tonight"}))
	ev := stream.Expect(t, "announce", wait)
	assert.Contains(t, ev.Data, "maintenance tonight")
}
