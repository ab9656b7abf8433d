package rest_test

import (
	"fmt"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFriendRequestFlow(t *testing.T) {
	s := newServer(t)
	alice := s.register(t, "alice")
	bob := s.register(t, "bob")

	w := alice.post(fmt.Sprintf("/api/social/friends/%d", bob.id), nil)
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	var sent struct {
		Outcome    string `json:"outcome"`
		Friendship struct {
			ID int64 `json:"id"`
		} `json:"friendship"`
	}
	decode(t, w, &sent)
	assert.Equal(t, "requested", sent.Outcome)

	w = alice.post(fmt.Sprintf("/api/social/friends/%d", bob.id), nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "already_pending")

	var reqs struct {
		Incoming []map[string]interface{} `json:"incoming"`
		Outgoing []map[string]interface{} `json:"outgoing"`
	}
	decode(t, bob.get("/api/social/requests"), &reqs)
	assert.Len(t, reqs.Incoming, 1)
	assert.Empty(t, reqs.Outgoing)

	w = alice.post(fmt.Sprintf("/api/social/requests/%d/accept", sent.Friendship.ID), nil)
	assert.Equal(t, http.StatusForbidden, w.Code, "sender cannot accept")

	w = bob.post(fmt.Sprintf("/api/social/requests/%d/accept", sent.Friendship.ID), nil)
	require.Equal(t, http.StatusOK, w.Code)

	w = bob.post(fmt.Sprintf("/api/social/requests/%d/accept", sent.Friendship.ID), nil)
	assert.Equal(t, http.StatusConflict, w.Code)

	var friends struct {
		Friends []struct {
			Username string `json:"username"`
		} `json:"friends"`
	}
	decode(t, alice.get("/api/social/friends"), &friends)
	require.Len(t, friends.Friends, 1)
	assert.Equal(t, "bob", friends.Friends[0].Username)

	w = alice.do(http.MethodDelete, fmt.Sprintf("/api/social/friends/%d", bob.id), nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), `"removed":true`)
}

func TestFriendRequest_Errors(t *testing.T) {
	s := newServer(t)
	alice := s.register(t, "alice")

	assert.Equal(t, http.StatusBadRequest, alice.post(fmt.Sprintf("/api/social/friends/%d", alice.id), nil).Code)
	assert.Equal(t, http.StatusNotFound, alice.post("/api/social/friends/9999", nil).Code)
	assert.Equal(t, http.StatusBadRequest, alice.post("/api/social/friends/abc", nil).Code)
	assert.Equal(t, http.StatusNotFound, alice.post("/api/social/requests/9999/accept", nil).Code)

	bob := s.register(t, "bob")
	w := alice.post(fmt.Sprintf("/api/social/friends/%d", bob.id), nil)
	require.Equal(t, http.StatusCreated, w.Code)
	var sent struct {
		Friendship struct {
			ID int64 `json:"id"`
		} `json:"friendship"`
	}
	decode(t, w, &sent)
	assert.Equal(t, http.StatusBadRequest, bob.post(fmt.Sprintf("/api/social/requests/%d/maybe", sent.Friendship.ID), nil).Code)
}

func TestBlacklist(t *testing.T) {
	s := newServer(t)
	alice := s.register(t, "alice")
	bob := s.register(t, "bob")

	w := alice.post(fmt.Sprintf("/api/social/blacklist/%d", bob.id), map[string]string{"reason": "spam"})
	require.Equal(t, http.StatusCreated, w.Code)
	w = alice.post(fmt.Sprintf("/api/social/blacklist/%d", bob.id), nil)
	assert.Equal(t, http.StatusOK, w.Code, "blocking twice is not an error")

	w = bob.post(fmt.Sprintf("/api/social/friends/%d", alice.id), nil)
	assert.Equal(t, http.StatusForbidden, w.Code)
	assert.JSONEq(t, `{"error":"blocked"}`, w.Body.String())

	var list struct {
		Blacklist []struct {
			BlockedID int64  `json:"blocked_id"`
			Reason    string `json:"reason"`
		} `json:"blacklist"`
	}
	decode(t, alice.get("/api/social/blacklist"), &list)
	require.Len(t, list.Blacklist, 1)
	assert.Equal(t, bob.id, list.Blacklist[0].BlockedID)
	assert.Equal(t, "spam", list.Blacklist[0].Reason)

	w = alice.do(http.MethodDelete, fmt.Sprintf("/api/social/blacklist/%d", bob.id), nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, http.StatusCreated, bob.post(fmt.Sprintf("/api/social/friends/%d", alice.id), nil).Code)
}

func TestUserProfileAndSearch(t *testing.T) {
	s := newServer(t)
	alice := s.register(t, "alice")
	bob := s.register(t, "bobby")

	w := alice.do(http.MethodPut, "/api/users/me", map[string]string{"full_name": "Alice A", "bio": "hi"})
	require.Equal(t, http.StatusOK, w.Code)

	var profile struct {
		User struct {
			FullName string `json:"full_name"`
		} `json:"user"`
		Relation string `json:"relation"`
	}
	decode(t, bob.get("/api/users/%d", alice.id), &profile)
	assert.Equal(t, "Alice A", profile.User.FullName)
	assert.Equal(t, "none", profile.Relation)

	var found struct {
		Users []struct {
			Username string `json:"username"`
		} `json:"users"`
	}
	decode(t, alice.get("/api/users/search?q=bob"), &found)
	require.Len(t, found.Users, 1)
	assert.Equal(t, "bobby", found.Users[0].Username)

	alice.post(fmt.Sprintf("/api/social/blacklist/%d", bob.id), nil)
	assert.Equal(t, http.StatusForbidden, bob.get("/api/users/%d", alice.id).Code)
	assert.Equal(t, http.StatusForbidden, bob.get("/api/users/%d/summary", alice.id).Code)
	assert.Equal(t, http.StatusNotFound, bob.get("/api/users/9999").Code)

	var summary struct {
		Blacklisted int64 `json:"blacklisted"`
	}
	decode(t, alice.get("/api/users/%d/summary", alice.id), &summary)
	assert.Equal(t, int64(1), summary.Blacklisted)
}
