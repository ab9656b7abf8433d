package rest_test

import (
	"fmt"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func createGroup(t *testing.T, u *as, body map[string]string) int64 {
	t.Helper()
	w := u.post("/api/groups", body)
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	var resp struct {
		Group struct {
			ID int64 `json:"id"`
		} `json:"group"`
	}
	decode(t, w, &resp)
	return resp.Group.ID
}

func TestGroupLifecycle(t *testing.T) {
	s := newServer(t)
	owner := s.register(t, "owner")
	joiner := s.register(t, "joiner")

	gid := createGroup(t, owner, map[string]string{"name": "Climbers", "visibility": "private"})
	assert.Equal(t, http.StatusConflict, owner.post("/api/groups", map[string]string{"name": "Climbers"}).Code)

	var detail struct {
		Role    string        `json:"role"`
		Members []interface{} `json:"members"`
	}
	decode(t, joiner.get("/api/groups/%d", gid), &detail)
	assert.Equal(t, "", detail.Role)
	assert.Nil(t, detail.Members, "private members hidden from outsiders")

	w := joiner.post(fmt.Sprintf("/api/groups/%d/join", gid), nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "requested")

	assert.Equal(t, http.StatusForbidden, joiner.get("/api/groups/%d/requests", gid).Code)
	var pending struct {
		Requests []struct {
			ID     int64 `json:"id"`
			UserID int64 `json:"user_id"`
		} `json:"requests"`
	}
	decode(t, owner.get("/api/groups/%d/requests", gid), &pending)
	require.Len(t, pending.Requests, 1)
	assert.Equal(t, joiner.id, pending.Requests[0].UserID)

	w = owner.post(fmt.Sprintf("/api/groups/%d/requests/%d/approve", gid, pending.Requests[0].ID), nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), `"status":"approved"`)

	decode(t, joiner.get("/api/groups/%d", gid), &detail)
	assert.Equal(t, "member", detail.Role)
	assert.Len(t, detail.Members, 2)

	w = owner.do(http.MethodPut, fmt.Sprintf("/api/groups/%d/members/%d/role", gid, joiner.id), map[string]string{"role": "moderator"})
	require.Equal(t, http.StatusOK, w.Code)
	w = joiner.do(http.MethodPut, fmt.Sprintf("/api/groups/%d/members/%d/role", gid, owner.id), map[string]string{"role": "member"})
	assert.Equal(t, http.StatusForbidden, w.Code)

	w = owner.do(http.MethodPut, fmt.Sprintf("/api/groups/%d", gid), map[string]string{"post_permission": "admins"})
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), `"post_permission":"admins"`)

	w = joiner.post(fmt.Sprintf("/api/groups/%d/posts", gid), map[string]string{"content": "hello"})
	assert.Equal(t, http.StatusForbidden, w.Code)
	w = owner.post(fmt.Sprintf("/api/groups/%d/posts", gid), map[string]string{"content": "rules"})
	require.Equal(t, http.StatusCreated, w.Code)

	var posts struct {
		Posts []interface{} `json:"posts"`
	}
	decode(t, joiner.get("/api/groups/%d/posts", gid), &posts)
	assert.Len(t, posts.Posts, 1)

	w = owner.post(fmt.Sprintf("/api/groups/%d/leave", gid), nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), `"group_deleted":true`)
	assert.Equal(t, http.StatusNotFound, joiner.get("/api/groups/%d", gid).Code)
}

func TestGroupTransferAndRemove(t *testing.T) {
	s := newServer(t)
	owner := s.register(t, "owner")
	heir := s.register(t, "heir")
	member := s.register(t, "member")

	gid := createGroup(t, owner, map[string]string{"name": "Readers"})
	require.Equal(t, http.StatusOK, heir.post(fmt.Sprintf("/api/groups/%d/join", gid), nil).Code)
	require.Equal(t, http.StatusOK, member.post(fmt.Sprintf("/api/groups/%d/join", gid), nil).Code)

	assert.Equal(t, http.StatusBadRequest, owner.post(fmt.Sprintf("/api/groups/%d/transfer/%d", gid, owner.id), nil).Code)
	require.Equal(t, http.StatusOK, owner.post(fmt.Sprintf("/api/groups/%d/transfer/%d", gid, heir.id), nil).Code)

	var detail struct {
		Role  string `json:"role"`
		Group struct {
			CreatorID int64 `json:"creator_id"`
		} `json:"group"`
	}
	decode(t, heir.get("/api/groups/%d", gid), &detail)
	assert.Equal(t, "admin", detail.Role)
	assert.Equal(t, heir.id, detail.Group.CreatorID)

	w := owner.do(http.MethodDelete, fmt.Sprintf("/api/groups/%d/members/%d", gid, member.id), nil)
	assert.Equal(t, http.StatusForbidden, w.Code)
	w = heir.do(http.MethodDelete, fmt.Sprintf("/api/groups/%d/members/%d", gid, member.id), nil)
	require.Equal(t, http.StatusOK, w.Code)

	var list struct {
		Groups []interface{} `json:"groups"`
	}
	decode(t, member.get("/api/groups"), &list)
	assert.Len(t, list.Groups, 1, "public group still listed")
}
