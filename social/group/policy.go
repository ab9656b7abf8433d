package group

import "github.com/kasuganosora/socialgraph/model"

// CanPost reports whether a member with role may post under policy.
func CanPost(policy, role string) bool {
	switch policy {
	case model.PermAll:
		return model.RoleRank(role) >= model.RoleRank(model.GroupRoleMember)
	case model.PermModerators:
		return model.RoleRank(role) >= model.RoleRank(model.GroupRoleModerator)
	case model.PermAdmins:
		return role == model.GroupRoleAdmin
	}
	return false
}

// CanResolveRequest reports whether a member with role may approve or
// reject join requests under policy. PermAll is not a valid request policy.
func CanResolveRequest(policy, role string) bool {
	switch policy {
	case model.PermModerators:
		return model.RoleRank(role) >= model.RoleRank(model.GroupRoleModerator)
	case model.PermAdmins:
		return role == model.GroupRoleAdmin
	}
	return false
}

func validVisibility(v string) bool {
	return v == model.GroupPublic || v == model.GroupPrivate
}

func validPostPolicy(p string) bool {
	return p == model.PermAll || p == model.PermModerators || p == model.PermAdmins
}

func validRequestPolicy(p string) bool {
	return p == model.PermModerators || p == model.PermAdmins
}

func validRole(r string) bool {
	return model.RoleRank(r) > 0
}
