package rolesync

import "example.com/planboard/internal/model"

// Externally-visible role names. These four constitute the managed role
// universe: nothing outside it is ever read for diffing or written.
const (
	RealmRoleSuperAdmin      = "app_super_admin"
	RealmRoleWorkspaceViewer = "app_workspace_viewer"
	RealmRoleWorkspaceEditor = "app_workspace_editor"
	RealmRoleWorkspaceAdmin  = "app_workspace_admin"
)

var workspaceRoleMap = map[model.Role]string{
	model.RoleViewer: RealmRoleWorkspaceViewer,
	model.RoleEditor: RealmRoleWorkspaceEditor,
	model.RoleAdmin:  RealmRoleWorkspaceAdmin,
}

// Managed returns the bounded universe of realm role names this service is
// permitted to create, assign, and revoke.
func Managed() []string {
	return []string{
		RealmRoleSuperAdmin,
		RealmRoleWorkspaceViewer,
		RealmRoleWorkspaceEditor,
		RealmRoleWorkspaceAdmin,
	}
}

// DesiredRoles maps a user's internal role snapshot to the realm role set
// they should hold.
func DesiredRoles(snap model.RoleSnapshot) []string {
	seen := map[string]bool{}
	var out []string
	if snap.IsSuperAdmin {
		seen[RealmRoleSuperAdmin] = true
		out = append(out, RealmRoleSuperAdmin)
	}
	for _, r := range snap.WorkspaceRoles {
		name, ok := workspaceRoleMap[r]
		if !ok || seen[name] {
			continue
		}
		seen[name] = true
		out = append(out, name)
	}
	return out
}
