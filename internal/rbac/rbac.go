// Package rbac holds the static role/resource/action permission matrix.
// The matrix is the single source of truth for authorization decisions;
// anything not listed is denied.
package rbac

import "strings"

// Role identifies the privilege level a membership grants within one
// company. A user can hold different roles in different companies.
type Role string

const (
	RoleSuperAdmin  Role = "super_admin"
	RoleAdmin       Role = "admin"
	RoleDeptManager Role = "dept_manager"
	RoleProjectLead Role = "project_lead"
	RoleEmployee    Role = "employee"
	RoleViewer      Role = "viewer"
)

// Roles lists all known roles ordered from broadest to narrowest privilege.
var Roles = []Role{
	RoleSuperAdmin,
	RoleAdmin,
	RoleDeptManager,
	RoleProjectLead,
	RoleEmployee,
	RoleViewer,
}

// Resource is a protected entity type.
type Resource string

const (
	ResourceCompany    Resource = "company"
	ResourceDepartment Resource = "department"
	ResourceProject    Resource = "project"
	ResourceTask       Resource = "task"
	ResourceDocument   Resource = "document"
)

// Resources lists all known resource types.
var Resources = []Resource{
	ResourceCompany,
	ResourceDepartment,
	ResourceProject,
	ResourceTask,
	ResourceDocument,
}

// Action is an operation performed on a resource.
type Action string

const (
	ActionView   Action = "view"
	ActionCreate Action = "create"
	ActionUpdate Action = "update"
	ActionDelete Action = "delete"
)

// Actions lists all known actions.
var Actions = []Action{ActionView, ActionCreate, ActionUpdate, ActionDelete}

type actionSet map[Action]struct{}

func grant(actions ...Action) actionSet {
	set := make(actionSet, len(actions))
	for _, a := range actions {
		set[a] = struct{}{}
	}
	return set
}

var (
	allActions = grant(ActionView, ActionCreate, ActionUpdate, ActionDelete)
	viewOnly   = grant(ActionView)
)

// matrix maps role -> resource -> allowed actions. Absence of a cell is a
// denial; department and project carry identical grants for every role.
var matrix = map[Role]map[Resource]actionSet{
	RoleSuperAdmin: {
		ResourceCompany:    allActions,
		ResourceDepartment: allActions,
		ResourceProject:    allActions,
		ResourceTask:       allActions,
		ResourceDocument:   allActions,
	},
	RoleAdmin: {
		// Admins manage an existing company but cannot create new ones.
		ResourceCompany:    grant(ActionView, ActionUpdate, ActionDelete),
		ResourceDepartment: allActions,
		ResourceProject:    allActions,
		ResourceTask:       allActions,
		ResourceDocument:   allActions,
	},
	RoleDeptManager: {
		ResourceCompany:    viewOnly,
		ResourceDepartment: viewOnly,
		ResourceProject:    viewOnly,
		ResourceTask:       grant(ActionCreate, ActionUpdate, ActionDelete),
		ResourceDocument:   grant(ActionCreate, ActionUpdate),
	},
	RoleProjectLead: {
		ResourceCompany:    viewOnly,
		ResourceDepartment: viewOnly,
		ResourceProject:    viewOnly,
		ResourceTask:       grant(ActionCreate, ActionUpdate, ActionDelete),
		ResourceDocument:   grant(ActionCreate, ActionUpdate),
	},
	RoleEmployee: {
		ResourceCompany:    viewOnly,
		ResourceDepartment: viewOnly,
		ResourceProject:    viewOnly,
		ResourceTask:       grant(ActionUpdate),
	},
	RoleViewer: {
		ResourceCompany:    viewOnly,
		ResourceDepartment: viewOnly,
		ResourceProject:    viewOnly,
		ResourceTask:       viewOnly,
		ResourceDocument:   viewOnly,
	},
}

// Allowed reports whether role may perform action on resource. Unknown
// roles, resources, actions, or combinations resolve to deny; the check
// never errors.
func Allowed(role Role, resource Resource, action Action) bool {
	perResource, ok := matrix[role]
	if !ok {
		return false
	}
	actions, ok := perResource[resource]
	if !ok {
		return false
	}
	_, ok = actions[action]
	return ok
}

// IsSuperAdmin reports whether role is exactly super_admin.
func IsSuperAdmin(role Role) bool {
	return role == RoleSuperAdmin
}

// IsAdmin reports whether role is super_admin or admin.
func IsAdmin(role Role) bool {
	return role == RoleSuperAdmin || role == RoleAdmin
}

// HasManagementRole reports whether role carries any management scope.
func HasManagementRole(role Role) bool {
	switch role {
	case RoleSuperAdmin, RoleAdmin, RoleDeptManager, RoleProjectLead:
		return true
	}
	return false
}

// ParseRole normalizes a wire value into a known role.
func ParseRole(s string) (Role, bool) {
	role := Role(strings.TrimSpace(strings.ToLower(s)))
	_, ok := matrix[role]
	return role, ok
}

// ParseResource normalizes a wire value into a known resource type.
func ParseResource(s string) (Resource, bool) {
	res := Resource(strings.TrimSpace(strings.ToLower(s)))
	for _, known := range Resources {
		if res == known {
			return res, true
		}
	}
	return res, false
}

// ParseAction normalizes a wire value into a known action.
func ParseAction(s string) (Action, bool) {
	action := Action(strings.TrimSpace(strings.ToLower(s)))
	for _, known := range Actions {
		if action == known {
			return action, true
		}
	}
	return action, false
}
