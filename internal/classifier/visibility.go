package classifier

import "basegraph.app/activity/internal/model"

// Authorizer resolves a viewer's role in a project. Implementations must be
// side-effect free; a nil viewer is anonymous and has no role.
type Authorizer interface {
	RoleOf(viewer *model.User, projectID int64) model.Role
}

// Proper reports whether viewer may see the event. Only confidential issues
// restrict visibility; they are shown to the issue author, its assignees,
// admins and project members with at least developer access. A nil viewer is
// anonymous, and a nil auth is treated as "no memberships".
func Proper(e *model.Event, viewer *model.User, auth Authorizer) bool {
	issue, ok := e.Target.(*model.Issue)
	if !ok || !issue.Confidential {
		return true
	}
	if viewer == nil {
		return false
	}
	if viewer.Admin {
		return true
	}
	if viewer.ID == issue.AuthorID || issue.IsAssignee(viewer.ID) {
		return true
	}
	if auth == nil {
		return false
	}
	return auth.RoleOf(viewer, e.ProjectID).AtLeast(model.RoleDeveloper)
}

// Roster is an in-memory Authorizer: project ID -> user ID -> role.
type Roster map[int64]map[int64]model.Role

// Add records a role, replacing any earlier one.
func (r Roster) Add(projectID, userID int64, role model.Role) {
	members, ok := r[projectID]
	if !ok {
		members = make(map[int64]model.Role)
		r[projectID] = members
	}
	members[userID] = role
}

func (r Roster) RoleOf(viewer *model.User, projectID int64) model.Role {
	if viewer == nil {
		return model.RoleNone
	}
	return r[projectID][viewer.ID]
}
