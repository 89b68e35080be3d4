package model

// User is an actor: an event author or a feed viewer.
type User struct {
	ID       int64  `json:"id"`
	Username string `json:"username"`
	Name     string `json:"name"`
	Email    string `json:"email"`
	Admin    bool   `json:"admin"`
}

// Role is a user's access level in a project (GitLab access levels).
type Role int

const (
	RoleNone       Role = 0
	RoleGuest      Role = 10
	RoleReporter   Role = 20
	RoleDeveloper  Role = 30
	RoleMaintainer Role = 40
	RoleOwner      Role = 50
)

func (r Role) String() string {
	switch r {
	case RoleNone:
		return "none"
	case RoleGuest:
		return "guest"
	case RoleReporter:
		return "reporter"
	case RoleDeveloper:
		return "developer"
	case RoleMaintainer:
		return "maintainer"
	case RoleOwner:
		return "owner"
	default:
		return "unknown"
	}
}

func (r Role) AtLeast(min Role) bool {
	return r >= min
}

// Member is a user's role within one project.
type Member struct {
	ProjectID int64 `json:"project_id"`
	UserID    int64 `json:"user_id"`
	Role      Role  `json:"access_level"`
}
