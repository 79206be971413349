package domain

import "time"

// TeamRole describes a member's rights within a team.
type TeamRole string

const (
	TeamRoleMember TeamRole = "member"
	TeamRoleAdmin  TeamRole = "admin"
)

// Valid reports whether the role is a known team role.
func (r TeamRole) Valid() bool {
	return r == TeamRoleMember || r == TeamRoleAdmin
}

// Team represents a collaborative group of users.
type Team struct {
	ID          string
	Name        string
	Description string
	OwnerID     string
	Members     []TeamMember
	ProjectIDs  []string
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

// TeamMember links a user to a team with a role.
type TeamMember struct {
	TeamID   string
	UserID   string
	Role     TeamRole
	JoinedAt time.Time
}

// HasMember reports whether the user appears in the member list.
func (t *Team) HasMember(userID string) bool {
	for _, m := range t.Members {
		if m.UserID == userID {
			return true
		}
	}
	return false
}

// MemberRole returns the member's role, or empty when not a member.
func (t *Team) MemberRole(userID string) TeamRole {
	for _, m := range t.Members {
		if m.UserID == userID {
			return m.Role
		}
	}
	return ""
}
