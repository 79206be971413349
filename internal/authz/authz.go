// Package authz decides whether an actor may read or change an entity.
// Every function is a pure predicate over loaded state: false means deny,
// never an error.
package authz

import "github.com/taskflow/taskflow/internal/domain"

// CanAccessProject reports whether the actor may read the project.
func CanAccessProject(actorID string, project *domain.Project) bool {
	return project.OwnerID == actorID || project.HasMember(actorID)
}

// CanMutateProject reports whether the actor may change project fields or
// create, update and delete tasks under it.
func CanMutateProject(actorID string, project *domain.Project) bool {
	return CanAccessProject(actorID, project)
}

// CanAdministerProject reports whether the actor may add members to or
// delete the project. Owner only.
func CanAdministerProject(actorID string, project *domain.Project) bool {
	return project.OwnerID == actorID
}

// CanAccessTask delegates to the task's parent project; tasks carry no
// independent ACL.
func CanAccessTask(actorID string, parent *domain.Project) bool {
	return CanAccessProject(actorID, parent)
}

// CanMutateTask delegates to the task's parent project.
func CanMutateTask(actorID string, parent *domain.Project) bool {
	return CanMutateProject(actorID, parent)
}

// CanAccessTeam reports whether the actor may read the team.
func CanAccessTeam(actorID string, team *domain.Team) bool {
	return team.OwnerID == actorID || team.HasMember(actorID)
}

// CanAdministerTeam reports whether the actor may update or delete the
// team. Owner only.
func CanAdministerTeam(actorID string, team *domain.Team) bool {
	return team.OwnerID == actorID
}

// CanManageTeamMembers reports whether the actor may add team members:
// the owner, or a member holding the admin role.
func CanManageTeamMembers(actorID string, team *domain.Team) bool {
	if team.OwnerID == actorID {
		return true
	}
	return team.MemberRole(actorID) == domain.TeamRoleAdmin
}
