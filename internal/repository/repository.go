package repository

import (
	"context"

	"github.com/taskflow/taskflow/internal/domain"
)

// Mutation targets are passed precondition closures that the store runs
// against freshly loaded, write-locked state inside the same transaction as
// the write. A closure returning an error aborts the mutation with that
// error; this is what keeps authorize-then-persist atomic with respect to
// concurrent mutators of the same entity.

// UserRepository persists users.
type UserRepository interface {
	CreateUser(ctx context.Context, user *domain.User) error
	GetUserByEmail(ctx context.Context, email string) (*domain.User, error)
	GetUserByID(ctx context.Context, id string) (*domain.User, error)
	ListUsers(ctx context.Context) ([]domain.User, error)
	ListUsersByIDs(ctx context.Context, ids []string) ([]domain.User, error)
}

// TeamRepository manages teams and memberships.
type TeamRepository interface {
	// CreateTeam inserts the team and its initial owner membership in one
	// transaction.
	CreateTeam(ctx context.Context, team *domain.Team, owner *domain.TeamMember) error
	GetTeamByID(ctx context.Context, id string) (*domain.Team, error)
	ListTeamsByUser(ctx context.Context, userID string) ([]domain.Team, error)
	MutateTeam(ctx context.Context, id string, apply func(*domain.Team) error) (*domain.Team, error)
	DeleteTeam(ctx context.Context, id string, precondition func(*domain.Team) error) error
	// AddTeamMember appends the membership after the precondition passes on
	// the locked team row; a duplicate member yields domain.ErrConflict.
	AddTeamMember(ctx context.Context, member *domain.TeamMember, precondition func(*domain.Team) error) (*domain.Team, error)
}

// ProjectRepository persists projects and their member sets.
type ProjectRepository interface {
	CreateProject(ctx context.Context, project *domain.Project) error
	GetProjectByID(ctx context.Context, id string) (*domain.Project, error)
	ListProjectsByUser(ctx context.Context, userID string) ([]domain.Project, error)
	MutateProject(ctx context.Context, id string, apply func(*domain.Project) error) (*domain.Project, error)
	// DeleteProject removes the project and every task under it in one
	// transaction; either all rows go or none do.
	DeleteProject(ctx context.Context, id string, precondition func(*domain.Project) error) error
	// AddProjectMember appends userID after the precondition passes; a
	// duplicate (including the owner) yields domain.ErrConflict.
	AddProjectMember(ctx context.Context, projectID, userID string, precondition func(*domain.Project) error) (*domain.Project, error)
}

// TaskFilter narrows task listings.
type TaskFilter struct {
	ProjectID  string
	Status     string
	AssignedTo string
	// VisibleTo limits results to projects the user owns or belongs to.
	// Ignored when ProjectID is set.
	VisibleTo string
}

// TaskRepository persists tasks and their comment lists.
type TaskRepository interface {
	// CreateTask inserts the task after the precondition passes on the
	// locked parent project.
	CreateTask(ctx context.Context, task *domain.Task, precondition func(*domain.Project) error) error
	GetTaskByID(ctx context.Context, id string) (*domain.Task, error)
	ListTasks(ctx context.Context, filter TaskFilter) ([]domain.Task, error)
	ListTasksByProject(ctx context.Context, projectID string) ([]domain.Task, error)
	MutateTask(ctx context.Context, id string, apply func(*domain.Task, *domain.Project) error) (*domain.Task, error)
	DeleteTask(ctx context.Context, id string, precondition func(*domain.Task, *domain.Project) error) error
	// AppendComment adds the comment after the precondition passes; comments
	// are append-only and keep their commit order.
	AppendComment(ctx context.Context, comment *domain.Comment, precondition func(*domain.Task, *domain.Project) error) (*domain.Task, error)
}
