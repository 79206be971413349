package project

import (
	"context"
	"strings"
	"time"

	"log/slog"

	"github.com/google/uuid"

	"github.com/taskflow/taskflow/internal/authz"
	"github.com/taskflow/taskflow/internal/domain"
	"github.com/taskflow/taskflow/internal/repository"
	"github.com/taskflow/taskflow/internal/service/events"
	"github.com/taskflow/taskflow/internal/service/task"
)

// Service orchestrates project mutations: load, authorize, persist,
// broadcast to the project's scope.
type Service struct {
	projects repository.ProjectRepository
	tasks    repository.TaskRepository
	teams    repository.TeamRepository
	users    repository.UserRepository
	events   events.Publisher
	logger   *slog.Logger
}

// New returns a project service.
func New(projects repository.ProjectRepository, tasks repository.TaskRepository, teams repository.TeamRepository, users repository.UserRepository, publisher events.Publisher, logger *slog.Logger) Service {
	return Service{projects: projects, tasks: tasks, teams: teams, users: users, events: publisher, logger: logger}
}

// CreateInput encapsulates project creation attributes.
type CreateInput struct {
	Name        string     `json:"name"`
	Description string     `json:"description"`
	TeamID      *string    `json:"team"`
	Status      string     `json:"status"`
	Priority    string     `json:"priority"`
	StartDate   *time.Time `json:"startDate"`
	EndDate     *time.Time `json:"endDate"`
	Tags        []string   `json:"tags"`
}

// UpdateInput carries the fields a project update may change; nil means keep.
type UpdateInput struct {
	Name        *string    `json:"name"`
	Description *string    `json:"description"`
	Status      *string    `json:"status"`
	Priority    *string    `json:"priority"`
	StartDate   *time.Time `json:"startDate"`
	EndDate     *time.Time `json:"endDate"`
	Tags        []string   `json:"tags"`
}

// Create stores a new project owned by the actor and broadcasts
// project-created.
func (s Service) Create(ctx context.Context, actorID string, input CreateInput) (*domain.ProjectView, error) {
	name := strings.TrimSpace(input.Name)
	if name == "" {
		return nil, domain.Invalid("name", "is required")
	}
	if len(name) > 100 {
		return nil, domain.Invalid("name", "cannot be more than 100 characters")
	}
	if len(input.Description) > 500 {
		return nil, domain.Invalid("description", "cannot be more than 500 characters")
	}
	status := domain.ProjectPlanning
	if input.Status != "" {
		status = domain.ProjectStatus(input.Status)
		if !status.Valid() {
			return nil, domain.Invalid("status", "unknown value")
		}
	}
	priority := domain.PriorityMedium
	if input.Priority != "" {
		priority = domain.Priority(input.Priority)
		if !priority.Valid() {
			return nil, domain.Invalid("priority", "unknown value")
		}
	}
	if input.TeamID != nil {
		if _, err := s.teams.GetTeamByID(ctx, *input.TeamID); err != nil {
			return nil, err
		}
	}
	now := time.Now().UTC()
	project := &domain.Project{
		ID:          uuid.NewString(),
		Name:        name,
		Description: strings.TrimSpace(input.Description),
		OwnerID:     actorID,
		TeamID:      input.TeamID,
		Status:      status,
		Priority:    priority,
		StartDate:   input.StartDate,
		EndDate:     input.EndDate,
		Tags:        input.Tags,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	if err := s.projects.CreateProject(ctx, project); err != nil {
		return nil, err
	}
	view, err := s.toView(ctx, project, false)
	if err != nil {
		return nil, err
	}
	s.events.Publish(domain.Event{Type: domain.EventProjectCreated, Scope: project.ID, Data: view})
	s.logger.Info("project created", "project_id", project.ID, "user_id", actorID)
	return view, nil
}

// Get returns a project with its task list; owner or member only.
func (s Service) Get(ctx context.Context, actorID, id string) (*domain.ProjectView, error) {
	project, err := s.projects.GetProjectByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if !authz.CanAccessProject(actorID, project) {
		return nil, domain.ErrForbidden
	}
	return s.toView(ctx, project, true)
}

// List returns projects the actor owns or belongs to, newest first.
func (s Service) List(ctx context.Context, actorID string) ([]domain.ProjectView, error) {
	projects, err := s.projects.ListProjectsByUser(ctx, actorID)
	if err != nil {
		return nil, err
	}
	views := make([]domain.ProjectView, 0, len(projects))
	for i := range projects {
		view, err := s.toView(ctx, &projects[i], false)
		if err != nil {
			return nil, err
		}
		views = append(views, *view)
	}
	return views, nil
}

// Update applies field changes under the project row lock and broadcasts
// project-updated. Owner or member may update.
func (s Service) Update(ctx context.Context, actorID, id string, input UpdateInput) (*domain.ProjectView, error) {
	project, err := s.projects.MutateProject(ctx, id, func(project *domain.Project) error {
		if !authz.CanMutateProject(actorID, project) {
			return domain.ErrForbidden
		}
		if input.Name != nil {
			name := strings.TrimSpace(*input.Name)
			if name == "" {
				return domain.Invalid("name", "is required")
			}
			if len(name) > 100 {
				return domain.Invalid("name", "cannot be more than 100 characters")
			}
			project.Name = name
		}
		if input.Description != nil {
			if len(*input.Description) > 500 {
				return domain.Invalid("description", "cannot be more than 500 characters")
			}
			project.Description = strings.TrimSpace(*input.Description)
		}
		if input.Status != nil {
			status := domain.ProjectStatus(*input.Status)
			if !status.Valid() {
				return domain.Invalid("status", "unknown value")
			}
			project.Status = status
		}
		if input.Priority != nil {
			priority := domain.Priority(*input.Priority)
			if !priority.Valid() {
				return domain.Invalid("priority", "unknown value")
			}
			project.Priority = priority
		}
		if input.StartDate != nil {
			project.StartDate = input.StartDate
		}
		if input.EndDate != nil {
			project.EndDate = input.EndDate
		}
		if input.Tags != nil {
			project.Tags = input.Tags
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	view, err := s.toView(ctx, project, false)
	if err != nil {
		return nil, err
	}
	s.events.Publish(domain.Event{Type: domain.EventProjectUpdated, Scope: project.ID, Data: view})
	s.logger.Info("project updated", "project_id", project.ID, "user_id", actorID)
	return view, nil
}

// Delete removes the project and every task under it, then broadcasts
// project-deleted. Owner only; the cascade commits atomically.
func (s Service) Delete(ctx context.Context, actorID, id string) error {
	err := s.projects.DeleteProject(ctx, id, func(project *domain.Project) error {
		if !authz.CanAdministerProject(actorID, project) {
			return domain.ErrForbidden
		}
		return nil
	})
	if err != nil {
		return err
	}
	s.events.Publish(domain.Event{Type: domain.EventProjectDeleted, Scope: id, Data: map[string]string{"id": id}})
	s.logger.Info("project deleted", "project_id", id, "user_id", actorID)
	return nil
}

// AddMember appends a user to the member set and broadcasts project-updated.
// Owner only; duplicates yield Conflict and leave membership unchanged.
func (s Service) AddMember(ctx context.Context, actorID, projectID, userID string) (*domain.ProjectView, error) {
	if userID == "" {
		return nil, domain.Invalid("userId", "is required")
	}
	if _, err := s.users.GetUserByID(ctx, userID); err != nil {
		return nil, err
	}
	project, err := s.projects.AddProjectMember(ctx, projectID, userID, func(project *domain.Project) error {
		if !authz.CanAdministerProject(actorID, project) {
			return domain.ErrForbidden
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	view, err := s.toView(ctx, project, false)
	if err != nil {
		return nil, err
	}
	s.events.Publish(domain.Event{Type: domain.EventProjectUpdated, Scope: project.ID, Data: view})
	s.logger.Info("project member added", "project_id", project.ID, "member_id", userID, "user_id", actorID)
	return view, nil
}

func (s Service) toView(ctx context.Context, project *domain.Project, includeTasks bool) (*domain.ProjectView, error) {
	var tasks []domain.Task
	if includeTasks {
		var err error
		tasks, err = s.tasks.ListTasksByProject(ctx, project.ID)
		if err != nil {
			return nil, err
		}
	}

	ids := make([]string, 0)
	seen := make(map[string]struct{})
	collect := func(id string) {
		if id == "" {
			return
		}
		if _, ok := seen[id]; ok {
			return
		}
		seen[id] = struct{}{}
		ids = append(ids, id)
	}
	collect(project.OwnerID)
	for _, id := range project.MemberIDs {
		collect(id)
	}
	for _, t := range tasks {
		collect(t.CreatedBy)
		if t.AssignedTo != nil {
			collect(*t.AssignedTo)
		}
		for _, c := range t.Comments {
			collect(c.AuthorID)
		}
	}
	users, err := s.users.ListUsersByIDs(ctx, ids)
	if err != nil {
		return nil, err
	}
	byID := make(map[string]domain.User, len(users))
	for _, u := range users {
		byID[u.ID] = u
	}

	view := &domain.ProjectView{
		ID:          project.ID,
		Name:        project.Name,
		Description: project.Description,
		Owner:       userRef(project.OwnerID, byID),
		Members:     make([]domain.UserRef, 0, len(project.MemberIDs)),
		Status:      project.Status,
		Priority:    project.Priority,
		StartDate:   project.StartDate,
		EndDate:     project.EndDate,
		Tags:        project.Tags,
		CreatedAt:   project.CreatedAt,
		UpdatedAt:   project.UpdatedAt,
	}
	for _, id := range project.MemberIDs {
		view.Members = append(view.Members, userRef(id, byID))
	}
	if project.TeamID != nil {
		team, err := s.teams.GetTeamByID(ctx, *project.TeamID)
		if err == nil {
			view.Team = &domain.TeamRef{ID: team.ID, Name: team.Name}
		}
	}
	if includeTasks {
		view.Tasks = make([]domain.TaskView, 0, len(tasks))
		for _, t := range tasks {
			view.Tasks = append(view.Tasks, task.BuildView(t, byID))
		}
	}
	return view, nil
}

func userRef(id string, usersByID map[string]domain.User) domain.UserRef {
	if u, ok := usersByID[id]; ok {
		return u.Ref()
	}
	return domain.UserRef{ID: id}
}
