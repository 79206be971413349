package team

import (
	"context"
	"strings"
	"time"

	"log/slog"

	"github.com/google/uuid"

	"github.com/taskflow/taskflow/internal/authz"
	"github.com/taskflow/taskflow/internal/domain"
	"github.com/taskflow/taskflow/internal/repository"
)

// Service orchestrates team mutations. Team operations are not broadcast;
// only project-scoped entities carry live events.
type Service struct {
	teams    repository.TeamRepository
	projects repository.ProjectRepository
	users    repository.UserRepository
	logger   *slog.Logger
}

// New returns a team service.
func New(teams repository.TeamRepository, projects repository.ProjectRepository, users repository.UserRepository, logger *slog.Logger) Service {
	return Service{teams: teams, projects: projects, users: users, logger: logger}
}

// CreateInput encapsulates team creation attributes.
type CreateInput struct {
	Name        string `json:"name"`
	Description string `json:"description"`
}

// UpdateInput carries the fields a team update may change; nil means keep.
type UpdateInput struct {
	Name        *string `json:"name"`
	Description *string `json:"description"`
}

// AddMemberInput names the user to add and an optional role.
type AddMemberInput struct {
	UserID string `json:"userId"`
	Role   string `json:"role"`
}

// Create stores a new team with the actor as owner and initial admin member.
func (s Service) Create(ctx context.Context, actorID string, input CreateInput) (*domain.TeamView, error) {
	name := strings.TrimSpace(input.Name)
	if name == "" {
		return nil, domain.Invalid("name", "is required")
	}
	if len(name) > 50 {
		return nil, domain.Invalid("name", "cannot be more than 50 characters")
	}
	if len(input.Description) > 200 {
		return nil, domain.Invalid("description", "cannot be more than 200 characters")
	}
	now := time.Now().UTC()
	team := &domain.Team{
		ID:          uuid.NewString(),
		Name:        name,
		Description: strings.TrimSpace(input.Description),
		OwnerID:     actorID,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	owner := &domain.TeamMember{
		TeamID:   team.ID,
		UserID:   actorID,
		Role:     domain.TeamRoleAdmin,
		JoinedAt: now,
	}
	if err := s.teams.CreateTeam(ctx, team, owner); err != nil {
		return nil, err
	}
	team.Members = []domain.TeamMember{*owner}
	s.logger.Info("team created", "team_id", team.ID, "user_id", actorID)
	return s.toView(ctx, team)
}

// Get returns a team; owner or member only.
func (s Service) Get(ctx context.Context, actorID, id string) (*domain.TeamView, error) {
	team, err := s.teams.GetTeamByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if !authz.CanAccessTeam(actorID, team) {
		return nil, domain.ErrForbidden
	}
	return s.toView(ctx, team)
}

// List returns teams the actor owns or belongs to.
func (s Service) List(ctx context.Context, actorID string) ([]domain.TeamView, error) {
	teams, err := s.teams.ListTeamsByUser(ctx, actorID)
	if err != nil {
		return nil, err
	}
	views := make([]domain.TeamView, 0, len(teams))
	for i := range teams {
		view, err := s.toView(ctx, &teams[i])
		if err != nil {
			return nil, err
		}
		views = append(views, *view)
	}
	return views, nil
}

// Update applies field changes under the team row lock. Owner only.
func (s Service) Update(ctx context.Context, actorID, id string, input UpdateInput) (*domain.TeamView, error) {
	team, err := s.teams.MutateTeam(ctx, id, func(team *domain.Team) error {
		if !authz.CanAdministerTeam(actorID, team) {
			return domain.ErrForbidden
		}
		if input.Name != nil {
			name := strings.TrimSpace(*input.Name)
			if name == "" {
				return domain.Invalid("name", "is required")
			}
			if len(name) > 50 {
				return domain.Invalid("name", "cannot be more than 50 characters")
			}
			team.Name = name
		}
		if input.Description != nil {
			if len(*input.Description) > 200 {
				return domain.Invalid("description", "cannot be more than 200 characters")
			}
			team.Description = strings.TrimSpace(*input.Description)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	s.logger.Info("team updated", "team_id", team.ID, "user_id", actorID)
	return s.toView(ctx, team)
}

// Delete removes the team; projects that referenced it are detached, not
// deleted. Owner only.
func (s Service) Delete(ctx context.Context, actorID, id string) error {
	err := s.teams.DeleteTeam(ctx, id, func(team *domain.Team) error {
		if !authz.CanAdministerTeam(actorID, team) {
			return domain.ErrForbidden
		}
		return nil
	})
	if err != nil {
		return err
	}
	s.logger.Info("team deleted", "team_id", id, "user_id", actorID)
	return nil
}

// AddMember appends a user to the team. Owner or an admin member may add;
// duplicates yield Conflict and leave membership unchanged.
func (s Service) AddMember(ctx context.Context, actorID, teamID string, input AddMemberInput) (*domain.TeamView, error) {
	if input.UserID == "" {
		return nil, domain.Invalid("userId", "is required")
	}
	role := domain.TeamRoleMember
	if input.Role != "" {
		role = domain.TeamRole(input.Role)
		if !role.Valid() {
			return nil, domain.Invalid("role", "unknown value")
		}
	}
	if _, err := s.users.GetUserByID(ctx, input.UserID); err != nil {
		return nil, err
	}
	member := &domain.TeamMember{
		TeamID:   teamID,
		UserID:   input.UserID,
		Role:     role,
		JoinedAt: time.Now().UTC(),
	}
	team, err := s.teams.AddTeamMember(ctx, member, func(team *domain.Team) error {
		if !authz.CanManageTeamMembers(actorID, team) {
			return domain.ErrForbidden
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	s.logger.Info("team member added", "team_id", teamID, "member_id", input.UserID, "user_id", actorID)
	return s.toView(ctx, team)
}

func (s Service) toView(ctx context.Context, team *domain.Team) (*domain.TeamView, error) {
	ids := make([]string, 0, len(team.Members)+1)
	seen := make(map[string]struct{})
	collect := func(id string) {
		if _, ok := seen[id]; ok {
			return
		}
		seen[id] = struct{}{}
		ids = append(ids, id)
	}
	collect(team.OwnerID)
	for _, m := range team.Members {
		collect(m.UserID)
	}
	users, err := s.users.ListUsersByIDs(ctx, ids)
	if err != nil {
		return nil, err
	}
	byID := make(map[string]domain.User, len(users))
	for _, u := range users {
		byID[u.ID] = u
	}

	view := &domain.TeamView{
		ID:          team.ID,
		Name:        team.Name,
		Description: team.Description,
		Owner:       userRef(team.OwnerID, byID),
		Members:     make([]domain.TeamMemberView, 0, len(team.Members)),
		CreatedAt:   team.CreatedAt,
		UpdatedAt:   team.UpdatedAt,
	}
	for _, m := range team.Members {
		view.Members = append(view.Members, domain.TeamMemberView{
			User:     userRef(m.UserID, byID),
			Role:     m.Role,
			JoinedAt: m.JoinedAt,
		})
	}
	for _, projectID := range team.ProjectIDs {
		ref := domain.ProjectRef{ID: projectID}
		if project, err := s.projects.GetProjectByID(ctx, projectID); err == nil {
			ref.Name = project.Name
		}
		view.Projects = append(view.Projects, ref)
	}
	return view, nil
}

func userRef(id string, usersByID map[string]domain.User) domain.UserRef {
	if u, ok := usersByID[id]; ok {
		return u.Ref()
	}
	return domain.UserRef{ID: id}
}
