// Package memory holds a process-local implementation of the repository
// interfaces. It mirrors the transactional semantics of the postgres store:
// precondition and apply closures run under the store lock against current
// state, so tests exercise the same authorize-then-persist path as
// production.
package memory

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/taskflow/taskflow/internal/domain"
	"github.com/taskflow/taskflow/internal/repository"
)

// Store keeps every entity in maps guarded by one mutex.
type Store struct {
	mu       sync.Mutex
	users    map[string]domain.User
	teams    map[string]domain.Team
	projects map[string]domain.Project
	tasks    map[string]domain.Task
}

var (
	_ repository.UserRepository    = (*Store)(nil)
	_ repository.TeamRepository    = (*Store)(nil)
	_ repository.ProjectRepository = (*Store)(nil)
	_ repository.TaskRepository    = (*Store)(nil)
)

// NewStore returns an empty store.
func NewStore() *Store {
	return &Store{
		users:    make(map[string]domain.User),
		teams:    make(map[string]domain.Team),
		projects: make(map[string]domain.Project),
		tasks:    make(map[string]domain.Task),
	}
}

// CreateUser inserts the user; a duplicate email yields Conflict.
func (s *Store) CreateUser(ctx context.Context, user *domain.User) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, u := range s.users {
		if u.Email == user.Email {
			return domain.ErrConflict
		}
	}
	s.users[user.ID] = *user
	return nil
}

func (s *Store) GetUserByEmail(ctx context.Context, email string) (*domain.User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, u := range s.users {
		if u.Email == email {
			out := u
			return &out, nil
		}
	}
	return nil, domain.ErrNotFound
}

func (s *Store) GetUserByID(ctx context.Context, id string) (*domain.User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	u, ok := s.users[id]
	if !ok {
		return nil, domain.ErrNotFound
	}
	out := u
	return &out, nil
}

func (s *Store) ListUsers(ctx context.Context) ([]domain.User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]domain.User, 0, len(s.users))
	for _, u := range s.users {
		out = append(out, u)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out, nil
}

func (s *Store) ListUsersByIDs(ctx context.Context, ids []string) ([]domain.User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]domain.User, 0, len(ids))
	for _, id := range ids {
		if u, ok := s.users[id]; ok {
			out = append(out, u)
		}
	}
	return out, nil
}

// CreateTeam inserts the team together with its initial membership.
func (s *Store) CreateTeam(ctx context.Context, team *domain.Team, owner *domain.TeamMember) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	stored := cloneTeam(*team)
	stored.Members = []domain.TeamMember{*owner}
	s.teams[team.ID] = stored
	return nil
}

func (s *Store) GetTeamByID(ctx context.Context, id string) (*domain.Team, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.getTeamLocked(id)
}

func (s *Store) getTeamLocked(id string) (*domain.Team, error) {
	t, ok := s.teams[id]
	if !ok {
		return nil, domain.ErrNotFound
	}
	out := cloneTeam(t)
	out.ProjectIDs = nil
	for _, p := range s.projects {
		if p.TeamID != nil && *p.TeamID == id {
			out.ProjectIDs = append(out.ProjectIDs, p.ID)
		}
	}
	sort.Strings(out.ProjectIDs)
	return &out, nil
}

func (s *Store) ListTeamsByUser(ctx context.Context, userID string) ([]domain.Team, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]domain.Team, 0)
	for id, t := range s.teams {
		if t.OwnerID == userID || t.HasMember(userID) {
			loaded, _ := s.getTeamLocked(id)
			out = append(out, *loaded)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	return out, nil
}

func (s *Store) MutateTeam(ctx context.Context, id string, apply func(*domain.Team) error) (*domain.Team, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	team, err := s.getTeamLocked(id)
	if err != nil {
		return nil, err
	}
	if err := apply(team); err != nil {
		return nil, err
	}
	team.UpdatedAt = time.Now().UTC()
	s.teams[id] = cloneTeam(*team)
	out := cloneTeam(*team)
	return &out, nil
}

func (s *Store) DeleteTeam(ctx context.Context, id string, precondition func(*domain.Team) error) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	team, err := s.getTeamLocked(id)
	if err != nil {
		return err
	}
	if err := precondition(team); err != nil {
		return err
	}
	for pid, p := range s.projects {
		if p.TeamID != nil && *p.TeamID == id {
			p.TeamID = nil
			s.projects[pid] = p
		}
	}
	delete(s.teams, id)
	return nil
}

func (s *Store) AddTeamMember(ctx context.Context, member *domain.TeamMember, precondition func(*domain.Team) error) (*domain.Team, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	team, err := s.getTeamLocked(member.TeamID)
	if err != nil {
		return nil, err
	}
	if err := precondition(team); err != nil {
		return nil, err
	}
	if team.HasMember(member.UserID) {
		return nil, domain.ErrConflict
	}
	team.Members = append(team.Members, *member)
	team.UpdatedAt = time.Now().UTC()
	s.teams[team.ID] = cloneTeam(*team)
	out := cloneTeam(*team)
	return &out, nil
}

func (s *Store) CreateProject(ctx context.Context, project *domain.Project) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.projects[project.ID] = cloneProject(*project)
	return nil
}

func (s *Store) GetProjectByID(ctx context.Context, id string) (*domain.Project, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	p, ok := s.projects[id]
	if !ok {
		return nil, domain.ErrNotFound
	}
	out := cloneProject(p)
	return &out, nil
}

func (s *Store) ListProjectsByUser(ctx context.Context, userID string) ([]domain.Project, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]domain.Project, 0)
	for _, p := range s.projects {
		if p.OwnerID == userID || p.HasMember(userID) {
			out = append(out, cloneProject(p))
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	return out, nil
}

func (s *Store) MutateProject(ctx context.Context, id string, apply func(*domain.Project) error) (*domain.Project, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	p, ok := s.projects[id]
	if !ok {
		return nil, domain.ErrNotFound
	}
	project := cloneProject(p)
	if err := apply(&project); err != nil {
		return nil, err
	}
	project.UpdatedAt = time.Now().UTC()
	s.projects[id] = cloneProject(project)
	out := cloneProject(project)
	return &out, nil
}

func (s *Store) DeleteProject(ctx context.Context, id string, precondition func(*domain.Project) error) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	p, ok := s.projects[id]
	if !ok {
		return domain.ErrNotFound
	}
	project := cloneProject(p)
	if err := precondition(&project); err != nil {
		return err
	}
	for tid, t := range s.tasks {
		if t.ProjectID == id {
			delete(s.tasks, tid)
		}
	}
	delete(s.projects, id)
	return nil
}

func (s *Store) AddProjectMember(ctx context.Context, projectID, userID string, precondition func(*domain.Project) error) (*domain.Project, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	p, ok := s.projects[projectID]
	if !ok {
		return nil, domain.ErrNotFound
	}
	project := cloneProject(p)
	if err := precondition(&project); err != nil {
		return nil, err
	}
	if project.OwnerID == userID || project.HasMember(userID) {
		return nil, domain.ErrConflict
	}
	project.MemberIDs = append(project.MemberIDs, userID)
	project.UpdatedAt = time.Now().UTC()
	s.projects[projectID] = cloneProject(project)
	out := cloneProject(project)
	return &out, nil
}

func (s *Store) CreateTask(ctx context.Context, task *domain.Task, precondition func(*domain.Project) error) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	p, ok := s.projects[task.ProjectID]
	if !ok {
		return domain.ErrNotFound
	}
	project := cloneProject(p)
	if err := precondition(&project); err != nil {
		return err
	}
	s.tasks[task.ID] = cloneTask(*task)
	return nil
}

func (s *Store) GetTaskByID(ctx context.Context, id string) (*domain.Task, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	t, ok := s.tasks[id]
	if !ok {
		return nil, domain.ErrNotFound
	}
	out := cloneTask(t)
	return &out, nil
}

func (s *Store) ListTasks(ctx context.Context, filter repository.TaskFilter) ([]domain.Task, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]domain.Task, 0)
	for _, t := range s.tasks {
		if filter.ProjectID != "" && t.ProjectID != filter.ProjectID {
			continue
		}
		if filter.ProjectID == "" && filter.VisibleTo != "" {
			p, ok := s.projects[t.ProjectID]
			if !ok {
				continue
			}
			if p.OwnerID != filter.VisibleTo && !p.HasMember(filter.VisibleTo) {
				continue
			}
		}
		if filter.Status != "" && string(t.Status) != filter.Status {
			continue
		}
		if filter.AssignedTo != "" && (t.AssignedTo == nil || *t.AssignedTo != filter.AssignedTo) {
			continue
		}
		out = append(out, cloneTask(t))
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	return out, nil
}

func (s *Store) ListTasksByProject(ctx context.Context, projectID string) ([]domain.Task, error) {
	tasks, err := s.ListTasks(ctx, repository.TaskFilter{ProjectID: projectID})
	if err != nil {
		return nil, err
	}
	// Embedded task lists read oldest first.
	sort.Slice(tasks, func(i, j int) bool { return tasks[i].CreatedAt.Before(tasks[j].CreatedAt) })
	return tasks, nil
}

func (s *Store) MutateTask(ctx context.Context, id string, apply func(*domain.Task, *domain.Project) error) (*domain.Task, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	t, ok := s.tasks[id]
	if !ok {
		return nil, domain.ErrNotFound
	}
	task := cloneTask(t)
	p, ok := s.projects[task.ProjectID]
	if !ok {
		return nil, domain.ErrNotFound
	}
	project := cloneProject(p)
	if err := apply(&task, &project); err != nil {
		return nil, err
	}
	task.UpdatedAt = time.Now().UTC()
	s.tasks[id] = cloneTask(task)
	out := cloneTask(task)
	return &out, nil
}

func (s *Store) DeleteTask(ctx context.Context, id string, precondition func(*domain.Task, *domain.Project) error) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	t, ok := s.tasks[id]
	if !ok {
		return domain.ErrNotFound
	}
	task := cloneTask(t)
	p, ok := s.projects[task.ProjectID]
	if !ok {
		return domain.ErrNotFound
	}
	project := cloneProject(p)
	if err := precondition(&task, &project); err != nil {
		return err
	}
	delete(s.tasks, id)
	return nil
}

func (s *Store) AppendComment(ctx context.Context, comment *domain.Comment, precondition func(*domain.Task, *domain.Project) error) (*domain.Task, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	t, ok := s.tasks[comment.TaskID]
	if !ok {
		return nil, domain.ErrNotFound
	}
	task := cloneTask(t)
	p, ok := s.projects[task.ProjectID]
	if !ok {
		return nil, domain.ErrNotFound
	}
	project := cloneProject(p)
	if err := precondition(&task, &project); err != nil {
		return nil, err
	}
	task.Comments = append(task.Comments, *comment)
	task.UpdatedAt = time.Now().UTC()
	s.tasks[task.ID] = cloneTask(task)
	out := cloneTask(task)
	return &out, nil
}

func cloneProject(p domain.Project) domain.Project {
	p.MemberIDs = append([]string(nil), p.MemberIDs...)
	p.Tags = append([]string(nil), p.Tags...)
	return p
}

func cloneTask(t domain.Task) domain.Task {
	t.Tags = append([]string(nil), t.Tags...)
	t.Comments = append([]domain.Comment(nil), t.Comments...)
	return t
}

func cloneTeam(t domain.Team) domain.Team {
	t.Members = append([]domain.TeamMember(nil), t.Members...)
	t.ProjectIDs = append([]string(nil), t.ProjectIDs...)
	return t
}
