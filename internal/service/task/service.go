package task

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
)

// Service orchestrates task mutations: load, authorize, persist, broadcast.
type Service struct {
	tasks    repository.TaskRepository
	projects repository.ProjectRepository
	users    repository.UserRepository
	events   events.Publisher
	logger   *slog.Logger
}

// New returns a task service.
func New(tasks repository.TaskRepository, projects repository.ProjectRepository, users repository.UserRepository, publisher events.Publisher, logger *slog.Logger) Service {
	return Service{tasks: tasks, projects: projects, users: users, events: publisher, logger: logger}
}

// CreateInput encapsulates task creation attributes.
type CreateInput struct {
	ProjectID   string     `json:"project"`
	Title       string     `json:"title"`
	Description string     `json:"description"`
	AssignedTo  *string    `json:"assignedTo"`
	Status      string     `json:"status"`
	Priority    string     `json:"priority"`
	DueDate     *time.Time `json:"dueDate"`
	Tags        []string   `json:"tags"`
}

// UpdateInput carries the fields a task update may change; nil means keep.
type UpdateInput struct {
	Title       *string    `json:"title"`
	Description *string    `json:"description"`
	AssignedTo  *string    `json:"assignedTo"`
	Status      *string    `json:"status"`
	Priority    *string    `json:"priority"`
	DueDate     *time.Time `json:"dueDate"`
	Tags        []string   `json:"tags"`
}

// ListFilter narrows task listings at the API boundary.
type ListFilter struct {
	ProjectID  string
	Status     string
	AssignedTo string
}

// Create stores a new task under the project and broadcasts task-created to
// the project's scope. The authorization check runs against the locked
// parent project inside the same transaction as the insert.
func (s Service) Create(ctx context.Context, actorID string, input CreateInput) (*domain.TaskView, error) {
	title := strings.TrimSpace(input.Title)
	if title == "" {
		return nil, domain.Invalid("title", "is required")
	}
	if len(title) > 200 {
		return nil, domain.Invalid("title", "cannot be more than 200 characters")
	}
	if len(input.Description) > 1000 {
		return nil, domain.Invalid("description", "cannot be more than 1000 characters")
	}
	if input.ProjectID == "" {
		return nil, domain.Invalid("project", "is required")
	}
	status := domain.TaskTodo
	if input.Status != "" {
		status = domain.TaskStatus(input.Status)
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
	now := time.Now().UTC()
	task := &domain.Task{
		ID:          uuid.NewString(),
		Title:       title,
		Description: strings.TrimSpace(input.Description),
		ProjectID:   input.ProjectID,
		AssignedTo:  input.AssignedTo,
		CreatedBy:   actorID,
		Status:      domain.TaskTodo,
		Priority:    priority,
		DueDate:     input.DueDate,
		Tags:        input.Tags,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	*task = domain.ApplyStatusChange(*task, status, now)

	err := s.tasks.CreateTask(ctx, task, func(project *domain.Project) error {
		if !authz.CanMutateProject(actorID, project) {
			return domain.ErrForbidden
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	view, err := s.toView(ctx, task)
	if err != nil {
		return nil, err
	}
	s.events.Publish(domain.Event{Type: domain.EventTaskCreated, Scope: task.ProjectID, Data: view})
	s.logger.Info("task created", "task_id", task.ID, "project_id", task.ProjectID, "user_id", actorID)
	return view, nil
}

// Get returns a task after checking the parent project's access rule.
func (s Service) Get(ctx context.Context, actorID, id string) (*domain.TaskView, error) {
	task, err := s.tasks.GetTaskByID(ctx, id)
	if err != nil {
		return nil, err
	}
	project, err := s.projects.GetProjectByID(ctx, task.ProjectID)
	if err != nil {
		return nil, err
	}
	if !authz.CanAccessTask(actorID, project) {
		return nil, domain.ErrForbidden
	}
	return s.toView(ctx, task)
}

// List returns tasks visible to the actor. When a project filter is given
// the actor must have access to that project.
func (s Service) List(ctx context.Context, actorID string, filter ListFilter) ([]domain.TaskView, error) {
	repoFilter := repository.TaskFilter{
		Status:     filter.Status,
		AssignedTo: filter.AssignedTo,
	}
	if filter.ProjectID != "" {
		project, err := s.projects.GetProjectByID(ctx, filter.ProjectID)
		if err != nil {
			return nil, err
		}
		if !authz.CanAccessProject(actorID, project) {
			return nil, domain.ErrForbidden
		}
		repoFilter.ProjectID = filter.ProjectID
	} else {
		repoFilter.VisibleTo = actorID
	}
	tasks, err := s.tasks.ListTasks(ctx, repoFilter)
	if err != nil {
		return nil, err
	}
	return s.toViews(ctx, tasks)
}

// Update applies the change under the project lock and broadcasts
// task-updated. Status transitions recompute completedAt.
func (s Service) Update(ctx context.Context, actorID, id string, input UpdateInput) (*domain.TaskView, error) {
	task, err := s.tasks.MutateTask(ctx, id, func(task *domain.Task, project *domain.Project) error {
		if !authz.CanMutateTask(actorID, project) {
			return domain.ErrForbidden
		}
		if input.Title != nil {
			title := strings.TrimSpace(*input.Title)
			if title == "" {
				return domain.Invalid("title", "is required")
			}
			if len(title) > 200 {
				return domain.Invalid("title", "cannot be more than 200 characters")
			}
			task.Title = title
		}
		if input.Description != nil {
			if len(*input.Description) > 1000 {
				return domain.Invalid("description", "cannot be more than 1000 characters")
			}
			task.Description = strings.TrimSpace(*input.Description)
		}
		if input.AssignedTo != nil {
			if *input.AssignedTo == "" {
				task.AssignedTo = nil
			} else {
				task.AssignedTo = input.AssignedTo
			}
		}
		if input.Priority != nil {
			priority := domain.Priority(*input.Priority)
			if !priority.Valid() {
				return domain.Invalid("priority", "unknown value")
			}
			task.Priority = priority
		}
		if input.DueDate != nil {
			task.DueDate = input.DueDate
		}
		if input.Tags != nil {
			task.Tags = input.Tags
		}
		if input.Status != nil {
			status := domain.TaskStatus(*input.Status)
			if !status.Valid() {
				return domain.Invalid("status", "unknown value")
			}
			*task = domain.ApplyStatusChange(*task, status, time.Now().UTC())
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	view, err := s.toView(ctx, task)
	if err != nil {
		return nil, err
	}
	s.events.Publish(domain.Event{Type: domain.EventTaskUpdated, Scope: task.ProjectID, Data: view})
	s.logger.Info("task updated", "task_id", task.ID, "project_id", task.ProjectID, "user_id", actorID)
	return view, nil
}

// Delete removes the task and broadcasts task-deleted to its project scope.
func (s Service) Delete(ctx context.Context, actorID, id string) error {
	var scope string
	err := s.tasks.DeleteTask(ctx, id, func(task *domain.Task, project *domain.Project) error {
		if !authz.CanMutateTask(actorID, project) {
			return domain.ErrForbidden
		}
		scope = project.ID
		return nil
	})
	if err != nil {
		return err
	}
	s.events.Publish(domain.Event{Type: domain.EventTaskDeleted, Scope: scope, Data: map[string]string{"id": id}})
	s.logger.Info("task deleted", "task_id", id, "project_id", scope, "user_id", actorID)
	return nil
}

// AddComment appends an immutable comment and broadcasts the task with its
// comment list to the project scope.
func (s Service) AddComment(ctx context.Context, actorID, taskID, text string) (*domain.TaskView, error) {
	text = strings.TrimSpace(text)
	if text == "" {
		return nil, domain.Invalid("text", "is required")
	}
	if len(text) > 1000 {
		return nil, domain.Invalid("text", "cannot be more than 1000 characters")
	}
	comment := &domain.Comment{
		ID:        uuid.NewString(),
		TaskID:    taskID,
		AuthorID:  actorID,
		Text:      text,
		CreatedAt: time.Now().UTC(),
	}
	task, err := s.tasks.AppendComment(ctx, comment, func(task *domain.Task, project *domain.Project) error {
		if !authz.CanMutateTask(actorID, project) {
			return domain.ErrForbidden
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	view, err := s.toView(ctx, task)
	if err != nil {
		return nil, err
	}
	s.events.Publish(domain.Event{Type: domain.EventTaskCommentAdded, Scope: task.ProjectID, Data: view})
	s.logger.Info("comment added", "task_id", task.ID, "project_id", task.ProjectID, "user_id", actorID)
	return view, nil
}

func (s Service) toView(ctx context.Context, task *domain.Task) (*domain.TaskView, error) {
	views, err := s.toViews(ctx, []domain.Task{*task})
	if err != nil {
		return nil, err
	}
	return &views[0], nil
}

func (s Service) toViews(ctx context.Context, tasks []domain.Task) ([]domain.TaskView, error) {
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
	views := make([]domain.TaskView, 0, len(tasks))
	for _, t := range tasks {
		views = append(views, BuildView(t, byID))
	}
	return views, nil
}

// BuildView resolves a task's user references from the given lookup map.
func BuildView(task domain.Task, usersByID map[string]domain.User) domain.TaskView {
	view := domain.TaskView{
		ID:          task.ID,
		Title:       task.Title,
		Description: task.Description,
		ProjectID:   task.ProjectID,
		CreatedBy:   userRef(task.CreatedBy, usersByID),
		Status:      task.Status,
		Priority:    task.Priority,
		DueDate:     task.DueDate,
		CompletedAt: task.CompletedAt,
		Tags:        task.Tags,
		Comments:    make([]domain.CommentView, 0, len(task.Comments)),
		CreatedAt:   task.CreatedAt,
		UpdatedAt:   task.UpdatedAt,
	}
	if task.AssignedTo != nil {
		ref := userRef(*task.AssignedTo, usersByID)
		view.AssignedTo = &ref
	}
	for _, c := range task.Comments {
		view.Comments = append(view.Comments, domain.CommentView{
			ID:        c.ID,
			Author:    userRef(c.AuthorID, usersByID),
			Text:      c.Text,
			CreatedAt: c.CreatedAt,
		})
	}
	return view
}

func userRef(id string, usersByID map[string]domain.User) domain.UserRef {
	if u, ok := usersByID[id]; ok {
		return u.Ref()
	}
	return domain.UserRef{ID: id}
}
