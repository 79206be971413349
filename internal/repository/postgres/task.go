package postgres

import (
	"context"
	"errors"
	"strconv"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/taskflow/taskflow/internal/domain"
	"github.com/taskflow/taskflow/internal/repository"
)

const taskColumns = `id, title, description, project_id, assigned_to, created_by, status, priority, due_date, completed_at, tags, created_at, updated_at`

// CreateTask inserts a task after the precondition passes on the locked
// parent project.
func (r *Repository) CreateTask(ctx context.Context, task *domain.Task, precondition func(*domain.Project) error) error {
	return r.withTx(ctx, func(tx pgx.Tx) error {
		project, err := getProject(ctx, tx, task.ProjectID, true)
		if err != nil {
			return err
		}
		if err := precondition(project); err != nil {
			return err
		}
		const query = `INSERT INTO tasks (id, title, description, project_id, assigned_to, created_by, status, priority, due_date, completed_at, tags, created_at, updated_at)
			VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13)`
		_, err = tx.Exec(ctx, query,
			task.ID, task.Title, task.Description, task.ProjectID, task.AssignedTo, task.CreatedBy,
			task.Status, task.Priority, task.DueDate, task.CompletedAt, task.Tags,
			task.CreatedAt, task.UpdatedAt)
		return err
	})
}

// GetTaskByID fetches a task with its comment list.
func (r *Repository) GetTaskByID(ctx context.Context, id string) (*domain.Task, error) {
	return getTask(ctx, r.pool, id, false)
}

// ListTasks returns tasks matching the filter, newest first.
func (r *Repository) ListTasks(ctx context.Context, filter repository.TaskFilter) ([]domain.Task, error) {
	var (
		clauses []string
		args    []any
	)
	arg := func(value any) string {
		args = append(args, value)
		return "$" + strconv.Itoa(len(args))
	}
	if filter.ProjectID != "" {
		clauses = append(clauses, "project_id = "+arg(filter.ProjectID))
	} else if filter.VisibleTo != "" {
		placeholder := arg(filter.VisibleTo)
		clauses = append(clauses, "project_id IN (SELECT id FROM projects WHERE owner_id = "+placeholder+
			" UNION SELECT project_id FROM project_members WHERE user_id = "+placeholder+")")
	}
	if filter.Status != "" {
		clauses = append(clauses, "status = "+arg(filter.Status))
	}
	if filter.AssignedTo != "" {
		clauses = append(clauses, "assigned_to = "+arg(filter.AssignedTo))
	}
	query := `SELECT ` + taskColumns + ` FROM tasks`
	if len(clauses) > 0 {
		query += " WHERE " + strings.Join(clauses, " AND ")
	}
	query += " ORDER BY created_at DESC"

	rows, err := r.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return collectTasks(rows)
}

// ListTasksByProject returns a project's tasks in creation order.
func (r *Repository) ListTasksByProject(ctx context.Context, projectID string) ([]domain.Task, error) {
	const query = `SELECT ` + taskColumns + ` FROM tasks WHERE project_id = $1 ORDER BY created_at`
	rows, err := r.pool.Query(ctx, query, projectID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return collectTasks(rows)
}

// MutateTask locks the parent project, reloads the task, runs apply, and
// persists the result in one transaction. Locking the project first keeps
// task writers and project-membership writers serialized against each other.
func (r *Repository) MutateTask(ctx context.Context, id string, apply func(*domain.Task, *domain.Project) error) (*domain.Task, error) {
	var out *domain.Task
	err := r.withTx(ctx, func(tx pgx.Tx) error {
		task, project, err := lockTaskWithProject(ctx, tx, id)
		if err != nil {
			return err
		}
		if err := apply(task, project); err != nil {
			return err
		}
		task.UpdatedAt = time.Now().UTC()
		const query = `UPDATE tasks
			SET title = $2, description = $3, assigned_to = $4, status = $5, priority = $6,
				due_date = $7, completed_at = $8, tags = $9, updated_at = $10
			WHERE id = $1`
		if _, err := tx.Exec(ctx, query,
			task.ID, task.Title, task.Description, task.AssignedTo, task.Status, task.Priority,
			task.DueDate, task.CompletedAt, task.Tags, task.UpdatedAt); err != nil {
			return err
		}
		out = task
		return nil
	})
	return out, err
}

// DeleteTask removes the task; the row disappears from the parent project's
// task list in the same statement since membership is keyed by project_id.
func (r *Repository) DeleteTask(ctx context.Context, id string, precondition func(*domain.Task, *domain.Project) error) error {
	return r.withTx(ctx, func(tx pgx.Tx) error {
		task, project, err := lockTaskWithProject(ctx, tx, id)
		if err != nil {
			return err
		}
		if err := precondition(task, project); err != nil {
			return err
		}
		_, err = tx.Exec(ctx, `DELETE FROM tasks WHERE id = $1`, id)
		return err
	})
}

// AppendComment inserts the comment under the project lock; the serial seq
// column preserves commit order for concurrent appenders.
func (r *Repository) AppendComment(ctx context.Context, comment *domain.Comment, precondition func(*domain.Task, *domain.Project) error) (*domain.Task, error) {
	var out *domain.Task
	err := r.withTx(ctx, func(tx pgx.Tx) error {
		task, project, err := lockTaskWithProject(ctx, tx, comment.TaskID)
		if err != nil {
			return err
		}
		if err := precondition(task, project); err != nil {
			return err
		}
		const query = `INSERT INTO task_comments (id, task_id, author_id, text, created_at)
			VALUES ($1, $2, $3, $4, $5)`
		if _, err := tx.Exec(ctx, query, comment.ID, comment.TaskID, comment.AuthorID, comment.Text, comment.CreatedAt); err != nil {
			return err
		}
		task.Comments = append(task.Comments, *comment)
		out = task
		return nil
	})
	return out, err
}

func getTask(ctx context.Context, q querier, id string, lock bool) (*domain.Task, error) {
	query := `SELECT ` + taskColumns + ` FROM tasks WHERE id = $1`
	if lock {
		query += ` FOR UPDATE`
	}
	var t domain.Task
	if err := scanTask(q.QueryRow(ctx, query, id), &t); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, domain.ErrNotFound
		}
		return nil, err
	}
	comments, err := taskComments(ctx, q, id)
	if err != nil {
		return nil, err
	}
	t.Comments = comments
	return &t, nil
}

// lockTaskWithProject resolves the task's project, locks the project row,
// then locks and loads the task. Project-before-task ordering is what every
// writer follows, so two mutators of the same task never deadlock.
func lockTaskWithProject(ctx context.Context, tx pgx.Tx, taskID string) (*domain.Task, *domain.Project, error) {
	var projectID string
	if err := tx.QueryRow(ctx, `SELECT project_id FROM tasks WHERE id = $1`, taskID).Scan(&projectID); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil, domain.ErrNotFound
		}
		return nil, nil, err
	}
	project, err := getProject(ctx, tx, projectID, true)
	if err != nil {
		return nil, nil, err
	}
	task, err := getTask(ctx, tx, taskID, true)
	if err != nil {
		return nil, nil, err
	}
	return task, project, nil
}

func scanTask(row pgx.Row, t *domain.Task) error {
	return row.Scan(&t.ID, &t.Title, &t.Description, &t.ProjectID, &t.AssignedTo, &t.CreatedBy,
		&t.Status, &t.Priority, &t.DueDate, &t.CompletedAt, &t.Tags, &t.CreatedAt, &t.UpdatedAt)
}

func collectTasks(rows pgx.Rows) ([]domain.Task, error) {
	tasks := make([]domain.Task, 0)
	for rows.Next() {
		var t domain.Task
		if err := scanTask(rows, &t); err != nil {
			return nil, err
		}
		tasks = append(tasks, t)
	}
	return tasks, rows.Err()
}

func taskComments(ctx context.Context, q querier, taskID string) ([]domain.Comment, error) {
	const query = `SELECT id, task_id, author_id, text, created_at FROM task_comments WHERE task_id = $1 ORDER BY seq`
	rows, err := q.Query(ctx, query, taskID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	comments := make([]domain.Comment, 0)
	for rows.Next() {
		var c domain.Comment
		if err := rows.Scan(&c.ID, &c.TaskID, &c.AuthorID, &c.Text, &c.CreatedAt); err != nil {
			return nil, err
		}
		comments = append(comments, c)
	}
	return comments, rows.Err()
}
