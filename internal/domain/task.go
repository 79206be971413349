package domain

import "time"

// TaskStatus enumerates workflow states of a task.
type TaskStatus string

const (
	TaskTodo       TaskStatus = "todo"
	TaskInProgress TaskStatus = "in-progress"
	TaskReview     TaskStatus = "review"
	TaskDone       TaskStatus = "done"
)

// Valid reports whether the status is a known task status.
func (s TaskStatus) Valid() bool {
	switch s {
	case TaskTodo, TaskInProgress, TaskReview, TaskDone:
		return true
	}
	return false
}

// Task is a unit of work inside a project.
type Task struct {
	ID          string
	Title       string
	Description string
	ProjectID   string
	AssignedTo  *string
	CreatedBy   string
	Status      TaskStatus
	Priority    Priority
	DueDate     *time.Time
	CompletedAt *time.Time
	Tags        []string
	Comments    []Comment
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

// Comment is an immutable, append-only note on a task.
type Comment struct {
	ID        string
	TaskID    string
	AuthorID  string
	Text      string
	CreatedAt time.Time
}

// ApplyStatusChange returns the task with the new status and the derived
// completedAt field recomputed: set on the transition into done, cleared on
// the transition away from it.
func ApplyStatusChange(task Task, status TaskStatus, now time.Time) Task {
	task.Status = status
	switch {
	case status == TaskDone && task.CompletedAt == nil:
		at := now.UTC()
		task.CompletedAt = &at
	case status != TaskDone && task.CompletedAt != nil:
		task.CompletedAt = nil
	}
	return task
}
