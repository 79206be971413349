package domain

// EventType identifies a broadcastable mutation.
type EventType string

const (
	EventProjectCreated   EventType = "project-created"
	EventProjectUpdated   EventType = "project-updated"
	EventProjectDeleted   EventType = "project-deleted"
	EventTaskCreated      EventType = "task-created"
	EventTaskUpdated      EventType = "task-updated"
	EventTaskDeleted      EventType = "task-deleted"
	EventTaskCommentAdded EventType = "task-comment-added"
)

// Event is the payload fanned out to every connection subscribed to its
// scope. Scope is the project id that partitions delivery.
type Event struct {
	Type  EventType
	Scope string
	Data  any
}
