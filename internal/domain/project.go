package domain

import "time"

// ProjectStatus enumerates the lifecycle states of a project.
type ProjectStatus string

const (
	ProjectPlanning  ProjectStatus = "planning"
	ProjectActive    ProjectStatus = "active"
	ProjectOnHold    ProjectStatus = "on-hold"
	ProjectCompleted ProjectStatus = "completed"
	ProjectArchived  ProjectStatus = "archived"
)

// Valid reports whether the status is a known project status.
func (s ProjectStatus) Valid() bool {
	switch s {
	case ProjectPlanning, ProjectActive, ProjectOnHold, ProjectCompleted, ProjectArchived:
		return true
	}
	return false
}

// Priority is shared by projects and tasks.
type Priority string

const (
	PriorityLow    Priority = "low"
	PriorityMedium Priority = "medium"
	PriorityHigh   Priority = "high"
	PriorityUrgent Priority = "urgent"
)

// Valid reports whether the priority is a known value.
func (p Priority) Valid() bool {
	switch p {
	case PriorityLow, PriorityMedium, PriorityHigh, PriorityUrgent:
		return true
	}
	return false
}

// Project groups tasks under an owner and an optional team.
type Project struct {
	ID          string
	Name        string
	Description string
	OwnerID     string
	TeamID      *string
	MemberIDs   []string
	Status      ProjectStatus
	Priority    Priority
	StartDate   *time.Time
	EndDate     *time.Time
	Tags        []string
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

// HasMember reports whether the user is in the project's member set.
func (p *Project) HasMember(userID string) bool {
	for _, id := range p.MemberIDs {
		if id == userID {
			return true
		}
	}
	return false
}
