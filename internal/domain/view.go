package domain

import "time"

// Projections returned by the API and carried in event payloads. Referenced
// ids are resolved to minimal {id, name, email} shapes before leaving the
// service layer.

// UserRef is the minimal projection of a referenced user.
type UserRef struct {
	ID    string `json:"id"`
	Name  string `json:"name"`
	Email string `json:"email"`
}

// Ref projects a user for embedding in responses.
func (u *User) Ref() UserRef {
	return UserRef{ID: u.ID, Name: u.Name, Email: u.Email}
}

// TeamRef is the minimal projection of a referenced team.
type TeamRef struct {
	ID   string `json:"id"`
	Name string `json:"name"`
}

// ProjectRef is the minimal projection of a referenced project.
type ProjectRef struct {
	ID   string `json:"id"`
	Name string `json:"name"`
}

// CommentView resolves a comment's author.
type CommentView struct {
	ID        string    `json:"id"`
	Author    UserRef   `json:"author"`
	Text      string    `json:"text"`
	CreatedAt time.Time `json:"createdAt"`
}

// TaskView is a task with its references resolved.
type TaskView struct {
	ID          string        `json:"id"`
	Title       string        `json:"title"`
	Description string        `json:"description,omitempty"`
	ProjectID   string        `json:"project"`
	AssignedTo  *UserRef      `json:"assignedTo,omitempty"`
	CreatedBy   UserRef       `json:"createdBy"`
	Status      TaskStatus    `json:"status"`
	Priority    Priority      `json:"priority"`
	DueDate     *time.Time    `json:"dueDate,omitempty"`
	CompletedAt *time.Time    `json:"completedAt,omitempty"`
	Tags        []string      `json:"tags,omitempty"`
	Comments    []CommentView `json:"comments"`
	CreatedAt   time.Time     `json:"createdAt"`
	UpdatedAt   time.Time     `json:"updatedAt"`
}

// ProjectView is a project with its references resolved.
type ProjectView struct {
	ID          string        `json:"id"`
	Name        string        `json:"name"`
	Description string        `json:"description,omitempty"`
	Owner       UserRef       `json:"owner"`
	Team        *TeamRef      `json:"team,omitempty"`
	Members     []UserRef     `json:"members"`
	Status      ProjectStatus `json:"status"`
	Priority    Priority      `json:"priority"`
	StartDate   *time.Time    `json:"startDate,omitempty"`
	EndDate     *time.Time    `json:"endDate,omitempty"`
	Tags        []string      `json:"tags,omitempty"`
	Tasks       []TaskView    `json:"tasks,omitempty"`
	CreatedAt   time.Time     `json:"createdAt"`
	UpdatedAt   time.Time     `json:"updatedAt"`
}

// TeamMemberView resolves a team member entry.
type TeamMemberView struct {
	User     UserRef   `json:"user"`
	Role     TeamRole  `json:"role"`
	JoinedAt time.Time `json:"joinedAt"`
}

// TeamView is a team with its references resolved.
type TeamView struct {
	ID          string           `json:"id"`
	Name        string           `json:"name"`
	Description string           `json:"description,omitempty"`
	Owner       UserRef          `json:"owner"`
	Members     []TeamMemberView `json:"members"`
	Projects    []ProjectRef     `json:"projects,omitempty"`
	CreatedAt   time.Time        `json:"createdAt"`
	UpdatedAt   time.Time        `json:"updatedAt"`
}
