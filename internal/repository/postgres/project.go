package postgres

import (
	"context"
	"errors"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/taskflow/taskflow/internal/domain"
)

const projectColumns = `id, name, description, owner_id, team_id, status, priority, start_date, end_date, tags, created_at, updated_at`

// CreateProject inserts a project.
func (r *Repository) CreateProject(ctx context.Context, project *domain.Project) error {
	const query = `INSERT INTO projects (id, name, description, owner_id, team_id, status, priority, start_date, end_date, tags, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)`
	_, err := r.pool.Exec(ctx, query,
		project.ID, project.Name, project.Description, project.OwnerID, project.TeamID,
		project.Status, project.Priority, project.StartDate, project.EndDate, project.Tags,
		project.CreatedAt, project.UpdatedAt)
	return err
}

// GetProjectByID fetches a project with its member set.
func (r *Repository) GetProjectByID(ctx context.Context, id string) (*domain.Project, error) {
	return getProject(ctx, r.pool, id, false)
}

// ListProjectsByUser returns projects the user owns or belongs to, newest first.
func (r *Repository) ListProjectsByUser(ctx context.Context, userID string) ([]domain.Project, error) {
	const query = `SELECT ` + projectColumns + ` FROM projects
		WHERE owner_id = $1 OR id IN (SELECT project_id FROM project_members WHERE user_id = $1)
		ORDER BY created_at DESC`
	rows, err := r.pool.Query(ctx, query, userID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	projects := make([]domain.Project, 0)
	for rows.Next() {
		var p domain.Project
		if err := scanProject(rows, &p); err != nil {
			return nil, err
		}
		projects = append(projects, p)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	for i := range projects {
		members, err := projectMemberIDs(ctx, r.pool, projects[i].ID)
		if err != nil {
			return nil, err
		}
		projects[i].MemberIDs = members
	}
	return projects, nil
}

// MutateProject reloads the project under a row lock, runs apply, and
// persists the result, all in one transaction.
func (r *Repository) MutateProject(ctx context.Context, id string, apply func(*domain.Project) error) (*domain.Project, error) {
	var out *domain.Project
	err := r.withTx(ctx, func(tx pgx.Tx) error {
		project, err := getProject(ctx, tx, id, true)
		if err != nil {
			return err
		}
		if err := apply(project); err != nil {
			return err
		}
		project.UpdatedAt = time.Now().UTC()
		const query = `UPDATE projects
			SET name = $2, description = $3, team_id = $4, status = $5, priority = $6,
				start_date = $7, end_date = $8, tags = $9, updated_at = $10
			WHERE id = $1`
		if _, err := tx.Exec(ctx, query,
			project.ID, project.Name, project.Description, project.TeamID, project.Status,
			project.Priority, project.StartDate, project.EndDate, project.Tags, project.UpdatedAt); err != nil {
			return err
		}
		out = project
		return nil
	})
	return out, err
}

// DeleteProject removes the project and all of its tasks in one transaction.
func (r *Repository) DeleteProject(ctx context.Context, id string, precondition func(*domain.Project) error) error {
	return r.withTx(ctx, func(tx pgx.Tx) error {
		project, err := getProject(ctx, tx, id, true)
		if err != nil {
			return err
		}
		if err := precondition(project); err != nil {
			return err
		}
		if _, err := tx.Exec(ctx, `DELETE FROM tasks WHERE project_id = $1`, id); err != nil {
			return err
		}
		_, err = tx.Exec(ctx, `DELETE FROM projects WHERE id = $1`, id)
		return err
	})
}

// AddProjectMember appends a member under the project row lock. The owner
// and existing members yield domain.ErrConflict.
func (r *Repository) AddProjectMember(ctx context.Context, projectID, userID string, precondition func(*domain.Project) error) (*domain.Project, error) {
	var out *domain.Project
	err := r.withTx(ctx, func(tx pgx.Tx) error {
		project, err := getProject(ctx, tx, projectID, true)
		if err != nil {
			return err
		}
		if err := precondition(project); err != nil {
			return err
		}
		if userID == project.OwnerID || project.HasMember(userID) {
			return domain.ErrConflict
		}
		const query = `INSERT INTO project_members (project_id, user_id, added_at) VALUES ($1, $2, $3)`
		if _, err := tx.Exec(ctx, query, projectID, userID, time.Now().UTC()); err != nil {
			if isUniqueViolation(err) {
				return domain.ErrConflict
			}
			return err
		}
		project.MemberIDs = append(project.MemberIDs, userID)
		out = project
		return nil
	})
	return out, err
}

func getProject(ctx context.Context, q querier, id string, lock bool) (*domain.Project, error) {
	query := `SELECT ` + projectColumns + ` FROM projects WHERE id = $1`
	if lock {
		query += ` FOR UPDATE`
	}
	var p domain.Project
	if err := scanProject(q.QueryRow(ctx, query, id), &p); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, domain.ErrNotFound
		}
		return nil, err
	}
	members, err := projectMemberIDs(ctx, q, id)
	if err != nil {
		return nil, err
	}
	p.MemberIDs = members
	return &p, nil
}

func scanProject(row pgx.Row, p *domain.Project) error {
	return row.Scan(&p.ID, &p.Name, &p.Description, &p.OwnerID, &p.TeamID, &p.Status,
		&p.Priority, &p.StartDate, &p.EndDate, &p.Tags, &p.CreatedAt, &p.UpdatedAt)
}

func projectMemberIDs(ctx context.Context, q querier, projectID string) ([]string, error) {
	const query = `SELECT user_id FROM project_members WHERE project_id = $1 ORDER BY added_at`
	rows, err := q.Query(ctx, query, projectID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	ids := make([]string, 0)
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}
