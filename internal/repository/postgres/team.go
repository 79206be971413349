package postgres

import (
	"context"
	"errors"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/taskflow/taskflow/internal/domain"
)

const teamColumns = `id, name, description, owner_id, created_at, updated_at`

// CreateTeam inserts the team and its initial owner membership in one
// transaction.
func (r *Repository) CreateTeam(ctx context.Context, team *domain.Team, owner *domain.TeamMember) error {
	return r.withTx(ctx, func(tx pgx.Tx) error {
		const insertTeam = `INSERT INTO teams (id, name, description, owner_id, created_at, updated_at)
			VALUES ($1, $2, $3, $4, $5, $6)`
		if _, err := tx.Exec(ctx, insertTeam, team.ID, team.Name, team.Description, team.OwnerID, team.CreatedAt, team.UpdatedAt); err != nil {
			return err
		}
		const insertMember = `INSERT INTO team_members (team_id, user_id, role, joined_at)
			VALUES ($1, $2, $3, $4)`
		_, err := tx.Exec(ctx, insertMember, owner.TeamID, owner.UserID, owner.Role, owner.JoinedAt)
		return err
	})
}

// GetTeamByID returns a team with its member list and project ids.
func (r *Repository) GetTeamByID(ctx context.Context, id string) (*domain.Team, error) {
	return getTeam(ctx, r.pool, id, false)
}

// ListTeamsByUser returns teams the user owns or belongs to, newest first.
func (r *Repository) ListTeamsByUser(ctx context.Context, userID string) ([]domain.Team, error) {
	const query = `SELECT ` + teamColumns + ` FROM teams
		WHERE owner_id = $1 OR id IN (SELECT team_id FROM team_members WHERE user_id = $1)
		ORDER BY created_at DESC`
	rows, err := r.pool.Query(ctx, query, userID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	teams := make([]domain.Team, 0)
	for rows.Next() {
		var t domain.Team
		if err := scanTeam(rows, &t); err != nil {
			return nil, err
		}
		teams = append(teams, t)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	for i := range teams {
		if err := loadTeamRelations(ctx, r.pool, &teams[i]); err != nil {
			return nil, err
		}
	}
	return teams, nil
}

// MutateTeam reloads the team under a row lock, runs apply, and persists the
// result.
func (r *Repository) MutateTeam(ctx context.Context, id string, apply func(*domain.Team) error) (*domain.Team, error) {
	var out *domain.Team
	err := r.withTx(ctx, func(tx pgx.Tx) error {
		team, err := getTeam(ctx, tx, id, true)
		if err != nil {
			return err
		}
		if err := apply(team); err != nil {
			return err
		}
		team.UpdatedAt = time.Now().UTC()
		const query = `UPDATE teams SET name = $2, description = $3, updated_at = $4 WHERE id = $1`
		if _, err := tx.Exec(ctx, query, team.ID, team.Name, team.Description, team.UpdatedAt); err != nil {
			return err
		}
		out = team
		return nil
	})
	return out, err
}

// DeleteTeam removes the team and its memberships; projects keep existing
// with their team reference cleared.
func (r *Repository) DeleteTeam(ctx context.Context, id string, precondition func(*domain.Team) error) error {
	return r.withTx(ctx, func(tx pgx.Tx) error {
		team, err := getTeam(ctx, tx, id, true)
		if err != nil {
			return err
		}
		if err := precondition(team); err != nil {
			return err
		}
		if _, err := tx.Exec(ctx, `UPDATE projects SET team_id = NULL WHERE team_id = $1`, id); err != nil {
			return err
		}
		_, err = tx.Exec(ctx, `DELETE FROM teams WHERE id = $1`, id)
		return err
	})
}

// AddTeamMember appends the membership under the team row lock. The single
// team_members row also answers the user's team list, so both directions of
// the relation commit atomically. Duplicates yield domain.ErrConflict.
func (r *Repository) AddTeamMember(ctx context.Context, member *domain.TeamMember, precondition func(*domain.Team) error) (*domain.Team, error) {
	var out *domain.Team
	err := r.withTx(ctx, func(tx pgx.Tx) error {
		team, err := getTeam(ctx, tx, member.TeamID, true)
		if err != nil {
			return err
		}
		if err := precondition(team); err != nil {
			return err
		}
		if team.HasMember(member.UserID) {
			return domain.ErrConflict
		}
		const query = `INSERT INTO team_members (team_id, user_id, role, joined_at)
			VALUES ($1, $2, $3, $4)`
		if _, err := tx.Exec(ctx, query, member.TeamID, member.UserID, member.Role, member.JoinedAt); err != nil {
			if isUniqueViolation(err) {
				return domain.ErrConflict
			}
			return err
		}
		team.Members = append(team.Members, *member)
		out = team
		return nil
	})
	return out, err
}

func getTeam(ctx context.Context, q querier, id string, lock bool) (*domain.Team, error) {
	query := `SELECT ` + teamColumns + ` FROM teams WHERE id = $1`
	if lock {
		query += ` FOR UPDATE`
	}
	var t domain.Team
	if err := scanTeam(q.QueryRow(ctx, query, id), &t); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, domain.ErrNotFound
		}
		return nil, err
	}
	if err := loadTeamRelations(ctx, q, &t); err != nil {
		return nil, err
	}
	return &t, nil
}

func scanTeam(row pgx.Row, t *domain.Team) error {
	return row.Scan(&t.ID, &t.Name, &t.Description, &t.OwnerID, &t.CreatedAt, &t.UpdatedAt)
}

func loadTeamRelations(ctx context.Context, q querier, team *domain.Team) error {
	const memberQuery = `SELECT team_id, user_id, role, joined_at FROM team_members WHERE team_id = $1 ORDER BY joined_at`
	rows, err := q.Query(ctx, memberQuery, team.ID)
	if err != nil {
		return err
	}
	defer rows.Close()

	members := make([]domain.TeamMember, 0)
	for rows.Next() {
		var m domain.TeamMember
		if err := rows.Scan(&m.TeamID, &m.UserID, &m.Role, &m.JoinedAt); err != nil {
			return err
		}
		members = append(members, m)
	}
	if err := rows.Err(); err != nil {
		return err
	}
	team.Members = members

	const projectQuery = `SELECT id FROM projects WHERE team_id = $1 ORDER BY created_at`
	projectRows, err := q.Query(ctx, projectQuery, team.ID)
	if err != nil {
		return err
	}
	defer projectRows.Close()

	ids := make([]string, 0)
	for projectRows.Next() {
		var id string
		if err := projectRows.Scan(&id); err != nil {
			return err
		}
		ids = append(ids, id)
	}
	if err := projectRows.Err(); err != nil {
		return err
	}
	team.ProjectIDs = ids
	return nil
}
