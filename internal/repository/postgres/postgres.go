package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/wavecall/api/internal/domain"
	"github.com/wavecall/api/internal/repository"
)

// Repository implements persistence interfaces on PostgreSQL.
type Repository struct {
	pool *pgxpool.Pool
}

// New constructs a Repository.
func New(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

// ensure Repository satisfies interfaces.
var (
	_ repository.UserRepository = (*Repository)(nil)
	_ repository.TeamRepository = (*Repository)(nil)
)

const userColumns = `id, provider_id, name, email, email_verified, image_url, created_at, updated_at`

// CreateUser inserts a mirrored user record.
func (r *Repository) CreateUser(ctx context.Context, user *domain.User) error {
	const query = `INSERT INTO users (id, provider_id, name, email, email_verified, image_url, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`
	_, err := r.pool.Exec(ctx, query, user.ID, user.ProviderID, user.Name, user.Email, user.EmailVerified, user.ImageURL, user.CreatedAt, user.UpdatedAt)
	return err
}

// UpdateUserByProviderID refreshes mirrored fields for a provider account.
func (r *Repository) UpdateUserByProviderID(ctx context.Context, user *domain.User) error {
	const query = `UPDATE users SET name = $2, email = $3, email_verified = $4, image_url = $5, updated_at = $6
		WHERE provider_id = $1`
	tag, err := r.pool.Exec(ctx, query, user.ProviderID, user.Name, user.Email, user.EmailVerified, user.ImageURL, user.UpdatedAt)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return repository.ErrNotFound
	}
	return nil
}

// DeleteUserByProviderID removes a mirrored account.
func (r *Repository) DeleteUserByProviderID(ctx context.Context, providerID string) error {
	const query = `DELETE FROM users WHERE provider_id = $1`
	tag, err := r.pool.Exec(ctx, query, providerID)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return repository.ErrNotFound
	}
	return nil
}

// GetUserByID retrieves a user by identifier.
func (r *Repository) GetUserByID(ctx context.Context, id string) (*domain.User, error) {
	return r.getUser(ctx, `SELECT `+userColumns+` FROM users WHERE id = $1`, id)
}

// GetUserByProviderID retrieves a user by the external provider id.
func (r *Repository) GetUserByProviderID(ctx context.Context, providerID string) (*domain.User, error) {
	return r.getUser(ctx, `SELECT `+userColumns+` FROM users WHERE provider_id = $1`, providerID)
}

// GetUserByEmail fetches a user by email.
func (r *Repository) GetUserByEmail(ctx context.Context, email string) (*domain.User, error) {
	return r.getUser(ctx, `SELECT `+userColumns+` FROM users WHERE email = $1`, email)
}

func (r *Repository) getUser(ctx context.Context, query string, arg any) (*domain.User, error) {
	row := r.pool.QueryRow(ctx, query, arg)
	var u domain.User
	if err := row.Scan(&u.ID, &u.ProviderID, &u.Name, &u.Email, &u.EmailVerified, &u.ImageURL, &u.CreatedAt, &u.UpdatedAt); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, repository.ErrNotFound
		}
		return nil, err
	}
	return &u, nil
}

// GetUsersByEmails returns every user whose email appears in the list.
// Callers diff the result against the input to report unresolved emails.
func (r *Repository) GetUsersByEmails(ctx context.Context, emails []string) ([]domain.User, error) {
	if len(emails) == 0 {
		return nil, nil
	}
	const query = `SELECT ` + userColumns + ` FROM users WHERE email = ANY($1)`
	rows, err := r.pool.Query(ctx, query, emails)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	users := make([]domain.User, 0, len(emails))
	for rows.Next() {
		var u domain.User
		if err := rows.Scan(&u.ID, &u.ProviderID, &u.Name, &u.Email, &u.EmailVerified, &u.ImageURL, &u.CreatedAt, &u.UpdatedAt); err != nil {
			return nil, err
		}
		users = append(users, u)
	}
	return users, rows.Err()
}

// UpdateUserName renames a user.
func (r *Repository) UpdateUserName(ctx context.Context, id, name string, updatedAt time.Time) error {
	const query = `UPDATE users SET name = $2, updated_at = $3 WHERE id = $1`
	tag, err := r.pool.Exec(ctx, query, id, name, updatedAt)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return repository.ErrNotFound
	}
	return nil
}

// CreateTeamWithMembers inserts the team row and its initial memberships in
// one transaction so a partial create is never visible.
func (r *Repository) CreateTeamWithMembers(ctx context.Context, team *domain.Team, memberIDs []string) error {
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback(ctx) }()

	const teamQuery = `INSERT INTO teams (id, name, creator_id, created_at) VALUES ($1, $2, $3, $4)`
	if _, err := tx.Exec(ctx, teamQuery, team.ID, team.Name, team.CreatorID, team.CreatedAt); err != nil {
		return fmt.Errorf("insert team: %w", err)
	}
	const memberQuery = `INSERT INTO team_members (team_id, user_id, created_at) VALUES ($1, $2, $3)`
	for _, userID := range memberIDs {
		if _, err := tx.Exec(ctx, memberQuery, team.ID, userID, team.CreatedAt); err != nil {
			return fmt.Errorf("insert membership: %w", err)
		}
	}
	return tx.Commit(ctx)
}

// GetMembership loads a single membership row.
func (r *Repository) GetMembership(ctx context.Context, teamID, userID string) (*domain.TeamMember, error) {
	const query = `SELECT team_id, user_id, created_at FROM team_members WHERE team_id = $1 AND user_id = $2`
	row := r.pool.QueryRow(ctx, query, teamID, userID)
	var m domain.TeamMember
	if err := row.Scan(&m.TeamID, &m.UserID, &m.CreatedAt); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, repository.ErrNotFound
		}
		return nil, err
	}
	return &m, nil
}

// ListTeamIDsByUser returns ids of teams the user belongs to.
func (r *Repository) ListTeamIDsByUser(ctx context.Context, userID string) ([]string, error) {
	const query = `SELECT team_id FROM team_members WHERE user_id = $1`
	rows, err := r.pool.Query(ctx, query, userID)
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

// GetTeamsByIDs returns teams ordered by creation time, newest first.
// creator_id is nulled when the creator's account is deleted, so it reads
// back as an empty string.
func (r *Repository) GetTeamsByIDs(ctx context.Context, teamIDs []string) ([]domain.Team, error) {
	if len(teamIDs) == 0 {
		return nil, nil
	}
	const query = `SELECT id, name, COALESCE(creator_id, ''), created_at FROM teams WHERE id = ANY($1) ORDER BY created_at DESC`
	rows, err := r.pool.Query(ctx, query, teamIDs)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	teams := make([]domain.Team, 0, len(teamIDs))
	for rows.Next() {
		var t domain.Team
		if err := rows.Scan(&t.ID, &t.Name, &t.CreatorID, &t.CreatedAt); err != nil {
			return nil, err
		}
		teams = append(teams, t)
	}
	return teams, rows.Err()
}

// ListMemberDetails returns every membership for the given teams joined with
// the member's name and email.
func (r *Repository) ListMemberDetails(ctx context.Context, teamIDs []string) ([]domain.TeamMemberDetail, error) {
	if len(teamIDs) == 0 {
		return nil, nil
	}
	const query = `SELECT tm.team_id, tm.user_id, u.name, u.email
		FROM team_members tm
		INNER JOIN users u ON u.id = tm.user_id
		WHERE tm.team_id = ANY($1)`
	rows, err := r.pool.Query(ctx, query, teamIDs)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	details := make([]domain.TeamMemberDetail, 0)
	for rows.Next() {
		var d domain.TeamMemberDetail
		if err := rows.Scan(&d.TeamID, &d.UserID, &d.Name, &d.Email); err != nil {
			return nil, err
		}
		details = append(details, d)
	}
	return details, rows.Err()
}

// ListMemberIDs returns the user ids of every current member of a team.
func (r *Repository) ListMemberIDs(ctx context.Context, teamID string) ([]string, error) {
	const query = `SELECT user_id FROM team_members WHERE team_id = $1`
	rows, err := r.pool.Query(ctx, query, teamID)
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

// AddMembers inserts membership rows. Concurrent adds for the same user race
// on the check-then-insert in the service layer; the composite primary key
// plus ON CONFLICT DO NOTHING makes the losing insert a no-op.
func (r *Repository) AddMembers(ctx context.Context, teamID string, userIDs []string, createdAt time.Time) error {
	const query = `INSERT INTO team_members (team_id, user_id, created_at)
		VALUES ($1, $2, $3)
		ON CONFLICT (team_id, user_id) DO NOTHING`
	for _, userID := range userIDs {
		if _, err := r.pool.Exec(ctx, query, teamID, userID, createdAt); err != nil {
			return fmt.Errorf("insert membership: %w", err)
		}
	}
	return nil
}

// DeleteMembership removes a single membership row.
func (r *Repository) DeleteMembership(ctx context.Context, teamID, userID string) error {
	const query = `DELETE FROM team_members WHERE team_id = $1 AND user_id = $2`
	tag, err := r.pool.Exec(ctx, query, teamID, userID)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return repository.ErrNotFound
	}
	return nil
}
