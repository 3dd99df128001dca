package repo

import (
	"context"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/ovaphlow/pitchfork/service-account/internal/user/entity"
)

const userColumns = `id, username, email, authtoken, password_hash, first_name, last_name,
	is_staff, is_active, is_superuser, last_login, date_joined`

// UserRepo provides data access for the users table using sqlx.
// It runs on either a *sqlx.DB or a *sqlx.Tx.
type UserRepo struct {
	db sqlx.ExtContext
}

func NewUserRepo(db sqlx.ExtContext) *UserRepo { return &UserRepo{db: db} }

// Create inserts a new user row. The caller assigns the id.
func (r *UserRepo) Create(ctx context.Context, u *entity.User) error {
	const q = `INSERT INTO users (` + userColumns + `)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)`
	_, err := r.db.ExecContext(ctx, q,
		u.ID, u.Username, u.Email, u.AuthToken, u.PasswordHash, u.FirstName, u.LastName,
		u.IsStaff, u.IsActive, u.IsSuperuser, u.LastLogin, u.DateJoined)
	if err != nil {
		return fmt.Errorf("insert user: %w", translate(err))
	}
	return nil
}

func (r *UserRepo) getOne(ctx context.Context, where string, arg any) (*entity.User, error) {
	q := `SELECT ` + userColumns + ` FROM users WHERE ` + where + ` = $1`
	var u entity.User
	if err := sqlx.GetContext(ctx, r.db, &u, q, arg); err != nil {
		return nil, translate(err)
	}
	return &u, nil
}

// GetByID fetches a full user row.
func (r *UserRepo) GetByID(ctx context.Context, id int64) (*entity.User, error) {
	return r.getOne(ctx, "id", id)
}

// GetByUsername fetches by username.
func (r *UserRepo) GetByUsername(ctx context.Context, username string) (*entity.User, error) {
	return r.getOne(ctx, "username", username)
}

// GetByEmail fetches by email.
func (r *UserRepo) GetByEmail(ctx context.Context, email string) (*entity.User, error) {
	return r.getOne(ctx, "email", email)
}

// GetByAuthToken fetches the user owning a companion-client token.
func (r *UserRepo) GetByAuthToken(ctx context.Context, token string) (*entity.User, error) {
	return r.getOne(ctx, "authtoken", token)
}

// List returns users ordered by id. Inactive users are skipped unless includeInactive is set.
func (r *UserRepo) List(ctx context.Context, includeInactive bool, limit, offset int) ([]*entity.User, error) {
	const q = `SELECT ` + userColumns + ` FROM users
		WHERE ($1 OR is_active) ORDER BY id LIMIT $2 OFFSET $3`
	out := []*entity.User{}
	if err := sqlx.SelectContext(ctx, r.db, &out, q, includeInactive, limit, offset); err != nil {
		return nil, fmt.Errorf("list users: %w", err)
	}
	return out, nil
}

// Update writes the mutable account fields. It never touches the profile.
func (r *UserRepo) Update(ctx context.Context, u *entity.User) error {
	const q = `UPDATE users SET username=$2, email=$3, first_name=$4, last_name=$5,
		is_staff=$6, is_active=$7, is_superuser=$8 WHERE id=$1`
	res, err := r.db.ExecContext(ctx, q, u.ID, u.Username, u.Email, u.FirstName, u.LastName,
		u.IsStaff, u.IsActive, u.IsSuperuser)
	if err != nil {
		return fmt.Errorf("update user: %w", translate(err))
	}
	return expectOne(res)
}

// UpdatePassword replaces the password hash.
func (r *UserRepo) UpdatePassword(ctx context.Context, id int64, hash string) error {
	res, err := r.db.ExecContext(ctx, `UPDATE users SET password_hash=$2 WHERE id=$1`, id, hash)
	if err != nil {
		return fmt.Errorf("update password: %w", err)
	}
	return expectOne(res)
}

// SetAuthToken replaces the companion-client token.
func (r *UserRepo) SetAuthToken(ctx context.Context, id int64, token string) error {
	res, err := r.db.ExecContext(ctx, `UPDATE users SET authtoken=$2 WHERE id=$1`, id, token)
	if err != nil {
		return fmt.Errorf("set authtoken: %w", translate(err))
	}
	return expectOne(res)
}

// SetActive flips the soft-delete flag.
func (r *UserRepo) SetActive(ctx context.Context, id int64, active bool) error {
	res, err := r.db.ExecContext(ctx, `UPDATE users SET is_active=$2 WHERE id=$1`, id, active)
	if err != nil {
		return fmt.Errorf("set active: %w", err)
	}
	return expectOne(res)
}

// TouchLastLogin records a successful authentication.
func (r *UserRepo) TouchLastLogin(ctx context.Context, id int64, at time.Time) error {
	_, err := r.db.ExecContext(ctx, `UPDATE users SET last_login=$2 WHERE id=$1`, id, at)
	if err != nil {
		return fmt.Errorf("touch last_login: %w", err)
	}
	return nil
}

// Delete removes the user row; the profile goes with it through ON DELETE CASCADE.
func (r *UserRepo) Delete(ctx context.Context, id int64) error {
	res, err := r.db.ExecContext(ctx, `DELETE FROM users WHERE id=$1`, id)
	if err != nil {
		return fmt.Errorf("delete user: %w", err)
	}
	return expectOne(res)
}
