package repo

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/jmoiron/sqlx"
	"github.com/ovaphlow/pitchfork/service-account/internal/user/entity"
)

// ProfileRepo provides data access for user_profiles.
type ProfileRepo struct {
	db sqlx.ExtContext
}

func NewProfileRepo(db sqlx.ExtContext) *ProfileRepo { return &ProfileRepo{db: db} }

// Create inserts the profile and fills in its id.
func (r *ProfileRepo) Create(ctx context.Context, p *entity.Profile) error {
	const q = `INSERT INTO user_profiles (user_id, mybb_loginkey, mybb_uid) VALUES ($1, $2, $3) RETURNING id`
	if err := r.db.QueryRowxContext(ctx, q, p.UserID, p.MybbLoginKey, p.MybbUID).Scan(&p.ID); err != nil {
		return fmt.Errorf("insert profile: %w", translate(err))
	}
	return nil
}

// GetByUserID returns the profile of a user.
func (r *ProfileRepo) GetByUserID(ctx context.Context, userID int64) (*entity.Profile, error) {
	const q = `SELECT id, user_id, mybb_loginkey, mybb_uid FROM user_profiles WHERE user_id = $1`
	var p entity.Profile
	if err := sqlx.GetContext(ctx, r.db, &p, q, userID); err != nil {
		return nil, translate(err)
	}
	return &p, nil
}

// GetByMybbUID finds the profile linked to a legacy forum account.
func (r *ProfileRepo) GetByMybbUID(ctx context.Context, uid int64) (*entity.Profile, error) {
	const q = `SELECT id, user_id, mybb_loginkey, mybb_uid FROM user_profiles WHERE mybb_uid = $1`
	var p entity.Profile
	if err := sqlx.GetContext(ctx, r.db, &p, q, uid); err != nil {
		return nil, translate(err)
	}
	return &p, nil
}

// Update writes the legacy bridge fields.
func (r *ProfileRepo) Update(ctx context.Context, p *entity.Profile) error {
	const q = `UPDATE user_profiles SET mybb_loginkey=$2, mybb_uid=$3 WHERE user_id=$1`
	res, err := r.db.ExecContext(ctx, q, p.UserID, p.MybbLoginKey, p.MybbUID)
	if err != nil {
		return fmt.Errorf("update profile: %w", err)
	}
	return expectOne(res)
}

func expectOne(res sql.Result) error {
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}
