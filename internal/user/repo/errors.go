package repo

import (
	"database/sql"
	"errors"

	"github.com/lib/pq"
)

var (
	ErrNotFound       = errors.New("not found")
	ErrDuplicate      = errors.New("duplicate value")
	ErrUsernameTaken  = errors.New("username already taken")
	ErrEmailTaken     = errors.New("email already registered")
	ErrAuthTokenTaken = errors.New("auth token already in use")
	ErrProfileExists  = errors.New("profile already exists for user")
	ErrMybbUIDTaken   = errors.New("mybb uid already linked to another user")
)

const uniqueViolation pq.ErrorCode = "23505"

// constraint names come from the migrations
var uniqueConstraints = map[string]error{
	"users_username_key":         ErrUsernameTaken,
	"users_email_key":            ErrEmailTaken,
	"users_authtoken_key":        ErrAuthTokenTaken,
	"user_profiles_user_id_key":  ErrProfileExists,
	"user_profiles_mybb_uid_key": ErrMybbUIDTaken,
}

// translate maps driver errors onto the package sentinels.
func translate(err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, sql.ErrNoRows) {
		return ErrNotFound
	}
	var pqErr *pq.Error
	if errors.As(err, &pqErr) && pqErr.Code == uniqueViolation {
		if mapped, ok := uniqueConstraints[pqErr.Constraint]; ok {
			return mapped
		}
		return ErrDuplicate
	}
	return err
}
