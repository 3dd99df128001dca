package entity

import (
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"strings"
	"time"
)

// AuthTokenBytes is the amount of randomness behind a generated auth token.
const AuthTokenBytes = 15

// User represents an account row in the `users` table.
// AuthToken lets the companion client log in without the password.
type User struct {
	ID           int64      `db:"id" json:"id"`
	Username     string     `db:"username" json:"username"`
	Email        string     `db:"email" json:"email"`
	AuthToken    string     `db:"authtoken" json:"-"`
	PasswordHash string     `db:"password_hash" json:"-"`
	FirstName    string     `db:"first_name" json:"first_name"`
	LastName     string     `db:"last_name" json:"last_name"`
	IsStaff      bool       `db:"is_staff" json:"is_staff"`
	IsActive     bool       `db:"is_active" json:"is_active"`
	IsSuperuser  bool       `db:"is_superuser" json:"is_superuser"`
	LastLogin    *time.Time `db:"last_login" json:"last_login,omitempty"`
	DateJoined   time.Time  `db:"date_joined" json:"date_joined"`
}

// FullName returns the first name plus the last name, with a space in between.
func (u *User) FullName() string {
	return strings.TrimSpace(u.FirstName + " " + u.LastName)
}

// ShortName returns the first name.
func (u *User) ShortName() string {
	return u.FirstName
}

// HasUsablePassword reports whether a password hash has been set.
func (u *User) HasUsablePassword() bool {
	return u.PasswordHash != ""
}

// GenerateAuthToken returns AuthTokenBytes random bytes hex encoded (30 chars).
func GenerateAuthToken() (string, error) {
	b := make([]byte, AuthTokenBytes)
	if _, err := rand.Read(b); err != nil {
		return "", fmt.Errorf("read random: %w", err)
	}
	return hex.EncodeToString(b), nil
}

// NormalizeEmail lowercases the domain part of an address and trims spaces.
func NormalizeEmail(email string) string {
	email = strings.TrimSpace(email)
	at := strings.LastIndex(email, "@")
	if at < 0 {
		return email
	}
	return email[:at] + "@" + strings.ToLower(email[at+1:])
}
