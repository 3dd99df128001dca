package user

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/jmoiron/sqlx"
	"go.uber.org/zap"

	"github.com/ovaphlow/pitchfork/service-account/internal/mail"
	"github.com/ovaphlow/pitchfork/service-account/internal/user/entity"
	userrepo "github.com/ovaphlow/pitchfork/service-account/internal/user/repo"
	"github.com/ovaphlow/pitchfork/service-account/pkg/database"
	"github.com/ovaphlow/pitchfork/service-account/pkg/utilities"
)

var (
	ErrNotFound       = userrepo.ErrNotFound
	ErrUsernameTaken  = userrepo.ErrUsernameTaken
	ErrEmailTaken     = userrepo.ErrEmailTaken
	ErrAuthTokenTaken = userrepo.ErrAuthTokenTaken
	ErrProfileExists  = userrepo.ErrProfileExists
	ErrMybbUIDTaken   = userrepo.ErrMybbUIDTaken
	ErrDuplicate      = userrepo.ErrDuplicate

	ErrBadCredentials = errors.New("invalid credentials")
	ErrNoMailer       = errors.New("mail is not configured")
)

const (
	defaultListLimit = 50
	maxListLimit     = 200
)

// IDGenerator assigns primary keys to new users.
type IDGenerator interface {
	NextID() int64
}

// CreateHook runs inside the creating transaction right after the user row is inserted.
type CreateHook func(ctx context.Context, tx sqlx.ExtContext, u *entity.User) error

// UserService orchestrates account creation, authentication and the profile lifecycle.
type UserService struct {
	db       *sqlx.DB
	users    *userrepo.UserRepo
	profiles *userrepo.ProfileRepo
	hasher   PasswordHasher
	ids      IDGenerator
	mailer   mail.Mailer
	logger   *zap.SugaredLogger
	hooks    []CreateHook
	now      func() time.Time
}

// NewUserService wires the service. A nil hasher means bcrypt at cost 12,
// a nil ids means a snowflake generator on node 1, and a nil logger discards output.
// The profile hook is always registered first.
func NewUserService(db *sqlx.DB, hasher PasswordHasher, ids IDGenerator, mailer mail.Mailer, logger *zap.SugaredLogger) (*UserService, error) {
	if hasher == nil {
		hasher = BcryptHasher{Cost: 12}
	}
	if ids == nil {
		g, err := utilities.NewSnowflakeGenerator(1)
		if err != nil {
			return nil, err
		}
		ids = g
	}
	if logger == nil {
		logger = zap.NewNop().Sugar()
	}
	s := &UserService{
		db:       db,
		users:    userrepo.NewUserRepo(db),
		profiles: userrepo.NewProfileRepo(db),
		hasher:   hasher,
		ids:      ids,
		mailer:   mailer,
		logger:   logger,
		now:      func() time.Time { return time.Now().UTC() },
	}
	s.hooks = []CreateHook{createProfile}
	return s, nil
}

// OnCreate registers an extra hook run after the profile is created.
func (s *UserService) OnCreate(h CreateHook) {
	s.hooks = append(s.hooks, h)
}

func createProfile(ctx context.Context, tx sqlx.ExtContext, u *entity.User) error {
	return userrepo.NewProfileRepo(tx).Create(ctx, entity.NewProfile(u.ID))
}

// CreateUserInput carries registration data. AuthToken is generated when empty.
type CreateUserInput struct {
	Username    string
	Email       string
	Password    string
	AuthToken   string
	FirstName   string
	LastName    string
	IsStaff     bool
	IsSuperuser bool
}

// CreateUser validates and stores a new user together with its profile.
// Both rows are written in one transaction; a failure leaves neither behind.
func (s *UserService) CreateUser(ctx context.Context, in CreateUserInput) (*entity.User, error) {
	u := &entity.User{
		Username:    strings.TrimSpace(in.Username),
		Email:       entity.NormalizeEmail(in.Email),
		AuthToken:   strings.TrimSpace(in.AuthToken),
		FirstName:   strings.TrimSpace(in.FirstName),
		LastName:    strings.TrimSpace(in.LastName),
		IsStaff:     in.IsStaff,
		IsSuperuser: in.IsSuperuser,
		IsActive:    true,
		DateJoined:  s.now(),
	}
	if u.AuthToken == "" {
		tok, err := entity.GenerateAuthToken()
		if err != nil {
			return nil, err
		}
		u.AuthToken = tok
	}
	if err := u.Validate(); err != nil {
		return nil, err
	}
	if in.Password != "" {
		hash, err := s.hasher.Hash(in.Password)
		if err != nil {
			return nil, err
		}
		u.PasswordHash = hash
	}
	u.ID = s.ids.NextID()

	err := database.WithTx(ctx, s.db, nil, func(ctx context.Context, tx *sqlx.Tx) error {
		if err := userrepo.NewUserRepo(tx).Create(ctx, u); err != nil {
			return err
		}
		for _, h := range s.hooks {
			if err := h(ctx, tx, u); err != nil {
				return fmt.Errorf("after create: %w", err)
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	s.logger.Infow("user created", "user_id", u.ID, "username", u.Username, "staff", u.IsStaff)
	return u, nil
}

// GetUser returns a user by id.
func (s *UserService) GetUser(ctx context.Context, id int64) (*entity.User, error) {
	return s.users.GetByID(ctx, id)
}

// ListUsers pages through users ordered by id.
func (s *UserService) ListUsers(ctx context.Context, includeInactive bool, limit, offset int) ([]*entity.User, error) {
	if limit <= 0 {
		limit = defaultListLimit
	}
	if limit > maxListLimit {
		limit = maxListLimit
	}
	if offset < 0 {
		offset = 0
	}
	return s.users.List(ctx, includeInactive, limit, offset)
}

// UpdateUserInput holds optional changes; nil fields are left alone.
type UpdateUserInput struct {
	Email       *string
	FirstName   *string
	LastName    *string
	IsStaff     *bool
	IsSuperuser *bool
}

// UpdateUser applies changes and revalidates. No hooks run on update.
func (s *UserService) UpdateUser(ctx context.Context, id int64, in UpdateUserInput) (*entity.User, error) {
	u, err := s.users.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if in.Email != nil {
		u.Email = entity.NormalizeEmail(*in.Email)
	}
	if in.FirstName != nil {
		u.FirstName = strings.TrimSpace(*in.FirstName)
	}
	if in.LastName != nil {
		u.LastName = strings.TrimSpace(*in.LastName)
	}
	if in.IsStaff != nil {
		u.IsStaff = *in.IsStaff
	}
	if in.IsSuperuser != nil {
		u.IsSuperuser = *in.IsSuperuser
	}
	if err := u.Validate(); err != nil {
		return nil, err
	}
	if err := s.users.Update(ctx, u); err != nil {
		return nil, err
	}
	return u, nil
}

// AuthenticatePassword checks a password for a username, or for an email when
// the identifier contains '@'. Unknown, inactive and wrong-password cases all
// return ErrBadCredentials.
func (s *UserService) AuthenticatePassword(ctx context.Context, identifier, password string) (*entity.User, error) {
	identifier = strings.TrimSpace(identifier)
	if identifier == "" || password == "" {
		return nil, ErrBadCredentials
	}

	var u *entity.User
	var err error
	if strings.Contains(identifier, "@") {
		u, err = s.users.GetByEmail(ctx, entity.NormalizeEmail(identifier))
	} else {
		u, err = s.users.GetByUsername(ctx, identifier)
	}
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return nil, ErrBadCredentials
		} // avoid user enumeration
		return nil, err
	}
	if !u.IsActive || !u.HasUsablePassword() || !s.hasher.Verify(u.PasswordHash, password) {
		return nil, ErrBadCredentials
	}

	if s.hasher.NeedsRehash(u.PasswordHash) {
		if h, hErr := s.hasher.Hash(password); hErr == nil {
			if uErr := s.users.UpdatePassword(ctx, u.ID, h); uErr != nil {
				s.logger.Warnw("password rehash failed", "user_id", u.ID, "err", uErr)
			} else {
				u.PasswordHash = h
			}
		}
	}
	return s.recordLogin(ctx, u)
}

// AuthenticateToken logs in the companion client by its auth token.
func (s *UserService) AuthenticateToken(ctx context.Context, token string) (*entity.User, error) {
	token = strings.TrimSpace(token)
	if token == "" {
		return nil, ErrBadCredentials
	}
	u, err := s.users.GetByAuthToken(ctx, token)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return nil, ErrBadCredentials
		}
		return nil, err
	}
	if !u.IsActive {
		return nil, ErrBadCredentials
	}
	return s.recordLogin(ctx, u)
}

func (s *UserService) recordLogin(ctx context.Context, u *entity.User) (*entity.User, error) {
	at := s.now()
	if err := s.users.TouchLastLogin(ctx, u.ID, at); err != nil {
		return nil, err
	}
	u.LastLogin = &at
	return u, nil
}

// RotateAuthToken replaces the companion-client token with a fresh one.
func (s *UserService) RotateAuthToken(ctx context.Context, id int64) (string, error) {
	tok, err := entity.GenerateAuthToken()
	if err != nil {
		return "", err
	}
	if err := s.users.SetAuthToken(ctx, id, tok); err != nil {
		return "", err
	}
	s.logger.Infow("auth token rotated", "user_id", id)
	return tok, nil
}

// SetPassword hashes and stores a new password. An empty password marks it unusable.
func (s *UserService) SetPassword(ctx context.Context, id int64, password string) error {
	hash := ""
	if password != "" {
		h, err := s.hasher.Hash(password)
		if err != nil {
			return err
		}
		hash = h
	}
	return s.users.UpdatePassword(ctx, id, hash)
}

// Deactivate soft-deletes the account.
func (s *UserService) Deactivate(ctx context.Context, id int64) error {
	if err := s.users.SetActive(ctx, id, false); err != nil {
		return err
	}
	s.logger.Infow("user deactivated", "user_id", id)
	return nil
}

// Reactivate undoes Deactivate.
func (s *UserService) Reactivate(ctx context.Context, id int64) error {
	return s.users.SetActive(ctx, id, true)
}

// DeleteUser removes the account for good; the profile is removed with it.
// Only the manage command calls it, HTTP clients deactivate instead.
func (s *UserService) DeleteUser(ctx context.Context, id int64) error {
	if err := s.users.Delete(ctx, id); err != nil {
		return err
	}
	s.logger.Infow("user deleted", "user_id", id)
	return nil
}

// GetProfile returns the legacy forum bridge of a user.
func (s *UserService) GetProfile(ctx context.Context, userID int64) (*entity.Profile, error) {
	return s.profiles.GetByUserID(ctx, userID)
}

// FindByMybbUID resolves a legacy forum account to its profile.
func (s *UserService) FindByMybbUID(ctx context.Context, uid int64) (*entity.Profile, error) {
	if !entity.ValidMybbUID(uid) {
		return nil, ErrNotFound
	}
	return s.profiles.GetByMybbUID(ctx, uid)
}

// UpdateProfile stores the forum login key and uid once the migration knows them.
func (s *UserService) UpdateProfile(ctx context.Context, userID int64, loginKey string, uid *int64) (*entity.Profile, error) {
	p, err := s.profiles.GetByUserID(ctx, userID)
	if err != nil {
		return nil, err
	}
	p.MybbLoginKey = loginKey
	p.MybbUID = uid
	if err := p.Validate(); err != nil {
		return nil, err
	}
	if err := s.profiles.Update(ctx, p); err != nil {
		return nil, err
	}
	return p, nil
}

// EmailUser sends a message to the user's address. Errors from the mailer
// are returned wrapped, never swallowed.
func (s *UserService) EmailUser(ctx context.Context, id int64, subject, message, from string) error {
	if s.mailer == nil {
		return ErrNoMailer
	}
	u, err := s.users.GetByID(ctx, id)
	if err != nil {
		return err
	}
	if err := s.mailer.Send(ctx, from, subject, message, []string{u.Email}); err != nil {
		return fmt.Errorf("email user %d: %w", id, err)
	}
	return nil
}
