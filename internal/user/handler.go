package user

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"

	"go.uber.org/zap"

	"github.com/ovaphlow/pitchfork/service-account/internal/user/entity"
)

// accounts is the part of UserService the HTTP layer needs.
type accounts interface {
	CreateUser(ctx context.Context, in CreateUserInput) (*entity.User, error)
	GetUser(ctx context.Context, id int64) (*entity.User, error)
	ListUsers(ctx context.Context, includeInactive bool, limit, offset int) ([]*entity.User, error)
	UpdateUser(ctx context.Context, id int64, in UpdateUserInput) (*entity.User, error)
	AuthenticatePassword(ctx context.Context, identifier, password string) (*entity.User, error)
	AuthenticateToken(ctx context.Context, token string) (*entity.User, error)
	RotateAuthToken(ctx context.Context, id int64) (string, error)
	SetPassword(ctx context.Context, id int64, password string) error
	Deactivate(ctx context.Context, id int64) error
	Reactivate(ctx context.Context, id int64) error
	GetProfile(ctx context.Context, userID int64) (*entity.Profile, error)
	UpdateProfile(ctx context.Context, userID int64, loginKey string, uid *int64) (*entity.Profile, error)
	FindByMybbUID(ctx context.Context, uid int64) (*entity.Profile, error)
	EmailUser(ctx context.Context, id int64, subject, message, from string) error
}

// maxBodyBytes caps JSON request bodies.
const maxBodyBytes = 64 << 10

// Handler exposes HTTP endpoints for account operations.
type Handler struct {
	svc    accounts
	logger *zap.SugaredLogger
}

func NewHandler(svc *UserService, logger *zap.SugaredLogger) *Handler {
	return &Handler{svc: svc, logger: logger}
}

// Mount registers the account routes under prefix (for example "/accounts").
func (h *Handler) Mount(mux *http.ServeMux, prefix string) {
	mux.HandleFunc("POST "+prefix+"/users", h.Register)
	mux.HandleFunc("GET "+prefix+"/users", h.List)
	mux.HandleFunc("GET "+prefix+"/users/{id}", h.Get)
	mux.HandleFunc("PATCH "+prefix+"/users/{id}", h.Update)
	mux.HandleFunc("DELETE "+prefix+"/users/{id}", h.Deactivate)
	mux.HandleFunc("POST "+prefix+"/users/{id}/activate", h.Activate)
	mux.HandleFunc("POST "+prefix+"/users/{id}/password", h.SetPassword)
	mux.HandleFunc("POST "+prefix+"/users/{id}/authtoken", h.RotateToken)
	mux.HandleFunc("POST "+prefix+"/users/{id}/email", h.Email)
	mux.HandleFunc("GET "+prefix+"/users/{id}/profile", h.GetProfile)
	mux.HandleFunc("PUT "+prefix+"/users/{id}/profile", h.UpdateProfile)
	mux.HandleFunc("GET "+prefix+"/profiles", h.FindProfile)
	mux.HandleFunc("POST "+prefix+"/login", h.Login)
	mux.HandleFunc("POST "+prefix+"/token-login", h.TokenLogin)
}

// UserView is the JSON shape of a user plus its full and short names.
type UserView struct {
	*entity.User
	FullName  string `json:"full_name"`
	ShortName string `json:"short_name"`
}

// UserWithTokenView adds the auth token for the endpoints allowed to reveal it.
type UserWithTokenView struct {
	UserView
	AuthToken string `json:"authtoken"`
}

func viewOf(u *entity.User) UserView {
	return UserView{User: u, FullName: u.FullName(), ShortName: u.ShortName()}
}

func withToken(u *entity.User) UserWithTokenView {
	return UserWithTokenView{UserView: viewOf(u), AuthToken: u.AuthToken}
}

// RegisterRequest request body for the register endpoint.
type RegisterRequest struct {
	Username    string `json:"username"`
	Email       string `json:"email"`
	Password    string `json:"password"`
	AuthToken   string `json:"authtoken"`
	FirstName   string `json:"first_name"`
	LastName    string `json:"last_name"`
	IsStaff     bool   `json:"is_staff"`
	IsSuperuser bool   `json:"is_superuser"`
}

func (h *Handler) Register(w http.ResponseWriter, r *http.Request) {
	var req RegisterRequest
	if !h.decode(w, r, &req) {
		return
	}
	u, err := h.svc.CreateUser(r.Context(), CreateUserInput{
		Username:    req.Username,
		Email:       req.Email,
		Password:    req.Password,
		AuthToken:   req.AuthToken,
		FirstName:   req.FirstName,
		LastName:    req.LastName,
		IsStaff:     req.IsStaff,
		IsSuperuser: req.IsSuperuser,
	})
	if err != nil {
		h.fail(w, "register failed", err)
		return
	}
	h.writeJSON(w, http.StatusCreated, withToken(u))
}

func (h *Handler) List(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	limit, ok := h.queryInt(w, q.Get("limit"), "limit")
	if !ok {
		return
	}
	offset, ok := h.queryInt(w, q.Get("offset"), "offset")
	if !ok {
		return
	}
	all := q.Get("include_inactive") == "1" || q.Get("include_inactive") == "true"
	users, err := h.svc.ListUsers(r.Context(), all, limit, offset)
	if err != nil {
		h.fail(w, "list users failed", err)
		return
	}
	out := make([]UserView, 0, len(users))
	for _, u := range users {
		out = append(out, viewOf(u))
	}
	h.writeJSON(w, http.StatusOK, out)
}

func (h *Handler) Get(w http.ResponseWriter, r *http.Request) {
	id, ok := h.pathID(w, r)
	if !ok {
		return
	}
	u, err := h.svc.GetUser(r.Context(), id)
	if err != nil {
		h.fail(w, "get user failed", err)
		return
	}
	h.writeJSON(w, http.StatusOK, viewOf(u))
}

// UpdateRequest carries optional account changes.
type UpdateRequest struct {
	Email       *string `json:"email"`
	FirstName   *string `json:"first_name"`
	LastName    *string `json:"last_name"`
	IsStaff     *bool   `json:"is_staff"`
	IsSuperuser *bool   `json:"is_superuser"`
}

func (h *Handler) Update(w http.ResponseWriter, r *http.Request) {
	id, ok := h.pathID(w, r)
	if !ok {
		return
	}
	var req UpdateRequest
	if !h.decode(w, r, &req) {
		return
	}
	u, err := h.svc.UpdateUser(r.Context(), id, UpdateUserInput(req))
	if err != nil {
		h.fail(w, "update user failed", err)
		return
	}
	h.writeJSON(w, http.StatusOK, viewOf(u))
}

func (h *Handler) Deactivate(w http.ResponseWriter, r *http.Request) {
	id, ok := h.pathID(w, r)
	if !ok {
		return
	}
	if err := h.svc.Deactivate(r.Context(), id); err != nil {
		h.fail(w, "deactivate failed", err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) Activate(w http.ResponseWriter, r *http.Request) {
	id, ok := h.pathID(w, r)
	if !ok {
		return
	}
	if err := h.svc.Reactivate(r.Context(), id); err != nil {
		h.fail(w, "activate failed", err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// PasswordRequest sets a new password; empty makes the password unusable.
type PasswordRequest struct {
	Password string `json:"password"`
}

func (h *Handler) SetPassword(w http.ResponseWriter, r *http.Request) {
	id, ok := h.pathID(w, r)
	if !ok {
		return
	}
	var req PasswordRequest
	if !h.decode(w, r, &req) {
		return
	}
	if err := h.svc.SetPassword(r.Context(), id, req.Password); err != nil {
		h.fail(w, "set password failed", err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) RotateToken(w http.ResponseWriter, r *http.Request) {
	id, ok := h.pathID(w, r)
	if !ok {
		return
	}
	tok, err := h.svc.RotateAuthToken(r.Context(), id)
	if err != nil {
		h.fail(w, "rotate token failed", err)
		return
	}
	h.writeJSON(w, http.StatusOK, map[string]string{"authtoken": tok})
}

// EmailRequest is the payload for mailing a user.
type EmailRequest struct {
	Subject string `json:"subject"`
	Message string `json:"message"`
	From    string `json:"from"`
}

func (h *Handler) Email(w http.ResponseWriter, r *http.Request) {
	id, ok := h.pathID(w, r)
	if !ok {
		return
	}
	var req EmailRequest
	if !h.decode(w, r, &req) {
		return
	}
	if err := h.svc.EmailUser(r.Context(), id, req.Subject, req.Message, req.From); err != nil {
		h.fail(w, "email user failed", err)
		return
	}
	w.WriteHeader(http.StatusAccepted)
}

func (h *Handler) GetProfile(w http.ResponseWriter, r *http.Request) {
	id, ok := h.pathID(w, r)
	if !ok {
		return
	}
	p, err := h.svc.GetProfile(r.Context(), id)
	if err != nil {
		h.fail(w, "get profile failed", err)
		return
	}
	h.writeJSON(w, http.StatusOK, p)
}

// ProfileRequest sets the legacy forum bridge fields.
type ProfileRequest struct {
	MybbLoginKey string `json:"mybb_loginkey"`
	MybbUID      *int64 `json:"mybb_uid"`
}

func (h *Handler) UpdateProfile(w http.ResponseWriter, r *http.Request) {
	id, ok := h.pathID(w, r)
	if !ok {
		return
	}
	var req ProfileRequest
	if !h.decode(w, r, &req) {
		return
	}
	p, err := h.svc.UpdateProfile(r.Context(), id, req.MybbLoginKey, req.MybbUID)
	if err != nil {
		h.fail(w, "update profile failed", err)
		return
	}
	h.writeJSON(w, http.StatusOK, p)
}

// FindProfile resolves a legacy forum uid (?mybb_uid=) to its profile.
func (h *Handler) FindProfile(w http.ResponseWriter, r *http.Request) {
	raw := r.URL.Query().Get("mybb_uid")
	uid, err := strconv.ParseInt(raw, 10, 64)
	if err != nil {
		h.writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid mybb_uid"})
		return
	}
	p, err := h.svc.FindByMybbUID(r.Context(), uid)
	if err != nil {
		h.fail(w, "find profile failed", err)
		return
	}
	h.writeJSON(w, http.StatusOK, p)
}

// LoginRequest login payload.
type LoginRequest struct {
	Identifier string `json:"identifier"`
	Password   string `json:"password"`
}

func (h *Handler) Login(w http.ResponseWriter, r *http.Request) {
	var req LoginRequest
	if !h.decode(w, r, &req) {
		return
	}
	u, err := h.svc.AuthenticatePassword(r.Context(), req.Identifier, req.Password)
	if err != nil {
		h.fail(w, "login failed", err)
		return
	}
	h.writeJSON(w, http.StatusOK, viewOf(u))
}

// TokenLoginRequest is sent by the companion client.
type TokenLoginRequest struct {
	AuthToken string `json:"authtoken"`
}

func (h *Handler) TokenLogin(w http.ResponseWriter, r *http.Request) {
	var req TokenLoginRequest
	if !h.decode(w, r, &req) {
		return
	}
	u, err := h.svc.AuthenticateToken(r.Context(), req.AuthToken)
	if err != nil {
		h.fail(w, "token login failed", err)
		return
	}
	h.writeJSON(w, http.StatusOK, withToken(u))
}

func (h *Handler) decode(w http.ResponseWriter, r *http.Request, v any) bool {
	r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		h.logger.Debugw("invalid payload", "path", r.URL.Path, "err", err)
		h.writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid payload"})
		return false
	}
	return true
}

// queryInt parses an optional integer query parameter; empty means zero.
func (h *Handler) queryInt(w http.ResponseWriter, raw, name string) (int, bool) {
	if raw == "" {
		return 0, true
	}
	n, err := strconv.Atoi(raw)
	if err != nil {
		h.writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid " + name})
		return 0, false
	}
	return n, true
}

func (h *Handler) pathID(w http.ResponseWriter, r *http.Request) (int64, bool) {
	id, err := strconv.ParseInt(r.PathValue("id"), 10, 64)
	if err != nil || id <= 0 {
		h.writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid id"})
		return 0, false
	}
	return id, true
}

// fail maps service errors to status codes.
func (h *Handler) fail(w http.ResponseWriter, msg string, err error) {
	var ve *entity.ValidationError
	switch {
	case errors.As(err, &ve):
		h.logger.Debugw(msg, "err", err)
		h.writeJSON(w, http.StatusBadRequest, map[string]any{"error": "validation failed", "fields": ve.Fields})
	case errors.Is(err, ErrUsernameTaken), errors.Is(err, ErrEmailTaken),
		errors.Is(err, ErrAuthTokenTaken), errors.Is(err, ErrProfileExists),
		errors.Is(err, ErrMybbUIDTaken), errors.Is(err, ErrDuplicate):
		h.logger.Debugw(msg, "err", err)
		h.writeJSON(w, http.StatusConflict, map[string]string{"error": err.Error()})
	case errors.Is(err, ErrNotFound):
		h.writeJSON(w, http.StatusNotFound, map[string]string{"error": "not found"})
	case errors.Is(err, ErrBadCredentials):
		h.logger.Debugw(msg, "err", err)
		h.writeJSON(w, http.StatusUnauthorized, map[string]string{"error": "invalid credentials"})
	case errors.Is(err, ErrNoMailer):
		h.writeJSON(w, http.StatusServiceUnavailable, map[string]string{"error": err.Error()})
	default:
		h.logger.Warnw(msg, "err", err)
		h.writeJSON(w, http.StatusInternalServerError, map[string]string{"error": msg})
	}
}

func (h *Handler) writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
