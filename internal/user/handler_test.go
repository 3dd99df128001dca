package user

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/ovaphlow/pitchfork/service-account/internal/user/entity"
)

// stubAccounts returns canned values and records the last call's inputs.
type stubAccounts struct {
	user    *entity.User
	profile *entity.Profile
	users   []*entity.User
	token   string
	err     error

	created     CreateUserInput
	updated     UpdateUserInput
	lastID      int64
	loginKey    string
	uid         *int64
	listAll     bool
	listLimit   int
	emailFields [3]string
}

func (s *stubAccounts) CreateUser(ctx context.Context, in CreateUserInput) (*entity.User, error) {
	s.created = in
	return s.user, s.err
}

func (s *stubAccounts) GetUser(ctx context.Context, id int64) (*entity.User, error) {
	s.lastID = id
	return s.user, s.err
}

func (s *stubAccounts) ListUsers(ctx context.Context, includeInactive bool, limit, offset int) ([]*entity.User, error) {
	s.listAll, s.listLimit = includeInactive, limit
	return s.users, s.err
}

func (s *stubAccounts) UpdateUser(ctx context.Context, id int64, in UpdateUserInput) (*entity.User, error) {
	s.lastID, s.updated = id, in
	return s.user, s.err
}

func (s *stubAccounts) AuthenticatePassword(ctx context.Context, identifier, password string) (*entity.User, error) {
	return s.user, s.err
}

func (s *stubAccounts) AuthenticateToken(ctx context.Context, token string) (*entity.User, error) {
	return s.user, s.err
}

func (s *stubAccounts) RotateAuthToken(ctx context.Context, id int64) (string, error) {
	s.lastID = id
	return s.token, s.err
}

func (s *stubAccounts) SetPassword(ctx context.Context, id int64, password string) error {
	s.lastID = id
	return s.err
}

func (s *stubAccounts) Deactivate(ctx context.Context, id int64) error {
	s.lastID = id
	return s.err
}

func (s *stubAccounts) Reactivate(ctx context.Context, id int64) error {
	s.lastID = id
	return s.err
}

func (s *stubAccounts) GetProfile(ctx context.Context, userID int64) (*entity.Profile, error) {
	s.lastID = userID
	return s.profile, s.err
}

func (s *stubAccounts) UpdateProfile(ctx context.Context, userID int64, loginKey string, uid *int64) (*entity.Profile, error) {
	s.lastID, s.loginKey, s.uid = userID, loginKey, uid
	return s.profile, s.err
}

func (s *stubAccounts) FindByMybbUID(ctx context.Context, uid int64) (*entity.Profile, error) {
	s.uid = &uid
	return s.profile, s.err
}

func (s *stubAccounts) EmailUser(ctx context.Context, id int64, subject, message, from string) error {
	s.lastID = id
	s.emailFields = [3]string{subject, message, from}
	return s.err
}

func newTestMux(stub *stubAccounts) *http.ServeMux {
	h := &Handler{svc: stub, logger: zap.NewNop().Sugar()}
	mux := http.NewServeMux()
	h.Mount(mux, "/accounts")
	return mux
}

func do(mux http.Handler, method, path, body string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	rec := httptest.NewRecorder()
	mux.ServeHTTP(rec, req)
	return rec
}

func sampleAda() *entity.User {
	return &entity.User{ID: 7, Username: "ada", Email: "ada@example.com", AuthToken: "0123456789abcdef0123456789abcd",
		PasswordHash: "$2a$04$hash", FirstName: "Ada", LastName: "Lovelace", IsActive: true}
}

func TestRegister_Created(t *testing.T) {
	stub := &stubAccounts{user: sampleAda()}
	rec := do(newTestMux(stub), http.MethodPost, "/accounts/users",
		`{"username":"ada","email":"ada@example.com","password":"pw","first_name":"Ada","last_name":"Lovelace"}`)

	require.Equal(t, http.StatusCreated, rec.Code)
	assert.Equal(t, "ada", stub.created.Username)
	assert.Equal(t, "pw", stub.created.Password)

	var body map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, "0123456789abcdef0123456789abcd", body["authtoken"])
	assert.Equal(t, "Ada Lovelace", body["full_name"])
	assert.Equal(t, "Ada", body["short_name"])
	assert.NotContains(t, rec.Body.String(), "password_hash")
}

func TestRegister_ErrorMapping(t *testing.T) {
	cases := []struct {
		err  error
		code int
	}{
		{&entity.ValidationError{Fields: map[string]string{"email": "enter a valid email address"}}, http.StatusBadRequest},
		{ErrUsernameTaken, http.StatusConflict},
		{ErrEmailTaken, http.StatusConflict},
		{ErrAuthTokenTaken, http.StatusConflict},
		{errors.New("boom"), http.StatusInternalServerError},
	}
	for _, c := range cases {
		stub := &stubAccounts{err: c.err}
		rec := do(newTestMux(stub), http.MethodPost, "/accounts/users", `{"username":"ada","email":"x"}`)
		assert.Equal(t, c.code, rec.Code, c.err.Error())
	}
}

func TestRegister_ValidationFieldsInBody(t *testing.T) {
	stub := &stubAccounts{err: &entity.ValidationError{Fields: map[string]string{"email": "enter a valid email address"}}}
	rec := do(newTestMux(stub), http.MethodPost, "/accounts/users", `{}`)

	var body struct {
		Fields map[string]string `json:"fields"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, "enter a valid email address", body.Fields["email"])
}

func TestRegister_BadJSON(t *testing.T) {
	rec := do(newTestMux(&stubAccounts{}), http.MethodPost, "/accounts/users", `{`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestGet_HidesToken(t *testing.T) {
	stub := &stubAccounts{user: sampleAda()}
	rec := do(newTestMux(stub), http.MethodGet, "/accounts/users/7", "")

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, int64(7), stub.lastID)
	assert.NotContains(t, rec.Body.String(), "authtoken")
	assert.NotContains(t, rec.Body.String(), "0123456789abcdef")
}

func TestGet_BadIDAndNotFound(t *testing.T) {
	mux := newTestMux(&stubAccounts{err: ErrNotFound})
	assert.Equal(t, http.StatusBadRequest, do(mux, http.MethodGet, "/accounts/users/abc", "").Code)
	assert.Equal(t, http.StatusBadRequest, do(mux, http.MethodGet, "/accounts/users/0", "").Code)
	assert.Equal(t, http.StatusNotFound, do(mux, http.MethodGet, "/accounts/users/9", "").Code)
}

func TestList(t *testing.T) {
	stub := &stubAccounts{users: []*entity.User{sampleAda()}}
	rec := do(newTestMux(stub), http.MethodGet, "/accounts/users?include_inactive=true&limit=10", "")

	require.Equal(t, http.StatusOK, rec.Code)
	assert.True(t, stub.listAll)
	assert.Equal(t, 10, stub.listLimit)
	var body []map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	require.Len(t, body, 1)
	assert.Equal(t, "ada", body[0]["username"])
	assert.NotContains(t, body[0], "authtoken")
}

func TestList_BadPaging(t *testing.T) {
	mux := newTestMux(&stubAccounts{})
	assert.Equal(t, http.StatusBadRequest, do(mux, http.MethodGet, "/accounts/users?limit=abc", "").Code)
	assert.Equal(t, http.StatusBadRequest, do(mux, http.MethodGet, "/accounts/users?offset=1.5", "").Code)
	assert.Equal(t, http.StatusOK, do(mux, http.MethodGet, "/accounts/users?limit=&offset=", "").Code)
}

func TestUpdate(t *testing.T) {
	stub := &stubAccounts{user: sampleAda()}
	rec := do(newTestMux(stub), http.MethodPatch, "/accounts/users/7", `{"first_name":"Augusta","is_staff":true}`)

	require.Equal(t, http.StatusOK, rec.Code)
	require.NotNil(t, stub.updated.FirstName)
	assert.Equal(t, "Augusta", *stub.updated.FirstName)
	require.NotNil(t, stub.updated.IsStaff)
	assert.True(t, *stub.updated.IsStaff)
	assert.Nil(t, stub.updated.Email)
}

func TestDeactivateActivatePassword(t *testing.T) {
	stub := &stubAccounts{}
	mux := newTestMux(stub)
	assert.Equal(t, http.StatusNoContent, do(mux, http.MethodDelete, "/accounts/users/7", "").Code)
	assert.Equal(t, http.StatusNoContent, do(mux, http.MethodPost, "/accounts/users/7/activate", "").Code)
	assert.Equal(t, http.StatusNoContent, do(mux, http.MethodPost, "/accounts/users/7/password", `{"password":"new"}`).Code)
	assert.Equal(t, int64(7), stub.lastID)
}

func TestRotateToken(t *testing.T) {
	stub := &stubAccounts{token: "fresh"}
	rec := do(newTestMux(stub), http.MethodPost, "/accounts/users/7/authtoken", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"authtoken":"fresh"}`, rec.Body.String())
}

func TestEmail(t *testing.T) {
	stub := &stubAccounts{}
	rec := do(newTestMux(stub), http.MethodPost, "/accounts/users/7/email", `{"subject":"s","message":"m","from":"f@example.com"}`)
	assert.Equal(t, http.StatusAccepted, rec.Code)
	assert.Equal(t, [3]string{"s", "m", "f@example.com"}, stub.emailFields)

	stub.err = errors.New("smtp down")
	rec = do(newTestMux(stub), http.MethodPost, "/accounts/users/7/email", `{"subject":"s"}`)
	assert.Equal(t, http.StatusInternalServerError, rec.Code)

	stub.err = ErrNoMailer
	rec = do(newTestMux(stub), http.MethodPost, "/accounts/users/7/email", `{"subject":"s"}`)
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
}

func TestProfileEndpoints(t *testing.T) {
	uid := int64(1234)
	stub := &stubAccounts{profile: &entity.Profile{ID: 1, UserID: 7, MybbLoginKey: "lk", MybbUID: &uid}}
	mux := newTestMux(stub)

	rec := do(mux, http.MethodGet, "/accounts/users/7/profile", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"id":1,"user_id":7,"mybb_loginkey":"lk","mybb_uid":1234}`, rec.Body.String())

	rec = do(mux, http.MethodPut, "/accounts/users/7/profile", `{"mybb_loginkey":"lk","mybb_uid":1234}`)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "lk", stub.loginKey)
	require.NotNil(t, stub.uid)
	assert.Equal(t, int64(1234), *stub.uid)
}

func TestProfileUIDConflictAndRange(t *testing.T) {
	mux := newTestMux(&stubAccounts{err: ErrMybbUIDTaken})
	rec := do(mux, http.MethodPut, "/accounts/users/7/profile", `{"mybb_uid":1234}`)
	assert.Equal(t, http.StatusConflict, rec.Code)

	mux = newTestMux(&stubAccounts{err: &entity.ValidationError{Fields: map[string]string{"mybb_uid": "out of range"}}})
	rec = do(mux, http.MethodPut, "/accounts/users/7/profile", `{"mybb_uid":3000000000}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestFindProfile(t *testing.T) {
	uid := int64(1234)
	stub := &stubAccounts{profile: &entity.Profile{ID: 1, UserID: 7, MybbUID: &uid}}
	mux := newTestMux(stub)

	rec := do(mux, http.MethodGet, "/accounts/profiles?mybb_uid=1234", "")
	require.Equal(t, http.StatusOK, rec.Code)
	require.NotNil(t, stub.uid)
	assert.Equal(t, int64(1234), *stub.uid)
	assert.Contains(t, rec.Body.String(), `"user_id":7`)

	assert.Equal(t, http.StatusBadRequest, do(mux, http.MethodGet, "/accounts/profiles", "").Code)
	assert.Equal(t, http.StatusBadRequest, do(mux, http.MethodGet, "/accounts/profiles?mybb_uid=x", "").Code)

	mux = newTestMux(&stubAccounts{err: ErrNotFound})
	assert.Equal(t, http.StatusNotFound, do(mux, http.MethodGet, "/accounts/profiles?mybb_uid=5", "").Code)
}

func TestDecode_BodyTooLarge(t *testing.T) {
	stub := &stubAccounts{user: sampleAda()}
	big := `{"username":"` + strings.Repeat("a", maxBodyBytes) + `"}`
	rec := do(newTestMux(stub), http.MethodPost, "/accounts/users", big)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Empty(t, stub.created.Username)
}

func TestLogin(t *testing.T) {
	mux := newTestMux(&stubAccounts{user: sampleAda()})
	rec := do(mux, http.MethodPost, "/accounts/login", `{"identifier":"ada","password":"pw"}`)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.NotContains(t, rec.Body.String(), "authtoken")

	mux = newTestMux(&stubAccounts{err: ErrBadCredentials})
	rec = do(mux, http.MethodPost, "/accounts/login", `{"identifier":"ada","password":"bad"}`)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestTokenLogin(t *testing.T) {
	mux := newTestMux(&stubAccounts{user: sampleAda()})
	rec := do(mux, http.MethodPost, "/accounts/token-login", `{"authtoken":"0123456789abcdef0123456789abcd"}`)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"authtoken":"0123456789abcdef0123456789abcd"`)

	mux = newTestMux(&stubAccounts{err: ErrBadCredentials})
	rec = do(mux, http.MethodPost, "/accounts/token-login", `{"authtoken":"nope"}`)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}
