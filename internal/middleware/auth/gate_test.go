package auth

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/labstack/echo/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Skotchmaster/ticket_reservation/internal/models"
	"github.com/Skotchmaster/ticket_reservation/internal/repo"
	"github.com/Skotchmaster/ticket_reservation/internal/service"
	"github.com/Skotchmaster/ticket_reservation/internal/testdb"
	pkg_hash "github.com/Skotchmaster/ticket_reservation/pkg/hash"
	"github.com/Skotchmaster/ticket_reservation/pkg/tokens"
)

var secret = []byte("gate-secret")

type gateFixture struct {
	e    *echo.Echo
	repo *repo.GormRepo
	svc  *service.AuthService
	now  time.Time
}

func newGateFixture(t *testing.T) *gateFixture {
	t.Helper()

	f := &gateFixture{
		e:    echo.New(),
		repo: &repo.GormRepo{DB: testdb.New(t)},
		now:  time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC),
	}
	clock := func() time.Time { return f.now }

	codec := tokens.NewCodec(secret, "", "", 10*time.Minute)
	codec.Now = clock
	f.svc = &service.AuthService{Users: f.repo, Sessions: f.repo, Tokens: codec, Now: clock}

	gate := &Gate{Tokens: codec, Users: f.repo, Sessions: f.repo, Now: clock}
	ok := func(c echo.Context) error {
		u, found := UserFromContext(c)
		if !found {
			return c.NoContent(http.StatusInternalServerError)
		}
		sid, _ := SessionIDFromContext(c)
		return c.JSON(http.StatusOK, map[string]any{"id": u.ID, "sid": sid})
	}
	f.e.GET("/user", ok, gate.Require(models.RoleUser))
	f.e.GET("/organizer", ok, gate.Require(models.RoleOrganizer))
	return f
}

func (f *gateFixture) user(t *testing.T, email string, role models.Role) *models.User {
	t.Helper()
	h, err := pkg_hash.HashPassword("password1")
	require.NoError(t, err)
	u := &models.User{Name: "Ona", Email: email, PasswordHash: h, Role: role}
	require.NoError(t, f.repo.CreateUser(context.Background(), u))
	return u
}

func (f *gateFixture) login(t *testing.T, email string) *service.LoginResult {
	t.Helper()
	res, err := f.svc.Login(context.Background(), service.LoginInput{Email: email, Password: "password1"})
	require.NoError(t, err)
	return res
}

func (f *gateFixture) get(path, token string) error {
	req := httptest.NewRequest(http.MethodGet, path, nil)
	if token != "" {
		req.Header.Set(echo.HeaderAuthorization, "Bearer "+token)
	}
	rec := httptest.NewRecorder()
	c := f.e.NewContext(req, rec)
	f.e.Router().Find(http.MethodGet, path, c)
	return c.Handler()(c)
}

func requireHTTPError(t *testing.T, err error, code int, msg string) {
	t.Helper()
	he, ok := err.(*echo.HTTPError)
	require.True(t, ok, "expected HTTPError, got %v", err)
	assert.Equal(t, code, he.Code)
	assert.Equal(t, msg, he.Message)
}

func TestGate_Admits(t *testing.T) {
	f := newGateFixture(t)
	f.user(t, "ona@x.com", models.RoleUser)
	res := f.login(t, "ona@x.com")

	assert.NoError(t, f.get("/user", res.AccessToken))
}

func TestGate_MissingToken(t *testing.T) {
	f := newGateFixture(t)
	requireHTTPError(t, f.get("/user", ""), http.StatusUnauthorized, MsgTokenNotProvided)
}

func TestGate_RoleOrdering(t *testing.T) {
	f := newGateFixture(t)
	f.user(t, "user@x.com", models.RoleUser)
	f.user(t, "admin@x.com", models.RoleAdmin)

	userRes := f.login(t, "user@x.com")
	requireHTTPError(t, f.get("/organizer", userRes.AccessToken), http.StatusForbidden, MsgForbidden)

	adminRes := f.login(t, "admin@x.com")
	assert.NoError(t, f.get("/organizer", adminRes.AccessToken))
}

func TestGate_ExpiredOrForeignToken(t *testing.T) {
	f := newGateFixture(t)
	f.user(t, "ona@x.com", models.RoleUser)
	res := f.login(t, "ona@x.com")

	requireHTTPError(t, f.get("/user", "not-a-jwt"), http.StatusUnauthorized, MsgTokenExpired)

	other := tokens.NewCodec([]byte("other-secret"), "", "", time.Minute)
	forged, _, err := other.Encode(tokens.Subject{UserID: res.User.ID, SessionID: res.Session.ID})
	require.NoError(t, err)
	requireHTTPError(t, f.get("/user", forged), http.StatusUnauthorized, MsgTokenExpired)

	wrongAud := tokens.NewCodec(secret, "SomeoneElse", "", time.Minute)
	wrongAud.Now = func() time.Time { return f.now }
	tok, _, err := wrongAud.Encode(tokens.Subject{UserID: res.User.ID, SessionID: res.Session.ID})
	require.NoError(t, err)
	requireHTTPError(t, f.get("/user", tok), http.StatusUnauthorized, MsgTokenExpired)

	f.now = f.now.Add(10 * time.Minute)
	requireHTTPError(t, f.get("/user", res.AccessToken), http.StatusUnauthorized, MsgTokenExpired)
}

func TestGate_UserNotFound(t *testing.T) {
	f := newGateFixture(t)
	u := f.user(t, "ona@x.com", models.RoleUser)
	res := f.login(t, "ona@x.com")

	require.NoError(t, f.repo.DB.Delete(&models.User{}, u.ID).Error)
	requireHTTPError(t, f.get("/user", res.AccessToken), http.StatusNotFound, MsgUserNotFound)
}

func TestGate_LogoutRevokesImmediately(t *testing.T) {
	f := newGateFixture(t)
	f.user(t, "ona@x.com", models.RoleUser)
	res := f.login(t, "ona@x.com")

	require.NoError(t, f.get("/user", res.AccessToken))
	require.NoError(t, f.svc.LogOut(context.Background(), res.RefreshToken))

	requireHTTPError(t, f.get("/user", res.AccessToken), http.StatusUnauthorized, MsgSessionExpired)
}

func TestGate_SessionMustBelongToUser(t *testing.T) {
	f := newGateFixture(t)
	ona := f.user(t, "ona@x.com", models.RoleUser)
	f.user(t, "jonas@x.com", models.RoleUser)
	jonas := f.login(t, "jonas@x.com")

	codec := tokens.NewCodec(secret, "", "", time.Minute)
	codec.Now = func() time.Time { return f.now }
	tok, _, err := codec.Encode(tokens.Subject{UserID: ona.ID, SessionID: jonas.Session.ID})
	require.NoError(t, err)
	requireHTTPError(t, f.get("/user", tok), http.StatusUnauthorized, MsgSessionExpired)

	tok, _, err = codec.Encode(tokens.Subject{UserID: ona.ID, SessionID: 9999})
	require.NoError(t, err)
	requireHTTPError(t, f.get("/user", tok), http.StatusUnauthorized, MsgSessionExpired)
}

func TestGate_BadSubject(t *testing.T) {
	f := newGateFixture(t)
	claims := tokens.AccessClaims{
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   "abc",
			Issuer:    tokens.DefaultIssuer,
			Audience:  jwt.ClaimStrings{tokens.DefaultAudience},
			ExpiresAt: jwt.NewNumericDate(f.now.Add(time.Minute)),
		},
	}
	tok, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(secret)
	require.NoError(t, err)
	requireHTTPError(t, f.get("/user", tok), http.StatusUnauthorized, MsgTokenExpired)
}

func TestBearerToken(t *testing.T) {
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	assert.Empty(t, bearerToken(req))

	req.Header.Set(echo.HeaderAuthorization, "Basic abc")
	assert.Empty(t, bearerToken(req))

	req.Header.Set(echo.HeaderAuthorization, "bearer abc")
	assert.Equal(t, "abc", bearerToken(req))
}
