package httpserver

import (
	"context"
	"errors"
	"net/http"
	"testing"

	"github.com/google/uuid"
	"github.com/pscheid92/hostingroble/internal/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testUser() *domain.User {
	return &domain.User{ID: testUserID, Email: "ana@example.com", Name: "Ana Ruiz"}
}

func sessionCookie(t *testing.T, cookies []*http.Cookie) *http.Cookie {
	t.Helper()
	for _, c := range cookies {
		if c.Name == sessionName {
			return c
		}
	}
	t.Fatalf("no %s cookie set", sessionName)
	return nil
}

func TestRegister_Success(t *testing.T) {
	var gotEmail, gotName, gotPassword string
	svc := &mockAppService{
		registerFn: func(_ context.Context, email, name, password string) (*domain.User, error) {
			gotEmail, gotName, gotPassword = email, name, password
			return testUser(), nil
		},
	}
	srv := newTestServer(t, svc)

	rec := serve(t, srv, http.MethodPost, "/api/auth/register",
		`{"email":"ana@example.com","password":"hunter22","name":"Ana Ruiz"}`)

	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	assert.Equal(t, "ana@example.com", gotEmail)
	assert.Equal(t, "Ana Ruiz", gotName)
	assert.Equal(t, "hunter22", gotPassword)

	resp := decodeData[authResponse](t, rec)
	assert.Equal(t, testToken, resp.Token)
	assert.Equal(t, testUserID, resp.User.ID)
	assert.NotNil(t, sessionCookie(t, rec.Result().Cookies()))
}

func TestRegister_Validation(t *testing.T) {
	tests := []struct {
		name  string
		body  string
		field string
	}{
		{"short password", `{"email":"ana@example.com","password":"123","name":"Ana"}`, "password"},
		{"bad email", `{"email":"not-an-email","password":"hunter22","name":"Ana"}`, "email"},
		{"missing name", `{"email":"ana@example.com","password":"hunter22"}`, "name"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			srv := newTestServer(t, &mockAppService{})

			rec := serve(t, srv, http.MethodPost, "/api/auth/register", tt.body)

			require.Equal(t, http.StatusBadRequest, rec.Code)
			env := decode(t, rec)
			assert.False(t, env.Success)
			assert.Equal(t, "validation", env.Type)
			assert.Equal(t, tt.field, env.Context["field"])
		})
	}
}

func TestRegister_MalformedJSON(t *testing.T) {
	srv := newTestServer(t, &mockAppService{})

	rec := serve(t, srv, http.MethodPost, "/api/auth/register", `{"email":`)

	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "validation", decode(t, rec).Type)
}

func TestRegister_DuplicateEmail(t *testing.T) {
	svc := &mockAppService{
		registerFn: func(context.Context, string, string, string) (*domain.User, error) {
			return nil, domain.ErrEmailTaken
		},
	}
	srv := newTestServer(t, svc)

	rec := serve(t, srv, http.MethodPost, "/api/auth/register",
		`{"email":"ana@example.com","password":"hunter22","name":"Ana"}`)

	assert.Equal(t, http.StatusConflict, rec.Code)
	assert.Equal(t, "conflict", decode(t, rec).Type)
}

func TestLogin_InvalidCredentials(t *testing.T) {
	srv := newTestServer(t, &mockAppService{})

	rec := serve(t, srv, http.MethodPost, "/api/auth/login", `{"email":"ana@example.com","password":"wrong"}`)

	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	assert.Equal(t, "invalid email or password", decode(t, rec).Error)
}

func TestLogin_SessionAuthenticatesLaterRequests(t *testing.T) {
	svc := &mockAppService{
		authenticateFn: func(context.Context, string, string) (*domain.User, error) { return testUser(), nil },
	}
	srv := newTestServer(t, svc)

	rec := serve(t, srv, http.MethodPost, "/api/auth/login", `{"email":"ana@example.com","password":"hunter22"}`)
	require.Equal(t, http.StatusOK, rec.Code)
	cookie := sessionCookie(t, rec.Result().Cookies())

	me := serve(t, srv, http.MethodGet, "/api/auth/me", "", func(r *http.Request) { r.AddCookie(cookie) })

	require.Equal(t, http.StatusOK, me.Code, me.Body.String())
	assert.Equal(t, testUserID, decodeData[meResponse](t, me).ID)
}

func TestMe_RequiresAuthentication(t *testing.T) {
	srv := newTestServer(t, &mockAppService{})

	tests := []struct {
		name   string
		header string
	}{
		{"no credentials", ""},
		{"invalid token", "Bearer nope"},
		{"wrong scheme", "Basic " + testToken},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := serve(t, srv, http.MethodGet, "/api/auth/me", "", func(r *http.Request) {
				if tt.header != "" {
					r.Header.Set("Authorization", tt.header)
				}
			})
			assert.Equal(t, http.StatusUnauthorized, rec.Code)
			assert.Equal(t, "unauthorized", decode(t, rec).Type)
		})
	}
}

func TestMe_IncludesApplicationSummary(t *testing.T) {
	svc := &mockAppService{
		listApplicationsFn: func(_ context.Context, userID uuid.UUID) ([]domain.Application, error) {
			assert.Equal(t, testUserID, userID)
			return []domain.Application{*sampleApplication()}, nil
		},
	}
	srv := newTestServer(t, svc)

	rec := serve(t, srv, http.MethodGet, "/api/auth/me", "", withBearer)

	require.Equal(t, http.StatusOK, rec.Code)
	me := decodeData[meResponse](t, rec)
	assert.Equal(t, "Ana Ruiz", me.Name)
	require.Len(t, me.Applications, 1)
	assert.Equal(t, "my-site.ana-ruiz.hostingroble.com", me.Applications[0].Domain)
	assert.Equal(t, domain.StateRunning, me.Applications[0].Status)
}

func TestLogout_ExpiresSession(t *testing.T) {
	srv := newTestServer(t, &mockAppService{})

	rec := serve(t, srv, http.MethodPost, "/api/auth/logout", "")

	require.Equal(t, http.StatusOK, rec.Code)
	cookie := sessionCookie(t, rec.Result().Cookies())
	assert.Negative(t, cookie.MaxAge)
}

func TestAuthEndpoints_RateLimited(t *testing.T) {
	srv := newTestServer(t, &mockAppService{})

	for range authLimit {
		rec := serve(t, srv, http.MethodPost, "/api/auth/login", `{"email":"ana@example.com","password":"wrong"}`)
		require.Equal(t, http.StatusUnauthorized, rec.Code)
	}

	rec := serve(t, srv, http.MethodPost, "/api/auth/login", `{"email":"ana@example.com","password":"wrong"}`)

	assert.Equal(t, http.StatusTooManyRequests, rec.Code)
	assert.Equal(t, authDenyMessage, decode(t, rec).Error)
}

func TestLogin_TokenIssueFailure(t *testing.T) {
	svc := &mockAppService{
		authenticateFn: func(context.Context, string, string) (*domain.User, error) { return testUser(), nil },
	}
	tokens := &mockTokens{
		issueFn: func(uuid.UUID, string) (string, error) { return "", errors.New("signing failed") },
	}
	srv := newTestServer(t, svc, withTokens(tokens))

	rec := serve(t, srv, http.MethodPost, "/api/auth/login", `{"email":"ana@example.com","password":"hunter22"}`)

	assert.Equal(t, http.StatusInternalServerError, rec.Code)
	assert.Empty(t, rec.Result().Cookies())
}
