package app

import (
	"bytes"
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/Wesp1nzee/crm-deploy/internal/rbac"
	"github.com/Wesp1nzee/crm-deploy/internal/session"
	"github.com/Wesp1nzee/crm-deploy/internal/store"
	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"
)

func newTestServer(t *testing.T, fs *fakeStore) (*HTTPServer, *Service) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })

	svc := newTestService(fs)
	svc.sessions = session.NewRedisStoreWithClient(client, time.Hour)
	return NewHTTPServer(svc, "http://localhost:3000"), svc
}

func sessionCookieFor(t *testing.T, svc *Service, role rbac.Role) *http.Cookie {
	t.Helper()
	actor := testActor(role)
	token, err := svc.sessions.Create(context.Background(), actor.Snapshot)
	require.NoError(t, err)
	return &http.Cookie{Name: sessionCookie, Value: token}
}

func serve(server *HTTPServer, req *http.Request) *httptest.ResponseRecorder {
	rr := httptest.NewRecorder()
	server.Handler().ServeHTTP(rr, req)
	return rr
}

func decodeResponse(t *testing.T, rr *httptest.ResponseRecorder) map[string]any {
	t.Helper()
	var payload map[string]any
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &payload), "body=%s", rr.Body.String())
	return payload
}

func TestHealthEndpoint(t *testing.T) {
	server, _ := newTestServer(t, &fakeStore{})
	rr := serve(server, httptest.NewRequest(http.MethodGet, "/api/health", nil))

	require.Equal(t, http.StatusOK, rr.Code)
	assert.Equal(t, true, decodeResponse(t, rr)["ok"])
	assert.NotEmpty(t, rr.Header().Get("X-Request-ID"))
}

func TestReadyEndpoint(t *testing.T) {
	server, _ := newTestServer(t, &fakeStore{})
	rr := serve(server, httptest.NewRequest(http.MethodGet, "/api/ready", nil))

	require.Equal(t, http.StatusOK, rr.Code, "body=%s", rr.Body.String())
	payload := decodeResponse(t, rr)
	assert.Equal(t, "ready", payload["status"])
	checks, _ := payload["checks"].(map[string]any)
	assert.Contains(t, checks, "database")
	assert.Contains(t, checks, "cache")
}

func TestReadyEndpointDatabaseDown(t *testing.T) {
	server, _ := newTestServer(t, &fakeStore{
		pingFn: func(context.Context) error { return errors.New("connection refused") },
	})
	rr := serve(server, httptest.NewRequest(http.MethodGet, "/api/ready", nil))

	require.Equal(t, http.StatusServiceUnavailable, rr.Code)
	payload := decodeResponse(t, rr)
	assert.Equal(t, "not_ready", payload["status"])
	assert.Equal(t, false, payload["ok"])
}

func TestPreflightIsAnsweredWithCORSHeaders(t *testing.T) {
	server, _ := newTestServer(t, &fakeStore{})
	rr := serve(server, httptest.NewRequest(http.MethodOptions, "/api/cases", nil))

	require.Equal(t, http.StatusNoContent, rr.Code)
	assert.Equal(t, "http://localhost:3000", rr.Header().Get("Access-Control-Allow-Origin"))
	assert.Equal(t, "true", rr.Header().Get("Access-Control-Allow-Credentials"))
}

func TestLoginSetsSessionCookie(t *testing.T) {
	hash, err := bcrypt.GenerateFromPassword([]byte("correct horse battery"), bcrypt.MinCost)
	require.NoError(t, err)
	server, _ := newTestServer(t, &fakeStore{
		getUserByEmailFn: func(_ context.Context, email string) (store.User, error) {
			assert.Equal(t, "ceo@acme.example", email)
			return store.User{
				ID:              testUserID,
				CompanyID:       testCompanyID,
				Email:           email,
				PasswordHash:    string(hash),
				FullName:        "Ivan Petrov",
				Role:            string(rbac.RoleCEO),
				CanAuthenticate: true,
			}, nil
		},
	})

	body := `{"email":"CEO@acme.example","password":"correct horse battery"}`
	rr := serve(server, httptest.NewRequest(http.MethodPost, "/api/users/login", bytes.NewBufferString(body)))
	require.Equal(t, http.StatusOK, rr.Code, "body=%s", rr.Body.String())

	var cookie *http.Cookie
	for _, c := range rr.Result().Cookies() {
		if c.Name == sessionCookie {
			cookie = c
		}
	}
	require.NotNil(t, cookie, "expected session cookie")
	assert.True(t, cookie.HttpOnly)
	assert.Equal(t, http.SameSiteLaxMode, cookie.SameSite)
	assert.Equal(t, int(sessionCookieAge.Seconds()), cookie.MaxAge)

	payload := decodeResponse(t, rr)
	assert.Equal(t, testUserID, payload["user_id"])
	company, _ := payload["company"].(map[string]any)
	assert.Equal(t, testCompanyID, company["id"])

	// The new cookie resolves to the same user.
	req := httptest.NewRequest(http.MethodGet, "/api/users/me", nil)
	req.AddCookie(cookie)
	rr = serve(server, req)
	require.Equal(t, http.StatusOK, rr.Code, "body=%s", rr.Body.String())
	assert.Equal(t, testUserID, decodeResponse(t, rr)["user_id"])
}

func TestLoginWithWrongPassword(t *testing.T) {
	hash, err := bcrypt.GenerateFromPassword([]byte("correct horse battery"), bcrypt.MinCost)
	require.NoError(t, err)
	server, _ := newTestServer(t, &fakeStore{
		getUserByEmailFn: func(_ context.Context, email string) (store.User, error) {
			return store.User{ID: testUserID, Email: email, PasswordHash: string(hash), CanAuthenticate: true}, nil
		},
	})

	body := `{"email":"ceo@acme.example","password":"wrong"}`
	rr := serve(server, httptest.NewRequest(http.MethodPost, "/api/users/login", bytes.NewBufferString(body)))
	assertErrorCode(t, rr, http.StatusUnauthorized, "UNAUTHORIZED")
}

func TestLoginWhileAuthenticatedIsRejected(t *testing.T) {
	server, _ := newTestServer(t, &fakeStore{})
	req := httptest.NewRequest(http.MethodPost, "/api/users/login", bytes.NewBufferString(`{}`))
	req.AddCookie(&http.Cookie{Name: sessionCookie, Value: "existing"})

	assertErrorCode(t, serve(server, req), http.StatusBadRequest, "ALREADY_AUTHENTICATED")
}

func TestLoginRejectsInvalidBody(t *testing.T) {
	server, _ := newTestServer(t, &fakeStore{})
	req := httptest.NewRequest(http.MethodPost, "/api/users/login", bytes.NewBufferString(`{"email":`))

	assertErrorCode(t, serve(server, req), http.StatusBadRequest, "INVALID_BODY")
}

func TestLoginValidatesFields(t *testing.T) {
	server, _ := newTestServer(t, &fakeStore{})
	req := httptest.NewRequest(http.MethodPost, "/api/users/login", bytes.NewBufferString(`{"email":"not-an-email"}`))

	rr := serve(server, req)
	assertErrorCode(t, rr, http.StatusBadRequest, "VALIDATION_ERROR")
	fields, _ := decodeResponse(t, rr)["errors"].(map[string]any)
	assert.Contains(t, fields, "email")
	assert.Contains(t, fields, "password")
}

func TestProtectedRouteWithoutCookie(t *testing.T) {
	server, _ := newTestServer(t, &fakeStore{})
	rr := serve(server, httptest.NewRequest(http.MethodGet, "/api/users/me", nil))

	assertErrorCode(t, rr, http.StatusUnauthorized, "UNAUTHORIZED")
}

func TestProtectedRouteWithUnknownSession(t *testing.T) {
	server, _ := newTestServer(t, &fakeStore{})
	req := httptest.NewRequest(http.MethodGet, "/api/cases", nil)
	req.AddCookie(&http.Cookie{Name: sessionCookie, Value: "definitely-not-a-session"})

	assertErrorCode(t, serve(server, req), http.StatusUnauthorized, "UNAUTHORIZED")
}

func TestLogoutRevokesSession(t *testing.T) {
	server, svc := newTestServer(t, &fakeStore{})
	cookie := sessionCookieFor(t, svc, rbac.RoleCEO)

	req := httptest.NewRequest(http.MethodPost, "/api/users/logout", nil)
	req.AddCookie(cookie)
	rr := serve(server, req)
	require.Equal(t, http.StatusOK, rr.Code, "body=%s", rr.Body.String())

	req = httptest.NewRequest(http.MethodGet, "/api/users/me", nil)
	req.AddCookie(cookie)
	assertErrorCode(t, serve(server, req), http.StatusUnauthorized, "UNAUTHORIZED")
}

func TestExpertCannotDeleteCase(t *testing.T) {
	server, svc := newTestServer(t, &fakeStore{
		softDeleteCaseFn: func(context.Context, string, string) (bool, error) {
			t.Fatalf("SoftDeleteCase must not be reached")
			return false, nil
		},
	})
	req := httptest.NewRequest(http.MethodDelete, "/api/cases/"+testClientID, nil)
	req.AddCookie(sessionCookieFor(t, svc, rbac.RoleExpert))

	assertErrorCode(t, serve(server, req), http.StatusForbidden, "FORBIDDEN")
}

func TestExpertDeleteWithMalformedIDIsForbidden(t *testing.T) {
	server, svc := newTestServer(t, &fakeStore{})
	expert := sessionCookieFor(t, svc, rbac.RoleExpert)
	for _, path := range []string{"/api/cases/not-a-uuid", "/api/cases/42"} {
		req := httptest.NewRequest(http.MethodDelete, path, nil)
		req.AddCookie(expert)
		assertErrorCode(t, serve(server, req), http.StatusForbidden, "FORBIDDEN")
	}

	req := httptest.NewRequest(http.MethodDelete, "/api/cases/not-a-uuid", nil)
	req.AddCookie(sessionCookieFor(t, svc, rbac.RoleCEO))
	assertErrorCode(t, serve(server, req), http.StatusNotFound, "NOT_FOUND")
}

func TestDeleteCaseReturnsNoContent(t *testing.T) {
	var deletedID string
	server, svc := newTestServer(t, &fakeStore{
		softDeleteCaseFn: func(_ context.Context, companyID, caseID string) (bool, error) {
			assert.Equal(t, testCompanyID, companyID)
			deletedID = caseID
			return true, nil
		},
	})
	req := httptest.NewRequest(http.MethodDelete, "/api/cases/"+testClientID, nil)
	req.AddCookie(sessionCookieFor(t, svc, rbac.RoleCEO))

	rr := serve(server, req)
	require.Equal(t, http.StatusNoContent, rr.Code, "body=%s", rr.Body.String())
	assert.Equal(t, testClientID, deletedID)
}

func TestMalformedPathIDIsNotFound(t *testing.T) {
	server, svc := newTestServer(t, &fakeStore{})
	cookie := sessionCookieFor(t, svc, rbac.RoleCEO)

	for _, path := range []string{"/api/cases/42", "/api/clients/abc", "/api/documents/not-a-uuid/url"} {
		req := httptest.NewRequest(http.MethodGet, path, nil)
		req.AddCookie(cookie)
		assertErrorCode(t, serve(server, req), http.StatusNotFound, "NOT_FOUND")
	}
}

func TestCaseNotVisibleToExpertIsNotFound(t *testing.T) {
	server, svc := newTestServer(t, &fakeStore{
		getCaseFn: func(_ context.Context, scope store.CaseScope, _ string) (store.Case, error) {
			assert.Equal(t, testExpertID, scope.AssigneeID)
			return store.Case{}, sql.ErrNoRows
		},
	})
	req := httptest.NewRequest(http.MethodGet, "/api/cases/"+testClientID, nil)
	req.AddCookie(sessionCookieFor(t, svc, rbac.RoleExpert))

	assertErrorCode(t, serve(server, req), http.StatusNotFound, "NOT_FOUND")
}

func TestSearchRequiresQuery(t *testing.T) {
	server, svc := newTestServer(t, &fakeStore{})
	req := httptest.NewRequest(http.MethodGet, "/api/search?q=", nil)
	req.AddCookie(sessionCookieFor(t, svc, rbac.RoleCEO))

	assertErrorCode(t, serve(server, req), http.StatusBadRequest, "BAD_REQUEST")
}

func TestToggleEventReturnsNotFound(t *testing.T) {
	creator := testUserID
	server, svc := newTestServer(t, &fakeStore{
		getActivityFn: func(_ context.Context, _ string, id string) (store.CalendarActivity, error) {
			return store.CalendarActivity{ID: id, Type: ActivityEvent, CreatorID: &creator}, nil
		},
	})
	req := httptest.NewRequest(http.MethodPost, "/api/calendar/"+testClientID+"/toggle", nil)
	req.AddCookie(sessionCookieFor(t, svc, rbac.RoleCEO))

	assertErrorCode(t, serve(server, req), http.StatusNotFound, "NOT_FOUND")
}

func TestRegisterCompanyDuplicateINN(t *testing.T) {
	server, _ := newTestServer(t, &fakeStore{
		getCompanyByINNFn: func(_ context.Context, inn string) (store.Company, error) {
			return store.Company{ID: "existing", INN: inn}, nil
		},
	})
	body := `{"company_name":"Acme","inn":"7707083893","email":"ceo@acme.example","full_name":"Ivan Petrov","password":"long-enough"}`
	rr := serve(server, httptest.NewRequest(http.MethodPost, "/api/companies/register", bytes.NewBufferString(body)))

	assertErrorCode(t, rr, http.StatusBadRequest, "BAD_REQUEST")
	assert.True(t, strings.Contains(decodeResponse(t, rr)["detail"].(string), "INN"))
}

func TestRegisterCompanyThenLoginAsCEO(t *testing.T) {
	companies := map[string]store.Company{}
	users := map[string]store.User{}
	fs := &fakeStore{
		getCompanyByINNFn: func(_ context.Context, inn string) (store.Company, error) {
			if c, ok := companies[inn]; ok {
				return c, nil
			}
			return store.Company{}, sql.ErrNoRows
		},
		getUserByEmailFn: func(_ context.Context, email string) (store.User, error) {
			if u, ok := users[email]; ok {
				return u, nil
			}
			return store.User{}, sql.ErrNoRows
		},
		getCompanyFn: func(_ context.Context, id string) (store.Company, error) {
			for _, c := range companies {
				if c.ID == id {
					return c, nil
				}
			}
			return store.Company{}, sql.ErrNoRows
		},
		createCompanyFn: func(_ context.Context, c store.Company, u store.User) (store.Company, store.User, error) {
			c.ID, u.ID, u.CompanyID = testCompanyID, testUserID, testCompanyID
			companies[c.INN] = c
			users[u.Email] = u
			return c, u, nil
		},
	}
	server, _ := newTestServer(t, fs)

	body := `{"company_name":"Acme","inn":"1234567890","email":"ceo@acme.example","full_name":"Ivan Petrov","password":"long-enough"}`
	rr := serve(server, httptest.NewRequest(http.MethodPost, "/api/companies/register", bytes.NewBufferString(body)))
	require.Equal(t, http.StatusCreated, rr.Code, "body=%s", rr.Body.String())

	var cookie *http.Cookie
	for _, c := range rr.Result().Cookies() {
		if c.Name == sessionCookie {
			cookie = c
		}
	}
	require.NotNil(t, cookie, "expected session cookie")

	req := httptest.NewRequest(http.MethodGet, "/api/users/me", nil)
	req.AddCookie(cookie)
	rr = serve(server, req)
	require.Equal(t, http.StatusOK, rr.Code, "body=%s", rr.Body.String())
	user, _ := decodeResponse(t, rr)["user"].(map[string]any)
	assert.Equal(t, string(rbac.RoleCEO), user["role"])

	login := `{"email":"ceo@acme.example","password":"long-enough"}`
	rr = serve(server, httptest.NewRequest(http.MethodPost, "/api/users/login", bytes.NewBufferString(login)))
	require.Equal(t, http.StatusOK, rr.Code, "body=%s", rr.Body.String())
	assert.Equal(t, testUserID, decodeResponse(t, rr)["user_id"])

	rr = serve(server, httptest.NewRequest(http.MethodPost, "/api/companies/register", bytes.NewBufferString(body)))
	assertErrorCode(t, rr, http.StatusBadRequest, "BAD_REQUEST")
}

func TestRegisterCompanyRejectsMalformedINN(t *testing.T) {
	server, _ := newTestServer(t, &fakeStore{})
	body := `{"company_name":"Acme","inn":"12345","email":"ceo@acme.example","full_name":"Ivan Petrov","password":"long-enough"}`
	rr := serve(server, httptest.NewRequest(http.MethodPost, "/api/companies/register", bytes.NewBufferString(body)))

	assertErrorCode(t, rr, http.StatusBadRequest, "VALIDATION_ERROR")
}

func TestUnexpectedErrorsAreHidden(t *testing.T) {
	server, svc := newTestServer(t, &fakeStore{
		caseFinancialsFn: func(context.Context, store.CaseScope, time.Time) (store.FinancialAggregate, error) {
			return store.FinancialAggregate{}, errors.New("pq: relation does not exist")
		},
	})
	req := httptest.NewRequest(http.MethodGet, "/api/cases/financial-summary", nil)
	req.AddCookie(sessionCookieFor(t, svc, rbac.RoleCEO))

	rr := serve(server, req)
	assertErrorCode(t, rr, http.StatusInternalServerError, "SERVER_ERROR")
	assert.NotContains(t, rr.Body.String(), "relation")
}

func assertErrorCode(t *testing.T, rr *httptest.ResponseRecorder, status int, code string) {
	t.Helper()
	require.Equal(t, status, rr.Code, "body=%s", rr.Body.String())
	payload := decodeResponse(t, rr)
	assert.Equal(t, code, payload["code"])
	assert.NotEmpty(t, payload["detail"])
}
