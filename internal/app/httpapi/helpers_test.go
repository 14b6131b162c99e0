package httpapi

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/tidwall/gjson"

	"github.com/aims-io/aims/internal/app"
	"github.com/aims-io/aims/internal/app/seed"
	"github.com/aims-io/aims/internal/app/storage"
)

type testAPI struct {
	handler  http.Handler
	store    *storage.Memory
	app      *app.Application
	adminKey string
	adminID  string
	limiter  *RateLimiter
}

func newTestAPI(t *testing.T) *testAPI {
	t.Helper()
	return newTestAPIWithLimits(t, 100, 1000)
}

func newTestAPIWithLimits(t *testing.T, authPerMinute, apiPerMinute int) *testAPI {
	t.Helper()
	store := storage.NewMemory()
	application, err := app.New(store, app.Options{
		JWTSecret:             "test-secret",
		JWTAlgorithm:          "HS256",
		JWTExpirationMinutes:  30,
		APIKeyPrefix:          "aims_",
		KeyRotationGraceHours: 24,
	}, nil)
	if err != nil {
		t.Fatalf("build application: %v", err)
	}

	result, err := seed.Run(context.Background(), store, "aims_")
	if err != nil {
		t.Fatalf("seed: %v", err)
	}
	if !result.Seeded {
		t.Fatalf("expected seed to run")
	}

	limiter := NewRateLimiter(authPerMinute, apiPerMinute)
	svc := NewService(application, ":0", limiter, nil)
	return &testAPI{
		handler:  svc.Handler(),
		store:    store,
		app:      application,
		adminKey: result.RawKey,
		adminID:  result.AdminAgentID,
		limiter:  limiter,
	}
}

type header map[string]string

func (api *testAPI) do(t *testing.T, method, path, body string, h header) *httptest.ResponseRecorder {
	t.Helper()
	var req *http.Request
	if body != "" {
		req = httptest.NewRequest(method, path, strings.NewReader(body))
	} else {
		req = httptest.NewRequest(method, path, nil)
	}
	for k, v := range h {
		req.Header.Set(k, v)
	}
	rec := httptest.NewRecorder()
	api.handler.ServeHTTP(rec, req)
	return rec
}

// adminToken exchanges the bootstrap key for a bearer token.
func (api *testAPI) adminToken(t *testing.T) string {
	t.Helper()
	rec := api.do(t, http.MethodPost, "/auth/token", "", header{"X-API-Key": api.adminKey})
	if rec.Code != http.StatusOK {
		t.Fatalf("token exchange failed: %d %s", rec.Code, rec.Body.String())
	}
	token := gjson.Get(rec.Body.String(), "access_token").String()
	if token == "" {
		t.Fatalf("no access token in %s", rec.Body.String())
	}
	return token
}

func bearer(token string) header {
	return header{"Authorization": "Bearer " + token}
}

func bearerJSON(token string) header {
	return header{"Authorization": "Bearer " + token, "Content-Type": "application/json"}
}

// createAgent provisions an agent through the API and returns its id.
func (api *testAPI) createAgent(t *testing.T, token, name string) string {
	t.Helper()
	rec := api.do(t, http.MethodPost, "/agents",
		`{"name":"`+name+`","owner":"tester"}`, bearerJSON(token))
	if rec.Code != http.StatusCreated {
		t.Fatalf("create agent %s: %d %s", name, rec.Code, rec.Body.String())
	}
	return gjson.Get(rec.Body.String(), "id").String()
}

// createKey mints a key for the agent and returns (key id, raw key).
func (api *testAPI) createKey(t *testing.T, token, agentID, name string) (string, string) {
	t.Helper()
	rec := api.do(t, http.MethodPost, "/agents/"+agentID+"/keys",
		`{"name":"`+name+`"}`, bearerJSON(token))
	if rec.Code != http.StatusCreated {
		t.Fatalf("create key: %d %s", rec.Code, rec.Body.String())
	}
	body := rec.Body.String()
	return gjson.Get(body, "id").String(), gjson.Get(body, "raw_key").String()
}
