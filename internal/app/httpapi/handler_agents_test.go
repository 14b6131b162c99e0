package httpapi

import (
	"net/http"
	"testing"

	"github.com/tidwall/gjson"
)

func TestCreateAgentValidation(t *testing.T) {
	api := newTestAPI(t)
	admin := api.adminToken(t)

	rec := api.do(t, http.MethodPost, "/agents",
		`{"name":"bad name!","owner":"tester"}`, bearerJSON(admin))
	if rec.Code != http.StatusUnprocessableEntity {
		t.Fatalf("expected 422, got %d %s", rec.Code, rec.Body.String())
	}

	rec = api.do(t, http.MethodPost, "/agents",
		`{"name":"ok","owner":"tester","agent_type":"robot"}`, bearerJSON(admin))
	if rec.Code != http.StatusUnprocessableEntity {
		t.Fatalf("expected 422 for bad type, got %d", rec.Code)
	}
}

func TestCreateAgentConflict(t *testing.T) {
	api := newTestAPI(t)
	admin := api.adminToken(t)

	api.createAgent(t, admin, "twin")
	rec := api.do(t, http.MethodPost, "/agents",
		`{"name":"twin","owner":"tester"}`, bearerJSON(admin))
	if rec.Code != http.StatusConflict {
		t.Fatalf("expected 409, got %d", rec.Code)
	}
}

func TestGetPatchAndMetadataRoundTrip(t *testing.T) {
	api := newTestAPI(t)
	admin := api.adminToken(t)

	rec := api.do(t, http.MethodPost, "/agents",
		`{"name":"meta","owner":"tester","agent_type":"llm","metadata_json":"{\"model\":\"x-9\"}"}`,
		bearerJSON(admin))
	if rec.Code != http.StatusCreated {
		t.Fatalf("create: %d %s", rec.Code, rec.Body.String())
	}
	id := gjson.Get(rec.Body.String(), "id").String()

	rec = api.do(t, http.MethodGet, "/agents/"+id, "", bearer(admin))
	if rec.Code != http.StatusOK {
		t.Fatalf("get: %d", rec.Code)
	}
	// metadata_json round-trips verbatim; the service never parses it.
	if got := gjson.Get(rec.Body.String(), "metadata_json").String(); got != `{"model":"x-9"}` {
		t.Fatalf("metadata mangled: %q", got)
	}

	rec = api.do(t, http.MethodPatch, "/agents/"+id,
		`{"description":"updated"}`, bearerJSON(admin))
	if rec.Code != http.StatusOK {
		t.Fatalf("patch: %d %s", rec.Code, rec.Body.String())
	}
	if got := gjson.Get(rec.Body.String(), "description").String(); got != "updated" {
		t.Fatalf("patch not applied: %s", rec.Body.String())
	}

	rec = api.do(t, http.MethodGet, "/agents/missing-id", "", bearer(admin))
	if rec.Code != http.StatusNotFound {
		t.Fatalf("expected 404, got %d", rec.Code)
	}
}

func TestListAgentsFilters(t *testing.T) {
	api := newTestAPI(t)
	admin := api.adminToken(t)

	api.createAgent(t, admin, "f-one")
	id := api.createAgent(t, admin, "f-two")
	rec := api.do(t, http.MethodPost, "/agents/"+id+"/suspend",
		`{"reason":"test"}`, bearerJSON(admin))
	if rec.Code != http.StatusOK {
		t.Fatalf("suspend: %d %s", rec.Code, rec.Body.String())
	}

	rec = api.do(t, http.MethodGet, "/agents?status=suspended", "", bearer(admin))
	list := gjson.Parse(rec.Body.String()).Array()
	if len(list) != 1 || list[0].Get("name").String() != "f-two" {
		t.Fatalf("unexpected filtered list: %s", rec.Body.String())
	}

	rec = api.do(t, http.MethodGet, "/agents?owner=nobody", "", bearer(admin))
	if body := rec.Body.String(); gjson.Parse(body).IsArray() == false || len(gjson.Parse(body).Array()) != 0 {
		t.Fatalf("expected empty array, got %s", body)
	}
}

func TestSelfProtectionEndpoints(t *testing.T) {
	api := newTestAPI(t)
	admin := api.adminToken(t)

	for _, tc := range []struct{ method, path, body string }{
		{http.MethodPost, "/agents/" + api.adminID + "/suspend", `{"reason":"r"}`},
		{http.MethodPost, "/agents/" + api.adminID + "/revoke", `{"reason":"r"}`},
		{http.MethodDelete, "/agents/" + api.adminID, ""},
	} {
		rec := api.do(t, tc.method, tc.path, tc.body, bearerJSON(admin))
		if rec.Code != http.StatusBadRequest {
			t.Fatalf("%s %s: expected 400, got %d %s", tc.method, tc.path, rec.Code, rec.Body.String())
		}
	}

	// Self-granting is equally rejected.
	rec := api.do(t, http.MethodGet, "/capabilities", "", bearer(admin))
	capID := gjson.Parse(rec.Body.String()).Array()[0].Get("id").String()
	rec = api.do(t, http.MethodPost, "/agents/"+api.adminID+"/capabilities",
		`{"capability_id":"`+capID+`"}`, bearerJSON(admin))
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("self-grant: expected 400, got %d", rec.Code)
	}
}

func TestLifecycleEndpoints(t *testing.T) {
	api := newTestAPI(t)
	admin := api.adminToken(t)
	id := api.createAgent(t, admin, "cycle")

	rec := api.do(t, http.MethodPost, "/agents/"+id+"/reactivate", "", bearer(admin))
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("reactivate active agent: expected 400, got %d", rec.Code)
	}

	rec = api.do(t, http.MethodPost, "/agents/"+id+"/suspend", `{"reason":"debug"}`, bearerJSON(admin))
	if rec.Code != http.StatusOK {
		t.Fatalf("suspend: %d", rec.Code)
	}
	if got := gjson.Get(rec.Body.String(), "status").String(); got != "suspended" {
		t.Fatalf("unexpected status %q", got)
	}
	if !gjson.Get(rec.Body.String(), "suspended_at").Exists() {
		t.Fatalf("suspended_at missing")
	}

	rec = api.do(t, http.MethodPost, "/agents/"+id+"/reactivate", "", bearer(admin))
	if rec.Code != http.StatusOK {
		t.Fatalf("reactivate: %d", rec.Code)
	}
	if gjson.Get(rec.Body.String(), "suspended_at").Type != gjson.Null {
		t.Fatalf("suspended_at not cleared: %s", rec.Body.String())
	}

	rec = api.do(t, http.MethodPost, "/agents/"+id+"/revoke", `{"reason":"done"}`, bearerJSON(admin))
	if rec.Code != http.StatusOK {
		t.Fatalf("revoke: %d", rec.Code)
	}

	rec = api.do(t, http.MethodPost, "/agents/"+id+"/revoke", `{"reason":"again"}`, bearerJSON(admin))
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("double revoke: expected 400, got %d", rec.Code)
	}

	rec = api.do(t, http.MethodPost, "/agents/ghost/suspend", `{"reason":"r"}`, bearerJSON(admin))
	if rec.Code != http.StatusNotFound {
		t.Fatalf("suspend unknown: expected 404, got %d", rec.Code)
	}
}

func TestDeleteAgent(t *testing.T) {
	api := newTestAPI(t)
	admin := api.adminToken(t)
	id := api.createAgent(t, admin, "short-lived")

	rec := api.do(t, http.MethodDelete, "/agents/"+id, "", bearer(admin))
	if rec.Code != http.StatusNoContent {
		t.Fatalf("delete: %d", rec.Code)
	}
	rec = api.do(t, http.MethodGet, "/agents/"+id, "", bearer(admin))
	if rec.Code != http.StatusNotFound {
		t.Fatalf("expected 404 after delete, got %d", rec.Code)
	}
}

func TestIdempotentReads(t *testing.T) {
	api := newTestAPI(t)
	admin := api.adminToken(t)
	id := api.createAgent(t, admin, "stable")

	first := api.do(t, http.MethodGet, "/agents/"+id, "", bearer(admin))
	second := api.do(t, http.MethodGet, "/agents/"+id, "", bearer(admin))
	if first.Body.String() != second.Body.String() {
		t.Fatalf("reads differ:\n%s\n%s", first.Body.String(), second.Body.String())
	}
}
