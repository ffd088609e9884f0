package server

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/graphfold/graphfold/pkg/cluster"

	"github.com/go-playground/validator"
	"github.com/labstack/echo/v4"
)

func newTestServer() *echo.Echo {
	e := echo.New()
	e.Validator = &CustomValidator{validator: validator.New()}
	RegisterRoutes(e)
	return e
}

func postCluster(t *testing.T, e *echo.Echo, body string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(http.MethodPost, "/cluster", strings.NewReader(body))
	req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, req)
	return rec
}

func TestHealthRoute(t *testing.T) {
	e := newTestServer()

	req := httptest.NewRequest(http.MethodGet, "/health", nil)
	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("got status %d, want 200", rec.Code)
	}

	var body map[string]string
	if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
		t.Fatalf("failed to parse health body: %v", err)
	}
	if body["status"] != "ok" {
		t.Errorf("got status field %q, want ok", body["status"])
	}
}

func TestClusterRouteEmptyEdges(t *testing.T) {
	e := newTestServer()

	rec := postCluster(t, e, `{"relationships": []}`)
	if rec.Code != http.StatusUnprocessableEntity {
		t.Fatalf("got status %d, want 422 for empty edge list", rec.Code)
	}
}

func TestClusterRouteZeroResolutionWithModularity(t *testing.T) {
	e := newTestServer()

	body := `{
		"relationships": [
			{"id": "e1", "subject": "A", "object": "B", "weight": 0.8}
		],
		"leiden_params": {
			"resolution": 0,
			"use_modularity": true,
			"max_cluster_size": 10,
			"weight_attribute": "weight"
		}
	}`
	rec := postCluster(t, e, body)
	if rec.Code != http.StatusUnprocessableEntity {
		t.Fatalf("got status %d, want 422 for zero resolution with modularity", rec.Code)
	}
}

func TestClusterRouteValidRequest(t *testing.T) {
	e := newTestServer()

	body := `{
		"relationships": [
			{"id": "e1", "subject": "A", "object": "B", "weight": 0.8},
			{"id": "e2", "subject": "B", "object": "C", "weight": 0.5}
		]
	}`
	rec := postCluster(t, e, body)
	if rec.Code != http.StatusOK {
		t.Fatalf("got status %d, want 200, body: %s", rec.Code, rec.Body.String())
	}

	var parsed cluster.ClusterResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &parsed); err != nil {
		t.Fatalf("failed to parse response: %v", err)
	}
	if len(parsed.Communities) == 0 {
		t.Fatal("got empty communities list")
	}

	level0 := make(map[string]bool)
	for _, a := range parsed.Communities {
		if a.Level == 0 {
			level0[a.Node] = true
		}
	}
	for _, node := range []string{"A", "B", "C"} {
		if !level0[node] {
			t.Errorf("node %q missing from level 0 cover", node)
		}
	}
}

func TestClusterRouteMissingEndpointField(t *testing.T) {
	e := newTestServer()

	body := `{
		"relationships": [
			{"id": "e1", "subject": "A", "weight": 0.8}
		]
	}`
	rec := postCluster(t, e, body)
	if rec.Code != http.StatusUnprocessableEntity {
		t.Fatalf("got status %d, want 422 for edge without object", rec.Code)
	}
}
