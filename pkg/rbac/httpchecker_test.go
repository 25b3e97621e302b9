package rbac

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/codeready-toolchain/execution-core/pkg/config"
	"github.com/codeready-toolchain/execution-core/pkg/models"
)

func TestHTTPChecker_Allowed(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Query().Get("actor_id") != "alice" {
			t.Errorf("expected actor_id=alice, got %q", r.URL.Query().Get("actor_id"))
		}
		_ = json.NewEncoder(w).Encode(permissionCheckResponse{Allowed: true})
	}))
	defer srv.Close()

	c := NewHTTPChecker(&config.RBACConfig{CatalogURL: srv.URL})
	allowed, err := c.HasPermission(context.Background(), "alice", "tenant-a", "host-1", models.ActionWrite, "prod")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !allowed {
		t.Fatalf("expected allowed=true")
	}
}

func TestHTTPChecker_NotFoundMeansDenied(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
	}))
	defer srv.Close()

	c := NewHTTPChecker(&config.RBACConfig{CatalogURL: srv.URL})
	allowed, err := c.HasPermission(context.Background(), "bob", "tenant-a", "host-2", models.ActionRead, "staging")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if allowed {
		t.Fatalf("expected allowed=false for 404")
	}
}

func TestHTTPChecker_NoCatalogURLConfigured(t *testing.T) {
	c := NewHTTPChecker(&config.RBACConfig{})
	_, err := c.HasPermission(context.Background(), "alice", "tenant-a", "host-1", models.ActionWrite, "prod")
	if err == nil {
		t.Fatalf("expected error with no catalog_url configured")
	}
}

func TestHTTPChecker_ServerError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer srv.Close()

	c := NewHTTPChecker(&config.RBACConfig{CatalogURL: srv.URL})
	_, err := c.HasPermission(context.Background(), "alice", "tenant-a", "host-1", models.ActionWrite, "prod")
	if err == nil {
		t.Fatalf("expected error on HTTP 500")
	}
}
