package rbac

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"os"
	"time"

	"github.com/codeready-toolchain/execution-core/pkg/config"
	"github.com/codeready-toolchain/execution-core/pkg/models"
)

// HTTPChecker is a PermissionChecker backed by an external permission
// catalog service: a bearer token read from an env var (never baked into
// config at load time), a bounded client timeout, and a single-purpose
// request/response pair.
type HTTPChecker struct {
	httpClient *http.Client
	baseURL    string
	tokenEnv   string
}

// NewHTTPChecker constructs an HTTPChecker from RBACConfig. cfg.CatalogURL
// is the catalog service's base URL; an empty URL is valid and simply
// means every check fails closed (callers should pair that with
// permissive mode during initial rollout).
func NewHTTPChecker(cfg *config.RBACConfig) *HTTPChecker {
	if cfg == nil {
		cfg = config.DefaultRBACConfig()
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	return &HTTPChecker{
		httpClient: &http.Client{Timeout: timeout},
		baseURL:    cfg.CatalogURL,
		tokenEnv:   cfg.CatalogToken,
	}
}

type permissionCheckResponse struct {
	Allowed bool `json:"allowed"`
}

// HasPermission asks the catalog service whether actorID may perform
// action against assetID in environment, within tenantID's scope.
func (c *HTTPChecker) HasPermission(ctx context.Context, actorID, tenantID, assetID string, action models.ActionClass, environment string) (bool, error) {
	if c.baseURL == "" {
		return false, fmt.Errorf("rbac: no catalog_url configured")
	}

	q := url.Values{}
	q.Set("actor_id", actorID)
	q.Set("tenant_id", tenantID)
	q.Set("asset_id", assetID)
	q.Set("action", string(action))
	q.Set("environment", environment)

	reqURL := c.baseURL + "/v1/permissions/check?" + q.Encode()
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, reqURL, nil)
	if err != nil {
		return false, fmt.Errorf("building permission check request: %w", err)
	}
	if c.tokenEnv != "" {
		if token := os.Getenv(c.tokenEnv); token != "" {
			req.Header.Set("Authorization", "Bearer "+token)
		}
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return false, fmt.Errorf("calling permission catalog: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusNotFound {
		return false, nil
	}
	if resp.StatusCode != http.StatusOK {
		return false, fmt.Errorf("permission catalog returned HTTP %d", resp.StatusCode)
	}

	var out permissionCheckResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return false, fmt.Errorf("decoding permission catalog response: %w", err)
	}
	return out.Allowed, nil
}
