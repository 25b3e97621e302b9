package secrets

import (
	"context"
	"fmt"
	"os"

	vaultapi "github.com/hashicorp/vault/api"

	"github.com/codeready-toolchain/execution-core/pkg/config"
)

// VaultClient reads secrets from HashiCorp Vault's KV v2 engine, satisfying
// the Resolver's Client interface. The token is read from the environment
// variable named by config.SecretsConfig.VaultToken rather than stored on
// the struct, so a token rotation never requires re-wiring the resolver.
type VaultClient struct {
	api       *vaultapi.Client
	mountPath string
	tokenEnv  string
}

// NewVaultClient constructs a VaultClient from SecretsConfig.
func NewVaultClient(cfg *config.SecretsConfig) (*VaultClient, error) {
	vc := vaultapi.DefaultConfig()
	vc.Address = cfg.VaultAddr

	client, err := vaultapi.NewClient(vc)
	if err != nil {
		return nil, fmt.Errorf("constructing vault client: %w", err)
	}

	return &VaultClient{
		api:       client,
		mountPath: cfg.MountPath,
		tokenEnv:  cfg.VaultToken,
	}, nil
}

// Read fetches the value at path's "value" field under the configured KV v2
// mount. path is the secret name relative to the mount, e.g. "db/prod".
func (c *VaultClient) Read(ctx context.Context, path string) (string, error) {
	token := os.Getenv(c.tokenEnv)
	if token == "" {
		return "", fmt.Errorf("vault token env var %q is not set", c.tokenEnv)
	}
	c.api.SetToken(token)

	full := fmt.Sprintf("%s/%s", c.mountPath, path)
	secret, err := c.api.Logical().ReadWithContext(ctx, full)
	if err != nil {
		return "", fmt.Errorf("reading vault path %q: %w", full, err)
	}
	if secret == nil || secret.Data == nil {
		return "", fmt.Errorf("vault path %q has no data", full)
	}

	data, ok := secret.Data["data"].(map[string]any)
	if !ok {
		// Some mounts (KV v1, or a caller-supplied mountPath that already
		// points below "data/") return the value directly at the top level.
		data = secret.Data
	}

	value, ok := data["value"].(string)
	if !ok {
		return "", fmt.Errorf("vault path %q has no string \"value\" field", full)
	}
	return value, nil
}
