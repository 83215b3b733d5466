package secrets

import (
	"context"
)

// Manager provides access to secrets from various sources
type Manager interface {
	// GetSecret retrieves a secret by key
	GetSecret(ctx context.Context, key string) (string, error)

	// GetSecretWithDefault retrieves a secret with a default value if not found
	GetSecretWithDefault(ctx context.Context, key, defaultValue string) string
}

// Resolve returns current when it is set, otherwise the secret stored under key.
// Configured values win so that local runs never need Vault.
func Resolve(ctx context.Context, m Manager, key, current string) string {
	if current != "" || m == nil {
		return current
	}
	return m.GetSecretWithDefault(ctx, key, "")
}
