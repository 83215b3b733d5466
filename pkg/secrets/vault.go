package secrets

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strings"
	"sync"
	"time"

	"whatsapp-agent/backend/pkg/logger"

	vault "github.com/hashicorp/vault/api"
)

// Common errors
var (
	ErrSecretNotFound = errors.New("secret not found")
	ErrNoVaultToken   = errors.New("no vault token provided")
)

// Secret keys read at startup
const (
	KeyWhatsAppAccessToken = "whatsapp_access_token"
	KeyAnthropicAPIKey     = "anthropic_api_key"
	KeyWhatsAppAppSecret   = "whatsapp_app_secret"
)

const defaultCacheTTL = 5 * time.Minute

// VaultConfig holds configuration for Vault client
type VaultConfig struct {
	Address string
	Token   string
	// Mount is the KV v2 mount, "secret" by default
	Mount string
	// SecretPath is the document holding every agent secret, "whatsapp-agent" by default
	SecretPath string
	Timeout    time.Duration
	MaxRetries int
	// CacheTTL is how long a fetched document is served before Vault is read again
	CacheTTL time.Duration
}

// Enabled reports whether a Vault address is configured
func (c VaultConfig) Enabled() bool {
	return c.Address != ""
}

// VaultManager reads the agent's secret document from a Vault KV v2 mount.
// Keys missing from the document, or every key when Vault is not configured, come from the environment.
type VaultManager struct {
	client *vault.Client
	config VaultConfig
	log    *logger.Logger

	mu        sync.Mutex
	document  map[string]string
	fetchedAt time.Time
}

// NewVaultManager creates a new Vault manager. Without an address it only reads the environment.
func NewVaultManager(ctx context.Context, config VaultConfig, log *logger.Logger) (*VaultManager, error) {
	if config.CacheTTL <= 0 {
		config.CacheTTL = defaultCacheTTL
	}
	manager := &VaultManager{config: config, log: log}
	if !config.Enabled() {
		return manager, nil
	}

	if config.Token == "" {
		return nil, ErrNoVaultToken
	}
	if config.Mount == "" {
		config.Mount = "secret"
	}
	if config.SecretPath == "" {
		config.SecretPath = "whatsapp-agent"
	}
	if config.Timeout == 0 {
		config.Timeout = 10 * time.Second
	}
	manager.config = config

	vaultConfig := vault.DefaultConfig()
	vaultConfig.Address = config.Address
	vaultConfig.Timeout = config.Timeout
	vaultConfig.MaxRetries = config.MaxRetries

	client, err := vault.NewClient(vaultConfig)
	if err != nil {
		return nil, fmt.Errorf("failed to create vault client: %w", err)
	}
	client.SetToken(config.Token)
	manager.client = client
	return manager, nil
}

// GetSecret returns key from the Vault document, or from the environment variable named after it
func (m *VaultManager) GetSecret(ctx context.Context, key string) (string, error) {
	if m.client != nil {
		document, err := m.load(ctx)
		switch {
		case err == nil:
			if value := document[key]; value != "" {
				return value, nil
			}
		case errors.Is(err, ErrSecretNotFound):
		default:
			return "", err
		}
		m.log.Debug("Secret not in Vault, reading environment", "key", key)
	}
	return fromEnvironment(key)
}

// GetSecretWithDefault retrieves a secret with a default value if not found
func (m *VaultManager) GetSecretWithDefault(ctx context.Context, key, defaultValue string) string {
	value, err := m.GetSecret(ctx, key)
	if err != nil {
		if !errors.Is(err, ErrSecretNotFound) {
			m.log.Warn("Failed to get secret, using default value", "key", key, "error", err.Error())
		}
		return defaultValue
	}
	return value
}

// load returns the cached document, refetching it once CacheTTL has passed
func (m *VaultManager) load(ctx context.Context) (map[string]string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.document != nil && time.Since(m.fetchedAt) < m.config.CacheTTL {
		return m.document, nil
	}

	secret, err := m.client.KVv2(m.config.Mount).Get(ctx, m.config.SecretPath)
	if err != nil {
		if errors.Is(err, vault.ErrSecretNotFound) {
			return nil, ErrSecretNotFound
		}
		m.log.Error("Failed to read secret from Vault",
			"mount", m.config.Mount,
			"path", m.config.SecretPath,
			"error", err.Error(),
		)
		return nil, fmt.Errorf("failed to read secret: %w", err)
	}
	if secret == nil || secret.Data == nil {
		return nil, ErrSecretNotFound
	}

	document := make(map[string]string, len(secret.Data))
	for k, v := range secret.Data {
		if s, ok := v.(string); ok {
			document[k] = s
		}
	}
	m.document = document
	m.fetchedAt = time.Now()
	return document, nil
}

// fromEnvironment maps whatsapp_access_token to WHATSAPP_ACCESS_TOKEN
func fromEnvironment(key string) (string, error) {
	envKey := strings.ToUpper(strings.NewReplacer("-", "_", ".", "_").Replace(key))
	if value := os.Getenv(envKey); value != "" {
		return value, nil
	}
	return "", ErrSecretNotFound
}
