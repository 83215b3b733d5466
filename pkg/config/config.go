package config

import (
	"os"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/joho/godotenv"
)

// Database modes selected by DATABASE_URL
const (
	DatabaseNone     = "none"
	DatabaseMemory   = "memory"
	DatabasePostgres = "postgres"
)

// MemoryDatabaseURL keeps every record in process
const MemoryDatabaseURL = "memory://"

// Config holds all application configuration
type Config struct {
	Debug bool

	// Server configuration
	Server struct {
		Port    string
		Env     string
		Timeout time.Duration
		BaseURL string
	}

	// Database configuration. An empty URL runs the pipeline without persistence.
	Database struct {
		URL      string
		MaxConns int
		Timeout  time.Duration
		Retries  int
	}

	// JWT configuration for the admin API
	JWT struct {
		Secret string
		Expiry time.Duration
	}

	// Security configuration
	Security struct {
		RateLimit      float64
		RateLimitBurst int
		AllowedOrigins []string
		TrustedProxies []string
		MaxBodySize    int64
	}

	// Logging configuration
	Logging struct {
		Level  string
		Format string
	}

	// WhatsApp Cloud API configuration
	WhatsApp struct {
		PhoneNumberID     string
		BusinessAccountID string
		AccessToken       string
		VerifyToken       string
		AppSecret         string
		APIBaseURL        string
		Timeout           time.Duration
		// ReviewTemplate is an approved message template used when a free-form notification is refused
		ReviewTemplate         string
		ReviewTemplateLanguage string
	}

	// Phones the agent forwards to
	Phones struct {
		Work     string
		Personal string
		// Reviewer approves drafts; defaults to Personal
		Reviewer string
	}

	// LLM configuration
	LLM struct {
		AnthropicKey string
		BaseURL      string
		Model        string
		MaxTokens    int
		MaxToolTurns int
		Timeout      time.Duration
	}

	// Pipeline tuning
	Pipeline struct {
		MaxConcurrency     int64
		MessageTimeout     time.Duration
		ClassifyTimeout    time.Duration
		GenerateTimeout    time.Duration
		SendTimeout        time.Duration
		GenerateForUnknown bool
		RetrievalK         int
		PromptsFile        string
		DedupeTTL          time.Duration
	}

	// Approval workflow
	Approval struct {
		TTL       time.Duration
		SweepCron string
	}

	// Reference documents
	Docs struct {
		StorePath    string
		Dir          string
		ReindexCron  string
		Watch        bool
		ChunkSize    int
		ChunkOverlap int
	}

	Redis struct {
		URL string
	}

	Vault struct {
		Address    string
		Token      string
		Mount      string
		SecretPath string
	}

	Observability struct {
		ServiceName string
		Tracing     bool
	}

	// Admin API access
	Admin struct {
		// KeyHash is the bcrypt hash of the admin key exchanged for a token at login
		KeyHash     string
		OpenAPISpec string
	}

	// In-process cache settings
	Cache struct {
		TTL         time.Duration
		MaxSize     int
		PurgeWindow time.Duration
	}
}

var (
	instance *Config
	once     sync.Once
)

// New creates a new Config instance with values from environment variables
// Uses singleton pattern to ensure only one instance exists
func New() *Config {
	once.Do(func() {
		// Load .env file if exists
		_ = godotenv.Load()

		instance = Load()
	})

	return instance
}

// Load reads the configuration from the environment without caching it
func Load() *Config {
	c := &Config{}
	c.Debug = getEnvBool("DEBUG", false)

	// Server config
	c.Server.Port = getEnvString("PORT", "8000")
	c.Server.Env = getEnvString("APP_ENV", "development")
	c.Server.Timeout = getEnvDuration("SERVER_TIMEOUT", 30*time.Second)
	c.Server.BaseURL = getEnvString("BASE_URL", "http://localhost:"+c.Server.Port)

	// Database config
	c.Database.URL = getEnvString("DATABASE_URL", "")
	c.Database.MaxConns = getEnvInt("DB_MAX_CONNS", 20)
	c.Database.Timeout = getEnvDuration("DB_TIMEOUT", 5*time.Second)
	c.Database.Retries = getEnvInt("DB_CONNECT_RETRIES", 5)

	// JWT config
	c.JWT.Secret = getEnvString("JWT_SECRET", "default-jwt-secret-do-not-use-in-production")
	c.JWT.Expiry = getEnvDuration("JWT_EXPIRY", 12*time.Hour)

	// Security config
	c.Security.RateLimit = getEnvFloat("RATE_LIMIT", 20)
	c.Security.RateLimitBurst = getEnvInt("RATE_LIMIT_BURST", 40)
	c.Security.AllowedOrigins = getEnvStringSlice("ALLOWED_ORIGINS", []string{"*"})
	c.Security.TrustedProxies = getEnvStringSlice("TRUSTED_PROXIES", []string{"127.0.0.1"})
	c.Security.MaxBodySize = getEnvInt64("MAX_BODY_SIZE", 1<<20)

	// Logging config
	c.Logging.Level = getEnvString("LOG_LEVEL", "info")
	if c.Debug {
		c.Logging.Level = "debug"
	}
	c.Logging.Format = getEnvString("LOG_FORMAT", "json")

	// WhatsApp config
	c.WhatsApp.PhoneNumberID = getEnvString("WHATSAPP_PHONE_NUMBER_ID", "")
	c.WhatsApp.BusinessAccountID = getEnvString("WHATSAPP_BUSINESS_ACCOUNT_ID", "")
	c.WhatsApp.AccessToken = getEnvString("WHATSAPP_ACCESS_TOKEN", "")
	c.WhatsApp.VerifyToken = getEnvString("WHATSAPP_VERIFY_TOKEN", "prb-wa-agent-verify")
	c.WhatsApp.AppSecret = getEnvString("WHATSAPP_APP_SECRET", "")
	c.WhatsApp.APIBaseURL = getEnvString("WHATSAPP_API_BASE_URL", "")
	c.WhatsApp.Timeout = getEnvDuration("WHATSAPP_TIMEOUT", 15*time.Second)
	c.WhatsApp.ReviewTemplate = getEnvString("WHATSAPP_REVIEW_TEMPLATE", "")
	c.WhatsApp.ReviewTemplateLanguage = getEnvString("WHATSAPP_REVIEW_TEMPLATE_LANGUAGE", "en")

	// Phones
	c.Phones.Work = getEnvString("WORK_PHONE", "")
	c.Phones.Personal = getEnvString("PERSONAL_PHONE", "")
	c.Phones.Reviewer = getEnvString("REVIEWER_PHONE", c.Phones.Personal)

	// LLM config
	c.LLM.AnthropicKey = getEnvString("ANTHROPIC_API_KEY", "")
	c.LLM.BaseURL = getEnvString("ANTHROPIC_BASE_URL", "")
	c.LLM.Model = getEnvString("ANTHROPIC_MODEL", "")
	c.LLM.MaxTokens = getEnvInt("ANTHROPIC_MAX_TOKENS", 1024)
	c.LLM.MaxToolTurns = getEnvInt("ANTHROPIC_MAX_TOOL_TURNS", 6)
	c.LLM.Timeout = getEnvDuration("ANTHROPIC_TIMEOUT", 60*time.Second)

	// Pipeline config
	c.Pipeline.MaxConcurrency = getEnvInt64("PIPELINE_MAX_CONCURRENCY", 8)
	c.Pipeline.MessageTimeout = getEnvDuration("PIPELINE_MESSAGE_TIMEOUT", 2*time.Minute)
	c.Pipeline.ClassifyTimeout = getEnvDuration("CLASSIFY_TIMEOUT", 20*time.Second)
	c.Pipeline.GenerateTimeout = getEnvDuration("GENERATE_TIMEOUT", 60*time.Second)
	c.Pipeline.SendTimeout = getEnvDuration("SEND_TIMEOUT", 15*time.Second)
	c.Pipeline.GenerateForUnknown = getEnvBool("GENERATE_FOR_UNKNOWN", true)
	c.Pipeline.RetrievalK = getEnvInt("RETRIEVAL_K", 3)
	c.Pipeline.PromptsFile = getEnvString("PROMPTS_FILE", "")
	c.Pipeline.DedupeTTL = getEnvDuration("DEDUPE_TTL", 24*time.Hour)

	// Approval config
	c.Approval.TTL = getEnvDuration("APPROVAL_TTL", 24*time.Hour)
	c.Approval.SweepCron = getEnvString("APPROVAL_SWEEP_CRON", "*/5 * * * *")

	// Document config
	c.Docs.StorePath = getEnvString("DOCS_STORE_PATH", "./data/docstore")
	c.Docs.Dir = getEnvString("DOCS_DIR", "")
	c.Docs.ReindexCron = getEnvString("DOCS_REINDEX_CRON", "")
	c.Docs.Watch = getEnvBool("DOCS_WATCH", true)
	c.Docs.ChunkSize = getEnvInt("DOCS_CHUNK_SIZE", 500)
	c.Docs.ChunkOverlap = getEnvInt("DOCS_CHUNK_OVERLAP", 50)

	c.Redis.URL = getEnvString("REDIS_URL", "")

	c.Vault.Address = getEnvString("VAULT_ADDR", "")
	c.Vault.Token = getEnvString("VAULT_TOKEN", "")
	c.Vault.Mount = getEnvString("VAULT_MOUNT", "secret")
	c.Vault.SecretPath = getEnvString("VAULT_SECRET_PATH", "whatsapp-agent")

	c.Observability.ServiceName = getEnvString("OTEL_SERVICE_NAME", "whatsapp-agent")
	c.Observability.Tracing = getEnvBool("TRACING_ENABLED", false)

	c.Admin.KeyHash = getEnvString("ADMIN_KEY_HASH", "")
	c.Admin.OpenAPISpec = getEnvString("OPENAPI_SPEC", "")

	// Cache settings
	c.Cache.TTL = getEnvDuration("CACHE_TTL", 5*time.Minute)
	c.Cache.MaxSize = getEnvInt("CACHE_MAX_SIZE", 10000)
	c.Cache.PurgeWindow = getEnvDuration("CACHE_PURGE_WINDOW", 10*time.Minute)

	return c
}

// DatabaseMode reports which persistence backend DATABASE_URL selects
func (c *Config) DatabaseMode() string {
	switch {
	case c.Database.URL == "":
		return DatabaseNone
	case c.Database.URL == MemoryDatabaseURL:
		return DatabaseMemory
	default:
		return DatabasePostgres
	}
}

// Missing lists the settings the agent degrades without
func (c *Config) Missing() []string {
	var missing []string
	check := func(name, value string) {
		if value == "" {
			missing = append(missing, name)
		}
	}
	check("WHATSAPP_PHONE_NUMBER_ID", c.WhatsApp.PhoneNumberID)
	check("WHATSAPP_ACCESS_TOKEN", c.WhatsApp.AccessToken)
	check("PERSONAL_PHONE", c.Phones.Personal)
	check("REVIEWER_PHONE", c.Phones.Reviewer)
	check("ANTHROPIC_API_KEY", c.LLM.AnthropicKey)
	check("DATABASE_URL", c.Database.URL)
	return missing
}

// Get returns the singleton Config instance
func Get() *Config {
	if instance == nil {
		return New()
	}
	return instance
}

// Helper functions to read environment variables with default values

func getEnvString(key, defaultValue string) string {
	if value, exists := os.LookupEnv(key); exists && value != "" {
		return value
	}
	return defaultValue
}

func getEnvInt(key string, defaultValue int) int {
	if value, exists := os.LookupEnv(key); exists {
		if intVal, err := strconv.Atoi(value); err == nil {
			return intVal
		}
	}
	return defaultValue
}

func getEnvInt64(key string, defaultValue int64) int64 {
	if value, exists := os.LookupEnv(key); exists {
		if intVal, err := strconv.ParseInt(value, 10, 64); err == nil {
			return intVal
		}
	}
	return defaultValue
}

func getEnvFloat(key string, defaultValue float64) float64 {
	if value, exists := os.LookupEnv(key); exists {
		if floatVal, err := strconv.ParseFloat(value, 64); err == nil {
			return floatVal
		}
	}
	return defaultValue
}

func getEnvBool(key string, defaultValue bool) bool {
	if value, exists := os.LookupEnv(key); exists {
		if boolVal, err := strconv.ParseBool(value); err == nil {
			return boolVal
		}
	}
	return defaultValue
}

func getEnvDuration(key string, defaultValue time.Duration) time.Duration {
	if value, exists := os.LookupEnv(key); exists {
		if duration, err := time.ParseDuration(value); err == nil {
			return duration
		}
	}
	return defaultValue
}

func getEnvStringSlice(key string, defaultValue []string) []string {
	if value, exists := os.LookupEnv(key); exists && value != "" {
		return strings.Split(value, ",")
	}
	return defaultValue
}
