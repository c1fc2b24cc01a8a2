// Package config provides environment configuration for the chat client and
// the reference agent.
package config

import (
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"
)

// Client holds configuration for the dailychat CLI.
type Client struct {
	// Agent endpoint
	BaseURL string
	Timeout time.Duration

	// Credential persistence
	CredentialsPath string

	// Logging
	LogLevel string

	// Tracing
	TracingEndpoint string
	TracingEnabled  bool
}

// Agent holds configuration for the reference agent server.
type Agent struct {
	// Server settings
	ServerPort         string
	ServerReadTimeout  time.Duration
	ServerWriteTimeout time.Duration

	// JWT settings
	JWTSecret      string
	JWTExpiration  time.Duration
	JWTRenewWindow time.Duration

	// Accounts, "user:password:Name[:role]" separated by commas
	Users []Account

	// Storage
	DatabasePath string
	ExportDir    string

	// Import
	ImportTokenTTL time.Duration

	// NATS settings; empty URL disables publishing
	NATSURL      string
	NATSCAFile   string
	NATSCertFile string
	NATSKeyFile  string
	NATSToken    string

	// LLM settings
	AnthropicAPIKey string
	OpenAIAPIKey    string
	DefaultLLM      string
	Model           string

	// Rate limiting
	RateLimitRequests int
	RateLimitWindow   time.Duration

	// Logging; Environment "development" switches to console output
	LogLevel    string
	Environment string

	// Tracing
	TracingEndpoint string
	TracingEnabled  bool
}

// Development reports whether the agent runs in a local development setup.
func (a *Agent) Development() bool {
	return a.Environment == "development"
}

// Account is a login the reference agent accepts.
type Account struct {
	ID       int
	Username string
	Password string
	Name     string
	Role     string
}

// LoadClient reads client configuration from environment variables.
func LoadClient() *Client {
	return &Client{
		BaseURL: strings.TrimRight(getEnv("DAILYCHAT_URL", "http://localhost:8080"), "/"),
		Timeout: getDurationEnv("DAILYCHAT_TIMEOUT", 60*time.Second),

		CredentialsPath: getEnv("DAILYCHAT_CREDENTIALS", defaultCredentialsPath()),

		LogLevel: getEnv("DAILYCHAT_LOG_LEVEL", "warn"),

		TracingEndpoint: getEnv("TRACING_ENDPOINT", "localhost:4318"),
		TracingEnabled:  getBoolEnv("TRACING_ENABLED", false),
	}
}

// LoadAgent reads agent configuration from environment variables.
func LoadAgent() *Agent {
	return &Agent{
		// Server
		ServerPort:         getEnv("PORT", "8080"),
		ServerReadTimeout:  getDurationEnv("SERVER_READ_TIMEOUT", 30*time.Second),
		ServerWriteTimeout: getDurationEnv("SERVER_WRITE_TIMEOUT", 5*time.Minute),

		// JWT
		JWTSecret:      getEnv("JWT_SECRET", "development-secret-change-in-production"),
		JWTExpiration:  getDurationEnv("JWT_EXPIRATION", 7*24*time.Hour),
		JWTRenewWindow: getDurationEnv("JWT_RENEW_WINDOW", 24*time.Hour),

		Users: ParseAccounts(getEnv("AGENT_USERS", "demo:demo:演示用户")),

		// Storage
		DatabasePath: getEnv("DATABASE_PATH", "dailychat.db"),
		ExportDir:    getEnv("EXPORT_DIR", "exports"),

		ImportTokenTTL: getDurationEnv("IMPORT_TOKEN_TTL", 10*time.Minute),

		// NATS
		NATSURL:      getEnv("NATS_URL", ""),
		NATSCAFile:   getEnv("NATS_CA_FILE", ""),
		NATSCertFile: getEnv("NATS_CERT_FILE", ""),
		NATSKeyFile:  getEnv("NATS_KEY_FILE", ""),
		NATSToken:    getEnv("NATS_TOKEN", ""),

		// LLM
		AnthropicAPIKey: getEnv("ANTHROPIC_API_KEY", ""),
		OpenAIAPIKey:    getEnv("OPENAI_API_KEY", ""),
		DefaultLLM:      getEnv("DEFAULT_LLM", "anthropic"),
		Model:           getEnv("LLM_MODEL", ""),

		// Rate limiting
		RateLimitRequests: getIntEnv("RATE_LIMIT_REQUESTS", 120),
		RateLimitWindow:   getDurationEnv("RATE_LIMIT_WINDOW", time.Minute),

		// Logging
		LogLevel:    getEnv("LOG_LEVEL", "info"),
		Environment: getEnv("ENV", "production"),

		// Tracing
		TracingEndpoint: getEnv("TRACING_ENDPOINT", "localhost:4318"),
		TracingEnabled:  getBoolEnv("TRACING_ENABLED", false),
	}
}

// ParseAccounts parses "user:password:Name[:role]" entries separated by
// commas. Malformed entries are skipped. IDs are assigned in order from 1.
func ParseAccounts(raw string) []Account {
	var accounts []Account
	for _, entry := range strings.Split(raw, ",") {
		parts := strings.Split(strings.TrimSpace(entry), ":")
		if len(parts) < 3 || parts[0] == "" || parts[1] == "" {
			continue
		}
		acct := Account{
			ID:       len(accounts) + 1,
			Username: parts[0],
			Password: parts[1],
			Name:     parts[2],
			Role:     "member",
		}
		if len(parts) > 3 && parts[3] != "" {
			acct.Role = parts[3]
		}
		accounts = append(accounts, acct)
	}
	return accounts
}

func defaultCredentialsPath() string {
	dir, err := os.UserConfigDir()
	if err != nil {
		return filepath.Join(".", ".dailychat-credentials.yaml")
	}
	return filepath.Join(dir, "dailychat", "credentials.yaml")
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getIntEnv(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if i, err := strconv.Atoi(value); err == nil {
			return i
		}
	}
	return defaultValue
}

func getBoolEnv(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		if b, err := strconv.ParseBool(value); err == nil {
			return b
		}
	}
	return defaultValue
}

func getDurationEnv(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if d, err := time.ParseDuration(value); err == nil {
			return d
		}
	}
	return defaultValue
}
