package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

const (
	EnvDevelopment = "development"
	EnvTest        = "test"
	EnvProduction  = "production"

	LedgerModeSimulated = "simulated"
	LedgerModeEthereum  = "ethereum"
)

// Config holds all configuration values for the application
type Config struct {
	Port           string
	AllowedOrigins []string
	LogLevel       string
	LogFormat      string
	Environment    string
	DatabaseURL    string
	RedisURL       string
	SeedDemoData   bool

	// Hashing and credential sealing
	SubjectPepper    string
	TokenPepper      string
	CredentialSecret string
	EligibilityTTL   time.Duration

	// InternalAPIToken guards finalization and the vote-status endpoint
	InternalAPIToken string

	Identity IdentityConfig
	Ledger   LedgerConfig
}

// IdentityConfig selects how identity assertions are verified
type IdentityConfig struct {
	Provider           string
	JWTSecret          string
	JWTIssuer          string
	JWTAudience        string
	GoogleClientID     string
	GoogleClientSecret string
	OAuthRedirectURL   string
}

// LedgerConfig selects and configures the ledger backend
type LedgerConfig struct {
	Mode            string
	RPCURL          string
	ContractAddress string
	PrivateKey      string
	ChainID         int64
	GasPriceWei     int64
	GasLimit        uint64
	PollInterval    time.Duration
	PollAttempts    int
	FromBlock       uint64
	MaxAttempts     int
	InitialBackoff  time.Duration
}

// Load loads configuration from environment variables
func Load() (*Config, error) {
	// Load .env file if it exists
	_ = godotenv.Load()

	environment := getEnv("ENVIRONMENT", EnvProduction)
	isDev := environment == EnvDevelopment

	cfg := &Config{
		Port:           getEnv("PORT", "8080"),
		AllowedOrigins: parseList(getEnv("ALLOWED_ORIGINS", "http://localhost:5173")),
		LogLevel:       getEnv("LOG_LEVEL", "info"),
		LogFormat:      getEnv("LOG_FORMAT", "json"),
		Environment:    environment,
		DatabaseURL:    getEnv("DATABASE_URL", ""),
		RedisURL:       getEnv("REDIS_URL", ""),
		SeedDemoData:   getBoolEnv("SEED_DEMO_DATA", isDev),

		SubjectPepper:    getEnv("SUBJECT_PEPPER", devDefault(isDev, "dev-subject-pepper")),
		TokenPepper:      getEnv("TOKEN_PEPPER", devDefault(isDev, "dev-token-pepper")),
		CredentialSecret: getEnv("CREDENTIAL_SECRET", devDefault(isDev, "dev-credential-secret")),
		EligibilityTTL:   getDurationEnv("ELIGIBILITY_TTL", 2*time.Hour),
		InternalAPIToken: getEnv("INTERNAL_API_TOKEN", ""),

		Identity: IdentityConfig{
			Provider:           getEnv("IDENTITY_PROVIDER", devDefault(isDev, "stub")),
			JWTSecret:          getEnv("IDENTITY_JWT_SECRET", ""),
			JWTIssuer:          getEnv("IDENTITY_JWT_ISSUER", ""),
			JWTAudience:        getEnv("IDENTITY_JWT_AUDIENCE", ""),
			GoogleClientID:     getEnv("GOOGLE_CLIENT_ID", ""),
			GoogleClientSecret: getEnv("GOOGLE_CLIENT_SECRET", ""),
			OAuthRedirectURL:   getEnv("OAUTH_REDIRECT_URL", ""),
		},

		Ledger: LedgerConfig{
			Mode:            getEnv("LEDGER_MODE", LedgerModeSimulated),
			RPCURL:          getEnv("ETH_RPC_URL", ""),
			ContractAddress: getEnv("ETH_CONTRACT_ADDRESS", ""),
			PrivateKey:      getEnv("ETH_PRIVATE_KEY", ""),
			ChainID:         getInt64Env("ETH_CHAIN_ID", 0),
			GasPriceWei:     getInt64Env("ETH_GAS_PRICE_WEI", 0),
			GasLimit:        uint64(getInt64Env("ETH_GAS_LIMIT", 6_721_975)),
			PollInterval:    getDurationEnv("ETH_RECEIPT_POLL_INTERVAL", 2*time.Second),
			PollAttempts:    getIntEnv("ETH_RECEIPT_POLL_ATTEMPTS", 15),
			FromBlock:       uint64(getInt64Env("ETH_FROM_BLOCK", 0)),
			MaxAttempts:     getIntEnv("LEDGER_MAX_ATTEMPTS", 3),
			InitialBackoff:  getDurationEnv("LEDGER_INITIAL_BACKOFF", 500*time.Millisecond),
		},
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks the settings required by the selected modes. Outside
// development the hashing and sealing secrets must be set explicitly.
func (c *Config) Validate() error {
	var missing []string

	if c.SubjectPepper == "" {
		missing = append(missing, "SUBJECT_PEPPER")
	}
	if c.TokenPepper == "" {
		missing = append(missing, "TOKEN_PEPPER")
	}
	if c.CredentialSecret == "" {
		missing = append(missing, "CREDENTIAL_SECRET")
	}

	if c.Environment == EnvProduction && c.InternalAPIToken == "" {
		missing = append(missing, "INTERNAL_API_TOKEN")
	}

	switch c.Identity.Provider {
	case "jwt":
		if c.Identity.JWTSecret == "" {
			missing = append(missing, "IDENTITY_JWT_SECRET")
		}
	case "google":
		if c.Identity.GoogleClientID == "" {
			missing = append(missing, "GOOGLE_CLIENT_ID")
		}
	case "stub":
		if c.Environment == EnvProduction {
			return fmt.Errorf("stub identity provider is not allowed in %s", c.Environment)
		}
	case "":
		missing = append(missing, "IDENTITY_PROVIDER")
	default:
		return fmt.Errorf("unknown IDENTITY_PROVIDER %q", c.Identity.Provider)
	}

	switch c.Ledger.Mode {
	case LedgerModeSimulated:
	case LedgerModeEthereum:
		if c.Ledger.RPCURL == "" {
			missing = append(missing, "ETH_RPC_URL")
		}
		if c.Ledger.ContractAddress == "" {
			missing = append(missing, "ETH_CONTRACT_ADDRESS")
		}
		if c.Ledger.PrivateKey == "" {
			missing = append(missing, "ETH_PRIVATE_KEY")
		}
	default:
		return fmt.Errorf("unknown LEDGER_MODE %q", c.Ledger.Mode)
	}

	if len(missing) > 0 {
		return fmt.Errorf("missing required configuration: %s", strings.Join(missing, ", "))
	}
	if c.EligibilityTTL <= 0 {
		return fmt.Errorf("ELIGIBILITY_TTL must be positive, got %s", c.EligibilityTTL)
	}
	return nil
}

// IsDevelopment reports whether the service runs in development mode
func (c *Config) IsDevelopment() bool {
	return c.Environment == EnvDevelopment
}

func devDefault(isDev bool, value string) string {
	if isDev {
		return value
	}
	return ""
}

// getEnv gets an environment variable with a fallback value
func getEnv(key, fallback string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return fallback
}

// parseList parses a comma-separated value into a slice
func parseList(value string) []string {
	if value == "" {
		return []string{}
	}

	parts := strings.Split(value, ",")
	result := make([]string, 0, len(parts))

	for _, part := range parts {
		if trimmed := strings.TrimSpace(part); trimmed != "" {
			result = append(result, trimmed)
		}
	}

	return result
}

// getBoolEnv gets a boolean environment variable with a fallback value
func getBoolEnv(key string, fallback bool) bool {
	if value := os.Getenv(key); value != "" {
		if parsed, err := strconv.ParseBool(value); err == nil {
			return parsed
		}
	}
	return fallback
}

func getIntEnv(key string, fallback int) int {
	if value := os.Getenv(key); value != "" {
		if parsed, err := strconv.Atoi(value); err == nil {
			return parsed
		}
	}
	return fallback
}

func getInt64Env(key string, fallback int64) int64 {
	if value := os.Getenv(key); value != "" {
		if parsed, err := strconv.ParseInt(value, 10, 64); err == nil {
			return parsed
		}
	}
	return fallback
}

// getDurationEnv accepts Go durations ("90s", "2h")
func getDurationEnv(key string, fallback time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if parsed, err := time.ParseDuration(value); err == nil {
			return parsed
		}
	}
	return fallback
}
