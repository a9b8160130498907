package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

type Config struct {
	Database  DatabaseConfig
	Server    ServerConfig
	Auth      AuthConfig
	Lockout   LockoutConfig
	Tokens    TokensConfig
	Policy    PolicyConfig
	Email     EmailConfig
	OIDC      OIDCConfig
	Session   SessionConfig
	Bootstrap BootstrapConfig
}

type DatabaseConfig struct {
	Host              string
	Port              int
	User              string
	Password          string
	Name              string
	SSLMode           string
	MaxConns          int32
	MinConns          int32
	MaxConnLifetime   time.Duration
	MaxConnIdleTime   time.Duration
	HealthCheckPeriod time.Duration
	// StatementTimeout bounds every query on the server side; zero disables it.
	StatementTimeout time.Duration
}

type ServerConfig struct {
	Port         string
	Env          string
	LogLevel     string
	BaseURL      string
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
	IdleTimeout  time.Duration
	// TrustedProxies are CIDR ranges whose X-Forwarded-For is believed
	TrustedProxies []string
	// RateLimitPerMinute caps unauthenticated auth endpoint requests per client IP
	RateLimitPerMinute int
}

type AuthConfig struct {
	JWTSecret         string
	Issuer            string
	AccessTokenExpiry time.Duration
	BcryptCost        int
	FailureDelay      time.Duration
	FailureJitter     time.Duration
	SweepInterval     time.Duration
	// AdminAPIKeyHashes are SHA-256 hashes of keys allowed on /admin routes.
	// Admin routes are not mounted when empty.
	AdminAPIKeyHashes []string
}

type LockoutConfig struct {
	MaxAttempts int
	Window      time.Duration
	Retention   time.Duration
}

type TokenPurposeConfig struct {
	TTL                time.Duration
	MaxRequestsPerHour int
}

type TokensConfig struct {
	PasswordReset    TokenPurposeConfig
	EmailChange      TokenPurposeConfig
	AttemptRetention time.Duration
}

type PolicyConfig struct {
	MinLength       int
	MaxLength       int
	MaxConsecutive  int
	RefreshInterval time.Duration
}

// EmailConfig selects the mail transport: "ses", "smtp" or "log"
type EmailConfig struct {
	Provider     string
	From         string
	AWSRegion    string
	SMTPHost     string
	SMTPPort     int
	SMTPUsername string
	SMTPPassword string
	SMTPTLS      bool
}

// OIDCConfig describes the single external identity provider.
// The provider is disabled when IssuerURL is empty.
type OIDCConfig struct {
	Provider     string
	IssuerURL    string
	ClientID     string
	ClientSecret string
	RedirectURL  string
	Scopes       []string
}

func (c OIDCConfig) Enabled() bool {
	return c.IssuerURL != ""
}

// SessionConfig selects the link-session store: "memory" or "redis"
type SessionConfig struct {
	Store         string
	RedisAddr     string
	RedisPassword string
	RedisDB       int
	LinkTTL       time.Duration
	CookieSecure  bool
	CookieDomain  string
}

// BootstrapConfig names the first account created at startup. Both
// Username and Password must be set for it to be created.
type BootstrapConfig struct {
	Username string
	Password string
	Email    string
}

func (c BootstrapConfig) Enabled() bool {
	return c.Username != "" && c.Password != ""
}

func Load() (*Config, error) {
	_ = godotenv.Load()

	jwtSecret := getEnv("JWT_SECRET", "")
	if jwtSecret == "" {
		return nil, fmt.Errorf("JWT_SECRET is required")
	}

	env := getEnv("ENV", "development")

	cfg := &Config{
		Database: DatabaseConfig{
			Host:              getEnv("DB_HOST", "localhost"),
			Port:              getEnvAsInt("DB_PORT", 5432),
			User:              getEnv("DB_USER", "postgres"),
			Password:          getEnv("DB_PASSWORD", ""),
			Name:              getEnv("DB_NAME", "bastion"),
			SSLMode:           getEnv("DB_SSLMODE", "disable"),
			MaxConns:          int32(getEnvAsInt("DB_MAX_CONNS", 25)),
			MinConns:          int32(getEnvAsInt("DB_MIN_CONNS", 5)),
			MaxConnLifetime:   getEnvAsDuration("DB_MAX_CONN_LIFETIME", 5*time.Minute),
			MaxConnIdleTime:   getEnvAsDuration("DB_MAX_CONN_IDLE_TIME", 1*time.Minute),
			HealthCheckPeriod: getEnvAsDuration("DB_HEALTH_CHECK_PERIOD", 1*time.Minute),
			StatementTimeout:  getEnvAsDuration("DB_STATEMENT_TIMEOUT", 5*time.Second),
		},
		Server: ServerConfig{
			Port:         getEnv("PORT", "8080"),
			Env:          env,
			LogLevel:     getEnv("LOG_LEVEL", "info"),
			BaseURL:      strings.TrimRight(getEnv("BASE_URL", "http://localhost:8080"), "/"),
			ReadTimeout:  getEnvAsDuration("SERVER_READ_TIMEOUT", 15*time.Second),
			WriteTimeout: getEnvAsDuration("SERVER_WRITE_TIMEOUT", 15*time.Second),
			IdleTimeout:  getEnvAsDuration("SERVER_IDLE_TIMEOUT", 60*time.Second),

			TrustedProxies:     parseList(getEnv("TRUSTED_PROXIES", "")),
			RateLimitPerMinute: getEnvAsInt("RATE_LIMIT_PER_MINUTE", 10),
		},
		Auth: AuthConfig{
			JWTSecret:         jwtSecret,
			Issuer:            getEnv("JWT_ISSUER", "bastion"),
			AccessTokenExpiry: getEnvAsDuration("ACCESS_TOKEN_EXPIRY", 15*time.Minute),
			BcryptCost:        getEnvAsInt("BCRYPT_COST", 12),
			FailureDelay:      getEnvAsDuration("AUTH_FAILURE_DELAY", 250*time.Millisecond),
			FailureJitter:     getEnvAsDuration("AUTH_FAILURE_JITTER", 100*time.Millisecond),
			SweepInterval:     getEnvAsDuration("SWEEP_INTERVAL", 1*time.Hour),
			AdminAPIKeyHashes: parseList(getEnv("ADMIN_API_KEY_HASHES", "")),
		},
		Lockout: LockoutConfig{
			MaxAttempts: getEnvAsInt("LOCKOUT_MAX_ATTEMPTS", 5),
			Window:      getEnvAsDuration("LOCKOUT_WINDOW", 60*time.Minute),
			Retention:   getEnvAsDuration("LOCKOUT_RETENTION", 7*24*time.Hour),
		},
		Tokens: TokensConfig{
			PasswordReset: TokenPurposeConfig{
				TTL:                getEnvAsDuration("PASSWORD_RESET_TTL", 30*time.Minute),
				MaxRequestsPerHour: getEnvAsInt("PASSWORD_RESET_MAX_PER_HOUR", 5),
			},
			EmailChange: TokenPurposeConfig{
				TTL:                getEnvAsDuration("EMAIL_CHANGE_TTL", 30*time.Minute),
				MaxRequestsPerHour: getEnvAsInt("EMAIL_CHANGE_MAX_PER_HOUR", 3),
			},
			AttemptRetention: getEnvAsDuration("TOKEN_ATTEMPT_RETENTION", 7*24*time.Hour),
		},
		Policy: PolicyConfig{
			MinLength:       getEnvAsInt("PASSWORD_MIN_LENGTH", 8),
			MaxLength:       getEnvAsInt("PASSWORD_MAX_LENGTH", 64),
			MaxConsecutive:  getEnvAsInt("PASSWORD_MAX_CONSECUTIVE", 3),
			RefreshInterval: getEnvAsDuration("WEAK_PASSWORD_REFRESH_INTERVAL", 1*time.Hour),
		},
		Email: EmailConfig{
			Provider:     strings.ToLower(getEnv("EMAIL_PROVIDER", "log")),
			From:         getEnv("EMAIL_FROM", "no-reply@localhost"),
			AWSRegion:    getEnv("AWS_REGION", "us-east-1"),
			SMTPHost:     getEnv("SMTP_HOST", "localhost"),
			SMTPPort:     getEnvAsInt("SMTP_PORT", 587),
			SMTPUsername: getEnv("SMTP_USERNAME", ""),
			SMTPPassword: getEnv("SMTP_PASSWORD", ""),
			SMTPTLS:      getEnvAsBool("SMTP_TLS", true),
		},
		OIDC: OIDCConfig{
			Provider:     getEnv("OIDC_PROVIDER", "oidc"),
			IssuerURL:    getEnv("OIDC_ISSUER_URL", ""),
			ClientID:     getEnv("OIDC_CLIENT_ID", ""),
			ClientSecret: getEnv("OIDC_CLIENT_SECRET", ""),
			RedirectURL:  getEnv("OIDC_REDIRECT_URL", ""),
			Scopes:       parseList(getEnv("OIDC_SCOPES", "openid,email,profile")),
		},
		Session: SessionConfig{
			Store:         strings.ToLower(getEnv("SESSION_STORE", "memory")),
			RedisAddr:     getEnv("REDIS_ADDR", "localhost:6379"),
			RedisPassword: getEnv("REDIS_PASSWORD", ""),
			RedisDB:       getEnvAsInt("REDIS_DB", 0),
			LinkTTL:       getEnvAsDuration("LINK_SESSION_TTL", 10*time.Minute),
			CookieSecure:  getEnvAsBool("COOKIE_SECURE", env == "production"),
			CookieDomain:  getEnv("COOKIE_DOMAIN", ""),
		},
		Bootstrap: BootstrapConfig{
			Username: strings.TrimSpace(getEnv("BOOTSTRAP_USERNAME", "")),
			Password: getEnv("BOOTSTRAP_PASSWORD", ""),
			Email:    strings.ToLower(strings.TrimSpace(getEnv("BOOTSTRAP_EMAIL", ""))),
		},
	}

	if cfg.Database.Password == "" {
		return nil, fmt.Errorf("DB_PASSWORD is required")
	}

	if err := validateJWTSecret(jwtSecret, env); err != nil {
		return nil, err
	}

	if err := cfg.validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

// validate checks value ranges that would otherwise misconfigure the guards
func (c *Config) validate() error {
	if c.Lockout.MaxAttempts < 1 {
		return fmt.Errorf("LOCKOUT_MAX_ATTEMPTS must be at least 1")
	}
	if c.Lockout.Window <= 0 {
		return fmt.Errorf("LOCKOUT_WINDOW must be positive")
	}
	if c.Tokens.PasswordReset.TTL <= 0 || c.Tokens.EmailChange.TTL <= 0 {
		return fmt.Errorf("token TTLs must be positive")
	}
	if c.Tokens.PasswordReset.MaxRequestsPerHour < 1 || c.Tokens.EmailChange.MaxRequestsPerHour < 1 {
		return fmt.Errorf("token request limits must be at least 1")
	}
	if c.Policy.MinLength < 1 || c.Policy.MinLength > c.Policy.MaxLength {
		return fmt.Errorf("PASSWORD_MIN_LENGTH must be between 1 and PASSWORD_MAX_LENGTH")
	}
	if c.Session.LinkTTL <= 0 {
		return fmt.Errorf("LINK_SESSION_TTL must be positive")
	}

	switch c.Email.Provider {
	case "ses", "smtp", "log":
	default:
		return fmt.Errorf("EMAIL_PROVIDER must be one of ses, smtp, log (got %q)", c.Email.Provider)
	}

	switch c.Session.Store {
	case "memory", "redis":
	default:
		return fmt.Errorf("SESSION_STORE must be memory or redis (got %q)", c.Session.Store)
	}

	if c.OIDC.Enabled() && (c.OIDC.ClientID == "" || c.OIDC.RedirectURL == "") {
		return fmt.Errorf("OIDC_CLIENT_ID and OIDC_REDIRECT_URL are required when OIDC_ISSUER_URL is set")
	}

	return nil
}

// validateJWTSecret enforces minimum security standards for JWT secret
func validateJWTSecret(secret, env string) error {
	minLength := 16
	if env == "production" {
		minLength = 32
	}

	if len(secret) < minLength {
		return fmt.Errorf("JWT_SECRET must be at least %d characters in %s environment (got %d)",
			minLength, env, len(secret))
	}

	weakSecrets := []string{
		"secret", "test", "password", "12345", "changeme",
		"admin", "root", "default", "example",
	}

	secretLower := strings.ToLower(secret)
	for _, weak := range weakSecrets {
		if secretLower == weak {
			return fmt.Errorf("JWT_SECRET cannot be a common weak value")
		}
	}

	return nil
}

func (c *DatabaseConfig) DSN() string {
	return fmt.Sprintf(
		"host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		c.Host, c.Port, c.User, c.Password, c.Name, c.SSLMode,
	)
}

func getEnv(key, defaultVal string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultVal
}

func getEnvAsInt(key string, defaultVal int) int {
	if value := os.Getenv(key); value != "" {
		if intVal, err := strconv.Atoi(value); err == nil {
			return intVal
		}
	}
	return defaultVal
}

func getEnvAsBool(key string, defaultVal bool) bool {
	if value := os.Getenv(key); value != "" {
		if b, err := strconv.ParseBool(value); err == nil {
			return b
		}
	}
	return defaultVal
}

func getEnvAsDuration(key string, defaultVal time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if duration, err := time.ParseDuration(value); err == nil {
			return duration
		}
	}
	return defaultVal
}

func parseList(s string) []string {
	var out []string
	for _, item := range strings.Split(s, ",") {
		if item = strings.TrimSpace(item); item != "" {
			out = append(out, item)
		}
	}
	return out
}
