package config

import (
	"time"

	"github.com/kelseyhightower/envconfig"
)

type Config struct {
	Database   *dbConfig
	Service    *svcConfig
	Research   *researchConfig
	Google     *googleConfig
	Storage    *storageConfig
	Encryption *encryptionConfig
}

type dbConfig struct {
	URL             string        `envconfig:"DATABASE_URL" default:"sqlite://./deepreport.db"`
	MaxOpenConns    int           `envconfig:"DB_MAX_OPEN_CONNS" default:"25"`
	MaxIdleConns    int           `envconfig:"DB_MAX_IDLE_CONNS" default:"5"`
	ConnMaxLifetime time.Duration `envconfig:"DB_CONN_MAX_LIFETIME" default:"5m"`
}

type svcConfig struct {
	Address        string   `envconfig:"DEEPREPORT_ADDRESS" default:":8080"`
	LogLevel       string   `envconfig:"DEEPREPORT_LOG_LEVEL" default:"info"`
	AllowedOrigins []string `envconfig:"DEEPREPORT_ALLOWED_ORIGINS" default:"http://localhost:5173"`
	SeedFile       string   `envconfig:"DEEPREPORT_SEED_FILE" default:""`
	Auth           Auth
}

type Auth struct {
	AuthenticationType string `envconfig:"DEEPREPORT_AUTH" default:"jwt"`
	JWTSecret          string `envconfig:"DEEPREPORT_JWT_SECRET" default:""`
}

type researchConfig struct {
	APIKey       string        `envconfig:"OPENAI_API_KEY" default:""`
	BaseURL      string        `envconfig:"OPENAI_BASE_URL" default:"https://api.openai.com/v1"`
	Model        string        `envconfig:"OPENAI_RESEARCH_MODEL" default:"o3-deep-research-2025-06-26"`
	Effort       string        `envconfig:"OPENAI_REASONING_EFFORT" default:"medium"`
	Timeout      time.Duration `envconfig:"OPENAI_TIMEOUT" default:"60s"`
	PollAttempts int           `envconfig:"RESEARCH_POLL_ATTEMPTS" default:"60"`
	PollInterval time.Duration `envconfig:"RESEARCH_POLL_INTERVAL" default:"30s"`
}

type googleConfig struct {
	ClientID     string `envconfig:"GOOGLE_CLIENT_ID" default:""`
	ClientSecret string `envconfig:"GOOGLE_CLIENT_SECRET" default:""`
	RedirectURL  string `envconfig:"GOOGLE_REDIRECT_URL" default:"http://localhost:8080/api/v1/google/callback"`
	DocsBaseURL  string `envconfig:"GOOGLE_DOCS_BASE_URL" default:"https://docs.googleapis.com"`
	DriveBaseURL string `envconfig:"GOOGLE_DRIVE_BASE_URL" default:"https://www.googleapis.com"`
	RevokeURL    string `envconfig:"GOOGLE_REVOKE_URL" default:"https://oauth2.googleapis.com/revoke"`
	LogoURL      string `envconfig:"GOOGLE_DOCS_LOGO_URL" default:""`
}

type storageConfig struct {
	Endpoint   string `envconfig:"S3_ENDPOINT" default:""`
	Bucket     string `envconfig:"S3_BUCKET" default:"report-files"`
	AccessKey  string `envconfig:"S3_ACCESS_KEY" default:""`
	SecretKey  string `envconfig:"S3_SECRET_KEY" default:""`
	UseSSL     bool   `envconfig:"S3_USE_SSL" default:"false"`
	PublicBase string `envconfig:"S3_PUBLIC_BASE_URL" default:""`
}

type encryptionConfig struct {
	Key string `envconfig:"ENCRYPTION_KEY" default:""`
}

// New reads the configuration from the environment.
func New() (*Config, error) {
	cfg := new(Config)
	if err := envconfig.Process("", cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}
