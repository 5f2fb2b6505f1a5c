package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Config represents the application configuration
type Config struct {
	Environment string          `json:"environment"`
	Server      ServerConfig    `json:"server"`
	Database    DatabaseConfig  `json:"database"`
	Security    SecurityConfig  `json:"security"`
	AWS         AWSConfig       `json:"aws"`
	Storage     StorageConfig   `json:"storage"`
	Email       EmailConfig     `json:"email"`
	SMS         SMSConfig       `json:"sms"`
	Search      SearchConfig    `json:"search"`
	Export      ExportConfig    `json:"export"`
	Workers     WorkersConfig   `json:"workers"`
	Bootstrap   BootstrapConfig `json:"bootstrap"`
}

// ServerConfig represents server configuration
type ServerConfig struct {
	Host            string        `json:"host"`
	Port            int           `json:"port"`
	ReadTimeout     time.Duration `json:"read_timeout"`
	WriteTimeout    time.Duration `json:"write_timeout"`
	IdleTimeout     time.Duration `json:"idle_timeout"`
	ShutdownTimeout time.Duration `json:"shutdown_timeout"`
	AllowedOrigins  []string      `json:"allowed_origins"`
}

// DatabaseConfig represents database configuration
type DatabaseConfig struct {
	Host           string        `json:"host"`
	Port           int           `json:"port"`
	User           string        `json:"user"`
	Password       string        `json:"password"`
	DBName         string        `json:"db_name"`
	SSLMode        string        `json:"ssl_mode"`
	MaxConnections int           `json:"max_connections"`
	MaxIdleConns   int           `json:"max_idle_conns"`
	MaxLifetime    time.Duration `json:"max_lifetime"`
	AutoMigrate    bool          `json:"auto_migrate"`
}

type SecurityConfig struct {
	JWTSecret string        `json:"jwt_secret"`
	JWTIssuer string        `json:"jwt_issuer"`
	TokenTTL  time.Duration `json:"token_ttl"`
}

// AWSConfig is shared by storage, email and SMS. Empty keys use the default
// credential chain.
type AWSConfig struct {
	Region          string `json:"region"`
	AccessKeyID     string `json:"access_key_id"`
	SecretAccessKey string `json:"secret_access_key"`
}

// StorageConfig selects where attachments live. Driver is "s3" or "memory".
type StorageConfig struct {
	Driver       string        `json:"driver"`
	Bucket       string        `json:"bucket"`
	Endpoint     string        `json:"endpoint"`
	UsePathStyle bool          `json:"use_path_style"`
	PresignTTL   time.Duration `json:"presign_ttl"`
}

type EmailConfig struct {
	Enabled bool   `json:"enabled"`
	From    string `json:"from"`
}

type SMSConfig struct {
	Enabled  bool   `json:"enabled"`
	SenderID string `json:"sender_id"`
}

type SearchConfig struct {
	Enabled   bool     `json:"enabled"`
	Addresses []string `json:"addresses"`
	Username  string   `json:"username"`
	Password  string   `json:"password"`
	Index     string   `json:"index"`
}

// ExportConfig points PDF rendering at a TrueType font with Vietnamese glyphs.
type ExportConfig struct {
	PDFFontPath string `json:"pdf_font_path"`
}

type WorkersConfig struct {
	ReminderSchedule string        `json:"reminder_schedule"`
	ReminderWindow   time.Duration `json:"reminder_window"`
	ReindexSchedule  string        `json:"reindex_schedule"`
}

// BootstrapConfig creates the first administrator on an empty directory.
type BootstrapConfig struct {
	AdminUsername string `json:"admin_username"`
	AdminPassword string `json:"admin_password"`
}

func defaults() *Config {
	return &Config{
		Environment: "development",
		Server: ServerConfig{
			Host:            "0.0.0.0",
			Port:            8080,
			ReadTimeout:     15 * time.Second,
			WriteTimeout:    60 * time.Second,
			IdleTimeout:     120 * time.Second,
			ShutdownTimeout: 10 * time.Second,
		},
		Database: DatabaseConfig{
			Host:           "localhost",
			Port:           5432,
			User:           "postgres",
			DBName:         "document_portal",
			SSLMode:        "disable",
			MaxConnections: 25,
			MaxIdleConns:   5,
			MaxLifetime:    30 * time.Minute,
			AutoMigrate:    true,
		},
		Security: SecurityConfig{
			JWTIssuer: "document-portal",
			TokenTTL:  12 * time.Hour,
		},
		AWS:     AWSConfig{Region: "ap-southeast-1"},
		Storage: StorageConfig{Driver: "memory", Bucket: "document-portal-attachments", PresignTTL: 15 * time.Minute},
		Search:  SearchConfig{Index: "documents"},
		Workers: WorkersConfig{
			ReminderSchedule: "0 */30 * * * *",
			ReminderWindow:   24 * time.Hour,
			ReindexSchedule:  "0 0 3 * * *",
		},
	}
}

// LoadConfig loads configuration from defaults, a .env file, the JSON file at
// configPath and finally environment variables, later sources winning.
func LoadConfig(configPath string) (*Config, error) {
	config := defaults()

	// .env is optional; existing environment variables are not overwritten
	_ = godotenv.Load()

	if configPath != "" {
		data, err := os.ReadFile(configPath)
		switch {
		case err == nil:
			if err := json.Unmarshal(data, config); err != nil {
				return nil, fmt.Errorf("failed to parse config file: %w", err)
			}
		case !errors.Is(err, os.ErrNotExist):
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
	}

	if err := overrideWithEnv(config); err != nil {
		return nil, err
	}
	return config, nil
}

func overrideWithEnv(c *Config) error {
	var errs []error
	str := func(key string, dst *string) {
		if v := os.Getenv(key); v != "" {
			*dst = v
		}
	}
	num := func(key string, dst *int) {
		if v := os.Getenv(key); v != "" {
			n, err := strconv.Atoi(v)
			if err != nil {
				errs = append(errs, fmt.Errorf("%s: %w", key, err))
				return
			}
			*dst = n
		}
	}
	flag := func(key string, dst *bool) {
		if v := os.Getenv(key); v != "" {
			b, err := strconv.ParseBool(v)
			if err != nil {
				errs = append(errs, fmt.Errorf("%s: %w", key, err))
				return
			}
			*dst = b
		}
	}
	dur := func(key string, dst *time.Duration) {
		if v := os.Getenv(key); v != "" {
			d, err := time.ParseDuration(v)
			if err != nil {
				errs = append(errs, fmt.Errorf("%s: %w", key, err))
				return
			}
			*dst = d
		}
	}
	list := func(key string, dst *[]string) {
		if v := os.Getenv(key); v != "" {
			var out []string
			for _, item := range strings.Split(v, ",") {
				if item = strings.TrimSpace(item); item != "" {
					out = append(out, item)
				}
			}
			*dst = out
		}
	}

	str("APP_ENV", &c.Environment)

	str("SERVER_HOST", &c.Server.Host)
	num("SERVER_PORT", &c.Server.Port)
	list("CORS_ALLOWED_ORIGINS", &c.Server.AllowedOrigins)

	str("DATABASE_HOST", &c.Database.Host)
	num("DATABASE_PORT", &c.Database.Port)
	str("DATABASE_USER", &c.Database.User)
	str("DATABASE_PASSWORD", &c.Database.Password)
	str("DATABASE_DBNAME", &c.Database.DBName)
	str("DATABASE_SSLMODE", &c.Database.SSLMode)
	num("DATABASE_MAX_CONNECTIONS", &c.Database.MaxConnections)
	flag("DATABASE_AUTO_MIGRATE", &c.Database.AutoMigrate)

	str("JWT_SECRET", &c.Security.JWTSecret)
	dur("JWT_TTL", &c.Security.TokenTTL)

	str("AWS_REGION", &c.AWS.Region)
	str("AWS_ACCESS_KEY_ID", &c.AWS.AccessKeyID)
	str("AWS_SECRET_ACCESS_KEY", &c.AWS.SecretAccessKey)

	str("STORAGE_DRIVER", &c.Storage.Driver)
	str("S3_BUCKET", &c.Storage.Bucket)
	str("S3_ENDPOINT", &c.Storage.Endpoint)
	flag("S3_USE_PATH_STYLE", &c.Storage.UsePathStyle)
	dur("S3_PRESIGN_TTL", &c.Storage.PresignTTL)

	flag("EMAIL_ENABLED", &c.Email.Enabled)
	str("EMAIL_FROM", &c.Email.From)
	flag("SMS_ENABLED", &c.SMS.Enabled)
	str("SMS_SENDER_ID", &c.SMS.SenderID)

	flag("SEARCH_ENABLED", &c.Search.Enabled)
	list("ELASTICSEARCH_ADDRESSES", &c.Search.Addresses)
	str("ELASTICSEARCH_USERNAME", &c.Search.Username)
	str("ELASTICSEARCH_PASSWORD", &c.Search.Password)
	str("ELASTICSEARCH_INDEX", &c.Search.Index)

	str("PDF_FONT_PATH", &c.Export.PDFFontPath)

	str("REMINDER_SCHEDULE", &c.Workers.ReminderSchedule)
	dur("REMINDER_WINDOW", &c.Workers.ReminderWindow)
	str("REINDEX_SCHEDULE", &c.Workers.ReindexSchedule)

	str("ADMIN_USERNAME", &c.Bootstrap.AdminUsername)
	str("ADMIN_PASSWORD", &c.Bootstrap.AdminPassword)

	return errors.Join(errs...)
}

// Validate reports every missing or inconsistent setting at once.
func (c *Config) Validate() error {
	var errs []error
	if c.Server.Port <= 0 || c.Server.Port > 65535 {
		errs = append(errs, fmt.Errorf("server.port %d out of range", c.Server.Port))
	}
	if c.Database.Host == "" || c.Database.DBName == "" {
		errs = append(errs, errors.New("database host and db_name are required"))
	}
	if len(c.Security.JWTSecret) < 16 {
		errs = append(errs, errors.New("security.jwt_secret must be at least 16 bytes"))
	}
	switch c.Storage.Driver {
	case "memory":
		if c.IsProduction() {
			errs = append(errs, errors.New("storage.driver memory is not allowed in production"))
		}
	case "s3":
		if c.Storage.Bucket == "" {
			errs = append(errs, errors.New("storage.bucket is required for s3"))
		}
	default:
		errs = append(errs, fmt.Errorf("unknown storage.driver %q", c.Storage.Driver))
	}
	if c.Email.Enabled && c.Email.From == "" {
		errs = append(errs, errors.New("email.from is required when email is enabled"))
	}
	if c.Search.Enabled && len(c.Search.Addresses) == 0 {
		errs = append(errs, errors.New("search.addresses is required when search is enabled"))
	}
	if (c.Bootstrap.AdminUsername == "") != (c.Bootstrap.AdminPassword == "") {
		errs = append(errs, errors.New("bootstrap admin needs both username and password"))
	}
	return errors.Join(errs...)
}

func (c *Config) IsProduction() bool {
	return c.Environment == "production"
}

// NeedsAWS reports whether any component talks to AWS.
func (c *Config) NeedsAWS() bool {
	return c.Storage.Driver == "s3" || c.Email.Enabled || c.SMS.Enabled
}

// GetDatabaseURL returns the database connection string
func (c *DatabaseConfig) GetDatabaseURL() string {
	return fmt.Sprintf("postgres://%s:%s@%s:%d/%s?sslmode=%s",
		c.User, c.Password, c.Host, c.Port, c.DBName, c.SSLMode)
}

// Redacted is the URL with the password masked, for logs.
func (c *DatabaseConfig) Redacted() string {
	return fmt.Sprintf("postgres://%s:***@%s:%d/%s?sslmode=%s",
		c.User, c.Host, c.Port, c.DBName, c.SSLMode)
}

// GetServerAddr returns the server address
func (c *ServerConfig) GetServerAddr() string {
	return fmt.Sprintf("%s:%d", c.Host, c.Port)
}
