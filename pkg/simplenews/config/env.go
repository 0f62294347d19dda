package config

import (
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/ilyakaznacheev/cleanenv"
)

// envSettings is the environment surface read by WithEnv. Unset variables
// keep the values already present in the ServerConfig.
type envSettings struct {
	Port        string `env:"PORT"`
	Environment string `env:"ENVIRONMENT"`
	LogLevel    string `env:"LOG_LEVEL"`

	DatabaseURL string `env:"DATABASE_URL"`
	DBSchema    string `env:"CONTENT_DB_SCHEMA"`
	AutoMigrate bool   `env:"AUTO_MIGRATE" env-default:"false"`

	StorageURL      string `env:"STORAGE_URL"`
	UploadURLPrefix string `env:"UPLOAD_URL_PREFIX"`

	AWSRegion          string `env:"AWS_REGION"`
	AWSAccessKeyID     string `env:"AWS_ACCESS_KEY_ID"`
	AWSSecretAccessKey string `env:"AWS_SECRET_ACCESS_KEY"`
	AWSEndpoint        string `env:"AWS_S3_ENDPOINT"`
	AWSPathStyle       bool   `env:"AWS_S3_PATH_STYLE" env-default:"false"`
	AWSPublicURL       string `env:"AWS_S3_PUBLIC_URL"`
	AWSCreateBucket    bool   `env:"AWS_S3_CREATE_BUCKET" env-default:"false"`

	JWTSecret          string        `env:"JWT_SECRET"`
	CleanupConcurrency int           `env:"CLEANUP_CONCURRENCY"`
	RateLimitRPS       float64       `env:"RATE_LIMIT_RPS"`
	RateLimitBurst     int           `env:"RATE_LIMIT_BURST"`
	MaxUploadBytes     int64         `env:"MAX_UPLOAD_BYTES"`
	MaxUploadFiles     int           `env:"MAX_UPLOAD_FILES"`
	SweepSchedule      string        `env:"ORPHAN_SWEEP_SCHEDULE"`
	SweepGrace         time.Duration `env:"ORPHAN_SWEEP_GRACE"`
}

// WithEnv applies environment variable overrides.
//
// Database:
//
//	DATABASE_URL - "memory" (default) or a postgres:// / postgresql:// connection string
//	CONTENT_DB_SCHEMA - Postgres schema (default: "news")
//	AUTO_MIGRATE - apply embedded migrations on startup
//
// Storage:
//
//	STORAGE_URL - one of:
//	  - "memory://" - in-memory storage (default)
//	  - "file:///path/to/data" - filesystem storage
//	  - "s3://bucket" - S3 storage, configured further by the AWS_* variables
//	UPLOAD_URL_PREFIX - path blobs are served under (default: "/uploads")
func WithEnv() Option {
	return func(c *ServerConfig) error {
		var env envSettings
		if err := cleanenv.ReadEnv(&env); err != nil {
			return fmt.Errorf("failed to read environment: %w", err)
		}

		setString(&c.Port, env.Port)
		setString(&c.Environment, env.Environment)
		setString(&c.LogLevel, env.LogLevel)
		setString(&c.DBSchema, env.DBSchema)
		setString(&c.JWTSecret, env.JWTSecret)
		setString(&c.OrphanSweepSchedule, env.SweepSchedule)
		c.AutoMigrate = c.AutoMigrate || env.AutoMigrate

		if env.CleanupConcurrency != 0 {
			c.CleanupConcurrency = env.CleanupConcurrency
		}
		if env.RateLimitRPS != 0 {
			c.RateLimitRPS = env.RateLimitRPS
		}
		if env.RateLimitBurst != 0 {
			c.RateLimitBurst = env.RateLimitBurst
		}
		if env.MaxUploadBytes != 0 {
			c.MaxUploadBytes = env.MaxUploadBytes
		}
		if env.MaxUploadFiles != 0 {
			c.MaxUploadFiles = env.MaxUploadFiles
		}
		if env.SweepGrace != 0 {
			c.OrphanSweepGrace = env.SweepGrace
		}

		if err := applyDatabaseURL(c, env.DatabaseURL); err != nil {
			return err
		}
		if err := applyStorageURL(&c.Storage, env.StorageURL); err != nil {
			return err
		}

		s := &c.Storage
		setString(&s.URLPrefix, env.UploadURLPrefix)
		setString(&s.Region, env.AWSRegion)
		setString(&s.AccessKeyID, env.AWSAccessKeyID)
		setString(&s.SecretAccessKey, env.AWSSecretAccessKey)
		setString(&s.Endpoint, env.AWSEndpoint)
		setString(&s.PublicBaseURL, env.AWSPublicURL)
		s.UsePathStyle = s.UsePathStyle || env.AWSPathStyle
		s.CreateBucketIfNotExist = s.CreateBucketIfNotExist || env.AWSCreateBucket
		return nil
	}
}

// applyDatabaseURL picks the database type from the URL scheme
func applyDatabaseURL(c *ServerConfig, dbURL string) error {
	switch {
	case dbURL == "":
		return nil
	case dbURL == "memory":
		c.DatabaseType = "memory"
		c.DatabaseURL = ""
	case strings.HasPrefix(dbURL, "postgresql://"), strings.HasPrefix(dbURL, "postgres://"):
		c.DatabaseType = "postgres"
		c.DatabaseURL = dbURL
	default:
		return fmt.Errorf("unsupported DATABASE_URL format: %s (use 'memory' or 'postgresql://...')", dbURL)
	}
	return nil
}

// applyStorageURL configures the blob store from a storage URL
func applyStorageURL(s *StorageConfig, storageURL string) error {
	if storageURL == "" {
		return nil
	}
	if storageURL == "memory" || storageURL == "memory://" {
		s.Type = "memory"
		return nil
	}

	u, err := url.Parse(storageURL)
	if err != nil {
		return fmt.Errorf("invalid STORAGE_URL: %w", err)
	}

	switch u.Scheme {
	case "file":
		// file:///var/data and file://./data are both accepted
		path := u.Host + u.Path
		if path == "" {
			return fmt.Errorf("filesystem path cannot be empty in STORAGE_URL")
		}
		s.Type = "fs"
		s.BaseDir = path
	case "s3":
		if u.Host == "" {
			return fmt.Errorf("S3 bucket name cannot be empty in STORAGE_URL")
		}
		s.Type = "s3"
		s.Bucket = u.Host
		if region := u.Query().Get("region"); region != "" {
			s.Region = region
		}
		if endpoint := u.Query().Get("endpoint"); endpoint != "" {
			s.Endpoint = endpoint
			s.UsePathStyle = true
		}
	default:
		return fmt.Errorf("unsupported STORAGE_URL format: %s (use 'memory://', 'file://...', or 's3://...')", storageURL)
	}
	return nil
}

func setString(dst *string, v string) {
	if v != "" {
		*dst = v
	}
}
