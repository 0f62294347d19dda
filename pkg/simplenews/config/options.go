package config

import (
	"fmt"
	"time"
)

// WithPort sets the server port
func WithPort(port string) Option {
	return func(c *ServerConfig) error {
		if port == "" {
			return fmt.Errorf("port cannot be empty")
		}
		c.Port = port
		return nil
	}
}

// WithEnvironment sets the environment (development, production, testing)
func WithEnvironment(env string) Option {
	return func(c *ServerConfig) error {
		if env == "" {
			return fmt.Errorf("environment cannot be empty")
		}
		c.Environment = env
		return nil
	}
}

// WithDatabase configures the database backend
func WithDatabase(dbType, url string) Option {
	return func(c *ServerConfig) error {
		if dbType != "memory" && dbType != "postgres" {
			return fmt.Errorf("database type must be 'memory' or 'postgres', got: %s", dbType)
		}
		if dbType == "postgres" && url == "" {
			return fmt.Errorf("database URL is required for postgres")
		}
		c.DatabaseType = dbType
		c.DatabaseURL = url
		return nil
	}
}

// WithDatabaseSchema sets the database schema (for Postgres)
func WithDatabaseSchema(schema string) Option {
	return func(c *ServerConfig) error {
		c.DBSchema = schema
		return nil
	}
}

// WithAutoMigrate applies the embedded migrations when the service is built
func WithAutoMigrate(enabled bool) Option {
	return func(c *ServerConfig) error {
		c.AutoMigrate = enabled
		return nil
	}
}

// WithFilesystemStorage stores blobs under baseDir
func WithFilesystemStorage(baseDir, urlPrefix string) Option {
	return func(c *ServerConfig) error {
		if baseDir == "" {
			return fmt.Errorf("filesystem base directory cannot be empty")
		}
		c.Storage.Type = "fs"
		c.Storage.BaseDir = baseDir
		if urlPrefix != "" {
			c.Storage.URLPrefix = urlPrefix
		}
		return nil
	}
}

// WithS3Storage stores blobs in an S3 bucket. Credentials fall back to the
// default AWS chain when empty.
func WithS3Storage(bucket, region, endpoint string) Option {
	return func(c *ServerConfig) error {
		if bucket == "" {
			return fmt.Errorf("s3 bucket cannot be empty")
		}
		c.Storage.Type = "s3"
		c.Storage.Bucket = bucket
		if region != "" {
			c.Storage.Region = region
		}
		if endpoint != "" {
			c.Storage.Endpoint = endpoint
			c.Storage.UsePathStyle = true
		}
		return nil
	}
}

// WithMemoryStorage keeps blobs in process memory
func WithMemoryStorage() Option {
	return func(c *ServerConfig) error {
		c.Storage.Type = "memory"
		return nil
	}
}

// WithJWTSecret sets the HS256 secret used to verify admin tokens
func WithJWTSecret(secret string) Option {
	return func(c *ServerConfig) error {
		c.JWTSecret = secret
		return nil
	}
}

// WithUploadLimits bounds multipart uploads per file and per request
func WithUploadLimits(maxBytes int64, maxFiles int) Option {
	return func(c *ServerConfig) error {
		if maxBytes <= 0 || maxFiles <= 0 {
			return fmt.Errorf("upload limits must be positive")
		}
		c.MaxUploadBytes = maxBytes
		c.MaxUploadFiles = maxFiles
		return nil
	}
}

// WithRateLimit limits API requests per client; rps 0 disables it
func WithRateLimit(rps float64, burst int) Option {
	return func(c *ServerConfig) error {
		c.RateLimitRPS = rps
		c.RateLimitBurst = burst
		return nil
	}
}

// WithOrphanSweep enables the periodic orphan sweep
func WithOrphanSweep(schedule string, grace time.Duration) Option {
	return func(c *ServerConfig) error {
		if schedule == "" {
			return fmt.Errorf("sweep schedule cannot be empty")
		}
		c.OrphanSweepSchedule = schedule
		c.OrphanSweepGrace = grace
		return nil
	}
}

// WithCleanupConcurrency bounds parallel blob deletions after commit
func WithCleanupConcurrency(n int) Option {
	return func(c *ServerConfig) error {
		c.CleanupConcurrency = n
		return nil
	}
}
