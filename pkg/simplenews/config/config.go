package config

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/url"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/tendant/simple-news/pkg/simplenews"
	"github.com/tendant/simple-news/pkg/simplenews/repo/memory"
	repopg "github.com/tendant/simple-news/pkg/simplenews/repo/postgres"
	fsstorage "github.com/tendant/simple-news/pkg/simplenews/storage/fs"
	memorystorage "github.com/tendant/simple-news/pkg/simplenews/storage/memory"
	s3storage "github.com/tendant/simple-news/pkg/simplenews/storage/s3"
)

// Option applies configuration to a ServerConfig instance.
type Option func(*ServerConfig) error

// Load constructs a ServerConfig by applying the supplied options on top of library defaults.
func Load(opts ...Option) (*ServerConfig, error) {
	cfg := defaults()

	for _, opt := range opts {
		if opt == nil {
			continue
		}
		if err := opt(&cfg); err != nil {
			return nil, err
		}
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return &cfg, nil
}

func defaults() ServerConfig {
	return ServerConfig{
		Port:         "8080",
		Environment:  "development",
		LogLevel:     "info",
		DatabaseType: "memory",
		DBSchema:     "news",
		Storage: StorageConfig{
			Type:      "memory",
			URLPrefix: "/uploads",
			Region:    "us-east-1",
		},
		CleanupConcurrency: 4,
		RateLimitRPS:       10,
		RateLimitBurst:     20,
		MaxUploadBytes:     10 << 20,
		MaxUploadFiles:     10,
		OrphanSweepGrace:   24 * time.Hour,
	}
}

// ServerConfig represents server configuration for the news service
type ServerConfig struct {
	Port        string
	Environment string // development, production, testing
	LogLevel    string

	// Database configuration
	DatabaseURL  string
	DatabaseType string // "memory", "postgres"
	DBSchema     string // Postgres schema to use (default: news)
	AutoMigrate  bool

	Storage StorageConfig

	// HTTP surface
	JWTSecret      string
	RateLimitRPS   float64
	RateLimitBurst int
	MaxUploadBytes int64
	MaxUploadFiles int

	CleanupConcurrency int

	// OrphanSweepSchedule enables the orphan sweep when set (cron syntax)
	OrphanSweepSchedule string
	OrphanSweepGrace    time.Duration
}

// StorageConfig selects and configures the blob store
type StorageConfig struct {
	Type      string // "memory", "fs", "s3"
	URLPrefix string // path blobs are served under by the HTTP server

	// fs
	BaseDir string

	// s3
	Bucket                 string
	Region                 string
	Endpoint               string
	AccessKeyID            string
	SecretAccessKey        string
	UsePathStyle           bool
	PublicBaseURL          string
	CreateBucketIfNotExist bool
}

// IsDevelopment reports whether the server runs in development mode
func (c *ServerConfig) IsDevelopment() bool {
	return c.Environment == "development"
}

// SlogLevel parses LogLevel, falling back to info
func (c *ServerConfig) SlogLevel() slog.Level {
	var level slog.Level
	if err := level.UnmarshalText([]byte(c.LogLevel)); err != nil {
		return slog.LevelInfo
	}
	return level
}

// Validate validates the server configuration
func (c *ServerConfig) Validate() error {
	if c.Port == "" {
		return errors.New("port is required")
	}

	if c.DatabaseType != "memory" && c.DatabaseType != "postgres" {
		return errors.New("database_type must be 'memory' or 'postgres'")
	}

	if c.DatabaseType == "postgres" && c.DatabaseURL == "" {
		return errors.New("database_url is required when using postgres")
	}

	switch c.Storage.Type {
	case "memory":
	case "fs":
		if c.Storage.BaseDir == "" {
			return errors.New("filesystem storage requires a base directory")
		}
	case "s3":
		if c.Storage.Bucket == "" {
			return errors.New("s3 storage requires a bucket")
		}
	default:
		return fmt.Errorf("unsupported storage type: %s", c.Storage.Type)
	}

	if c.JWTSecret == "" && !c.IsDevelopment() {
		return errors.New("jwt_secret is required outside development")
	}

	if c.CleanupConcurrency < 1 {
		return errors.New("cleanup_concurrency must be at least 1")
	}
	if c.MaxUploadBytes <= 0 || c.MaxUploadFiles <= 0 {
		return errors.New("upload limits must be positive")
	}
	if c.RateLimitRPS < 0 || c.RateLimitBurst < 0 {
		return errors.New("rate limit must not be negative")
	}
	if c.OrphanSweepSchedule != "" && c.OrphanSweepGrace <= 0 {
		return errors.New("orphan_sweep_grace must be positive when the sweep is enabled")
	}

	return nil
}

// BuildService creates a Service from the configuration. The returned cleanup
// function releases the database pool and must be called on shutdown.
func (c *ServerConfig) BuildService(ctx context.Context, extra ...simplenews.Option) (simplenews.Service, func(), error) {
	repo, closeRepo, err := c.buildRepository(ctx)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to build repository: %w", err)
	}

	store, err := c.buildStorageBackend(ctx)
	if err != nil {
		closeRepo()
		return nil, nil, fmt.Errorf("failed to build storage backend %s: %w", c.Storage.Type, err)
	}

	options := []simplenews.Option{
		simplenews.WithRepository(repo),
		simplenews.WithBlobStore(c.Storage.Type, store),
		simplenews.WithCleanupConcurrency(c.CleanupConcurrency),
	}
	options = append(options, extra...)

	svc, err := simplenews.New(options...)
	if err != nil {
		closeRepo()
		return nil, nil, err
	}
	return svc, closeRepo, nil
}

// buildRepository creates a Repository based on the configuration
func (c *ServerConfig) buildRepository(ctx context.Context) (simplenews.Repository, func(), error) {
	switch c.DatabaseType {
	case "memory":
		return memory.New(), func() {}, nil
	case "postgres":
		if c.AutoMigrate {
			if err := repopg.MigrateUp(WithSearchPath(c.DatabaseURL, c.DBSchema)); err != nil {
				return nil, nil, err
			}
		}
		pool, err := newPool(ctx, c.DatabaseURL, c.DBSchema)
		if err != nil {
			return nil, nil, err
		}
		return repopg.New(pool), pool.Close, nil
	default:
		return nil, nil, fmt.Errorf("unsupported database type: %s", c.DatabaseType)
	}
}

func newPool(ctx context.Context, databaseURL, schema string) (*pgxpool.Pool, error) {
	cfg, err := pgxpool.ParseConfig(databaseURL)
	if err != nil {
		return nil, fmt.Errorf("failed to parse DATABASE_URL: %w", err)
	}
	if schema != "" {
		cfg.AfterConnect = func(ctx context.Context, conn *pgx.Conn) error {
			_, err := conn.Exec(ctx, "SET search_path TO "+pgx.Identifier{schema}.Sanitize())
			return err
		}
	}
	pool, err := pgxpool.NewWithConfig(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("failed to create pgx pool: %w", err)
	}
	return pool, nil
}

// PingPostgres verifies connectivity to Postgres with the schema applied to the session.
func PingPostgres(ctx context.Context, databaseURL, schema string) error {
	if databaseURL == "" {
		return errors.New("database_url is required")
	}
	pool, err := newPool(ctx, databaseURL, schema)
	if err != nil {
		return err
	}
	defer pool.Close()

	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := pool.Ping(ctx); err != nil {
		return fmt.Errorf("database ping failed: %w", err)
	}
	return nil
}

// WithSearchPath adds a search_path runtime parameter to a Postgres URL so
// migrations land in schema.
func WithSearchPath(databaseURL, schema string) string {
	if schema == "" {
		return databaseURL
	}
	u, err := url.Parse(databaseURL)
	if err != nil {
		return databaseURL
	}
	q := u.Query()
	q.Set("search_path", schema)
	u.RawQuery = q.Encode()
	return u.String()
}

// buildStorageBackend creates a BlobStore based on the storage configuration
func (c *ServerConfig) buildStorageBackend(ctx context.Context) (simplenews.BlobStore, error) {
	s := c.Storage
	switch s.Type {
	case "memory":
		return memorystorage.New(s.URLPrefix), nil

	case "fs":
		return fsstorage.New(fsstorage.Config{
			BaseDir:   s.BaseDir,
			URLPrefix: s.URLPrefix,
		})

	case "s3":
		return s3storage.New(ctx, s3storage.Config{
			Region:                 s.Region,
			Bucket:                 s.Bucket,
			AccessKeyID:            s.AccessKeyID,
			SecretAccessKey:        s.SecretAccessKey,
			Endpoint:               s.Endpoint,
			UsePathStyle:           s.UsePathStyle,
			PresignTTL:             time.Hour,
			PublicBaseURL:          s.PublicBaseURL,
			CreateBucketIfNotExist: s.CreateBucketIfNotExist,
		})

	default:
		return nil, fmt.Errorf("unsupported storage backend type: %s", s.Type)
	}
}

// ServesBlobs reports whether the HTTP server should stream blobs under
// Storage.URLPrefix itself. S3 previews point at the bucket or a CDN.
func (c *ServerConfig) ServesBlobs() bool {
	return c.Storage.Type != "s3" && strings.HasPrefix(c.Storage.URLPrefix, "/")
}
