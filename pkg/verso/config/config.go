// Package config assembles a verso.Service from declarative server
// configuration: one metadata database, one or more storage backends, and
// the lock-table size.
package config

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/verso-archive/verso/pkg/verso"
	repomemory "github.com/verso-archive/verso/pkg/verso/repo/memory"
	repopg "github.com/verso-archive/verso/pkg/verso/repo/postgres"
	fsstorage "github.com/verso-archive/verso/pkg/verso/storage/fs"
	memorystorage "github.com/verso-archive/verso/pkg/verso/storage/memory"
	miniostorage "github.com/verso-archive/verso/pkg/verso/storage/minio"
	s3storage "github.com/verso-archive/verso/pkg/verso/storage/s3"
)

// Option applies configuration to a ServerConfig instance.
type Option func(*ServerConfig) error

// Load constructs a ServerConfig by applying the supplied options on top of
// library defaults.
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
		Port:                  "8080",
		Environment:           "development",
		DatabaseType:          "memory",
		DefaultStorageBackend: "memory",
		LockStripes:           verso.DefaultLockStripes,
		StorageBackends: []StorageBackendConfig{
			{
				Name:   "memory",
				Type:   "memory",
				Config: map[string]interface{}{},
			},
		},
	}
}

// ServerConfig represents server configuration for the verso service
type ServerConfig struct {
	Port        string
	Environment string // development, production, testing

	// Database configuration
	DatabaseURL  string
	DatabaseType string // "memory", "postgres"

	// Storage configuration
	DefaultStorageBackend string
	StorageBackends       []StorageBackendConfig

	// Concurrency configuration
	LockStripes int
}

// StorageBackendConfig represents configuration for a storage backend
type StorageBackendConfig struct {
	Name   string
	Type   string // "memory", "fs", "s3", "minio"
	Config map[string]interface{}
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

	found := false
	for _, backend := range c.StorageBackends {
		if backend.Name == c.DefaultStorageBackend {
			found = true
			break
		}
	}
	if !found {
		return fmt.Errorf("default storage backend '%s' not found in configured backends", c.DefaultStorageBackend)
	}

	return nil
}

// BuildService creates a Service instance from the server configuration
func (c *ServerConfig) BuildService(ctx context.Context) (verso.Service, error) {
	var options []verso.Option

	switch c.DatabaseType {
	case "postgres":
		pool, err := pgxpool.New(ctx, c.DatabaseURL)
		if err != nil {
			return nil, fmt.Errorf("failed to create postgres pool: %w", err)
		}
		options = append(options, verso.WithRepository(repopg.New(pool)))
	default:
		options = append(options, verso.WithRepository(repomemory.New()))
	}

	for _, backendCfg := range c.StorageBackends {
		store, err := buildBlobStore(backendCfg)
		if err != nil {
			return nil, fmt.Errorf("failed to build storage backend '%s': %w", backendCfg.Name, err)
		}
		options = append(options, verso.WithBlobStore(backendCfg.Name, store))
	}

	options = append(options,
		verso.WithDefaultBackend(c.DefaultStorageBackend),
		verso.WithLockStripes(c.LockStripes),
	)

	return verso.New(options...)
}

func buildBlobStore(cfg StorageBackendConfig) (verso.BlobStore, error) {
	switch cfg.Type {
	case "memory":
		return memorystorage.New(), nil
	case "fs":
		return fsstorage.New(fsstorage.Config{
			BaseDir:   stringValue(cfg.Config, "base_dir"),
			URLPrefix: stringValue(cfg.Config, "url_prefix"),
		})
	case "s3":
		return s3storage.New(s3storage.Config{
			Region:          stringValue(cfg.Config, "region"),
			Bucket:          stringValue(cfg.Config, "bucket"),
			KeyPrefix:       stringValue(cfg.Config, "key_prefix"),
			AccessKeyID:     stringValue(cfg.Config, "access_key_id"),
			SecretAccessKey: stringValue(cfg.Config, "secret_access_key"),
			Endpoint:        stringValue(cfg.Config, "endpoint"),
			UsePathStyle:    boolValue(cfg.Config, "use_path_style"),
			PresignDuration: intValue(cfg.Config, "presign_duration"),
		})
	case "minio":
		return miniostorage.New(miniostorage.Config{
			Endpoint:        stringValue(cfg.Config, "endpoint"),
			Bucket:          stringValue(cfg.Config, "bucket"),
			KeyPrefix:       stringValue(cfg.Config, "key_prefix"),
			AccessKeyID:     stringValue(cfg.Config, "access_key_id"),
			SecretAccessKey: stringValue(cfg.Config, "secret_access_key"),
			UseSSL:          boolValue(cfg.Config, "use_ssl"),
			PresignDuration: intValue(cfg.Config, "presign_duration"),
		})
	default:
		return nil, fmt.Errorf("unknown storage backend type: %s", cfg.Type)
	}
}

func stringValue(m map[string]interface{}, key string) string {
	if v, ok := m[key].(string); ok {
		return v
	}
	return ""
}

func boolValue(m map[string]interface{}, key string) bool {
	if v, ok := m[key].(bool); ok {
		return v
	}
	return false
}

func intValue(m map[string]interface{}, key string) int {
	switch v := m[key].(type) {
	case int:
		return v
	case float64:
		return int(v)
	}
	return 0
}
