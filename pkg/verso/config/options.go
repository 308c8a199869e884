package config

import (
	"fmt"
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

// WithDatabase configures the metadata database backend
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

// WithDefaultStorage sets the default storage backend name
func WithDefaultStorage(name string) Option {
	return func(c *ServerConfig) error {
		if name == "" {
			return fmt.Errorf("default storage backend name cannot be empty")
		}
		c.DefaultStorageBackend = name
		return nil
	}
}

// WithLockStripes sets the per-key lock table size
func WithLockStripes(n int) Option {
	return func(c *ServerConfig) error {
		if n <= 0 {
			return fmt.Errorf("lock stripes must be positive, got: %d", n)
		}
		c.LockStripes = n
		return nil
	}
}

// WithFilesystemStorage adds a filesystem storage backend.
// If name is empty, defaults to "fs".
func WithFilesystemStorage(name, baseDir, urlPrefix string) Option {
	return func(c *ServerConfig) error {
		if name == "" {
			name = "fs"
		}
		if baseDir == "" {
			return fmt.Errorf("filesystem base directory cannot be empty")
		}

		c.StorageBackends = append(c.StorageBackends, StorageBackendConfig{
			Name: name,
			Type: "fs",
			Config: map[string]interface{}{
				"base_dir":   baseDir,
				"url_prefix": urlPrefix,
			},
		})
		return nil
	}
}

// WithS3Storage adds an S3 storage backend.
// If name is empty, defaults to "s3".
func WithS3Storage(name string, cfg map[string]interface{}) Option {
	return func(c *ServerConfig) error {
		if name == "" {
			name = "s3"
		}
		if stringValue(cfg, "bucket") == "" {
			return fmt.Errorf("s3 bucket cannot be empty")
		}

		c.StorageBackends = append(c.StorageBackends, StorageBackendConfig{
			Name:   name,
			Type:   "s3",
			Config: cfg,
		})
		return nil
	}
}

// WithMinioStorage adds a MinIO storage backend.
// If name is empty, defaults to "minio".
func WithMinioStorage(name string, cfg map[string]interface{}) Option {
	return func(c *ServerConfig) error {
		if name == "" {
			name = "minio"
		}
		if stringValue(cfg, "endpoint") == "" {
			return fmt.Errorf("minio endpoint cannot be empty")
		}
		if stringValue(cfg, "bucket") == "" {
			return fmt.Errorf("minio bucket cannot be empty")
		}

		c.StorageBackends = append(c.StorageBackends, StorageBackendConfig{
			Name:   name,
			Type:   "minio",
			Config: cfg,
		})
		return nil
	}
}
