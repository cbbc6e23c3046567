package storage

import "fmt"

// Options selects and configures a backend.
type Options struct {
	Backend string // file | redis | mongodb | postgres

	BaseDir string

	RedisAddr     string
	RedisPassword string
	RedisDB       int
	RedisPrefix   string

	MongoURI      string
	MongoDatabase string

	PostgresDSN string
}

// New constructs the configured backend. The caller is responsible for
// Initialize and for doing any fallback.
func New(opts Options) (Backend, error) {
	switch opts.Backend {
	case "", "file":
		if opts.BaseDir == "" {
			return nil, fmt.Errorf("file backend requires a base directory")
		}
		return NewFileBackend(opts.BaseDir), nil
	case "redis":
		if opts.RedisAddr == "" {
			return nil, fmt.Errorf("redis backend requires an address")
		}
		return NewRedisBackend(opts.RedisAddr, opts.RedisPassword, opts.RedisDB, opts.RedisPrefix), nil
	case "mongodb":
		if opts.MongoURI == "" {
			return nil, fmt.Errorf("mongodb backend requires a URI")
		}
		return NewMongoBackend(opts.MongoURI, opts.MongoDatabase), nil
	case "postgres":
		if opts.PostgresDSN == "" {
			return nil, fmt.Errorf("postgres backend requires a DSN")
		}
		return NewPostgresBackend(opts.PostgresDSN), nil
	default:
		return nil, fmt.Errorf("unknown storage backend %q", opts.Backend)
	}
}
