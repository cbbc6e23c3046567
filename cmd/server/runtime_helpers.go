package main

import (
	"context"
	"os"
	"path/filepath"
	"strings"

	log "github.com/sirupsen/logrus"

	"gclipool-go/internal/config"
	"gclipool-go/internal/storage"
)

// buildStorageBackend constructs and initializes the configured backend.
// When the configured backend fails to come up it falls back to the local
// file backend so the service can still start.
func buildStorageBackend(ctx context.Context, cfg *config.Config) (storage.Backend, error) {
	baseDir := cfg.StorageBaseDir
	if baseDir == "" {
		baseDir = defaultStorageDir()
	}
	baseDir = expandPath(baseDir)

	backend, err := storage.New(storage.Options{
		Backend:       cfg.StorageBackend,
		BaseDir:       baseDir,
		RedisAddr:     cfg.RedisAddr,
		RedisPassword: cfg.RedisPassword,
		RedisDB:       cfg.RedisDB,
		RedisPrefix:   cfg.RedisPrefix,
		MongoURI:      cfg.MongoDBURI,
		MongoDatabase: cfg.MongoDatabase,
		PostgresDSN:   cfg.PostgresDSN,
	})
	if err == nil {
		if initErr := backend.Initialize(ctx); initErr == nil {
			return backend, nil
		} else {
			err = initErr
			_ = backend.Close()
		}
	}

	if cfg.StorageBackend == "" || cfg.StorageBackend == "file" {
		return nil, err
	}

	// 主后端失败时降级为文件后端，避免服务无法启动
	log.WithError(err).WithField("backend", cfg.StorageBackend).Warn("storage backend initialization failed, falling back to file backend")
	fb := storage.NewFileBackend(baseDir)
	if err := fb.Initialize(ctx); err != nil {
		return nil, err
	}
	return fb, nil
}

func defaultStorageDir() string {
	if home, err := os.UserHomeDir(); err == nil {
		return filepath.Join(home, ".gclipool", "storage")
	}
	return "./storage"
}

func expandPath(path string) string {
	if strings.HasPrefix(path, "~") {
		if home, err := os.UserHomeDir(); err == nil {
			return filepath.Join(home, strings.TrimPrefix(path, "~"))
		}
	}
	return path
}
