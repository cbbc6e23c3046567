// Command storageutil exports, imports, and copies the persisted documents
// (credentials and dynamic config) between storage backends. Useful for
// backups and for moving a deployment from one backend to another.
package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"os"
	"time"

	"gclipool-go/internal/config"
	"gclipool-go/internal/storage"
)

// dump is the on-disk export format: one object per well-known document.
type dump struct {
	ExportedAt  time.Time              `json:"exported_at"`
	Backend     string                 `json:"backend"`
	Credentials map[string]interface{} `json:"credentials"`
	Config      map[string]interface{} `json:"config"`
}

func main() {
	mode := flag.String("mode", "", "operation mode: export | import | copy")
	filePath := flag.String("file", "", "file path for export/import (default: stdout/stdin)")
	configPath := flag.String("config", "", "path to configuration file")
	destBackend := flag.String("dest", "", "destination backend for copy (file|redis|mongodb|postgres)")
	timeout := flag.Duration("timeout", 30*time.Second, "operation timeout")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		fail(fmt.Errorf("load configuration: %w", err))
	}

	ctx, cancel := context.WithTimeout(context.Background(), *timeout)
	defer cancel()

	backend, err := openBackend(ctx, cfg, cfg.StorageBackend)
	if err != nil {
		fail(err)
	}
	defer backend.Close()

	switch *mode {
	case "export":
		err = runExport(ctx, backend, *filePath)
	case "import":
		err = runImport(ctx, backend, *filePath)
	case "copy":
		if *destBackend == "" {
			fail(fmt.Errorf("copy requires -dest"))
		}
		var dest storage.Backend
		dest, err = openBackend(ctx, cfg, *destBackend)
		if err != nil {
			fail(err)
		}
		defer dest.Close()
		err = runCopy(ctx, backend, dest)
	default:
		fail(fmt.Errorf("missing or unknown -mode (export|import|copy)"))
	}
	if err != nil {
		fail(err)
	}
}

func openBackend(ctx context.Context, cfg *config.Config, kind string) (storage.Backend, error) {
	backend, err := storage.New(storage.Options{
		Backend:       kind,
		BaseDir:       cfg.StorageBaseDir,
		RedisAddr:     cfg.RedisAddr,
		RedisPassword: cfg.RedisPassword,
		RedisDB:       cfg.RedisDB,
		RedisPrefix:   cfg.RedisPrefix,
		MongoURI:      cfg.MongoDBURI,
		MongoDatabase: cfg.MongoDatabase,
		PostgresDSN:   cfg.PostgresDSN,
	})
	if err != nil {
		return nil, err
	}
	if err := backend.Initialize(ctx); err != nil {
		return nil, fmt.Errorf("initialize %s backend: %w", backend.Name(), err)
	}
	return backend, nil
}

func runExport(ctx context.Context, backend storage.Backend, path string) error {
	creds, err := backend.LoadDocument(ctx, storage.DocCredentials)
	if err != nil {
		return fmt.Errorf("load credentials: %w", err)
	}
	conf, err := backend.LoadDocument(ctx, storage.DocConfig)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	out := dump{
		ExportedAt:  time.Now().UTC(),
		Backend:     backend.Name(),
		Credentials: creds,
		Config:      conf,
	}
	payload, err := json.MarshalIndent(out, "", "  ")
	if err != nil {
		return err
	}
	if path == "" {
		_, err = os.Stdout.Write(append(payload, '\n'))
		return err
	}
	return os.WriteFile(path, payload, 0o600)
}

func runImport(ctx context.Context, backend storage.Backend, path string) error {
	var payload []byte
	var err error
	if path == "" {
		payload, err = io.ReadAll(os.Stdin)
	} else {
		payload, err = os.ReadFile(path)
	}
	if err != nil {
		return err
	}

	var in dump
	if err := json.Unmarshal(payload, &in); err != nil {
		return fmt.Errorf("parse dump: %w", err)
	}
	if in.Credentials != nil {
		if err := backend.WriteDocument(ctx, storage.DocCredentials, in.Credentials); err != nil {
			return fmt.Errorf("write credentials: %w", err)
		}
	}
	if in.Config != nil {
		if err := backend.WriteDocument(ctx, storage.DocConfig, in.Config); err != nil {
			return fmt.Errorf("write config: %w", err)
		}
	}
	fmt.Fprintf(os.Stderr, "imported %d credential(s), %d config key(s)\n", len(in.Credentials), len(in.Config))
	return nil
}

func runCopy(ctx context.Context, src, dest storage.Backend) error {
	for _, docKey := range []string{storage.DocCredentials, storage.DocConfig} {
		doc, err := src.LoadDocument(ctx, docKey)
		if err != nil {
			return fmt.Errorf("load %s from %s: %w", docKey, src.Name(), err)
		}
		if err := dest.WriteDocument(ctx, docKey, doc); err != nil {
			return fmt.Errorf("write %s to %s: %w", docKey, dest.Name(), err)
		}
		fmt.Fprintf(os.Stderr, "copied %s (%d entries) %s -> %s\n", docKey, len(doc), src.Name(), dest.Name())
	}
	return nil
}

func fail(err error) {
	fmt.Fprintln(os.Stderr, "storageutil:", err)
	os.Exit(1)
}
