package storage

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	_ "github.com/lib/pq"

	"gclipool-go/internal/migrations"
)

// PostgresBackend stores each document as a jsonb row in the documents table.
type PostgresBackend struct {
	db  *sql.DB
	dsn string
}

// NewPostgresBackend creates a PostgreSQL storage backend.
func NewPostgresBackend(dsn string) *PostgresBackend {
	return &PostgresBackend{dsn: dsn}
}

func (p *PostgresBackend) Initialize(ctx context.Context) error {
	db, err := sql.Open("postgres", p.dsn)
	if err != nil {
		return fmt.Errorf("open postgres: %w", err)
	}
	db.SetMaxOpenConns(10)
	db.SetMaxIdleConns(5)
	db.SetConnMaxLifetime(30 * time.Minute)

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := db.PingContext(pingCtx); err != nil {
		db.Close()
		return fmt.Errorf("ping postgres: %w", err)
	}

	if err := migrations.PostgresUp(db); err != nil {
		db.Close()
		return fmt.Errorf("apply schema: %w", err)
	}

	p.db = db
	return nil
}

func (p *PostgresBackend) Close() error {
	if p.db == nil {
		return nil
	}
	return p.db.Close()
}

func (p *PostgresBackend) Health(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	return p.db.PingContext(ctx)
}

func (p *PostgresBackend) Name() string { return "postgres" }

func (p *PostgresBackend) LoadDocument(ctx context.Context, docKey string) (map[string]interface{}, error) {
	var data []byte
	err := p.db.QueryRowContext(ctx,
		`SELECT data FROM documents WHERE doc_key = $1`, docKey).Scan(&data)
	if errors.Is(err, sql.ErrNoRows) {
		return map[string]interface{}{}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("load document %s: %w", docKey, err)
	}

	doc := make(map[string]interface{})
	if err := json.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("decode document %s: %w", docKey, err)
	}
	return doc, nil
}

func (p *PostgresBackend) WriteDocument(ctx context.Context, docKey string, doc map[string]interface{}) error {
	data, err := json.Marshal(doc)
	if err != nil {
		return fmt.Errorf("encode document %s: %w", docKey, err)
	}

	_, err = p.db.ExecContext(ctx, `
		INSERT INTO documents (doc_key, data, updated_at)
		VALUES ($1, $2, now())
		ON CONFLICT (doc_key) DO UPDATE
		SET data = EXCLUDED.data, updated_at = now()`,
		docKey, data)
	if err != nil {
		return fmt.Errorf("write document %s: %w", docKey, err)
	}
	return nil
}
