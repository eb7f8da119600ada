package repository

import (
	"context"
	_ "embed"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/gerrot/api/internal/model"
)

//go:embed schema.sql
var schemaSQL string

// Postgres implements Store on a pgx pool.
type Postgres struct {
	pool *pgxpool.Pool
}

func NewPostgres(ctx context.Context, databaseURL string) (*Postgres, error) {
	poolCfg, err := pgxpool.ParseConfig(databaseURL)
	if err != nil {
		return nil, fmt.Errorf("parse database url: %w", err)
	}

	poolCfg.MaxConns = 10
	poolCfg.MinConns = 1
	poolCfg.MaxConnLifetime = time.Hour
	poolCfg.MaxConnIdleTime = 30 * time.Minute

	ctx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	pool, err := pgxpool.NewWithConfig(ctx, poolCfg)
	if err != nil {
		return nil, fmt.Errorf("connect database: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}
	return &Postgres{pool: pool}, nil
}

// EnsureSchema creates the tables when they are missing.
func (r *Postgres) EnsureSchema(ctx context.Context) error {
	_, err := r.pool.Exec(ctx, schemaSQL)
	return err
}

func (r *Postgres) GetProject(ctx context.Context, id string) (*model.Project, error) {
	var p model.Project
	err := r.pool.QueryRow(ctx, `
SELECT p.id, p.title, p.script_type, COALESCE(p.client_id, ''), p.owner_id,
       COALESCE(u.name, ''), COALESCE(u.email, ''), COALESCE(u.logo_url, '')
FROM projects p
LEFT JOIN users u ON u.id = p.owner_id
WHERE p.id = $1;
`, id).Scan(&p.ID, &p.Title, &p.ScriptType, &p.ClientID, &p.OwnerID, &p.OwnerName, &p.OwnerEmail, &p.OwnerLogoURL)
	if err != nil {
		return nil, mapNoRows(err)
	}
	return &p, nil
}

func (r *Postgres) GetVersion(ctx context.Context, id string) (*model.ScriptVersion, error) {
	var v model.ScriptVersion
	err := r.pool.QueryRow(ctx, `
SELECT id, project_id, version_number, content, COALESCE(generated_pdf_url, '')
FROM script_versions
WHERE id = $1;
`, id).Scan(&v.ID, &v.ProjectID, &v.VersionNumber, &v.Content, &v.GeneratedPDFURL)
	if err != nil {
		return nil, mapNoRows(err)
	}
	return &v, nil
}

func (r *Postgres) GetClient(ctx context.Context, id string) (*model.Client, error) {
	var c model.Client
	err := r.pool.QueryRow(ctx, `
SELECT id, name, COALESCE(logo_url, '')
FROM clients
WHERE id = $1;
`, id).Scan(&c.ID, &c.Name, &c.LogoURL)
	if err != nil {
		return nil, mapNoRows(err)
	}
	return &c, nil
}

func (r *Postgres) AttachArtifact(ctx context.Context, versionID, path string) error {
	tag, err := r.pool.Exec(ctx, `
UPDATE script_versions
SET generated_pdf_url = $2, updated_at = NOW()
WHERE id = $1;
`, versionID, path)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func (r *Postgres) Close() {
	r.pool.Close()
}

func mapNoRows(err error) error {
	if errors.Is(err, pgx.ErrNoRows) {
		return ErrNotFound
	}
	return err
}
