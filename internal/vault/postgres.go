package vault

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"regexp"

	apperrors "github.com/Adithya-Monish-Kumar-K/Document-Similarity-Index/pkg/errors"
	"github.com/Adithya-Monish-Kumar-K/Document-Similarity-Index/pkg/postgres"
)

var tableName = regexp.MustCompile(`^[A-Za-z_][A-Za-z0-9_]*$`)

// Postgres is a Vault over a documents(id, body, updated_at) table. It has no
// cache adapter of its own; pair it with a FileAdapter or RedisAdapter.
type Postgres struct {
	client *postgres.Client
	table  string
	logger *slog.Logger
}

func NewPostgres(client *postgres.Client, logger *slog.Logger) (*Postgres, error) {
	table := client.Table()
	if !tableName.MatchString(table) {
		return nil, fmt.Errorf("%w: invalid table name %q", apperrors.ErrInvalidConfig, table)
	}
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	return &Postgres{client: client, table: table, logger: logger.With("component", "postgres-vault")}, nil
}

// EnsureSchema creates the documents table if it does not exist.
func (p *Postgres) EnsureSchema(ctx context.Context) error {
	_, err := p.client.DB.ExecContext(ctx, fmt.Sprintf(`CREATE TABLE IF NOT EXISTS %s (
		id TEXT PRIMARY KEY,
		body TEXT NOT NULL,
		updated_at TIMESTAMPTZ NOT NULL DEFAULT now()
	)`, p.table))
	if err != nil {
		return fmt.Errorf("creating table %s: %w", p.table, err)
	}
	return nil
}

func (p *Postgres) List(ctx context.Context) ([]DocumentInfo, error) {
	rows, err := p.client.DB.QueryContext(ctx,
		fmt.Sprintf(`SELECT id, updated_at, octet_length(body) FROM %s ORDER BY id`, p.table))
	if err != nil {
		return nil, fmt.Errorf("listing documents: %w", err)
	}
	defer rows.Close()
	var docs []DocumentInfo
	for rows.Next() {
		var d DocumentInfo
		if err := rows.Scan(&d.ID, &d.ModTime, &d.Size); err != nil {
			return nil, fmt.Errorf("scanning document row: %w", err)
		}
		docs = append(docs, d)
	}
	return docs, rows.Err()
}

func (p *Postgres) Read(ctx context.Context, id string) (string, error) {
	var body string
	err := p.client.DB.QueryRowContext(ctx,
		fmt.Sprintf(`SELECT body FROM %s WHERE id = $1`, p.table), id).Scan(&body)
	if errors.Is(err, sql.ErrNoRows) {
		return "", fmt.Errorf("%w: %s", apperrors.ErrDocumentNotFound, id)
	}
	if err != nil {
		return "", fmt.Errorf("reading document %s: %w", id, err)
	}
	return body, nil
}

// Put upserts documents in one transaction.
func (p *Postgres) Put(ctx context.Context, docs map[string]string) error {
	return p.client.InTx(ctx, func(tx *sql.Tx) error {
		stmt, err := tx.PrepareContext(ctx, fmt.Sprintf(
			`INSERT INTO %s (id, body, updated_at) VALUES ($1, $2, now())
			 ON CONFLICT (id) DO UPDATE SET body = EXCLUDED.body, updated_at = now()`, p.table))
		if err != nil {
			return fmt.Errorf("preparing upsert: %w", err)
		}
		defer stmt.Close()
		for id, body := range docs {
			if _, err := stmt.ExecContext(ctx, id, body); err != nil {
				return fmt.Errorf("upserting %s: %w", id, err)
			}
		}
		p.logger.Debug("upserted documents", "count", len(docs))
		return nil
	})
}
