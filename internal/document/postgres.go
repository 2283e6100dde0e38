package document

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
)

// Schema creates the documents table used by PostgresStore.
const Schema = `
CREATE TABLE IF NOT EXISTS documents (
	doctype     TEXT        NOT NULL,
	name        TEXT        NOT NULL,
	data        JSONB       NOT NULL,
	created_at  TIMESTAMPTZ NOT NULL DEFAULT now(),
	modified_at TIMESTAMPTZ NOT NULL DEFAULT now(),
	PRIMARY KEY (doctype, name)
)`

// DBTX is the subset of pgx used by PostgresStore.
// Satisfied by *pgxpool.Pool, *pgx.Conn and pgx.Tx.
type DBTX interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// PostgresStore keeps documents as JSONB rows keyed by (doctype, name).
type PostgresStore struct {
	db DBTX
}

// NewPostgresStore creates a new PostgresStore.
func NewPostgresStore(db DBTX) *PostgresStore {
	return &PostgresStore{db: db}
}

// Migrate creates the documents table if it does not exist.
func (s *PostgresStore) Migrate(ctx context.Context) error {
	if _, err := s.db.Exec(ctx, Schema); err != nil {
		return fmt.Errorf("create documents table: %w", err)
	}
	return nil
}

func (s *PostgresStore) Create(ctx context.Context, doctype string, payload any) (string, error) {
	doc, err := json.Marshal(payload)
	if err != nil {
		return "", fmt.Errorf("marshal %s: %w", doctype, err)
	}
	name, _ := nameOf(doc)
	if name == "" {
		name = uuid.NewString()
		if doc, err = withName(doc, name); err != nil {
			return "", err
		}
	}

	var created string
	err = s.db.QueryRow(ctx,
		`INSERT INTO documents (doctype, name, data) VALUES ($1, $2, $3) RETURNING name`,
		doctype, name, doc,
	).Scan(&created)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == "23505" {
			return "", fmt.Errorf("%s %q already exists: %w", doctype, name, err)
		}
		return "", fmt.Errorf("insert %s: %w", doctype, err)
	}
	return created, nil
}

func (s *PostgresStore) Update(ctx context.Context, doctype, name string, payload any) (string, error) {
	doc, err := json.Marshal(payload)
	if err != nil {
		return "", fmt.Errorf("marshal %s: %w", doctype, err)
	}
	if doc, err = withName(doc, name); err != nil {
		return "", err
	}

	var updated string
	err = s.db.QueryRow(ctx,
		`UPDATE documents SET data = data || $3::jsonb, modified_at = now()
		 WHERE doctype = $1 AND name = $2 RETURNING name`,
		doctype, name, doc,
	).Scan(&updated)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return "", ErrNotFound
		}
		return "", fmt.Errorf("update %s %q: %w", doctype, name, err)
	}
	return updated, nil
}

func (s *PostgresStore) Get(ctx context.Context, doctype, name string, out any) error {
	var doc []byte
	err := s.db.QueryRow(ctx,
		`SELECT data FROM documents WHERE doctype = $1 AND name = $2`,
		doctype, name,
	).Scan(&doc)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return ErrNotFound
		}
		return fmt.Errorf("get %s %q: %w", doctype, name, err)
	}
	if err := json.Unmarshal(doc, out); err != nil {
		return fmt.Errorf("decode %s %q: %w", doctype, name, err)
	}
	return nil
}

func (s *PostgresStore) List(ctx context.Context, doctype string) ([]json.RawMessage, error) {
	rows, err := s.db.Query(ctx,
		`SELECT data FROM documents WHERE doctype = $1 ORDER BY created_at, name`,
		doctype,
	)
	if err != nil {
		return nil, fmt.Errorf("list %s: %w", doctype, err)
	}
	defer rows.Close()

	var out []json.RawMessage
	for rows.Next() {
		var doc []byte
		if err := rows.Scan(&doc); err != nil {
			return nil, fmt.Errorf("scan %s: %w", doctype, err)
		}
		out = append(out, json.RawMessage(doc))
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate %s: %w", doctype, err)
	}
	return out, nil
}

// Import copies every document of the given types from src, replacing
// documents with the same name. It returns the number of documents written.
func (s *PostgresStore) Import(ctx context.Context, src Lister, doctypes []string) (int, error) {
	n := 0
	for _, doctype := range doctypes {
		docs, err := src.List(ctx, doctype)
		if err != nil {
			return n, err
		}
		for i, doc := range docs {
			name, err := nameOf(doc)
			if err != nil || name == "" {
				return n, fmt.Errorf("import %s[%d]: missing name", doctype, i)
			}
			if err := s.upsert(ctx, doctype, name, doc); err != nil {
				return n, err
			}
			n++
		}
	}
	return n, nil
}

func (s *PostgresStore) upsert(ctx context.Context, doctype, name string, doc json.RawMessage) error {
	_, err := s.db.Exec(ctx,
		`INSERT INTO documents (doctype, name, data) VALUES ($1, $2, $3)
		 ON CONFLICT (doctype, name) DO UPDATE SET data = EXCLUDED.data, modified_at = now()`,
		doctype, name, []byte(doc),
	)
	if err != nil {
		return fmt.Errorf("upsert %s %q: %w", doctype, name, err)
	}
	return nil
}
