package store

import (
	"context"
	"fmt"

	"github.com/Sternrassler/repo-backfill/pkg/repo"
	"github.com/jmoiron/sqlx"
	_ "github.com/lib/pq" // postgres driver
	"github.com/rs/zerolog"
)

const schemaSQL = `
CREATE TABLE IF NOT EXISTS repos (
	id          BIGINT PRIMARY KEY,
	name        TEXT    NOT NULL,
	full_name   TEXT    NOT NULL,
	description TEXT,
	url         TEXT    NOT NULL,
	stars       INTEGER NOT NULL,
	forks       INTEGER NOT NULL,
	language    TEXT
);
CREATE INDEX IF NOT EXISTS repos_stars_name_idx ON repos (stars DESC, name COLLATE "C" ASC);
`

const upsertSQL = `
INSERT INTO repos (id, name, full_name, description, url, stars, forks, language)
VALUES (:id, :name, :full_name, :description, :url, :stars, :forks, :language)
ON CONFLICT (id) DO UPDATE SET
	name        = EXCLUDED.name,
	full_name   = EXCLUDED.full_name,
	description = EXCLUDED.description,
	url         = EXCLUDED.url,
	stars       = EXCLUDED.stars,
	forks       = EXCLUDED.forks,
	language    = EXCLUDED.language
`

// Names compare byte-wise (COLLATE "C") so the order matches MemoryStore
// regardless of the database locale.
const querySQL = `
SELECT id, name, full_name, description, url, stars, forks, language
FROM repos
WHERE name ILIKE $1 ESCAPE '' OR description ILIKE $1 ESCAPE ''
ORDER BY stars DESC, name COLLATE "C" ASC, id ASC
LIMIT $2 OFFSET $3
`

const countSQL = `SELECT COUNT(*) FROM repos WHERE name ILIKE $1 ESCAPE '' OR description ILIKE $1 ESCAPE ''`

// Open connects to Postgres and verifies the connection.
func Open(ctx context.Context, dsn string) (*sqlx.DB, error) {
	db, err := sqlx.ConnectContext(ctx, "postgres", dsn)
	if err != nil {
		return nil, fmt.Errorf("connect postgres: %w", err)
	}
	return db, nil
}

// Migrate creates the repos table and its ordering index if missing.
func Migrate(ctx context.Context, db *sqlx.DB) error {
	if _, err := db.ExecContext(ctx, schemaSQL); err != nil {
		return fmt.Errorf("migrate repos schema: %w", err)
	}
	return nil
}

// PostgresStore is a Store backed by a Postgres "repos" table.
type PostgresStore struct {
	db     *sqlx.DB
	logger zerolog.Logger
}

// NewPostgresStore creates a store over an open database. Call Migrate first.
func NewPostgresStore(db *sqlx.DB, logger zerolog.Logger) *PostgresStore {
	if db == nil {
		panic("db cannot be nil")
	}
	return &PostgresStore{
		db:     db,
		logger: logger,
	}
}

// Upsert writes the batch in one transaction; any failure rolls back all of it.
func (s *PostgresStore) Upsert(ctx context.Context, repos []repo.Repo) error {
	if len(repos) == 0 {
		return nil
	}

	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin upsert: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck // no-op after commit

	stmt, err := tx.PrepareNamedContext(ctx, upsertSQL)
	if err != nil {
		return fmt.Errorf("prepare upsert: %w", err)
	}
	defer stmt.Close()

	for _, r := range repos {
		if _, err := stmt.ExecContext(ctx, r); err != nil {
			return fmt.Errorf("upsert repo %d: %w", r.ID, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit upsert: %w", err)
	}

	s.logger.Debug().Int("records", len(repos)).Msg("Upserted repos")
	return nil
}

// Query returns one window of matching repositories in result order.
func (s *PostgresStore) Query(ctx context.Context, pattern string, offset, limit int) ([]repo.Repo, error) {
	if err := validateWindow(offset, limit); err != nil {
		return nil, err
	}

	repos := []repo.Repo{}
	if err := sqlx.SelectContext(ctx, s.db, &repos, querySQL, pattern, limit, offset); err != nil {
		return nil, fmt.Errorf("query repos: %w", err)
	}
	return repos, nil
}

// Count returns the number of repositories matching pattern.
func (s *PostgresStore) Count(ctx context.Context, pattern string) (int, error) {
	var n int
	if err := sqlx.GetContext(ctx, s.db, &n, countSQL, pattern); err != nil {
		return 0, fmt.Errorf("count repos: %w", err)
	}
	return n, nil
}
