package server

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	_ "github.com/lib/pq" // Postgres driver
)

const postgresOperationTimeout = 5 * time.Second

// nowMillisSQL is the server clock: epoch milliseconds computed by Postgres
// itself, so every timestamp in the table comes from one clock.
const nowMillisSQL = "(EXTRACT(EPOCH FROM NOW()) * 1000)::BIGINT"

// PostgresStore implements Store on a Postgres demos table. The schema is
// created lazily on first use.
type PostgresStore struct {
	dsn string

	initOnce sync.Once
	initErr  error
	db       *sql.DB
}

// NewPostgresStore creates a store for the given connection string. The
// connection is opened and the schema ensured on first operation.
func NewPostgresStore(dsn string) (*PostgresStore, error) {
	if strings.TrimSpace(dsn) == "" {
		return nil, fmt.Errorf("postgres store requires a connection string")
	}
	return &PostgresStore{dsn: dsn}, nil
}

func (s *PostgresStore) ensureReady() error {
	s.initOnce.Do(func() {
		db, err := sql.Open("postgres", s.dsn)
		if err != nil {
			s.initErr = fmt.Errorf("opening postgres connection: %w", err)
			return
		}

		ctx, cancel := context.WithTimeout(context.Background(), postgresOperationTimeout)
		defer cancel()

		_, err = db.ExecContext(ctx, fmt.Sprintf(`
			CREATE TABLE IF NOT EXISTS demos (
				id            TEXT PRIMARY KEY,
				name          TEXT NOT NULL,
				data          JSONB NOT NULL DEFAULT '{}',
				last_modified BIGINT NOT NULL DEFAULT %s
			)`, nowMillisSQL))
		if err != nil {
			db.Close()
			s.initErr = fmt.Errorf("creating demos table: %w", err)
			return
		}

		s.db = db
	})
	return s.initErr
}

// List returns every demo, newest first, without bodies.
func (s *PostgresStore) List(ctx context.Context) ([]ListEntry, error) {
	if err := s.ensureReady(); err != nil {
		return nil, err
	}
	ctx, cancel := context.WithTimeout(ctx, postgresOperationTimeout)
	defer cancel()

	rows, err := s.db.QueryContext(ctx,
		`SELECT id, name, last_modified FROM demos ORDER BY last_modified DESC`)
	if err != nil {
		return nil, fmt.Errorf("listing demos: %w", err)
	}
	defer rows.Close()

	entries := []ListEntry{}
	for rows.Next() {
		var e ListEntry
		if err := rows.Scan(&e.ID, &e.Name, &e.LastModified); err != nil {
			return nil, fmt.Errorf("scanning demo row: %w", err)
		}
		entries = append(entries, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating demo rows: %w", err)
	}
	return entries, nil
}

// Get returns a demo by id.
func (s *PostgresStore) Get(ctx context.Context, id string) (*Demo, error) {
	if err := s.ensureReady(); err != nil {
		return nil, err
	}
	ctx, cancel := context.WithTimeout(ctx, postgresOperationTimeout)
	defer cancel()

	var d Demo
	var data []byte
	err := s.db.QueryRowContext(ctx,
		`SELECT id, name, data, last_modified FROM demos WHERE id = $1`, id).
		Scan(&d.ID, &d.Name, &data, &d.LastModified)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("fetching demo: %w", err)
	}
	d.Data = json.RawMessage(data)
	return &d, nil
}

// Create inserts a demo and returns it with the assigned timestamp.
func (s *PostgresStore) Create(ctx context.Context, id, name string, data json.RawMessage) (*Demo, error) {
	if err := s.ensureReady(); err != nil {
		return nil, err
	}
	ctx, cancel := context.WithTimeout(ctx, postgresOperationTimeout)
	defer cancel()

	if data == nil {
		data = json.RawMessage(`{}`)
	}

	var lastModified int64
	err := s.db.QueryRowContext(ctx, fmt.Sprintf(
		`INSERT INTO demos (id, name, data, last_modified)
		 VALUES ($1, $2, $3, %s)
		 RETURNING last_modified`, nowMillisSQL),
		id, name, string(data)).Scan(&lastModified)
	if err != nil {
		return nil, fmt.Errorf("inserting demo: %w", err)
	}

	return &Demo{ID: id, Name: name, Data: data, LastModified: lastModified}, nil
}

// Update applies a partial update: only supplied fields change.
func (s *PostgresStore) Update(ctx context.Context, id string, data json.RawMessage, name *string) (int64, error) {
	if err := s.ensureReady(); err != nil {
		return 0, err
	}
	ctx, cancel := context.WithTimeout(ctx, postgresOperationTimeout)
	defer cancel()

	sets := []string{"last_modified = " + nowMillisSQL}
	args := []any{}
	if data != nil {
		args = append(args, string(data))
		sets = append(sets, fmt.Sprintf("data = $%d", len(args)))
	}
	if name != nil {
		args = append(args, *name)
		sets = append(sets, fmt.Sprintf("name = $%d", len(args)))
	}
	args = append(args, id)

	query := fmt.Sprintf(
		`UPDATE demos SET %s WHERE id = $%d RETURNING last_modified`,
		strings.Join(sets, ", "), len(args))

	var lastModified int64
	err := s.db.QueryRowContext(ctx, query, args...).Scan(&lastModified)
	if errors.Is(err, sql.ErrNoRows) {
		return 0, ErrNotFound
	}
	if err != nil {
		return 0, fmt.Errorf("updating demo: %w", err)
	}
	return lastModified, nil
}

// Delete removes a demo. Deleting twice is not an error.
func (s *PostgresStore) Delete(ctx context.Context, id string) error {
	if err := s.ensureReady(); err != nil {
		return err
	}
	ctx, cancel := context.WithTimeout(ctx, postgresOperationTimeout)
	defer cancel()

	if _, err := s.db.ExecContext(ctx, `DELETE FROM demos WHERE id = $1`, id); err != nil {
		return fmt.Errorf("deleting demo: %w", err)
	}
	return nil
}

// LastModified returns the demo's timestamp without transferring the body.
func (s *PostgresStore) LastModified(ctx context.Context, id string) (int64, error) {
	if err := s.ensureReady(); err != nil {
		return 0, err
	}
	ctx, cancel := context.WithTimeout(ctx, postgresOperationTimeout)
	defer cancel()

	var lastModified int64
	err := s.db.QueryRowContext(ctx,
		`SELECT last_modified FROM demos WHERE id = $1`, id).Scan(&lastModified)
	if errors.Is(err, sql.ErrNoRows) {
		return 0, ErrNotFound
	}
	if err != nil {
		return 0, fmt.Errorf("fetching demo timestamp: %w", err)
	}
	return lastModified, nil
}

// Close closes the database connection.
func (s *PostgresStore) Close() error {
	if s.db != nil {
		return s.db.Close()
	}
	return nil
}

// Compile-time check that PostgresStore implements the Store interface
var _ Store = (*PostgresStore)(nil)
