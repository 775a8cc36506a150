package storage

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	_ "github.com/lib/pq"
)

// PostgresStore implements Store against a single generic documents table
// plus a counters table, so every logical collection (reservations,
// intents, ledger entries, CCTP transfers) shares schema instead of
// requiring a migration per concern.
type PostgresStore struct {
	db     *sql.DB
	ownsDB bool
}

// NewPostgresStore opens a connection and ensures the backing tables exist.
func NewPostgresStore(connectionString string) (*PostgresStore, error) {
	db, err := sql.Open("postgres", connectionString)
	if err != nil {
		return nil, fmt.Errorf("storage: open postgres: %w", err)
	}
	if err := db.Ping(); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("storage: ping postgres: %w", err)
	}

	db.SetMaxOpenConns(20)
	db.SetMaxIdleConns(5)
	db.SetConnMaxLifetime(30 * time.Minute)

	s := &PostgresStore{db: db, ownsDB: true}
	if err := s.createTables(); err != nil {
		_ = db.Close()
		return nil, err
	}
	return s, nil
}

func (s *PostgresStore) createTables() error {
	_, err := s.db.Exec(`
		CREATE TABLE IF NOT EXISTS storage_documents (
			collection TEXT NOT NULL,
			key        TEXT NOT NULL,
			value      JSONB NOT NULL,
			created_at TIMESTAMPTZ NOT NULL DEFAULT now(),
			updated_at TIMESTAMPTZ NOT NULL DEFAULT now(),
			PRIMARY KEY (collection, key)
		);
		CREATE TABLE IF NOT EXISTS storage_counters (
			collection TEXT NOT NULL,
			key        TEXT NOT NULL,
			value      BIGINT NOT NULL DEFAULT 0,
			PRIMARY KEY (collection, key)
		);
		CREATE TABLE IF NOT EXISTS storage_locks (
			name       TEXT PRIMARY KEY,
			expires_at TIMESTAMPTZ NOT NULL
		);
	`)
	return err
}

func (s *PostgresStore) Save(ctx context.Context, collection, key string, value map[string]interface{}) error {
	payload, err := json.Marshal(value)
	if err != nil {
		return fmt.Errorf("storage: marshal value: %w", err)
	}

	_, err = s.db.ExecContext(ctx, `
		INSERT INTO storage_documents (collection, key, value, created_at, updated_at)
		VALUES ($1, $2, $3, now(), now())
		ON CONFLICT (collection, key) DO UPDATE SET value = $3, updated_at = now()
	`, collection, key, payload)
	return err
}

func (s *PostgresStore) Get(ctx context.Context, collection, key string) (Record, error) {
	var payload []byte
	var createdAt, updatedAt time.Time

	row := s.db.QueryRowContext(ctx, `
		SELECT value, created_at, updated_at FROM storage_documents
		WHERE collection = $1 AND key = $2
	`, collection, key)

	if err := row.Scan(&payload, &createdAt, &updatedAt); err != nil {
		if err == sql.ErrNoRows {
			return Record{}, ErrNotFound
		}
		return Record{}, err
	}

	var value map[string]interface{}
	if err := json.Unmarshal(payload, &value); err != nil {
		return Record{}, fmt.Errorf("storage: unmarshal value: %w", err)
	}

	return Record{Key: key, Value: value, CreatedAt: createdAt, UpdatedAt: updatedAt}, nil
}

func (s *PostgresStore) Delete(ctx context.Context, collection, key string) error {
	res, err := s.db.ExecContext(ctx, `
		DELETE FROM storage_documents WHERE collection = $1 AND key = $2
	`, collection, key)
	if err != nil {
		return err
	}
	rows, _ := res.RowsAffected()
	if rows == 0 {
		return ErrNotFound
	}
	return nil
}

func (s *PostgresStore) Query(ctx context.Context, collection string, filter Filter) ([]Record, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT key, value, created_at, updated_at FROM storage_documents
		WHERE collection = $1
		ORDER BY created_at DESC
	`, collection)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []Record
	for rows.Next() {
		var key string
		var payload []byte
		var createdAt, updatedAt time.Time
		if err := rows.Scan(&key, &payload, &createdAt, &updatedAt); err != nil {
			return nil, err
		}
		var value map[string]interface{}
		if err := json.Unmarshal(payload, &value); err != nil {
			return nil, fmt.Errorf("storage: unmarshal value: %w", err)
		}
		rec := Record{Key: key, Value: value, CreatedAt: createdAt, UpdatedAt: updatedAt}
		if matches(rec, filter) {
			out = append(out, rec)
		}
	}

	if filter.Offset > 0 && filter.Offset < len(out) {
		out = out[filter.Offset:]
	} else if filter.Offset >= len(out) && len(out) > 0 {
		out = nil
	}
	if filter.Limit > 0 && filter.Limit < len(out) {
		out = out[:filter.Limit]
	}
	return out, rows.Err()
}

func (s *PostgresStore) Update(ctx context.Context, collection, key string, fields map[string]interface{}) error {
	rec, err := s.Get(ctx, collection, key)
	if err != nil {
		return err
	}

	merged := make(map[string]interface{}, len(rec.Value)+len(fields))
	for k, v := range rec.Value {
		merged[k] = v
	}
	for k, v := range fields {
		merged[k] = v
	}

	payload, err := json.Marshal(merged)
	if err != nil {
		return fmt.Errorf("storage: marshal value: %w", err)
	}

	_, err = s.db.ExecContext(ctx, `
		UPDATE storage_documents SET value = $3, updated_at = now()
		WHERE collection = $1 AND key = $2
	`, collection, key, payload)
	return err
}

func (s *PostgresStore) Count(ctx context.Context, collection string, filter Filter) (int, error) {
	recs, err := s.Query(ctx, collection, Filter{Equals: filter.Equals})
	if err != nil {
		return 0, err
	}
	return len(recs), nil
}

func (s *PostgresStore) Clear(ctx context.Context, collection string) error {
	_, err := s.db.ExecContext(ctx, `DELETE FROM storage_documents WHERE collection = $1`, collection)
	if err != nil {
		return err
	}
	_, err = s.db.ExecContext(ctx, `DELETE FROM storage_counters WHERE collection = $1`, collection)
	return err
}

// AtomicAdd relies on Postgres's single-statement UPDATE ... RETURNING (with
// an UPSERT for the first write) to guarantee the read-modify-write is
// indivisible even under concurrent callers from multiple server instances —
// the production-grade counterpart MemoryStore only approximates in-process.
func (s *PostgresStore) AtomicAdd(ctx context.Context, collection, key string, delta int64) (int64, error) {
	var newValue int64
	row := s.db.QueryRowContext(ctx, `
		INSERT INTO storage_counters (collection, key, value)
		VALUES ($1, $2, $3)
		ON CONFLICT (collection, key) DO UPDATE SET value = storage_counters.value + $3
		RETURNING value
	`, collection, key, delta)
	if err := row.Scan(&newValue); err != nil {
		return 0, err
	}
	return newValue, nil
}

func (s *PostgresStore) AcquireLock(ctx context.Context, name string, ttl time.Duration) (bool, error) {
	res, err := s.db.ExecContext(ctx, `
		INSERT INTO storage_locks (name, expires_at) VALUES ($1, now() + $2::interval)
		ON CONFLICT (name) DO UPDATE SET expires_at = now() + $2::interval
		WHERE storage_locks.expires_at < now()
	`, name, fmt.Sprintf("%d seconds", int(ttl.Seconds())))
	if err != nil {
		return false, err
	}
	rows, _ := res.RowsAffected()
	return rows > 0, nil
}

func (s *PostgresStore) ReleaseLock(ctx context.Context, name string) error {
	_, err := s.db.ExecContext(ctx, `DELETE FROM storage_locks WHERE name = $1`, name)
	return err
}

func (s *PostgresStore) HealthCheck(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

// Close releases the underlying connection pool if this store opened it.
func (s *PostgresStore) Close() error {
	if s.ownsDB {
		return s.db.Close()
	}
	return nil
}

var _ Store = (*PostgresStore)(nil)
