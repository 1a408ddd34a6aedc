package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/lib/pq"

	"github.com/DynamicCake/dftools/crypto"
	"github.com/DynamicCake/dftools/plot"
)

// PostgresQuerier implements Querier with PostgreSQL persistence.
type PostgresQuerier struct {
	db *sql.DB
}

// NewPostgresQuerier opens a connection pool against the given URL and runs
// schema migrations.
func NewPostgresQuerier(databaseURL string) (*PostgresQuerier, error) {
	db, err := sql.Open("postgres", databaseURL)
	if err != nil {
		return nil, fmt.Errorf("opening database: %w", err)
	}

	db.SetMaxOpenConns(25)
	db.SetMaxIdleConns(5)
	db.SetConnMaxLifetime(5 * time.Minute)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := db.PingContext(ctx); err != nil {
		return nil, fmt.Errorf("pinging database: %w", err)
	}

	q := &PostgresQuerier{db: db}
	if err := q.migrate(); err != nil {
		return nil, fmt.Errorf("running migrations: %w", err)
	}

	return q, nil
}

func (q *PostgresQuerier) migrate() error {
	schema := `
	CREATE TABLE IF NOT EXISTS known_instance (
		id BIGSERIAL PRIMARY KEY,
		domain VARCHAR(253) NOT NULL UNIQUE,
		public_key BYTEA NOT NULL,
		created_at TIMESTAMP WITH TIME ZONE DEFAULT NOW(),
		updated_at TIMESTAMP WITH TIME ZONE DEFAULT NOW()
	);

	CREATE TABLE IF NOT EXISTS plot (
		id INTEGER PRIMARY KEY,
		owner_uuid UUID NOT NULL,
		instance BIGINT REFERENCES known_instance(id),
		created_at TIMESTAMP WITH TIME ZONE DEFAULT NOW()
	);

	CREATE TABLE IF NOT EXISTS api_key (
		id BIGSERIAL PRIMARY KEY,
		plot INTEGER NOT NULL REFERENCES plot(id),
		hashed_key BYTEA NOT NULL,
		disabled BOOLEAN NOT NULL DEFAULT FALSE,
		created_at TIMESTAMP WITH TIME ZONE DEFAULT NOW()
	);

	CREATE INDEX IF NOT EXISTS idx_api_key_hash ON api_key(hashed_key) WHERE NOT disabled;

	CREATE TABLE IF NOT EXISTS baton_trust (
		plot INTEGER NOT NULL REFERENCES plot(id),
		trusted INTEGER NOT NULL,
		PRIMARY KEY (plot, trusted)
	);
	`

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	_, err := q.db.ExecContext(ctx, schema)
	return err
}

// SelectPlot returns the plot row joined to its assigned instance.
func (q *PostgresQuerier) SelectPlot(ctx context.Context, id plot.ID) (*PlotRecord, error) {
	row := q.db.QueryRowContext(ctx, `
		SELECT p.id, p.owner_uuid, i.domain, i.public_key
		FROM plot p
		LEFT JOIN known_instance i ON i.id = p.instance
		WHERE p.id = $1
	`, int32(id))
	return scanPlotRecord(row)
}

// InsertPlot registers a new plot.
func (q *PostgresQuerier) InsertPlot(ctx context.Context, id plot.ID, owner uuid.UUID, instanceID *int64) error {
	_, err := q.db.ExecContext(ctx,
		"INSERT INTO plot (id, owner_uuid, instance) VALUES ($1, $2, $3)",
		int32(id), owner, nullableID(instanceID))
	if isUniqueViolation(err) {
		return ErrPlotTaken
	}
	return err
}

// UpdatePlotInstance reassigns a plot to another instance.
func (q *PostgresQuerier) UpdatePlotInstance(ctx context.Context, id plot.ID, instanceID *int64) error {
	res, err := q.db.ExecContext(ctx,
		"UPDATE plot SET instance = $2 WHERE id = $1",
		int32(id), nullableID(instanceID))
	if err != nil {
		return err
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		return ErrPlotNotFound
	}
	return nil
}

// SelectKeyPlot resolves an active API key digest to its plot.
func (q *PostgresQuerier) SelectKeyPlot(ctx context.Context, digest crypto.KeyDigest) (*PlotRecord, error) {
	row := q.db.QueryRowContext(ctx, `
		SELECT p.id, p.owner_uuid, i.domain, i.public_key
		FROM api_key k
		JOIN plot p ON p.id = k.plot
		LEFT JOIN known_instance i ON i.id = p.instance
		WHERE k.hashed_key = $1 AND k.disabled = FALSE
	`, digest.Bytes())
	return scanPlotRecord(row)
}

// InsertAPIKey stores a new key digest for a plot.
func (q *PostgresQuerier) InsertAPIKey(ctx context.Context, id plot.ID, digest crypto.KeyDigest) error {
	_, err := q.db.ExecContext(ctx,
		"INSERT INTO api_key (plot, hashed_key) VALUES ($1, $2)",
		int32(id), digest.Bytes())
	return err
}

// DisableAPIKeys soft-disables every active key of a plot.
func (q *PostgresQuerier) DisableAPIKeys(ctx context.Context, id plot.ID) ([]crypto.KeyDigest, error) {
	rows, err := q.db.QueryContext(ctx, `
		UPDATE api_key SET disabled = TRUE
		WHERE plot = $1 AND disabled = FALSE
		RETURNING hashed_key
	`, int32(id))
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var digests []crypto.KeyDigest
	for rows.Next() {
		var raw []byte
		if err := rows.Scan(&raw); err != nil {
			return nil, fmt.Errorf("scanning disabled key: %w", err)
		}
		var digest crypto.KeyDigest
		copy(digest[:], raw)
		digests = append(digests, digest)
	}
	return digests, rows.Err()
}

// SelectTrusted returns the trust list of a plot.
func (q *PostgresQuerier) SelectTrusted(ctx context.Context, id plot.ID) ([]plot.ID, error) {
	rows, err := q.db.QueryContext(ctx,
		"SELECT trusted FROM baton_trust WHERE plot = $1", int32(id))
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	trusted := []plot.ID{}
	for rows.Next() {
		var t int32
		if err := rows.Scan(&t); err != nil {
			return nil, fmt.Errorf("scanning trust edge: %w", err)
		}
		trusted = append(trusted, plot.ID(t))
	}
	return trusted, rows.Err()
}

// ReplaceTrusted swaps the trust list of a plot in one transaction. The
// delete and reinsert either both land or neither does.
func (q *PostgresQuerier) ReplaceTrusted(ctx context.Context, id plot.ID, trusted []plot.ID) error {
	tx, err := q.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	var exists int32
	err = tx.QueryRowContext(ctx, "SELECT id FROM plot WHERE id = $1", int32(id)).Scan(&exists)
	if errors.Is(err, sql.ErrNoRows) {
		return ErrPlotNotFound
	}
	if err != nil {
		return err
	}

	if _, err := tx.ExecContext(ctx, "DELETE FROM baton_trust WHERE plot = $1", int32(id)); err != nil {
		return err
	}

	for _, t := range trusted {
		_, err := tx.ExecContext(ctx, `
			INSERT INTO baton_trust (plot, trusted) VALUES ($1, $2)
			ON CONFLICT (plot, trusted) DO NOTHING
		`, int32(id), int32(t))
		if err != nil {
			return err
		}
	}

	return tx.Commit()
}

// SelectInstanceID resolves a public key to a known-instance row id.
func (q *PostgresQuerier) SelectInstanceID(ctx context.Context, key crypto.PublicKey) (*int64, error) {
	var id int64
	err := q.db.QueryRowContext(ctx,
		"SELECT id FROM known_instance WHERE public_key = $1", key.Bytes()).Scan(&id)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &id, nil
}

// UpsertInstance registers or refreshes a known instance.
func (q *PostgresQuerier) UpsertInstance(ctx context.Context, domain string, key crypto.PublicKey) error {
	_, err := q.db.ExecContext(ctx, `
		INSERT INTO known_instance (domain, public_key) VALUES ($1, $2)
		ON CONFLICT (domain) DO UPDATE SET
			public_key = EXCLUDED.public_key,
			updated_at = NOW()
	`, domain, key.Bytes())
	return err
}

// Close closes the connection pool.
func (q *PostgresQuerier) Close() error {
	return q.db.Close()
}

func scanPlotRecord(row *sql.Row) (*PlotRecord, error) {
	var (
		rec    PlotRecord
		id     int32
		domain sql.NullString
	)
	err := row.Scan(&id, &rec.Owner, &domain, &rec.PublicKey)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	rec.PlotID = plot.ID(id)
	if domain.Valid {
		rec.Domain = &domain.String
	}
	return &rec, nil
}

func nullableID(id *int64) sql.NullInt64 {
	if id == nil {
		return sql.NullInt64{}
	}
	return sql.NullInt64{Int64: *id, Valid: true}
}

func isUniqueViolation(err error) bool {
	var pqErr *pq.Error
	return errors.As(err, &pqErr) && pqErr.Code == "23505"
}
