// Package postgres is the production implementation of storage.Store,
// backed by Postgres accessed through database/sql and the pgx driver,
// with schema managed by golang-migrate.
package postgres

import (
	"context"
	"database/sql"
	"embed"
	"errors"
	"fmt"
	"time"

	"github.com/golang-migrate/migrate/v4"
	"github.com/golang-migrate/migrate/v4/database/postgres"
	"github.com/golang-migrate/migrate/v4/source/iofs"
	"github.com/jackc/pgx/v5/pgconn"
	_ "github.com/jackc/pgx/v5/stdlib"
	"github.com/lib/pq"

	"github.com/paynet-mint/node/internal/cashu"
	"github.com/paynet-mint/node/internal/obs"
	"github.com/paynet-mint/node/internal/storage"
)

//go:embed migrations
var migrationFiles embed.FS

// serializationFailureSQLState is Postgres' SQLSTATE for a serialization
// failure under SERIALIZABLE isolation (spec.md §5: "two transactions
// that would together violate linearizability are serialized or one
// aborts with a retryable conflict").
const serializationFailureSQLState = "40001"

// maxSerializationRetries bounds the internal retry loop spec.md §5
// calls for: "retry serialization conflicts internally up to a small
// bounded number of attempts".
const maxSerializationRetries = 5

type DB struct {
	pool *sql.DB
	log  obs.Logger
}

// Open connects to Postgres and applies pending migrations.
func Open(ctx context.Context, dsn string, log obs.Logger) (*DB, error) {
	pool, err := sql.Open("pgx", dsn)
	if err != nil {
		return nil, fmt.Errorf("opening postgres pool: %w", err)
	}
	if err := pool.PingContext(ctx); err != nil {
		return nil, fmt.Errorf("pinging postgres: %w", err)
	}

	if err := migrateUp(pool, log); err != nil {
		pool.Close()
		return nil, err
	}

	return &DB{pool: pool, log: log}, nil
}

func migrateUp(pool *sql.DB, log obs.Logger) error {
	srcDriver, err := iofs.New(migrationFiles, "migrations")
	if err != nil {
		return fmt.Errorf("loading embedded migrations: %w", err)
	}

	dbDriver, err := postgres.WithInstance(pool, &postgres.Config{})
	if err != nil {
		return fmt.Errorf("building migrate driver: %w", err)
	}

	m, err := migrate.NewWithInstance("iofs", srcDriver, "postgres", dbDriver)
	if err != nil {
		return fmt.Errorf("building migrator: %w", err)
	}

	if err := m.Up(); err != nil && !errors.Is(err, migrate.ErrNoChange) {
		return fmt.Errorf("applying migrations: %w", err)
	}
	log.Infof("schema migrations applied")
	return nil
}

func (db *DB) Close() error {
	return db.pool.Close()
}

func (db *DB) GetKeyset(ctx context.Context, id cashu.KeysetId) (storage.Keyset, error) {
	row := db.pool.QueryRowContext(ctx,
		`SELECT id, unit, active, max_order, derivation_path_index FROM keyset WHERE id = $1`, string(id))
	return scanKeyset(row)
}

func (db *DB) ListKeysets(ctx context.Context) ([]storage.Keyset, error) {
	rows, err := db.pool.QueryContext(ctx,
		`SELECT id, unit, active, max_order, derivation_path_index FROM keyset ORDER BY derivation_path_index`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanKeysets(rows)
}

func (db *DB) ListActiveKeysets(ctx context.Context) ([]storage.Keyset, error) {
	rows, err := db.pool.QueryContext(ctx,
		`SELECT id, unit, active, max_order, derivation_path_index FROM keyset WHERE active = true`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanKeysets(rows)
}

func (db *DB) GetMintQuote(ctx context.Context, id string) (storage.MintQuote, error) {
	row := db.pool.QueryRowContext(ctx,
		`SELECT id, unit, amount, request, expiry, state, invoice_id FROM mint_quote WHERE id = $1`, id)
	return scanMintQuote(row)
}

func (db *DB) GetMeltQuote(ctx context.Context, id string) (storage.MeltQuote, error) {
	row := db.pool.QueryRowContext(ctx,
		`SELECT id, unit, amount, fee, request, expiry, state, invoice_id, transfer_ids FROM melt_quote WHERE id = $1`, id)
	return scanMeltQuote(row)
}

func (db *DB) CheckState(ctx context.Context, ys []string) (map[string]cashu.ProofState, error) {
	result := make(map[string]cashu.ProofState, len(ys))
	for _, y := range ys {
		result[y] = cashu.Unspent
	}
	if len(ys) == 0 {
		return result, nil
	}

	rows, err := db.pool.QueryContext(ctx, `SELECT y, state FROM proof WHERE y = ANY($1)`, pq.Array(ys))
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	for rows.Next() {
		var y string
		var state int
		if err := rows.Scan(&y, &state); err != nil {
			return nil, err
		}
		result[y] = cashu.ProofState(state)
	}
	return result, rows.Err()
}

func (db *DB) Restore(ctx context.Context, blindedSecrets []string) ([]storage.BlindSignatureRow, error) {
	if len(blindedSecrets) == 0 {
		return nil, nil
	}

	rows, err := db.pool.QueryContext(ctx,
		`SELECT b_, amount, keyset_id, c_, dleq_e, dleq_s FROM blind_signature WHERE b_ = ANY($1)`,
		pq.Array(blindedSecrets))
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []storage.BlindSignatureRow
	for rows.Next() {
		var b_, keysetId, c_ string
		var amount uint64
		var dleqE, dleqS sql.NullString
		if err := rows.Scan(&b_, &amount, &keysetId, &c_, &dleqE, &dleqS); err != nil {
			return nil, err
		}
		sig := cashu.BlindedSignature{Amount: amount, Id: cashu.KeysetId(keysetId), C_: c_}
		if dleqE.Valid && dleqS.Valid {
			sig.DLEQ = &cashu.DLEQProof{E: dleqE.String, S: dleqS.String}
		}
		out = append(out, storage.BlindSignatureRow{B_: b_, Signature: sig})
	}
	return out, rows.Err()
}

func (db *DB) GetEcashIssued(ctx context.Context) (map[cashu.KeysetId]uint64, error) {
	return db.sumByKeyset(ctx, `SELECT keyset_id, SUM(amount) FROM blind_signature GROUP BY keyset_id`)
}

func (db *DB) GetEcashRedeemed(ctx context.Context) (map[cashu.KeysetId]uint64, error) {
	return db.sumByKeyset(ctx, `SELECT keyset_id, SUM(amount) FROM proof WHERE state = 2 GROUP BY keyset_id`)
}

func (db *DB) sumByKeyset(ctx context.Context, query string) (map[cashu.KeysetId]uint64, error) {
	rows, err := db.pool.QueryContext(ctx, query)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	result := make(map[cashu.KeysetId]uint64)
	for rows.Next() {
		var id string
		var total uint64
		if err := rows.Scan(&id, &total); err != nil {
			return nil, err
		}
		result[cashu.KeysetId(id)] = total
	}
	return result, rows.Err()
}

// WithSerializableTx opens a SERIALIZABLE transaction and runs fn inside
// it, retrying on a Postgres serialization-failure SQLSTATE for at most
// maxSerializationRetries attempts in all (spec.md §5, §9 "atomicity
// without ORM").
func (db *DB) WithSerializableTx(ctx context.Context, fn func(ctx context.Context, tx storage.Tx) error) error {
	var lastErr error
	for attempt := 0; attempt < maxSerializationRetries; attempt++ {
		err := db.runOnce(ctx, fn)
		if err == nil {
			return nil
		}
		if !isSerializationFailure(err) {
			return err
		}
		lastErr = err
		db.log.Warnf("serialization failure, retrying (attempt %d): %v", attempt+1, err)
		time.Sleep(time.Duration(attempt+1) * 5 * time.Millisecond)
	}
	return fmt.Errorf("exhausted serialization retries: %w", lastErr)
}

func (db *DB) runOnce(ctx context.Context, fn func(ctx context.Context, tx storage.Tx) error) (err error) {
	sqlTx, err := db.pool.BeginTx(ctx, &sql.TxOptions{Isolation: sql.LevelSerializable})
	if err != nil {
		return fmt.Errorf("beginning serializable tx: %w", err)
	}
	defer func() {
		if err != nil {
			_ = sqlTx.Rollback()
		}
	}()

	tx := &pgTx{tx: sqlTx}
	if err = fn(ctx, tx); err != nil {
		return err
	}
	if err = sqlTx.Commit(); err != nil {
		return fmt.Errorf("committing tx: %w", err)
	}
	return nil
}

func isSerializationFailure(err error) bool {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr.Code == serializationFailureSQLState
	}
	return false
}

