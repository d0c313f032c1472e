package storage

import (
	"context"
	"database/sql"
	"errors"
	"strings"
	"sync/atomic"
	"time"

	_ "github.com/jackc/pgx/v5/stdlib"

	logx "schedbot/pkg/logx"
)

// db is never reset after Close; a query racing Close gets the driver's
// "database is closed" error instead of a nil handle.
type postgresStore struct {
	db     *sql.DB
	log    logx.Logger
	closed atomic.Bool
}

func openPostgres(cfg Config, log logx.Logger) (BlobStore, error) {
	dsn := strings.TrimSpace(cfg.DSN)
	if dsn == "" {
		return nil, errors.New("postgres dsn is required")
	}
	db, err := sql.Open("pgx", dsn)
	if err != nil {
		return nil, err
	}
	st := &postgresStore{db: db, log: log}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := st.ensureSchema(ctx); err != nil {
		_ = db.Close()
		return nil, err
	}
	log.Debug("postgres store opened")
	return st, nil
}

func (p *postgresStore) ensureSchema(ctx context.Context) error {
	_, err := p.db.ExecContext(ctx, `
		CREATE TABLE IF NOT EXISTS blobs(
			namespace TEXT NOT NULL,
			key TEXT NOT NULL,
			data BYTEA NOT NULL,
			updated_at TIMESTAMPTZ NOT NULL,
			PRIMARY KEY(namespace, key)
		);`)
	return err
}

func (p *postgresStore) Get(ctx context.Context, namespace, key string) ([]byte, bool, error) {
	if p.closed.Load() {
		return nil, false, ErrClosed
	}
	var data []byte
	err := p.db.QueryRowContext(ctx,
		`SELECT data FROM blobs WHERE namespace=$1 AND key=$2;`, namespace, key,
	).Scan(&data)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, err
	}
	return data, true, nil
}

func (p *postgresStore) Put(ctx context.Context, namespace, key string, data []byte) error {
	if p.closed.Load() {
		return ErrClosed
	}
	_, err := p.db.ExecContext(ctx, `
		INSERT INTO blobs(namespace, key, data, updated_at)
		VALUES($1,$2,$3,$4)
		ON CONFLICT(namespace, key) DO UPDATE SET
			data=EXCLUDED.data,
			updated_at=EXCLUDED.updated_at;`,
		namespace, key, data, time.Now().UTC())
	return err
}

func (p *postgresStore) Close() error {
	if !p.closed.CompareAndSwap(false, true) {
		return nil
	}
	return p.db.Close()
}
