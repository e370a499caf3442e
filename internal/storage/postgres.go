package storage

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	logx "relaybot/pkg/logx"
)

const postgresSchema = `
CREATE TABLE IF NOT EXISTS relay_documents (
	key        TEXT PRIMARY KEY,
	body       JSONB NOT NULL,
	updated_at TIMESTAMPTZ NOT NULL DEFAULT now()
);
CREATE TABLE IF NOT EXISTS relay_audit (
	id             TEXT PRIMARY KEY,
	at             TIMESTAMPTZ NOT NULL,
	actor_id       BIGINT NOT NULL,
	actor_username TEXT,
	action         TEXT NOT NULL,
	target         TEXT,
	detail         TEXT
);
CREATE INDEX IF NOT EXISTS relay_audit_at_idx ON relay_audit(at DESC);
`

type postgresStore struct {
	pool *pgxpool.Pool
	log  logx.Logger
}

func openPostgres(cfg Config, log logx.Logger) (Store, error) {
	dsn := strings.TrimSpace(cfg.DSN)
	if dsn == "" {
		return nil, errors.New("postgres dsn is required")
	}
	pcfg, err := pgxpool.ParseConfig(dsn)
	if err != nil {
		return nil, err
	}
	pcfg.MaxConns = 4

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	pool, err := pgxpool.NewWithConfig(ctx, pcfg)
	if err != nil {
		return nil, err
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, err
	}
	if _, err := pool.Exec(ctx, postgresSchema); err != nil {
		pool.Close()
		return nil, err
	}
	log.Debug("postgres store opened")
	return &postgresStore{pool: pool, log: log}, nil
}

func (s *postgresStore) GetDoc(ctx context.Context, key string) ([]byte, error) {
	var body []byte
	err := s.pool.QueryRow(ctx, `SELECT body::text FROM relay_documents WHERE key = $1`, key).Scan(&body)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return body, nil
}

func (s *postgresStore) PutDoc(ctx context.Context, key string, doc []byte) error {
	if err := validKey(key); err != nil {
		return err
	}
	_, err := s.pool.Exec(ctx,
		`INSERT INTO relay_documents(key, body, updated_at) VALUES($1, $2::jsonb, now())
		 ON CONFLICT (key) DO UPDATE SET body = EXCLUDED.body, updated_at = now()`,
		key, string(doc),
	)
	return err
}

func (s *postgresStore) AppendAudit(ctx context.Context, e AuditEntry) error {
	e = stamp(e)
	_, err := s.pool.Exec(ctx,
		`INSERT INTO relay_audit(id, at, actor_id, actor_username, action, target, detail)
		 VALUES($1,$2,$3,$4,$5,$6,$7)`,
		e.ID, e.At, e.ActorID, nullStr(e.ActorUsername), e.Action, nullStr(e.Target), nullStr(e.Detail),
	)
	return err
}

func (s *postgresStore) RecentAudit(ctx context.Context, n int) ([]AuditEntry, error) {
	if n <= 0 {
		n = 50
	}
	rows, err := s.pool.Query(ctx,
		`SELECT id, at, actor_id, COALESCE(actor_username, ''), action, COALESCE(target, ''), COALESCE(detail, '')
		 FROM relay_audit ORDER BY at DESC LIMIT $1`, n)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []AuditEntry
	for rows.Next() {
		var e AuditEntry
		if err := rows.Scan(&e.ID, &e.At, &e.ActorID, &e.ActorUsername, &e.Action, &e.Target, &e.Detail); err != nil {
			return nil, err
		}
		out = append(out, e)
	}
	return out, rows.Err()
}

func (s *postgresStore) Close() error {
	s.pool.Close()
	return nil
}
