package store

import (
	"context"
	"embed"
	"errors"
	"fmt"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

//go:embed migrations/*.sql
var migrationsFS embed.FS

// Postgres guarda as chaves numa tabela kv. Linhas com expires_at no passado
// são tratadas como ausentes e removidas pelo janitor.
type Postgres struct {
	pool *pgxpool.Pool
}

func ConnectPostgres(ctx context.Context, url string) (*Postgres, error) {
	cfg, err := pgxpool.ParseConfig(url)
	if err != nil {
		return nil, fmt.Errorf("parse db url: %w", err)
	}
	cfg.MaxConns = 10
	pool, err := pgxpool.NewWithConfig(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("pgxpool: %w", err)
	}
	ctxPing, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := pool.Ping(ctxPing); err != nil {
		pool.Close()
		return nil, fmt.Errorf("db ping: %w", err)
	}
	p := &Postgres{pool: pool}
	if err := p.migrate(ctx); err != nil {
		pool.Close()
		return nil, err
	}
	return p, nil
}

func (p *Postgres) migrate(ctx context.Context) error {
	if _, err := p.pool.Exec(ctx, `CREATE TABLE IF NOT EXISTS schema_migrations (name text PRIMARY KEY, applied_at timestamptz NOT NULL DEFAULT now())`); err != nil {
		return fmt.Errorf("create schema_migrations: %w", err)
	}

	entries, err := migrationsFS.ReadDir("migrations")
	if err != nil {
		return fmt.Errorf("read migrations: %w", err)
	}
	names := make([]string, 0, len(entries))
	for _, e := range entries {
		if !e.IsDir() && strings.HasSuffix(e.Name(), ".sql") {
			names = append(names, e.Name())
		}
	}
	sort.Strings(names)

	for _, name := range names {
		var applied bool
		if err := p.pool.QueryRow(ctx, `SELECT EXISTS(SELECT 1 FROM schema_migrations WHERE name=$1)`, name).Scan(&applied); err != nil {
			return fmt.Errorf("check migration %s: %w", name, err)
		}
		if applied {
			continue
		}
		sqlBytes, err := migrationsFS.ReadFile("migrations/" + name)
		if err != nil {
			return fmt.Errorf("read migration %s: %w", name, err)
		}
		tx, err := p.pool.BeginTx(ctx, pgx.TxOptions{})
		if err != nil {
			return fmt.Errorf("begin tx: %w", err)
		}
		if _, err := tx.Exec(ctx, string(sqlBytes)); err != nil {
			_ = tx.Rollback(ctx)
			return fmt.Errorf("apply migration %s: %w", name, err)
		}
		if _, err := tx.Exec(ctx, `INSERT INTO schema_migrations(name) VALUES($1)`, name); err != nil {
			_ = tx.Rollback(ctx)
			return fmt.Errorf("record migration %s: %w", name, err)
		}
		if err := tx.Commit(ctx); err != nil {
			return fmt.Errorf("commit migration %s: %w", name, err)
		}
	}
	return nil
}

const (
	sqlGet    = `SELECT value FROM kv WHERE key=$1 AND (expires_at IS NULL OR expires_at > now())`
	sqlExists = `SELECT EXISTS(SELECT 1 FROM kv WHERE key=$1 AND (expires_at IS NULL OR expires_at > now()))`
	sqlSet    = `INSERT INTO kv(key, value, expires_at) VALUES($1, $2, $3)
		ON CONFLICT (key) DO UPDATE SET value=EXCLUDED.value, expires_at=EXCLUDED.expires_at`
	// NX: só sobrescreve linha já expirada
	sqlSetNX = `INSERT INTO kv(key, value, expires_at) VALUES($1, $2, $3)
		ON CONFLICT (key) DO UPDATE SET value=EXCLUDED.value, expires_at=EXCLUDED.expires_at
		WHERE kv.expires_at IS NOT NULL AND kv.expires_at <= now()
		RETURNING key`
	sqlIncr = `INSERT INTO kv(key, value) VALUES($1, '1')
		ON CONFLICT (key) DO UPDATE SET value=(kv.value::bigint + 1)::text
		RETURNING value`
)

func expiresArg(ttl time.Duration) *time.Time {
	if ttl <= 0 {
		return nil
	}
	t := time.Now().Add(ttl)
	return &t
}

func (p *Postgres) Get(ctx context.Context, key string) (string, error) {
	var v string
	err := p.pool.QueryRow(ctx, sqlGet, key).Scan(&v)
	if errors.Is(err, pgx.ErrNoRows) {
		return "", ErrNil
	}
	if err != nil {
		return "", fmt.Errorf("pg get %s: %w", key, err)
	}
	return v, nil
}

func (p *Postgres) Set(ctx context.Context, key, value string, opts SetOptions) (bool, error) {
	if opts.NX {
		var k string
		err := p.pool.QueryRow(ctx, sqlSetNX, key, value, expiresArg(opts.TTL)).Scan(&k)
		if errors.Is(err, pgx.ErrNoRows) {
			return false, nil
		}
		if err != nil {
			return false, fmt.Errorf("pg setnx %s: %w", key, err)
		}
		return true, nil
	}
	if _, err := p.pool.Exec(ctx, sqlSet, key, value, expiresArg(opts.TTL)); err != nil {
		return false, fmt.Errorf("pg set %s: %w", key, err)
	}
	return true, nil
}

func (p *Postgres) Exists(ctx context.Context, key string) (bool, error) {
	var ok bool
	if err := p.pool.QueryRow(ctx, sqlExists, key).Scan(&ok); err != nil {
		return false, fmt.Errorf("pg exists %s: %w", key, err)
	}
	return ok, nil
}

func (p *Postgres) Incr(ctx context.Context, key string) (int64, error) {
	var v string
	if err := p.pool.QueryRow(ctx, sqlIncr, key).Scan(&v); err != nil {
		return 0, fmt.Errorf("pg incr %s: %w", key, err)
	}
	return strconv.ParseInt(v, 10, 64)
}

// Pipeline envia tudo num pgx.Batch (um round trip).
func (p *Postgres) Pipeline(ctx context.Context, ops ...Op) ([]Result, error) {
	batch := &pgx.Batch{}
	for _, op := range ops {
		switch op.Kind {
		case OpGet:
			batch.Queue(sqlGet, op.Key)
		case OpExists:
			batch.Queue(sqlExists, op.Key)
		case OpIncr:
			batch.Queue(sqlIncr, op.Key)
		default:
			return nil, fmt.Errorf("pg pipeline: unknown op %d", op.Kind)
		}
	}

	br := p.pool.SendBatch(ctx, batch)
	defer br.Close()

	out := make([]Result, len(ops))
	for i, op := range ops {
		row := br.QueryRow()
		switch op.Kind {
		case OpGet:
			var v string
			err := row.Scan(&v)
			if errors.Is(err, pgx.ErrNoRows) {
				continue
			}
			if err != nil {
				return nil, fmt.Errorf("pg pipeline get %s: %w", op.Key, err)
			}
			out[i] = Result{Value: v, Found: true}
		case OpExists:
			var ok bool
			if err := row.Scan(&ok); err != nil {
				return nil, fmt.Errorf("pg pipeline exists %s: %w", op.Key, err)
			}
			if ok {
				out[i] = Result{Int: 1, Found: true}
			}
		case OpIncr:
			var v string
			if err := row.Scan(&v); err != nil {
				return nil, fmt.Errorf("pg pipeline incr %s: %w", op.Key, err)
			}
			n, err := strconv.ParseInt(v, 10, 64)
			if err != nil {
				return nil, fmt.Errorf("pg pipeline incr %s: %w", op.Key, err)
			}
			out[i] = Result{Int: n, Found: true}
		}
	}
	return out, nil
}

// PurgeExpired apaga linhas vencidas e devolve quantas saíram.
func (p *Postgres) PurgeExpired(ctx context.Context) (int64, error) {
	tag, err := p.pool.Exec(ctx, `DELETE FROM kv WHERE expires_at IS NOT NULL AND expires_at <= now()`)
	if err != nil {
		return 0, fmt.Errorf("pg purge: %w", err)
	}
	return tag.RowsAffected(), nil
}

// StartJanitor roda PurgeExpired periodicamente até ctx terminar.
func (p *Postgres) StartJanitor(ctx context.Context, every time.Duration, onErr func(error)) {
	if every <= 0 {
		every = 5 * time.Minute
	}
	go func() {
		t := time.NewTicker(every)
		defer t.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-t.C:
				if _, err := p.PurgeExpired(ctx); err != nil && onErr != nil {
					onErr(err)
				}
			}
		}
	}()
}

func (p *Postgres) Ping(ctx context.Context) error {
	return p.pool.Ping(ctx)
}

func (p *Postgres) Close() error {
	p.pool.Close()
	return nil
}
