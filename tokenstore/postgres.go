package tokenstore

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/athmgo/athm/config"
	"github.com/athmgo/athm/pkg/logger"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"go.uber.org/zap"
)

const createTokensTable = `
CREATE TABLE IF NOT EXISTS athm_auth_tokens (
    ecommerce_id TEXT PRIMARY KEY,
    auth_token   TEXT NOT NULL,
    created_at   TIMESTAMPTZ NOT NULL DEFAULT now(),
    updated_at   TIMESTAMPTZ NOT NULL DEFAULT now()
)`

// Postgres stores auth tokens in a shared table so a payment created by one
// process can be authorized by another.
type Postgres struct {
	pool *pgxpool.Pool
	log  logger.Logger
}

// NewPostgres connects, pings and ensures the token table exists.
func NewPostgres(ctx context.Context, cfg *config.PostgresConfig, log logger.Logger) (*Postgres, error) {
	poolConfig, err := pgxpool.ParseConfig(cfg.DSN())
	if err != nil {
		return nil, fmt.Errorf("unable to parse db config: %w", err)
	}

	if cfg.MaxOpenConns > 0 {
		poolConfig.MaxConns = int32(cfg.MaxOpenConns)
	}
	if cfg.MinIdleConns > 0 {
		poolConfig.MinConns = int32(cfg.MinIdleConns)
	}
	if cfg.ConnMaxLifetime > 0 {
		poolConfig.MaxConnLifetime = cfg.ConnMaxLifetime
	}
	if cfg.ConnMaxIdleTime > 0 {
		poolConfig.MaxConnIdleTime = cfg.ConnMaxIdleTime
	}
	poolConfig.ConnConfig.ConnectTimeout = 5 * time.Second

	log.Info("connecting to database",
		zap.String("host", cfg.Host),
		zap.Int("port", cfg.Port),
		zap.String("database", cfg.Name),
		zap.Int32("max_conns", poolConfig.MaxConns),
	)

	pool, err := pgxpool.NewWithConfig(ctx, poolConfig)
	if err != nil {
		return nil, fmt.Errorf("unable to create pool: %w", err)
	}

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := pool.Ping(pingCtx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("unable to ping database: %w", err)
	}

	if _, err := pool.Exec(ctx, createTokensTable); err != nil {
		pool.Close()
		return nil, fmt.Errorf("unable to create token table: %w", err)
	}

	log.Info("successfully connected to database")

	return &Postgres{pool: pool, log: log}, nil
}

func (p *Postgres) Save(ctx context.Context, ecommerceID, authToken string) error {
	const query = `
		INSERT INTO athm_auth_tokens (ecommerce_id, auth_token)
		VALUES ($1, $2)
		ON CONFLICT (ecommerce_id)
		DO UPDATE SET auth_token = EXCLUDED.auth_token, updated_at = now()`

	if _, err := p.pool.Exec(ctx, query, ecommerceID, authToken); err != nil {
		return fmt.Errorf("failed to save auth token: %w", err)
	}
	return nil
}

func (p *Postgres) Get(ctx context.Context, ecommerceID string) (string, bool, error) {
	const query = `SELECT auth_token FROM athm_auth_tokens WHERE ecommerce_id = $1`

	var token string
	err := p.pool.QueryRow(ctx, query, ecommerceID).Scan(&token)
	if errors.Is(err, pgx.ErrNoRows) {
		return "", false, nil
	}
	if err != nil {
		return "", false, fmt.Errorf("failed to get auth token: %w", err)
	}
	return token, true, nil
}

func (p *Postgres) Delete(ctx context.Context, ecommerceID string) error {
	const query = `DELETE FROM athm_auth_tokens WHERE ecommerce_id = $1`

	if _, err := p.pool.Exec(ctx, query, ecommerceID); err != nil {
		return fmt.Errorf("failed to delete auth token: %w", err)
	}
	return nil
}

// HealthCheck pings the pool with a short timeout.
func (p *Postgres) HealthCheck(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, 3*time.Second)
	defer cancel()

	if err := p.pool.Ping(ctx); err != nil {
		p.log.Error("postgres health check failed", zap.Error(err))
		return err
	}
	return nil
}

func (p *Postgres) Close() {
	p.pool.Close()
	p.log.Info("database connection pool closed")
}
