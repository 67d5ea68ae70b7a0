package integration

import (
	"context"
	"os"
	"path/filepath"
	"strings"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/testcontainers/testcontainers-go/modules/postgres"

	orderpg "github.com/nmalhotra/orderflow/internal/order/infrastructure/postgres"
)

type Env struct {
	PG    *postgres.PostgresContainer
	Pool  *pgxpool.Pool
	PGURL string
}

func Setup(ctx context.Context) (*Env, error) {
	pgC, err := postgres.Run(ctx,
		"postgres:16-alpine",
		postgres.WithDatabase("orderflow"),
		postgres.WithUsername("postgres"),
		postgres.WithPassword("postgres"),
		postgres.BasicWaitStrategies(),
	)
	if err != nil {
		return nil, err
	}

	pgURL, err := pgC.ConnectionString(ctx, "sslmode=disable")
	if err != nil {
		_ = pgC.Terminate(ctx)
		return nil, err
	}

	pool, err := orderpg.NewPool(ctx, pgURL)
	if err != nil {
		_ = pgC.Terminate(ctx)
		return nil, err
	}

	schema, err := os.ReadFile(filepath.Join("..", "..", "migrations", "001_init.sql"))
	if err != nil {
		pool.Close()
		_ = pgC.Terminate(ctx)
		return nil, err
	}
	// pgx's extended protocol takes one statement per Exec.
	for _, stmt := range strings.Split(string(schema), ";") {
		if strings.TrimSpace(stmt) == "" {
			continue
		}
		if _, err := pool.Exec(ctx, stmt); err != nil {
			pool.Close()
			_ = pgC.Terminate(ctx)
			return nil, err
		}
	}

	return &Env{PG: pgC, Pool: pool, PGURL: pgURL}, nil
}

func (e *Env) Teardown(ctx context.Context) {
	e.Pool.Close()
	_ = e.PG.Terminate(ctx)
}
