// Package bundb opens the shared Postgres pool and hands each module its
// repository implementation.
package bundb

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/uptrace/bun"
	"github.com/uptrace/bun/dialect/pgdialect"
	"github.com/uptrace/bun/driver/pgdriver"

	achievementdb "github.com/frontline-stats/sitrep/app/modules/achievement/infrastructure/repositories"
	rounddb "github.com/frontline-stats/sitrep/app/modules/round/infrastructure/repositories"
	sessiondb "github.com/frontline-stats/sitrep/app/modules/session/infrastructure/repositories"
	statsdb "github.com/frontline-stats/sitrep/app/modules/stats/infrastructure/repositories"
	"github.com/frontline-stats/sitrep/config"
)

// DBService bundles the connection pool with the module repositories that
// share it.
type DBService struct {
	SessionDB     *sessiondb.SessionRepository
	RoundDB       *rounddb.RoundRepository
	StatsDB       *statsdb.StatsRepository
	AchievementDB *achievementdb.AchievementRepository

	db *bun.DB
}

// GetDB returns the underlying database connection pool.
func (dbService *DBService) GetDB() *bun.DB {
	return dbService.db
}

// NewBunDBService initializes a new DBService with the provided Postgres
// configuration.
func NewBunDBService(ctx context.Context, cfg config.PostgresConfig) (*DBService, error) {
	sqldb, err := pgConn(ctx, cfg.DSN)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	db := bunDB(sqldb)

	return &DBService{
		SessionDB:     sessiondb.NewSessionRepository(db),
		RoundDB:       rounddb.NewRoundRepository(db),
		StatsDB:       statsdb.NewStatsRepository(db),
		AchievementDB: achievementdb.NewAchievementRepository(db),
		db:            db,
	}, nil
}

// bunDB returns a new bun.DB for given sql.DB connection pool.
func bunDB(sqldb *sql.DB) *bun.DB {
	return bun.NewDB(sqldb, pgdialect.New())
}

func pgConn(ctx context.Context, dsn string) (*sql.DB, error) {
	sqldb := sql.OpenDB(pgdriver.NewConnector(pgdriver.WithDSN(dsn)))

	if err := sqldb.PingContext(ctx); err != nil {
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	return sqldb, nil
}
