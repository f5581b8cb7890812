package testutils

import (
	"context"
	"fmt"
	"log"
	"strings"
	"time"

	"github.com/uptrace/bun"
	"github.com/uptrace/bun/migrate"

	achievementmigrations "github.com/frontline-stats/sitrep/app/modules/achievement/infrastructure/repositories/migrations"
	roundmigrations "github.com/frontline-stats/sitrep/app/modules/round/infrastructure/repositories/migrations"
	sessionmigrations "github.com/frontline-stats/sitrep/app/modules/session/infrastructure/repositories/migrations"
	statsmigrations "github.com/frontline-stats/sitrep/app/modules/stats/infrastructure/repositories/migrations"
)

// runMigrations applies every module's migrations in dependency order.
// Session tables come first because round and stats migrations reference
// players and game_servers.
func runMigrations(db *bun.DB) error {
	ctx, cancel := context.WithTimeout(context.Background(), 60*time.Second)
	defer cancel()

	modules := []struct {
		name       string
		migrations *migrate.Migrations
	}{
		{"session", sessionmigrations.Migrations},
		{"round", roundmigrations.Migrations},
		{"stats", statsmigrations.Migrations},
		{"achievement", achievementmigrations.Migrations},
	}

	for i, module := range modules {
		migrator := migrate.NewMigrator(db, module.migrations)
		if i == 0 {
			if err := migrator.Init(ctx); err != nil {
				return fmt.Errorf("failed to init migrations: %w", err)
			}
		}
		group, err := migrator.Migrate(ctx)
		if err != nil {
			return fmt.Errorf("failed to migrate %s module: %w", module.name, err)
		}
		if group.ID == 0 {
			log.Printf("No new migrations for %s module", module.name)
		}
	}
	return nil
}

// TruncateTables truncates the given tables, cascading to dependents and
// restarting identity sequences.
func TruncateTables(ctx context.Context, db *bun.DB, tables ...string) error {
	if len(tables) == 0 {
		return nil
	}
	quoted := make([]string, len(tables))
	for i, table := range tables {
		quoted[i] = fmt.Sprintf("%q", table)
	}
	query := fmt.Sprintf("TRUNCATE TABLE %s RESTART IDENTITY CASCADE", strings.Join(quoted, ", "))
	if _, err := db.ExecContext(ctx, query); err != nil {
		return fmt.Errorf("failed to truncate tables %v: %w", tables, err)
	}
	return nil
}

// CleanSessionTables removes all session-module rows.
func CleanSessionTables(ctx context.Context, db *bun.DB) error {
	return TruncateTables(ctx, db, "player_sessions", "player_observations", "players", "game_servers")
}

// CleanRoundTables removes all round-module rows.
func CleanRoundTables(ctx context.Context, db *bun.DB) error {
	return TruncateTables(ctx, db, "round_observations", "rounds")
}

// CleanStatsTables removes all stats-module rows.
func CleanStatsTables(ctx context.Context, db *bun.DB) error {
	return TruncateTables(ctx, db,
		"player_round_stats",
		"player_stats_lifetime",
		"player_server_stats",
		"player_map_stats",
		"player_server_map_stats",
		"player_daily_stats",
		"player_milestones",
		"player_best_scores",
		"server_map_stats",
		"server_player_rankings",
		"backfill_batches",
	)
}

// CleanAchievementTables removes all achievement-module rows.
func CleanAchievementTables(ctx context.Context, db *bun.DB) error {
	return TruncateTables(ctx, db, "player_achievements", "processor_checkpoints")
}

// WaitFor polls check until it returns nil or the timeout elapses. It is
// used to wait for asynchronous message handling to land in the database.
func WaitFor(timeout, interval time.Duration, check func() error) error {
	deadline := time.Now().Add(timeout)
	var lastErr error
	for time.Now().Before(deadline) {
		if lastErr = check(); lastErr == nil {
			return nil
		}
		time.Sleep(interval)
	}
	return fmt.Errorf("condition not met within %v: %w", timeout, lastErr)
}
