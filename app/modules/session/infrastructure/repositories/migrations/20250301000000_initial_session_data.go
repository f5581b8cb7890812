package sessionmigrations

import (
	"context"
	"fmt"

	"github.com/uptrace/bun"

	sessiondb "github.com/frontline-stats/sitrep/app/modules/session/infrastructure/repositories"
)

func init() {
	Migrations.MustRegister(func(ctx context.Context, db *bun.DB) error {
		models := []any{
			(*sessiondb.GameServer)(nil),
			(*sessiondb.Player)(nil),
			(*sessiondb.PlayerSession)(nil),
			(*sessiondb.PlayerObservation)(nil),
		}
		for _, model := range models {
			if _, err := db.NewCreateTable().Model(model).IfNotExists().Exec(ctx); err != nil {
				return fmt.Errorf("failed to create session table: %w", err)
			}
		}

		return db.RunInTx(ctx, nil, func(ctx context.Context, tx bun.Tx) error {
			// One active session per player per server.
			if _, err := tx.ExecContext(ctx, `
				CREATE UNIQUE INDEX IF NOT EXISTS uq_player_sessions_active
				ON player_sessions (player_name, server_guid) WHERE active;
			`); err != nil {
				return fmt.Errorf("failed to create active session index: %w", err)
			}
			if _, err := tx.ExecContext(ctx, `
				CREATE INDEX IF NOT EXISTS idx_player_sessions_server_start
				ON player_sessions (server_guid, start_time);
			`); err != nil {
				return fmt.Errorf("failed to create server/start index: %w", err)
			}
			if _, err := tx.ExecContext(ctx, `
				CREATE INDEX IF NOT EXISTS idx_player_sessions_server_map_start
				ON player_sessions (server_guid, map_name, start_time);
			`); err != nil {
				return fmt.Errorf("failed to create server/map index: %w", err)
			}
			if _, err := tx.ExecContext(ctx, `
				CREATE INDEX IF NOT EXISTS idx_player_sessions_player_start
				ON player_sessions (player_name, start_time);
			`); err != nil {
				return fmt.Errorf("failed to create player/start index: %w", err)
			}
			if _, err := tx.ExecContext(ctx, `
				CREATE INDEX IF NOT EXISTS idx_player_observations_session_ts
				ON player_observations (session_id, ts);
			`); err != nil {
				return fmt.Errorf("failed to create observation index: %w", err)
			}
			return nil
		})
	}, func(ctx context.Context, db *bun.DB) error {
		models := []any{
			(*sessiondb.PlayerObservation)(nil),
			(*sessiondb.PlayerSession)(nil),
			(*sessiondb.Player)(nil),
			(*sessiondb.GameServer)(nil),
		}
		for _, model := range models {
			if _, err := db.NewDropTable().Model(model).IfExists().Cascade().Exec(ctx); err != nil {
				return fmt.Errorf("failed to drop session table: %w", err)
			}
		}
		return nil
	})
}
