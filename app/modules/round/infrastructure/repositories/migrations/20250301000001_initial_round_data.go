package roundmigrations

import (
	"context"
	"fmt"

	"github.com/uptrace/bun"

	rounddb "github.com/frontline-stats/sitrep/app/modules/round/infrastructure/repositories"
)

func init() {
	Migrations.MustRegister(func(ctx context.Context, db *bun.DB) error {
		models := []any{
			(*rounddb.Round)(nil),
			(*rounddb.RoundObservation)(nil),
		}
		for _, model := range models {
			if _, err := db.NewCreateTable().Model(model).IfNotExists().Exec(ctx); err != nil {
				return fmt.Errorf("failed to create round table: %w", err)
			}
		}

		return db.RunInTx(ctx, nil, func(ctx context.Context, tx bun.Tx) error {
			// At most one active round per server.
			if _, err := tx.ExecContext(ctx, `
				CREATE UNIQUE INDEX IF NOT EXISTS uq_rounds_active_server
				ON rounds (server_guid) WHERE active;
			`); err != nil {
				return fmt.Errorf("failed to create active round index: %w", err)
			}
			if _, err := tx.ExecContext(ctx, `
				CREATE INDEX IF NOT EXISTS idx_rounds_server_start
				ON rounds (server_guid, start_time);
			`); err != nil {
				return fmt.Errorf("failed to create server/start index: %w", err)
			}
			// Completed rounds ordered by end time drive incremental
			// processors.
			if _, err := tx.ExecContext(ctx, `
				CREATE INDEX IF NOT EXISTS idx_rounds_end_time
				ON rounds (end_time) WHERE NOT active AND NOT deleted;
			`); err != nil {
				return fmt.Errorf("failed to create end time index: %w", err)
			}
			if _, err := tx.ExecContext(ctx, `
				CREATE INDEX IF NOT EXISTS idx_round_observations_round_ts
				ON round_observations (round_id, ts);
			`); err != nil {
				return fmt.Errorf("failed to create round observation index: %w", err)
			}
			return nil
		})
	}, func(ctx context.Context, db *bun.DB) error {
		models := []any{
			(*rounddb.RoundObservation)(nil),
			(*rounddb.Round)(nil),
		}
		for _, model := range models {
			if _, err := db.NewDropTable().Model(model).IfExists().Cascade().Exec(ctx); err != nil {
				return fmt.Errorf("failed to drop round table: %w", err)
			}
		}
		return nil
	})
}
