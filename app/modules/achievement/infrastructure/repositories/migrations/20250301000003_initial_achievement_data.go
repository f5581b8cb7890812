package achievementmigrations

import (
	"context"
	"fmt"

	"github.com/uptrace/bun"

	achievementdb "github.com/frontline-stats/sitrep/app/modules/achievement/infrastructure/repositories"
)

func init() {
	Migrations.MustRegister(func(ctx context.Context, db *bun.DB) error {
		models := []any{
			(*achievementdb.PlayerAchievement)(nil),
			(*achievementdb.ProcessorCheckpoint)(nil),
		}
		for _, model := range models {
			if _, err := db.NewCreateTable().Model(model).IfNotExists().Exec(ctx); err != nil {
				return fmt.Errorf("failed to create achievement table: %w", err)
			}
		}

		return db.RunInTx(ctx, nil, func(ctx context.Context, tx bun.Tx) error {
			// One row per (player, code, round); one-time codes share the
			// empty round sentinel, so re-awarding is a no-op.
			if _, err := tx.ExecContext(ctx, `
				CREATE UNIQUE INDEX IF NOT EXISTS uq_player_achievements_key
				ON player_achievements (player_name, code, round_id);
			`); err != nil {
				return fmt.Errorf("failed to create achievement index: %w", err)
			}
			if _, err := tx.ExecContext(ctx, `
				CREATE INDEX IF NOT EXISTS idx_player_achievements_player
				ON player_achievements (player_name, earned_at);
			`); err != nil {
				return fmt.Errorf("failed to create achievement player index: %w", err)
			}
			// The processor scans rounds in event-time order.
			if _, err := tx.ExecContext(ctx, `
				CREATE INDEX IF NOT EXISTS idx_rounds_end_time
				ON rounds (end_time) WHERE NOT active AND NOT deleted;
			`); err != nil {
				return fmt.Errorf("failed to create round scan index: %w", err)
			}
			return nil
		})
	}, func(ctx context.Context, db *bun.DB) error {
		models := []any{
			(*achievementdb.ProcessorCheckpoint)(nil),
			(*achievementdb.PlayerAchievement)(nil),
		}
		for _, model := range models {
			if _, err := db.NewDropTable().Model(model).IfExists().Cascade().Exec(ctx); err != nil {
				return fmt.Errorf("failed to drop achievement table: %w", err)
			}
		}
		return nil
	})
}
