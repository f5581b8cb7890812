package statsmigrations

import (
	"context"
	"fmt"

	"github.com/uptrace/bun"

	statsdb "github.com/frontline-stats/sitrep/app/modules/stats/infrastructure/repositories"
)

func init() {
	Migrations.MustRegister(func(ctx context.Context, db *bun.DB) error {
		models := []any{
			(*statsdb.PlayerRoundStats)(nil),
			(*statsdb.PlayerStatsLifetime)(nil),
			(*statsdb.PlayerServerStats)(nil),
			(*statsdb.PlayerMapStats)(nil),
			(*statsdb.PlayerServerMapStats)(nil),
			(*statsdb.PlayerDailyStats)(nil),
			(*statsdb.PlayerMilestone)(nil),
			(*statsdb.PlayerBestScore)(nil),
			(*statsdb.ServerMapStats)(nil),
			(*statsdb.ServerPlayerRanking)(nil),
			(*statsdb.BackfillBatch)(nil),
		}
		for _, model := range models {
			if _, err := db.NewCreateTable().Model(model).IfNotExists().Exec(ctx); err != nil {
				return fmt.Errorf("failed to create stats table: %w", err)
			}
		}

		return db.RunInTx(ctx, nil, func(ctx context.Context, tx bun.Tx) error {
			// One milestone row per threshold; duplicate detection is a no-op.
			if _, err := tx.ExecContext(ctx, `
				CREATE UNIQUE INDEX IF NOT EXISTS uq_player_milestones_threshold
				ON player_milestones (player_name, kills_threshold);
			`); err != nil {
				return fmt.Errorf("failed to create milestone index: %w", err)
			}
			// One top-3 slot per round per period.
			if _, err := tx.ExecContext(ctx, `
				CREATE UNIQUE INDEX IF NOT EXISTS uq_player_best_scores_round
				ON player_best_scores (player_name, period, round_id);
			`); err != nil {
				return fmt.Errorf("failed to create best score index: %w", err)
			}
			if _, err := tx.ExecContext(ctx, `
				CREATE INDEX IF NOT EXISTS idx_player_round_stats_round
				ON player_round_stats (round_id);
			`); err != nil {
				return fmt.Errorf("failed to create contribution round index: %w", err)
			}
			if _, err := tx.ExecContext(ctx, `
				CREATE INDEX IF NOT EXISTS idx_player_round_stats_server
				ON player_round_stats (server_guid, player_name);
			`); err != nil {
				return fmt.Errorf("failed to create contribution server index: %w", err)
			}
			if _, err := tx.ExecContext(ctx, `
				CREATE INDEX IF NOT EXISTS idx_player_daily_stats_day
				ON player_daily_stats (player_name, day);
			`); err != nil {
				return fmt.Errorf("failed to create daily stats index: %w", err)
			}
			return nil
		})
	}, func(ctx context.Context, db *bun.DB) error {
		models := []any{
			(*statsdb.BackfillBatch)(nil),
			(*statsdb.ServerPlayerRanking)(nil),
			(*statsdb.ServerMapStats)(nil),
			(*statsdb.PlayerBestScore)(nil),
			(*statsdb.PlayerMilestone)(nil),
			(*statsdb.PlayerDailyStats)(nil),
			(*statsdb.PlayerServerMapStats)(nil),
			(*statsdb.PlayerMapStats)(nil),
			(*statsdb.PlayerServerStats)(nil),
			(*statsdb.PlayerStatsLifetime)(nil),
			(*statsdb.PlayerRoundStats)(nil),
		}
		for _, model := range models {
			if _, err := db.NewDropTable().Model(model).IfExists().Cascade().Exec(ctx); err != nil {
				return fmt.Errorf("failed to drop stats table: %w", err)
			}
		}
		return nil
	})
}
