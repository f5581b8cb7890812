package achievementdb

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/uptrace/bun"

	sharedtypes "github.com/frontline-stats/sitrep/app/shared/types"
)

// AchievementRepository is the bun implementation of Repository.
type AchievementRepository struct {
	DB *bun.DB
}

func NewAchievementRepository(db *bun.DB) *AchievementRepository {
	return &AchievementRepository{DB: db}
}

func (r *AchievementRepository) idb(db bun.IDB) bun.IDB {
	if db != nil {
		return db
	}
	return r.DB
}

func (r *AchievementRepository) GetCheckpoint(ctx context.Context, db bun.IDB, name string) (time.Time, error) {
	checkpoint := new(ProcessorCheckpoint)
	err := r.idb(db).NewSelect().
		Model(checkpoint).
		Where("name = ?", name).
		Scan(ctx)
	if errors.Is(err, sql.ErrNoRows) {
		return time.Time{}, nil
	}
	if err != nil {
		return time.Time{}, fmt.Errorf("failed to read checkpoint: %w", err)
	}
	return checkpoint.Cursor, nil
}

func (r *AchievementRepository) SaveCheckpoint(ctx context.Context, db bun.IDB, name string, cursor time.Time) error {
	checkpoint := &ProcessorCheckpoint{Name: name, Cursor: cursor}
	_, err := r.idb(db).NewInsert().
		Model(checkpoint).
		On("CONFLICT (name) DO UPDATE").
		Set("cursor = EXCLUDED.cursor").
		Set("updated_at = now()").
		Exec(ctx)
	if err != nil {
		return fmt.Errorf("failed to save checkpoint: %w", err)
	}
	return nil
}

func (r *AchievementRepository) CompletedRoundsSince(ctx context.Context, db bun.IDB, cursor time.Time, limit int) ([]CompletedRound, error) {
	var rounds []CompletedRound
	err := r.idb(db).NewRaw(`
		SELECT r.id, r.server_guid, r.map_name, r.end_time
		FROM rounds r
		WHERE NOT r.active AND NOT r.deleted AND r.end_time IS NOT NULL
		  AND r.end_time >= ?
		ORDER BY r.end_time ASC, r.id ASC
		LIMIT ?
	`, cursor, limit).Scan(ctx, &rounds)
	if err != nil {
		return nil, fmt.Errorf("failed to list completed rounds: %w", err)
	}
	return rounds, nil
}

// ParticipantsWithTotals returns a round's contribution rows together with
// each player's completed-round ordinal through that round. Ordering by
// (end_time, round_id) matches the milestone crossing walk, so ordinals never
// shift between scans.
func (r *AchievementRepository) ParticipantsWithTotals(ctx context.Context, db bun.IDB, roundID sharedtypes.RoundID) ([]RoundParticipantStats, error) {
	var participants []RoundParticipantStats
	err := r.idb(db).NewRaw(`
		SELECT prs.player_name, prs.score, prs.kills, prs.deaths, prs.play_minutes,
		       (SELECT COUNT(*)
		        FROM player_round_stats p2
		        JOIN rounds r2 ON r2.id = p2.round_id AND NOT r2.deleted
		        WHERE p2.player_name = prs.player_name
		          AND (r2.end_time < r.end_time
		               OR (r2.end_time = r.end_time AND r2.id <= r.id))
		       ) AS rounds_through
		FROM player_round_stats prs
		JOIN rounds r ON r.id = prs.round_id AND NOT r.deleted
		WHERE prs.round_id = ?
		ORDER BY prs.player_name ASC
	`, roundID).Scan(ctx, &participants)
	if err != nil {
		return nil, fmt.Errorf("failed to list round participants: %w", err)
	}
	return participants, nil
}

func (r *AchievementRepository) InsertAchievements(ctx context.Context, db bun.IDB, rows []*PlayerAchievement) ([]string, error) {
	if len(rows) == 0 {
		return nil, nil
	}
	var codes []string
	_, err := r.idb(db).NewInsert().
		Model(&rows).
		On("CONFLICT (player_name, code, round_id) DO NOTHING").
		Returning("code").
		Exec(ctx, &codes)
	if err != nil {
		return nil, fmt.Errorf("failed to insert achievements: %w", err)
	}
	return codes, nil
}
