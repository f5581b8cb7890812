package rounddb

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/uptrace/bun"

	sharedtypes "github.com/frontline-stats/sitrep/app/shared/types"
)

// RoundRepository is the bun implementation of Repository.
type RoundRepository struct {
	DB *bun.DB
}

func NewRoundRepository(db *bun.DB) *RoundRepository {
	return &RoundRepository{DB: db}
}

func (r *RoundRepository) idb(db bun.IDB) bun.IDB {
	if db != nil {
		return db
	}
	return r.DB
}

func (r *RoundRepository) GetRound(ctx context.Context, db bun.IDB, id sharedtypes.RoundID) (*Round, error) {
	round := new(Round)
	err := r.idb(db).NewSelect().
		Model(round).
		Where("id = ?", id).
		Scan(ctx)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to fetch round: %w", err)
	}
	return round, nil
}

func (r *RoundRepository) ActiveRoundForServer(ctx context.Context, db bun.IDB, guid sharedtypes.ServerGuid) (*Round, error) {
	round := new(Round)
	err := r.idb(db).NewSelect().
		Model(round).
		Where("server_guid = ?", guid).
		Where("active").
		Scan(ctx)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to fetch active round: %w", err)
	}
	return round, nil
}

// InsertRound is a no-op when the derived ID already exists, so both boundary
// detection paths can race on the same boundary safely.
func (r *RoundRepository) InsertRound(ctx context.Context, db bun.IDB, round *Round) error {
	_, err := r.idb(db).NewInsert().
		Model(round).
		On("CONFLICT (id) DO NOTHING").
		Exec(ctx)
	if err != nil {
		return fmt.Errorf("failed to insert round: %w", err)
	}
	return nil
}

func (r *RoundRepository) TouchRound(ctx context.Context, db bun.IDB, id sharedtypes.RoundID, observedAt time.Time, tickets1, tickets2 int) error {
	_, err := r.idb(db).NewUpdate().
		Model((*Round)(nil)).
		Set("last_observation_at = ?", observedAt).
		Set("tickets1 = ?", tickets1).
		Set("tickets2 = ?", tickets2).
		Set("updated_at = ?", time.Now()).
		Where("id = ?", id).
		Where("active").
		Exec(ctx)
	if err != nil {
		return fmt.Errorf("failed to touch round: %w", err)
	}
	return nil
}

func (r *RoundRepository) CompleteRound(ctx context.Context, db bun.IDB, id sharedtypes.RoundID, endTime time.Time, participantCount int) error {
	_, err := r.idb(db).NewUpdate().
		Model((*Round)(nil)).
		Set("end_time = ?", endTime).
		Set("active = FALSE").
		Set("participant_count = ?", participantCount).
		Set("updated_at = ?", time.Now()).
		Where("id = ?", id).
		Exec(ctx)
	if err != nil {
		return fmt.Errorf("failed to complete round: %w", err)
	}
	return nil
}

func (r *RoundRepository) SetRoundDeleted(ctx context.Context, db bun.IDB, id sharedtypes.RoundID, deleted bool) (bool, error) {
	res, err := r.idb(db).NewUpdate().
		Model((*Round)(nil)).
		Set("deleted = ?", deleted).
		Set("updated_at = ?", time.Now()).
		Where("id = ?", id).
		Where("deleted = ?", !deleted).
		Exec(ctx)
	if err != nil {
		return false, fmt.Errorf("failed to update round deleted flag: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("failed to read affected rows: %w", err)
	}
	return affected > 0, nil
}

func (r *RoundRepository) ListRecentRounds(ctx context.Context, db bun.IDB, guid sharedtypes.ServerGuid, limit int) ([]Round, error) {
	if limit <= 0 {
		limit = 50
	}
	var rounds []Round
	q := r.idb(db).NewSelect().
		Model(&rounds).
		Where("deleted = FALSE").
		Order("start_time DESC").
		Limit(limit)
	if guid != "" {
		q = q.Where("server_guid = ?", guid)
	}
	if err := q.Scan(ctx); err != nil {
		return nil, fmt.Errorf("failed to list rounds: %w", err)
	}
	return rounds, nil
}

func (r *RoundRepository) InsertObservation(ctx context.Context, db bun.IDB, observation *RoundObservation) error {
	_, err := r.idb(db).NewInsert().
		Model(observation).
		Exec(ctx)
	if err != nil {
		return fmt.Errorf("failed to insert round observation: %w", err)
	}
	return nil
}

func (r *RoundRepository) SessionsOverlapping(ctx context.Context, db bun.IDB, guid sharedtypes.ServerGuid, mapName string, start, end time.Time) ([]SessionInterval, error) {
	var intervals []SessionInterval
	err := r.idb(db).NewRaw(
		`SELECT ps.player_name, ps.start_time, ps.last_seen_time, ps.total_score, ps.total_kills, ps.total_deaths
		 FROM player_sessions AS ps
		 JOIN players AS p ON p.name = ps.player_name
		 WHERE ps.server_guid = ?
		   AND ps.map_name = ?
		   AND ps.start_time <= ?
		   AND ps.last_seen_time >= ?
		   AND p.bot = FALSE`,
		guid, mapName, end, start,
	).Scan(ctx, &intervals)
	if err != nil {
		return nil, fmt.Errorf("failed to query overlapping sessions: %w", err)
	}
	return intervals, nil
}

func (r *RoundRepository) SessionsInWindow(ctx context.Context, db bun.IDB, guid sharedtypes.ServerGuid, from, to time.Time) ([]WindowSessionInterval, error) {
	var intervals []WindowSessionInterval
	err := r.idb(db).NewRaw(
		`SELECT ps.player_name, ps.map_name, ps.start_time, ps.last_seen_time, ps.total_score, ps.total_kills, ps.total_deaths, ps.active
		 FROM player_sessions AS ps
		 JOIN players AS p ON p.name = ps.player_name
		 WHERE ps.server_guid = ?
		   AND ps.start_time <= ?
		   AND ps.last_seen_time >= ?
		   AND p.bot = FALSE
		 ORDER BY ps.map_name, ps.start_time, ps.last_seen_time`,
		guid, to, from,
	).Scan(ctx, &intervals)
	if err != nil {
		return nil, fmt.Errorf("failed to query window sessions: %w", err)
	}
	return intervals, nil
}

func (r *RoundRepository) RoundsIntersecting(ctx context.Context, db bun.IDB, guid sharedtypes.ServerGuid, mapName string, start, end time.Time) ([]Round, error) {
	var rounds []Round
	err := r.idb(db).NewSelect().
		Model(&rounds).
		Where("server_guid = ?", guid).
		Where("map_name = ?", mapName).
		Where("start_time <= ?", end).
		Where("(end_time IS NULL OR end_time >= ?)", start).
		Order("start_time ASC").
		Scan(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to query intersecting rounds: %w", err)
	}
	return rounds, nil
}

// UpsertCompletedRound inserts a reconciled round, or refreshes the interval
// columns when the derived ID already exists. Columns owned by the live
// paths, like tickets, are left untouched on conflict.
func (r *RoundRepository) UpsertCompletedRound(ctx context.Context, db bun.IDB, round *Round) error {
	_, err := r.idb(db).NewInsert().
		Model(round).
		On("CONFLICT (id) DO UPDATE").
		Set("end_time = EXCLUDED.end_time").
		Set("last_observation_at = EXCLUDED.last_observation_at").
		Set("participant_count = EXCLUDED.participant_count").
		Set("active = FALSE").
		Set("updated_at = ?", time.Now()).
		Exec(ctx)
	if err != nil {
		return fmt.Errorf("failed to upsert round: %w", err)
	}
	return nil
}

func (r *RoundRepository) ServerIdentity(ctx context.Context, db bun.IDB, guid sharedtypes.ServerGuid) (*ServerIdentity, error) {
	identity := new(ServerIdentity)
	err := r.idb(db).NewRaw(
		`SELECT name, game FROM game_servers WHERE guid = ?`, guid,
	).Scan(ctx, identity)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to fetch server identity: %w", err)
	}
	return identity, nil
}
