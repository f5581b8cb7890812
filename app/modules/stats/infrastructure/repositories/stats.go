package statsdb

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/uptrace/bun"

	sharedtypes "github.com/frontline-stats/sitrep/app/shared/types"
)

// liveContributions is the join every recompute shares: stored contributions
// restricted to rounds that still count.
const liveContributions = `
	FROM player_round_stats prs
	JOIN rounds r ON r.id = prs.round_id AND NOT r.deleted`

// StatsRepository is the bun implementation of Repository.
type StatsRepository struct {
	DB *bun.DB
}

func NewStatsRepository(db *bun.DB) *StatsRepository {
	return &StatsRepository{DB: db}
}

func (r *StatsRepository) idb(db bun.IDB) bun.IDB {
	if db != nil {
		return db
	}
	return r.DB
}

func (r *StatsRepository) UpsertRoundContributions(ctx context.Context, db bun.IDB, rows []*PlayerRoundStats) error {
	if len(rows) == 0 {
		return nil
	}
	_, err := r.idb(db).NewInsert().
		Model(&rows).
		On("CONFLICT (player_name, round_id) DO UPDATE").
		Set("server_guid = EXCLUDED.server_guid").
		Set("map_name = EXCLUDED.map_name").
		Set("score = EXCLUDED.score").
		Set("kills = EXCLUDED.kills").
		Set("deaths = EXCLUDED.deaths").
		Set("play_minutes = EXCLUDED.play_minutes").
		Set("updated_at = now()").
		Exec(ctx)
	if err != nil {
		return fmt.Errorf("failed to upsert round contributions: %w", err)
	}
	return nil
}

// RebuildContributionsForPlayers rederives contribution rows for a batch of
// players from raw session history. The session linking rule matches the
// event-driven path exactly, so both paths write identical rows for the same
// round.
func (r *StatsRepository) RebuildContributionsForPlayers(ctx context.Context, db bun.IDB, players []sharedtypes.PlayerName, from, to time.Time) (int64, error) {
	if len(players) == 0 {
		return 0, nil
	}
	res, err := r.idb(db).ExecContext(ctx, `
		INSERT INTO player_round_stats
			(player_name, round_id, server_guid, map_name, score, kills, deaths, play_minutes, created_at, updated_at)
		SELECT ps.player_name, r.id, r.server_guid, r.map_name,
		       SUM(ps.total_score), SUM(ps.total_kills), SUM(ps.total_deaths),
		       SUM(EXTRACT(EPOCH FROM (LEAST(ps.last_seen_time, r.end_time) - GREATEST(ps.start_time, r.start_time))) / 60.0),
		       now(), now()
		FROM rounds r
		JOIN player_sessions ps
		  ON ps.server_guid = r.server_guid
		 AND ps.map_name = r.map_name
		 AND ps.start_time <= r.end_time
		 AND ps.last_seen_time >= r.start_time
		JOIN players p ON p.name = ps.player_name AND p.bot = FALSE
		WHERE NOT r.active AND NOT r.deleted AND r.end_time IS NOT NULL
		  AND r.end_time >= ? AND r.end_time <= ?
		  AND ps.player_name IN (?)
		  AND (LEAST(ps.last_seen_time, r.end_time) > GREATEST(ps.start_time, r.start_time)
		       OR (ps.start_time = ps.last_seen_time
		           AND ps.start_time >= r.start_time AND ps.start_time <= r.end_time))
		GROUP BY ps.player_name, r.id, r.server_guid, r.map_name
		ON CONFLICT (player_name, round_id) DO UPDATE SET
			server_guid = EXCLUDED.server_guid,
			map_name = EXCLUDED.map_name,
			score = EXCLUDED.score,
			kills = EXCLUDED.kills,
			deaths = EXCLUDED.deaths,
			play_minutes = EXCLUDED.play_minutes,
			updated_at = now()
	`, from, to, bun.In(players))
	if err != nil {
		return 0, fmt.Errorf("failed to rebuild contributions: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("failed to read affected rows: %w", err)
	}
	return affected, nil
}

func (r *StatsRepository) RoundContributors(ctx context.Context, db bun.IDB, roundID sharedtypes.RoundID) ([]RoundContributor, error) {
	var contributors []RoundContributor
	err := r.idb(db).NewRaw(
		`SELECT DISTINCT player_name, server_guid FROM player_round_stats WHERE round_id = ?`,
		roundID,
	).Scan(ctx, &contributors)
	if err != nil {
		return nil, fmt.Errorf("failed to list round contributors: %w", err)
	}
	return contributors, nil
}

func (r *StatsRepository) LifetimeKills(ctx context.Context, db bun.IDB, player sharedtypes.PlayerName) (int, error) {
	var kills int
	err := r.idb(db).NewSelect().
		Model((*PlayerStatsLifetime)(nil)).
		Column("total_kills").
		Where("player_name = ?", player).
		Scan(ctx, &kills)
	if errors.Is(err, sql.ErrNoRows) {
		return 0, nil
	}
	if err != nil {
		return 0, fmt.Errorf("failed to read lifetime kills: %w", err)
	}
	return kills, nil
}

func (r *StatsRepository) RecomputeLifetime(ctx context.Context, db bun.IDB, player sharedtypes.PlayerName) error {
	idb := r.idb(db)
	_, err := idb.ExecContext(ctx, `
		INSERT INTO player_stats_lifetime
			(player_name, total_kills, total_deaths, total_score, total_play_minutes,
			 kd_ratio, kills_per_minute, rounds_played, last_round_at, updated_at)
		SELECT prs.player_name,
		       SUM(prs.kills), SUM(prs.deaths), SUM(prs.score), SUM(prs.play_minutes),
		       CASE WHEN SUM(prs.deaths) > 0
		            THEN SUM(prs.kills)::float8 / SUM(prs.deaths)
		            ELSE SUM(prs.kills)::float8 END,
		       CASE WHEN SUM(prs.play_minutes) > 0
		            THEN SUM(prs.kills) / SUM(prs.play_minutes)
		            ELSE 0 END,
		       COUNT(*), MAX(r.end_time), now()
		`+liveContributions+`
		WHERE prs.player_name = ?
		GROUP BY prs.player_name
		ON CONFLICT (player_name) DO UPDATE SET
			total_kills = EXCLUDED.total_kills,
			total_deaths = EXCLUDED.total_deaths,
			total_score = EXCLUDED.total_score,
			total_play_minutes = EXCLUDED.total_play_minutes,
			kd_ratio = EXCLUDED.kd_ratio,
			kills_per_minute = EXCLUDED.kills_per_minute,
			rounds_played = EXCLUDED.rounds_played,
			last_round_at = EXCLUDED.last_round_at,
			updated_at = EXCLUDED.updated_at
	`, player)
	if err != nil {
		return fmt.Errorf("failed to recompute lifetime stats: %w", err)
	}

	// A player whose every round was deleted keeps the row, zeroed.
	_, err = idb.ExecContext(ctx, `
		UPDATE player_stats_lifetime SET
			total_kills = 0, total_deaths = 0, total_score = 0, total_play_minutes = 0,
			kd_ratio = 0, kills_per_minute = 0, rounds_played = 0,
			last_round_at = NULL, updated_at = now()
		WHERE player_name = ?
		  AND NOT EXISTS (SELECT 1 `+liveContributions+` WHERE prs.player_name = ?)
	`, player, player)
	if err != nil {
		return fmt.Errorf("failed to zero lifetime stats: %w", err)
	}
	return nil
}

func (r *StatsRepository) RecomputeServerStats(ctx context.Context, db bun.IDB, player sharedtypes.PlayerName) error {
	idb := r.idb(db)
	_, err := idb.ExecContext(ctx, `
		WITH contrib AS (
			SELECT prs.player_name, prs.server_guid, prs.map_name,
			       prs.score, prs.kills, prs.deaths, prs.play_minutes, r.end_time
			`+liveContributions+`
			WHERE prs.player_name = ?
		), totals AS (
			SELECT player_name, server_guid,
			       SUM(kills) AS kills, SUM(deaths) AS deaths, SUM(score) AS score,
			       SUM(play_minutes) AS play_minutes, COUNT(*) AS rounds,
			       MAX(end_time) AS last_round_at
			FROM contrib GROUP BY player_name, server_guid
		), best AS (
			SELECT DISTINCT ON (player_name, server_guid)
			       player_name, server_guid, score AS best_score,
			       map_name AS best_map, end_time AS best_at
			FROM contrib
			ORDER BY player_name, server_guid, score DESC, end_time ASC
		)
		INSERT INTO player_server_stats
			(player_name, server_guid, total_kills, total_deaths, total_score,
			 total_play_minutes, kd_ratio, rounds_played, last_round_at,
			 highest_round_score, highest_round_score_map, highest_round_score_at, updated_at)
		SELECT t.player_name, t.server_guid, t.kills, t.deaths, t.score, t.play_minutes,
		       CASE WHEN t.deaths > 0 THEN t.kills::float8 / t.deaths ELSE t.kills::float8 END,
		       t.rounds, t.last_round_at,
		       b.best_score, b.best_map, b.best_at, now()
		FROM totals t
		JOIN best b ON b.player_name = t.player_name AND b.server_guid = t.server_guid
		ON CONFLICT (player_name, server_guid) DO UPDATE SET
			total_kills = EXCLUDED.total_kills,
			total_deaths = EXCLUDED.total_deaths,
			total_score = EXCLUDED.total_score,
			total_play_minutes = EXCLUDED.total_play_minutes,
			kd_ratio = EXCLUDED.kd_ratio,
			rounds_played = EXCLUDED.rounds_played,
			last_round_at = EXCLUDED.last_round_at,
			highest_round_score = EXCLUDED.highest_round_score,
			highest_round_score_map = EXCLUDED.highest_round_score_map,
			highest_round_score_at = EXCLUDED.highest_round_score_at,
			updated_at = EXCLUDED.updated_at
	`, player)
	if err != nil {
		return fmt.Errorf("failed to recompute server stats: %w", err)
	}

	_, err = idb.ExecContext(ctx, `
		DELETE FROM player_server_stats t
		WHERE t.player_name = ?
		  AND NOT EXISTS (SELECT 1 `+liveContributions+`
		                  WHERE prs.player_name = t.player_name
		                    AND prs.server_guid = t.server_guid)
	`, player)
	if err != nil {
		return fmt.Errorf("failed to prune server stats: %w", err)
	}
	return nil
}

func (r *StatsRepository) RecomputeMapStats(ctx context.Context, db bun.IDB, player sharedtypes.PlayerName) error {
	idb := r.idb(db)
	_, err := idb.ExecContext(ctx, `
		INSERT INTO player_map_stats
			(player_name, map_name, total_kills, total_deaths, total_score,
			 total_play_minutes, kd_ratio, rounds_played, last_played_at, updated_at)
		SELECT prs.player_name, prs.map_name,
		       SUM(prs.kills), SUM(prs.deaths), SUM(prs.score), SUM(prs.play_minutes),
		       CASE WHEN SUM(prs.deaths) > 0
		            THEN SUM(prs.kills)::float8 / SUM(prs.deaths)
		            ELSE SUM(prs.kills)::float8 END,
		       COUNT(*), MAX(r.end_time), now()
		`+liveContributions+`
		WHERE prs.player_name = ?
		GROUP BY prs.player_name, prs.map_name
		ON CONFLICT (player_name, map_name) DO UPDATE SET
			total_kills = EXCLUDED.total_kills,
			total_deaths = EXCLUDED.total_deaths,
			total_score = EXCLUDED.total_score,
			total_play_minutes = EXCLUDED.total_play_minutes,
			kd_ratio = EXCLUDED.kd_ratio,
			rounds_played = EXCLUDED.rounds_played,
			last_played_at = EXCLUDED.last_played_at,
			updated_at = EXCLUDED.updated_at
	`, player)
	if err != nil {
		return fmt.Errorf("failed to recompute map stats: %w", err)
	}

	_, err = idb.ExecContext(ctx, `
		DELETE FROM player_map_stats t
		WHERE t.player_name = ?
		  AND NOT EXISTS (SELECT 1 `+liveContributions+`
		                  WHERE prs.player_name = t.player_name
		                    AND prs.map_name = t.map_name)
	`, player)
	if err != nil {
		return fmt.Errorf("failed to prune map stats: %w", err)
	}
	return nil
}

func (r *StatsRepository) RecomputeServerMapPlayerStats(ctx context.Context, db bun.IDB, player sharedtypes.PlayerName) error {
	idb := r.idb(db)
	_, err := idb.ExecContext(ctx, `
		INSERT INTO player_server_map_stats
			(player_name, server_guid, map_name, total_kills, total_deaths, total_score,
			 total_play_minutes, kd_ratio, rounds_played, last_played_at, updated_at)
		SELECT prs.player_name, prs.server_guid, prs.map_name,
		       SUM(prs.kills), SUM(prs.deaths), SUM(prs.score), SUM(prs.play_minutes),
		       CASE WHEN SUM(prs.deaths) > 0
		            THEN SUM(prs.kills)::float8 / SUM(prs.deaths)
		            ELSE SUM(prs.kills)::float8 END,
		       COUNT(*), MAX(r.end_time), now()
		`+liveContributions+`
		WHERE prs.player_name = ?
		GROUP BY prs.player_name, prs.server_guid, prs.map_name
		ON CONFLICT (player_name, server_guid, map_name) DO UPDATE SET
			total_kills = EXCLUDED.total_kills,
			total_deaths = EXCLUDED.total_deaths,
			total_score = EXCLUDED.total_score,
			total_play_minutes = EXCLUDED.total_play_minutes,
			kd_ratio = EXCLUDED.kd_ratio,
			rounds_played = EXCLUDED.rounds_played,
			last_played_at = EXCLUDED.last_played_at,
			updated_at = EXCLUDED.updated_at
	`, player)
	if err != nil {
		return fmt.Errorf("failed to recompute server map stats: %w", err)
	}

	_, err = idb.ExecContext(ctx, `
		DELETE FROM player_server_map_stats t
		WHERE t.player_name = ?
		  AND NOT EXISTS (SELECT 1 `+liveContributions+`
		                  WHERE prs.player_name = t.player_name
		                    AND prs.server_guid = t.server_guid
		                    AND prs.map_name = t.map_name)
	`, player)
	if err != nil {
		return fmt.Errorf("failed to prune server map stats: %w", err)
	}
	return nil
}

func (r *StatsRepository) RecomputeDailyStats(ctx context.Context, db bun.IDB, player sharedtypes.PlayerName) error {
	idb := r.idb(db)
	_, err := idb.ExecContext(ctx, `
		INSERT INTO player_daily_stats
			(player_name, day, kills, deaths, score, play_minutes, rounds_played, updated_at)
		SELECT prs.player_name, (r.end_time AT TIME ZONE 'UTC')::date,
		       SUM(prs.kills), SUM(prs.deaths), SUM(prs.score), SUM(prs.play_minutes),
		       COUNT(*), now()
		`+liveContributions+`
		WHERE prs.player_name = ?
		GROUP BY prs.player_name, (r.end_time AT TIME ZONE 'UTC')::date
		ON CONFLICT (player_name, day) DO UPDATE SET
			kills = EXCLUDED.kills,
			deaths = EXCLUDED.deaths,
			score = EXCLUDED.score,
			play_minutes = EXCLUDED.play_minutes,
			rounds_played = EXCLUDED.rounds_played,
			updated_at = EXCLUDED.updated_at
	`, player)
	if err != nil {
		return fmt.Errorf("failed to recompute daily stats: %w", err)
	}

	_, err = idb.ExecContext(ctx, `
		DELETE FROM player_daily_stats t
		WHERE t.player_name = ?
		  AND NOT EXISTS (SELECT 1 `+liveContributions+`
		                  WHERE prs.player_name = t.player_name
		                    AND (r.end_time AT TIME ZONE 'UTC')::date = t.day)
	`, player)
	if err != nil {
		return fmt.Errorf("failed to prune daily stats: %w", err)
	}
	return nil
}

// FindMilestoneCrossing walks the player's rounds in event-time order and
// returns the first round at which cumulative kills reached the threshold.
// The same query serves the live path and backfill, so attribution never
// depends on which path detected the crossing.
func (r *StatsRepository) FindMilestoneCrossing(ctx context.Context, db bun.IDB, player sharedtypes.PlayerName, threshold int) (*MilestoneCrossing, error) {
	crossing := new(MilestoneCrossing)
	err := r.idb(db).NewRaw(`
		SELECT round_id, achieved_at FROM (
			SELECT prs.round_id, r.end_time AS achieved_at,
			       SUM(prs.kills) OVER (ORDER BY r.end_time ASC, prs.round_id ASC) AS cumulative
			`+liveContributions+`
			WHERE prs.player_name = ?
		) q
		WHERE cumulative >= ?
		ORDER BY achieved_at ASC, round_id ASC
		LIMIT 1
	`, player, threshold).Scan(ctx, crossing)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to find milestone crossing: %w", err)
	}
	return crossing, nil
}

func (r *StatsRepository) InsertMilestone(ctx context.Context, db bun.IDB, milestone *PlayerMilestone) (bool, error) {
	res, err := r.idb(db).NewInsert().
		Model(milestone).
		On("CONFLICT (player_name, kills_threshold) DO NOTHING").
		Exec(ctx)
	if err != nil {
		return false, fmt.Errorf("failed to insert milestone: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("failed to read affected rows: %w", err)
	}
	return affected > 0, nil
}

func (r *StatsRepository) ListBestScores(ctx context.Context, db bun.IDB, player sharedtypes.PlayerName, period sharedtypes.Period) ([]PlayerBestScore, error) {
	var scores []PlayerBestScore
	err := r.idb(db).NewSelect().
		Model(&scores).
		Where("player_name = ?", player).
		Where("period = ?", period).
		Order("score ASC").
		Order("achieved_at ASC").
		Scan(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to list best scores: %w", err)
	}
	return scores, nil
}

func (r *StatsRepository) InsertBestScore(ctx context.Context, db bun.IDB, best *PlayerBestScore) (bool, error) {
	res, err := r.idb(db).NewInsert().
		Model(best).
		On("CONFLICT (player_name, period, round_id) DO NOTHING").
		Exec(ctx)
	if err != nil {
		return false, fmt.Errorf("failed to insert best score: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("failed to read affected rows: %w", err)
	}
	return affected > 0, nil
}

func (r *StatsRepository) DeleteBestScore(ctx context.Context, db bun.IDB, id int64) error {
	_, err := r.idb(db).NewDelete().
		Model((*PlayerBestScore)(nil)).
		Where("id = ?", id).
		Exec(ctx)
	if err != nil {
		return fmt.Errorf("failed to delete best score: %w", err)
	}
	return nil
}

func (r *StatsRepository) PruneExpiredBestScores(ctx context.Context, db bun.IDB, player sharedtypes.PlayerName, period sharedtypes.Period, cutoff time.Time) error {
	_, err := r.idb(db).NewDelete().
		Model((*PlayerBestScore)(nil)).
		Where("player_name = ?", player).
		Where("period = ?", period).
		Where("achieved_at < ?", cutoff).
		Exec(ctx)
	if err != nil {
		return fmt.Errorf("failed to prune expired best scores: %w", err)
	}
	return nil
}

// PruneDeletedBestScores drops best-score entries whose round was soft
// deleted, so admin deletions cannot keep a score on the board.
func (r *StatsRepository) PruneDeletedBestScores(ctx context.Context, db bun.IDB, player sharedtypes.PlayerName) error {
	_, err := r.idb(db).ExecContext(ctx, `
		DELETE FROM player_best_scores t
		WHERE t.player_name = ?
		  AND EXISTS (SELECT 1 FROM rounds r WHERE r.id = t.round_id AND r.deleted)
	`, player)
	if err != nil {
		return fmt.Errorf("failed to prune deleted best scores: %w", err)
	}
	return nil
}

// RebuildAllTimeBestScores makes the all-time period a pure function of the
// contribution store: exactly the three highest round scores, earlier rounds
// winning ties. Rolling periods stay displacement-maintained by the live path.
func (r *StatsRepository) RebuildAllTimeBestScores(ctx context.Context, db bun.IDB, player sharedtypes.PlayerName) error {
	idb := r.idb(db)
	_, err := idb.ExecContext(ctx, `
		INSERT INTO player_best_scores
			(player_name, period, score, map_name, server_guid, round_id, achieved_at, created_at)
		SELECT q.player_name, ?, q.score, q.map_name, q.server_guid, q.round_id, q.achieved_at, now()
		FROM (
			SELECT prs.player_name, prs.score, prs.map_name, prs.server_guid,
			       prs.round_id, r.end_time AS achieved_at
			`+liveContributions+`
			WHERE prs.player_name = ?
			ORDER BY prs.score DESC, r.end_time ASC
			LIMIT 3
		) q
		ON CONFLICT (player_name, period, round_id) DO NOTHING
	`, sharedtypes.PeriodAllTime, player)
	if err != nil {
		return fmt.Errorf("failed to rebuild all-time best scores: %w", err)
	}

	_, err = idb.ExecContext(ctx, `
		DELETE FROM player_best_scores t
		WHERE t.player_name = ? AND t.period = ?
		  AND t.round_id NOT IN (
			SELECT prs.round_id
			`+liveContributions+`
			WHERE prs.player_name = ?
			ORDER BY prs.score DESC, r.end_time ASC
			LIMIT 3
		  )
	`, player, sharedtypes.PeriodAllTime, player)
	if err != nil {
		return fmt.Errorf("failed to trim all-time best scores: %w", err)
	}
	return nil
}

func (r *StatsRepository) RecomputeServerMapStats(ctx context.Context, db bun.IDB, servers []sharedtypes.ServerGuid) error {
	if len(servers) == 0 {
		return nil
	}
	idb := r.idb(db)
	_, err := idb.ExecContext(ctx, `
		INSERT INTO server_map_stats
			(server_guid, map_name, rounds_played, total_kills, total_score, last_played_at, updated_at)
		SELECT r.server_guid, r.map_name, COUNT(DISTINCT r.id),
		       COALESCE(SUM(prs.kills), 0), COALESCE(SUM(prs.score), 0),
		       MAX(r.end_time), now()
		FROM rounds r
		LEFT JOIN player_round_stats prs ON prs.round_id = r.id
		WHERE r.server_guid IN (?)
		  AND NOT r.active AND NOT r.deleted AND r.end_time IS NOT NULL
		GROUP BY r.server_guid, r.map_name
		ON CONFLICT (server_guid, map_name) DO UPDATE SET
			rounds_played = EXCLUDED.rounds_played,
			total_kills = EXCLUDED.total_kills,
			total_score = EXCLUDED.total_score,
			last_played_at = EXCLUDED.last_played_at,
			updated_at = EXCLUDED.updated_at
	`, bun.In(servers))
	if err != nil {
		return fmt.Errorf("failed to recompute server map stats: %w", err)
	}

	_, err = idb.ExecContext(ctx, `
		DELETE FROM server_map_stats t
		WHERE t.server_guid IN (?)
		  AND NOT EXISTS (SELECT 1 FROM rounds r
		                  WHERE r.server_guid = t.server_guid AND r.map_name = t.map_name
		                    AND NOT r.active AND NOT r.deleted AND r.end_time IS NOT NULL)
	`, bun.In(servers))
	if err != nil {
		return fmt.Errorf("failed to prune server map stats: %w", err)
	}
	return nil
}

// RecomputeServerRankings rebuilds one server's whole ladder. Delete and
// insert run in the caller's transaction, so readers never see a half ladder.
func (r *StatsRepository) RecomputeServerRankings(ctx context.Context, db bun.IDB, server sharedtypes.ServerGuid) error {
	idb := r.idb(db)
	if _, err := idb.ExecContext(ctx,
		`DELETE FROM server_player_rankings WHERE server_guid = ?`, server,
	); err != nil {
		return fmt.Errorf("failed to clear server rankings: %w", err)
	}

	_, err := idb.ExecContext(ctx, `
		INSERT INTO server_player_rankings
			(server_guid, player_name, rank, score, kills, deaths, play_minutes, updated_at)
		SELECT prs.server_guid, prs.player_name,
		       ROW_NUMBER() OVER (ORDER BY SUM(prs.score) DESC, SUM(prs.kills) DESC, prs.player_name ASC),
		       SUM(prs.score), SUM(prs.kills), SUM(prs.deaths), SUM(prs.play_minutes), now()
		`+liveContributions+`
		WHERE prs.server_guid = ?
		GROUP BY prs.server_guid, prs.player_name
	`, server)
	if err != nil {
		return fmt.Errorf("failed to recompute server rankings: %w", err)
	}
	return nil
}

// DistinctPlayersByRecency lists non-bot players with session activity in the
// window, most recently seen first. Recency ordering is the backfill tier:
// active players come back first and batch indexes stay stable for a window.
func (r *StatsRepository) DistinctPlayersByRecency(ctx context.Context, db bun.IDB, from, to time.Time, server sharedtypes.ServerGuid) ([]sharedtypes.PlayerName, error) {
	var players []sharedtypes.PlayerName
	query := `
		SELECT ps.player_name
		FROM player_sessions ps
		JOIN players p ON p.name = ps.player_name AND p.bot = FALSE
		WHERE ps.start_time <= ? AND ps.last_seen_time >= ?`
	args := []any{to, from}
	if server != "" {
		query += ` AND ps.server_guid = ?`
		args = append(args, server)
	}
	query += `
		GROUP BY ps.player_name
		ORDER BY MAX(ps.last_seen_time) DESC, ps.player_name ASC`
	if err := r.idb(db).NewRaw(query, args...).Scan(ctx, &players); err != nil {
		return nil, fmt.Errorf("failed to list players by recency: %w", err)
	}
	return players, nil
}

func (r *StatsRepository) ServersInWindow(ctx context.Context, db bun.IDB, from, to time.Time, server sharedtypes.ServerGuid) ([]sharedtypes.ServerGuid, error) {
	var servers []sharedtypes.ServerGuid
	query := `
		SELECT DISTINCT server_guid FROM rounds
		WHERE NOT active AND NOT deleted AND end_time IS NOT NULL
		  AND end_time >= ? AND end_time <= ?`
	args := []any{from, to}
	if server != "" {
		query += ` AND server_guid = ?`
		args = append(args, server)
	}
	if err := r.idb(db).NewRaw(query, args...).Scan(ctx, &servers); err != nil {
		return nil, fmt.Errorf("failed to list servers in window: %w", err)
	}
	return servers, nil
}

func (r *StatsRepository) HasBackfillBatch(ctx context.Context, db bun.IDB, runKey string, batchIndex int) (bool, error) {
	exists, err := r.idb(db).NewSelect().
		Model((*BackfillBatch)(nil)).
		Where("run_key = ?", runKey).
		Where("batch_index = ?", batchIndex).
		Exists(ctx)
	if err != nil {
		return false, fmt.Errorf("failed to check backfill batch: %w", err)
	}
	return exists, nil
}

func (r *StatsRepository) RecordBackfillBatch(ctx context.Context, db bun.IDB, batch *BackfillBatch) error {
	_, err := r.idb(db).NewInsert().
		Model(batch).
		On("CONFLICT (run_key, batch_index) DO NOTHING").
		Exec(ctx)
	if err != nil {
		return fmt.Errorf("failed to record backfill batch: %w", err)
	}
	return nil
}

func (r *StatsRepository) DailyStatsSince(ctx context.Context, db bun.IDB, player sharedtypes.PlayerName, since time.Time) ([]PlayerDailyStats, error) {
	var days []PlayerDailyStats
	err := r.idb(db).NewSelect().
		Model(&days).
		Where("player_name = ?", player).
		Where("day >= ?", since).
		Order("day ASC").
		Scan(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to read daily stats: %w", err)
	}
	return days, nil
}

func (r *StatsRepository) ServerRankings(ctx context.Context, db bun.IDB, server sharedtypes.ServerGuid, limit int) ([]ServerPlayerRanking, error) {
	if limit <= 0 {
		limit = 100
	}
	var rankings []ServerPlayerRanking
	err := r.idb(db).NewSelect().
		Model(&rankings).
		Where("server_guid = ?", server).
		Order("rank ASC").
		Limit(limit).
		Scan(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to read server rankings: %w", err)
	}
	return rankings, nil
}

func (r *StatsRepository) GetLifetime(ctx context.Context, db bun.IDB, player sharedtypes.PlayerName) (*PlayerStatsLifetime, error) {
	lifetime := new(PlayerStatsLifetime)
	err := r.idb(db).NewSelect().
		Model(lifetime).
		Where("player_name = ?", player).
		Scan(ctx)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read lifetime stats: %w", err)
	}
	return lifetime, nil
}
