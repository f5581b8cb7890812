package sessiondb

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/uptrace/bun"

	sharedtypes "github.com/frontline-stats/sitrep/app/shared/types"
)

// SessionRepository is the bun-backed Repository implementation.
type SessionRepository struct {
	DB *bun.DB
}

func NewSessionRepository(db *bun.DB) *SessionRepository {
	return &SessionRepository{DB: db}
}

func (r *SessionRepository) idb(db bun.IDB) bun.IDB {
	if db != nil {
		return db
	}
	return r.DB
}

func (r *SessionRepository) GetServer(ctx context.Context, db bun.IDB, guid sharedtypes.ServerGuid) (*GameServer, error) {
	server := new(GameServer)
	err := r.idb(db).NewSelect().
		Model(server).
		Where("guid = ?", guid).
		Scan(ctx)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to fetch server %s: %w", guid, err)
	}
	return server, nil
}

func (r *SessionRepository) UpsertServer(ctx context.Context, db bun.IDB, server *GameServer) error {
	_, err := r.idb(db).NewInsert().
		Model(server).
		On("CONFLICT (guid) DO UPDATE").
		Set("name = EXCLUDED.name").
		Set("address = EXCLUDED.address").
		Set("port = EXCLUDED.port").
		Set("current_map = EXCLUDED.current_map").
		Set("current_game_type = EXCLUDED.current_game_type").
		Set("max_players = EXCLUDED.max_players").
		Set("join_link = EXCLUDED.join_link").
		Set("last_seen = EXCLUDED.last_seen").
		Set("updated_at = now()").
		Exec(ctx)
	if err != nil {
		return fmt.Errorf("failed to upsert server %s: %w", server.Guid, err)
	}
	return nil
}

func (r *SessionRepository) UpdateServerGeo(ctx context.Context, db bun.IDB, guid sharedtypes.ServerGuid, geo ServerGeo) error {
	_, err := r.idb(db).NewUpdate().
		Model((*GameServer)(nil)).
		Set("country = ?", geo.Country).
		Set("region = ?", geo.Region).
		Set("city = ?", geo.City).
		Set("latitude = ?", geo.Latitude).
		Set("longitude = ?", geo.Longitude).
		Set("updated_at = now()").
		Where("guid = ?", guid).
		Exec(ctx)
	if err != nil {
		return fmt.Errorf("failed to update geo for server %s: %w", guid, err)
	}
	return nil
}

func (r *SessionRepository) ListServers(ctx context.Context, db bun.IDB) ([]GameServer, error) {
	var servers []GameServer
	err := r.idb(db).NewSelect().
		Model(&servers).
		Order("name ASC").
		Scan(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to list servers: %w", err)
	}
	return servers, nil
}

func (r *SessionRepository) UpsertPlayer(ctx context.Context, db bun.IDB, name sharedtypes.PlayerName, seenAt time.Time, bot bool) error {
	player := &Player{
		Name:      name,
		FirstSeen: seenAt,
		LastSeen:  seenAt,
		Bot:       bot,
	}
	_, err := r.idb(db).NewInsert().
		Model(player).
		On("CONFLICT (name) DO UPDATE").
		Set("last_seen = EXCLUDED.last_seen").
		Set("bot = EXCLUDED.bot").
		Set("updated_at = now()").
		Exec(ctx)
	if err != nil {
		return fmt.Errorf("failed to upsert player %s: %w", name, err)
	}
	return nil
}

func (r *SessionRepository) AddPlayMinutes(ctx context.Context, db bun.IDB, name sharedtypes.PlayerName, minutes float64) error {
	if minutes <= 0 {
		return nil
	}
	_, err := r.idb(db).NewUpdate().
		Model((*Player)(nil)).
		Set("total_play_minutes = total_play_minutes + ?", minutes).
		Set("updated_at = now()").
		Where("name = ?", name).
		Exec(ctx)
	if err != nil {
		return fmt.Errorf("failed to accrue play minutes for %s: %w", name, err)
	}
	return nil
}

func (r *SessionRepository) GetPlayer(ctx context.Context, db bun.IDB, name sharedtypes.PlayerName) (*Player, error) {
	player := new(Player)
	err := r.idb(db).NewSelect().
		Model(player).
		Where("name = ?", name).
		Scan(ctx)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to fetch player %s: %w", name, err)
	}
	return player, nil
}

func (r *SessionRepository) ActiveSessionsForServer(ctx context.Context, db bun.IDB, guid sharedtypes.ServerGuid) ([]PlayerSession, error) {
	var sessions []PlayerSession
	err := r.idb(db).NewSelect().
		Model(&sessions).
		Where("server_guid = ?", guid).
		Where("active").
		Scan(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch active sessions for server %s: %w", guid, err)
	}
	return sessions, nil
}

func (r *SessionRepository) InsertSession(ctx context.Context, db bun.IDB, session *PlayerSession) error {
	_, err := r.idb(db).NewInsert().
		Model(session).
		Exec(ctx)
	if err != nil {
		return fmt.Errorf("failed to insert session for %s on %s: %w", session.PlayerName, session.ServerGuid, err)
	}
	return nil
}

func (r *SessionRepository) UpdateSessionProgress(ctx context.Context, db bun.IDB, session *PlayerSession) error {
	_, err := r.idb(db).NewUpdate().
		Model(session).
		Column("last_seen_time", "observation_count", "total_score", "total_kills", "total_deaths").
		Set("updated_at = now()").
		WherePK().
		Exec(ctx)
	if err != nil {
		return fmt.Errorf("failed to update session %d: %w", session.ID, err)
	}
	return nil
}

func (r *SessionRepository) CloseSessions(ctx context.Context, db bun.IDB, ids []sharedtypes.SessionID) error {
	if len(ids) == 0 {
		return nil
	}
	_, err := r.idb(db).NewUpdate().
		Model((*PlayerSession)(nil)).
		Set("active = false").
		Set("updated_at = now()").
		Where("id IN (?)", bun.In(ids)).
		Exec(ctx)
	if err != nil {
		return fmt.Errorf("failed to close %d sessions: %w", len(ids), err)
	}
	return nil
}

func (r *SessionRepository) CloseTimedOutSessions(ctx context.Context, db bun.IDB, cutoff time.Time) ([]PlayerSession, error) {
	var closed []PlayerSession
	_, err := r.idb(db).NewUpdate().
		Model((*PlayerSession)(nil)).
		Set("active = false").
		Set("updated_at = now()").
		Where("active").
		Where("last_seen_time < ?", cutoff).
		Returning("*").
		Exec(ctx, &closed)
	if err != nil {
		return nil, fmt.Errorf("failed to close timed out sessions: %w", err)
	}
	return closed, nil
}

func (r *SessionRepository) InsertObservation(ctx context.Context, db bun.IDB, observation *PlayerObservation) error {
	_, err := r.idb(db).NewInsert().
		Model(observation).
		Exec(ctx)
	if err != nil {
		return fmt.Errorf("failed to insert observation for session %d: %w", observation.SessionID, err)
	}
	return nil
}
