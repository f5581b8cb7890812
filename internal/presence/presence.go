// Package presence pushes live server status into Redis so adjacent services
// (site frontends, bots) can read who is online without touching Postgres.
// Writes are best effort and the service never reads this cache back.
package presence

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/redis/go-redis/v9"

	sharedtypes "github.com/frontline-stats/sitrep/app/shared/types"
	"github.com/frontline-stats/sitrep/internal/observability/attr"
)

const (
	liveServersKey = "live_servers"
	liveServersTTL = 5 * time.Minute
)

// LiveServer is the JSON shape stored per server in the live_servers hash.
type LiveServer struct {
	Name        string    `json:"name"`
	Game        string    `json:"game"`
	MapName     string    `json:"map_name"`
	GameType    string    `json:"game_type"`
	PlayerCount int       `json:"player_count"`
	MaxPlayers  int       `json:"max_players"`
	JoinLink    string    `json:"join_link"`
	UpdatedAt   time.Time `json:"updated_at"`
}

// Cache writes live server state. A nil Cache is a valid no-op, which keeps
// Redis strictly optional.
type Cache struct {
	client *redis.Client
	logger *slog.Logger
}

// NewCache connects to Redis and verifies the connection.
func NewCache(ctx context.Context, url string, logger *slog.Logger) (*Cache, error) {
	opts, err := redis.ParseURL(url)
	if err != nil {
		return nil, fmt.Errorf("failed to parse redis url: %w", err)
	}
	client := redis.NewClient(opts)
	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("failed to ping redis: %w", err)
	}
	return &Cache{client: client, logger: logger}, nil
}

// SetLiveServer records a server's current state in the live_servers hash.
// Failures are logged and swallowed.
func (c *Cache) SetLiveServer(ctx context.Context, guid sharedtypes.ServerGuid, state LiveServer) {
	if c == nil {
		return
	}
	data, err := json.Marshal(state)
	if err != nil {
		c.logger.Error("failed to marshal live server state", attr.Error(err))
		return
	}
	pipe := c.client.Pipeline()
	pipe.HSet(ctx, liveServersKey, string(guid), data)
	pipe.Expire(ctx, liveServersKey, liveServersTTL)
	if _, err := pipe.Exec(ctx); err != nil {
		c.logger.Warn("failed to update live server cache",
			attr.ServerGuid("server_guid", guid),
			attr.Error(err),
		)
	}
}

// RemoveLiveServer drops a server from the live hash, for servers that have
// gone quiet.
func (c *Cache) RemoveLiveServer(ctx context.Context, guid sharedtypes.ServerGuid) {
	if c == nil {
		return
	}
	if err := c.client.HDel(ctx, liveServersKey, string(guid)).Err(); err != nil {
		c.logger.Warn("failed to remove live server from cache",
			attr.ServerGuid("server_guid", guid),
			attr.Error(err),
		)
	}
}

// Close releases the Redis connection.
func (c *Cache) Close() error {
	if c == nil {
		return nil
	}
	return c.client.Close()
}
