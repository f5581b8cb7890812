// Package columnstore feeds observation and round rows to ClickHouse for
// offline analytics. Writes are asynchronous and best effort; the service
// never reads this store back.
package columnstore

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/ClickHouse/clickhouse-go/v2"
	"github.com/ClickHouse/clickhouse-go/v2/lib/driver"

	sharedtypes "github.com/frontline-stats/sitrep/app/shared/types"
	"github.com/frontline-stats/sitrep/internal/observability/attr"
)

// Config holds ClickHouse connection settings.
type Config struct {
	Addr     string
	Database string
	Username string
	Password string

	BatchSize     int
	FlushInterval time.Duration
	QueueSize     int
}

// ObservationRow is one player observation destined for the columnar store.
type ObservationRow struct {
	Timestamp  time.Time
	ServerGuid sharedtypes.ServerGuid
	Game       string
	MapName    string
	PlayerName sharedtypes.PlayerName
	Score      int32
	Kills      int32
	Deaths     int32
	Ping       int32
	TeamLabel  string
}

// RoundRow is one completed round destined for the columnar store.
type RoundRow struct {
	RoundID      sharedtypes.RoundID
	ServerGuid   sharedtypes.ServerGuid
	Game         string
	MapName      string
	StartTime    time.Time
	EndTime      time.Time
	Participants int32
}

// Writer batches rows and flushes them on size or interval. A full queue
// sheds load rather than blocking the ingest path.
type Writer struct {
	conn   driver.Conn
	cfg    Config
	logger *slog.Logger

	observations chan ObservationRow
	rounds       chan RoundRow

	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// NewWriter connects to ClickHouse, ensures the schema, and returns a writer
// ready to Start.
func NewWriter(ctx context.Context, cfg Config, logger *slog.Logger) (*Writer, error) {
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = 500
	}
	if cfg.FlushInterval <= 0 {
		cfg.FlushInterval = 5 * time.Second
	}
	if cfg.QueueSize <= 0 {
		cfg.QueueSize = 10000
	}

	conn, err := clickhouse.Open(&clickhouse.Options{
		Addr: []string{cfg.Addr},
		Auth: clickhouse.Auth{
			Database: cfg.Database,
			Username: cfg.Username,
			Password: cfg.Password,
		},
		DialTimeout: 5 * time.Second,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to open clickhouse connection: %w", err)
	}
	if err := conn.Ping(ctx); err != nil {
		return nil, fmt.Errorf("failed to ping clickhouse: %w", err)
	}

	w := &Writer{
		conn:         conn,
		cfg:          cfg,
		logger:       logger,
		observations: make(chan ObservationRow, cfg.QueueSize),
		rounds:       make(chan RoundRow, cfg.QueueSize),
	}
	if err := w.ensureSchema(ctx); err != nil {
		conn.Close()
		return nil, err
	}
	return w, nil
}

func (w *Writer) ensureSchema(ctx context.Context) error {
	ddl := []string{
		`CREATE TABLE IF NOT EXISTS player_observations (
			ts          DateTime,
			server_guid String,
			game        LowCardinality(String),
			map_name    LowCardinality(String),
			player_name String,
			score       Int32,
			kills       Int32,
			deaths      Int32,
			ping        Int32,
			team_label  LowCardinality(String)
		) ENGINE = MergeTree()
		PARTITION BY toYYYYMM(ts)
		ORDER BY (server_guid, ts)`,
		`CREATE TABLE IF NOT EXISTS rounds (
			round_id     String,
			server_guid  String,
			game         LowCardinality(String),
			map_name     LowCardinality(String),
			start_time   DateTime,
			end_time     DateTime,
			participants Int32
		) ENGINE = ReplacingMergeTree()
		PARTITION BY toYYYYMM(start_time)
		ORDER BY (server_guid, round_id)`,
	}
	for _, stmt := range ddl {
		if err := w.conn.Exec(ctx, stmt); err != nil {
			return fmt.Errorf("failed to ensure clickhouse schema: %w", err)
		}
	}
	return nil
}

// Start launches the background flush loops. Stop with Close.
func (w *Writer) Start(ctx context.Context) {
	loopCtx, cancel := context.WithCancel(ctx)
	w.cancel = cancel

	w.wg.Add(2)
	go w.observationLoop(loopCtx)
	go w.roundLoop(loopCtx)
}

// EnqueueObservation queues a row, dropping it when the queue is full.
func (w *Writer) EnqueueObservation(row ObservationRow) {
	select {
	case w.observations <- row:
	default:
		w.logger.Warn("columnstore observation queue full, dropping row",
			attr.ServerGuid("server_guid", row.ServerGuid),
		)
	}
}

// EnqueueRound queues a round row, dropping it when the queue is full.
func (w *Writer) EnqueueRound(row RoundRow) {
	select {
	case w.rounds <- row:
	default:
		w.logger.Warn("columnstore round queue full, dropping row",
			attr.RoundID("round_id", row.RoundID),
		)
	}
}

func (w *Writer) observationLoop(ctx context.Context) {
	defer w.wg.Done()

	batch := make([]ObservationRow, 0, w.cfg.BatchSize)
	ticker := time.NewTicker(w.cfg.FlushInterval)
	defer ticker.Stop()

	flush := func() {
		if len(batch) == 0 {
			return
		}
		if err := w.flushObservations(batch); err != nil {
			w.logger.Error("failed to flush observations to clickhouse",
				attr.Int("rows", len(batch)),
				attr.Error(err),
			)
		}
		batch = batch[:0]
	}

	for {
		select {
		case row := <-w.observations:
			batch = append(batch, row)
			if len(batch) >= w.cfg.BatchSize {
				flush()
			}
		case <-ticker.C:
			flush()
		case <-ctx.Done():
			flush()
			return
		}
	}
}

func (w *Writer) roundLoop(ctx context.Context) {
	defer w.wg.Done()

	batch := make([]RoundRow, 0, w.cfg.BatchSize)
	ticker := time.NewTicker(w.cfg.FlushInterval)
	defer ticker.Stop()

	flush := func() {
		if len(batch) == 0 {
			return
		}
		if err := w.flushRounds(batch); err != nil {
			w.logger.Error("failed to flush rounds to clickhouse",
				attr.Int("rows", len(batch)),
				attr.Error(err),
			)
		}
		batch = batch[:0]
	}

	for {
		select {
		case row := <-w.rounds:
			batch = append(batch, row)
			if len(batch) >= w.cfg.BatchSize {
				flush()
			}
		case <-ticker.C:
			flush()
		case <-ctx.Done():
			flush()
			return
		}
	}
}

func (w *Writer) flushObservations(rows []ObservationRow) error {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	batch, err := w.conn.PrepareBatch(ctx, `INSERT INTO player_observations (
		ts, server_guid, game, map_name, player_name, score, kills, deaths, ping, team_label
	)`)
	if err != nil {
		return fmt.Errorf("failed to prepare observation batch: %w", err)
	}
	for _, r := range rows {
		if err := batch.Append(
			r.Timestamp,
			string(r.ServerGuid),
			r.Game,
			r.MapName,
			string(r.PlayerName),
			r.Score,
			r.Kills,
			r.Deaths,
			r.Ping,
			r.TeamLabel,
		); err != nil {
			return fmt.Errorf("failed to append observation row: %w", err)
		}
	}
	if err := batch.Send(); err != nil {
		return fmt.Errorf("failed to send observation batch: %w", err)
	}
	return nil
}

func (w *Writer) flushRounds(rows []RoundRow) error {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	batch, err := w.conn.PrepareBatch(ctx, `INSERT INTO rounds (
		round_id, server_guid, game, map_name, start_time, end_time, participants
	)`)
	if err != nil {
		return fmt.Errorf("failed to prepare round batch: %w", err)
	}
	for _, r := range rows {
		if err := batch.Append(
			string(r.RoundID),
			string(r.ServerGuid),
			r.Game,
			r.MapName,
			r.StartTime,
			r.EndTime,
			r.Participants,
		); err != nil {
			return fmt.Errorf("failed to append round row: %w", err)
		}
	}
	if err := batch.Send(); err != nil {
		return fmt.Errorf("failed to send round batch: %w", err)
	}
	return nil
}

// Close stops the flush loops, drains what it can, and closes the connection.
func (w *Writer) Close() error {
	if w.cancel != nil {
		w.cancel()
	}
	w.wg.Wait()
	return w.conn.Close()
}
