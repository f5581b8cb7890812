package sessionservice

import (
	"context"
	"fmt"
	"time"

	"github.com/uptrace/bun"

	sessiondb "github.com/frontline-stats/sitrep/app/modules/session/infrastructure/repositories"
	sharedevents "github.com/frontline-stats/sitrep/app/shared/events"
	sharedtypes "github.com/frontline-stats/sitrep/app/shared/types"
	"github.com/frontline-stats/sitrep/internal/columnstore"
	"github.com/frontline-stats/sitrep/internal/observability/attr"
	"github.com/frontline-stats/sitrep/internal/presence"
)

// IngestSummary describes what one snapshot batch changed.
type IngestSummary struct {
	ServerGuid sharedtypes.ServerGuid
	Game       sharedtypes.Game
	MapName    string
	MapChanged bool
	Players    int
	Opened     int
	Refreshed  int
	Skipped    int
	Closed     int

	needsGeo bool
	address  string
}

// IngestFailure is the failure payload for rejected snapshots.
type IngestFailure struct {
	ServerGuid sharedtypes.ServerGuid `json:"server_guid"`
	Reason     string                 `json:"reason"`
}

type pendingEvent struct {
	topic   string
	payload any
}

// IngestSnapshot applies one server snapshot as a single atomic batch: server
// upsert, session opens, refreshes, closures, observation appends, and play
// minute accrual all commit together or not at all. Events and side channel
// writes happen after commit, fire and forget.
func (s *TrackerService) IngestSnapshot(ctx context.Context, snapshot sharedtypes.ServerSnapshot, observedAt time.Time) (SessionOperationResult, error) {
	if snapshot.Guid == "" {
		if snapshot.Address == "" {
			return SessionOperationResult{Failure: &IngestFailure{Reason: "snapshot has neither guid nor address"}}, nil
		}
		snapshot.Guid = sharedtypes.DeriveServerGuid(snapshot.Address, snapshot.Port)
	}

	return s.serviceWrapper(ctx, "IngestSnapshot", snapshot.Guid, func(ctx context.Context) (SessionOperationResult, error) {
		if observedAt.IsZero() {
			return SessionOperationResult{Failure: &IngestFailure{
				ServerGuid: snapshot.Guid,
				Reason:     "missing observation timestamp",
			}}, nil
		}
		if !snapshot.Game.Valid() {
			return SessionOperationResult{Failure: &IngestFailure{
				ServerGuid: snapshot.Guid,
				Reason:     fmt.Sprintf("unsupported game %q", snapshot.Game),
			}}, nil
		}

		var (
			summary *IngestSummary
			pending []pendingEvent
			obsRows []columnstore.ObservationRow
		)

		result, err := s.runInTx(ctx, func(ctx context.Context, db bun.IDB) (SessionOperationResult, error) {
			var txErr error
			summary, pending, obsRows, txErr = s.ingestTx(ctx, db, snapshot, observedAt)
			if txErr != nil {
				return SessionOperationResult{}, txErr
			}
			return SessionOperationResult{Success: summary}, nil
		})
		if err != nil {
			return result, err
		}

		for _, ev := range pending {
			s.publishEvent(ctx, ev.topic, ev.payload)
		}
		s.recordSideChannels(ctx, snapshot, summary, obsRows)

		s.metrics.RecordSnapshotIngested(ctx, string(snapshot.Game), summary.Players)
		if summary.Opened > 0 {
			s.metrics.RecordSessionsOpened(ctx, summary.Opened)
		}

		s.logger.InfoContext(ctx, "snapshot ingested",
			attr.ServerGuid("server_guid", snapshot.Guid),
			attr.String("map", summary.MapName),
			attr.Int("players", summary.Players),
			attr.Int("opened", summary.Opened),
			attr.Int("refreshed", summary.Refreshed),
			attr.Int("closed", summary.Closed),
			attr.Bool("map_changed", summary.MapChanged),
		)
		return result, nil
	})
}

// ingestTx runs the snapshot batch inside the transaction and collects events
// and columnstore rows for publication after commit.
func (s *TrackerService) ingestTx(
	ctx context.Context,
	db bun.IDB,
	snapshot sharedtypes.ServerSnapshot,
	observedAt time.Time,
) (*IngestSummary, []pendingEvent, []columnstore.ObservationRow, error) {
	prev, err := s.repo.GetServer(ctx, db, snapshot.Guid)
	if err != nil {
		return nil, nil, nil, err
	}

	mapName := snapshot.MapName
	if mapName == "" && prev != nil {
		// Between-round snapshots can report an empty map; carry the last
		// known one so sessions stay attributable.
		mapName = prev.CurrentMap
	}

	mapChanged := prev != nil && prev.CurrentMap != "" && snapshot.MapName != "" && prev.CurrentMap != snapshot.MapName

	server := buildServerRow(prev, snapshot, mapName, observedAt)
	if err := s.repo.UpsertServer(ctx, db, server); err != nil {
		return nil, nil, nil, err
	}

	summary := &IngestSummary{
		ServerGuid: snapshot.Guid,
		Game:       snapshot.Game,
		MapName:    mapName,
		MapChanged: mapChanged,
		needsGeo:   s.geoEnabled && (prev == nil || prev.Country == ""),
		address:    snapshot.Address,
	}

	var pending []pendingEvent
	if mapChanged {
		pending = append(pending, pendingEvent{
			topic: sharedevents.ServerMapChangedV1,
			payload: &sharedevents.ServerMapChangedPayload{
				ServerGuid: snapshot.Guid,
				ServerName: snapshot.Name,
				OldMap:     prev.CurrentMap,
				NewMap:     snapshot.MapName,
				GameType:   snapshot.GameType,
				JoinLink:   server.JoinLink,
				ChangedAt:  observedAt,
			},
		})
	}

	active, err := s.repo.ActiveSessionsForServer(ctx, db, snapshot.Guid)
	if err != nil {
		return nil, nil, nil, err
	}
	activeByName := make(map[sharedtypes.PlayerName]*sessiondb.PlayerSession, len(active))
	for i := range active {
		activeByName[active[i].PlayerName] = &active[i]
	}

	// On a map change every session still attached to the old map closes,
	// whether or not its player appears in the new snapshot.
	if mapChanged {
		var staleIDs []sharedtypes.SessionID
		for name, sess := range activeByName {
			if sess.MapName != mapName {
				staleIDs = append(staleIDs, sess.ID)
				pending = append(pending, pendingEvent{
					topic:   sharedevents.SessionClosedV1,
					payload: sessionClosedPayload(sess, sharedtypes.CloseReasonMapChange),
				})
				delete(activeByName, name)
			}
		}
		if err := s.repo.CloseSessions(ctx, db, staleIDs); err != nil {
			return nil, nil, nil, err
		}
		summary.Closed += len(staleIDs)
		s.metrics.RecordSessionsClosed(ctx, string(sharedtypes.CloseReasonMapChange), len(staleIDs))
	}

	var obsRows []columnstore.ObservationRow
	for _, p := range snapshot.Players {
		if p.Name == "" {
			summary.Skipped++
			continue
		}
		summary.Players++

		if err := s.repo.UpsertPlayer(ctx, db, p.Name, observedAt, p.IsBot); err != nil {
			return nil, nil, nil, err
		}

		sess, found := activeByName[p.Name]

		// A lingering session on another map, or one whose last observation
		// is older than the timeout, ends here; the player gets a fresh one.
		if found && sess.MapName != mapName {
			if err := s.closeSession(ctx, db, sess, sharedtypes.CloseReasonMapChange, &pending); err != nil {
				return nil, nil, nil, err
			}
			summary.Closed++
			found = false
		}
		if found && observedAt.Sub(sess.LastSeenTime) > s.sessionTimeout {
			if err := s.closeSession(ctx, db, sess, sharedtypes.CloseReasonTimeout, &pending); err != nil {
				return nil, nil, nil, err
			}
			summary.Closed++
			found = false
		}

		if !found {
			sess = &sessiondb.PlayerSession{
				PlayerName:       p.Name,
				ServerGuid:       snapshot.Guid,
				MapName:          mapName,
				GameType:         snapshot.GameType,
				StartTime:        observedAt,
				LastSeenTime:     observedAt,
				Active:           true,
				ObservationCount: 1,
				TotalScore:       p.Score,
				TotalKills:       p.Kills,
				TotalDeaths:      p.Deaths,
			}
			if err := s.repo.InsertSession(ctx, db, sess); err != nil {
				return nil, nil, nil, err
			}
			activeByName[p.Name] = sess
			summary.Opened++
			pending = append(pending, pendingEvent{
				topic: sharedevents.PlayerOnlineV1,
				payload: &sharedevents.PlayerOnlinePayload{
					Player:     p.Name,
					ServerGuid: snapshot.Guid,
					ServerName: snapshot.Name,
					MapName:    mapName,
					GameType:   snapshot.GameType,
					SessionID:  sess.ID,
					SeenAt:     observedAt,
				},
			})
		} else {
			// Replays of an already applied snapshot land here with a
			// non-positive delta and must not accrue or append anything.
			if !observedAt.After(sess.LastSeenTime) {
				summary.Skipped++
				continue
			}
			delta := observedAt.Sub(sess.LastSeenTime)
			if err := s.repo.AddPlayMinutes(ctx, db, p.Name, delta.Minutes()); err != nil {
				return nil, nil, nil, err
			}
			sess.LastSeenTime = observedAt
			sess.ObservationCount++
			if p.Score > sess.TotalScore {
				sess.TotalScore = p.Score
			}
			if p.Kills > sess.TotalKills {
				sess.TotalKills = p.Kills
			}
			sess.TotalDeaths = p.Deaths
			if err := s.repo.UpdateSessionProgress(ctx, db, sess); err != nil {
				return nil, nil, nil, err
			}
			summary.Refreshed++
		}

		teamLabel := p.TeamLabel
		if teamLabel == "" {
			teamLabel = teamLabelForIndex(snapshot, p.TeamIndex)
		}
		if err := s.repo.InsertObservation(ctx, db, &sessiondb.PlayerObservation{
			SessionID: sess.ID,
			Timestamp: observedAt,
			Score:     p.Score,
			Kills:     p.Kills,
			Deaths:    p.Deaths,
			Ping:      p.Ping,
			TeamIndex: p.TeamIndex,
			TeamLabel: teamLabel,
		}); err != nil {
			return nil, nil, nil, err
		}

		obsRows = append(obsRows, columnstore.ObservationRow{
			Timestamp:  observedAt,
			ServerGuid: snapshot.Guid,
			Game:       string(snapshot.Game),
			MapName:    mapName,
			PlayerName: p.Name,
			Score:      int32(p.Score),
			Kills:      int32(p.Kills),
			Deaths:     int32(p.Deaths),
			Ping:       int32(p.Ping),
			TeamLabel:  teamLabel,
		})
	}

	pending = append(pending, pendingEvent{
		topic: sharedevents.ServerSnapshotRecordedV1,
		payload: &sharedevents.ServerSnapshotRecordedPayload{
			ServerGuid:  snapshot.Guid,
			ServerName:  snapshot.Name,
			Game:        snapshot.Game,
			MapName:     mapName,
			GameType:    snapshot.GameType,
			Timestamp:   observedAt,
			PlayerCount: summary.Players,
			Tickets1:    snapshot.Tickets1,
			Tickets2:    snapshot.Tickets2,
			Team1Label:  snapshot.Team1Label,
			Team2Label:  snapshot.Team2Label,
		},
	})

	return summary, pending, obsRows, nil
}

func (s *TrackerService) closeSession(
	ctx context.Context,
	db bun.IDB,
	sess *sessiondb.PlayerSession,
	reason sharedtypes.CloseReason,
	pending *[]pendingEvent,
) error {
	if err := s.repo.CloseSessions(ctx, db, []sharedtypes.SessionID{sess.ID}); err != nil {
		return err
	}
	*pending = append(*pending, pendingEvent{
		topic:   sharedevents.SessionClosedV1,
		payload: sessionClosedPayload(sess, reason),
	})
	s.metrics.RecordSessionsClosed(ctx, string(reason), 1)
	return nil
}

// recordSideChannels pushes post-commit state into the presence cache and the
// columnar store, and kicks off geo enrichment for servers that need it.
func (s *TrackerService) recordSideChannels(ctx context.Context, snapshot sharedtypes.ServerSnapshot, summary *IngestSummary, obsRows []columnstore.ObservationRow) {
	if s.presence != nil {
		s.presence.SetLiveServer(ctx, snapshot.Guid, presence.LiveServer{
			Name:        snapshot.Name,
			Game:        string(snapshot.Game),
			MapName:     summary.MapName,
			GameType:    snapshot.GameType,
			PlayerCount: summary.Players,
			MaxPlayers:  snapshot.MaxPlayers,
			JoinLink:    joinLink(snapshot),
			UpdatedAt:   time.Now().UTC(),
		})
	}
	if s.columns != nil {
		for _, row := range obsRows {
			s.columns.EnqueueObservation(row)
		}
	}
	if summary.needsGeo && summary.address != "" {
		go s.enrichServerGeo(context.WithoutCancel(ctx), snapshot.Guid, summary.address)
	}
}

func sessionClosedPayload(sess *sessiondb.PlayerSession, reason sharedtypes.CloseReason) *sharedevents.SessionClosedPayload {
	return &sharedevents.SessionClosedPayload{
		SessionID:    sess.ID,
		Player:       sess.PlayerName,
		ServerGuid:   sess.ServerGuid,
		MapName:      sess.MapName,
		StartTime:    sess.StartTime,
		LastSeenTime: sess.LastSeenTime,
		Score:        sess.TotalScore,
		Kills:        sess.TotalKills,
		Deaths:       sess.TotalDeaths,
		Reason:       reason,
	}
}

func buildServerRow(prev *sessiondb.GameServer, snapshot sharedtypes.ServerSnapshot, mapName string, observedAt time.Time) *sessiondb.GameServer {
	server := &sessiondb.GameServer{
		Guid:            snapshot.Guid,
		Name:            snapshot.Name,
		Address:         snapshot.Address,
		Port:            snapshot.Port,
		Game:            snapshot.Game,
		CurrentMap:      mapName,
		CurrentGameType: snapshot.GameType,
		MaxPlayers:      snapshot.MaxPlayers,
		JoinLink:        joinLink(snapshot),
		FirstSeen:       observedAt,
		LastSeen:        observedAt,
	}
	if prev != nil {
		server.FirstSeen = prev.FirstSeen
	}
	return server
}

func teamLabelForIndex(snapshot sharedtypes.ServerSnapshot, teamIndex int) string {
	switch teamIndex {
	case 1:
		return snapshot.Team1Label
	case 2:
		return snapshot.Team2Label
	}
	return ""
}

func joinLink(snapshot sharedtypes.ServerSnapshot) string {
	if snapshot.JoinLink != "" {
		return snapshot.JoinLink
	}
	if snapshot.Address == "" {
		return ""
	}
	return fmt.Sprintf("%s://%s:%d", string(snapshot.Game), snapshot.Address, snapshot.Port)
}
