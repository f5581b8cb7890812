package roundservice

import (
	"context"
	"time"

	"github.com/uptrace/bun"

	rounddb "github.com/frontline-stats/sitrep/app/modules/round/infrastructure/repositories"
	sharedevents "github.com/frontline-stats/sitrep/app/shared/events"
	sharedtypes "github.com/frontline-stats/sitrep/app/shared/types"
	"github.com/frontline-stats/sitrep/internal/columnstore"
	"github.com/frontline-stats/sitrep/internal/observability/attr"
)

// BoundarySummary describes what one boundary signal changed.
type BoundarySummary struct {
	ServerGuid     sharedtypes.ServerGuid
	Game           sharedtypes.Game
	CompletedRound sharedtypes.RoundID
	Participants   int
	StartedRound   sharedtypes.RoundID
	Heuristic      bool
}

// HandleMapChange closes the server's active round at the rotation instant
// and opens the next one. A replayed event resolves to the same derived
// round ID and becomes a no-op.
func (s *RoundService) HandleMapChange(ctx context.Context, payload sharedevents.ServerMapChangedPayload) (RoundOperationResult, error) {
	return s.serviceWrapper(ctx, "HandleMapChange", payload.ServerGuid, func(ctx context.Context) (RoundOperationResult, error) {
		var (
			pending   []pendingEvent
			completed *columnstore.RoundRow
		)

		result, err := s.runInTx(ctx, func(ctx context.Context, db bun.IDB) (RoundOperationResult, error) {
			summary := &BoundarySummary{ServerGuid: payload.ServerGuid}

			active, err := s.repo.ActiveRoundForServer(ctx, db, payload.ServerGuid)
			if err != nil {
				return RoundOperationResult{}, err
			}

			nextID := sharedtypes.DeriveRoundID(payload.ServerGuid, payload.NewMap, payload.ChangedAt)
			if active != nil {
				if active.ID == nextID {
					// Replay of a boundary already applied.
					return RoundOperationResult{Success: summary}, nil
				}
				if payload.ChangedAt.Before(active.StartTime) {
					// Out of order event; the active round is newer.
					return RoundOperationResult{Success: summary}, nil
				}
				row, ev, participants, err := s.completeRound(ctx, db, active, payload.ChangedAt)
				if err != nil {
					return RoundOperationResult{}, err
				}
				completed = row
				if ev != nil {
					pending = append(pending, *ev)
				}
				summary.CompletedRound = active.ID
				summary.Participants = participants
			}

			round := &rounddb.Round{
				ID:                nextID,
				ServerGuid:        payload.ServerGuid,
				ServerName:        payload.ServerName,
				Game:              gameForActive(active),
				MapName:           payload.NewMap,
				GameType:          payload.GameType,
				StartTime:         payload.ChangedAt,
				LastObservationAt: payload.ChangedAt,
				Active:            true,
			}
			if err := s.repo.InsertRound(ctx, db, round); err != nil {
				return RoundOperationResult{}, err
			}
			summary.StartedRound = nextID
			summary.Game = round.Game

			return RoundOperationResult{Success: summary}, nil
		})
		if err != nil {
			return result, err
		}

		s.flushCompletion(ctx, result, pending, completed, false)
		return result, nil
	})
}

// HandleSnapshot is the second boundary path. It samples tickets into the
// active round, starts a round when none is active, and closes rounds the
// event path missed: a map mismatch or an observation gap beyond the
// configured threshold.
func (s *RoundService) HandleSnapshot(ctx context.Context, payload sharedevents.ServerSnapshotRecordedPayload) (RoundOperationResult, error) {
	return s.serviceWrapper(ctx, "HandleSnapshot", payload.ServerGuid, func(ctx context.Context) (RoundOperationResult, error) {
		var (
			pending   []pendingEvent
			completed *columnstore.RoundRow
		)

		result, err := s.runInTx(ctx, func(ctx context.Context, db bun.IDB) (RoundOperationResult, error) {
			summary := &BoundarySummary{ServerGuid: payload.ServerGuid}
			ts := payload.Timestamp

			active, err := s.repo.ActiveRoundForServer(ctx, db, payload.ServerGuid)
			if err != nil {
				return RoundOperationResult{}, err
			}

			if active != nil {
				// Stale or replayed snapshot; nothing to record.
				if !ts.After(active.LastObservationAt) {
					return RoundOperationResult{Success: summary}, nil
				}

				mismatch := payload.MapName != "" && payload.MapName != active.MapName
				gapped := ts.Sub(active.LastObservationAt) > s.gapThreshold

				if mismatch || gapped {
					// The event path missed this boundary; close at the last
					// time the old round was actually observed.
					row, ev, participants, err := s.completeRound(ctx, db, active, active.LastObservationAt)
					if err != nil {
						return RoundOperationResult{}, err
					}
					completed = row
					if ev != nil {
						pending = append(pending, *ev)
					}
					summary.CompletedRound = active.ID
					summary.Participants = participants
					summary.Heuristic = true
					active = nil
				} else {
					if err := s.repo.TouchRound(ctx, db, active.ID, ts, payload.Tickets1, payload.Tickets2); err != nil {
						return RoundOperationResult{}, err
					}
					if err := s.repo.InsertObservation(ctx, db, &rounddb.RoundObservation{
						RoundID:     active.ID,
						Timestamp:   ts,
						PlayerCount: payload.PlayerCount,
						Tickets1:    payload.Tickets1,
						Tickets2:    payload.Tickets2,
					}); err != nil {
						return RoundOperationResult{}, err
					}
				}
			}

			if active == nil && payload.PlayerCount > 0 && payload.MapName != "" {
				round := &rounddb.Round{
					ID:                sharedtypes.DeriveRoundID(payload.ServerGuid, payload.MapName, ts),
					ServerGuid:        payload.ServerGuid,
					ServerName:        payload.ServerName,
					Game:              payload.Game,
					MapName:           payload.MapName,
					GameType:          payload.GameType,
					StartTime:         ts,
					LastObservationAt: ts,
					Active:            true,
					Tickets1:          payload.Tickets1,
					Tickets2:          payload.Tickets2,
				}
				if err := s.repo.InsertRound(ctx, db, round); err != nil {
					return RoundOperationResult{}, err
				}
				if err := s.repo.InsertObservation(ctx, db, &rounddb.RoundObservation{
					RoundID:     round.ID,
					Timestamp:   ts,
					PlayerCount: payload.PlayerCount,
					Tickets1:    payload.Tickets1,
					Tickets2:    payload.Tickets2,
				}); err != nil {
					return RoundOperationResult{}, err
				}
				summary.StartedRound = round.ID
				summary.Game = round.Game
			}

			return RoundOperationResult{Success: summary}, nil
		})
		if err != nil {
			return result, err
		}

		s.flushCompletion(ctx, result, pending, completed, true)
		return result, nil
	})
}

// completeRound finalizes a round inside the transaction and prepares the
// completion event and columnstore row for after commit. Rounds without
// participants are recorded but never announced.
func (s *RoundService) completeRound(ctx context.Context, db bun.IDB, round *rounddb.Round, endTime time.Time) (*columnstore.RoundRow, *pendingEvent, int, error) {
	if endTime.Before(round.StartTime) {
		endTime = round.StartTime
	}

	intervals, err := s.repo.SessionsOverlapping(ctx, db, round.ServerGuid, round.MapName, round.StartTime, endTime)
	if err != nil {
		return nil, nil, 0, err
	}
	participants := buildParticipants(intervals, round.StartTime, endTime)

	if err := s.repo.CompleteRound(ctx, db, round.ID, endTime, len(participants)); err != nil {
		return nil, nil, 0, err
	}

	row := &columnstore.RoundRow{
		RoundID:      round.ID,
		ServerGuid:   round.ServerGuid,
		Game:         string(round.Game),
		MapName:      round.MapName,
		StartTime:    round.StartTime,
		EndTime:      endTime,
		Participants: int32(len(participants)),
	}

	var ev *pendingEvent
	if len(participants) > 0 {
		ev = &pendingEvent{
			topic: sharedevents.RoundCompletedV1,
			payload: &sharedevents.RoundCompletedPayload{
				RoundID:      round.ID,
				ServerGuid:   round.ServerGuid,
				ServerName:   round.ServerName,
				MapName:      round.MapName,
				GameType:     round.GameType,
				StartTime:    round.StartTime,
				EndTime:      endTime,
				Participants: participants,
			},
		}
	}
	return row, ev, len(participants), nil
}

// flushCompletion publishes pending events and side channel rows after the
// transaction committed.
func (s *RoundService) flushCompletion(ctx context.Context, result RoundOperationResult, pending []pendingEvent, completed *columnstore.RoundRow, heuristic bool) {
	for _, ev := range pending {
		s.publishEvent(ctx, ev.topic, ev.payload)
	}
	if completed != nil && s.columns != nil {
		s.columns.EnqueueRound(*completed)
	}

	summary, ok := result.Success.(*BoundarySummary)
	if !ok {
		return
	}
	if summary.StartedRound != "" {
		s.metrics.RecordRoundStarted(ctx, string(summary.Game))
		s.logger.InfoContext(ctx, "round started",
			attr.ServerGuid("server_guid", summary.ServerGuid),
			attr.RoundID("round_id", summary.StartedRound),
		)
	}
	if summary.CompletedRound != "" {
		if completed != nil {
			s.metrics.RecordRoundCompleted(ctx, completed.Game,
				completed.EndTime.Sub(completed.StartTime), summary.Participants)
		}
		if heuristic && summary.Heuristic {
			s.metrics.RecordHeuristicRounds(ctx, 1)
		}
		s.logger.InfoContext(ctx, "round completed",
			attr.ServerGuid("server_guid", summary.ServerGuid),
			attr.RoundID("round_id", summary.CompletedRound),
			attr.Int("participants", summary.Participants),
			attr.Bool("heuristic", summary.Heuristic),
		)
	}
}

// buildParticipants converts overlapping session intervals into round
// participants, one entry per distinct player. A player who rejoined during
// the round has two intervals; their contributions are summed because scores
// reset on rejoin. Play minutes count only the overlap between the session
// and the round.
func buildParticipants(intervals []rounddb.SessionInterval, start, end time.Time) []sharedtypes.RoundParticipant {
	participants := make([]sharedtypes.RoundParticipant, 0, len(intervals))
	index := make(map[sharedtypes.PlayerName]int, len(intervals))
	for _, in := range intervals {
		from := in.StartTime
		if from.Before(start) {
			from = start
		}
		to := in.LastSeenTime
		if to.After(end) {
			to = end
		}
		overlap := to.Sub(from)
		if overlap < 0 {
			continue
		}
		// Single-observation sessions have zero width; they count when they
		// fall inside the round, otherwise they only graze the boundary.
		if overlap == 0 && !(in.StartTime.Equal(in.LastSeenTime) && !in.StartTime.Before(start) && !in.StartTime.After(end)) {
			continue
		}
		if i, ok := index[in.PlayerName]; ok {
			participants[i].Score += in.TotalScore
			participants[i].Kills += in.TotalKills
			participants[i].Deaths += in.TotalDeaths
			participants[i].PlayMinutes += overlap.Minutes()
			continue
		}
		index[in.PlayerName] = len(participants)
		participants = append(participants, sharedtypes.RoundParticipant{
			Player:      in.PlayerName,
			Score:       in.TotalScore,
			Kills:       in.TotalKills,
			Deaths:      in.TotalDeaths,
			PlayMinutes: overlap.Minutes(),
		})
	}
	return participants
}

func gameForActive(active *rounddb.Round) sharedtypes.Game {
	if active != nil {
		return active.Game
	}
	return ""
}
