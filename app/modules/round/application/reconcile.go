package roundservice

import (
	"context"
	"time"

	"github.com/uptrace/bun"

	rounddb "github.com/frontline-stats/sitrep/app/modules/round/infrastructure/repositories"
	sharedtypes "github.com/frontline-stats/sitrep/app/shared/types"
	"github.com/frontline-stats/sitrep/internal/observability/attr"
)

// ReconcileSummary reports what one window reconciliation did.
type ReconcileSummary struct {
	ServerGuid sharedtypes.ServerGuid `json:"server_guid"`
	From       time.Time              `json:"from"`
	To         time.Time              `json:"to"`
	Groups     int                    `json:"groups"`
	Upserted   int                    `json:"upserted"`
	Skipped    int                    `json:"skipped"`
}

// InvalidReconcileFailure rejects a malformed reconcile request.
type InvalidReconcileFailure struct {
	Reason string `json:"reason"`
}

// sessionGroup is one contiguous run of session activity on a (server, map)
// pair, the heuristic stand-in for a round.
type sessionGroup struct {
	mapName   string
	start     time.Time
	end       time.Time
	open      bool
	intervals []rounddb.SessionInterval
}

// ReconcileWindow rebuilds round rows from raw session history intersecting
// [from, to]. Sessions on one map separated by less than the gap threshold
// form one round; the canonical start is the earliest session start in the
// group and the canonical end the latest last-seen time. Identities are
// derived exactly as on the live paths, so re-running a window upserts the
// same rows and never duplicates a round.
func (s *RoundService) ReconcileWindow(ctx context.Context, guid sharedtypes.ServerGuid, from, to time.Time) (RoundOperationResult, error) {
	return s.serviceWrapper(ctx, "ReconcileWindow", guid, func(ctx context.Context) (RoundOperationResult, error) {
		if !from.Before(to) {
			return RoundOperationResult{Failure: &InvalidReconcileFailure{
				Reason: "window start must precede window end",
			}}, nil
		}

		result, err := s.runInTx(ctx, func(ctx context.Context, db bun.IDB) (RoundOperationResult, error) {
			intervals, err := s.repo.SessionsInWindow(ctx, db, guid, from, to)
			if err != nil {
				return RoundOperationResult{}, err
			}

			summary := &ReconcileSummary{ServerGuid: guid, From: from, To: to}
			if len(intervals) == 0 {
				return RoundOperationResult{Success: summary}, nil
			}

			identity, err := s.repo.ServerIdentity(ctx, db, guid)
			if err != nil {
				return RoundOperationResult{}, err
			}

			for _, group := range groupByGap(intervals, s.gapThreshold) {
				summary.Groups++

				// Groups with live sessions are still forming; the live
				// detector owns them.
				if group.open {
					summary.Skipped++
					continue
				}

				id := sharedtypes.DeriveRoundID(guid, group.mapName, group.start)
				existing, err := s.repo.RoundsIntersecting(ctx, db, guid, group.mapName, group.start, group.end)
				if err != nil {
					return RoundOperationResult{}, err
				}
				if intervalClaimed(existing, id) {
					summary.Skipped++
					continue
				}

				participants := buildParticipants(group.intervals, group.start, group.end)
				round := &rounddb.Round{
					ID:                id,
					ServerGuid:        guid,
					MapName:           group.mapName,
					StartTime:         group.start,
					EndTime:           group.end,
					LastObservationAt: group.end,
					Active:            false,
					ParticipantCount:  len(participants),
				}
				if identity != nil {
					round.ServerName = identity.Name
					round.Game = identity.Game
				}
				if err := s.repo.UpsertCompletedRound(ctx, db, round); err != nil {
					return RoundOperationResult{}, err
				}
				summary.Upserted++
			}

			return RoundOperationResult{Success: summary}, nil
		})
		if err != nil {
			return result, err
		}

		if summary, ok := result.Success.(*ReconcileSummary); ok {
			s.logger.InfoContext(ctx, "window reconciled",
				attr.ServerGuid("server_guid", guid),
				attr.Time("from", from),
				attr.Time("to", to),
				attr.Int("groups", summary.Groups),
				attr.Int("rounds_upserted", summary.Upserted),
				attr.Int("skipped", summary.Skipped),
			)
		}
		return result, nil
	})
}

// intervalClaimed reports whether an existing round already holds the group's
// interval in a form reconciliation must not overwrite. Only a completed
// round with the same derived identity may be refreshed; anything else keeps
// the interval.
func intervalClaimed(existing []rounddb.Round, id sharedtypes.RoundID) bool {
	for _, r := range existing {
		if r.ID != id || r.Deleted || r.Active {
			return true
		}
	}
	return false
}

// groupByGap splits map-ordered session intervals into contiguous activity
// groups. A new group starts when the map changes or when the next session
// starts more than the threshold after the group's latest activity.
func groupByGap(intervals []rounddb.WindowSessionInterval, gap time.Duration) []sessionGroup {
	var groups []sessionGroup
	for _, in := range intervals {
		last := len(groups) - 1
		if last < 0 || groups[last].mapName != in.MapName || in.StartTime.Sub(groups[last].end) > gap {
			groups = append(groups, sessionGroup{
				mapName: in.MapName,
				start:   in.StartTime,
				end:     in.LastSeenTime,
			})
			last = len(groups) - 1
		}
		g := &groups[last]
		if in.StartTime.Before(g.start) {
			g.start = in.StartTime
		}
		if in.LastSeenTime.After(g.end) {
			g.end = in.LastSeenTime
		}
		if in.Active {
			g.open = true
		}
		g.intervals = append(g.intervals, rounddb.SessionInterval{
			PlayerName:   in.PlayerName,
			StartTime:    in.StartTime,
			LastSeenTime: in.LastSeenTime,
			TotalScore:   in.TotalScore,
			TotalKills:   in.TotalKills,
			TotalDeaths:  in.TotalDeaths,
		})
	}
	return groups
}
