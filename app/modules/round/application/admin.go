package roundservice

import (
	"context"
	"fmt"

	"github.com/uptrace/bun"

	rounddb "github.com/frontline-stats/sitrep/app/modules/round/infrastructure/repositories"
	sharedtypes "github.com/frontline-stats/sitrep/app/shared/types"
)

// RoundAdminFailure is the failure payload for admin round operations.
type RoundAdminFailure struct {
	RoundID sharedtypes.RoundID `json:"round_id"`
	Reason  string              `json:"reason"`
}

// RoundAdminSummary is the success payload for admin round operations.
type RoundAdminSummary struct {
	RoundID sharedtypes.RoundID `json:"round_id"`
	Deleted bool                `json:"deleted"`
}

// DeleteRound soft deletes a round. Deleted rounds stay on disk but are
// excluded from listings and from every aggregate recomputation; affected
// players pick up the change on their next recompute or backfill.
func (s *RoundService) DeleteRound(ctx context.Context, id sharedtypes.RoundID) (RoundOperationResult, error) {
	return s.serviceWrapper(ctx, "DeleteRound", "", func(ctx context.Context) (RoundOperationResult, error) {
		return s.runInTx(ctx, func(ctx context.Context, db bun.IDB) (RoundOperationResult, error) {
			changed, err := s.repo.SetRoundDeleted(ctx, db, id, true)
			if err != nil {
				return RoundOperationResult{}, err
			}
			if !changed {
				return RoundOperationResult{Failure: &RoundAdminFailure{
					RoundID: id,
					Reason:  "round not found or already deleted",
				}}, nil
			}
			return RoundOperationResult{Success: &RoundAdminSummary{RoundID: id, Deleted: true}}, nil
		})
	})
}

// RestoreRound reverses a soft delete.
func (s *RoundService) RestoreRound(ctx context.Context, id sharedtypes.RoundID) (RoundOperationResult, error) {
	return s.serviceWrapper(ctx, "RestoreRound", "", func(ctx context.Context) (RoundOperationResult, error) {
		return s.runInTx(ctx, func(ctx context.Context, db bun.IDB) (RoundOperationResult, error) {
			changed, err := s.repo.SetRoundDeleted(ctx, db, id, false)
			if err != nil {
				return RoundOperationResult{}, err
			}
			if !changed {
				return RoundOperationResult{Failure: &RoundAdminFailure{
					RoundID: id,
					Reason:  "round not found or not deleted",
				}}, nil
			}
			return RoundOperationResult{Success: &RoundAdminSummary{RoundID: id, Deleted: false}}, nil
		})
	})
}

// GetRound fetches one round by ID.
func (s *RoundService) GetRound(ctx context.Context, id sharedtypes.RoundID) (*rounddb.Round, error) {
	round, err := s.repo.GetRound(ctx, nil, id)
	if err != nil {
		return nil, fmt.Errorf("GetRound: %w", err)
	}
	return round, nil
}

// ListRecentRounds lists undeleted rounds, newest first, optionally scoped
// to one server.
func (s *RoundService) ListRecentRounds(ctx context.Context, guid sharedtypes.ServerGuid, limit int) ([]rounddb.Round, error) {
	rounds, err := s.repo.ListRecentRounds(ctx, nil, guid, limit)
	if err != nil {
		return nil, fmt.Errorf("ListRecentRounds: %w", err)
	}
	return rounds, nil
}
