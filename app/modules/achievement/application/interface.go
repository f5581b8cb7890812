package achievementservice

import "context"

// Service is the checkpointed achievement processor interface.
type Service interface {
	// RunOnce performs a single scan-and-award pass from the stored cursor.
	RunOnce(ctx context.Context) (AchievementOperationResult, error)
	// Sweep is RunOnce for callers that only care about the error.
	Sweep(ctx context.Context) error
}
