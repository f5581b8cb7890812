package statsqueue

import (
	"time"
)

// BackfillJobArgs is the durable form of a backfill request. Uniqueness by
// args means resubmitting the same window rides the existing job instead of
// starting a second run.
type BackfillJobArgs struct {
	From   time.Time `json:"from"`
	To     time.Time `json:"to"`
	Server string    `json:"server,omitempty"`
	RunKey string    `json:"run_key"`
}

// Kind returns the job type identifier for River.
func (BackfillJobArgs) Kind() string { return "stats_backfill" }

// AchievementSweepArgs triggers one incremental achievement pass. Carries no
// data; the processor reads its own checkpoint.
type AchievementSweepArgs struct{}

// Kind returns the job type identifier for River.
func (AchievementSweepArgs) Kind() string { return "achievement_sweep" }
