package statshandlers

import (
	"log/slog"

	statsservice "github.com/frontline-stats/sitrep/app/modules/stats/application"
)

// StatsHandlers consumes round completions and session closes and feeds them
// to the stats service.
type StatsHandlers struct {
	service statsservice.Service
	logger  *slog.Logger
}

// NewStatsHandlers creates a new StatsHandlers.
func NewStatsHandlers(service statsservice.Service, logger *slog.Logger) Handlers {
	return &StatsHandlers{
		service: service,
		logger:  logger,
	}
}
