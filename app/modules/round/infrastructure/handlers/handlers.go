package roundhandlers

import (
	"log/slog"

	roundservice "github.com/frontline-stats/sitrep/app/modules/round/application"
)

// RoundHandlers consumes the session module's boundary signals and feeds
// them to the round service.
type RoundHandlers struct {
	service roundservice.Service
	logger  *slog.Logger
}

// NewRoundHandlers creates a new RoundHandlers.
func NewRoundHandlers(service roundservice.Service, logger *slog.Logger) Handlers {
	return &RoundHandlers{
		service: service,
		logger:  logger,
	}
}
