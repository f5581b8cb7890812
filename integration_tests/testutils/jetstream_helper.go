package testutils

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/nats-io/nats.go/jetstream"
)

// ResetJetStreamState purges the named streams so messages from one test do
// not leak into the next. Streams that do not exist yet are skipped.
func (env *TestEnvironment) ResetJetStreamState(ctx context.Context, streamNames ...string) error {
	purgeCtx, cancel := context.WithTimeout(ctx, 15*time.Second)
	defer cancel()

	for _, streamName := range streamNames {
		stream, err := env.JetStream.Stream(purgeCtx, streamName)
		if err != nil {
			if isStreamNotFoundError(err) {
				continue
			}
			return fmt.Errorf("failed to get stream %s: %w", streamName, err)
		}
		if err := stream.Purge(purgeCtx); err != nil {
			return fmt.Errorf("failed to purge stream %s: %w", streamName, err)
		}
	}
	return nil
}

func isStreamNotFoundError(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, jetstream.ErrStreamNotFound) {
		return true
	}
	var jsErr jetstream.JetStreamError
	if errors.As(err, &jsErr) {
		return jsErr.APIError().ErrorCode == jetstream.JSErrCodeStreamNotFound
	}
	return strings.Contains(err.Error(), "stream not found")
}
