// Package utils holds the message construction helpers shared by every
// watermill handler.
package utils

import (
	"encoding/json"
	"fmt"
	"log/slog"

	"github.com/ThreeDotsLabs/watermill"
	"github.com/ThreeDotsLabs/watermill/message"
	"github.com/ThreeDotsLabs/watermill/message/router/middleware"
)

// Helpers builds and unpacks watermill messages.
type Helpers interface {
	// CreateResultMessage builds a new message carrying payload, destined for
	// topic, propagating the originating message's correlation ID.
	CreateResultMessage(originalMsg *message.Message, payload any, topic string) (*message.Message, error)

	// CreateNewMessage builds a message with a fresh correlation ID, for
	// publications that do not originate from a consumed message.
	CreateNewMessage(payload any, topic string) (*message.Message, error)

	// UnmarshalPayload decodes a message payload into target.
	UnmarshalPayload(msg *message.Message, target any) error
}

type helpers struct {
	logger *slog.Logger
}

// NewHelpers returns the default Helpers implementation.
func NewHelpers(logger *slog.Logger) Helpers {
	return &helpers{logger: logger}
}

func (h *helpers) CreateResultMessage(originalMsg *message.Message, payload any, topic string) (*message.Message, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal payload for topic %s: %w", topic, err)
	}

	msg := message.NewMessage(watermill.NewUUID(), data)
	msg.Metadata.Set("topic", topic)

	correlationID := middleware.MessageCorrelationID(originalMsg)
	if correlationID == "" {
		correlationID = watermill.NewUUID()
	}
	middleware.SetCorrelationID(correlationID, msg)

	return msg, nil
}

func (h *helpers) CreateNewMessage(payload any, topic string) (*message.Message, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal payload for topic %s: %w", topic, err)
	}

	msg := message.NewMessage(watermill.NewUUID(), data)
	msg.Metadata.Set("topic", topic)
	middleware.SetCorrelationID(watermill.NewUUID(), msg)

	return msg, nil
}

func (h *helpers) UnmarshalPayload(msg *message.Message, target any) error {
	if err := json.Unmarshal(msg.Payload, target); err != nil {
		return fmt.Errorf("failed to unmarshal message %s: %w", msg.UUID, err)
	}
	return nil
}
