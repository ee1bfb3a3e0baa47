package gateway

import (
	"context"
	"encoding/json"
	"fmt"
)

const (
	EventPing   = "ping"
	EventFrames = "frames"
)

// registerBuiltinEvents installs the event-bus entries every shell offers.
func (s *Service) registerBuiltinEvents() error {
	if _, err := s.broker.Register(EventPing, ping); err != nil {
		return fmt.Errorf("register %s event: %w", EventPing, err)
	}
	if _, err := s.broker.Register(EventFrames, s.listFrames); err != nil {
		return fmt.Errorf("register %s event: %w", EventFrames, err)
	}
	return nil
}

// ping echoes the event data back to the caller.
func ping(_ context.Context, data json.RawMessage) (any, error) {
	return data, nil
}

func (s *Service) listFrames(context.Context, json.RawMessage) (any, error) {
	return s.registry.Frames(), nil
}
