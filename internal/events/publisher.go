// Package events carries fire-and-forget notifications from the core to the
// presentation layer. Publishers never block the trading cycle and their
// errors are never surfaced to callers.
package events

import (
	"time"

	"go.uber.org/zap"
)

// Event types published by the core.
const (
	TypeCycleStart    = "cycle_start"
	TypeCycleComplete = "cycle_complete"
	TypeNewTrade      = "new_trade"
	TypeAlert         = "alert"
	TypeAgentUpdate   = "agent_update"
)

// Event is one published notification.
type Event struct {
	Type    string      `json:"type"`
	Time    time.Time   `json:"time"`
	Payload interface{} `json:"payload"`
}

// Publisher delivers events to a sink. Implementations must not block and
// must swallow their own delivery failures.
type Publisher interface {
	Publish(eventType string, payload interface{})
}

// LogPublisher writes every event to the structured log. Useful on its own in
// headless runs and as a member of a Fanout.
type LogPublisher struct {
	logger *zap.Logger
}

// NewLogPublisher creates a LogPublisher.
func NewLogPublisher(logger *zap.Logger) *LogPublisher {
	return &LogPublisher{logger: logger}
}

// Publish logs the event.
func (p *LogPublisher) Publish(eventType string, payload interface{}) {
	p.logger.Info("event", zap.String("event_type", eventType), zap.Any("payload", payload))
}

// Fanout publishes to every member publisher in order.
type Fanout []Publisher

// Publish forwards the event to all members.
func (f Fanout) Publish(eventType string, payload interface{}) {
	for _, p := range f {
		p.Publish(eventType, payload)
	}
}

// Discard is a Publisher that drops everything. Used in tests.
type Discard struct{}

// Publish does nothing.
func (Discard) Publish(string, interface{}) {}
