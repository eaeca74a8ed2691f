package amqp

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"

	"fiftythirty/internal/core"
)

// OverageMessage is published once per overage notification. Amounts are
// in cents.
type OverageMessage struct {
	ID               string    `json:"id"`
	Month            string    `json:"month"`
	TotalOver        int64     `json:"total_over"`
	SavingsRemaining int64     `json:"savings_remaining"`
	SavingsNegative  bool      `json:"savings_negative"`
	Timestamp        time.Time `json:"timestamp"`
}

// NewOverageMessage wraps ev with a fresh ID.
func NewOverageMessage(ev core.OverageEvent) *OverageMessage {
	return &OverageMessage{
		ID:               uuid.NewString(),
		Month:            ev.Month.Key(),
		TotalOver:        ev.TotalOver.Cents,
		SavingsRemaining: ev.SavingsRemaining.Cents,
		SavingsNegative:  ev.SavingsNegative,
		Timestamp:        time.Now().UTC(),
	}
}

// Event converts the message back to the domain event.
func (m *OverageMessage) Event() (core.OverageEvent, error) {
	month, err := core.ParseMonth(m.Month)
	if err != nil {
		return core.OverageEvent{}, err
	}
	return core.OverageEvent{
		Month:            month,
		TotalOver:        core.Money{Cents: m.TotalOver},
		SavingsRemaining: core.Money{Cents: m.SavingsRemaining},
		SavingsNegative:  m.SavingsNegative,
	}, nil
}

func (m *OverageMessage) ToJSON() ([]byte, error) {
	return json.Marshal(m)
}

// OverageMessageFromJSON decodes and sanity-checks a message body.
func OverageMessageFromJSON(data []byte) (*OverageMessage, error) {
	var msg OverageMessage
	if err := json.Unmarshal(data, &msg); err != nil {
		return nil, err
	}
	if _, err := uuid.Parse(msg.ID); err != nil {
		return nil, fmt.Errorf("invalid message id %q: %w", msg.ID, err)
	}
	if _, err := core.ParseMonth(msg.Month); err != nil {
		return nil, err
	}
	return &msg, nil
}
