package amqp

import (
	"encoding/json"
	"fmt"
	"time"

	"replenishment/internal/core"
)

// ScaleSavedMessage announces that a period's scale was saved. It carries
// only the period and version; the worker reads the records from the store.
type ScaleSavedMessage struct {
	Period    string    `json:"period"`
	Version   int64     `json:"version"`
	Timestamp time.Time `json:"timestamp"`
}

func NewScaleSavedMessage(period string, version int64) *ScaleSavedMessage {
	return &ScaleSavedMessage{
		Period:    period,
		Version:   version,
		Timestamp: time.Now(),
	}
}

// ToJSON converts the message to JSON bytes
func (m *ScaleSavedMessage) ToJSON() ([]byte, error) {
	return json.Marshal(m)
}

// ScaleSavedMessageFromJSON decodes and validates a message.
func ScaleSavedMessageFromJSON(data []byte) (*ScaleSavedMessage, error) {
	var msg ScaleSavedMessage
	if err := json.Unmarshal(data, &msg); err != nil {
		return nil, err
	}
	if _, _, err := core.ParsePeriodKey(msg.Period); err != nil {
		return nil, fmt.Errorf("scale saved message: %w", err)
	}
	if msg.Version <= 0 {
		return nil, fmt.Errorf("scale saved message: invalid version %d", msg.Version)
	}
	return &msg, nil
}
