package mqtt

import (
	"time"

	"github.com/dtmfin/dtmfin/internal/detection"
)

// EventMessage is the JSON payload published for each key event.
//
// Field names are part of the topic contract consumed by automations.
type EventMessage struct {
	Key          string `json:"key"`            // "5", "*", "A"
	StreamTimeMs int64  `json:"stream_time_ms"` // capture clock at detection
	Time         string `json:"time"`           // RFC3339 wall clock at publish
}

// NewEventMessage builds the payload for ev published at now.
func NewEventMessage(ev detection.Event, now time.Time) EventMessage {
	return EventMessage{
		Key:          ev.Symbol.String(),
		StreamTimeMs: ev.Time.Milliseconds(),
		Time:         now.Format(time.RFC3339),
	}
}
