package event

import (
	"encoding/json"
	"time"
)

// Event is the envelope for every message pushed over the live channel.
type Event struct {
	Name      string          `json:"event"`
	Timestamp time.Time       `json:"timestamp"`
	Source    string          `json:"source,omitempty"`
	Payload   json.RawMessage `json:"payload"`
}

func New(name, source string, payload any) (*Event, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}
	return &Event{
		Name:      name,
		Timestamp: time.Now().UTC(),
		Source:    source,
		Payload:   data,
	}, nil
}

const (
	PodMetrics = "pod_metrics"
)
