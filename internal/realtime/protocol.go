package realtime

import "encoding/json"

// phoenixMessage is the envelope every Phoenix-channel frame uses:
// topic/event/payload/ref.
type phoenixMessage struct {
	Topic     string          `json:"topic"`
	Event     string          `json:"event"`
	Payload   json.RawMessage `json:"payload"`
	Reference *string         `json:"ref"`
}

// realtimeColumn describes one column in a postgres_changes payload.
type realtimeColumn struct {
	Name     string `json:"name"`
	DataType string `json:"type"`
}

// realtimePayload is the payload of a postgres_changes event.
type realtimePayload struct {
	Schema           *string          `json:"schema"`
	Table            *string          `json:"table"`
	CommitTimestamp  *string          `json:"commit_timestamp"`
	EventType        *string          `json:"eventType"`
	New              json.RawMessage  `json:"new"`
	Old              json.RawMessage  `json:"old"`
	Columns          []realtimeColumn `json:"columns"`
}

func strPtr(s string) *string { return &s }
