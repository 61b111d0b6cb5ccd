package core

import (
	"time"

	"github.com/google/uuid"
)

// EventType names what happened to a resource.
type EventType string

const (
	EventResourceCreated  EventType = "RESOURCE_CREATED"
	EventResourceUpdated  EventType = "RESOURCE_UPDATED"
	EventResourceDeleted  EventType = "RESOURCE_DELETED"
	EventResourceExported EventType = "RESOURCE_EXPORTED"
)

// DefaultExportBatchSize bounds the number of envelopes carried by one export message.
const DefaultExportBatchSize = 100

// Event is the envelope published downstream, keyed by ResourceID.
type Event struct {
	EventID    uuid.UUID         `json:"eventId"`
	EventType  EventType         `json:"eventType"`
	ResourceID uuid.UUID         `json:"resourceId"`
	Resource   *ResourceSnapshot `json:"resource"`
	Timestamp  time.Time         `json:"timestamp"`
}

// NewEvent wraps snapshot in a fresh envelope.
func NewEvent(t EventType, snapshot *ResourceSnapshot) Event {
	return Event{
		EventID:    uuid.New(),
		EventType:  t,
		ResourceID: snapshot.ID,
		Resource:   snapshot,
		Timestamp:  time.Now().UTC(),
	}
}

// Batches splits events into consecutive chunks of at most size entries.
func Batches(events []Event, size int) [][]Event {
	if size <= 0 {
		size = DefaultExportBatchSize
	}
	out := make([][]Event, 0, (len(events)+size-1)/size)
	for start := 0; start < len(events); start += size {
		end := min(start+size, len(events))
		out = append(out, events[start:end])
	}
	return out
}
