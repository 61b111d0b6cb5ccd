package core

import (
	"time"

	"github.com/google/uuid"
)

// CharacteristicInput is the caller-supplied shape of a characteristic.
type CharacteristicInput struct {
	Code  string             `json:"code"`
	Type  CharacteristicType `json:"type"`
	Value string             `json:"value"`
}

// CreateResourceRequest carries everything needed to create a resource.
type CreateResourceRequest struct {
	Type            ResourceType          `json:"type"`
	CountryCode     string                `json:"countryCode"`
	Location        *Location             `json:"location"`
	Characteristics []CharacteristicInput `json:"characteristics,omitempty"`
}

// UpdateResourceRequest holds the mutable parts of a resource. A nil field is left untouched;
// a non-nil, empty Characteristics slice clears the collection.
type UpdateResourceRequest struct {
	Location        *Location             `json:"location,omitempty"`
	Characteristics []CharacteristicInput `json:"characteristics"`
}

// ResourceSnapshot is the immutable point-in-time view used in responses and events.
type ResourceSnapshot struct {
	ID              uuid.UUID             `json:"id"`
	Type            ResourceType          `json:"type"`
	CountryCode     string                `json:"countryCode"`
	Location        Location              `json:"location"`
	Characteristics []CharacteristicInput `json:"characteristics"`
	CreatedAt       time.Time             `json:"createdAt"`
	UpdatedAt       time.Time             `json:"updatedAt"`
	Version         int64                 `json:"version"`
}

// Snapshot maps r to its external representation.
func (r *Resource) Snapshot() *ResourceSnapshot {
	chars := make([]CharacteristicInput, 0, len(r.Characteristics))
	for _, c := range r.Characteristics {
		chars = append(chars, CharacteristicInput{Code: c.Code, Type: c.Type, Value: c.Value})
	}
	return &ResourceSnapshot{
		ID:              r.ID,
		Type:            r.Type,
		CountryCode:     r.CountryCode,
		Location:        r.Location,
		Characteristics: chars,
		CreatedAt:       r.CreatedAt,
		UpdatedAt:       r.UpdatedAt,
		Version:         r.Version,
	}
}

// NewCharacteristics converts inputs into detached characteristic entities.
func NewCharacteristics(in []CharacteristicInput) []*Characteristic {
	out := make([]*Characteristic, 0, len(in))
	for _, ci := range in {
		out = append(out, &Characteristic{Code: ci.Code, Type: ci.Type, Value: ci.Value})
	}
	return out
}
