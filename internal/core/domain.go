package core

import (
	"time"

	"github.com/google/uuid"
)

// ResourceType categorises a resource. It is fixed at creation.
type ResourceType string

const (
	TypeMeteringPoint   ResourceType = "METERING_POINT"
	TypeConnectionPoint ResourceType = "CONNECTION_POINT"
)

// IsValid reports whether t is a known resource type.
func (t ResourceType) IsValid() bool {
	switch t {
	case TypeMeteringPoint, TypeConnectionPoint:
		return true
	}
	return false
}

// CharacteristicType categorises a characteristic.
type CharacteristicType string

const (
	CharConsumptionType       CharacteristicType = "CONSUMPTION_TYPE"
	CharChargingPoint         CharacteristicType = "CHARGING_POINT"
	CharConnectionPointStatus CharacteristicType = "CONNECTION_POINT_STATUS"
)

// IsValid reports whether t is a known characteristic type.
func (t CharacteristicType) IsValid() bool {
	switch t {
	case CharConsumptionType, CharChargingPoint, CharConnectionPointStatus:
		return true
	}
	return false
}

// Location is the embedded address of a resource. It is replaced wholesale on update.
type Location struct {
	StreetAddress string `json:"streetAddress"`
	City          string `json:"city"`
	PostalCode    string `json:"postalCode"`
	CountryCode   string `json:"countryCode"`
}

// Characteristic is a key/value attribute owned by exactly one Resource.
type Characteristic struct {
	ID    uuid.UUID
	Code  string
	Type  CharacteristicType
	Value string

	resource *Resource
}

// Resource returns the owning resource, or nil when detached.
func (c *Characteristic) Resource() *Resource {
	return c.resource
}

// Resource is the aggregate root. ID, Type and CountryCode never change after creation.
type Resource struct {
	ID              uuid.UUID
	Type            ResourceType
	CountryCode     string
	Location        Location
	Characteristics []*Characteristic
	CreatedAt       time.Time
	UpdatedAt       time.Time
	Version         int64
}

// NewResource builds an unsaved resource. ID, timestamps and version are assigned on first save.
func NewResource(t ResourceType, countryCode string, loc Location) *Resource {
	return &Resource{
		Type:        t,
		CountryCode: countryCode,
		Location:    loc,
	}
}

// IsNew reports whether the resource has never been persisted.
func (r *Resource) IsNew() bool {
	return r.ID == uuid.Nil
}

// AddCharacteristic appends c and makes r its owner. Duplicates are not checked here.
func (r *Resource) AddCharacteristic(c *Characteristic) {
	r.Characteristics = append(r.Characteristics, c)
	c.resource = r
}

// RemoveCharacteristic detaches c from r. It is a no-op if r does not own c.
func (r *Resource) RemoveCharacteristic(c *Characteristic) {
	for i, existing := range r.Characteristics {
		if existing == c {
			r.Characteristics = append(r.Characteristics[:i], r.Characteristics[i+1:]...)
			c.resource = nil
			return
		}
	}
}

// ReplaceCharacteristics clears the collection and adds every entry of list in order.
func (r *Resource) ReplaceCharacteristics(list []*Characteristic) {
	for _, c := range r.Characteristics {
		c.resource = nil
	}
	r.Characteristics = make([]*Characteristic, 0, len(list))
	for _, c := range list {
		r.AddCharacteristic(c)
	}
}

// Clone returns a deep copy of r with ownership links pointing at the copy.
func (r *Resource) Clone() *Resource {
	out := *r
	out.Characteristics = nil
	for _, c := range r.Characteristics {
		cc := *c
		out.AddCharacteristic(&cc)
	}
	return &out
}
