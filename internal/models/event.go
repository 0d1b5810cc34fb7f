package models

import "encoding/json"

// EventStatus values as stored in the events collection.
const (
	EventStatusActive   = "active"
	EventStatusInactive = "inactive"
)

// Zone is a named admission tier within an event. Capacity is only set for
// lot-based events where admission is counted against a quota instead of one
// document per physical ticket.
type Zone struct {
	Name     string `json:"name"`
	Capacity int    `json:"capacity,omitempty"`
	Order    int    `json:"order,omitempty"`
}

// Event is the read-only event document. Owned by the management surface;
// this service never writes it.
//
// EventDate and ExpirationDate are kept raw because legacy documents store
// them as ISO strings, unix seconds or unix millis. utils.ParseFlexibleTime
// normalizes them at the point of use.
type Event struct {
	ID             string          `json:"id"`
	Name           string          `json:"name"`
	Status         string          `json:"status"`
	EventDate      json.RawMessage `json:"eventDate,omitempty"`
	ExpirationDate json.RawMessage `json:"expirationDate,omitempty"`
	Zones          []Zone          `json:"zones,omitempty"`
}

// TicketType is the sibling record for lot-based events: a fixed quantity of
// admissions per zone rather than one ticket document per admission.
type TicketType struct {
	Zone     string `json:"zone"`
	Quantity int    `json:"quantity"`
}
