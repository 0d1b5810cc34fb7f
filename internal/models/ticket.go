package models

import "time"

// UsageEntry is one scan recorded in a band ticket's usage log.
type UsageEntry struct {
	User      string    `json:"user"`
	Timestamp time.Time `json:"timestamp"`
	Location  string    `json:"location,omitempty"`
}

// EventRef is the back-reference a ticket carries to the event it was issued
// under. It must match the event the ticket is looked up through.
type EventRef struct {
	ID string `json:"id"`
}

// Ticket is a single-use or multi-use admission document stored under
// events/{eventID}/tickets/{code}.
type Ticket struct {
	Code         string       `json:"code"`
	Event        EventRef     `json:"event"`
	Zone         string       `json:"zone,omitempty"`
	Location     string       `json:"location,omitempty"`
	TicketNumber string       `json:"ticketNumber,omitempty"`
	Scanned      bool         `json:"scanned"`
	ScannedAt    *time.Time   `json:"scannedAt,omitempty"`
	ScannedBy    string       `json:"scannedBy,omitempty"`
	UsageLog     []UsageEntry `json:"usageLog,omitempty"`
}

// IsBand reports whether the ticket is a multi-use band, tracked through an
// append-only usage log instead of the scanned flag.
func (t *Ticket) IsBand() bool {
	return len(t.UsageLog) > 0
}

// DisplayID is the identifier shown to staff after a scan: the printed ticket
// number when present, the raw code otherwise.
func (t *Ticket) DisplayID() string {
	if t.TicketNumber != "" {
		return t.TicketNumber
	}
	return t.Code
}
