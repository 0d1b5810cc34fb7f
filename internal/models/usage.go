package models

// UserUsage is one user's redemption activity within an event.
type UserUsage struct {
	Total int            `json:"total"`
	Zones map[string]int `json:"zones"`
}

// ZoneRemaining reports quota consumption for one zone of a lot-based event.
// Remaining can go negative when a zone is over-scanned; that is reported,
// never clamped away.
type ZoneRemaining struct {
	Zone      string `json:"zone"`
	Capacity  int    `json:"capacity"`
	Scanned   int    `json:"scanned"`
	Remaining int    `json:"remaining"`
}

// UsageSummary is the derived, fully recomputed view of an event's scan
// activity. It is rebuilt from the ticket snapshot on every change and never
// persisted as source of truth.
//
// TicketUsers and BandUsers are kept separate: single-use counts come from
// the scanned flag, band counts from usage-log entries, and the two are not
// comparable.
type UsageSummary struct {
	EventID        string               `json:"eventId"`
	TicketUsers    map[string]UserUsage `json:"ticketUsers"`
	BandUsers      map[string]UserUsage `json:"bandUsers"`
	ZoneCounts     map[string]int       `json:"zoneCounts"`
	LocationCounts map[string]int       `json:"locationCounts"`
	Remaining      []ZoneRemaining      `json:"remaining,omitempty"`
	OverCapacity   []string             `json:"overCapacity,omitempty"`
	TicketsScanned int                  `json:"ticketsScanned"`
	BandScans      int                  `json:"bandScans"`
}
