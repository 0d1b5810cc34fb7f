// Package usage turns the raw ticket collection of one event into live
// per-user and per-zone summaries. Every snapshot is recomputed from scratch;
// snapshot sizes are bounded per event, and a full recompute cannot drift.
package usage

import (
	"context"
	"fmt"

	"ms-checkin/internal/logger"
	"ms-checkin/internal/models"
	"ms-checkin/internal/store"
)

// Fallback labels for documents missing the field.
const (
	unknownUser     = "unknown"
	unknownZone     = "no-zone"
	unknownLocation = "no-location"
)

// TicketStream is the slice of the document store the aggregator needs.
type TicketStream interface {
	TicketTypes(ctx context.Context, eventID string) ([]models.TicketType, error)
	EventTickets(ctx context.Context, eventID string) ([]models.Ticket, error)
	SubscribeEventTickets(ctx context.Context, eventID string, fn store.SnapshotFunc[models.Ticket]) (store.CancelFunc, error)
}

// Emitter receives every recomputed summary; the SSE fanout implements it.
type Emitter interface {
	EmitUsage(summary models.UsageSummary)
}

type Aggregator struct {
	Store   TicketStream
	Logger  *logger.Logger
	Emitter Emitter // optional
}

func NewAggregator(st TicketStream, log *logger.Logger) *Aggregator {
	return &Aggregator{Store: st, Logger: log}
}

// SubscribeUsage attaches to the event's ticket stream and delivers a freshly
// computed summary on the initial snapshot and after every change. The
// ticket-type record (lot-based capacity) is read once up front; events
// without one simply have no remaining-capacity section.
func (a *Aggregator) SubscribeUsage(ctx context.Context, eventID string, fn func(models.UsageSummary)) (store.CancelFunc, error) {
	types, err := a.Store.TicketTypes(ctx, eventID)
	if err != nil {
		if a.Logger != nil {
			a.Logger.Warn("USAGE", fmt.Sprintf("ticket types for %s unavailable: %v", eventID, err))
		}
		types = nil
	}

	cancel, err := a.Store.SubscribeEventTickets(ctx, eventID, func(tickets []models.Ticket) {
		summary := Compute(eventID, tickets, types)
		if a.Logger != nil {
			a.Logger.LogUsage(eventID, fmt.Sprintf("recomputed: %d single-use, %d band, %d zones",
				summary.TicketsScanned, summary.BandScans, len(summary.ZoneCounts)))
		}
		if fn != nil {
			fn(summary)
		}
		if a.Emitter != nil {
			a.Emitter.EmitUsage(summary)
		}
	})
	if err != nil {
		return nil, fmt.Errorf("subscribe usage for %s: %w", eventID, err)
	}
	return cancel, nil
}

// Snapshot computes the summary once from the current collection state,
// without opening a subscription.
func (a *Aggregator) Snapshot(ctx context.Context, eventID string) (models.UsageSummary, error) {
	types, err := a.Store.TicketTypes(ctx, eventID)
	if err != nil {
		return models.UsageSummary{}, fmt.Errorf("usage snapshot for %s: %w", eventID, err)
	}
	tickets, err := a.Store.EventTickets(ctx, eventID)
	if err != nil {
		return models.UsageSummary{}, fmt.Errorf("usage snapshot for %s: %w", eventID, err)
	}
	return Compute(eventID, tickets, types), nil
}

// Compute builds the summary for one ticket snapshot. Pure and idempotent:
// the same snapshot always produces the same summary.
//
// Band tickets (non-empty usage log) and scanned single-use tickets each
// count once toward their zone and location; unscanned single-use tickets are
// excluded entirely. Band and single-use users are kept in separate maps
// because their counts come from different sources of truth.
func Compute(eventID string, tickets []models.Ticket, types []models.TicketType) models.UsageSummary {
	summary := models.UsageSummary{
		EventID:        eventID,
		TicketUsers:    make(map[string]models.UserUsage),
		BandUsers:      make(map[string]models.UserUsage),
		ZoneCounts:     make(map[string]int),
		LocationCounts: make(map[string]int),
	}

	for _, ticket := range tickets {
		zone := ticket.Zone
		if zone == "" {
			zone = unknownZone
		}
		location := ticket.Location
		if location == "" {
			location = unknownLocation
		}

		switch {
		case ticket.IsBand():
			user := bandUser(&ticket)
			addUsage(summary.BandUsers, user, zone)
			summary.ZoneCounts[zone]++
			summary.LocationCounts[location]++
			summary.BandScans++

		case ticket.Scanned:
			user := ticket.ScannedBy
			if user == "" {
				user = unknownUser
			}
			addUsage(summary.TicketUsers, user, zone)
			summary.ZoneCounts[zone]++
			summary.LocationCounts[location]++
			summary.TicketsScanned++
		}
	}

	// Lot-based events: remaining quota per zone. Over-scanned zones go
	// negative and are reported, never clamped.
	for _, ticketType := range types {
		scanned := summary.ZoneCounts[ticketType.Zone]
		remaining := ticketType.Quantity - scanned
		summary.Remaining = append(summary.Remaining, models.ZoneRemaining{
			Zone:      ticketType.Zone,
			Capacity:  ticketType.Quantity,
			Scanned:   scanned,
			Remaining: remaining,
		})
		if remaining < 0 {
			summary.OverCapacity = append(summary.OverCapacity, ticketType.Zone)
		}
	}

	return summary
}

func addUsage(users map[string]models.UserUsage, user, zone string) {
	usage, ok := users[user]
	if !ok {
		usage = models.UserUsage{Zones: make(map[string]int)}
	}
	usage.Total++
	usage.Zones[zone]++
	users[user] = usage
}

// bandUser picks who to attribute a band ticket to: the scanner of record,
// falling back to the most recent usage-log entry.
func bandUser(ticket *models.Ticket) string {
	if ticket.ScannedBy != "" {
		return ticket.ScannedBy
	}
	if n := len(ticket.UsageLog); n > 0 && ticket.UsageLog[n-1].User != "" {
		return ticket.UsageLog[n-1].User
	}
	return unknownUser
}
