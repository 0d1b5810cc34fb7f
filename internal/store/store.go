package store

import (
	"context"
	"time"

	"ms-checkin/internal/models"
)

// MaxIDFilter is the largest id set a single membership query accepts.
// Callers with more ids must batch; the subscription manager does exactly
// that.
const MaxIDFilter = 10

// CancelFunc tears down a live subscription. Implementations must make it
// idempotent; cancelling twice is a no-op.
type CancelFunc func()

// SnapshotFunc receives the full current state of a subscribed collection,
// first right after subscribing and again after every change.
type SnapshotFunc[T any] func(snapshot []T)

// Store is the document-store capability this service is built against:
// point reads, one conditional write, a bounded membership query and
// streaming subscriptions. The engine behind it (Redis here) is swappable as
// long as the conditional write is atomic.
type Store interface {
	Event(ctx context.Context, eventID string) (*models.Event, error)
	Ticket(ctx context.Context, eventID, code string) (*models.Ticket, error)
	TicketTypes(ctx context.Context, eventID string) ([]models.TicketType, error)
	User(ctx context.Context, uid string) (*models.User, error)
	UserByEmail(ctx context.Context, email string) (*models.User, error)

	// RedeemTicket atomically sets scanned=true, scannedAt and scannedBy,
	// but only if scanned was still false at commit time. Returns false
	// when the predicate no longer held, i.e. the caller lost the race.
	RedeemTicket(ctx context.Context, eventID, code, by string, at time.Time) (bool, error)

	// AppendTicketUse appends one entry to a band ticket's usage log.
	AppendTicketUse(ctx context.Context, eventID, code string, entry models.UsageEntry) error

	// EventsByIDs fetches the events whose ids are in the given set. The
	// set must not exceed MaxIDFilter; missing ids are simply absent from
	// the result.
	EventsByIDs(ctx context.Context, ids []string) ([]models.Event, error)

	SubscribeEventsByIDs(ctx context.Context, ids []string, fn SnapshotFunc[models.Event]) (CancelFunc, error)
	SubscribeActiveEvents(ctx context.Context, fn SnapshotFunc[models.Event]) (CancelFunc, error)
	SubscribeEventTickets(ctx context.Context, eventID string, fn SnapshotFunc[models.Ticket]) (CancelFunc, error)
}
