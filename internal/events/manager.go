// Package events maintains the live, merged event list a user sees, on top
// of a store whose membership queries are capped at a small id-batch size.
package events

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"ms-checkin/internal/logger"
	"ms-checkin/internal/models"
	"ms-checkin/internal/permissions"
	"ms-checkin/internal/store"
	"ms-checkin/internal/utils"
)

// EventStore is the slice of the document store the manager needs.
type EventStore interface {
	User(ctx context.Context, uid string) (*models.User, error)
	EventsByIDs(ctx context.Context, ids []string) ([]models.Event, error)
	SubscribeEventsByIDs(ctx context.Context, ids []string, fn store.SnapshotFunc[models.Event]) (store.CancelFunc, error)
	SubscribeActiveEvents(ctx context.Context, fn store.SnapshotFunc[models.Event]) (store.CancelFunc, error)
}

// Manager owns one logical live subscription: the event list for whoever the
// owning surface is currently showing. Subscribing again for a different (or
// the same) user first tears down every batch subscription of the previous
// generation, so stale batches can neither leak listeners nor cross their
// output into the new list.
type Manager struct {
	Store     EventStore
	Logger    *logger.Logger
	BatchSize int // defaults to store.MaxIDFilter

	mu         sync.Mutex
	generation int
	cancels    []store.CancelFunc

	now func() time.Time
}

func NewManager(st EventStore, log *logger.Logger) *Manager {
	return &Manager{Store: st, Logger: log, BatchSize: store.MaxIDFilter}
}

func (m *Manager) batchSize() int {
	if m.BatchSize > 0 {
		return m.BatchSize
	}
	return store.MaxIDFilter
}

func (m *Manager) clock() time.Time {
	if m.now != nil {
		return m.now()
	}
	return time.Now()
}

// SubscribeForUser opens the live event list for uid and delivers every
// merged snapshot to fn. Snapshots arrive in merge order; fn runs under the
// manager's lock and must not call back into the manager. The returned cancel
// is idempotent. Admin roles get every active event; everyone else gets
// exactly their assigned ids.
func (m *Manager) SubscribeForUser(ctx context.Context, uid string, fn func([]models.Event)) (store.CancelFunc, error) {
	user, err := m.Store.User(ctx, uid)
	if err != nil {
		return nil, fmt.Errorf("subscribe events for %s: %w", uid, err)
	}

	m.mu.Lock()
	m.cancelLocked()
	m.generation++
	gen := m.generation
	m.mu.Unlock()

	if permissions.IsAdmin(user.Role) {
		return m.subscribeAll(ctx, gen, fn)
	}
	return m.subscribeAssigned(ctx, gen, user.AssignedEventIDs, fn)
}

// Unsubscribe tears down whatever SubscribeForUser last opened.
func (m *Manager) Unsubscribe() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.cancelLocked()
	m.generation++
}

func (m *Manager) cancelLocked() {
	for _, cancel := range m.cancels {
		cancel()
	}
	m.cancels = nil
}

func (m *Manager) subscribeAll(ctx context.Context, gen int, fn func([]models.Event)) (store.CancelFunc, error) {
	cancel, err := m.Store.SubscribeActiveEvents(ctx, func(snapshot []models.Event) {
		m.mu.Lock()
		defer m.mu.Unlock()
		if gen != m.generation {
			return
		}
		// Deliver under the lock: a superseded generation can never emit
		// after its teardown.
		fn(m.presentable(snapshot))
	})
	if err != nil {
		return nil, fmt.Errorf("subscribe all events: %w", err)
	}

	m.mu.Lock()
	if gen != m.generation {
		// A newer subscription raced us; ours is already obsolete.
		m.mu.Unlock()
		cancel()
		return func() {}, nil
	}
	m.cancels = []store.CancelFunc{cancel}
	m.mu.Unlock()

	if m.Logger != nil {
		m.Logger.LogSubscription("open", "admin", "live list of all active events")
	}
	return m.generationCancel(gen), nil
}

func (m *Manager) subscribeAssigned(ctx context.Context, gen int, ids []string, fn func([]models.Event)) (store.CancelFunc, error) {
	ids = uniqueStrings(ids)
	if len(ids) == 0 {
		fn([]models.Event{})
		return func() {}, nil
	}

	batches := partition(ids, m.batchSize())

	// Merge state shared by this generation's batch callbacks. merged holds
	// the latest surviving document per event id across all batches.
	merged := make(map[string]models.Event)

	var cancels []store.CancelFunc
	for _, batchIDs := range batches {
		batch := batchIDs // captured per batch
		cancel, err := m.Store.SubscribeEventsByIDs(ctx, batch, func(snapshot []models.Event) {
			m.mu.Lock()
			defer m.mu.Unlock()
			if gen != m.generation {
				return
			}

			// This batch owns exactly its ids: drop them all, then re-add
			// what the latest snapshot still contains and what passes the
			// live filter. Deleted or unassigned events disappear without
			// waiting on any other batch.
			for _, id := range batch {
				delete(merged, id)
			}
			now := m.clock()
			for _, event := range snapshot {
				if isLive(event, now) {
					merged[event.ID] = event
				}
			}

			out := make([]models.Event, 0, len(merged))
			for _, event := range merged {
				out = append(out, event)
			}

			// Deliver under the lock. Concurrent batch callbacks otherwise
			// race between merge and emit, and a consumer could see an older
			// merge after a newer one, resurrecting a removed event until
			// the next unrelated notification.
			fn(sortByDateDesc(out))
		})
		if err != nil {
			for _, c := range cancels {
				c()
			}
			return nil, fmt.Errorf("subscribe event batch: %w", err)
		}
		cancels = append(cancels, cancel)
	}

	m.mu.Lock()
	if gen != m.generation {
		m.mu.Unlock()
		for _, c := range cancels {
			c()
		}
		return func() {}, nil
	}
	m.cancels = cancels
	m.mu.Unlock()

	if m.Logger != nil {
		m.Logger.LogSubscription("open", "user", fmt.Sprintf("%d assigned events across %d batches", len(ids), len(batches)))
	}
	return m.generationCancel(gen), nil
}

// generationCancel cancels this generation's subscriptions, and only this
// generation's: once a newer SubscribeForUser has taken over, the handle
// becomes a no-op.
func (m *Manager) generationCancel(gen int) store.CancelFunc {
	return func() {
		m.mu.Lock()
		defer m.mu.Unlock()
		if gen != m.generation {
			return
		}
		m.cancelLocked()
		m.generation++
	}
}

// EventsForUser is the one-shot variant: the same batched fetch, filter and
// sort without a live subscription.
func (m *Manager) EventsForUser(ctx context.Context, uid string) ([]models.Event, error) {
	user, err := m.Store.User(ctx, uid)
	if err != nil {
		return nil, fmt.Errorf("events for %s: %w", uid, err)
	}
	if len(user.AssignedEventIDs) == 0 {
		return []models.Event{}, nil
	}

	now := m.clock()
	var result []models.Event
	for _, batch := range partition(user.AssignedEventIDs, m.batchSize()) {
		events, err := m.Store.EventsByIDs(ctx, batch)
		if err != nil {
			return nil, fmt.Errorf("events for %s: %w", uid, err)
		}
		for _, event := range events {
			if isLive(event, now) {
				result = append(result, event)
			}
		}
	}
	return sortByDateDesc(result), nil
}

// presentable applies the same live filter and ordering the batched path
// uses, so both roles see one contract.
func (m *Manager) presentable(snapshot []models.Event) []models.Event {
	now := m.clock()
	out := make([]models.Event, 0, len(snapshot))
	for _, event := range snapshot {
		if isLive(event, now) {
			out = append(out, event)
		}
	}
	return sortByDateDesc(out)
}

// uniqueStrings preserves first-seen order. A duplicated assignment id must
// not end up owned by two batches.
func uniqueStrings(ids []string) []string {
	seen := make(map[string]struct{}, len(ids))
	out := make([]string, 0, len(ids))
	for _, id := range ids {
		if _, ok := seen[id]; ok {
			continue
		}
		seen[id] = struct{}{}
		out = append(out, id)
	}
	return out
}

func partition(ids []string, size int) [][]string {
	var batches [][]string
	for start := 0; start < len(ids); start += size {
		end := start + size
		if end > len(ids) {
			end = len(ids)
		}
		batches = append(batches, ids[start:end])
	}
	return batches
}

// isLive applies the visibility rule: an explicit non-active status hides the
// event; an expiration date in the past hides it; with no expiration date the
// event must at least carry a readable event date.
func isLive(event models.Event, now time.Time) bool {
	if event.Status != "" && event.Status != models.EventStatusActive {
		return false
	}
	if expiration := utils.ParseFlexibleTime(event.ExpirationDate); !expiration.IsZero() {
		return !now.After(expiration)
	}
	return !utils.ParseFlexibleTime(event.EventDate).IsZero()
}

func sortByDateDesc(events []models.Event) []models.Event {
	sort.SliceStable(events, func(i, j int) bool {
		di := utils.ParseFlexibleTime(events[i].EventDate)
		dj := utils.ParseFlexibleTime(events[j].EventDate)
		if di.Equal(dj) {
			return events[i].ID < events[j].ID
		}
		return di.After(dj)
	})
	return events
}
