package redisstore

import (
	"context"
	"fmt"
	"sync"

	"ms-checkin/internal/models"
	"ms-checkin/internal/store"
)

// subscribe wires one pub/sub channel to a snapshot deliverer: the full
// current state is delivered once right away and again after every change
// notification. The returned cancel is idempotent.
//
// The subscription is confirmed before the first snapshot is fetched, so a
// write landing between the two is never missed; at worst the same snapshot
// is delivered twice, which every consumer treats as idempotent.
func (s *Store) subscribe(ctx context.Context, channel string, deliver func(ctx context.Context)) (store.CancelFunc, error) {
	subCtx, cancelCtx := context.WithCancel(ctx)

	pubsub := s.Client.Subscribe(subCtx, channel)
	if _, err := pubsub.Receive(subCtx); err != nil {
		cancelCtx()
		_ = pubsub.Close()
		return nil, wrapErr("subscribe "+channel, err)
	}

	notifications := pubsub.Channel()

	go func() {
		deliver(subCtx)
		for {
			select {
			case <-subCtx.Done():
				return
			case _, ok := <-notifications:
				if !ok {
					return
				}
				deliver(subCtx)
			}
		}
	}()

	var once sync.Once
	cancel := func() {
		once.Do(func() {
			_ = pubsub.Close()
			cancelCtx()
		})
	}
	return cancel, nil
}

func (s *Store) SubscribeEventsByIDs(ctx context.Context, ids []string, fn store.SnapshotFunc[models.Event]) (store.CancelFunc, error) {
	if len(ids) > store.MaxIDFilter {
		return nil, fmt.Errorf("subscribe events by ids: %w (%d > %d)", models.ErrTooManyIDs, len(ids), store.MaxIDFilter)
	}
	batch := append([]string(nil), ids...)

	deliver := func(ctx context.Context) {
		events, err := s.EventsByIDs(ctx, batch)
		if err != nil {
			if s.Logger != nil && ctx.Err() == nil {
				s.Logger.Warn("STORE", fmt.Sprintf("events-by-ids snapshot failed: %v", err))
			}
			return
		}
		fn(events)
	}
	return s.subscribe(ctx, eventsChannel, deliver)
}

// SubscribeActiveEvents is the unbatched superadmin stream: every event with
// status=active, no id filter.
func (s *Store) SubscribeActiveEvents(ctx context.Context, fn store.SnapshotFunc[models.Event]) (store.CancelFunc, error) {
	deliver := func(ctx context.Context) {
		ids, err := s.Client.SMembers(ctx, eventsIndexKey).Result()
		if err != nil {
			if s.Logger != nil && ctx.Err() == nil {
				s.Logger.Warn("STORE", fmt.Sprintf("active-events snapshot failed: %v", err))
			}
			return
		}

		active := make([]models.Event, 0, len(ids))
		for start := 0; start < len(ids); start += store.MaxIDFilter {
			end := start + store.MaxIDFilter
			if end > len(ids) {
				end = len(ids)
			}
			events, err := s.EventsByIDs(ctx, ids[start:end])
			if err != nil {
				if s.Logger != nil && ctx.Err() == nil {
					s.Logger.Warn("STORE", fmt.Sprintf("active-events snapshot failed: %v", err))
				}
				return
			}
			for _, event := range events {
				if event.Status == models.EventStatusActive {
					active = append(active, event)
				}
			}
		}
		fn(active)
	}
	return s.subscribe(ctx, eventsChannel, deliver)
}

func (s *Store) SubscribeEventTickets(ctx context.Context, eventID string, fn store.SnapshotFunc[models.Ticket]) (store.CancelFunc, error) {
	deliver := func(ctx context.Context) {
		tickets, err := s.EventTickets(ctx, eventID)
		if err != nil {
			if s.Logger != nil && ctx.Err() == nil {
				s.Logger.Warn("STORE", fmt.Sprintf("ticket snapshot for %s failed: %v", eventID, err))
			}
			return
		}
		fn(tickets)
	}
	return s.subscribe(ctx, ticketsChannel(eventID), deliver)
}
