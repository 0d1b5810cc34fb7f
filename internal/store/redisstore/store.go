package redisstore

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/go-redis/redis/v8"

	"ms-checkin/internal/logger"
	"ms-checkin/internal/models"
	"ms-checkin/internal/store"
)

// Key layout. One JSON document per key, index sets for collection scans and
// a plain key per email for user lookup.
//
//	events:index                     SET of event ids
//	events:{id}                      Event document
//	events:{id}:types                TicketType array
//	events:{id}:tickets:index        SET of ticket codes
//	events:{id}:tickets:{code}       Ticket document
//	users:{uid}                      User document
//	users:email:{email}              uid
const (
	eventsIndexKey = "events:index"

	eventsChannel        = "ms-checkin.events"
	ticketsChannelPrefix = "ms-checkin.tickets."
)

// Store implements store.Store on Redis. Documents are JSON blobs; the
// conditional redeem commit rides on WATCH/MULTI, and change notification on
// pub/sub channels published after every write.
type Store struct {
	Client *redis.Client
	Logger *logger.Logger
}

func New(client *redis.Client, log *logger.Logger) *Store {
	return &Store{Client: client, Logger: log}
}

// Connect builds a client from config values and verifies the connection.
func Connect(ctx context.Context, addr, password string, db, poolSize int) (*redis.Client, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: password,
		DB:       db,
		PoolSize: poolSize,
	})

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if _, err := client.Ping(pingCtx).Result(); err != nil {
		return nil, fmt.Errorf("connect redis %s: %w: %w", addr, models.ErrTransientStore, err)
	}
	return client, nil
}

func eventKey(eventID string) string   { return "events:" + eventID }
func typesKey(eventID string) string   { return "events:" + eventID + ":types" }
func userKey(uid string) string        { return "users:" + uid }
func emailKey(email string) string     { return "users:email:" + email }
func ticketsIndexKey(id string) string { return "events:" + id + ":tickets:index" }

func ticketKey(eventID, code string) string {
	return "events:" + eventID + ":tickets:" + code
}

func ticketsChannel(eventID string) string {
	return ticketsChannelPrefix + eventID
}

// wrapErr maps redis errors onto the store error taxonomy.
func wrapErr(op string, err error) error {
	if err == redis.Nil {
		return fmt.Errorf("%s: %w", op, models.ErrNotFound)
	}
	return fmt.Errorf("%s: %w: %w", op, models.ErrTransientStore, err)
}

func (s *Store) getJSON(ctx context.Context, op, key string, out interface{}) error {
	raw, err := s.Client.Get(ctx, key).Result()
	if err != nil {
		return wrapErr(op, err)
	}
	if err := json.Unmarshal([]byte(raw), out); err != nil {
		return fmt.Errorf("%s: decode %s: %w", op, key, err)
	}
	return nil
}

func (s *Store) Event(ctx context.Context, eventID string) (*models.Event, error) {
	var event models.Event
	if err := s.getJSON(ctx, "get event", eventKey(eventID), &event); err != nil {
		return nil, err
	}
	event.ID = eventID
	return &event, nil
}

func (s *Store) Ticket(ctx context.Context, eventID, code string) (*models.Ticket, error) {
	var ticket models.Ticket
	if err := s.getJSON(ctx, "get ticket", ticketKey(eventID, code), &ticket); err != nil {
		return nil, err
	}
	ticket.Code = code
	return &ticket, nil
}

func (s *Store) TicketTypes(ctx context.Context, eventID string) ([]models.TicketType, error) {
	var types []models.TicketType
	err := s.getJSON(ctx, "get ticket types", typesKey(eventID), &types)
	if err != nil {
		// Per-ticket events have no sibling type record at all.
		if isNotFound(err) {
			return nil, nil
		}
		return nil, err
	}
	return types, nil
}

func (s *Store) User(ctx context.Context, uid string) (*models.User, error) {
	var user models.User
	if err := s.getJSON(ctx, "get user", userKey(uid), &user); err != nil {
		return nil, err
	}
	user.ID = uid
	return &user, nil
}

func (s *Store) UserByEmail(ctx context.Context, email string) (*models.User, error) {
	uid, err := s.Client.Get(ctx, emailKey(email)).Result()
	if err != nil {
		return nil, wrapErr("get user by email", err)
	}
	return s.User(ctx, uid)
}

// EventsByIDs is the membership-filtered query of the capability contract.
// It refuses more than store.MaxIDFilter ids; batching above that is the
// subscription manager's job.
func (s *Store) EventsByIDs(ctx context.Context, ids []string) ([]models.Event, error) {
	if len(ids) == 0 {
		return nil, nil
	}
	if len(ids) > store.MaxIDFilter {
		return nil, fmt.Errorf("events by ids: %w (%d > %d)", models.ErrTooManyIDs, len(ids), store.MaxIDFilter)
	}

	keys := make([]string, len(ids))
	for i, id := range ids {
		keys[i] = eventKey(id)
	}

	raws, err := s.Client.MGet(ctx, keys...).Result()
	if err != nil {
		return nil, wrapErr("events by ids", err)
	}

	events := make([]models.Event, 0, len(ids))
	for i, raw := range raws {
		str, ok := raw.(string)
		if !ok {
			continue // id not present
		}
		var event models.Event
		if err := json.Unmarshal([]byte(str), &event); err != nil {
			if s.Logger != nil {
				s.Logger.Warn("STORE", fmt.Sprintf("skipping malformed event document %s: %v", ids[i], err))
			}
			continue
		}
		event.ID = ids[i]
		events = append(events, event)
	}
	return events, nil
}

// EventTickets returns every ticket document under an event, skipping any
// that fail to decode.
func (s *Store) EventTickets(ctx context.Context, eventID string) ([]models.Ticket, error) {
	codes, err := s.Client.SMembers(ctx, ticketsIndexKey(eventID)).Result()
	if err != nil {
		return nil, wrapErr("list tickets", err)
	}
	if len(codes) == 0 {
		return nil, nil
	}

	keys := make([]string, len(codes))
	for i, code := range codes {
		keys[i] = ticketKey(eventID, code)
	}
	raws, err := s.Client.MGet(ctx, keys...).Result()
	if err != nil {
		return nil, wrapErr("list tickets", err)
	}

	tickets := make([]models.Ticket, 0, len(codes))
	for i, raw := range raws {
		str, ok := raw.(string)
		if !ok {
			continue
		}
		var ticket models.Ticket
		if err := json.Unmarshal([]byte(str), &ticket); err != nil {
			if s.Logger != nil {
				s.Logger.Warn("STORE", fmt.Sprintf("skipping malformed ticket document %s/%s: %v", eventID, codes[i], err))
			}
			continue
		}
		ticket.Code = codes[i]
		tickets = append(tickets, ticket)
	}
	return tickets, nil
}

// Seeding writes. Events, users and the ticket inventory are owned by
// external surfaces; these exist for provisioning tools and tests, and they
// publish change notifications the same way the external writers do.

func (s *Store) PutEvent(ctx context.Context, event models.Event) error {
	buf, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("put event: %w", err)
	}
	pipe := s.Client.TxPipeline()
	pipe.Set(ctx, eventKey(event.ID), buf, 0)
	pipe.SAdd(ctx, eventsIndexKey, event.ID)
	if _, err := pipe.Exec(ctx); err != nil {
		return wrapErr("put event", err)
	}
	s.publish(ctx, eventsChannel)
	return nil
}

func (s *Store) DeleteEvent(ctx context.Context, eventID string) error {
	pipe := s.Client.TxPipeline()
	pipe.Del(ctx, eventKey(eventID))
	pipe.SRem(ctx, eventsIndexKey, eventID)
	if _, err := pipe.Exec(ctx); err != nil {
		return wrapErr("delete event", err)
	}
	s.publish(ctx, eventsChannel)
	return nil
}

func (s *Store) PutTicket(ctx context.Context, eventID string, ticket models.Ticket) error {
	buf, err := json.Marshal(ticket)
	if err != nil {
		return fmt.Errorf("put ticket: %w", err)
	}
	pipe := s.Client.TxPipeline()
	pipe.Set(ctx, ticketKey(eventID, ticket.Code), buf, 0)
	pipe.SAdd(ctx, ticketsIndexKey(eventID), ticket.Code)
	if _, err := pipe.Exec(ctx); err != nil {
		return wrapErr("put ticket", err)
	}
	s.publish(ctx, ticketsChannel(eventID))
	return nil
}

func (s *Store) PutTicketTypes(ctx context.Context, eventID string, types []models.TicketType) error {
	buf, err := json.Marshal(types)
	if err != nil {
		return fmt.Errorf("put ticket types: %w", err)
	}
	if err := s.Client.Set(ctx, typesKey(eventID), buf, 0).Err(); err != nil {
		return wrapErr("put ticket types", err)
	}
	return nil
}

func (s *Store) PutUser(ctx context.Context, user models.User) error {
	buf, err := json.Marshal(user)
	if err != nil {
		return fmt.Errorf("put user: %w", err)
	}
	pipe := s.Client.TxPipeline()
	pipe.Set(ctx, userKey(user.ID), buf, 0)
	if user.Email != "" {
		pipe.Set(ctx, emailKey(user.Email), user.ID, 0)
	}
	if _, err := pipe.Exec(ctx); err != nil {
		return wrapErr("put user", err)
	}
	return nil
}

func (s *Store) publish(ctx context.Context, channel string) {
	if err := s.Client.Publish(ctx, channel, "changed").Err(); err != nil && s.Logger != nil {
		s.Logger.Warn("STORE", fmt.Sprintf("publish %s failed: %v", channel, err))
	}
}
