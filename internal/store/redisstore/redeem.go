package redisstore

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/go-redis/redis/v8"

	"ms-checkin/internal/models"
)

// casAttempts bounds how often a WATCH transaction is replayed when another
// writer touches the ticket key mid-flight. Every replay re-reads the ticket,
// so a commit that already happened elsewhere degrades to "lost the race"
// instead of a duplicate success.
const casAttempts = 5

func isNotFound(err error) bool {
	return errors.Is(err, models.ErrNotFound)
}

// RedeemTicket is the single correctness-critical write of the whole system:
// scanned flips false -> true at most once, no matter how many scanners race.
// Returns true if this call performed the flip, false if scanned was already
// true when the transaction read the document.
func (s *Store) RedeemTicket(ctx context.Context, eventID, code, by string, at time.Time) (bool, error) {
	key := ticketKey(eventID, code)
	committed := false

	txf := func(tx *redis.Tx) error {
		raw, err := tx.Get(ctx, key).Result()
		if err == redis.Nil {
			return fmt.Errorf("redeem: %w", models.ErrNotFound)
		}
		if err != nil {
			return wrapErr("redeem", err)
		}

		var ticket models.Ticket
		if err := json.Unmarshal([]byte(raw), &ticket); err != nil {
			return fmt.Errorf("redeem: decode %s: %w", key, err)
		}

		if ticket.Scanned {
			committed = false
			return nil // leave the document untouched
		}

		scannedAt := at.UTC()
		ticket.Scanned = true
		ticket.ScannedAt = &scannedAt
		ticket.ScannedBy = by

		buf, err := json.Marshal(ticket)
		if err != nil {
			return fmt.Errorf("redeem: encode %s: %w", key, err)
		}

		_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			pipe.Set(ctx, key, buf, 0)
			return nil
		})
		if err != nil {
			return err
		}
		committed = true
		return nil
	}

	for attempt := 0; attempt < casAttempts; attempt++ {
		committed = false
		err := s.Client.Watch(ctx, txf, key)
		if err == redis.TxFailedErr {
			// Another writer got in between read and commit. Replay: the
			// fresh read decides whether we still have anything to do.
			continue
		}
		if err != nil {
			if isNotFound(err) || errors.Is(err, models.ErrTransientStore) {
				return false, err
			}
			return false, wrapErr("redeem", err)
		}
		if committed {
			s.publish(ctx, ticketsChannel(eventID))
		}
		return committed, nil
	}

	return false, fmt.Errorf("redeem %s: %w: transaction contention", key, models.ErrTransientStore)
}

// AppendTicketUse appends one usage-log entry to a band ticket under the same
// WATCH discipline, so concurrent band scans never drop entries.
func (s *Store) AppendTicketUse(ctx context.Context, eventID, code string, entry models.UsageEntry) error {
	key := ticketKey(eventID, code)

	txf := func(tx *redis.Tx) error {
		raw, err := tx.Get(ctx, key).Result()
		if err == redis.Nil {
			return fmt.Errorf("append use: %w", models.ErrNotFound)
		}
		if err != nil {
			return wrapErr("append use", err)
		}

		var ticket models.Ticket
		if err := json.Unmarshal([]byte(raw), &ticket); err != nil {
			return fmt.Errorf("append use: decode %s: %w", key, err)
		}

		ticket.UsageLog = append(ticket.UsageLog, entry)

		buf, err := json.Marshal(ticket)
		if err != nil {
			return fmt.Errorf("append use: encode %s: %w", key, err)
		}

		_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			pipe.Set(ctx, key, buf, 0)
			return nil
		})
		return err
	}

	for attempt := 0; attempt < casAttempts; attempt++ {
		err := s.Client.Watch(ctx, txf, key)
		if err == redis.TxFailedErr {
			continue
		}
		if err != nil {
			if isNotFound(err) || errors.Is(err, models.ErrTransientStore) {
				return err
			}
			return wrapErr("append use", err)
		}
		s.publish(ctx, ticketsChannel(eventID))
		return nil
	}

	return fmt.Errorf("append use %s: %w: transaction contention", key, models.ErrTransientStore)
}
