// Package scanner implements the redemption protocol: validate a scanned
// code, then commit the at-most-once "used" transition through the store's
// conditional write.
package scanner

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"ms-checkin/internal/logger"
	"ms-checkin/internal/models"
	"ms-checkin/internal/permissions"
)

// TicketStore is the slice of the document store the redemption engine needs.
type TicketStore interface {
	Event(ctx context.Context, eventID string) (*models.Event, error)
	Ticket(ctx context.Context, eventID, code string) (*models.Ticket, error)
	RedeemTicket(ctx context.Context, eventID, code, by string, at time.Time) (bool, error)
	AppendTicketUse(ctx context.Context, eventID, code string, entry models.UsageEntry) error
}

// UserDirectory resolves the acting user from the scanned session's email.
type UserDirectory interface {
	UserByEmail(ctx context.Context, email string) (*models.User, error)
}

// AuditLog records scan attempts locally. Failures are logged and swallowed;
// the store commit has already happened by the time records are written.
type AuditLog interface {
	RecordScan(ctx context.Context, record models.ScanRecord) error
}

// Publisher streams successful redemptions to downstream consumers.
type Publisher interface {
	PublishTicketRedeemed(ctx context.Context, result models.RedemptionResult) error
}

type Service struct {
	Tickets   TicketStore
	Users     UserDirectory
	Audit     AuditLog  // optional
	Publisher Publisher // optional
	Logger    *logger.Logger

	// Retries/Backoff apply to validation reads only. The conditional
	// commit is never blindly retried.
	Retries int
	Backoff time.Duration

	now func() time.Time
}

func NewService(tickets TicketStore, users UserDirectory) *Service {
	return &Service{
		Tickets: tickets,
		Users:   users,
		Retries: 2,
		Backoff: 150 * time.Millisecond,
		now:     time.Now,
	}
}

func (s *Service) clock() time.Time {
	if s.now != nil {
		return s.now()
	}
	return time.Now()
}

// SanitizeCode normalizes a scanned payload: surrounding whitespace and
// embedded newlines go (hardware scanners append them), and so do slashes,
// which cannot appear in a document path.
func SanitizeCode(raw string) string {
	out := strings.TrimSpace(raw)
	out = strings.Map(func(r rune) rune {
		switch r {
		case ' ', '\r', '\n', '\t', '/':
			return -1
		}
		return r
	}, out)
	return out
}

// Redeem runs the scan-validate-commit protocol for a single-use ticket.
// Terminal outcomes come back in the result; only transient store failures
// (after retries) and decode-level surprises come back as errors.
func (s *Service) Redeem(ctx context.Context, code, eventID, userEmail string) (*models.RedemptionResult, error) {
	return s.redeem(ctx, code, eventID, userEmail, models.ScanUseTicket)
}

// RedeemBand is the band-ticket variant: same protocol, tagged for display
// and statistics. A successful band scan additionally appends to the
// ticket's usage log; the scanned flag still blocks any second scan.
func (s *Service) RedeemBand(ctx context.Context, code, eventID, userEmail string) (*models.RedemptionResult, error) {
	return s.redeem(ctx, code, eventID, userEmail, models.ScanUseBand)
}

func (s *Service) redeem(ctx context.Context, rawCode, eventID, userEmail, scanUse string) (*models.RedemptionResult, error) {
	result := &models.RedemptionResult{EventID: eventID, ScanUse: scanUse}

	code := SanitizeCode(rawCode)
	if code == "" {
		result.Outcome = models.OutcomeInvalidCode
		return result, nil
	}
	result.Code = code

	email := strings.ToLower(strings.TrimSpace(userEmail))
	if email == "" {
		result.Outcome = models.OutcomeUnknownUser
		return result, nil
	}

	// The ticket and user fetches are independent; run them together.
	var (
		ticket *models.Ticket
		user   *models.User
	)
	eg, egCtx := errgroup.WithContext(ctx)
	eg.Go(func() error {
		return s.retryRead(egCtx, func() error {
			t, err := s.Tickets.Ticket(egCtx, eventID, code)
			if err != nil {
				if errors.Is(err, models.ErrNotFound) {
					return nil
				}
				return err
			}
			ticket = t
			return nil
		})
	})
	eg.Go(func() error {
		return s.retryRead(egCtx, func() error {
			u, err := s.Users.UserByEmail(egCtx, email)
			if err != nil {
				if errors.Is(err, models.ErrNotFound) {
					return nil
				}
				return err
			}
			user = u
			return nil
		})
	})
	if err := eg.Wait(); err != nil {
		return nil, fmt.Errorf("redeem validation reads: %w", err)
	}

	if ticket == nil {
		result.Outcome = models.OutcomeTicketNotFound
		return s.finish(ctx, result), nil
	}
	result.Ticket = ticket

	if user == nil {
		result.Outcome = models.OutcomeUnknownUser
		return s.finish(ctx, result), nil
	}

	if !permissions.CanScan(user, eventID) {
		result.Outcome = models.OutcomePermissionDenied
		return s.finish(ctx, result), nil
	}

	// A ticket fetched under this event's path can still reference another
	// event; such tickets must never redeem cross-event.
	if ticket.Event.ID != "" && ticket.Event.ID != eventID {
		result.Outcome = models.OutcomeEventMismatch
		return s.finish(ctx, result), nil
	}

	if ticket.Scanned {
		result.Outcome = models.OutcomeAlreadyRedeemed
		result.ScannedBy = ticket.ScannedBy
		return s.finish(ctx, result), nil
	}

	// The commit. Only the store's conditional write decides the race;
	// everything above was advisory.
	now := s.clock()
	committed, err := s.Tickets.RedeemTicket(ctx, eventID, code, email, now)
	if err != nil {
		// An ambiguous failure may have applied. Re-read before reporting:
		// if the ticket is marked now, someone (possibly us) won, and the
		// correct answer is AlreadyRedeemed, not a duplicate success.
		if fresh, readErr := s.Tickets.Ticket(ctx, eventID, code); readErr == nil && fresh.Scanned {
			result.Outcome = models.OutcomeAlreadyRedeemed
			result.ScannedBy = fresh.ScannedBy
			result.Ticket = fresh
			return s.finish(ctx, result), nil
		}
		return nil, fmt.Errorf("redeem commit: %w", err)
	}

	if !committed {
		// Lost the race. Fetch the winner for display.
		result.Outcome = models.OutcomeAlreadyRedeemed
		if fresh, readErr := s.Tickets.Ticket(ctx, eventID, code); readErr == nil {
			result.ScannedBy = fresh.ScannedBy
			result.Ticket = fresh
		}
		return s.finish(ctx, result), nil
	}

	scannedAt := now.UTC()
	snapshot := *ticket
	snapshot.Scanned = true
	snapshot.ScannedAt = &scannedAt
	snapshot.ScannedBy = email
	result.Outcome = models.OutcomeRedeemed
	result.Ticket = &snapshot

	if scanUse == models.ScanUseBand {
		entry := models.UsageEntry{User: email, Timestamp: scannedAt, Location: ticket.Location}
		if err := s.Tickets.AppendTicketUse(ctx, eventID, code, entry); err != nil && s.Logger != nil {
			s.Logger.Warn("SCAN", fmt.Sprintf("band usage log append failed for %s/%s: %v", eventID, code, err))
		} else {
			snapshot.UsageLog = append(snapshot.UsageLog, entry)
		}
	}

	if s.Publisher != nil {
		if err := s.Publisher.PublishTicketRedeemed(ctx, *result); err != nil && s.Logger != nil {
			s.Logger.Warn("SCAN", fmt.Sprintf("publish redeemed %s/%s failed: %v", eventID, code, err))
		}
	}

	return s.finish(ctx, result), nil
}

// EventName returns the event's display name for the scanner header, with a
// neutral fallback when the event cannot be read.
func (s *Service) EventName(ctx context.Context, eventID string) string {
	const fallback = "Event Scanner"
	event, err := s.Tickets.Event(ctx, eventID)
	if err != nil || event.Name == "" {
		return fallback
	}
	return event.Name
}

// finish writes the audit record and logs the outcome. Terminal outcomes
// only; best-effort by design.
func (s *Service) finish(ctx context.Context, result *models.RedemptionResult) *models.RedemptionResult {
	if s.Logger != nil {
		s.Logger.LogScan(string(result.Outcome), result.EventID, result.Code, "scan resolved")
	}
	if s.Audit != nil {
		record := models.ScanRecord{
			ID:        uuid.New().String(),
			EventID:   result.EventID,
			Code:      result.Code,
			Outcome:   string(result.Outcome),
			ScanUse:   result.ScanUse,
			ScannedAt: s.clock().UTC(),
		}
		if result.Ticket != nil {
			record.Zone = result.Ticket.Zone
		}
		if result.Outcome == models.OutcomeRedeemed && result.Ticket != nil {
			record.ScannedBy = result.Ticket.ScannedBy
		} else {
			record.ScannedBy = result.ScannedBy
		}
		if err := s.Audit.RecordScan(ctx, record); err != nil && s.Logger != nil {
			s.Logger.Warn("SCAN", fmt.Sprintf("audit record failed: %v", err))
		}
	}
	return result
}

// retryRead retries transient store failures with doubling backoff. Anything
// else returns immediately.
func (s *Service) retryRead(ctx context.Context, fn func() error) error {
	backoff := s.Backoff
	for attempt := 0; ; attempt++ {
		err := fn()
		if err == nil || !errors.Is(err, models.ErrTransientStore) || attempt >= s.Retries {
			return err
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(backoff):
		}
		backoff *= 2
	}
}
