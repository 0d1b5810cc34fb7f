package sse

import (
	"context"
	"sync"

	"ms-checkin/internal/models"
)

// LiveFeedEmitter manages SSE connections for the two dashboard streams:
// per-event usage summaries and per-user event lists.
type LiveFeedEmitter struct {
	// Usage channel clients - key: eventID
	usageClients     map[string][]chan models.UsageSummary
	usageClientMutex sync.RWMutex

	// Event-list channel clients - key: userID
	listClients     map[string][]chan []models.Event
	listClientMutex sync.RWMutex
}

func NewLiveFeedEmitter() *LiveFeedEmitter {
	return &LiveFeedEmitter{
		usageClients: make(map[string][]chan models.UsageSummary),
		listClients:  make(map[string][]chan []models.Event),
	}
}

// SubscribeToUsage adds a client to an event's usage summary stream. The
// channel closes when ctx ends.
func (e *LiveFeedEmitter) SubscribeToUsage(ctx context.Context, eventID string) chan models.UsageSummary {
	clientChan := make(chan models.UsageSummary, 10)

	e.usageClientMutex.Lock()
	e.usageClients[eventID] = append(e.usageClients[eventID], clientChan)
	e.usageClientMutex.Unlock()

	go func() {
		<-ctx.Done()
		e.removeUsageClient(eventID, clientChan)
	}()

	return clientChan
}

// SubscribeToEventList adds a client to a user's live event list stream.
func (e *LiveFeedEmitter) SubscribeToEventList(ctx context.Context, userID string) chan []models.Event {
	clientChan := make(chan []models.Event, 10)

	e.listClientMutex.Lock()
	e.listClients[userID] = append(e.listClients[userID], clientChan)
	e.listClientMutex.Unlock()

	go func() {
		<-ctx.Done()
		e.removeListClient(userID, clientChan)
	}()

	return clientChan
}

// EmitUsage broadcasts a recomputed summary to every subscriber of its event.
// The read lock is held across the sends: removal closes channels under the
// write lock, so a send can never land on a channel that has been closed.
// Sends are non-blocking, so holding the lock is bounded.
func (e *LiveFeedEmitter) EmitUsage(summary models.UsageSummary) {
	e.usageClientMutex.RLock()
	defer e.usageClientMutex.RUnlock()

	for _, clientChan := range e.usageClients[summary.EventID] {
		// Non-blocking send: a slow dashboard only misses intermediate
		// snapshots, the next emit carries full state anyway.
		select {
		case clientChan <- summary:
		default:
		}
	}
}

// EmitEventList broadcasts a merged event list to one user's subscribers.
// Same locking discipline as EmitUsage.
func (e *LiveFeedEmitter) EmitEventList(userID string, events []models.Event) {
	e.listClientMutex.RLock()
	defer e.listClientMutex.RUnlock()

	for _, clientChan := range e.listClients[userID] {
		select {
		case clientChan <- events:
		default:
		}
	}
}

func (e *LiveFeedEmitter) removeUsageClient(eventID string, clientChan chan models.UsageSummary) {
	e.usageClientMutex.Lock()
	defer e.usageClientMutex.Unlock()

	clients := e.usageClients[eventID]
	for i, ch := range clients {
		if ch == clientChan {
			e.usageClients[eventID] = append(clients[:i], clients[i+1:]...)
			close(clientChan)
			break
		}
	}
	if len(e.usageClients[eventID]) == 0 {
		delete(e.usageClients, eventID)
	}
}

func (e *LiveFeedEmitter) removeListClient(userID string, clientChan chan []models.Event) {
	e.listClientMutex.Lock()
	defer e.listClientMutex.Unlock()

	clients := e.listClients[userID]
	for i, ch := range clients {
		if ch == clientChan {
			e.listClients[userID] = append(clients[:i], clients[i+1:]...)
			close(clientChan)
			break
		}
	}
	if len(e.listClients[userID]) == 0 {
		delete(e.listClients, userID)
	}
}
