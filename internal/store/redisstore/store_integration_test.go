package redisstore_test

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/go-redis/redis/v8"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/wait"

	"ms-checkin/internal/models"
	"ms-checkin/internal/store"
	"ms-checkin/internal/store/redisstore"
)

// startRedis spins up a disposable Redis container and returns a store bound
// to it.
func startRedis(t *testing.T) *redisstore.Store {
	t.Helper()
	if testing.Short() {
		t.Skip("Skipping Redis integration test in short mode")
	}

	ctx := context.Background()
	container, err := testcontainers.GenericContainer(ctx, testcontainers.GenericContainerRequest{
		ContainerRequest: testcontainers.ContainerRequest{
			Image:        "redis:latest",
			ExposedPorts: []string{"6379/tcp"},
			WaitingFor:   wait.ForLog("Ready to accept connections"),
		},
		Started: true,
	})
	if err != nil {
		t.Fatalf("Failed to start Redis container: %v", err)
	}
	t.Cleanup(func() { _ = container.Terminate(ctx) })

	host, err := container.Host(ctx)
	require.NoError(t, err)
	port, err := container.MappedPort(ctx, "6379")
	require.NoError(t, err)

	client := redis.NewClient(&redis.Options{Addr: host + ":" + port.Port()})
	t.Cleanup(func() { _ = client.Close() })

	return redisstore.New(client, nil)
}

func TestDocumentRoundTrip(t *testing.T) {
	st := startRedis(t)
	ctx := context.Background()

	require.NoError(t, st.PutEvent(ctx, models.Event{ID: "E1", Name: "Summer Fest", Status: models.EventStatusActive}))
	require.NoError(t, st.PutUser(ctx, models.User{ID: "u1", Email: "staff@x.com", Role: models.RolePuntoVenta, Status: models.UserStatusActive, AssignedEventIDs: []string{"E1"}}))
	require.NoError(t, st.PutTicket(ctx, "E1", models.Ticket{Code: "T1", Event: models.EventRef{ID: "E1"}, Zone: "VIP"}))

	event, err := st.Event(ctx, "E1")
	require.NoError(t, err)
	assert.Equal(t, "Summer Fest", event.Name)

	user, err := st.UserByEmail(ctx, "staff@x.com")
	require.NoError(t, err)
	assert.Equal(t, "u1", user.ID)
	assert.Equal(t, []string{"E1"}, user.AssignedEventIDs)

	ticket, err := st.Ticket(ctx, "E1", "T1")
	require.NoError(t, err)
	assert.Equal(t, "VIP", ticket.Zone)
	assert.False(t, ticket.Scanned)

	_, err = st.Ticket(ctx, "E1", "missing")
	assert.ErrorIs(t, err, models.ErrNotFound)

	_, err = st.UserByEmail(ctx, "ghost@x.com")
	assert.ErrorIs(t, err, models.ErrNotFound)
}

func TestRedeemTicketIsAtMostOnce(t *testing.T) {
	st := startRedis(t)
	ctx := context.Background()

	require.NoError(t, st.PutTicket(ctx, "E1", models.Ticket{Code: "T1", Event: models.EventRef{ID: "E1"}}))

	// Race concurrent redeems at one ticket; WATCH must let exactly one
	// through.
	const n = 20
	committed := make([]bool, n)
	var wg sync.WaitGroup
	wg.Add(n)
	for i := 0; i < n; i++ {
		go func(i int) {
			defer wg.Done()
			ok, err := st.RedeemTicket(ctx, "E1", "T1", "staff@x.com", time.Now())
			assert.NoError(t, err)
			committed[i] = ok
		}(i)
	}
	wg.Wait()

	wins := 0
	for _, ok := range committed {
		if ok {
			wins++
		}
	}
	assert.Equal(t, 1, wins)

	ticket, err := st.Ticket(ctx, "E1", "T1")
	require.NoError(t, err)
	assert.True(t, ticket.Scanned)
	assert.Equal(t, "staff@x.com", ticket.ScannedBy)
	require.NotNil(t, ticket.ScannedAt)

	// A later redeem attempt reports the predicate already consumed.
	ok, err := st.RedeemTicket(ctx, "E1", "T1", "late@x.com", time.Now())
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestAppendTicketUse(t *testing.T) {
	st := startRedis(t)
	ctx := context.Background()

	require.NoError(t, st.PutTicket(ctx, "E1", models.Ticket{Code: "B1", Event: models.EventRef{ID: "E1"}}))

	at := time.Now().UTC().Truncate(time.Second)
	require.NoError(t, st.AppendTicketUse(ctx, "E1", "B1", models.UsageEntry{User: "staff@x.com", Timestamp: at}))
	require.NoError(t, st.AppendTicketUse(ctx, "E1", "B1", models.UsageEntry{User: "gate@x.com", Timestamp: at.Add(time.Minute)}))

	ticket, err := st.Ticket(ctx, "E1", "B1")
	require.NoError(t, err)
	require.Len(t, ticket.UsageLog, 2)
	assert.Equal(t, "staff@x.com", ticket.UsageLog[0].User)
	assert.Equal(t, "gate@x.com", ticket.UsageLog[1].User)
	assert.True(t, ticket.IsBand())
}

func TestEventsByIDsEnforcesFilterCap(t *testing.T) {
	st := startRedis(t)
	ctx := context.Background()

	ids := make([]string, store.MaxIDFilter+1)
	for i := range ids {
		ids[i] = "e" + string(rune('a'+i))
	}
	_, err := st.EventsByIDs(ctx, ids)
	assert.ErrorIs(t, err, models.ErrTooManyIDs)

	// At the cap, missing ids are simply skipped.
	require.NoError(t, st.PutEvent(ctx, models.Event{ID: "e1", Status: models.EventStatusActive}))
	events, err := st.EventsByIDs(ctx, []string{"e1", "e2", "e3"})
	require.NoError(t, err)
	require.Len(t, events, 1)
	assert.Equal(t, "e1", events[0].ID)
}

func TestSubscribeEventTicketsDeliversOnChange(t *testing.T) {
	st := startRedis(t)
	ctx := context.Background()

	require.NoError(t, st.PutTicket(ctx, "E1", models.Ticket{Code: "T1", Event: models.EventRef{ID: "E1"}}))

	snapshots := make(chan []models.Ticket, 8)
	cancel, err := st.SubscribeEventTickets(ctx, "E1", func(tickets []models.Ticket) {
		snapshots <- tickets
	})
	require.NoError(t, err)
	defer cancel()

	initial := waitForSnapshot(t, snapshots)
	assert.Len(t, initial, 1)

	require.NoError(t, st.PutTicket(ctx, "E1", models.Ticket{Code: "T2", Event: models.EventRef{ID: "E1"}}))

	// Pub/sub delivery is asynchronous; wait for the snapshot that contains
	// the new ticket.
	deadline := time.After(10 * time.Second)
	for {
		snapshot := waitForSnapshotOrDeadline(t, snapshots, deadline)
		if len(snapshot) == 2 {
			return
		}
	}
}

func TestSubscribeEventsByIDs(t *testing.T) {
	st := startRedis(t)
	ctx := context.Background()

	require.NoError(t, st.PutEvent(ctx, models.Event{ID: "E1", Status: models.EventStatusActive}))

	snapshots := make(chan []models.Event, 8)
	cancel, err := st.SubscribeEventsByIDs(ctx, []string{"E1", "E2"}, func(events []models.Event) {
		snapshots <- events
	})
	require.NoError(t, err)
	defer cancel()

	initial := waitForSnapshot(t, snapshots)
	require.Len(t, initial, 1)
	assert.Equal(t, "E1", initial[0].ID)

	require.NoError(t, st.PutEvent(ctx, models.Event{ID: "E2", Status: models.EventStatusActive}))

	deadline := time.After(10 * time.Second)
	for {
		snapshot := waitForSnapshotOrDeadline(t, snapshots, deadline)
		if len(snapshot) == 2 {
			break
		}
	}

	// Cancel is idempotent.
	cancel()
	cancel()
}

func waitForSnapshot[T any](t *testing.T, ch chan []T) []T {
	t.Helper()
	select {
	case snapshot := <-ch:
		return snapshot
	case <-time.After(10 * time.Second):
		t.Fatal("timed out waiting for snapshot")
		return nil
	}
}

func waitForSnapshotOrDeadline[T any](t *testing.T, ch chan []T, deadline <-chan time.Time) []T {
	t.Helper()
	select {
	case snapshot := <-ch:
		return snapshot
	case <-deadline:
		t.Fatal("timed out waiting for updated snapshot")
		return nil
	}
}
