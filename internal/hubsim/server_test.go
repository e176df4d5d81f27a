package hubsim

import (
	"context"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/Quanghau123/smarttasty-realtime/internal/logging"
	"github.com/Quanghau123/smarttasty-realtime/pkg/hub"
	"github.com/Quanghau123/smarttasty-realtime/pkg/realtime"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func startSimulator(t *testing.T) (*Server, string) {
	t.Helper()

	logger := logging.New(logging.Config{Level: "error", Format: "text"})
	server := NewServer(logger, DefaultServerOptions())

	ts := httptest.NewServer(server.Router())
	t.Cleanup(ts.Close)

	wsURL := "ws" + strings.TrimPrefix(ts.URL, "http") + "/hubs/restaurant"
	return server, wsURL
}

func newSimClient(t *testing.T, wsURL, userID string) *realtime.Client {
	t.Helper()

	client := realtime.NewClient(realtime.Options{
		URL:               wsURL,
		UserID:            userID,
		Logger:            logging.New(logging.Config{Level: "error", Format: "text"}),
		HeartbeatInterval: 50 * time.Millisecond,
		ReconnectWaits:    []time.Duration{10 * time.Millisecond},
	})
	t.Cleanup(client.Disconnect)
	return client
}

func TestRatingUpdateRoundTrip(t *testing.T) {
	server, wsURL := startSimulator(t)
	client := newSimClient(t, wsURL, "alice")

	ctx := context.Background()
	require.NoError(t, client.Connect(ctx))
	assert.NotEmpty(t, client.ConnectionID())

	updates := make(chan hub.RatingUpdate, 8)
	client.OnRatingUpdate(func(u hub.RatingUpdate) { updates <- u })

	client.JoinRoom(ctx, hub.RestaurantRoom(7))
	require.Eventually(t, func() bool {
		return server.RoomSize(hub.RestaurantRoom(7)) == 1
	}, 2*time.Second, 10*time.Millisecond)

	delivered := server.PushRating(7, hub.RatingUpdate{AverageRating: 4.7, TotalReviews: 21})
	require.Equal(t, 1, delivered)

	select {
	case got := <-updates:
		assert.Equal(t, 7, got.RestaurantID)
		assert.Equal(t, 4.7, got.AverageRating)
		assert.Equal(t, 21, got.TotalReviews)
	case <-time.After(2 * time.Second):
		t.Fatal("rating update not delivered")
	}
}

func TestTestNotificationRoutedToUserRoom(t *testing.T) {
	server, wsURL := startSimulator(t)
	client := newSimClient(t, wsURL, "bob")

	ctx := context.Background()

	notifications := make(chan hub.Notification, 8)
	consumer := realtime.NewConsumer(client, realtime.ConsumerOptions{
		Enabled:        true,
		OnNotification: func(n hub.Notification) { notifications <- n },
	})
	require.NoError(t, consumer.Activate(ctx))

	require.Eventually(t, func() bool {
		return server.RoomSize(hub.UserRoom("bob")) == 1
	}, 2*time.Second, 10*time.Millisecond)

	client.SendTestNotification(ctx, "bob", "Order ready", "Table 4 is served")

	select {
	case got := <-notifications:
		assert.Equal(t, "Order ready", got.Title)
		assert.Equal(t, "Table 4 is served", got.Message)
	case <-time.After(2 * time.Second):
		t.Fatal("notification not delivered")
	}
}

func TestBroadcastScopedToRoom(t *testing.T) {
	server, wsURL := startSimulator(t)

	ctx := context.Background()

	inRoom := newSimClient(t, wsURL, "alice")
	outOfRoom := newSimClient(t, wsURL, "carol")

	require.NoError(t, inRoom.Connect(ctx))
	require.NoError(t, outOfRoom.Connect(ctx))

	inUpdates := make(chan hub.RatingUpdate, 8)
	outUpdates := make(chan hub.RatingUpdate, 8)
	inRoom.OnRatingUpdate(func(u hub.RatingUpdate) { inUpdates <- u })
	outOfRoom.OnRatingUpdate(func(u hub.RatingUpdate) { outUpdates <- u })

	inRoom.JoinRoom(ctx, hub.RestaurantRoom(7))
	outOfRoom.JoinRoom(ctx, hub.RestaurantRoom(8))

	require.Eventually(t, func() bool {
		return server.RoomSize(hub.RestaurantRoom(7)) == 1 && server.RoomSize(hub.RestaurantRoom(8)) == 1
	}, 2*time.Second, 10*time.Millisecond)

	require.Equal(t, 1, server.PushRating(7, hub.RatingUpdate{AverageRating: 3.9, TotalReviews: 5}))

	select {
	case <-inUpdates:
	case <-time.After(2 * time.Second):
		t.Fatal("rating update not delivered to joined room")
	}

	select {
	case <-outUpdates:
		t.Fatal("rating update leaked into another room")
	case <-time.After(100 * time.Millisecond):
	}
}

func TestReconnectAgainstSimulator(t *testing.T) {
	server, wsURL := startSimulator(t)
	client := newSimClient(t, wsURL, "alice")

	ctx := context.Background()
	require.NoError(t, client.Connect(ctx))

	client.JoinRoom(ctx, hub.RestaurantRoom(7))
	require.Eventually(t, func() bool {
		return server.RoomSize(hub.RestaurantRoom(7)) == 1
	}, 2*time.Second, 10*time.Millisecond)

	firstID := client.ConnectionID()

	// kill the server-side session and wait for the client to recover
	server.mu.Lock()
	for _, sess := range server.sessions {
		sess.conn.Close()
	}
	server.mu.Unlock()

	require.Eventually(t, func() bool {
		return client.IsConnected() && client.ConnectionID() != firstID
	}, 5*time.Second, 10*time.Millisecond)

	// the room is rejoined on the new physical session
	require.Eventually(t, func() bool {
		return server.RoomSize(hub.RestaurantRoom(7)) == 1
	}, 2*time.Second, 10*time.Millisecond)
}
