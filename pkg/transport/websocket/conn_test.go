package websocket

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/Quanghau123/smarttasty-realtime/internal/logging"
	"github.com/Quanghau123/smarttasty-realtime/pkg/errors"
	"github.com/Quanghau123/smarttasty-realtime/pkg/hub"
	ws "github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var testLogger = logging.New(logging.Config{Level: "error", Format: "text"})

// fakeHub is a minimal hub endpoint for transport-level tests
type fakeHub struct {
	upgrader    ws.Upgrader
	welcome     func(conn *ws.Conn) error
	mu          sync.Mutex
	received    []hub.Message
	lastAuth    string
	serverConns []*ws.Conn
}

func newFakeHub(t *testing.T) *fakeHub {
	t.Helper()
	f := &fakeHub{}
	f.welcome = func(conn *ws.Conn) error {
		msg, err := hub.NewMessage(hub.MessageTypeAck, hub.TargetConnected, hub.ConnectedPayload{ConnectionID: "fake-1"})
		if err != nil {
			return err
		}
		raw, err := json.Marshal(msg)
		if err != nil {
			return err
		}
		return conn.WriteMessage(ws.TextMessage, raw)
	}
	return f
}

func (f *fakeHub) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	f.mu.Lock()
	f.lastAuth = r.Header.Get("Authorization")
	f.mu.Unlock()

	conn, err := f.upgrader.Upgrade(w, r, nil)
	if err != nil {
		return
	}

	f.mu.Lock()
	f.serverConns = append(f.serverConns, conn)
	f.mu.Unlock()

	if err := f.welcome(conn); err != nil {
		conn.Close()
		return
	}

	for {
		_, raw, err := conn.ReadMessage()
		if err != nil {
			return
		}
		var msg hub.Message
		if err := json.Unmarshal(raw, &msg); err != nil {
			continue
		}
		f.mu.Lock()
		f.received = append(f.received, msg)
		f.mu.Unlock()
	}
}

func (f *fakeHub) receivedCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.received)
}

func (f *fakeHub) lastReceived() hub.Message {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.received[len(f.received)-1]
}

func startFakeHub(t *testing.T, f *fakeHub) string {
	ts := httptest.NewServer(f)
	t.Cleanup(ts.Close)
	return "ws" + strings.TrimPrefix(ts.URL, "http")
}

func TestDialPerformsWelcomeHandshake(t *testing.T) {
	f := newFakeHub(t)
	url := startFakeHub(t, f)

	conn, err := Dial(context.Background(), hub.DialConfig{URL: url, AccessToken: "tok-123"}, func(*hub.Message) {}, testLogger, DefaultOptions())
	require.NoError(t, err)
	defer conn.Close()

	assert.Equal(t, "fake-1", conn.ConnectionID())

	f.mu.Lock()
	auth := f.lastAuth
	f.mu.Unlock()
	assert.Equal(t, "Bearer tok-123", auth)
}

func TestDialFailsWhenHubUnreachable(t *testing.T) {
	_, err := Dial(context.Background(), hub.DialConfig{URL: "ws://127.0.0.1:1/none"}, func(*hub.Message) {}, testLogger, DefaultOptions())
	require.Error(t, err)
	assert.True(t, errors.IsType(err, errors.ErrorTypeConnection))
}

func TestDialRejectsBadWelcome(t *testing.T) {
	f := newFakeHub(t)
	f.welcome = func(conn *ws.Conn) error {
		return conn.WriteMessage(ws.TextMessage, []byte("not a frame"))
	}
	url := startFakeHub(t, f)

	_, err := Dial(context.Background(), hub.DialConfig{URL: url}, func(*hub.Message) {}, testLogger, DefaultOptions())
	require.Error(t, err)
	assert.True(t, errors.IsType(err, errors.ErrorTypeProtocol))
}

func TestInvokeSendsFrame(t *testing.T) {
	f := newFakeHub(t)
	url := startFakeHub(t, f)

	conn, err := Dial(context.Background(), hub.DialConfig{URL: url}, func(*hub.Message) {}, testLogger, DefaultOptions())
	require.NoError(t, err)
	defer conn.Close()

	require.NoError(t, conn.Invoke(context.Background(), hub.MethodJoinRestaurantRoom, hub.JoinRoomRequest{RoomID: "restaurant_7"}))

	require.Eventually(t, func() bool {
		return f.receivedCount() == 1
	}, 2*time.Second, 10*time.Millisecond)

	msg := f.lastReceived()
	assert.Equal(t, hub.MessageTypeInvoke, msg.Type)
	assert.Equal(t, hub.MethodJoinRestaurantRoom, msg.Target)
	assert.NotEmpty(t, msg.ID)

	var req hub.JoinRoomRequest
	require.NoError(t, msg.Decode(&req))
	assert.Equal(t, "restaurant_7", req.RoomID)
}

func TestEventsDeliveredToHandler(t *testing.T) {
	f := newFakeHub(t)
	url := startFakeHub(t, f)

	events := make(chan *hub.Message, 8)
	conn, err := Dial(context.Background(), hub.DialConfig{URL: url}, func(msg *hub.Message) { events <- msg }, testLogger, DefaultOptions())
	require.NoError(t, err)
	defer conn.Close()

	event, err := hub.NewMessage(hub.MessageTypeEvent, hub.EventNotification, hub.Notification{Title: "hello", Message: "world"})
	require.NoError(t, err)
	raw, err := json.Marshal(event)
	require.NoError(t, err)

	f.mu.Lock()
	server := f.serverConns[0]
	f.mu.Unlock()
	require.NoError(t, server.WriteMessage(ws.TextMessage, raw))

	select {
	case msg := <-events:
		assert.Equal(t, hub.EventNotification, msg.Target)
		var n hub.Notification
		require.NoError(t, msg.Decode(&n))
		assert.Equal(t, "hello", n.Title)
	case <-time.After(2 * time.Second):
		t.Fatal("event not delivered")
	}
}

func TestDoneClosedOnServerDisconnect(t *testing.T) {
	f := newFakeHub(t)
	url := startFakeHub(t, f)

	conn, err := Dial(context.Background(), hub.DialConfig{URL: url}, func(*hub.Message) {}, testLogger, DefaultOptions())
	require.NoError(t, err)

	f.mu.Lock()
	server := f.serverConns[0]
	f.mu.Unlock()
	server.Close()

	select {
	case <-conn.Done():
	case <-time.After(2 * time.Second):
		t.Fatal("done not closed after server disconnect")
	}
}

func TestInvokeAfterCloseFails(t *testing.T) {
	f := newFakeHub(t)
	url := startFakeHub(t, f)

	conn, err := Dial(context.Background(), hub.DialConfig{URL: url}, func(*hub.Message) {}, testLogger, DefaultOptions())
	require.NoError(t, err)

	require.NoError(t, conn.Close())

	err = conn.Invoke(context.Background(), hub.MethodPingHeartbeat, struct{}{})
	require.Error(t, err)
	assert.True(t, errors.IsType(err, errors.ErrorTypeTransport))
}
