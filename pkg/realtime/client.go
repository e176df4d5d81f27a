package realtime

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"github.com/Quanghau123/smarttasty-realtime/internal/logging"
	"github.com/Quanghau123/smarttasty-realtime/pkg/errors"
	"github.com/Quanghau123/smarttasty-realtime/pkg/hub"
	"github.com/Quanghau123/smarttasty-realtime/pkg/transport/websocket"
)

// Options represents realtime client options
type Options struct {
	// URL is the hub endpoint (ws:// or wss://)
	URL string

	// AccessToken authenticates the connection. Ignored when
	// TokenProvider is set.
	AccessToken string

	// TokenProvider supplies the credential per connection attempt,
	// so reconnects pick up refreshed tokens.
	TokenProvider func() (string, error)

	// UserID is the authenticated user, used to resolve the default
	// personal room.
	UserID string

	Logger *logging.Logger

	// Dialer establishes connections; defaults to the websocket transport
	Dialer hub.Dialer

	// HeartbeatInterval is the period of the keep-alive invocation
	HeartbeatInterval time.Duration

	// ReconnectWaits is the backoff schedule after a transport loss.
	// The last entry repeats indefinitely.
	ReconnectWaits []time.Duration

	// BufferCapacity bounds the per-kind replay buffer
	BufferCapacity int
}

// DefaultOptions returns default client options
func DefaultOptions() Options {
	return Options{
		HeartbeatInterval: 30 * time.Second,
		ReconnectWaits: []time.Duration{
			0,
			2 * time.Second,
			10 * time.Second,
			30 * time.Second,
		},
		BufferCapacity: 100,
	}
}

// Client owns the single persistent connection to the realtime hub. It is
// shared by any number of consumers; construct one per process and inject
// it where realtime updates are needed.
type Client struct {
	options    Options
	logger     *logging.Logger
	errHandler errors.Handler
	dialer     hub.Dialer

	rooms    *roomTracker
	registry *registry

	mu              sync.RWMutex
	state           State
	conn            hub.Conn
	sessionCancel   context.CancelFunc
	heartbeatCancel context.CancelFunc
	stateChange     func(old, new State)
	pendingStates   []stateTransition
	notifying       bool
}

type stateTransition struct {
	old  State
	next State
}

// NewClient creates a new realtime client
func NewClient(options Options) *Client {
	defaults := DefaultOptions()
	if options.HeartbeatInterval <= 0 {
		options.HeartbeatInterval = defaults.HeartbeatInterval
	}
	if len(options.ReconnectWaits) == 0 {
		options.ReconnectWaits = defaults.ReconnectWaits
	}
	if options.BufferCapacity <= 0 {
		options.BufferCapacity = defaults.BufferCapacity
	}
	if options.Logger == nil {
		options.Logger = logging.New(logging.Config{Level: "info", Format: "text"})
	}

	logger := options.Logger
	errHandler := errors.NewDefaultHandler(logger.Logger)

	dialer := options.Dialer
	if dialer == nil {
		dialer = websocket.NewDialer(logger, websocket.DefaultOptions())
	}

	return &Client{
		options:    options,
		logger:     logger,
		errHandler: errHandler,
		dialer:     dialer,
		rooms:      newRoomTracker(),
		registry:   newRegistry(logger, errHandler, options.BufferCapacity),
		state:      StateDisconnected,
	}
}

// Connect establishes the hub connection. Calling Connect while a
// connection attempt is in flight or a connection is live is a no-op.
func (c *Client) Connect(ctx context.Context) error {
	c.mu.Lock()
	if c.state != StateDisconnected {
		state := c.state
		c.mu.Unlock()
		c.logger.Debug("connect ignored", "state", state.String())
		return nil
	}

	sessionCtx, cancel := context.WithCancel(context.Background())
	c.sessionCancel = cancel
	c.setStateLocked(StateConnecting)
	c.mu.Unlock()
	c.flushStateChanges()

	conn, err := c.dial(ctx)
	if err != nil {
		c.mu.Lock()
		c.setStateLocked(StateDisconnected)
		c.sessionCancel = nil
		c.mu.Unlock()
		cancel()
		c.flushStateChanges()
		return err
	}

	c.mu.Lock()
	if sessionCtx.Err() != nil {
		// Disconnect was called while the dial was in flight
		c.mu.Unlock()
		conn.Close()
		return errors.New(errors.ErrorTypeConnection, "CONNECT_ABORTED", "disconnected during connection attempt")
	}
	c.conn = conn
	c.setStateLocked(StateConnected)
	c.startHeartbeatLocked(sessionCtx)
	c.mu.Unlock()
	c.flushStateChanges()

	c.rejoin(ctx, conn)

	go c.supervise(sessionCtx, conn)

	return nil
}

// Disconnect tears down the connection, clears all callback
// registrations, buffered events and room membership. Safe to call when
// already disconnected.
func (c *Client) Disconnect() {
	c.mu.Lock()
	if c.state == StateDisconnected {
		c.mu.Unlock()
		return
	}

	conn := c.conn
	cancel := c.sessionCancel
	c.conn = nil
	c.sessionCancel = nil
	c.stopHeartbeatLocked()
	c.setStateLocked(StateDisconnected)
	c.mu.Unlock()
	c.flushStateChanges()

	if cancel != nil {
		cancel()
	}
	if conn != nil {
		conn.Close()
	}

	c.rooms.Clear()
	c.registry.Clear()

	c.logger.Info("disconnected from hub")
}

// IsConnected reports whether the connection is currently live
func (c *Client) IsConnected() bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.state == StateConnected
}

// State returns the current connection state
func (c *Client) State() State {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.state
}

// ConnectionID returns the hub-assigned connection id, or the empty
// string when not connected.
func (c *Client) ConnectionID() string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if c.state != StateConnected || c.conn == nil {
		return ""
	}
	return c.conn.ConnectionID()
}

// UserID returns the authenticated user id this client was built with
func (c *Client) UserID() string {
	return c.options.UserID
}

// OnStateChange sets a hook invoked on every state transition
func (c *Client) OnStateChange(fn func(old, new State)) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.stateChange = fn
}

// JoinRoom joins a hub room and records it for rejoin after reconnect.
// When not connected this is a no-op with a logged warning; membership
// is only recorded once the join invocation was handed to the transport.
func (c *Client) JoinRoom(ctx context.Context, roomID string) {
	c.mu.RLock()
	state := c.state
	conn := c.conn
	c.mu.RUnlock()

	if state != StateConnected || conn == nil {
		c.logger.Warn("join ignored, not connected", "room_id", roomID, "state", state.String())
		return
	}

	if err := conn.Invoke(ctx, hub.MethodJoinRestaurantRoom, hub.JoinRoomRequest{RoomID: roomID}); err != nil {
		c.errHandler.Handle(ctx, errors.Wrap(err, errors.ErrorTypeInvoke, "JOIN_ERROR", "failed to join room").
			WithDetails(roomID))
		return
	}

	c.rooms.Record(roomID)
	c.logger.Info("joined room", "room_id", roomID)
}

// OnRatingUpdate registers the callback for restaurant rating updates.
// A previously registered callback is replaced; buffered updates are
// replayed immediately in arrival order.
func (c *Client) OnRatingUpdate(cb func(update hub.RatingUpdate)) {
	c.registry.Register(KindRatingUpdate, func(payload json.RawMessage) {
		var update hub.RestaurantUpdate
		if err := json.Unmarshal(payload, &update); err != nil {
			c.logger.Error("failed to decode restaurant update", "error", err)
			return
		}
		if update.Type != hub.RatingUpdateType {
			c.logger.Debug("ignoring unknown restaurant update", "type", update.Type)
			return
		}
		cb(update.Data)
	})
}

// OnNotification registers the callback for user notifications. Same
// replacement and replay semantics as OnRatingUpdate.
func (c *Client) OnNotification(cb func(n hub.Notification)) {
	c.registry.Register(KindNotification, func(payload json.RawMessage) {
		var n hub.Notification
		if err := json.Unmarshal(payload, &n); err != nil {
			c.logger.Error("failed to decode notification", "error", err)
			return
		}
		cb(n)
	})
}

// SendTestNotification asks the hub to route a notification to a user.
// Diagnostic only; failures are logged, not returned.
func (c *Client) SendTestNotification(ctx context.Context, userID, title, message string) {
	c.mu.RLock()
	state := c.state
	conn := c.conn
	c.mu.RUnlock()

	if state != StateConnected || conn == nil {
		c.logger.Warn("test notification ignored, not connected", "user_id", userID)
		return
	}

	req := hub.TestNotificationRequest{UserID: userID, Title: title, Message: message}
	if err := conn.Invoke(ctx, hub.MethodSendTestNotification, req); err != nil {
		c.errHandler.Handle(ctx, errors.Wrap(err, errors.ErrorTypeInvoke, "SEND_ERROR", "failed to send test notification"))
	}
}

// dial resolves the credential and attempts a single connection
func (c *Client) dial(ctx context.Context) (hub.Conn, error) {
	token := c.options.AccessToken
	if c.options.TokenProvider != nil {
		t, err := c.options.TokenProvider()
		if err != nil {
			return nil, errors.Wrap(err, errors.ErrorTypeConnection, "TOKEN_ERROR", "failed to resolve access token")
		}
		token = t
	}

	cfg := hub.DialConfig{URL: c.options.URL, AccessToken: token}
	return c.dialer(ctx, cfg, c.handleEvent)
}

// handleEvent routes inbound event frames to the dispatch registry
func (c *Client) handleEvent(msg *hub.Message) {
	switch msg.Target {
	case hub.EventRestaurantUpdate:
		c.registry.Dispatch(KindRatingUpdate, msg.Data)
	case hub.EventNotification:
		c.registry.Dispatch(KindNotification, msg.Data)
	default:
		c.logger.Debug("unhandled event", "target", msg.Target)
	}
}

// supervise watches a live connection and drives the reconnect loop
// when the transport drops.
func (c *Client) supervise(sessionCtx context.Context, conn hub.Conn) {
	select {
	case <-sessionCtx.Done():
		return
	case <-conn.Done():
	}

	c.mu.Lock()
	if c.conn != conn || c.state != StateConnected {
		// a newer connection or an explicit disconnect already took over
		c.mu.Unlock()
		return
	}
	c.conn = nil
	c.stopHeartbeatLocked()
	c.setStateLocked(StateReconnecting)
	c.mu.Unlock()
	c.flushStateChanges()

	c.logger.Warn("hub connection lost, reconnecting")

	c.reconnectLoop(sessionCtx)
}

// reconnectLoop retries with increasing backoff until the session is
// cancelled or a connection is re-established.
func (c *Client) reconnectLoop(sessionCtx context.Context) {
	for attempt := 0; ; attempt++ {
		wait := c.reconnectWait(attempt)

		select {
		case <-sessionCtx.Done():
			return
		case <-time.After(wait):
		}

		conn, err := c.dial(sessionCtx)
		if err != nil {
			c.logger.Warn("reconnect attempt failed", "attempt", attempt+1, "error", err)
			continue
		}

		c.mu.Lock()
		if sessionCtx.Err() != nil {
			c.mu.Unlock()
			conn.Close()
			return
		}
		c.conn = conn
		c.setStateLocked(StateConnected)
		c.startHeartbeatLocked(sessionCtx)
		c.mu.Unlock()
		c.flushStateChanges()

		c.logger.Info("reconnected to hub", "attempts", attempt+1)

		c.rejoin(sessionCtx, conn)

		go c.supervise(sessionCtx, conn)
		return
	}
}

func (c *Client) reconnectWait(attempt int) time.Duration {
	waits := c.options.ReconnectWaits
	if attempt >= len(waits) {
		return waits[len(waits)-1]
	}
	return waits[attempt]
}

// rejoin re-asserts the recorded room membership on a fresh connection
func (c *Client) rejoin(ctx context.Context, conn hub.Conn) {
	roomID, ok := c.rooms.Current()
	if !ok {
		return
	}

	if err := conn.Invoke(ctx, hub.MethodJoinRestaurantRoom, hub.JoinRoomRequest{RoomID: roomID}); err != nil {
		c.errHandler.Handle(ctx, errors.Wrap(err, errors.ErrorTypeInvoke, "REJOIN_ERROR", "failed to rejoin room").
			WithDetails(roomID))
		return
	}

	c.logger.Info("rejoined room", "room_id", roomID)
}

// startHeartbeatLocked starts the keep-alive loop; callers hold c.mu
func (c *Client) startHeartbeatLocked(sessionCtx context.Context) {
	hbCtx, cancel := context.WithCancel(sessionCtx)
	c.heartbeatCancel = cancel
	go c.heartbeatLoop(hbCtx)
}

// stopHeartbeatLocked stops the keep-alive loop; callers hold c.mu
func (c *Client) stopHeartbeatLocked() {
	if c.heartbeatCancel != nil {
		c.heartbeatCancel()
		c.heartbeatCancel = nil
	}
}

// heartbeatLoop pings the hub on a fixed interval while connected.
// Individual heartbeat failures are logged and swallowed; the transport's
// reconnect logic is the source of truth for connection health.
func (c *Client) heartbeatLoop(ctx context.Context) {
	ticker := time.NewTicker(c.options.HeartbeatInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			c.mu.RLock()
			conn := c.conn
			state := c.state
			c.mu.RUnlock()

			if state != StateConnected || conn == nil {
				continue
			}

			callCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
			err := conn.Invoke(callCtx, hub.MethodPingHeartbeat, struct{}{})
			cancel()

			if err != nil {
				c.errHandler.Handle(ctx, errors.Wrap(err, errors.ErrorTypeInvoke, "HEARTBEAT_ERROR", "heartbeat failed"))
			}
		}
	}
}

// setStateLocked transitions the state machine and queues the hook
// notification; callers hold c.mu and must call flushStateChanges after
// releasing it.
func (c *Client) setStateLocked(next State) {
	if c.state == next {
		return
	}

	old := c.state
	c.state = next
	c.logger.Debug("connection state changed", "from", old.String(), "to", next.String())

	if c.stateChange != nil {
		c.pendingStates = append(c.pendingStates, stateTransition{old: old, next: next})
	}
}

// flushStateChanges delivers queued transitions to the OnStateChange
// hook in order, without holding c.mu during the call. The hook may
// therefore call back into the client, including Disconnect; a
// reentrant flush hands its transitions to the already-running drain.
func (c *Client) flushStateChanges() {
	c.mu.Lock()
	if c.notifying {
		c.mu.Unlock()
		return
	}
	c.notifying = true

	for len(c.pendingStates) > 0 {
		tr := c.pendingStates[0]
		c.pendingStates = c.pendingStates[1:]
		hook := c.stateChange
		c.mu.Unlock()

		if hook != nil {
			hook(tr.old, tr.next)
		}

		c.mu.Lock()
	}

	c.notifying = false
	c.mu.Unlock()
}
