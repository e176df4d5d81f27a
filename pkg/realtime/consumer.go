package realtime

import (
	"context"
	"sync"

	"github.com/Quanghau123/smarttasty-realtime/pkg/hub"
)

// ConsumerOptions configures a Consumer
type ConsumerOptions struct {
	// RoomID is the room to join. Empty means the authenticated user's
	// personal room.
	RoomID string

	// OnRatingUpdate, when set, receives restaurant rating updates
	OnRatingUpdate func(update hub.RatingUpdate)

	// OnNotification, when set, receives user notifications
	OnNotification func(n hub.Notification)

	// Enabled gates activation; a disabled consumer never touches the
	// shared connection.
	Enabled bool
}

// Consumer is the integration point for UI code that wants realtime
// updates. Many consumers share one Client; activating a consumer
// connects and joins its room, deactivating it leaves the shared
// connection untouched. Disconnecting is a deliberate, separate action
// on the Client (logout), never a side effect of consumer churn.
type Consumer struct {
	client *Client

	mu          sync.Mutex
	options     ConsumerOptions
	initialized bool
	joinedRoom  string
}

// NewConsumer creates a consumer bound to the shared client
func NewConsumer(client *Client, options ConsumerOptions) *Consumer {
	return &Consumer{
		client:  client,
		options: options,
	}
}

// Activate connects the shared client, registers the configured
// callbacks and joins the resolved room. Re-activation while already
// initialized is a no-op; a second connection or a double join is never
// created.
func (c *Consumer) Activate(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if !c.options.Enabled || c.initialized {
		return nil
	}

	if err := c.client.Connect(ctx); err != nil {
		return err
	}

	if c.options.OnRatingUpdate != nil {
		c.client.OnRatingUpdate(c.options.OnRatingUpdate)
	}
	if c.options.OnNotification != nil {
		c.client.OnNotification(c.options.OnNotification)
	}

	room := c.resolveRoom(c.options.RoomID)
	if room != "" {
		c.client.JoinRoom(ctx, room)
		c.joinedRoom = room
	}

	c.initialized = true
	return nil
}

// SetRoom switches the consumer's target room. A join is only issued
// when the resolved room actually differs from the one last joined.
func (c *Consumer) SetRoom(ctx context.Context, roomID string) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.options.RoomID = roomID

	if !c.initialized {
		return
	}

	room := c.resolveRoom(roomID)
	if room == "" || room == c.joinedRoom {
		return
	}

	c.client.JoinRoom(ctx, room)
	c.joinedRoom = room
}

// Deactivate marks the consumer inactive. The shared connection, its
// room membership and other consumers' callbacks stay untouched.
func (c *Consumer) Deactivate() {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.initialized = false
	c.joinedRoom = ""
}

// IsConnected reports the shared connection's status
func (c *Consumer) IsConnected() bool {
	return c.client.IsConnected()
}

// ConnectionID returns the shared connection's id
func (c *Consumer) ConnectionID() string {
	return c.client.ConnectionID()
}

// JoinRoom joins an arbitrary room through the shared client
func (c *Consumer) JoinRoom(ctx context.Context, roomID string) {
	c.mu.Lock()
	c.joinedRoom = roomID
	c.mu.Unlock()

	c.client.JoinRoom(ctx, roomID)
}

// Disconnect tears down the shared connection for every consumer
func (c *Consumer) Disconnect() {
	c.client.Disconnect()
}

// resolveRoom falls back to the authenticated user's personal room
func (c *Consumer) resolveRoom(roomID string) string {
	if roomID != "" {
		return roomID
	}
	if userID := c.client.UserID(); userID != "" {
		return hub.UserRoom(userID)
	}
	return ""
}
