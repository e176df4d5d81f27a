package hub

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/rs/xid"
)

// MessageType represents the kind of frame exchanged with the hub
type MessageType string

const (
	// MessageTypeInvoke is a client-to-hub method invocation
	MessageTypeInvoke MessageType = "invoke"
	// MessageTypeEvent is a hub-to-client named event
	MessageTypeEvent MessageType = "event"
	// MessageTypeAck is a hub acknowledgement frame
	MessageTypeAck MessageType = "ack"
)

// Hub method names (outbound invocations)
const (
	MethodJoinRestaurantRoom   = "JoinRestaurantRoom"
	MethodPingHeartbeat        = "PingHeartbeat"
	MethodSendTestNotification = "SendTestNotification"
)

// Hub event names (inbound)
const (
	EventRestaurantUpdate = "ReceiveRestaurantUpdate"
	EventNotification     = "ReceiveNotification"
)

// TargetConnected is the welcome ack sent by the hub after a connection
// is established; its payload carries the connection id.
const TargetConnected = "Connected"

// Message represents a generic hub frame
type Message struct {
	ID        string          `json:"id"`
	Type      MessageType     `json:"type"`
	Target    string          `json:"target"`
	Timestamp time.Time       `json:"timestamp"`
	Data      json.RawMessage `json:"data"`
}

// NewMessage creates a frame with a fresh id and marshalled payload
func NewMessage(messageType MessageType, target string, payload any) (*Message, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}

	return &Message{
		ID:        xid.New().String(),
		Type:      messageType,
		Target:    target,
		Timestamp: time.Now(),
		Data:      data,
	}, nil
}

// Decode decodes the frame payload into the provided value
func (m *Message) Decode(v any) error {
	return json.Unmarshal(m.Data, v)
}

// ConnectedPayload is the payload of the welcome ack
type ConnectedPayload struct {
	ConnectionID string `json:"connection_id"`
}

// JoinRoomRequest is the payload of a JoinRestaurantRoom invocation
type JoinRoomRequest struct {
	RoomID string `json:"room_id"`
}

// TestNotificationRequest is the payload of a SendTestNotification invocation
type TestNotificationRequest struct {
	UserID  string `json:"user_id"`
	Title   string `json:"title"`
	Message string `json:"message"`
}

// RestaurantUpdate is the envelope of a ReceiveRestaurantUpdate event
type RestaurantUpdate struct {
	Type string       `json:"type"`
	Data RatingUpdate `json:"data"`
}

// RatingUpdateType is the only update type currently broadcast per restaurant
const RatingUpdateType = "restaurant_rating_update"

// RatingUpdate carries the recalculated rating of a restaurant
type RatingUpdate struct {
	RestaurantID  int     `json:"restaurantId"`
	AverageRating float64 `json:"averageRating"`
	TotalReviews  int     `json:"totalReviews"`
}

// Notification is the payload of a ReceiveNotification event
type Notification struct {
	Title   string `json:"title"`
	Message string `json:"message"`
}

// RestaurantRoom returns the room id of a restaurant's broadcast room
func RestaurantRoom(restaurantID int) string {
	return fmt.Sprintf("restaurant_%d", restaurantID)
}

// UserRoom returns the room id of a user's personal notification room
func UserRoom(userID string) string {
	return "user_" + userID
}
