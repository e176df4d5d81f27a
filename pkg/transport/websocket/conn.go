package websocket

import (
	"context"
	"encoding/json"
	"net/http"
	"sync"
	"time"

	"github.com/Quanghau123/smarttasty-realtime/internal/logging"
	"github.com/Quanghau123/smarttasty-realtime/pkg/errors"
	"github.com/Quanghau123/smarttasty-realtime/pkg/hub"
	ws "github.com/gorilla/websocket"
)

// Conn implements the hub.Conn interface over a websocket
type Conn struct {
	id       string
	conn     *ws.Conn
	logger   *logging.Logger
	options  Options
	handler  hub.EventHandler
	sendChan chan []byte
	ctx      context.Context
	cancel   context.CancelFunc
	done     chan struct{}
	mutex    sync.RWMutex
	closed   bool
}

// NewDialer returns a hub.Dialer backed by gorilla websocket
func NewDialer(logger *logging.Logger, options Options) hub.Dialer {
	return func(ctx context.Context, cfg hub.DialConfig, handler hub.EventHandler) (hub.Conn, error) {
		return Dial(ctx, cfg, handler, logger, options)
	}
}

// Dial connects to the hub, performs the welcome handshake and starts
// the read/write pumps.
func Dial(ctx context.Context, cfg hub.DialConfig, handler hub.EventHandler, logger *logging.Logger, options Options) (*Conn, error) {
	dialer := ws.Dialer{
		HandshakeTimeout: options.HandshakeTimeout,
		ReadBufferSize:   options.ReadBufferSize,
		WriteBufferSize:  options.WriteBufferSize,
	}

	header := http.Header{}
	if cfg.AccessToken != "" {
		header.Set("Authorization", "Bearer "+cfg.AccessToken)
	}

	wsConn, _, err := dialer.DialContext(ctx, cfg.URL, header)
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrorTypeConnection, "DIAL_ERROR", "failed to connect to hub")
	}

	id, err := readWelcome(wsConn, options)
	if err != nil {
		wsConn.Close()
		return nil, err
	}

	connCtx, cancel := context.WithCancel(context.Background())

	c := &Conn{
		id:       id,
		conn:     wsConn,
		logger:   logger.WithFields(map[string]any{"connection_id": id}),
		options:  options,
		handler:  handler,
		sendChan: make(chan []byte, 256),
		ctx:      connCtx,
		cancel:   cancel,
		done:     make(chan struct{}),
	}

	go c.readPump()
	go c.writePump()

	c.logger.Info("hub connection established", "url", cfg.URL)

	return c, nil
}

// readWelcome reads the hub's welcome ack and extracts the connection id
func readWelcome(wsConn *ws.Conn, options Options) (string, error) {
	wsConn.SetReadDeadline(time.Now().Add(options.HandshakeTimeout))

	_, raw, err := wsConn.ReadMessage()
	if err != nil {
		return "", errors.Wrap(err, errors.ErrorTypeConnection, "HANDSHAKE_ERROR", "failed to read welcome frame")
	}

	var msg hub.Message
	if err := json.Unmarshal(raw, &msg); err != nil {
		return "", errors.Wrap(err, errors.ErrorTypeProtocol, "HANDSHAKE_ERROR", "invalid welcome frame")
	}

	if msg.Type != hub.MessageTypeAck || msg.Target != hub.TargetConnected {
		return "", errors.New(errors.ErrorTypeProtocol, "HANDSHAKE_ERROR", "unexpected welcome frame").
			WithDetails(msg.Target)
	}

	var payload hub.ConnectedPayload
	if err := msg.Decode(&payload); err != nil {
		return "", errors.Wrap(err, errors.ErrorTypeProtocol, "HANDSHAKE_ERROR", "invalid welcome payload")
	}

	return payload.ConnectionID, nil
}

// ConnectionID implements hub.Conn
func (c *Conn) ConnectionID() string {
	return c.id
}

// Invoke implements hub.Conn
func (c *Conn) Invoke(ctx context.Context, method string, payload any) error {
	msg, err := hub.NewMessage(hub.MessageTypeInvoke, method, payload)
	if err != nil {
		return errors.Wrap(err, errors.ErrorTypeInternal, "MARSHAL_ERROR", "failed to marshal invocation payload")
	}

	raw, err := json.Marshal(msg)
	if err != nil {
		return errors.Wrap(err, errors.ErrorTypeInternal, "MARSHAL_ERROR", "failed to marshal invocation frame")
	}

	c.mutex.RLock()
	if c.closed {
		c.mutex.RUnlock()
		return errors.New(errors.ErrorTypeTransport, "CONN_CLOSED", "connection is closed")
	}
	c.mutex.RUnlock()

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-c.ctx.Done():
		return errors.New(errors.ErrorTypeTransport, "CONN_CLOSED", "connection is closed")
	case c.sendChan <- raw:
		return nil
	default:
		return errors.New(errors.ErrorTypeTransport, "SEND_BLOCKED", "send channel full or blocked")
	}
}

// Done implements hub.Conn
func (c *Conn) Done() <-chan struct{} {
	return c.done
}

// Close implements hub.Conn
func (c *Conn) Close() error {
	c.mutex.Lock()
	if c.closed {
		c.mutex.Unlock()
		return nil
	}
	c.closed = true
	c.mutex.Unlock()

	c.logger.Info("closing hub connection")

	c.cancel()

	if err := c.conn.Close(); err != nil {
		c.logger.Error("error closing websocket", "error", err)
		return err
	}

	return nil
}

func (c *Conn) readPump() {
	defer func() {
		c.Close()
		close(c.done)
		c.logger.Debug("read pump stopped")
	}()

	c.conn.SetReadLimit(c.options.MaxMessageSize)
	c.conn.SetReadDeadline(time.Now().Add(c.options.ReadTimeout))
	c.conn.SetPongHandler(func(string) error {
		c.conn.SetReadDeadline(time.Now().Add(c.options.ReadTimeout))
		return nil
	})

	for {
		select {
		case <-c.ctx.Done():
			return
		default:
			messageType, raw, err := c.conn.ReadMessage()
			if err != nil {
				if ws.IsUnexpectedCloseError(err, ws.CloseGoingAway, ws.CloseAbnormalClosure) {
					c.logger.Error("websocket unexpected close error", "error", err)
				} else {
					c.logger.Info("websocket connection closed", "error", err)
				}
				return
			}

			if messageType != ws.TextMessage && messageType != ws.BinaryMessage {
				continue
			}

			var msg hub.Message
			if err := json.Unmarshal(raw, &msg); err != nil {
				c.logger.Error("failed to unmarshal frame", "error", err)
				continue
			}

			if msg.Type != hub.MessageTypeEvent {
				c.logger.Debug("ignoring non-event frame", "type", msg.Type, "target", msg.Target)
				continue
			}

			if c.handler != nil {
				c.handler(&msg)
			}
		}
	}
}

func (c *Conn) writePump() {
	defer func() {
		c.logger.Debug("write pump stopped")
	}()

	ticker := time.NewTicker(c.options.PingInterval)
	defer ticker.Stop()

	for {
		select {
		case <-c.ctx.Done():
			return
		case raw := <-c.sendChan:
			c.conn.SetWriteDeadline(time.Now().Add(c.options.WriteTimeout))
			if err := c.conn.WriteMessage(ws.TextMessage, raw); err != nil {
				c.logger.Error("websocket write error", "error", err)
				return
			}

			n := len(c.sendChan)
			for range n {
				select {
				case msg := <-c.sendChan:
					if err := c.conn.WriteMessage(ws.TextMessage, msg); err != nil {
						c.logger.Error("websocket write error", "error", err)
						return
					}
				default:
				}
			}

		case <-ticker.C:
			c.conn.SetWriteDeadline(time.Now().Add(c.options.WriteTimeout))
			if err := c.conn.WriteMessage(ws.PingMessage, nil); err != nil {
				c.logger.Error("websocket ping error", "error", err)
				return
			}
		}
	}
}
