package obsws

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"livebridge/internal/core/ports"
	"livebridge/pkg/tracing"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"
)

var (
	ErrAuthRequired = errors.New("obs requires a password")
	ErrHandshake    = errors.New("obs handshake failed")
)

type Config struct {
	Address     string
	Password    string
	DialTimeout time.Duration
}

// Client is a control-plane session with obs-websocket. It never reconnects
// on its own; call Connect again after a disconnect.
type Client struct {
	cfg    Config
	dialer *websocket.Dialer
	logger *zap.SugaredLogger

	mu       sync.Mutex
	conn     *websocket.Conn
	done     chan struct{}
	handlers ports.ControlPlaneHandlers

	connected atomic.Bool
}

func NewClient(cfg Config, logger *zap.SugaredLogger) *Client {
	if cfg.DialTimeout <= 0 {
		cfg.DialTimeout = 5 * time.Second
	}
	return &Client{
		cfg: cfg,
		dialer: &websocket.Dialer{
			HandshakeTimeout: cfg.DialTimeout,
		},
		logger: logger.With("component", "obsws", "address", cfg.Address),
	}
}

func (c *Client) SetHandlers(h ports.ControlPlaneHandlers) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.handlers = h
}

func (c *Client) Connected() bool {
	return c.connected.Load()
}

// Connect dials, identifies and starts the event loop. Connecting an
// already connected client is a no-op.
func (c *Client) Connect(ctx context.Context) error {
	handlers, fresh, err := c.connect(ctx)
	if err != nil || !fresh {
		return err
	}

	c.logger.Info("connected to obs")
	if handlers.OnConnected != nil {
		handlers.OnConnected()
	}
	return nil
}

func (c *Client) connect(ctx context.Context) (ports.ControlPlaneHandlers, bool, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.conn != nil {
		return ports.ControlPlaneHandlers{}, false, nil
	}

	ctx, span := tracing.TraceControlPlane(ctx, "connect", c.cfg.Address)
	defer span.End()

	dialCtx, cancel := context.WithTimeout(ctx, c.cfg.DialTimeout)
	defer cancel()

	conn, _, err := c.dialer.DialContext(dialCtx, c.cfg.Address, nil)
	if err != nil {
		tracing.RecordError(ctx, err)
		return ports.ControlPlaneHandlers{}, false, fmt.Errorf("failed to dial obs: %w", err)
	}

	deadline, _ := dialCtx.Deadline()
	if err := c.handshake(conn, deadline); err != nil {
		conn.Close()
		tracing.RecordError(ctx, err)
		return ports.ControlPlaneHandlers{}, false, err
	}

	c.conn = conn
	c.done = make(chan struct{})
	c.connected.Store(true)

	go c.readLoop(conn, c.done)

	return c.handlers, true, nil
}

func (c *Client) handshake(conn *websocket.Conn, deadline time.Time) error {
	conn.SetReadDeadline(deadline)
	conn.SetWriteDeadline(deadline)
	defer conn.SetReadDeadline(time.Time{})
	defer conn.SetWriteDeadline(time.Time{})

	var msg Message
	if err := conn.ReadJSON(&msg); err != nil {
		return fmt.Errorf("%w: read hello: %v", ErrHandshake, err)
	}
	if msg.Op != OpHello {
		return fmt.Errorf("%w: expected hello, got op %d", ErrHandshake, msg.Op)
	}

	var hello Hello
	if err := json.Unmarshal(msg.D, &hello); err != nil {
		return fmt.Errorf("%w: decode hello: %v", ErrHandshake, err)
	}

	identify := Identify{
		RPCVersion:         RPCVersion,
		EventSubscriptions: EventSubscriptionOutputs,
	}
	if hello.Authentication != nil {
		if c.cfg.Password == "" {
			return ErrAuthRequired
		}
		identify.Authentication = AuthResponse(c.cfg.Password, *hello.Authentication)
	}

	out, err := encode(OpIdentify, identify)
	if err != nil {
		return fmt.Errorf("%w: encode identify: %v", ErrHandshake, err)
	}
	if err := conn.WriteJSON(out); err != nil {
		return fmt.Errorf("%w: write identify: %v", ErrHandshake, err)
	}

	if err := conn.ReadJSON(&msg); err != nil {
		// obs closes with 4009 when authentication fails
		return fmt.Errorf("%w: identify rejected: %v", ErrHandshake, err)
	}
	if msg.Op != OpIdentified {
		return fmt.Errorf("%w: expected identified, got op %d", ErrHandshake, msg.Op)
	}

	var identified Identified
	if err := json.Unmarshal(msg.D, &identified); err == nil {
		c.logger.Debugw("identified",
			"obs_websocket_version", hello.ObsWebSocketVersion,
			"rpc_version", identified.NegotiatedRPCVersion,
		)
	}
	return nil
}

func (c *Client) readLoop(conn *websocket.Conn, done chan struct{}) {
	defer close(done)

	for {
		var msg Message
		if err := conn.ReadJSON(&msg); err != nil {
			c.mu.Lock()
			current := c.conn == conn
			if current {
				c.conn = nil
				c.connected.Store(false)
			}
			handlers := c.handlers
			c.mu.Unlock()

			// Close() already detached this connection; nothing to report.
			if !current {
				return
			}

			c.logger.Warnw("obs connection lost", "error", err)
			if handlers.OnDisconnected != nil {
				handlers.OnDisconnected(err)
			}
			return
		}

		if msg.Op != OpEvent {
			continue
		}
		c.handleEvent(msg.D)
	}
}

func (c *Client) handleEvent(raw json.RawMessage) {
	var ev Event
	if err := json.Unmarshal(raw, &ev); err != nil {
		c.logger.Warnw("failed to decode obs event", "error", err)
		return
	}
	if ev.EventType != EventStreamStateChanged {
		return
	}

	var state StreamStateChanged
	if err := json.Unmarshal(ev.EventData, &state); err != nil {
		c.logger.Warnw("failed to decode stream state", "error", err)
		return
	}

	c.mu.Lock()
	handlers := c.handlers
	c.mu.Unlock()

	switch state.OutputState {
	case OutputStarted:
		c.logger.Info("stream output started")
		if handlers.OnOutputStarted != nil {
			handlers.OnOutputStarted()
		}
	case OutputStopped:
		c.logger.Info("stream output stopped")
		if handlers.OnOutputStopped != nil {
			handlers.OnOutputStopped()
		}
	}
}

// Close ends the session and waits for the event loop to exit. It does not
// fire OnDisconnected.
func (c *Client) Close() error {
	c.mu.Lock()
	conn, done := c.conn, c.done
	c.conn = nil
	c.connected.Store(false)
	c.mu.Unlock()

	if conn == nil {
		return nil
	}

	conn.WriteControl(websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
		time.Now().Add(time.Second),
	)
	err := conn.Close()
	<-done

	c.logger.Info("obs session closed")
	return err
}
