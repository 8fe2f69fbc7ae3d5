package signal

import (
	"context"
	"encoding/json"
	"net/http"
	"sync"
	"time"

	"livebridge/internal/core/domain"
	"livebridge/internal/core/ports"
	"livebridge/pkg/tracing"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"
)

const (
	directionIn  = "in"
	directionOut = "out"

	errorFrameType = "error"
)

type Config struct {
	PingInterval   time.Duration
	PongTimeout    time.Duration
	WriteTimeout   time.Duration
	MaxMessageSize int64
	AllowedOrigins []string
}

// InitialMessage returns what a freshly attached view of channel should see
// first, if anything.
type InitialMessage func(channel domain.SyncChannel) (domain.SyncMessage, bool)

// WebSocketServer attaches dashboard views to the sync channels. Frames from a
// view are validated and posted on the bus; bus traffic from everyone else is
// written back to the view.
type WebSocketServer struct {
	bus      ports.SyncBus
	metrics  ports.MetricsRecorder
	upgrader websocket.Upgrader
	cfg      Config
	initial  InitialMessage
	logger   *zap.SugaredLogger

	mu    sync.RWMutex
	views map[domain.SyncChannel]map[string]struct{}
}

type errorFrame struct {
	Type    string `json:"type"`
	Message string `json:"message"`
}

func NewWebSocketServer(bus ports.SyncBus, metrics ports.MetricsRecorder, cfg Config, logger *zap.SugaredLogger) *WebSocketServer {
	s := &WebSocketServer{
		bus:     bus,
		metrics: metrics,
		cfg:     cfg,
		logger:  logger.With("component", "sync_hub"),
		views:   make(map[domain.SyncChannel]map[string]struct{}),
	}
	s.upgrader = websocket.Upgrader{
		ReadBufferSize:  1024,
		WriteBufferSize: 1024,
		CheckOrigin:     s.checkOrigin,
	}
	return s
}

// SetInitialMessage installs the greeting sent to views when they attach.
func (s *WebSocketServer) SetInitialMessage(fn InitialMessage) {
	s.initial = fn
}

// checkOrigin accepts requests without an Origin header (OBS docks, CLI
// tools) and those from an allowed origin. "*" allows everything.
func (s *WebSocketServer) checkOrigin(r *http.Request) bool {
	origin := r.Header.Get("Origin")
	if origin == "" {
		return true
	}
	for _, allowed := range s.cfg.AllowedOrigins {
		if allowed == "*" || allowed == origin {
			return true
		}
	}
	return false
}

// HandleWebSocket serves one view on channel until either side goes away.
func (s *WebSocketServer) HandleWebSocket(w http.ResponseWriter, r *http.Request, channel domain.SyncChannel) {
	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.logger.Warnw("websocket upgrade failed", "channel", channel, "error", err)
		return
	}
	defer conn.Close()

	viewID := "view-" + uuid.NewString()
	log := s.logger.With("channel", channel, "view_id", viewID)

	deliveries, unsubscribe := s.bus.Subscribe(channel)
	defer unsubscribe()

	s.register(channel, viewID)
	defer s.unregister(channel, viewID)
	log.Infow("view attached", "remote_addr", r.RemoteAddr)

	if s.cfg.MaxMessageSize > 0 {
		conn.SetReadLimit(s.cfg.MaxMessageSize)
	}
	conn.SetReadDeadline(time.Now().Add(s.cfg.PongTimeout))
	conn.SetPongHandler(func(string) error {
		conn.SetReadDeadline(time.Now().Add(s.cfg.PongTimeout))
		return nil
	})

	// errors for the view go through the writer, the only goroutine that
	// writes to conn
	errs := make(chan string, 8)
	readDone := make(chan struct{})

	go func() {
		defer close(readDone)
		s.readLoop(conn, channel, viewID, errs, log)
	}()

	s.writeLoop(conn, channel, viewID, deliveries, errs, readDone, log)
	conn.Close()
	<-readDone
	log.Info("view detached")
}

func (s *WebSocketServer) readLoop(conn *websocket.Conn, channel domain.SyncChannel, viewID string, errs chan<- string, log *zap.SugaredLogger) {
	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure, websocket.CloseNoStatusReceived) {
				log.Infow("view read failed", "error", err)
			}
			return
		}
		conn.SetReadDeadline(time.Now().Add(s.cfg.PongTimeout))

		if err := s.handleFrame(channel, viewID, data); err != nil {
			log.Infow("rejected frame from view", "error", err)
			select {
			case errs <- err.Error():
			default:
			}
		}
	}
}

func (s *WebSocketServer) handleFrame(channel domain.SyncChannel, viewID string, data []byte) error {
	msg, err := domain.DecodeSyncMessage(channel, data)
	if err != nil {
		return err
	}

	ctx, span := tracing.TraceSyncMessage(context.Background(), string(channel), msg.Type())
	defer span.End()

	s.metrics.RecordSyncMessage(channel, msg.Type(), directionIn)
	if err := s.bus.Publish(ctx, viewID, msg); err != nil {
		tracing.RecordError(ctx, err)
		return err
	}
	return nil
}

func (s *WebSocketServer) writeLoop(
	conn *websocket.Conn,
	channel domain.SyncChannel,
	viewID string,
	deliveries <-chan domain.SyncDelivery,
	errs <-chan string,
	readDone <-chan struct{},
	log *zap.SugaredLogger,
) {
	ticker := time.NewTicker(s.cfg.PingInterval)
	defer ticker.Stop()

	if s.initial != nil {
		if msg, ok := s.initial(channel); ok {
			if err := s.writeMessage(conn, msg); err != nil {
				log.Infow("failed to greet view", "error", err)
				return
			}
		}
	}

	for {
		select {
		case d, ok := <-deliveries:
			if !ok {
				s.writeClose(conn)
				return
			}
			if d.Origin == viewID {
				continue
			}
			if err := s.writeMessage(conn, d.Message); err != nil {
				log.Infow("failed to write to view", "error", err)
				return
			}
			s.metrics.RecordSyncMessage(channel, d.Message.Type(), directionOut)

		case msg := <-errs:
			frame, _ := json.Marshal(errorFrame{Type: errorFrameType, Message: msg})
			if err := s.write(conn, websocket.TextMessage, frame); err != nil {
				return
			}

		case <-ticker.C:
			if err := s.write(conn, websocket.PingMessage, nil); err != nil {
				log.Infow("ping failed", "error", err)
				return
			}

		case <-readDone:
			return
		}
	}
}

func (s *WebSocketServer) writeMessage(conn *websocket.Conn, msg domain.SyncMessage) error {
	data, err := domain.EncodeSyncMessage(msg)
	if err != nil {
		return err
	}
	return s.write(conn, websocket.TextMessage, data)
}

func (s *WebSocketServer) write(conn *websocket.Conn, messageType int, data []byte) error {
	conn.SetWriteDeadline(time.Now().Add(s.cfg.WriteTimeout))
	return conn.WriteMessage(messageType, data)
}

func (s *WebSocketServer) writeClose(conn *websocket.Conn) {
	msg := websocket.FormatCloseMessage(websocket.CloseGoingAway, "shutting down")
	_ = conn.WriteControl(websocket.CloseMessage, msg, time.Now().Add(s.cfg.WriteTimeout))
}

func (s *WebSocketServer) register(channel domain.SyncChannel, viewID string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.views[channel] == nil {
		s.views[channel] = make(map[string]struct{})
	}
	s.views[channel][viewID] = struct{}{}
}

func (s *WebSocketServer) unregister(channel domain.SyncChannel, viewID string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.views[channel], viewID)
}

// ViewCount reports how many views are attached to channel.
func (s *WebSocketServer) ViewCount(channel domain.SyncChannel) int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.views[channel])
}
