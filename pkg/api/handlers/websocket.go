package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/gorilla/websocket"

	"github.com/vitrine/vitrine/pkg/api/response"
	"github.com/vitrine/vitrine/pkg/conversation"
	"github.com/vitrine/vitrine/pkg/logger"
)

const (
	defaultWSMaxConnections = 100
	defaultPingInterval     = 30 * time.Second
	defaultPongTimeout      = 10 * time.Second
	defaultWriteTimeout     = 10 * time.Second
	defaultTurnTimeout      = 30 * time.Second
	defaultSendBuffer       = 32
	maxWSMessageBytes       = 64 << 10
)

// Websocket message types.
const (
	MessageTypeTurn  = "turn"
	MessageTypeError = "error"
)

var errWSLimitReached = errors.New("websocket connection limit reached")

// WebSocketConfig configures websocket handler behavior.
type WebSocketConfig struct {
	AllowedOrigins []string
	MaxConnections int
	PingInterval   time.Duration
	PongTimeout    time.Duration
	// TurnTimeout bounds each turn submitted over the socket.
	TurnTimeout time.Duration
}

// ConnectionGauge tracks open websocket connections.
type ConnectionGauge interface {
	IncWebSocketConnections()
	DecWebSocketConnections()
}

// EventMessage is the websocket event format.
type EventMessage struct {
	Type      string    `json:"type"`
	Timestamp time.Time `json:"timestamp"`
	Payload   any       `json:"payload"`
}

// incomingMessage is what a client sends: one utterance per message.
type incomingMessage struct {
	Type      string `json:"type"`
	Utterance string `json:"utterance"`
	Locale    string `json:"locale,omitempty"`
}

type wsClient struct {
	conn      *websocket.Conn
	sessionID string
	send      chan []byte
	closeOnce sync.Once
}

func newWSClient(conn *websocket.Conn, sessionID string) *wsClient {
	return &wsClient{
		conn:      conn,
		sessionID: sessionID,
		send:      make(chan []byte, defaultSendBuffer),
	}
}

func (c *wsClient) close() {
	c.closeOnce.Do(func() {
		close(c.send)
		if c.conn != nil {
			_ = c.conn.Close()
		}
	})
}

// ConnectionManager tracks websocket clients by session. It is a
// conversation.Observer: every finished turn is pushed to the clients
// attached to that session, whichever transport submitted it.
type ConnectionManager struct {
	mu             sync.RWMutex
	clients        map[*wsClient]struct{}
	maxConnections int
	gauge          ConnectionGauge
}

// NewConnectionManager creates a manager with max connection limit.
func NewConnectionManager(maxConnections int, gauge ConnectionGauge) *ConnectionManager {
	if maxConnections <= 0 {
		maxConnections = defaultWSMaxConnections
	}
	return &ConnectionManager{
		clients:        make(map[*wsClient]struct{}),
		maxConnections: maxConnections,
		gauge:          gauge,
	}
}

// Register registers a websocket client.
func (m *ConnectionManager) Register(client *wsClient) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if len(m.clients) >= m.maxConnections {
		return errWSLimitReached
	}
	m.clients[client] = struct{}{}
	if m.gauge != nil {
		m.gauge.IncWebSocketConnections()
	}
	return nil
}

// Unregister unregisters a websocket client.
func (m *ConnectionManager) Unregister(client *wsClient) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.clients[client]; !ok {
		return
	}
	delete(m.clients, client)
	client.close()
	if m.gauge != nil {
		m.gauge.DecWebSocketConnections()
	}
}

// Count returns active connection count.
func (m *ConnectionManager) Count() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.clients)
}

// CanAccept reports whether there is capacity for one more connection.
func (m *ConnectionManager) CanAccept() bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.clients) < m.maxConnections
}

// Publish sends event to every client attached to sessionID. Slow clients
// whose buffer is full are disconnected.
func (m *ConnectionManager) Publish(sessionID string, event EventMessage) error {
	if event.Timestamp.IsZero() {
		event.Timestamp = time.Now().UTC()
	}
	payload, err := json.Marshal(event)
	if err != nil {
		return err
	}

	m.mu.RLock()
	clients := make([]*wsClient, 0, len(m.clients))
	for client := range m.clients {
		if client.sessionID == sessionID {
			clients = append(clients, client)
		}
	}
	m.mu.RUnlock()

	for _, client := range clients {
		m.deliver(client, payload)
	}
	return nil
}

// OnTurn publishes a finished turn to the session's clients.
func (m *ConnectionManager) OnTurn(outcome conversation.TurnOutcome) {
	if outcome.Response == nil {
		return
	}
	_ = m.Publish(outcome.Response.SessionID, EventMessage{
		Type:    MessageTypeTurn,
		Payload: outcome.Response,
	})
}

func (m *ConnectionManager) deliver(client *wsClient, payload []byte) {
	// Unregister closes send; hold the read lock so the send below cannot race it.
	m.mu.RLock()
	if _, ok := m.clients[client]; !ok {
		m.mu.RUnlock()
		return
	}
	select {
	case client.send <- payload:
		m.mu.RUnlock()
	default:
		m.mu.RUnlock()
		m.Unregister(client)
	}
}

// Close closes all active websocket connections.
func (m *ConnectionManager) Close() {
	m.mu.Lock()
	defer m.mu.Unlock()
	for client := range m.clients {
		client.close()
		delete(m.clients, client)
		if m.gauge != nil {
			m.gauge.DecWebSocketConnections()
		}
	}
}

// WebSocketHandler serves /api/v1/sessions/{sessionID}/ws. Each text message
// from the client is one utterance; the turn result arrives through the
// manager, so the manager must be registered as an engine observer.
type WebSocketHandler struct {
	log          logger.Logger
	turns        TurnService
	manager      *ConnectionManager
	upgrader     websocket.Upgrader
	pingInterval time.Duration
	pongTimeout  time.Duration
	writeTimeout time.Duration
	turnTimeout  time.Duration
}

// NewWebSocketHandler creates a websocket handler.
func NewWebSocketHandler(log logger.Logger, turns TurnService, manager *ConnectionManager, cfg WebSocketConfig) *WebSocketHandler {
	if cfg.PingInterval <= 0 {
		cfg.PingInterval = defaultPingInterval
	}
	if cfg.PongTimeout <= 0 {
		cfg.PongTimeout = defaultPongTimeout
	}
	if cfg.TurnTimeout <= 0 {
		cfg.TurnTimeout = defaultTurnTimeout
	}
	if manager == nil {
		manager = NewConnectionManager(cfg.MaxConnections, nil)
	}

	handler := &WebSocketHandler{
		log:          log,
		turns:        turns,
		manager:      manager,
		pingInterval: cfg.PingInterval,
		pongTimeout:  cfg.PongTimeout,
		writeTimeout: defaultWriteTimeout,
		turnTimeout:  cfg.TurnTimeout,
	}

	allowedOrigins := append([]string(nil), cfg.AllowedOrigins...)
	handler.upgrader = websocket.Upgrader{
		CheckOrigin: func(r *http.Request) bool {
			return isWebSocketOriginAllowed(r, allowedOrigins)
		},
	}

	return handler
}

// ServeHTTP upgrades HTTP to websocket and starts client loops.
//
//	@Summary		Websocket chat
//	@Description	Upgrades to a websocket. Send {"type":"turn","utterance":"..."}; every finished turn of the session arrives as {"type":"turn","payload":TurnResponse}.
//	@Tags			sessions
//	@Param			sessionID	path	string	true	"Session ID"
//	@Success		101
//	@Failure		400	{object}	response.ErrorResponse
//	@Failure		503	{object}	response.ErrorResponse
//	@Router			/api/v1/sessions/{sessionID}/ws [get]
func (h *WebSocketHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	sessionID := strings.TrimSpace(chi.URLParam(r, "sessionID"))
	if sessionID == "" {
		response.Error(w, http.StatusBadRequest, response.ErrCodeBadRequest, "Session ID is required", getRequestID(r.Context()))
		return
	}
	if !websocket.IsWebSocketUpgrade(r) {
		response.Error(w, http.StatusBadRequest, response.ErrCodeBadRequest, "websocket upgrade required", getRequestID(r.Context()))
		return
	}
	if !h.manager.CanAccept() {
		response.Error(w, http.StatusServiceUnavailable, response.ErrCodeServiceUnavailable, errWSLimitReached.Error(), getRequestID(r.Context()))
		return
	}

	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.log.Warn("websocket upgrade failed", "error", err)
		return
	}

	client := newWSClient(conn, sessionID)
	if err := h.manager.Register(client); err != nil {
		_ = conn.WriteControl(
			websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseTryAgainLater, "too many websocket connections"),
			time.Now().Add(h.writeTimeout),
		)
		_ = conn.Close()
		return
	}

	h.log.Debug("websocket connected", logger.SessionIDKey, sessionID)
	go h.writePump(client)
	h.readPump(r.Context(), client)
}

func (h *WebSocketHandler) readPump(ctx context.Context, client *wsClient) {
	defer h.manager.Unregister(client)

	readDeadline := h.pingInterval + h.pongTimeout
	client.conn.SetReadLimit(maxWSMessageBytes)
	_ = client.conn.SetReadDeadline(time.Now().Add(readDeadline))
	client.conn.SetPongHandler(func(_ string) error {
		return client.conn.SetReadDeadline(time.Now().Add(readDeadline))
	})

	for {
		_, data, err := client.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure, websocket.CloseAbnormalClosure) {
				h.log.Warn("websocket read error", logger.SessionIDKey, client.sessionID, "error", err)
			}
			return
		}
		_ = client.conn.SetReadDeadline(time.Now().Add(readDeadline))
		h.handleIncomingMessage(ctx, client, data)
	}
}

func (h *WebSocketHandler) writePump(client *wsClient) {
	ticker := time.NewTicker(h.pingInterval)
	defer func() {
		ticker.Stop()
		h.manager.Unregister(client)
	}()

	for {
		select {
		case message, ok := <-client.send:
			if !ok {
				_ = client.conn.WriteControl(
					websocket.CloseMessage,
					websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
					time.Now().Add(h.writeTimeout),
				)
				return
			}
			_ = client.conn.SetWriteDeadline(time.Now().Add(h.writeTimeout))
			if err := client.conn.WriteMessage(websocket.TextMessage, message); err != nil {
				return
			}
		case <-ticker.C:
			if err := client.conn.WriteControl(websocket.PingMessage, []byte("ping"), time.Now().Add(h.writeTimeout)); err != nil {
				return
			}
		}
	}
}

// handleIncomingMessage runs one turn. Errors go back to the sender only;
// successful turns are published by the manager.
func (h *WebSocketHandler) handleIncomingMessage(ctx context.Context, client *wsClient, raw []byte) {
	var message incomingMessage
	if err := json.Unmarshal(raw, &message); err != nil {
		h.replyError(client, http.StatusBadRequest, response.ErrCodeBadRequest, "Invalid message")
		return
	}
	if t := strings.ToLower(strings.TrimSpace(message.Type)); t != "" && t != MessageTypeTurn {
		h.replyError(client, http.StatusBadRequest, response.ErrCodeBadRequest, "Unsupported message type")
		return
	}

	ctx, cancel := context.WithTimeout(ctx, h.turnTimeout)
	defer cancel()

	_, err := h.turns.HandleTurn(ctx, conversation.TurnRequest{
		SessionID: client.sessionID,
		Utterance: message.Utterance,
		Locale:    message.Locale,
	})
	if err != nil {
		status, code := turnErrorStatus(err)
		if status == http.StatusInternalServerError {
			h.log.Error("websocket turn failed", logger.SessionIDKey, client.sessionID, "error", err)
		}
		h.replyError(client, status, code, turnErrorMessage(status, err))
	}
}

func (h *WebSocketHandler) replyError(client *wsClient, status int, code, message string) {
	payload, err := json.Marshal(EventMessage{
		Type:      MessageTypeError,
		Timestamp: time.Now().UTC(),
		Payload: map[string]any{
			"status":  status,
			"code":    code,
			"message": message,
		},
	})
	if err != nil {
		return
	}
	h.manager.deliver(client, payload)
}

// Manager returns the connection manager.
func (h *WebSocketHandler) Manager() *ConnectionManager {
	return h.manager
}

// Close closes all websocket clients.
func (h *WebSocketHandler) Close() {
	h.manager.Close()
}

func isWebSocketOriginAllowed(r *http.Request, allowedOrigins []string) bool {
	origin := strings.TrimSpace(r.Header.Get("Origin"))
	if origin == "" {
		return true
	}

	for _, allowed := range allowedOrigins {
		if allowed == "*" || strings.EqualFold(strings.TrimSpace(allowed), origin) {
			return true
		}
	}

	originURL, err := url.Parse(origin)
	if err != nil {
		return false
	}
	return strings.EqualFold(originURL.Host, r.Host)
}
