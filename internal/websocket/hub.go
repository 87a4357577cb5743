package websocket

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/labstack/echo/v4"
	"go.uber.org/zap"

	"github.com/satriahrh/sparkchat/adapters/spark"
	"github.com/satriahrh/sparkchat/domain/entities"
	"github.com/satriahrh/sparkchat/domain/repositories"
)

const (
	// Time allowed to write a message to the peer.
	writeWait = 10 * time.Second

	// Time allowed to read the next pong message from the peer.
	pongWait = 60 * time.Second

	// Send pings to peer with this period. Must be less than pongWait.
	pingPeriod = (pongWait * 9) / 10

	// Maximum message size allowed from peer.
	maxMessageSize = 64 * 1024

	// Outbound messages buffered per client.
	sendBufferSize = 256
)

var upgrader = websocket.Upgrader{
	// Relay clients authenticate with a bearer token, not cookies.
	CheckOrigin: func(r *http.Request) bool {
		return true
	},
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
}

// SessionFactory creates one chat session per relay connection
type SessionFactory interface {
	NewSession(listener spark.Listener) repositories.StreamingChat
}

// Hub maintains the set of active relay clients.
type Hub struct {
	// Registered clients, keyed by connection id.
	clients map[string]*Client

	// Register requests from the clients.
	register chan *Client

	// Unregister requests from clients.
	unregister chan *Client

	// Mutex for thread-safe access to clients map
	mu sync.RWMutex

	// Closed when Run returns.
	stopped chan struct{}

	sessions SessionFactory
	logger   *zap.Logger
}

// NewHub creates a new WebSocket hub
func NewHub(sessions SessionFactory, logger *zap.Logger) *Hub {
	return &Hub{
		clients:    make(map[string]*Client),
		register:   make(chan *Client),
		unregister: make(chan *Client),
		stopped:    make(chan struct{}),
		sessions:   sessions,
		logger:     logger,
	}
}

// Run starts the hub's main loop. It returns when ctx is done, closing every
// remaining client.
func (h *Hub) Run(ctx context.Context) {
	defer close(h.stopped)

	for {
		select {
		case client := <-h.register:
			h.mu.Lock()
			h.clients[client.id] = client
			h.mu.Unlock()
			h.logger.Info("Client registered",
				zap.String("clientID", client.clientID),
				zap.String("connectionID", client.id))

		case client := <-h.unregister:
			h.mu.Lock()
			if _, ok := h.clients[client.id]; ok {
				delete(h.clients, client.id)
			}
			h.mu.Unlock()
			client.close()
			h.logger.Info("Client unregistered",
				zap.String("clientID", client.clientID),
				zap.String("connectionID", client.id))

		case <-ctx.Done():
			h.mu.Lock()
			clients := h.clients
			h.clients = make(map[string]*Client)
			h.mu.Unlock()
			for _, client := range clients {
				client.close()
			}
			return
		}
	}
}

// Count returns the number of registered clients
func (h *Hub) Count() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

// ReapIdle disconnects clients that sent nothing since before now-timeout
// and returns how many were disconnected.
func (h *Hub) ReapIdle(now time.Time, timeout time.Duration) int {
	cutoff := now.Add(-timeout)

	h.mu.RLock()
	var idle []*Client
	for _, client := range h.clients {
		if client.LastSeen().Before(cutoff) {
			idle = append(idle, client)
		}
	}
	h.mu.RUnlock()

	for _, client := range idle {
		h.logger.Info("Disconnecting idle client",
			zap.String("clientID", client.clientID),
			zap.String("connectionID", client.id),
			zap.Time("lastSeen", client.LastSeen()))
		client.close()
	}
	return len(idle)
}

// Client is a middleman between the websocket connection and its chat session.
type Client struct {
	hub *Hub

	// The websocket connection.
	conn *websocket.Conn

	// Buffered channel of outbound messages.
	send chan []byte

	// Closed when the connection is torn down.
	done      chan struct{}
	closeOnce sync.Once

	// Connection id and the authenticated client id
	id       string
	clientID string

	// Unix nanoseconds of the last inbound message
	lastSeen atomic.Int64

	chat      repositories.StreamingChat
	ctx       context.Context
	cancel    context.CancelFunc
	validator *MessageValidator

	logger *zap.Logger
}

// HandleWebSocketWithAuth handles websocket requests with a pre-authenticated client ID
func HandleWebSocketWithAuth(hub *Hub, c echo.Context, clientID string, logger *zap.Logger) error {
	conn, err := upgrader.Upgrade(c.Response(), c.Request(), nil)
	if err != nil {
		logger.Error("WebSocket upgrade failed", zap.Error(err))
		return err
	}

	ctx, cancel := context.WithCancel(context.Background())
	client := &Client{
		hub:       hub,
		conn:      conn,
		send:      make(chan []byte, sendBufferSize),
		done:      make(chan struct{}),
		id:        uuid.NewString(),
		clientID:  clientID,
		ctx:       ctx,
		cancel:    cancel,
		validator: NewMessageValidator(),
		logger:    logger.With(zap.String("clientID", clientID)),
	}
	client.touch()
	client.chat = hub.sessions.NewSession(&relayListener{client: client})

	select {
	case hub.register <- client:
	case <-hub.stopped:
		client.close()
		return nil
	}

	// Allow collection of memory referenced by the caller by doing all work in
	// new goroutines.
	go client.writePump()
	go client.readPump()

	return nil
}

// LastSeen returns when the client last sent a message
func (c *Client) LastSeen() time.Time {
	return time.Unix(0, c.lastSeen.Load())
}

func (c *Client) touch() {
	c.lastSeen.Store(time.Now().UnixNano())
}

// close tears the connection down and cancels the running chat
func (c *Client) close() {
	c.closeOnce.Do(func() {
		close(c.done)
		c.cancel()
		c.chat.Close()
		c.conn.Close()
	})
}

// readPump pumps messages from the websocket connection to the chat session.
func (c *Client) readPump() {
	defer func() {
		select {
		case c.hub.unregister <- c:
		case <-c.hub.stopped:
		}
		c.close()
	}()

	c.conn.SetReadLimit(maxMessageSize)
	c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		c.conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	for {
		messageType, message, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				c.logger.Error("WebSocket error", zap.Error(err))
			}
			break
		}
		c.touch()
		c.conn.SetReadDeadline(time.Now().Add(pongWait))

		if messageType != websocket.TextMessage {
			c.logger.Warn("Received unsupported message type", zap.Int("type", messageType))
			c.enqueue(CreateErrorMessage(ErrorCodeInvalidMessage, "Only text messages are supported", ""))
			continue
		}
		c.processMessage(message)
	}
}

// writePump pumps messages from the client to the websocket connection.
func (c *Client) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()

	for {
		select {
		case message := <-c.send:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.TextMessage, message); err != nil {
				c.logger.Error("Failed to write message", zap.Error(err))
				return
			}

		case <-ticker.C:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}

		case <-c.done:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			c.conn.WriteMessage(websocket.CloseMessage,
				websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
			return
		}
	}
}

// processMessage dispatches one inbound message
func (c *Client) processMessage(message []byte) {
	msg, err := c.validator.ValidateMessage(message)
	if err != nil {
		c.logger.Warn("Rejected message", zap.Error(err))
		c.enqueue(CreateErrorMessage(ErrorCodeInvalidMessage, "Invalid message", err.Error()))
		return
	}

	switch m := msg.(type) {
	case *ChatMessage:
		go c.handleChat(m)
	case *ClearMessage:
		c.chat.ClearConversation()
		c.enqueue(CreateHistoryMessage(c.chat.Conversation()))
	case *HistoryRequestMessage:
		c.enqueue(CreateHistoryMessage(c.chat.Conversation()))
	case *PingMessage:
		c.enqueue(CreatePongMessage(m.Data))
	}
}

// handleChat runs one chat session; events reach the peer via relayListener
func (c *Client) handleChat(msg *ChatMessage) {
	var err error
	if len(msg.Messages) > 0 {
		err = c.chat.SendConversation(c.ctx, msg.Messages)
	} else {
		err = c.chat.SendUserMessage(c.ctx, msg.Message)
	}

	// other session errors were already reported through OnError
	if errors.Is(err, spark.ErrBusy) {
		c.logger.Info("Rejected chat while a reply is in progress")
		c.enqueue(CreateSessionErrorMessage(err))
	}
}

// enqueue marshals v and queues it for the write pump
func (c *Client) enqueue(v interface{}) {
	payload, err := json.Marshal(v)
	if err != nil {
		c.logger.Error("Failed to marshal message", zap.Error(err))
		return
	}

	select {
	case c.send <- payload:
	case <-c.done:
	default:
		c.logger.Warn("Send buffer full, dropping client")
		c.close()
	}
}

// relayListener forwards chat session events to the peer
type relayListener struct {
	spark.NopListener
	client *Client
}

func (l *relayListener) OnStatusChange(state entities.SessionState) {
	l.client.enqueue(CreateStatusMessage(state))
}

func (l *relayListener) OnMessage(fragment string, frame *spark.Response) {
	l.client.enqueue(CreateFragmentMessage(fragment, frame.Header.SID))
}

func (l *relayListener) OnComplete(content string, conversation []entities.Turn) {
	l.client.enqueue(CreateCompleteMessage(content, conversation))
}

func (l *relayListener) OnError(err error) {
	select {
	case <-l.client.done:
		// the peer is gone, nobody to tell
		return
	default:
	}
	l.client.enqueue(CreateSessionErrorMessage(err))
}
