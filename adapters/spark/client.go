package spark

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/satriahrh/sparkchat/domain/entities"
	"github.com/satriahrh/sparkchat/domain/repositories"
)

const (
	// Time allowed to write a message to the peer.
	writeWait = 10 * time.Second

	// Time allowed for the opening handshake.
	handshakeTimeout = 10 * time.Second

	// Maximum frame size accepted from the server.
	maxMessageSize = 1024 * 1024
)

// Option customizes a Client
type Option func(*Client)

// WithSigner replaces the default HMAC signer
func WithSigner(signer Signer) Option {
	return func(c *Client) {
		c.signer = signer
	}
}

// WithDialer replaces the default websocket dialer
func WithDialer(dialer *websocket.Dialer) Option {
	return func(c *Client) {
		c.dialer = dialer
	}
}

// WithClock sets the time source used for request signing
func WithClock(now func() time.Time) Option {
	return func(c *Client) {
		c.now = now
	}
}

// WithUIDGenerator sets the generator of per-session user ids
func WithUIDGenerator(newUID func() string) Option {
	return func(c *Client) {
		c.newUID = newUID
	}
}

// session is one connect -> stream -> terminate cycle
type session struct {
	uid     string
	started time.Time
	done    chan struct{}
	err     error

	// aborts a dial still in flight
	cancel context.CancelFunc

	// guarded by Client.mu
	conn    *websocket.Conn
	settled bool
}

// Client is a streaming chat client for one conversation.
//
// At most one session may be active per client; a send issued while another
// is running returns ErrBusy. The transcript survives sessions until it is
// cleared or replaced.
type Client struct {
	creds    Credentials
	listener Listener
	logger   *zap.Logger
	signer   Signer
	dialer   *websocket.Dialer
	now      func() time.Time
	newUID   func() string

	mu         sync.Mutex
	machine    *entities.StateMachine
	pending    []entities.SessionState
	transcript *entities.Transcript
	content    strings.Builder
	active     *session
}

var _ repositories.StreamingChat = (*Client)(nil)

// NewClient creates a client for the given credentials. A nil listener
// discards events and a nil logger disables logging.
func NewClient(creds Credentials, listener Listener, logger *zap.Logger, opts ...Option) *Client {
	if listener == nil {
		listener = NopListener{}
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	c := &Client{
		creds:      creds,
		listener:   listener,
		logger:     logger,
		signer:     NewHMACSigner(creds.APIKey, creds.APISecret),
		dialer:     &websocket.Dialer{Proxy: http.ProxyFromEnvironment, HandshakeTimeout: handshakeTimeout},
		now:        time.Now,
		newUID:     newUID,
		transcript: entities.NewTranscript(),
	}
	c.machine = entities.NewStateMachine(func(state entities.SessionState) {
		// called with c.mu held; flushed to the listener after unlock
		c.pending = append(c.pending, state)
	})

	for _, opt := range opts {
		opt(c)
	}
	return c
}

// newUID returns a 32 character opaque user id
func newUID() string {
	return strings.ReplaceAll(uuid.NewString(), "-", "")
}

// SendUserMessage appends a user turn and streams the assistant reply. It
// blocks until the session completes, fails, or is canceled.
func (c *Client) SendUserMessage(ctx context.Context, text string) error {
	return c.send(ctx, func() {
		if c.transcript.Len() == 0 && c.creds.SystemPrompt != "" {
			c.transcript.Append(entities.Turn{Role: entities.RoleSystem, Content: c.creds.SystemPrompt})
		}
		c.transcript.Append(entities.Turn{Role: entities.RoleUser, Content: text})
	})
}

// SendConversation replaces the transcript with turns and streams the reply
func (c *Client) SendConversation(ctx context.Context, turns []entities.Turn) error {
	if err := entities.NewTranscript(turns...).Validate(); err != nil {
		return fmt.Errorf("invalid conversation: %w", err)
	}
	return c.send(ctx, func() {
		c.transcript.Replace(turns)
	})
}

// ClearConversation drops the transcript and the accumulated content. It
// does not touch an in-flight session; call Close first if one is running.
func (c *Client) ClearConversation() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.transcript.Clear()
	c.content.Reset()
}

// Conversation returns a copy of the transcript
func (c *Client) Conversation() []entities.Turn {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.transcript.Turns()
}

// CurrentContent returns the content accumulated by the latest session
func (c *Client) CurrentContent() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.content.String()
}

// State returns the current session state
func (c *Client) State() entities.SessionState {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.machine.State()
}

// Close severs the transport and returns the client to Init. An in-flight
// session ends with ErrCanceled. Close is safe to call multiple times.
func (c *Client) Close() error {
	c.mu.Lock()
	sess := c.active
	c.mu.Unlock()

	if sess != nil {
		c.fail(sess, ErrCanceled)
	}

	c.mu.Lock()
	if c.active == nil {
		c.machine.Reset()
	}
	pending := c.takePending()
	c.mu.Unlock()

	c.emitStatus(pending)
	return nil
}

func (c *Client) send(ctx context.Context, prepare func()) error {
	c.mu.Lock()
	if c.active != nil {
		c.mu.Unlock()
		return ErrBusy
	}

	dialCtx, cancel := context.WithCancel(ctx)
	sess := &session{
		uid:     c.newUID(),
		started: c.now(),
		done:    make(chan struct{}),
		cancel:  cancel,
	}
	c.active = sess
	c.content.Reset()
	prepare()
	turns := c.transcript.Turns()
	c.machine.Reset()
	_, err := c.machine.Transition(entities.SessionStateConnecting)
	pending := c.takePending()
	c.mu.Unlock()

	c.emitStatus(pending)
	if err != nil {
		c.fail(sess, err)
		return c.wait(ctx, sess)
	}

	c.logger.Info("Starting chat session",
		zap.String("uid", sess.uid),
		zap.String("domain", c.creds.Domain),
		zap.Int("turns", len(turns)))

	rawURL, err := SignedURL(c.signer, c.creds, sess.started)
	if err != nil {
		if !errors.Is(err, ErrSigning) {
			err = fmt.Errorf("%w: %w", ErrSigning, err)
		}
		c.fail(sess, err)
		return c.wait(ctx, sess)
	}

	conn, resp, err := c.dialer.DialContext(dialCtx, rawURL, nil)
	if resp != nil && resp.Body != nil {
		resp.Body.Close()
	}
	if err != nil {
		switch {
		case ctx.Err() != nil:
			err = fmt.Errorf("%w: %w", ErrCanceled, ctx.Err())
		case dialCtx.Err() != nil:
			// Close ended the session; fail below is a no-op
			err = fmt.Errorf("%w: %w", ErrCanceled, dialCtx.Err())
		case resp != nil:
			err = fmt.Errorf("%w: failed to connect (status %d): %w", ErrTransport, resp.StatusCode, err)
		default:
			err = fmt.Errorf("%w: failed to connect: %w", ErrTransport, err)
		}
		c.fail(sess, err)
		return c.wait(ctx, sess)
	}

	c.mu.Lock()
	if sess.settled {
		// closed while dialing
		c.mu.Unlock()
		conn.Close()
		return c.wait(ctx, sess)
	}
	sess.conn = conn
	conn.SetReadLimit(maxMessageSize)
	_, err = c.machine.Transition(entities.SessionStateConnected)
	pending = c.takePending()
	c.mu.Unlock()

	c.emitStatus(pending)
	if err != nil {
		c.fail(sess, err)
		return c.wait(ctx, sess)
	}
	c.listener.OnConnect()

	if err := c.writeRequest(conn, newRequest(c.creds, sess.uid, turns)); err != nil {
		c.fail(sess, fmt.Errorf("%w: failed to send request: %w", ErrTransport, err))
		return c.wait(ctx, sess)
	}

	go c.readPump(sess, conn)

	return c.wait(ctx, sess)
}

func (c *Client) writeRequest(conn *websocket.Conn, request Request) error {
	if err := conn.SetWriteDeadline(time.Now().Add(writeWait)); err != nil {
		return err
	}
	return conn.WriteJSON(request)
}

func (c *Client) wait(ctx context.Context, sess *session) error {
	select {
	case <-sess.done:
	case <-ctx.Done():
		c.fail(sess, fmt.Errorf("%w: %w", ErrCanceled, ctx.Err()))
		<-sess.done
	}
	return sess.err
}

// readPump reads server frames until the session ends
func (c *Client) readPump(sess *session, conn *websocket.Conn) {
	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			// no-op when the session already ended and closed the socket
			c.fail(sess, fmt.Errorf("%w: %w", ErrTransport, err))
			return
		}
		if c.handleFrame(sess, data) {
			return
		}
	}
}

// handleFrame processes one server frame and reports whether the session ended
func (c *Client) handleFrame(sess *session, data []byte) bool {
	frame, err := decodeResponse(data)
	if err != nil {
		c.fail(sess, err)
		return true
	}
	if err := frame.Err(); err != nil {
		c.fail(sess, err)
		return true
	}

	if fragment := frame.Fragment(); fragment != "" {
		c.mu.Lock()
		if sess.settled {
			c.mu.Unlock()
			c.logger.Debug("Ignoring fragment after session end", zap.String("sid", frame.Header.SID))
			return true
		}
		c.content.WriteString(fragment)
		_, err := c.machine.Transition(entities.SessionStateStreaming)
		pending := c.takePending()
		c.mu.Unlock()

		if err != nil {
			c.logger.Warn("Unexpected state for fragment", zap.Error(err))
		}
		c.emitStatus(pending)

		c.logger.Debug("Received fragment",
			zap.String("sid", frame.Header.SID),
			zap.Int("seq", frame.Payload.Choices.Seq),
			zap.Int("size", len(fragment)))
		c.listener.OnMessage(fragment, frame)
	}

	if frame.IsFinal() {
		c.complete(sess, frame)
		return true
	}
	return false
}

func (c *Client) complete(sess *session, frame *Response) {
	c.mu.Lock()
	if sess.settled {
		c.mu.Unlock()
		return
	}
	sess.settled = true
	_, err := c.machine.Transition(entities.SessionStateCompleted)
	content := c.content.String()
	if content != "" {
		c.transcript.Append(entities.Turn{Role: entities.RoleAssistant, Content: content})
	}
	conversation := c.transcript.Turns()
	pending := c.takePending()
	c.mu.Unlock()

	if err != nil {
		c.logger.Warn("Unexpected state on completion", zap.Error(err))
	}
	c.emitStatus(pending)

	fields := []zap.Field{
		zap.String("uid", sess.uid),
		zap.String("sid", frame.Header.SID),
		zap.Int("contentLength", len(content)),
		zap.Duration("elapsed", time.Since(sess.started)),
	}
	if usage := frame.Payload.Usage; usage != nil {
		fields = append(fields, zap.Int("totalTokens", usage.Text.TotalTokens))
	}
	c.logger.Info("Chat session completed", fields...)

	if usage := frame.Payload.Usage; usage != nil {
		if ul, ok := c.listener.(UsageListener); ok {
			ul.OnUsage(*usage)
		}
	}

	c.listener.OnComplete(content, conversation)
	c.terminate(sess, nil)
}

// fail ends the session with err unless it already ended
func (c *Client) fail(sess *session, err error) {
	c.mu.Lock()
	if sess.settled {
		c.mu.Unlock()
		return
	}
	sess.settled = true
	_, terr := c.machine.Transition(entities.SessionStateError)
	pending := c.takePending()
	c.mu.Unlock()

	if terr != nil {
		c.logger.Warn("Unexpected state on failure", zap.Error(terr))
	}
	c.emitStatus(pending)

	c.logger.Warn("Chat session failed",
		zap.String("uid", sess.uid),
		zap.Error(err))

	c.listener.OnError(err)
	c.terminate(sess, err)
}

// terminate releases the transport, resets the machine to Init and wakes the
// waiting sender. It runs exactly once per session.
func (c *Client) terminate(sess *session, err error) {
	c.mu.Lock()
	conn := sess.conn
	sess.conn = nil
	if c.active == sess {
		c.active = nil
	}
	c.machine.Reset()
	pending := c.takePending()
	c.mu.Unlock()

	sess.cancel()
	if conn != nil {
		c.closeConn(conn)
		c.listener.OnClose()
	}
	c.emitStatus(pending)

	sess.err = err
	close(sess.done)
}

func (c *Client) closeConn(conn *websocket.Conn) {
	message := websocket.FormatCloseMessage(websocket.CloseNormalClosure, "")
	if err := conn.WriteControl(websocket.CloseMessage, message, time.Now().Add(writeWait)); err != nil {
		c.logger.Debug("Failed to write close message", zap.Error(err))
	}
	conn.Close()
}

// takePending returns the queued state notifications. Caller holds c.mu.
func (c *Client) takePending() []entities.SessionState {
	pending := c.pending
	c.pending = nil
	return pending
}

func (c *Client) emitStatus(states []entities.SessionState) {
	for _, state := range states {
		c.listener.OnStatusChange(state)
	}
}
