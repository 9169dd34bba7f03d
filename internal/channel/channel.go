// Package channel owns the single reconnecting real-time connection for
// the authenticated user. It registers server-event handlers, re-announces
// identity on every connect, and emits typed outbound commands.
package channel

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"github.com/avast/retry-go/v4"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"starcall/pkg/interfaces"
	"starcall/pkg/types"
)

const (
	defaultQueueSize    = 64
	defaultWriteTimeout = 5 * time.Second
	defaultBaseDelay    = time.Second
	defaultMaxDelay     = 5 * time.Second
)

// Config holds channel settings. Reconnect delays mirror the production
// client: exponential backoff from BaseDelay capped at MaxDelay with
// randomized jitter, retrying indefinitely.
type Config struct {
	URL          string
	Session      types.UserSession
	QueueSize    int           // outbound queue bound while reconnecting
	WriteTimeout time.Duration // per-frame write deadline
	BaseDelay    time.Duration
	MaxDelay     time.Duration
}

func (c *Config) applyDefaults() {
	if c.QueueSize <= 0 {
		c.QueueSize = defaultQueueSize
	}
	if c.WriteTimeout <= 0 {
		c.WriteTimeout = defaultWriteTimeout
	}
	if c.BaseDelay <= 0 {
		c.BaseDelay = defaultBaseDelay
	}
	if c.MaxDelay <= 0 {
		c.MaxDelay = defaultMaxDelay
	}
}

// Handler consumes one inbound event's raw payload. Handlers run on the
// read goroutine, so events are delivered in transport arrival order.
type Handler func(data json.RawMessage)

// Channel is the session channel adapter. One instance exists per
// authenticated user session.
type Channel struct {
	cfg    Config
	logger zerolog.Logger

	mu        sync.Mutex
	state     State
	closed    bool
	handlers  map[string]Handler
	onConnect []func(resumed bool)
	queue     [][]byte      // commands held while connecting/reconnecting
	writeCh   chan []byte   // live connection's single-writer feed
	cancel    context.CancelFunc
}

var _ interfaces.CommandSender = (*Channel)(nil)

// New creates a channel adapter. Register handlers and connect hooks
// before calling Run.
func New(cfg Config) (*Channel, error) {
	if cfg.URL == "" {
		return nil, ErrMissingURL
	}
	if err := cfg.Session.Validate(); err != nil {
		return nil, err
	}
	cfg.applyDefaults()
	return &Channel{
		cfg:      cfg,
		state:    StateDisconnected,
		handlers: make(map[string]Handler),
		logger:   log.With().Str("component", "channel").Logger(),
	}, nil
}

// Handle registers the handler for one inbound event name. Later
// registrations replace earlier ones.
func (c *Channel) Handle(event string, fn Handler) {
	c.mu.Lock()
	c.handlers[event] = fn
	c.mu.Unlock()
}

// OnConnect registers a hook invoked after every successful connect,
// once identity has been re-announced. resumed is false only for the
// first connect of this channel's lifetime.
func (c *Channel) OnConnect(fn func(resumed bool)) {
	c.mu.Lock()
	c.onConnect = append(c.onConnect, fn)
	c.mu.Unlock()
}

// State returns the current connection state.
func (c *Channel) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// Send implements interfaces.CommandSender. Connected: the frame goes to
// the writer. Connecting/reconnecting: the frame is queued, bounded by
// QueueSize. Disconnected or closed: the command is rejected; callers
// fall back to REST reconciliation instead of relying on delivery.
func (c *Channel) Send(cmd types.Command) error {
	if cmd.ID == "" {
		cmd.ID = uuid.New().String()
	}
	data, err := json.Marshal(cmd.Data)
	if err != nil {
		return err
	}
	frame, err := json.Marshal(types.Frame{Event: cmd.Name, Data: data})
	if err != nil {
		return err
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return ErrChannelClosed
	}
	switch c.state {
	case StateConnected:
		select {
		case c.writeCh <- frame:
			return nil
		default:
			return ErrQueueFull
		}
	case StateConnecting, StateReconnecting:
		if len(c.queue) >= c.cfg.QueueSize {
			return ErrQueueFull
		}
		c.queue = append(c.queue, frame)
		c.logger.Debug().Str("command", cmd.Name).Msg("command queued until reconnect")
		return nil
	default:
		return ErrNotConnected
	}
}

// Run connects and serves the channel until the context is cancelled or
// Close is called. Connection loss triggers indefinite reconnection; any
// event missed while disconnected is recovered by the OnConnect hooks'
// REST reconciliation, not by transport replay.
func (c *Channel) Run(ctx context.Context) error {
	ctx, cancel := context.WithCancel(ctx)

	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		cancel()
		return ErrChannelClosed
	}
	if c.cancel != nil {
		c.mu.Unlock()
		cancel()
		return ErrAlreadyRunning
	}
	c.cancel = cancel
	c.setStateLocked(StateConnecting)
	c.mu.Unlock()

	resumed := false
	for {
		conn, err := c.dial(ctx)
		if err != nil {
			c.transition(StateDisconnected)
			return err
		}

		c.serve(ctx, conn, resumed)
		resumed = true

		select {
		case <-ctx.Done():
			c.transition(StateDisconnected)
			return ctx.Err()
		default:
		}
		c.transition(StateReconnecting)
	}
}

// Close permanently shuts the channel down.
func (c *Channel) Close() error {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return nil
	}
	c.closed = true
	cancel := c.cancel
	c.setStateLocked(StateDisconnected)
	c.mu.Unlock()

	if cancel != nil {
		cancel()
	}
	return nil
}

// dial connects with bounded exponential backoff and jitter, retrying
// until the context is cancelled.
func (c *Channel) dial(ctx context.Context) (*websocket.Conn, error) {
	var conn *websocket.Conn
	err := retry.Do(
		func() error {
			var err error
			conn, _, err = websocket.DefaultDialer.DialContext(ctx, c.cfg.URL, nil)
			if err != nil {
				c.logger.Warn().Err(err).Msg("dial failed, will retry")
			}
			return err
		},
		retry.Context(ctx),
		retry.Attempts(0), // retry until the context ends
		retry.Delay(c.cfg.BaseDelay),
		retry.MaxDelay(c.cfg.MaxDelay),
		retry.MaxJitter(c.cfg.BaseDelay/2),
		retry.DelayType(retry.CombineDelay(retry.BackOffDelay, retry.RandomDelay)),
		retry.LastErrorOnly(true),
	)
	if err != nil {
		return nil, err
	}
	return conn, nil
}

// serve runs one connection to completion: announce identity, flush the
// queue, pump writes, and read until the connection drops.
func (c *Channel) serve(ctx context.Context, conn *websocket.Conn, resumed bool) {
	defer conn.Close()

	writeCh := make(chan []byte, c.cfg.QueueSize)

	c.mu.Lock()
	c.writeCh = writeCh
	c.setStateLocked(StateConnected)
	pending := c.queue
	c.queue = nil
	hooks := make([]func(bool), len(c.onConnect))
	copy(hooks, c.onConnect)
	c.mu.Unlock()

	done := make(chan struct{})
	go c.writeLoop(conn, writeCh, done)

	// ReadMessage only returns on connection failure; tear the socket
	// down when the context ends so Run can exit.
	go func() {
		select {
		case <-ctx.Done():
			_ = conn.Close()
		case <-done:
		}
	}()

	// Identity must be re-announced on every connect: the transport does
	// not preserve server-side push routing across reconnects.
	announce, _ := json.Marshal(types.Frame{
		Event: types.CommandAddUser,
		Data:  mustMarshal(types.AddUserPayload{UserID: c.cfg.Session.UserID, SessionID: c.cfg.Session.SessionID}),
	})
	writeCh <- announce
	for _, frame := range pending {
		writeCh <- frame
	}

	c.logger.Info().Bool("resumed", resumed).Msg("channel connected")
	for _, hook := range hooks {
		hook(resumed)
	}

	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			c.logger.Warn().Err(err).Msg("connection lost")
			break
		}
		c.dispatch(data)
	}

	close(done)
	c.mu.Lock()
	if c.writeCh == writeCh {
		c.writeCh = nil
	}
	c.mu.Unlock()
}

// writeLoop is the connection's single writer; serializing writes here
// keeps gorilla/websocket happy with concurrent senders.
func (c *Channel) writeLoop(conn *websocket.Conn, writeCh chan []byte, done chan struct{}) {
	for {
		select {
		case data := <-writeCh:
			if err := conn.SetWriteDeadline(time.Now().Add(c.cfg.WriteTimeout)); err != nil {
				return
			}
			if err := conn.WriteMessage(websocket.TextMessage, data); err != nil {
				c.logger.Warn().Err(err).Msg("write failed")
				return
			}
		case <-done:
			return
		}
	}
}

// dispatch routes one inbound frame to its registered handler. Unknown
// events are dropped; a malformed frame is logged, never fatal.
func (c *Channel) dispatch(data []byte) {
	var frame types.Frame
	if err := json.Unmarshal(data, &frame); err != nil {
		c.logger.Warn().Err(err).Msg("malformed frame dropped")
		return
	}

	c.mu.Lock()
	handler, ok := c.handlers[frame.Event]
	c.mu.Unlock()

	if !ok {
		c.logger.Debug().Str("event", frame.Event).Msg("no handler for event")
		return
	}
	handler(frame.Data)
}

func (c *Channel) transition(state State) {
	c.mu.Lock()
	c.setStateLocked(state)
	c.mu.Unlock()
}

func (c *Channel) setStateLocked(state State) {
	if c.state != state {
		c.logger.Debug().Str("from", c.state.String()).Str("to", state.String()).Msg("state change")
		c.state = state
	}
}

func mustMarshal(v any) json.RawMessage {
	data, err := json.Marshal(v)
	if err != nil {
		// Only reachable with an unmarshalable payload type, which is a
		// programming defect.
		panic(err)
	}
	return data
}
