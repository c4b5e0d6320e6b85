package wsclient

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"
)

// State is the inspectable lifecycle state of a connection handle.
//
// It is deliberately separate from the connection status the registry
// tracks: the two can transiently disagree (the handle may report running
// while a close callback has not yet landed), so the reconnect scheduler
// checks both.
type State int32

// Connection handle states.
const (
	StateRunning State = iota
	StateStopping
	StateStopped
	StateFailed
)

// String returns the state name for logging.
func (s State) String() string {
	switch s {
	case StateRunning:
		return "running"
	case StateStopping:
		return "stopping"
	case StateStopped:
		return "stopped"
	case StateFailed:
		return "failed"
	default:
		return "unknown"
	}
}

// Healthy reports whether the handle is usable as-is.
func (s State) Healthy() bool {
	return s == StateRunning
}

// Callback receives connection lifecycle and notification events.
//
// Invocations for one connection are serialised: OnOpen happens before any
// OnNotification, and OnClose (or a terminal OnError) is last.
type Callback interface {
	OnOpen(tenant string)
	OnNotification(tenant string, n Notification)
	OnError(tenant string, err error)
	OnClose(tenant string)
}

// Logger is the logging interface used by the transport.
type Logger interface {
	Debug(msg string, args ...any)
	Info(msg string, args ...any)
	Warn(msg string, args ...any)
	Error(msg string, args ...any)
}

// noopLogger is a logger that does nothing.
type noopLogger struct{}

func (noopLogger) Debug(string, ...any) {}
func (noopLogger) Info(string, ...any)  {}
func (noopLogger) Warn(string, ...any)  {}
func (noopLogger) Error(string, ...any) {}

// Transport constants.
const (
	// defaultKeepAliveInterval is the ping cadence keeping the session from
	// being closed as idle by the platform.
	defaultKeepAliveInterval = 10 * time.Second

	// defaultHandshakeTimeout bounds the websocket upgrade.
	defaultHandshakeTimeout = 30 * time.Second

	// writeTimeout bounds individual frame writes (acks, pings, close).
	writeTimeout = 10 * time.Second

	// disconnectAttempts is the bounded retry count for Disconnect.
	disconnectAttempts = 3

	// eventBuffer sizes the internal event channel between the read loop
	// and the callback driver.
	eventBuffer = 64
)

// Config configures a connection.
type Config struct {
	// KeepAliveInterval is the ping interval. Zero selects the default (10s).
	KeepAliveInterval time.Duration

	// HandshakeTimeout bounds the websocket upgrade. Zero selects the default.
	HandshakeTimeout time.Duration

	// Logger receives transport-level log lines. Optional.
	Logger Logger
}

// event is a single transport event delivered to the callback driver.
type event struct {
	kind         eventKind
	notification Notification
	err          error
}

type eventKind int

const (
	eventOpened eventKind = iota
	eventMessage
	eventErrored
	eventClosed
)

// Conn is a live (or establishing) websocket connection for one tenant.
type Conn struct {
	endpoint string
	tenant   string
	callback Callback
	cfg      Config
	logger   Logger

	state  atomic.Int32
	events chan event
	cancel context.CancelFunc

	mu sync.Mutex // guards ws
	ws *websocket.Conn

	writeMu    sync.Mutex // serialises frame writes (acks vs pings vs close)
	closeOnce  sync.Once
	driverDone chan struct{}
}

// Dial starts connection establishment and returns the handle immediately.
//
// Establishment is asynchronous: a returned *Conn does not mean the platform
// accepted the session. Success is confirmed only by the callback's OnOpen;
// rejection surfaces through OnError, and callers that see neither must rely
// on the handle state check.
func Dial(ctx context.Context, endpoint, tenant string, callback Callback, cfg Config) *Conn {
	if cfg.KeepAliveInterval <= 0 {
		cfg.KeepAliveInterval = defaultKeepAliveInterval
	}
	if cfg.HandshakeTimeout <= 0 {
		cfg.HandshakeTimeout = defaultHandshakeTimeout
	}
	logger := cfg.Logger
	if logger == nil {
		logger = noopLogger{}
	}

	connCtx, cancel := context.WithCancel(ctx)
	c := &Conn{
		endpoint:   endpoint,
		tenant:     tenant,
		callback:   callback,
		cfg:        cfg,
		logger:     logger,
		events:     make(chan event, eventBuffer),
		cancel:     cancel,
		driverDone: make(chan struct{}),
	}
	c.state.Store(int32(StateRunning))

	go c.drive()
	go c.run(connCtx)

	return c
}

// State returns the current handle state.
func (c *Conn) State() State {
	return State(c.state.Load())
}

// drive delivers events to the callback one at a time, in order.
func (c *Conn) drive() {
	defer close(c.driverDone)
	for ev := range c.events {
		switch ev.kind {
		case eventOpened:
			c.callback.OnOpen(c.tenant)
		case eventMessage:
			c.callback.OnNotification(c.tenant, ev.notification)
		case eventErrored:
			c.callback.OnError(c.tenant, ev.err)
		case eventClosed:
			c.callback.OnClose(c.tenant)
		}
	}
}

// run performs the handshake and, on success, the read loop. It owns the
// events channel and closes it on exit.
func (c *Conn) run(ctx context.Context) {
	defer close(c.events)

	dialer := websocket.Dialer{HandshakeTimeout: c.cfg.HandshakeTimeout}
	ws, resp, err := dialer.DialContext(ctx, c.endpoint, nil)
	if resp != nil && resp.Body != nil {
		resp.Body.Close()
	}
	if err != nil {
		if !c.state.CompareAndSwap(int32(StateRunning), int32(StateFailed)) {
			// Disconnect was called while the handshake was in flight.
			c.state.Store(int32(StateStopped))
			c.events <- event{kind: eventClosed}
			return
		}
		if resp != nil {
			// The server answered but refused the upgrade; a 409 here means
			// prior-session state has not been cleared yet.
			err = fmt.Errorf("%w: status %d: %v", ErrUpgradeRejected, resp.StatusCode, err)
		} else {
			err = fmt.Errorf("%w: %v", ErrTransportFault, err)
		}
		c.logger.Warn("websocket connect failed", "tenant", c.tenant, "error", err)
		c.events <- event{kind: eventErrored, err: err}
		return
	}

	c.mu.Lock()
	c.ws = ws
	c.mu.Unlock()

	c.logger.Info("websocket connection established", "tenant", c.tenant)
	c.events <- event{kind: eventOpened}

	keepaliveDone := make(chan struct{})
	go c.keepAlive(ctx, keepaliveDone)
	defer close(keepaliveDone)

	for {
		msgType, data, err := ws.ReadMessage()
		if err != nil {
			if c.state.CompareAndSwap(int32(StateRunning), int32(StateFailed)) {
				c.logger.Warn("websocket read failed", "tenant", c.tenant, "error", err)
				c.events <- event{kind: eventErrored, err: fmt.Errorf("%w: %v", ErrTransportFault, err)}
			} else {
				c.state.Store(int32(StateStopped))
				c.logger.Info("websocket closed", "tenant", c.tenant)
			}
			c.events <- event{kind: eventClosed}
			return
		}
		if msgType != websocket.TextMessage {
			continue
		}

		n, err := ParseNotification(string(data))
		if err != nil {
			c.logger.Error("dropping malformed notification", "tenant", c.tenant, "error", err)
			continue
		}

		if n.AckToken != "" {
			if err := c.writeText(n.AckToken); err != nil {
				// An unacked message is redelivered by the platform; the
				// session itself stays up.
				c.logger.Error("failed to ack message", "tenant", c.tenant, "error", err)
			}
		} else {
			c.logger.Warn("no ack token on message", "tenant", c.tenant)
		}

		c.events <- event{kind: eventMessage, notification: n}
	}
}

// keepAlive sends ping control frames until the connection winds down.
func (c *Conn) keepAlive(ctx context.Context, done <-chan struct{}) {
	ticker := time.NewTicker(c.cfg.KeepAliveInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			c.mu.Lock()
			ws := c.ws
			c.mu.Unlock()
			if ws == nil {
				return
			}
			c.writeMu.Lock()
			err := ws.WriteControl(websocket.PingMessage, nil, time.Now().Add(writeTimeout))
			c.writeMu.Unlock()
			if err != nil {
				// Not fatal on its own; a dead session surfaces through the
				// read loop and the handle state.
				c.logger.Warn("keep-alive ping failed", "tenant", c.tenant, "error", err)
			} else {
				c.logger.Debug("keep-alive ping sent", "tenant", c.tenant)
			}
		case <-done:
			return
		case <-ctx.Done():
			return
		}
	}
}

// writeText writes a text frame with a bounded deadline.
func (c *Conn) writeText(payload string) error {
	c.mu.Lock()
	ws := c.ws
	c.mu.Unlock()
	if ws == nil {
		return fmt.Errorf("%w: connection not established", ErrTransportFault)
	}

	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	ws.SetWriteDeadline(time.Now().Add(writeTimeout))
	return ws.WriteMessage(websocket.TextMessage, []byte(payload))
}

// Disconnect closes the connection, best-effort, with bounded retries.
//
// It is idempotent. The final failure is returned for logging only; callers
// must not assume the server-side session is fully severed either way.
func (c *Conn) Disconnect() error {
	var err error
	c.closeOnce.Do(func() {
		c.state.Store(int32(StateStopping))
		c.cancel()

		c.mu.Lock()
		ws := c.ws
		c.mu.Unlock()
		if ws == nil {
			c.state.Store(int32(StateStopped))
			return
		}

		for attempt := 1; attempt <= disconnectAttempts; attempt++ {
			c.writeMu.Lock()
			ws.SetWriteDeadline(time.Now().Add(writeTimeout))
			closeErr := ws.WriteMessage(websocket.CloseMessage,
				websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
			c.writeMu.Unlock()
			if closeErr == nil || attempt == disconnectAttempts {
				if closeErr != nil {
					err = fmt.Errorf("%w: after %d attempts: %v", ErrDisconnectFailed, disconnectAttempts, closeErr)
					c.logger.Error("failed to disconnect websocket", "tenant", c.tenant, "attempts", disconnectAttempts)
				}
				break
			}
			c.logger.Info("retrying disconnect", "tenant", c.tenant, "attempt", attempt)
		}

		ws.Close()
		c.state.Store(int32(StateStopped))
	})
	return err
}

// Done returns a channel closed once every callback has been delivered.
// Intended for tests and orderly teardown.
func (c *Conn) Done() <-chan struct{} {
	return c.driverDone
}
