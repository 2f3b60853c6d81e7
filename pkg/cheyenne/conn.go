package cheyenne

import (
	"context"
	"errors"
	"io"
	"net"
	"sync"
	"sync/atomic"
	"time"
)

const writeTimeout = 10 * time.Second

// ConnectionManager owns the TCP socket to one device and keeps it alive
// indefinitely: it drives reconnects with a fixed backoff, supervises the
// per-session read loop, send loop and watchdog, and serializes outbound
// writes.
//
// Transport failures never propagate to the caller; they end the current
// session and the run loop backs off and retries. The manager is designed
// to run unattended for the life of the process.
type ConnectionManager struct {
	cfg      *Config
	log      *Logger
	stats    *Stats
	sink     MessageSink
	observer StateObserver

	outbox chan map[string]any

	mu     sync.Mutex
	conn   net.Conn
	reader *MessageReader
	state  ConnectionState

	writeMu sync.Mutex

	// unix nanos of the most recent inbound message
	lastMessage atomic.Int64

	closeOnce sync.Once
	closed    chan struct{}
	done      chan struct{}
}

// NewConnectionManager creates a manager for one remote target. sink
// receives every decoded message; observer (optional) receives boolean
// connected/disconnected transitions.
func NewConnectionManager(cfg *Config, sink MessageSink, observer StateObserver, logger *Logger, stats *Stats) *ConnectionManager {
	if logger == nil {
		logger = DefaultLogger()
	}
	c := &ConnectionManager{
		cfg:      cfg,
		log:      logger.WithComponent("connection"),
		stats:    stats,
		sink:     sink,
		observer: observer,
		outbox:   make(chan map[string]any, cfg.OutboxSize),
		state:    Disconnected,
		closed:   make(chan struct{}),
		done:     make(chan struct{}),
	}
	c.touch()
	return c
}

// State returns the current connection state.
func (c *ConnectionManager) State() ConnectionState {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// IsConnected reports whether a connection is currently established.
func (c *ConnectionManager) IsConnected() bool {
	return c.State() == Connected
}

// Done is closed once Run has exited.
func (c *ConnectionManager) Done() <-chan struct{} {
	return c.done
}

// Run drives the connection until Close is called or ctx is cancelled:
// reconnect, run one session, sleep the fixed backoff, repeat.
func (c *ConnectionManager) Run(ctx context.Context) {
	defer close(c.done)

	c.log.Infof("starting network tasks for %s", c.cfg.Addr())
	for !c.isClosed() && ctx.Err() == nil {
		c.Reconnect(ctx)
		if c.IsConnected() {
			if c.stats != nil {
				c.stats.CountSession()
			}
			c.runSession(ctx)
		}
		if c.isClosed() || ctx.Err() != nil {
			break
		}

		c.log.Warnf("disconnected from %s, reconnecting in %s", c.cfg.Addr(), c.cfg.ReconnectDelay)
		select {
		case <-time.After(c.cfg.ReconnectDelay):
		case <-c.closed:
		case <-ctx.Done():
		}
	}

	c.log.Infof("shutting down connection to %s", c.cfg.Addr())
	c.destroySocket()
}

// Reconnect connects to the target, dropping any current connection first.
// Connection failure is routine here, not exceptional control flow: it is
// logged and reflected in the state, never raised.
func (c *ConnectionManager) Reconnect(ctx context.Context) {
	if c.IsConnected() {
		c.log.Debugf("already connected to %s, reconnecting", c.cfg.Addr())
		c.destroySocket()
	}

	c.setState(Connecting)
	if c.stats != nil {
		c.stats.CountReconnect()
	}

	dialer := net.Dialer{Timeout: c.cfg.DialTimeout}
	conn, err := dialer.DialContext(ctx, "tcp", c.cfg.Addr())
	if err != nil {
		c.setState(Disconnected)
		c.log.WithError(err).Errorf("error trying to connect to %s", c.cfg.Addr())
		return
	}

	c.mu.Lock()
	c.conn = conn
	c.reader = NewMessageReader(conn, c.cfg.ExtensionTimeout)
	c.mu.Unlock()

	c.touch()
	c.setState(Connected)
	c.log.Debugf("connected to %s", c.cfg.Addr())
}

// runSession runs the read loop, send loop and watchdog as one cancellation
// scope: when any member exits the others are torn down and the session is
// over.
func (c *ConnectionManager) runSession(ctx context.Context) {
	sctx, cancel := context.WithCancel(ctx)
	defer cancel()

	var wg sync.WaitGroup
	wg.Add(3)
	go func() {
		defer wg.Done()
		defer cancel()
		c.readLoop(sctx)
		c.log.Debug("exited read loop")
	}()
	go func() {
		defer wg.Done()
		defer cancel()
		c.sendLoop(sctx)
		c.log.Debug("exited send loop")
	}()
	go func() {
		defer wg.Done()
		defer cancel()
		c.watchdog(sctx)
		c.log.Debug("exited watchdog")
	}()

	// Tearing down the socket unblocks a read parked in the codec.
	<-sctx.Done()
	c.destroySocket()
	wg.Wait()
}

// readLoop decodes and dispatches messages until the stream ends, the
// transport fails, or the session is cancelled. Consecutive bad messages
// are tolerated up to the configured threshold, then force a reconnect.
func (c *ConnectionManager) readLoop(ctx context.Context) {
	badMessages := 0
	for {
		if c.isClosed() || ctx.Err() != nil {
			return
		}
		reader := c.currentReader()
		if reader == nil {
			return
		}

		msg, err := reader.ReadMessage()
		switch {
		case err == nil:
			c.touch()
			badMessages = 0
			if c.stats != nil {
				c.stats.CountMessage(msg.Type)
			}
			if c.sink != nil {
				c.sink.HandleMessage(msg)
			}

		case errors.Is(err, io.EOF):
			c.log.Debug("got EOF")
			c.setState(Disconnected)
			return

		case IsBadMessage(err):
			c.log.WithError(err).Error("bad message")
			// bytes still arrived, so the connection is alive
			c.touch()
			if c.stats != nil {
				c.stats.CountBadMessage()
			}
			badMessages++
			if badMessages >= c.cfg.MaxConsecutiveBadMessages {
				c.log.Error("reached threshold for consecutive bad messages, reconnecting")
				c.Reconnect(ctx)
				badMessages = 0
			}

		default:
			if c.isClosed() || ctx.Err() != nil {
				// deliberate teardown, the error is a side effect
				return
			}
			c.log.Warnf("connection to %s lost: %v", c.cfg.Addr(), err)
			c.setState(Disconnected)
			return
		}
	}
}

// sendLoop writes queued outbound messages in FIFO order.
func (c *ConnectionManager) sendLoop(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case <-c.closed:
			return
		case data := <-c.outbox:
			c.log.Debugf("sending from queue: %v", data)
			if err := c.Send(data); err != nil {
				c.log.WithError(err).Error("queued send failed")
				return
			}
		}
	}
}

// watchdog periodically checks that messages are still arriving. A device
// that vanished without a clean TCP close never errors the socket; the
// watchdog is what catches the half-open connection.
func (c *ConnectionManager) watchdog(ctx context.Context) {
	c.log.Debug("starting ping watchdog")
	ticker := time.NewTicker(c.cfg.WatchdogTimeout)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			age := time.Since(c.lastSeen())
			if age > c.cfg.WatchdogTimeout {
				c.log.Warnf("last message from %s is %s old, assuming connection is dead",
					c.cfg.Addr(), age.Truncate(time.Second))
				c.setState(Disconnected)
				return
			}
		}
	}
}

// Send writes one control message directly, best-effort. Writing with no
// socket is a warning, not an error; a transport failure is returned to the
// caller.
func (c *ConnectionManager) Send(data map[string]any) error {
	b, err := EncodeMessage(data)
	if err != nil {
		return WrapError(err, ErrCodeBadMessage)
	}

	conn := c.currentConn()
	if conn == nil {
		c.log.Warn("tried to write data to dead socket")
		return nil
	}

	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	_ = conn.SetWriteDeadline(time.Now().Add(writeTimeout))
	if _, err := conn.Write(b); err != nil {
		return err
	}
	if c.stats != nil {
		c.stats.CountSentMessage()
	}
	return nil
}

// EnqueueSend queues a control message for the send loop without blocking.
// Safe to call in any connection state: queued entries are sent once a
// session is active. When the outbox is full the queued backlog is dropped
// in favor of the new entry, which carries the freshest intent.
func (c *ConnectionManager) EnqueueSend(data map[string]any) {
	select {
	case c.outbox <- data:
		return
	default:
	}

	dropped := 0
	for {
		select {
		case <-c.outbox:
			dropped++
			continue
		default:
		}
		break
	}
	c.log.Errorf("outbox full, dropped %d queued messages", dropped)
	if c.stats != nil {
		c.stats.CountDroppedSends(dropped)
	}
	select {
	case c.outbox <- data:
	default:
	}
}

// Close requests cooperative shutdown. The run loop observes the flag at
// its loop boundaries; the socket is torn down here to unblock an in-flight
// read. Close is idempotent.
func (c *ConnectionManager) Close() {
	c.closeOnce.Do(func() {
		c.log.Debug("closing conn manager")
		close(c.closed)
		c.destroySocket()
	})
}

// destroySocket kills the current connection. Close errors are suppressed;
// the socket is being discarded anyway.
func (c *ConnectionManager) destroySocket() {
	c.setState(Disconnected)

	c.mu.Lock()
	conn := c.conn
	c.conn = nil
	c.reader = nil
	c.mu.Unlock()

	if conn != nil {
		_ = conn.Close()
	}
}

func (c *ConnectionManager) setState(s ConnectionState) {
	c.mu.Lock()
	prev := c.state
	c.state = s
	c.mu.Unlock()

	if prev == s {
		return
	}
	c.log.Debugf("connection state: %s -> %s", prev, s)

	wasConnected := prev == Connected
	nowConnected := s == Connected
	if wasConnected == nowConnected {
		return
	}
	if c.stats != nil {
		c.stats.SetConnected(nowConnected)
	}
	if c.observer != nil {
		c.observer.HandleConnectionState(nowConnected)
	}
}

func (c *ConnectionManager) isClosed() bool {
	select {
	case <-c.closed:
		return true
	default:
		return false
	}
}

func (c *ConnectionManager) currentConn() net.Conn {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.conn
}

func (c *ConnectionManager) currentReader() *MessageReader {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.reader
}

func (c *ConnectionManager) touch() {
	c.lastMessage.Store(time.Now().UnixNano())
}

func (c *ConnectionManager) lastSeen() time.Time {
	return time.Unix(0, c.lastMessage.Load())
}
