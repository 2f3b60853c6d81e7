package cheyenne

import (
	"context"
	"sync"
)

// Client is the host-side bridge to one microphone device: it composes the
// connection manager, dispatcher and audio bridge, and exposes the two
// seams collaborators consume — a pull-based audio chunk source and
// push-based state notifications.
type Client struct {
	cfg        *Config
	log        *Logger
	stats      *Stats
	bridge     *AudioBridge
	dispatcher *Dispatcher
	conn       *ConnectionManager

	mu          sync.RWMutex
	pipelineObs []*pipelineObserverEntry
}

type pipelineObserverEntry struct {
	o PipelineObserver
}

// NewClient wires up a bridge client for the target in cfg.
func NewClient(cfg *Config) *Client {
	if cfg == nil {
		cfg = NewConfig()
	}
	logger := LoggerFor(cfg)
	stats := NewStats()
	bridge := NewAudioBridge(cfg.AudioQueueSize, logger, stats)
	dispatcher := NewDispatcher(bridge, logger)

	return &Client{
		cfg:        cfg,
		log:        logger.WithComponent("client"),
		stats:      stats,
		bridge:     bridge,
		dispatcher: dispatcher,
		conn:       NewConnectionManager(cfg, dispatcher, dispatcher, logger, stats),
	}
}

// Run drives the connection until Close is called or ctx is cancelled.
func (c *Client) Run(ctx context.Context) {
	c.conn.Run(ctx)
}

// Close requests shutdown of the connection manager. Idempotent.
func (c *Client) Close() {
	c.conn.Close()
}

// Audio returns the pull-based audio chunk source for the speech pipeline.
func (c *Client) Audio() *AudioBridge {
	return c.bridge
}

// Connection returns the underlying connection manager.
func (c *Client) Connection() *ConnectionManager {
	return c.conn
}

// Connected reports whether the device connection is established.
func (c *Client) Connected() bool {
	return c.conn.IsConnected()
}

// Stats returns the client's counters.
func (c *Client) Stats() *Stats {
	return c.stats
}

// AddStateObserver registers an observer for connection state changes and
// returns an unregister func.
func (c *Client) AddStateObserver(o StateObserver) func() {
	return c.dispatcher.AddStateObserver(o)
}

// AddPipelineObserver registers an observer for speech pipeline events and
// returns an unregister func.
func (c *Client) AddPipelineObserver(o PipelineObserver) func() {
	entry := &pipelineObserverEntry{o: o}
	c.mu.Lock()
	c.pipelineObs = append(c.pipelineObs, entry)
	c.mu.Unlock()

	return func() {
		c.mu.Lock()
		defer c.mu.Unlock()
		for i, e := range c.pipelineObs {
			if e == entry {
				c.pipelineObs = append(c.pipelineObs[:i], c.pipelineObs[i+1:]...)
				break
			}
		}
	}
}

// SendPlayTTS asks the device to fetch and play a TTS result.
func (c *Client) SendPlayTTS(url string) {
	c.conn.EnqueueSend(map[string]any{
		"type": string(MessageTypePlayTTS),
		"data": map[string]any{
			"url": url,
		},
	})
}

// HandlePipelineEvent reacts to an event from the downstream speech
// pipeline and fans it out to pipeline observers. A finished TTS synthesis
// is dispatched to the device as a play-tts control message.
func (c *Client) HandlePipelineEvent(ev PipelineEvent) {
	c.log.Debugf("got pipeline event: %s", ev.Type)

	if ev.Type == PipelineEventTTSEnd {
		if url, ok := ev.Data["url"].(string); ok && url != "" {
			c.log.Debugf("play URL: %s", url)
			c.SendPlayTTS(url)
		} else {
			c.log.Warn("can't play TTS: no url in event")
		}
	}

	c.mu.RLock()
	observers := make([]*pipelineObserverEntry, len(c.pipelineObs))
	copy(observers, c.pipelineObs)
	c.mu.RUnlock()

	for _, e := range observers {
		e.o.HandlePipelineEvent(ev)
	}
}

// ValidateConnection performs the one-shot validation handshake against the
// client's target and returns the device uuid.
func (c *Client) ValidateConnection(ctx context.Context) (string, error) {
	return ValidateTarget(ctx, c.cfg.Host, c.cfg.Port, c.cfg.HandshakeTimeout)
}
