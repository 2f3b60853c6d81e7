package cheyenne

import "sync"

// Dispatcher routes decoded messages to the right internal handler and fans
// connection-state changes out to registered observers. It implements both
// MessageSink and StateObserver so a ConnectionManager can be pointed
// straight at it.
type Dispatcher struct {
	bridge *AudioBridge
	log    *Logger

	mu        sync.RWMutex
	observers []*observerEntry
}

type observerEntry struct {
	o StateObserver
}

// NewDispatcher creates a dispatcher feeding audio into bridge.
func NewDispatcher(bridge *AudioBridge, logger *Logger) *Dispatcher {
	if logger == nil {
		logger = DefaultLogger()
	}
	return &Dispatcher{
		bridge: bridge,
		log:    logger.WithComponent("dispatcher"),
	}
}

// AddStateObserver registers an observer for connection state changes and
// returns an unregister func.
func (d *Dispatcher) AddStateObserver(o StateObserver) func() {
	entry := &observerEntry{o: o}
	d.mu.Lock()
	d.observers = append(d.observers, entry)
	d.mu.Unlock()

	return func() {
		d.mu.Lock()
		defer d.mu.Unlock()
		for i, e := range d.observers {
			if e == entry {
				d.observers = append(d.observers[:i], d.observers[i+1:]...)
				break
			}
		}
	}
}

// HandleMessage routes one decoded message by kind.
func (d *Dispatcher) HandleMessage(m *Message) {
	switch m.Type {
	case MessageTypeAudioChunk:
		d.bridge.Enqueue(m.Payload)

	case MessageTypeClientInfo:
		d.log.Debugf("got client info: %v", m.Data)

	case MessageTypePing:
		// liveness marker; arrival alone refreshed the watchdog

	case MessageTypeUnknown:
		d.log.Warn("got an unknown message, ignoring it")

	default:
		d.log.Errorf("got unhandled (but known) message type %s", m.Type)
	}
}

// HandleConnectionState notifies all registered observers synchronously
// with the new state.
func (d *Dispatcher) HandleConnectionState(connected bool) {
	d.mu.RLock()
	observers := make([]*observerEntry, len(d.observers))
	copy(observers, d.observers)
	d.mu.RUnlock()

	d.log.Debugf("got connection change to state: %v", connected)
	for _, e := range observers {
		e.o.HandleConnectionState(connected)
	}
}
