package cheyenne

import (
	"context"
	"encoding/binary"
	"sync"

	"github.com/gordonklaus/portaudio"
)

// maxMonitorBacklog bounds the buffered audio in the monitor to roughly two
// seconds; beyond that the oldest audio is discarded, matching the bridge's
// freshness-over-completeness stance.
const maxMonitorBacklog = 2 * AudioSampleRate * AudioSampleWidth * AudioChannels

// Monitor plays received audio chunks on the local default output device,
// for listening in on what the remote microphone hears.
type Monitor struct {
	log    *Logger
	stream *portaudio.Stream

	mu      sync.Mutex
	pending []byte
}

// NewMonitor opens the default output device for the protocol's PCM format
// and starts playback. Call Close when done.
func NewMonitor(logger *Logger) (*Monitor, error) {
	if logger == nil {
		logger = DefaultLogger()
	}
	if err := portaudio.Initialize(); err != nil {
		return nil, err
	}

	m := &Monitor{log: logger.WithComponent("monitor")}

	stream, err := portaudio.OpenDefaultStream(
		0, AudioChannels, float64(AudioSampleRate), 1024,
		m.fill,
	)
	if err != nil {
		portaudio.Terminate()
		return nil, err
	}
	if err := stream.Start(); err != nil {
		stream.Close()
		portaudio.Terminate()
		return nil, err
	}

	m.stream = stream
	m.log.Info("audio monitor started")
	return m, nil
}

// fill is the portaudio callback: it drains pending PCM into the output
// buffer and zero-fills on underrun.
func (m *Monitor) fill(out []int16) {
	m.mu.Lock()
	defer m.mu.Unlock()

	for i := range out {
		if len(m.pending) >= 2 {
			out[i] = int16(binary.LittleEndian.Uint16(m.pending))
			m.pending = m.pending[2:]
		} else {
			out[i] = 0
		}
	}
}

// Play queues one PCM chunk for playback.
func (m *Monitor) Play(chunk []byte) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.pending = append(m.pending, chunk...)
	if len(m.pending) > maxMonitorBacklog {
		m.pending = m.pending[len(m.pending)-maxMonitorBacklog:]
	}
}

// Run consumes the bridge until ctx is cancelled.
func (m *Monitor) Run(ctx context.Context, bridge *AudioBridge) {
	for chunk := range bridge.Chunks(ctx) {
		m.Play(chunk)
	}
}

// Close stops playback and releases the device.
func (m *Monitor) Close() {
	if m.stream != nil {
		_ = m.stream.Stop()
		_ = m.stream.Close()
	}
	_ = portaudio.Terminate()
	m.log.Info("audio monitor stopped")
}
