package cheyenne

import (
	"context"
	"encoding/binary"
	"errors"
	"math"
	"net"
	"sync"
	"time"

	"github.com/google/uuid"
)

// Simulator serves the device side of the wire protocol: it greets each
// connection with a client-info message, then streams sine-wave PCM
// audio-chunk frames and periodic pings. Useful for manual end-to-end runs
// and tests without a physical device.
type Simulator struct {
	log  *Logger
	uuid string

	// ChunkInterval is the spacing between audio chunks. ChunkSamples is
	// the number of PCM samples per chunk. Tone is the sine frequency in Hz.
	ChunkInterval time.Duration
	ChunkSamples  int
	Tone          float64

	// PingInterval is the spacing between pings. Zero disables them.
	PingInterval time.Duration

	mu sync.Mutex
	ln net.Listener
}

// NewSimulator creates a simulator with a fresh device uuid.
func NewSimulator(logger *Logger) *Simulator {
	if logger == nil {
		logger = DefaultLogger()
	}
	return &Simulator{
		log:           logger.WithComponent("simulator"),
		uuid:          uuid.NewString(),
		ChunkInterval: 100 * time.Millisecond,
		ChunkSamples:  AudioSampleRate / 10,
		Tone:          440,
		PingInterval:  2 * time.Second,
	}
}

// UUID returns the simulated device's uuid.
func (s *Simulator) UUID() string {
	return s.uuid
}

// Listen binds the listener. Use addr ":0" for an ephemeral port.
func (s *Simulator) Listen(addr string) error {
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return err
	}
	s.mu.Lock()
	s.ln = ln
	s.mu.Unlock()
	s.log.Infof("simulated device %s listening on %s", s.uuid, ln.Addr())
	return nil
}

// Addr returns the bound listener address, nil before Listen.
func (s *Simulator) Addr() net.Addr {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.ln == nil {
		return nil
	}
	return s.ln.Addr()
}

// Serve accepts and serves connections until ctx is cancelled or the
// listener is closed.
func (s *Simulator) Serve(ctx context.Context) error {
	s.mu.Lock()
	ln := s.ln
	s.mu.Unlock()
	if ln == nil {
		return NewConnectionError("simulator not listening")
	}

	go func() {
		<-ctx.Done()
		ln.Close()
	}()

	for {
		conn, err := ln.Accept()
		if err != nil {
			if ctx.Err() != nil || errors.Is(err, net.ErrClosed) {
				return nil
			}
			return err
		}
		go s.serveConn(ctx, conn)
	}
}

// Close stops the listener.
func (s *Simulator) Close() {
	s.mu.Lock()
	ln := s.ln
	s.mu.Unlock()
	if ln != nil {
		ln.Close()
	}
}

func (s *Simulator) serveConn(ctx context.Context, conn net.Conn) {
	defer conn.Close()
	s.log.Debugf("device connection from %s", conn.RemoteAddr())

	if err := s.sendClientInfo(conn); err != nil {
		s.log.WithError(err).Warn("failed to send client-info")
		return
	}

	// inbound control messages (play-tts) are just logged
	go s.readControl(conn)

	chunkTicker := time.NewTicker(s.ChunkInterval)
	defer chunkTicker.Stop()
	var pingCh <-chan time.Time
	if s.PingInterval > 0 {
		pingTicker := time.NewTicker(s.PingInterval)
		defer pingTicker.Stop()
		pingCh = pingTicker.C
	}

	var phase float64
	for {
		select {
		case <-ctx.Done():
			return
		case <-chunkTicker.C:
			chunk := s.nextChunk(&phase)
			if err := s.sendAudioChunk(conn, chunk); err != nil {
				s.log.Debugf("audio send failed, dropping connection: %v", err)
				return
			}
		case <-pingCh:
			if err := writeHeader(conn, map[string]any{"type": string(MessageTypePing)}); err != nil {
				return
			}
		}
	}
}

func (s *Simulator) sendClientInfo(conn net.Conn) error {
	return writeHeader(conn, map[string]any{
		"type": string(MessageTypeClientInfo),
		"data": map[string]any{
			"uuid":    s.uuid,
			"version": "simulator",
		},
	})
}

// sendAudioChunk frames one chunk: a header announcing payload_length plus
// the raw PCM bytes.
func (s *Simulator) sendAudioChunk(conn net.Conn, chunk []byte) error {
	header := map[string]any{
		"type": string(MessageTypeAudioChunk),
		"data": map[string]any{
			"rate":     AudioSampleRate,
			"width":    AudioSampleWidth,
			"channels": AudioChannels,
		},
		"payload_length": len(chunk),
	}
	if err := writeHeader(conn, header); err != nil {
		return err
	}
	_, err := conn.Write(chunk)
	return err
}

// nextChunk produces 16-bit little-endian mono PCM of a sine tone,
// continuing from the previous phase.
func (s *Simulator) nextChunk(phase *float64) []byte {
	buf := make([]byte, s.ChunkSamples*AudioSampleWidth)
	step := 2 * math.Pi * s.Tone / AudioSampleRate
	for i := 0; i < s.ChunkSamples; i++ {
		sample := int16(0.3 * math.MaxInt16 * math.Sin(*phase))
		binary.LittleEndian.PutUint16(buf[i*2:], uint16(sample))
		*phase += step
	}
	return buf
}

func (s *Simulator) readControl(conn net.Conn) {
	mr := NewMessageReader(conn, DefaultExtensionTimeout)
	for {
		m, err := mr.ReadMessage()
		if err != nil {
			if IsBadMessage(err) {
				continue
			}
			return
		}
		s.log.Infof("device received %q: %v", m.Type, m.Data)
	}
}

func writeHeader(conn net.Conn, header map[string]any) error {
	b, err := EncodeMessage(header)
	if err != nil {
		return err
	}
	_ = conn.SetWriteDeadline(time.Now().Add(writeTimeout))
	_, err = conn.Write(b)
	return err
}
