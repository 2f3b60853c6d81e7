package cheyenne

import (
	"net"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSimulatorSpeaksTheProtocol(t *testing.T) {
	sim := startSimulator(t)

	conn, err := net.Dial("tcp", sim.Addr().String())
	require.NoError(t, err)
	t.Cleanup(func() { conn.Close() })

	mr := NewMessageReader(conn, time.Second)
	conn.SetReadDeadline(time.Now().Add(2 * time.Second))

	// greeting first
	m, err := mr.ReadMessage()
	require.NoError(t, err)
	require.Equal(t, MessageTypeClientInfo, m.Type)
	assert.Equal(t, sim.UUID(), m.Data["uuid"])

	// then a steady stream of audio chunks with well-formed payloads
	sawAudio := false
	for i := 0; i < 10 && !sawAudio; i++ {
		conn.SetReadDeadline(time.Now().Add(2 * time.Second))
		m, err := mr.ReadMessage()
		require.NoError(t, err)
		switch m.Type {
		case MessageTypeAudioChunk:
			assert.Len(t, m.Payload, sim.ChunkSamples*AudioSampleWidth)
			assert.Equal(t, float64(AudioSampleRate), m.Data["rate"])
			sawAudio = true
		case MessageTypePing:
		default:
			t.Fatalf("unexpected message type %q", m.Type)
		}
	}
	assert.True(t, sawAudio, "no audio chunk within 10 messages")
}

func TestSimulatorServesMultipleConnections(t *testing.T) {
	sim := startSimulator(t)

	for i := 0; i < 2; i++ {
		conn, err := net.Dial("tcp", sim.Addr().String())
		require.NoError(t, err)
		mr := NewMessageReader(conn, time.Second)
		conn.SetReadDeadline(time.Now().Add(2 * time.Second))
		m, err := mr.ReadMessage()
		require.NoError(t, err)
		assert.Equal(t, MessageTypeClientInfo, m.Type)
		conn.Close()
	}
}
