package cheyenne

import (
	"context"
	"net"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func startSimulator(t *testing.T) *Simulator {
	t.Helper()
	sim := NewSimulator(quietLogger())
	sim.ChunkInterval = 20 * time.Millisecond
	sim.PingInterval = 50 * time.Millisecond
	require.NoError(t, sim.Listen("127.0.0.1:0"))

	ctx, cancel := context.WithCancel(context.Background())
	go sim.Serve(ctx)
	t.Cleanup(func() {
		cancel()
		sim.Close()
	})
	return sim
}

func startClient(t *testing.T, sim *Simulator) *Client {
	t.Helper()
	cfg := testConfig(t, sim.Addr().(*net.TCPAddr).Port)
	client := NewClient(cfg)

	ctx, cancel := context.WithCancel(context.Background())
	go client.Run(ctx)
	t.Cleanup(func() {
		client.Close()
		cancel()
	})
	return client
}

func TestClientReceivesSimulatedAudio(t *testing.T) {
	sim := startSimulator(t)
	client := startClient(t, sim)

	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()

	chunk, err := client.Audio().Dequeue(ctx)
	require.NoError(t, err)
	assert.Len(t, chunk, sim.ChunkSamples*AudioSampleWidth)
	assert.True(t, client.Connected())
}

func TestClientValidatesSimulatedDevice(t *testing.T) {
	sim := startSimulator(t)
	client := startClient(t, sim)

	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()

	id, err := client.ValidateConnection(ctx)
	require.NoError(t, err)
	assert.Equal(t, sim.UUID(), id)
}

func TestClientStateObserversSeeConnect(t *testing.T) {
	sim := startSimulator(t)

	cfg := testConfig(t, sim.Addr().(*net.TCPAddr).Port)
	client := NewClient(cfg)
	states := newStateRecorder()
	client.AddStateObserver(states)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go client.Run(ctx)
	t.Cleanup(client.Close)

	states.waitFor(t, true, 2*time.Second)
}

type pipelineRecorder struct {
	events chan PipelineEvent
}

func (p *pipelineRecorder) HandlePipelineEvent(ev PipelineEvent) {
	p.events <- ev
}

func TestClientPipelineEventFanOut(t *testing.T) {
	cfg := testConfig(t, 1)
	client := NewClient(cfg)

	rec := &pipelineRecorder{events: make(chan PipelineEvent, 4)}
	unregister := client.AddPipelineObserver(rec)

	client.HandlePipelineEvent(PipelineEvent{Type: PipelineEventSTTEnd})
	select {
	case ev := <-rec.events:
		assert.Equal(t, PipelineEventSTTEnd, ev.Type)
	case <-time.After(time.Second):
		t.Fatal("observer not notified")
	}

	unregister()
	client.HandlePipelineEvent(PipelineEvent{Type: PipelineEventTTSStart})
	select {
	case <-rec.events:
		t.Fatal("unregistered observer notified")
	case <-time.After(50 * time.Millisecond):
	}
}

func TestClientDispatchesPlayTTSOnTTSEnd(t *testing.T) {
	ts := newTestServer(t)
	cfg := testConfig(t, ts.port())
	client := NewClient(cfg)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go client.Run(ctx)
	t.Cleanup(client.Close)

	conn := ts.accept(t, time.Second)

	client.HandlePipelineEvent(PipelineEvent{
		Type: PipelineEventTTSEnd,
		Data: map[string]any{"url": "http://host/tts.mp3"},
	})

	mr := NewMessageReader(conn, time.Second)
	conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	m, err := mr.ReadMessage()
	require.NoError(t, err)
	assert.Equal(t, MessageTypePlayTTS, m.Type)
	assert.Equal(t, "http://host/tts.mp3", m.Data["url"])
}

func TestClientTTSEndWithoutURLIsDropped(t *testing.T) {
	cfg := testConfig(t, 1)
	client := NewClient(cfg)

	client.HandlePipelineEvent(PipelineEvent{Type: PipelineEventTTSEnd})
	// nothing queued
	assert.Empty(t, client.Connection().outbox)
}
