package cheyenne

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestStatsSnapshot(t *testing.T) {
	s := NewStats()
	s.CountMessage(MessageTypePing)
	s.CountMessage(MessageTypePing)
	s.CountMessage(MessageTypeAudioChunk)
	s.CountMessage(MessageTypeUnknown)
	s.CountBadMessage()
	s.CountReconnect()
	s.CountSession()
	s.CountDroppedChunks(3)
	s.CountSentMessage()
	s.CountDroppedSends(2)
	s.SetConnected(true)

	snap := s.Snapshot()
	assert.Equal(t, uint64(2), snap.Messages["ping"])
	assert.Equal(t, uint64(1), snap.Messages["audio-chunk"])
	assert.Equal(t, uint64(1), snap.Messages["unknown"])
	assert.Equal(t, uint64(1), snap.BadMessages)
	assert.Equal(t, uint64(1), snap.Reconnects)
	assert.Equal(t, uint64(1), snap.Sessions)
	assert.Equal(t, uint64(3), snap.DroppedChunks)
	assert.Equal(t, uint64(1), snap.SentMessages)
	assert.Equal(t, uint64(2), snap.DroppedSends)
	assert.True(t, snap.Connected)
}

func TestStatsCollector(t *testing.T) {
	s := NewStats()
	s.CountMessage(MessageTypePing)
	s.SetConnected(true)

	registry := prometheus.NewRegistry()
	require.NoError(t, registry.Register(s.Collector("cheyenne_test")))

	families, err := registry.Gather()
	require.NoError(t, err)

	byName := map[string]bool{}
	for _, f := range families {
		byName[f.GetName()] = true
	}
	assert.True(t, byName["cheyenne_test_messages_total"])
	assert.True(t, byName["cheyenne_test_connected"])
	assert.True(t, byName["cheyenne_test_reconnects_total"])
}
