package cheyenne

import (
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Stats tracks bridge counters across sessions. All methods are safe for
// concurrent use.
type Stats struct {
	mu sync.Mutex

	messages      map[MessageType]uint64
	badMessages   uint64
	reconnects    uint64
	sessions      uint64
	droppedChunks uint64
	sentMessages  uint64
	droppedSends  uint64
	connected     bool
	lastMessage   time.Time
	startedAt     time.Time
}

// StatsSnapshot is a point-in-time copy of the counters.
type StatsSnapshot struct {
	Messages       map[string]uint64 `json:"messages"`
	BadMessages    uint64            `json:"bad_messages"`
	Reconnects     uint64            `json:"reconnects"`
	Sessions       uint64            `json:"sessions"`
	DroppedChunks  uint64            `json:"dropped_chunks"`
	SentMessages   uint64            `json:"sent_messages"`
	DroppedSends   uint64            `json:"dropped_sends"`
	Connected      bool              `json:"connected"`
	LastMessageAge float64           `json:"last_message_age_seconds"`
	Uptime         float64           `json:"uptime_seconds"`
}

func NewStats() *Stats {
	return &Stats{
		messages:  make(map[MessageType]uint64),
		startedAt: time.Now(),
	}
}

func (s *Stats) CountMessage(t MessageType) {
	s.mu.Lock()
	s.messages[t]++
	s.lastMessage = time.Now()
	s.mu.Unlock()
}

func (s *Stats) CountBadMessage() {
	s.mu.Lock()
	s.badMessages++
	s.mu.Unlock()
}

func (s *Stats) CountReconnect() {
	s.mu.Lock()
	s.reconnects++
	s.mu.Unlock()
}

func (s *Stats) CountSession() {
	s.mu.Lock()
	s.sessions++
	s.mu.Unlock()
}

func (s *Stats) CountDroppedChunks(n int) {
	s.mu.Lock()
	s.droppedChunks += uint64(n)
	s.mu.Unlock()
}

func (s *Stats) CountSentMessage() {
	s.mu.Lock()
	s.sentMessages++
	s.mu.Unlock()
}

func (s *Stats) CountDroppedSends(n int) {
	s.mu.Lock()
	s.droppedSends += uint64(n)
	s.mu.Unlock()
}

func (s *Stats) SetConnected(connected bool) {
	s.mu.Lock()
	s.connected = connected
	s.mu.Unlock()
}

// Snapshot returns a copy of the current counters.
func (s *Stats) Snapshot() StatsSnapshot {
	s.mu.Lock()
	defer s.mu.Unlock()

	messages := make(map[string]uint64, len(s.messages))
	for t, n := range s.messages {
		name := string(t)
		if t == MessageTypeUnknown {
			name = "unknown"
		}
		messages[name] = n
	}

	snap := StatsSnapshot{
		Messages:      messages,
		BadMessages:   s.badMessages,
		Reconnects:    s.reconnects,
		Sessions:      s.sessions,
		DroppedChunks: s.droppedChunks,
		SentMessages:  s.sentMessages,
		DroppedSends:  s.droppedSends,
		Connected:     s.connected,
		Uptime:        time.Since(s.startedAt).Seconds(),
	}
	if !s.lastMessage.IsZero() {
		snap.LastMessageAge = time.Since(s.lastMessage).Seconds()
	}
	return snap
}

// statsCollector exposes Stats as prometheus metrics.
type statsCollector struct {
	stats *Stats

	messagesTotal      *prometheus.Desc
	badMessagesTotal   *prometheus.Desc
	reconnectsTotal    *prometheus.Desc
	sessionsTotal      *prometheus.Desc
	droppedChunksTotal *prometheus.Desc
	sentMessagesTotal  *prometheus.Desc
	droppedSendsTotal  *prometheus.Desc
	connectedGauge     *prometheus.Desc
}

// Collector returns a prometheus collector reading from the stats. The
// namespace defaults to "cheyenne" when empty.
func (s *Stats) Collector(namespace string) prometheus.Collector {
	if namespace == "" {
		namespace = "cheyenne"
	}
	return &statsCollector{
		stats: s,
		messagesTotal: prometheus.NewDesc(
			prometheus.BuildFQName(namespace, "", "messages_total"),
			"Inbound protocol messages by type.",
			[]string{"type"}, nil),
		badMessagesTotal: prometheus.NewDesc(
			prometheus.BuildFQName(namespace, "", "bad_messages_total"),
			"Malformed inbound messages.",
			nil, nil),
		reconnectsTotal: prometheus.NewDesc(
			prometheus.BuildFQName(namespace, "", "reconnects_total"),
			"Connection attempts.",
			nil, nil),
		sessionsTotal: prometheus.NewDesc(
			prometheus.BuildFQName(namespace, "", "sessions_total"),
			"Completed connection sessions.",
			nil, nil),
		droppedChunksTotal: prometheus.NewDesc(
			prometheus.BuildFQName(namespace, "", "dropped_chunks_total"),
			"Audio chunks dropped by the bridge overflow policy.",
			nil, nil),
		sentMessagesTotal: prometheus.NewDesc(
			prometheus.BuildFQName(namespace, "", "sent_messages_total"),
			"Outbound control messages written.",
			nil, nil),
		droppedSendsTotal: prometheus.NewDesc(
			prometheus.BuildFQName(namespace, "", "dropped_sends_total"),
			"Outbound control messages dropped by the outbox overflow policy.",
			nil, nil),
		connectedGauge: prometheus.NewDesc(
			prometheus.BuildFQName(namespace, "", "connected"),
			"Whether the device connection is currently established.",
			nil, nil),
	}
}

func (c *statsCollector) Describe(ch chan<- *prometheus.Desc) {
	ch <- c.messagesTotal
	ch <- c.badMessagesTotal
	ch <- c.reconnectsTotal
	ch <- c.sessionsTotal
	ch <- c.droppedChunksTotal
	ch <- c.sentMessagesTotal
	ch <- c.droppedSendsTotal
	ch <- c.connectedGauge
}

func (c *statsCollector) Collect(ch chan<- prometheus.Metric) {
	snap := c.stats.Snapshot()

	for t, n := range snap.Messages {
		ch <- prometheus.MustNewConstMetric(c.messagesTotal, prometheus.CounterValue, float64(n), t)
	}
	ch <- prometheus.MustNewConstMetric(c.badMessagesTotal, prometheus.CounterValue, float64(snap.BadMessages))
	ch <- prometheus.MustNewConstMetric(c.reconnectsTotal, prometheus.CounterValue, float64(snap.Reconnects))
	ch <- prometheus.MustNewConstMetric(c.sessionsTotal, prometheus.CounterValue, float64(snap.Sessions))
	ch <- prometheus.MustNewConstMetric(c.droppedChunksTotal, prometheus.CounterValue, float64(snap.DroppedChunks))
	ch <- prometheus.MustNewConstMetric(c.sentMessagesTotal, prometheus.CounterValue, float64(snap.SentMessages))
	ch <- prometheus.MustNewConstMetric(c.droppedSendsTotal, prometheus.CounterValue, float64(snap.DroppedSends))

	connected := 0.0
	if snap.Connected {
		connected = 1.0
	}
	ch <- prometheus.MustNewConstMetric(c.connectedGauge, prometheus.GaugeValue, connected)
}
