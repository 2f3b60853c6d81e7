package cheyenne

import (
	"io"
	"net"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

// quietLogger keeps test output clean.
func quietLogger() *Logger {
	return NewLogger(&LogConfig{Level: "error", Pretty: false, Output: io.Discard})
}

func testConfig(t *testing.T, port int) *Config {
	t.Helper()
	cfg := NewConfig()
	cfg.Host = "127.0.0.1"
	cfg.Port = port
	cfg.DialTimeout = time.Second
	cfg.ReconnectDelay = 50 * time.Millisecond
	cfg.WatchdogTimeout = 250 * time.Millisecond
	cfg.ExtensionTimeout = 100 * time.Millisecond
	cfg.HandshakeTimeout = time.Second
	cfg.LogLevel = "error"
	cfg.PrettyLogs = false
	return cfg
}

// testServer is a loopback listener handing accepted conns to the test.
type testServer struct {
	ln    net.Listener
	conns chan net.Conn
}

func newTestServer(t *testing.T) *testServer {
	t.Helper()
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)

	ts := &testServer{ln: ln, conns: make(chan net.Conn, 16)}
	go func() {
		for {
			conn, err := ln.Accept()
			if err != nil {
				return
			}
			ts.conns <- conn
		}
	}()
	t.Cleanup(func() { ln.Close() })
	return ts
}

func (ts *testServer) port() int {
	return ts.ln.Addr().(*net.TCPAddr).Port
}

// accept returns the next accepted connection or fails the test.
func (ts *testServer) accept(t *testing.T, timeout time.Duration) net.Conn {
	t.Helper()
	select {
	case conn := <-ts.conns:
		t.Cleanup(func() { conn.Close() })
		return conn
	case <-time.After(timeout):
		t.Fatalf("no connection accepted within %s", timeout)
		return nil
	}
}

// expectNoAccept fails the test if a connection arrives within the window.
func (ts *testServer) expectNoAccept(t *testing.T, window time.Duration) {
	t.Helper()
	select {
	case conn := <-ts.conns:
		conn.Close()
		t.Fatal("unexpected reconnect")
	case <-time.After(window):
	}
}

// captureSink records dispatched messages.
type captureSink struct {
	mu   sync.Mutex
	msgs []*Message
	ch   chan *Message
}

func newCaptureSink() *captureSink {
	return &captureSink{ch: make(chan *Message, 64)}
}

func (s *captureSink) HandleMessage(m *Message) {
	s.mu.Lock()
	s.msgs = append(s.msgs, m)
	s.mu.Unlock()
	select {
	case s.ch <- m:
	default:
	}
}

func (s *captureSink) next(t *testing.T, timeout time.Duration) *Message {
	t.Helper()
	select {
	case m := <-s.ch:
		return m
	case <-time.After(timeout):
		t.Fatalf("no message dispatched within %s", timeout)
		return nil
	}
}

// stateRecorder records connection state notifications.
type stateRecorder struct {
	mu     sync.Mutex
	states []bool
	ch     chan bool
}

func newStateRecorder() *stateRecorder {
	return &stateRecorder{ch: make(chan bool, 64)}
}

func (r *stateRecorder) HandleConnectionState(connected bool) {
	r.mu.Lock()
	r.states = append(r.states, connected)
	r.mu.Unlock()
	select {
	case r.ch <- connected:
	default:
	}
}

func (r *stateRecorder) waitFor(t *testing.T, want bool, timeout time.Duration) {
	t.Helper()
	deadline := time.After(timeout)
	for {
		select {
		case got := <-r.ch:
			if got == want {
				return
			}
		case <-deadline:
			t.Fatalf("no state change to %v within %s", want, timeout)
		}
	}
}

func (r *stateRecorder) all() []bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]bool, len(r.states))
	copy(out, r.states)
	return out
}
