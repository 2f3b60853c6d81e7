package cheyenne

import (
	"context"
	"fmt"
	"net"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// handshakeServer answers the next connection with the given bytes.
func handshakeServer(t *testing.T, reply []byte) int {
	t.Helper()
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	t.Cleanup(func() { ln.Close() })

	go func() {
		for {
			conn, err := ln.Accept()
			if err != nil {
				return
			}
			if len(reply) > 0 {
				conn.Write(reply)
			}
			// hold the conn open; the validator closes its side
			go func() {
				buf := make([]byte, 1)
				conn.Read(buf)
				conn.Close()
			}()
		}
	}()
	return ln.Addr().(*net.TCPAddr).Port
}

func TestValidateTargetSuccess(t *testing.T) {
	id := uuid.NewString()
	reply := fmt.Sprintf(`{"type":"client-info","data":{"uuid":%q}}`+"\n", id)
	port := handshakeServer(t, []byte(reply))

	got, err := ValidateTarget(context.Background(), "127.0.0.1", port, time.Second)
	require.NoError(t, err)
	assert.Equal(t, id, got)
}

func TestValidateTargetWrongMessageType(t *testing.T) {
	port := handshakeServer(t, []byte(`{"type":"ping"}`+"\n"))

	_, err := ValidateTarget(context.Background(), "127.0.0.1", port, time.Second)
	require.Error(t, err)
	assert.True(t, IsHandshakeFailure(err))
}

func TestValidateTargetMissingUUID(t *testing.T) {
	port := handshakeServer(t, []byte(`{"type":"client-info","data":{}}`+"\n"))

	_, err := ValidateTarget(context.Background(), "127.0.0.1", port, time.Second)
	require.Error(t, err)
	assert.True(t, IsHandshakeFailure(err))
}

func TestValidateTargetMalformedUUID(t *testing.T) {
	port := handshakeServer(t, []byte(`{"type":"client-info","data":{"uuid":"not-a-uuid"}}`+"\n"))

	_, err := ValidateTarget(context.Background(), "127.0.0.1", port, time.Second)
	require.Error(t, err)
	assert.True(t, IsHandshakeFailure(err))
}

func TestValidateTargetTimeout(t *testing.T) {
	port := handshakeServer(t, nil) // accepts, never speaks

	start := time.Now()
	_, err := ValidateTarget(context.Background(), "127.0.0.1", port, 100*time.Millisecond)
	require.Error(t, err)
	assert.True(t, IsHandshakeFailure(err))
	assert.Less(t, time.Since(start), time.Second)
}

func TestValidateTargetConnectionRefused(t *testing.T) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	port := ln.Addr().(*net.TCPAddr).Port
	ln.Close()

	_, err = ValidateTarget(context.Background(), "127.0.0.1", port, 200*time.Millisecond)
	require.Error(t, err)
	assert.True(t, IsHandshakeFailure(err))
}
