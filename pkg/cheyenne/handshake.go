package cheyenne

import (
	"context"
	"net"
	"strconv"
	"time"

	"github.com/google/uuid"
)

// ValidateTarget confirms that host:port is a real device before a
// long-lived connection is established: it opens a connection, requires the
// first message to be a client-info carrying a valid uuid, and returns that
// uuid in canonical form. The connection is closed regardless of outcome.
//
// Any other first message, a missing or malformed uuid, or a timeout is a
// handshake failure (IsHandshakeFailure). This is the only call in the
// package that surfaces an error to its caller; steady-state operation
// absorbs errors into state transitions instead.
func ValidateTarget(ctx context.Context, host string, port int, timeout time.Duration) (string, error) {
	if timeout <= 0 {
		timeout = 2 * time.Second
	}
	addr := net.JoinHostPort(host, strconv.Itoa(port))

	dialer := net.Dialer{Timeout: timeout}
	conn, err := dialer.DialContext(ctx, "tcp", addr)
	if err != nil {
		return "", WrapError(err, ErrCodeHandshakeFailed)
	}
	defer conn.Close()

	// one deadline covers the whole handshake, extension blocks included
	if err := conn.SetDeadline(time.Now().Add(timeout)); err != nil {
		return "", WrapError(err, ErrCodeHandshakeFailed)
	}

	mr := NewMessageReader(conn, timeout)
	m, err := mr.ReadMessage()
	if err != nil {
		return "", WrapError(err, ErrCodeHandshakeFailed)
	}

	if m.Type != MessageTypeClientInfo {
		return "", NewHandshakeError("expected client-info").AddDetail("got", string(m.Type))
	}
	raw, ok := m.Data["uuid"].(string)
	if !ok {
		return "", NewHandshakeError("client-info has no uuid")
	}
	id, err := uuid.Parse(raw)
	if err != nil {
		return "", NewHandshakeError("client-info uuid is malformed").AddDetail("uuid", raw)
	}
	return id.String(), nil
}
