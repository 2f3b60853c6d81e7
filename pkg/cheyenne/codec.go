package cheyenne

import (
	"bufio"
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"maps"
	"net"
	"time"
	"unicode/utf8"
)

// DefaultExtensionTimeout bounds how long a message's extra-data and payload
// blocks may trail the header line.
const DefaultExtensionTimeout = 500 * time.Millisecond

// maxExtensionBytes caps a single extension block. The protocol never ships
// blocks anywhere near this; a larger announced length is a framing error,
// not a legitimate message.
const maxExtensionBytes = 1 << 20

type deadlineReader interface {
	SetReadDeadline(t time.Time) error
}

// MessageReader decodes wire messages from a stream.
//
// The wire format is one self-describing JSON header per line, optionally
// followed by two fixed-length extension blocks:
//
//	<JSON object>\n
//	[data_length raw UTF-8 JSON bytes]   iff header.data_length > 0
//	[payload_length raw bytes]           iff header.payload_length > 0
//
// Control messages stay human-debuggable as plain JSON lines while audio
// frames carry raw bytes without escaping overhead.
//
// The reader owns no I/O lifecycle: it never closes the stream and never
// retains a decoded Message.
type MessageReader struct {
	br       *bufio.Reader
	deadline deadlineReader
	timeout  time.Duration
}

// NewMessageReader wraps a stream for message decoding. When the stream
// supports read deadlines (a net.Conn does), extension block reads are
// bounded by timeout; otherwise they block until the stream delivers.
func NewMessageReader(r io.Reader, timeout time.Duration) *MessageReader {
	if timeout <= 0 {
		timeout = DefaultExtensionTimeout
	}
	mr := &MessageReader{
		br:      bufio.NewReader(r),
		timeout: timeout,
	}
	if d, ok := r.(deadlineReader); ok {
		mr.deadline = d
	}
	return mr
}

// ReadMessage decodes one message from the stream. A clean end of stream
// returns (nil, io.EOF). Malformed input returns a bad-message error
// (IsBadMessage) and leaves the stream usable for the next message; any
// other error is a transport failure.
func (mr *MessageReader) ReadMessage() (*Message, error) {
	line, err := mr.readHeaderLine()
	if err != nil {
		return nil, err
	}

	if !utf8.Valid(line) {
		return nil, NewBadMessageError("header is not valid UTF-8", line)
	}

	var header map[string]any
	if err := json.Unmarshal(line, &header); err != nil {
		return nil, newBadMessageCause("failed to decode header JSON", line, err)
	}

	rawType, ok := header["type"]
	if !ok {
		return nil, NewBadMessageError("field 'type' not in message", line)
	}
	// Non-string type values decode as Unknown rather than failing, the
	// same as an unrecognized type string.
	typeStr, _ := rawType.(string)

	data := make(map[string]any)
	if d, ok := header["data"].(map[string]any); ok {
		maps.Copy(data, d)
	}

	var payload []byte

	if n := intField(header, "data_length"); n > 0 {
		extra, err := mr.readExtension(n, "extra data")
		if err != nil {
			return nil, err
		}
		if !utf8.Valid(extra) {
			return nil, NewBadMessageError("extra data is not valid UTF-8", extra)
		}
		var extraData map[string]any
		if err := json.Unmarshal(extra, &extraData); err != nil {
			return nil, newBadMessageCause("failed to decode extra data JSON", extra, err)
		}
		// right-biased merge: the extension block wins on key collision
		maps.Copy(data, extraData)
	}

	if n := intField(header, "payload_length"); n > 0 {
		p, err := mr.readExtension(n, "payload")
		if err != nil {
			return nil, err
		}
		payload = p
	}

	return &Message{
		Type:    ParseMessageType(typeStr),
		Data:    data,
		Payload: payload,
	}, nil
}

// readHeaderLine returns the next non-blank line. Blank lines are keep-alive
// padding and do not count as messages.
func (mr *MessageReader) readHeaderLine() ([]byte, error) {
	for {
		line, err := mr.br.ReadBytes('\n')
		if len(line) == 0 {
			if err == nil {
				continue
			}
			if errors.Is(err, io.EOF) {
				return nil, io.EOF
			}
			return nil, err
		}
		trimmed := bytes.TrimRight(line, "\r\n")
		if len(trimmed) == 0 {
			// blank keep-alive line
			continue
		}
		// A partial line truncated by EOF is still decoded; if it is
		// garbage the JSON parse reports it as a bad message.
		return trimmed, nil
	}
}

func (mr *MessageReader) readExtension(n int, what string) ([]byte, error) {
	if n > maxExtensionBytes {
		return nil, NewBadMessageError(fmt.Sprintf("%s length %d exceeds limit", what, n), nil)
	}
	if mr.deadline != nil {
		if err := mr.deadline.SetReadDeadline(time.Now().Add(mr.timeout)); err != nil {
			return nil, err
		}
		defer mr.deadline.SetReadDeadline(time.Time{})
	}
	buf := make([]byte, n)
	if _, err := io.ReadFull(mr.br, buf); err != nil {
		var nerr net.Error
		if errors.As(err, &nerr) && nerr.Timeout() {
			return nil, newBadMessageCause(fmt.Sprintf("timed out waiting for %s", what), nil, err)
		}
		if errors.Is(err, io.EOF) || errors.Is(err, io.ErrUnexpectedEOF) {
			return nil, newBadMessageCause(fmt.Sprintf("stream ended waiting for %s", what), nil, err)
		}
		return nil, err
	}
	return buf, nil
}

func intField(m map[string]any, key string) int {
	switch v := m[key].(type) {
	case float64:
		return int(v)
	case int:
		return v
	default:
		return 0
	}
}

// EncodeMessage serializes a header mapping to one JSON line. Outbound
// messages are control-only, so no extension framing is produced.
func EncodeMessage(data map[string]any) ([]byte, error) {
	b, err := json.Marshal(data)
	if err != nil {
		return nil, err
	}
	return append(b, '\n'), nil
}
