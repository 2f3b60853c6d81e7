package cheyenne

// MessageType identifies one kind of protocol message.
type MessageType string

const (
	// MessageTypeUnknown is assigned to any wire type string this package
	// does not recognize. Unknown messages are logged and dropped, never
	// treated as errors.
	MessageTypeUnknown MessageType = ""

	MessageTypeAudioChunk MessageType = "audio-chunk"
	MessageTypeClientInfo MessageType = "client-info"
	MessageTypePing       MessageType = "ping"

	// MessageTypePlayTTS is the outbound control message asking the device
	// to fetch and play a TTS result.
	MessageTypePlayTTS MessageType = "play-tts"
)

// ParseMessageType maps a wire type string to a MessageType.
func ParseMessageType(s string) MessageType {
	switch MessageType(s) {
	case MessageTypeAudioChunk, MessageTypeClientInfo, MessageTypePing, MessageTypePlayTTS:
		return MessageType(s)
	default:
		return MessageTypeUnknown
	}
}

// Message is one decoded protocol unit. A Message is constructed fresh per
// decode call and owned solely by the caller; the codec never retains it.
type Message struct {
	Type    MessageType
	Data    map[string]any
	Payload []byte
}

// ConnectionState enum
type ConnectionState string

const (
	Disconnected ConnectionState = "disconnected"
	Connecting   ConnectionState = "connecting"
	Connected    ConnectionState = "connected"
)

// Audio format produced by the device. The protocol carries raw PCM frames;
// these constants describe the only format devices currently emit.
const (
	AudioSampleRate  = 16000
	AudioSampleWidth = 2 // bytes per sample, signed little-endian
	AudioChannels    = 1
)

// StateObserver receives connection state change notifications. Observers
// are called synchronously on the session goroutine and must not block.
type StateObserver interface {
	HandleConnectionState(connected bool)
}

// MessageSink consumes decoded inbound messages, in arrival order.
type MessageSink interface {
	HandleMessage(msg *Message)
}

// PipelineEventType identifies a stage event from the downstream speech
// pipeline.
type PipelineEventType string

const (
	PipelineEventWakeStart   PipelineEventType = "wake-start"
	PipelineEventWakeEnd     PipelineEventType = "wake-end"
	PipelineEventSTTStart    PipelineEventType = "stt-start"
	PipelineEventSTTEnd      PipelineEventType = "stt-end"
	PipelineEventIntentStart PipelineEventType = "intent-start"
	PipelineEventIntentEnd   PipelineEventType = "intent-end"
	PipelineEventTTSStart    PipelineEventType = "tts-start"
	PipelineEventTTSEnd      PipelineEventType = "tts-end"
	PipelineEventError       PipelineEventType = "error"
)

// PipelineEvent is one event reported by the downstream speech pipeline.
// The pipeline itself is external to this package; events cross this seam
// so the client can react (play-tts dispatch) and fan them out to observers.
type PipelineEvent struct {
	Type PipelineEventType
	Data map[string]any
}

// PipelineObserver receives speech pipeline events, e.g. to surface
// per-stage state externally.
type PipelineObserver interface {
	HandlePipelineEvent(ev PipelineEvent)
}
