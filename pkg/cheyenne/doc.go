// Package cheyenne bridges a remote voice-capture device to a host speech
// pipeline over the Cheyenne wire protocol: a persistent TCP stream of
// line-framed JSON headers with optional fixed-length binary extensions.
//
// # Overview
//
// The package provides:
//   - Message framing: decode/encode for the hybrid text/binary protocol
//   - A connection manager with reconnects, fixed backoff and a watchdog
//     for silently-dead connections
//   - A bounded audio bridge that never stalls the network read path
//   - A one-shot validation handshake for device discovery flows
//   - Optional diagnostics (HTTP state/metrics) and local audio monitoring
//
// # Quick start
//
//	cfg := cheyenne.NewConfig()
//	cfg.Host = "192.168.1.50"
//
//	client := cheyenne.NewClient(cfg)
//	go client.Run(ctx)
//	defer client.Close()
//
//	for chunk := range client.Audio().Chunks(ctx) {
//		pipeline.Feed(chunk)
//	}
//
// The audio sequence never completes on its own; it ends only when ctx is
// cancelled. Connection state changes arrive through a StateObserver:
//
//	unregister := client.AddStateObserver(myEntity)
//	defer unregister()
//
// # Wire format
//
// One self-describing JSON object per line, optionally followed by two
// length-prefixed blocks within a short timeout of the header:
//
//	<JSON object>\n
//	[data_length raw UTF-8 JSON bytes]   iff header.data_length > 0
//	[payload_length raw bytes]           iff header.payload_length > 0
//
// Inbound types: "audio-chunk" (PCM payload), "client-info", "ping".
// Outbound: "play-tts". Unrecognized types decode as Unknown and are
// dropped, not treated as errors.
package cheyenne
