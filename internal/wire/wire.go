// Package wire defines the message types, status codes and version
// tagging for the client↔server compilation protocol described in
// spec.md §6. The transport itself (internal/stream) carries these as
// JSON-tagged envelopes, one per websocket message; the encoding of
// individual field values is explicitly out of scope per spec.md §1.
package wire

import "encoding/json"

// MsgType identifies one frame's purpose on the wire.
type MsgType string

const (
	MsgCompilationRequest     MsgType = "CompilationRequest"
	MsgConnectionTerminate    MsgType = "ConnectionTerminate"
	MsgClientSessionTerminate MsgType = "ClientSessionTerminate"
	MsgCompilationInterrupted MsgType = "CompilationInterrupted"

	MsgCompilationCode    MsgType = "CompilationCode"
	MsgCompilationFailure MsgType = "CompilationFailure"

	MsgGetUnloadedClassRangesAndCHTable MsgType = "GetUnloadedClassRangesAndCHTable"

	MsgSharedCacheGetROMClass   MsgType = "SharedCache_getROMClass"
	MsgSharedCacheGetClassChain MsgType = "SharedCache_getClassChainData"
	MsgAOTCacheGetRecord        MsgType = "AOTCache_getRecord"

	MsgAOTCacheMapReply            MsgType = "AOTCacheMap_reply"
	MsgAOTCacheSerializedAOTMethod MsgType = "AOTCache_serializedAOTMethod"
	MsgAOTCacheFailure             MsgType = "AOTCache_failure"
)

// StatusCode is carried by a CompilationFailure frame (spec.md §6).
type StatusCode string

const (
	StatusStreamVersionIncompatible StatusCode = "streamVersionIncompatible"
	StatusStreamMessageTypeMismatch StatusCode = "streamMessageTypeMismatch"
	StatusStreamLostMessage         StatusCode = "streamLostMessage" // StreamOOO
	StatusLowPhysicalMemory         StatusCode = "lowPhysicalMemory"
	StatusAotCacheUnavailable       StatusCode = "aotCacheUnavailable"
	StatusGenericFailure            StatusCode = "genericFailure"
)

// VersionTag is the 64-bit wire-version constant: (majorWire, minorWire,
// configHash) packed into one integer. Any mismatch on the first frame
// received on a connection aborts the session with
// StatusStreamVersionIncompatible.
type VersionTag uint64

const (
	majorWire  = 1
	minorWire  = 0
	configHash = 0 // bumped whenever a wire-visible field layout changes
)

// CurrentVersionTag is the version tag this server speaks.
const CurrentVersionTag VersionTag = VersionTag(majorWire)<<48 | VersionTag(minorWire)<<32 | VersionTag(configHash)

// MemoryState is one of the three health-sampler memory buckets.
type MemoryState string

const (
	MemoryNormal  MemoryState = "NORMAL"
	MemoryLow     MemoryState = "LOW"
	MemoryVeryLow MemoryState = "VERY_LOW"
)

// ThreadState is one of the three health-sampler thread-pressure buckets.
type ThreadState string

const (
	ThreadNormal   ThreadState = "NORMAL"
	ThreadHigh     ThreadState = "HIGH"
	ThreadVeryHigh ThreadState = "VERY_HIGH"
)

// HealthTags is attached to every reply (spec.md §4.I, §6).
type HealthTags struct {
	MemoryState MemoryState `json:"memory_state"`
	ThreadState ThreadState `json:"thread_state"`
}

// Frame is the envelope every message travels in: one JSON object per
// websocket text message, carrying the logical (type, versionTag)
// pair from spec.md §6's `u32 length | u32 type | u64 versionTag |
// payload` layout.
type Frame struct {
	Type    MsgType     `json:"type"`
	Version VersionTag  `json:"version"`
	Payload interface{} `json:"payload"`
}

// RawFrame is used when the reader doesn't yet know the payload type
// and must dispatch on Type first, then decode Payload into the right
// struct.
type RawFrame struct {
	Type    MsgType         `json:"type"`
	Version VersionTag      `json:"version"`
	Payload json.RawMessage `json:"payload"`
}

// Decode unmarshals the raw payload into dst.
func (f *RawFrame) Decode(dst interface{}) error {
	if len(f.Payload) == 0 {
		return nil
	}
	return json.Unmarshal(f.Payload, dst)
}
