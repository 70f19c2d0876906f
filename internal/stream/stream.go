// Package stream implements the typed, length-prefixed message
// endpoint of spec.md §4.A. One Stream wraps one client connection.
//
// The wire's "framed, typed, length-prefixed" byte layout
// (u32 length | u32 type | u64 versionTag | payload) is carried over a
// websocket connection: each logical frame is one websocket text
// message holding a JSON-encoded wire.Frame. This mirrors how this
// codebase's sync package already carries a symmetric, typed protocol
// over a small Conn interface (ReadJSON/WriteJSON/Close) for
// testability, with production code wrapping *websocket.Conn and tests
// substituting an in-memory channel pair.
package stream

import (
	"io"
	"sync"
	"sync/atomic"

	"github.com/eclipse-openj9/openj9-sub029/errors"
	"github.com/eclipse-openj9/openj9-sub029/internal/wire"
)

// Conn abstracts the websocket connection for testability. The
// production implementation is *websocket.Conn (github.com/gorilla/websocket),
// which already implements ReadJSON/WriteJSON/Close with this exact
// signature.
type Conn interface {
	ReadJSON(v interface{}) error
	WriteJSON(v interface{}) error
	Close() error
}

// Stream represents one client connection (spec.md §4.A).
type Stream struct {
	conn Conn

	writeMu sync.Mutex
	readMu  sync.Mutex

	lastOutType atomic.Value // wire.MsgType

	versionChecked atomic.Bool
}

// New wraps a connection in a Stream.
func New(conn Conn) *Stream {
	return &Stream{conn: conn}
}

// Write frames and transmits a message. Fails with ErrConnectionTerminate
// if the transport reports EOF and ErrStreamFailure for any other
// transport-level error.
func (s *Stream) Write(msgType wire.MsgType, payload interface{}) error {
	s.writeMu.Lock()
	defer s.writeMu.Unlock()

	frame := wire.Frame{
		Type:    msgType,
		Version: wire.CurrentVersionTag,
		Payload: payload,
	}
	if err := s.conn.WriteJSON(frame); err != nil {
		return classifyTransportErr(err)
	}
	s.lastOutType.Store(msgType)
	return nil
}

// Read blocks until a framed reply arrives. The received type tag must
// equal the last outgoing type tag or ErrMessageTypeMismatch is
// returned.
func (s *Stream) Read(into interface{}) (wire.MsgType, error) {
	s.readMu.Lock()
	defer s.readMu.Unlock()

	var frame wire.Frame
	frame.Payload = into
	if err := s.conn.ReadJSON(&frame); err != nil {
		return "", classifyTransportErr(err)
	}

	if want, ok := s.lastOutType.Load().(wire.MsgType); ok && want != "" {
		if frame.Type != want {
			return frame.Type, errors.Wrapf(ErrMessageTypeMismatch,
				"expected %s, got %s", want, frame.Type)
		}
	}
	return frame.Type, nil
}

// ReadCompileRequest blocks for the next client request. Unlike Read,
// it validates the wire version tag on the first frame received on this
// stream, and recognises ConnectionTerminate / ClientSessionTerminate
// out of band (spec.md §4.A).
func (s *Stream) ReadCompileRequest() (*wire.CompilationRequest, error) {
	s.readMu.Lock()
	defer s.readMu.Unlock()

	var frame wire.RawFrame
	if err := s.conn.ReadJSON(&frame); err != nil {
		return nil, classifyTransportErr(err)
	}

	if !s.versionChecked.Load() {
		if frame.Version != wire.CurrentVersionTag {
			return nil, errors.Wrapf(ErrVersionIncompatible,
				"client sent version %d, server speaks %d", frame.Version, wire.CurrentVersionTag)
		}
		s.versionChecked.Store(true)
	}

	switch frame.Type {
	case wire.MsgConnectionTerminate:
		return nil, ErrConnectionTerminate
	case wire.MsgClientSessionTerminate:
		var term wire.ClientSessionTerminate
		_ = frame.Decode(&term)
		return nil, errors.Wrapf(ErrClientSessionTerminate, "client %d requested explicit session teardown", term.ClientID)
	case wire.MsgCompilationInterrupted:
		return nil, ErrCompilationInterrupted
	case wire.MsgCompilationRequest:
		var req wire.CompilationRequest
		if err := frame.Decode(&req); err != nil {
			return nil, errors.Wrapf(ErrMessageTypeMismatch, "malformed compilation request: %v", err)
		}
		return &req, nil
	default:
		return nil, errors.Wrapf(ErrMessageTypeMismatch, "expected CompilationRequest, got %s", frame.Type)
	}
}

// WriteError sends a terminal CompilationFailure reply carrying one
// status code.
func (s *Stream) WriteError(code wire.StatusCode, health *wire.HealthTags) error {
	return s.Write(wire.MsgCompilationFailure, wire.CompilationFailure{
		Status: code,
		Health: health,
	})
}

// FinishCompilation sends the terminal success reply.
func (s *Stream) FinishCompilation(reply wire.CompilationCode) error {
	return s.Write(wire.MsgCompilationCode, reply)
}

// FinishAotCacheHit sends the terminal AOT-cache-hit reply: the
// cache's serialized method plus the record closure the client doesn't
// already know, in place of a CompilationCode (spec.md §4.G
// SERVING_AOT, §4.H "Lookup", §6 AOTCache_serializedAOTMethod).
func (s *Stream) FinishAotCacheHit(reply wire.AOTCacheSerializedAOTMethod) error {
	return s.Write(wire.MsgAOTCacheSerializedAOTMethod, reply)
}

// RequestFullResync asks the client for a full session-init snapshot —
// every unloaded address range and the complete CH-table — after this
// session's caches have just been cleared, either by the sequencer's
// timeout-driven recovery (§4.D) or a full-clear sentinel (§4.E). The
// client is expected to echo the same message type on its reply, the
// same convention Read already enforces for lazy fetches
// (spec.md §4.G step 5).
func (s *Stream) RequestFullResync(clientID wire.ClientID) (*wire.GetUnloadedClassRangesAndCHTableReply, error) {
	if err := s.Write(wire.MsgGetUnloadedClassRangesAndCHTable, wire.GetUnloadedClassRangesAndCHTableRequest{ClientID: clientID}); err != nil {
		return nil, err
	}
	var reply wire.GetUnloadedClassRangesAndCHTableReply
	if _, err := s.Read(&reply); err != nil {
		return nil, err
	}
	return &reply, nil
}

// Close releases the underlying connection.
func (s *Stream) Close() error {
	return s.conn.Close()
}

func classifyTransportErr(err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, io.EOF) {
		return errors.Wrap(ErrConnectionTerminate, err.Error())
	}
	return errors.Wrap(ErrStreamFailure, err.Error())
}
