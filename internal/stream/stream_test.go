package stream

import (
	"encoding/json"
	"io"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/eclipse-openj9/openj9-sub029/errors"
	"github.com/eclipse-openj9/openj9-sub029/internal/wire"
)

// pipeConn is an in-memory Conn pair connecting a Stream under test to
// a hand-driven peer, mirroring how this codebase tests its
// typed-protocol sync package against a fake transport instead of a
// live socket.
type pipeConn struct {
	in  chan []byte
	out chan []byte
	closed bool
}

func newPipePair() (*pipeConn, *pipeConn) {
	a := make(chan []byte, 8)
	b := make(chan []byte, 8)
	return &pipeConn{in: a, out: b}, &pipeConn{in: b, out: a}
}

func (c *pipeConn) ReadJSON(v interface{}) error {
	raw, ok := <-c.in
	if !ok {
		return io.EOF
	}
	return json.Unmarshal(raw, v)
}

func (c *pipeConn) WriteJSON(v interface{}) error {
	raw, err := json.Marshal(v)
	if err != nil {
		return err
	}
	c.out <- raw
	return nil
}

func (c *pipeConn) Close() error {
	if !c.closed {
		c.closed = true
		close(c.out)
	}
	return nil
}

func TestReadCompileRequest_DecodesCompilationRequest(t *testing.T) {
	serverConn, clientConn := newPipePair()
	s := New(serverConn)

	req := wire.CompilationRequest{ClientID: 7, SeqNo: 3, Method: wire.ClassMethodRef{Index: 1}}
	require.NoError(t, clientConn.WriteJSON(wire.Frame{
		Type:    wire.MsgCompilationRequest,
		Version: wire.CurrentVersionTag,
		Payload: req,
	}))

	got, err := s.ReadCompileRequest()
	require.NoError(t, err)
	assert.Equal(t, req.ClientID, got.ClientID)
	assert.Equal(t, req.SeqNo, got.SeqNo)
}

func TestReadCompileRequest_RejectsBadVersion(t *testing.T) {
	serverConn, clientConn := newPipePair()
	s := New(serverConn)

	require.NoError(t, clientConn.WriteJSON(wire.Frame{
		Type:    wire.MsgCompilationRequest,
		Version: wire.CurrentVersionTag + 1,
		Payload: wire.CompilationRequest{},
	}))

	_, err := s.ReadCompileRequest()
	assert.True(t, errors.Is(err, ErrVersionIncompatible))
}

func TestReadCompileRequest_ConnectionTerminate(t *testing.T) {
	serverConn, clientConn := newPipePair()
	s := New(serverConn)

	require.NoError(t, clientConn.WriteJSON(wire.Frame{
		Type:    wire.MsgConnectionTerminate,
		Version: wire.CurrentVersionTag,
	}))

	_, err := s.ReadCompileRequest()
	assert.True(t, errors.Is(err, ErrConnectionTerminate))
}

func TestReadCompileRequest_ClientSessionTerminate(t *testing.T) {
	serverConn, clientConn := newPipePair()
	s := New(serverConn)

	require.NoError(t, clientConn.WriteJSON(wire.Frame{
		Type:    wire.MsgClientSessionTerminate,
		Version: wire.CurrentVersionTag,
		Payload: wire.ClientSessionTerminate{ClientID: 42},
	}))

	_, err := s.ReadCompileRequest()
	assert.True(t, errors.Is(err, ErrClientSessionTerminate))
}

func TestRead_RejectsTypeMismatchAgainstLastWrite(t *testing.T) {
	serverConn, clientConn := newPipePair()
	s := New(serverConn)

	require.NoError(t, s.Write(wire.MsgSharedCacheGetROMClass, wire.SharedCacheGetROMClassRequest{Class: 1}))

	// Peer replies with the wrong message type.
	require.NoError(t, clientConn.WriteJSON(wire.Frame{
		Type:    wire.MsgAOTCacheFailure,
		Version: wire.CurrentVersionTag,
		Payload: wire.AOTCacheFailure{Reason: "wrong reply"},
	}))

	var reply wire.SharedCacheGetROMClassReply
	_, err := s.Read(&reply)
	assert.True(t, errors.Is(err, ErrMessageTypeMismatch))
}

func TestRequestFullResync_RoundTripsClientReply(t *testing.T) {
	serverConn, clientConn := newPipePair()
	s := New(serverConn)

	go func() {
		var frame wire.Frame
		_ = clientConn.ReadJSON(&frame)
		_ = clientConn.WriteJSON(wire.Frame{
			Type:    wire.MsgGetUnloadedClassRangesAndCHTable,
			Version: wire.CurrentVersionTag,
			Payload: wire.GetUnloadedClassRangesAndCHTableReply{
				UnloadedAddressRanges: [][2]uint64{{1, 10}},
			},
		})
	}()

	reply, err := s.RequestFullResync(42)
	require.NoError(t, err)
	assert.Equal(t, [][2]uint64{{1, 10}}, reply.UnloadedAddressRanges)
}

func TestFinishAotCacheHit_WritesDistinguishedType(t *testing.T) {
	serverConn, clientConn := newPipePair()
	s := New(serverConn)

	require.NoError(t, s.FinishAotCacheHit(wire.AOTCacheSerializedAOTMethod{
		SerializedMethod: []byte("compiled"),
	}))

	var frame wire.Frame
	require.NoError(t, clientConn.ReadJSON(&frame))
	assert.Equal(t, wire.MsgAOTCacheSerializedAOTMethod, frame.Type)
}

func TestRead_AcceptsMatchingType(t *testing.T) {
	serverConn, clientConn := newPipePair()
	s := New(serverConn)

	require.NoError(t, s.Write(wire.MsgSharedCacheGetROMClass, wire.SharedCacheGetROMClassRequest{Class: 1}))

	require.NoError(t, clientConn.WriteJSON(wire.Frame{
		Type:    wire.MsgSharedCacheGetROMClass,
		Version: wire.CurrentVersionTag,
		Payload: wire.SharedCacheGetROMClassReply{RomClass: []byte("rom")},
	}))

	var reply wire.SharedCacheGetROMClassReply
	_, err := s.Read(&reply)
	require.NoError(t, err)
	assert.Equal(t, []byte("rom"), reply.RomClass)
}
