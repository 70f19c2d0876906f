package wire

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRawFrame_DecodeUnmarshalsPayload(t *testing.T) {
	req := CompilationRequest{ClientID: 1, SeqNo: 2}
	payload, err := json.Marshal(req)
	require.NoError(t, err)

	frame := RawFrame{Type: MsgCompilationRequest, Version: CurrentVersionTag, Payload: payload}

	var got CompilationRequest
	require.NoError(t, frame.Decode(&got))
	assert.Equal(t, req, got)
}

func TestRawFrame_DecodeHandlesEmptyPayload(t *testing.T) {
	frame := RawFrame{Type: MsgConnectionTerminate}
	var got ClientSessionTerminate
	assert.NoError(t, frame.Decode(&got))
}

func TestCompilationRequest_IsCriticalOnlyWhenItCarriesDeltas(t *testing.T) {
	assert.False(t, (&CompilationRequest{}).IsCritical())
	assert.True(t, (&CompilationRequest{Unloads: []ClassHandle{1}}).IsCritical())
	assert.True(t, (&CompilationRequest{CHTableMods: []CHTableModification{{}}}).IsCritical())
}
