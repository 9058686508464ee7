package model

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestConnectionState_String(t *testing.T) {
	tests := []struct {
		state ConnectionState
		want  string
	}{
		{Disconnected, "disconnected"},
		{Connecting, "connecting"},
		{Connected, "connected"},
		{ClosingByUser, "closing_by_user"},
		{ConnectionState(42), "unknown"},
	}
	for _, tc := range tests {
		assert.Equal(t, tc.want, tc.state.String())
	}
}

func TestTurnState_String(t *testing.T) {
	assert.Equal(t, "listening", Listening.String())
	assert.Equal(t, "speaking", Speaking.String())
	assert.Equal(t, "interrupted", Interrupted.String())
	assert.Equal(t, "unknown", TurnState(-1).String())
}

func TestEnvelope_AbsentFlagsDefaultFalse(t *testing.T) {
	var env Envelope
	require.NoError(t, json.Unmarshal([]byte(`{"mime_type":"audio/pcm","data":"AAE="}`), &env))

	assert.False(t, env.TurnComplete)
	assert.False(t, env.Interrupted)
	assert.True(t, env.IsAudio())
	assert.False(t, env.IsText())
}

func TestEnvelope_FlagsOnlyOmitsPayload(t *testing.T) {
	data, err := json.Marshal(Envelope{TurnComplete: true})
	require.NoError(t, err)
	assert.JSONEq(t, `{"turn_complete":true}`, string(data))
}
