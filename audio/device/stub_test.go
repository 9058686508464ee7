//go:build !portaudio

package device

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"lingzhi-client/audio"
)

func TestNewWithoutPortAudio(t *testing.T) {
	s, err := New(Config{})
	require.ErrorIs(t, err, audio.ErrUnavailable)
	assert.Nil(t, s)

	var sys *System
	_, err = sys.StartCapture(func([]byte) {})
	assert.ErrorIs(t, err, audio.ErrUnavailable)
	_, err = sys.StartPlayback()
	assert.ErrorIs(t, err, audio.ErrUnavailable)
}

func TestConfigDefaults(t *testing.T) {
	cfg := Config{OutputSampleRate: 48000}
	cfg.defaults()
	assert.Equal(t, DefaultInputSampleRate, cfg.InputSampleRate)
	assert.Equal(t, 48000, cfg.OutputSampleRate)
	assert.Equal(t, DefaultInputFramesPerBuffer, cfg.InputFramesPerBuffer)
	assert.Equal(t, DefaultOutputFramesPerBuffer, cfg.OutputFramesPerBuffer)
}
