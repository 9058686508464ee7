package turn

import (
	"encoding/base64"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"lingzhi-client/codec"
	"lingzhi-client/model"
)

func audioEnvelope(b []byte) model.Envelope {
	return codec.EncodeAudio(b)
}

func speakingMachine(t *testing.T) *Machine {
	t.Helper()
	m := New()
	m.StartAudioMode()
	m.HandleEnvelope(audioEnvelope([]byte{1, 2}))
	require.Equal(t, model.Speaking, m.State())
	return m
}

func TestAudioStartsSpeaking(t *testing.T) {
	m := New()
	m.StartAudioMode()

	effects := m.HandleEnvelope(audioEnvelope([]byte{1, 2, 3}))

	assert.Equal(t, []Effect{PlayAudio{Data: []byte{1, 2, 3}}, EnterSpeaking{}}, effects)
	assert.Equal(t, model.Speaking, m.State())

	// 继续说话时只播放
	effects = m.HandleEnvelope(audioEnvelope([]byte{4}))
	assert.Equal(t, []Effect{PlayAudio{Data: []byte{4}}}, effects)
}

func TestAudioIgnoredInTextMode(t *testing.T) {
	m := New()

	effects := m.HandleEnvelope(audioEnvelope([]byte{1}))

	assert.Empty(t, effects)
	assert.Equal(t, model.Listening, m.State())
}

func TestTurnCompleteWhileSpeaking(t *testing.T) {
	m := speakingMachine(t)

	effects := m.HandleEnvelope(model.Envelope{TurnComplete: true})

	assert.Equal(t, []Effect{ExitSpeaking{}}, effects)
	assert.Equal(t, model.Listening, m.State())
	for _, e := range effects {
		assert.NotEqual(t, FlushPlayback{}, e)
		_, isPlay := e.(PlayAudio)
		assert.False(t, isPlay)
	}
}

func TestTurnCompleteWhileListening(t *testing.T) {
	m := New()
	assert.Empty(t, m.HandleEnvelope(model.Envelope{TurnComplete: true}))
	assert.Equal(t, model.Listening, m.State())
}

func TestInterruptionPriority(t *testing.T) {
	data := base64.StdEncoding.EncodeToString([]byte{9, 9, 9})
	inputs := []model.Envelope{
		{Interrupted: true},
		{Interrupted: true, MimeType: model.MimeTypePCM, Data: data},
		{Interrupted: true, TurnComplete: true},
		{Interrupted: true, MimeType: model.MimeTypeText, Data: "hi"},
	}

	for _, env := range inputs {
		for _, speaking := range []bool{false, true} {
			m := New()
			m.StartAudioMode()
			if speaking {
				m.HandleEnvelope(audioEnvelope([]byte{1}))
			}

			effects := m.HandleEnvelope(env)

			require.NotEmpty(t, effects)
			assert.Equal(t, FlushPlayback{}, effects[0])
			for _, e := range effects {
				_, isPlay := e.(PlayAudio)
				assert.False(t, isPlay, "interrupted audio must not be enqueued")
				_, isText := e.(AppendText)
				assert.False(t, isText)
			}
			assert.Equal(t, model.Listening, m.State())
		}
	}
}

func TestInterruptedWithAudioScenario(t *testing.T) {
	m := speakingMachine(t)

	raw := []byte(`{"interrupted": true, "mime_type": "audio/pcm", "data": "AQID"}`)
	env, err := codec.Decode(raw)
	require.NoError(t, err)

	effects := m.HandleEnvelope(env)

	assert.Equal(t, []Effect{FlushPlayback{}, ExitSpeaking{}}, effects)
	assert.Equal(t, model.Listening, m.State())
}

func TestTextCorrelation(t *testing.T) {
	m := New()

	first := m.HandleEnvelope(codec.EncodeText("你"))
	second := m.HandleEnvelope(codec.EncodeText("好"))
	require.Len(t, first, 1)
	require.Len(t, second, 1)

	a := first[0].(AppendText)
	b := second[0].(AppendText)
	assert.NotEmpty(t, a.MessageID)
	assert.Equal(t, a.MessageID, b.MessageID)
	assert.Equal(t, "好", b.Text)

	m.HandleEnvelope(model.Envelope{TurnComplete: true})
	assert.Empty(t, m.MessageID())

	third := m.HandleEnvelope(codec.EncodeText("!"))
	assert.NotEqual(t, a.MessageID, third[0].(AppendText).MessageID)
}

func TestStopAudioMode(t *testing.T) {
	m := speakingMachine(t)

	effects := m.StopAudioMode()

	assert.Equal(t, []Effect{ExitSpeaking{}, StopCapture{}, StopVisualizer{}}, effects)
	assert.Equal(t, model.Listening, m.State())
	assert.False(t, m.AudioMode())

	effects = m.StopAudioMode()
	assert.Equal(t, []Effect{StopCapture{}, StopVisualizer{}}, effects)
}

func TestUnmatchedEnvelopeIsNoop(t *testing.T) {
	m := speakingMachine(t)

	assert.Empty(t, m.HandleEnvelope(model.Envelope{}))
	assert.Empty(t, m.HandleEnvelope(model.Envelope{MimeType: "image/png", Data: "x"}))
	assert.Equal(t, model.Speaking, m.State())
}

func TestBadAudioPayloadIsDropped(t *testing.T) {
	m := New()
	m.StartAudioMode()

	effects := m.HandleEnvelope(model.Envelope{MimeType: model.MimeTypePCM, Data: "%%%"})

	assert.Empty(t, effects)
	assert.Equal(t, model.Listening, m.State())
}
