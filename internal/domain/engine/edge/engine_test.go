package edge

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/wujunwei928/edge-tts-go/edge_tts"

	"odiadev-tts-server-go/internal/domain/audio"
	"odiadev-tts-server-go/internal/domain/engine"
	"odiadev-tts-server-go/internal/domain/voice"
)

type session struct {
	text    string
	voice   string
	prosody Prosody
}

func dialer(calls *atomic.Int32, got *session, output func(string) ([]byte, error)) Dialer {
	return func(text, voiceName string, prosody Prosody) ([]byte, error) {
		calls.Add(1)
		if got != nil {
			*got = session{text: text, voice: voiceName, prosody: prosody}
		}
		return output(text)
	}
}

func request(format audio.Format) engine.Request {
	return engine.Request{
		Text:   "  Welcome to Lagos  ",
		Voice:  voice.Profile{ID: "en-NG-EzinneNeural", EngineVoice: "en-NG-EzinneNeural"},
		Format: format,
	}
}

func TestSynthesizeMP3PassesThrough(t *testing.T) {
	var calls atomic.Int32
	var got session
	e := New(Config{Dial: dialer(&calls, &got, func(string) ([]byte, error) {
		return []byte("ID3-audio"), nil
	})}, nil)

	data, err := e.Synthesize(context.Background(), request(audio.FormatMP3))
	require.NoError(t, err)
	assert.Equal(t, []byte("ID3-audio"), data)
	assert.Equal(t, "Welcome to Lagos", got.text)
	assert.Equal(t, "en-NG-EzinneNeural", got.voice)
	assert.Equal(t, Prosody{Rate: "+0%", Volume: "+0%", Pitch: "+0Hz"}, got.prosody)
	assert.Equal(t, int32(1), calls.Load())
}

func TestSynthesizeWAVRejectsUndecodableOutput(t *testing.T) {
	var calls atomic.Int32
	e := New(Config{Dial: dialer(&calls, nil, func(string) ([]byte, error) {
		return []byte("not really mp3"), nil
	})}, nil)

	_, err := e.Synthesize(context.Background(), request(audio.FormatWAV))
	require.Error(t, err)
	assert.False(t, engine.Retryable(err))
}

func TestEmptyOutputIsOverloaded(t *testing.T) {
	var calls atomic.Int32
	e := New(Config{Dial: dialer(&calls, nil, func(string) ([]byte, error) { return nil, nil })}, nil)

	_, err := e.Synthesize(context.Background(), request(audio.FormatMP3))
	assert.Equal(t, engine.KindOverloaded, engine.KindOf(err))
}

func TestRemoteErrorIsOverloaded(t *testing.T) {
	var calls atomic.Int32
	e := New(Config{Dial: dialer(&calls, nil, func(string) ([]byte, error) {
		return nil, errors.New("websocket: close 1006")
	})}, nil)

	_, err := e.Synthesize(context.Background(), request(audio.FormatMP3))
	assert.Equal(t, engine.KindOverloaded, engine.KindOf(err))
}

func TestDialErrorIsOverloaded(t *testing.T) {
	e := New(Config{Dial: func(string, string, Prosody) ([]byte, error) {
		return nil, errors.New("dns failure")
	}}, nil)

	_, err := e.Synthesize(context.Background(), request(audio.FormatMP3))
	assert.Equal(t, engine.KindOverloaded, engine.KindOf(err))
}

func TestInvalidInput(t *testing.T) {
	e := New(Config{Dial: func(string, string, Prosody) ([]byte, error) {
		t.Fatal("dial must not be called")
		return nil, nil
	}}, nil)

	req := request(audio.FormatMP3)
	req.Text = "   "
	_, err := e.Synthesize(context.Background(), req)
	assert.Equal(t, engine.KindInvalidInput, engine.KindOf(err))

	req = request("ogg")
	_, err = e.Synthesize(context.Background(), req)
	assert.Equal(t, engine.KindInvalidInput, engine.KindOf(err))
}

func TestDeadlineReturnsTimeoutAndReleasesSlotLater(t *testing.T) {
	release := make(chan struct{})
	var calls atomic.Int32
	e := New(Config{MaxConcurrent: 1, Dial: dialer(&calls, nil, func(string) ([]byte, error) {
		<-release
		return []byte("ID3"), nil
	})}, nil)

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	_, err := e.Synthesize(ctx, request(audio.FormatMP3))
	assert.Equal(t, engine.KindTimeout, engine.KindOf(err))

	// The abandoned session still holds the only slot.
	_, err = e.Synthesize(context.Background(), request(audio.FormatMP3))
	assert.Equal(t, engine.KindOverloaded, engine.KindOf(err))
	assert.Error(t, e.HealthCheck(context.Background()))

	close(release)
	require.Eventually(t, func() bool { return e.InFlight() == 0 }, time.Second, time.Millisecond)
	assert.NoError(t, e.HealthCheck(context.Background()))
}

func TestCallerCancellationIsNotTimeout(t *testing.T) {
	release := make(chan struct{})
	defer close(release)
	var calls atomic.Int32
	e := New(Config{Dial: dialer(&calls, nil, func(string) ([]byte, error) {
		<-release
		return []byte("ID3"), nil
	})}, nil)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := e.Synthesize(ctx, request(audio.FormatMP3))
	assert.ErrorIs(t, err, context.Canceled)
	assert.False(t, engine.Retryable(err))
}

func TestClosedEngineRejectsWork(t *testing.T) {
	var calls atomic.Int32
	e := New(Config{Dial: dialer(&calls, nil, func(string) ([]byte, error) { return []byte("ID3"), nil })}, nil)
	e.Close()

	_, err := e.Synthesize(context.Background(), request(audio.FormatMP3))
	assert.Equal(t, engine.KindOverloaded, engine.KindOf(err))
	assert.Error(t, e.HealthCheck(context.Background()))
}

func TestProfileOffsetsReachTheSession(t *testing.T) {
	var calls atomic.Int32
	var got session
	e := New(Config{Dial: dialer(&calls, &got, func(string) ([]byte, error) {
		return []byte("ID3"), nil
	})}, nil)

	req := request(audio.FormatMP3)
	req.Voice = voice.Profile{
		ID:              "en-NG-NarratorNeural",
		EngineVoice:     "en-NG-AbeoNeural",
		RateOffsetPct:   -10,
		VolumeOffsetPct: 20,
		PitchOffsetHz:   -4,
	}
	_, err := e.Synthesize(context.Background(), req)
	require.NoError(t, err)

	assert.Equal(t, "en-NG-AbeoNeural", got.voice)
	assert.Equal(t, Prosody{Rate: "-10%", Volume: "+20%", Pitch: "-4Hz"}, got.prosody)
}

func TestProsodyOptionsAreAcceptedByEdge(t *testing.T) {
	profiles := []voice.Profile{
		{},
		{RateOffsetPct: -10},
		{RateOffsetPct: 200, VolumeOffsetPct: -100, PitchOffsetHz: 12},
	}
	for _, p := range profiles {
		opts := ProsodyFor(p).Options("en-NG-EzinneNeural")
		require.Len(t, opts, 4)
		_, err := edge_tts.NewCommunicate("Ẹ kú àárọ̀", opts...)
		assert.NoError(t, err, "%+v", ProsodyFor(p))
	}

	_, err := edge_tts.NewCommunicate("hi", Prosody{Rate: "10", Volume: "+0%", Pitch: "+0Hz"}.Options("x")...)
	assert.Error(t, err)
}
