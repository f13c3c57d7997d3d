package engine

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"odiadev-tts-server-go/internal/domain/audio"
	"odiadev-tts-server-go/internal/domain/voice"
	"odiadev-tts-server-go/internal/platform/observability"
)

type mockEngine struct {
	mock.Mock
}

func (m *mockEngine) Name() string { return "mock" }

func (m *mockEngine) Synthesize(ctx context.Context, req Request) ([]byte, error) {
	args := m.Called(ctx, req)
	data, _ := args.Get(0).([]byte)
	return data, args.Error(1)
}

func (m *mockEngine) HealthCheck(ctx context.Context) error {
	return m.Called(ctx).Error(0)
}

func testRequest() Request {
	return Request{
		Text:   "hello",
		Voice:  voice.Profile{ID: "v", EngineVoice: "en-NG-EzinneNeural"},
		Format: audio.FormatMP3,
	}
}

func TestKindOf(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want Kind
	}{
		{"nil", nil, ""},
		{"typed", Overloaded("x", errors.New("busy")), KindOverloaded},
		{"wrapped typed", fmt.Errorf("outer: %w", Timeout("x", nil)), KindTimeout},
		{"deadline", context.DeadlineExceeded, KindTimeout},
		{"plain", errors.New("boom"), KindUnknown},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, KindOf(tt.err))
		})
	}
}

func TestRetryable(t *testing.T) {
	assert.True(t, Retryable(Timeout("x", nil)))
	assert.True(t, Retryable(Overloaded("x", nil)))
	assert.False(t, Retryable(InvalidInput("x", nil)))
	assert.False(t, Retryable(errors.New("boom")))
	assert.False(t, Retryable(context.Canceled))
}

func TestBreakerOpensAfterConsecutiveFailures(t *testing.T) {
	inner := &mockEngine{}
	inner.On("Synthesize", mock.Anything, mock.Anything).Return(nil, Timeout("mock", nil)).Times(3)

	cb := NewCircuitBreaker(3, time.Minute)
	eng := WithBreaker(inner, cb)
	for i := 0; i < 3; i++ {
		_, err := eng.Synthesize(context.Background(), testRequest())
		require.Error(t, err)
	}
	assert.Equal(t, StateOpen, eng.BreakerState())

	_, err := eng.Synthesize(context.Background(), testRequest())
	assert.ErrorIs(t, err, ErrCircuitOpen)
	assert.Equal(t, KindOverloaded, KindOf(err))
	inner.AssertNumberOfCalls(t, "Synthesize", 3)

	assert.ErrorIs(t, eng.HealthCheck(context.Background()), ErrCircuitOpen)
}

func TestBreakerIgnoresInvalidInput(t *testing.T) {
	inner := &mockEngine{}
	inner.On("Synthesize", mock.Anything, mock.Anything).Return(nil, InvalidInput("mock", nil))

	eng := WithBreaker(inner, NewCircuitBreaker(2, time.Minute))
	for i := 0; i < 5; i++ {
		_, _ = eng.Synthesize(context.Background(), testRequest())
	}
	assert.Equal(t, StateClosed, eng.BreakerState())
}

func TestBreakerHalfOpenAdmitsSingleTrialCall(t *testing.T) {
	now := time.Now()
	cb := NewCircuitBreaker(1, time.Second)
	cb.now = func() time.Time { return now }

	cb.recordFailure()
	assert.False(t, cb.allow())

	now = now.Add(2 * time.Second)
	assert.Equal(t, StateHalfOpen, cb.State())
	assert.True(t, cb.allow(), "first trial call admitted")
	assert.False(t, cb.allow(), "second caller rejected while probing")

	cb.recordFailure()
	assert.Equal(t, StateOpen, cb.State())

	now = now.Add(2 * time.Second)
	assert.True(t, cb.allow())
	cb.recordSuccess()
	assert.Equal(t, StateClosed, cb.State())
	assert.True(t, cb.allow())
}

func TestInstrumentedEngineRecordsAttempts(t *testing.T) {
	inner := &mockEngine{}
	inner.On("Synthesize", mock.Anything, mock.Anything).Return([]byte("ID3"), nil).Once()
	inner.On("Synthesize", mock.Anything, mock.Anything).Return(nil, Overloaded("mock", nil)).Once()
	inner.On("HealthCheck", mock.Anything).Return(nil)

	metrics := observability.NewMetrics("test")
	eng := WithInstrumentation(inner, metrics, nil)

	data, err := eng.Synthesize(context.Background(), testRequest())
	require.NoError(t, err)
	assert.Equal(t, []byte("ID3"), data)

	_, err = eng.Synthesize(context.Background(), testRequest())
	require.Error(t, err)
	require.NoError(t, eng.HealthCheck(context.Background()))
	assert.Equal(t, "mock", eng.Name())
	inner.AssertExpectations(t)
}
