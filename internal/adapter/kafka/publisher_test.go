package kafka

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/jonboulle/clockwork"
	kafkago "github.com/segmentio/kafka-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/couchcryptid/weather-lookup-service/internal/domain"
	"github.com/couchcryptid/weather-lookup-service/internal/state"
)

type mockWriter struct {
	mu   sync.Mutex
	msgs []kafkago.Message
	err  error
}

func (m *mockWriter) WriteMessages(_ context.Context, msgs ...kafkago.Message) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.err != nil {
		return m.err
	}
	m.msgs = append(m.msgs, msgs...)
	return nil
}

func (m *mockWriter) Close() error { return nil }

func (m *mockWriter) written() []kafkago.Message {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]kafkago.Message(nil), m.msgs...)
}

var publishTime = time.Date(2024, 4, 26, 15, 10, 0, 0, time.UTC)

func testPublisher(w messageWriter) *Publisher {
	return &Publisher{
		writer: w,
		clock:  clockwork.NewFakeClockAt(publishTime),
		logger: slog.New(slog.NewTextHandler(io.Discard, nil)),
	}
}

func bostonSuccess() state.State {
	current := domain.WeatherSample{Location: "Boston", Temperature: 72.5, Timestamp: publishTime.UnixMilli()}
	return state.Succeeded(current, domain.ForecastWindow{
		Daily:       domain.DegradedDaily(current, domain.ForecastDays),
		HourlyToday: []domain.WeatherSample{},
	})
}

func TestSerializeToMessage_Success(t *testing.T) {
	msg, err := serializeToMessage(bostonSuccess(), publishTime)
	require.NoError(t, err)

	assert.Equal(t, []byte("Boston"), msg.Key)
	require.Len(t, msg.Headers, 2)
	assert.Equal(t, "state_kind", msg.Headers[0].Key)
	assert.Equal(t, []byte("success"), msg.Headers[0].Value)
	assert.Equal(t, "published_at", msg.Headers[1].Key)
	assert.Equal(t, []byte(publishTime.Format(time.RFC3339)), msg.Headers[1].Value)

	var snap Snapshot
	require.NoError(t, json.Unmarshal(msg.Value, &snap))
	assert.Equal(t, state.KindSuccess, snap.State.Kind)
	assert.Equal(t, 72.5, snap.State.Success.Current.Temperature)
	assert.Len(t, snap.State.Success.Forecast.Daily, 7)
	assert.True(t, publishTime.Equal(snap.PublishedAt))
}

func TestSerializeToMessage_Error(t *testing.T) {
	s := state.Failed(domain.NewWeatherError(domain.CityNotFound, "City not found"))

	msg, err := serializeToMessage(s, publishTime)
	require.NoError(t, err)

	assert.Equal(t, []byte("city_not_found"), msg.Key)
	assert.Contains(t, string(msg.Value), `"message":"City not found"`)
}

func TestPublisher_Publish_SkipsTransientStates(t *testing.T) {
	w := &mockWriter{}
	p := testPublisher(w)

	for _, s := range []state.State{state.Idle(), state.Loading()} {
		published, err := p.Publish(context.Background(), s)
		require.NoError(t, err)
		assert.False(t, published)
	}
	assert.Empty(t, w.written())
}

func TestPublisher_Publish_WriteError(t *testing.T) {
	p := testPublisher(&mockWriter{err: errors.New("broker unavailable")})

	published, err := p.Publish(context.Background(), bostonSuccess())
	require.Error(t, err)
	assert.False(t, published)
	assert.Contains(t, err.Error(), "publish success snapshot")
}

func withRun(s state.State, run uint64) state.State {
	s.Run = run
	return s
}

func TestPublisher_Run(t *testing.T) {
	w := &mockWriter{}
	p := testPublisher(w)

	success := withRun(bostonSuccess(), 1)
	selected := success
	next := *success.Success
	next.SelectedDailyIndex = 3
	selected.Success = &next

	updates := make(chan state.State, 10)
	updates <- state.Idle()
	updates <- withRun(state.Loading(), 1)
	updates <- success
	updates <- selected
	updates <- withRun(state.Loading(), 2)
	updates <- withRun(state.Failed(domain.NewWeatherError(domain.NetworkError, "Request timeout")), 2)
	updates <- withRun(state.Loading(), 3)
	updates <- withRun(bostonSuccess(), 3)
	close(updates)

	p.Run(context.Background(), updates)

	msgs := w.written()
	require.Len(t, msgs, 3, "selection changes are not republished")
	assert.Equal(t, []byte("Boston"), msgs[0].Key)
	assert.Equal(t, []byte("network_error"), msgs[1].Key)
	assert.Equal(t, []byte("Boston"), msgs[2].Key, "a repeated lookup is published again")
}

func TestPublisher_Run_RepeatLookupWithoutLoading(t *testing.T) {
	w := &mockWriter{}
	p := testPublisher(w)

	// Latest-only delivery can drop the Loading between two identical results.
	updates := make(chan state.State, 2)
	updates <- withRun(bostonSuccess(), 4)
	updates <- withRun(bostonSuccess(), 5)
	close(updates)

	p.Run(context.Background(), updates)

	assert.Len(t, w.written(), 2)
}

func TestPublisher_Run_RetriesRunAfterWriteError(t *testing.T) {
	w := &mockWriter{err: errors.New("broker unavailable")}
	p := testPublisher(w)

	updates := make(chan state.State, 1)
	updates <- withRun(bostonSuccess(), 1)
	close(updates)
	p.Run(context.Background(), updates)
	require.Empty(t, w.written())

	w.mu.Lock()
	w.err = nil
	w.mu.Unlock()

	updates = make(chan state.State, 1)
	updates <- withRun(bostonSuccess(), 1)
	close(updates)
	p.Run(context.Background(), updates)
	assert.Len(t, w.written(), 1)
}

func TestPublisher_Run_StopsOnContextCancel(t *testing.T) {
	p := testPublisher(&mockWriter{})
	ctx, cancel := context.WithCancel(context.Background())

	done := make(chan struct{})
	go func() {
		p.Run(ctx, make(chan state.State))
		close(done)
	}()

	cancel()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("Run did not stop after cancel")
	}
}
