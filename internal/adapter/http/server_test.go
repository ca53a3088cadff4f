package http_test

import (
	"bufio"
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	httpadapter "github.com/couchcryptid/weather-lookup-service/internal/adapter/http"
	"github.com/couchcryptid/weather-lookup-service/internal/domain"
	"github.com/couchcryptid/weather-lookup-service/internal/observability"
	"github.com/couchcryptid/weather-lookup-service/internal/orchestrator"
	"github.com/couchcryptid/weather-lookup-service/internal/state"
)

type stubRunner struct {
	mu      sync.Mutex
	intents []orchestrator.Intent
	outcome orchestrator.Outcome
	gate    chan struct{}
}

func (r *stubRunner) Run(ctx context.Context, intent orchestrator.Intent) orchestrator.Outcome {
	r.mu.Lock()
	r.intents = append(r.intents, intent)
	gate := r.gate
	r.mu.Unlock()

	if gate != nil {
		select {
		case <-gate:
		case <-ctx.Done():
			return orchestrator.Outcome{Kind: orchestrator.OutcomeIdle}
		}
	}
	return r.outcome
}

func (r *stubRunner) lastIntent() orchestrator.Intent {
	r.mu.Lock()
	defer r.mu.Unlock()
	if len(r.intents) == 0 {
		return nil
	}
	return r.intents[len(r.intents)-1]
}

func bostonOutcome() orchestrator.Outcome {
	s := domain.WeatherSample{Location: "Boston", Temperature: 72.5, Timestamp: 1714132800000}
	return orchestrator.Outcome{
		Kind:    orchestrator.OutcomeSuccess,
		Current: s,
		Forecast: domain.ForecastWindow{
			Daily:       domain.DegradedDaily(s, domain.ForecastDays),
			HourlyToday: []domain.WeatherSample{s, s},
		},
	}
}

func newTestServer(t *testing.T, runner *stubRunner) (*httpadapter.Server, *state.Machine) {
	t.Helper()
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	m := state.NewMachine(runner, logger, observability.NewMetricsForTesting())
	t.Cleanup(m.Close)
	return httpadapter.NewServer(":0", m, logger), m
}

func do(t *testing.T, srv http.Handler, method, path, body string) *httptest.ResponseRecorder {
	t.Helper()
	var r io.Reader
	if body != "" {
		r = strings.NewReader(body)
	}
	req := httptest.NewRequest(method, path, r)
	rec := httptest.NewRecorder()
	srv.ServeHTTP(rec, req)
	return rec
}

func decodeState(t *testing.T, rec *httptest.ResponseRecorder) state.State {
	t.Helper()
	var s state.State
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &s))
	return s
}

// successServer returns a server whose machine already holds the Boston lookup.
func successServer(t *testing.T) (*httpadapter.Server, *state.Machine) {
	t.Helper()
	srv, m := newTestServer(t, &stubRunner{outcome: bostonOutcome()})
	require.Equal(t, http.StatusAccepted, do(t, srv, http.MethodPost, "/api/v1/search", `{"query":"Boston"}`).Code)
	m.Wait()
	require.Equal(t, state.KindSuccess, m.State().Kind)
	return srv, m
}

func TestHealthzReturns200(t *testing.T) {
	srv, _ := newTestServer(t, &stubRunner{})

	rec := do(t, srv, http.MethodGet, "/healthz", "")

	assert.Equal(t, http.StatusOK, rec.Code)
	var body map[string]string
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, "healthy", body["status"])
}

func TestReadyzTracksReinitialize(t *testing.T) {
	srv, m := newTestServer(t, &stubRunner{outcome: orchestrator.Outcome{Kind: orchestrator.OutcomeIdle}})

	rec := do(t, srv, http.MethodGet, "/readyz", "")
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
	var body map[string]string
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, "not ready", body["status"])
	assert.NotEmpty(t, body["error"])

	require.Equal(t, http.StatusAccepted, do(t, srv, http.MethodPost, "/api/v1/reinitialize", "").Code)
	m.Wait()

	rec = do(t, srv, http.MethodGet, "/readyz", "")
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestMetricsEndpoint(t *testing.T) {
	srv, _ := newTestServer(t, &stubRunner{})

	rec := do(t, srv, http.MethodGet, "/metrics", "")

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "go_goroutines")
}

func TestGetState_InitiallyIdle(t *testing.T) {
	srv, _ := newTestServer(t, &stubRunner{})

	rec := do(t, srv, http.MethodGet, "/api/v1/state", "")

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "application/json", rec.Header().Get("Content-Type"))
	assert.Equal(t, state.KindIdle, decodeState(t, rec).Kind)
}

func TestSearch_RunsLookup(t *testing.T) {
	runner := &stubRunner{outcome: bostonOutcome()}
	srv, m := newTestServer(t, runner)

	rec := do(t, srv, http.MethodPost, "/api/v1/search", `{"query":"Boston"}`)
	require.Equal(t, http.StatusAccepted, rec.Code)
	m.Wait()

	assert.Equal(t, orchestrator.SearchByText{Text: "Boston"}, runner.lastIntent())
	got := decodeState(t, do(t, srv, http.MethodGet, "/api/v1/state", ""))
	require.Equal(t, state.KindSuccess, got.Kind)
	assert.Equal(t, "Boston", got.Success.Current.Location)
	assert.Len(t, got.Success.Forecast.Daily, 7)
}

func TestSearch_BlankQueryFailsImmediately(t *testing.T) {
	runner := &stubRunner{}
	srv, _ := newTestServer(t, runner)

	rec := do(t, srv, http.MethodPost, "/api/v1/search", `{"query":"   "}`)

	require.Equal(t, http.StatusAccepted, rec.Code)
	got := decodeState(t, rec)
	require.Equal(t, state.KindError, got.Kind)
	assert.Equal(t, domain.UnknownError, got.Error.Kind)
	assert.Equal(t, "City name cannot be empty", got.Error.Message)
	assert.Nil(t, runner.lastIntent())
}

func TestSearch_InvalidBody(t *testing.T) {
	srv, _ := newTestServer(t, &stubRunner{})

	rec := do(t, srv, http.MethodPost, "/api/v1/search", `{"query":`)

	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Contains(t, rec.Body.String(), "invalid request body")
}

func TestLocation_ReturnsLoading(t *testing.T) {
	runner := &stubRunner{outcome: bostonOutcome(), gate: make(chan struct{})}
	srv, m := newTestServer(t, runner)

	rec := do(t, srv, http.MethodPost, "/api/v1/location", "")

	require.Equal(t, http.StatusAccepted, rec.Code)
	assert.Equal(t, state.KindLoading, decodeState(t, rec).Kind)

	close(runner.gate)
	m.Wait()
	assert.Equal(t, orchestrator.UseDeviceLocation{SaveCity: true}, runner.lastIntent())
	assert.Equal(t, state.KindSuccess, m.State().Kind)
}

func TestReinitialize_OnlyOnce(t *testing.T) {
	runner := &stubRunner{outcome: orchestrator.Outcome{Kind: orchestrator.OutcomeIdle}}
	srv, m := newTestServer(t, runner)

	rec := do(t, srv, http.MethodPost, "/api/v1/reinitialize", `{"has_location_permission":true}`)
	require.Equal(t, http.StatusAccepted, rec.Code)
	m.Wait()
	assert.Equal(t, orchestrator.Reinitialize{HasLocationPermission: true}, runner.lastIntent())

	rec = do(t, srv, http.MethodPost, "/api/v1/reinitialize", `{"has_location_permission":true}`)
	assert.Equal(t, http.StatusConflict, rec.Code)
}

func TestSelectDaily(t *testing.T) {
	srv, _ := successServer(t)

	rec := do(t, srv, http.MethodPost, "/api/v1/select/daily/3", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, 3, decodeState(t, rec).Success.SelectedDailyIndex)

	assert.Equal(t, http.StatusConflict, do(t, srv, http.MethodPost, "/api/v1/select/daily/7", "").Code)
	assert.Equal(t, http.StatusBadRequest, do(t, srv, http.MethodPost, "/api/v1/select/daily/abc", "").Code)
}

func TestSelectHourly(t *testing.T) {
	srv, _ := successServer(t)

	rec := do(t, srv, http.MethodPost, "/api/v1/select/hourly/1", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, 1, decodeState(t, rec).Success.SelectedHourlyIndex)

	assert.Equal(t, http.StatusConflict, do(t, srv, http.MethodPost, "/api/v1/select/hourly/-1", "").Code)
}

func TestSelect_OutsideSuccess(t *testing.T) {
	srv, _ := newTestServer(t, &stubRunner{})

	rec := do(t, srv, http.MethodPost, "/api/v1/select/daily/0", "")

	assert.Equal(t, http.StatusConflict, rec.Code)
}

func TestView(t *testing.T) {
	srv, _ := successServer(t)

	rec := do(t, srv, http.MethodPost, "/api/v1/view", `{"hourly":true}`)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.True(t, decodeState(t, rec).Success.ShowingHourlyView)

	rec = do(t, srv, http.MethodPost, "/api/v1/view", `{"hourly":false}`)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.False(t, decodeState(t, rec).Success.ShowingHourlyView)

	assert.Equal(t, http.StatusBadRequest, do(t, srv, http.MethodPost, "/api/v1/view", "nope").Code)
}

func TestDismiss(t *testing.T) {
	srv, _ := newTestServer(t, &stubRunner{})

	assert.Equal(t, http.StatusConflict, do(t, srv, http.MethodPost, "/api/v1/dismiss", "").Code)

	do(t, srv, http.MethodPost, "/api/v1/search", `{"query":""}`)
	rec := do(t, srv, http.MethodPost, "/api/v1/dismiss", "")

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, state.KindIdle, decodeState(t, rec).Kind)
}

func TestAPIRateLimited(t *testing.T) {
	srv, _ := newTestServer(t, &stubRunner{})

	var last int
	for range 121 {
		last = do(t, srv, http.MethodGet, "/api/v1/state", "").Code
	}

	assert.Equal(t, http.StatusTooManyRequests, last)
	assert.Equal(t, http.StatusOK, do(t, srv, http.MethodGet, "/healthz", "").Code, "health is not rate limited")
}

func TestStateStream(t *testing.T) {
	runner := &stubRunner{outcome: bostonOutcome()}
	srv, m := newTestServer(t, runner)
	ts := httptest.NewServer(srv)
	defer ts.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, ts.URL+"/api/v1/state/stream", nil)
	require.NoError(t, err)
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()

	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "text/event-stream", resp.Header.Get("Content-Type"))

	events := bufio.NewReader(resp.Body)
	first := nextEvent(t, events)
	assert.Equal(t, state.KindIdle, first.Kind)

	m.SearchByText("Boston")

	for {
		ev := nextEvent(t, events)
		if ev.Kind == state.KindSuccess {
			assert.Equal(t, "Boston", ev.Success.Current.Location)
			return
		}
		require.Equal(t, state.KindLoading, ev.Kind)
	}
}

func TestShutdownEndsOpenStreams(t *testing.T) {
	srv, _ := newTestServer(t, &stubRunner{})
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)

	served := make(chan error, 1)
	go func() { served <- srv.Serve(ln) }()

	resp, err := http.Get("http://" + ln.Addr().String() + "/api/v1/state/stream")
	require.NoError(t, err)
	defer resp.Body.Close()
	events := bufio.NewReader(resp.Body)
	assert.Equal(t, state.KindIdle, nextEvent(t, events).Kind)

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	start := time.Now()
	require.NoError(t, srv.Shutdown(ctx))
	assert.Less(t, time.Since(start), time.Second)

	_, err = io.ReadAll(events)
	require.NoError(t, err, "stream ends cleanly")
	assert.ErrorIs(t, <-served, http.ErrServerClosed)
}

// nextEvent reads one server-sent event and decodes its data line.
func nextEvent(t *testing.T, r *bufio.Reader) state.State {
	t.Helper()
	var data string
	for {
		line, err := r.ReadString('\n')
		require.NoError(t, err)
		line = strings.TrimRight(line, "\n")
		switch {
		case strings.HasPrefix(line, "data: "):
			data = strings.TrimPrefix(line, "data: ")
		case line == "" && data != "":
			var s state.State
			require.NoError(t, json.Unmarshal([]byte(data), &s))
			return s
		}
	}
}
