package state

import (
	"context"
	"errors"
	"log/slog"
	"strings"
	"sync"
	"sync/atomic"

	"github.com/couchcryptid/weather-lookup-service/internal/domain"
	"github.com/couchcryptid/weather-lookup-service/internal/observability"
	"github.com/couchcryptid/weather-lookup-service/internal/orchestrator"
)

// Runner executes one fetch intent to completion.
type Runner interface {
	Run(ctx context.Context, intent orchestrator.Intent) orchestrator.Outcome
}

// Machine owns the application State. Fetch intents run in their own
// goroutine tagged with a run token; a completion whose token is no longer
// current is dropped, so a late response never overwrites a newer request.
type Machine struct {
	runner  Runner
	logger  *slog.Logger
	metrics *observability.Metrics

	base context.Context
	stop context.CancelFunc
	wg   sync.WaitGroup

	mu        sync.Mutex
	state     State
	token     uint64
	cancelRun context.CancelFunc
	subs      map[uint64]chan State
	nextSub   uint64
	closed    bool

	reinitialized atomic.Bool
}

// NewMachine creates a Machine in the Idle state.
func NewMachine(runner Runner, logger *slog.Logger, metrics *observability.Metrics) *Machine {
	base, stop := context.WithCancel(context.Background())
	return &Machine{
		runner:  runner,
		logger:  logger,
		metrics: metrics,
		base:    base,
		stop:    stop,
		state:   Idle(),
		subs:    make(map[uint64]chan State),
	}
}

// State returns the latest snapshot.
func (m *Machine) State() State {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state
}

// Subscribe returns a channel that receives the current state immediately and
// then every later state. Slow readers only see the newest value. The returned
// func unsubscribes and closes the channel.
func (m *Machine) Subscribe() (<-chan State, func()) {
	ch := make(chan State, 1)

	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		close(ch)
		return ch, func() {}
	}
	id := m.nextSub
	m.nextSub++
	m.subs[id] = ch
	ch <- m.state
	m.mu.Unlock()

	m.metrics.Subscribers.Inc()

	var once sync.Once
	return ch, func() {
		once.Do(func() {
			m.mu.Lock()
			defer m.mu.Unlock()
			if _, ok := m.subs[id]; !ok {
				return
			}
			delete(m.subs, id)
			close(ch)
			m.metrics.Subscribers.Dec()
		})
	}
}

// SearchByText starts a lookup for text. Blank text fails immediately without
// a fetch.
func (m *Machine) SearchByText(text string) {
	if strings.TrimSpace(text) == "" {
		m.mu.Lock()
		defer m.mu.Unlock()
		if m.closed {
			return
		}
		m.supersedeLocked()
		m.setLocked(Failed(domain.NewWeatherError(domain.UnknownError, "City name cannot be empty")))
		return
	}
	m.dispatch(orchestrator.SearchByText{Text: text})
}

// UseDeviceLocation starts a lookup at the device's position. The resolved
// place is persisted as the last searched location.
func (m *Machine) UseDeviceLocation() {
	m.dispatch(orchestrator.UseDeviceLocation{SaveCity: true})
}

// Reinitialize restores the previous session. Only the first call per Machine
// has any effect; it reports whether this call started the restore.
func (m *Machine) Reinitialize(hasLocationPermission bool) bool {
	if !m.reinitialized.CompareAndSwap(false, true) {
		return false
	}
	m.dispatch(orchestrator.Reinitialize{HasLocationPermission: hasLocationPermission})
	return true
}

// SelectDailyIndex selects a daily entry. It is a no-op outside Success or
// when i is out of range.
func (m *Machine) SelectDailyIndex(i int) bool {
	return m.updateSuccess(func(s *Success) bool {
		if i < 0 || i >= len(s.Forecast.Daily) {
			return false
		}
		s.SelectedDailyIndex = i
		return true
	})
}

// SelectHourlyIndex selects an hourly entry. It is a no-op outside Success or
// when i is out of range.
func (m *Machine) SelectHourlyIndex(i int) bool {
	return m.updateSuccess(func(s *Success) bool {
		if i < 0 || i >= len(s.Forecast.HourlyToday) {
			return false
		}
		s.SelectedHourlyIndex = i
		return true
	})
}

// ToggleHourlyView switches between the daily and hourly views. Switching to
// hourly is rejected when there are no hourly entries.
func (m *Machine) ToggleHourlyView(showHourly bool) bool {
	return m.updateSuccess(func(s *Success) bool {
		if showHourly && len(s.Forecast.HourlyToday) == 0 {
			return false
		}
		s.ShowingHourlyView = showHourly
		return true
	})
}

// DismissError moves an Error state back to Idle.
func (m *Machine) DismissError() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.state.Kind != KindError {
		return false
	}
	m.setLocked(Idle())
	return true
}

// CheckReadiness returns nil once Reinitialize has been requested.
func (m *Machine) CheckReadiness(_ context.Context) error {
	if !m.reinitialized.Load() {
		return errors.New("state machine has not been initialized yet")
	}
	return nil
}

// Wait blocks until every in-flight run has finished.
func (m *Machine) Wait() {
	m.wg.Wait()
}

// Close cancels in-flight runs, waits for them, and closes all subscriptions.
func (m *Machine) Close() {
	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		return
	}
	m.closed = true
	m.stop()
	m.mu.Unlock()

	m.wg.Wait()

	m.mu.Lock()
	defer m.mu.Unlock()
	for id, ch := range m.subs {
		delete(m.subs, id)
		close(ch)
		m.metrics.Subscribers.Dec()
	}
}

func (m *Machine) dispatch(intent orchestrator.Intent) {
	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		return
	}
	token := m.supersedeLocked()
	ctx, cancel := context.WithCancel(m.base)
	m.cancelRun = cancel
	previous := m.state
	m.setLocked(Loading())
	m.wg.Add(1)
	m.mu.Unlock()

	m.logger.Debug("run started", "intent", intent.Name(), "token", token)

	go func() {
		defer m.wg.Done()
		defer cancel()
		out := m.runner.Run(ctx, intent)
		m.complete(token, intent, previous, out)
	}()
}

// supersedeLocked invalidates the in-flight run, if any, and returns the new
// current token.
func (m *Machine) supersedeLocked() uint64 {
	m.token++
	if m.cancelRun != nil {
		m.cancelRun()
		m.cancelRun = nil
	}
	return m.token
}

func (m *Machine) complete(token uint64, intent orchestrator.Intent, previous State, out orchestrator.Outcome) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if token != m.token || m.closed {
		m.metrics.StaleOutcomes.Inc()
		m.logger.Debug("dropping stale outcome",
			"intent", intent.Name(),
			"token", token,
			"current_token", m.token,
			"outcome", out.Kind,
		)
		return
	}
	m.cancelRun = nil

	switch out.Kind {
	case orchestrator.OutcomeSuccess:
		m.setLocked(Succeeded(out.Current, out.Forecast))
	case orchestrator.OutcomeError:
		m.setLocked(Failed(out.Err))
	case orchestrator.OutcomeSkipped:
		m.storeLocked(previous)
	default:
		m.setLocked(Idle())
	}
}

func (m *Machine) updateSuccess(fn func(*Success) bool) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.state.Kind != KindSuccess || m.state.Success == nil {
		return false
	}
	next := *m.state.Success
	if !fn(&next) {
		return false
	}
	m.setLocked(State{Kind: KindSuccess, Success: &next})
	return true
}

// setLocked stamps s with the current run token, stores it and fans it out.
func (m *Machine) setLocked(s State) {
	s.Run = m.token
	m.storeLocked(s)
}

// storeLocked stores s as is and fans it out. Callers hold m.mu, which makes
// this the only sender on every subscriber channel.
func (m *Machine) storeLocked(s State) {
	m.state = s
	m.metrics.StateTransitions.WithLabelValues(string(s.Kind)).Inc()

	for _, ch := range m.subs {
		select {
		case ch <- s:
		default:
			select {
			case <-ch:
			default:
			}
			ch <- s
		}
	}
}
