package poller

import (
	"context"
	"errors"
	"image"
	"sync"
	"testing"
	"time"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"

	"github.com/saba-futai/fwspeed/apis"
	"github.com/saba-futai/fwspeed/internal/graph"
	"github.com/saba-futai/fwspeed/internal/metrics"
	"github.com/saba-futai/fwspeed/internal/throughput"
	"github.com/saba-futai/fwspeed/pkg/speedcgi"
)

var t0 = time.Date(2025, 1, 1, 12, 0, 0, 0, time.UTC)

type step struct {
	reading apis.Reading
	err     error
}

func ok(rx, tx int64, ms int) step {
	return step{reading: apis.Reading{
		Counters: speedcgi.Counters{Received: rx, Transmitted: tx},
		At:       t0.Add(time.Duration(ms) * time.Millisecond),
	}}
}

func transient() step {
	return step{err: &apis.TransientError{Addr: "fw:444", Stage: apis.StageDial, Err: errors.New("connection refused")}}
}

func unauthorized() step {
	return step{err: &apis.AuthError{Addr: "fw:444", StatusLine: "HTTP/1.1 401 Authorization Required"}}
}

// fakeFetcher replays steps, then blocks until the context is done.
type fakeFetcher struct {
	mu    sync.Mutex
	steps []step
	calls int
}

func (f *fakeFetcher) FetchCounters(ctx context.Context) (apis.Reading, error) {
	f.mu.Lock()
	i := f.calls
	f.calls++
	f.mu.Unlock()

	if i < len(f.steps) {
		return f.steps[i].reading, f.steps[i].err
	}
	<-ctx.Done()
	return apis.Reading{}, &apis.TransientError{Addr: "fw:444", Stage: apis.StageRead, Err: ctx.Err()}
}

func (f *fakeFetcher) Calls() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls
}

type fakeObserver struct {
	mu      sync.Mutex
	results []string
	rates   int
	running []bool
}

func (o *fakeObserver) ObserveRates(down, up throughput.Sample) {
	o.mu.Lock()
	o.rates++
	o.mu.Unlock()
}

func (o *fakeObserver) ObserveTick(result string, _ float64) {
	o.mu.Lock()
	o.results = append(o.results, result)
	o.mu.Unlock()
}

func (o *fakeObserver) SetRunning(running bool) {
	o.mu.Lock()
	o.running = append(o.running, running)
	o.mu.Unlock()
}

func newTestScheduler(f Fetcher, opts Options) (*Scheduler, *throughput.Pair) {
	windows := throughput.NewPair(8)
	if opts.Interval == 0 {
		opts.Interval = time.Millisecond
	}
	if opts.StartupBackoff == 0 {
		opts.StartupBackoff = time.Millisecond
	}
	if opts.Logger == nil {
		opts.Logger = zap.NewNop()
	}
	return New(f, graph.NewRenderer(8, 8, 100, 100), windows, opts), windows
}

func waitReadouts(t *testing.T, ch <-chan Readout, n int) []Readout {
	t.Helper()
	out := make([]Readout, 0, n)
	timeout := time.After(5 * time.Second)
	for len(out) < n {
		select {
		case r := <-ch:
			out = append(out, r)
		case <-timeout:
			t.Fatalf("timed out after %d of %d ticks", len(out), n)
		}
	}
	return out
}

func TestRunMixedTicks(t *testing.T) {
	f := &fakeFetcher{steps: []step{
		ok(1000, 200, 0),
		ok(1500, 250, 1000),
		transient(),
		ok(2500, 350, 3000),
	}}
	ticks := make(chan Readout, 16)
	obs := &fakeObserver{}
	s, windows := newTestScheduler(f, Options{
		Metrics: obs,
		OnTick: func(frame *image.RGBA, r Readout) {
			if frame == nil {
				t.Errorf("nil frame")
			}
			ticks <- r
		},
	})

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- s.Run(ctx) }()

	got := waitReadouts(t, ticks, 4)
	want := [][2]throughput.Sample{
		{throughput.Unavailable, throughput.Unavailable},
		{0.5, 0.05},
		{throughput.Unavailable, throughput.Unavailable},
		{0.5, 0.05},
	}
	for i, r := range got {
		if r.Down != want[i][0] || r.Up != want[i][1] {
			t.Fatalf("tick %d: got (%v, %v), want %v", i, r.Down, r.Up, want[i])
		}
	}
	if got[2].Err == nil || !apis.IsTransient(got[2].Err) {
		t.Fatalf("transient tick should carry its error, got %v", got[2].Err)
	}
	if got[1].Err != nil {
		t.Fatalf("successful tick should have no error, got %v", got[1].Err)
	}
	if s.State() != Running {
		t.Fatalf("expected running, got %v", s.State())
	}

	cancel()
	select {
	case err := <-done:
		if err != nil {
			t.Fatalf("Run should return nil on cancel, got %v", err)
		}
	case <-time.After(5 * time.Second):
		t.Fatalf("Run did not stop")
	}

	if s.State() != Stopped {
		t.Fatalf("expected stopped, got %v", s.State())
	}
	if windows.Down.Len() != 4 || windows.Up.Len() != 4 {
		t.Fatalf("cancelled fetch must not push: down=%d up=%d", windows.Down.Len(), windows.Up.Len())
	}
	if _, has := s.rates.Previous(); has {
		t.Fatalf("rate baseline should be reset after cancellation")
	}
	if r := s.Readout(); r.Down != 0.5 {
		t.Fatalf("Readout should hold the last published tick, got %+v", r)
	}

	obs.mu.Lock()
	defer obs.mu.Unlock()
	wantResults := []string{metrics.ResultOK, metrics.ResultOK, metrics.ResultTransient, metrics.ResultOK}
	if len(obs.results) != len(wantResults) {
		t.Fatalf("tick results: got %v", obs.results)
	}
	for i := range wantResults {
		if obs.results[i] != wantResults[i] {
			t.Fatalf("tick results: got %v, want %v", obs.results, wantResults)
		}
	}
	if obs.rates != 4 {
		t.Fatalf("expected 4 rate observations, got %d", obs.rates)
	}
	if len(obs.running) != 2 || !obs.running[0] || obs.running[1] {
		t.Fatalf("running transitions: got %v", obs.running)
	}
}

func TestRunRestartDropsBaseline(t *testing.T) {
	f := &fakeFetcher{steps: []step{ok(1000, 200, 0), ok(601000, 60200, 600000)}}
	ticks := make(chan Readout, 4)
	s, _ := newTestScheduler(f, Options{
		// long enough that cancellation lands between ticks
		Interval: time.Hour,
		OnTick:   func(_ *image.RGBA, r Readout) { ticks <- r },
	})

	for round := 0; round < 2; round++ {
		ctx, cancel := context.WithCancel(context.Background())
		done := make(chan error, 1)
		go func() { done <- s.Run(ctx) }()

		r := waitReadouts(t, ticks, 1)[0]
		if r.Down.Valid() || r.Up.Valid() {
			t.Fatalf("run %d: first tick should be n/a, got (%v, %v)", round, r.Down, r.Up)
		}
		cancel()
		if err := <-done; err != nil {
			t.Fatalf("run %d: Run returned %v", round, err)
		}
		if _, has := s.rates.Previous(); has {
			t.Fatalf("run %d: baseline kept after stop", round)
		}
	}
	if f.Calls() != 2 {
		t.Fatalf("expected one fetch per run, got %d", f.Calls())
	}
}

func TestRunStopsOnAuth(t *testing.T) {
	f := &fakeFetcher{steps: []step{ok(10, 10, 0), unauthorized(), ok(20, 20, 1000)}}
	s, windows := newTestScheduler(f, Options{})

	err := s.Run(context.Background())
	if !errors.Is(err, ErrCredentials) {
		t.Fatalf("expected ErrCredentials, got %v", err)
	}
	if !errors.Is(err, apis.ErrUnauthorized) || !apis.IsAuth(err) {
		t.Fatalf("auth cause should stay in the chain: %v", err)
	}
	if s.State() != Stopped {
		t.Fatalf("expected stopped, got %v", s.State())
	}
	if windows.Len() != 1 {
		t.Fatalf("auth failure must not push, window len %d", windows.Len())
	}

	calls := f.Calls()
	if err := s.Run(context.Background()); !errors.Is(err, ErrCredentials) {
		t.Fatalf("stop should be terminal, got %v", err)
	}
	if f.Calls() != calls {
		t.Fatalf("no fetch expected after an auth stop")
	}
}

func TestRunRejectsConcurrentRun(t *testing.T) {
	f := &fakeFetcher{}
	s, _ := newTestScheduler(f, Options{})

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	done := make(chan error, 1)
	go func() { done <- s.Run(ctx) }()

	deadline := time.Now().Add(5 * time.Second)
	for f.Calls() == 0 {
		if time.Now().After(deadline) {
			t.Fatalf("first Run never fetched")
		}
		time.Sleep(time.Millisecond)
	}

	if err := s.Run(ctx); !errors.Is(err, ErrRunning) {
		t.Fatalf("expected ErrRunning, got %v", err)
	}
	cancel()
	if err := <-done; err != nil {
		t.Fatalf("Run returned %v", err)
	}
}

func TestPrimeRetriesTransient(t *testing.T) {
	f := &fakeFetcher{steps: []step{transient(), transient(), ok(100, 100, 0)}}
	s, windows := newTestScheduler(f, Options{StartupAttempts: 3})

	if err := s.Prime(context.Background()); err != nil {
		t.Fatalf("Prime error: %v", err)
	}
	if f.Calls() != 3 {
		t.Fatalf("expected 3 fetches, got %d", f.Calls())
	}
	if windows.Len() != 1 {
		t.Fatalf("only the successful fetch should push, got %d", windows.Len())
	}
	r := s.Readout()
	if r.Down.Valid() || r.Up.Valid() || r.Err != nil {
		t.Fatalf("first reading should be an error-free n/a pair, got %+v", r)
	}
	if _, has := s.rates.Previous(); !has {
		t.Fatalf("Prime should seed the rate baseline")
	}
	if s.State() != Idle {
		t.Fatalf("Prime should not start the scheduler, got %v", s.State())
	}
}

func TestPrimeGivesUp(t *testing.T) {
	f := &fakeFetcher{steps: []step{transient(), transient(), transient(), transient()}}
	s, windows := newTestScheduler(f, Options{StartupAttempts: 2})

	err := s.Prime(context.Background())
	if err == nil || !apis.IsTransient(err) {
		t.Fatalf("expected transient startup error, got %v", err)
	}
	if f.Calls() != 2 {
		t.Fatalf("expected 2 attempts, got %d", f.Calls())
	}
	if windows.Len() != 0 {
		t.Fatalf("failed startup must not push")
	}
}

func TestPrimeDoesNotRetryAuth(t *testing.T) {
	f := &fakeFetcher{steps: []step{unauthorized(), ok(1, 1, 0)}}
	s, _ := newTestScheduler(f, Options{StartupAttempts: 5})

	err := s.Prime(context.Background())
	if !errors.Is(err, ErrCredentials) {
		t.Fatalf("expected ErrCredentials, got %v", err)
	}
	if f.Calls() != 1 {
		t.Fatalf("auth must not be retried, got %d calls", f.Calls())
	}
	if s.State() != Stopped {
		t.Fatalf("expected stopped, got %v", s.State())
	}
	if err := s.Run(context.Background()); !errors.Is(err, ErrCredentials) {
		t.Fatalf("Run after failed auth should refuse, got %v", err)
	}
}

func TestTransientLogsStage(t *testing.T) {
	core, logs := observer.New(zapcore.DebugLevel)
	f := &fakeFetcher{steps: []step{transient()}}
	ticks := make(chan Readout, 4)
	s, _ := newTestScheduler(f, Options{
		Logger: zap.New(core),
		OnTick: func(_ *image.RGBA, r Readout) { ticks <- r },
	})

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- s.Run(ctx) }()
	waitReadouts(t, ticks, 1)
	cancel()
	<-done

	warns := logs.FilterMessage("fetch failed").All()
	if len(warns) != 1 {
		t.Fatalf("expected one warning, got %d", len(warns))
	}
	if warns[0].Level != zapcore.WarnLevel {
		t.Fatalf("expected warn level, got %v", warns[0].Level)
	}
	if stage := warns[0].ContextMap()["stage"]; stage != string(apis.StageDial) {
		t.Fatalf("stage field: got %v", stage)
	}
	if logs.FilterMessage("tick").Len() != 1 {
		t.Fatalf("expected one debug tick entry")
	}
}

func TestReadoutString(t *testing.T) {
	r := Readout{Down: 12.345, Up: throughput.Unavailable}
	if got, want := r.String(), "down  12.3 KB/s, up n/a"; got != want {
		t.Fatalf("String() = %q, want %q", got, want)
	}
	if got := (Readout{Down: 0, Up: 1234.56}).String(); got != "down   0.0 KB/s, up 1234.6 KB/s" {
		t.Fatalf("String() = %q", got)
	}
}

func TestStateString(t *testing.T) {
	for st, want := range map[State]string{Idle: "idle", Running: "running", Stopped: "stopped", State(9): "unknown"} {
		if st.String() != want {
			t.Fatalf("State(%d).String() = %q, want %q", st, st.String(), want)
		}
	}
}
