// Package poller drives one appliance: fetch, rate, window, render and publish
// once per interval.
package poller

import (
	"context"
	"errors"
	"fmt"
	"image"
	"sync"
	"sync/atomic"
	"time"

	"github.com/cenkalti/backoff/v4"
	"go.uber.org/zap"

	"github.com/saba-futai/fwspeed/apis"
	"github.com/saba-futai/fwspeed/internal/graph"
	"github.com/saba-futai/fwspeed/internal/logging"
	"github.com/saba-futai/fwspeed/internal/metrics"
	"github.com/saba-futai/fwspeed/internal/throughput"
)

var (
	// ErrCredentials wraps the authentication failure that stops polling.
	ErrCredentials = errors.New("appliance rejected the credentials, check user and pass")
	ErrRunning     = errors.New("poller already running")
)

// Fetcher is satisfied by *apis.Client.
type Fetcher interface {
	FetchCounters(ctx context.Context) (apis.Reading, error)
}

// Observer receives per-tick statistics; *metrics.Collector implements it.
type Observer interface {
	ObserveRates(down, up throughput.Sample)
	ObserveTick(result string, fetchSeconds float64)
	SetRunning(running bool)
}

type Options struct {
	Interval time.Duration

	// StartupAttempts bounds Prime; auth failures are never retried.
	StartupAttempts int
	StartupBackoff  time.Duration

	Logger  *zap.Logger
	Metrics Observer

	// OnTick runs on the polling goroutine after each publish. frame stays
	// valid until the second following tick.
	OnTick func(frame *image.RGBA, r Readout)
}

type Scheduler struct {
	fetcher  Fetcher
	renderer *graph.Renderer
	windows  *throughput.Pair
	rates    *throughput.RateCalculator
	opts     Options
	log      *zap.Logger

	// scratch slices reused by every render
	down, up []throughput.Sample

	mu      sync.Mutex // serializes Prime and Run
	fatal   error
	state   atomic.Int32
	readout atomic.Pointer[Readout]
}

func New(fetcher Fetcher, renderer *graph.Renderer, windows *throughput.Pair, opts Options) *Scheduler {
	if opts.Interval <= 0 {
		opts.Interval = time.Second
	}
	if opts.StartupAttempts < 1 {
		opts.StartupAttempts = 1
	}
	if opts.StartupBackoff <= 0 {
		opts.StartupBackoff = 500 * time.Millisecond
	}
	log := opts.Logger
	if log == nil {
		log = logging.Global()
	}
	capacity := windows.Down.Cap()
	s := &Scheduler{
		fetcher:  fetcher,
		renderer: renderer,
		windows:  windows,
		rates:    throughput.NewRateCalculator(),
		opts:     opts,
		log:      log,
		down:     make([]throughput.Sample, 0, capacity),
		up:       make([]throughput.Sample, 0, capacity),
	}
	s.readout.Store(&Readout{Down: throughput.Unavailable, Up: throughput.Unavailable})
	return s
}

func (s *Scheduler) State() State {
	return State(s.state.Load())
}

// Readout returns what the last tick published.
func (s *Scheduler) Readout() Readout {
	return *s.readout.Load()
}

// Prime performs the startup tick. Unlike Run it treats every failure as
// fatal, after retrying transient ones with exponential backoff.
func (s *Scheduler) Prime(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	b := backoff.NewExponentialBackOff()
	b.InitialInterval = s.opts.StartupBackoff
	b.MaxElapsedTime = 0
	policy := backoff.WithContext(backoff.WithMaxRetries(b, uint64(s.opts.StartupAttempts-1)), ctx)

	var reading apis.Reading
	op := func() error {
		start := time.Now()
		r, err := s.fetcher.FetchCounters(ctx)
		s.observeTick(err, time.Since(start))
		if err != nil {
			if apis.IsAuth(err) || ctx.Err() != nil {
				return backoff.Permanent(err)
			}
			return err
		}
		reading = r
		return nil
	}
	notify := func(err error, wait time.Duration) {
		s.log.Warn("startup fetch failed, retrying", zap.Error(err), zap.Duration("wait", wait))
	}

	if err := backoff.RetryNotify(op, policy, notify); err != nil {
		if apis.IsAuth(err) {
			s.fatal = fmt.Errorf("%w: %w", ErrCredentials, err)
			s.state.Store(int32(Stopped))
			return s.fatal
		}
		return fmt.Errorf("startup fetch: %w", err)
	}

	s.record(reading)
	return nil
}

// Run ticks until ctx is cancelled or the appliance rejects the credentials.
// The rate baseline is dropped on every exit. Cancellation returns nil; a rejected login returns an error wrapping
// ErrCredentials and leaves the scheduler Stopped for good.
func (s *Scheduler) Run(ctx context.Context) error {
	if !s.mu.TryLock() {
		return ErrRunning
	}
	defer s.mu.Unlock()

	if s.fatal != nil {
		return s.fatal
	}

	s.setState(Running)
	defer func() {
		// a later Run starts from a clean baseline however this one ended
		s.rates.Reset()
		s.setState(Stopped)
	}()
	s.log.Info("poller started", zap.Duration("interval", s.opts.Interval))

	timer := time.NewTimer(0)
	defer timer.Stop()

	for {
		select {
		case <-ctx.Done():
			s.log.Info("poller stopped")
			return nil
		case <-timer.C:
		}

		if err := s.tick(ctx); err != nil {
			if ctx.Err() != nil {
				s.log.Info("poller stopped")
				return nil
			}
			s.fatal = fmt.Errorf("%w: %w", ErrCredentials, err)
			s.log.Error("authentication failed, polling stopped", zap.Error(err))
			return s.fatal
		}
		timer.Reset(s.opts.Interval)
	}
}

// tick returns an error only for an auth failure or cancellation. Transient
// failures are published as an outage.
func (s *Scheduler) tick(ctx context.Context) error {
	start := time.Now()
	reading, err := s.fetcher.FetchCounters(ctx)
	if ctx.Err() != nil {
		return ctx.Err()
	}
	s.observeTick(err, time.Since(start))

	switch {
	case err == nil:
		s.record(reading)
	case apis.IsAuth(err):
		return err
	default:
		fields := []zap.Field{zap.Error(err)}
		var te *apis.TransientError
		if errors.As(err, &te) {
			fields = append(fields, zap.String("stage", string(te.Stage)))
		}
		s.log.Warn("fetch failed", fields...)
		s.publish(throughput.Unavailable, throughput.Unavailable, time.Now(), err)
	}
	return nil
}

func (s *Scheduler) record(r apis.Reading) {
	down, up := s.rates.Update(throughput.Snapshot{
		Down: r.Received,
		Up:   r.Transmitted,
		At:   r.At,
	})
	s.publish(down, up, r.At, nil)
}

func (s *Scheduler) publish(down, up throughput.Sample, at time.Time, err error) {
	s.windows.Push(down, up)
	s.down = s.windows.Down.AppendTo(s.down[:0])
	s.up = s.windows.Up.AppendTo(s.up[:0])
	frame := s.renderer.Render(s.down, s.up)

	r := &Readout{Down: down, Up: up, At: at, Err: err}
	s.readout.Store(r)
	if s.opts.Metrics != nil {
		s.opts.Metrics.ObserveRates(down, up)
	}
	s.log.Debug("tick",
		zap.Float64("down_kbps", float64(down)),
		zap.Float64("up_kbps", float64(up)),
		zap.Int("window", s.windows.Len()))

	if s.opts.OnTick != nil {
		s.opts.OnTick(frame, *r)
	}
}

func (s *Scheduler) observeTick(err error, took time.Duration) {
	if s.opts.Metrics == nil {
		return
	}
	result := metrics.ResultOK
	switch {
	case err == nil:
	case apis.IsAuth(err):
		result = metrics.ResultAuth
	default:
		result = metrics.ResultTransient
	}
	s.opts.Metrics.ObserveTick(result, took.Seconds())
}

func (s *Scheduler) setState(st State) {
	s.state.Store(int32(st))
	if s.opts.Metrics != nil {
		s.opts.Metrics.SetRunning(st == Running)
	}
}
