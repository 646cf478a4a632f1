// Package app wires the settings, fetch client, scheduler and outputs into
// one process.
package app

import (
	"context"
	"errors"
	"fmt"
	"image"
	"net"
	"net/http"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/saba-futai/fwspeed/apis"
	"github.com/saba-futai/fwspeed/internal/config"
	"github.com/saba-futai/fwspeed/internal/graph"
	"github.com/saba-futai/fwspeed/internal/logging"
	"github.com/saba-futai/fwspeed/internal/metrics"
	"github.com/saba-futai/fwspeed/internal/poller"
	"github.com/saba-futai/fwspeed/internal/throughput"
)

const shutdownTimeout = 5 * time.Second

type Option func(*App)

// WithTickHandler registers the presentation callback. It runs on the polling
// goroutine after the PNG sink.
func WithTickHandler(fn func(frame *image.RGBA, r poller.Readout)) Option {
	return func(a *App) {
		a.onTick = fn
	}
}

func WithLogger(l *zap.Logger) Option {
	return func(a *App) {
		a.log = l
	}
}

type App struct {
	cfg       *config.Config
	log       *zap.Logger
	metrics   *metrics.Collector
	renderer  *graph.Renderer
	scheduler *poller.Scheduler
	sink      *PNGSink
	metricsLn net.Listener
	onTick    func(*image.RGBA, poller.Readout)
}

// New builds every component. The metrics listener, when configured, is bound
// here so a bad address fails before any polling starts.
func New(cfg *config.Config, opts ...Option) (*App, error) {
	a := &App{cfg: cfg, log: logging.Global()}
	for _, opt := range opts {
		opt(a)
	}

	cc, err := ClientConfig(cfg)
	if err != nil {
		return nil, err
	}
	client, err := apis.NewClient(cc)
	if err != nil {
		return nil, err
	}

	a.metrics = metrics.NewCollector()
	a.renderer = graph.NewRenderer(cfg.IconWidth, cfg.IconHeight, cfg.MaxDownKBpS, cfg.MaxUpKBpS)
	if cfg.PNGPath != "" {
		a.sink = NewPNGSink(cfg.PNGPath)
	}

	a.scheduler = poller.New(client, a.renderer, throughput.NewPair(cfg.IconWidth), poller.Options{
		Interval:        cfg.Interval(),
		StartupAttempts: cfg.StartupAttempts,
		Logger:          a.log.Named("poller"),
		Metrics:         a.metrics,
		OnTick:          a.handleTick,
	})

	if cfg.MetricsListen != "" {
		ln, err := net.Listen("tcp", cfg.MetricsListen)
		if err != nil {
			return nil, fmt.Errorf("metrics listener: %w", err)
		}
		a.metricsLn = ln
	}
	return a, nil
}

func (a *App) Scheduler() *poller.Scheduler {
	return a.scheduler
}

func (a *App) Renderer() *graph.Renderer {
	return a.renderer
}

// MetricsAddr is nil when no metrics listener is configured.
func (a *App) MetricsAddr() net.Addr {
	if a.metricsLn == nil {
		return nil
	}
	return a.metricsLn.Addr()
}

// Run primes the scheduler, then polls until ctx is cancelled or the
// appliance rejects the credentials. A failed startup fetch is returned as
// is, without entering the loop.
func (a *App) Run(ctx context.Context) error {
	a.log.Info("starting",
		zap.String("appliance", a.cfg.AdminURL()),
		zap.Duration("interval", a.cfg.Interval()),
		zap.Bool("insecure_skip_verify", a.cfg.InsecureSkipVerify))

	if err := a.scheduler.Prime(ctx); err != nil {
		a.closeMetrics()
		return err
	}

	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		return a.scheduler.Run(gctx)
	})

	if a.metricsLn != nil {
		srv := &http.Server{
			Handler:           a.metricsMux(),
			ReadHeaderTimeout: 5 * time.Second,
		}
		g.Go(func() error {
			a.log.Info("serving metrics", zap.Stringer("addr", a.metricsLn.Addr()))
			if err := srv.Serve(a.metricsLn); err != nil && !errors.Is(err, http.ErrServerClosed) {
				return fmt.Errorf("metrics server: %w", err)
			}
			return nil
		})
		g.Go(func() error {
			<-gctx.Done()
			shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
			defer cancel()
			return srv.Shutdown(shutdownCtx)
		})
	}

	err := g.Wait()
	a.log.Info("stopped", zap.Error(err))
	return err
}

func (a *App) metricsMux() *http.ServeMux {
	mux := http.NewServeMux()
	mux.Handle("/metrics", a.metrics.Handler())
	return mux
}

func (a *App) closeMetrics() {
	if a.metricsLn != nil {
		_ = a.metricsLn.Close()
	}
}

func (a *App) handleTick(frame *image.RGBA, r poller.Readout) {
	if a.sink != nil {
		if err := a.sink.Write(frame); err != nil {
			a.log.Warn("write png", zap.String("path", a.sink.Path()), zap.Error(err))
		}
	}
	if a.onTick != nil {
		a.onTick(frame, r)
	}
}
