package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/saba-futai/fwspeed/internal/throughput"
)

const namespace = "fwspeed"

// Result labels for ticks.
const (
	ResultOK        = "ok"
	ResultTransient = "transient"
	ResultAuth      = "auth"
)

// Collector exports the current rates and poll outcomes.
type Collector struct {
	registry *prometheus.Registry

	rate      *prometheus.GaugeVec
	available *prometheus.GaugeVec
	ticks     *prometheus.CounterVec
	fetchTime prometheus.Histogram
	running   prometheus.Gauge
}

func NewCollector() *Collector {
	c := &Collector{
		registry: prometheus.NewRegistry(),
		rate: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "rate_kbps",
			Help:      "Last computed throughput in KB/s.",
		}, []string{"direction"}),
		available: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "rate_available",
			Help:      "1 when the last tick produced a rate for the direction.",
		}, []string{"direction"}),
		ticks: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "ticks_total",
			Help:      "Poll ticks by result.",
		}, []string{"result"}),
		fetchTime: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "fetch_duration_seconds",
			Help:      "Duration of one speed.cgi fetch.",
			Buckets:   []float64{0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10},
		}),
		running: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "poller_running",
			Help:      "1 while the poller is running.",
		}),
	}
	c.registry.MustRegister(c.rate, c.available, c.ticks, c.fetchTime, c.running)
	return c
}

// ObserveRates records one tick's readout. Unavailable samples keep the
// previous rate value and clear the availability gauge.
func (c *Collector) ObserveRates(down, up throughput.Sample) {
	c.observe("down", down)
	c.observe("up", up)
}

func (c *Collector) observe(direction string, s throughput.Sample) {
	if !s.Valid() {
		c.available.WithLabelValues(direction).Set(0)
		return
	}
	c.available.WithLabelValues(direction).Set(1)
	c.rate.WithLabelValues(direction).Set(float64(s))
}

func (c *Collector) ObserveTick(result string, fetchSeconds float64) {
	c.ticks.WithLabelValues(result).Inc()
	c.fetchTime.Observe(fetchSeconds)
}

func (c *Collector) SetRunning(running bool) {
	if running {
		c.running.Set(1)
		return
	}
	c.running.Set(0)
}

// Handler serves the collector in the Prometheus text format.
func (c *Collector) Handler() http.Handler {
	return promhttp.HandlerFor(c.registry, promhttp.HandlerOpts{})
}
