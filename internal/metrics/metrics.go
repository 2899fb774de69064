// Package metrics exports simulation progress as Prometheus metrics.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/gogpu/gravsim"
)

const namespace = "gravsim"

// Collector records frame reports. It implements gravsim.FrameObserver.
//
// Each Collector owns its registry, so several simulations in one process
// can be exported independently.
type Collector struct {
	registry *prometheus.Registry

	frames      prometheus.Counter
	dispatches  prometheus.Counter
	swaps       prometheus.Counter
	transitions *prometheus.CounterVec
	stage       *prometheus.GaugeVec
	generation  prometheus.Gauge
	stallTicks  prometheus.Gauge
	stalled     prometheus.Gauge

	current string
}

// New creates a Collector with its metrics registered.
func New() *Collector {
	c := &Collector{
		registry: prometheus.NewRegistry(),
		frames: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "frames_total",
			Help:      "Number of simulation ticks performed",
		}),
		dispatches: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "dispatches_total",
			Help:      "Number of compute dispatches submitted",
		}),
		swaps: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "buffer_swaps_total",
			Help:      "Number of committed buffer swaps",
		}),
		transitions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "stage_transitions_total",
			Help:      "Number of transitions into each stage",
		}, []string{"stage"}),
		stage: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "stage",
			Help:      "Current stage (1 for the active stage)",
		}, []string{"stage"}),
		generation: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "buffer_generation",
			Help:      "Committed buffer generation",
		}),
		stallTicks: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "stall_ticks",
			Help:      "Consecutive ticks spent waiting for a pipeline",
		}),
		stalled: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "stalled_permanently",
			Help:      "1 when a pipeline the next stage needs failed to compile",
		}),
	}
	c.registry.MustRegister(
		c.frames, c.dispatches, c.swaps, c.transitions,
		c.stage, c.generation, c.stallTicks, c.stalled,
	)
	return c
}

// ObserveFrame records one frame report. Reports arrive from the
// simulation's frame goroutine and are not synchronized.
func (c *Collector) ObserveFrame(r gravsim.FrameReport) {
	c.frames.Inc()
	c.dispatches.Add(float64(r.Dispatches))
	if r.Swapped {
		c.swaps.Inc()
	}

	name := r.Stage.String()
	if r.Advanced {
		c.transitions.WithLabelValues(name).Inc()
	}
	if name != c.current {
		if c.current != "" {
			c.stage.WithLabelValues(c.current).Set(0)
		}
		c.stage.WithLabelValues(name).Set(1)
		c.current = name
	}

	c.generation.Set(float64(r.Generation))
	c.stallTicks.Set(float64(r.Stall.Ticks))
	if r.Stall.Failed {
		c.stalled.Set(1)
	} else {
		c.stalled.Set(0)
	}
}

// Registry returns the registry holding the collector's metrics.
func (c *Collector) Registry() *prometheus.Registry { return c.registry }

// Handler serves the metrics in the Prometheus exposition format.
func (c *Collector) Handler() http.Handler {
	return promhttp.HandlerFor(c.registry, promhttp.HandlerOpts{})
}
