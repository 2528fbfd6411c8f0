// Package activeobject exports per-instance active object metrics to
// Prometheus, grounded on the registration/label conventions in
// pkg/observability/prometheus.Metrics (promauto against an explicit
// Registerer, "fluxor"-style naming, a default process-wide registry with
// room for callers to supply their own).
package activeobject

import (
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	ao "github.com/fluxorio/activeobject/pkg/activeobject"
)

var (
	// DefaultRegistry mirrors pkg/observability/prometheus.DefaultRegistry:
	// a private registry, not the global default, so importing this
	// package never surprises an application with unrequested collectors.
	DefaultRegistry = prometheus.NewRegistry()

	// DefaultRegisterer labels every series with the constant label
	// component="activeobject", the same pattern pkg/observability/prometheus uses.
	DefaultRegisterer = prometheus.WrapRegistererWith(prometheus.Labels{"component": "activeobject"}, DefaultRegistry)
)

// Instance is the subset of Ref[O] the collector needs; it is defined here
// rather than imported so the collector never has to be generic over O.
type Instance interface {
	ID() string
	Stats() ao.Stats
}

// Metrics is a live, self-pruning Prometheus exporter for any number of
// active object instances. Instances are added with Track and are
// forgotten automatically once their Stats().State reaches Stopped and has
// been scraped once in that state, matching the "no manual deregistration"
// expectation of an exporter sitting next to a GC-managed lifetime.
type Metrics struct {
	mu        sync.Mutex
	instances map[string]Instance
	lastSeen  map[string]bool

	queued     *prometheus.GaugeVec
	dispatched *prometheus.GaugeVec
	rejected   *prometheus.GaugeVec
	timers     *prometheus.GaugeVec
	state      *prometheus.GaugeVec

	stopCh chan struct{}
	once   sync.Once
}

// NewMetrics builds the collector's gauge vectors against registerer (pass
// nil for DefaultRegisterer) and starts its background scrape loop at the
// given interval.
func NewMetrics(registerer prometheus.Registerer, interval time.Duration) *Metrics {
	if registerer == nil {
		registerer = DefaultRegisterer
	}
	m := &Metrics{
		instances: make(map[string]Instance),
		lastSeen:  make(map[string]bool),
		stopCh:    make(chan struct{}),

		queued: promauto.With(registerer).NewGaugeVec(prometheus.GaugeOpts{
			Name: "activeobject_mailbox_queued",
			Help: "Approximate number of envelopes currently queued.",
		}, []string{"id"}),
		dispatched: promauto.With(registerer).NewGaugeVec(prometheus.GaugeOpts{
			Name: "activeobject_mailbox_dispatched_total",
			Help: "Envelopes dispatched since the instance started.",
		}, []string{"id"}),
		rejected: promauto.With(registerer).NewGaugeVec(prometheus.GaugeOpts{
			Name: "activeobject_mailbox_rejected_total",
			Help: "Envelopes rejected because the mailbox was already closed.",
		}, []string{"id"}),
		timers: promauto.With(registerer).NewGaugeVec(prometheus.GaugeOpts{
			Name: "activeobject_timers_armed",
			Help: "Number of timers currently armed.",
		}, []string{"id"}),
		state: promauto.With(registerer).NewGaugeVec(prometheus.GaugeOpts{
			Name: "activeobject_state",
			Help: "Current lifecycle state (0=Constructed,1=Started,2=Stopping,3=Stopped).",
		}, []string{"id"}),
	}
	go m.scrapeLoop(interval)
	return m
}

// Track registers an instance for scraping. It is safe to call from any
// goroutine and idempotent for the same ID.
func (m *Metrics) Track(inst Instance) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.instances[inst.ID()] = inst
}

// Close stops the scrape loop. It does not remove already-published series;
// callers that need that should drop the Metrics' registry entirely.
func (m *Metrics) Close() {
	m.once.Do(func() { close(m.stopCh) })
}

func (m *Metrics) scrapeLoop(interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-m.stopCh:
			return
		case <-ticker.C:
			m.scrapeOnce()
		}
	}
}

func (m *Metrics) scrapeOnce() {
	m.mu.Lock()
	defer m.mu.Unlock()

	for id, inst := range m.instances {
		stats := inst.Stats()
		m.queued.WithLabelValues(id).Set(float64(stats.QueuedApprox))
		m.dispatched.WithLabelValues(id).Set(float64(stats.Dispatched))
		m.rejected.WithLabelValues(id).Set(float64(stats.Rejected))
		m.timers.WithLabelValues(id).Set(float64(stats.TimersArmed))
		m.state.WithLabelValues(id).Set(float64(stats.State))

		if stats.State == ao.StateStopped {
			if m.lastSeen[id] {
				delete(m.instances, id)
				delete(m.lastSeen, id)
				m.queued.DeleteLabelValues(id)
				m.dispatched.DeleteLabelValues(id)
				m.rejected.DeleteLabelValues(id)
				m.timers.DeleteLabelValues(id)
				m.state.DeleteLabelValues(id)
				continue
			}
			m.lastSeen[id] = true
		}
	}
}
