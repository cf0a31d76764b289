package balancer

import (
	"net/http"
	"strconv"
	"sync/atomic"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/shirou/gopsutil/v3/cpu"
	"github.com/shirou/gopsutil/v3/mem"

	"github.com/lanetnet/dnsbalancer/internal/dns"
)

// Metrics wraps the Prometheus collectors a Context exposes. Unlike a
// package-level registry, each Context owns its own Metrics and registry so
// a reloaded process can run an old and a new Context side by side without
// duplicate-registration panics.
type Metrics struct {
	registry *prometheus.Registry

	inFlight prometheus.Gauge

	stageErrors     *prometheus.CounterVec
	correlationMiss prometheus.Counter
	gcEvictions     prometheus.Counter
	livenessBecomes *prometheus.CounterVec

	frontendIn   *prometheus.CounterVec
	forwarderOut *prometheus.CounterVec
	forwarderIn  *prometheus.CounterVec
}

// NewMetrics builds and registers a fresh set of collectors under their own
// registry.
func NewMetrics() *Metrics {
	reg := prometheus.NewRegistry()

	m := &Metrics{
		registry: reg,
		inFlight: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "dnsbalancer_in_flight_tasks",
			Help: "Current number of tasks between accept/obtain and their release",
		}),
		stageErrors: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "dnsbalancer_stage_errors_total",
				Help: "Total tasks dropped, by stage-reported reason",
			},
			[]string{"reason"},
		),
		correlationMiss: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "dnsbalancer_correlation_misses_total",
			Help: "Total obtained replies with no matching tracked request",
		}),
		gcEvictions: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "dnsbalancer_gc_evictions_total",
			Help: "Total tracked tasks evicted by the GC stage for exceeding the request TTL",
		}),
		livenessBecomes: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "dnsbalancer_forwarder_liveness_transitions_total",
				Help: "Total forwarder liveness transitions, by forwarder and new state",
			},
			[]string{"forwarder", "state"},
		),
		frontendIn: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "dnsbalancer_frontend_queries_in_total",
				Help: "Total queries accepted on a frontend socket, by frontend",
			},
			[]string{"frontend"},
		),
		forwarderOut: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "dnsbalancer_forwarder_queries_out_total",
				Help: "Total queries sent to a forwarder, by forwarder",
			},
			[]string{"forwarder"},
		),
		forwarderIn: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "dnsbalancer_forwarder_replies_in_total",
				Help: "Total replies received from a forwarder, by forwarder and DNS response code",
			},
			[]string{"forwarder", "rcode"},
		),
	}

	reg.MustRegister(
		m.inFlight,
		m.stageErrors,
		m.correlationMiss,
		m.gcEvictions,
		m.livenessBecomes,
		m.frontendIn,
		m.forwarderOut,
		m.forwarderIn,
		prometheus.NewGaugeFunc(prometheus.GaugeOpts{
			Name: "dnsbalancer_host_cpu_percent",
			Help: "Host CPU utilization percent, sampled at scrape time",
		}, sampleHostCPUPercent),
		prometheus.NewGaugeFunc(prometheus.GaugeOpts{
			Name: "dnsbalancer_host_mem_percent",
			Help: "Host memory utilization percent, sampled at scrape time",
		}, sampleHostMemPercent),
	)
	return m
}

// sampleHostCPUPercent samples instantaneous CPU utilization with a zero
// interval, which reports the delta since the previous call instead of
// blocking the scrape for a measurement window.
func sampleHostCPUPercent() float64 {
	pct, err := cpu.Percent(0, false)
	if err != nil || len(pct) == 0 {
		return 0
	}
	return pct[0]
}

func sampleHostMemPercent() float64 {
	v, err := mem.VirtualMemory()
	if err != nil {
		return 0
	}
	return v.UsedPercent
}

// SetInFlight publishes the current in-flight count.
func (m *Metrics) SetInFlight(n int64) {
	m.inFlight.Set(float64(n))
}

// IncStageError records a task drop, labeled with the reason the owning
// stage gave.
func (m *Metrics) IncStageError(reason string) {
	m.stageErrors.WithLabelValues(reason).Inc()
}

// IncCorrelationMiss records an obtained reply that matched no tracked
// request.
func (m *Metrics) IncCorrelationMiss() {
	m.correlationMiss.Inc()
}

// IncGCEvictions records one GC-stage eviction.
func (m *Metrics) IncGCEvictions() {
	m.gcEvictions.Inc()
}

// IncLivenessTransition records a forwarder flipping reachable/unreachable.
func (m *Metrics) IncLivenessTransition(forwarderName string, alive bool) {
	state := "unreachable"
	if alive {
		state = "reachable"
	}
	m.livenessBecomes.WithLabelValues(forwarderName, state).Inc()
}

// IncFrontendIn records one query accepted on the named frontend.
func (m *Metrics) IncFrontendIn(frontendName string) {
	m.frontendIn.WithLabelValues(frontendName).Inc()
}

// IncForwarderOut records one query sent to the named forwarder.
func (m *Metrics) IncForwarderOut(forwarderName string) {
	m.forwarderOut.WithLabelValues(forwarderName).Inc()
}

// IncForwarderIn records one reply received from the named forwarder,
// labeled with the response code carried in the reply's header flags.
func (m *Metrics) IncForwarderIn(forwarderName string, flags uint16) {
	rcode := strconv.Itoa(int(dns.RCodeFromFlags(flags)))
	m.forwarderIn.WithLabelValues(forwarderName, rcode).Inc()
}

// Handler returns the HTTP handler serving this Metrics' registry in the
// Prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

// MetricsHandler serves whichever Metrics generation is currently live
// behind one stable HTTP route. The caller of Build passes a fresh Metrics
// (and fresh registry) for every Context, old and new included, so a reload
// doesn't hit Prometheus's duplicate-registration panic; this handler is
// what lets a reload swap which generation's registry answers /metrics
// without restarting the metrics HTTP server.
type MetricsHandler struct {
	current atomic.Pointer[Metrics]
}

// NewMetricsHandler constructs a handler serving m until Set is called
// with a newer generation. m may be nil if metrics start out disabled.
func NewMetricsHandler(m *Metrics) *MetricsHandler {
	h := &MetricsHandler{}
	h.Set(m)
	return h
}

// Set installs m as the generation future scrapes are served from.
func (h *MetricsHandler) Set(m *Metrics) {
	h.current.Store(m)
}

func (h *MetricsHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	m := h.current.Load()
	if m == nil {
		http.Error(w, "metrics not enabled", http.StatusServiceUnavailable)
		return
	}
	m.Handler().ServeHTTP(w, r)
}
