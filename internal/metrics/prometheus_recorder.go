package metrics

import (
	"net/http"
	"sync"

	prom "github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// PrometheusRecorder implements Recorder using Prometheus metrics.
type PrometheusRecorder struct {
	once              sync.Once
	registry          *prom.Registry
	inboundCommands   *prom.CounterVec
	localEvents       *prom.CounterVec
	helperStarts      *prom.CounterVec
	helperStops       prom.Counter
	volumePushes      prom.Counter
	seekCorrections   prom.Counter
	endOfContextPause prom.Counter
	liveHelpers       prom.Gauge
}

// NewPrometheusRecorder constructs and registers Prometheus metrics (idempotent).
func NewPrometheusRecorder(reg *prom.Registry) *PrometheusRecorder {
	if reg == nil {
		reg = prom.NewRegistry()
	}
	pr := &PrometheusRecorder{registry: reg}
	pr.once.Do(func() {
		pr.inboundCommands = prom.NewCounterVec(prom.CounterOpts{
			Namespace: "connectbridge",
			Name:      "inbound_commands_total",
			Help:      "Inbound daemon commands by kind and outcome",
		}, []string{"command", "outcome"})
		pr.localEvents = prom.NewCounterVec(prom.CounterOpts{
			Namespace: "connectbridge",
			Name:      "local_events_total",
			Help:      "Local playback engine events by kind and outcome",
		}, []string{"kind", "outcome"})
		pr.helperStarts = prom.NewCounterVec(prom.CounterOpts{
			Namespace: "connectbridge",
			Name:      "helper_starts_total",
			Help:      "Helper daemon spawn attempts by result",
		}, []string{"result"})
		pr.helperStops = prom.NewCounter(prom.CounterOpts{
			Namespace: "connectbridge",
			Name:      "helper_stops_total",
			Help:      "Helper daemon terminations",
		})
		pr.volumePushes = prom.NewCounter(prom.CounterOpts{
			Namespace: "connectbridge",
			Name:      "volume_pushes_total",
			Help:      "Debounced volume pushes to the remote API",
		})
		pr.seekCorrections = prom.NewCounter(prom.CounterOpts{
			Namespace: "connectbridge",
			Name:      "seek_corrections_total",
			Help:      "Local seeks issued to correct playback drift",
		})
		pr.endOfContextPause = prom.NewCounter(prom.CounterOpts{
			Namespace: "connectbridge",
			Name:      "end_of_context_pauses_total",
			Help:      "Pauses scheduled because the remote session looped back",
		})
		pr.liveHelpers = prom.NewGauge(prom.GaugeOpts{
			Namespace: "connectbridge",
			Name:      "live_helpers",
			Help:      "Number of currently live helper daemon processes",
		})
		reg.MustRegister(pr.inboundCommands, pr.localEvents, pr.helperStarts,
			pr.helperStops, pr.volumePushes, pr.seekCorrections,
			pr.endOfContextPause, pr.liveHelpers)
	})
	return pr
}

// Handler serves the recorder's registry in Prometheus exposition format.
func (p *PrometheusRecorder) Handler() http.Handler {
	return promhttp.HandlerFor(p.registry, promhttp.HandlerOpts{})
}

func (p *PrometheusRecorder) IncInboundCommand(cmd string, outcome OutcomeLabel) {
	if p == nil || p.inboundCommands == nil {
		return
	}
	p.inboundCommands.WithLabelValues(cmd, string(outcome)).Inc()
}

func (p *PrometheusRecorder) IncLocalEvent(kind string, outcome OutcomeLabel) {
	if p == nil || p.localEvents == nil {
		return
	}
	p.localEvents.WithLabelValues(kind, string(outcome)).Inc()
}

func (p *PrometheusRecorder) IncHelperStart(result string) {
	if p == nil || p.helperStarts == nil {
		return
	}
	p.helperStarts.WithLabelValues(result).Inc()
}

func (p *PrometheusRecorder) IncHelperStop() {
	if p == nil || p.helperStops == nil {
		return
	}
	p.helperStops.Inc()
}

func (p *PrometheusRecorder) IncVolumePush() {
	if p == nil || p.volumePushes == nil {
		return
	}
	p.volumePushes.Inc()
}

func (p *PrometheusRecorder) IncSeekCorrection() {
	if p == nil || p.seekCorrections == nil {
		return
	}
	p.seekCorrections.Inc()
}

func (p *PrometheusRecorder) IncEndOfContextPause() {
	if p == nil || p.endOfContextPause == nil {
		return
	}
	p.endOfContextPause.Inc()
}

func (p *PrometheusRecorder) SetLiveHelpers(n int) {
	if p == nil || p.liveHelpers == nil {
		return
	}
	p.liveHelpers.Set(float64(n))
}
