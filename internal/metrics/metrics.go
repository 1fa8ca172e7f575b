// Package metrics exposes the fixture state as Prometheus metrics.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/sweeney/adaptive-light/internal/logic"
)

const namespace = "adaptive_light"

var statusClasses = []logic.StatusClass{
	logic.StatusFault,
	logic.StatusBoot,
	logic.StatusLightOff,
	logic.StatusNoUser,
	logic.StatusOffset,
	logic.StatusAuto,
}

// Metrics holds the collectors for one daemon. Each instance has its own
// registry so tests do not share global state.
type Metrics struct {
	Registry *prometheus.Registry

	OutputPercent prometheus.Gauge
	AutoPercent   prometheus.Gauge
	TargetPercent prometheus.Gauge
	LightRaw      prometheus.Gauge
	LightFiltered prometheus.Gauge
	DistanceCm    prometheus.Gauge
	ReferenceCm   prometheus.Gauge
	Present       prometheus.Gauge
	LightEnabled  prometheus.Gauge
	Offset        prometheus.Gauge
	Fault         prometheus.Gauge
	Status        *prometheus.GaugeVec

	Events         *prometheus.CounterVec
	DutyErrors     prometheus.Counter
	EncoderDropped prometheus.Gauge
	ParseErrors    prometheus.Gauge
	MQTTConnected  prometheus.Gauge
}

// New creates and registers the collectors, plus the Go runtime and process
// collectors.
func New() *Metrics {
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	f := promauto.With(reg)

	gauge := func(name, help string) prometheus.Gauge {
		return f.NewGauge(prometheus.GaugeOpts{Namespace: namespace, Name: name, Help: help})
	}

	return &Metrics{
		Registry: reg,

		OutputPercent: gauge("output_percent", "Ramped duty cycle sent to the driver"),
		AutoPercent:   gauge("auto_percent", "Brightness derived from ambient light"),
		TargetPercent: gauge("target_percent", "Target brightness after offset and gating"),
		LightRaw:      gauge("light_raw", "Latest raw ambient light reading"),
		LightFiltered: gauge("light_filtered", "Moving average of ambient light"),
		DistanceCm:    gauge("distance_cm", "Median-filtered distance in centimetres"),
		ReferenceCm:   gauge("reference_cm", "Presence reference distance in centimetres"),
		Present:       gauge("present", "1 when a user is considered present"),
		LightEnabled:  gauge("light_enabled", "1 when the light is switched on"),
		Offset:        gauge("offset_percent", "User brightness offset"),
		Fault:         gauge("fault", "1 when the fixture is in fault"),
		Status: f.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "status",
			Help:      "Current status class, 1 for the active class",
		}, []string{"class"}),

		Events: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "events_total",
			Help:      "Engine events by type",
		}, []string{"type"}),
		DutyErrors: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "duty_write_errors_total",
			Help:      "Failed duty cycle writes to the co-processor",
		}),
		EncoderDropped: gauge("encoder_dropped", "Encoder events dropped because the queue was full"),
		ParseErrors:    gauge("serial_parse_errors", "Co-processor lines that failed to parse"),
		MQTTConnected:  gauge("mqtt_connected", "1 when connected to the broker"),
	}
}

// Observe sets the gauges from an engine snapshot.
func (m *Metrics) Observe(d logic.Diagnostics) {
	m.OutputPercent.Set(float64(d.Output.RampedPercent))
	m.AutoPercent.Set(float64(d.Output.AutoPercent))
	m.TargetPercent.Set(float64(d.Output.TargetPercent))
	m.LightRaw.Set(float64(d.LightRaw))
	m.LightFiltered.Set(float64(d.LightFiltered))
	m.DistanceCm.Set(float64(d.DistanceFiltered))
	m.ReferenceCm.Set(float64(d.ReferenceCm))
	m.Present.Set(boolToFloat(d.Present))
	m.LightEnabled.Set(boolToFloat(d.LightEnabled))
	m.Offset.Set(float64(d.Offset))
	m.Fault.Set(boolToFloat(d.Fault))

	for _, class := range statusClasses {
		m.Status.WithLabelValues(string(class)).Set(boolToFloat(class == d.Status))
	}
}

// CountEvents increments the per-type event counter.
func (m *Metrics) CountEvents(events []logic.Event) {
	for _, ev := range events {
		m.Events.WithLabelValues(string(ev.Type)).Inc()
	}
}

// Handler serves the registry in the Prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.Registry, promhttp.HandlerOpts{Registry: m.Registry})
}

func boolToFloat(b bool) float64 {
	if b {
		return 1
	}
	return 0
}
