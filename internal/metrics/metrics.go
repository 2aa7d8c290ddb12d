// internal/metrics/metrics.go
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

var (
	SamplesIngested = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "gateway_samples_ingested_total",
		Help: "Samples accepted into the store, per channel.",
	}, []string{"channel"})

	SamplesRejected = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "gateway_samples_rejected_total",
		Help: "Samples rejected at the ingestion boundary, per reason.",
	}, []string{"reason"})

	AlertsPublished = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "gateway_alerts_published_total",
		Help: "Alert events published to the hub, per kind.",
	}, []string{"kind"})

	DeviceCommands = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "gateway_device_commands_total",
		Help: "Actuator commands issued, per device.",
	}, []string{"device"})
)

func init() {
	prometheus.MustRegister(SamplesIngested, SamplesRejected, AlertsPublished, DeviceCommands)
}
