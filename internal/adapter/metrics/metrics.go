// Package metrics defines the Prometheus collectors of task-streamer. Every
// constructor registers on the registerer it is given, so tests can use a
// fresh prometheus.NewRegistry().
package metrics

import (
	"log/slog"
	"net/http"

	"github.com/mattcl/task-streamer/internal/platform/version"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "task_streamer"

// NewRegistry returns the server registry: runtime and process collectors
// plus a constant task_streamer_build_info gauge.
func NewRegistry() *prometheus.Registry {
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		newBuildInfo(version.Get()),
	)
	return reg
}

func newBuildInfo(info version.Info) prometheus.Collector {
	g := prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: namespace,
		Name:      "build_info",
		Help:      "Build information of the running server, always 1.",
		ConstLabels: prometheus.Labels{
			"version":    info.Version,
			"commit":     info.Commit,
			"go_version": info.GoVersion,
		},
	})
	g.Set(1)
	return g
}

// Handler serves reg. Collection errors are logged and the remaining
// metrics are still served.
func Handler(reg *prometheus.Registry) http.Handler {
	return promhttp.HandlerFor(reg, promhttp.HandlerOpts{
		ErrorLog:      slogErrorLogger{},
		ErrorHandling: promhttp.ContinueOnError,
	})
}

type slogErrorLogger struct{}

func (slogErrorLogger) Println(v ...any) {
	slog.Error("Metrics collection failed", "error", v)
}
