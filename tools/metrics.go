package tools

import (
	"net/http"

	"github.com/armon/go-metrics"
	"github.com/armon/go-metrics/prometheus"
	"github.com/davecgh/go-spew/spew"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	log "github.com/sirupsen/logrus"
)

// InitializeMetrics installs the global metrics sink. With an empty
// metricsAddr samples go to a blackhole sink and no endpoint is served.
func InitializeMetrics(serviceName, metricsAddr string) (*metrics.Metrics, error) {
	var sink metrics.MetricSink
	if metricsAddr != "" {
		ps, err := prometheus.NewPrometheusSink()
		if err != nil {
			return nil, err
		}
		sink = ps
	} else {
		sink = &metrics.BlackholeSink{}
	}

	cfg := metrics.DefaultConfig(serviceName)
	cfg.EnableHostname = false
	cfg.EnableRuntimeMetrics = metricsAddr != ""
	m, err := metrics.NewGlobal(cfg, sink)
	if err != nil {
		return nil, err
	}
	log.Debugf("InitializeMetrics: %s", spew.Sdump(cfg))

	if metricsAddr != "" {
		go func() {
			mux := http.NewServeMux()
			mux.Handle("/metrics", promhttp.Handler())
			log.Infof("InitializeMetrics: serving metrics at %v/metrics", metricsAddr)
			if err := http.ListenAndServe(metricsAddr, mux); err != nil {
				log.Errorf("InitializeMetrics: unable to start prometheus server err = %v", err)
			}
		}()
	}
	return m, nil
}
