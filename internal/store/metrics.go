package store

import "github.com/prometheus/client_golang/prometheus"

var datasetsStored = prometheus.NewGauge(
	prometheus.GaugeOpts{
		Name: "yieldlab_datasets",
		Help: "Number of datasets currently held in memory.",
	},
)

func init() {
	prometheus.MustRegister(datasetsStored)
}
