package storage

import (
	"github.com/prometheus/client_golang/prometheus"
)

var prometheusStorageErrors = prometheus.NewCounterVec(prometheus.CounterOpts{
	Namespace: "atomickv",
	Subsystem: "storage",
	Name:      "errors_total",
	Help:      "Number of errors encountered by the storage driver",
}, []string{"operation", "file"})

func init() {
	prometheus.MustRegister(prometheusStorageErrors)
}

func prometheusRecordStorageError(operation string, file string) {
	prometheusStorageErrors.WithLabelValues(operation, file).Inc()
}
