package replication

import (
    "github.com/prometheus/client_golang/prometheus"
)

var prometheusOutstandingFutures = prometheus.NewGauge(prometheus.GaugeOpts{
    Namespace: "atomickv",
    Subsystem: "replication",
    Name: "outstanding_futures",
    Help: "Number of update futures awaiting backup acknowledgment",
})

var prometheusSends = prometheus.NewCounterVec(prometheus.CounterOpts{
    Namespace: "atomickv",
    Subsystem: "replication",
    Name: "sends_total",
    Help: "Number of batched update requests sent to backup nodes",
}, []string{ "channel" })

var prometheusSendFailures = prometheus.NewCounterVec(prometheus.CounterOpts{
    Namespace: "atomickv",
    Subsystem: "replication",
    Name: "send_failures_total",
    Help: "Number of batched update requests that could not be delivered",
}, []string{ "reason" })

func init() {
    prometheus.MustRegister(prometheusOutstandingFutures)
    prometheus.MustRegister(prometheusSends)
    prometheus.MustRegister(prometheusSendFailures)
}
