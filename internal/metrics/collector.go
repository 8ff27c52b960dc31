package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

// QueueStats provides the collector access to live queue state.
type QueueStats interface {
	Size() int
	Capacity() int
	Utilization() float64
}

// StoreSizer reports the entry count of a shared store (DLQ, registry).
type StoreSizer interface {
	Size() int
}

// Collector implements prometheus.Collector to read live gauges at scrape
// time instead of tracking them incrementally.
type Collector struct {
	queue    QueueStats
	dlq      StoreSizer
	registry StoreSizer

	queueDepth       *prometheus.Desc
	queueCapacity    *prometheus.Desc
	queueUtilization *prometheus.Desc
	dlqEntries       *prometheus.Desc
	registryEntries  *prometheus.Desc
}

// NewCollector creates a collector over the pipeline's shared stores. Any
// argument may be nil (its gauges report 0).
func NewCollector(queue QueueStats, dlq, registry StoreSizer) *Collector {
	return &Collector{
		queue:    queue,
		dlq:      dlq,
		registry: registry,
		queueDepth: prometheus.NewDesc(
			prometheus.BuildFQName(namespace, "queue", "depth"),
			"Jobs currently buffered in the bounded queue.",
			nil, nil,
		),
		queueCapacity: prometheus.NewDesc(
			prometheus.BuildFQName(namespace, "queue", "capacity"),
			"Configured capacity of the bounded queue.",
			nil, nil,
		),
		queueUtilization: prometheus.NewDesc(
			prometheus.BuildFQName(namespace, "queue", "utilization"),
			"Queue depth divided by capacity.",
			nil, nil,
		),
		dlqEntries: prometheus.NewDesc(
			prometheus.BuildFQName(namespace, "dlq", "entries"),
			"Jobs currently in the dead-letter store.",
			nil, nil,
		),
		registryEntries: prometheus.NewDesc(
			prometheus.BuildFQName(namespace, "registry", "entries"),
			"Content hashes currently registered.",
			nil, nil,
		),
	}
}

func (c *Collector) Describe(ch chan<- *prometheus.Desc) {
	ch <- c.queueDepth
	ch <- c.queueCapacity
	ch <- c.queueUtilization
	ch <- c.dlqEntries
	ch <- c.registryEntries
}

func (c *Collector) Collect(ch chan<- prometheus.Metric) {
	if c.queue != nil {
		ch <- prometheus.MustNewConstMetric(c.queueDepth, prometheus.GaugeValue, float64(c.queue.Size()))
		ch <- prometheus.MustNewConstMetric(c.queueCapacity, prometheus.GaugeValue, float64(c.queue.Capacity()))
		ch <- prometheus.MustNewConstMetric(c.queueUtilization, prometheus.GaugeValue, c.queue.Utilization())
	} else {
		ch <- prometheus.MustNewConstMetric(c.queueDepth, prometheus.GaugeValue, 0)
		ch <- prometheus.MustNewConstMetric(c.queueCapacity, prometheus.GaugeValue, 0)
		ch <- prometheus.MustNewConstMetric(c.queueUtilization, prometheus.GaugeValue, 0)
	}
	if c.dlq != nil {
		ch <- prometheus.MustNewConstMetric(c.dlqEntries, prometheus.GaugeValue, float64(c.dlq.Size()))
	} else {
		ch <- prometheus.MustNewConstMetric(c.dlqEntries, prometheus.GaugeValue, 0)
	}
	if c.registry != nil {
		ch <- prometheus.MustNewConstMetric(c.registryEntries, prometheus.GaugeValue, float64(c.registry.Size()))
	} else {
		ch <- prometheus.MustNewConstMetric(c.registryEntries, prometheus.GaugeValue, 0)
	}
}
