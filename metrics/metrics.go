// Package metrics exports omniarchive stream and retention events as
// Prometheus metrics.
//
//	c, err := metrics.NewCollector(prometheus.DefaultRegisterer, "omniarchive")
//	arc, err := omniarchive.New(store, bucket, prefix, omniarchive.WithObserver(c))
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"

	"github.com/grokify/omniarchive"
)

const (
	kiB = float64(1024)
	miB = 1024 * kiB
	giB = 1024 * miB
)

// Collector implements omniarchive.Observer with Prometheus metrics.
type Collector struct {
	fetches   *prometheus.CounterVec
	flushes   *prometheus.CounterVec
	evictions *prometheus.CounterVec
	sizes     *prometheus.HistogramVec
}

// NewCollector creates the metrics and registers them with reg.
// A nil reg uses prometheus.DefaultRegisterer.
func NewCollector(reg prometheus.Registerer, namespace string) (*Collector, error) {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}

	c := &Collector{
		fetches: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "objects_fetched_total",
			Help:      "Remote objects fetched by streams, by bucket and result",
		}, []string{"bucket", "result"}),
		flushes: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "objects_flushed_total",
			Help:      "Stream buffers uploaded, by bucket",
		}, []string{"bucket"}),
		evictions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "versions_evicted_total",
			Help:      "Versions deleted by retention sweeps, by bucket and result",
		}, []string{"bucket", "result"}),
		sizes: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "object_size_bytes",
			Help:      "Sizes of fetched and flushed objects",
			Buckets:   []float64{kiB, 64 * kiB, miB, 16 * miB, 256 * miB, giB, 5 * giB},
		}, []string{"op"}),
	}

	for _, m := range []prometheus.Collector{c.fetches, c.flushes, c.evictions, c.sizes} {
		if err := reg.Register(m); err != nil {
			return nil, err
		}
	}
	return c, nil
}

// MustNewCollector is like NewCollector but panics on registration errors.
func MustNewCollector(reg prometheus.Registerer, namespace string) *Collector {
	c, err := NewCollector(reg, namespace)
	if err != nil {
		panic(err)
	}
	return c
}

// ObjectFetched implements omniarchive.Observer.
func (c *Collector) ObjectFetched(bucket, _ string, size int, found bool) {
	if !found {
		c.fetches.WithLabelValues(bucket, "absent").Inc()
		return
	}
	c.fetches.WithLabelValues(bucket, "found").Inc()
	c.sizes.WithLabelValues("fetch").Observe(float64(size))
}

// ObjectFlushed implements omniarchive.Observer.
func (c *Collector) ObjectFlushed(bucket, _ string, size int) {
	c.flushes.WithLabelValues(bucket).Inc()
	c.sizes.WithLabelValues("flush").Observe(float64(size))
}

// VersionEvicted implements omniarchive.Observer.
func (c *Collector) VersionEvicted(bucket, _ string, err error) {
	result := "deleted"
	if err != nil {
		result = "failed"
	}
	c.evictions.WithLabelValues(bucket, result).Inc()
}

var _ omniarchive.Observer = (*Collector)(nil)
