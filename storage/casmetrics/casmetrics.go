// Package casmetrics instruments a storage.CAS with Prometheus metrics.
package casmetrics

import (
	"errors"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"xdao.co/ocid"
	"xdao.co/ocid/storage"
)

// Result label values.
const (
	ResultOK       = "ok"
	ResultNotFound = "not_found"
	ResultMismatch = "mismatch"
	ResultInvalid  = "invalid"
	ResultError    = "error"
)

// Metrics holds the collectors shared by every wrapped backend.
type Metrics struct {
	ops      *prometheus.CounterVec
	duration *prometheus.HistogramVec
	objBytes *prometheus.HistogramVec
}

func New(namespace string) *Metrics {
	return &Metrics{
		ops: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "cas",
			Name:      "operations_total",
			Help:      "CAS operations by backend, operation and result",
		}, []string{"backend", "op", "result"}),
		duration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "cas",
			Name:      "operation_duration_seconds",
			Help:      "CAS operation latency by backend and operation",
			Buckets:   prometheus.ExponentialBuckets(0.0001, 4, 10),
		}, []string{"backend", "op"}),
		objBytes: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "cas",
			Name:      "object_bytes",
			Help:      "Sizes of objects written and read",
			Buckets:   prometheus.ExponentialBuckets(64, 4, 12),
		}, []string{"backend", "op"}),
	}
}

// Register adds the collectors to reg.
func (m *Metrics) Register(reg prometheus.Registerer) error {
	for _, c := range []prometheus.Collector{m.ops, m.duration, m.objBytes} {
		if err := reg.Register(c); err != nil {
			return err
		}
	}
	return nil
}

// Wrap returns cas instrumented under the given backend label. The result
// implements storage.Lister exactly when cas does.
func (m *Metrics) Wrap(backend string, cas storage.CAS) storage.CAS {
	w := &instrumented{m: m, backend: backend, cas: cas}
	if l, ok := cas.(storage.Lister); ok {
		return &listing{instrumented: w, lister: l}
	}
	return w
}

type instrumented struct {
	m       *Metrics
	backend string
	cas     storage.CAS
}

func (c *instrumented) Put(data []byte) (ocid.V0, error) {
	start := time.Now()
	id, err := c.cas.Put(data)
	c.observe("put", start, err)
	if err == nil {
		c.m.objBytes.WithLabelValues(c.backend, "put").Observe(float64(len(data)))
	}
	return id, err
}

func (c *instrumented) Get(id ocid.V0) ([]byte, error) {
	start := time.Now()
	b, err := c.cas.Get(id)
	c.observe("get", start, err)
	if err == nil {
		c.m.objBytes.WithLabelValues(c.backend, "get").Observe(float64(len(b)))
	}
	return b, err
}

func (c *instrumented) Has(id ocid.V0) bool {
	start := time.Now()
	ok := c.cas.Has(id)
	var err error
	if !ok {
		err = storage.ErrNotFound
	}
	c.observe("has", start, err)
	return ok
}

func (c *instrumented) observe(op string, start time.Time, err error) {
	c.m.duration.WithLabelValues(c.backend, op).Observe(time.Since(start).Seconds())
	c.m.ops.WithLabelValues(c.backend, op, result(err)).Inc()
}

type listing struct {
	*instrumented
	lister storage.Lister
}

func (c *listing) List() ([]ocid.V0, error) {
	start := time.Now()
	ids, err := c.lister.List()
	c.observe("list", start, err)
	return ids, err
}

func result(err error) string {
	switch {
	case err == nil:
		return ResultOK
	case errors.Is(err, storage.ErrNotFound):
		return ResultNotFound
	case errors.Is(err, storage.ErrIDMismatch), errors.Is(err, storage.ErrImmutable):
		return ResultMismatch
	case errors.Is(err, storage.ErrInvalidID), errors.Is(err, storage.ErrEmptyContent):
		return ResultInvalid
	default:
		return ResultError
	}
}
