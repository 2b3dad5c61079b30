// Package metrics provides internal metrics collection.
// This package is internal and should not be imported by external projects.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"go.uber.org/zap"
)

// Collector 指标收集器
type Collector struct {
	conversationsStarted prometheus.Counter
	conversationsActive  prometheus.Gauge
	terminationsTotal    *prometheus.CounterVec

	turnsTotal   *prometheus.CounterVec
	turnDuration *prometheus.HistogramVec

	archiveDuration *prometheus.HistogramVec
	archiveFailures *prometheus.CounterVec

	logger *zap.Logger
}

// NewCollector registers the Parley metrics on the default Prometheus
// registerer.
func NewCollector(namespace string, logger *zap.Logger) *Collector {
	return newCollectorWith(namespace, prometheus.DefaultRegisterer, logger)
}

func newCollectorWith(namespace string, reg prometheus.Registerer, logger *zap.Logger) *Collector {
	if logger == nil {
		logger = zap.NewNop()
	}
	factory := promauto.With(reg)

	c := &Collector{
		logger: logger.With(zap.String("component", "metrics")),
	}

	c.conversationsStarted = factory.NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "conversations_started_total",
		Help:      "Total number of conversations started",
	})

	c.conversationsActive = factory.NewGauge(prometheus.GaugeOpts{
		Namespace: namespace,
		Name:      "conversations_active",
		Help:      "Number of conversations currently running",
	})

	c.terminationsTotal = factory.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "conversation_terminations_total",
			Help:      "Total number of conversation terminations",
		},
		[]string{"reason"},
	)

	c.turnsTotal = factory.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "turns_total",
			Help:      "Total number of completed turns",
		},
		[]string{"role"},
	)

	c.turnDuration = factory.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "turn_duration_seconds",
			Help:      "Turn duration in seconds",
			Buckets:   []float64{0.1, 0.5, 1, 2, 5, 10, 30, 60, 120},
		},
		[]string{"role"},
	)

	c.archiveDuration = factory.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "transcript_archive_duration_seconds",
			Help:      "Transcript archive write duration in seconds",
			Buckets:   prometheus.DefBuckets,
		},
		[]string{"backend"},
	)

	c.archiveFailures = factory.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "transcript_archive_failures_total",
			Help:      "Total number of failed transcript archive writes",
		},
		[]string{"backend"},
	)

	logger.Info("metrics collector initialized", zap.String("namespace", namespace))

	return c
}

// RecordConversationStarted 记录会话开始
func (c *Collector) RecordConversationStarted() {
	c.conversationsStarted.Inc()
	c.conversationsActive.Inc()
}

// RecordConversationTerminated 记录会话结束
func (c *Collector) RecordConversationTerminated(reason string) {
	c.conversationsActive.Dec()
	c.terminationsTotal.WithLabelValues(reason).Inc()
}

// RecordTurn 记录一个完成的回合
func (c *Collector) RecordTurn(role string, duration time.Duration) {
	c.turnsTotal.WithLabelValues(role).Inc()
	c.turnDuration.WithLabelValues(role).Observe(duration.Seconds())
}

// RecordArchive 记录转录归档写入
func (c *Collector) RecordArchive(backend string, duration time.Duration, err error) {
	c.archiveDuration.WithLabelValues(backend).Observe(duration.Seconds())
	if err != nil {
		c.archiveFailures.WithLabelValues(backend).Inc()
	}
}
