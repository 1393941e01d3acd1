package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

var (
	taskTransitions = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "task_transitions_total",
		Help:      "Task state transitions by target state.",
	}, []string{"state"})

	workerInvocations = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "worker_invocations_total",
		Help:      "Worker invocations by mode and outcome.",
	}, []string{"mode", "outcome"})

	workerLatency = prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: namespace,
		Name:      "worker_invocation_duration_seconds",
		Help:      "Worker invocation latency in seconds.",
		Buckets:   prometheus.ExponentialBuckets(0.1, 2, 10),
	}, []string{"mode"})
)

// ObserveTaskTransition 记录任务进入某个状态。
func ObserveTaskTransition(state string) {
	taskTransitions.WithLabelValues(state).Inc()
}

// WorkerObserver 把后端调用结果写入指标，满足 worker.Observer。
type WorkerObserver struct{}

// ObserveInvocation 实现 worker.Observer。
func (WorkerObserver) ObserveInvocation(mode string, outcome string, elapsed time.Duration) {
	workerInvocations.WithLabelValues(mode, outcome).Inc()
	workerLatency.WithLabelValues(mode).Observe(elapsed.Seconds())
}
