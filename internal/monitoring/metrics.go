package monitoring

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds all Prometheus metrics for the watcher.
type Metrics struct {
	ChecksTotal   *prometheus.CounterVec
	LoginsTotal   *prometheus.CounterVec
	SolvesTotal   *prometheus.CounterVec
	GradesAlerted prometheus.Counter
}

func NewMetrics() *Metrics {
	return &Metrics{
		ChecksTotal: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "obswatch_checks_total",
			Help: "Completed grade checks by result",
		}, []string{"result"}), // 'ok', 'error'
		LoginsTotal: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "obswatch_logins_total",
			Help: "Portal login attempts by result",
		}, []string{"result"}),
		SolvesTotal: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "obswatch_captcha_solves_total",
			Help: "Captcha solve attempts by tier and result",
		}, []string{"tier", "result"}),
		GradesAlerted: promauto.NewCounter(prometheus.CounterOpts{
			Name: "obswatch_grades_alerted_total",
			Help: "New or changed grades sent to the notifier",
		}),
	}
}

func (m *Metrics) IncCheck(result string) {
	if m == nil {
		return
	}
	m.ChecksTotal.WithLabelValues(result).Inc()
}

func (m *Metrics) IncLogin(result string) {
	if m == nil {
		return
	}
	m.LoginsTotal.WithLabelValues(result).Inc()
}

func (m *Metrics) IncSolve(tier, result string) {
	if m == nil {
		return
	}
	m.SolvesTotal.WithLabelValues(tier, result).Inc()
}

func (m *Metrics) AddGradesAlerted(n int) {
	if m == nil {
		return
	}
	m.GradesAlerted.Add(float64(n))
}
