package metrics

import "github.com/prometheus/client_golang/prometheus"

// TurnMetrics exposes counters/histograms for the turn pipeline.
type TurnMetrics struct {
	turnsTotal         *prometheus.CounterVec
	resetsTotal        *prometheus.CounterVec
	judgeParseFailures *prometheus.CounterVec
	confidenceScore    prometheus.Histogram
	contaminationScore prometheus.Histogram
}

func NewTurnMetrics(reg prometheus.Registerer) *TurnMetrics {
	m := &TurnMetrics{
		turnsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "aide",
			Subsystem: "conversation",
			Name:      "turns_total",
			Help:      "Total processed turns",
		}, []string{"status"}),
		resetsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "aide",
			Subsystem: "conversation",
			Name:      "context_resets_total",
			Help:      "Total context resets by trigger",
		}, []string{"trigger"}),
		judgeParseFailures: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "aide",
			Subsystem: "conversation",
			Name:      "judge_parse_failures_total",
			Help:      "Structured judgments that fell back to their neutral default",
		}, []string{"judge"}),
		confidenceScore: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: "aide",
			Subsystem: "conversation",
			Name:      "verification_confidence",
			Help:      "Verifier confidence scores",
			Buckets:   prometheus.LinearBuckets(0, 10, 11),
		}),
		contaminationScore: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: "aide",
			Subsystem: "conversation",
			Name:      "contamination_score",
			Help:      "Contamination detector scores",
			Buckets:   prometheus.LinearBuckets(0, 10, 11),
		}),
	}
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	reg.MustRegister(m.turnsTotal, m.resetsTotal, m.judgeParseFailures, m.confidenceScore, m.contaminationScore)
	return m
}

func (m *TurnMetrics) ObserveTurn(status string) {
	if m == nil {
		return
	}
	m.turnsTotal.WithLabelValues(status).Inc()
}

func (m *TurnMetrics) ObserveReset(trigger string) {
	if m == nil {
		return
	}
	m.resetsTotal.WithLabelValues(trigger).Inc()
}

func (m *TurnMetrics) ObserveJudgeParseFailure(judge string) {
	if m == nil {
		return
	}
	m.judgeParseFailures.WithLabelValues(judge).Inc()
}

func (m *TurnMetrics) ObserveConfidence(score int) {
	if m == nil {
		return
	}
	m.confidenceScore.Observe(float64(score))
}

func (m *TurnMetrics) ObserveContamination(score int) {
	if m == nil {
		return
	}
	m.contaminationScore.Observe(float64(score))
}
