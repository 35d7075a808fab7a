package observability

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// KnowledgeCollector exposes travel-time aggregation metrics.
type KnowledgeCollector struct {
	gatherer prometheus.Gatherer

	Reports          *prometheus.CounterVec
	AnalysisDuration prometheus.Histogram
	UpdatedEdges     prometheus.Gauge
	CongestedLength  prometheus.Gauge
	DenseLength      prometheus.Gauge
}

// NewKnowledgeCollector registers knowledge metrics against the provided
// registerer.
func NewKnowledgeCollector(reg prometheus.Registerer) (*KnowledgeCollector, error) {
	reg, gatherer := registry(reg)

	reports, err := register(reg, prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "knowledge_reports_total",
		Help: "Travel-time reports offered to aggregators, labelled by outcome (accepted|rejected).",
	}, []string{"outcome"}), "knowledge_reports_total")
	if err != nil {
		return nil, err
	}
	duration, err := register(reg, prometheus.NewHistogram(prometheus.HistogramOpts{
		Name:    "knowledge_analysis_duration_seconds",
		Help:    "Wall-clock duration of one route cost analysis pass.",
		Buckets: []float64{0.00001, 0.00005, 0.0001, 0.0005, 0.001, 0.005, 0.01, 0.05, 0.1},
	}), "knowledge_analysis_duration_seconds")
	if err != nil {
		return nil, err
	}
	updated, err := register(reg, prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "knowledge_updated_edges",
		Help: "Edge updates applied by the latest analysis pass.",
	}), "knowledge_updated_edges")
	if err != nil {
		return nil, err
	}
	congested, err := register(reg, prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "knowledge_congested_length_meters",
		Help: "Road length classified as congested by the latest analysis pass.",
	}), "knowledge_congested_length_meters")
	if err != nil {
		return nil, err
	}
	dense, err := register(reg, prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "knowledge_dense_length_meters",
		Help: "Road length classified as dense by the latest analysis pass.",
	}), "knowledge_dense_length_meters")
	if err != nil {
		return nil, err
	}

	return &KnowledgeCollector{
		gatherer:         gatherer,
		Reports:          reports,
		AnalysisDuration: duration,
		UpdatedEdges:     updated,
		CongestedLength:  congested,
		DenseLength:      dense,
	}, nil
}

// Gatherer returns the Prometheus gatherer associated with the collector.
func (c *KnowledgeCollector) Gatherer() prometheus.Gatherer {
	if c == nil {
		return nil
	}
	return c.gatherer
}

// Handler exposes a ready-to-use /metrics handler.
func (c *KnowledgeCollector) Handler() http.Handler { return Handler(c.Gatherer()) }

// IncReport counts one offered report.
func (c *KnowledgeCollector) IncReport(accepted bool) {
	if c == nil || c.Reports == nil {
		return
	}
	outcome := "rejected"
	if accepted {
		outcome = "accepted"
	}
	c.Reports.WithLabelValues(outcome).Inc()
}

// ObserveAnalysis records the outcome of an analysis pass.
func (c *KnowledgeCollector) ObserveAnalysis(elapsed time.Duration, updatedEdges int, congestedLength, denseLength float64) {
	if c == nil {
		return
	}
	if c.AnalysisDuration != nil {
		c.AnalysisDuration.Observe(elapsed.Seconds())
	}
	if c.UpdatedEdges != nil {
		c.UpdatedEdges.Set(float64(updatedEdges))
	}
	if c.CongestedLength != nil {
		c.CongestedLength.Set(congestedLength)
	}
	if c.DenseLength != nil {
		c.DenseLength.Set(denseLength)
	}
}
