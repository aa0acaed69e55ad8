package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const (
	deepReport = "deep_report"

	researchSubmissionsTotal = "research_submissions_total"
	researchPollsTotal       = "research_polls_total"
	trackingOutcomesTotal    = "tracking_outcomes_total"
	activeTrackers           = "active_trackers"
	documentsCreatedTotal    = "documents_created_total"

	// Labels
	resultLabel  = "result"
	statusLabel  = "status"
	outcomeLabel = "outcome"
)

/**
* Metrics definition
**/
var researchSubmissionsMetric = prometheus.NewCounterVec(
	prometheus.CounterOpts{
		Subsystem: deepReport,
		Name:      researchSubmissionsTotal,
		Help:      "number of research job submissions by result",
	},
	[]string{resultLabel},
)

var researchPollsMetric = prometheus.NewCounterVec(
	prometheus.CounterOpts{
		Subsystem: deepReport,
		Name:      researchPollsTotal,
		Help:      "number of successful research status reads by observed status",
	},
	[]string{statusLabel},
)

var trackingOutcomesMetric = prometheus.NewCounterVec(
	prometheus.CounterOpts{
		Subsystem: deepReport,
		Name:      trackingOutcomesTotal,
		Help:      "number of finished tracking tasks by outcome",
	},
	[]string{outcomeLabel},
)

var activeTrackersMetric = prometheus.NewGauge(
	prometheus.GaugeOpts{
		Subsystem: deepReport,
		Name:      activeTrackers,
		Help:      "number of reports currently being tracked",
	},
)

var documentsCreatedMetric = prometheus.NewCounterVec(
	prometheus.CounterOpts{
		Subsystem: deepReport,
		Name:      documentsCreatedTotal,
		Help:      "number of google docs generation attempts by result",
	},
	[]string{resultLabel},
)

func IncreaseResearchSubmissions(result string) {
	researchSubmissionsMetric.With(prometheus.Labels{resultLabel: result}).Inc()
}

func IncreaseResearchPolls(status string) {
	researchPollsMetric.With(prometheus.Labels{statusLabel: status}).Inc()
}

func IncreaseTrackingOutcome(outcome string) {
	trackingOutcomesMetric.With(prometheus.Labels{outcomeLabel: outcome}).Inc()
}

func SetActiveTrackers(count int) {
	activeTrackersMetric.Set(float64(count))
}

func IncreaseDocumentsCreated(result string) {
	documentsCreatedMetric.With(prometheus.Labels{resultLabel: result}).Inc()
}

// Handler serves the default registry.
func Handler() http.Handler {
	return promhttp.Handler()
}

func init() {
	registerMetrics()
}

func registerMetrics() {
	prometheus.MustRegister(researchSubmissionsMetric)
	prometheus.MustRegister(researchPollsMetric)
	prometheus.MustRegister(trackingOutcomesMetric)
	prometheus.MustRegister(activeTrackersMetric)
	prometheus.MustRegister(documentsCreatedMetric)
}
