package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds the bot's prometheus instrumentation.
type Metrics struct {
	CyclesTotal      prometheus.Counter
	CandidatesTotal  prometheus.Counter
	BoostsTotal      prometheus.Counter
	RejectionsTotal  *prometheus.CounterVec
	FetchErrorsTotal *prometheus.CounterVec
}

// New registers the bot metrics on the given registerer.
func New(reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)
	return &Metrics{
		CyclesTotal: factory.NewCounter(prometheus.CounterOpts{
			Name: "fedihype_cycles_total",
			Help: "Completed boost cycles.",
		}),
		CandidatesTotal: factory.NewCounter(prometheus.CounterOpts{
			Name: "fedihype_candidates_total",
			Help: "Candidate statuses collected across all origins.",
		}),
		BoostsTotal: factory.NewCounter(prometheus.CounterOpts{
			Name: "fedihype_boosts_total",
			Help: "Successfully boosted statuses.",
		}),
		RejectionsTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "fedihype_rejections_total",
			Help: "Candidates rejected, by reason.",
		}, []string{"reason"}),
		FetchErrorsTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "fedihype_fetch_errors_total",
			Help: "Origin fetch failures, by origin.",
		}, []string{"origin"}),
	}
}
