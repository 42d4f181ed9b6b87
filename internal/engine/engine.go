package engine

import (
	"context"
	"sync"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/fedihype/fedihype/internal/history"
	"github.com/fedihype/fedihype/internal/metrics"
	"github.com/fedihype/fedihype/pkg/source"
)

// Engine runs one full boost cycle: fetch candidates from every origin,
// score them, run admission (which publishes), and flush history.
type Engine struct {
	origins []source.Origin
	scorer  *Scorer
	ctrl    *Controller
	hist    *history.Store
	met     *metrics.Metrics
	log     *logrus.Logger

	mu   sync.Mutex
	last CycleSummary
}

// CycleSummary describes the most recent completed cycle.
type CycleSummary struct {
	RanAt     time.Time      `json:"ran_at"`
	Collected int            `json:"collected"`
	Admitted  int            `json:"admitted"`
	Rejected  map[string]int `json:"rejected"`
}

// New creates a cycle engine.
func New(origins []source.Origin, scorer *Scorer, ctrl *Controller, hist *history.Store, met *metrics.Metrics, log *logrus.Logger) *Engine {
	return &Engine{
		origins: origins,
		scorer:  scorer,
		ctrl:    ctrl,
		hist:    hist,
		met:     met,
		log:     log,
	}
}

// RunCycle executes one fetch-score-admit-publish pass. Origin fetch errors
// and publish failures are per-candidate concerns and never abort the cycle;
// an empty cycle is a normal outcome.
func (e *Engine) RunCycle(ctx context.Context) (*Result, error) {
	now := e.ctrl.now()
	if e.hist.HourCount(now) >= e.ctrl.cfg.HourlyCap || e.hist.DayCount(now) >= e.ctrl.cfg.DailyCap {
		e.log.Info("public cap reached, skipping cycle")
		return &Result{Rejected: make(map[string]Reason)}, nil
	}

	cands := e.collect(ctx)
	e.log.WithField("candidates", len(cands)).Info("collected candidates")
	e.met.CandidatesTotal.Add(float64(len(cands)))

	scoredAt := e.ctrl.now()
	for _, cand := range cands {
		cand.RawScore = e.scorer.Score(cand.Status, scoredAt)
	}

	res := e.ctrl.Admit(ctx, cands, e.hist)

	if err := e.hist.Save(); err != nil {
		// Degraded mode: boosting still works, duplicate and diversity
		// guarantees are weakened until persistence recovers.
		e.log.WithError(err).Warn("could not persist history state")
	}

	e.met.CyclesTotal.Inc()
	e.met.BoostsTotal.Add(float64(len(res.Admitted)))
	rejected := make(map[string]int)
	for _, reason := range res.Rejected {
		rejected[string(reason)]++
		e.met.RejectionsTotal.WithLabelValues(string(reason)).Inc()
	}

	e.mu.Lock()
	e.last = CycleSummary{
		RanAt:     time.Now().UTC(),
		Collected: len(cands),
		Admitted:  len(res.Admitted),
		Rejected:  rejected,
	}
	e.mu.Unlock()

	e.log.WithFields(logrus.Fields{
		"admitted": len(res.Admitted),
		"rejected": len(res.Rejected),
	}).Info("boost cycle complete")
	return res, nil
}

// collect fetches all origins concurrently and returns the combined batch.
// Scoring and normalization need the whole batch, so collection completes
// before any scoring starts.
func (e *Engine) collect(ctx context.Context) []*Candidate {
	var (
		mu    sync.Mutex
		cands []*Candidate
		wg    sync.WaitGroup
		sem   = make(chan struct{}, 4)
	)

	for _, origin := range e.origins {
		wg.Add(1)
		go func(origin source.Origin) {
			defer wg.Done()
			sem <- struct{}{}
			defer func() { <-sem }()

			statuses, err := origin.Fetch(ctx)
			if err != nil {
				e.log.WithField("origin", origin.Name()).WithError(err).Error("fetch failed")
				e.met.FetchErrorsTotal.WithLabelValues(origin.Name()).Inc()
				return
			}
			e.log.WithFields(logrus.Fields{
				"origin":   origin.Name(),
				"statuses": len(statuses),
			}).Debug("fetched")

			mu.Lock()
			for _, s := range statuses {
				cands = append(cands, &Candidate{Origin: origin.Name(), Status: s})
			}
			mu.Unlock()
		}(origin)
	}

	wg.Wait()
	return cands
}

// LastCycle returns a snapshot of the most recent cycle for the status API.
func (e *Engine) LastCycle() CycleSummary {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.last
}
