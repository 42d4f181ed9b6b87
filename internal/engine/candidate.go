package engine

import (
	"github.com/fedihype/fedihype/pkg/mastodon"
)

// Candidate is a status pulled from an origin, carrying its scores through
// the pipeline. RawScore is computed exactly once by the scorer; Score is
// the normalized 0-100 value set once per cycle and used only for ranking.
type Candidate struct {
	Origin   string
	Status   *mastodon.Status
	RawScore float64
	Score    float64
}
