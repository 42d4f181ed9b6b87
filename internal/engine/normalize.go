package engine

// normalize maps the batch's raw scores onto [0, 100] with min-max scaling.
// When every raw score is equal there is no spread to rank by, so all
// candidates get 100. Normalized scores order the admission walk; the quality
// gate always uses raw scores.
func normalize(cands []*Candidate) {
	if len(cands) == 0 {
		return
	}

	lo, hi := cands[0].RawScore, cands[0].RawScore
	for _, c := range cands[1:] {
		if c.RawScore < lo {
			lo = c.RawScore
		}
		if c.RawScore > hi {
			hi = c.RawScore
		}
	}

	if hi == lo {
		for _, c := range cands {
			c.Score = 100
		}
		return
	}

	span := hi - lo
	for _, c := range cands {
		c.Score = (c.RawScore - lo) / span * 100
	}
}
