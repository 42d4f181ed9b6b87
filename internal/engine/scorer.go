package engine

import (
	"math"
	"regexp"
	"strings"
	"time"

	"github.com/fedihype/fedihype/internal/config"
	"github.com/fedihype/fedihype/pkg/mastodon"
)

// Scorer computes the raw quality score of a single status. Scoring is
// deterministic and independent of the rest of the batch.
type Scorer struct {
	cfg config.ScoringConfig
}

// NewScorer creates a scorer for one cycle's immutable configuration.
func NewScorer(cfg config.ScoringConfig) *Scorer {
	return &Scorer{cfg: cfg}
}

// Score returns the raw score of the status at the given time. The result
// may be negative after penalties; it is stored verbatim so the quality gate
// always compares against the pre-normalization value.
func (s *Scorer) Score(status *mastodon.Status, now time.Time) float64 {
	tags := status.TagNames()

	tagScore := 0.0
	for _, tag := range tags {
		tagScore += s.cfg.HashtagScores[tag]
	}
	tagScore += s.relatedScore(status, tags)

	engagement := math.Log1p(float64(status.ReblogsCount))*2 +
		math.Log1p(float64(status.FavouritesCount))

	mediaBonus := 0.0
	if status.HasMedia() {
		mediaBonus = s.cfg.PreferMedia
	}

	score := tagScore + engagement + mediaBonus - s.spamPenalty(status.Content)

	if s.cfg.AgeDecay.Enabled && s.cfg.AgeDecay.HalfLifeHours > 0 {
		ageHours := now.Sub(status.CreatedAt).Hours()
		if ageHours > 0 {
			score *= math.Pow(0.5, ageHours/s.cfg.AgeDecay.HalfLifeHours)
		}
	}
	return score
}

// relatedScore awards a fraction of a main hashtag's weight when the post
// does not carry the hashtag itself but mentions one of its related terms.
// Main hashtags and their terms are scanned in configuration declaration
// order; the first matching term wins and ends the scan for that hashtag.
func (s *Scorer) relatedScore(status *mastodon.Status, tags []string) float64 {
	if len(s.cfg.RelatedHashtags) == 0 {
		return 0
	}

	tagSet := make(map[string]bool, len(tags))
	for _, t := range tags {
		tagSet[t] = true
	}
	haystack := strings.ToLower(status.Content) + " " + strings.Join(tags, " ")

	bonus := 0.0
	for _, rh := range s.cfg.RelatedHashtags {
		if tagSet[rh.Hashtag] {
			continue // already scored directly
		}
		base := s.cfg.HashtagScores[rh.Hashtag]
		if base <= 0 {
			continue
		}
		for _, term := range rh.Terms {
			if strings.Contains(haystack, term.Term) {
				bonus += base * term.Multiplier
				break
			}
		}
	}
	return bonus
}

func (s *Scorer) spamPenalty(content string) float64 {
	penalty := 0.0
	if excess := countEmojis(content) - s.cfg.Spam.EmojiThreshold; excess > 0 {
		penalty += float64(excess) * s.cfg.Spam.EmojiPenalty
	}
	if s.cfg.Spam.LinkPenalty > 0 && hasLink(content) {
		penalty += s.cfg.Spam.LinkPenalty
	}
	return penalty
}

var linkPattern = regexp.MustCompile(`https?://[^\s<>"]+|www\.[^\s<>"]+`)

func hasLink(content string) bool {
	return linkPattern.MatchString(content)
}

func countEmojis(content string) int {
	count := 0
	for _, r := range content {
		if isEmoji(r) {
			count++
		}
	}
	return count
}

func isEmoji(r rune) bool {
	switch {
	case r >= 0x1F600 && r <= 0x1F64F, // emoticons
		r >= 0x1F300 && r <= 0x1F5FF, // symbols and pictographs
		r >= 0x1F680 && r <= 0x1F6FF, // transport and map symbols
		r >= 0x1F1E0 && r <= 0x1F1FF, // regional indicators
		r >= 0x2702 && r <= 0x27B0, // dingbats
		r >= 0x1F900 && r <= 0x1F9FF: // supplemental symbols
		return true
	}
	return false
}
