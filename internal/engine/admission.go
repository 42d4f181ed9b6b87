package engine

import (
	"context"
	"sort"
	"strings"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/fedihype/fedihype/internal/config"
	"github.com/fedihype/fedihype/internal/history"
	"github.com/fedihype/fedihype/pkg/mastodon"
	"github.com/fedihype/fedihype/pkg/publisher"
)

// Reason codes a candidate's rejection. Rejections are expected outcomes,
// not errors.
type Reason string

const (
	ReasonNoMedia          Reason = "no-media"
	ReasonSensitive        Reason = "sensitive-without-cw"
	ReasonLowReblogs       Reason = "low-reblogs"
	ReasonLowFavourites    Reason = "low-favourites"
	ReasonLowReplies       Reason = "low-replies"
	ReasonLanguage         Reason = "language"
	ReasonServerFiltered   Reason = "server-filtered"
	ReasonNotOriginal      Reason = "not-original"
	ReasonDuplicate        Reason = "duplicate"
	ReasonBelowThreshold   Reason = "below-threshold"
	ReasonOriginLimit      Reason = "origin-limit"
	ReasonAuthorDiversity  Reason = "author-diversity"
	ReasonHashtagDiversity Reason = "hashtag-diversity"
	ReasonPublishNotFound  Reason = "publish-not-found"
	ReasonPublishDenied    Reason = "publish-denied"
	ReasonPublishError     Reason = "publish-error"
)

// authorDiversityWindow is the rolling window within which an author is not
// boosted twice. This is deliberately not a calendar-day reset.
const authorDiversityWindow = 24 * time.Hour

// Result is one cycle's admission outcome.
type Result struct {
	Admitted []*Candidate
	Rejected map[string]Reason // canonical URL -> reason
}

// Controller filters, ranks, and publishes scored candidates against the
// boost history, mutating history only after a confirmed publish.
type Controller struct {
	cfg          config.AdmissionConfig
	minRawScore  float64
	originLimits map[string]int
	pub          publisher.Publisher
	log          *logrus.Logger

	// Now is the clock used for diversity windows and quota counters.
	// Overridable in tests; nil means time.Now.
	Now func() time.Time
}

// NewController creates an admission controller. originLimits maps origin
// names to their per-run boost limits (0 or absent = unlimited).
func NewController(cfg config.AdmissionConfig, minRawScore float64, originLimits map[string]int, pub publisher.Publisher, log *logrus.Logger) *Controller {
	return &Controller{
		cfg:          cfg,
		minRawScore:  minRawScore,
		originLimits: originLimits,
		pub:          pub,
		log:          log,
	}
}

func (c *Controller) now() time.Time {
	if c.Now != nil {
		return c.Now()
	}
	return time.Now()
}

// Admit runs the full admission pipeline over one cycle's scored candidates.
//
// Per candidate the rules short-circuit on the first failure: content
// filters, duplicate suppression, then the raw-score quality gate. Survivors
// are normalized and ranked (normalized score desc, newer post wins ties),
// then consumed greedily under origin limits, diversity rules, and quota
// caps. Caps terminate the walk; every other rule only skips the candidate.
func (c *Controller) Admit(ctx context.Context, cands []*Candidate, hist *history.Store) *Result {
	res := &Result{Rejected: make(map[string]Reason)}

	var survivors []*Candidate
	for _, cand := range cands {
		url := cand.Status.CanonicalURL()
		if reason, rejected := c.contentFilter(cand.Status); rejected {
			res.Rejected[url] = reason
			continue
		}
		if cand.Status.Reblogged || hist.IsSeen(url) {
			res.Rejected[url] = ReasonDuplicate
			continue
		}
		if c.minRawScore > 0 && cand.RawScore < c.minRawScore {
			res.Rejected[url] = ReasonBelowThreshold
			continue
		}
		survivors = append(survivors, cand)
	}

	if len(survivors) == 0 {
		// When nothing in the batch clears the filters and quality
		// threshold the cycle is skipped entirely. That is a normal,
		// empty cycle, not an error.
		if len(cands) > 0 {
			c.log.WithField("candidates", len(cands)).Info("no qualifying candidates, skipping cycle")
		}
		return res
	}

	normalize(survivors)
	sort.SliceStable(survivors, func(i, j int) bool {
		if survivors[i].Score != survivors[j].Score {
			return survivors[i].Score > survivors[j].Score
		}
		return survivors[i].Status.CreatedAt.After(survivors[j].Status.CreatedAt)
	})

	perOrigin := make(map[string]int)
	perTag := make(map[string]int)

	for _, cand := range survivors {
		if len(res.Admitted) >= c.cfg.MaxBoostsPerRun {
			c.log.Debug("max boosts per run reached, stopping")
			break
		}
		now := c.now()
		if hist.HourCount(now) >= c.cfg.HourlyCap || hist.DayCount(now) >= c.cfg.DailyCap {
			c.log.Info("public cap reached, stopping")
			break
		}

		status := cand.Status
		url := status.CanonicalURL()

		// The same status can surface from two origins in one batch; only
		// the first-ranked occurrence may be admitted.
		if hist.IsSeen(url) {
			res.Rejected[url] = ReasonDuplicate
			continue
		}

		if limit := c.originLimits[cand.Origin]; limit > 0 && perOrigin[cand.Origin] >= limit {
			res.Rejected[url] = ReasonOriginLimit
			continue
		}

		if c.cfg.AuthorDiversity {
			if last, ok := hist.LastBoost(status.Account.Acct); ok && now.Sub(last) < authorDiversityWindow {
				res.Rejected[url] = ReasonAuthorDiversity
				continue
			}
		}

		if c.cfg.HashtagDiversity && c.hashtagLimitHit(status, perTag) {
			res.Rejected[url] = ReasonHashtagDiversity
			continue
		}

		outcome := c.pub.Boost(ctx, status)
		if outcome != publisher.Success {
			// A failed publish never consumes quota or diversity slots;
			// the walk continues with the next-best candidate.
			res.Rejected[url] = publishReason(outcome)
			continue
		}

		hist.MarkSeen(url)
		hist.RecordBoost(status.Account.Acct, now)
		hist.CountBoost(now)
		perOrigin[cand.Origin]++
		for _, tag := range status.TagNames() {
			perTag[tag]++
		}
		res.Admitted = append(res.Admitted, cand)

		c.log.WithFields(logrus.Fields{
			"origin": cand.Origin,
			"author": status.Account.Acct,
			"score":  cand.Score,
			"url":    url,
		}).Info("boosted")
	}

	return res
}

// contentFilter applies the per-status content rules in order and returns
// the first failing rule's reason.
func (c *Controller) contentFilter(status *mastodon.Status) (Reason, bool) {
	if c.cfg.RequireMedia && !status.HasMedia() {
		return ReasonNoMedia, true
	}
	if c.cfg.SkipSensitiveWithoutCW && status.Sensitive && strings.TrimSpace(status.SpoilerText) == "" {
		return ReasonSensitive, true
	}
	if status.ReblogsCount < c.cfg.MinReblogs {
		return ReasonLowReblogs, true
	}
	if status.FavouritesCount < c.cfg.MinFavourites {
		return ReasonLowFavourites, true
	}
	if status.RepliesCount < c.cfg.MinReplies {
		return ReasonLowReplies, true
	}
	if len(c.cfg.Languages) > 0 && !contains(c.cfg.Languages, strings.ToLower(status.Language)) {
		return ReasonLanguage, true
	}
	if server := status.Account.Server(); server != "" && contains(c.cfg.FilteredServers, server) {
		return ReasonServerFiltered, true
	}
	if status.Reblog != nil {
		return ReasonNotOriginal, true
	}
	return "", false
}

func (c *Controller) hashtagLimitHit(status *mastodon.Status, perTag map[string]int) bool {
	for _, tag := range status.TagNames() {
		if perTag[tag] >= c.cfg.MaxBoostsPerHashtagPerRun {
			return true
		}
	}
	return false
}

func publishReason(outcome publisher.Outcome) Reason {
	switch outcome {
	case publisher.NotFound:
		return ReasonPublishNotFound
	case publisher.PermissionDenied:
		return ReasonPublishDenied
	default:
		return ReasonPublishError
	}
}

func contains(list []string, v string) bool {
	for _, item := range list {
		if item == v {
			return true
		}
	}
	return false
}
