package engine

import (
	"context"
	"fmt"
	"io"
	"testing"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fedihype/fedihype/internal/config"
	"github.com/fedihype/fedihype/internal/history"
	"github.com/fedihype/fedihype/pkg/mastodon"
	"github.com/fedihype/fedihype/pkg/publisher"
)

var testNow = time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)

type fakePublisher struct {
	outcomes map[string]publisher.Outcome // url -> outcome, default Success
	boosted  []string
}

func (f *fakePublisher) Boost(ctx context.Context, status *mastodon.Status) publisher.Outcome {
	url := status.CanonicalURL()
	f.boosted = append(f.boosted, url)
	if o, ok := f.outcomes[url]; ok {
		return o
	}
	return publisher.Success
}

func quietLogger() *logrus.Logger {
	log := logrus.New()
	log.SetOutput(io.Discard)
	return log
}

func testAdmissionConfig() config.AdmissionConfig {
	return config.AdmissionConfig{
		DailyCap:        10,
		HourlyCap:       10,
		MaxBoostsPerRun: 10,
		AuthorDiversity: true,
	}
}

func newTestController(cfg config.AdmissionConfig, minRaw float64, originLimits map[string]int, pub publisher.Publisher) *Controller {
	ctrl := NewController(cfg, minRaw, originLimits, pub, quietLogger())
	ctrl.Now = func() time.Time { return testNow }
	return ctrl
}

func candidate(origin, id, acct string, raw float64) *Candidate {
	return &Candidate{
		Origin:   origin,
		RawScore: raw,
		Status: &mastodon.Status{
			ID:        id,
			URL:       fmt.Sprintf("https://%s/@%s/%s", origin, acct, id),
			URI:       fmt.Sprintf("https://%s/@%s/%s", origin, acct, id),
			CreatedAt: testNow.Add(-time.Hour),
			Account:   mastodon.Account{Acct: acct + "@" + origin},
		},
	}
}

func TestAdmitEmptyBatch(t *testing.T) {
	ctrl := newTestController(testAdmissionConfig(), 0, nil, &fakePublisher{})
	res := ctrl.Admit(context.Background(), nil, history.NewMemory(10, quietLogger()))

	assert.Empty(t, res.Admitted)
	assert.Empty(t, res.Rejected)
}

func TestQualityGateSkipsWholeCycle(t *testing.T) {
	pub := &fakePublisher{}
	ctrl := newTestController(testAdmissionConfig(), 5, nil, pub)

	cands := []*Candidate{
		candidate("a.social", "1", "alice", 1),
		candidate("a.social", "2", "bob", 2),
		candidate("a.social", "3", "carol", 3),
	}
	res := ctrl.Admit(context.Background(), cands, history.NewMemory(10, quietLogger()))

	assert.Empty(t, res.Admitted)
	assert.Empty(t, pub.boosted)
	assert.Len(t, res.Rejected, 3)
	for _, reason := range res.Rejected {
		assert.Equal(t, ReasonBelowThreshold, reason)
	}
}

func TestQualityGateDisabledAtZeroThreshold(t *testing.T) {
	ctrl := newTestController(testAdmissionConfig(), 0, nil, &fakePublisher{})

	cands := []*Candidate{candidate("a.social", "1", "alice", -5)}
	res := ctrl.Admit(context.Background(), cands, history.NewMemory(10, quietLogger()))

	assert.Len(t, res.Admitted, 1)
}

func TestNormalizationOverSurvivorsOnly(t *testing.T) {
	ctrl := newTestController(testAdmissionConfig(), 5, nil, &fakePublisher{})

	cands := []*Candidate{
		candidate("a.social", "1", "alice", 2),
		candidate("a.social", "2", "bob", 8),
		candidate("a.social", "3", "carol", 14),
	}
	res := ctrl.Admit(context.Background(), cands, history.NewMemory(10, quietLogger()))

	// Raw score 2 fails the gate; survivors 8 and 14 normalize to 0 and 100.
	require.Len(t, res.Admitted, 2)
	assert.InDelta(t, 100, res.Admitted[0].Score, 0.001)
	assert.Equal(t, 14.0, res.Admitted[0].RawScore)
	assert.InDelta(t, 0, res.Admitted[1].Score, 0.001)
	assert.Equal(t, ReasonBelowThreshold, res.Rejected["https://a.social/@alice/1"])
}

func TestRankingPrefersNewerOnTies(t *testing.T) {
	cfg := testAdmissionConfig()
	cfg.MaxBoostsPerRun = 1
	ctrl := newTestController(cfg, 0, nil, &fakePublisher{})

	older := candidate("a.social", "1", "alice", 5)
	newer := candidate("a.social", "2", "bob", 5)
	newer.Status.CreatedAt = older.Status.CreatedAt.Add(10 * time.Minute)

	res := ctrl.Admit(context.Background(), []*Candidate{older, newer}, history.NewMemory(10, quietLogger()))

	require.Len(t, res.Admitted, 1)
	assert.Equal(t, "2", res.Admitted[0].Status.ID)
}

func TestMaxBoostsPerRun(t *testing.T) {
	cfg := testAdmissionConfig()
	cfg.MaxBoostsPerRun = 2
	ctrl := newTestController(cfg, 0, nil, &fakePublisher{})

	cands := []*Candidate{
		candidate("a.social", "1", "alice", 3),
		candidate("a.social", "2", "bob", 2),
		candidate("a.social", "3", "carol", 1),
	}
	res := ctrl.Admit(context.Background(), cands, history.NewMemory(10, quietLogger()))

	assert.Len(t, res.Admitted, 2)
}

func TestHourlyCapNeverExceeded(t *testing.T) {
	cfg := testAdmissionConfig()
	cfg.HourlyCap = 1
	ctrl := newTestController(cfg, 0, nil, &fakePublisher{})
	hist := history.NewMemory(10, quietLogger())

	cands := []*Candidate{
		candidate("a.social", "1", "alice", 3),
		candidate("a.social", "2", "bob", 2),
	}
	res := ctrl.Admit(context.Background(), cands, hist)

	assert.Len(t, res.Admitted, 1)
	assert.Equal(t, 1, hist.HourCount(testNow))
}

func TestDailyCapCountsPriorCycles(t *testing.T) {
	cfg := testAdmissionConfig()
	cfg.DailyCap = 3
	ctrl := newTestController(cfg, 0, nil, &fakePublisher{})
	hist := history.NewMemory(10, quietLogger())
	hist.CountBoost(testNow.Add(-2 * time.Hour))
	hist.CountBoost(testNow.Add(-2 * time.Hour))
	hist.CountBoost(testNow.Add(-2 * time.Hour))

	res := ctrl.Admit(context.Background(), []*Candidate{candidate("a.social", "1", "alice", 3)}, hist)

	assert.Empty(t, res.Admitted)
}

func TestAuthorDiversityRollingWindow(t *testing.T) {
	ctrl := newTestController(testAdmissionConfig(), 0, nil, &fakePublisher{})
	hist := history.NewMemory(10, quietLogger())
	hist.RecordBoost("alice@a.social", testNow.Add(-23*time.Hour))
	hist.RecordBoost("bob@a.social", testNow.Add(-25*time.Hour))

	cands := []*Candidate{
		candidate("a.social", "1", "alice", 3),
		candidate("a.social", "2", "bob", 2),
	}
	res := ctrl.Admit(context.Background(), cands, hist)

	// alice was boosted 23h ago so she is still inside the rolling window;
	// bob's last boost is past 24h and he is eligible again.
	require.Len(t, res.Admitted, 1)
	assert.Equal(t, "bob@a.social", res.Admitted[0].Status.Account.Acct)
	assert.Equal(t, ReasonAuthorDiversity, res.Rejected["https://a.social/@alice/1"])
}

func TestAuthorDiversityDisabled(t *testing.T) {
	cfg := testAdmissionConfig()
	cfg.AuthorDiversity = false
	ctrl := newTestController(cfg, 0, nil, &fakePublisher{})
	hist := history.NewMemory(10, quietLogger())
	hist.RecordBoost("alice@a.social", testNow.Add(-time.Hour))

	res := ctrl.Admit(context.Background(), []*Candidate{candidate("a.social", "1", "alice", 3)}, hist)
	assert.Len(t, res.Admitted, 1)
}

func TestDuplicateFromHistory(t *testing.T) {
	ctrl := newTestController(testAdmissionConfig(), 0, nil, &fakePublisher{})
	hist := history.NewMemory(10, quietLogger())

	cand := candidate("a.social", "1", "alice", 3)
	hist.MarkSeen(cand.Status.CanonicalURL())

	res := ctrl.Admit(context.Background(), []*Candidate{cand}, hist)

	assert.Empty(t, res.Admitted)
	assert.Equal(t, ReasonDuplicate, res.Rejected[cand.Status.CanonicalURL()])
}

func TestDuplicateAcrossOriginsInOneBatch(t *testing.T) {
	pub := &fakePublisher{}
	ctrl := newTestController(testAdmissionConfig(), 0, nil, pub)

	first := candidate("a.social", "1", "alice", 3)
	second := candidate("b.social", "9", "alice", 2)
	second.Status.URL = first.Status.URL
	second.Status.URI = first.Status.URI

	res := ctrl.Admit(context.Background(), []*Candidate{first, second}, history.NewMemory(10, quietLogger()))

	assert.Len(t, res.Admitted, 1)
	assert.Len(t, pub.boosted, 1)
	assert.Equal(t, ReasonDuplicate, res.Rejected[first.Status.CanonicalURL()])
}

func TestAlreadyRebloggedRejected(t *testing.T) {
	ctrl := newTestController(testAdmissionConfig(), 0, nil, &fakePublisher{})

	cand := candidate("a.social", "1", "alice", 3)
	cand.Status.Reblogged = true

	res := ctrl.Admit(context.Background(), []*Candidate{cand}, history.NewMemory(10, quietLogger()))
	assert.Equal(t, ReasonDuplicate, res.Rejected[cand.Status.CanonicalURL()])
}

func TestOriginBoostLimit(t *testing.T) {
	limits := map[string]int{"a.social": 1}
	ctrl := newTestController(testAdmissionConfig(), 0, limits, &fakePublisher{})

	cands := []*Candidate{
		candidate("a.social", "1", "alice", 3),
		candidate("a.social", "2", "bob", 2),
		candidate("b.social", "3", "carol", 1),
	}
	res := ctrl.Admit(context.Background(), cands, history.NewMemory(10, quietLogger()))

	require.Len(t, res.Admitted, 2)
	assert.Equal(t, "a.social", res.Admitted[0].Origin)
	assert.Equal(t, "b.social", res.Admitted[1].Origin)
	assert.Equal(t, ReasonOriginLimit, res.Rejected["https://a.social/@bob/2"])
}

func TestHashtagDiversity(t *testing.T) {
	cfg := testAdmissionConfig()
	cfg.HashtagDiversity = true
	cfg.MaxBoostsPerHashtagPerRun = 1
	ctrl := newTestController(cfg, 0, nil, &fakePublisher{})

	first := candidate("a.social", "1", "alice", 3)
	first.Status.Tags = []mastodon.Tag{{Name: "golang"}}
	second := candidate("a.social", "2", "bob", 2)
	second.Status.Tags = []mastodon.Tag{{Name: "Golang"}, {Name: "linux"}}
	third := candidate("a.social", "3", "carol", 1)
	third.Status.Tags = []mastodon.Tag{{Name: "linux"}}

	res := ctrl.Admit(context.Background(), []*Candidate{first, second, third}, history.NewMemory(10, quietLogger()))

	// The second candidate shares "golang" with the first and is skipped; its
	// "linux" slot is never consumed, so the third still gets through.
	require.Len(t, res.Admitted, 2)
	assert.Equal(t, "1", res.Admitted[0].Status.ID)
	assert.Equal(t, "3", res.Admitted[1].Status.ID)
	assert.Equal(t, ReasonHashtagDiversity, res.Rejected["https://a.social/@bob/2"])
}

func TestFailedPublishConsumesNoQuota(t *testing.T) {
	best := candidate("a.social", "1", "alice", 3)
	next := candidate("a.social", "2", "bob", 2)

	pub := &fakePublisher{outcomes: map[string]publisher.Outcome{
		best.Status.CanonicalURL(): publisher.Transient,
	}}
	cfg := testAdmissionConfig()
	cfg.HourlyCap = 1
	ctrl := newTestController(cfg, 0, nil, pub)
	hist := history.NewMemory(10, quietLogger())

	res := ctrl.Admit(context.Background(), []*Candidate{best, next}, hist)

	// The failed boost neither counts against the cap nor marks the status
	// seen, and the walk moves on to the next candidate.
	require.Len(t, res.Admitted, 1)
	assert.Equal(t, "2", res.Admitted[0].Status.ID)
	assert.Equal(t, ReasonPublishError, res.Rejected[best.Status.CanonicalURL()])
	assert.False(t, hist.IsSeen(best.Status.CanonicalURL()))
	assert.Equal(t, 1, hist.HourCount(testNow))
}

func TestPublishOutcomeReasons(t *testing.T) {
	notFound := candidate("a.social", "1", "alice", 3)
	denied := candidate("a.social", "2", "bob", 2)

	pub := &fakePublisher{outcomes: map[string]publisher.Outcome{
		notFound.Status.CanonicalURL(): publisher.NotFound,
		denied.Status.CanonicalURL():   publisher.PermissionDenied,
	}}
	ctrl := newTestController(testAdmissionConfig(), 0, nil, pub)

	res := ctrl.Admit(context.Background(), []*Candidate{notFound, denied}, history.NewMemory(10, quietLogger()))

	assert.Empty(t, res.Admitted)
	assert.Equal(t, ReasonPublishNotFound, res.Rejected[notFound.Status.CanonicalURL()])
	assert.Equal(t, ReasonPublishDenied, res.Rejected[denied.Status.CanonicalURL()])
}

func TestSuccessfulBoostUpdatesHistory(t *testing.T) {
	ctrl := newTestController(testAdmissionConfig(), 0, nil, &fakePublisher{})
	hist := history.NewMemory(10, quietLogger())

	cand := candidate("a.social", "1", "alice", 3)
	res := ctrl.Admit(context.Background(), []*Candidate{cand}, hist)

	require.Len(t, res.Admitted, 1)
	assert.True(t, hist.IsSeen(cand.Status.CanonicalURL()))
	last, ok := hist.LastBoost("alice@a.social")
	require.True(t, ok)
	assert.Equal(t, testNow, last)
	assert.Equal(t, 1, hist.DayCount(testNow))
	assert.Equal(t, 1, hist.HourCount(testNow))
}

func TestContentFilters(t *testing.T) {
	tests := []struct {
		name   string
		cfg    func(*config.AdmissionConfig)
		status func(*mastodon.Status)
		reason Reason
	}{
		{
			name: "require media",
			cfg:  func(c *config.AdmissionConfig) { c.RequireMedia = true },
			status: func(s *mastodon.Status) {
				s.MediaAttachments = nil
			},
			reason: ReasonNoMedia,
		},
		{
			name: "sensitive without content warning",
			cfg:  func(c *config.AdmissionConfig) { c.SkipSensitiveWithoutCW = true },
			status: func(s *mastodon.Status) {
				s.Sensitive = true
				s.SpoilerText = "  "
			},
			reason: ReasonSensitive,
		},
		{
			name:   "low reblogs",
			cfg:    func(c *config.AdmissionConfig) { c.MinReblogs = 5 },
			status: func(s *mastodon.Status) { s.ReblogsCount = 4 },
			reason: ReasonLowReblogs,
		},
		{
			name:   "low favourites",
			cfg:    func(c *config.AdmissionConfig) { c.MinFavourites = 5 },
			status: func(s *mastodon.Status) { s.FavouritesCount = 4 },
			reason: ReasonLowFavourites,
		},
		{
			name:   "low replies",
			cfg:    func(c *config.AdmissionConfig) { c.MinReplies = 2 },
			status: func(s *mastodon.Status) { s.RepliesCount = 1 },
			reason: ReasonLowReplies,
		},
		{
			name:   "language not allowed",
			cfg:    func(c *config.AdmissionConfig) { c.Languages = []string{"en", "de"} },
			status: func(s *mastodon.Status) { s.Language = "FR" },
			reason: ReasonLanguage,
		},
		{
			name:   "filtered server",
			cfg:    func(c *config.AdmissionConfig) { c.FilteredServers = []string{"a.social"} },
			status: func(s *mastodon.Status) {},
			reason: ReasonServerFiltered,
		},
		{
			name:   "reblog wrapper",
			cfg:    func(c *config.AdmissionConfig) {},
			status: func(s *mastodon.Status) { s.Reblog = &mastodon.Status{ID: "inner"} },
			reason: ReasonNotOriginal,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := testAdmissionConfig()
			tt.cfg(&cfg)
			ctrl := newTestController(cfg, 0, nil, &fakePublisher{})

			cand := candidate("a.social", "1", "alice", 3)
			tt.status(cand.Status)

			res := ctrl.Admit(context.Background(), []*Candidate{cand}, history.NewMemory(10, quietLogger()))

			assert.Empty(t, res.Admitted)
			assert.Equal(t, tt.reason, res.Rejected[cand.Status.CanonicalURL()])
		})
	}
}

func TestSensitiveWithContentWarningPasses(t *testing.T) {
	cfg := testAdmissionConfig()
	cfg.SkipSensitiveWithoutCW = true
	ctrl := newTestController(cfg, 0, nil, &fakePublisher{})

	cand := candidate("a.social", "1", "alice", 3)
	cand.Status.Sensitive = true
	cand.Status.SpoilerText = "eye contact"

	res := ctrl.Admit(context.Background(), []*Candidate{cand}, history.NewMemory(10, quietLogger()))
	assert.Len(t, res.Admitted, 1)
}
