package source

import (
	"context"
	"time"

	"github.com/fedihype/fedihype/pkg/mastodon"
)

// LocalName is the origin name of the bot instance's own timeline.
const LocalName = "local"

// Local fetches the bot instance's local public timeline. Unlike trending
// lists the local timeline is raw and recent, so this origin pre-filters:
// only posts created today (UTC) with a minimum total engagement survive.
type Local struct {
	client        *mastodon.Client
	fetchLimit    int
	boostLimit    int
	minEngagement int
	now           func() time.Time
}

// NewLocal creates the local timeline origin using the bot's own client.
func NewLocal(client *mastodon.Client, fetchLimit, boostLimit, minEngagement int) *Local {
	if fetchLimit <= 0 {
		fetchLimit = 20
	}
	return &Local{
		client:        client,
		fetchLimit:    fetchLimit,
		boostLimit:    boostLimit,
		minEngagement: minEngagement,
		now:           time.Now,
	}
}

func (l *Local) Name() string    { return LocalName }
func (l *Local) BoostLimit() int { return l.boostLimit }

func (l *Local) Fetch(ctx context.Context) ([]*mastodon.Status, error) {
	statuses, err := l.client.LocalTimeline(ctx, l.fetchLimit)
	if err != nil {
		return nil, err
	}

	today := l.now().UTC().Truncate(24 * time.Hour)
	var kept []*mastodon.Status
	for _, s := range statuses {
		if s.CreatedAt.UTC().Before(today) {
			continue
		}
		engagement := s.ReblogsCount + s.FavouritesCount + s.RepliesCount
		if engagement < l.minEngagement {
			continue
		}
		kept = append(kept, s)
	}
	return kept, nil
}
