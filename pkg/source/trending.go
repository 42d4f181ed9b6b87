package source

import (
	"context"
	"fmt"

	"github.com/fedihype/fedihype/pkg/mastodon"
)

const maxTrendingFetch = 20

// Trending fetches the trending-statuses list of one remote instance.
type Trending struct {
	instance   string
	client     *mastodon.Client
	fetchLimit int
	boostLimit int
}

// NewTrending creates a trending origin for the given instance. The fetch
// limit is clamped to the API maximum of 20.
func NewTrending(instance string, fetchLimit, boostLimit int) *Trending {
	if fetchLimit <= 0 || fetchLimit > maxTrendingFetch {
		fetchLimit = maxTrendingFetch
	}
	return &Trending{
		instance:   instance,
		client:     mastodon.NewClient(instance, ""),
		fetchLimit: fetchLimit,
		boostLimit: boostLimit,
	}
}

func (t *Trending) Name() string    { return t.instance }
func (t *Trending) BoostLimit() int { return t.boostLimit }

func (t *Trending) Fetch(ctx context.Context) ([]*mastodon.Status, error) {
	statuses, err := t.client.TrendingStatuses(ctx, t.fetchLimit)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", t.instance, err)
	}
	if len(statuses) > t.fetchLimit {
		statuses = statuses[:t.fetchLimit]
	}
	return statuses, nil
}
