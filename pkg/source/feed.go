package source

import (
	"context"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/mmcdole/gofeed"

	"github.com/fedihype/fedihype/pkg/mastodon"
)

// Feed turns a Mastodon tag or account RSS feed into an origin. Feed entries
// carry no engagement counters, so candidates from this origin rely entirely
// on hashtag and media scoring.
type Feed struct {
	name       string
	url        string
	boostLimit int
	client     *http.Client
	parser     *gofeed.Parser
}

// NewFeed creates a feed origin.
func NewFeed(name, url string, boostLimit int) *Feed {
	return &Feed{
		name:       name,
		url:        url,
		boostLimit: boostLimit,
		client:     &http.Client{Timeout: 30 * time.Second},
		parser:     gofeed.NewParser(),
	}
}

func (f *Feed) Name() string    { return f.name }
func (f *Feed) BoostLimit() int { return f.boostLimit }

func (f *Feed) Fetch(ctx context.Context) ([]*mastodon.Status, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, f.url, nil)
	if err != nil {
		return nil, fmt.Errorf("create feed request %s: %w", f.name, err)
	}
	req.Header.Set("User-Agent", "fedihype/1.0")

	resp, err := f.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("fetch feed %s: %w", f.name, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("feed %s status %d", f.name, resp.StatusCode)
	}

	parsed, err := f.parser.Parse(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("parse feed %s: %w", f.name, err)
	}

	cutoff := time.Now().Add(-24 * time.Hour)
	var statuses []*mastodon.Status
	for _, entry := range parsed.Items {
		published := time.Now().UTC()
		if entry.PublishedParsed != nil {
			published = entry.PublishedParsed.UTC()
		} else if entry.UpdatedParsed != nil {
			published = entry.UpdatedParsed.UTC()
		}
		if published.Before(cutoff) {
			continue
		}

		link := entry.Link
		if link == "" && len(entry.Links) > 0 {
			link = entry.Links[0]
		}
		if link == "" {
			continue
		}

		author := ""
		if entry.Author != nil {
			author = entry.Author.Name
		}

		tags := make([]mastodon.Tag, 0, len(entry.Categories))
		for _, c := range entry.Categories {
			tags = append(tags, mastodon.Tag{Name: strings.ToLower(c)})
		}

		statuses = append(statuses, &mastodon.Status{
			URI:       link,
			URL:       link,
			CreatedAt: published,
			Account:   mastodon.Account{Acct: author},
			Content:   entry.Title + " " + entry.Description,
			Tags:      tags,
		})
	}
	return statuses, nil
}
