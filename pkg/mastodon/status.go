package mastodon

import (
	"strings"
	"time"
)

// Account is the author of a status.
type Account struct {
	ID   string `json:"id"`
	Acct string `json:"acct"`
}

// Server returns the instance part of the acct (empty for local accounts).
func (a Account) Server() string {
	parts := strings.Split(a.Acct, "@")
	if len(parts) > 1 {
		return parts[len(parts)-1]
	}
	return ""
}

// Tag is a hashtag attached to a status.
type Tag struct {
	Name string `json:"name"`
	URL  string `json:"url"`
}

// MediaAttachment is an image/video/audio attached to a status.
type MediaAttachment struct {
	ID   string `json:"id"`
	Type string `json:"type"`
	URL  string `json:"url"`
}

// Status is the standardized post model for all origins.
type Status struct {
	ID               string            `json:"id"`
	URI              string            `json:"uri"`
	URL              string            `json:"url"`
	CreatedAt        time.Time         `json:"created_at"`
	Account          Account           `json:"account"`
	Content          string            `json:"content"`
	Language         string            `json:"language"`
	Sensitive        bool              `json:"sensitive"`
	SpoilerText      string            `json:"spoiler_text"`
	ReblogsCount     int               `json:"reblogs_count"`
	FavouritesCount  int               `json:"favourites_count"`
	RepliesCount     int               `json:"replies_count"`
	Reblogged        bool              `json:"reblogged"`
	Reblog           *Status           `json:"reblog"`
	MediaAttachments []MediaAttachment `json:"media_attachments"`
	Tags             []Tag             `json:"tags"`
}

// CanonicalURL is the globally unique identity of a status. Some instances
// omit the url field, in which case the ActivityPub uri serves as identity.
func (s *Status) CanonicalURL() string {
	if s.URL != "" {
		return s.URL
	}
	return s.URI
}

// HasMedia reports whether the status carries at least one attachment.
func (s *Status) HasMedia() bool {
	return len(s.MediaAttachments) > 0
}

// TagNames returns the status hashtags lowercased.
func (s *Status) TagNames() []string {
	names := make([]string, 0, len(s.Tags))
	for _, t := range s.Tags {
		names = append(names, strings.ToLower(t.Name))
	}
	return names
}
