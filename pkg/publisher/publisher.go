package publisher

import (
	"context"

	"github.com/sirupsen/logrus"

	"github.com/fedihype/fedihype/pkg/mastodon"
)

// Outcome is the per-status result of a publish attempt.
type Outcome int

const (
	// Success: the status was boosted. Only this outcome may mutate history.
	Success Outcome = iota
	// NotFound: the status does not exist on the bot's instance and could
	// not be federated there.
	NotFound
	// PermissionDenied: the instance rejected the boost (token scope,
	// blocked domain).
	PermissionDenied
	// Transient: a retryable error; the candidate may reappear next cycle.
	Transient
)

func (o Outcome) String() string {
	switch o {
	case Success:
		return "success"
	case NotFound:
		return "not-found"
	case PermissionDenied:
		return "permission-denied"
	default:
		return "transient-error"
	}
}

// Publisher executes the boost action for an admitted status.
type Publisher interface {
	Boost(ctx context.Context, status *mastodon.Status) Outcome
}

// Mastodon boosts statuses through the bot account's API client.
//
// Trending statuses are fetched from remote instances, so their IDs usually
// do not exist on the bot's instance. The flow is: try the direct reblog
// first (the status may already be federated); on 404, federate it via
// search with resolve=true and retry once.
type Mastodon struct {
	client   *mastodon.Client
	federate bool
	log      *logrus.Logger
}

// NewMastodon creates the production publisher.
func NewMastodon(client *mastodon.Client, federate bool, log *logrus.Logger) *Mastodon {
	return &Mastodon{client: client, federate: federate, log: log}
}

func (m *Mastodon) Boost(ctx context.Context, status *mastodon.Status) Outcome {
	url := status.CanonicalURL()
	if url == "" {
		m.log.WithField("id", status.ID).Warn("publish: status has no canonical URL")
		return NotFound
	}

	_, err := m.client.Reblog(ctx, status.ID)
	if err == nil {
		return Success
	}
	if !mastodon.IsNotFound(err) {
		return m.classify(url, err)
	}

	if !m.federate {
		m.log.WithField("url", url).Info("publish: status not federated, skipping (set federate_missing_statuses to enable resolve)")
		return NotFound
	}

	target := status.URI
	if target == "" {
		target = status.URL
	}
	resolved, err := m.client.ResolveStatus(ctx, target)
	if err != nil {
		m.log.WithField("url", url).WithError(err).Warn("publish: resolve failed")
		return m.classify(url, err)
	}
	if resolved == nil {
		m.log.WithField("url", url).Info("publish: resolve returned no statuses")
		return NotFound
	}

	if _, err := m.client.Reblog(ctx, resolved.ID); err != nil {
		m.log.WithField("url", url).WithError(err).Warn("publish: reblog failed after resolve")
		return m.classify(url, err)
	}
	return Success
}

func (m *Mastodon) classify(url string, err error) Outcome {
	switch {
	case mastodon.IsNotFound(err):
		return NotFound
	case mastodon.IsPermissionDenied(err):
		m.log.WithField("url", url).WithError(err).Warn("publish: permission denied")
		return PermissionDenied
	default:
		m.log.WithField("url", url).WithError(err).Warn("publish: transient error")
		return Transient
	}
}
