package source

import (
	"context"

	"github.com/fedihype/fedihype/pkg/mastodon"
)

// Origin supplies candidate statuses for one boost cycle. Each configured
// trending instance, the local timeline, and each tag feed is its own origin.
type Origin interface {
	// Name identifies the origin in logs, metrics, and per-origin limits.
	Name() string
	// BoostLimit is the most statuses that may be admitted from this origin
	// in a single run (0 = unlimited).
	BoostLimit() int
	// Fetch collects the origin's current candidates. Missing optional
	// fields on a status are zero values, never an error.
	Fetch(ctx context.Context) ([]*mastodon.Status, error)
}
