// Package publish pushes committed threads out to their destination
// platforms. Threads is the only platform with a real integration; the
// dispatcher simulates the rest.
package publish

import (
	"context"
	"errors"

	"github.com/beeziehmf/threadyflow-app/internal/types"
)

// ErrNotConnected is returned when a publish is attempted without a linked
// platform account.
var ErrNotConnected = errors.New("publish: no connected account")

// Result reports what a publish attempt produced. PostIDs holds the platform
// IDs of every segment that went out, in thread order; on error it holds the
// prefix that was already live when the failure hit.
type Result struct {
	PostIDs []string
}

// Publisher sends one thread to a platform as a chained sequence of posts.
type Publisher interface {
	Publish(ctx context.Context, conn types.ThreadsConnection, thread types.Thread) (Result, error)
}

// Connector brokers the OAuth handshake that links a platform account.
type Connector interface {
	// Exchange upgrades a short-lived user token into a long-lived one and
	// resolves the platform user behind it.
	Exchange(ctx context.Context, shortLivedToken string) (types.ThreadsConnection, error)
}
