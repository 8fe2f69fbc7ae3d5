package relay

import (
	"context"

	"github.com/nbd-wtf/go-nostr"
)

// Connection is an open relay session. *nostr.Relay satisfies it.
type Connection interface {
	Publish(ctx context.Context, ev nostr.Event) error
	Close() error
}

type Connector interface {
	Connect(ctx context.Context, url string) (Connection, error)
}

// NostrConnector dials relays with go-nostr.
type NostrConnector struct{}

func (NostrConnector) Connect(ctx context.Context, url string) (Connection, error) {
	r, err := nostr.RelayConnect(ctx, url)
	if err != nil {
		return nil, err
	}
	return r, nil
}
