package core

import (
	"context"

	"pkt.systems/attackdeck/schema"
)

// Gateway is the message channel to the execution backend. Send is
// fire-and-forget: replies arrive later through subscribed handlers.
type Gateway interface {
	Send(ctx context.Context, msg schema.OutboundMessage) error
	Subscribe(kind schema.EventKind, handler func(schema.InboundMessage)) (unsubscribe func())
}
