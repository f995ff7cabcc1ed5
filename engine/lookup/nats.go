package lookup

import (
	"context"

	"github.com/WessleyAI/vinwizard/pkg/natsutil"
)

// Subject carries LookupEvent messages.
const Subject = "vinwizard.lookup.decoded"

// NATSPublisher publishes lookup events as JSON on Subject.
type NATSPublisher struct {
	nc natsutil.MsgPublisher
}

func NewNATSPublisher(nc natsutil.MsgPublisher) *NATSPublisher {
	return &NATSPublisher{nc: nc}
}

func (p *NATSPublisher) Publish(ctx context.Context, ev LookupEvent) error {
	return natsutil.Publish(ctx, p.nc, Subject, ev)
}
