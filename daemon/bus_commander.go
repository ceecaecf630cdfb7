package daemon

import (
	"context"

	"github.com/ThreeDotsLabs/watermill"
	"github.com/ThreeDotsLabs/watermill/message"
	"github.com/pkg/errors"
)

// BusCommander publishes commands on the event bus, where a Worker in the
// same process picks them up.
type BusCommander struct {
	Publisher message.Publisher
}

func NewBusCommander(p message.Publisher) *BusCommander {
	return &BusCommander{Publisher: p}
}

func (c *BusCommander) Send(ctx context.Context, cmd Command) error {
	data, err := cmd.Encode()
	if err != nil {
		return err
	}
	msg := message.NewMessage(watermill.NewUUID(), data)
	msg.SetContext(ctx)
	if err := c.Publisher.Publish(TOPIC_DAEMON_COMMAND, msg); err != nil {
		return errors.Wrap(err, "fail to publish daemon command")
	}
	return nil
}
