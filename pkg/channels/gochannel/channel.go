// Package gochannel provides the in-process watermill channel.
package gochannel

import (
	"github.com/ThreeDotsLabs/watermill"
	"github.com/ThreeDotsLabs/watermill/pubsub/gochannel"
)

// CreateChannel returns one GoChannel acting as both publisher and
// subscriber. With blockUntilAck, Publish returns only after a subscriber
// acknowledged the message.
func CreateChannel(logger watermill.LoggerAdapter, blockUntilAck bool) (*gochannel.GoChannel, *gochannel.GoChannel, error) {
	pubSub := gochannel.NewGoChannel(
		gochannel.Config{
			OutputChannelBuffer:            1000,
			Persistent:                     false,
			BlockPublishUntilSubscriberAck: blockUntilAck,
		},
		logger,
	)

	return pubSub, pubSub, nil
}
