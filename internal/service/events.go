package service

import (
	"context"
	"log"

	"jazzfeed/internal/queue"
)

// publish sends event after a committed write. A publish failure is logged and never
// fails the write: the data is already stored and live sessions still see document
// changes through their subscriptions.
func publish(ctx context.Context, publisher queue.Publisher, component string, event queue.ChangeEvent) {
	if publisher == nil {
		return
	}
	msgID, err := publisher.Publish(ctx, queue.StreamFeed, event)
	if err != nil {
		log.Printf("[%s] Failed to publish %s: actor=%s target=%s post=%s err=%v",
			component, event.Type, event.ActorID, event.TargetID, event.PostID, err)
		return
	}
	log.Printf("[%s] Published %s: msgID=%s", component, event.Type, msgID)
}
