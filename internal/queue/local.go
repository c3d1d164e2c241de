package queue

import (
	"context"
	"log"
	"sync"
	"time"
)

// LocalPublisher hands every event to an in-process handler instead of a bus. Used
// when EVENT_BUS=none: a single instance still invalidates caches and refreshes live
// sessions of followers, but other instances never see the events.
type LocalPublisher struct {
	handler EventHandler
	timeout time.Duration
	wg      sync.WaitGroup
}

func NewLocalPublisher(handler EventHandler) *LocalPublisher {
	return &LocalPublisher{handler: handler, timeout: 30 * time.Second}
}

// Publish runs the handler in the background. The handler outlives the request that
// published the event but keeps its trace.
func (p *LocalPublisher) Publish(ctx context.Context, stream string, event ChangeEvent) (string, error) {
	p.wg.Add(1)
	go func() {
		defer p.wg.Done()
		hctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), p.timeout)
		defer cancel()
		if err := p.handler.HandleEvent(hctx, event); err != nil {
			log.Printf("[LocalPublisher] Handle %s FAILED: %v", event.Type, err)
		}
	}()
	logEventDetails("[LocalPublisher]", event)
	return "", nil
}

// Wait blocks until every published event was handled.
func (p *LocalPublisher) Wait() {
	p.wg.Wait()
}
