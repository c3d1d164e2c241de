package service

import (
	"context"
	"errors"
	"fmt"
	"log"
	"sync"

	"jazzfeed/internal/cache"
	"jazzfeed/internal/docstore"
	"jazzfeed/internal/model"
)

// FeedBuilder is the part of FeedService the loader needs.
type FeedBuilder interface {
	BuildFeed(ctx context.Context, viewerUID string) ([]model.FeedEntry, error)
}

// FeedLoader numbers every load per viewer. A load that finishes after a newer one
// started returns model.ErrStaleFeed so its result is never shown.
type FeedLoader struct {
	builder FeedBuilder
	cache   cache.FeedCache // optional

	mu          sync.Mutex
	generations map[string]uint64
}

func NewFeedLoader(builder FeedBuilder, feedCache cache.FeedCache) *FeedLoader {
	return &FeedLoader{
		builder:     builder,
		cache:       feedCache,
		generations: make(map[string]uint64),
	}
}

// Load builds the viewer's feed from the stores. With cached=true a snapshot stored
// by an earlier build may be served instead; it can lag behind writes the worker has
// not processed yet.
func (l *FeedLoader) Load(ctx context.Context, viewerUID string, cached bool) (*model.FeedResponse, error) {
	return l.load(ctx, viewerUID, viewerUID, cached)
}

// load numbers the load under key, which is the viewer uid for plain requests and a
// per-session key for live sessions so two open screens never supersede each other.
func (l *FeedLoader) load(ctx context.Context, key, viewerUID string, cached bool) (*model.FeedResponse, error) {
	gen := l.begin(key)

	if cached && l.cache != nil {
		entries, found, err := l.cache.Get(ctx, viewerUID)
		if err != nil {
			log.Printf("[FeedLoader] Cache read failed for viewer=%s, rebuilding: %v", viewerUID, err)
		} else if found {
			if !l.isCurrent(key, gen) {
				return nil, model.ErrStaleFeed
			}
			return &model.FeedResponse{Generation: gen, Entries: entries}, nil
		}
	}

	// The version is read before building so an invalidation during the build
	// prevents the snapshot write below.
	version, cacheable := int64(0), l.cache != nil
	if cacheable {
		v, err := l.cache.Version(ctx, viewerUID)
		if err != nil {
			log.Printf("[FeedLoader] Cache version read failed for viewer=%s: %v", viewerUID, err)
			cacheable = false
		}
		version = v
	}

	entries, err := l.builder.BuildFeed(ctx, viewerUID)
	if err != nil {
		return nil, err
	}
	if !l.isCurrent(key, gen) {
		log.Printf("[FeedLoader] Discarding stale load viewer=%s gen=%d", viewerUID, gen)
		return nil, model.ErrStaleFeed
	}

	if cacheable {
		if _, err := l.cache.Set(ctx, viewerUID, version, entries); err != nil {
			log.Printf("[FeedLoader] Cache write failed for viewer=%s: %v", viewerUID, err)
		}
	}
	return &model.FeedResponse{Generation: gen, Entries: entries}, nil
}

// Invalidate drops cached snapshots for uids.
func (l *FeedLoader) Invalidate(ctx context.Context, uids ...string) error {
	if l.cache == nil || len(uids) == 0 {
		return nil
	}
	return l.cache.Invalidate(ctx, uids...)
}

func (l *FeedLoader) begin(key string) uint64 {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.generations[key]++
	return l.generations[key]
}

func (l *FeedLoader) isCurrent(key string, gen uint64) bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.generations[key] == gen
}

func (l *FeedLoader) forget(key string) {
	l.mu.Lock()
	defer l.mu.Unlock()
	delete(l.generations, key)
}

// FeedHub tracks live feed sessions. Each session follows its viewer's user document
// and rebuilds when it changes or when the hub is told the viewer's feed changed.
// Posts and engagement of followed authors only arrive through InvalidateViewers,
// which the change-event handler calls, on a bus or in-process.
type FeedHub struct {
	store  docstore.Store
	loader *FeedLoader

	mu       sync.Mutex
	sessions map[string]map[*FeedSession]struct{}
	nextID   uint64
}

func NewFeedHub(store docstore.Store, loader *FeedLoader) *FeedHub {
	return &FeedHub{
		store:    store,
		loader:   loader,
		sessions: make(map[string]map[*FeedSession]struct{}),
	}
}

// Open starts a session. The first feed is delivered on Updates without waiting for
// a change. The caller must Close the session.
func (h *FeedHub) Open(ctx context.Context, viewerUID string) (*FeedSession, error) {
	sctx, cancel := context.WithCancel(ctx)
	s := &FeedSession{
		viewer:  viewerUID,
		hub:     h,
		updates: make(chan *model.FeedResponse, 1),
		refresh: make(chan struct{}, 1),
		ctx:     sctx,
		cancel:  cancel,
		stopped: make(chan struct{}),
	}

	h.mu.Lock()
	h.nextID++
	s.key = fmt.Sprintf("%s#session-%d", viewerUID, h.nextID)
	if h.sessions[viewerUID] == nil {
		h.sessions[viewerUID] = make(map[*FeedSession]struct{})
	}
	h.sessions[viewerUID][s] = struct{}{}
	h.mu.Unlock()

	go s.run()

	unsubscribe, err := h.store.Subscribe(sctx, model.CollectionUsers, viewerUID, func(doc *docstore.Document) {
		s.Refresh()
	})
	if err != nil {
		s.Close()
		return nil, fmt.Errorf("subscribe to viewer %s: %w", viewerUID, err)
	}
	s.setUnsubscribe(unsubscribe)

	log.Printf("[FeedHub] Session opened viewer=%s", viewerUID)
	return s, nil
}

// InvalidateViewers drops cached feeds and asks live sessions of uids to rebuild.
func (h *FeedHub) InvalidateViewers(ctx context.Context, uids ...string) error {
	err := h.loader.Invalidate(ctx, uids...)

	h.mu.Lock()
	var targets []*FeedSession
	for _, uid := range uids {
		for s := range h.sessions[uid] {
			targets = append(targets, s)
		}
	}
	h.mu.Unlock()

	for _, s := range targets {
		s.Refresh()
	}
	return err
}

// SessionCount reports the live sessions of a viewer.
func (h *FeedHub) SessionCount(viewerUID string) int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.sessions[viewerUID])
}

func (h *FeedHub) remove(s *FeedSession) {
	h.mu.Lock()
	defer h.mu.Unlock()
	delete(h.sessions[s.viewer], s)
	if len(h.sessions[s.viewer]) == 0 {
		delete(h.sessions, s.viewer)
	}
}

// FeedSession is one open live feed, e.g. a client holding GET /feed/stream.
type FeedSession struct {
	viewer  string
	key     string
	hub     *FeedHub
	updates chan *model.FeedResponse
	refresh chan struct{}

	ctx     context.Context
	cancel  context.CancelFunc
	stopped chan struct{}

	mu          sync.Mutex
	unsubscribe func()
	closed      bool
}

// Updates delivers each rebuilt feed. Only the newest unread feed is kept. The channel
// is closed after Close.
func (s *FeedSession) Updates() <-chan *model.FeedResponse { return s.updates }

// Refresh schedules a rebuild. Requests arriving during a build coalesce into one.
func (s *FeedSession) Refresh() {
	select {
	case s.refresh <- struct{}{}:
	default:
	}
}

// Close unsubscribes from the viewer document and stops the session. It is safe to
// call more than once.
func (s *FeedSession) Close() {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return
	}
	s.closed = true
	unsubscribe := s.unsubscribe
	s.unsubscribe = nil
	s.mu.Unlock()

	if unsubscribe != nil {
		unsubscribe()
	}
	s.cancel()
	<-s.stopped
	s.hub.remove(s)
	s.hub.loader.forget(s.key)
	log.Printf("[FeedHub] Session closed viewer=%s", s.viewer)
}

func (s *FeedSession) setUnsubscribe(unsubscribe func()) {
	s.mu.Lock()
	if !s.closed {
		s.unsubscribe = unsubscribe
		s.mu.Unlock()
		return
	}
	s.mu.Unlock()
	unsubscribe()
}

func (s *FeedSession) run() {
	defer close(s.stopped)
	defer close(s.updates)

	for {
		select {
		case <-s.ctx.Done():
			return
		case <-s.refresh:
		}

		resp, err := s.hub.loader.load(s.ctx, s.key, s.viewer, false)
		if err != nil {
			if !errors.Is(err, model.ErrStaleFeed) && s.ctx.Err() == nil {
				log.Printf("[FeedHub] Rebuild failed viewer=%s: %v", s.viewer, err)
			}
			continue
		}
		s.publish(resp)
	}
}

// publish replaces any unread feed with resp.
func (s *FeedSession) publish(resp *model.FeedResponse) {
	for {
		select {
		case s.updates <- resp:
			return
		default:
		}
		select {
		case <-s.updates:
		default:
		}
	}
}
