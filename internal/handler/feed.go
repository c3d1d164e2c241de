package handler

import (
	"log"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-contrib/sse"

	"jazzfeed/internal/httputil"
	"jazzfeed/internal/service"
)

// streamHeartbeat keeps idle SSE connections open through proxies.
const streamHeartbeat = 25 * time.Second

type FeedHandler struct {
	loader *service.FeedLoader
	hub    *service.FeedHub
}

func NewFeedHandler(loader *service.FeedLoader, hub *service.FeedHub) *FeedHandler {
	return &FeedHandler{loader: loader, hub: hub}
}

// GetFeed handles GET /feed
// Rebuilds the authenticated user's feed and returns it with its load generation.
//
// Query params:
//   - cached: optional, "true" accepts the last stored snapshot, which may lag
//     behind recent follow changes and posts
func (h *FeedHandler) GetFeed(w http.ResponseWriter, r *http.Request) {
	uid, ok := currentUser(w, r)
	if !ok {
		return
	}

	cached := false
	if v := r.URL.Query().Get("cached"); v != "" {
		parsed, err := strconv.ParseBool(v)
		if err != nil {
			httputil.WriteBadRequest(w, "Invalid cached parameter")
			return
		}
		cached = parsed
	}

	feed, err := h.loader.Load(r.Context(), uid, cached)
	if err != nil {
		log.Printf("[FeedHandler] GetFeed: user=%s err=%v", uid, err)
		httputil.WriteServiceError(w, err)
		return
	}

	httputil.WriteJSON(w, http.StatusOK, feed)
}

// Stream handles GET /feed/stream
// Sends the feed as a server-sent event now and again every time it changes, until
// the client disconnects.
func (h *FeedHandler) Stream(w http.ResponseWriter, r *http.Request) {
	uid, ok := currentUser(w, r)
	if !ok {
		return
	}
	flusher, ok := w.(http.Flusher)
	if !ok {
		httputil.WriteInternalError(w, "Streaming unsupported")
		return
	}

	session, err := h.hub.Open(r.Context(), uid)
	if err != nil {
		httputil.WriteServiceError(w, err)
		return
	}
	defer session.Close()

	w.Header().Set("Content-Type", sse.ContentType)
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.WriteHeader(http.StatusOK)
	flusher.Flush()

	heartbeat := time.NewTicker(streamHeartbeat)
	defer heartbeat.Stop()

	for {
		select {
		case <-r.Context().Done():
			return
		case <-heartbeat.C:
			if err := sse.Encode(w, sse.Event{Event: "ping", Data: ""}); err != nil {
				return
			}
			flusher.Flush()
		case feed, open := <-session.Updates():
			if !open {
				return
			}
			err := sse.Encode(w, sse.Event{
				Id:    strconv.FormatUint(feed.Generation, 10),
				Event: "feed",
				Data:  *feed,
			})
			if err != nil {
				log.Printf("[FeedHandler] Stream write: user=%s err=%v", uid, err)
				return
			}
			flusher.Flush()
		}
	}
}
