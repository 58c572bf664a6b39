package realtime

import (
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/rs/zerolog/log"
)

const heartbeatInterval = 15 * time.Second

// ServeSSE drains a subscriber's queue onto a long-lived SSE
// connection, one event per patch event. Disconnect detection rides on
// the request context; the hub's own disconnect (overflow) ends the
// loop through the subscriber's done channel.
func (h *Hub) ServeSSE(w http.ResponseWriter, r *http.Request, sub *Subscriber) {
	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.Header().Set("X-Accel-Buffering", "no")

	flusher, ok := w.(http.Flusher)
	if !ok {
		http.Error(w, "streaming unsupported", http.StatusInternalServerError)
		return
	}
	flusher.Flush()

	defer h.Unsubscribe(sub)

	heartbeat := time.NewTicker(heartbeatInterval)
	defer heartbeat.Stop()

	ctx := r.Context()
	for {
		select {
		case <-ctx.Done():
			log.Debug().Stringer("subscriber_id", sub.ID).Msg("sse: client disconnected")
			return
		case <-sub.Done():
			return
		case <-heartbeat.C:
			fmt.Fprint(w, ": ping\n\n")
			flusher.Flush()
		case ev := <-sub.Events:
			raw, err := json.Marshal(ev)
			if err != nil {
				log.Warn().Err(err).Msg("sse: failed to marshal patch event")
				continue
			}
			fmt.Fprintf(w, "event: patch\ndata: %s\n\n", raw)
			flusher.Flush()
		}
	}
}
