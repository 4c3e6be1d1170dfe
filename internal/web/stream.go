package web

import (
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	"vectornav-ng/internal/bus"
)

// StreamHandler serves published messages as server-sent events. The
// optional topic query parameter selects one topic; without it every topic
// is streamed. Each event's name is the topic and its data the JSON message.
func StreamHandler(b *bus.Broker) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodGet {
			w.Header().Set("Allow", http.MethodGet)
			http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
			return
		}
		flusher, ok := w.(http.Flusher)
		if !ok {
			http.Error(w, "streaming unsupported", http.StatusInternalServerError)
			return
		}

		topic := strings.TrimSpace(r.URL.Query().Get("topic"))
		id, ch := b.Subscribe(topic, 32)
		defer b.Unsubscribe(id)

		w.Header().Set("Content-Type", "text/event-stream")
		w.Header().Set("Cache-Control", "no-store")
		w.Header().Set("Connection", "keep-alive")
		w.WriteHeader(http.StatusOK)
		flusher.Flush()

		keepalive := time.NewTicker(15 * time.Second)
		defer keepalive.Stop()

		for {
			select {
			case <-r.Context().Done():
				return
			case <-keepalive.C:
				if _, err := fmt.Fprint(w, ": keepalive\n\n"); err != nil {
					return
				}
				flusher.Flush()
			case m, ok := <-ch:
				if !ok {
					return
				}
				data, err := json.Marshal(m)
				if err != nil {
					continue
				}
				if _, err := fmt.Fprintf(w, "event: %s\ndata: %s\n\n", m.Topic, data); err != nil {
					return
				}
				flusher.Flush()
			}
		}
	})
}
