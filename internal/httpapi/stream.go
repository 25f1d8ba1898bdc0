package httpapi

import (
	"context"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"schoold/internal/auth"
	"schoold/internal/bus"
	"schoold/internal/models"
)

type streamEvent struct {
	subject string
	data    []byte
}

type streamClient struct {
	ident auth.Identity
	ch    chan streamEvent
}

// streamHub fans bus events out to connected SSE clients, filtered by role:
// admins see signups, teachers see submissions. The client set is a
// process-local cache, never a source of truth.
type streamHub struct {
	events *bus.Bus
	log    zerolog.Logger

	mu      sync.Mutex
	clients map[*streamClient]struct{}
}

func newStreamHub(events *bus.Bus, log zerolog.Logger) *streamHub {
	return &streamHub{
		events:  events,
		log:     log,
		clients: make(map[*streamClient]struct{}),
	}
}

// Run pumps bus messages into connected clients until ctx is cancelled.
// A nil bus makes the stream endpoint a connected-but-silent channel.
func (h *streamHub) Run(ctx context.Context) error {
	if h.events == nil {
		return nil
	}

	for _, subj := range []string{bus.SubjectUserSignup, bus.SubjectSubmissionCreated} {
		if _, err := h.events.SubscribeAll(ctx, subj, h.broadcast); err != nil {
			return fmt.Errorf("subscribe %s: %w", subj, err)
		}
	}
	return nil
}

func (h *streamHub) broadcast(subject string, data []byte) {
	evt := streamEvent{subject: subject, data: data}

	h.mu.Lock()
	defer h.mu.Unlock()
	for c := range h.clients {
		if !visibleTo(c.ident.Role, subject) {
			continue
		}
		select {
		case c.ch <- evt:
		default:
			// Slow consumer: drop rather than block the pump. Best-effort signal.
		}
	}
}

func visibleTo(role, subject string) bool {
	switch subject {
	case bus.SubjectUserSignup:
		return role == models.RoleAdmin
	case bus.SubjectSubmissionCreated:
		return role == models.RoleAdmin || role == models.RoleTeacher
	}
	return false
}

func (h *streamHub) register(ident auth.Identity) *streamClient {
	c := &streamClient{ident: ident, ch: make(chan streamEvent, 16)}
	h.mu.Lock()
	h.clients[c] = struct{}{}
	h.mu.Unlock()
	return c
}

func (h *streamHub) unregister(c *streamClient) {
	h.mu.Lock()
	delete(h.clients, c)
	h.mu.Unlock()
}

func eventName(subject string) string {
	switch subject {
	case bus.SubjectUserSignup:
		return "signup"
	case bus.SubjectSubmissionCreated:
		return "submission"
	}
	return "message"
}

func (a *API) handleNotificationStream(w http.ResponseWriter, r *http.Request) {
	ident, ok := IdentityFrom(r.Context())
	if !ok {
		respondError(w, http.StatusUnauthorized, "unauthenticated")
		return
	}

	flusher, ok := w.(http.Flusher)
	if !ok {
		respondError(w, http.StatusInternalServerError, "internal_error")
		return
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.WriteHeader(http.StatusOK)
	flusher.Flush()

	client := a.stream.register(ident)
	defer a.stream.unregister(client)

	streamClientsGauge.Inc()
	defer streamClientsGauge.Dec()

	heartbeat := time.NewTicker(30 * time.Second)
	defer heartbeat.Stop()

	for {
		select {
		case <-r.Context().Done():
			return
		case <-heartbeat.C:
			fmt.Fprint(w, ": ping\n\n")
			flusher.Flush()
		case evt := <-client.ch:
			fmt.Fprintf(w, "event: %s\ndata: %s\n\n", eventName(evt.subject), evt.data)
			flusher.Flush()
		}
	}
}
