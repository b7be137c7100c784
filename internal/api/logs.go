package api

import (
	"context"
	"net/http"
	"time"

	"github.com/danielgtaylor/huma/v2"
	"github.com/danielgtaylor/huma/v2/sse"
	"github.com/smazurov/procwatch/internal/events"
)

// registerLogRoutes registers the process output SSE endpoint.
func (s *Server) registerLogRoutes() {
	sse.Register(s.api, huma.Operation{
		OperationID: "output-stream",
		Method:      http.MethodGet,
		Path:        "/api/output/stream",
		Summary:     "Output Stream",
		Description: "Real-time process output via Server-Sent Events. Sends retained lines first, then streams new ones.",
		Tags:        []string{"logs"},
		Security:    withAuth(),
		Errors:      []int{401},
	}, map[string]any{
		"output": events.ProcessOutputEvent{},
	}, func(ctx context.Context, input *struct {
		ID string `query:"id" example:"web" doc:"Only output of this process"`
	}, send sse.Sender) {
		// Subscribed before the replay: a line drained meanwhile may arrive twice but is never lost
		eventCh := make(chan any, 100)
		unsubscribe := events.SubscribeToChannelFiltered(s.eventBus, eventCh, func(e events.ProcessOutputEvent) bool {
			return input.ID == "" || e.ID == input.ID
		})
		defer unsubscribe()

		if s.history != nil {
			for _, entry := range s.history.Entries(input.ID) {
				event := events.ProcessOutputEvent{
					ID:        entry.ID,
					Stream:    string(entry.Stream),
					Line:      entry.Line,
					Timestamp: entry.Timestamp.Format(time.RFC3339Nano),
				}
				if err := send.Data(event); err != nil {
					return
				}
			}
		}

		for {
			select {
			case <-ctx.Done():
				return
			case event := <-eventCh:
				if err := send.Data(event); err != nil {
					return
				}
			}
		}
	})
}
