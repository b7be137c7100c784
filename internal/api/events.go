package api

import (
	"context"
	"maps"
	"net/http"
	"time"

	"github.com/danielgtaylor/huma/v2"
	"github.com/danielgtaylor/huma/v2/sse"
	"github.com/smazurov/procwatch/internal/api/models"
	"github.com/smazurov/procwatch/internal/events"
	"github.com/smazurov/procwatch/internal/metrics/exporters"
)

// registerSSERoutes registers the native Huma SSE endpoint.
func (s *Server) registerSSERoutes() {
	sse.Register(s.api, huma.Operation{
		OperationID: "events-stream",
		Method:      http.MethodGet,
		Path:        "/api/events",
		Summary:     "Server-Sent Events Stream",
		Description: "Real-time stream of process lifecycle changes, drain errors and procfile reloads",
		Tags:        []string{"events"},
		Security:    withAuth(),
		Errors:      []int{401},
	}, func() map[string]any {
		eventTypes := map[string]any{
			"connected":             models.ConnectedData{},
			"process-state-changed": events.ProcessStateChangedEvent{},
			"process-error":         events.ProcessErrorEvent{},
			"process-added":         events.ProcessAddedEvent{},
			"process-removed":       events.ProcessRemovedEvent{},
			"config-reloaded":       events.ConfigReloadedEvent{},
			"config-error":          events.ConfigErrorEvent{},
		}

		// Metrics exporter events for this endpoint
		maps.Copy(eventTypes, exporters.GetEventTypes())

		return eventTypes
	}(), func(ctx context.Context, _ *struct{}, send sse.Sender) {
		eventCh := make(chan any, 10)

		unsubscribers := []func(){
			events.SubscribeToChannel[events.ProcessStateChangedEvent](s.eventBus, eventCh),
			events.SubscribeToChannel[events.ProcessErrorEvent](s.eventBus, eventCh),
			events.SubscribeToChannel[events.ProcessAddedEvent](s.eventBus, eventCh),
			events.SubscribeToChannel[events.ProcessRemovedEvent](s.eventBus, eventCh),
			events.SubscribeToChannel[events.ConfigReloadedEvent](s.eventBus, eventCh),
			events.SubscribeToChannel[events.ConfigErrorEvent](s.eventBus, eventCh),
			events.SubscribeToChannel[events.ProcessMetricsEvent](s.eventBus, eventCh),
		}
		defer func() {
			for _, unsub := range unsubscribers {
				unsub()
			}
		}()

		if err := send.Data(models.ConnectedData{
			Message:   "SSE connection established",
			Timestamp: time.Now().Format(time.RFC3339),
		}); err != nil {
			return
		}

		for {
			select {
			case <-ctx.Done():
				return
			case event := <-eventCh:
				if err := send.Data(event); err != nil {
					// Connection failed, clean up and exit
					return
				}
			}
		}
	})
}
