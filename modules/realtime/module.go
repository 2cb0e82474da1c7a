package realtime

import (
	"context"
	"fmt"
	"log"

	"github.com/go-monolith/mono"
	"github.com/go-monolith/mono/pkg/helper"

	"github.com/XuanSon0704/Reels-Chat/events"
	"github.com/XuanSon0704/Reels-Chat/modules/participants"
	"github.com/XuanSon0704/Reels-Chat/modules/presence"
)

// Module wires the hub and router into the application lifecycle and
// consumes queued notifications from the EventBus.
type Module struct {
	hub          *Hub
	router       *Router
	participants *participants.Module
	presence     *presence.Module
}

// Compile-time interface checks.
var (
	_ mono.Module                = (*Module)(nil)
	_ mono.EventConsumerModule   = (*Module)(nil)
	_ mono.HealthCheckableModule = (*Module)(nil)
)

// NewModule creates the real-time module. The participants and presence
// modules must be registered before this one so their stores exist by
// the time Start runs.
func NewModule(participantsModule *participants.Module, presenceModule *presence.Module) *Module {
	return &Module{
		hub:          NewHub(),
		participants: participantsModule,
		presence:     presenceModule,
	}
}

// Name returns the module name.
func (m *Module) Name() string {
	return "realtime"
}

// Start builds the router over the started stores.
func (m *Module) Start(_ context.Context) error {
	store := m.participants.Repository()
	if store == nil {
		return fmt.Errorf("participants module not started")
	}
	m.router = NewRouter(m.hub, store, m.presence.Store())
	log.Println("[realtime] Module started - event router ready")
	return nil
}

// Stop closes every live connection.
func (m *Module) Stop(_ context.Context) error {
	clientCount := m.hub.ClientCount()
	m.hub.CloseAll()
	log.Printf("[realtime] Module stopped - %d clients were connected", clientCount)
	return nil
}

// Health reports hub occupancy.
func (m *Module) Health(_ context.Context) mono.HealthStatus {
	return mono.HealthStatus{
		Healthy: m.router != nil,
		Message: "operational",
		Details: map[string]any{
			"connected_clients": m.hub.ClientCount(),
			"active_rooms":      m.hub.RoomCount(),
		},
	}
}

// RegisterEventConsumers subscribes to queued notifications from other
// modules (the REST layer pushes through here).
func (m *Module) RegisterEventConsumers(registry mono.EventRegistry) error {
	if err := helper.RegisterTypedEventConsumer(
		registry, events.NotificationQueuedV1, m.handleNotificationQueued, m,
	); err != nil {
		return fmt.Errorf("failed to register NotificationQueued consumer: %w", err)
	}
	log.Println("[realtime] Registered event consumers: NotificationQueued")
	return nil
}

func (m *Module) handleNotificationQueued(_ context.Context, event events.NotificationQueuedEvent, _ *mono.Msg) error {
	m.router.NotifyUser(event.TargetUserID, event.Payload)
	return nil
}

// Hub returns the room registry.
func (m *Module) Hub() *Hub {
	return m.hub
}

// Router returns the event router for the transport layer.
func (m *Module) Router() *Router {
	return m.router
}
