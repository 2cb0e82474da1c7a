package events

import (
	"encoding/json"
	"time"

	"github.com/go-monolith/mono/pkg/helper"
)

// NotificationQueuedEvent is emitted when another module (the REST/CRUD
// layer) wants a payload pushed to a user's personal room.
type NotificationQueuedEvent struct {
	TargetUserID string          `json:"target_user_id"`
	Payload      json.RawMessage `json:"payload"`
	Timestamp    time.Time       `json:"timestamp"`
}

// Event definitions for the notify domain.
var NotificationQueuedV1 = helper.EventDefinition[NotificationQueuedEvent](
	"notify",
	"NotificationQueued",
	"v1",
)
