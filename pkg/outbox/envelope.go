package outbox

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
)

// ActorRef identifies who produced the event. System actors (cron, provider
// callbacks acting without a session) carry a zero UserID.
type ActorRef struct {
	UserID   uuid.UUID  `json:"userId"`
	VendorID *uuid.UUID `json:"vendorId,omitempty"`
	Role     string     `json:"role,omitempty"`
}

// PayloadEnvelope is the versioned payload stored in outbox_events rows.
// Consumers key off Version before decoding Data.
type PayloadEnvelope struct {
	Version    int             `json:"version"`
	EventID    string          `json:"eventId"`
	OccurredAt time.Time       `json:"occurredAt"`
	Actor      *ActorRef       `json:"actor,omitempty"`
	Data       json.RawMessage `json:"data"`
}
