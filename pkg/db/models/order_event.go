package models

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"

	"github.com/armoryline/armoryline-backend/pkg/enums"
)

// OrderEvent is one row of the append-only per-order transition log used for
// audit replay. Seq is monotonic within an order.
type OrderEvent struct {
	ID        uuid.UUID        `gorm:"column:id;type:uuid;default:gen_random_uuid();primaryKey"`
	OrderID   uuid.UUID        `gorm:"column:order_id;type:uuid;not null;index:idx_order_events_order_seq,unique,priority:1"`
	Seq       int              `gorm:"column:seq;not null;index:idx_order_events_order_seq,unique,priority:2"`
	FromState enums.OrderState `gorm:"column:from_state;type:order_state;not null"`
	ToState   enums.OrderState `gorm:"column:to_state;type:order_state;not null"`
	Trigger   string           `gorm:"column:trigger;not null"`
	ActorID   *uuid.UUID       `gorm:"column:actor_id;type:uuid"`
	Metadata  json.RawMessage  `gorm:"column:metadata;type:jsonb"`
	CreatedAt time.Time        `gorm:"column:created_at;autoCreateTime"`
}
