package checkout

import (
	"context"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/armoryline/armoryline-backend/internal/escrow"
	"github.com/armoryline/armoryline-backend/internal/inventory"
	"github.com/armoryline/armoryline-backend/internal/orders"
	"github.com/armoryline/armoryline-backend/pkg/db/models"
	"github.com/armoryline/armoryline-backend/pkg/enums"
	"github.com/armoryline/armoryline-backend/pkg/outbox"
)

type txRunner interface {
	WithTx(ctx context.Context, fn func(tx *gorm.DB) error) error
}

// orderWorkflow is the slice of the orders service checkout drives.
type orderWorkflow interface {
	CreateTx(ctx context.Context, tx *gorm.DB, order *models.Order, items []models.OrderLineItem, actor *outbox.ActorRef) (*models.Order, error)
	AdvanceTx(ctx context.Context, tx *gorm.DB, order *models.Order, trigger orders.Trigger, actor *outbox.ActorRef, updates map[string]any) error
}

type stockReserver interface {
	ReserveTx(ctx context.Context, tx *gorm.DB, requests []inventory.ReservationRequest, ttl time.Duration) ([]inventory.ReservationResult, error)
	ClearExpiryTx(ctx context.Context, tx *gorm.DB, orderID uuid.UUID) error
}

type escrowCapturer interface {
	Capture(ctx context.Context, orderID uuid.UUID, amountCents int64, currency enums.Currency) (*escrow.Capture, error)
	RecordCaptureTx(ctx context.Context, tx *gorm.DB, capture *escrow.Capture) (*models.EscrowHold, error)
	VoidCapture(ctx context.Context, capture *escrow.Capture) error
}

type caseOpener interface {
	OpenCaseTx(ctx context.Context, tx *gorm.DB, orderID, customerID, vendorID uuid.UUID) (*models.ComplianceCase, error)
}

// ProductCatalog resolves price/vendor snapshots for cart lines and the
// selling vendor's standing.
type ProductCatalog interface {
	FindByIDs(ctx context.Context, ids []uuid.UUID) ([]models.Product, error)
	FindVendor(ctx context.Context, vendorID uuid.UUID) (*models.Vendor, error)
}
