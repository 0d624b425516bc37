package checkout

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/armoryline/armoryline-backend/internal/escrow"
	"github.com/armoryline/armoryline-backend/internal/inventory"
	"github.com/armoryline/armoryline-backend/internal/orders"
	"github.com/armoryline/armoryline-backend/pkg/db/models"
	"github.com/armoryline/armoryline-backend/pkg/enums"
	pkgerrors "github.com/armoryline/armoryline-backend/pkg/errors"
	"github.com/armoryline/armoryline-backend/pkg/logger"
	"github.com/armoryline/armoryline-backend/pkg/outbox"
	"github.com/armoryline/armoryline-backend/pkg/types"
)

// CartItem is one requested product line.
type CartItem struct {
	ProductID uuid.UUID
	Qty       int
}

// Input is a checkout request for a single-vendor cart.
type Input struct {
	CustomerID      uuid.UUID
	Items           []CartItem
	ShippingAddress *types.Address
	Actor           *outbox.ActorRef
}

// Service runs the checkout workflow in two phases. The first transaction
// snapshots prices, creates the order and reserves stock; the escrow capture
// then runs outside any transaction; the second transaction records the hold,
// pins the reservations open and opens the compliance case. A failure before
// capture leaves the order at inventory_reserved for the expiry sweep; a
// failure after capture voids the captured funds.
type Service interface {
	Checkout(ctx context.Context, input Input) (*models.Order, error)
}

type service struct {
	catalog        ProductCatalog
	orders         orderWorkflow
	inventory      stockReserver
	escrow         escrowCapturer
	compliance     caseOpener
	tx             txRunner
	logg           *logger.Logger
	reservationTTL time.Duration
}

// NewService builds the checkout service.
func NewService(
	catalog ProductCatalog,
	orderSvc orderWorkflow,
	stock stockReserver,
	escrow escrowCapturer,
	compliance caseOpener,
	tx txRunner,
	logg *logger.Logger,
	reservationTTL time.Duration,
) (Service, error) {
	if catalog == nil {
		return nil, fmt.Errorf("product catalog required")
	}
	if orderSvc == nil {
		return nil, fmt.Errorf("order workflow required")
	}
	if stock == nil {
		return nil, fmt.Errorf("stock reserver required")
	}
	if escrow == nil {
		return nil, fmt.Errorf("escrow capturer required")
	}
	if compliance == nil {
		return nil, fmt.Errorf("case opener required")
	}
	if tx == nil {
		return nil, fmt.Errorf("transaction runner required")
	}
	if logg == nil {
		return nil, fmt.Errorf("logger required")
	}
	if reservationTTL <= 0 {
		return nil, fmt.Errorf("reservation ttl must be positive")
	}
	return &service{
		catalog:        catalog,
		orders:         orderSvc,
		inventory:      stock,
		escrow:         escrow,
		compliance:     compliance,
		tx:             tx,
		logg:           logg,
		reservationTTL: reservationTTL,
	}, nil
}

func (s *service) Checkout(ctx context.Context, input Input) (*models.Order, error) {
	if input.CustomerID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "customer id required")
	}
	if len(input.Items) == 0 {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "cart is empty")
	}
	seen := make(map[uuid.UUID]struct{}, len(input.Items))
	ids := make([]uuid.UUID, 0, len(input.Items))
	for _, item := range input.Items {
		if item.ProductID == uuid.Nil {
			return nil, pkgerrors.New(pkgerrors.CodeValidation, "product id required on every line")
		}
		if item.Qty <= 0 {
			return nil, pkgerrors.New(pkgerrors.CodeValidation, "quantity must be positive")
		}
		if _, dup := seen[item.ProductID]; dup {
			return nil, pkgerrors.New(pkgerrors.CodeValidation, "duplicate product line in cart")
		}
		seen[item.ProductID] = struct{}{}
		ids = append(ids, item.ProductID)
	}

	products, err := s.catalog.FindByIDs(ctx, ids)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load products")
	}
	byID := make(map[uuid.UUID]models.Product, len(products))
	for _, p := range products {
		byID[p.ID] = p
	}

	var vendorID uuid.UUID
	lineItems := make([]models.OrderLineItem, 0, len(input.Items))
	var totalCents int64
	for _, item := range input.Items {
		product, ok := byID[item.ProductID]
		if !ok {
			return nil, pkgerrors.New(pkgerrors.CodeNotFound,
				fmt.Sprintf("product %s not found", item.ProductID))
		}
		if vendorID == uuid.Nil {
			vendorID = product.VendorID
		} else if product.VendorID != vendorID {
			return nil, pkgerrors.New(pkgerrors.CodeValidation,
				"cart spans multiple vendors; one order per vendor")
		}
		subtotal := product.PriceCents * int64(item.Qty)
		totalCents += subtotal
		lineItems = append(lineItems, models.OrderLineItem{
			ProductID:      product.ID,
			Name:           product.Name,
			Qty:            item.Qty,
			UnitPriceCents: product.PriceCents,
			SubtotalCents:  subtotal,
		})
	}

	if err := s.checkVendor(ctx, vendorID); err != nil {
		return nil, err
	}

	var order *models.Order
	err = s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		var terr error
		order, terr = s.orders.CreateTx(ctx, tx, &models.Order{
			CustomerID:      input.CustomerID,
			VendorID:        vendorID,
			Currency:        enums.CurrencyUSD,
			TotalCents:      totalCents,
			ShippingAddress: input.ShippingAddress,
		}, lineItems, input.Actor)
		if terr != nil {
			return terr
		}

		requests := make([]inventory.ReservationRequest, 0, len(input.Items))
		for _, item := range input.Items {
			requests = append(requests, inventory.ReservationRequest{
				ProductID: item.ProductID,
				OrderID:   order.ID,
				Qty:       item.Qty,
			})
		}
		results, terr := s.inventory.ReserveTx(ctx, tx, requests, s.reservationTTL)
		if terr != nil {
			return terr
		}
		for _, result := range results {
			if !result.Reserved {
				return pkgerrors.New(pkgerrors.CodeConflict,
					fmt.Sprintf("insufficient stock for product %s", result.ProductID)).
					WithDetails(map[string]any{"product_id": result.ProductID, "reason": result.Reason})
			}
			if terr := tx.Model(&models.OrderLineItem{}).
				Where("order_id = ? AND product_id = ?", order.ID, result.ProductID).
				Update("reservation_id", result.ReservationID).Error; terr != nil {
				return terr
			}
		}
		return s.orders.AdvanceTx(ctx, tx, order, orders.TriggerReserveInventory, input.Actor, nil)
	})
	if err != nil {
		return nil, err
	}

	// The processor call runs outside any transaction so a slow or failed
	// capture never holds row locks. If it fails here, the order stays at
	// inventory_reserved and the reservation TTL sweeps it away.
	capture, err := s.escrow.Capture(ctx, order.ID, totalCents, order.Currency)
	if err != nil {
		return nil, err
	}

	err = s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		hold, terr := s.escrow.RecordCaptureTx(ctx, tx, capture)
		if terr != nil {
			return terr
		}
		if terr := s.orders.AdvanceTx(ctx, tx, order, orders.TriggerCaptureEscrow, input.Actor,
			map[string]any{"escrow_hold_id": hold.ID}); terr != nil {
			return terr
		}
		order.EscrowHoldID = &hold.ID

		// Funded reservations must not time out underneath the order.
		if terr := s.inventory.ClearExpiryTx(ctx, tx, order.ID); terr != nil {
			return terr
		}

		complianceCase, terr := s.compliance.OpenCaseTx(ctx, tx, order.ID, order.CustomerID, order.VendorID)
		if terr != nil {
			return terr
		}
		if terr := s.orders.AdvanceTx(ctx, tx, order, orders.TriggerOpenCompliance, input.Actor,
			map[string]any{"compliance_case_id": complianceCase.ID}); terr != nil {
			return terr
		}
		order.ComplianceCaseID = &complianceCase.ID
		return nil
	})
	if err != nil {
		s.voidCapture(ctx, order.ID, capture)
		return nil, err
	}

	logCtx := s.logg.WithFields(ctx, map[string]any{
		"order_id":    order.ID.String(),
		"vendor_id":   order.VendorID.String(),
		"total_cents": order.TotalCents,
		"line_items":  len(lineItems),
	})
	s.logg.Info(logCtx, "checkout completed")
	return order, nil
}

// checkVendor rejects carts whose vendor cannot legally sell: not approved,
// or selling on a missing or expired license.
func (s *service) checkVendor(ctx context.Context, vendorID uuid.UUID) error {
	vendor, err := s.catalog.FindVendor(ctx, vendorID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return pkgerrors.New(pkgerrors.CodeNotFound, "vendor not found")
		}
		return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load vendor")
	}
	if vendor.Status != enums.VendorStatusApproved {
		return pkgerrors.New(pkgerrors.CodeForbidden, "vendor is not approved to sell")
	}
	if vendor.LicenseExpiresAt == nil || !vendor.LicenseExpiresAt.After(time.Now()) {
		return pkgerrors.New(pkgerrors.CodeForbidden, "vendor license has expired")
	}
	return nil
}

// voidCapture returns captured funds when the recording transaction rolled
// back. The processor ref is logged either way so operators can reconcile a
// failed void by hand.
func (s *service) voidCapture(ctx context.Context, orderID uuid.UUID, capture *escrow.Capture) {
	logCtx := s.logg.WithFields(ctx, map[string]any{
		"order_id":      orderID.String(),
		"processor_ref": capture.ProcessorRef,
		"amount_cents":  capture.AmountCents,
	})
	if err := s.escrow.VoidCapture(ctx, capture); err != nil {
		s.logg.Error(logCtx, "void of captured funds failed; manual reconciliation required", err)
		return
	}
	s.logg.Warn(logCtx, "captured funds voided after checkout failure")
}
