package inventory

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/armoryline/armoryline-backend/pkg/db/models"
	"github.com/armoryline/armoryline-backend/pkg/enums"
	pkgerrors "github.com/armoryline/armoryline-backend/pkg/errors"
)

// ReservationRequest asks for qty units of a product on behalf of an order.
type ReservationRequest struct {
	ProductID uuid.UUID
	OrderID   uuid.UUID
	Qty       int
}

// ReservationResult reports the outcome for a single request. Reason is set
// only when Reserved is false.
type ReservationResult struct {
	ReservationID uuid.UUID
	ProductID     uuid.UUID
	Reserved      bool
	Reason        string
}

// Service covers the reservation lifecycle: claim stock at checkout, pin the
// claim open once payment lands, release it on cancellation or expiry, commit
// it when the order completes.
type Service interface {
	ReserveTx(ctx context.Context, tx *gorm.DB, requests []ReservationRequest, ttl time.Duration) ([]ReservationResult, error)
	ClearExpiryTx(ctx context.Context, tx *gorm.DB, orderID uuid.UUID) error
	ReleaseOrderTx(ctx context.Context, tx *gorm.DB, orderID uuid.UUID) ([]models.InventoryReservation, error)
	CommitOrderTx(ctx context.Context, tx *gorm.DB, orderID uuid.UUID) error
	FindExpired(ctx context.Context, cutoff time.Time, limit int) ([]models.InventoryReservation, error)
}

type service struct {
	repo Repository
}

// NewService builds the inventory service.
func NewService(repo Repository) (Service, error) {
	if repo == nil {
		return nil, fmt.Errorf("inventory repository required")
	}
	return &service{repo: repo}, nil
}

func (s *service) ReserveTx(ctx context.Context, tx *gorm.DB, requests []ReservationRequest, ttl time.Duration) ([]ReservationResult, error) {
	if tx == nil {
		return nil, pkgerrors.New(pkgerrors.CodeInternal, "transaction required")
	}
	if ttl <= 0 {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "reservation ttl must be positive")
	}
	for _, req := range requests {
		if req.Qty <= 0 {
			return nil, pkgerrors.New(pkgerrors.CodeValidation, "reservation qty must be positive")
		}
		if req.ProductID == uuid.Nil || req.OrderID == uuid.Nil {
			return nil, pkgerrors.New(pkgerrors.CodeValidation, "product and order ids required")
		}
	}

	repo := s.repo.WithTx(tx)
	expiresAt := time.Now().Add(ttl)
	results := make([]ReservationResult, 0, len(requests))

	for _, req := range requests {
		affected, err := repo.ReserveStock(ctx, req.ProductID, req.Qty)
		if err != nil {
			return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "reserve stock")
		}
		if affected == 0 {
			results = append(results, ReservationResult{
				ProductID: req.ProductID,
				Reserved:  false,
				Reason:    "insufficient stock",
			})
			continue
		}

		reservation := &models.InventoryReservation{
			ID:        uuid.New(),
			ProductID: req.ProductID,
			OrderID:   req.OrderID,
			Qty:       req.Qty,
			Status:    enums.ReservationStatusActive,
			ExpiresAt: &expiresAt,
		}
		if _, err := repo.CreateReservation(ctx, reservation); err != nil {
			return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "create reservation")
		}
		results = append(results, ReservationResult{
			ReservationID: reservation.ID,
			ProductID:     req.ProductID,
			Reserved:      true,
		})
	}

	return results, nil
}

// ClearExpiryTx removes the timeout from an order's active reservations.
// Called once the order's funds are captured: from that point the claim is
// backed by money and must not be swept away underneath the order.
func (s *service) ClearExpiryTx(ctx context.Context, tx *gorm.DB, orderID uuid.UUID) error {
	if tx == nil {
		return pkgerrors.New(pkgerrors.CodeInternal, "transaction required")
	}
	if orderID == uuid.Nil {
		return pkgerrors.New(pkgerrors.CodeValidation, "order id required")
	}
	if err := s.repo.WithTx(tx).ClearReservationExpiry(ctx, orderID); err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "clear reservation expiry")
	}
	return nil
}

func (s *service) ReleaseOrderTx(ctx context.Context, tx *gorm.DB, orderID uuid.UUID) ([]models.InventoryReservation, error) {
	if tx == nil {
		return nil, pkgerrors.New(pkgerrors.CodeInternal, "transaction required")
	}
	repo := s.repo.WithTx(tx)

	active, err := repo.FindReservationsByOrder(ctx, orderID, enums.ReservationStatusActive)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load reservations")
	}

	released := make([]models.InventoryReservation, 0, len(active))
	for _, reservation := range active {
		affected, err := repo.UpdateReservationStatus(ctx, reservation.ID, enums.ReservationStatusActive, enums.ReservationStatusReleased)
		if err != nil {
			return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "release reservation")
		}
		if affected == 0 {
			// Another path released or committed it first.
			continue
		}
		if err := repo.ReleaseStock(ctx, reservation.ProductID, reservation.Qty); err != nil {
			return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "return stock")
		}
		released = append(released, reservation)
	}
	return released, nil
}

func (s *service) CommitOrderTx(ctx context.Context, tx *gorm.DB, orderID uuid.UUID) error {
	if tx == nil {
		return pkgerrors.New(pkgerrors.CodeInternal, "transaction required")
	}
	repo := s.repo.WithTx(tx)

	active, err := repo.FindReservationsByOrder(ctx, orderID, enums.ReservationStatusActive)
	if err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load reservations")
	}

	for _, reservation := range active {
		affected, err := repo.UpdateReservationStatus(ctx, reservation.ID, enums.ReservationStatusActive, enums.ReservationStatusCommitted)
		if err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "commit reservation")
		}
		if affected == 0 {
			return pkgerrors.New(pkgerrors.CodeStateConflict, "reservation no longer active")
		}
		if err := repo.CommitStock(ctx, reservation.ProductID, reservation.Qty); err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "deduct stock")
		}
	}
	return nil
}

func (s *service) FindExpired(ctx context.Context, cutoff time.Time, limit int) ([]models.InventoryReservation, error) {
	rows, err := s.repo.FindExpiredActive(ctx, cutoff, limit)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "find expired reservations")
	}
	return rows, nil
}
