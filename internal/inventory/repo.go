package inventory

import (
	"context"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/armoryline/armoryline-backend/pkg/db/models"
	"github.com/armoryline/armoryline-backend/pkg/enums"
)

type repository struct {
	db *gorm.DB
}

// NewRepository builds an inventory repository bound to the provided DB.
func NewRepository(db *gorm.DB) Repository {
	return &repository{db: db}
}

func (r *repository) WithTx(tx *gorm.DB) Repository {
	if tx == nil {
		return r
	}
	return &repository{db: tx}
}

func (r *repository) FindItem(ctx context.Context, productID uuid.UUID) (*models.InventoryItem, error) {
	var item models.InventoryItem
	err := r.db.WithContext(ctx).Where("product_id = ?", productID).First(&item).Error
	if err != nil {
		return nil, err
	}
	return &item, nil
}

// ReserveStock moves qty from available to reserved in a single guarded
// statement. Zero rows affected means insufficient stock.
func (r *repository) ReserveStock(ctx context.Context, productID uuid.UUID, qty int) (int64, error) {
	res := r.db.WithContext(ctx).Model(&models.InventoryItem{}).
		Where("product_id = ? AND available_qty >= ?", productID, qty).
		Updates(map[string]any{
			"available_qty": gorm.Expr("available_qty - ?", qty),
			"reserved_qty":  gorm.Expr("reserved_qty + ?", qty),
		})
	return res.RowsAffected, res.Error
}

func (r *repository) ReleaseStock(ctx context.Context, productID uuid.UUID, qty int) error {
	return r.db.WithContext(ctx).Model(&models.InventoryItem{}).
		Where("product_id = ?", productID).
		Updates(map[string]any{
			"available_qty": gorm.Expr("available_qty + ?", qty),
			"reserved_qty":  gorm.Expr("reserved_qty - ?", qty),
		}).Error
}

func (r *repository) CommitStock(ctx context.Context, productID uuid.UUID, qty int) error {
	return r.db.WithContext(ctx).Model(&models.InventoryItem{}).
		Where("product_id = ?", productID).
		Update("reserved_qty", gorm.Expr("reserved_qty - ?", qty)).Error
}

func (r *repository) CreateReservation(ctx context.Context, reservation *models.InventoryReservation) (*models.InventoryReservation, error) {
	if err := r.db.WithContext(ctx).Create(reservation).Error; err != nil {
		return nil, err
	}
	return reservation, nil
}

func (r *repository) FindReservationsByOrder(ctx context.Context, orderID uuid.UUID, status enums.ReservationStatus) ([]models.InventoryReservation, error) {
	var rows []models.InventoryReservation
	err := r.db.WithContext(ctx).
		Where("order_id = ? AND status = ?", orderID, status).
		Order("created_at ASC").
		Find(&rows).Error
	return rows, err
}

// UpdateReservationStatus transitions a reservation with a status guard so
// concurrent sweeps and cancels cannot double-apply.
func (r *repository) UpdateReservationStatus(ctx context.Context, id uuid.UUID, from, to enums.ReservationStatus) (int64, error) {
	res := r.db.WithContext(ctx).Model(&models.InventoryReservation{}).
		Where("id = ? AND status = ?", id, from).
		Update("status", to)
	return res.RowsAffected, res.Error
}

func (r *repository) ClearReservationExpiry(ctx context.Context, orderID uuid.UUID) error {
	return r.db.WithContext(ctx).Model(&models.InventoryReservation{}).
		Where("order_id = ? AND status = ?", orderID, enums.ReservationStatusActive).
		Update("expires_at", nil).Error
}

func (r *repository) FindExpiredActive(ctx context.Context, cutoff time.Time, limit int) ([]models.InventoryReservation, error) {
	var rows []models.InventoryReservation
	q := r.db.WithContext(ctx).
		Where("status = ? AND expires_at IS NOT NULL AND expires_at <= ?", enums.ReservationStatusActive, cutoff).
		Order("expires_at ASC")
	if limit > 0 {
		q = q.Limit(limit)
	}
	err := q.Find(&rows).Error
	return rows, err
}
