package cron

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/multierr"
	"gorm.io/gorm"

	"github.com/armoryline/armoryline-backend/pkg/db/models"
	"github.com/armoryline/armoryline-backend/pkg/enums"
	"github.com/armoryline/armoryline-backend/pkg/logger"
	"github.com/armoryline/armoryline-backend/pkg/outbox"
	"github.com/armoryline/armoryline-backend/pkg/outbox/payloads"
)

const sweepBatchSize = 200

type txRunner interface {
	WithTx(ctx context.Context, fn func(tx *gorm.DB) error) error
}

type expiredReservationReader interface {
	FindExpired(ctx context.Context, cutoff time.Time, limit int) ([]models.InventoryReservation, error)
}

type orderSweeper interface {
	SweepCancelTx(ctx context.Context, tx *gorm.DB, orderID uuid.UUID) (bool, error)
}

type outboxEmitter interface {
	Emit(ctx context.Context, tx *gorm.DB, event outbox.DomainEvent) error
}

// ReservationSweepJobParams configure the expiry sweep.
type ReservationSweepJobParams struct {
	Logger *logger.Logger
	DB     txRunner
	Reader expiredReservationReader
	Orders orderSweeper
	Outbox outboxEmitter
}

// NewReservationSweepJob builds the cron job that releases expired
// reservations and cancels their owning orders.
func NewReservationSweepJob(params ReservationSweepJobParams) (Job, error) {
	if params.Logger == nil {
		return nil, fmt.Errorf("logger required")
	}
	if params.DB == nil {
		return nil, fmt.Errorf("db runner required")
	}
	if params.Reader == nil {
		return nil, fmt.Errorf("expired reservation reader required")
	}
	if params.Orders == nil {
		return nil, fmt.Errorf("order sweeper required")
	}
	if params.Outbox == nil {
		return nil, fmt.Errorf("outbox service required")
	}
	return &reservationSweepJob{
		logg:   params.Logger,
		db:     params.DB,
		reader: params.Reader,
		orders: params.Orders,
		outbox: params.Outbox,
		now:    time.Now,
	}, nil
}

type reservationSweepJob struct {
	logg   *logger.Logger
	db     txRunner
	reader expiredReservationReader
	orders orderSweeper
	outbox outboxEmitter
	now    func() time.Time
}

func (j *reservationSweepJob) Name() string { return "reservation-sweep" }

func (j *reservationSweepJob) Run(ctx context.Context) error {
	cutoff := j.now()
	expired, err := j.reader.FindExpired(ctx, cutoff, sweepBatchSize)
	if err != nil {
		return fmt.Errorf("find expired reservations: %w", err)
	}
	if len(expired) == 0 {
		return nil
	}

	byOrder := make(map[uuid.UUID][]uuid.UUID)
	for _, reservation := range expired {
		byOrder[reservation.OrderID] = append(byOrder[reservation.OrderID], reservation.ID)
	}

	var errs []error
	swept := 0
	for orderID, reservationIDs := range byOrder {
		err := j.db.WithTx(ctx, func(tx *gorm.DB) error {
			cancelled, err := j.orders.SweepCancelTx(ctx, tx, orderID)
			if err != nil {
				return err
			}
			if !cancelled {
				return nil
			}
			swept++
			return j.outbox.Emit(ctx, tx, outbox.DomainEvent{
				EventType:     enums.EventReservationSweepReleased,
				AggregateType: enums.AggregateOrder,
				AggregateID:   orderID,
				Data: payloads.ReservationSweepReleasedEvent{
					OrderID:        orderID,
					ReservationIDs: reservationIDs,
					ExpiredAt:      cutoff,
				},
			})
		})
		if err != nil {
			errs = append(errs, fmt.Errorf("sweep order %s: %w", orderID, err))
		}
	}

	logCtx := j.logg.WithFields(ctx, map[string]any{
		"expired_reservations": len(expired),
		"orders_cancelled":     swept,
	})
	j.logg.Info(logCtx, "reservation sweep finished")
	return multierr.Combine(errs...)
}
