package orders

import (
	"context"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/multivendhq/multivend-backend/pkg/db/models"
	"github.com/multivendhq/multivend-backend/pkg/enums"
	pkgerrors "github.com/multivendhq/multivend-backend/pkg/errors"
	"github.com/multivendhq/multivend-backend/pkg/outbox"
)

// CancelInput cancels vendor orders under one master order. An empty
// VendorOrderIDs slice means every cancellable vendor order.
type CancelInput struct {
	MasterOrderID  uuid.UUID
	VendorOrderIDs []uuid.UUID
	Reason         string
}

// cancellableStatuses: a vendor order can only be cancelled before the
// vendor has packed it.
var cancellableStatuses = map[enums.VendorOrderStatus]bool{
	enums.VendorOrderStatusConfirmed:  true,
	enums.VendorOrderStatusProcessing: true,
}

// CancelOrder cancels the selected vendor orders, restocks their items,
// and cascades the master order to cancelled once no live vendor orders
// remain. Nothing qualifying to cancel leaves the order untouched.
func (s *service) CancelOrder(ctx context.Context, input CancelInput) (*models.MasterOrder, error) {
	if input.MasterOrderID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "master order id required")
	}

	var result *models.MasterOrder
	err := s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		repo := s.repo.WithTx(tx)
		master, err := repo.FindMasterOrder(ctx, input.MasterOrderID)
		if err != nil {
			if err == gorm.ErrRecordNotFound {
				return pkgerrors.New(pkgerrors.CodeNotFound, "order not found")
			}
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load order")
		}

		selected := map[uuid.UUID]bool{}
		for _, id := range input.VendorOrderIDs {
			selected[id] = true
		}
		byID := map[uuid.UUID]bool{}
		for _, vo := range master.VendorOrders {
			byID[vo.ID] = true
		}
		for id := range selected {
			if !byID[id] {
				return pkgerrors.New(pkgerrors.CodeValidation, "vendor order does not belong to this order").
					WithDetails(map[string]any{"vendor_order_id": id.String()})
			}
		}

		var candidates []models.VendorOrder
		for _, vo := range master.VendorOrders {
			if len(selected) > 0 && !selected[vo.ID] {
				continue
			}
			if cancellableStatuses[vo.Status] {
				candidates = append(candidates, vo)
			}
		}
		if len(candidates) == 0 {
			return pkgerrors.New(pkgerrors.CodeStateConflict, "no cancellable vendor orders").
				WithDetails(map[string]any{"master_order_id": master.ID.String()})
		}

		now := s.now()
		inventory := s.catalog.WithTx(tx)
		for _, vo := range candidates {
			applied, err := repo.TransitionVendorOrder(ctx, vo.ID, vo.Status, enums.VendorOrderStatusCancelled,
				map[string]any{"cancelled_at": now})
			if err != nil {
				return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "cancel vendor order")
			}
			if !applied {
				return pkgerrors.New(pkgerrors.CodeStateConflict, "vendor order changed concurrently").
					WithDetails(map[string]any{"vendor_order_id": vo.ID.String()})
			}

			for _, item := range vo.Items {
				if err := inventory.ReleaseStock(ctx, item.ProductID, item.Qty); err != nil {
					return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "restock cancelled items")
				}
			}

			event := outbox.DomainEvent{
				EventType:     enums.EventVendorOrderCancelled,
				AggregateType: enums.AggregateVendorOrder,
				AggregateID:   vo.ID,
				Version:       1,
				Data: VendorOrderCancelledEvent{
					VendorOrderID: vo.ID,
					MasterOrderID: master.ID,
					VendorID:      vo.VendorID,
					Reason:        input.Reason,
				},
			}
			if err := s.outbox.Emit(ctx, tx, event); err != nil {
				return err
			}
		}

		remaining, err := repo.CountNonCancelled(ctx, master.ID)
		if err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "count live vendor orders")
		}
		if remaining == 0 {
			if err := repo.UpdateMasterOrderStatus(ctx, master.ID, enums.MasterOrderStatusCancelled, &now); err != nil {
				return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "cancel master order")
			}
			event := outbox.DomainEvent{
				EventType:     enums.EventOrderCancelled,
				AggregateType: enums.AggregateMasterOrder,
				AggregateID:   master.ID,
				Version:       1,
				Data: OrderCancelledEvent{
					MasterOrderID: master.ID,
					OrderNumber:   master.OrderNumber,
					Reason:        input.Reason,
				},
			}
			if err := s.outbox.Emit(ctx, tx, event); err != nil {
				return err
			}
		} else if err := s.recomputeMasterStatus(ctx, repo, master.ID); err != nil {
			return err
		}

		reloaded, err := repo.FindMasterOrder(ctx, master.ID)
		if err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "reload order")
		}
		result = reloaded
		return nil
	})
	if err != nil {
		return nil, err
	}
	return result, nil
}
