package orders

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/multivendhq/multivend-backend/pkg/db/models"
	"github.com/multivendhq/multivend-backend/pkg/enums"
	pkgerrors "github.com/multivendhq/multivend-backend/pkg/errors"
	"github.com/multivendhq/multivend-backend/pkg/outbox"
)

// TransitionInput moves one vendor order to the next fulfillment stage.
type TransitionInput struct {
	VendorOrderID uuid.UUID
	Target        enums.VendorOrderStatus
}

// Transition applies one step of the fulfillment state machine. The current
// status is re-validated against the freshly loaded row inside the
// transaction, and the update itself is keyed on that status, so a
// concurrent transition cannot slip through on a stale snapshot.
func (s *service) Transition(ctx context.Context, input TransitionInput) (*models.VendorOrder, error) {
	if input.VendorOrderID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "vendor order id required")
	}
	if !input.Target.IsValid() {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, fmt.Sprintf("invalid status %q", input.Target))
	}
	if input.Target == enums.VendorOrderStatusCancelled {
		return nil, pkgerrors.New(pkgerrors.CodeStateConflict, "cancellation goes through the cancellation service")
	}

	var updated *models.VendorOrder
	err := s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		repo := s.repo.WithTx(tx)
		order, err := repo.FindVendorOrder(ctx, input.VendorOrderID)
		if err != nil {
			if err == gorm.ErrRecordNotFound {
				return pkgerrors.New(pkgerrors.CodeNotFound, "vendor order not found")
			}
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load vendor order")
		}

		from := order.Status
		if !transitionAllowed(from, input.Target) {
			return pkgerrors.New(pkgerrors.CodeStateConflict, "invalid status transition").
				WithDetails(map[string]any{"from": from.String(), "to": input.Target.String()})
		}
		if input.Target == enums.VendorOrderStatusDelivered && order.IsCOD && !order.CODConfirmed {
			return pkgerrors.New(pkgerrors.CodeStateConflict, "cash collection not confirmed").
				WithDetails(map[string]any{"vendor_order_id": order.ID.String()})
		}

		now := s.now()
		stamps := map[string]any{}
		if column, ok := statusTimestampColumn[input.Target]; ok {
			stamps[column] = now
		}
		applied, err := repo.TransitionVendorOrder(ctx, order.ID, from, input.Target, stamps)
		if err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "transition vendor order")
		}
		if !applied {
			return pkgerrors.New(pkgerrors.CodeStateConflict, "vendor order changed concurrently").
				WithDetails(map[string]any{"expected": from.String()})
		}
		order.Status = input.Target

		if err := s.recomputeMasterStatus(ctx, repo, order.MasterOrderID); err != nil {
			return err
		}

		events := []outbox.DomainEvent{{
			EventType:     enums.EventVendorOrderStatusChanged,
			AggregateType: enums.AggregateVendorOrder,
			AggregateID:   order.ID,
			Version:       1,
			Data: VendorOrderStatusChangedEvent{
				VendorOrderID: order.ID,
				MasterOrderID: order.MasterOrderID,
				VendorID:      order.VendorID,
				From:          from,
				To:            input.Target,
			},
		}}
		if input.Target == enums.VendorOrderStatusShipped {
			events = append(events, outbox.DomainEvent{
				EventType:     enums.EventVendorOrderShipped,
				AggregateType: enums.AggregateVendorOrder,
				AggregateID:   order.ID,
				Version:       1,
				Data: VendorOrderStatusChangedEvent{
					VendorOrderID: order.ID,
					MasterOrderID: order.MasterOrderID,
					VendorID:      order.VendorID,
					From:          from,
					To:            input.Target,
				},
			})
		}
		for _, event := range events {
			if err := s.outbox.Emit(ctx, tx, event); err != nil {
				return err
			}
		}

		updated = order
		return nil
	})
	if err != nil {
		return nil, err
	}
	return updated, nil
}

// ConfirmCashCollected marks a COD vendor order's cash as received and
// settles its payment trail. Confirming twice is a no-op.
func (s *service) ConfirmCashCollected(ctx context.Context, vendorOrderID uuid.UUID) (*models.VendorOrder, error) {
	if vendorOrderID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "vendor order id required")
	}

	var updated *models.VendorOrder
	err := s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		repo := s.repo.WithTx(tx)
		order, err := repo.FindVendorOrder(ctx, vendorOrderID)
		if err != nil {
			if err == gorm.ErrRecordNotFound {
				return pkgerrors.New(pkgerrors.CodeNotFound, "vendor order not found")
			}
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load vendor order")
		}
		if !order.IsCOD {
			return pkgerrors.New(pkgerrors.CodeValidation, "not a cash-on-delivery order")
		}
		if order.Status == enums.VendorOrderStatusCancelled {
			return pkgerrors.New(pkgerrors.CodeStateConflict, "vendor order is cancelled")
		}

		confirmed, err := repo.MarkCODConfirmed(ctx, order.ID)
		if err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "confirm cash collected")
		}
		if !confirmed {
			// Already confirmed; settlement ran with the first call.
			updated = order
			return nil
		}
		order.CODConfirmed = true

		if err := s.cod.SettleCashOnDelivery(ctx, tx, order, s.now()); err != nil {
			return err
		}
		updated = order
		return nil
	})
	if err != nil {
		return nil, err
	}
	return updated, nil
}

func (s *service) recomputeMasterStatus(ctx context.Context, repo Repository, masterOrderID uuid.UUID) error {
	master, err := repo.FindMasterOrder(ctx, masterOrderID)
	if err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load master order")
	}
	statuses := make([]enums.VendorOrderStatus, 0, len(master.VendorOrders))
	for _, vo := range master.VendorOrders {
		statuses = append(statuses, vo.Status)
	}
	resolved := ResolveMasterStatus(statuses, master.Status)
	if resolved == master.Status {
		return nil
	}
	if err := repo.UpdateMasterOrderStatus(ctx, master.ID, resolved, nil); err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "update master status")
	}
	return nil
}
