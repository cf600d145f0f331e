package orders

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/angelmondragon/duka-backend/internal/notifications"
	"github.com/angelmondragon/duka-backend/pkg/db/models"
	"github.com/angelmondragon/duka-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/duka-backend/pkg/errors"
	"github.com/angelmondragon/duka-backend/pkg/logger"
	"github.com/angelmondragon/duka-backend/pkg/outbox"
	"github.com/angelmondragon/duka-backend/pkg/outbox/payloads"
	"github.com/angelmondragon/duka-backend/pkg/types"
)

type txRunner interface {
	WithTx(ctx context.Context, fn func(tx *gorm.DB) error) error
}

type outboxPublisher interface {
	Emit(ctx context.Context, tx *gorm.DB, event outbox.DomainEvent) error
}

type orderNotifier interface {
	Dispatch(ctx context.Context, trigger enums.NotificationTrigger, order *models.Order) notifications.DispatchResult
}

type notificationLogReader interface {
	ListByOrder(ctx context.Context, orderID uuid.UUID) ([]models.NotificationLog, error)
}

// Actor identifies who is changing order state.
type Actor struct {
	UserID     *uuid.UUID
	SupplierID *uuid.UUID
	Role       enums.ActorRole
}

func (a Actor) ref() *outbox.ActorRef {
	return &outbox.ActorRef{UserID: a.UserID, SupplierID: a.SupplierID, Role: a.Role}
}

// StatusUpdate carries an admin change to the payment or delivery status.
// Provider fields are only written alongside a payment status change.
type StatusUpdate struct {
	PaymentStatus     *enums.PaymentStatus
	DeliveryStatus    *enums.DeliveryStatus
	CourierName       *string
	CourierPhone      *string
	Provider          *string
	ProviderReference *string
	ProviderMetadata  map[string]any
}

func (u StatusUpdate) empty() bool {
	return u.PaymentStatus == nil && u.DeliveryStatus == nil && u.CourierName == nil && u.CourierPhone == nil
}

// FulfillmentUpdate moves one supplier line.
type FulfillmentUpdate struct {
	Status         enums.FulfillmentStatus
	TrackingNumber *string
}

// Service manages the order after checkout.
type Service interface {
	GetOrder(ctx context.Context, orderID uuid.UUID) (*models.Order, error)
	UpdateOrderStatus(ctx context.Context, actor Actor, orderID uuid.UUID, update StatusUpdate) (*models.Order, error)
	UpdateItemFulfillment(ctx context.Context, actor Actor, itemID uuid.UUID, update FulfillmentUpdate) (*models.OrderItem, error)
	ListNotificationLogs(ctx context.Context, orderID uuid.UUID) ([]models.NotificationLog, error)
}

// ServiceParams wires the orders service. Notifier is optional.
type ServiceParams struct {
	TxRunner   txRunner
	Repository Repository
	Outbox     outboxPublisher
	Notifier   orderNotifier
	Logs       notificationLogReader
	Logger     *logger.Logger

	DispatchTimeout time.Duration
}

type service struct {
	tx       txRunner
	repo     Repository
	outbox   outboxPublisher
	notifier orderNotifier
	logs     notificationLogReader
	logg     *logger.Logger
	wait     time.Duration
	now      func() time.Time
}

// NewService builds the orders service.
func NewService(params ServiceParams) (Service, error) {
	if params.TxRunner == nil {
		return nil, fmt.Errorf("tx runner required")
	}
	if params.Repository == nil {
		return nil, fmt.Errorf("orders repository required")
	}
	if params.Outbox == nil {
		return nil, fmt.Errorf("outbox publisher required")
	}
	if params.Logs == nil {
		return nil, fmt.Errorf("notification log reader required")
	}
	if params.Logger == nil {
		return nil, fmt.Errorf("logger required")
	}
	wait := params.DispatchTimeout
	if wait <= 0 {
		wait = 3 * time.Second
	}
	return &service{
		tx:       params.TxRunner,
		repo:     params.Repository,
		outbox:   params.Outbox,
		notifier: params.Notifier,
		logs:     params.Logs,
		logg:     params.Logger,
		wait:     wait,
		now:      time.Now,
	}, nil
}

func (s *service) GetOrder(ctx context.Context, orderID uuid.UUID) (*models.Order, error) {
	if orderID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "order id is required")
	}
	return s.repo.FindOrder(ctx, orderID)
}

func (s *service) ListNotificationLogs(ctx context.Context, orderID uuid.UUID) ([]models.NotificationLog, error) {
	if orderID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "order id is required")
	}
	if _, err := s.repo.FindOrder(ctx, orderID); err != nil {
		return nil, err
	}
	entries, err := s.logs.ListByOrder(ctx, orderID)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "list notification logs")
	}
	return entries, nil
}

// UpdateOrderStatus applies payment and delivery transitions atomically. Both
// transitions are checked before anything is written. Re-applying the current
// status is a no-op and never moves a timestamp.
func (s *service) UpdateOrderStatus(ctx context.Context, actor Actor, orderID uuid.UUID, update StatusUpdate) (*models.Order, error) {
	if orderID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "order id is required")
	}
	if update.empty() {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "no status change requested")
	}
	if update.PaymentStatus != nil && !update.PaymentStatus.IsValid() {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "invalid payment status").
			WithDetails(map[string]any{"paymentStatus": *update.PaymentStatus})
	}
	if update.DeliveryStatus != nil && !update.DeliveryStatus.IsValid() {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "invalid delivery status").
			WithDetails(map[string]any{"deliveryStatus": *update.DeliveryStatus})
	}

	var triggers []enums.NotificationTrigger
	err := s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		repo := s.repo.WithTx(tx)
		order, err := repo.LockOrder(ctx, orderID)
		if err != nil {
			return err
		}

		paymentChange := update.PaymentStatus != nil && *update.PaymentStatus != order.PaymentStatus
		deliveryChange := update.DeliveryStatus != nil && *update.DeliveryStatus != order.DeliveryStatus
		if paymentChange && !CanTransitionPayment(order.PaymentStatus, *update.PaymentStatus) {
			return illegalTransition("payment", string(order.PaymentStatus), string(*update.PaymentStatus))
		}
		if deliveryChange && !CanTransitionDelivery(order.DeliveryStatus, *update.DeliveryStatus) {
			return illegalTransition("delivery", string(order.DeliveryStatus), string(*update.DeliveryStatus))
		}

		now := s.now().UTC()
		if paymentChange {
			trigger, err := s.applyPayment(ctx, tx, repo, actor, order, *update.PaymentStatus, update, now)
			if err != nil {
				return err
			}
			triggers = append(triggers, trigger)
		}

		deliveryUpdates := map[string]any{}
		if update.CourierName != nil {
			deliveryUpdates["courier_name"] = strings.TrimSpace(*update.CourierName)
		}
		if update.CourierPhone != nil {
			deliveryUpdates["courier_phone"] = strings.TrimSpace(*update.CourierPhone)
		}
		if deliveryChange {
			to := *update.DeliveryStatus
			deliveryUpdates["status"] = to
			if column := deliveryStampColumn(to); column != "" {
				deliveryUpdates[column] = now
			}
			if err := repo.UpdateOrder(ctx, order.ID, map[string]any{"delivery_status": to}); err != nil {
				return err
			}
			if err := s.outbox.Emit(ctx, tx, outbox.DomainEvent{
				EventType:     enums.EventOrderDeliveryStatusChanged,
				AggregateType: enums.AggregateOrder,
				AggregateID:   order.ID,
				Actor:         actor.ref(),
				Data: payloads.OrderDeliveryStatusChangedEvent{
					OrderID:        order.ID,
					OrderNumber:    order.OrderNumber,
					From:           order.DeliveryStatus,
					To:             to,
					TrackingNumber: order.Delivery.TrackingNumber,
				},
				Version: 1,
			}); err != nil {
				return err
			}
			triggers = append(triggers, enums.NotificationTriggerDeliveryStatusChanged)
		}
		return repo.UpdateDelivery(ctx, order.ID, deliveryUpdates)
	})
	if err != nil {
		return nil, err
	}

	order, err := s.repo.FindOrder(ctx, orderID)
	if err != nil {
		return nil, err
	}
	s.afterCommit(ctx, order, triggers)
	return order, nil
}

func (s *service) applyPayment(ctx context.Context, tx *gorm.DB, repo Repository, actor Actor, order *models.Order, to enums.PaymentStatus, update StatusUpdate, now time.Time) (enums.NotificationTrigger, error) {
	orderUpdates := map[string]any{"payment_status": to}
	paymentUpdates := map[string]any{"status": to}
	trigger := enums.NotificationTriggerPaymentSuccess
	switch to {
	case enums.PaymentStatusPaid:
		orderUpdates["paid_at"] = now
		paymentUpdates["paid_at"] = now
	case enums.PaymentStatusFailed:
		orderUpdates["failed_at"] = now
		paymentUpdates["failed_at"] = now
		trigger = enums.NotificationTriggerPaymentFailed
	}
	if update.Provider != nil {
		paymentUpdates["provider"] = *update.Provider
	}
	if update.ProviderReference != nil {
		paymentUpdates["provider_reference"] = *update.ProviderReference
	}
	if len(update.ProviderMetadata) > 0 {
		merged := types.JSONMap(order.Payment.ProviderMetadata).Merge(update.ProviderMetadata)
		raw, err := json.Marshal(merged)
		if err != nil {
			return "", pkgerrors.Wrap(pkgerrors.CodeValidation, err, "encode provider metadata")
		}
		paymentUpdates["provider_metadata"] = string(raw)
	}

	if err := repo.UpdateOrder(ctx, order.ID, orderUpdates); err != nil {
		return "", err
	}
	if err := repo.UpdatePayment(ctx, order.ID, paymentUpdates); err != nil {
		return "", err
	}
	if err := s.outbox.Emit(ctx, tx, outbox.DomainEvent{
		EventType:     enums.EventOrderPaymentStatusChanged,
		AggregateType: enums.AggregateOrder,
		AggregateID:   order.ID,
		Actor:         actor.ref(),
		Data: payloads.OrderPaymentStatusChangedEvent{
			OrderID:     order.ID,
			OrderNumber: order.OrderNumber,
			From:        order.PaymentStatus,
			To:          to,
		},
		Version: 1,
	}); err != nil {
		return "", err
	}
	return trigger, nil
}

// UpdateItemFulfillment lets a supplier move its own lines. Admins may move any line.
func (s *service) UpdateItemFulfillment(ctx context.Context, actor Actor, itemID uuid.UUID, update FulfillmentUpdate) (*models.OrderItem, error) {
	if itemID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "order item id is required")
	}
	if !update.Status.IsValid() {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "invalid fulfillment status").
			WithDetails(map[string]any{"status": update.Status})
	}
	switch actor.Role {
	case enums.ActorRoleAdmin:
	case enums.ActorRoleSupplier:
		if actor.SupplierID == nil {
			return nil, pkgerrors.New(pkgerrors.CodeForbidden, "supplier context required")
		}
	default:
		return nil, pkgerrors.New(pkgerrors.CodeForbidden, "only suppliers and admins can update fulfillment")
	}

	var result *models.OrderItem
	err := s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		repo := s.repo.WithTx(tx)
		item, err := repo.LockOrderItem(ctx, itemID)
		if err != nil {
			return err
		}
		if actor.Role == enums.ActorRoleSupplier && (item.SupplierID == nil || *item.SupplierID != *actor.SupplierID) {
			return pkgerrors.New(pkgerrors.CodeForbidden, "order item belongs to another supplier")
		}

		from := item.FulfillmentStatus
		if from == update.Status && update.TrackingNumber == nil {
			result = item
			return nil
		}
		if !CanTransitionFulfillment(from, update.Status) {
			return illegalTransition("fulfillment", string(from), string(update.Status))
		}

		updates := map[string]any{}
		if update.TrackingNumber != nil {
			tracking := strings.TrimSpace(*update.TrackingNumber)
			updates["tracking_number"] = tracking
			item.TrackingNumber = &tracking
		}
		if from != update.Status {
			now := s.now().UTC()
			updates["fulfillment_status"] = update.Status
			item.FulfillmentStatus = update.Status
			if column := fulfillmentStampColumn(update.Status); column != "" {
				updates[column] = now
				stampItem(item, update.Status, now)
			}
		}
		if err := repo.UpdateOrderItem(ctx, item.ID, updates); err != nil {
			return err
		}
		if from != update.Status {
			if err := s.outbox.Emit(ctx, tx, outbox.DomainEvent{
				EventType:     enums.EventOrderItemFulfillmentChanged,
				AggregateType: enums.AggregateOrderItem,
				AggregateID:   item.ID,
				Actor:         actor.ref(),
				Data: payloads.OrderItemFulfillmentChangedEvent{
					OrderID:        item.OrderID,
					OrderItemID:    item.ID,
					SupplierID:     item.SupplierID,
					From:           from,
					To:             update.Status,
					TrackingNumber: item.TrackingNumber,
				},
				Version: 1,
			}); err != nil {
				return err
			}
		}
		result = item
		return nil
	})
	if err != nil {
		return nil, err
	}
	return result, nil
}

func (s *service) afterCommit(ctx context.Context, order *models.Order, triggers []enums.NotificationTrigger) {
	if s.notifier == nil || len(triggers) == 0 {
		return
	}
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), s.wait)
	defer cancel()
	for _, trigger := range triggers {
		result := s.notifier.Dispatch(ctx, trigger, order)
		logCtx := s.logg.WithFields(s.logg.WithOrderID(ctx, order.ID.String()), map[string]any{
			"trigger":  string(trigger),
			"enqueued": result.Enqueued(),
			"skipped":  result.Skipped(),
		})
		s.logg.Debug(logCtx, "order notifications dispatched")
	}
}

func illegalTransition(kind, from, to string) error {
	return pkgerrors.Transition(kind, from, to)
}

func deliveryStampColumn(status enums.DeliveryStatus) string {
	switch status {
	case enums.DeliveryStatusPickedUp:
		return "picked_up_at"
	case enums.DeliveryStatusInTransit:
		return "in_transit_at"
	case enums.DeliveryStatusDelivered:
		return "delivered_at"
	}
	return ""
}

func fulfillmentStampColumn(status enums.FulfillmentStatus) string {
	switch status {
	case enums.FulfillmentStatusConfirmed:
		return "confirmed_at"
	case enums.FulfillmentStatusProcessing:
		return "fulfilled_at"
	case enums.FulfillmentStatusShipped:
		return "shipped_at"
	case enums.FulfillmentStatusDelivered:
		return "delivered_at"
	case enums.FulfillmentStatusCancelled:
		return "cancelled_at"
	}
	return ""
}

func stampItem(item *models.OrderItem, status enums.FulfillmentStatus, at time.Time) {
	switch status {
	case enums.FulfillmentStatusConfirmed:
		item.ConfirmedAt = &at
	case enums.FulfillmentStatusProcessing:
		item.FulfilledAt = &at
	case enums.FulfillmentStatusShipped:
		item.ShippedAt = &at
	case enums.FulfillmentStatusDelivered:
		item.DeliveredAt = &at
	case enums.FulfillmentStatusCancelled:
		item.CancelledAt = &at
	}
}
