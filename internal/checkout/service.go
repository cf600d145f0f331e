package checkout

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"

	"github.com/angelmondragon/duka-backend/internal/checkout/helpers"
	"github.com/angelmondragon/duka-backend/internal/commission"
	"github.com/angelmondragon/duka-backend/internal/inventory"
	"github.com/angelmondragon/duka-backend/internal/notifications"
	"github.com/angelmondragon/duka-backend/internal/settings"
	"github.com/angelmondragon/duka-backend/pkg/config"
	pkgdb "github.com/angelmondragon/duka-backend/pkg/db"
	"github.com/angelmondragon/duka-backend/pkg/db/models"
	"github.com/angelmondragon/duka-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/duka-backend/pkg/errors"
	"github.com/angelmondragon/duka-backend/pkg/logger"
	"github.com/angelmondragon/duka-backend/pkg/outbox"
	"github.com/angelmondragon/duka-backend/pkg/outbox/payloads"
)

const (
	orderNumberSavepoint    = "order_number"
	trackingNumberSavepoint = "tracking_number"
	trackingNumberAttempts  = 3

	defaultDispatchTimeout = 3 * time.Second
)

type txRunner interface {
	WithTx(ctx context.Context, fn func(tx *gorm.DB) error) error
}

type inventoryLedger interface {
	Decrement(ctx context.Context, tx *gorm.DB, in inventory.DecrementInput) (*models.InventoryLog, error)
}

type outboxPublisher interface {
	Emit(ctx context.Context, tx *gorm.DB, event outbox.DomainEvent) error
}

type orderNotifier interface {
	Dispatch(ctx context.Context, trigger enums.NotificationTrigger, order *models.Order) notifications.DispatchResult
	SendConfirmationDirect(ctx context.Context, order *models.Order)
}

// Service commits carts into orders.
type Service interface {
	Execute(ctx context.Context, input CheckoutInput) (*models.Order, error)
}

// CustomerInput is the contact and delivery snapshot copied onto the order.
type CustomerInput struct {
	Name          string
	Phone         string
	Email         *string
	Address       string
	City          string
	Region        *string
	DeliveryNotes *string
}

// CheckoutInput captures everything the commitment transaction needs besides the cart contents.
type CheckoutInput struct {
	CartID          uuid.UUID
	CustomerID      *uuid.UUID
	Customer        CustomerInput
	PaymentMethod   enums.PaymentMethod
	MoMoPhoneNumber *string
	Notes           *string
}

// ServiceParams wires the checkout service. Notifier and Numbers are optional.
// DispatchTimeout bounds post-commit notification work.
type ServiceParams struct {
	TxRunner    txRunner
	Repository  Repository
	Ledger      inventoryLedger
	Pricing     settings.Provider
	Outbox      outboxPublisher
	Notifier    orderNotifier
	Numbers     NumberGenerator
	Logger      *logger.Logger
	Config      config.CheckoutConfig
	DirectEmail bool

	DispatchTimeout time.Duration
}

type service struct {
	tx           txRunner
	repo         Repository
	ledger       inventoryLedger
	pricing      settings.Provider
	outbox       outboxPublisher
	notifier     orderNotifier
	numbers      NumberGenerator
	logg         *logger.Logger
	currency     string
	platformRate decimal.Decimal
	attempts     int
	directEmail  bool
	dispatchWait time.Duration
	now          func() time.Time
}

// NewService builds the checkout service.
func NewService(params ServiceParams) (Service, error) {
	if params.TxRunner == nil {
		return nil, fmt.Errorf("tx runner required")
	}
	if params.Repository == nil {
		return nil, fmt.Errorf("checkout repository required")
	}
	if params.Ledger == nil {
		return nil, fmt.Errorf("inventory ledger required")
	}
	if params.Pricing == nil {
		return nil, fmt.Errorf("settings provider required")
	}
	if params.Outbox == nil {
		return nil, fmt.Errorf("outbox publisher required")
	}
	if params.Logger == nil {
		return nil, fmt.Errorf("logger required")
	}
	numbers := params.Numbers
	if numbers == nil {
		numbers = NewNumberGenerator()
	}
	attempts := params.Config.OrderNumberAttempts
	if attempts <= 0 {
		attempts = 5
	}
	currency := strings.TrimSpace(params.Config.Currency)
	if currency == "" {
		currency = "RWF"
	}
	dispatchWait := params.DispatchTimeout
	if dispatchWait <= 0 {
		dispatchWait = defaultDispatchTimeout
	}
	return &service{
		tx:           params.TxRunner,
		repo:         params.Repository,
		ledger:       params.Ledger,
		pricing:      params.Pricing,
		outbox:       params.Outbox,
		notifier:     params.Notifier,
		numbers:      numbers,
		logg:         params.Logger,
		currency:     currency,
		platformRate: params.Config.PlatformCommissionRate(),
		attempts:     attempts,
		directEmail:  params.DirectEmail,
		dispatchWait: dispatchWait,
		now:          time.Now,
	}, nil
}

// Execute validates input, then creates the order, its items, payment and
// delivery, decrements stock and clears the cart in a single transaction.
// Notifications run after commit and never fail the call.
func (s *service) Execute(ctx context.Context, input CheckoutInput) (*models.Order, error) {
	if err := validateInput(input); err != nil {
		return nil, err
	}

	var order *models.Order
	err := s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		repo := s.repo.WithTx(tx)

		cart, err := repo.LoadCart(ctx, input.CartID)
		if err != nil {
			return err
		}
		if err := helpers.ValidateCart(cart); err != nil {
			return err
		}

		pricing, err := s.pricing.WithTx(tx).DeliveryPricing(ctx)
		if err != nil {
			return err
		}
		subtotal := helpers.Subtotal(cart.Items)
		deliveryFee := pricing.FeeFor(subtotal)
		discount := decimal.Zero
		supplierIDs := helpers.DistinctSupplierIDs(cart.Items)

		created := s.buildOrder(input, cart, subtotal, deliveryFee, discount)
		if err := s.createOrder(ctx, tx, repo, created); err != nil {
			return err
		}

		items := s.buildOrderItems(created.ID, cart.Items)
		if err := repo.CreateOrderItems(ctx, items); err != nil {
			return err
		}

		payment := &models.Payment{
			OrderID:     created.ID,
			Method:      created.PaymentMethod,
			Amount:      created.Total,
			Currency:    created.Currency,
			Status:      enums.PaymentStatusPending,
			PhoneNumber: created.MoMoPhoneNumber,
		}
		if err := repo.CreatePayment(ctx, payment); err != nil {
			return err
		}

		delivery := &models.Delivery{
			OrderID: created.ID,
			Status:  enums.DeliveryStatusPending,
		}
		if err := s.createDelivery(ctx, tx, repo, delivery); err != nil {
			return err
		}

		orderID := created.ID
		for _, item := range helpers.SortByProductID(cart.Items) {
			if _, err := s.ledger.Decrement(ctx, tx, inventory.DecrementInput{
				ProductID:     item.ProductID,
				Quantity:      item.Quantity,
				Reason:        enums.InventoryReasonSale,
				ReferenceType: enums.InventoryReferenceOrder,
				ReferenceID:   &orderID,
			}); err != nil {
				return err
			}
		}

		if err := repo.ClearCart(ctx, cart.ID); err != nil {
			return err
		}

		if err := s.outbox.Emit(ctx, tx, outbox.DomainEvent{
			EventType:     enums.EventOrderCreated,
			AggregateType: enums.AggregateOrder,
			AggregateID:   created.ID,
			Actor:         actorFor(input),
			Data: payloads.OrderCreatedEvent{
				OrderID:       created.ID,
				OrderNumber:   created.OrderNumber,
				Total:         created.Total,
				Currency:      created.Currency,
				PaymentMethod: created.PaymentMethod,
				SupplierIDs:   supplierIDs,
				Suppliers:     supplierShares(cart.Items),
			},
			Version: 1,
		}); err != nil {
			return err
		}

		created.Items = items
		created.Payment = payment
		created.Delivery = delivery
		order = created
		return nil
	})
	if err != nil {
		return nil, err
	}

	logCtx := s.logg.WithFields(ctx, map[string]any{
		"order_id":       order.ID.String(),
		"order_number":   order.OrderNumber,
		"total":          order.Total.StringFixed(2),
		"supplier_count": order.SupplierCount,
	})
	s.logg.Info(logCtx, "order committed")

	s.afterCommit(ctx, order)
	return order, nil
}

func (s *service) buildOrder(input CheckoutInput, cart *models.Cart, subtotal, deliveryFee, discount decimal.Decimal) *models.Order {
	cartID := cart.ID
	customerID := input.CustomerID
	if customerID == nil {
		customerID = cart.CustomerID
	}
	return &models.Order{
		CartID:          &cartID,
		CustomerID:      customerID,
		PaymentMethod:   input.PaymentMethod,
		PaymentStatus:   enums.PaymentStatusPending,
		DeliveryStatus:  enums.DeliveryStatusPending,
		SupplierCount:   helpers.SupplierCount(cart.Items),
		Subtotal:        subtotal,
		DeliveryFee:     deliveryFee,
		Discount:        discount,
		Total:           subtotal.Add(deliveryFee).Sub(discount),
		Currency:        s.currency,
		CustomerName:    strings.TrimSpace(input.Customer.Name),
		CustomerPhone:   strings.TrimSpace(input.Customer.Phone),
		CustomerEmail:   trimmedOrNil(input.Customer.Email),
		DeliveryAddress: strings.TrimSpace(input.Customer.Address),
		DeliveryCity:    strings.TrimSpace(input.Customer.City),
		DeliveryRegion:  trimmedOrNil(input.Customer.Region),
		DeliveryNotes:   trimmedOrNil(input.Customer.DeliveryNotes),
		Notes:           trimmedOrNil(input.Notes),
		MoMoPhoneNumber: momoPhone(input),
		ItemsSnapshot:   helpers.BuildItemsSnapshot(cart.Items),
	}
}

func (s *service) buildOrderItems(orderID uuid.UUID, cartItems []models.CartItem) []models.OrderItem {
	items := make([]models.OrderItem, 0, len(cartItems))
	for _, item := range cartItems {
		product := item.Product
		var supplierRate *decimal.Decimal
		if product.SupplierID != nil && product.Supplier != nil {
			rate := product.Supplier.CommissionRate
			supplierRate = &rate
		}
		lineTotal := item.LineTotal()
		split := commission.Calculate(commission.RateFor(supplierRate, s.platformRate), lineTotal)
		items = append(items, models.OrderItem{
			OrderID:           orderID,
			ProductID:         item.ProductID,
			SupplierID:        product.SupplierID,
			ProductName:       product.Name,
			UnitPrice:         item.UnitPrice,
			Quantity:          item.Quantity,
			TotalPrice:        lineTotal,
			CommissionRate:    split.Rate,
			CommissionAmount:  split.Commission,
			SupplierAmount:    split.SupplierNet,
			FulfillmentStatus: enums.FulfillmentStatusPending,
		})
	}
	return items
}

// createOrder inserts the order, drawing a fresh number inside a savepoint
// whenever the previous one collides.
func (s *service) createOrder(ctx context.Context, tx *gorm.DB, repo Repository, order *models.Order) error {
	err := withUniqueRetry(tx, orderNumberSavepoint, s.attempts, isOrderNumberCollision, func() error {
		order.OrderNumber = s.numbers.OrderNumber(s.now())
		return repo.CreateOrder(ctx, order)
	})
	if isOrderNumberCollision(err) {
		return pkgerrors.Wrap(pkgerrors.CodeConflict, err, "could not allocate a unique order number").
			WithDetails(map[string]any{"attempts": s.attempts})
	}
	return err
}

func (s *service) createDelivery(ctx context.Context, tx *gorm.DB, repo Repository, delivery *models.Delivery) error {
	err := withUniqueRetry(tx, trackingNumberSavepoint, trackingNumberAttempts, isTrackingNumberCollision, func() error {
		delivery.TrackingNumber = s.numbers.TrackingNumber()
		return repo.CreateDelivery(ctx, delivery)
	})
	if isTrackingNumberCollision(err) {
		return pkgerrors.Wrap(pkgerrors.CodeConflict, err, "could not allocate a unique tracking number")
	}
	return err
}

func withUniqueRetry(tx *gorm.DB, savepoint string, attempts int, collision func(error) bool, fn func() error) error {
	var err error
	for attempt := 0; attempt < attempts; attempt++ {
		if spErr := tx.SavePoint(savepoint).Error; spErr != nil {
			return spErr
		}
		err = fn()
		if err == nil || !collision(err) {
			return err
		}
		if rbErr := tx.RollbackTo(savepoint).Error; rbErr != nil {
			return rbErr
		}
	}
	return err
}

func isOrderNumberCollision(err error) bool {
	return pkgdb.IsUniqueViolation(err, "orders_order_number_key") || pkgdb.IsUniqueViolation(err, "orders.order_number")
}

func isTrackingNumberCollision(err error) bool {
	return pkgdb.IsUniqueViolation(err, "deliveries_tracking_number_key") || pkgdb.IsUniqueViolation(err, "deliveries.tracking_number")
}

// afterCommit fans out order_placed notifications. The direct confirmation
// email only runs when the queued email could not be enqueued. Each step gets
// its own deadline detached from the request.
func (s *service) afterCommit(ctx context.Context, order *models.Order) {
	if s.notifier == nil {
		return
	}
	ctx = context.WithoutCancel(ctx)
	dispatchCtx, cancel := context.WithTimeout(ctx, s.dispatchWait)
	result := s.notifier.Dispatch(dispatchCtx, enums.NotificationTriggerOrderPlaced, order)
	cancel()

	logCtx := s.logg.WithFields(ctx, map[string]any{
		"order_id": order.ID.String(),
		"enqueued": result.Enqueued(),
		"skipped":  result.Skipped(),
	})
	s.logg.Debug(logCtx, "order notifications dispatched")

	if s.directEmail && order.CustomerEmail != nil && result.JobID(enums.NotificationChannelEmail) == "" {
		emailCtx, cancelEmail := context.WithTimeout(ctx, s.dispatchWait)
		s.notifier.SendConfirmationDirect(emailCtx, order)
		cancelEmail()
	}
}

func validateInput(input CheckoutInput) error {
	if input.CartID == uuid.Nil {
		return pkgerrors.New(pkgerrors.CodeValidation, "cartId is required")
	}
	missing := []string{}
	for _, field := range []struct{ name, value string }{
		{"customer.name", input.Customer.Name},
		{"customer.phone", input.Customer.Phone},
		{"customer.address", input.Customer.Address},
		{"customer.city", input.Customer.City},
	} {
		if strings.TrimSpace(field.value) == "" {
			missing = append(missing, field.name)
		}
	}
	if len(missing) > 0 {
		return pkgerrors.New(pkgerrors.CodeValidation, "customer details incomplete").
			WithDetails(map[string]any{"missing": missing})
	}
	return helpers.ValidatePaymentMethod(input.PaymentMethod, input.MoMoPhoneNumber)
}

func supplierShares(items []models.CartItem) []payloads.SupplierShare {
	groups := helpers.SupplierSubtotals(items)
	shares := make([]payloads.SupplierShare, 0, len(groups))
	for _, group := range groups {
		share := payloads.SupplierShare{Lines: group.Lines, Subtotal: group.Subtotal}
		if group.SupplierID != uuid.Nil {
			id := group.SupplierID
			share.SupplierID = &id
		}
		shares = append(shares, share)
	}
	return shares
}

func actorFor(input CheckoutInput) *outbox.ActorRef {
	return &outbox.ActorRef{UserID: input.CustomerID, Role: enums.ActorRoleCustomer}
}

func momoPhone(input CheckoutInput) *string {
	if input.PaymentMethod != enums.PaymentMethodMoMo {
		return nil
	}
	return trimmedOrNil(input.MoMoPhoneNumber)
}

func trimmedOrNil(value *string) *string {
	if value == nil {
		return nil
	}
	trimmed := strings.TrimSpace(*value)
	if trimmed == "" {
		return nil
	}
	return &trimmed
}
