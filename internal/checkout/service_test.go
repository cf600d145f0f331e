package checkout

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"github.com/angelmondragon/duka-backend/internal/inventory"
	"github.com/angelmondragon/duka-backend/internal/notifications"
	"github.com/angelmondragon/duka-backend/internal/notifications/providers"
	"github.com/angelmondragon/duka-backend/internal/settings"
	"github.com/angelmondragon/duka-backend/pkg/config"
	pkgdb "github.com/angelmondragon/duka-backend/pkg/db"
	"github.com/angelmondragon/duka-backend/pkg/db/dbtest"
	"github.com/angelmondragon/duka-backend/pkg/db/models"
	"github.com/angelmondragon/duka-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/duka-backend/pkg/errors"
	"github.com/angelmondragon/duka-backend/pkg/logger"
	"github.com/angelmondragon/duka-backend/pkg/outbox"
	"github.com/angelmondragon/duka-backend/pkg/outbox/payloads"
	"github.com/angelmondragon/duka-backend/pkg/queue"
)

type recordingNotifier struct {
	mu       sync.Mutex
	triggers []enums.NotificationTrigger
	direct   int
	result   notifications.DispatchResult
}

func (n *recordingNotifier) Dispatch(_ context.Context, trigger enums.NotificationTrigger, _ *models.Order) notifications.DispatchResult {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.triggers = append(n.triggers, trigger)
	return n.result
}

func (n *recordingNotifier) SendConfirmationDirect(context.Context, *models.Order) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.direct++
}

type sequenceNumbers struct {
	orders []string
	next   int
}

func (s *sequenceNumbers) OrderNumber(time.Time) string {
	n := s.orders[s.next%len(s.orders)]
	s.next++
	return n
}

func (s *sequenceNumbers) TrackingNumber() string {
	return "TRK-" + uuid.NewString()[:10]
}

// failingRepository breaks one write step to prove the transaction unwinds.
type failingRepository struct {
	Repository
	failAt string
}

func (f failingRepository) WithTx(tx *gorm.DB) Repository {
	return failingRepository{Repository: f.Repository.WithTx(tx), failAt: f.failAt}
}

func (f failingRepository) fail(step string) error {
	if f.failAt == step {
		return errors.New("injected " + step + " failure")
	}
	return nil
}

func (f failingRepository) CreateOrderItems(ctx context.Context, items []models.OrderItem) error {
	if err := f.fail("items"); err != nil {
		return err
	}
	return f.Repository.CreateOrderItems(ctx, items)
}

func (f failingRepository) CreatePayment(ctx context.Context, payment *models.Payment) error {
	if err := f.fail("payment"); err != nil {
		return err
	}
	return f.Repository.CreatePayment(ctx, payment)
}

func (f failingRepository) CreateDelivery(ctx context.Context, delivery *models.Delivery) error {
	if err := f.fail("delivery"); err != nil {
		return err
	}
	return f.Repository.CreateDelivery(ctx, delivery)
}

func (f failingRepository) ClearCart(ctx context.Context, cartID uuid.UUID) error {
	if err := f.fail("clear"); err != nil {
		return err
	}
	return f.Repository.ClearCart(ctx, cartID)
}

// failingLedger decrements normally until it reaches product, then fails.
type failingLedger struct {
	inventoryLedger
	product uuid.UUID
}

func (f failingLedger) Decrement(ctx context.Context, tx *gorm.DB, in inventory.DecrementInput) (*models.InventoryLog, error) {
	if in.ProductID == f.product {
		return nil, errors.New("injected decrement failure")
	}
	return f.inventoryLedger.Decrement(ctx, tx, in)
}

type fixture struct {
	db       *gorm.DB
	service  Service
	notifier *recordingNotifier
	output   *bytes.Buffer
}

type fixtureOptions struct {
	rejectOversell  bool
	repo            func(Repository) Repository
	numbers         NumberGenerator
	attempts        int
	notifier        orderNotifier
	directEmail     bool
	dispatchTimeout time.Duration
	ledger          func(inventoryLedger) inventoryLedger
}

func newFixture(t *testing.T, db *gorm.DB, opts fixtureOptions) fixture {
	t.Helper()
	if db == nil {
		db = dbtest.OpenSQLite(t)
	}
	output := &bytes.Buffer{}
	logg := logger.New(logger.Options{ServiceName: "checkout-test", Output: output})

	ledger, err := inventory.NewLedger(inventory.NewRepository(db), opts.rejectOversell)
	require.NoError(t, err)

	var stock inventoryLedger = ledger
	if opts.ledger != nil {
		stock = opts.ledger(ledger)
	}

	var repo Repository = NewRepository(db)
	if opts.repo != nil {
		repo = opts.repo(repo)
	}

	notifier := &recordingNotifier{}
	var n orderNotifier = notifier
	if opts.notifier != nil {
		n = opts.notifier
	}

	svc, err := NewService(ServiceParams{
		TxRunner:   pkgdb.NewFromConn(db, 10*time.Second),
		Repository: repo,
		Ledger:     stock,
		Pricing: settings.NewProvider(db, settings.DeliveryPricing{
			DefaultFee:    decimal.RequireFromString("1500"),
			FreeThreshold: decimal.RequireFromString("20000"),
		}),
		Outbox:   outbox.NewService(outbox.NewRepository(db), logg),
		Notifier: n,
		Numbers:  opts.numbers,
		Logger:   logg,
		Config: config.CheckoutConfig{
			PlatformCommission:  "0",
			Currency:            "RWF",
			OrderNumberAttempts: opts.attempts,
		},
		DirectEmail:     opts.directEmail,
		DispatchTimeout: opts.dispatchTimeout,
	})
	require.NoError(t, err)
	return fixture{db: db, service: svc, notifier: notifier, output: output}
}

func codInput(cartID uuid.UUID) CheckoutInput {
	email := "amina@example.com"
	return CheckoutInput{
		CartID: cartID,
		Customer: CustomerInput{
			Name:    "Amina Uwase",
			Phone:   "0788123456",
			Email:   &email,
			Address: "KG 11 Ave",
			City:    "Kigali",
		},
		PaymentMethod: enums.PaymentMethodCOD,
	}
}

type twoSupplierCart struct {
	cart     *models.Cart
	coffee   *models.Product
	honey    *models.Product
	supplier [2]*models.Supplier
}

// seedTwoSupplierCart builds the 15,000 cart: 2 × 5,000 from a 10% supplier and 1 × 5,000 from a 5% supplier.
func seedTwoSupplierCart(t *testing.T, db *gorm.DB) twoSupplierCart {
	t.Helper()
	a := dbtest.MustCreateSupplier(t, db, "kivu-coffee", "10")
	b := dbtest.MustCreateSupplier(t, db, "nyungwe-honey", "5")
	coffee := dbtest.MustCreateProduct(t, db, &a.ID, "Coffee beans", "5000", 10)
	honey := dbtest.MustCreateProduct(t, db, &b.ID, "Honey", "5000", 3)
	cart := dbtest.MustCreateCart(t, db,
		dbtest.CartLine{Product: coffee, Quantity: 2},
		dbtest.CartLine{Product: honey, Quantity: 1},
	)
	return twoSupplierCart{cart: cart, coffee: coffee, honey: honey, supplier: [2]*models.Supplier{a, b}}
}

func assertNoOrderRows(t *testing.T, db *gorm.DB) {
	t.Helper()
	assert.Zero(t, dbtest.Count(t, db, &models.Order{}), "orders")
	assert.Zero(t, dbtest.Count(t, db, &models.OrderItem{}), "order items")
	assert.Zero(t, dbtest.Count(t, db, &models.Payment{}), "payments")
	assert.Zero(t, dbtest.Count(t, db, &models.Delivery{}), "deliveries")
	assert.Zero(t, dbtest.Count(t, db, &models.InventoryLog{}), "inventory logs")
	assert.Zero(t, dbtest.Count(t, db, &models.OutboxEvent{}), "outbox events")
}

func reloadStock(t *testing.T, db *gorm.DB, id uuid.UUID) int {
	t.Helper()
	var p models.Product
	require.NoError(t, db.First(&p, "id = ?", id).Error)
	return p.Stock
}

func TestExecuteHappyPath(t *testing.T) {
	fx := newFixture(t, nil, fixtureOptions{})
	seed := seedTwoSupplierCart(t, fx.db)

	order, err := fx.service.Execute(context.Background(), codInput(seed.cart.ID))
	require.NoError(t, err)

	assert.True(t, order.Subtotal.Equal(decimal.RequireFromString("15000")))
	assert.True(t, order.DeliveryFee.Equal(decimal.RequireFromString("1500")))
	assert.True(t, order.Total.Equal(decimal.RequireFromString("16500")))
	assert.Equal(t, 2, order.SupplierCount)
	assert.Equal(t, enums.PaymentStatusPending, order.PaymentStatus)
	assert.Equal(t, enums.DeliveryStatusPending, order.DeliveryStatus)
	assert.Regexp(t, `^ORD-\d{8}-\d{6}-[0-9A-F]{4}$`, order.OrderNumber)
	require.Len(t, order.ItemsSnapshot, 2)

	// conservation
	sum := decimal.Zero
	for _, item := range order.Items {
		sum = sum.Add(item.TotalPrice)
	}
	assert.True(t, sum.Equal(order.Subtotal))
	assert.True(t, order.Total.Equal(order.Subtotal.Add(order.DeliveryFee).Sub(order.Discount)))

	var items []models.OrderItem
	require.NoError(t, fx.db.Where("order_id = ?", order.ID).Order("total_price DESC").Find(&items).Error)
	require.Len(t, items, 2)
	assert.Equal(t, seed.coffee.ID, items[0].ProductID)
	assert.True(t, items[0].CommissionAmount.Equal(decimal.RequireFromString("1000")))
	assert.True(t, items[0].SupplierAmount.Equal(decimal.RequireFromString("9000")))
	assert.True(t, items[1].CommissionAmount.Equal(decimal.RequireFromString("250")))
	assert.True(t, items[1].SupplierAmount.Equal(decimal.RequireFromString("4750")))
	assert.Equal(t, enums.FulfillmentStatusPending, items[0].FulfillmentStatus)

	var payment models.Payment
	require.NoError(t, fx.db.First(&payment, "order_id = ?", order.ID).Error)
	assert.Equal(t, enums.PaymentStatusPending, payment.Status)
	assert.True(t, payment.Amount.Equal(order.Total))

	var delivery models.Delivery
	require.NoError(t, fx.db.First(&delivery, "order_id = ?", order.ID).Error)
	assert.Equal(t, enums.DeliveryStatusPending, delivery.Status)
	assert.Regexp(t, `^TRK-[0-9A-F]{10}$`, delivery.TrackingNumber)

	// stock ledger consistency
	var logs []models.InventoryLog
	require.NoError(t, fx.db.Where("reference_id = ?", order.ID).Find(&logs).Error)
	require.Len(t, logs, 2)
	for _, entry := range logs {
		assert.Equal(t, entry.PreviousStock+entry.Change, entry.NewStock)
		assert.Equal(t, enums.InventoryReasonSale, entry.Reason)
		require.NotNil(t, entry.ReferenceType)
		assert.Equal(t, enums.InventoryReferenceOrder, *entry.ReferenceType)
	}
	assert.Equal(t, 8, reloadStock(t, fx.db, seed.coffee.ID))
	assert.Equal(t, 2, reloadStock(t, fx.db, seed.honey.ID))

	assert.Zero(t, dbtest.Count(t, fx.db, &models.CartItem{}))

	var events []models.OutboxEvent
	require.NoError(t, fx.db.Find(&events).Error)
	require.Len(t, events, 1)
	assert.Equal(t, enums.EventOrderCreated, events[0].EventType)
	assert.Equal(t, order.ID, events[0].AggregateID)

	envelope, err := outbox.DecodeEnvelope(events[0].Payload)
	require.NoError(t, err)
	var created payloads.OrderCreatedEvent
	require.NoError(t, json.Unmarshal(envelope.Data, &created))
	require.Len(t, created.Suppliers, 2)
	shares := map[uuid.UUID]payloads.SupplierShare{}
	for _, share := range created.Suppliers {
		require.NotNil(t, share.SupplierID)
		shares[*share.SupplierID] = share
	}
	assert.True(t, shares[seed.supplier[0].ID].Subtotal.Equal(decimal.RequireFromString("10000")))
	assert.Equal(t, 1, shares[seed.supplier[1].ID].Lines)
	assert.True(t, shares[seed.supplier[1].ID].Subtotal.Equal(decimal.RequireFromString("5000")))

	assert.Equal(t, []enums.NotificationTrigger{enums.NotificationTriggerOrderPlaced}, fx.notifier.triggers)
	assert.Zero(t, fx.notifier.direct)
}

func TestExecuteFreeDelivery(t *testing.T) {
	fx := newFixture(t, nil, fixtureOptions{})
	supplier := dbtest.MustCreateSupplier(t, fx.db, "inyange", "10")
	product := dbtest.MustCreateProduct(t, fx.db, &supplier.ID, "Juice crate", "10000", 5)
	cart := dbtest.MustCreateCart(t, fx.db, dbtest.CartLine{Product: product, Quantity: 2})

	order, err := fx.service.Execute(context.Background(), codInput(cart.ID))
	require.NoError(t, err)
	assert.True(t, order.DeliveryFee.IsZero())
	assert.True(t, order.Total.Equal(decimal.RequireFromString("20000")))
	assert.Equal(t, 1, order.SupplierCount)
}

func TestExecutePlatformItemsCountAsOneSupplier(t *testing.T) {
	fx := newFixture(t, nil, fixtureOptions{})
	product := dbtest.MustCreateProduct(t, fx.db, nil, "Duka tote bag", "2000", 5)
	cart := dbtest.MustCreateCart(t, fx.db, dbtest.CartLine{Product: product, Quantity: 1})

	order, err := fx.service.Execute(context.Background(), codInput(cart.ID))
	require.NoError(t, err)
	assert.Equal(t, 1, order.SupplierCount)
	require.Len(t, order.Items, 1)
	assert.Nil(t, order.Items[0].SupplierID)
	assert.True(t, order.Items[0].CommissionAmount.IsZero())
}

func TestExecuteUsesCartPriceSnapshot(t *testing.T) {
	fx := newFixture(t, nil, fixtureOptions{})
	product := dbtest.MustCreateProduct(t, fx.db, nil, "Avocados", "1200", 5)
	cart := dbtest.MustCreateCart(t, fx.db, dbtest.CartLine{Product: product, Quantity: 2, Price: "1000"})

	order, err := fx.service.Execute(context.Background(), codInput(cart.ID))
	require.NoError(t, err)
	assert.True(t, order.Subtotal.Equal(decimal.RequireFromString("2000")))
}

func TestExecuteMoMoWithoutPhoneCreatesNothing(t *testing.T) {
	fx := newFixture(t, nil, fixtureOptions{})
	seed := seedTwoSupplierCart(t, fx.db)

	input := codInput(seed.cart.ID)
	input.PaymentMethod = enums.PaymentMethodMoMo

	_, err := fx.service.Execute(context.Background(), input)
	require.Error(t, err)
	assert.True(t, pkgerrors.HasCode(err, pkgerrors.CodeValidation))
	assertNoOrderRows(t, fx.db)
	assert.Empty(t, fx.notifier.triggers)
}

func TestExecuteMoMoStoresWalletNumber(t *testing.T) {
	fx := newFixture(t, nil, fixtureOptions{})
	seed := seedTwoSupplierCart(t, fx.db)

	input := codInput(seed.cart.ID)
	input.PaymentMethod = enums.PaymentMethodMoMo
	phone := " 0788000111 "
	input.MoMoPhoneNumber = &phone

	order, err := fx.service.Execute(context.Background(), input)
	require.NoError(t, err)
	require.NotNil(t, order.MoMoPhoneNumber)
	assert.Equal(t, "0788000111", *order.MoMoPhoneNumber)
	require.NotNil(t, order.Payment.PhoneNumber)
	assert.Equal(t, "0788000111", *order.Payment.PhoneNumber)
}

func TestExecuteRejectsIncompleteCustomer(t *testing.T) {
	fx := newFixture(t, nil, fixtureOptions{})
	seed := seedTwoSupplierCart(t, fx.db)

	input := codInput(seed.cart.ID)
	input.Customer.City = "  "
	_, err := fx.service.Execute(context.Background(), input)
	require.Error(t, err)
	assert.True(t, pkgerrors.HasCode(err, pkgerrors.CodeValidation))
	assertNoOrderRows(t, fx.db)
}

func TestValidateInputListsMissingFieldsInOrder(t *testing.T) {
	input := CheckoutInput{CartID: uuid.New(), PaymentMethod: enums.PaymentMethodCOD}
	input.Customer.Phone = "0788123456"

	for i := 0; i < 10; i++ {
		err := validateInput(input)
		var typed *pkgerrors.Error
		require.True(t, errors.As(err, &typed))
		details, ok := typed.Details().(map[string]any)
		require.True(t, ok)
		assert.Equal(t, []string{"customer.name", "customer.address", "customer.city"}, details["missing"])
	}
}

func TestExecuteMissingCart(t *testing.T) {
	fx := newFixture(t, nil, fixtureOptions{})
	_, err := fx.service.Execute(context.Background(), codInput(uuid.New()))
	require.Error(t, err)
	assert.True(t, pkgerrors.HasCode(err, pkgerrors.CodeNotFound))
}

func TestExecuteEmptyCart(t *testing.T) {
	fx := newFixture(t, nil, fixtureOptions{})
	cart := dbtest.MustCreateCart(t, fx.db)
	_, err := fx.service.Execute(context.Background(), codInput(cart.ID))
	require.Error(t, err)
	assert.True(t, pkgerrors.HasCode(err, pkgerrors.CodeValidation))
	assert.Contains(t, err.Error(), "cart invalid")
}

func TestExecuteInactiveProduct(t *testing.T) {
	fx := newFixture(t, nil, fixtureOptions{})
	seed := seedTwoSupplierCart(t, fx.db)
	require.NoError(t, fx.db.Model(&models.Product{}).Where("id = ?", seed.honey.ID).Update("is_active", false).Error)

	_, err := fx.service.Execute(context.Background(), codInput(seed.cart.ID))
	require.Error(t, err)
	assert.True(t, pkgerrors.HasCode(err, pkgerrors.CodeValidation))
	assertNoOrderRows(t, fx.db)
}

func TestExecuteRollsBackOnAnyWriteFailure(t *testing.T) {
	for _, step := range []string{"items", "payment", "delivery", "clear"} {
		t.Run(step, func(t *testing.T) {
			fx := newFixture(t, nil, fixtureOptions{
				repo: func(r Repository) Repository { return failingRepository{Repository: r, failAt: step} },
			})
			seed := seedTwoSupplierCart(t, fx.db)

			_, err := fx.service.Execute(context.Background(), codInput(seed.cart.ID))
			require.Error(t, err)
			assert.Contains(t, err.Error(), "injected "+step+" failure")

			assertNoOrderRows(t, fx.db)
			assert.Equal(t, 10, reloadStock(t, fx.db, seed.coffee.ID))
			assert.Equal(t, 3, reloadStock(t, fx.db, seed.honey.ID))
			assert.Equal(t, int64(2), dbtest.Count(t, fx.db, &models.CartItem{}))
			assert.Empty(t, fx.notifier.triggers)
		})
	}
}

func TestExecuteRollsBackOnDecrementFailure(t *testing.T) {
	db := dbtest.OpenSQLite(t)
	seed := seedTwoSupplierCart(t, db)
	// lines decrement in product id order, so fail whichever comes last
	last := seed.coffee.ID
	if seed.honey.ID.String() > last.String() {
		last = seed.honey.ID
	}
	fx := newFixture(t, db, fixtureOptions{
		ledger: func(l inventoryLedger) inventoryLedger { return failingLedger{inventoryLedger: l, product: last} },
	})

	_, err := fx.service.Execute(context.Background(), codInput(seed.cart.ID))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "injected decrement failure")

	assertNoOrderRows(t, db)
	assert.Equal(t, 10, reloadStock(t, db, seed.coffee.ID))
	assert.Equal(t, 3, reloadStock(t, db, seed.honey.ID))
	assert.Equal(t, int64(2), dbtest.Count(t, db, &models.CartItem{}))
	assert.Empty(t, fx.notifier.triggers)
}

func TestExecuteRejectOversell(t *testing.T) {
	fx := newFixture(t, nil, fixtureOptions{rejectOversell: true})
	seed := seedTwoSupplierCart(t, fx.db)
	require.NoError(t, fx.db.Model(&models.Product{}).Where("id = ?", seed.honey.ID).Update("stock", 0).Error)

	_, err := fx.service.Execute(context.Background(), codInput(seed.cart.ID))
	require.Error(t, err)
	assert.True(t, pkgerrors.HasCode(err, pkgerrors.CodeStateConflict))
	assertNoOrderRows(t, fx.db)
	assert.Equal(t, 10, reloadStock(t, fx.db, seed.coffee.ID))
}

func TestExecuteAllowsOversellByDefault(t *testing.T) {
	fx := newFixture(t, nil, fixtureOptions{})
	seed := seedTwoSupplierCart(t, fx.db)
	require.NoError(t, fx.db.Model(&models.Product{}).Where("id = ?", seed.honey.ID).Update("stock", 0).Error)

	_, err := fx.service.Execute(context.Background(), codInput(seed.cart.ID))
	require.NoError(t, err)
	assert.Equal(t, -1, reloadStock(t, fx.db, seed.honey.ID))

	var entry models.InventoryLog
	require.NoError(t, fx.db.First(&entry, "product_id = ?", seed.honey.ID).Error)
	assert.Equal(t, 0, entry.PreviousStock)
	assert.Equal(t, -1, entry.NewStock)
}

func seedOrderNumber(t *testing.T, db *gorm.DB, number string) {
	t.Helper()
	require.NoError(t, db.Omit("Items", "Payment", "Delivery").Create(&models.Order{
		OrderNumber:     number,
		PaymentMethod:   enums.PaymentMethodCOD,
		Subtotal:        decimal.Zero,
		DeliveryFee:     decimal.Zero,
		Total:           decimal.Zero,
		CustomerName:    "existing",
		CustomerPhone:   "0788000000",
		DeliveryAddress: "x",
		DeliveryCity:    "Kigali",
	}).Error)
}

func TestExecuteRetriesOrderNumberCollision(t *testing.T) {
	db := dbtest.OpenSQLite(t)
	seedOrderNumber(t, db, "ORD-DUP")
	numbers := &sequenceNumbers{orders: []string{"ORD-DUP", "ORD-DUP", "ORD-FRESH"}}
	fx := newFixture(t, db, fixtureOptions{numbers: numbers, attempts: 3})
	seed := seedTwoSupplierCart(t, db)

	order, err := fx.service.Execute(context.Background(), codInput(seed.cart.ID))
	require.NoError(t, err)
	assert.Equal(t, "ORD-FRESH", order.OrderNumber)
	assert.Equal(t, 3, numbers.next)
	assert.Equal(t, int64(2), dbtest.Count(t, db, &models.Order{}))
	assert.Equal(t, int64(2), dbtest.Count(t, db, &models.OrderItem{}))
}

func TestExecuteOrderNumberExhaustionIsConflict(t *testing.T) {
	db := dbtest.OpenSQLite(t)
	seedOrderNumber(t, db, "ORD-DUP")
	fx := newFixture(t, db, fixtureOptions{numbers: &sequenceNumbers{orders: []string{"ORD-DUP"}}, attempts: 2})
	seed := seedTwoSupplierCart(t, db)

	_, err := fx.service.Execute(context.Background(), codInput(seed.cart.ID))
	require.Error(t, err)
	assert.True(t, pkgerrors.HasCode(err, pkgerrors.CodeConflict))
	assert.Equal(t, int64(1), dbtest.Count(t, db, &models.Order{}))
	assert.Zero(t, dbtest.Count(t, db, &models.InventoryLog{}))
	assert.Equal(t, int64(2), dbtest.Count(t, db, &models.CartItem{}))
}

func TestExecuteSucceedsDuringChannelOutage(t *testing.T) {
	db := dbtest.OpenSQLite(t)
	output := &bytes.Buffer{}
	logg := logger.New(logger.Options{ServiceName: "dispatch-test", Output: output})

	// only SMS is wired; email has no transport
	smsQueue, err := queue.New(queue.NewMemoryStore(), enums.NotificationChannelSMS, queue.ExponentialPolicy(3, time.Second))
	require.NoError(t, err)
	direct := providers.NewMockEmail()
	dispatcher, err := notifications.NewDispatcher(notifications.DispatcherParams{
		Queues:      map[enums.NotificationChannel]notifications.Enqueuer{enums.NotificationChannelSMS: smsQueue},
		DirectEmail: direct,
		Logs:        notifications.NewLogRepository(db),
		Logger:      logg,
	})
	require.NoError(t, err)

	fx := newFixture(t, db, fixtureOptions{notifier: dispatcher, directEmail: true})
	seed := seedTwoSupplierCart(t, db)

	order, err := fx.service.Execute(context.Background(), codInput(seed.cart.ID))
	require.NoError(t, err)
	require.NotNil(t, order)

	stats, err := smsQueue.Stats(context.Background())
	require.NoError(t, err)
	assert.Equal(t, int64(1), stats.Waiting)
	assert.Contains(t, output.String(), "notification queue unavailable")

	// the queued email was skipped, so the direct fallback ran once
	require.Len(t, direct.Sent(), 1)
	var entries []models.NotificationLog
	require.NoError(t, db.Find(&entries, "order_id = ?", order.ID).Error)
	require.Len(t, entries, 1)
	assert.Equal(t, enums.NotificationStatusSent, entries[0].Status)
}

func TestExecuteSkipsDirectEmailWhenQueued(t *testing.T) {
	notifier := &recordingNotifier{result: notifications.DispatchResult{Jobs: []notifications.EnqueuedJob{
		{Channel: enums.NotificationChannelEmail, JobID: "job-1"},
	}}}
	fx := newFixture(t, nil, fixtureOptions{notifier: notifier, directEmail: true})
	seed := seedTwoSupplierCart(t, fx.db)

	_, err := fx.service.Execute(context.Background(), codInput(seed.cart.ID))
	require.NoError(t, err)
	assert.Zero(t, notifier.direct)
}

// stalledQueue never answers until the caller gives up.
type stalledQueue struct{}

func (stalledQueue) Enqueue(ctx context.Context, _ any, _ *uuid.UUID) (*queue.Job, error) {
	<-ctx.Done()
	return nil, ctx.Err()
}

func TestExecuteReturnsWhenQueueHangs(t *testing.T) {
	db := dbtest.OpenSQLite(t)
	logg := logger.New(logger.Options{ServiceName: "dispatch-test", Output: &bytes.Buffer{}})
	dispatcher, err := notifications.NewDispatcher(notifications.DispatcherParams{
		Queues: map[enums.NotificationChannel]notifications.Enqueuer{
			enums.NotificationChannelEmail: stalledQueue{},
			enums.NotificationChannelSMS:   stalledQueue{},
			enums.NotificationChannelPDF:   stalledQueue{},
		},
		Logs:   notifications.NewLogRepository(db),
		Logger: logg,
	})
	require.NoError(t, err)

	fx := newFixture(t, db, fixtureOptions{notifier: dispatcher, dispatchTimeout: 100 * time.Millisecond})
	seed := seedTwoSupplierCart(t, db)

	ctx, cancel := context.WithTimeout(context.Background(), 200*time.Millisecond)
	defer cancel()

	done := make(chan error, 1)
	go func() {
		_, err := fx.service.Execute(ctx, codInput(seed.cart.ID))
		done <- err
	}()

	select {
	case err := <-done:
		require.NoError(t, err)
	case <-time.After(2 * time.Second):
		t.Fatalf("Execute still blocked after the dispatch deadline")
	}
	assert.Equal(t, int64(1), dbtest.Count(t, db, &models.Order{}))
}

func TestNewServiceRequiresDependencies(t *testing.T) {
	_, err := NewService(ServiceParams{})
	require.Error(t, err)
}
