// Package dbtest opens throwaway databases for repository and transaction tests.
package dbtest

import (
	"os"
	"testing"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/driver/postgres"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/angelmondragon/duka-backend/pkg/db/models"
	"github.com/angelmondragon/duka-backend/pkg/enums"
)

// PostgresDSNEnv gates tests that need real row locks.
const PostgresDSNEnv = "DUKA_TEST_DB_DSN"

// OpenSQLite returns an isolated in-memory database with every model migrated.
func OpenSQLite(t *testing.T) *gorm.DB {
	t.Helper()
	dsn := "file:duka_" + uuid.NewString() + "?mode=memory&cache=shared"
	conn, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}
	if err := conn.AutoMigrate(models.All()...); err != nil {
		t.Fatalf("migrate sqlite: %v", err)
	}
	t.Cleanup(func() {
		if sqlDB, err := conn.DB(); err == nil {
			_ = sqlDB.Close()
		}
	})
	return conn
}

// OpenPostgres connects to the database named by DUKA_TEST_DB_DSN, skipping
// the test when it is unset. The schema is expected to be migrated already.
func OpenPostgres(t *testing.T) *gorm.DB {
	t.Helper()
	dsn := os.Getenv(PostgresDSNEnv)
	if dsn == "" {
		t.Skipf("%s is not set", PostgresDSNEnv)
	}
	conn, err := gorm.Open(postgres.Open(dsn), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	if err != nil {
		t.Fatalf("open postgres: %v", err)
	}
	return conn
}

func MustCreateSupplier(t *testing.T, db *gorm.DB, name string, rate string) *models.Supplier {
	t.Helper()
	email := name + "@suppliers.test"
	supplier := &models.Supplier{
		Name:           name,
		Email:          &email,
		CommissionRate: decimal.RequireFromString(rate),
		IsActive:       true,
	}
	if err := db.Create(supplier).Error; err != nil {
		t.Fatalf("create supplier: %v", err)
	}
	return supplier
}

func MustCreateProduct(t *testing.T, db *gorm.DB, supplierID *uuid.UUID, name, price string, stock int) *models.Product {
	t.Helper()
	product := &models.Product{
		SupplierID: supplierID,
		Name:       name,
		Price:      decimal.RequireFromString(price),
		Stock:      stock,
		IsActive:   true,
	}
	if err := db.Create(product).Error; err != nil {
		t.Fatalf("create product: %v", err)
	}
	return product
}

// CartLine is a product and quantity to seed into a cart. Price defaults to
// the product's catalog price.
type CartLine struct {
	Product  *models.Product
	Quantity int
	Price    string
}

func MustCreateCart(t *testing.T, db *gorm.DB, lines ...CartLine) *models.Cart {
	t.Helper()
	cart := &models.Cart{}
	if err := db.Create(cart).Error; err != nil {
		t.Fatalf("create cart: %v", err)
	}
	for _, line := range lines {
		price := line.Product.Price
		if line.Price != "" {
			price = decimal.RequireFromString(line.Price)
		}
		item := &models.CartItem{
			CartID:    cart.ID,
			ProductID: line.Product.ID,
			Quantity:  line.Quantity,
			UnitPrice: price,
		}
		if err := db.Create(item).Error; err != nil {
			t.Fatalf("create cart item: %v", err)
		}
		cart.Items = append(cart.Items, *item)
	}
	return cart
}

// MustCreateOrder seeds a pending COD order with its payment and delivery rows.
func MustCreateOrder(t *testing.T, db *gorm.DB, number string) *models.Order {
	t.Helper()
	total := decimal.NewFromInt(16500)
	order := &models.Order{
		OrderNumber:     number,
		PaymentMethod:   enums.PaymentMethodCOD,
		PaymentStatus:   enums.PaymentStatusPending,
		DeliveryStatus:  enums.DeliveryStatusPending,
		SupplierCount:   1,
		Subtotal:        decimal.NewFromInt(15000),
		DeliveryFee:     decimal.NewFromInt(1500),
		Total:           total,
		Currency:        "RWF",
		CustomerName:    "Amina Uwase",
		CustomerPhone:   "0788123456",
		DeliveryAddress: "KG 11 Ave",
		DeliveryCity:    "Kigali",
	}
	if err := db.Omit("Items", "Payment", "Delivery").Create(order).Error; err != nil {
		t.Fatalf("create order: %v", err)
	}
	payment := &models.Payment{
		OrderID:  order.ID,
		Method:   enums.PaymentMethodCOD,
		Amount:   total,
		Currency: "RWF",
		Status:   enums.PaymentStatusPending,
	}
	if err := db.Create(payment).Error; err != nil {
		t.Fatalf("create payment: %v", err)
	}
	delivery := &models.Delivery{
		OrderID:        order.ID,
		Status:         enums.DeliveryStatusPending,
		TrackingNumber: "TRK-" + number,
	}
	if err := db.Create(delivery).Error; err != nil {
		t.Fatalf("create delivery: %v", err)
	}
	order.Payment = payment
	order.Delivery = delivery
	return order
}

func Count(t *testing.T, db *gorm.DB, model any) int64 {
	t.Helper()
	var n int64
	if err := db.Model(model).Count(&n).Error; err != nil {
		t.Fatalf("count: %v", err)
	}
	return n
}
