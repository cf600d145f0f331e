// Package documents renders order invoices and delivery notes as PDF.
package documents

import (
	"time"

	"github.com/shopspring/decimal"

	"github.com/angelmondragon/duka-backend/pkg/db/models"
	"github.com/angelmondragon/duka-backend/pkg/enums"
)

// SnapshotItem is one printed order line.
type SnapshotItem struct {
	Name      string
	Quantity  int
	UnitPrice decimal.Decimal
	Total     decimal.Decimal
}

// OrderSnapshot is the read-only view of an order a document is rendered from.
type OrderSnapshot struct {
	OrderNumber string
	PlacedAt    time.Time
	Currency    string

	CustomerName    string
	CustomerPhone   string
	CustomerEmail   string
	DeliveryAddress string
	DeliveryCity    string
	DeliveryRegion  string
	DeliveryNotes   string

	PaymentMethod  enums.PaymentMethod
	PaymentStatus  enums.PaymentStatus
	DeliveryStatus enums.DeliveryStatus

	Items       []SnapshotItem
	Subtotal    decimal.Decimal
	DeliveryFee decimal.Decimal
	Discount    decimal.Decimal
	Total       decimal.Decimal

	TrackingNumber string
	TrackingURL    string
	CourierName    string
	CourierPhone   string
}

// SnapshotFromOrder projects order into an OrderSnapshot. Items come from the
// order lines when loaded and fall back to the checkout snapshot.
func SnapshotFromOrder(order *models.Order, trackingBaseURL string) OrderSnapshot {
	snap := OrderSnapshot{
		OrderNumber:     order.OrderNumber,
		PlacedAt:        order.CreatedAt.UTC(),
		Currency:        order.Currency,
		CustomerName:    order.CustomerName,
		CustomerPhone:   order.CustomerPhone,
		CustomerEmail:   deref(order.CustomerEmail),
		DeliveryAddress: order.DeliveryAddress,
		DeliveryCity:    order.DeliveryCity,
		DeliveryRegion:  deref(order.DeliveryRegion),
		DeliveryNotes:   deref(order.DeliveryNotes),
		PaymentMethod:   order.PaymentMethod,
		PaymentStatus:   order.PaymentStatus,
		DeliveryStatus:  order.DeliveryStatus,
		Subtotal:        order.Subtotal,
		DeliveryFee:     order.DeliveryFee,
		Discount:        order.Discount,
		Total:           order.Total,
		TrackingNumber:  order.TrackingCode(),
		TrackingURL:     order.TrackingURL(trackingBaseURL),
	}
	if order.Delivery != nil {
		snap.CourierName = deref(order.Delivery.CourierName)
		snap.CourierPhone = deref(order.Delivery.CourierPhone)
	}

	if len(order.Items) > 0 {
		for _, item := range order.Items {
			snap.Items = append(snap.Items, SnapshotItem{
				Name:      item.ProductName,
				Quantity:  item.Quantity,
				UnitPrice: item.UnitPrice,
				Total:     item.TotalPrice,
			})
		}
		return snap
	}
	for _, item := range order.ItemsSnapshot {
		snap.Items = append(snap.Items, SnapshotItem{
			Name:      item.Name,
			Quantity:  item.Quantity,
			UnitPrice: item.Price,
			Total:     item.Price.Mul(decimal.NewFromInt(int64(item.Quantity))),
		})
	}
	return snap
}

func deref(value *string) string {
	if value == nil {
		return ""
	}
	return *value
}
