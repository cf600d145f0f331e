package controllers

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/angelmondragon/duka-backend/pkg/db/models"
	"github.com/angelmondragon/duka-backend/pkg/types"
)

type orderResponse struct {
	ID              uuid.UUID            `json:"id"`
	OrderNumber     string               `json:"orderNumber"`
	PaymentMethod   string               `json:"paymentMethod"`
	PaymentStatus   string               `json:"paymentStatus"`
	DeliveryStatus  string               `json:"deliveryStatus"`
	SupplierCount   int                  `json:"supplierCount"`
	Subtotal        decimal.Decimal      `json:"subtotal"`
	DeliveryFee     decimal.Decimal      `json:"deliveryFee"`
	Discount        decimal.Decimal      `json:"discount"`
	Total           decimal.Decimal      `json:"total"`
	Currency        string               `json:"currency"`
	Customer        customerResponse     `json:"customer"`
	Notes           *string              `json:"notes,omitempty"`
	MoMoPhoneNumber *string              `json:"momoPhoneNumber,omitempty"`
	Items           []orderItemResponse  `json:"items"`
	Snapshot        models.ItemsSnapshot `json:"itemsSnapshot"`
	Payment         *paymentResponse     `json:"payment,omitempty"`
	Delivery        *deliveryResponse    `json:"delivery,omitempty"`
	InvoiceURL      *string              `json:"invoiceUrl,omitempty"`
	DeliveryNoteURL *string              `json:"deliveryNoteUrl,omitempty"`
	PaidAt          *time.Time           `json:"paidAt,omitempty"`
	FailedAt        *time.Time           `json:"failedAt,omitempty"`
	CreatedAt       time.Time            `json:"createdAt"`
	UpdatedAt       time.Time            `json:"updatedAt"`
}

type customerResponse struct {
	Name          string  `json:"name"`
	Phone         string  `json:"phone"`
	Email         *string `json:"email,omitempty"`
	Address       string  `json:"address"`
	City          string  `json:"city"`
	Region        *string `json:"region,omitempty"`
	DeliveryNotes *string `json:"deliveryNotes,omitempty"`
}

type orderItemResponse struct {
	ID                uuid.UUID       `json:"id"`
	OrderID           uuid.UUID       `json:"orderId"`
	ProductID         uuid.UUID       `json:"productId"`
	SupplierID        *uuid.UUID      `json:"supplierId,omitempty"`
	ProductName       string          `json:"productName"`
	UnitPrice         decimal.Decimal `json:"unitPrice"`
	Quantity          int             `json:"quantity"`
	TotalPrice        decimal.Decimal `json:"totalPrice"`
	CommissionRate    decimal.Decimal `json:"commissionRate"`
	CommissionAmount  decimal.Decimal `json:"commissionAmount"`
	SupplierAmount    decimal.Decimal `json:"supplierAmount"`
	FulfillmentStatus string          `json:"fulfillmentStatus"`
	TrackingNumber    *string         `json:"trackingNumber,omitempty"`
	ConfirmedAt       *time.Time      `json:"confirmedAt,omitempty"`
	FulfilledAt       *time.Time      `json:"fulfilledAt,omitempty"`
	ShippedAt         *time.Time      `json:"shippedAt,omitempty"`
	DeliveredAt       *time.Time      `json:"deliveredAt,omitempty"`
	CancelledAt       *time.Time      `json:"cancelledAt,omitempty"`
}

type paymentResponse struct {
	Method            string          `json:"method"`
	Status            string          `json:"status"`
	Amount            decimal.Decimal `json:"amount"`
	Currency          string          `json:"currency"`
	PhoneNumber       *string         `json:"phoneNumber,omitempty"`
	Provider          *string         `json:"provider,omitempty"`
	ProviderReference *string         `json:"providerReference,omitempty"`
	ProviderMetadata  types.JSONMap   `json:"providerMetadata,omitempty"`
	PaidAt            *time.Time      `json:"paidAt,omitempty"`
	FailedAt          *time.Time      `json:"failedAt,omitempty"`
}

type deliveryResponse struct {
	Status         string     `json:"status"`
	TrackingNumber string     `json:"trackingNumber"`
	CourierName    *string    `json:"courierName,omitempty"`
	CourierPhone   *string    `json:"courierPhone,omitempty"`
	PickedUpAt     *time.Time `json:"pickedUpAt,omitempty"`
	InTransitAt    *time.Time `json:"inTransitAt,omitempty"`
	DeliveredAt    *time.Time `json:"deliveredAt,omitempty"`
}

type notificationLogResponse struct {
	ID        uuid.UUID  `json:"id"`
	Channel   string     `json:"channel"`
	Recipient string     `json:"recipient"`
	Subject   string     `json:"subject"`
	Status    string     `json:"status"`
	Error     *string    `json:"error,omitempty"`
	OrderID   *uuid.UUID `json:"orderId,omitempty"`
	JobID     *string    `json:"jobId,omitempty"`
	Attempts  int        `json:"attempts"`
	Provider  *string    `json:"provider,omitempty"`
	CreatedAt time.Time  `json:"createdAt"`
}

type inventoryLogResponse struct {
	ID            uuid.UUID  `json:"id"`
	ProductID     uuid.UUID  `json:"productId"`
	ProductName   string     `json:"productName"`
	PreviousStock int        `json:"previousStock"`
	NewStock      int        `json:"newStock"`
	Change        int        `json:"change"`
	Reason        string     `json:"reason"`
	ReferenceType *string    `json:"referenceType,omitempty"`
	ReferenceID   *uuid.UUID `json:"referenceId,omitempty"`
	Note          *string    `json:"note,omitempty"`
	CreatedAt     time.Time  `json:"createdAt"`
}

func newOrderResponse(order *models.Order) orderResponse {
	resp := orderResponse{
		ID:             order.ID,
		OrderNumber:    order.OrderNumber,
		PaymentMethod:  string(order.PaymentMethod),
		PaymentStatus:  string(order.PaymentStatus),
		DeliveryStatus: string(order.DeliveryStatus),
		SupplierCount:  order.SupplierCount,
		Subtotal:       order.Subtotal,
		DeliveryFee:    order.DeliveryFee,
		Discount:       order.Discount,
		Total:          order.Total,
		Currency:       order.Currency,
		Customer: customerResponse{
			Name:          order.CustomerName,
			Phone:         order.CustomerPhone,
			Email:         order.CustomerEmail,
			Address:       order.DeliveryAddress,
			City:          order.DeliveryCity,
			Region:        order.DeliveryRegion,
			DeliveryNotes: order.DeliveryNotes,
		},
		Notes:           order.Notes,
		MoMoPhoneNumber: order.MoMoPhoneNumber,
		Items:           make([]orderItemResponse, 0, len(order.Items)),
		Snapshot:        order.ItemsSnapshot,
		InvoiceURL:      order.InvoiceURL,
		DeliveryNoteURL: order.DeliveryNoteURL,
		PaidAt:          order.PaidAt,
		FailedAt:        order.FailedAt,
		CreatedAt:       order.CreatedAt,
		UpdatedAt:       order.UpdatedAt,
	}
	if resp.Snapshot == nil {
		resp.Snapshot = models.ItemsSnapshot{}
	}
	for i := range order.Items {
		resp.Items = append(resp.Items, newOrderItemResponse(&order.Items[i]))
	}
	if p := order.Payment; p != nil {
		resp.Payment = &paymentResponse{
			Method:            string(p.Method),
			Status:            string(p.Status),
			Amount:            p.Amount,
			Currency:          p.Currency,
			PhoneNumber:       p.PhoneNumber,
			Provider:          p.Provider,
			ProviderReference: p.ProviderReference,
			ProviderMetadata:  p.ProviderMetadata,
			PaidAt:            p.PaidAt,
			FailedAt:          p.FailedAt,
		}
	}
	if d := order.Delivery; d != nil {
		resp.Delivery = &deliveryResponse{
			Status:         string(d.Status),
			TrackingNumber: d.TrackingNumber,
			CourierName:    d.CourierName,
			CourierPhone:   d.CourierPhone,
			PickedUpAt:     d.PickedUpAt,
			InTransitAt:    d.InTransitAt,
			DeliveredAt:    d.DeliveredAt,
		}
	}
	return resp
}

func newOrderItemResponse(item *models.OrderItem) orderItemResponse {
	return orderItemResponse{
		ID:                item.ID,
		OrderID:           item.OrderID,
		ProductID:         item.ProductID,
		SupplierID:        item.SupplierID,
		ProductName:       item.ProductName,
		UnitPrice:         item.UnitPrice,
		Quantity:          item.Quantity,
		TotalPrice:        item.TotalPrice,
		CommissionRate:    item.CommissionRate,
		CommissionAmount:  item.CommissionAmount,
		SupplierAmount:    item.SupplierAmount,
		FulfillmentStatus: string(item.FulfillmentStatus),
		TrackingNumber:    item.TrackingNumber,
		ConfirmedAt:       item.ConfirmedAt,
		FulfilledAt:       item.FulfilledAt,
		ShippedAt:         item.ShippedAt,
		DeliveredAt:       item.DeliveredAt,
		CancelledAt:       item.CancelledAt,
	}
}

func newNotificationLogResponses(logs []models.NotificationLog) []notificationLogResponse {
	out := make([]notificationLogResponse, 0, len(logs))
	for _, l := range logs {
		out = append(out, notificationLogResponse{
			ID:        l.ID,
			Channel:   string(l.Channel),
			Recipient: l.Recipient,
			Subject:   l.Subject,
			Status:    string(l.Status),
			Error:     l.Error,
			OrderID:   l.OrderID,
			JobID:     l.JobID,
			Attempts:  l.Attempts,
			Provider:  l.Provider,
			CreatedAt: l.CreatedAt,
		})
	}
	return out
}

func newInventoryLogResponse(l models.InventoryLog) inventoryLogResponse {
	resp := inventoryLogResponse{
		ID:            l.ID,
		ProductID:     l.ProductID,
		ProductName:   l.ProductName,
		PreviousStock: l.PreviousStock,
		NewStock:      l.NewStock,
		Change:        l.Change,
		Reason:        string(l.Reason),
		ReferenceID:   l.ReferenceID,
		Note:          l.Note,
		CreatedAt:     l.CreatedAt,
	}
	if l.ReferenceType != nil {
		ref := string(*l.ReferenceType)
		resp.ReferenceType = &ref
	}
	return resp
}
