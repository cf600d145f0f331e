package notifications

import (
	"bytes"
	"fmt"
	htmltemplate "html/template"
	"strings"
	texttemplate "text/template"

	"github.com/shopspring/decimal"

	"github.com/angelmondragon/duka-backend/pkg/db/models"
	"github.com/angelmondragon/duka-backend/pkg/enums"
)

// Email template names carried in email job payloads.
const (
	TemplateOrderConfirmation = "order_confirmation"
	TemplatePaymentSuccess    = "payment_success"
	TemplatePaymentFailed     = "payment_failed"
	TemplateDeliveryUpdate    = "delivery_update"
)

// WhatsApp templates registered with the provider.
const (
	WhatsAppOrderConfirmation = "order_confirmation"
	WhatsAppPaymentUpdate     = "payment_update"
	WhatsAppDeliveryUpdate    = "delivery_update"
)

const emailLayoutHTML = `{{define "items"}}<table cellpadding="6" style="border-collapse:collapse;width:100%">
<tr><th align="left">Item</th><th align="right">Qty</th><th align="right">Price</th><th align="right">Total</th></tr>
{{range .items}}<tr><td>{{.name}}</td><td align="right">{{.quantity}}</td><td align="right">{{.unitPrice}}</td><td align="right">{{.lineTotal}}</td></tr>
{{end}}</table>
<p>Subtotal: {{.subtotal}}<br>Delivery: {{.deliveryFee}}<br>{{if .hasDiscount}}Discount: -{{.discount}}<br>{{end}}<strong>Total: {{.total}}</strong></p>{{end}}
{{define "order_confirmation"}}<h2>Thank you, {{.customerName}}!</h2>
<p>We received your order <strong>{{.orderNumber}}</strong>. Payment method: {{.paymentMethod}}.</p>
{{template "items" .}}
<p>Delivering to {{.deliveryAddress}}, {{.deliveryCity}}.</p>
<p>Track your order: <a href="{{.trackingUrl}}">{{.trackingNumber}}</a></p>{{end}}
{{define "payment_success"}}<h2>Payment received</h2>
<p>Hi {{.customerName}}, we received {{.total}} for order <strong>{{.orderNumber}}</strong>. Your suppliers are preparing it now.</p>
{{template "items" .}}{{end}}
{{define "payment_failed"}}<h2>Payment failed</h2>
<p>Hi {{.customerName}}, the payment for order <strong>{{.orderNumber}}</strong> ({{.total}}) did not go through.</p>
<p>You can retry the payment or choose cash on delivery.</p>{{end}}
{{define "delivery_update"}}<h2>Your order is {{.deliveryLabel}}</h2>
<p>Hi {{.customerName}}, order <strong>{{.orderNumber}}</strong> is {{.deliveryLabel}}.{{if .courierName}} Courier: {{.courierName}}{{if .courierPhone}} ({{.courierPhone}}){{end}}.{{end}}</p>
<p>Track your order: <a href="{{.trackingUrl}}">{{.trackingNumber}}</a></p>{{end}}`

const emailLayoutText = `{{define "items"}}{{range .items}}- {{.name}} x{{.quantity}} @ {{.unitPrice}} = {{.lineTotal}}
{{end}}Subtotal: {{.subtotal}}
Delivery: {{.deliveryFee}}
{{if .hasDiscount}}Discount: -{{.discount}}
{{end}}Total: {{.total}}{{end}}
{{define "order_confirmation"}}Thank you, {{.customerName}}!

We received your order {{.orderNumber}}. Payment method: {{.paymentMethod}}.

{{template "items" .}}

Delivering to {{.deliveryAddress}}, {{.deliveryCity}}.
Track your order: {{.trackingUrl}}{{end}}
{{define "payment_success"}}Hi {{.customerName}}, we received {{.total}} for order {{.orderNumber}}.

{{template "items" .}}{{end}}
{{define "payment_failed"}}Hi {{.customerName}}, the payment for order {{.orderNumber}} ({{.total}}) did not go through.
You can retry the payment or choose cash on delivery.{{end}}
{{define "delivery_update"}}Hi {{.customerName}}, order {{.orderNumber}} is {{.deliveryLabel}}.
Track your order: {{.trackingUrl}}{{end}}`

var (
	htmlTemplates = htmltemplate.Must(htmltemplate.New("email").Option("missingkey=zero").Parse(emailLayoutHTML))
	textTemplates = texttemplate.Must(texttemplate.New("email").Option("missingkey=zero").Parse(emailLayoutText))
)

// RenderEmail renders the HTML and plain-text bodies of a named email template.
func RenderEmail(name string, data map[string]any) (string, string, error) {
	if htmlTemplates.Lookup(name) == nil || textTemplates.Lookup(name) == nil {
		return "", "", fmt.Errorf("unknown email template %q", name)
	}
	var html, text bytes.Buffer
	if err := htmlTemplates.ExecuteTemplate(&html, name, data); err != nil {
		return "", "", fmt.Errorf("render %s html: %w", name, err)
	}
	if err := textTemplates.ExecuteTemplate(&text, name, data); err != nil {
		return "", "", fmt.Errorf("render %s text: %w", name, err)
	}
	return html.String(), text.String(), nil
}

func emailTemplateFor(trigger enums.NotificationTrigger) string {
	switch trigger {
	case enums.NotificationTriggerOrderPlaced:
		return TemplateOrderConfirmation
	case enums.NotificationTriggerPaymentSuccess:
		return TemplatePaymentSuccess
	case enums.NotificationTriggerPaymentFailed:
		return TemplatePaymentFailed
	case enums.NotificationTriggerDeliveryStatusChanged:
		return TemplateDeliveryUpdate
	}
	return ""
}

func emailSubject(trigger enums.NotificationTrigger, order *models.Order) string {
	switch trigger {
	case enums.NotificationTriggerOrderPlaced:
		return fmt.Sprintf("Order %s confirmed", order.OrderNumber)
	case enums.NotificationTriggerPaymentSuccess:
		return fmt.Sprintf("Payment received for order %s", order.OrderNumber)
	case enums.NotificationTriggerPaymentFailed:
		return fmt.Sprintf("Payment failed for order %s", order.OrderNumber)
	case enums.NotificationTriggerDeliveryStatusChanged:
		return fmt.Sprintf("Order %s is %s", order.OrderNumber, deliveryLabel(order.DeliveryStatus))
	}
	return fmt.Sprintf("Update on order %s", order.OrderNumber)
}

// emailData flattens the order into JSON-safe values so the job payload
// renders identically after a round trip through the queue.
func emailData(order *models.Order, trackingBaseURL string) map[string]any {
	items := make([]map[string]any, 0, len(order.Items))
	for _, item := range order.Items {
		items = append(items, map[string]any{
			"name":      item.ProductName,
			"quantity":  item.Quantity,
			"unitPrice": FormatMoney(item.UnitPrice, order.Currency),
			"lineTotal": FormatMoney(item.TotalPrice, order.Currency),
		})
	}
	data := map[string]any{
		"orderNumber":     order.OrderNumber,
		"customerName":    order.CustomerName,
		"paymentMethod":   string(order.PaymentMethod),
		"paymentStatus":   string(order.PaymentStatus),
		"deliveryStatus":  string(order.DeliveryStatus),
		"deliveryLabel":   deliveryLabel(order.DeliveryStatus),
		"deliveryAddress": order.DeliveryAddress,
		"deliveryCity":    order.DeliveryCity,
		"items":           items,
		"subtotal":        FormatMoney(order.Subtotal, order.Currency),
		"deliveryFee":     FormatMoney(order.DeliveryFee, order.Currency),
		"discount":        FormatMoney(order.Discount, order.Currency),
		"hasDiscount":     order.Discount.IsPositive(),
		"total":           FormatMoney(order.Total, order.Currency),
		"trackingNumber":  order.TrackingCode(),
		"trackingUrl":     order.TrackingURL(trackingBaseURL),
		"courierName":     "",
		"courierPhone":    "",
	}
	if order.Delivery != nil {
		if order.Delivery.CourierName != nil {
			data["courierName"] = *order.Delivery.CourierName
		}
		if order.Delivery.CourierPhone != nil {
			data["courierPhone"] = *order.Delivery.CourierPhone
		}
	}
	return data
}

func smsMessage(trigger enums.NotificationTrigger, order *models.Order, trackingBaseURL string) string {
	total := FormatMoney(order.Total, order.Currency)
	switch trigger {
	case enums.NotificationTriggerOrderPlaced:
		msg := fmt.Sprintf("Duka: order %s received. %d item(s), total %s, pay by %s.",
			order.OrderNumber, len(order.Items), total, order.PaymentMethod)
		if link := order.TrackingURL(trackingBaseURL); link != "" {
			msg += " Track: " + link
		}
		return msg
	case enums.NotificationTriggerPaymentSuccess:
		return fmt.Sprintf("Duka: payment of %s for order %s received. Thank you!", total, order.OrderNumber)
	case enums.NotificationTriggerPaymentFailed:
		return fmt.Sprintf("Duka: payment for order %s failed. Please retry or choose cash on delivery.", order.OrderNumber)
	case enums.NotificationTriggerDeliveryStatusChanged:
		msg := fmt.Sprintf("Duka: order %s is %s.", order.OrderNumber, deliveryLabel(order.DeliveryStatus))
		if order.Delivery != nil && order.Delivery.CourierName != nil {
			msg += " Courier: " + *order.Delivery.CourierName
			if order.Delivery.CourierPhone != nil {
				msg += " " + *order.Delivery.CourierPhone
			}
			msg += "."
		}
		return msg + " Tracking " + order.TrackingCode()
	}
	return fmt.Sprintf("Duka: update on order %s.", order.OrderNumber)
}

func whatsAppTemplate(trigger enums.NotificationTrigger, order *models.Order, trackingBaseURL string) (string, map[string]string) {
	data := map[string]string{
		"customer_name": order.CustomerName,
		"order_number":  order.OrderNumber,
		"total":         FormatMoney(order.Total, order.Currency),
	}
	switch trigger {
	case enums.NotificationTriggerPaymentSuccess, enums.NotificationTriggerPaymentFailed:
		data["status"] = string(order.PaymentStatus)
		return WhatsAppPaymentUpdate, data
	case enums.NotificationTriggerDeliveryStatusChanged:
		data["status"] = deliveryLabel(order.DeliveryStatus)
		data["tracking_url"] = order.TrackingURL(trackingBaseURL)
		return WhatsAppDeliveryUpdate, data
	}
	data["tracking_url"] = order.TrackingURL(trackingBaseURL)
	return WhatsAppOrderConfirmation, data
}

func deliveryLabel(status enums.DeliveryStatus) string {
	switch status {
	case enums.DeliveryStatusPending:
		return "awaiting pickup"
	case enums.DeliveryStatusPickedUp:
		return "picked up by the courier"
	case enums.DeliveryStatusInTransit:
		return "on its way"
	case enums.DeliveryStatusDelivered:
		return "delivered"
	}
	return strings.ToLower(string(status))
}

// FormatMoney renders an amount with thousands separators, e.g. "RWF 16,500"
// or "RWF 1,250.50". Whole amounts drop the decimals.
func FormatMoney(amount decimal.Decimal, currency string) string {
	sign := ""
	if amount.IsNegative() {
		sign = "-"
		amount = amount.Abs()
	}
	fixed := amount.StringFixed(2)
	whole, frac, _ := strings.Cut(fixed, ".")

	var grouped strings.Builder
	for i, r := range whole {
		if i > 0 && (len(whole)-i)%3 == 0 {
			grouped.WriteByte(',')
		}
		grouped.WriteRune(r)
	}
	value := sign + grouped.String()
	if frac != "" && frac != "00" {
		value += "." + frac
	}
	if currency == "" {
		return value
	}
	return currency + " " + value
}
