package orders

import "github.com/angelmondragon/duka-backend/pkg/enums"

var paymentTransitions = map[enums.PaymentStatus][]enums.PaymentStatus{
	enums.PaymentStatusPending: {enums.PaymentStatusPaid, enums.PaymentStatusFailed},
}

var deliveryTransitions = map[enums.DeliveryStatus][]enums.DeliveryStatus{
	enums.DeliveryStatusPending:   {enums.DeliveryStatusPickedUp},
	enums.DeliveryStatusPickedUp:  {enums.DeliveryStatusInTransit},
	enums.DeliveryStatusInTransit: {enums.DeliveryStatusDelivered},
}

var fulfillmentTransitions = map[enums.FulfillmentStatus][]enums.FulfillmentStatus{
	enums.FulfillmentStatusPending:    {enums.FulfillmentStatusConfirmed},
	enums.FulfillmentStatusConfirmed:  {enums.FulfillmentStatusProcessing},
	enums.FulfillmentStatusProcessing: {enums.FulfillmentStatusShipped},
	enums.FulfillmentStatusShipped:    {enums.FulfillmentStatusDelivered},
}

// CanTransitionPayment reports whether a payment may move from -> to.
// Re-applying the current status is allowed and changes nothing.
func CanTransitionPayment(from, to enums.PaymentStatus) bool {
	if !to.IsValid() {
		return false
	}
	return from == to || contains(paymentTransitions[from], to)
}

// CanTransitionDelivery allows single forward steps only.
func CanTransitionDelivery(from, to enums.DeliveryStatus) bool {
	if !to.IsValid() {
		return false
	}
	return from == to || contains(deliveryTransitions[from], to)
}

// CanTransitionFulfillment allows single forward steps, plus CANCELLED from
// any non-terminal status.
func CanTransitionFulfillment(from, to enums.FulfillmentStatus) bool {
	if !to.IsValid() {
		return false
	}
	if from == to {
		return true
	}
	if to == enums.FulfillmentStatusCancelled {
		return !from.IsTerminal()
	}
	return contains(fulfillmentTransitions[from], to)
}

func contains[T comparable](list []T, v T) bool {
	for _, candidate := range list {
		if candidate == v {
			return true
		}
	}
	return false
}
