package order

import "github.com/saiyam0211/aasta-core/internal/customer"

// CreateOrderRequest is the order-creation payload.
// swagger:model CreateOrderRequest
type CreateOrderRequest struct {
	CustomerID    string                 `json:"customer_id" example:"b2f5ff47-2b1e-4f22-8a96-5f3c1f2f2e7b"`
	CustomerName  string                 `json:"customer_name,omitempty"`
	CustomerPhone string                 `json:"customer_phone,omitempty"`
	RestaurantID  string                 `json:"restaurant_id" example:"4e7d4e5c-5cb9-4a3f-9f21-7e1a4f9f2b2a"`
	OrderType     string                 `json:"order_type" example:"DELIVERY"`
	Items         []CartLine             `json:"items"`
	Address       *customer.AddressInput `json:"address,omitempty"`
}

// ConfirmPaymentRequest is the gateway callback payload.
// swagger:model ConfirmPaymentRequest
type ConfirmPaymentRequest struct {
	TxnID     string `json:"txn_id"`
	PaymentID string `json:"payment_id"`
	Signature string `json:"signature"`
}

// AdvanceStatusRequest moves an order one step along its lifecycle.
// swagger:model AdvanceStatusRequest
type AdvanceStatusRequest struct {
	Status           string `json:"status" example:"PREPARING"`
	Role             string `json:"role" example:"restaurant"`
	VerificationCode string `json:"verification_code,omitempty"`
	Reason           string `json:"reason,omitempty"`
}

// CourierResponseRequest records a courier's answer to an offer.
// swagger:model CourierResponseRequest
type CourierResponseRequest struct {
	OrderID string `json:"order_id"`
	Action  string `json:"action" example:"ACCEPT"`
}
