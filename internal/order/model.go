package order

import "time"

type Type string

const (
	TypeDelivery Type = "DELIVERY"
	TypePickup   Type = "PICKUP"
)

type PaymentStatus string

const (
	PaymentPending   PaymentStatus = "pending"
	PaymentCompleted PaymentStatus = "completed"
	PaymentFailed    PaymentStatus = "failed"
	PaymentRefunded  PaymentStatus = "refunded"
)

// PaymentRecord statuses (one record per gateway transaction attempt).
const (
	RecordCreated   = "CREATED"
	RecordCompleted = "COMPLETED"
	RecordFailed    = "FAILED"
)

type Order struct {
	ID     string `json:"id"`
	Number string `json:"number"`

	CustomerID   string  `json:"customer_id"`
	RestaurantID string  `json:"restaurant_id"`
	CourierID    *string `json:"courier_id,omitempty"` // nil until a courier is bound

	Type          Type          `json:"order_type"`
	Status        Status        `json:"status"`
	PaymentStatus PaymentStatus `json:"payment_status"`

	// Money as strings (NUMERIC in Postgres); total = subtotal+taxes+fee.
	Subtotal    string `json:"subtotal"`
	Taxes       string `json:"taxes"`
	DeliveryFee string `json:"delivery_fee"`
	Total       string `json:"total"`
	Currency    string `json:"currency"`

	DeliveryAddressID *string `json:"delivery_address_id,omitempty"`
	// DeliveryAddress is snapshotted text so offers and receipts survive
	// later edits to the saved address.
	DeliveryAddress  string `json:"delivery_address,omitempty"`
	VerificationCode string `json:"verification_code"`

	GatewayTxnID *string `json:"gateway_txn_id,omitempty"`
	CancelReason string  `json:"cancel_reason,omitempty"`
	Settled      bool    `json:"settled"`

	EstimatedReadyAt    *time.Time `json:"estimated_ready_at,omitempty"`
	EstimatedDeliveryAt *time.Time `json:"estimated_delivery_at,omitempty"`
	CreatedAt           time.Time  `json:"created_at"`
	UpdatedAt           time.Time  `json:"updated_at"`
}

// Item snapshots everything needed to reproduce the order without re-reading
// the catalog: prices at order time and the pre-computed earnings splits.
type Item struct {
	ID         string `json:"id"`
	OrderID    string `json:"order_id"`
	MenuItemID string `json:"menu_item_id"`
	Name       string `json:"name"`
	Quantity   int    `json:"quantity"`

	Price              string `json:"price"`
	OriginalPrice      string `json:"original_price"`
	RestaurantEarnings string `json:"restaurant_earnings"`
	PlatformEarnings   string `json:"platform_earnings"`
}

type PaymentRecord struct {
	ID         string     `json:"id"`
	OrderID    string     `json:"order_id"`
	TxnID      string     `json:"txn_id"`
	PaymentID  *string    `json:"payment_id,omitempty"`
	Amount     string     `json:"amount"`
	Status     string     `json:"status"`
	CreatedAt  time.Time  `json:"created_at"`
	CapturedAt *time.Time `json:"captured_at,omitempty"`
}

// Settlement is the outcome of a settle attempt. Credited is false on
// replays; the courier was paid exactly once either way.
type Settlement struct {
	Credited  bool   `json:"credited"`
	CourierID string `json:"courier_id,omitempty"`
	Amount    string `json:"amount,omitempty"`
}
