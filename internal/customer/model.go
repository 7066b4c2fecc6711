package customer

import "time"

type Customer struct {
	ID        string    `json:"id"`
	Name      string    `json:"name,omitempty"`
	Phone     string    `json:"phone,omitempty"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// Address is one of a customer's saved delivery addresses. Latitude and
// Longitude are nil when geocoding failed and we fell back to raw text.
type Address struct {
	ID         string    `json:"id"`
	CustomerID string    `json:"customer_id"`
	Street     string    `json:"street"`
	City       string    `json:"city,omitempty"`
	PostalCode string    `json:"postal_code,omitempty"`
	Latitude   *float64  `json:"latitude,omitempty"`
	Longitude  *float64  `json:"longitude,omitempty"`
	CreatedAt  time.Time `json:"created_at"`
}

// AddressInput is the raw address text supplied with a delivery order.
type AddressInput struct {
	Street     string `json:"street"`
	City       string `json:"city,omitempty"`
	PostalCode string `json:"postal_code,omitempty"`
}
