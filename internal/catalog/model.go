package catalog

import "time"

const (
	RestaurantActive   = "ACTIVE"
	RestaurantInactive = "INACTIVE"
)

type Restaurant struct {
	ID   string `json:"id"`
	Name string `json:"name"`
	// ACTIVE restaurants accept orders; anything else is closed.
	Status string `json:"status"`
	// We store money as strings to avoid rounding errors (NUMERIC in Postgres)
	MinimumOrderAmount string    `json:"minimum_order_amount"`
	DeliveryFee        string    `json:"delivery_fee"`
	RestaurantSplit    string    `json:"restaurant_split"`
	PlatformSplit      string    `json:"platform_split"`
	Address            string    `json:"address"`
	CreatedAt          time.Time `json:"created_at"`
	UpdatedAt          time.Time `json:"updated_at"`
}

type MenuItem struct {
	ID           string `json:"id"`
	RestaurantID string `json:"restaurant_id"`
	Name         string `json:"name"`
	// Price is the current sale price; OriginalPrice the pre-discount price
	// earnings splits are computed from.
	Price         string    `json:"price"`
	OriginalPrice string    `json:"original_price"`
	Available     bool      `json:"available"`
	StockLeft     int       `json:"stock_left"`
	CreatedAt     time.Time `json:"created_at"`
	UpdatedAt     time.Time `json:"updated_at"`
}
