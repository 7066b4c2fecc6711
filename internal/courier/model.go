package courier

import "time"

type Status string

const (
	StatusAvailable Status = "AVAILABLE"
	StatusBusy      Status = "BUSY"
	StatusOffline   Status = "OFFLINE"
)

type Courier struct {
	ID     string `json:"id"`
	Name   string `json:"name"`
	Phone  string `json:"phone,omitempty"`
	Status Status `json:"status"`
	// NUMERIC -> string; credited only by settlement.
	TodayEarnings       string    `json:"today_earnings"`
	TotalEarnings       string    `json:"total_earnings"`
	CompletedDeliveries int       `json:"completed_deliveries"`
	CreatedAt           time.Time `json:"created_at"`
	UpdatedAt           time.Time `json:"updated_at"`
}
