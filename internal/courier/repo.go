// Package courier holds the delivery-partner entity. Earnings are credited
// inside the order settle transaction; status flips to BUSY inside the
// assignment bind transaction. This repo only covers reads and the
// operator-facing status toggle.
package courier

import (
	"context"
	"errors"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
)

var (
	ErrNotFound = errors.New("courier not found")
)

type Repository interface {
	GetByID(ctx context.Context, id string) (*Courier, error)
	// EligibleForRestaurant returns couriers assigned to the restaurant whose
	// status is not OFFLINE. Presence filtering happens in the broadcaster.
	EligibleForRestaurant(ctx context.Context, restaurantID string) ([]Courier, error)
	SetStatus(ctx context.Context, id string, status Status) error
}

type PGRepo struct{ db *pgxpool.Pool }

func NewPGRepo(db *pgxpool.Pool) *PGRepo { return &PGRepo{db: db} }

const courierCols = `id, name, phone, status, today_earnings::text, total_earnings::text,
	completed_deliveries, created_at, updated_at`

func (r *PGRepo) GetByID(ctx context.Context, id string) (*Courier, error) {
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	var c Courier
	err := r.db.QueryRow(ctx, `
		SELECT `+courierCols+` FROM couriers WHERE id=$1
	`, id).Scan(&c.ID, &c.Name, &c.Phone, &c.Status, &c.TodayEarnings, &c.TotalEarnings,
		&c.CompletedDeliveries, &c.CreatedAt, &c.UpdatedAt)
	if err != nil {
		return nil, ErrNotFound
	}
	return &c, nil
}

func (r *PGRepo) EligibleForRestaurant(ctx context.Context, restaurantID string) ([]Courier, error) {
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	rows, err := r.db.Query(ctx, `
		SELECT `+courierCols+`
		FROM couriers c
		JOIN courier_restaurants cr ON cr.courier_id = c.id
		WHERE cr.restaurant_id = $1 AND c.status <> 'OFFLINE'
	`, restaurantID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []Courier
	for rows.Next() {
		var c Courier
		if err := rows.Scan(&c.ID, &c.Name, &c.Phone, &c.Status, &c.TodayEarnings, &c.TotalEarnings,
			&c.CompletedDeliveries, &c.CreatedAt, &c.UpdatedAt); err != nil {
			return nil, err
		}
		out = append(out, c)
	}
	return out, rows.Err()
}

func (r *PGRepo) SetStatus(ctx context.Context, id string, status Status) error {
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	tag, err := r.db.Exec(ctx, `
		UPDATE couriers SET status = $2, updated_at = NOW() WHERE id = $1
	`, id, status)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}
