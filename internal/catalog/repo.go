// Package catalog is the read model for restaurants and menu items the
// intake pipeline validates carts against. The stock decrement itself runs
// inside the order-creation transaction, not here.
package catalog

import (
	"context"
	"errors"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
)

var (
	ErrNotFound = errors.New("restaurant not found")
)

type Repository interface {
	GetRestaurant(ctx context.Context, id string) (*Restaurant, error)
	// GetItemsForOrder returns only available items belonging to the
	// restaurant; a requested id missing from the result means the item is
	// deleted, disabled, or owned by another restaurant.
	GetItemsForOrder(ctx context.Context, restaurantID string, ids []string) ([]MenuItem, error)
	Restock(ctx context.Context, itemID string, delta int) error
	SetAvailability(ctx context.Context, itemID string, available bool) error
}

type PGRepo struct{ db *pgxpool.Pool }

func NewPGRepo(db *pgxpool.Pool) *PGRepo { return &PGRepo{db: db} }

func (r *PGRepo) GetRestaurant(ctx context.Context, id string) (*Restaurant, error) {
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	var res Restaurant
	err := r.db.QueryRow(ctx, `
		SELECT id, name, status,
		       minimum_order_amount::text, delivery_fee::text,
		       restaurant_split::text, platform_split::text,
		       address, created_at, updated_at
		FROM restaurants WHERE id=$1
	`, id).Scan(&res.ID, &res.Name, &res.Status,
		&res.MinimumOrderAmount, &res.DeliveryFee,
		&res.RestaurantSplit, &res.PlatformSplit,
		&res.Address, &res.CreatedAt, &res.UpdatedAt)
	if err != nil {
		return nil, ErrNotFound
	}
	return &res, nil
}

func (r *PGRepo) GetItemsForOrder(ctx context.Context, restaurantID string, ids []string) ([]MenuItem, error) {
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	rows, err := r.db.Query(ctx, `
		SELECT id, restaurant_id, name, price::text, original_price::text,
		       available, stock_left, created_at, updated_at
		FROM menu_items
		WHERE restaurant_id=$1 AND available AND id = ANY($2)
	`, restaurantID, ids)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []MenuItem
	for rows.Next() {
		var m MenuItem
		if err := rows.Scan(&m.ID, &m.RestaurantID, &m.Name, &m.Price, &m.OriginalPrice,
			&m.Available, &m.StockLeft, &m.CreatedAt, &m.UpdatedAt); err != nil {
			return nil, err
		}
		out = append(out, m)
	}
	return out, rows.Err()
}

func (r *PGRepo) Restock(ctx context.Context, itemID string, delta int) error {
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	tag, err := r.db.Exec(ctx, `
		UPDATE menu_items
		SET stock_left = stock_left + $2, updated_at = NOW()
		WHERE id = $1 AND stock_left + $2 >= 0
	`, itemID, delta)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func (r *PGRepo) SetAvailability(ctx context.Context, itemID string, available bool) error {
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	tag, err := r.db.Exec(ctx, `
		UPDATE menu_items SET available = $2, updated_at = NOW() WHERE id = $1
	`, itemID, available)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}
