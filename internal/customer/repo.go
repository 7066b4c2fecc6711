package customer

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
)

var (
	ErrNotFound = errors.New("customer not found")
)

type Repository interface {
	// FindOrCreate resolves the customer row, creating it on first order.
	FindOrCreate(ctx context.Context, id, name, phone string) (*Customer, error)
	// ResolveAddress dedupes against the customer's saved addresses by
	// normalized street text before inserting a new row.
	ResolveAddress(ctx context.Context, customerID string, in AddressInput, lat, lon *float64) (*Address, error)
	GetAddress(ctx context.Context, id string) (*Address, error)
}

// NormalizeStreet is the dedupe key for saved addresses: lower-cased,
// whitespace collapsed.
func NormalizeStreet(s string) string {
	return strings.Join(strings.Fields(strings.ToLower(s)), " ")
}

type PGRepo struct{ db *pgxpool.Pool }

func NewPGRepo(db *pgxpool.Pool) *PGRepo { return &PGRepo{db: db} }

func (r *PGRepo) FindOrCreate(ctx context.Context, id, name, phone string) (*Customer, error) {
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	var c Customer
	err := r.db.QueryRow(ctx, `
		INSERT INTO customers (id, name, phone, created_at, updated_at)
		VALUES ($1, $2, $3, NOW(), NOW())
		ON CONFLICT (id) DO UPDATE SET updated_at = NOW()
		RETURNING id, name, phone, created_at, updated_at
	`, id, name, phone).Scan(&c.ID, &c.Name, &c.Phone, &c.CreatedAt, &c.UpdatedAt)
	if err != nil {
		return nil, err
	}
	return &c, nil
}

func (r *PGRepo) ResolveAddress(ctx context.Context, customerID string, in AddressInput, lat, lon *float64) (*Address, error) {
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	norm := NormalizeStreet(in.Street)

	var a Address
	err := r.db.QueryRow(ctx, `
		SELECT id, customer_id, street, city, postal_code, latitude, longitude, created_at
		FROM addresses
		WHERE customer_id=$1 AND street_normalized=$2
	`, customerID, norm).Scan(&a.ID, &a.CustomerID, &a.Street, &a.City, &a.PostalCode,
		&a.Latitude, &a.Longitude, &a.CreatedAt)
	if err == nil {
		return &a, nil
	}

	a = Address{
		ID:         uuid.NewString(),
		CustomerID: customerID,
		Street:     in.Street,
		City:       in.City,
		PostalCode: in.PostalCode,
		Latitude:   lat,
		Longitude:  lon,
	}
	err = r.db.QueryRow(ctx, `
		INSERT INTO addresses (id, customer_id, street, street_normalized, city, postal_code, latitude, longitude, created_at)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,NOW())
		RETURNING created_at
	`, a.ID, customerID, in.Street, norm, in.City, in.PostalCode, lat, lon).Scan(&a.CreatedAt)
	if err != nil {
		return nil, err
	}
	return &a, nil
}

func (r *PGRepo) GetAddress(ctx context.Context, id string) (*Address, error) {
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	var a Address
	err := r.db.QueryRow(ctx, `
		SELECT id, customer_id, street, city, postal_code, latitude, longitude, created_at
		FROM addresses WHERE id=$1
	`, id).Scan(&a.ID, &a.CustomerID, &a.Street, &a.City, &a.PostalCode,
		&a.Latitude, &a.Longitude, &a.CreatedAt)
	if err != nil {
		return nil, ErrNotFound
	}
	return &a, nil
}
