package assignment

import (
	"context"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

type Outcome string

const (
	OutcomePending    Outcome = "PENDING"
	OutcomeAccepted   Outcome = "ACCEPTED"
	OutcomeDeclined   Outcome = "DECLINED"
	OutcomeSuperseded Outcome = "SUPERSEDED"
)

// Offer is one outstanding notification to one courier for one order.
// Offers are persisted so cancellation fan-out and escalation tooling have a
// durable record of who was asked.
type Offer struct {
	ID          string     `json:"id"`
	OrderID     string     `json:"order_id"`
	CourierID   string     `json:"courier_id"`
	Outcome     Outcome    `json:"outcome"`
	OfferedAt   time.Time  `json:"offered_at"`
	RespondedAt *time.Time `json:"responded_at,omitempty"`
}

type OfferRepository interface {
	CreateBatch(ctx context.Context, offers []Offer) error
	// MarkOutcome flips a single offer from -> to; reports whether the flip
	// happened (false means the offer was already resolved).
	MarkOutcome(ctx context.Context, orderID, courierID string, from, to Outcome) (bool, error)
	// SupersedePending resolves every other courier's PENDING offer and
	// returns their ids for cancellation fan-out.
	SupersedePending(ctx context.Context, orderID, exceptCourierID string) ([]string, error)
	ListByOrder(ctx context.Context, orderID string) ([]Offer, error)
}

type PGOfferRepo struct{ db *pgxpool.Pool }

func NewPGOfferRepo(db *pgxpool.Pool) *PGOfferRepo { return &PGOfferRepo{db: db} }

func (r *PGOfferRepo) CreateBatch(ctx context.Context, offers []Offer) error {
	tx, err := r.db.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback(ctx) }()

	for _, o := range offers {
		if _, err := tx.Exec(ctx, `
			INSERT INTO courier_offers (id, order_id, courier_id, outcome, offered_at)
			VALUES ($1,$2,$3,'PENDING',NOW())
			ON CONFLICT (order_id, courier_id) DO NOTHING
		`, o.ID, o.OrderID, o.CourierID); err != nil {
			return err
		}
	}
	return tx.Commit(ctx)
}

func (r *PGOfferRepo) MarkOutcome(ctx context.Context, orderID, courierID string, from, to Outcome) (bool, error) {
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	tag, err := r.db.Exec(ctx, `
		UPDATE courier_offers SET outcome=$4, responded_at=NOW()
		WHERE order_id=$1 AND courier_id=$2 AND outcome=$3
	`, orderID, courierID, from, to)
	if err != nil {
		return false, err
	}
	return tag.RowsAffected() > 0, nil
}

func (r *PGOfferRepo) SupersedePending(ctx context.Context, orderID, exceptCourierID string) ([]string, error) {
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	rows, err := r.db.Query(ctx, `
		UPDATE courier_offers SET outcome='SUPERSEDED', responded_at=NOW()
		WHERE order_id=$1 AND courier_id<>$2 AND outcome='PENDING'
		RETURNING courier_id
	`, orderID, exceptCourierID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		out = append(out, id)
	}
	return out, rows.Err()
}

func (r *PGOfferRepo) ListByOrder(ctx context.Context, orderID string) ([]Offer, error) {
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	rows, err := r.db.Query(ctx, `
		SELECT id, order_id, courier_id, outcome, offered_at, responded_at
		FROM courier_offers WHERE order_id=$1 ORDER BY offered_at
	`, orderID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []Offer
	for rows.Next() {
		var o Offer
		if err := rows.Scan(&o.ID, &o.OrderID, &o.CourierID, &o.Outcome, &o.OfferedAt, &o.RespondedAt); err != nil {
			return nil, err
		}
		out = append(out, o)
	}
	return out, rows.Err()
}
