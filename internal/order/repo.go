package order

import (
	"context"
	"errors"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// Repository is the persistence surface of the fulfillment core. Every race
// called out in the design (stock decrement, courier bind, payment link,
// settlement) is resolved here by a single conditional statement inside one
// transaction; callers never hold locks across I/O.
type Repository interface {
	Create(ctx context.Context, o *Order, items []Item) error
	GetByID(ctx context.Context, id string) (*Order, []Item, error)
	ListByCustomer(ctx context.Context, customerID string, limit, offset int) ([]Order, error)
	// ListUnassigned surfaces delivery orders still unbound after a broadcast
	// older than the staleness window, for operator escalation tooling.
	ListUnassigned(ctx context.Context, olderThan time.Duration) ([]Order, error)

	// LinkPayment attaches a gateway transaction to the order. The unique
	// constraint on payment_records.order_id makes concurrent replays
	// converge on a single record; the bool reports whether this call won.
	LinkPayment(ctx context.Context, rec *PaymentRecord) (*PaymentRecord, bool, error)
	GetPaymentByOrder(ctx context.Context, orderID string) (*PaymentRecord, error)

	// ConfirmPayment flips the record CREATED -> COMPLETED and the order
	// PLACED -> CONFIRMED. A replayed transaction id is a no-op with
	// updated=false, so the broadcast cannot double-fire.
	ConfirmPayment(ctx context.Context, txnID, paymentID string) (*Order, bool, error)

	// UpdateStatus applies from -> to, conditioned on the stored row still
	// being in from.
	UpdateStatus(ctx context.Context, id string, from, to Status, reason string) error

	// AssignCourier binds the courier iff no courier is bound yet; exactly
	// one concurrent caller succeeds, the rest get ErrAlreadyAssigned.
	AssignCourier(ctx context.Context, orderID, courierID string) error

	// Settle credits the bound courier once. Replays return Credited=false.
	Settle(ctx context.Context, orderID string) (*Settlement, error)
}

type PGRepo struct{ db *pgxpool.Pool }

func NewPGRepo(db *pgxpool.Pool) *PGRepo { return &PGRepo{db: db} }

const orderCols = `id, number, customer_id, restaurant_id, courier_id, order_type, status,
	payment_status, subtotal::text, taxes::text, delivery_fee::text, total::text, currency,
	delivery_address_id, delivery_address, verification_code, gateway_txn_id, cancel_reason,
	settled, estimated_ready_at, estimated_delivery_at, created_at, updated_at`

func scanOrder(row pgx.Row) (*Order, error) {
	var o Order
	err := row.Scan(&o.ID, &o.Number, &o.CustomerID, &o.RestaurantID, &o.CourierID,
		&o.Type, &o.Status, &o.PaymentStatus,
		&o.Subtotal, &o.Taxes, &o.DeliveryFee, &o.Total, &o.Currency,
		&o.DeliveryAddressID, &o.DeliveryAddress, &o.VerificationCode,
		&o.GatewayTxnID, &o.CancelReason, &o.Settled,
		&o.EstimatedReadyAt, &o.EstimatedDeliveryAt, &o.CreatedAt, &o.UpdatedAt)
	if err != nil {
		return nil, err
	}
	return &o, nil
}

func (r *PGRepo) Create(ctx context.Context, o *Order, items []Item) error {
	tx, err := r.db.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback(ctx) }()

	// Stock decrements are conditional on stock_left; any shortfall aborts
	// the whole creation, so no interleaving of orders can oversell.
	for _, it := range items {
		tag, err := tx.Exec(ctx, `
			UPDATE menu_items
			SET stock_left = stock_left - $2, updated_at = NOW()
			WHERE id = $1 AND stock_left >= $2
		`, it.MenuItemID, it.Quantity)
		if err != nil {
			return err
		}
		if tag.RowsAffected() == 0 {
			var left int
			_ = tx.QueryRow(ctx, `SELECT stock_left FROM menu_items WHERE id=$1`, it.MenuItemID).Scan(&left)
			return &InsufficientStockError{MenuItemID: it.MenuItemID, Requested: it.Quantity, Left: left}
		}
	}

	if _, err := tx.Exec(ctx, `
		INSERT INTO orders (id, number, customer_id, restaurant_id, order_type, status,
			payment_status, subtotal, taxes, delivery_fee, total, currency,
			delivery_address_id, delivery_address, verification_code, cancel_reason, settled,
			estimated_ready_at, estimated_delivery_at, created_at, updated_at)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8::numeric,$9::numeric,$10::numeric,$11::numeric,$12,
			$13,$14,$15,'',FALSE,$16,$17,NOW(),NOW())
	`, o.ID, o.Number, o.CustomerID, o.RestaurantID, o.Type, o.Status,
		o.PaymentStatus, o.Subtotal, o.Taxes, o.DeliveryFee, o.Total, o.Currency,
		o.DeliveryAddressID, o.DeliveryAddress, o.VerificationCode,
		o.EstimatedReadyAt, o.EstimatedDeliveryAt); err != nil {
		return err
	}

	for _, it := range items {
		if _, err := tx.Exec(ctx, `
			INSERT INTO order_items (id, order_id, menu_item_id, name, quantity,
				price, original_price, restaurant_earnings, platform_earnings)
			VALUES ($1,$2,$3,$4,$5,$6::numeric,$7::numeric,$8::numeric,$9::numeric)
		`, it.ID, o.ID, it.MenuItemID, it.Name, it.Quantity,
			it.Price, it.OriginalPrice, it.RestaurantEarnings, it.PlatformEarnings); err != nil {
			return err
		}
	}
	return tx.Commit(ctx)
}

func (r *PGRepo) GetByID(ctx context.Context, id string) (*Order, []Item, error) {
	o, err := scanOrder(r.db.QueryRow(ctx, `SELECT `+orderCols+` FROM orders WHERE id=$1`, id))
	if err != nil {
		return nil, nil, ErrNotFound
	}
	rows, err := r.db.Query(ctx, `
		SELECT id, order_id, menu_item_id, name, quantity,
		       price::text, original_price::text, restaurant_earnings::text, platform_earnings::text
		FROM order_items WHERE order_id=$1
	`, id)
	if err != nil {
		return nil, nil, err
	}
	defer rows.Close()
	var items []Item
	for rows.Next() {
		var it Item
		if err := rows.Scan(&it.ID, &it.OrderID, &it.MenuItemID, &it.Name, &it.Quantity,
			&it.Price, &it.OriginalPrice, &it.RestaurantEarnings, &it.PlatformEarnings); err != nil {
			return nil, nil, err
		}
		items = append(items, it)
	}
	return o, items, rows.Err()
}

func (r *PGRepo) ListByCustomer(ctx context.Context, customerID string, limit, offset int) ([]Order, error) {
	if limit <= 0 || limit > 100 {
		limit = 20
	}
	if offset < 0 {
		offset = 0
	}
	rows, err := r.db.Query(ctx, `
		SELECT `+orderCols+` FROM orders WHERE customer_id=$1
		ORDER BY created_at DESC LIMIT $2 OFFSET $3
	`, customerID, limit, offset)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return collectOrders(rows)
}

func (r *PGRepo) ListUnassigned(ctx context.Context, olderThan time.Duration) ([]Order, error) {
	rows, err := r.db.Query(ctx, `
		SELECT `+orderCols+` FROM orders
		WHERE order_type='DELIVERY' AND courier_id IS NULL
		  AND status NOT IN ('PLACED','CANCELLED','DELIVERED','PICKED_UP')
		  AND updated_at < NOW() - $1::interval
		ORDER BY created_at
	`, olderThan.String())
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return collectOrders(rows)
}

func collectOrders(rows pgx.Rows) ([]Order, error) {
	var out []Order
	for rows.Next() {
		o, err := scanOrder(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *o)
	}
	return out, rows.Err()
}

func (r *PGRepo) LinkPayment(ctx context.Context, rec *PaymentRecord) (*PaymentRecord, bool, error) {
	tx, err := r.db.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return nil, false, err
	}
	defer func() { _ = tx.Rollback(ctx) }()

	tag, err := tx.Exec(ctx, `
		INSERT INTO payment_records (id, order_id, txn_id, amount, status, created_at)
		VALUES ($1,$2,$3,$4::numeric,'CREATED',NOW())
		ON CONFLICT (order_id) DO NOTHING
	`, rec.ID, rec.OrderID, rec.TxnID, rec.Amount)
	if err != nil {
		return nil, false, err
	}
	if tag.RowsAffected() == 0 {
		// A concurrent replay linked first; return its record untouched.
		existing, err := r.GetPaymentByOrder(ctx, rec.OrderID)
		if err != nil {
			return nil, false, err
		}
		return existing, false, nil
	}
	if _, err := tx.Exec(ctx, `
		UPDATE orders SET gateway_txn_id=$2, updated_at=NOW()
		WHERE id=$1 AND gateway_txn_id IS NULL
	`, rec.OrderID, rec.TxnID); err != nil {
		return nil, false, err
	}
	if err := tx.Commit(ctx); err != nil {
		return nil, false, err
	}
	rec.Status = RecordCreated
	return rec, true, nil
}

func (r *PGRepo) GetPaymentByOrder(ctx context.Context, orderID string) (*PaymentRecord, error) {
	var p PaymentRecord
	err := r.db.QueryRow(ctx, `
		SELECT id, order_id, txn_id, payment_id, amount::text, status, created_at, captured_at
		FROM payment_records WHERE order_id=$1
	`, orderID).Scan(&p.ID, &p.OrderID, &p.TxnID, &p.PaymentID, &p.Amount, &p.Status,
		&p.CreatedAt, &p.CapturedAt)
	if err != nil {
		return nil, ErrNotFound
	}
	return &p, nil
}

func (r *PGRepo) ConfirmPayment(ctx context.Context, txnID, paymentID string) (*Order, bool, error) {
	tx, err := r.db.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return nil, false, err
	}
	defer func() { _ = tx.Rollback(ctx) }()

	var orderID string
	err = tx.QueryRow(ctx, `
		UPDATE payment_records
		SET status='COMPLETED', payment_id=$2, captured_at=NOW()
		WHERE txn_id=$1 AND status='CREATED'
		RETURNING order_id
	`, txnID, paymentID).Scan(&orderID)
	if errors.Is(err, pgx.ErrNoRows) {
		// Either an unknown transaction or a replay of a completed one.
		if err := r.db.QueryRow(ctx, `
			SELECT order_id FROM payment_records WHERE txn_id=$1
		`, txnID).Scan(&orderID); err != nil {
			return nil, false, ErrNotFound
		}
		o, _, err := r.GetByID(ctx, orderID)
		return o, false, err
	}
	if err != nil {
		return nil, false, err
	}

	tag, err := tx.Exec(ctx, `
		UPDATE orders SET payment_status='completed', status='CONFIRMED', updated_at=NOW()
		WHERE id=$1 AND status='PLACED'
	`, orderID)
	if err != nil {
		return nil, false, err
	}
	if err := tx.Commit(ctx); err != nil {
		return nil, false, err
	}

	o, _, err := r.GetByID(ctx, orderID)
	if err != nil {
		return nil, false, err
	}
	// updated=false when the order had already left PLACED (e.g. cancelled
	// before the callback landed); the payment record is still captured.
	return o, tag.RowsAffected() > 0, nil
}

func (r *PGRepo) UpdateStatus(ctx context.Context, id string, from, to Status, reason string) error {
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	tag, err := r.db.Exec(ctx, `
		UPDATE orders SET status=$3, cancel_reason=$4, updated_at=NOW()
		WHERE id=$1 AND status=$2
	`, id, from, to, reason)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		// The row moved under us; report it as a transition conflict.
		return &InvalidTransitionError{From: from, To: to}
	}
	return nil
}

func (r *PGRepo) AssignCourier(ctx context.Context, orderID, courierID string) error {
	tx, err := r.db.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback(ctx) }()

	// The single-writer-wins bind: one conditional statement, no
	// read-then-write window.
	tag, err := tx.Exec(ctx, `
		UPDATE orders SET courier_id=$2, updated_at=NOW()
		WHERE id=$1 AND courier_id IS NULL
		  AND status IN ('CONFIRMED','PREPARING','READY_FOR_PICKUP')
	`, orderID, courierID)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		var exists bool
		if err := r.db.QueryRow(ctx, `SELECT EXISTS(SELECT 1 FROM orders WHERE id=$1)`, orderID).Scan(&exists); err != nil || !exists {
			return ErrNotFound
		}
		return ErrAlreadyAssigned
	}

	if _, err := tx.Exec(ctx, `
		UPDATE couriers SET status='BUSY', updated_at=NOW() WHERE id=$1
	`, courierID); err != nil {
		return err
	}
	return tx.Commit(ctx)
}

func (r *PGRepo) Settle(ctx context.Context, orderID string) (*Settlement, error) {
	tx, err := r.db.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return nil, err
	}
	defer func() { _ = tx.Rollback(ctx) }()

	var courierID, fee string
	err = tx.QueryRow(ctx, `
		UPDATE orders SET settled=TRUE, updated_at=NOW()
		WHERE id=$1 AND settled=FALSE AND courier_id IS NOT NULL
		  AND status IN ('DELIVERED','PICKED_UP')
		RETURNING courier_id, delivery_fee::text
	`, orderID).Scan(&courierID, &fee)
	if errors.Is(err, pgx.ErrNoRows) {
		var settled bool
		var status Status
		qerr := r.db.QueryRow(ctx, `SELECT settled, status FROM orders WHERE id=$1`, orderID).Scan(&settled, &status)
		if qerr != nil {
			return nil, ErrNotFound
		}
		if settled {
			return &Settlement{Credited: false}, nil
		}
		return nil, ErrNotCompleted
	}
	if err != nil {
		return nil, err
	}

	if _, err := tx.Exec(ctx, `
		UPDATE couriers
		SET today_earnings = today_earnings + $2::numeric,
		    total_earnings = total_earnings + $2::numeric,
		    completed_deliveries = completed_deliveries + 1,
		    status = 'AVAILABLE',
		    updated_at = NOW()
		WHERE id = $1
	`, courierID, fee); err != nil {
		return nil, err
	}
	if err := tx.Commit(ctx); err != nil {
		return nil, err
	}
	return &Settlement{Credited: true, CourierID: courierID, Amount: fee}, nil
}
