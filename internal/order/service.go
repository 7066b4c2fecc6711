package order

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/saiyam0211/aasta-core/internal/catalog"
	"github.com/saiyam0211/aasta-core/internal/customer"
	"github.com/saiyam0211/aasta-core/internal/payment"
	"github.com/saiyam0211/aasta-core/internal/pricing"
)

// Broadcaster is notified when a delivery order becomes CONFIRMED. The
// assignment package implements it; injecting the interface keeps the
// dependency one-way.
type Broadcaster interface {
	Broadcast(ctx context.Context, o *Order) error
}

type Options struct {
	Currency       string
	PrepWindow     time.Duration
	DeliveryWindow time.Duration
}

type Service struct {
	repo        Repository
	catalog     catalog.Repository
	customers   customer.Repository
	geocoder    customer.Geocoder
	gateway     payment.Gateway
	broadcaster Broadcaster
	opts        Options
}

func NewService(repo Repository, cat catalog.Repository, cust customer.Repository,
	geo customer.Geocoder, gw payment.Gateway, bc Broadcaster, opts Options) *Service {
	if opts.Currency == "" {
		opts.Currency = "INR"
	}
	if opts.PrepWindow == 0 {
		opts.PrepWindow = 25 * time.Minute
	}
	if opts.DeliveryWindow == 0 {
		opts.DeliveryWindow = 20 * time.Minute
	}
	if geo == nil {
		geo = customer.NopGeocoder{}
	}
	return &Service{repo: repo, catalog: cat, customers: cust, geocoder: geo,
		gateway: gw, broadcaster: bc, opts: opts}
}

type CartLine struct {
	MenuItemID string `json:"menu_item_id"`
	Quantity   int    `json:"quantity"`
}

type CreateInput struct {
	CustomerID    string
	CustomerName  string
	CustomerPhone string
	RestaurantID  string
	Type          Type
	Items         []CartLine
	Address       *customer.AddressInput
}

// Checkout is what the caller needs to complete payment against the gateway.
type Checkout struct {
	TxnID       string `json:"txn_id"`
	Amount      string `json:"amount"`
	AmountMinor int64  `json:"amount_minor"`
	Currency    string `json:"currency"`
}

type CreateResult struct {
	Order    *Order   `json:"order"`
	Items    []Item   `json:"items"`
	Checkout Checkout `json:"checkout"`
}

func (s *Service) validate(in CreateInput) error {
	if in.CustomerID == "" || in.RestaurantID == "" {
		return fmt.Errorf("%w: customer_id and restaurant_id are required", ErrValidation)
	}
	if in.Type != TypeDelivery && in.Type != TypePickup {
		return fmt.Errorf("%w: order_type must be DELIVERY or PICKUP", ErrValidation)
	}
	if len(in.Items) == 0 {
		return fmt.Errorf("%w: cart is empty", ErrValidation)
	}
	for _, ln := range in.Items {
		if ln.MenuItemID == "" || ln.Quantity <= 0 {
			return fmt.Errorf("%w: every line needs a menu_item_id and positive quantity", ErrValidation)
		}
	}
	if in.Type == TypeDelivery && (in.Address == nil || in.Address.Street == "") {
		return fmt.Errorf("%w: delivery orders need an address", ErrValidation)
	}
	return nil
}

// Create runs the intake pipeline: validate, price, persist atomically, link
// a gateway transaction. No courier is notified here; that waits for payment
// confirmation.
func (s *Service) Create(ctx context.Context, in CreateInput) (*CreateResult, error) {
	if err := s.validate(in); err != nil {
		return nil, err
	}

	ids := make([]string, 0, len(in.Items))
	for _, ln := range in.Items {
		ids = append(ids, ln.MenuItemID)
	}

	// Restaurant and menu items have no sequential dependency; fetch them
	// concurrently.
	var (
		rest     *catalog.Restaurant
		menu     []catalog.MenuItem
		restErr  error
		itemsErr error
		wg       sync.WaitGroup
	)
	wg.Add(2)
	go func() {
		defer wg.Done()
		rest, restErr = s.catalog.GetRestaurant(ctx, in.RestaurantID)
	}()
	go func() {
		defer wg.Done()
		menu, itemsErr = s.catalog.GetItemsForOrder(ctx, in.RestaurantID, ids)
	}()
	wg.Wait()

	if restErr != nil {
		return nil, catalog.ErrNotFound
	}
	if itemsErr != nil {
		return nil, itemsErr
	}
	if rest.Status != catalog.RestaurantActive {
		return nil, ErrRestaurantClosed
	}

	byID := make(map[string]catalog.MenuItem, len(menu))
	for _, m := range menu {
		byID[m.ID] = m
	}
	var missing []string
	for _, ln := range in.Items {
		if _, ok := byID[ln.MenuItemID]; !ok {
			missing = append(missing, ln.MenuItemID)
		}
	}
	if len(missing) > 0 {
		return nil, &ItemsUnavailableError{MenuItemIDs: missing}
	}

	// Read-side stock check for a precise error message; the authoritative
	// guard is the conditional decrement inside Create's transaction.
	for _, ln := range in.Items {
		if m := byID[ln.MenuItemID]; m.StockLeft < ln.Quantity {
			return nil, &InsufficientStockError{MenuItemID: ln.MenuItemID, Requested: ln.Quantity, Left: m.StockLeft}
		}
	}

	lines, err := pricingLines(in.Items, byID)
	if err != nil {
		return nil, err
	}
	cfg, err := restaurantPricing(rest)
	if err != nil {
		return nil, err
	}
	quote, err := pricing.Compute(lines, cfg, pricingType(in.Type))
	if err != nil {
		return nil, err
	}

	if _, err := s.customers.FindOrCreate(ctx, in.CustomerID, in.CustomerName, in.CustomerPhone); err != nil {
		return nil, err
	}

	var addrID *string
	var addrText string
	if in.Type == TypeDelivery {
		lat, lon, gerr := s.geocoder.Geocode(ctx, *in.Address)
		if gerr != nil {
			// Degrade to raw text without coordinates.
			slog.Warn("geocode failed, storing raw address", "err", gerr)
			lat, lon = nil, nil
		}
		addr, err := s.customers.ResolveAddress(ctx, in.CustomerID, *in.Address, lat, lon)
		if err != nil {
			return nil, err
		}
		addrID = &addr.ID
		addrText = addr.Street
		if addr.City != "" {
			addrText += ", " + addr.City
		}
	}

	now := time.Now().UTC()
	readyAt := now.Add(s.opts.PrepWindow)
	o := &Order{
		ID:                uuid.NewString(),
		Number:            NewNumber(now),
		CustomerID:        in.CustomerID,
		RestaurantID:      in.RestaurantID,
		Type:              in.Type,
		Status:            StatusPlaced,
		PaymentStatus:     PaymentPending,
		Subtotal:          quote.Subtotal.String(),
		Taxes:             quote.Taxes.String(),
		DeliveryFee:       quote.DeliveryFee.String(),
		Total:             quote.Total.String(),
		Currency:          s.opts.Currency,
		DeliveryAddressID: addrID,
		DeliveryAddress:   addrText,
		VerificationCode:  NewVerificationCode(),
		EstimatedReadyAt:  &readyAt,
	}
	if in.Type == TypeDelivery {
		deliveryAt := readyAt.Add(s.opts.DeliveryWindow)
		o.EstimatedDeliveryAt = &deliveryAt
	}

	items := make([]Item, 0, len(in.Items))
	for i, ln := range in.Items {
		m := byID[ln.MenuItemID]
		items = append(items, Item{
			ID:                 uuid.NewString(),
			OrderID:            o.ID,
			MenuItemID:         m.ID,
			Name:               m.Name,
			Quantity:           ln.Quantity,
			Price:              m.Price,
			OriginalPrice:      m.OriginalPrice,
			RestaurantEarnings: quote.Earnings[i].Restaurant.String(),
			PlatformEarnings:   quote.Earnings[i].Platform.String(),
		})
	}

	if err := s.repo.Create(ctx, o, items); err != nil {
		return nil, err
	}

	checkout, err := s.EnsurePaymentLink(ctx, o)
	if err != nil {
		return nil, err
	}
	return &CreateResult{Order: o, Items: items, Checkout: *checkout}, nil
}

// EnsurePaymentLink links a gateway transaction to the order exactly once.
// If one is already linked this returns the existing linkage, which is the
// idempotency guarantee for retried requests.
func (s *Service) EnsurePaymentLink(ctx context.Context, o *Order) (*Checkout, error) {
	if o.GatewayTxnID != nil {
		rec, err := s.repo.GetPaymentByOrder(ctx, o.ID)
		if err != nil {
			return nil, err
		}
		return s.checkoutFor(rec.TxnID, o.Total)
	}

	total, err := decimal.NewFromString(o.Total)
	if err != nil {
		return nil, err
	}
	// The gateway dedupes on the order number, so concurrent retries cannot
	// open two transactions for one order even before the DB link lands.
	txn, err := s.gateway.CreateTransaction(ctx, total, o.Number)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrGateway, err)
	}

	rec := &PaymentRecord{
		ID:      uuid.NewString(),
		OrderID: o.ID,
		TxnID:   txn.ID,
		Amount:  o.Total,
	}
	stored, _, err := s.repo.LinkPayment(ctx, rec)
	if err != nil {
		return nil, err
	}
	o.GatewayTxnID = &stored.TxnID
	return s.checkoutFor(stored.TxnID, o.Total)
}

func (s *Service) checkoutFor(txnID, total string) (*Checkout, error) {
	d, err := decimal.NewFromString(total)
	if err != nil {
		return nil, err
	}
	return &Checkout{
		TxnID:       txnID,
		Amount:      total,
		AmountMinor: d.Mul(decimal.NewFromInt(100)).IntPart(),
		Currency:    s.opts.Currency,
	}, nil
}

// ConfirmPayment handles the gateway callback. A successful first
// confirmation moves the order to CONFIRMED and, for delivery orders, fires
// the courier broadcast; replays do neither.
func (s *Service) ConfirmPayment(ctx context.Context, txnID, paymentID, signature string) (bool, error) {
	if !s.gateway.VerifySignature(txnID, paymentID, signature) {
		return false, ErrBadSignature
	}
	o, updated, err := s.repo.ConfirmPayment(ctx, txnID, paymentID)
	if err != nil {
		return false, err
	}
	if updated && o.Type == TypeDelivery && s.broadcaster != nil {
		// Offer delivery is best-effort; a failed broadcast leaves the order
		// observable through ListUnassigned.
		if err := s.broadcaster.Broadcast(ctx, o); err != nil {
			slog.Error("courier broadcast failed", "order", o.ID, "err", err)
		}
	}
	return updated, nil
}

type AdvanceInput struct {
	OrderID          string
	Target           Status
	Role             Role
	VerificationCode string
	Reason           string
}

// AdvanceStatus applies one state-machine step on behalf of an actor.
func (s *Service) AdvanceStatus(ctx context.Context, in AdvanceInput) (*Order, error) {
	o, _, err := s.repo.GetByID(ctx, in.OrderID)
	if err != nil {
		return nil, err
	}
	if !CanTransition(o.Type, o.Status, in.Target) {
		return nil, &InvalidTransitionError{From: o.Status, To: in.Target}
	}
	if !RoleMayAdvance(in.Role, in.Target) {
		return nil, ErrRoleNotAllowed
	}
	if in.Target.Handoff() && in.VerificationCode != o.VerificationCode {
		return nil, ErrVerificationCode
	}
	reason := ""
	if in.Target == StatusCancelled {
		reason = in.Reason
	}
	if err := s.repo.UpdateStatus(ctx, o.ID, o.Status, in.Target, reason); err != nil {
		return nil, err
	}

	if in.Target.Terminal() && in.Target != StatusCancelled && o.CourierID != nil {
		if _, err := s.Settle(ctx, o.ID); err != nil {
			// Settlement is idempotent; a retry of settleCompletion recovers.
			slog.Error("settlement on completion failed", "order", o.ID, "err", err)
		}
	}

	updated, _, err := s.repo.GetByID(ctx, o.ID)
	return updated, err
}

// Settle credits the courier for a completed order; safe to call repeatedly.
func (s *Service) Settle(ctx context.Context, orderID string) (*Settlement, error) {
	return s.repo.Settle(ctx, orderID)
}

func (s *Service) Get(ctx context.Context, id string) (*Order, []Item, error) {
	return s.repo.GetByID(ctx, id)
}

func (s *Service) ListByCustomer(ctx context.Context, customerID string, limit, offset int) ([]Order, error) {
	return s.repo.ListByCustomer(ctx, customerID, limit, offset)
}

func (s *Service) ListUnassigned(ctx context.Context, olderThan time.Duration) ([]Order, error) {
	return s.repo.ListUnassigned(ctx, olderThan)
}

func pricingType(t Type) pricing.OrderType {
	if t == TypePickup {
		return pricing.Pickup
	}
	return pricing.Delivery
}

func pricingLines(cart []CartLine, byID map[string]catalog.MenuItem) ([]pricing.Line, error) {
	lines := make([]pricing.Line, 0, len(cart))
	for _, ln := range cart {
		m := byID[ln.MenuItemID]
		price, err := decimal.NewFromString(m.Price)
		if err != nil {
			return nil, fmt.Errorf("bad price for item %s: %w", m.ID, err)
		}
		orig, err := decimal.NewFromString(m.OriginalPrice)
		if err != nil {
			return nil, fmt.Errorf("bad original price for item %s: %w", m.ID, err)
		}
		lines = append(lines, pricing.Line{
			MenuItemID:    m.ID,
			Quantity:      ln.Quantity,
			Price:         price,
			OriginalPrice: orig,
		})
	}
	return lines, nil
}

func restaurantPricing(r *catalog.Restaurant) (pricing.RestaurantPricing, error) {
	var cfg pricing.RestaurantPricing
	var err error
	if cfg.MinimumOrderAmount, err = decimal.NewFromString(r.MinimumOrderAmount); err != nil {
		return cfg, err
	}
	if cfg.DeliveryFee, err = decimal.NewFromString(r.DeliveryFee); err != nil {
		return cfg, err
	}
	if cfg.RestaurantSplit, err = decimal.NewFromString(r.RestaurantSplit); err != nil {
		return cfg, err
	}
	if cfg.PlatformSplit, err = decimal.NewFromString(r.PlatformSplit); err != nil {
		return cfg, err
	}
	return cfg, nil
}
