// Package assignment implements the broadcast-and-first-accept-wins courier
// protocol: every eligible, reachable courier gets the same offer; the first
// ACCEPT binds through one conditional write; everyone else is superseded.
package assignment

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/google/uuid"

	"github.com/saiyam0211/aasta-core/internal/catalog"
	"github.com/saiyam0211/aasta-core/internal/courier"
	"github.com/saiyam0211/aasta-core/internal/notify"
	"github.com/saiyam0211/aasta-core/internal/order"
)

type Action string

const (
	ActionAccept  Action = "ACCEPT"
	ActionDecline Action = "DECLINE"
)

// Binder is the one conditional write that resolves the race; the order
// repo's AssignCourier implements it.
type Binder interface {
	AssignCourier(ctx context.Context, orderID, courierID string) error
}

type CourierSource interface {
	EligibleForRestaurant(ctx context.Context, restaurantID string) ([]courier.Courier, error)
}

type RestaurantSource interface {
	GetRestaurant(ctx context.Context, id string) (*catalog.Restaurant, error)
}

type Presence interface {
	Reachable(ctx context.Context, ids []string) ([]string, error)
}

type Service struct {
	offers      OfferRepository
	binder      Binder
	couriers    CourierSource
	restaurants RestaurantSource
	notifier    notify.Notifier
	presence    Presence
}

func NewService(offers OfferRepository, binder Binder, couriers CourierSource,
	restaurants RestaurantSource, notifier notify.Notifier, presence Presence) *Service {
	return &Service{
		offers:      offers,
		binder:      binder,
		couriers:    couriers,
		restaurants: restaurants,
		notifier:    notifier,
		presence:    presence,
	}
}

// Broadcast sends an identical offer to every eligible courier for the
// order's restaurant. Delivery is best-effort per courier; a courier whose
// publish fails still has a durable PENDING offer.
func (s *Service) Broadcast(ctx context.Context, o *order.Order) error {
	rest, err := s.restaurants.GetRestaurant(ctx, o.RestaurantID)
	if err != nil {
		return fmt.Errorf("broadcast: %w", err)
	}
	eligible, err := s.couriers.EligibleForRestaurant(ctx, o.RestaurantID)
	if err != nil {
		return fmt.Errorf("broadcast: %w", err)
	}
	ids := make([]string, 0, len(eligible))
	for _, c := range eligible {
		ids = append(ids, c.ID)
	}

	reachable := ids
	if s.presence != nil {
		if live, perr := s.presence.Reachable(ctx, ids); perr != nil {
			slog.Warn("presence check failed, offering to all eligible couriers", "err", perr)
		} else {
			reachable = live
		}
	}
	if len(reachable) == 0 {
		slog.Warn("no reachable couriers for order", "order", o.ID, "restaurant", o.RestaurantID)
		return nil
	}

	offers := make([]Offer, 0, len(reachable))
	for _, id := range reachable {
		offers = append(offers, Offer{ID: uuid.NewString(), OrderID: o.ID, CourierID: id})
	}
	if err := s.offers.CreateBatch(ctx, offers); err != nil {
		return fmt.Errorf("broadcast: persist offers: %w", err)
	}

	msg := notify.OfferMessage{
		OrderID:          o.ID,
		OrderNumber:      o.Number,
		RestaurantName:   rest.Name,
		PickupAddress:    rest.Address,
		DeliveryAddress:  o.DeliveryAddress,
		VerificationCode: o.VerificationCode,
		Amount:           o.Total,
	}
	sent := 0
	for _, id := range reachable {
		if err := s.notifier.SendOffer(ctx, id, msg); err != nil {
			slog.Warn("offer delivery failed", "order", o.ID, "courier", id, "err", err)
			continue
		}
		sent++
	}
	slog.Info("order broadcast", "order", o.ID, "eligible", len(ids), "offered", len(reachable), "sent", sent)
	return nil
}

// RecordResponse handles one courier's answer. For ACCEPT only the first
// caller binds; late acceptances resolve to bound=false without touching the
// order. DECLINE records the outcome and nothing else.
func (s *Service) RecordResponse(ctx context.Context, courierID, orderID string, action Action) (bool, error) {
	switch action {
	case ActionDecline:
		if _, err := s.offers.MarkOutcome(ctx, orderID, courierID, OutcomePending, OutcomeDeclined); err != nil {
			return false, err
		}
		return false, nil

	case ActionAccept:
		err := s.binder.AssignCourier(ctx, orderID, courierID)
		if errors.Is(err, order.ErrAlreadyAssigned) {
			// Expected outcome for every race loser.
			if _, merr := s.offers.MarkOutcome(ctx, orderID, courierID, OutcomePending, OutcomeSuperseded); merr != nil {
				slog.Warn("supersede loser offer failed", "order", orderID, "courier", courierID, "err", merr)
			}
			return false, nil
		}
		if err != nil {
			return false, err
		}

		if _, err := s.offers.MarkOutcome(ctx, orderID, courierID, OutcomePending, OutcomeAccepted); err != nil {
			slog.Warn("mark accepted offer failed", "order", orderID, "courier", courierID, "err", err)
		}
		others, err := s.offers.SupersedePending(ctx, orderID, courierID)
		if err != nil {
			return true, fmt.Errorf("bound but supersede failed: %w", err)
		}
		for _, other := range others {
			if err := s.notifier.CancelOffer(ctx, other, orderID); err != nil {
				slog.Warn("cancel delivery failed", "order", orderID, "courier", other, "err", err)
			}
		}
		slog.Info("courier bound", "order", orderID, "courier", courierID, "superseded", len(others))
		return true, nil

	default:
		return false, fmt.Errorf("%w: action must be ACCEPT or DECLINE", order.ErrValidation)
	}
}

func (s *Service) OffersForOrder(ctx context.Context, orderID string) ([]Offer, error) {
	return s.offers.ListByOrder(ctx, orderID)
}
