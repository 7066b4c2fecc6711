package assignment

import (
	"context"
	"fmt"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/saiyam0211/aasta-core/internal/catalog"
	"github.com/saiyam0211/aasta-core/internal/courier"
	"github.com/saiyam0211/aasta-core/internal/notify"
	"github.com/saiyam0211/aasta-core/internal/order"
)

// memBinder reproduces the conditional bind semantics of the order repo.
type memBinder struct {
	mu    sync.Mutex
	bound map[string]string
}

func newMemBinder() *memBinder { return &memBinder{bound: map[string]string{}} }

func (b *memBinder) AssignCourier(_ context.Context, orderID, courierID string) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if _, taken := b.bound[orderID]; taken {
		return order.ErrAlreadyAssigned
	}
	b.bound[orderID] = courierID
	return nil
}

type offerKey struct{ orderID, courierID string }

type memOffers struct {
	mu     sync.Mutex
	states map[offerKey]Outcome
}

func newMemOffers() *memOffers { return &memOffers{states: map[offerKey]Outcome{}} }

func (m *memOffers) CreateBatch(_ context.Context, offers []Offer) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, o := range offers {
		k := offerKey{o.OrderID, o.CourierID}
		if _, ok := m.states[k]; !ok {
			m.states[k] = OutcomePending
		}
	}
	return nil
}

func (m *memOffers) MarkOutcome(_ context.Context, orderID, courierID string, from, to Outcome) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	k := offerKey{orderID, courierID}
	if m.states[k] != from {
		return false, nil
	}
	m.states[k] = to
	return true, nil
}

func (m *memOffers) SupersedePending(_ context.Context, orderID, exceptCourierID string) ([]string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []string
	for k, st := range m.states {
		if k.orderID == orderID && k.courierID != exceptCourierID && st == OutcomePending {
			m.states[k] = OutcomeSuperseded
			out = append(out, k.courierID)
		}
	}
	return out, nil
}

func (m *memOffers) ListByOrder(_ context.Context, orderID string) ([]Offer, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []Offer
	for k, st := range m.states {
		if k.orderID == orderID {
			out = append(out, Offer{OrderID: k.orderID, CourierID: k.courierID, Outcome: st})
		}
	}
	return out, nil
}

type fakeNotifier struct {
	mu      sync.Mutex
	offers  []string
	cancels []string
}

func (f *fakeNotifier) SendOffer(_ context.Context, courierID string, _ notify.OfferMessage) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.offers = append(f.offers, courierID)
	return nil
}

func (f *fakeNotifier) CancelOffer(_ context.Context, courierID, _ string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.cancels = append(f.cancels, courierID)
	return nil
}

func (f *fakeNotifier) Close() error { return nil }

type fakeCouriers struct{ list []courier.Courier }

func (f *fakeCouriers) EligibleForRestaurant(context.Context, string) ([]courier.Courier, error) {
	return f.list, nil
}

type fakeRestaurants struct{}

func (fakeRestaurants) GetRestaurant(_ context.Context, id string) (*catalog.Restaurant, error) {
	return &catalog.Restaurant{ID: id, Name: "Midnight Biryani", Address: "7 Food Street", Status: catalog.RestaurantActive}, nil
}

type allReachable struct{}

func (allReachable) Reachable(_ context.Context, ids []string) ([]string, error) { return ids, nil }

func courierSet(n int) []courier.Courier {
	out := make([]courier.Courier, 0, n)
	for i := 0; i < n; i++ {
		out = append(out, courier.Courier{ID: fmt.Sprintf("courier-%d", i), Status: courier.StatusAvailable})
	}
	return out
}

func testOrder() *order.Order {
	code := "4217"
	return &order.Order{
		ID: "order-1", Number: "AAS-20260831-AB12CD", RestaurantID: "rest-1",
		Type: order.TypeDelivery, Status: order.StatusConfirmed,
		Total: "1390", VerificationCode: code, DeliveryAddress: "12 MG Road, Bengaluru",
	}
}

func TestBroadcast_OffersEveryReachableCourier(t *testing.T) {
	offers := newMemOffers()
	n := &fakeNotifier{}
	svc := NewService(offers, newMemBinder(), &fakeCouriers{list: courierSet(3)},
		fakeRestaurants{}, n, allReachable{})

	require.NoError(t, svc.Broadcast(context.Background(), testOrder()))

	assert.Len(t, n.offers, 3)
	got, _ := offers.ListByOrder(context.Background(), "order-1")
	assert.Len(t, got, 3)
	for _, o := range got {
		assert.Equal(t, OutcomePending, o.Outcome)
	}
}

type onlySome struct{ live map[string]bool }

func (p onlySome) Reachable(_ context.Context, ids []string) ([]string, error) {
	var out []string
	for _, id := range ids {
		if p.live[id] {
			out = append(out, id)
		}
	}
	return out, nil
}

func TestBroadcast_SkipsUnreachableCouriers(t *testing.T) {
	offers := newMemOffers()
	n := &fakeNotifier{}
	svc := NewService(offers, newMemBinder(), &fakeCouriers{list: courierSet(3)},
		fakeRestaurants{}, n, onlySome{live: map[string]bool{"courier-0": true, "courier-2": true}})

	require.NoError(t, svc.Broadcast(context.Background(), testOrder()))

	assert.ElementsMatch(t, []string{"courier-0", "courier-2"}, n.offers)
}

func TestRecordResponse_ExactlyOneAcceptWins(t *testing.T) {
	const couriers = 8
	offers := newMemOffers()
	binder := newMemBinder()
	n := &fakeNotifier{}
	svc := NewService(offers, binder, &fakeCouriers{list: courierSet(couriers)},
		fakeRestaurants{}, n, allReachable{})

	require.NoError(t, svc.Broadcast(context.Background(), testOrder()))

	var wg sync.WaitGroup
	results := make([]bool, couriers)
	errs := make([]error, couriers)
	for i := 0; i < couriers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			results[i], errs[i] = svc.RecordResponse(context.Background(), fmt.Sprintf("courier-%d", i), "order-1", ActionAccept)
		}(i)
	}
	wg.Wait()
	for i, err := range errs {
		require.NoError(t, err, "courier-%d", i)
	}

	winners := 0
	for _, bound := range results {
		if bound {
			winners++
		}
	}
	assert.Equal(t, 1, winners, "exactly one concurrent ACCEPT must bind")

	winner := binder.bound["order-1"]
	require.NotEmpty(t, winner)

	// Every non-winning offer ends SUPERSEDED; none stays PENDING.
	got, _ := offers.ListByOrder(context.Background(), "order-1")
	for _, o := range got {
		if o.CourierID == winner {
			assert.Equal(t, OutcomeAccepted, o.Outcome)
		} else {
			assert.Equal(t, OutcomeSuperseded, o.Outcome)
		}
	}
}

func TestRecordResponse_WinnerTriggersCancellationFanout(t *testing.T) {
	offers := newMemOffers()
	n := &fakeNotifier{}
	svc := NewService(offers, newMemBinder(), &fakeCouriers{list: courierSet(3)},
		fakeRestaurants{}, n, allReachable{})

	require.NoError(t, svc.Broadcast(context.Background(), testOrder()))

	bound, err := svc.RecordResponse(context.Background(), "courier-1", "order-1", ActionAccept)
	require.NoError(t, err)
	require.True(t, bound)

	assert.ElementsMatch(t, []string{"courier-0", "courier-2"}, n.cancels)
}

func TestRecordResponse_DeclineHasNoSideEffects(t *testing.T) {
	offers := newMemOffers()
	binder := newMemBinder()
	n := &fakeNotifier{}
	svc := NewService(offers, binder, &fakeCouriers{list: courierSet(2)},
		fakeRestaurants{}, n, allReachable{})

	require.NoError(t, svc.Broadcast(context.Background(), testOrder()))

	bound, err := svc.RecordResponse(context.Background(), "courier-0", "order-1", ActionDecline)
	require.NoError(t, err)
	assert.False(t, bound)
	assert.Empty(t, binder.bound)
	assert.Empty(t, n.cancels)

	// A decline does not block the other courier from accepting.
	bound, err = svc.RecordResponse(context.Background(), "courier-1", "order-1", ActionAccept)
	require.NoError(t, err)
	assert.True(t, bound)
}

func TestRecordResponse_LateAcceptAfterBind(t *testing.T) {
	offers := newMemOffers()
	svc := NewService(offers, newMemBinder(), &fakeCouriers{list: courierSet(2)},
		fakeRestaurants{}, &fakeNotifier{}, allReachable{})

	require.NoError(t, svc.Broadcast(context.Background(), testOrder()))

	bound, err := svc.RecordResponse(context.Background(), "courier-0", "order-1", ActionAccept)
	require.NoError(t, err)
	require.True(t, bound)

	bound, err = svc.RecordResponse(context.Background(), "courier-1", "order-1", ActionAccept)
	require.NoError(t, err)
	assert.False(t, bound, "late accept is not an error, just not bound")
}

func TestRecordResponse_UnknownAction(t *testing.T) {
	svc := NewService(newMemOffers(), newMemBinder(), &fakeCouriers{},
		fakeRestaurants{}, &fakeNotifier{}, allReachable{})

	_, err := svc.RecordResponse(context.Background(), "courier-0", "order-1", Action("MAYBE"))
	assert.Error(t, err)
}
