package main

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/saiyam0211/aasta-core/internal/assignment"
	ord "github.com/saiyam0211/aasta-core/internal/order"
	"github.com/saiyam0211/aasta-core/internal/pricing"
)

func init() {
	gin.SetMode(gin.TestMode)
	slog.SetDefault(slog.New(slog.NewTextHandler(io.Discard, nil)))
}

//
// ---------- STUBS & FAKES ----------
//

// stubOrders implements orderAPI with canned results.
type stubOrders struct {
	createResult *ord.CreateResult
	createErr    error

	confirmUpdated bool
	confirmErr     error

	order *ord.Order
	items []ord.Item

	advanceErr error
	settlement *ord.Settlement
	settleErr  error

	unassigned []ord.Order
}

func (s *stubOrders) Create(context.Context, ord.CreateInput) (*ord.CreateResult, error) {
	return s.createResult, s.createErr
}

func (s *stubOrders) ConfirmPayment(context.Context, string, string, string) (bool, error) {
	return s.confirmUpdated, s.confirmErr
}

func (s *stubOrders) AdvanceStatus(_ context.Context, in ord.AdvanceInput) (*ord.Order, error) {
	if s.advanceErr != nil {
		return nil, s.advanceErr
	}
	cp := *s.order
	cp.Status = in.Target
	return &cp, nil
}

func (s *stubOrders) Settle(context.Context, string) (*ord.Settlement, error) {
	return s.settlement, s.settleErr
}

func (s *stubOrders) Get(_ context.Context, id string) (*ord.Order, []ord.Item, error) {
	if s.order == nil || s.order.ID != id {
		return nil, nil, ord.ErrNotFound
	}
	return s.order, s.items, nil
}

func (s *stubOrders) ListByCustomer(_ context.Context, customerID string, _, _ int) ([]ord.Order, error) {
	if s.order != nil && s.order.CustomerID == customerID {
		return []ord.Order{*s.order}, nil
	}
	return nil, nil
}

func (s *stubOrders) ListUnassigned(context.Context, time.Duration) ([]ord.Order, error) {
	return s.unassigned, nil
}

type stubResponder struct {
	assigned   bool
	err        error
	courierID  string
	orderID    string
	lastAction assignment.Action
}

func (s *stubResponder) RecordResponse(_ context.Context, courierID, orderID string, action assignment.Action) (bool, error) {
	s.courierID, s.orderID, s.lastAction = courierID, orderID, action
	return s.assigned, s.err
}

type stubHeartbeat struct{ err error }

func (s *stubHeartbeat) Heartbeat(context.Context, string) error { return s.err }

func sampleOrder() *ord.Order {
	return &ord.Order{
		ID:               uuid.NewString(),
		Number:           "AAS-20260831-AB12CD",
		CustomerID:       uuid.NewString(),
		RestaurantID:     uuid.NewString(),
		Type:             ord.TypeDelivery,
		Status:           ord.StatusConfirmed,
		PaymentStatus:    ord.PaymentCompleted,
		Subtotal:         "1300",
		Taxes:            "65",
		DeliveryFee:      "25",
		Total:            "1390",
		Currency:         "INR",
		VerificationCode: "4821",
	}
}

func doJSON(r *gin.Engine, method, url string, body string) *httptest.ResponseRecorder {
	w := httptest.NewRecorder()
	var rd io.Reader
	if body != "" {
		rd = bytes.NewBufferString(body)
	}
	req := httptest.NewRequest(method, url, rd)
	req.Header.Set("Content-Type", "application/json")
	r.ServeHTTP(w, req)
	return w
}

//
// ---------- TESTS ----------
//

func TestCreateOrder_HappyPath(t *testing.T) {
	t.Parallel()

	o := sampleOrder()
	svc := &stubOrders{createResult: &ord.CreateResult{
		Order: o,
		Items: []ord.Item{{ID: uuid.NewString(), OrderID: o.ID, Name: "Biryani", Quantity: 2, Price: "500"}},
		Checkout: ord.Checkout{
			TxnID: "txn_" + o.Number, Amount: "1390", AmountMinor: 139000, Currency: "INR",
		},
	}}

	r := gin.New()
	r.POST("/orders", createOrderHandler(svc))

	body := fmt.Sprintf(`{"customer_id":%q,"restaurant_id":%q,"order_type":"DELIVERY",
		"items":[{"menu_item_id":%q,"quantity":2}],
		"address":{"street":"12 MG Road","city":"Bengaluru"}}`,
		o.CustomerID, o.RestaurantID, uuid.NewString())
	w := doJSON(r, http.MethodPost, "/orders", body)

	if w.Code != http.StatusCreated {
		t.Fatalf("status=%d body=%s", w.Code, w.Body.String())
	}
	var got ord.CreateResult
	if err := json.Unmarshal(w.Body.Bytes(), &got); err != nil {
		t.Fatalf("invalid json: %v", err)
	}
	if got.Checkout.AmountMinor != 139000 {
		t.Fatalf("amount_minor=%d, expected 139000", got.Checkout.AmountMinor)
	}
	if got.Order.Status != ord.StatusPlaced && got.Order.Status != ord.StatusConfirmed {
		t.Fatalf("unexpected status %s", got.Order.Status)
	}
}

func TestCreateOrder_ErrorMapping(t *testing.T) {
	t.Parallel()

	cases := []struct {
		name string
		err  error
		want int
	}{
		{"validation", fmt.Errorf("%w: cart is empty", ord.ErrValidation), http.StatusBadRequest},
		{"below minimum", &pricing.BelowMinimumOrderError{}, http.StatusBadRequest},
		{"restaurant closed", ord.ErrRestaurantClosed, http.StatusConflict},
		{"insufficient stock", &ord.InsufficientStockError{MenuItemID: "x", Requested: 2, Left: 1}, http.StatusConflict},
		{"items unavailable", &ord.ItemsUnavailableError{MenuItemIDs: []string{"x"}}, http.StatusConflict},
		{"gateway down", fmt.Errorf("%w: connection refused", ord.ErrGateway), http.StatusBadGateway},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			r := gin.New()
			r.POST("/orders", createOrderHandler(&stubOrders{createErr: tc.err}))

			body := fmt.Sprintf(`{"customer_id":%q,"restaurant_id":%q,"order_type":"PICKUP","items":[{"menu_item_id":"m","quantity":1}]}`,
				uuid.NewString(), uuid.NewString())
			w := doJSON(r, http.MethodPost, "/orders", body)
			if w.Code != tc.want {
				t.Fatalf("status=%d body=%s (expected %d)", w.Code, w.Body.String(), tc.want)
			}
		})
	}
}

func TestCreateOrder_BadJSON(t *testing.T) {
	t.Parallel()

	r := gin.New()
	r.POST("/orders", createOrderHandler(&stubOrders{}))

	w := doJSON(r, http.MethodPost, "/orders", `{"customer_id":`)
	if w.Code != http.StatusBadRequest {
		t.Fatalf("status=%d, expected 400", w.Code)
	}
}

func TestConfirmPayment_Replay(t *testing.T) {
	t.Parallel()

	svc := &stubOrders{confirmUpdated: false}
	r := gin.New()
	r.POST("/payments/confirm", confirmPaymentHandler(svc))

	body := `{"txn_id":"txn_1","payment_id":"pay_1","signature":"sig"}`
	w := doJSON(r, http.MethodPost, "/payments/confirm", body)
	if w.Code != http.StatusOK {
		t.Fatalf("status=%d body=%s", w.Code, w.Body.String())
	}
	var resp struct {
		Updated bool `json:"updated"`
	}
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatalf("invalid json: %v", err)
	}
	if resp.Updated {
		t.Fatalf("replay must report updated=false")
	}
}

func TestConfirmPayment_BadSignature(t *testing.T) {
	t.Parallel()

	svc := &stubOrders{confirmErr: ord.ErrBadSignature}
	r := gin.New()
	r.POST("/payments/confirm", confirmPaymentHandler(svc))

	w := doJSON(r, http.MethodPost, "/payments/confirm", `{"txn_id":"t","payment_id":"p","signature":"forged"}`)
	if w.Code != http.StatusBadRequest {
		t.Fatalf("status=%d, expected 400", w.Code)
	}
}

func TestConfirmPayment_MissingFields(t *testing.T) {
	t.Parallel()

	r := gin.New()
	r.POST("/payments/confirm", confirmPaymentHandler(&stubOrders{}))

	w := doJSON(r, http.MethodPost, "/payments/confirm", `{"txn_id":"t"}`)
	if w.Code != http.StatusBadRequest {
		t.Fatalf("status=%d, expected 400", w.Code)
	}
}

func TestGetOrder_NotFound(t *testing.T) {
	t.Parallel()

	r := gin.New()
	r.GET("/orders/:id", getOrderHandler(&stubOrders{}))

	w := doJSON(r, http.MethodGet, "/orders/"+uuid.NewString(), "")
	if w.Code != http.StatusNotFound {
		t.Fatalf("status=%d, expected 404", w.Code)
	}
}

func TestGetOrder_OK(t *testing.T) {
	t.Parallel()

	o := sampleOrder()
	svc := &stubOrders{order: o, items: []ord.Item{{ID: uuid.NewString(), OrderID: o.ID, Quantity: 1, Price: "300"}}}
	r := gin.New()
	r.GET("/orders/:id", getOrderHandler(svc))

	w := doJSON(r, http.MethodGet, "/orders/"+o.ID, "")
	if w.Code != http.StatusOK {
		t.Fatalf("status=%d body=%s", w.Code, w.Body.String())
	}
	var resp struct {
		Order ord.Order  `json:"order"`
		Items []ord.Item `json:"items"`
	}
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatalf("invalid json: %v", err)
	}
	if resp.Order.ID != o.ID || len(resp.Items) != 1 {
		t.Fatalf("unexpected payload: %s", w.Body.String())
	}
}

func TestListOrdersByCustomer_OK(t *testing.T) {
	t.Parallel()

	o := sampleOrder()
	r := gin.New()
	r.GET("/orders/customer/:customer_id", listOrdersByCustomerHandler(&stubOrders{order: o}))

	w := doJSON(r, http.MethodGet, "/orders/customer/"+o.CustomerID+"?limit=10&offset=0", "")
	if w.Code != http.StatusOK {
		t.Fatalf("status=%d body=%s", w.Code, w.Body.String())
	}
	var resp struct {
		Orders []ord.Order `json:"orders"`
	}
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatalf("invalid json: %v", err)
	}
	if len(resp.Orders) != 1 {
		t.Fatalf("orders len=%d, expected 1", len(resp.Orders))
	}
}

func TestListOrdersByCustomer_EmptyIsArray(t *testing.T) {
	t.Parallel()

	r := gin.New()
	r.GET("/orders/customer/:customer_id", listOrdersByCustomerHandler(&stubOrders{}))

	w := doJSON(r, http.MethodGet, "/orders/customer/"+uuid.NewString(), "")
	if w.Code != http.StatusOK {
		t.Fatalf("status=%d", w.Code)
	}
	var resp struct {
		Orders []ord.Order `json:"orders"`
	}
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatalf("invalid json: %v", err)
	}
	if resp.Orders == nil {
		t.Fatalf("orders must serialize as [], not null")
	}
}

func TestAdvanceStatus_InvalidTransition(t *testing.T) {
	t.Parallel()

	svc := &stubOrders{advanceErr: &ord.InvalidTransitionError{From: ord.StatusConfirmed, To: ord.StatusDelivered}}
	r := gin.New()
	r.PUT("/orders/:id/status", advanceStatusHandler(svc))

	w := doJSON(r, http.MethodPut, "/orders/"+uuid.NewString()+"/status",
		`{"status":"DELIVERED","role":"courier"}`)
	if w.Code != http.StatusConflict {
		t.Fatalf("status=%d, expected 409", w.Code)
	}
}

func TestAdvanceStatus_WrongVerificationCode(t *testing.T) {
	t.Parallel()

	svc := &stubOrders{advanceErr: ord.ErrVerificationCode}
	r := gin.New()
	r.PUT("/orders/:id/status", advanceStatusHandler(svc))

	w := doJSON(r, http.MethodPut, "/orders/"+uuid.NewString()+"/status",
		`{"status":"OUT_FOR_DELIVERY","role":"courier","verification_code":"0000"}`)
	if w.Code != http.StatusForbidden {
		t.Fatalf("status=%d, expected 403", w.Code)
	}
}

func TestAdvanceStatus_OK(t *testing.T) {
	t.Parallel()

	o := sampleOrder()
	svc := &stubOrders{order: o}
	r := gin.New()
	r.PUT("/orders/:id/status", advanceStatusHandler(svc))

	w := doJSON(r, http.MethodPut, "/orders/"+o.ID+"/status",
		`{"status":"PREPARING","role":"restaurant"}`)
	if w.Code != http.StatusOK {
		t.Fatalf("status=%d body=%s", w.Code, w.Body.String())
	}
	var resp struct {
		Order ord.Order `json:"order"`
	}
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatalf("invalid json: %v", err)
	}
	if resp.Order.Status != ord.StatusPreparing {
		t.Fatalf("status=%s, expected PREPARING", resp.Order.Status)
	}
}

func TestSettleOrder_Replay(t *testing.T) {
	t.Parallel()

	svc := &stubOrders{settlement: &ord.Settlement{Credited: false}}
	r := gin.New()
	r.POST("/orders/:id/settle", settleOrderHandler(svc))

	w := doJSON(r, http.MethodPost, "/orders/"+uuid.NewString()+"/settle", "")
	if w.Code != http.StatusOK {
		t.Fatalf("status=%d body=%s", w.Code, w.Body.String())
	}
	var s ord.Settlement
	if err := json.Unmarshal(w.Body.Bytes(), &s); err != nil {
		t.Fatalf("invalid json: %v", err)
	}
	if s.Credited {
		t.Fatalf("replayed settlement must not credit again")
	}
}

func TestSettleOrder_NotCompleted(t *testing.T) {
	t.Parallel()

	svc := &stubOrders{settleErr: ord.ErrNotCompleted}
	r := gin.New()
	r.POST("/orders/:id/settle", settleOrderHandler(svc))

	w := doJSON(r, http.MethodPost, "/orders/"+uuid.NewString()+"/settle", "")
	if w.Code != http.StatusConflict {
		t.Fatalf("status=%d, expected 409", w.Code)
	}
}

func TestCourierResponse_AcceptWins(t *testing.T) {
	t.Parallel()

	resp := &stubResponder{assigned: true}
	r := gin.New()
	r.POST("/couriers/:id/response", courierResponseHandler(resp))

	courierID := uuid.NewString()
	orderID := uuid.NewString()
	w := doJSON(r, http.MethodPost, "/couriers/"+courierID+"/response",
		fmt.Sprintf(`{"order_id":%q,"action":"ACCEPT"}`, orderID))
	if w.Code != http.StatusOK {
		t.Fatalf("status=%d body=%s", w.Code, w.Body.String())
	}
	if resp.courierID != courierID || resp.orderID != orderID || resp.lastAction != assignment.ActionAccept {
		t.Fatalf("recorded courier=%s order=%s action=%s", resp.courierID, resp.orderID, resp.lastAction)
	}
	var body struct {
		Assigned bool `json:"assigned"`
	}
	if err := json.Unmarshal(w.Body.Bytes(), &body); err != nil {
		t.Fatalf("invalid json: %v", err)
	}
	if !body.Assigned {
		t.Fatalf("expected assigned=true")
	}
}

func TestCourierResponse_LateAccept(t *testing.T) {
	t.Parallel()

	// Losing a race is not an error condition; the response just says so.
	r := gin.New()
	r.POST("/couriers/:id/response", courierResponseHandler(&stubResponder{assigned: false}))

	w := doJSON(r, http.MethodPost, "/couriers/"+uuid.NewString()+"/response",
		fmt.Sprintf(`{"order_id":%q,"action":"ACCEPT"}`, uuid.NewString()))
	if w.Code != http.StatusOK {
		t.Fatalf("status=%d body=%s", w.Code, w.Body.String())
	}
	var body struct {
		Assigned bool `json:"assigned"`
	}
	if err := json.Unmarshal(w.Body.Bytes(), &body); err != nil {
		t.Fatalf("invalid json: %v", err)
	}
	if body.Assigned {
		t.Fatalf("expected assigned=false")
	}
}

func TestCourierResponse_UnknownAction(t *testing.T) {
	t.Parallel()

	resp := &stubResponder{err: fmt.Errorf("%w: unknown action", ord.ErrValidation)}
	r := gin.New()
	r.POST("/couriers/:id/response", courierResponseHandler(resp))

	w := doJSON(r, http.MethodPost, "/couriers/"+uuid.NewString()+"/response",
		fmt.Sprintf(`{"order_id":%q,"action":"MAYBE"}`, uuid.NewString()))
	if w.Code != http.StatusBadRequest {
		t.Fatalf("status=%d, expected 400", w.Code)
	}
}

func TestCourierHeartbeat(t *testing.T) {
	t.Parallel()

	r := gin.New()
	r.POST("/couriers/:id/heartbeat", courierHeartbeatHandler(&stubHeartbeat{}))

	w := doJSON(r, http.MethodPost, "/couriers/"+uuid.NewString()+"/heartbeat", "")
	if w.Code != http.StatusOK {
		t.Fatalf("status=%d", w.Code)
	}

	r2 := gin.New()
	r2.POST("/couriers/:id/heartbeat", courierHeartbeatHandler(&stubHeartbeat{err: fmt.Errorf("redis down")}))
	w2 := doJSON(r2, http.MethodPost, "/couriers/"+uuid.NewString()+"/heartbeat", "")
	if w2.Code != http.StatusServiceUnavailable {
		t.Fatalf("status=%d, expected 503", w2.Code)
	}
}

func TestListUnassigned(t *testing.T) {
	t.Parallel()

	o := sampleOrder()
	r := gin.New()
	r.GET("/orders/unassigned", listUnassignedHandler(&stubOrders{unassigned: []ord.Order{*o}}, 5*time.Minute))

	w := doJSON(r, http.MethodGet, "/orders/unassigned?older_than_min=10", "")
	if w.Code != http.StatusOK {
		t.Fatalf("status=%d body=%s", w.Code, w.Body.String())
	}
	var resp struct {
		Orders []ord.Order `json:"orders"`
	}
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatalf("invalid json: %v", err)
	}
	if len(resp.Orders) != 1 {
		t.Fatalf("orders len=%d, expected 1", len(resp.Orders))
	}
}
