package main

import (
	"context"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/saiyam0211/aasta-core/internal/assignment"
	"github.com/saiyam0211/aasta-core/internal/catalog"
	ord "github.com/saiyam0211/aasta-core/internal/order"
	"github.com/saiyam0211/aasta-core/internal/pricing"
)

// orderAPI is the slice of the order service the handlers need.
type orderAPI interface {
	Create(ctx context.Context, in ord.CreateInput) (*ord.CreateResult, error)
	ConfirmPayment(ctx context.Context, txnID, paymentID, signature string) (bool, error)
	AdvanceStatus(ctx context.Context, in ord.AdvanceInput) (*ord.Order, error)
	Settle(ctx context.Context, orderID string) (*ord.Settlement, error)
	Get(ctx context.Context, id string) (*ord.Order, []ord.Item, error)
	ListByCustomer(ctx context.Context, customerID string, limit, offset int) ([]ord.Order, error)
	ListUnassigned(ctx context.Context, olderThan time.Duration) ([]ord.Order, error)
}

type courierResponder interface {
	RecordResponse(ctx context.Context, courierID, orderID string, action assignment.Action) (bool, error)
}

type heartbeater interface {
	Heartbeat(ctx context.Context, courierID string) error
}

// writeError maps the domain error taxonomy onto HTTP statuses.
func writeError(c *gin.Context, err error) {
	var (
		unavailable  *ord.ItemsUnavailableError
		stock        *ord.InsufficientStockError
		transition   *ord.InvalidTransitionError
		belowMinimum *pricing.BelowMinimumOrderError
	)
	switch {
	case errors.Is(err, ord.ErrValidation), errors.Is(err, ord.ErrBadSignature),
		errors.As(err, &belowMinimum):
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
	case errors.Is(err, ord.ErrNotFound), errors.Is(err, catalog.ErrNotFound):
		c.JSON(http.StatusNotFound, gin.H{"error": "not found"})
	case errors.Is(err, ord.ErrRoleNotAllowed), errors.Is(err, ord.ErrVerificationCode):
		c.JSON(http.StatusForbidden, gin.H{"error": err.Error()})
	case errors.As(err, &unavailable), errors.As(err, &stock), errors.As(err, &transition),
		errors.Is(err, ord.ErrRestaurantClosed), errors.Is(err, ord.ErrAlreadyAssigned),
		errors.Is(err, ord.ErrNotCompleted):
		c.JSON(http.StatusConflict, gin.H{"error": err.Error()})
	case errors.Is(err, ord.ErrGateway):
		c.JSON(http.StatusBadGateway, gin.H{"error": "payment gateway unavailable"})
	default:
		c.JSON(http.StatusInternalServerError, gin.H{"error": "internal error"})
	}
}

// createOrderHandler runs the intake pipeline and returns the priced order
// plus the checkout the client completes payment with.
func createOrderHandler(svc orderAPI) gin.HandlerFunc {
	return func(c *gin.Context) {
		var req ord.CreateOrderRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid json"})
			return
		}
		res, err := svc.Create(c.Request.Context(), ord.CreateInput{
			CustomerID:    req.CustomerID,
			CustomerName:  req.CustomerName,
			CustomerPhone: req.CustomerPhone,
			RestaurantID:  req.RestaurantID,
			Type:          ord.Type(req.OrderType),
			Items:         req.Items,
			Address:       req.Address,
		})
		if err != nil {
			writeError(c, err)
			return
		}
		c.JSON(http.StatusCreated, res)
	}
}

// confirmPaymentHandler is the gateway callback. Replays return 200 with
// updated=false; they never re-fire the courier broadcast.
func confirmPaymentHandler(svc orderAPI) gin.HandlerFunc {
	return func(c *gin.Context) {
		var req ord.ConfirmPaymentRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid json"})
			return
		}
		if req.TxnID == "" || req.PaymentID == "" || req.Signature == "" {
			c.JSON(http.StatusBadRequest, gin.H{"error": "txn_id, payment_id and signature are required"})
			return
		}
		updated, err := svc.ConfirmPayment(c.Request.Context(), req.TxnID, req.PaymentID, req.Signature)
		if err != nil {
			writeError(c, err)
			return
		}
		c.JSON(http.StatusOK, gin.H{"updated": updated})
	}
}

func getOrderHandler(svc orderAPI) gin.HandlerFunc {
	return func(c *gin.Context) {
		o, items, err := svc.Get(c.Request.Context(), c.Param("id"))
		if err != nil {
			writeError(c, err)
			return
		}
		c.JSON(http.StatusOK, gin.H{"order": o, "items": items})
	}
}

func listOrdersByCustomerHandler(svc orderAPI) gin.HandlerFunc {
	return func(c *gin.Context) {
		limit, _ := strconv.Atoi(c.DefaultQuery("limit", "20"))
		offset, _ := strconv.Atoi(c.DefaultQuery("offset", "0"))
		out, err := svc.ListByCustomer(c.Request.Context(), c.Param("customer_id"), limit, offset)
		if err != nil {
			writeError(c, err)
			return
		}
		if out == nil {
			out = []ord.Order{}
		}
		c.JSON(http.StatusOK, gin.H{"orders": out})
	}
}

// listUnassignedHandler surfaces delivery orders no courier accepted, for
// operator escalation.
func listUnassignedHandler(svc orderAPI, staleness time.Duration) gin.HandlerFunc {
	return func(c *gin.Context) {
		olderThan := staleness
		if v := c.Query("older_than_min"); v != "" {
			if n, err := strconv.Atoi(v); err == nil && n >= 0 {
				olderThan = time.Duration(n) * time.Minute
			}
		}
		out, err := svc.ListUnassigned(c.Request.Context(), olderThan)
		if err != nil {
			writeError(c, err)
			return
		}
		if out == nil {
			out = []ord.Order{}
		}
		c.JSON(http.StatusOK, gin.H{"orders": out})
	}
}

func advanceStatusHandler(svc orderAPI) gin.HandlerFunc {
	return func(c *gin.Context) {
		var req ord.AdvanceStatusRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid json"})
			return
		}
		o, err := svc.AdvanceStatus(c.Request.Context(), ord.AdvanceInput{
			OrderID:          c.Param("id"),
			Target:           ord.Status(req.Status),
			Role:             ord.Role(req.Role),
			VerificationCode: req.VerificationCode,
			Reason:           req.Reason,
		})
		if err != nil {
			writeError(c, err)
			return
		}
		c.JSON(http.StatusOK, gin.H{"order": o})
	}
}

// settleOrderHandler retries settlement for a completed order. Safe to call
// repeatedly; a replay reports credited=false.
func settleOrderHandler(svc orderAPI) gin.HandlerFunc {
	return func(c *gin.Context) {
		s, err := svc.Settle(c.Request.Context(), c.Param("id"))
		if err != nil {
			writeError(c, err)
			return
		}
		c.JSON(http.StatusOK, s)
	}
}

// courierResponseHandler records ACCEPT/DECLINE on a broadcast offer. A late
// accept on an order someone else won is not an error; assigned=false tells
// the courier app to drop the offer.
func courierResponseHandler(asg courierResponder) gin.HandlerFunc {
	return func(c *gin.Context) {
		var req ord.CourierResponseRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid json"})
			return
		}
		if req.OrderID == "" {
			c.JSON(http.StatusBadRequest, gin.H{"error": "order_id is required"})
			return
		}
		assigned, err := asg.RecordResponse(c.Request.Context(), c.Param("id"), req.OrderID, assignment.Action(req.Action))
		if err != nil {
			writeError(c, err)
			return
		}
		c.JSON(http.StatusOK, gin.H{"assigned": assigned})
	}
}

func courierHeartbeatHandler(p heartbeater) gin.HandlerFunc {
	return func(c *gin.Context) {
		if err := p.Heartbeat(c.Request.Context(), c.Param("id")); err != nil {
			c.JSON(http.StatusServiceUnavailable, gin.H{"error": "presence store unavailable"})
			return
		}
		c.JSON(http.StatusOK, gin.H{"ok": true})
	}
}
