package order

import (
	"errors"
	"fmt"
	"strings"
)

var (
	ErrNotFound         = errors.New("order not found")
	ErrValidation       = errors.New("invalid input")
	ErrRestaurantClosed = errors.New("restaurant is not accepting orders")
	// ErrAlreadyAssigned is the expected outcome for every courier who loses
	// the assignment race; it is not a failure.
	ErrAlreadyAssigned  = errors.New("order already assigned")
	ErrNotCompleted     = errors.New("order not completed yet")
	ErrBadSignature     = errors.New("payment signature verification failed")
	ErrVerificationCode = errors.New("verification code mismatch")
	ErrRoleNotAllowed   = errors.New("actor not allowed to perform this transition")
	ErrGateway          = errors.New("payment gateway unavailable")
)

type ItemsUnavailableError struct {
	MenuItemIDs []string
}

func (e *ItemsUnavailableError) Error() string {
	return "items unavailable: " + strings.Join(e.MenuItemIDs, ", ")
}

type InsufficientStockError struct {
	MenuItemID string
	Requested  int
	Left       int
}

func (e *InsufficientStockError) Error() string {
	return fmt.Sprintf("insufficient stock for item %s: requested %d, left %d",
		e.MenuItemID, e.Requested, e.Left)
}

type InvalidTransitionError struct {
	From Status
	To   Status
}

func (e *InvalidTransitionError) Error() string {
	return fmt.Sprintf("invalid transition %s -> %s", e.From, e.To)
}
