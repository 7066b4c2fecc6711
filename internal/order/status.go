package order

type Status string

const (
	StatusPlaced         Status = "PLACED"
	StatusConfirmed      Status = "CONFIRMED"
	StatusPreparing      Status = "PREPARING"
	StatusReadyForPickup Status = "READY_FOR_PICKUP"
	StatusOutForDelivery Status = "OUT_FOR_DELIVERY"
	StatusDelivered      Status = "DELIVERED"
	StatusPickedUp       Status = "PICKED_UP"
	StatusCancelled      Status = "CANCELLED"
)

var (
	deliveryPath = []Status{StatusPlaced, StatusConfirmed, StatusPreparing,
		StatusReadyForPickup, StatusOutForDelivery, StatusDelivered}
	pickupPath = []Status{StatusPlaced, StatusConfirmed, StatusPreparing,
		StatusReadyForPickup, StatusPickedUp}
)

func statusPath(t Type) []Status {
	if t == TypePickup {
		return pickupPath
	}
	return deliveryPath
}

// Terminal reports whether no further transitions are possible.
func (s Status) Terminal() bool {
	return s == StatusDelivered || s == StatusPickedUp || s == StatusCancelled
}

// handoff statuses require the verification code to be presented.
func (s Status) Handoff() bool {
	return s == StatusOutForDelivery || s == StatusPickedUp
}

// CanTransition allows exactly the next status along the orderType's path,
// plus CANCELLED from any non-terminal state. Backward and skipping moves are
// rejected, never clamped.
func CanTransition(t Type, from, to Status) bool {
	if from.Terminal() {
		return false
	}
	if to == StatusCancelled {
		return true
	}
	path := statusPath(t)
	for i, s := range path {
		if s == from {
			return i+1 < len(path) && path[i+1] == to
		}
	}
	return false
}

// Role is who is acting on the order.
type Role string

const (
	RoleCustomer   Role = "customer"
	RoleRestaurant Role = "restaurant"
	RoleCourier    Role = "courier"
	RoleOperator   Role = "operator"
)

// transitionRoles lists who may drive each target status through the public
// advance operation. CONFIRMED is normally payment-driven; only an operator
// may force it.
var transitionRoles = map[Status][]Role{
	StatusConfirmed:      {RoleOperator},
	StatusPreparing:      {RoleRestaurant, RoleOperator},
	StatusReadyForPickup: {RoleRestaurant, RoleOperator},
	StatusOutForDelivery: {RoleCourier, RoleRestaurant, RoleOperator},
	StatusPickedUp:       {RoleCourier, RoleRestaurant, RoleOperator},
	StatusDelivered:      {RoleCourier, RoleOperator},
	StatusCancelled:      {RoleCustomer, RoleRestaurant, RoleOperator},
}

func RoleMayAdvance(role Role, to Status) bool {
	for _, r := range transitionRoles[to] {
		if r == role {
			return true
		}
	}
	return false
}
