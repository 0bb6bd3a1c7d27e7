package order

import "fmt"

// Status is the fulfilment state of an order.
type Status string

const (
	StatusPending    Status = "pending"
	StatusProcessing Status = "processing"
	StatusShipped    Status = "shipped"
	StatusDelivered  Status = "delivered"
	StatusCancelled  Status = "cancelled"
)

// progress orders the forward path. Cancelled is off the path.
var progress = map[Status]int{
	StatusPending:    0,
	StatusProcessing: 1,
	StatusShipped:    2,
	StatusDelivered:  3,
}

// Valid reports whether s is a known status.
func (s Status) Valid() bool {
	if s == StatusCancelled {
		return true
	}
	_, ok := progress[s]
	return ok
}

// Terminal reports whether no transition leaves s.
func (s Status) Terminal() bool {
	return s == StatusDelivered || s == StatusCancelled
}

// CanTransition reports whether an order may move from one status to
// another. Forward moves may skip steps, any open order may be cancelled,
// and terminal states are final. Staying on the same status is allowed.
func CanTransition(from, to Status) bool {
	switch {
	case from == to:
		return true
	case from.Terminal():
		return false
	case to == StatusCancelled:
		return true
	}
	f, okFrom := progress[from]
	t, okTo := progress[to]
	return okFrom && okTo && t > f
}

// NeedsRestock reports whether moving from one status to another returns the
// order's items to stock.
func NeedsRestock(from, to Status) bool {
	return from != StatusCancelled && to == StatusCancelled
}

// TransitionError reports a rejected status change.
type TransitionError struct {
	From Status
	To   Status
}

func (e *TransitionError) Error() string {
	return fmt.Sprintf("cannot move order from %s to %s", e.From, e.To)
}

func (e *TransitionError) Unwrap() error { return ErrIllegalTransition }
