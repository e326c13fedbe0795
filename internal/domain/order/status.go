package order

import "fmt"

// Status is the order lifecycle state. The set is closed: transitions are
// only legal when listed in the transition table below.
type Status string

const (
	// StatusPendingPayment is the initial state of every order.
	StatusPendingPayment Status = "pending_payment"
	// StatusInCorso means payment is confirmed and the order is being prepared.
	StatusInCorso Status = "in_corso"
	// StatusSpedito means the order has been shipped.
	StatusSpedito Status = "spedito"
	// StatusCompletato means the order has been delivered.
	StatusCompletato Status = "completato"
	// StatusPaymentFailed is a terminal state reached when payment fails.
	StatusPaymentFailed Status = "payment_failed"
	// StatusCancellato is a terminal state for cancelled orders.
	StatusCancellato Status = "cancellato"
)

// transitions is the closed set of legal forward transitions. Terminal states
// have no outgoing edges; a failed payment never flips back to in_corso
// without a brand-new order.
var transitions = map[Status][]Status{
	StatusPendingPayment: {StatusInCorso, StatusPaymentFailed, StatusCancellato},
	StatusInCorso:        {StatusSpedito, StatusCancellato},
	StatusSpedito:        {StatusCompletato},
}

// Valid reports whether s is a member of the closed status set.
func (s Status) Valid() bool {
	switch s {
	case StatusPendingPayment, StatusInCorso, StatusSpedito,
		StatusCompletato, StatusPaymentFailed, StatusCancellato:
		return true
	}
	return false
}

// CanTransitionTo reports whether the transition s -> to is legal.
func (s Status) CanTransitionTo(to Status) bool {
	for _, t := range transitions[s] {
		if t == to {
			return true
		}
	}
	return false
}

// IllegalTransitionError indicates an attempted transition outside the
// transition table.
type IllegalTransitionError struct {
	From Status
	To   Status
}

func (e *IllegalTransitionError) Error() string {
	return fmt.Sprintf("illegal order transition %s -> %s", e.From, e.To)
}

// CheckTransition returns an *IllegalTransitionError when from -> to is not
// in the transition table.
func CheckTransition(from, to Status) error {
	if !from.CanTransitionTo(to) {
		return &IllegalTransitionError{From: from, To: to}
	}
	return nil
}
