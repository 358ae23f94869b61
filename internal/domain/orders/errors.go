package orders

import (
	"errors"
	"fmt"

	"github.com/google/uuid"
)

var (
	ErrInvalidOrder       = errors.New("invalid order")
	ErrOrderNotFound      = errors.New("order not found")
	ErrPatientRequired    = errors.New("patient ID is required")
	ErrPatientNotFound    = errors.New("patient not found")
	ErrInvalidTransition  = errors.New("invalid status transition")
	ErrForbidden          = errors.New("not authorized to access this order")
	ErrProductUnavailable = errors.New("medicine not found or inactive")
	ErrInsufficientStock  = errors.New("insufficient stock")
)

type StockErrorKind int

const (
	StockNotFound StockErrorKind = iota
	StockInactive
	StockInsufficient
)

// StockError rejects a cart line. Available is set for StockInsufficient.
type StockError struct {
	Kind      StockErrorKind
	ProductID uuid.UUID
	Name      string
	Available int
}

func (e *StockError) Error() string {
	switch e.Kind {
	case StockInsufficient:
		name := e.Name
		if name == "" {
			name = e.ProductID.String()
		}
		return fmt.Sprintf("insufficient stock for %s. Available: %d", name, e.Available)
	default:
		return fmt.Sprintf("medicine %s not found or inactive", e.ProductID)
	}
}

func (e *StockError) Unwrap() error {
	if e.Kind == StockInsufficient {
		return ErrInsufficientStock
	}
	return ErrProductUnavailable
}

func (e *StockError) Details() map[string]any {
	d := map[string]any{"product": e.ProductID}
	if e.Kind == StockInsufficient {
		d["available"] = e.Available
	}
	return d
}

// TransitionError rejects a status change not in the transition table.
type TransitionError struct {
	From, To Status
}

func (e *TransitionError) Error() string {
	switch {
	case e.From == StatusCompleted && e.To == StatusCancelled:
		return "cannot cancel a completed order"
	case e.From == StatusCancelled && e.To == StatusCancelled:
		return "order is already cancelled"
	}
	return fmt.Sprintf("cannot move order from %s to %s", e.From, e.To)
}

func (e *TransitionError) Unwrap() error { return ErrInvalidTransition }

func (e *TransitionError) Details() map[string]any {
	return map[string]any{"from": e.From, "to": e.To}
}
