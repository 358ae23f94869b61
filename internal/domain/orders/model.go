package orders

import (
	"time"

	"github.com/google/uuid"
)

type Status string

const (
	StatusPending    Status = "pending"
	StatusProcessing Status = "processing"
	StatusCompleted  Status = "completed"
	StatusCancelled  Status = "cancelled"
)

func (s Status) Valid() bool {
	switch s {
	case StatusPending, StatusProcessing, StatusCompleted, StatusCancelled:
		return true
	}
	return false
}

// transitions lists the statuses reachable from each status. Completed and
// cancelled are terminal.
var transitions = map[Status][]Status{
	StatusPending:    {StatusProcessing, StatusCancelled},
	StatusProcessing: {StatusCompleted, StatusCancelled},
	StatusCompleted:  {},
	StatusCancelled:  {},
}

// CanTransition reports whether an order may move from one status to another.
func CanTransition(from, to Status) bool {
	for _, s := range transitions[from] {
		if s == to {
			return true
		}
	}
	return false
}

type PaymentStatus string

const (
	PaymentPending PaymentStatus = "pending"
	PaymentPaid    PaymentStatus = "paid"
)

func (p PaymentStatus) Valid() bool {
	return p == PaymentPending || p == PaymentPaid
}

const DefaultPaymentMethod = "cash"

// Item is an order line. Name and price are captured when the order is
// placed and never follow later catalogue edits.
type Item struct {
	MedicineID uuid.UUID `json:"medicine"`
	Name       string    `json:"name"`
	Quantity   int       `json:"quantity"`
	Price      float64   `json:"price"`
	Total      float64   `json:"total"`
}

type Order struct {
	ID                   uuid.UUID     `json:"id"`
	PatientID            uuid.UUID     `json:"patient"`
	PlacedBy             uuid.UUID     `json:"placedBy"`
	Items                []Item        `json:"items"`
	Subtotal             float64       `json:"subtotal"`
	Tax                  float64       `json:"tax"`
	Discount             float64       `json:"discount"`
	Total                float64       `json:"total"`
	Status               Status        `json:"status"`
	PaymentStatus        PaymentStatus `json:"paymentStatus"`
	PaymentMethod        string        `json:"paymentMethod"`
	PrescriptionRequired bool          `json:"prescriptionRequired"`
	PrescriptionFile     *uuid.UUID    `json:"prescriptionFile,omitempty"`
	Notes                string        `json:"notes,omitempty"`
	ProcessedBy          *uuid.UUID    `json:"processedBy,omitempty"`
	CreatedAt            time.Time     `json:"createdAt"`
	UpdatedAt            time.Time     `json:"updatedAt"`
}

type CartItem struct {
	MedicineID uuid.UUID `json:"medicine"`
	Quantity   int       `json:"quantity"`
}

type PlaceOrderRequest struct {
	Patient          *uuid.UUID `json:"patient"`
	Items            []CartItem `json:"items"`
	PaymentMethod    string     `json:"paymentMethod"`
	Notes            string     `json:"notes"`
	PrescriptionFile *uuid.UUID `json:"prescriptionFile"`
}

// StatusUpdate changes the order status, the payment status, or both.
type StatusUpdate struct {
	Status        *Status        `json:"status"`
	PaymentStatus *PaymentStatus `json:"paymentStatus"`
}

type ListFilter struct {
	PatientID     *uuid.UUID
	Status        Status
	PaymentStatus PaymentStatus
	Limit         int
	Offset        int
}
