package inventory

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
)

type Category string

const (
	CategoryPrescription     Category = "prescription"
	CategoryOverTheCounter   Category = "over-the-counter"
	CategorySupplements      Category = "supplements"
	CategoryMedicalEquipment Category = "medical-equipment"
	CategoryOther            Category = "other"
)

func (c Category) Valid() bool {
	switch c {
	case CategoryPrescription, CategoryOverTheCounter, CategorySupplements, CategoryMedicalEquipment, CategoryOther:
		return true
	}
	return false
}

const (
	DefaultMinStockLevel = 10
	DefaultUnit          = "units"
)

// Date is a calendar day. It accepts YYYY-MM-DD or RFC 3339 and encodes as
// YYYY-MM-DD.
type Date struct{ time.Time }

const dateLayout = "2006-01-02"

func (d Date) MarshalJSON() ([]byte, error) {
	if d.IsZero() {
		return []byte("null"), nil
	}
	return json.Marshal(d.Format(dateLayout))
}

func (d *Date) UnmarshalJSON(b []byte) error {
	s := strings.Trim(string(b), `"`)
	if s == "" || s == "null" {
		d.Time = time.Time{}
		return nil
	}
	if t, err := time.Parse(dateLayout, s); err == nil {
		d.Time = t
		return nil
	}
	t, err := time.Parse(time.RFC3339, s)
	if err != nil {
		return fmt.Errorf("invalid date %q", s)
	}
	y, m, day := t.Date()
	d.Time = time.Date(y, m, day, 0, 0, 0, 0, time.UTC)
	return nil
}

// Medicine is a catalogue product. Stock is only changed through atomic
// adjustments.
type Medicine struct {
	ID                   uuid.UUID `json:"id"`
	Name                 string    `json:"name"`
	Description          string    `json:"description,omitempty"`
	Category             Category  `json:"category"`
	Manufacturer         string    `json:"manufacturer,omitempty"`
	BatchNumber          string    `json:"batchNumber,omitempty"`
	ExpiryDate           Date      `json:"expiryDate"`
	Price                float64   `json:"price"`
	Stock                int       `json:"stock"`
	MinStockLevel        int       `json:"minStockLevel"`
	Unit                 string    `json:"unit"`
	PrescriptionRequired bool      `json:"prescriptionRequired"`
	IsActive             bool      `json:"isActive"`
	AddedBy              uuid.UUID `json:"addedBy"`
	CreatedAt            time.Time `json:"createdAt"`
	UpdatedAt            time.Time `json:"updatedAt"`
}

// IsLowStock reports stock <= minStockLevel.
func (m *Medicine) IsLowStock() bool {
	return m.Stock <= m.MinStockLevel
}

func (m Medicine) MarshalJSON() ([]byte, error) {
	type alias Medicine
	return json.Marshal(struct {
		alias
		IsLowStock bool `json:"isLowStock"`
	}{alias(m), m.IsLowStock()})
}

// MedicineInput carries create and update fields. On update only supplied
// fields change.
type MedicineInput struct {
	Name                 *string   `json:"name"`
	Description          *string   `json:"description"`
	Category             *Category `json:"category"`
	Manufacturer         *string   `json:"manufacturer"`
	BatchNumber          *string   `json:"batchNumber"`
	ExpiryDate           *Date     `json:"expiryDate"`
	Price                *float64  `json:"price"`
	Stock                *int      `json:"stock"`
	MinStockLevel        *int      `json:"minStockLevel"`
	Unit                 *string   `json:"unit"`
	PrescriptionRequired *bool     `json:"prescriptionRequired"`
	IsActive             *bool     `json:"isActive"`
}

func (in MedicineInput) apply(m *Medicine) {
	if in.Name != nil {
		m.Name = strings.TrimSpace(*in.Name)
	}
	if in.Description != nil {
		m.Description = *in.Description
	}
	if in.Category != nil {
		m.Category = *in.Category
	}
	if in.Manufacturer != nil {
		m.Manufacturer = *in.Manufacturer
	}
	if in.BatchNumber != nil {
		m.BatchNumber = *in.BatchNumber
	}
	if in.ExpiryDate != nil {
		m.ExpiryDate = *in.ExpiryDate
	}
	if in.Price != nil {
		m.Price = *in.Price
	}
	if in.Stock != nil {
		m.Stock = *in.Stock
	}
	if in.MinStockLevel != nil {
		m.MinStockLevel = *in.MinStockLevel
	}
	if in.Unit != nil {
		m.Unit = strings.TrimSpace(*in.Unit)
	}
	if in.PrescriptionRequired != nil {
		m.PrescriptionRequired = *in.PrescriptionRequired
	}
	if in.IsActive != nil {
		m.IsActive = *in.IsActive
	}
}

// ListFilter selects active medicines.
type ListFilter struct {
	Search   string
	Category Category
	LowStock bool
	Limit    int
	Offset   int
}
