package dashboard

import (
	"time"

	"github.com/google/uuid"
)

// RecentLimit and PatientRecentLimit bound the "recent" lists.
const (
	RecentLimit        = 10
	PatientRecentLimit = 5
)

type OrderSummary struct {
	ID            uuid.UUID `json:"id"`
	PatientID     uuid.UUID `json:"patient"`
	PatientName   string    `json:"patientName"`
	Lines         int       `json:"lines"`
	Total         float64   `json:"total"`
	Status        string    `json:"status"`
	PaymentStatus string    `json:"paymentStatus"`
	CreatedAt     time.Time `json:"createdAt"`
}

type MedicineSummary struct {
	ID            uuid.UUID `json:"id"`
	Name          string    `json:"name"`
	Category      string    `json:"category"`
	Stock         int       `json:"stock"`
	MinStockLevel int       `json:"minStockLevel"`
	Unit          string    `json:"unit"`
}

type TopMedicine struct {
	MedicineID uuid.UUID `json:"medicine"`
	Name       string    `json:"name"`
	TotalSold  int       `json:"totalSold"`
	Revenue    float64   `json:"revenue"`
}

type RecordSummary struct {
	ID          uuid.UUID `json:"id"`
	PatientID   uuid.UUID `json:"patient"`
	PatientName string    `json:"patientName"`
	DoctorID    uuid.UUID `json:"doctor"`
	DoctorName  string    `json:"doctorName"`
	Date        time.Time `json:"date"`
	Diagnosis   string    `json:"diagnosis,omitempty"`
}

type VitalSummary struct {
	ID          uuid.UUID `json:"id"`
	PatientID   uuid.UUID `json:"patient"`
	PatientName string    `json:"patientName"`
	Date        time.Time `json:"date"`
	HeartRate   *float64  `json:"heartRate,omitempty"`
	Systolic    *float64  `json:"systolic,omitempty"`
	Diastolic   *float64  `json:"diastolic,omitempty"`
	Temperature *float64  `json:"temperature,omitempty"`
	OxygenLevel *float64  `json:"oxygenLevel,omitempty"`
	IsCritical  bool      `json:"isCritical"`
}

type AdminOverview struct {
	TotalUsers     int     `json:"totalUsers"`
	TotalMedicines int     `json:"totalMedicines"`
	TotalOrders    int     `json:"totalOrders"`
	LowStockCount  int     `json:"lowStockCount"`
	TotalRevenue   float64 `json:"totalRevenue"`
}

type Admin struct {
	Overview     AdminOverview  `json:"overview"`
	UsersByRole  map[string]int `json:"usersByRole"`
	RecentOrders []OrderSummary `json:"recentOrders"`
}

type StoreOverview struct {
	TotalMedicines int     `json:"totalMedicines"`
	LowStockCount  int     `json:"lowStockCount"`
	TotalOrders    int     `json:"totalOrders"`
	PendingOrders  int     `json:"pendingOrders"`
	TodayOrders    int     `json:"todayOrders"`
	TodayRevenue   float64 `json:"todayRevenue"`
	MonthlyRevenue float64 `json:"monthlyRevenue"`
}

type Store struct {
	Overview          StoreOverview     `json:"overview"`
	LowStockMedicines []MedicineSummary `json:"lowStockMedicines"`
	TopMedicines      []TopMedicine     `json:"topMedicines"`
}

type DoctorOverview struct {
	TotalPatients       int `json:"totalPatients"`
	TotalRecords        int `json:"totalRecords"`
	CriticalVitalsCount int `json:"criticalVitalsCount"`
}

type Doctor struct {
	Overview       DoctorOverview  `json:"overview"`
	RecentRecords  []RecordSummary `json:"recentRecords"`
	CriticalVitals []VitalSummary  `json:"criticalVitals"`
}

type PatientOverview struct {
	TotalOrders         int `json:"totalOrders"`
	TotalRecords        int `json:"totalRecords"`
	CriticalVitalsCount int `json:"criticalVitalsCount"`
}

type Patient struct {
	Overview      PatientOverview `json:"overview"`
	RecentOrders  []OrderSummary  `json:"recentOrders"`
	RecentRecords []RecordSummary `json:"recentRecords"`
	RecentVitals  []VitalSummary  `json:"recentVitals"`
}

// OrderFilter narrows order counts and sums. Zero fields match everything.
type OrderFilter struct {
	PatientID *uuid.UUID
	Status    string
	PaidOnly  bool
	Since     *time.Time
}

type RecordFilter struct {
	PatientID *uuid.UUID
	DoctorID  *uuid.UUID
}

type VitalFilter struct {
	PatientID    *uuid.UUID
	CriticalOnly bool
}
