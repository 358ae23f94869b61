package vitals

import (
	"time"

	"github.com/google/uuid"
)

const (
	UnitHeartRate     = "bpm"
	UnitBloodPressure = "mmHg"
	UnitTemperature   = "°F"
	UnitOxygen        = "%"
	UnitWeight        = "kg"
	UnitHeight        = "cm"
)

type Reading struct {
	Value  *float64 `json:"value,omitempty"`
	Unit   string   `json:"unit,omitempty"`
	Status Status   `json:"status,omitempty"`
}

type BloodPressure struct {
	Systolic  *float64 `json:"systolic,omitempty"`
	Diastolic *float64 `json:"diastolic,omitempty"`
	Unit      string   `json:"unit,omitempty"`
	Status    Status   `json:"status,omitempty"`
}

// Quantity is an unbanded measurement.
type Quantity struct {
	Value *float64 `json:"value,omitempty"`
	Unit  string   `json:"unit,omitempty"`
}

// VitalRecord is one set of measurements taken for a patient.
type VitalRecord struct {
	ID            uuid.UUID      `json:"id"`
	PatientID     uuid.UUID      `json:"patient"`
	RecordedBy    uuid.UUID      `json:"recordedBy"`
	Date          time.Time      `json:"date"`
	HeartRate     *Reading       `json:"heartRate,omitempty"`
	BloodPressure *BloodPressure `json:"bloodPressure,omitempty"`
	Temperature   *Reading       `json:"temperature,omitempty"`
	OxygenLevel   *Reading       `json:"oxygenLevel,omitempty"`
	Weight        *Quantity      `json:"weight,omitempty"`
	Height        *Quantity      `json:"height,omitempty"`
	Notes         *string        `json:"notes,omitempty"`
	IsCritical    bool           `json:"isCritical"`
	CreatedAt     time.Time      `json:"createdAt"`
	UpdatedAt     time.Time      `json:"updatedAt"`
}

// Measurements extracts the classifier input from r.
func (r *VitalRecord) Measurements() Measurements {
	var m Measurements
	if r.HeartRate != nil {
		m.HeartRate = r.HeartRate.Value
	}
	if r.BloodPressure != nil {
		m.Systolic = r.BloodPressure.Systolic
		m.Diastolic = r.BloodPressure.Diastolic
	}
	if r.Temperature != nil {
		m.Temperature = r.Temperature.Value
	}
	if r.OxygenLevel != nil {
		m.OxygenLevel = r.OxygenLevel.Value
	}
	return m
}

// Apply classifies r and writes the statuses and isCritical back onto it.
// A metric without a value has its status cleared.
func Apply(r *VitalRecord) Result {
	res := Classify(r.Measurements())
	if r.HeartRate != nil {
		r.HeartRate.Status = res.HeartRate
	}
	if r.BloodPressure != nil {
		r.BloodPressure.Status = res.BloodPressure
	}
	if r.Temperature != nil {
		r.Temperature.Status = res.Temperature
	}
	if r.OxygenLevel != nil {
		r.OxygenLevel.Status = res.OxygenLevel
	}
	r.IsCritical = res.IsCritical
	return res
}

// applyDefaults fills missing units on supplied measurements.
func (r *VitalRecord) applyDefaults() {
	setUnit := func(u *string, def string) {
		if *u == "" {
			*u = def
		}
	}
	if r.HeartRate != nil {
		setUnit(&r.HeartRate.Unit, UnitHeartRate)
	}
	if r.BloodPressure != nil {
		setUnit(&r.BloodPressure.Unit, UnitBloodPressure)
	}
	if r.Temperature != nil {
		setUnit(&r.Temperature.Unit, UnitTemperature)
	}
	if r.OxygenLevel != nil {
		setUnit(&r.OxygenLevel.Unit, UnitOxygen)
	}
	if r.Weight != nil {
		setUnit(&r.Weight.Unit, UnitWeight)
	}
	if r.Height != nil {
		setUnit(&r.Height.Unit, UnitHeight)
	}
}

// VitalInput is the writable part of a record, used for create and update.
// On update only supplied fields are merged.
type VitalInput struct {
	Patient       *uuid.UUID     `json:"patient,omitempty"`
	Date          *time.Time     `json:"date,omitempty"`
	HeartRate     *Reading       `json:"heartRate,omitempty"`
	BloodPressure *BloodPressure `json:"bloodPressure,omitempty"`
	Temperature   *Reading       `json:"temperature,omitempty"`
	OxygenLevel   *Reading       `json:"oxygenLevel,omitempty"`
	Weight        *Quantity      `json:"weight,omitempty"`
	Height        *Quantity      `json:"height,omitempty"`
	Notes         *string        `json:"notes,omitempty"`
}

func mergeReading(dst **Reading, src *Reading) {
	if src == nil {
		return
	}
	if *dst == nil {
		*dst = &Reading{}
	}
	if src.Value != nil {
		(*dst).Value = src.Value
	}
	if src.Unit != "" {
		(*dst).Unit = src.Unit
	}
}

func mergeQuantity(dst **Quantity, src *Quantity) {
	if src == nil {
		return
	}
	if *dst == nil {
		*dst = &Quantity{}
	}
	if src.Value != nil {
		(*dst).Value = src.Value
	}
	if src.Unit != "" {
		(*dst).Unit = src.Unit
	}
}

// merge copies the supplied fields of in onto r. Client-sent statuses are
// ignored; Apply recomputes them.
func (r *VitalRecord) merge(in VitalInput) {
	if in.Date != nil {
		r.Date = *in.Date
	}
	mergeReading(&r.HeartRate, in.HeartRate)
	mergeReading(&r.Temperature, in.Temperature)
	mergeReading(&r.OxygenLevel, in.OxygenLevel)
	if in.BloodPressure != nil {
		if r.BloodPressure == nil {
			r.BloodPressure = &BloodPressure{}
		}
		if in.BloodPressure.Systolic != nil {
			r.BloodPressure.Systolic = in.BloodPressure.Systolic
		}
		if in.BloodPressure.Diastolic != nil {
			r.BloodPressure.Diastolic = in.BloodPressure.Diastolic
		}
		if in.BloodPressure.Unit != "" {
			r.BloodPressure.Unit = in.BloodPressure.Unit
		}
	}
	mergeQuantity(&r.Weight, in.Weight)
	mergeQuantity(&r.Height, in.Height)
	if in.Notes != nil {
		r.Notes = in.Notes
	}
}

// ListFilter narrows List.
type ListFilter struct {
	PatientID    *uuid.UUID
	CriticalOnly bool
	Limit        int
	Offset       int
}
