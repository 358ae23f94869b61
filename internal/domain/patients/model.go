package patients

import (
	"time"

	"github.com/google/uuid"
)

// Patient is the directory view of a user with the patient role.
type Patient struct {
	ID        uuid.UUID `json:"id"`
	Name      string    `json:"name"`
	Email     string    `json:"email"`
	Phone     string    `json:"phone,omitempty"`
	Address   string    `json:"address,omitempty"`
	IsActive  bool      `json:"isActive"`
	CreatedAt time.Time `json:"createdAt"`
}

// PrescriptionLine is one medicine the doctor prescribed. Medicine is free
// text; it need not be a catalogue product.
type PrescriptionLine struct {
	Medicine  string `json:"medicine"`
	Dosage    string `json:"dosage"`
	Frequency string `json:"frequency"`
	Duration  string `json:"duration"`
}

// Record is a medical record written by a doctor for a patient.
type Record struct {
	ID           uuid.UUID          `json:"id"`
	PatientID    uuid.UUID          `json:"patient"`
	DoctorID     uuid.UUID          `json:"doctor"`
	Date         time.Time          `json:"date"`
	Diagnosis    string             `json:"diagnosis,omitempty"`
	Symptoms     string             `json:"symptoms,omitempty"`
	Treatment    string             `json:"treatment,omitempty"`
	Prescription []PrescriptionLine `json:"prescription"`
	Notes        string             `json:"notes,omitempty"`
	FollowUpDate *time.Time         `json:"followUpDate,omitempty"`
	Attachments  []uuid.UUID        `json:"attachments"`
	CreatedAt    time.Time          `json:"createdAt"`
	UpdatedAt    time.Time          `json:"updatedAt"`
}

// RecordInput carries create and update fields; on update only supplied
// fields change.
type RecordInput struct {
	Date         *time.Time          `json:"date"`
	Diagnosis    *string             `json:"diagnosis"`
	Symptoms     *string             `json:"symptoms"`
	Treatment    *string             `json:"treatment"`
	Prescription *[]PrescriptionLine `json:"prescription"`
	Notes        *string             `json:"notes"`
	FollowUpDate *time.Time          `json:"followUpDate"`
	Attachments  *[]uuid.UUID        `json:"attachments"`
}

func (in RecordInput) apply(r *Record) {
	if in.Date != nil {
		r.Date = in.Date.UTC()
	}
	if in.Diagnosis != nil {
		r.Diagnosis = *in.Diagnosis
	}
	if in.Symptoms != nil {
		r.Symptoms = *in.Symptoms
	}
	if in.Treatment != nil {
		r.Treatment = *in.Treatment
	}
	if in.Prescription != nil {
		r.Prescription = *in.Prescription
	}
	if in.Notes != nil {
		r.Notes = *in.Notes
	}
	if in.FollowUpDate != nil {
		t := in.FollowUpDate.UTC()
		r.FollowUpDate = &t
	}
	if in.Attachments != nil {
		r.Attachments = *in.Attachments
	}
	if r.Prescription == nil {
		r.Prescription = []PrescriptionLine{}
	}
	if r.Attachments == nil {
		r.Attachments = []uuid.UUID{}
	}
}

type PatientFilter struct {
	Search string
	Limit  int
	Offset int
}
