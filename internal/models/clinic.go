package models

import (
	"time"

	"github.com/google/uuid"
)

// Patient is a clinic patient record as served by the platform API.
type Patient struct {
	ID          uuid.UUID `json:"id"`
	GivenName   string    `json:"given_name"`
	FamilyName  string    `json:"family_name"`
	Email       string    `json:"email,omitempty"`
	DateOfBirth string    `json:"date_of_birth,omitempty"`
	// SkinType is the Fitzpatrick phototype, "I" through "VI".
	SkinType  string    `json:"skin_type,omitempty"`
	CreatedAt time.Time `json:"created_at"`
}

// FullName returns the patient's display name.
func (p Patient) FullName() string {
	return p.GivenName + " " + p.FamilyName
}

// AppointmentStatus is the scheduling state of an appointment.
type AppointmentStatus string

const (
	AppointmentBooked    AppointmentStatus = "booked"
	AppointmentArrived   AppointmentStatus = "arrived"
	AppointmentFulfilled AppointmentStatus = "fulfilled"
	AppointmentCancelled AppointmentStatus = "cancelled"
	AppointmentNoShow    AppointmentStatus = "noshow"
)

// Appointment is a scheduled patient visit.
type Appointment struct {
	ID           uuid.UUID         `json:"id"`
	PatientID    uuid.UUID         `json:"patient_id"`
	Practitioner string            `json:"practitioner,omitempty"`
	ScheduledAt  time.Time         `json:"scheduled_at"`
	DurationMin  int               `json:"duration_min,omitempty"`
	Reason       string            `json:"reason,omitempty"`
	Status       AppointmentStatus `json:"status"`
}

// Consultation is the clinical note produced by a visit.
type Consultation struct {
	ID            uuid.UUID `json:"id"`
	PatientID     uuid.UUID `json:"patient_id"`
	AppointmentID uuid.UUID `json:"appointment_id,omitempty"`
	Date          time.Time `json:"date"`
	Diagnoses     []string  `json:"diagnoses,omitempty"`
	Notes         string    `json:"notes,omitempty"`
}

// Prescription is a medication order issued during a consultation.
type Prescription struct {
	ID             uuid.UUID `json:"id"`
	PatientID      uuid.UUID `json:"patient_id"`
	ConsultationID uuid.UUID `json:"consultation_id,omitempty"`
	Medication     string    `json:"medication"`
	Dose           string    `json:"dose,omitempty"`
	Frequency      string    `json:"frequency,omitempty"`
	DurationDays   int       `json:"duration_days,omitempty"`
	Status         string    `json:"status"`
	IssuedAt       time.Time `json:"issued_at"`
}

// LabValue is one analyte row of a lab report.
type LabValue struct {
	Analyte        string  `json:"analyte"`
	Value          float64 `json:"value"`
	Unit           string  `json:"unit,omitempty"`
	ReferenceRange string  `json:"reference_range,omitempty"`
	Flag           string  `json:"flag,omitempty"`
}

// LabReport is a diagnostic report with its result values. AI-assisted
// interpretation of a report is streamed from the platform, not stored here.
type LabReport struct {
	ID          uuid.UUID  `json:"id"`
	PatientID   uuid.UUID  `json:"patient_id"`
	Name        string     `json:"name"`
	Status      string     `json:"status"`
	CollectedAt time.Time  `json:"collected_at"`
	Values      []LabValue `json:"values,omitempty"`
}

// SkinImage is a dermatoscopy or clinical photograph in a patient's gallery.
type SkinImage struct {
	ID         uuid.UUID `json:"id"`
	PatientID  uuid.UUID `json:"patient_id"`
	BodySite   string    `json:"body_site,omitempty"`
	URL        string    `json:"url"`
	Notes      string    `json:"notes,omitempty"`
	CapturedAt time.Time `json:"captured_at"`
}
