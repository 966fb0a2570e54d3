package platform

import (
	"context"
	"fmt"
	"net/url"

	"github.com/dermalink/derma-web-ui/internal/models"
)

// ListPatients returns the clinic's patients, optionally filtered by a search
// query on name or email.
func (c *Client) ListPatients(ctx context.Context, query string) ([]models.Patient, error) {
	path := "/patients"
	if query != "" {
		path += "?q=" + url.QueryEscape(query)
	}
	var patients []models.Patient
	if err := c.Get(ctx, path, &patients); err != nil {
		return nil, fmt.Errorf("listing patients: %w", err)
	}
	return patients, nil
}

// GetPatient returns a single patient record.
func (c *Client) GetPatient(ctx context.Context, id string) (models.Patient, error) {
	var patient models.Patient
	if err := c.Get(ctx, "/patients/"+url.PathEscape(id), &patient); err != nil {
		return models.Patient{}, fmt.Errorf("getting patient %s: %w", id, err)
	}
	return patient, nil
}

// ListAppointments returns appointments, scoped to a patient when patientID
// is non-empty.
func (c *Client) ListAppointments(ctx context.Context, patientID string) ([]models.Appointment, error) {
	path := "/appointments"
	if patientID != "" {
		path += "?patient_id=" + url.QueryEscape(patientID)
	}
	var appointments []models.Appointment
	if err := c.Get(ctx, path, &appointments); err != nil {
		return nil, fmt.Errorf("listing appointments: %w", err)
	}
	return appointments, nil
}

// CreateAppointment books a new appointment and returns the stored record.
func (c *Client) CreateAppointment(ctx context.Context, appt models.Appointment) (models.Appointment, error) {
	var created models.Appointment
	if err := c.Post(ctx, "/appointments", appt, &created); err != nil {
		return models.Appointment{}, fmt.Errorf("creating appointment: %w", err)
	}
	return created, nil
}

// ListConsultations returns a patient's consultation notes.
func (c *Client) ListConsultations(ctx context.Context, patientID string) ([]models.Consultation, error) {
	var consultations []models.Consultation
	if err := c.Get(ctx, "/patients/"+url.PathEscape(patientID)+"/consultations", &consultations); err != nil {
		return nil, fmt.Errorf("listing consultations for patient %s: %w", patientID, err)
	}
	return consultations, nil
}

// ListPrescriptions returns a patient's prescriptions.
func (c *Client) ListPrescriptions(ctx context.Context, patientID string) ([]models.Prescription, error) {
	var prescriptions []models.Prescription
	if err := c.Get(ctx, "/patients/"+url.PathEscape(patientID)+"/prescriptions", &prescriptions); err != nil {
		return nil, fmt.Errorf("listing prescriptions for patient %s: %w", patientID, err)
	}
	return prescriptions, nil
}

// ListLabReports returns a patient's lab reports.
func (c *Client) ListLabReports(ctx context.Context, patientID string) ([]models.LabReport, error) {
	var reports []models.LabReport
	if err := c.Get(ctx, "/patients/"+url.PathEscape(patientID)+"/lab-reports", &reports); err != nil {
		return nil, fmt.Errorf("listing lab reports for patient %s: %w", patientID, err)
	}
	return reports, nil
}

// GetLabReport returns a single lab report with its values.
func (c *Client) GetLabReport(ctx context.Context, id string) (models.LabReport, error) {
	var report models.LabReport
	if err := c.Get(ctx, "/lab-reports/"+url.PathEscape(id), &report); err != nil {
		return models.LabReport{}, fmt.Errorf("getting lab report %s: %w", id, err)
	}
	return report, nil
}

// ListSkinImages returns a patient's image gallery entries.
func (c *Client) ListSkinImages(ctx context.Context, patientID string) ([]models.SkinImage, error) {
	var images []models.SkinImage
	if err := c.Get(ctx, "/patients/"+url.PathEscape(patientID)+"/images", &images); err != nil {
		return nil, fmt.Errorf("listing images for patient %s: %w", patientID, err)
	}
	return images, nil
}
