package platform_test

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/google/uuid"

	"github.com/dermalink/derma-web-ui/internal/models"
	"github.com/dermalink/derma-web-ui/internal/platform"
)

func TestListPatients(t *testing.T) {
	id := uuid.New()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/api/v1/patients" {
			t.Errorf("path = %q", r.URL.Path)
		}
		if got := r.URL.Query().Get("q"); got != "oka for" {
			t.Errorf("q = %q, want escaped query decoded back", got)
		}
		_ = json.NewEncoder(w).Encode([]models.Patient{
			{ID: id, GivenName: "Mina", FamilyName: "Okafor"},
		})
	}))
	defer srv.Close()

	client := platform.NewClient(srv.URL, nil, testLogger())

	patients, err := client.ListPatients(context.Background(), "oka for")
	if err != nil {
		t.Fatalf("ListPatients() error = %v", err)
	}
	if len(patients) != 1 || patients[0].ID != id {
		t.Errorf("patients = %+v", patients)
	}
	if patients[0].FullName() != "Mina Okafor" {
		t.Errorf("FullName() = %q", patients[0].FullName())
	}
}

func TestPatientSubresources(t *testing.T) {
	const patientID = "pat-7"
	var gotPath string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		_, _ = w.Write([]byte(`[]`))
	}))
	defer srv.Close()

	client := platform.NewClient(srv.URL, nil, testLogger())
	ctx := context.Background()

	tests := []struct {
		name     string
		call     func() error
		wantPath string
	}{
		{
			name:     "consultations",
			call:     func() error { _, err := client.ListConsultations(ctx, patientID); return err },
			wantPath: "/api/v1/patients/pat-7/consultations",
		},
		{
			name:     "prescriptions",
			call:     func() error { _, err := client.ListPrescriptions(ctx, patientID); return err },
			wantPath: "/api/v1/patients/pat-7/prescriptions",
		},
		{
			name:     "lab reports",
			call:     func() error { _, err := client.ListLabReports(ctx, patientID); return err },
			wantPath: "/api/v1/patients/pat-7/lab-reports",
		},
		{
			name:     "images",
			call:     func() error { _, err := client.ListSkinImages(ctx, patientID); return err },
			wantPath: "/api/v1/patients/pat-7/images",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			gotPath = ""
			if err := tt.call(); err != nil {
				t.Fatalf("call error = %v", err)
			}
			if gotPath != tt.wantPath {
				t.Errorf("path = %q, want %q", gotPath, tt.wantPath)
			}
		})
	}
}

func TestCreateAppointment(t *testing.T) {
	apptID := uuid.New()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost || r.URL.Path != "/api/v1/appointments" {
			t.Errorf("request = %s %s", r.Method, r.URL.Path)
		}
		var appt models.Appointment
		if err := json.NewDecoder(r.Body).Decode(&appt); err != nil {
			t.Errorf("decoding appointment: %v", err)
		}
		appt.ID = apptID
		appt.Status = models.AppointmentBooked
		_ = json.NewEncoder(w).Encode(appt)
	}))
	defer srv.Close()

	client := platform.NewClient(srv.URL, nil, testLogger())

	created, err := client.CreateAppointment(context.Background(), models.Appointment{Reason: "Mole check"})
	if err != nil {
		t.Fatalf("CreateAppointment() error = %v", err)
	}
	if created.ID != apptID || created.Status != models.AppointmentBooked {
		t.Errorf("created = %+v", created)
	}
}
