package handlers

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/dermalink/derma-web-ui/internal/models"
	"github.com/tmaxmax/go-sse"
)

var reportsSSEType = sse.Type("reports")

type patientsPageData struct {
	Query    string
	Patients []models.Patient
}

type patientPageData struct {
	Patient       models.Patient
	Appointments  []models.Appointment
	Consultations []models.Consultation
	Prescriptions []models.Prescription
	LabReports    []models.LabReport
	Images        []models.SkinImage
}

// HandlePatients renders the patient list, filtered by the "q" query
// parameter when present.
func (m Main) HandlePatients(w http.ResponseWriter, r *http.Request) {
	query := r.URL.Query().Get("q")

	patients, err := m.clinic.ListPatients(r.Context(), query)
	if err != nil {
		m.logger.Error("Failed to list patients", slog.String(errLoggerKey, err.Error()))
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}

	data := patientsPageData{
		Query:    query,
		Patients: patients,
	}
	if err := m.templates.ExecuteTemplate(w, "patients.html", data); err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
	}
}

// HandlePatient renders one patient's detail page: appointments,
// consultations, prescriptions, lab reports and the image gallery.
func (m Main) HandlePatient(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	if id == "" {
		http.Error(w, "Patient id is required", http.StatusBadRequest)
		return
	}

	patient, err := m.clinic.GetPatient(r.Context(), id)
	if err != nil {
		m.logger.Error("Failed to get patient",
			slog.String("patientID", id),
			slog.String(errLoggerKey, err.Error()))
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}

	data := patientPageData{Patient: patient}

	// The sections degrade independently; one failing platform call should
	// not blank the whole page.
	if data.Appointments, err = m.clinic.ListAppointments(r.Context(), id); err != nil {
		m.logger.Warn("Failed to list appointments", slog.String(errLoggerKey, err.Error()))
	}
	if data.Consultations, err = m.clinic.ListConsultations(r.Context(), id); err != nil {
		m.logger.Warn("Failed to list consultations", slog.String(errLoggerKey, err.Error()))
	}
	if data.Prescriptions, err = m.clinic.ListPrescriptions(r.Context(), id); err != nil {
		m.logger.Warn("Failed to list prescriptions", slog.String(errLoggerKey, err.Error()))
	}
	if data.LabReports, err = m.clinic.ListLabReports(r.Context(), id); err != nil {
		m.logger.Warn("Failed to list lab reports", slog.String(errLoggerKey, err.Error()))
	}
	if data.Images, err = m.clinic.ListSkinImages(r.Context(), id); err != nil {
		m.logger.Warn("Failed to list images", slog.String(errLoggerKey, err.Error()))
	}

	if err := m.templates.ExecuteTemplate(w, "patient.html", data); err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
	}
}

// HandleLabAnalysis starts an AI analysis stream for a lab report. The
// analysis text is published on a per-report SSE topic as it streams in; the
// immediate response is just an acknowledgement the front-end swaps in while
// listening.
func (m Main) HandleLabAnalysis(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	analyzer, ok := m.llm.(LabAnalyzer)
	if !ok {
		http.Error(w, "Lab analysis requires the platform assist provider", http.StatusNotImplemented)
		return
	}

	reportID := r.PathValue("id")
	if reportID == "" {
		http.Error(w, "Report id is required", http.StatusBadRequest)
		return
	}

	if _, err := m.clinic.GetLabReport(r.Context(), reportID); err != nil {
		m.logger.Error("Failed to get lab report",
			slog.String("reportID", reportID),
			slog.String(errLoggerKey, err.Error()))
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}

	go m.analyzeLabReport(analyzer, reportID)

	w.WriteHeader(http.StatusAccepted)
}

func (m Main) analyzeLabReport(analyzer LabAnalyzer, reportID string) {
	defer func() {
		e := &sse.Message{Type: sse.Type("closeReport")}
		e.AppendData("bye")
		_ = m.sseSrv.Publish(e, reportIDTopic(reportID))
	}()

	var analysis string
	for content, err := range analyzer.AnalyzeLabReport(context.Background(), reportID) {
		msg := sse.Message{Type: reportsSSEType}
		if err != nil {
			m.logger.Error("Error from lab analysis stream",
				slog.String("reportID", reportID),
				slog.String(errLoggerKey, err.Error()))
			msg.AppendData(err.Error())
			_ = m.sseSrv.Publish(&msg, reportIDTopic(reportID))
			return
		}

		analysis += content
		rendered, err := models.RenderMarkdown(analysis)
		if err != nil {
			m.logger.Error("Failed to render analysis",
				slog.String("reportID", reportID),
				slog.String(errLoggerKey, err.Error()))
			return
		}
		msg.AppendData(string(rendered))
		if err := m.sseSrv.Publish(&msg, reportIDTopic(reportID)); err != nil {
			m.logger.Error("Failed to publish analysis",
				slog.String("reportID", reportID),
				slog.String(errLoggerKey, err.Error()))
			return
		}
	}
}
