package handlers

import (
	"context"
	"fmt"
	"html/template"
	"iter"
	"log/slog"
	"net/http"
	"time"

	dermawebui "github.com/dermalink/derma-web-ui"
	"github.com/dermalink/derma-web-ui/internal/models"
	"github.com/tmaxmax/go-sse"
)

// LLM represents the assist model interface. It accepts a context and the
// conversation history, returning an iterator that yields response chunks and
// potential errors.
type LLM interface {
	Chat(ctx context.Context, messages []models.Message) iter.Seq2[string, error]
}

// TitleGenerator produces a short title for a new chat from its first user
// message.
type TitleGenerator interface {
	GenerateTitle(ctx context.Context, message string) (string, error)
}

// LabAnalyzer streams an AI interpretation of a lab report. Only the platform
// assist provider implements it; direct-model deployments do not expose lab
// analysis.
type LabAnalyzer interface {
	AnalyzeLabReport(ctx context.Context, reportID string) iter.Seq2[string, error]
}

// Store defines the interface for managing chat and message persistence.
type Store interface {
	Chats(ctx context.Context) ([]models.Chat, error)
	AddChat(ctx context.Context, chat models.Chat) (string, error)
	UpdateChat(ctx context.Context, chat models.Chat) error

	Messages(ctx context.Context, chatID string) ([]models.Message, error)
	AddMessage(ctx context.Context, chatID string, message models.Message) (string, error)
	UpdateMessage(ctx context.Context, chatID string, message models.Message) error
}

// Clinic is the slice of the platform API the UI pages read from.
type Clinic interface {
	ListPatients(ctx context.Context, query string) ([]models.Patient, error)
	GetPatient(ctx context.Context, id string) (models.Patient, error)
	ListAppointments(ctx context.Context, patientID string) ([]models.Appointment, error)
	ListConsultations(ctx context.Context, patientID string) ([]models.Consultation, error)
	ListPrescriptions(ctx context.Context, patientID string) ([]models.Prescription, error)
	ListLabReports(ctx context.Context, patientID string) ([]models.LabReport, error)
	GetLabReport(ctx context.Context, id string) (models.LabReport, error)
	ListSkinImages(ctx context.Context, patientID string) ([]models.SkinImage, error)
}

// Main handles the core functionality of the clinic UI, managing server-sent
// events, HTML templates, and interactions between the assist LLM, the local
// store, and the platform API.
type Main struct {
	sseSrv    *sse.Server
	templates *template.Template

	llm            LLM
	titleGenerator TitleGenerator
	store          Store
	clinic         Clinic

	logger *slog.Logger
}

const chatsSSETopic = "chats"

const errLoggerKey = "err"

// NewMain creates a new Main instance with the provided collaborators. It
// initializes the SSE server and parses the HTML templates from the embedded
// filesystem. The SSE server subscribes every client to the default and chats
// topics, plus a message- or report-specific topic when requested.
func NewMain(llm LLM, titleGen TitleGenerator, store Store, clinic Clinic, logger *slog.Logger) (Main, error) {
	tmpl, err := template.ParseFS(
		dermawebui.TemplateFS,
		"templates/layout/*.html",
		"templates/pages/*.html",
		"templates/partials/*.html",
	)
	if err != nil {
		return Main{}, err
	}

	return Main{
		sseSrv: &sse.Server{
			OnSession: func(s *sse.Session) (sse.Subscription, bool) {
				topics := []string{sse.DefaultTopic, chatsSSETopic}

				if messageID := s.Req.URL.Query().Get("message_id"); messageID != "" {
					topics = append(topics, messageIDTopic(messageID))
				}
				if reportID := s.Req.URL.Query().Get("report_id"); reportID != "" {
					topics = append(topics, reportIDTopic(reportID))
				}

				return sse.Subscription{
					Client:      s,
					LastEventID: s.LastEventID,
					Topics:      topics,
				}, true
			},
		},
		templates:      tmpl,
		llm:            llm,
		titleGenerator: titleGen,
		store:          store,
		clinic:         clinic,
		logger:         logger.With(slog.String("module", "handlers")),
	}, nil
}

func messageIDTopic(messageID string) string {
	return fmt.Sprintf("message-%s", messageID)
}

func reportIDTopic(reportID string) string {
	return fmt.Sprintf("report-%s", reportID)
}

// HandleSSE serves the SSE subscription endpoint the browser listens on.
func (m Main) HandleSSE(w http.ResponseWriter, r *http.Request) {
	m.sseSrv.ServeHTTP(w, r)
}

// Shutdown gracefully terminates the SSE server. It broadcasts a close
// message to all connected clients and waits up to 5 seconds for connections
// to terminate before forcefully closing the rest.
func (m Main) Shutdown(ctx context.Context) error {
	e := &sse.Message{Type: sse.Type("closeChat")}
	// The SSE spec requires data on every message, even a close marker.
	e.AppendData("bye")

	_ = m.sseSrv.Publish(e)

	ctx, cancel := context.WithTimeout(ctx, time.Second*5)
	defer cancel()

	return m.sseSrv.Shutdown(ctx)
}
