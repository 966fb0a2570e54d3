package handlers

import (
	"log/slog"
	"net/http"

	"github.com/dermalink/derma-web-ui/internal/models"
)

type homePageData struct {
	Chats         []chat
	CurrentChatID string
	Messages      []message
	Appointments  []models.Appointment
}

// HandleHome renders the main page: the chat list, the selected chat's
// messages, and the day's appointments pulled from the platform.
func (m Main) HandleHome(w http.ResponseWriter, r *http.Request) {
	chats, err := m.store.Chats(r.Context())
	if err != nil {
		m.logger.Error("Failed to get chats", slog.String(errLoggerKey, err.Error()))
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}

	currentChatID := r.URL.Query().Get("chat_id")

	chatViews := make([]chat, len(chats))
	for i, ch := range chats {
		chatViews[i] = chat{
			ID:     ch.ID,
			Title:  ch.Title,
			Active: ch.ID == currentChatID,
		}
	}

	var msgs []message
	if currentChatID != "" {
		messages, err := m.store.Messages(r.Context(), currentChatID)
		if err != nil {
			m.logger.Error("Failed to get messages",
				slog.String("chatID", currentChatID),
				slog.String(errLoggerKey, err.Error()))
			http.Error(w, err.Error(), http.StatusInternalServerError)
			return
		}
		for _, mm := range messages {
			view, err := messageView(mm, models.StreamingStateEnded)
			if err != nil {
				m.logger.Error("Failed to render message",
					slog.String("messageID", mm.ID),
					slog.String(errLoggerKey, err.Error()))
				http.Error(w, err.Error(), http.StatusInternalServerError)
				return
			}
			msgs = append(msgs, view)
		}
	}

	// The appointment sidebar is best-effort; the chat UI stays usable when
	// the platform is unreachable.
	appointments, err := m.clinic.ListAppointments(r.Context(), "")
	if err != nil {
		m.logger.Warn("Failed to list appointments", slog.String(errLoggerKey, err.Error()))
	}

	data := homePageData{
		Chats:         chatViews,
		CurrentChatID: currentChatID,
		Messages:      msgs,
		Appointments:  appointments,
	}
	if err := m.templates.ExecuteTemplate(w, "home.html", data); err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
	}
}
