package handlers

import (
	"context"
	"html/template"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/dermalink/derma-web-ui/internal/models"
	"github.com/google/uuid"
	"github.com/tmaxmax/go-sse"
)

type chat struct {
	ID    string
	Title string

	Active bool
}

type message struct {
	ID        string
	Role      string
	Content   template.HTML
	Timestamp time.Time

	StreamingState string
}

// SSE event types for real-time updates.
var (
	chatsSSEType    = sse.Type("chats")
	messagesSSEType = sse.Type("messages")
)

// HandleChats processes chat interactions through HTTP POST requests,
// managing both new chat creation and message handling. It accepts the user
// message through form data, creates the chat context if needed, and starts
// the asynchronous assist stream and title generation.
//
// The handler expects a "message" form field and optional "chat_id" and
// "patient_id" fields. The assist reply is streamed to the browser through
// the SSE endpoint on a per-message topic; this handler only renders the
// immediate chat skeleton.
func (m Main) HandleChats(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		m.logger.Error("Method not allowed", slog.String("method", r.Method))
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	msg := r.FormValue("message")
	if msg == "" {
		m.logger.Error("Message is required")
		http.Error(w, "Message is required", http.StatusBadRequest)
		return
	}

	var err error

	chatID := r.FormValue("chat_id")
	// A new chat needs the whole chatbox rendered; an existing one only the
	// two new message elements.
	isNewChat := false
	if chatID == "" {
		chatID, err = m.newChat(r.FormValue("patient_id"))
		if err != nil {
			m.logger.Error("Failed to create new chat", slog.String(errLoggerKey, err.Error()))
			http.Error(w, err.Error(), http.StatusInternalServerError)
			return
		}
		isNewChat = true
	}

	um := models.Message{
		ID:        uuid.New().String(),
		Role:      models.RoleUser,
		Content:   msg,
		Timestamp: time.Now(),
	}
	userMsgID, err := m.store.AddMessage(r.Context(), chatID, um)
	if err != nil {
		m.logger.Error("Failed to add user message",
			slog.String("chatID", chatID),
			slog.String(errLoggerKey, err.Error()))
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	um.ID = userMsgID

	// Placeholder assistant message to be streamed into.
	am := models.Message{
		ID:        uuid.New().String(),
		Role:      models.RoleAssistant,
		Timestamp: time.Now(),
	}
	aiMsgID, err := m.store.AddMessage(r.Context(), chatID, am)
	if err != nil {
		m.logger.Error("Failed to add assistant message",
			slog.String("chatID", chatID),
			slog.String(errLoggerKey, err.Error()))
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	am.ID = aiMsgID

	messages, err := m.store.Messages(r.Context(), chatID)
	if err != nil {
		m.logger.Error("Failed to get messages",
			slog.String("chatID", chatID),
			slog.String(errLoggerKey, err.Error()))
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}

	go m.chat(chatID, messages)

	if isNewChat {
		go m.generateChatTitle(chatID, msg)

		msgs := make([]message, 0, len(messages))
		for _, mm := range messages {
			streamingState := models.StreamingStateEnded
			if mm.ID == aiMsgID {
				streamingState = models.StreamingStateLoading
			}
			view, err := messageView(mm, streamingState)
			if err != nil {
				m.logger.Error("Failed to render message",
					slog.String("messageID", mm.ID),
					slog.String(errLoggerKey, err.Error()))
				http.Error(w, err.Error(), http.StatusInternalServerError)
				return
			}
			msgs = append(msgs, view)
		}

		data := homePageData{
			CurrentChatID: chatID,
			Messages:      msgs,
		}
		if err := m.templates.ExecuteTemplate(w, "chatbox", data); err != nil {
			http.Error(w, err.Error(), http.StatusInternalServerError)
		}
		return
	}

	userView, err := messageView(um, models.StreamingStateEnded)
	if err != nil {
		m.logger.Error("Failed to render user message", slog.String(errLoggerKey, err.Error()))
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	if err := m.templates.ExecuteTemplate(w, "user_message", userView); err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}

	aiView, err := messageView(am, models.StreamingStateLoading)
	if err != nil {
		m.logger.Error("Failed to render assistant message", slog.String(errLoggerKey, err.Error()))
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	if err := m.templates.ExecuteTemplate(w, "ai_message", aiView); err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
	}
}

func messageView(msg models.Message, streamingState string) (message, error) {
	content, err := models.RenderMarkdown(msg.Content)
	if err != nil {
		return message{}, err
	}
	return message{
		ID:             msg.ID,
		Role:           string(msg.Role),
		Content:        content,
		Timestamp:      msg.Timestamp,
		StreamingState: streamingState,
	}, nil
}

func (m Main) newChat(patientID string) (string, error) {
	newChat := models.Chat{
		ID:        uuid.New().String(),
		PatientID: patientID,
		CreatedAt: time.Now(),
	}
	newChatID, err := m.store.AddChat(context.Background(), newChat)
	if err != nil {
		return "", err
	}
	newChat.ID = newChatID

	divs, err := m.chatDivs(newChat.ID)
	if err != nil {
		return "", err
	}

	msg := sse.Message{
		Type: chatsSSEType,
	}
	msg.AppendData(divs)

	if err := m.sseSrv.Publish(&msg, chatsSSETopic); err != nil {
		return "", err
	}

	return newChat.ID, nil
}

// chat streams the assist reply into the placeholder assistant message,
// persisting and publishing the accumulated content after every chunk so
// reconnecting clients always see the full prefix.
func (m Main) chat(chatID string, messages []models.Message) {
	defer func() {
		e := &sse.Message{Type: sse.Type("closeMessage")}
		e.AppendData("bye")
		_ = m.sseSrv.Publish(e, messageIDTopic(messages[len(messages)-1].ID))
	}()

	aiMsg := messages[len(messages)-1]
	history := messages[:len(messages)-1]

	for content, err := range m.llm.Chat(context.Background(), history) {
		msg := sse.Message{
			Type: messagesSSEType,
		}
		if err != nil {
			m.logger.Error("Error from assist provider", slog.String(errLoggerKey, err.Error()))
			msg.AppendData(err.Error())
			_ = m.sseSrv.Publish(&msg, messageIDTopic(aiMsg.ID))
			return
		}

		aiMsg.Content += content

		if err := m.store.UpdateMessage(context.Background(), chatID, aiMsg); err != nil {
			m.logger.Error("Failed to update message",
				slog.String("messageID", aiMsg.ID),
				slog.String(errLoggerKey, err.Error()))
			return
		}

		rendered, err := models.RenderMarkdown(aiMsg.Content)
		if err != nil {
			m.logger.Error("Failed to render message content",
				slog.String("messageID", aiMsg.ID),
				slog.String(errLoggerKey, err.Error()))
			return
		}
		msg.AppendData(string(rendered))
		if err := m.sseSrv.Publish(&msg, messageIDTopic(aiMsg.ID)); err != nil {
			m.logger.Error("Failed to publish message",
				slog.String("messageID", aiMsg.ID),
				slog.String(errLoggerKey, err.Error()))
			return
		}
	}
}

func (m Main) generateChatTitle(chatID string, message string) {
	title, err := m.titleGenerator.GenerateTitle(context.Background(), message)
	if err != nil {
		m.logger.Error("Error generating chat title",
			slog.String("message", message),
			slog.String(errLoggerKey, err.Error()))
		return
	}

	updatedChat := models.Chat{
		ID:    chatID,
		Title: strings.TrimSpace(title),
	}
	if err := m.store.UpdateChat(context.Background(), updatedChat); err != nil {
		m.logger.Error("Failed to update chat title",
			slog.String(errLoggerKey, err.Error()))
		return
	}

	divs, err := m.chatDivs(chatID)
	if err != nil {
		m.logger.Error("Failed to generate chat divs",
			slog.String(errLoggerKey, err.Error()))
		return
	}

	msg := sse.Message{
		Type: chatsSSEType,
	}
	msg.AppendData(divs)
	if err := m.sseSrv.Publish(&msg, chatsSSETopic); err != nil {
		m.logger.Error("Failed to publish chats",
			slog.String(errLoggerKey, err.Error()))
	}
}

func (m Main) chatDivs(activeID string) (string, error) {
	chats, err := m.store.Chats(context.Background())
	if err != nil {
		return "", err
	}

	var sb strings.Builder
	for _, ch := range chats {
		err := m.templates.ExecuteTemplate(&sb, "chat_title", chat{
			ID:     ch.ID,
			Title:  ch.Title,
			Active: ch.ID == activeID,
		})
		if err != nil {
			return "", err
		}
	}
	return sb.String(), nil
}
