package models

import (
	"bytes"
	"html/template"
	"time"

	"github.com/yuin/goldmark"
	highlighting "github.com/yuin/goldmark-highlighting"
	"github.com/yuin/goldmark/extension"
	goldmarkhtml "github.com/yuin/goldmark/renderer/html"
)

// Chat represents one assist conversation. A chat may be pinned to a patient
// so the assistant is given that patient's clinical context.
type Chat struct {
	ID        string
	Title     string
	PatientID string
	CreatedAt time.Time
}

// Message is an individual entry within a chat.
type Message struct {
	ID        string
	Role      Role
	Content   string
	Timestamp time.Time
}

// Role represents the role of a message participant.
type Role string

const (
	// RoleUser represents a message typed by the clinic user.
	RoleUser Role = "user"
	// RoleAssistant represents a streamed assistant reply.
	RoleAssistant Role = "assistant"
)

// Streaming states rendered into message elements so the front-end can show
// progress affordances.
const (
	StreamingStateLoading   = "loading"
	StreamingStateStreaming = "streaming"
	StreamingStateEnded     = "ended"
)

var markdown = goldmark.New(
	goldmark.WithExtensions(
		extension.GFM,
		highlighting.NewHighlighting(highlighting.WithStyle("monokai")),
	),
	goldmark.WithRendererOptions(goldmarkhtml.WithHardWraps()),
)

// RenderMarkdown converts assistant markdown output into HTML for template
// embedding.
func RenderMarkdown(content string) (template.HTML, error) {
	var buf bytes.Buffer
	if err := markdown.Convert([]byte(content), &buf); err != nil {
		return "", err
	}
	return template.HTML(buf.String()), nil
}
