package services

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"iter"
	"log/slog"
	"net/url"

	"github.com/dermalink/derma-web-ui/internal/models"
	"github.com/dermalink/derma-web-ui/internal/platform"
)

// Assist streams AI responses from the clinic platform's assist endpoints. It
// implements the LLM interface the handlers consume, on top of the platform
// streaming consumer.
type Assist struct {
	client       *platform.Client
	systemPrompt string

	logger *slog.Logger
}

type assistChatRequest struct {
	Messages []assistMessage `json:"messages"`
	System   string          `json:"system,omitempty"`
}

type assistMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type assistTitleRequest struct {
	Message string `json:"message"`
	System  string `json:"system,omitempty"`
}

type assistTitleResponse struct {
	Title string `json:"title"`
}

// NewAssist creates an Assist service backed by the given platform client.
func NewAssist(client *platform.Client, systemPrompt string, logger *slog.Logger) Assist {
	return Assist{
		client:       client,
		systemPrompt: systemPrompt,
		logger:       logger.With(slog.String("module", "assist")),
	}
}

// Chat streams an assistant reply for the given conversation. It returns an
// iterator yielding response chunks and potential errors; breaking out of the
// iteration cancels the underlying stream.
func (a Assist) Chat(ctx context.Context, messages []models.Message) iter.Seq2[string, error] {
	body, err := json.Marshal(assistChatRequest{
		Messages: assistMessages(messages),
		System:   a.systemPrompt,
	})
	return a.stream(ctx, "/assist/chat", body, err)
}

// AnalyzeLabReport streams an AI interpretation of the given lab report.
func (a Assist) AnalyzeLabReport(ctx context.Context, reportID string) iter.Seq2[string, error] {
	return a.stream(ctx, "/assist/lab-reports/"+url.PathEscape(reportID)+"/analysis", nil, nil)
}

func (a Assist) stream(ctx context.Context, path string, body []byte, marshalErr error) iter.Seq2[string, error] {
	return func(yield func(string, error) bool) {
		if marshalErr != nil {
			yield("", fmt.Errorf("error marshaling request: %w", marshalErr))
			return
		}

		ctx, cancel := context.WithCancel(ctx)
		defer cancel()

		type item struct {
			text string
			err  error
		}
		ch := make(chan item, 8)

		consumer := platform.NewConsumer(a.client, a.logger)
		go func() {
			defer close(ch)
			result, err := consumer.Stream(ctx, path, platform.RequestOptions{Body: body}, platform.StreamHandlers{
				OnChunk: func(content string) {
					ch <- item{text: content}
				},
				OnHeartbeat: func(received int) {
					a.logger.Debug("Assist stream heartbeat", slog.Int("chunksReceived", received))
				},
			})
			switch {
			case err == nil:
				a.logger.Debug("Assist stream complete",
					slog.Int("chunks", result.Chunks),
					slog.Float64("elapsedSeconds", result.ElapsedSeconds),
					slog.String("messageID", result.MessageID))
			case errors.Is(err, platform.ErrStreamCancelled), errors.Is(err, context.Canceled):
			default:
				ch <- item{err: err}
			}
		}()

		for it := range ch {
			if it.err != nil {
				yield("", it.err)
				return
			}
			if !yield(it.text, nil) {
				cancel()
				for range ch { // release the streaming goroutine
				}
				return
			}
		}
	}
}

// GenerateTitle asks the platform for a short chat title summarizing the
// first user message.
func (a Assist) GenerateTitle(ctx context.Context, message string) (string, error) {
	var res assistTitleResponse
	err := a.client.Post(ctx, "/assist/title", assistTitleRequest{
		Message: message,
		System:  a.systemPrompt,
	}, &res)
	if err != nil {
		return "", fmt.Errorf("generating title: %w", err)
	}
	return res.Title, nil
}

func assistMessages(messages []models.Message) []assistMessage {
	msgs := make([]assistMessage, len(messages))
	for i, msg := range messages {
		msgs[i] = assistMessage{
			Role:    string(msg.Role),
			Content: msg.Content,
		}
	}
	return msgs
}
