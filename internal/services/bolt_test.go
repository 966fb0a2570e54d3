package services_test

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/dermalink/derma-web-ui/internal/models"
	"github.com/dermalink/derma-web-ui/internal/services"
)

func newTestDB(t *testing.T) services.BoltDB {
	t.Helper()
	db, err := services.NewBoltDB(filepath.Join(t.TempDir(), "store.db"))
	if err != nil {
		t.Fatalf("NewBoltDB() error = %v", err)
	}
	t.Cleanup(func() { _ = db.Close() })
	return db
}

func TestBoltDBChats(t *testing.T) {
	db := newTestDB(t)
	ctx := context.Background()

	first, err := db.AddChat(ctx, models.Chat{ID: uuid.NewString(), Title: "Acne follow-up"})
	if err != nil {
		t.Fatalf("AddChat() error = %v", err)
	}
	second, err := db.AddChat(ctx, models.Chat{ID: uuid.NewString(), Title: "Eczema flare"})
	if err != nil {
		t.Fatalf("AddChat() error = %v", err)
	}

	chats, err := db.Chats(ctx)
	if err != nil {
		t.Fatalf("Chats() error = %v", err)
	}
	if len(chats) != 2 {
		t.Fatalf("got %d chats, want 2", len(chats))
	}
	// Most recent first.
	if chats[0].ID != second || chats[1].ID != first {
		t.Errorf("chat order = [%s %s], want [%s %s]", chats[0].ID, chats[1].ID, second, first)
	}

	updated := chats[0]
	updated.Title = "Eczema flare (resolved)"
	if err := db.UpdateChat(ctx, updated); err != nil {
		t.Fatalf("UpdateChat() error = %v", err)
	}
	chats, err = db.Chats(ctx)
	if err != nil {
		t.Fatalf("Chats() error = %v", err)
	}
	if chats[0].Title != "Eczema flare (resolved)" {
		t.Errorf("updated title = %q", chats[0].Title)
	}

	// Updating an unknown chat is a no-op, not an error.
	if err := db.UpdateChat(ctx, models.Chat{ID: "missing", Title: "ghost"}); err != nil {
		t.Errorf("UpdateChat() on missing chat error = %v", err)
	}
}

func TestBoltDBMessages(t *testing.T) {
	db := newTestDB(t)
	ctx := context.Background()

	chatID, err := db.AddChat(ctx, models.Chat{ID: uuid.NewString(), Title: "Rosacea"})
	if err != nil {
		t.Fatalf("AddChat() error = %v", err)
	}

	userID, err := db.AddMessage(ctx, chatID, models.Message{
		ID:        uuid.NewString(),
		Role:      models.RoleUser,
		Content:   "My cheeks are flushed.",
		Timestamp: time.Now(),
	})
	if err != nil {
		t.Fatalf("AddMessage() error = %v", err)
	}
	aiID, err := db.AddMessage(ctx, chatID, models.Message{
		ID:   uuid.NewString(),
		Role: models.RoleAssistant,
	})
	if err != nil {
		t.Fatalf("AddMessage() error = %v", err)
	}

	if err := db.UpdateMessage(ctx, chatID, models.Message{
		ID:      aiID,
		Role:    models.RoleAssistant,
		Content: "That sounds like a rosacea flare.",
	}); err != nil {
		t.Fatalf("UpdateMessage() error = %v", err)
	}

	messages, err := db.Messages(ctx, chatID)
	if err != nil {
		t.Fatalf("Messages() error = %v", err)
	}
	if len(messages) != 2 {
		t.Fatalf("got %d messages, want 2", len(messages))
	}
	if messages[0].ID != userID || messages[0].Role != models.RoleUser {
		t.Errorf("first message = %+v", messages[0])
	}
	if messages[1].Content != "That sounds like a rosacea flare." {
		t.Errorf("updated content = %q", messages[1].Content)
	}

	// Messages for an unknown chat come back empty.
	messages, err = db.Messages(ctx, "missing")
	if err != nil {
		t.Fatalf("Messages() on missing chat error = %v", err)
	}
	if len(messages) != 0 {
		t.Errorf("got %d messages for missing chat, want 0", len(messages))
	}
}

func TestBoltDBToken(t *testing.T) {
	db := newTestDB(t)
	ctx := context.Background()

	token, err := db.Token(ctx)
	if err != nil {
		t.Fatalf("Token() error = %v", err)
	}
	if token != "" {
		t.Errorf("Token() = %q before SetToken, want empty", token)
	}

	if err := db.SetToken("persisted-token"); err != nil {
		t.Fatalf("SetToken() error = %v", err)
	}
	token, err = db.Token(ctx)
	if err != nil {
		t.Fatalf("Token() error = %v", err)
	}
	if token != "persisted-token" {
		t.Errorf("Token() = %q, want persisted-token", token)
	}
}
