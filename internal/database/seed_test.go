package database

import (
	"testing"

	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"chat-server/internal/models"
)

type plainEnc struct{}

func (plainEnc) Encrypt(plaintext string) (string, error) { return "enc:" + plaintext, nil }

func newSeedTestDB(t *testing.T) *gorm.DB {
	t.Helper()
	db, err := gorm.Open(sqlite.Open("file:seedtest?mode=memory&cache=shared"), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	if err := Migrate(db); err != nil {
		t.Fatalf("migrate: %v", err)
	}
	return db
}

func TestSeed(t *testing.T) {
	db := newSeedTestDB(t)

	if err := Seed(db, plainEnc{}); err != nil {
		t.Fatalf("seed: %v", err)
	}

	var users int64
	db.Model(&models.User{}).Count(&users)
	if users != 5 {
		t.Errorf("expected 5 demo users, got %d", users)
	}

	var convs []models.Conversation
	db.Order("id ASC").Find(&convs)
	if len(convs) != 2 {
		t.Fatalf("expected 2 demo conversations, got %d", len(convs))
	}
	if convs[0].IsGroup {
		t.Error("first demo conversation must be direct")
	}
	if !convs[1].IsGroup || convs[1].Name != "Project Team" {
		t.Errorf("second demo conversation = %+v, want group named Project Team", convs[1])
	}
	for _, conv := range convs {
		if conv.LastMessageAt == nil {
			t.Errorf("conversation %d missing last_message_at", conv.ID)
		}
	}

	var msgs []models.Message
	db.Where("conversation_id = ?", convs[0].ID).Find(&msgs)
	if len(msgs) != 4 {
		t.Errorf("expected 4 direct messages, got %d", len(msgs))
	}
	for _, m := range msgs {
		if m.Ciphertext == "" || m.Ciphertext[:4] != "enc:" {
			t.Errorf("message %d not stored through the encrypter: %q", m.ID, m.Ciphertext)
		}
	}

	// Seeding twice must not duplicate anything.
	if err := Seed(db, plainEnc{}); err != nil {
		t.Fatalf("second seed: %v", err)
	}
	db.Model(&models.User{}).Count(&users)
	if users != 5 {
		t.Errorf("second seed duplicated users: %d", users)
	}
}
