package database

import (
	"fmt"
	"time"

	"golang.org/x/crypto/bcrypt"
	"gorm.io/gorm"

	"chat-server/internal/models"
)

// Encrypter is satisfied by the crypto.Cipher; seed messages are stored
// encrypted like everything else.
type Encrypter interface {
	Encrypt(plaintext string) (string, error)
}

type seedMsg struct {
	sender string
	body   string
	age    time.Duration
}

// Seed populates a fresh database with demo users and two sample
// conversations. It is a no-op when any user already exists.
func Seed(db *gorm.DB, enc Encrypter) error {
	var count int64
	if err := db.Model(&models.User{}).Count(&count).Error; err != nil {
		return fmt.Errorf("seed: count users: %w", err)
	}
	if count > 0 {
		return nil
	}

	now := time.Now().UTC().Unix()

	users := map[string]*models.User{}
	for _, name := range []string{"alice", "boby", "ryan", "samy", "ted"} {
		hash, err := bcrypt.GenerateFromPassword([]byte(name+"-demo"), bcrypt.DefaultCost)
		if err != nil {
			return fmt.Errorf("seed: hash password: %w", err)
		}
		u := &models.User{
			Username:     name,
			PasswordHash: string(hash),
			Timezone:     "UTC",
			CreatedAt:    now,
		}
		if err := db.Create(u).Error; err != nil {
			return fmt.Errorf("seed: create user %s: %w", name, err)
		}
		users[name] = u
	}

	directMsgs := []seedMsg{
		{"alice", "Hi Boby, how are you today?", 10 * time.Minute},
		{"boby", "I'm great! Just finishing up some work.", 8 * time.Minute},
		{"alice", "Can we meet later?", 5 * time.Minute},
		{"boby", "Sure, how about 6pm?", 3 * time.Minute},
	}
	direct := []*models.User{users["alice"], users["boby"]}
	if err := seedConversation(db, enc, "", false, direct, users, directMsgs, now); err != nil {
		return err
	}

	groupMsgs := []seedMsg{
		{"alice", "Welcome to the project team chat!", 48 * time.Hour},
		{"ryan", "Thanks for adding me!", 44 * time.Hour},
		{"ted", "Great to be here.", 43 * time.Hour},
		{"alice", "Meeting tomorrow at 10am", 3 * time.Hour},
		{"ryan", "I'll be there", 2 * time.Hour},
	}
	group := []*models.User{users["alice"], users["ryan"], users["ted"]}
	return seedConversation(db, enc, "Project Team", true, group, users, groupMsgs, now)
}

func seedConversation(db *gorm.DB, enc Encrypter, name string, isGroup bool, members []*models.User, users map[string]*models.User, msgs []seedMsg, now int64) error {
	return db.Transaction(func(tx *gorm.DB) error {
		conv := models.Conversation{Name: name, IsGroup: isGroup, CreatedAt: now}
		if err := tx.Create(&conv).Error; err != nil {
			return fmt.Errorf("seed: create conversation: %w", err)
		}
		for _, m := range members {
			part := models.ConversationParticipant{
				ConversationID: conv.ID,
				UserID:         m.ID,
				JoinedAt:       now,
			}
			if err := tx.Create(&part).Error; err != nil {
				return fmt.Errorf("seed: add participant: %w", err)
			}
		}

		var last int64
		for _, m := range msgs {
			ciphertext, err := enc.Encrypt(m.body)
			if err != nil {
				return fmt.Errorf("seed: encrypt message: %w", err)
			}
			ts := now - int64(m.age/time.Second)
			msg := models.Message{
				ConversationID: conv.ID,
				SenderID:       users[m.sender].ID,
				Ciphertext:     ciphertext,
				Timestamp:      ts,
			}
			if err := tx.Create(&msg).Error; err != nil {
				return fmt.Errorf("seed: insert message: %w", err)
			}
			if ts > last {
				last = ts
			}
		}

		if last > 0 {
			if err := tx.Model(&models.Conversation{}).
				Where("id = ?", conv.ID).
				Update("last_message_at", last).Error; err != nil {
				return fmt.Errorf("seed: set last_message_at: %w", err)
			}
		}
		return nil
	})
}
