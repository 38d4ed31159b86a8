package chat

import (
	"fmt"

	"gorm.io/gorm"

	"chat-server/internal/models"
)

// MessageLog is the append-only per-conversation message store. Bodies are
// opaque ciphertext here; encryption and decryption happen in the Service.
type MessageLog struct {
	db    *gorm.DB
	now   Clock
	locks *lockTable
}

func NewMessageLog(db *gorm.DB, now Clock) *MessageLog {
	return &MessageLog{db: db, now: now, locks: newLockTable()}
}

// Append stores a message and bumps the conversation's last_message_at in one
// transaction: either both land or neither does. The timestamp is assigned
// here, under a per-conversation lock so concurrent appends to the same
// conversation cannot interleave their two writes.
func (l *MessageLog) Append(conversationID, senderID uint, ciphertext string) (models.Message, error) {
	var msg models.Message
	if ciphertext == "" {
		return msg, ErrEmptyMessage
	}

	unlock := l.locks.lock(convKey(conversationID))
	defer unlock()

	err := l.db.Transaction(func(tx *gorm.DB) error {
		var conv models.Conversation
		if err := tx.First(&conv, conversationID).Error; err != nil {
			if err == gorm.ErrRecordNotFound {
				return ErrUnknownConversation
			}
			return fmt.Errorf("find conversation: %w", err)
		}

		msg = models.Message{
			ConversationID: conversationID,
			SenderID:       senderID,
			Ciphertext:     ciphertext,
			Timestamp:      l.now(),
		}
		if err := tx.Create(&msg).Error; err != nil {
			return fmt.Errorf("insert message: %w", err)
		}

		return tx.Model(&models.Conversation{}).
			Where("id = ?", conversationID).
			Update("last_message_at", msg.Timestamp).Error
	})
	if err != nil {
		return models.Message{}, err
	}
	return msg, nil
}

// Fetch returns every message in the conversation ascending by (timestamp, id);
// the id tie-break keeps ordering stable for messages in the same second.
func (l *MessageLog) Fetch(conversationID uint) ([]models.Message, error) {
	var msgs []models.Message
	err := l.db.
		Where("conversation_id = ?", conversationID).
		Order("timestamp ASC, id ASC").
		Find(&msgs).Error
	if err != nil {
		return nil, fmt.Errorf("fetch messages: %w", err)
	}
	return msgs, nil
}

// Last returns the most recent message of a conversation, if any.
func (l *MessageLog) Last(conversationID uint) (models.Message, bool, error) {
	var msg models.Message
	err := l.db.
		Where("conversation_id = ?", conversationID).
		Order("timestamp DESC, id DESC").
		First(&msg).Error
	if err != nil {
		if err == gorm.ErrRecordNotFound {
			return msg, false, nil
		}
		return msg, false, fmt.Errorf("fetch last message: %w", err)
	}
	return msg, true, nil
}
