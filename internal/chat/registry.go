package chat

import (
	"fmt"
	"log"

	"gorm.io/gorm"

	"chat-server/internal/models"
)

// MaxParticipants caps conversation membership.
const MaxParticipants = 16

// Participant is the membership view returned to callers.
type Participant struct {
	UserID   uint   `json:"id"`
	Username string `json:"username"`
	JoinedAt int64  `json:"joined_at"`
}

// Registry owns conversation existence, membership and naming. It is the only
// writer of the conversations and conversation_participants tables.
type Registry struct {
	db    *gorm.DB
	now   Clock
	locks *lockTable
}

func NewRegistry(db *gorm.DB, now Clock) *Registry {
	return &Registry{db: db, now: now, locks: newLockTable()}
}

// CreateConversation creates a conversation between the given users and
// returns its id. Creating a direct conversation is idempotent: if the two
// users already share one, its id is returned instead of a duplicate. The
// check-then-create runs under a lock keyed on the user pair so concurrent
// calls for the same pair cannot both create.
func (r *Registry) CreateConversation(usernames ...string) (uint, error) {
	names := dedup(usernames)
	if len(names) < 2 {
		return 0, ErrTooFewParticipants
	}
	if len(names) > MaxParticipants {
		return 0, ErrTooManyParticipants
	}

	users, err := r.resolveUsers(names)
	if err != nil {
		return 0, err
	}

	if len(users) == 2 {
		unlock := r.locks.lock(pairKey(users[0].ID, users[1].ID))
		defer unlock()

		if id, ok, err := r.directConversationID(users[0].ID, users[1].ID); err != nil {
			return 0, err
		} else if ok {
			return id, nil
		}
	}

	now := r.now()
	conv := models.Conversation{
		IsGroup:   len(users) > 2,
		CreatedAt: now,
	}

	err = r.db.Transaction(func(tx *gorm.DB) error {
		if err := tx.Create(&conv).Error; err != nil {
			return err
		}
		parts := make([]models.ConversationParticipant, 0, len(users))
		for _, u := range users {
			parts = append(parts, models.ConversationParticipant{
				ConversationID: conv.ID,
				UserID:         u.ID,
				JoinedAt:       now,
			})
		}
		return tx.Create(&parts).Error
	})
	if err != nil {
		return 0, fmt.Errorf("create conversation: %w", err)
	}

	return conv.ID, nil
}

// AddParticipant adds a user to an existing conversation. Adding a user who
// is already a member is a no-op. When a direct conversation gains a third
// member it becomes a group chat in the same transaction as the insert, and
// it never flips back.
func (r *Registry) AddParticipant(conversationID uint, username string) error {
	var user models.User
	if err := r.db.Where("username = ?", username).First(&user).Error; err != nil {
		if err == gorm.ErrRecordNotFound {
			return fmt.Errorf("%w: %s", ErrUnknownUser, username)
		}
		return fmt.Errorf("find user: %w", err)
	}

	unlock := r.locks.lock(convKey(conversationID))
	defer unlock()

	return r.db.Transaction(func(tx *gorm.DB) error {
		var conv models.Conversation
		if err := tx.First(&conv, conversationID).Error; err != nil {
			if err == gorm.ErrRecordNotFound {
				return ErrUnknownConversation
			}
			return fmt.Errorf("find conversation: %w", err)
		}

		var existing int64
		if err := tx.Model(&models.ConversationParticipant{}).
			Where("conversation_id = ? AND user_id = ?", conversationID, user.ID).
			Count(&existing).Error; err != nil {
			return fmt.Errorf("check membership: %w", err)
		}
		if existing > 0 {
			return nil
		}

		var count int64
		if err := tx.Model(&models.ConversationParticipant{}).
			Where("conversation_id = ?", conversationID).
			Count(&count).Error; err != nil {
			return fmt.Errorf("count participants: %w", err)
		}
		if count >= MaxParticipants {
			return ErrCapacityExceeded
		}

		part := models.ConversationParticipant{
			ConversationID: conversationID,
			UserID:         user.ID,
			JoinedAt:       r.now(),
		}
		if err := tx.Create(&part).Error; err != nil {
			return fmt.Errorf("add participant: %w", err)
		}

		if !conv.IsGroup && count == 2 {
			log.Printf("conversation %d promoted to group chat", conversationID)
			if err := tx.Model(&models.Conversation{}).
				Where("id = ?", conversationID).
				Update("is_group", true).Error; err != nil {
				return fmt.Errorf("promote to group: %w", err)
			}
		}
		return nil
	})
}

// Rename sets the name of a group chat. Direct chats cannot be named.
func (r *Registry) Rename(conversationID uint, name string) error {
	var conv models.Conversation
	if err := r.db.First(&conv, conversationID).Error; err != nil {
		if err == gorm.ErrRecordNotFound {
			return ErrUnknownConversation
		}
		return fmt.Errorf("find conversation: %w", err)
	}
	if !conv.IsGroup {
		return ErrNotAGroupChat
	}
	if err := r.db.Model(&models.Conversation{}).
		Where("id = ?", conversationID).
		Update("name", name).Error; err != nil {
		return fmt.Errorf("rename conversation: %w", err)
	}
	return nil
}

// ListConversations returns the ids of all conversations the user belongs to,
// most recently active first; conversations with no messages sort last. An
// unknown or conversation-less user gets an empty list, not an error.
func (r *Registry) ListConversations(username string) ([]uint, error) {
	var user models.User
	if err := r.db.Where("username = ?", username).First(&user).Error; err != nil {
		if err == gorm.ErrRecordNotFound {
			return nil, nil
		}
		return nil, fmt.Errorf("find user: %w", err)
	}

	var ids []uint
	err := r.db.Model(&models.ConversationParticipant{}).
		Joins("JOIN conversations ON conversations.id = conversation_participants.conversation_id").
		Where("conversation_participants.user_id = ?", user.ID).
		Order("COALESCE(conversations.last_message_at, 0) DESC").
		Pluck("conversation_participants.conversation_id", &ids).Error
	if err != nil {
		return nil, fmt.Errorf("list conversations: %w", err)
	}
	return ids, nil
}

// Conversation fetches a single conversation record.
func (r *Registry) Conversation(conversationID uint) (models.Conversation, error) {
	var conv models.Conversation
	if err := r.db.First(&conv, conversationID).Error; err != nil {
		if err == gorm.ErrRecordNotFound {
			return conv, ErrUnknownConversation
		}
		return conv, fmt.Errorf("find conversation: %w", err)
	}
	return conv, nil
}

// Participants returns the members of a conversation with their usernames.
func (r *Registry) Participants(conversationID uint) ([]Participant, error) {
	if _, err := r.Conversation(conversationID); err != nil {
		return nil, err
	}

	var parts []Participant
	err := r.db.Model(&models.ConversationParticipant{}).
		Select("users.id AS user_id, users.username, conversation_participants.joined_at").
		Joins("JOIN users ON users.id = conversation_participants.user_id").
		Where("conversation_participants.conversation_id = ?", conversationID).
		Scan(&parts).Error
	if err != nil {
		return nil, fmt.Errorf("list participants: %w", err)
	}
	return parts, nil
}

// UserByUsername looks up a user by unique username.
func (r *Registry) UserByUsername(username string) (models.User, error) {
	var user models.User
	if err := r.db.Where("username = ?", username).First(&user).Error; err != nil {
		if err == gorm.ErrRecordNotFound {
			return user, fmt.Errorf("%w: %s", ErrUnknownUser, username)
		}
		return user, fmt.Errorf("find user: %w", err)
	}
	return user, nil
}

// UserByID looks up a user by id.
func (r *Registry) UserByID(id uint) (models.User, error) {
	var user models.User
	if err := r.db.First(&user, id).Error; err != nil {
		if err == gorm.ErrRecordNotFound {
			return user, ErrUnknownUser
		}
		return user, fmt.Errorf("find user: %w", err)
	}
	return user, nil
}

// IsMember reports whether the user currently belongs to the conversation.
func (r *Registry) IsMember(conversationID, userID uint) (bool, error) {
	var count int64
	err := r.db.Model(&models.ConversationParticipant{}).
		Where("conversation_id = ? AND user_id = ?", conversationID, userID).
		Count(&count).Error
	if err != nil {
		return false, fmt.Errorf("check membership: %w", err)
	}
	return count > 0, nil
}

// directConversationID looks for an existing direct conversation containing
// precisely the two given users.
func (r *Registry) directConversationID(a, b uint) (uint, bool, error) {
	var row struct{ ConversationID uint }
	res := r.db.Model(&models.ConversationParticipant{}).
		Select("conversation_participants.conversation_id").
		Joins("JOIN conversations ON conversations.id = conversation_participants.conversation_id").
		Where("conversations.is_group = ?", false).
		Where("conversation_participants.user_id IN ?", []uint{a, b}).
		Group("conversation_participants.conversation_id").
		Having("COUNT(conversation_participants.user_id) = 2").
		Limit(1).
		Scan(&row)
	if res.Error != nil {
		return 0, false, fmt.Errorf("find direct conversation: %w", res.Error)
	}
	if res.RowsAffected == 0 {
		return 0, false, nil
	}

	// Direct conversations hold exactly two members by invariant, but verify
	// before reusing the id.
	var total int64
	if err := r.db.Model(&models.ConversationParticipant{}).
		Where("conversation_id = ?", row.ConversationID).
		Count(&total).Error; err != nil {
		return 0, false, fmt.Errorf("count participants: %w", err)
	}
	if total != 2 {
		return 0, false, nil
	}
	return row.ConversationID, true, nil
}

func (r *Registry) resolveUsers(names []string) ([]models.User, error) {
	var users []models.User
	if err := r.db.Where("username IN ?", names).Find(&users).Error; err != nil {
		return nil, fmt.Errorf("resolve users: %w", err)
	}
	if len(users) != len(names) {
		found := make(map[string]bool, len(users))
		for _, u := range users {
			found[u.Username] = true
		}
		for _, n := range names {
			if !found[n] {
				return nil, fmt.Errorf("%w: %s", ErrUnknownUser, n)
			}
		}
	}
	return users, nil
}

func dedup(names []string) []string {
	seen := make(map[string]bool, len(names))
	out := make([]string, 0, len(names))
	for _, n := range names {
		if n == "" || seen[n] {
			continue
		}
		seen[n] = true
		out = append(out, n)
	}
	return out
}

func pairKey(a, b uint) string {
	if a > b {
		a, b = b, a
	}
	return fmt.Sprintf("direct:%d:%d", a, b)
}

func convKey(id uint) string {
	return fmt.Sprintf("conv:%d", id)
}
