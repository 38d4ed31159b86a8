package chat

import (
	"context"
	"fmt"
	"log"
	"time"

	"chat-server/internal/cache"
	"chat-server/internal/models"
)

// Cipher is the collaborator that encrypts message bodies at rest. The
// process-wide implementation lives in internal/crypto.
type Cipher interface {
	Encrypt(plaintext string) (string, error)
	Decrypt(ciphertext string) (string, error)
}

// membershipTTL bounds how long a cached membership verdict is trusted.
// Positive entries can only be invalidated by conversation deletion, which is
// out of scope; negative entries are deleted eagerly when the user is added.
const membershipTTL = 5 * time.Minute

// MessageView is a decrypted message as returned to clients and carried in
// new_message events.
type MessageView struct {
	ID             uint   `json:"id"`
	ConversationID uint   `json:"conversation_id"`
	SenderID       uint   `json:"sender_id"`
	Sender         string `json:"sender"`
	Body           string `json:"message"`
	Timestamp      int64  `json:"timestamp"`
}

// ChatSummary is the conversation-list entry: no message history, just the
// decrypted preview of the most recent message.
type ChatSummary struct {
	ID            uint          `json:"id"`
	IsGroup       bool          `json:"is_group"`
	Name          string        `json:"name,omitempty"`
	CreatedAt     int64         `json:"created_at"`
	LastMessageAt *int64        `json:"last_message_at,omitempty"`
	LastMessage   *MessageView  `json:"last_message,omitempty"`
	Participants  []Participant `json:"participants"`
}

// ChatDetail is a full conversation fetch with decrypted history.
type ChatDetail struct {
	ID            uint          `json:"id"`
	IsGroup       bool          `json:"is_group"`
	Name          string        `json:"name,omitempty"`
	CreatedAt     int64         `json:"created_at"`
	LastMessageAt *int64        `json:"last_message_at,omitempty"`
	Participants  []Participant `json:"participants"`
	Messages      []MessageView `json:"messages"`
}

// Service is the single authorization chokepoint: every conversation read or
// write passes through here, gets checked against current membership, and only
// then reaches the registry or the message log. It also owns the
// encrypt-before-store / decrypt-once-before-fanout boundary.
type Service struct {
	registry *Registry
	log      *MessageLog
	cipher   Cipher
	members  cache.Cache
}

func NewService(registry *Registry, msgLog *MessageLog, cipher Cipher, members cache.Cache) *Service {
	return &Service{registry: registry, log: msgLog, cipher: cipher, members: members}
}

// Registry exposes the underlying registry for wiring that needs direct
// lookups (seeding, user listings).
func (s *Service) Registry() *Registry { return s.registry }

// Authorize returns nil iff the user is currently a member of the
// conversation. Denials are logged; they are the security-relevant event of
// this system.
func (s *Service) Authorize(ctx context.Context, userID, conversationID uint) error {
	key := memberKey(conversationID, userID)
	if v, err := s.members.Get(ctx, key); err == nil {
		if v == "1" {
			return nil
		}
		log.Printf("access denied: user %d on conversation %d", userID, conversationID)
		return ErrAccessDenied
	}

	ok, err := s.registry.IsMember(conversationID, userID)
	if err != nil {
		return err
	}

	v := "0"
	if ok {
		v = "1"
	}
	_ = s.members.Set(ctx, key, v, membershipTTL)

	if !ok {
		log.Printf("access denied: user %d on conversation %d", userID, conversationID)
		return ErrAccessDenied
	}
	return nil
}

// CreateChat creates a conversation for the calling user. The caller is
// always included even when omitted from the participant list.
func (s *Service) CreateChat(creator string, participants []string) (uint, error) {
	names := make([]string, 0, len(participants)+1)
	names = append(names, participants...)
	names = append(names, creator)
	return s.registry.CreateConversation(names...)
}

// ListChats returns conversation summaries for the user, most recently active
// first, each with a decrypted last-message preview.
func (s *Service) ListChats(username string) ([]ChatSummary, error) {
	ids, err := s.registry.ListConversations(username)
	if err != nil {
		return nil, err
	}

	summaries := make([]ChatSummary, 0, len(ids))
	for _, id := range ids {
		conv, err := s.registry.Conversation(id)
		if err != nil {
			return nil, err
		}
		parts, err := s.registry.Participants(id)
		if err != nil {
			return nil, err
		}

		summary := ChatSummary{
			ID:            conv.ID,
			IsGroup:       conv.IsGroup,
			Name:          conv.Name,
			CreatedAt:     conv.CreatedAt,
			LastMessageAt: conv.LastMessageAt,
			Participants:  parts,
		}

		if last, ok, err := s.log.Last(id); err != nil {
			return nil, err
		} else if ok {
			view, err := s.decrypt(last, parts)
			if err != nil {
				return nil, err
			}
			summary.LastMessage = &view
		}

		summaries = append(summaries, summary)
	}
	return summaries, nil
}

// GetChat returns the full conversation, decrypted, for a member.
func (s *Service) GetChat(ctx context.Context, userID, conversationID uint) (ChatDetail, error) {
	if err := s.Authorize(ctx, userID, conversationID); err != nil {
		return ChatDetail{}, err
	}

	conv, err := s.registry.Conversation(conversationID)
	if err != nil {
		return ChatDetail{}, err
	}
	parts, err := s.registry.Participants(conversationID)
	if err != nil {
		return ChatDetail{}, err
	}
	msgs, err := s.log.Fetch(conversationID)
	if err != nil {
		return ChatDetail{}, err
	}

	views := make([]MessageView, 0, len(msgs))
	for _, m := range msgs {
		view, err := s.decrypt(m, parts)
		if err != nil {
			return ChatDetail{}, err
		}
		views = append(views, view)
	}

	return ChatDetail{
		ID:            conv.ID,
		IsGroup:       conv.IsGroup,
		Name:          conv.Name,
		CreatedAt:     conv.CreatedAt,
		LastMessageAt: conv.LastMessageAt,
		Participants:  parts,
		Messages:      views,
	}, nil
}

// SendMessage encrypts and appends a message for a member. The returned view
// carries the plaintext: it is decrypted exactly once, here, for both the
// sender's confirmation and the room fan-out. Ciphertext never leaves the
// store.
func (s *Service) SendMessage(ctx context.Context, userID uint, username string, conversationID uint, plaintext string) (MessageView, error) {
	if plaintext == "" {
		return MessageView{}, ErrEmptyMessage
	}
	if err := s.Authorize(ctx, userID, conversationID); err != nil {
		return MessageView{}, err
	}

	ciphertext, err := s.cipher.Encrypt(plaintext)
	if err != nil {
		return MessageView{}, fmt.Errorf("encrypt message: %w", err)
	}

	msg, err := s.log.Append(conversationID, userID, ciphertext)
	if err != nil {
		return MessageView{}, err
	}

	return MessageView{
		ID:             msg.ID,
		ConversationID: msg.ConversationID,
		SenderID:       userID,
		Sender:         username,
		Body:           plaintext,
		Timestamp:      msg.Timestamp,
	}, nil
}

// AddUserToChat adds username to the conversation on behalf of a member.
func (s *Service) AddUserToChat(ctx context.Context, userID, conversationID uint, username string) error {
	if err := s.Authorize(ctx, userID, conversationID); err != nil {
		return err
	}
	if err := s.registry.AddParticipant(conversationID, username); err != nil {
		return err
	}

	// The new member may have a cached negative verdict.
	if user, err := s.registry.UserByUsername(username); err == nil {
		_ = s.members.Delete(ctx, memberKey(conversationID, user.ID))
	}
	return nil
}

// RenameChat renames a group conversation on behalf of a member.
func (s *Service) RenameChat(ctx context.Context, userID, conversationID uint, name string) error {
	if err := s.Authorize(ctx, userID, conversationID); err != nil {
		return err
	}
	return s.registry.Rename(conversationID, name)
}

func (s *Service) decrypt(m models.Message, parts []Participant) (MessageView, error) {
	body, err := s.cipher.Decrypt(m.Ciphertext)
	if err != nil {
		return MessageView{}, fmt.Errorf("decrypt message %d: %w", m.ID, err)
	}

	sender := ""
	for _, p := range parts {
		if p.UserID == m.SenderID {
			sender = p.Username
			break
		}
	}
	if sender == "" {
		// Sender is a former participant; fall back to a direct lookup.
		if u, err := s.registry.UserByID(m.SenderID); err == nil {
			sender = u.Username
		}
	}

	return MessageView{
		ID:             m.ID,
		ConversationID: m.ConversationID,
		SenderID:       m.SenderID,
		Sender:         sender,
		Body:           body,
		Timestamp:      m.Timestamp,
	}, nil
}

func memberKey(conversationID, userID uint) string {
	return fmt.Sprintf("member:%d:%d", conversationID, userID)
}
