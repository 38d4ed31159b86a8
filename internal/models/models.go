package models

// Timestamps are unix seconds (UTC) throughout, assigned server-side.

type User struct {
	ID           uint   `gorm:"primaryKey" json:"id"`
	Username     string `gorm:"size:256;uniqueIndex;not null" json:"username"`
	PasswordHash string `gorm:"size:255;not null" json:"-"`
	Timezone     string `gorm:"size:64;not null;default:UTC" json:"timezone"`
	CreatedAt    int64  `json:"created_at"`
}

type Conversation struct {
	ID            uint   `gorm:"primaryKey" json:"id"`
	Name          string `gorm:"type:text" json:"name,omitempty"`
	IsGroup       bool   `gorm:"not null;default:false" json:"is_group"`
	CreatedAt     int64  `gorm:"not null" json:"created_at"`
	LastMessageAt *int64 `gorm:"index" json:"last_message_at,omitempty"`

	Participants []ConversationParticipant `json:"-"`
}

// ConversationParticipant is the membership edge. The composite primary key
// makes double-joins impossible at the storage layer.
type ConversationParticipant struct {
	ConversationID uint  `gorm:"primaryKey;autoIncrement:false" json:"conversation_id"`
	UserID         uint  `gorm:"primaryKey;autoIncrement:false;index" json:"user_id"`
	JoinedAt       int64 `gorm:"not null" json:"joined_at"`
}

// Message rows are immutable once written. Ciphertext holds the encrypted
// body; plaintext never reaches this layer.
type Message struct {
	ID             uint   `gorm:"primaryKey" json:"id"`
	ConversationID uint   `gorm:"index:idx_msg_conv_time;not null" json:"conversation_id"`
	SenderID       uint   `gorm:"index;not null" json:"sender_id"`
	Ciphertext     string `gorm:"type:text;not null" json:"-"`
	Timestamp      int64  `gorm:"index:idx_msg_conv_time;not null" json:"timestamp"`
}
