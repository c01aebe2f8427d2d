package models

import (
	"time"
)

// Conversation 对话表
type Conversation struct {
	ConversationID uint      `gorm:"primaryKey;column:conversation_id" json:"conversation_id"`
	UserID         uint      `gorm:"column:user_id;not null;index" json:"user_id"`
	Title          string    `gorm:"size:200" json:"title"`
	CreatedAt      time.Time `gorm:"column:created_at;not null" json:"created_at"`
	UpdatedAt      time.Time `gorm:"column:updated_at" json:"updated_at"`

	Messages []ConversationMessage `gorm:"foreignKey:ConversationID;constraint:OnDelete:CASCADE" json:"-"`
}

func (Conversation) TableName() string {
	return "conversations"
}

// ConversationMessage 对话消息表
// Metadata存储助手回复引用的来源（JSON）
type ConversationMessage struct {
	MessageID      uint      `gorm:"primaryKey;column:message_id" json:"message_id"`
	ConversationID uint      `gorm:"column:conversation_id;not null;index" json:"conversation_id"`
	Role           string    `gorm:"size:20;not null" json:"role"` // user | assistant
	Content        string    `gorm:"type:text;not null" json:"content"`
	Metadata       string    `gorm:"type:text" json:"metadata,omitempty"`
	CreatedAt      time.Time `gorm:"column:created_at;not null" json:"created_at"`
}

func (ConversationMessage) TableName() string {
	return "conversation_messages"
}
