package services

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/paperhub/backend-go/internal/models"
	"gorm.io/gorm"
)

// conversationTitleLimit 从首条消息生成标题时的截断长度
const conversationTitleLimit = 80

// ConversationService 对话持久化服务
type ConversationService struct {
	db *gorm.DB
}

func NewConversationService(db *gorm.DB) *ConversationService {
	return &ConversationService{db: db}
}

// Create 新建对话，标题取自首条消息
func (s *ConversationService) Create(ctx context.Context, userID uint, firstMessage string) (*models.Conversation, error) {
	conversation := &models.Conversation{
		UserID:    userID,
		Title:     excerpt(firstMessage, conversationTitleLimit),
		CreatedAt: time.Now(),
		UpdatedAt: time.Now(),
	}
	if err := s.db.WithContext(ctx).Create(conversation).Error; err != nil {
		return nil, fmt.Errorf("failed to create conversation: %w", err)
	}
	return conversation, nil
}

// Get 取回对话及其消息，非本人对话不可见
func (s *ConversationService) Get(ctx context.Context, userID uint, conversationID uint) (*models.Conversation, []models.ConversationMessage, error) {
	var conversation models.Conversation
	err := s.db.WithContext(ctx).
		Where("conversation_id = ? AND user_id = ?", conversationID, userID).
		First(&conversation).Error
	if err != nil {
		if err == gorm.ErrRecordNotFound {
			return nil, nil, fmt.Errorf("conversation not found")
		}
		return nil, nil, fmt.Errorf("failed to load conversation: %w", err)
	}

	var messages []models.ConversationMessage
	err = s.db.WithContext(ctx).
		Where("conversation_id = ?", conversationID).
		Order("message_id ASC").
		Find(&messages).Error
	if err != nil {
		return nil, nil, fmt.Errorf("failed to load messages: %w", err)
	}

	return &conversation, messages, nil
}

// List 列出用户的对话，按更新时间倒序
func (s *ConversationService) List(ctx context.Context, userID uint) ([]models.Conversation, error) {
	var conversations []models.Conversation
	err := s.db.WithContext(ctx).
		Where("user_id = ?", userID).
		Order("updated_at DESC").
		Find(&conversations).Error
	if err != nil {
		return nil, fmt.Errorf("failed to list conversations: %w", err)
	}
	return conversations, nil
}

// AppendExchange 追加一轮问答，助手消息的metadata携带引用来源
func (s *ConversationService) AppendExchange(ctx context.Context, userID uint, conversationID uint, question, answer string, sources []Source) error {
	var conversation models.Conversation
	err := s.db.WithContext(ctx).
		Where("conversation_id = ? AND user_id = ?", conversationID, userID).
		First(&conversation).Error
	if err != nil {
		if err == gorm.ErrRecordNotFound {
			return fmt.Errorf("conversation not found")
		}
		return fmt.Errorf("failed to load conversation: %w", err)
	}

	metadata := ""
	if len(sources) > 0 {
		encoded, err := json.Marshal(map[string]interface{}{"sources": sources})
		if err == nil {
			metadata = string(encoded)
		}
	}

	messages := []models.ConversationMessage{
		{
			ConversationID: conversationID,
			Role:           "user",
			Content:        question,
			CreatedAt:      time.Now(),
		},
		{
			ConversationID: conversationID,
			Role:           "assistant",
			Content:        answer,
			Metadata:       metadata,
			CreatedAt:      time.Now(),
		},
	}
	if err := s.db.WithContext(ctx).Create(&messages).Error; err != nil {
		return fmt.Errorf("failed to append messages: %w", err)
	}

	return s.db.WithContext(ctx).
		Model(&models.Conversation{}).
		Where("conversation_id = ?", conversationID).
		Update("updated_at", time.Now()).Error
}

// Delete 删除对话及其消息
func (s *ConversationService) Delete(ctx context.Context, userID uint, conversationID uint) error {
	result := s.db.WithContext(ctx).
		Where("conversation_id = ? AND user_id = ?", conversationID, userID).
		Delete(&models.Conversation{})
	if result.Error != nil {
		return fmt.Errorf("failed to delete conversation: %w", result.Error)
	}
	if result.RowsAffected == 0 {
		return fmt.Errorf("conversation not found")
	}

	return s.db.WithContext(ctx).
		Where("conversation_id = ?", conversationID).
		Delete(&models.ConversationMessage{}).Error
}
