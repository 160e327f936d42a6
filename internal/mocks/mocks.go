package mocks

import (
	"context"

	"github.com/stretchr/testify/mock"

	"pharmacy-chat-service/internal/models"
	"pharmacy-chat-service/internal/repositories"
)

type MessageRepositoryMock struct {
	mock.Mock
}

func (m *MessageRepositoryMock) CreateMessage(ctx context.Context, customerID, pharmacistID int, senderRole models.Role, content string) (models.ChatMessage, error) {
	args := m.Called(ctx, customerID, pharmacistID, senderRole, content)
	var msg models.ChatMessage
	if val := args.Get(0); val != nil {
		msg = val.(models.ChatMessage)
	}
	return msg, args.Error(1)
}

func (m *MessageRepositoryMock) GetConversationMessages(ctx context.Context, customerID, pharmacistID int, opts repositories.HistoryOptions) ([]models.ChatMessage, error) {
	args := m.Called(ctx, customerID, pharmacistID, opts)
	var msgs []models.ChatMessage
	if val := args.Get(0); val != nil {
		msgs = val.([]models.ChatMessage)
	}
	return msgs, args.Error(1)
}

func (m *MessageRepositoryMock) GetMessage(ctx context.Context, messageID int) (models.ChatMessage, error) {
	args := m.Called(ctx, messageID)
	var msg models.ChatMessage
	if val := args.Get(0); val != nil {
		msg = val.(models.ChatMessage)
	}
	return msg, args.Error(1)
}

var _ repositories.MessageRepository = (*MessageRepositoryMock)(nil)
