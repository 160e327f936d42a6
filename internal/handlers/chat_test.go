package handlers

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"pharmacy-chat-service/internal/mocks"
	"pharmacy-chat-service/internal/models"
	"pharmacy-chat-service/internal/presence"
	"pharmacy-chat-service/internal/repositories"
	"pharmacy-chat-service/internal/ws"
)

func setupChatRouter(handler *ChatHandler, role models.Role) *gin.Engine {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	r.Use(func(c *gin.Context) {
		c.Set("userID", 1)
		c.Set("userRole", string(role))
		c.Next()
	})
	r.GET("/pharmacists/online", handler.ListOnlinePharmacists)
	r.GET("/conversations/:partner_id/messages", handler.GetConversationMessages)
	r.POST("/conversations/:partner_id/messages", handler.PostConversationMessage)
	return r
}

func TestListOnlinePharmacists(t *testing.T) {
	registry := presence.NewRegistry(nil)
	registry.Register(models.PresenceEntry{PharmacistID: 7, DisplayName: "Dr. Singh"}, "conn-a")
	handler := NewChatHandler(new(mocks.MessageRepositoryMock), registry, ws.NewHub(), nil)
	router := setupChatRouter(handler, models.RoleCustomer)

	req := httptest.NewRequest(http.MethodGet, "/pharmacists/online", nil)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	var resp struct {
		Pharmacists []models.PresenceEntry `json:"pharmacists"`
	}
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&resp))
	require.Len(t, resp.Pharmacists, 1)
	assert.Equal(t, 7, resp.Pharmacists[0].PharmacistID)
}

func TestListOnlinePharmacistsEmpty(t *testing.T) {
	handler := NewChatHandler(new(mocks.MessageRepositoryMock), presence.NewRegistry(nil), ws.NewHub(), nil)
	router := setupChatRouter(handler, models.RoleCustomer)

	req := httptest.NewRequest(http.MethodGet, "/pharmacists/online", nil)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	var resp struct {
		Pharmacists []models.PresenceEntry `json:"pharmacists"`
	}
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&resp))
	assert.Empty(t, resp.Pharmacists)
}

func TestListOnlinePharmacistsDefaultContact(t *testing.T) {
	fallback := &models.PresenceEntry{PharmacistID: 99, DisplayName: "Duty pharmacist"}
	handler := NewChatHandler(new(mocks.MessageRepositoryMock), presence.NewRegistry(nil), ws.NewHub(), fallback)
	router := setupChatRouter(handler, models.RoleCustomer)

	req := httptest.NewRequest(http.MethodGet, "/pharmacists/online", nil)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	var resp struct {
		Pharmacists    []models.PresenceEntry `json:"pharmacists"`
		DefaultContact *models.PresenceEntry  `json:"default_contact"`
	}
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&resp))
	assert.Empty(t, resp.Pharmacists)
	require.NotNil(t, resp.DefaultContact)
	assert.Equal(t, 99, resp.DefaultContact.PharmacistID)
}

func TestGetConversationMessagesSuccess(t *testing.T) {
	messageRepo := new(mocks.MessageRepositoryMock)
	handler := NewChatHandler(messageRepo, presence.NewRegistry(nil), ws.NewHub(), nil)
	router := setupChatRouter(handler, models.RoleCustomer)

	messageRepo.On("GetConversationMessages", mock.Anything, 1, 7, repositories.HistoryOptions{}).
		Return([]models.ChatMessage{{ID: 1, CustomerID: 1, PharmacistID: 7, Content: "hi"}}, nil).Once()

	req := httptest.NewRequest(http.MethodGet, "/conversations/7/messages", nil)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	messageRepo.AssertExpectations(t)
}

func TestGetConversationMessagesPharmacistResolvesPair(t *testing.T) {
	messageRepo := new(mocks.MessageRepositoryMock)
	handler := NewChatHandler(messageRepo, presence.NewRegistry(nil), ws.NewHub(), nil)
	router := setupChatRouter(handler, models.RolePharmacist)

	// Caller is pharmacist 1; partner 5 is the customer.
	messageRepo.On("GetConversationMessages", mock.Anything, 5, 1, repositories.HistoryOptions{}).
		Return([]models.ChatMessage{}, nil).Once()

	req := httptest.NewRequest(http.MethodGet, "/conversations/5/messages", nil)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	messageRepo.AssertExpectations(t)
}

func TestGetConversationMessagesPagination(t *testing.T) {
	messageRepo := new(mocks.MessageRepositoryMock)
	handler := NewChatHandler(messageRepo, presence.NewRegistry(nil), ws.NewHub(), nil)
	router := setupChatRouter(handler, models.RoleCustomer)

	messageRepo.On("GetConversationMessages", mock.Anything, 1, 7, repositories.HistoryOptions{BeforeID: 50, Limit: 20}).
		Return([]models.ChatMessage{}, nil).Once()

	req := httptest.NewRequest(http.MethodGet, "/conversations/7/messages?before_id=50&limit=20", nil)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	messageRepo.AssertExpectations(t)
}

func TestGetConversationMessagesInvalidPartner(t *testing.T) {
	handler := NewChatHandler(new(mocks.MessageRepositoryMock), presence.NewRegistry(nil), ws.NewHub(), nil)
	router := setupChatRouter(handler, models.RoleCustomer)

	req := httptest.NewRequest(http.MethodGet, "/conversations/abc/messages", nil)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	require.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestGetConversationMessagesRepoError(t *testing.T) {
	messageRepo := new(mocks.MessageRepositoryMock)
	handler := NewChatHandler(messageRepo, presence.NewRegistry(nil), ws.NewHub(), nil)
	router := setupChatRouter(handler, models.RoleCustomer)

	messageRepo.On("GetConversationMessages", mock.Anything, 1, 7, repositories.HistoryOptions{}).
		Return(([]models.ChatMessage)(nil), assert.AnError).Once()

	req := httptest.NewRequest(http.MethodGet, "/conversations/7/messages", nil)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	require.Equal(t, http.StatusInternalServerError, rec.Code)
	messageRepo.AssertExpectations(t)
}

func TestPostConversationMessageSuccess(t *testing.T) {
	messageRepo := new(mocks.MessageRepositoryMock)
	handler := NewChatHandler(messageRepo, presence.NewRegistry(nil), ws.NewHub(), nil)
	router := setupChatRouter(handler, models.RoleCustomer)

	messageRepo.On("CreateMessage", mock.Anything, 1, 7, models.RoleCustomer, "hi").
		Return(models.ChatMessage{ID: 11, CustomerID: 1, PharmacistID: 7, SenderRole: models.RoleCustomer, Content: "hi"}, nil).Once()

	req := httptest.NewRequest(http.MethodPost, "/conversations/7/messages", bytes.NewBufferString(`{"content":"hi"}`))
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	require.Equal(t, http.StatusCreated, rec.Code)
	messageRepo.AssertExpectations(t)
}

func TestPostConversationMessageStripsMarkup(t *testing.T) {
	messageRepo := new(mocks.MessageRepositoryMock)
	handler := NewChatHandler(messageRepo, presence.NewRegistry(nil), ws.NewHub(), nil)
	router := setupChatRouter(handler, models.RoleCustomer)

	messageRepo.On("CreateMessage", mock.Anything, 1, 7, models.RoleCustomer, "hello").
		Return(models.ChatMessage{ID: 12, Content: "hello"}, nil).Once()

	req := httptest.NewRequest(http.MethodPost, "/conversations/7/messages", bytes.NewBufferString(`{"content":"<script>x</script>hello"}`))
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	require.Equal(t, http.StatusCreated, rec.Code)
	messageRepo.AssertExpectations(t)
}

func TestPostConversationMessageRejectsEmpty(t *testing.T) {
	handler := NewChatHandler(new(mocks.MessageRepositoryMock), presence.NewRegistry(nil), ws.NewHub(), nil)
	router := setupChatRouter(handler, models.RoleCustomer)

	req := httptest.NewRequest(http.MethodPost, "/conversations/7/messages", bytes.NewBufferString(`{"content":"<b></b>"}`))
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	require.Equal(t, http.StatusBadRequest, rec.Code)
}
