package chat

import (
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/zhouzirui/serene/backend/internal/analysis/sentiment"
	"github.com/zhouzirui/serene/backend/internal/auth"
	"github.com/zhouzirui/serene/backend/internal/model/chat"
	chatService "github.com/zhouzirui/serene/backend/internal/service/chat"
	"github.com/zhouzirui/serene/backend/internal/store"
	"github.com/zhouzirui/serene/backend/pkg/utils"
)

const conversationNotFound = "Conversation not found"

// Handler 聊天与情绪分析的HTTP处理器
type Handler struct {
	chatSvc       *chatService.Service
	classifier    chatService.Classifier
	conversations store.Conversations
}

// New 创建聊天处理器
func New(chatSvc *chatService.Service, classifier chatService.Classifier, conversations store.Conversations) *Handler {
	return &Handler{
		chatSvc:       chatSvc,
		classifier:    classifier,
		conversations: conversations,
	}
}

// RegisterPublicRoutes 注册无需登录的调试路由
func (h *Handler) RegisterPublicRoutes(r chi.Router) {
	r.Post("/test_sentiment", h.handleTestSentiment)
	r.Post("/test_chat", h.handleTestChat)
}

// RegisterRoutes 注册需要登录的聊天路由
func (h *Handler) RegisterRoutes(r chi.Router) {
	r.Post("/analyze_sentiment", h.handleAnalyzeSentiment)
	r.Post("/generate_response", h.handleGenerateResponse)
	r.Get("/conversations", h.handleListConversations)
	r.Get("/conversation/{conversationID}", h.handleGetConversation)
}

type messagePayload struct {
	Message *string `json:"message"`
}

// text 返回去除首尾空白后的消息，缺失或为空时 ok 为 false
func (p messagePayload) text() (string, bool) {
	if p.Message == nil {
		return "", false
	}
	msg := strings.TrimSpace(*p.Message)
	return msg, msg != ""
}

// handleTestSentiment 无鉴权的情绪分析
func (h *Handler) handleTestSentiment(w http.ResponseWriter, r *http.Request) {
	var payload messagePayload
	if err := utils.DecodeJSON(r, &payload); err != nil {
		utils.RespondServiceError(w, err, "")
		return
	}
	message, ok := payload.text()
	if !ok {
		utils.RespondError(w, http.StatusBadRequest, "No message provided")
		return
	}

	utils.RespondJSON(w, http.StatusOK, map[string]any{
		"message":   message,
		"sentiment": h.classifier.Analyze(r.Context(), message),
	})
}

// handleTestChat 无鉴权、不落库的完整对话流程
func (h *Handler) handleTestChat(w http.ResponseWriter, r *http.Request) {
	var payload struct {
		messagePayload
		History []chat.Turn `json:"conversation_history"`
	}
	if err := utils.DecodeJSON(r, &payload); err != nil {
		utils.RespondServiceError(w, err, "")
		return
	}
	message, ok := payload.text()
	if !ok {
		utils.RespondError(w, http.StatusBadRequest, "No message provided")
		return
	}

	history := make([]chat.Turn, 0, len(payload.History))
	for _, turn := range payload.History {
		if turn.Content == "" {
			continue
		}
		if turn.Role != chat.SenderUser {
			turn.Role = chat.SenderAssistant
		}
		history = append(history, turn)
	}

	result, reply, err := h.chatSvc.Preview(r.Context(), message, history)
	if err != nil {
		utils.RespondServiceError(w, err, "")
		return
	}

	utils.RespondJSON(w, http.StatusOK, map[string]any{
		"message":   message,
		"sentiment": result,
		"response":  reply.Text,
	})
}

// handleAnalyzeSentiment 返回消息的情绪分析结果
func (h *Handler) handleAnalyzeSentiment(w http.ResponseWriter, r *http.Request) {
	var payload messagePayload
	if err := utils.DecodeJSON(r, &payload); err != nil {
		utils.RespondServiceError(w, err, "")
		return
	}
	message, ok := payload.text()
	if !ok {
		utils.RespondError(w, http.StatusBadRequest, "No message provided")
		return
	}

	utils.RespondJSON(w, http.StatusOK, h.classifier.Analyze(r.Context(), message))
}

// handleGenerateResponse 生成回复并保存本轮对话
func (h *Handler) handleGenerateResponse(w http.ResponseWriter, r *http.Request) {
	uid, _ := auth.UserID(r.Context())

	var payload struct {
		messagePayload
		Sentiment      *sentiment.Result `json:"sentiment"`
		ConversationID string            `json:"conversation_id"`
	}
	if err := utils.DecodeJSON(r, &payload); err != nil {
		utils.RespondServiceError(w, err, "")
		return
	}
	message, ok := payload.text()
	if !ok {
		utils.RespondError(w, http.StatusBadRequest, "No message provided")
		return
	}
	if payload.Sentiment != nil && payload.Sentiment.Emotion != "" {
		if err := payload.Sentiment.Validate(); err != nil {
			utils.RespondServiceError(w, err, "")
			return
		}
	}

	result, err := h.chatSvc.Send(r.Context(), chatService.SendRequest{
		UserID:         uid,
		Message:        message,
		ConversationID: strings.TrimSpace(payload.ConversationID),
		Sentiment:      payload.Sentiment,
	})
	if err != nil {
		utils.RespondServiceError(w, err, conversationNotFound)
		return
	}

	utils.RespondJSON(w, http.StatusOK, map[string]string{
		"response":        result.Response,
		"conversation_id": result.ConversationID,
	})
}

// handleListConversations 按更新时间倒序列出会话
func (h *Handler) handleListConversations(w http.ResponseWriter, r *http.Request) {
	uid, _ := auth.UserID(r.Context())

	limit, err := utils.QueryInt(r, "limit", 0)
	if err != nil {
		utils.RespondServiceError(w, err, "")
		return
	}

	conversations, err := h.conversations.ListConversations(r.Context(), uid, limit)
	if err != nil {
		utils.RespondServiceError(w, err, "")
		return
	}
	utils.RespondJSON(w, http.StatusOK, conversations)
}

// handleGetConversation 返回会话及其全部消息
func (h *Handler) handleGetConversation(w http.ResponseWriter, r *http.Request) {
	uid, _ := auth.UserID(r.Context())

	transcript, err := h.conversations.GetConversation(r.Context(), uid, chi.URLParam(r, "conversationID"))
	if err != nil {
		utils.RespondServiceError(w, err, conversationNotFound)
		return
	}
	utils.RespondJSON(w, http.StatusOK, transcript)
}
