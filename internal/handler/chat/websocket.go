package chat

import (
	"context"
	"errors"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog/log"

	"github.com/zhouzirui/serene/backend/internal/auth"
	"github.com/zhouzirui/serene/backend/internal/model"
	chatService "github.com/zhouzirui/serene/backend/internal/service/chat"
)

const (
	pongWait     = 60 * time.Second
	pingInterval = 25 * time.Second
	writeWait    = 10 * time.Second
)

// WebSocketHandler 实时聊天的 WebSocket 处理器
type WebSocketHandler struct {
	chatSvc    *chatService.Service
	classifier chatService.Classifier
	verifier   auth.Verifier
	upgrader   websocket.Upgrader
}

// NewWebSocketHandler 创建WebSocket处理器，allowedOrigins 为空时不校验来源
func NewWebSocketHandler(chatSvc *chatService.Service, classifier chatService.Classifier, verifier auth.Verifier, allowedOrigins []string) *WebSocketHandler {
	return &WebSocketHandler{
		chatSvc:    chatSvc,
		classifier: classifier,
		verifier:   verifier,
		upgrader: websocket.Upgrader{
			CheckOrigin:     originChecker(allowedOrigins),
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
		},
	}
}

// RegisterWebSocketRoutes 注册WebSocket路由。浏览器无法设置请求头，因此也接受 ?token= 查询参数
func (h *WebSocketHandler) RegisterWebSocketRoutes(r chi.Router) {
	r.Get("/chat/ws", h.handleWebSocket)
}

func originChecker(allowed []string) func(r *http.Request) bool {
	if len(allowed) == 0 {
		return func(*http.Request) bool { return true }
	}
	return func(r *http.Request) bool {
		origin := r.Header.Get("Origin")
		if origin == "" {
			return true
		}
		for _, o := range allowed {
			if strings.EqualFold(o, origin) {
				return true
			}
		}
		return false
	}
}

type inboundMessage struct {
	Message        string `json:"message"`
	ConversationID string `json:"conversation_id"`
}

type outgoingMessage struct {
	Type           string `json:"type"`
	ConversationID string `json:"conversation_id,omitempty"`
	Data           any    `json:"data,omitempty"`
	Timestamp      int64  `json:"timestamp"`
}

// wsConn serialises data frames; control frames go through WriteControl, which gorilla allows concurrently.
type wsConn struct {
	*websocket.Conn
	mu sync.Mutex
}

func (c *wsConn) send(msg outgoingMessage) error {
	msg.Timestamp = time.Now().UnixMilli()
	c.mu.Lock()
	defer c.mu.Unlock()
	_ = c.SetWriteDeadline(time.Now().Add(writeWait))
	return c.WriteJSON(msg)
}

func (c *wsConn) sendError(message string) {
	if err := c.send(outgoingMessage{Type: "error", Data: map[string]string{"message": message}}); err != nil {
		log.Debug().Err(err).Msg("websocket error frame not delivered")
	}
}

// handleWebSocket 处理WebSocket连接
func (h *WebSocketHandler) handleWebSocket(w http.ResponseWriter, r *http.Request) {
	header := r.Header.Get("Authorization")
	if header == "" {
		if token := r.URL.Query().Get("token"); token != "" {
			header = "Bearer " + token
		}
	}
	uid, err := auth.Authenticate(r.Context(), h.verifier, header)
	if err != nil {
		http.Error(w, "Invalid or expired token", http.StatusUnauthorized)
		return
	}

	raw, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Warn().Err(err).Msg("websocket upgrade failed")
		return
	}
	conn := &wsConn{Conn: raw}
	defer conn.Close()

	log.Info().Str("user_id", uid).Msg("websocket connected")

	ctx, cancel := context.WithCancel(r.Context())
	defer cancel()

	_ = conn.SetReadDeadline(time.Now().Add(pongWait))
	conn.SetPongHandler(func(string) error {
		return conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	go h.pingLoop(ctx, conn)

	if err := conn.send(outgoingMessage{Type: "connected"}); err != nil {
		return
	}

	var conversationID string
	for {
		var msg inboundMessage
		if err := conn.ReadJSON(&msg); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				log.Warn().Err(err).Str("user_id", uid).Msg("websocket read error")
			}
			return
		}
		_ = conn.SetReadDeadline(time.Now().Add(pongWait))

		if id := strings.TrimSpace(msg.ConversationID); id != "" {
			conversationID = id
		}
		next, err := h.handleMessage(ctx, conn, uid, conversationID, msg.Message)
		if err != nil {
			return
		}
		conversationID = next
	}
}

// handleMessage 处理一轮对话，返回后续消息沿用的会话 ID。只有连接写失败时返回错误
func (h *WebSocketHandler) handleMessage(ctx context.Context, conn *wsConn, uid, conversationID, text string) (string, error) {
	text = strings.TrimSpace(text)
	if text == "" {
		conn.sendError("No message provided")
		return conversationID, nil
	}

	result := h.classifier.Analyze(ctx, text)
	if err := conn.send(outgoingMessage{Type: "sentiment", ConversationID: conversationID, Data: result}); err != nil {
		return conversationID, err
	}

	sent, err := h.chatSvc.Send(ctx, chatService.SendRequest{
		UserID:         uid,
		Message:        text,
		ConversationID: conversationID,
		Sentiment:      &result,
	})
	switch {
	case errors.Is(err, model.ErrNotFound):
		conn.sendError(conversationNotFound)
		return "", nil
	case err != nil:
		log.Error().Err(err).Str("user_id", uid).Msg("websocket chat turn failed")
		conn.sendError(err.Error())
		return conversationID, nil
	}

	err = conn.send(outgoingMessage{
		Type:           "response",
		ConversationID: sent.ConversationID,
		Data: map[string]any{
			"response": sent.Response,
			"degraded": sent.Degraded,
		},
	})
	return sent.ConversationID, err
}

func (h *WebSocketHandler) pingLoop(ctx context.Context, conn *wsConn) {
	ticker := time.NewTicker(pingInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(writeWait)); err != nil {
				return
			}
		}
	}
}
