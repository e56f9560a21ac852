package live

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/gorilla/websocket"

	"github.com/zhouzirui/z-helpdesk/backend/internal/model/chat"
	"github.com/zhouzirui/z-helpdesk/backend/internal/observability"
	chatService "github.com/zhouzirui/z-helpdesk/backend/internal/service/chat"
)

const (
	readTimeout  = 60 * time.Second
	writeTimeout = 10 * time.Second
	pingInterval = 54 * time.Second
	maxFrameSize = 64 << 10
)

// Replier produces the reply for one customer message.
type Replier interface {
	Reply(ctx context.Context, req chat.ResponderRequest) (chat.ResponderResult, error)
}

// WebSocketHandler 实时聊天通道处理器
type WebSocketHandler struct {
	replier  Replier
	upgrader websocket.Upgrader
	logger   *slog.Logger
}

// NewWebSocketHandler 创建WebSocket处理器
func NewWebSocketHandler(replier Replier, logger *slog.Logger) *WebSocketHandler {
	if logger == nil {
		logger = slog.Default()
	}
	return &WebSocketHandler{
		replier: replier,
		logger:  logger.With("component", "live"),
		upgrader: websocket.Upgrader{
			CheckOrigin: func(r *http.Request) bool {
				return true
			},
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
		},
	}
}

// RegisterWebSocketRoutes 注册WebSocket路由
func (h *WebSocketHandler) RegisterWebSocketRoutes(r chi.Router) {
	r.Get("/ws/chat/{sessionID}", h.handleWebSocket)
}

// handleWebSocket 处理WebSocket连接，同一连接上的消息按到达顺序依次回复
func (h *WebSocketHandler) handleWebSocket(w http.ResponseWriter, r *http.Request) {
	sessionID := chi.URLParam(r, "sessionID")
	if sessionID == "" {
		http.Error(w, "sessionID is required", http.StatusBadRequest)
		return
	}

	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.logger.Warn("upgrade failed", "error", err)
		return
	}
	defer conn.Close()

	logger := observability.LoggerFromContext(r.Context(), h.logger).With("session_id", sessionID)
	logger.Info("live connection opened")

	ctx, cancel := context.WithCancel(r.Context())
	defer cancel()

	conn.SetReadLimit(maxFrameSize)
	conn.SetReadDeadline(time.Now().Add(readTimeout))
	conn.SetPongHandler(func(string) error {
		conn.SetReadDeadline(time.Now().Add(readTimeout))
		return nil
	})

	go pingLoop(ctx, conn)

	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				logger.Warn("read error", "error", err)
			} else {
				logger.Info("live connection closed")
			}
			return
		}
		conn.SetReadDeadline(time.Now().Add(readTimeout))

		var frame chat.Frame
		if err := json.Unmarshal(data, &frame); err != nil {
			h.sendError(conn, "", "invalid frame")
			continue
		}

		if frame.SessionID != "" && frame.SessionID != sessionID {
			h.sendError(conn, frame.RequestID, "session mismatch")
			continue
		}

		switch frame.Type {
		case chat.FrameChatMessage:
			h.handleChatMessage(ctx, conn, sessionID, frame)
		default:
			h.sendError(conn, frame.RequestID, "unsupported frame type: "+frame.Type)
		}
	}
}

func (h *WebSocketHandler) handleChatMessage(ctx context.Context, conn *websocket.Conn, sessionID string, frame chat.Frame) {
	result, err := h.replier.Reply(ctx, chat.ResponderRequest{Message: frame.Message, SessionID: sessionID})
	if err != nil {
		message := "failed to generate reply"
		if isClientError(err) {
			message = err.Error()
		} else {
			h.logger.Error("reply failed", "session_id", sessionID, "request_id", frame.RequestID, "error", err)
		}
		h.sendError(conn, frame.RequestID, message)
		return
	}

	h.write(conn, chat.ResultFrame(frame.RequestID, result))
}

func isClientError(err error) bool {
	return errors.Is(err, chatService.ErrSessionRequired) ||
		errors.Is(err, chatService.ErrMessageRequired) ||
		errors.Is(err, chatService.ErrMessageTooLong)
}

func (h *WebSocketHandler) sendError(conn *websocket.Conn, requestID, message string) {
	h.write(conn, chat.Frame{Type: chat.FrameError, RequestID: requestID, Error: message})
}

func (h *WebSocketHandler) write(conn *websocket.Conn, frame chat.Frame) {
	conn.SetWriteDeadline(time.Now().Add(writeTimeout))
	if err := conn.WriteJSON(frame); err != nil {
		h.logger.Warn("write frame failed", "type", frame.Type, "error", err)
	}
}

// pingLoop 定期发送ping消息
func pingLoop(ctx context.Context, conn *websocket.Conn) {
	ticker := time.NewTicker(pingInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(writeTimeout)); err != nil {
				return
			}
		}
	}
}
