package chat

import (
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/zhouzirui/z-helpdesk/backend/internal/model/chat"
	"github.com/zhouzirui/z-helpdesk/backend/internal/observability"
	chatService "github.com/zhouzirui/z-helpdesk/backend/internal/service/chat"
	"github.com/zhouzirui/z-helpdesk/backend/pkg/utils"
)

// 请求体上限，消息正文最长 5000 字符，留足 JSON 与多字节余量。
const maxBodyBytes = 64 << 10

// Handler 客服聊天的HTTP处理器
type Handler struct {
	chatSvc *chatService.Service
}

// New 创建聊天处理器
func New(chatSvc *chatService.Service) *Handler {
	return &Handler{chatSvc: chatSvc}
}

// RegisterRoutes 注册聊天相关的路由
func (h *Handler) RegisterRoutes(r chi.Router) {
	r.Post("/chat/message", h.handleMessage)
	r.Post("/chat/feedback", h.handleFeedback)
	r.Post("/chat/end", h.handleEnd)
	r.Get("/conversations/{sessionID}", h.handleGetConversation)
	r.Post("/conversations/{sessionID}/escalate", h.handleEscalate)
}

// handleMessage 处理用户消息并返回机器人回复
func (h *Handler) handleMessage(w http.ResponseWriter, r *http.Request) {
	var payload chat.ResponderRequest
	if err := utils.DecodeJSON(w, r, maxBodyBytes, &payload); err != nil {
		utils.RespondError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	result, err := h.chatSvc.Reply(r.Context(), payload)
	if err != nil {
		respondServiceError(w, r, err)
		return
	}

	utils.RespondJSON(w, http.StatusOK, result)
}

// handleFeedback 记录对机器人消息的评价
func (h *Handler) handleFeedback(w http.ResponseWriter, r *http.Request) {
	var payload chat.FeedbackRequest
	if err := utils.DecodeJSON(w, r, maxBodyBytes, &payload); err != nil {
		utils.RespondError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	if err := h.chatSvc.RecordFeedback(r.Context(), payload); err != nil {
		respondServiceError(w, r, err)
		return
	}

	utils.RespondJSON(w, http.StatusOK, map[string]string{"status": "feedback recorded"})
}

// handleEnd 结束会话
func (h *Handler) handleEnd(w http.ResponseWriter, r *http.Request) {
	var payload chat.EndRequest
	if err := utils.DecodeJSON(w, r, maxBodyBytes, &payload); err != nil {
		utils.RespondError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	if _, err := h.chatSvc.End(r.Context(), payload); err != nil {
		respondServiceError(w, r, err)
		return
	}

	utils.RespondJSON(w, http.StatusOK, map[string]string{"status": "conversation ended"})
}

func (h *Handler) handleGetConversation(w http.ResponseWriter, r *http.Request) {
	conv, err := h.chatSvc.Get(r.Context(), chi.URLParam(r, "sessionID"))
	if err != nil {
		respondServiceError(w, r, err)
		return
	}
	utils.RespondJSON(w, http.StatusOK, conv)
}

// handleEscalate 人工转接，reason 可为空
func (h *Handler) handleEscalate(w http.ResponseWriter, r *http.Request) {
	var payload struct {
		Reason string `json:"reason"`
	}
	if r.ContentLength != 0 {
		if err := utils.DecodeJSON(w, r, maxBodyBytes, &payload); err != nil {
			utils.RespondError(w, http.StatusBadRequest, "invalid request body")
			return
		}
	}

	if _, err := h.chatSvc.Escalate(r.Context(), chi.URLParam(r, "sessionID"), payload.Reason); err != nil {
		respondServiceError(w, r, err)
		return
	}

	utils.RespondJSON(w, http.StatusOK, map[string]string{"status": "escalated"})
}

func respondServiceError(w http.ResponseWriter, r *http.Request, err error) {
	switch {
	case errors.Is(err, chatService.ErrSessionNotFound), errors.Is(err, chatService.ErrMessageNotFound):
		utils.RespondError(w, http.StatusNotFound, err.Error())
	case errors.Is(err, chatService.ErrSessionRequired),
		errors.Is(err, chatService.ErrMessageRequired),
		errors.Is(err, chatService.ErrMessageTooLong),
		errors.Is(err, chatService.ErrInvalidRating):
		utils.RespondError(w, http.StatusBadRequest, err.Error())
	default:
		observability.LoggerFromContext(r.Context(), nil).Error("chat request failed", "path", r.URL.Path, "error", err)
		utils.RespondError(w, http.StatusInternalServerError, "internal error")
	}
}
