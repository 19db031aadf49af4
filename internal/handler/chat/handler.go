package chat

import (
	"errors"
	"io"
	"log"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	chatService "github.com/zhouzirui/vehicle-assist/backend/internal/service/chat"
	"github.com/zhouzirui/vehicle-assist/backend/pkg/utils"
)

// heartbeatInterval keeps idle SSE connections open behind proxies.
const heartbeatInterval = 15 * time.Second

// Handler 聊天助手的HTTP处理器
type Handler struct {
	chatSvc *chatService.Service
}

// New 创建聊天处理器
func New(chatSvc *chatService.Service) *Handler {
	return &Handler{chatSvc: chatSvc}
}

// RegisterRoutes 注册聊天相关的路由
func (h *Handler) RegisterRoutes(r chi.Router) {
	r.Route("/chat", func(r chi.Router) {
		r.Post("/session", h.handleCreateSession)
		r.Get("/{sessionID}/messages", h.handleListMessages)
		r.Post("/{sessionID}/messages", h.handleSendMessage)
		r.Get("/{sessionID}/events", h.handleEvents)
		r.Delete("/{sessionID}", h.handleCloseSession)
	})
}

// handleCreateSession 创建会话，返回带欢迎语的快照
func (h *Handler) handleCreateSession(w http.ResponseWriter, r *http.Request) {
	snapshot, err := h.chatSvc.CreateSession(r.Context())
	if err != nil {
		respondServiceError(w, err)
		return
	}
	utils.RespondJSON(w, http.StatusCreated, snapshot)
}

func (h *Handler) handleListMessages(w http.ResponseWriter, r *http.Request) {
	snapshot, err := h.chatSvc.GetSession(r.Context(), chi.URLParam(r, "sessionID"))
	if err != nil {
		respondServiceError(w, err)
		return
	}
	utils.RespondJSON(w, http.StatusOK, snapshot)
}

// handleSendMessage 追加用户消息，机器人回复稍后通过 events 推送
func (h *Handler) handleSendMessage(w http.ResponseWriter, r *http.Request) {
	var payload struct {
		Text string `json:"text"`
	}
	if err := utils.DecodeJSON(w, r, &payload); err != nil {
		if errors.Is(err, io.EOF) {
			utils.RespondError(w, http.StatusBadRequest, "text is required")
			return
		}
		utils.RespondError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	message, err := h.chatSvc.Send(r.Context(), chi.URLParam(r, "sessionID"), payload.Text)
	if err != nil {
		respondServiceError(w, err)
		return
	}
	utils.RespondJSON(w, http.StatusAccepted, message)
}

// handleEvents 以 SSE 推送会话中新追加的消息
func (h *Handler) handleEvents(w http.ResponseWriter, r *http.Request) {
	sessionID := chi.URLParam(r, "sessionID")

	flusher, ok := w.(http.Flusher)
	if !ok {
		utils.RespondError(w, http.StatusInternalServerError, "streaming unsupported")
		return
	}

	updates, cancel, err := h.chatSvc.Subscribe(sessionID)
	if err != nil {
		respondServiceError(w, err)
		return
	}
	defer cancel()

	utils.SetupSSEHeaders(w)
	w.WriteHeader(http.StatusOK)
	flusher.Flush()
	log.Printf("[sse] opening chat stream for session=%s", sessionID)

	ticker := time.NewTicker(heartbeatInterval)
	defer ticker.Stop()

	for {
		select {
		case <-r.Context().Done():
			log.Printf("[sse] client left chat stream session=%s", sessionID)
			return
		case msg, ok := <-updates:
			if !ok {
				_ = utils.SendSSEEvent(w, flusher, "closed", map[string]string{"sessionId": sessionID})
				return
			}
			if err := utils.SendSSEEvent(w, flusher, "message", msg); err != nil {
				return
			}
		case <-ticker.C:
			if err := utils.SendSSEComment(w, flusher, "heartbeat"); err != nil {
				return
			}
		}
	}
}

func (h *Handler) handleCloseSession(w http.ResponseWriter, r *http.Request) {
	if err := h.chatSvc.CloseSession(chi.URLParam(r, "sessionID")); err != nil {
		respondServiceError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func respondServiceError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, chatService.ErrSessionNotFound):
		utils.RespondError(w, http.StatusNotFound, err.Error())
	case errors.Is(err, chatService.ErrEmptyMessage):
		utils.RespondError(w, http.StatusBadRequest, err.Error())
	case errors.Is(err, chatService.ErrReplyPending):
		utils.RespondError(w, http.StatusConflict, err.Error())
	case errors.Is(err, chatService.ErrServiceClosed):
		utils.RespondError(w, http.StatusServiceUnavailable, err.Error())
	default:
		log.Printf("[chat] unexpected error: %v", err)
		utils.RespondError(w, http.StatusInternalServerError, "internal error")
	}
}
