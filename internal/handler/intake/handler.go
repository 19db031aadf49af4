package intake

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/gorilla/websocket"

	"github.com/zhouzirui/vehicle-assist/backend/internal/model/issue"
	"github.com/zhouzirui/vehicle-assist/backend/internal/service/classify"
	intakeservice "github.com/zhouzirui/vehicle-assist/backend/internal/service/intake"
	issueservice "github.com/zhouzirui/vehicle-assist/backend/internal/service/issue"
	speechservice "github.com/zhouzirui/vehicle-assist/backend/internal/service/speech"
	"github.com/zhouzirui/vehicle-assist/backend/pkg/utils"
)

// maxAudioChunk 单次上传的音频块上限
const maxAudioChunk = 8 << 20

var errInvalidPayload = errors.New("invalid message payload")

// Handler 问题录入表单的 HTTP/WebSocket 处理器
type Handler struct {
	intakeSvc *intakeservice.Service
	upgrader  websocket.Upgrader
}

// New 创建录入处理器
func New(intakeSvc *intakeservice.Service) *Handler {
	return &Handler{
		intakeSvc: intakeSvc,
		upgrader: websocket.Upgrader{
			CheckOrigin: func(r *http.Request) bool {
				return true
			},
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
		},
	}
}

// RegisterRoutes 注册录入相关的路由
func (h *Handler) RegisterRoutes(r chi.Router) {
	r.Route("/intake", func(intakeRouter chi.Router) {
		intakeRouter.Post("/session", h.handleCreateSession)
		intakeRouter.Route("/{sessionID}", func(sessionRouter chi.Router) {
			sessionRouter.Get("/", h.handleGetSession)
			sessionRouter.Delete("/", h.handleCloseSession)
			sessionRouter.Put("/draft", h.handleUpdateDraft)
			sessionRouter.Post("/recording", h.handleStartRecording)
			sessionRouter.Post("/recording/audio", h.handleAppendAudio)
			sessionRouter.Post("/recording/stop", h.handleStopRecording)
			sessionRouter.Post("/classify", h.handleClassify)
			sessionRouter.Post("/submit", h.handleSubmit)
			sessionRouter.Get("/ws", h.handleWebSocket)
		})
	})
}

type createSessionRequest struct {
	Vehicle string `json:"vehicle"`
}

// updateDraftRequest 只更新提供的字段
type updateDraftRequest struct {
	DescriptionText *string `json:"descriptionText"`
	Category        *string `json:"category"`
}

type audioChunkRequest struct {
	AudioData []byte `json:"audioData"`
}

type submitResponse struct {
	Issue   issue.Record           `json:"issue"`
	Session intakeservice.Snapshot `json:"session"`
}

type sessionErrorResponse struct {
	Error   string                  `json:"error"`
	Session *intakeservice.Snapshot `json:"session,omitempty"`
}

func (h *Handler) handleCreateSession(w http.ResponseWriter, r *http.Request) {
	var req createSessionRequest
	if err := utils.DecodeJSON(w, r, &req); err != nil {
		utils.RespondError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	session, err := h.intakeSvc.CreateSession(r.Context(), req.Vehicle)
	if err != nil {
		respondServiceError(w, err, nil)
		return
	}
	utils.RespondJSON(w, http.StatusCreated, session.Snapshot())
}

func (h *Handler) handleGetSession(w http.ResponseWriter, r *http.Request) {
	session, ok := h.lookup(w, r)
	if !ok {
		return
	}
	utils.RespondJSON(w, http.StatusOK, session.Snapshot())
}

func (h *Handler) handleCloseSession(w http.ResponseWriter, r *http.Request) {
	if err := h.intakeSvc.CloseSession(chi.URLParam(r, "sessionID")); err != nil {
		respondServiceError(w, err, nil)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) handleUpdateDraft(w http.ResponseWriter, r *http.Request) {
	session, ok := h.lookup(w, r)
	if !ok {
		return
	}

	var req updateDraftRequest
	if err := utils.DecodeJSON(w, r, &req); err != nil {
		utils.RespondError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	snap, err := session.UpdateDraft(req.DescriptionText, req.Category)
	if err != nil {
		respondServiceError(w, err, &snap)
		return
	}
	utils.RespondJSON(w, http.StatusOK, snap)
}

func (h *Handler) handleStartRecording(w http.ResponseWriter, r *http.Request) {
	session, ok := h.lookup(w, r)
	if !ok {
		return
	}
	snap, err := session.StartRecording(r.Context())
	if err != nil {
		respondServiceError(w, err, &snap)
		return
	}
	utils.RespondJSON(w, http.StatusOK, snap)
}

// handleAppendAudio 接收原始音频体，或 JSON 中 base64 编码的 audioData
func (h *Handler) handleAppendAudio(w http.ResponseWriter, r *http.Request) {
	session, ok := h.lookup(w, r)
	if !ok {
		return
	}

	var chunk []byte
	if strings.HasPrefix(r.Header.Get("Content-Type"), "application/json") {
		var req audioChunkRequest
		if err := utils.DecodeJSON(w, r, &req); err != nil {
			utils.RespondError(w, http.StatusBadRequest, "invalid request body")
			return
		}
		chunk = req.AudioData
	} else {
		data, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxAudioChunk))
		if err != nil {
			utils.RespondError(w, http.StatusRequestEntityTooLarge, "audio chunk too large")
			return
		}
		chunk = data
	}

	if len(chunk) == 0 {
		utils.RespondError(w, http.StatusBadRequest, "audio chunk is empty")
		return
	}
	if err := session.AppendAudio(chunk); err != nil {
		respondServiceError(w, err, nil)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) handleStopRecording(w http.ResponseWriter, r *http.Request) {
	session, ok := h.lookup(w, r)
	if !ok {
		return
	}
	snap, err := session.StopRecording(r.Context())
	if err != nil {
		respondServiceError(w, err, &snap)
		return
	}
	utils.RespondJSON(w, http.StatusOK, snap)
}

func (h *Handler) handleClassify(w http.ResponseWriter, r *http.Request) {
	session, ok := h.lookup(w, r)
	if !ok {
		return
	}
	snap, err := session.Classify(r.Context())
	if err != nil {
		respondServiceError(w, err, &snap)
		return
	}
	utils.RespondJSON(w, http.StatusOK, snap)
}

func (h *Handler) handleSubmit(w http.ResponseWriter, r *http.Request) {
	session, ok := h.lookup(w, r)
	if !ok {
		return
	}
	record, snap, err := session.Submit(r.Context())
	if err != nil {
		respondServiceError(w, err, &snap)
		return
	}
	utils.RespondJSON(w, http.StatusCreated, submitResponse{Issue: record, Session: snap})
}

func (h *Handler) lookup(w http.ResponseWriter, r *http.Request) (*intakeservice.Session, bool) {
	session, err := h.intakeSvc.Get(chi.URLParam(r, "sessionID"))
	if err != nil {
		respondServiceError(w, err, nil)
		return nil, false
	}
	return session, true
}

func statusForError(err error) int {
	switch {
	case errors.Is(err, intakeservice.ErrSessionNotFound):
		return http.StatusNotFound
	case errors.Is(err, intakeservice.ErrSessionClosed):
		return http.StatusGone
	case errors.Is(err, intakeservice.ErrServiceClosed):
		return http.StatusServiceUnavailable
	case errors.Is(err, intakeservice.ErrBusy), errors.Is(err, intakeservice.ErrNotRecording):
		return http.StatusConflict
	case errors.Is(err, intakeservice.ErrEmptyDescription),
		errors.Is(err, intakeservice.ErrInvalidTag),
		errors.Is(err, intakeservice.ErrUnknownVehicle):
		return http.StatusBadRequest
	case errors.Is(err, speechservice.ErrMicrophoneDenied):
		return http.StatusForbidden
	case errors.Is(err, speechservice.ErrTranscription),
		errors.Is(err, classify.ErrClassification),
		errors.Is(err, issueservice.ErrSubmission):
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}

// respondServiceError 返回错误以及失败后的会话快照（若有），前端据此恢复表单
func respondServiceError(w http.ResponseWriter, err error, snap *intakeservice.Snapshot) {
	status := statusForError(err)
	if status == http.StatusInternalServerError {
		log.Printf("[intake] unexpected error: %v", err)
	}
	utils.RespondJSON(w, status, sessionErrorResponse{Error: err.Error(), Session: snap})
}

// errorCode 是 WebSocket 错误消息里的机器可读标识
func errorCode(err error) string {
	switch statusForError(err) {
	case http.StatusNotFound, http.StatusGone:
		return "session_closed"
	case http.StatusConflict:
		return "busy"
	case http.StatusBadRequest:
		return "invalid_input"
	case http.StatusForbidden:
		return "microphone_denied"
	}
	switch {
	case errors.Is(err, errInvalidPayload):
		return "invalid_input"
	case errors.Is(err, speechservice.ErrTranscription):
		return "transcription_failed"
	case errors.Is(err, classify.ErrClassification):
		return "classification_failed"
	case errors.Is(err, issueservice.ErrSubmission):
		return "submission_failed"
	}
	return "internal"
}

func decodePayload(raw json.RawMessage, dst any) error {
	if len(raw) == 0 {
		return nil
	}
	if err := json.Unmarshal(raw, dst); err != nil {
		return fmt.Errorf("%w: %v", errInvalidPayload, err)
	}
	return nil
}
