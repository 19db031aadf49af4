package speech

import (
	"errors"
	"io"
	"log"
	"net/http"
	"path/filepath"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/zhouzirui/vehicle-assist/backend/internal/model/speech"
	speechsvc "github.com/zhouzirui/vehicle-assist/backend/internal/service/speech"
	"github.com/zhouzirui/vehicle-assist/backend/pkg/utils"
)

// Handler 语音服务的HTTP处理器
type Handler struct {
	transcriber speechsvc.Transcriber
	language    string
	mode        string
}

// New 创建语音处理器。mode 仅用于健康检查展示（mock 或 volcengine）。
func New(transcriber speechsvc.Transcriber, language, mode string) *Handler {
	return &Handler{
		transcriber: transcriber,
		language:    language,
		mode:        mode,
	}
}

// RegisterRoutes 注册语音相关的路由
func (h *Handler) RegisterRoutes(r chi.Router) {
	r.Route("/speech", func(speechRouter chi.Router) {
		speechRouter.Post("/transcribe", h.handleTranscribe)
		speechRouter.Get("/health", h.handleHealth)
	})
}

// handleTranscribe 处理语音转文本请求，音频以 multipart 字段 audio 上传
func (h *Handler) handleTranscribe(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseMultipartForm(32 << 20); err != nil {
		utils.RespondError(w, http.StatusBadRequest, "failed to parse multipart form: "+err.Error())
		return
	}
	if r.MultipartForm != nil {
		defer r.MultipartForm.RemoveAll()
	}

	file, header, err := r.FormFile("audio")
	if err != nil {
		utils.RespondError(w, http.StatusBadRequest, "audio file is required")
		return
	}
	defer file.Close()

	data, err := io.ReadAll(file)
	if err != nil {
		utils.RespondError(w, http.StatusBadRequest, "failed to read audio file")
		return
	}
	if len(data) == 0 {
		utils.RespondError(w, http.StatusBadRequest, "audio file is empty")
		return
	}

	sessionID := r.FormValue("sessionId")
	if sessionID == "" {
		sessionID = uuid.NewString()
	}
	language := r.FormValue("language")
	if language == "" {
		language = h.language
	}

	transcript, err := h.transcriber.Transcribe(r.Context(), speech.Audio{
		SessionID: sessionID,
		Data:      data,
		Format:    inferAudioFormat(header.Filename),
		Language:  language,
	})
	if err != nil {
		log.Printf("[speech] ASR error: %v", err)
		status := http.StatusInternalServerError
		if errors.Is(err, speechsvc.ErrTranscription) {
			status = http.StatusBadGateway
		}
		utils.RespondError(w, status, "speech recognition failed")
		return
	}

	utils.RespondJSON(w, http.StatusOK, transcript)
}

// handleHealth 健康检查端点
func (h *Handler) handleHealth(w http.ResponseWriter, r *http.Request) {
	utils.RespondJSON(w, http.StatusOK, map[string]string{
		"status":  "healthy",
		"service": "speech",
		"mode":    h.mode,
	})
}

// inferAudioFormat 从文件名推断音频格式
func inferAudioFormat(filename string) string {
	switch strings.ToLower(filepath.Ext(filename)) {
	case ".mp3":
		return "mp3"
	case ".webm":
		return "webm"
	case ".ogg":
		return "ogg"
	case ".pcm":
		return "pcm"
	default:
		return "wav"
	}
}
