package issue

import (
	"errors"
	"log"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/zhouzirui/vehicle-assist/backend/internal/model/issue"
	issueService "github.com/zhouzirui/vehicle-assist/backend/internal/service/issue"
	"github.com/zhouzirui/vehicle-assist/backend/pkg/utils"
)

// Handler 问题持久化接口，也是 HTTP 提交器默认指向的目标
type Handler struct {
	repo issueService.Repository
}

// New 创建问题处理器
func New(repo issueService.Repository) *Handler {
	return &Handler{repo: repo}
}

// RegisterRoutes 注册问题相关的路由
func (h *Handler) RegisterRoutes(r chi.Router) {
	r.Post("/issues", h.handleCreate)
	r.Get("/issues", h.handleList)
	r.Get("/issues/{issueID}", h.handleGet)
}

func (h *Handler) handleCreate(w http.ResponseWriter, r *http.Request) {
	var record issue.Record
	if err := utils.DecodeJSON(w, r, &record); err != nil {
		utils.RespondError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	// ids are always server-assigned
	record.ID = ""
	if err := record.Normalize(time.Now().UTC()); err != nil {
		utils.RespondError(w, http.StatusBadRequest, err.Error())
		return
	}

	stored, err := h.repo.Create(r.Context(), record)
	if err != nil {
		log.Printf("[issue] create failed: %v", err)
		utils.RespondError(w, http.StatusInternalServerError, "failed to store issue")
		return
	}
	utils.RespondJSON(w, http.StatusCreated, stored)
}

func (h *Handler) handleList(w http.ResponseWriter, r *http.Request) {
	limit := 0
	if raw := r.URL.Query().Get("limit"); raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err != nil || parsed < 0 {
			utils.RespondError(w, http.StatusBadRequest, "limit must be a non-negative integer")
			return
		}
		limit = parsed
	}

	records, err := h.repo.List(r.Context(), limit)
	if err != nil {
		log.Printf("[issue] list failed: %v", err)
		utils.RespondError(w, http.StatusInternalServerError, "failed to list issues")
		return
	}
	utils.RespondJSON(w, http.StatusOK, records)
}

func (h *Handler) handleGet(w http.ResponseWriter, r *http.Request) {
	record, err := h.repo.Get(r.Context(), chi.URLParam(r, "issueID"))
	if err != nil {
		if errors.Is(err, issueService.ErrIssueNotFound) {
			utils.RespondError(w, http.StatusNotFound, err.Error())
			return
		}
		log.Printf("[issue] get failed: %v", err)
		utils.RespondError(w, http.StatusInternalServerError, "failed to load issue")
		return
	}
	utils.RespondJSON(w, http.StatusOK, record)
}
