package vehicle

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/zhouzirui/vehicle-assist/backend/internal/model/issue"
	"github.com/zhouzirui/vehicle-assist/backend/internal/model/vehicle"
	"github.com/zhouzirui/vehicle-assist/backend/pkg/utils"
)

// Handler 车型目录与问题标签的HTTP处理器
type Handler struct {
	vehicles vehicle.Store
}

// New 创建车型处理器
func New(vehicles vehicle.Store) *Handler {
	return &Handler{vehicles: vehicles}
}

// RegisterRoutes 注册车型相关的路由
func (h *Handler) RegisterRoutes(r chi.Router) {
	r.Get("/vehicles", h.handleListVehicles)
	r.Get("/vehicles/{vehicleID}", h.handleGetVehicle)
	r.Get("/issue-tags", h.handleIssueTags)
}

func (h *Handler) handleListVehicles(w http.ResponseWriter, r *http.Request) {
	utils.RespondJSON(w, http.StatusOK, h.vehicles.List())
}

func (h *Handler) handleGetVehicle(w http.ResponseWriter, r *http.Request) {
	v, ok := h.vehicles.FindByID(chi.URLParam(r, "vehicleID"))
	if !ok {
		utils.RespondError(w, http.StatusNotFound, "vehicle not found")
		return
	}
	utils.RespondJSON(w, http.StatusOK, v)
}

// handleIssueTags 返回快捷标签与分类器类别
func (h *Handler) handleIssueTags(w http.ResponseWriter, r *http.Request) {
	utils.RespondJSON(w, http.StatusOK, map[string][]string{
		"tags":       issue.CommonTags(),
		"categories": issue.Categories(),
	})
}
