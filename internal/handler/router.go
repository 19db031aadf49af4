package handler

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/zhouzirui/vehicle-assist/backend/internal/handler/chat"
	"github.com/zhouzirui/vehicle-assist/backend/internal/handler/intake"
	"github.com/zhouzirui/vehicle-assist/backend/internal/handler/issue"
	"github.com/zhouzirui/vehicle-assist/backend/internal/handler/speech"
	"github.com/zhouzirui/vehicle-assist/backend/internal/handler/vehicle"
	middlewarePkg "github.com/zhouzirui/vehicle-assist/backend/internal/middleware"
	vehicleModel "github.com/zhouzirui/vehicle-assist/backend/internal/model/vehicle"
	chatService "github.com/zhouzirui/vehicle-assist/backend/internal/service/chat"
	intakeService "github.com/zhouzirui/vehicle-assist/backend/internal/service/intake"
	issueService "github.com/zhouzirui/vehicle-assist/backend/internal/service/issue"
	speechService "github.com/zhouzirui/vehicle-assist/backend/internal/service/speech"
	"github.com/zhouzirui/vehicle-assist/backend/pkg/utils"
)

// Services 是路由层依赖的核心服务集合
type Services struct {
	Vehicles    vehicleModel.Store
	Chat        *chatService.Service
	Intake      *intakeService.Service
	Issues      issueService.Repository
	Transcriber speechService.Transcriber
	// SpeechMode 仅用于健康检查展示
	SpeechMode     string
	SpeechLanguage string
}

// NewRouter wires HTTP routes to core services.
func NewRouter(allowedOrigins []string, svc Services) http.Handler {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)
	r.Use(middlewarePkg.CORS(allowedOrigins))

	r.Route("/api", func(api chi.Router) {
		api.Get("/health", func(w http.ResponseWriter, _ *http.Request) {
			utils.RespondJSON(w, http.StatusOK, map[string]string{"status": "ok"})
		})

		vehicle.New(svc.Vehicles).RegisterRoutes(api)
		chat.New(svc.Chat).RegisterRoutes(api)
		intake.New(svc.Intake).RegisterRoutes(api)
		issue.New(svc.Issues).RegisterRoutes(api)

		// Register speech routes if a transcriber is configured
		if svc.Transcriber != nil {
			speech.New(svc.Transcriber, svc.SpeechLanguage, svc.SpeechMode).RegisterRoutes(api)
		}
	})

	return r
}
