package middleware

import (
	"net/http"

	"github.com/go-chi/cors"
)

// CORS 允许配置的前端来源跨域访问 API。origins 为空或包含 "*" 时放行所有来源。
func CORS(origins []string) func(http.Handler) http.Handler {
	return cors.Handler(cors.Options{
		AllowedOrigins: origins,
		AllowedMethods: []string{http.MethodGet, http.MethodPost, http.MethodPut, http.MethodDelete, http.MethodOptions},
		AllowedHeaders: []string{"Accept", "Content-Type", "Authorization", "X-Request-ID"},
		MaxAge:         600,
	})
}
