package middleware

import (
	"net/http"

	"github.com/go-chi/cors"
)

// DefaultCORSOrigin is the front-end origin allowed when none is configured.
const DefaultCORSOrigin = "http://localhost:4200"

// CORS allows browser clients from origins to call the API.
func CORS(origins []string) func(http.Handler) http.Handler {
	if len(origins) == 0 {
		origins = []string{DefaultCORSOrigin}
	}

	return cors.Handler(cors.Options{
		AllowedOrigins:   origins,
		AllowedMethods:   []string{http.MethodGet, http.MethodPost, http.MethodOptions},
		AllowedHeaders:   []string{"Accept", "Content-Type", "X-Request-Id"},
		ExposedHeaders:   []string{"Location", "Retry-After"},
		AllowCredentials: true,
		MaxAge:           300,
	})
}
