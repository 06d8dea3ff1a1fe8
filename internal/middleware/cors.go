package middleware

import (
	"net/http"
	"strings"

	"github.com/go-chi/cors"
)

// SplitOrigins parses a comma separated origin list, dropping blanks.
func SplitOrigins(origins string) []string {
	allowed := make([]string, 0, 2)
	for _, origin := range strings.Split(origins, ",") {
		if origin = strings.TrimSpace(origin); origin != "" {
			allowed = append(allowed, origin)
		}
	}
	return allowed
}

// CORS allows the configured frontend origin(s) to call the API with credentials.
func CORS(origins []string) func(http.Handler) http.Handler {
	return cors.Handler(cors.Options{
		AllowedOrigins:   origins,
		AllowedMethods:   []string{http.MethodGet, http.MethodPost, http.MethodPut, http.MethodOptions},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type", "X-Request-ID"},
		ExposedHeaders:   []string{"X-Request-ID"},
		AllowCredentials: true,
		MaxAge:           300,
	})
}
