package middleware

import (
	"net/http"

	"github.com/go-chi/cors"
)

var corsHandler = cors.Handler(cors.Options{
	AllowedOrigins:   []string{"*"},
	AllowedMethods:   []string{"GET", "POST", "DELETE", "OPTIONS"},
	AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type", "X-Request-Id"},
	ExposedHeaders:   []string{"Content-Disposition"},
	AllowCredentials: false,
	MaxAge:           300,
})

// CORS allows the web console to call the API from any origin.
func CORS(next http.Handler) http.Handler {
	return corsHandler(next)
}
