package handlers

import (
	"crypto/subtle"
	"net/http"

	"lungdetect/internal/config"
	"lungdetect/internal/logger"
	"lungdetect/internal/middleware"
)

// LoginHandler issues an admin session when the posted password matches ADMIN_PASSWORD.
func LoginHandler(cfg *config.Config, sessions *middleware.Sessions, logger *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
			return
		}
		if !cfg.AdminEnabled() {
			http.Error(w, "Admin access disabled", http.StatusForbidden)
			return
		}

		password := r.FormValue("password")
		if subtle.ConstantTimeCompare([]byte(password), []byte(cfg.AdminPassword)) != 1 {
			logger.Warning("Failed login attempt from %s", r.RemoteAddr)
			http.Error(w, "Invalid password", http.StatusUnauthorized)
			return
		}

		// Ustaw cookie po poprawnym logowaniu
		http.SetCookie(w, &http.Cookie{
			Name:     middleware.SessionCookie,
			Value:    sessions.Create(),
			Path:     "/",
			MaxAge:   int(middleware.SessionTTL.Seconds()),
			HttpOnly: true,
			SameSite: http.SameSiteLaxMode,
		})
		logger.Info("Admin logged in from %s", r.RemoteAddr)
		http.Redirect(w, r, "/history", http.StatusSeeOther)
	}
}
