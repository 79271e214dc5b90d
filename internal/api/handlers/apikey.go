package handlers

import (
	"net/http"
	"os"
	"strings"

	"github.com/charmbracelet/log"
	"github.com/pysugar/workspace-mirror/internal/db"
	"gorm.io/gorm"
)

// GetAPIKeyHandler returns the current API key.
func GetAPIKeyHandler(database *gorm.DB) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		writeAPIKey(w, db.GetAPIKey(database))
	}
}

// RegenerateAPIKeyHandler replaces the API key. The old key stops working
// immediately.
func RegenerateAPIKeyHandler(database *gorm.DB) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		apiKey, err := db.RegenerateAPIKey(database)
		if err != nil {
			writeError(w, http.StatusInternalServerError, "internal_error", err.Error())
			return
		}
		log.Info("🔑 Regenerated API key", "key", maskAPIKey(apiKey))
		writeAPIKey(w, apiKey)
	}
}

func writeAPIKey(w http.ResponseWriter, apiKey string) {
	masked := false
	if shouldMaskSensitiveData() {
		apiKey = maskAPIKey(apiKey)
		masked = true
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"api_key": apiKey,
		"masked":  masked,
	})
}

func shouldMaskSensitiveData() bool {
	v := strings.ToLower(strings.TrimSpace(os.Getenv("MIRROR_MASK_SENSITIVE")))
	return v == "1" || v == "true" || v == "yes"
}

func maskAPIKey(apiKey string) string {
	if len(apiKey) <= 10 {
		return "***"
	}
	return apiKey[:6] + strings.Repeat("*", len(apiKey)-10) + apiKey[len(apiKey)-4:]
}
