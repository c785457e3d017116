package api

import (
	"encoding/json"
	"net/http"

	"github.com/vitaliisemenov/remoteconfig/internal/remoteconfig"
)

// HealthHandler reports whether the provider currently holds at least one
// loaded setting. It does not re-contact the configuration service; that is
// the refresh loop's job.
//
// @Summary Health check
// @Success 200 {object} map[string]string
// @Router /healthz [get]
func HealthHandler(provider *remoteconfig.Provider) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		status := "healthy"
		code := http.StatusOK
		if provider == nil || len(provider.Data()) == 0 {
			status = "unloaded"
			code = http.StatusServiceUnavailable
		}

		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(code)
		json.NewEncoder(w).Encode(map[string]string{"status": status})
	}
}

// ConfigSnapshotHandler dumps the provider's current materialized view:
// the published flat key/value map plus the raw watched and mapped
// settings backing it.
//
// @Summary Current configuration snapshot
// @Success 200 {object} remoteconfig.StoreSnapshot
// @Router /v1/config [get]
func ConfigSnapshotHandler(provider *remoteconfig.Provider) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		snap := provider.Snapshot()
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(snap)
	}
}

// PushNotificationHandler accepts an App Configuration-style push
// notification (EventGrid webhook shape) and forwards it into the
// provider's push intake so the next refresh cycle is accelerated.
//
// @Summary Accept a push notification
// @Accept json
// @Success 202
// @Failure 400 {object} map[string]string
// @Router /v1/push [post]
func PushNotificationHandler(provider *remoteconfig.Provider) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var n remoteconfig.PushNotification
		if err := json.NewDecoder(r.Body).Decode(&n); err != nil {
			w.Header().Set("Content-Type", "application/json")
			w.WriteHeader(http.StatusBadRequest)
			json.NewEncoder(w).Encode(map[string]string{"error": "malformed push notification: " + err.Error()})
			return
		}

		if err := provider.ProcessPushNotification(n); err != nil {
			w.Header().Set("Content-Type", "application/json")
			w.WriteHeader(http.StatusBadRequest)
			json.NewEncoder(w).Encode(map[string]string{"error": err.Error()})
			return
		}

		w.WriteHeader(http.StatusAccepted)
	}
}
