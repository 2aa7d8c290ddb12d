// internal/api/router.go
package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// SetupDataRouter serves the device-facing write path.
func SetupDataRouter(h *APIHandler) *chi.Mux {
	r := chi.NewRouter()
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)

	r.With(h.Auth.APIKeyMiddleware).Post("/data", h.HandleDataIngest)
	r.Handle("/metrics", promhttp.Handler())

	return r
}

// SetupUIRouter serves the dashboard-facing read path, device commands and
// the notification WebSocket.
func SetupUIRouter(h *APIHandler) *chi.Mux {
	r := chi.NewRouter()
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)
	r.Use(corsMiddleware)

	r.Route("/sensor", func(r chi.Router) {
		r.Get("/", h.HandleSensorStatus)
		r.Get("/{channel}/latest", h.HandleLatest)
		r.Get("/{channel}/history1000", h.HandleHistory1000)
		r.Get("/{channel}/stats", h.HandleStats)
	})

	r.Route("/fan", func(r chi.Router) {
		r.Get("/", h.HandleFanStatus)
		r.Post("/fan/on", h.HandleFanOn)
		r.Post("/fan/off", h.HandleFanOff)
	})

	r.Route("/light", func(r chi.Router) {
		r.Get("/", h.HandleLightStatus)
		r.Post("/switch/on", h.HandleLightOn)
		r.Post("/switch/off", h.HandleLightOff)
		r.Post("/switch/colorchange", h.HandleColorChange)
	})

	r.Route("/login", func(r chi.Router) {
		r.Get("/", h.HandleLoginStatus)
		r.Post("/", h.HandleLogin)
	})

	r.Route("/activitylog", func(r chi.Router) {
		r.Get("/", func(w http.ResponseWriter, req *http.Request) {
			writeJSON(w, http.StatusOK, map[string]string{"status": "activities log is working"})
		})
		r.Post("/get1000", h.HandleActivityLog)
	})

	r.Route("/notifications", func(r chi.Router) {
		r.Get("/", h.HandleNotifications)
		r.Get("/ws", h.HandleNotificationsWS)
		r.Post("/read_all", h.HandleMarkAllRead)
		r.Post("/clear", h.HandleClearAll)
	})

	r.Get("/device/state", h.HandleDeviceState)
	r.Post("/firedetect/detect", h.HandleFireDetect)

	return r
}

// corsMiddleware lets the dashboard's dev server (a different origin) call
// the API. The gateway serves a trusted LAN, so origins are echoed back
// rather than filtered.
func corsMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		origin := r.Header.Get("Origin")
		if origin != "" {
			w.Header().Set("Access-Control-Allow-Origin", origin)
			w.Header().Set("Access-Control-Allow-Credentials", "true")
			w.Header().Set("Access-Control-Allow-Methods", "GET, POST, OPTIONS")
			w.Header().Set("Access-Control-Allow-Headers", "Content-Type, Authorization, X-API-Key")
		}
		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusNoContent)
			return
		}
		next.ServeHTTP(w, r)
	})
}
