// internal/api/handlers.go
package api

import (
	"encoding/json"
	"errors"
	"io"
	"log"
	"math"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"smart-home-gateway/internal/alerting"
	"smart-home-gateway/internal/auth"
	"smart-home-gateway/internal/data"
	"smart-home-gateway/internal/device"
	"smart-home-gateway/internal/firedetect"
	"smart-home-gateway/internal/ingest"
	"smart-home-gateway/internal/stats"
	"smart-home-gateway/internal/storage"
	websock "smart-home-gateway/internal/websocket"
)

const historyLimit = 1000

type APIHandler struct {
	store    *storage.MemoryStore
	agg      *stats.Aggregator
	gateway  *ingest.Gateway
	alerts   *alerting.Hub
	devices  *device.Controller
	fire     *firedetect.Client
	Auth     *auth.AuthManager
	notifier *websock.Notifier
}

func NewAPIHandler(
	store *storage.MemoryStore,
	agg *stats.Aggregator,
	gateway *ingest.Gateway,
	alerts *alerting.Hub,
	devices *device.Controller,
	fire *firedetect.Client,
	authMgr *auth.AuthManager,
) *APIHandler {
	return &APIHandler{
		store:    store,
		agg:      agg,
		gateway:  gateway,
		alerts:   alerts,
		devices:  devices,
		fire:     fire,
		Auth:     authMgr,
		notifier: websock.NewNotifier(alerts),
	}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		log.Printf("Error encoding response: %v", err)
	}
}

func writeError(w http.ResponseWriter, err error) {
	status := http.StatusInternalServerError
	switch {
	case errors.Is(err, data.ErrUnknownChannel):
		status = http.StatusNotFound
	case errors.Is(err, data.ErrInvalidSample):
		status = http.StatusBadRequest
	case errors.Is(err, data.ErrRateLimited):
		status = http.StatusTooManyRequests
	case errors.Is(err, data.ErrUpstreamUnavailable):
		status = http.StatusBadGateway
	}
	writeJSON(w, status, map[string]string{"error": err.Error()})
}

// --- Ingest (data server) ---

// HandleDataIngest receives readings from the device-side translators.
// Payloads carry either one channel/value pair or a metrics map; each
// reading goes through the full ingest sequence independently, so one bad
// metric never blocks the rest.
func (h *APIHandler) HandleDataIngest(w http.ResponseWriter, r *http.Request) {
	body, err := io.ReadAll(r.Body)
	if err != nil {
		writeError(w, data.ErrInvalidSample)
		return
	}
	defer r.Body.Close()

	payload, err := data.ParseIngest(body)
	if err != nil {
		writeError(w, err)
		return
	}

	accepted := 0
	var lastErr error
	if payload.Channel != "" {
		if err := h.gateway.Ingest(payload.Channel, payload.Value, payload.Timestamp); err != nil {
			lastErr = err
		} else {
			accepted++
		}
	}
	for name, value := range payload.Metrics {
		if err := h.gateway.Ingest(name, value, payload.Timestamp); err != nil {
			log.Printf("Ingest rejected metric %s: %v", name, err)
			lastErr = err
		} else {
			accepted++
		}
	}

	if accepted == 0 && lastErr != nil {
		writeError(w, lastErr)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"status": "received", "accepted": accepted})
}

// --- Sensor read path (UI server) ---

func (h *APIHandler) HandleSensorStatus(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "sensor is working"})
}

type sampleResponse struct {
	Value     float64   `json:"value"`
	Timestamp time.Time `json:"timestamp"`
}

func (h *APIHandler) channelParam(r *http.Request) (data.Channel, error) {
	return data.ParseChannel(chi.URLParam(r, "channel"))
}

func (h *APIHandler) HandleLatest(w http.ResponseWriter, r *http.Request) {
	ch, err := h.channelParam(r)
	if err != nil {
		writeError(w, err)
		return
	}
	latest, err := h.store.Latest(ch)
	if err != nil {
		writeError(w, err)
		return
	}
	if latest == nil {
		// Channel exists but holds no samples yet.
		w.WriteHeader(http.StatusNoContent)
		return
	}
	writeJSON(w, http.StatusOK, sampleResponse{Value: latest.Value, Timestamp: latest.Timestamp})
}

func (h *APIHandler) HandleHistory1000(w http.ResponseWriter, r *http.Request) {
	ch, err := h.channelParam(r)
	if err != nil {
		writeError(w, err)
		return
	}
	samples, err := h.store.Recent(ch, historyLimit)
	if err != nil {
		writeError(w, err)
		return
	}
	out := make([]sampleResponse, len(samples))
	for i, s := range samples {
		out[i] = sampleResponse{Value: s.Value, Timestamp: s.Timestamp}
	}
	writeJSON(w, http.StatusOK, out)
}

// statsResponse uses pointers for avg/stddev so an empty window marshals
// them as null and the UI renders "N/A" instead of 0.
type statsResponse struct {
	Current float64  `json:"current"`
	Min     float64  `json:"min"`
	Max     float64  `json:"max"`
	Avg     *float64 `json:"avg"`
	Median  float64  `json:"median"`
	StdDev  *float64 `json:"std_dev"`
	Count   int      `json:"count"`
}

func finiteOrNil(v float64) *float64 {
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return nil
	}
	return &v
}

func (h *APIHandler) HandleStats(w http.ResponseWriter, r *http.Request) {
	ch, err := h.channelParam(r)
	if err != nil {
		writeError(w, err)
		return
	}

	var window time.Duration
	if raw := r.URL.Query().Get("window"); raw != "" {
		window, err = time.ParseDuration(raw)
		if err != nil {
			writeJSON(w, http.StatusBadRequest, map[string]string{"error": "bad window duration"})
			return
		}
	}

	snap, err := h.agg.Stats(ch, window)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, statsResponse{
		Current: snap.Current,
		Min:     snap.Min,
		Max:     snap.Max,
		Avg:     finiteOrNil(snap.Avg),
		Median:  snap.Median,
		StdDev:  finiteOrNil(snap.StdDev),
		Count:   snap.Count,
	})
}

// --- Device commands ---

func (h *APIHandler) HandleFanStatus(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "Fan is working"})
}

func (h *APIHandler) HandleFanOn(w http.ResponseWriter, r *http.Request) {
	var body struct {
		Speed int `json:"speed"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		writeError(w, data.ErrInvalidSample)
		return
	}
	if err := h.devices.FanOn(r.Context(), body.Speed); err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"message": "Success"})
}

func (h *APIHandler) HandleFanOff(w http.ResponseWriter, r *http.Request) {
	if err := h.devices.FanOff(r.Context()); err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"message": "Success"})
}

func (h *APIHandler) HandleLightStatus(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "light is working"})
}

func (h *APIHandler) HandleLightOn(w http.ResponseWriter, r *http.Request) {
	if err := h.devices.LightOn(r.Context()); err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"message": "Success"})
}

func (h *APIHandler) HandleLightOff(w http.ResponseWriter, r *http.Request) {
	if err := h.devices.LightOff(r.Context()); err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"message": "Success"})
}

func (h *APIHandler) HandleColorChange(w http.ResponseWriter, r *http.Request) {
	var body struct {
		Code json.Number `json:"code"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		writeError(w, data.ErrInvalidSample)
		return
	}
	if err := h.devices.ChangeColor(r.Context(), body.Code.String()); err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"message": "Success"})
}

func (h *APIHandler) HandleDeviceState(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, h.devices.State())
}

func (h *APIHandler) HandleActivityLog(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{"data": h.devices.Activity(historyLimit)})
}

// --- Login ---

func (h *APIHandler) HandleLoginStatus(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "login is working"})
}

func (h *APIHandler) HandleLogin(w http.ResponseWriter, r *http.Request) {
	var body struct {
		Username string `json:"username"`
		Password string `json:"password"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil || body.Username == "" {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "username and password required"})
		return
	}
	ok, role, err := h.Auth.AuthenticateUser(body.Username, body.Password)
	if !ok {
		log.Printf("Login failed for %q: %v", body.Username, err)
		writeJSON(w, http.StatusUnauthorized, map[string]string{"error": "invalid credentials"})
		return
	}
	token, err := h.Auth.GenerateJWT(body.Username, role)
	if err != nil {
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "token generation failed"})
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"token": token, "role": role})
}

// --- Notifications ---

func (h *APIHandler) HandleNotificationsWS(w http.ResponseWriter, r *http.Request) {
	h.notifier.HandleWS(w, r)
}

func (h *APIHandler) HandleNotifications(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"notifications": h.alerts.Snapshot(),
		"unread":        h.alerts.Unread(),
	})
}

func (h *APIHandler) HandleMarkAllRead(w http.ResponseWriter, r *http.Request) {
	h.alerts.MarkAllRead()
	writeJSON(w, http.StatusOK, map[string]string{"message": "Success"})
}

func (h *APIHandler) HandleClearAll(w http.ResponseWriter, r *http.Request) {
	h.alerts.ClearAll()
	writeJSON(w, http.StatusOK, map[string]string{"message": "Success"})
}

// --- Fire detection ---

// HandleFireDetect proxies an image to the external detection service and
// publishes a fire alert if the detections warrant one.
func (h *APIHandler) HandleFireDetect(w http.ResponseWriter, r *http.Request) {
	file, header, err := r.FormFile("file")
	if err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "multipart field 'file' required"})
		return
	}
	defer file.Close()

	detections, err := h.fire.DetectImage(r.Context(), header.Filename, file)
	if err != nil {
		log.Printf("Fire detection call failed: %v", err)
		writeError(w, err)
		return
	}

	alert := h.gateway.PublishDetections(detections)
	writeJSON(w, http.StatusOK, map[string]any{
		"detections": detections,
		"alert":      alert,
	})
}
