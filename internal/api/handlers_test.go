package api

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"

	"smart-home-gateway/internal/alerting"
	"smart-home-gateway/internal/auth"
	"smart-home-gateway/internal/config"
	"smart-home-gateway/internal/data"
	"smart-home-gateway/internal/device"
	"smart-home-gateway/internal/firedetect"
	"smart-home-gateway/internal/ingest"
	"smart-home-gateway/internal/stats"
	"smart-home-gateway/internal/storage"
	"smart-home-gateway/internal/threshold"
)

type fakePublisher struct{ published []string }

func (f *fakePublisher) Publish(_ context.Context, topic, payload string) error {
	f.published = append(f.published, topic+"="+payload)
	return nil
}

func testHandler(t *testing.T, fireURL string) (*APIHandler, *storage.MemoryStore, *alerting.Hub) {
	t.Helper()

	cfg := &config.Config{}
	cfg.Thresholds.Rules = map[string]config.ThresholdRule{
		"temperature": {Limit: 30, Comparator: ">", Cooldown: time.Minute},
	}
	cfg.Fire.ConfidenceFloor = 0.5
	cfg.Fire.Location = "living room"

	hash, err := bcrypt.GenerateFromPassword([]byte("secret"), bcrypt.MinCost)
	require.NoError(t, err)
	authCfg := config.AuthConfig{
		JWTSecret:     "test-secret",
		JWTExpiration: 5,
		Users:         []config.User{{Username: "admin", PasswordHash: string(hash), Role: "admin"}},
	}

	store := storage.NewMemoryStore(1000, time.Minute, nil)
	hub := alerting.NewHub(10, 16)
	gw := ingest.NewGateway(store, threshold.NewEvaluator(cfg), hub, 0)
	ctrl := device.NewController(&fakePublisher{}, map[string]string{
		device.TopicFan:    "fan",
		device.TopicSwitch: "switch",
		device.TopicColor:  "color change",
	}, 100)
	fire := firedetect.NewClient(fireURL, "", time.Second)

	h := NewAPIHandler(store, stats.NewAggregator(store), gw, hub, ctrl, fire, auth.NewAuthManager(authCfg))
	return h, store, hub
}

func doJSON(t *testing.T, srv *httptest.Server, method, path string, body any) (*http.Response, map[string]any) {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req, err := http.NewRequest(method, srv.URL+path, &buf)
	require.NoError(t, err)
	req.Header.Set("Content-Type", "application/json")
	resp, err := srv.Client().Do(req)
	require.NoError(t, err)

	var decoded map[string]any
	if strings.HasPrefix(resp.Header.Get("Content-Type"), "application/json") {
		json.NewDecoder(resp.Body).Decode(&decoded)
	}
	resp.Body.Close()
	return resp, decoded
}

func TestStatusProbes(t *testing.T) {
	h, _, _ := testHandler(t, "")
	srv := httptest.NewServer(SetupUIRouter(h))
	defer srv.Close()

	for path, want := range map[string]string{
		"/sensor/":      "sensor is working",
		"/fan/":         "Fan is working",
		"/light/":       "light is working",
		"/login/":       "login is working",
		"/activitylog/": "activities log is working",
	} {
		resp, body := doJSON(t, srv, http.MethodGet, path, nil)
		assert.Equal(t, http.StatusOK, resp.StatusCode, path)
		assert.Equal(t, want, body["status"], path)
	}
}

func TestLatestEndpoint(t *testing.T) {
	h, store, _ := testHandler(t, "")
	srv := httptest.NewServer(SetupUIRouter(h))
	defer srv.Close()

	// Channel exists but is empty: 204, distinguishable from unknown.
	resp, _ := doJSON(t, srv, http.MethodGet, "/sensor/temp/latest", nil)
	assert.Equal(t, http.StatusNoContent, resp.StatusCode)

	resp, _ = doJSON(t, srv, http.MethodGet, "/sensor/pressure/latest", nil)
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)

	require.NoError(t, store.Append(data.ChannelTemperature, 23.5, time.Now()))
	resp, body := doJSON(t, srv, http.MethodGet, "/sensor/temp/latest", nil)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, 23.5, body["value"])
}

func TestHistoryEndpoint(t *testing.T) {
	h, store, _ := testHandler(t, "")
	srv := httptest.NewServer(SetupUIRouter(h))
	defer srv.Close()

	base := time.Now().Add(-time.Minute)
	for i := 0; i < 5; i++ {
		require.NoError(t, store.Append(data.ChannelHumidity, float64(i*10), base.Add(time.Duration(i)*time.Second)))
	}

	resp, err := srv.Client().Get(srv.URL + "/sensor/humid/history1000")
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var history []map[string]any
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&history))
	require.Len(t, history, 5)
	assert.Equal(t, 0.0, history[0]["value"])
	assert.Equal(t, 40.0, history[4]["value"])
}

func TestStatsEndpoint(t *testing.T) {
	h, store, _ := testHandler(t, "")
	srv := httptest.NewServer(SetupUIRouter(h))
	defer srv.Close()

	// Empty window: avg/std_dev are null, not 0.
	resp, body := doJSON(t, srv, http.MethodGet, "/sensor/temp/stats", nil)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Nil(t, body["avg"])
	assert.Nil(t, body["std_dev"])
	assert.Equal(t, 0.0, body["count"])

	base := time.Now().Add(-time.Minute)
	for i, v := range []float64{22, 24, 26} {
		require.NoError(t, store.Append(data.ChannelTemperature, v, base.Add(time.Duration(i)*time.Second)))
	}

	resp, body = doJSON(t, srv, http.MethodGet, "/sensor/temp/stats", nil)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, 24.0, body["avg"])
	assert.Equal(t, 24.0, body["median"])
	assert.Equal(t, 26.0, body["current"])
	assert.Equal(t, 3.0, body["count"])

	resp, _ = doJSON(t, srv, http.MethodGet, "/sensor/temp/stats?window=bogus", nil)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestIngestEndpoint(t *testing.T) {
	h, store, hub := testHandler(t, "")
	srv := httptest.NewServer(SetupDataRouter(h))
	defer srv.Close()

	resp, body := doJSON(t, srv, http.MethodPost, "/data", map[string]any{"channel": "temp", "value": "32"})
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, 1.0, body["accepted"])

	latest, err := store.Latest(data.ChannelTemperature)
	require.NoError(t, err)
	require.NotNil(t, latest)
	assert.Equal(t, 32.0, latest.Value)

	// The breach alert was published before the ingest response returned.
	require.Len(t, hub.Snapshot(), 1)

	resp, _ = doJSON(t, srv, http.MethodPost, "/data", map[string]any{"channel": "temp", "value": "junk"})
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)

	resp, body = doJSON(t, srv, http.MethodPost, "/data", map[string]any{
		"metrics": map[string]any{"temperature": 25, "humidity": 55},
	})
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, 2.0, body["accepted"])
}

func TestFanEndpoints(t *testing.T) {
	h, _, _ := testHandler(t, "")
	srv := httptest.NewServer(SetupUIRouter(h))
	defer srv.Close()

	resp, body := doJSON(t, srv, http.MethodPost, "/fan/fan/on", map[string]int{"speed": 80})
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "Success", body["message"])

	resp, _ = doJSON(t, srv, http.MethodPost, "/fan/fan/on", map[string]int{"speed": 150})
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)

	resp, _ = doJSON(t, srv, http.MethodPost, "/fan/fan/off", nil)
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	resp, body = doJSON(t, srv, http.MethodGet, "/device/state", nil)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, false, body["fan_on"])
}

func TestLightEndpoints(t *testing.T) {
	h, _, _ := testHandler(t, "")
	srv := httptest.NewServer(SetupUIRouter(h))
	defer srv.Close()

	resp, _ := doJSON(t, srv, http.MethodPost, "/light/switch/on", nil)
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	resp, _ = doJSON(t, srv, http.MethodPost, "/light/switch/colorchange", map[string]int{"code": 3})
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	resp, body := doJSON(t, srv, http.MethodGet, "/device/state", nil)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "3", body["led_color"])
}

func TestNoPublisherReturnsBadGateway(t *testing.T) {
	h, _, _ := testHandler(t, "")
	h.devices = device.NewController(nil, nil, 10)

	srv := httptest.NewServer(SetupUIRouter(h))
	defer srv.Close()

	resp, _ := doJSON(t, srv, http.MethodPost, "/fan/fan/on", map[string]int{"speed": 50})
	assert.Equal(t, http.StatusBadGateway, resp.StatusCode)
}

func TestLoginFlow(t *testing.T) {
	h, _, _ := testHandler(t, "")
	srv := httptest.NewServer(SetupUIRouter(h))
	defer srv.Close()

	resp, _ := doJSON(t, srv, http.MethodPost, "/login/", map[string]string{"username": "admin", "password": "wrong"})
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)

	resp, body := doJSON(t, srv, http.MethodPost, "/login/", map[string]string{"username": "admin", "password": "secret"})
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.NotEmpty(t, body["token"])
	assert.Equal(t, "admin", body["role"])

	claims, err := h.Auth.ValidateJWT(body["token"].(string))
	require.NoError(t, err)
	assert.Equal(t, "admin", claims.Username)
}

func TestActivityLogEndpoint(t *testing.T) {
	h, _, _ := testHandler(t, "")
	srv := httptest.NewServer(SetupUIRouter(h))
	defer srv.Close()

	doJSON(t, srv, http.MethodPost, "/fan/fan/on", map[string]int{"speed": 40})
	doJSON(t, srv, http.MethodPost, "/light/switch/on", nil)

	resp, body := doJSON(t, srv, http.MethodPost, "/activitylog/get1000", nil)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	entries := body["data"].([]any)
	require.Len(t, entries, 2)
	newest := entries[0].(map[string]any)
	assert.Equal(t, "light", newest["device"])
}

func TestNotificationEndpoints(t *testing.T) {
	h, _, hub := testHandler(t, "")
	srv := httptest.NewServer(SetupUIRouter(h))
	defer srv.Close()

	hub.Publish(data.AlertEvent{Kind: data.KindDataThreshold, Message: "hot"})

	resp, body := doJSON(t, srv, http.MethodGet, "/notifications/", nil)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, 1.0, body["unread"])

	resp, _ = doJSON(t, srv, http.MethodPost, "/notifications/read_all", nil)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, 0, hub.Unread())

	resp, _ = doJSON(t, srv, http.MethodPost, "/notifications/clear", nil)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Empty(t, hub.Snapshot())
}

func multipartImage(t *testing.T) (*bytes.Buffer, string) {
	t.Helper()
	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	part, err := mw.CreateFormFile("file", "frame.jpg")
	require.NoError(t, err)
	part.Write([]byte("not-really-a-jpeg"))
	require.NoError(t, mw.Close())
	return &buf, mw.FormDataContentType()
}

func TestFireDetectEndpoint(t *testing.T) {
	fireSrv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/detect_images", r.URL.Path)
		_, _, err := r.FormFile("file")
		require.NoError(t, err)
		w.Header().Set("Content-Type", "application/json")
		fmt.Fprint(w, `{"detections":[{"bbox":[10,10,50,60],"class":"fire","confidence":0.91}]}`)
	}))
	defer fireSrv.Close()

	h, _, hub := testHandler(t, fireSrv.URL)
	srv := httptest.NewServer(SetupUIRouter(h))
	defer srv.Close()

	body, contentType := multipartImage(t)
	req, err := http.NewRequest(http.MethodPost, srv.URL+"/firedetect/detect", body)
	require.NoError(t, err)
	req.Header.Set("Content-Type", contentType)
	resp, err := srv.Client().Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()

	require.Equal(t, http.StatusOK, resp.StatusCode)
	var decoded map[string]any
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&decoded))
	assert.NotNil(t, decoded["alert"])

	alerts := hub.Snapshot()
	require.Len(t, alerts, 1)
	assert.Equal(t, data.KindFireAlert, alerts[0].Kind)
	assert.Equal(t, "living room", alerts[0].Location)
}

func TestFireDetectUpstreamDown(t *testing.T) {
	h, _, _ := testHandler(t, "http://127.0.0.1:1") // nothing listens here
	srv := httptest.NewServer(SetupUIRouter(h))
	defer srv.Close()

	body, contentType := multipartImage(t)
	req, err := http.NewRequest(http.MethodPost, srv.URL+"/firedetect/detect", body)
	require.NoError(t, err)
	req.Header.Set("Content-Type", contentType)
	resp, err := srv.Client().Do(req)
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusBadGateway, resp.StatusCode)
}

func TestCORSPreflight(t *testing.T) {
	h, _, _ := testHandler(t, "")
	srv := httptest.NewServer(SetupUIRouter(h))
	defer srv.Close()

	req, err := http.NewRequest(http.MethodOptions, srv.URL+"/sensor/temp/latest", nil)
	require.NoError(t, err)
	req.Header.Set("Origin", "http://localhost:3000")
	resp, err := srv.Client().Do(req)
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusNoContent, resp.StatusCode)
	assert.Equal(t, "http://localhost:3000", resp.Header.Get("Access-Control-Allow-Origin"))
}

func TestIngestAPIKey(t *testing.T) {
	h, _, _ := testHandler(t, "")
	h.Auth = auth.NewAuthManager(config.AuthConfig{APIKeys: []string{"sekrit"}})
	srv := httptest.NewServer(SetupDataRouter(h))
	defer srv.Close()

	req, err := http.NewRequest(http.MethodPost, srv.URL+"/data", strings.NewReader(`{"channel":"temp","value":21}`))
	require.NoError(t, err)
	resp, err := srv.Client().Do(req)
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)

	req, err = http.NewRequest(http.MethodPost, srv.URL+"/data", strings.NewReader(`{"channel":"temp","value":21}`))
	require.NoError(t, err)
	req.Header.Set("X-API-Key", "sekrit")
	resp, err = srv.Client().Do(req)
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)
}
