package controllers

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"termhost/internal/config"
	"termhost/internal/models"
	"termhost/services"

	"github.com/gin-gonic/gin"
)

/**
 * Build a router with all routes registered
 * @param {*testing.T} t - Testing framework instance
 * @returns {*gin.Engine} Router ready for httptest requests
 */
func newTestRouter(t *testing.T) *gin.Engine {
	t.Helper()
	gin.SetMode(gin.TestMode)

	router := gin.New()
	server := services.NewServer(&config.Config)
	NewAPIController(server).RegisterRoutes(router)
	NewSystemController(server).RegisterRoutes(router)
	return router
}

func doRequest(router *gin.Engine, method, path string) *httptest.ResponseRecorder {
	recorder := httptest.NewRecorder()
	request := httptest.NewRequest(method, path, nil)
	router.ServeHTTP(recorder, request)
	return recorder
}

/**
 * Test liveness probe response shape
 * @param {*testing.T} t - Testing framework instance
 */
func TestHealthzEndpoint(t *testing.T) {
	router := newTestRouter(t)

	resp := doRequest(router, http.MethodGet, "/healthz")
	if resp.Code != http.StatusOK {
		t.Fatalf("Expected 200, got %d", resp.Code)
	}

	var body map[string]interface{}
	if err := json.Unmarshal(resp.Body.Bytes(), &body); err != nil {
		t.Fatalf("Invalid JSON response: %v", err)
	}
	if body["status"] != "UP" {
		t.Errorf("Expected status UP, got %v", body["status"])
	}
}

/**
 * Test aggregated health endpoint
 * @param {*testing.T} t - Testing framework instance
 */
func TestHealthEndpoint(t *testing.T) {
	router := newTestRouter(t)

	resp := doRequest(router, http.MethodGet, "/health")
	if resp.Code != http.StatusOK {
		t.Fatalf("Expected 200, got %d", resp.Code)
	}

	var body map[string]interface{}
	if err := json.Unmarshal(resp.Body.Bytes(), &body); err != nil {
		t.Fatalf("Invalid JSON response: %v", err)
	}
	if _, ok := body["health"]; !ok {
		t.Error("Response missing 'health' field")
	}
	if _, ok := body["initSystem"]; !ok {
		t.Error("Response missing 'initSystem' field")
	}
}

/**
 * Test system status endpoint
 * @param {*testing.T} t - Testing framework instance
 */
func TestStatusEndpoint(t *testing.T) {
	router := newTestRouter(t)

	resp := doRequest(router, http.MethodGet, "/termhost/api/v1/system/status")
	if resp.Code != http.StatusOK {
		t.Fatalf("Expected 200, got %d", resp.Code)
	}

	var body map[string]interface{}
	if err := json.Unmarshal(resp.Body.Bytes(), &body); err != nil {
		t.Fatalf("Invalid JSON response: %v", err)
	}
	if _, ok := body["updateInProgress"]; !ok {
		t.Error("Response missing 'updateInProgress' field")
	}
}

/**
 * Test logs endpoint with line clamping
 * @param {*testing.T} t - Testing framework instance
 */
func TestLogsEndpoint(t *testing.T) {
	router := newTestRouter(t)

	for _, path := range []string{
		"/termhost/api/v1/system/logs",
		"/termhost/api/v1/system/logs?lines=50",
		"/termhost/api/v1/system/logs?lines=abc",
	} {
		resp := doRequest(router, http.MethodGet, path)
		if resp.Code != http.StatusOK {
			t.Errorf("GET %s: expected 200, got %d", path, resp.Code)
		}
	}
}

/**
 * Test stream endpoint parameter validation
 * @param {*testing.T} t - Testing framework instance
 * @description
 * - Missing id is a bad request
 * - An id that doesn't match the retained attempt is not found
 */
func TestStreamEndpointValidation(t *testing.T) {
	router := newTestRouter(t)

	resp := doRequest(router, http.MethodGet, "/termhost/api/v1/system/update/stream")
	if resp.Code != http.StatusBadRequest {
		t.Errorf("Missing id: expected 400, got %d", resp.Code)
	}

	resp = doRequest(router, http.MethodGet, "/termhost/api/v1/system/update/stream?id=no-such-update")
	if resp.Code != http.StatusNotFound {
		t.Errorf("Unknown id: expected 404, got %d", resp.Code)
	}
}

/**
 * Test that a late subscriber gets one synthesized terminal event
 * @param {*testing.T} t - Testing framework instance
 * @description
 * - A run is driven to its terminal state before the stream is opened
 * - The response must carry exactly one event frame matching the retained
 *   attempt, not a replay and not a 404
 */
func TestStreamLateSubscriber(t *testing.T) {
	gin.SetMode(gin.TestMode)
	router := gin.New()

	controller := services.NewServiceController(models.InitManual, "termhost")
	checker := services.NewUpdateChecker(t.TempDir(), "main", "master")
	broadcaster := services.GetProgressBroadcaster()
	orchestrator := services.NewUpdateOrchestrator(controller, checker, broadcaster)
	server := services.NewServerWith(&config.Config, controller, checker, orchestrator, broadcaster)
	NewSystemController(server).RegisterRoutes(router)

	// 空目录不是git检出，这次运行很快以失败终结
	updateID, err := orchestrator.StartUpdate()
	if err != nil {
		t.Fatalf("StartUpdate failed: %v", err)
	}
	deadline := time.Now().Add(5 * time.Second)
	for {
		attempt := orchestrator.LastAttempt()
		if attempt != nil && attempt.Status != models.AttemptInProgress && !orchestrator.InProgress() {
			break
		}
		if time.Now().After(deadline) {
			t.Fatal("update did not finish in time")
		}
		time.Sleep(10 * time.Millisecond)
	}

	resp := doRequest(router, http.MethodGet, "/termhost/api/v1/system/update/stream?id="+updateID)
	if resp.Code != http.StatusOK {
		t.Fatalf("Expected 200, got %d", resp.Code)
	}

	body := resp.Body.String()
	if got := strings.Count(body, "data:"); got != 1 {
		t.Fatalf("Expected exactly one event frame, got %d: %q", got, body)
	}

	var event models.UpdateEvent
	payload := strings.TrimSpace(strings.TrimPrefix(body, "data:"))
	if err := json.Unmarshal([]byte(payload), &event); err != nil {
		t.Fatalf("Invalid event JSON %q: %v", payload, err)
	}

	attempt := orchestrator.LastAttempt()
	if event.UpdateID != attempt.UpdateID {
		t.Errorf("Event updateId %q does not match attempt %q", event.UpdateID, attempt.UpdateID)
	}
	if event.Type != models.EventError {
		t.Errorf("Expected a terminal error event, got %s", event.Type)
	}
	if event.Error != attempt.Error {
		t.Errorf("Event error %q does not match attempt error %q", event.Error, attempt.Error)
	}
}

/**
 * Test update status poll endpoint before any update ran
 * @param {*testing.T} t - Testing framework instance
 */
func TestUpdateStatusEndpoint(t *testing.T) {
	router := newTestRouter(t)

	resp := doRequest(router, http.MethodGet, "/termhost/api/v1/system/update/status")
	if resp.Code != http.StatusOK {
		t.Fatalf("Expected 200, got %d", resp.Code)
	}

	var body struct {
		InProgress  bool        `json:"inProgress"`
		LastAttempt interface{} `json:"lastAttempt"`
	}
	if err := json.Unmarshal(resp.Body.Bytes(), &body); err != nil {
		t.Fatalf("Invalid JSON response: %v", err)
	}
	if body.InProgress {
		t.Error("No update should be in progress")
	}
	if body.LastAttempt != nil {
		t.Errorf("Expected nil lastAttempt, got %v", body.LastAttempt)
	}
}
