package api

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/dojohq/crm-automation/internal/engine"
)

// Router-level tests that exercise validation paths without a database.
// Full state-machine behavior is covered in the engine package tests.

func testRouter() http.Handler {
	eng := engine.New(nil, nil, nil, nil, nil, engine.Options{})
	h := NewHandlers(nil, eng, nil, nil, nil, nil)
	return SetupRoutes(h)
}

func TestHealthCheck(t *testing.T) {
	rec := httptest.NewRecorder()
	testRouter().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/health", nil))

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"ok"`)
}

func TestTriggerRejectsMalformedBody(t *testing.T) {
	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/api/automation/trigger", strings.NewReader("{nope"))
	testRouter().ServeHTTP(rec, req)

	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestTriggerRejectsBadRecipientID(t *testing.T) {
	body := `{"trigger_type":"new_lead","recipient_type":"lead","recipient_id":"not-a-uuid"}`
	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/api/automation/trigger", strings.NewReader(body))
	testRouter().ServeHTTP(rec, req)

	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Contains(t, rec.Body.String(), "recipient_id")
}

func TestTriggerRejectsUnknownTriggerType(t *testing.T) {
	body := `{"trigger_type":"comet","recipient_type":"lead","recipient_id":"7b8a2c31-58f4-4d1a-9e0d-0f3a6c2b9d11"}`
	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/api/automation/trigger", strings.NewReader(body))
	testRouter().ServeHTTP(rec, req)

	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestPathUUIDValidation(t *testing.T) {
	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/api/sequences/not-a-uuid/", nil)
	testRouter().ServeHTTP(rec, req)

	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestStatsWithoutScheduler(t *testing.T) {
	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/api/automation/stats", nil)
	testRouter().ServeHTTP(rec, req)

	assert.Equal(t, http.StatusNotFound, rec.Code)
}
