package metrics

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func registerAll(healthy bool) {
	for _, name := range CriticalComponents {
		RegisterComponent(name, healthy, "")
	}
}

func TestRegisterComponent(t *testing.T) {
	ResetComponents()

	RegisterComponent("store", true, "open")

	components.mu.RLock()
	defer components.mu.RUnlock()
	require.Len(t, components.components, 1)
	comp := components.components["store"]
	assert.True(t, comp.Healthy)
	assert.Equal(t, "open", comp.Message)
}

func TestGetHealth(t *testing.T) {
	tests := []struct {
		name       string
		setup      func()
		wantStatus string
	}{
		{
			name:       "all healthy",
			setup:      func() { registerAll(true) },
			wantStatus: "healthy",
		},
		{
			name: "one unhealthy",
			setup: func() {
				registerAll(true)
				UpdateComponent("raft", false, "no leader")
			},
			wantStatus: "unhealthy",
		},
		{
			name:       "nothing registered",
			setup:      func() {},
			wantStatus: "healthy",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ResetComponents()
			tt.setup()
			assert.Equal(t, tt.wantStatus, GetHealth().Status)
		})
	}

	ResetComponents()
	RegisterComponent("raft", false, "no leader")
	assert.Equal(t, "unhealthy: no leader", GetHealth().Components["raft"])
}

func TestGetReadiness(t *testing.T) {
	ResetComponents()
	registerAll(true)
	assert.Equal(t, "ready", GetReadiness().Status)

	ResetComponents()
	RegisterComponent("api", true, "")
	ready := GetReadiness()
	assert.Equal(t, "not_ready", ready.Status)
	assert.Equal(t, "not registered", ready.Components["store"])
	assert.Equal(t, "waiting for raft initialization", ready.Message)

	ResetComponents()
	registerAll(true)
	UpdateComponent("store", false, "closed")
	ready = GetReadiness()
	assert.Equal(t, "not_ready", ready.Status)
	assert.Equal(t, "waiting for store", ready.Message)
}

func TestHandlers(t *testing.T) {
	tests := []struct {
		name     string
		handler  http.HandlerFunc
		healthy  bool
		wantCode int
	}{
		{"health ok", HealthHandler(), true, http.StatusOK},
		{"health failing", HealthHandler(), false, http.StatusServiceUnavailable},
		{"ready ok", ReadyHandler(), true, http.StatusOK},
		{"ready failing", ReadyHandler(), false, http.StatusServiceUnavailable},
		{"live always", LivenessHandler(), false, http.StatusOK},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ResetComponents()
			registerAll(tt.healthy)

			rec := httptest.NewRecorder()
			tt.handler(rec, httptest.NewRequest(http.MethodGet, "/", nil))

			assert.Equal(t, tt.wantCode, rec.Code)
			assert.Equal(t, "application/json", rec.Header().Get("Content-Type"))

			var body map[string]interface{}
			require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
			assert.Contains(t, body, "status")
		})
	}
}
