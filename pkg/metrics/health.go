package metrics

import (
	"encoding/json"
	"net/http"
	"sync"
	"time"
)

// HealthStatus is the body of /health and /ready
type HealthStatus struct {
	Status     string            `json:"status"`
	Timestamp  time.Time         `json:"timestamp"`
	Components map[string]string `json:"components,omitempty"`
	Message    string            `json:"message,omitempty"`
	Version    string            `json:"version,omitempty"`
	Uptime     string            `json:"uptime,omitempty"`
}

// CriticalComponents must all be registered and healthy for readiness
var CriticalComponents = []string{"raft", "store", "api"}

// ComponentHealth is the last reported state of one component
type ComponentHealth struct {
	Healthy bool
	Message string
	Updated time.Time
}

type registry struct {
	mu         sync.RWMutex
	components map[string]ComponentHealth
	startTime  time.Time
	version    string
}

var components = &registry{
	components: make(map[string]ComponentHealth),
	startTime:  time.Now(),
}

func (r *registry) status(state, message string, parts map[string]string) HealthStatus {
	return HealthStatus{
		Status:     state,
		Timestamp:  time.Now(),
		Components: parts,
		Message:    message,
		Version:    r.version,
		Uptime:     time.Since(r.startTime).String(),
	}
}

// SetVersion sets the version reported by /health and /ready
func SetVersion(version string) {
	components.mu.Lock()
	defer components.mu.Unlock()
	components.version = version
}

// RegisterComponent records the state of a component
func RegisterComponent(name string, healthy bool, message string) {
	components.mu.Lock()
	defer components.mu.Unlock()
	components.components[name] = ComponentHealth{
		Healthy: healthy,
		Message: message,
		Updated: time.Now(),
	}
}

// UpdateComponent is RegisterComponent for a component already known
func UpdateComponent(name string, healthy bool, message string) {
	RegisterComponent(name, healthy, message)
}

// ResetComponents forgets every registered component
func ResetComponents() {
	components.mu.Lock()
	defer components.mu.Unlock()
	components.components = make(map[string]ComponentHealth)
}

// GetHealth is unhealthy as soon as any registered component is
func GetHealth() HealthStatus {
	components.mu.RLock()
	defer components.mu.RUnlock()

	state := "healthy"
	parts := make(map[string]string, len(components.components))
	for name, c := range components.components {
		if c.Healthy {
			parts[name] = "healthy"
			continue
		}
		state = "unhealthy"
		parts[name] = "unhealthy: " + c.Message
	}
	return components.status(state, "", parts)
}

// GetReadiness is ready once every critical component is registered and
// healthy. Message names the first one still missing.
func GetReadiness() HealthStatus {
	components.mu.RLock()
	defer components.mu.RUnlock()

	state, message := "ready", ""
	parts := make(map[string]string, len(CriticalComponents))
	for _, name := range CriticalComponents {
		c, ok := components.components[name]
		switch {
		case !ok:
			parts[name] = "not registered"
			if message == "" {
				message = "waiting for " + name + " initialization"
			}
		case !c.Healthy:
			parts[name] = "not ready: " + c.Message
			if message == "" {
				message = "waiting for " + name
			}
		default:
			parts[name] = "ready"
			continue
		}
		state = "not_ready"
	}
	return components.status(state, message, parts)
}

func writeStatus(w http.ResponseWriter, code int, body interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(body)
}

// HealthHandler serves /health: 503 when any component is unhealthy
func HealthHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		health := GetHealth()
		code := http.StatusOK
		if health.Status != "healthy" {
			code = http.StatusServiceUnavailable
		}
		writeStatus(w, code, health)
	}
}

// ReadyHandler serves /ready: 503 until every critical component is ready
func ReadyHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ready := GetReadiness()
		code := http.StatusOK
		if ready.Status != "ready" {
			code = http.StatusServiceUnavailable
		}
		writeStatus(w, code, ready)
	}
}

// LivenessHandler serves /live: 200 while the process runs
func LivenessHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		writeStatus(w, http.StatusOK, map[string]string{
			"status": "alive",
			"uptime": time.Since(components.startTime).String(),
		})
	}
}
