package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/cuemby/hamster/pkg/events"
	"github.com/cuemby/hamster/pkg/log"
	"github.com/cuemby/hamster/pkg/metrics"
	"github.com/cuemby/hamster/pkg/types"
	"github.com/gorilla/mux"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
)

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool {
		return true
	},
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
}

// HTTPServer serves health checks, metrics, read-only JSON views of the pool
// and an event stream over websocket
type HTTPServer struct {
	backend Backend
	router  *mux.Router
	server  *http.Server
	logger  zerolog.Logger
}

// NewHTTPServer creates a new HTTP server
func NewHTTPServer(backend Backend) *HTTPServer {
	hs := &HTTPServer{
		backend: backend,
		router:  mux.NewRouter(),
		logger:  log.WithComponent("http"),
	}

	hs.router.Handle("/metrics", metrics.Handler()).Methods(http.MethodGet)
	hs.router.HandleFunc("/health", metrics.HealthHandler()).Methods(http.MethodGet)
	hs.router.HandleFunc("/ready", metrics.ReadyHandler()).Methods(http.MethodGet)
	hs.router.HandleFunc("/live", metrics.LivenessHandler()).Methods(http.MethodGet)

	v1 := hs.router.PathPrefix("/v1").Subrouter()
	v1.Use(hs.loggingMiddleware)
	v1.HandleFunc("/resources", hs.handleResources).Methods(http.MethodGet)
	v1.HandleFunc("/resources/{id:[0-9]+}", hs.handleResource).Methods(http.MethodGet)
	v1.HandleFunc("/dapps", hs.handleDApps).Methods(http.MethodGet)
	v1.HandleFunc("/dapps/{id:[0-9]+}", hs.handleDApp).Methods(http.MethodGet)
	v1.HandleFunc("/rank", hs.handleRank).Methods(http.MethodGet)
	v1.HandleFunc("/stats", hs.handleStats).Methods(http.MethodGet)
	v1.HandleFunc("/events", hs.handleEvents).Methods(http.MethodGet)

	return hs
}

// Start starts the HTTP server
func (hs *HTTPServer) Start(addr string) error {
	hs.server = &http.Server{
		Addr:         addr,
		Handler:      hs.router,
		ReadTimeout:  5 * time.Second,
		WriteTimeout: 10 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	hs.logger.Info().Str("addr", addr).Msg("HTTP server listening")
	if err := hs.server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

// Stop shuts the HTTP server down
func (hs *HTTPServer) Stop() error {
	if hs.server == nil {
		return nil
	}
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	return hs.server.Shutdown(ctx)
}

// Handler returns the HTTP handler for embedding in other servers
func (hs *HTTPServer) Handler() http.Handler {
	return hs.router
}

func (hs *HTTPServer) loggingMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		next.ServeHTTP(w, r)
		hs.logger.Debug().
			Str("method", r.Method).
			Str("path", r.URL.Path).
			Dur("duration", time.Since(start)).
			Msg("HTTP request")
	})
}

func writeJSON(w http.ResponseWriter, code int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}

// writeError maps err through the gRPC code table to an HTTP status
func writeError(w http.ResponseWriter, err error) {
	st, _ := status.FromError(ToStatus(err))
	code := http.StatusInternalServerError
	switch st.Code() {
	case codes.NotFound:
		code = http.StatusNotFound
	case codes.InvalidArgument:
		code = http.StatusBadRequest
	case codes.PermissionDenied:
		code = http.StatusForbidden
	case codes.Unavailable:
		code = http.StatusServiceUnavailable
	}
	writeJSON(w, code, map[string]string{"error": st.Message()})
}

func pathID(r *http.Request) (uint64, error) {
	return strconv.ParseUint(mux.Vars(r)["id"], 10, 64)
}

func (hs *HTTPServer) handleResources(w http.ResponseWriter, r *http.Request) {
	resources, err := hs.backend.ListResources()
	if err != nil {
		writeError(w, err)
		return
	}
	if owner := r.URL.Query().Get("owner"); owner != "" {
		filtered := make([]*types.ComputingResource, 0, len(resources))
		for _, res := range resources {
			if string(res.Owner) == owner {
				filtered = append(filtered, res)
			}
		}
		resources = filtered
	}
	writeJSON(w, http.StatusOK, ListResourcesResponse{Resources: resources})
}

func (hs *HTTPServer) handleResource(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r)
	if err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": err.Error()})
		return
	}
	resource, err := hs.backend.GetResource(id)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, ResourceResponse{Resource: resource})
}

func (hs *HTTPServer) handleDApps(w http.ResponseWriter, r *http.Request) {
	dapps, err := hs.backend.ListDApps()
	if err != nil {
		writeError(w, err)
		return
	}
	if owner := r.URL.Query().Get("owner"); owner != "" {
		filtered := make([]*types.DApp, 0, len(dapps))
		for _, d := range dapps {
			if string(d.Owner) == owner {
				filtered = append(filtered, d)
			}
		}
		dapps = filtered
	}
	writeJSON(w, http.StatusOK, ListDAppsResponse{DApps: dapps})
}

func (hs *HTTPServer) handleDApp(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r)
	if err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": err.Error()})
		return
	}
	dapp, err := hs.backend.GetDApp(id)
	if err != nil {
		writeError(w, err)
		return
	}
	resp := DAppResponse{DApp: dapp}
	if deployment, err := hs.backend.GetDeployment(dapp.DeploymentID); err == nil {
		resp.Deployment = deployment
	}
	writeJSON(w, http.StatusOK, resp)
}

func (hs *HTTPServer) handleRank(w http.ResponseWriter, r *http.Request) {
	epoch, err := hs.backend.Epoch()
	if err != nil {
		writeError(w, err)
		return
	}
	rank, err := hs.backend.Rank()
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, GetRankResponse{Epoch: epoch, Rank: rank})
}

func (hs *HTTPServer) handleStats(w http.ResponseWriter, r *http.Request) {
	stats, err := hs.backend.Stats()
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, GetStatsResponse{Stats: stats})
}

// handleEvents upgrades to a websocket and streams events as JSON. The
// "type" query parameter may be repeated to filter by event type.
func (hs *HTTPServer) handleEvents(w http.ResponseWriter, r *http.Request) {
	broker := hs.backend.GetEventBroker()
	if broker == nil {
		writeJSON(w, http.StatusServiceUnavailable, map[string]string{"error": "event broker not running"})
		return
	}

	filter := make(map[events.EventType]bool)
	for _, t := range r.URL.Query()["type"] {
		filter[events.EventType(t)] = true
	}

	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		hs.logger.Warn().Err(err).Msg("WebSocket upgrade failed")
		return
	}

	sub := broker.Subscribe()
	done := make(chan struct{})

	// Read pump: detect client close and answer pings
	go func() {
		defer close(done)
		conn.SetReadDeadline(time.Now().Add(60 * time.Second))
		conn.SetPongHandler(func(string) error {
			conn.SetReadDeadline(time.Now().Add(60 * time.Second))
			return nil
		})
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
					hs.logger.Debug().Err(err).Msg("WebSocket closed")
				}
				return
			}
		}
	}()

	ticker := time.NewTicker(30 * time.Second)
	defer func() {
		ticker.Stop()
		broker.Unsubscribe(sub)
		conn.Close()
	}()

	for {
		select {
		case event, ok := <-sub:
			conn.SetWriteDeadline(time.Now().Add(10 * time.Second))
			if !ok {
				_ = conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if len(filter) > 0 && !filter[event.Type] {
				continue
			}
			if err := conn.WriteJSON(event); err != nil {
				return
			}
		case <-ticker.C:
			conn.SetWriteDeadline(time.Now().Add(10 * time.Second))
			if err := conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		case <-done:
			return
		}
	}
}
