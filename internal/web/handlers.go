package web

import (
	"crypto/rand"
	"encoding/hex"
	"encoding/json"
	"errors"
	"log"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/gorilla/websocket"

	"zork-argento/server/internal/config"
	"zork-argento/server/internal/engine"
)

// WebSocket upgrader configuration
var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin: func(r *http.Request) bool {
		return true // Allow all origins for development
	},
}

type Handlers struct {
	config   *config.Config
	registry *SessionRegistry
	hub      *EventHub
}

func NewHandlers(cfg *config.Config, registry *SessionRegistry, hub *EventHub) *Handlers {
	return &Handlers{
		config:   cfg,
		registry: registry,
		hub:      hub,
	}
}

func (h *Handlers) HealthCheck(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	json.NewEncoder(w).Encode(map[string]interface{}{
		"status":   "ok",
		"service":  "zork-argento",
		"sessions": h.registry.SessionCount(),
		"clients":  h.hub.GetClientCount(),
	})
}

// CORS middleware
func corsMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Methods", "GET, POST, PUT, DELETE, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "*")
		w.Header().Set("Access-Control-Allow-Credentials", "true")
		w.Header().Set("Access-Control-Max-Age", "300")

		if r.Method == "OPTIONS" {
			w.WriteHeader(http.StatusOK)
			return
		}

		next.ServeHTTP(w, r)
	})
}

func NewRouter(cfg *config.Config, registry *SessionRegistry, hub *EventHub, mediaDir string) *chi.Mux {
	r := chi.NewRouter()

	// Request logging middleware
	r.Use(func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			log.Printf("REQUEST: %s %s", r.Method, r.URL.Path)
			next.ServeHTTP(w, r)
		})
	})

	// CORS middleware
	r.Use(corsMiddleware)

	handlers := NewHandlers(cfg, registry, hub)

	// Generated images and audio are written to disk and served back
	// from the same process.
	mediaServer := http.StripPrefix("/media/", http.FileServer(http.Dir(mediaDir)))

	r.Get("/health", handlers.HealthCheck)
	r.Mount("/media", mediaServer)

	// API routes
	r.Route("/api/v1", func(r chi.Router) {
		r.Route("/adventure", func(r chi.Router) {
			r.Post("/create", handlers.CreateAdventure)
			r.Post("/turn", handlers.ExecuteTurn)
			r.Post("/load", handlers.LoadAdventure)
			r.Post("/reset", handlers.ResetAdventure)
			r.Get("/current", handlers.GetCurrentAdventure)
			r.Get("/list", handlers.ListAdventures)
			r.Post("/image/retry", handlers.RetryImage)
			r.Post("/audio", handlers.GenerateAudio)
		})
		r.Get("/events", handlers.EventStream)
	})

	return r
}

type createAdventureRequest struct {
	UserID      string `json:"userId"`
	Description string `json:"description"`
	Length      string `json:"length"`
}

type turnRequest struct {
	UserID  string `json:"userId"`
	Message string `json:"message"`
}

type loadAdventureRequest struct {
	UserID      string `json:"userId"`
	AdventureID string `json:"adventureId"`
}

type resetRequest struct {
	UserID string `json:"userId"`
}

type stepMediaRequest struct {
	UserID string `json:"userId"`
	StepID int    `json:"stepId"`
}

// CreateAdventure generates a brand-new adventure from a free-text
// description and returns the resulting snapshot.
func (h *Handlers) CreateAdventure(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")

	var req createAdventureRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body")
		return
	}
	if req.UserID == "" || req.Description == "" {
		writeError(w, http.StatusBadRequest, "userId and description are required")
		return
	}

	session := h.registry.SessionFor(req.UserID)
	if err := session.Controller.StartAdventure(r.Context(), req.Description, req.Length); err != nil {
		writeTurnError(w, err)
		return
	}

	h.writeSnapshot(w, session)
}

// ExecuteTurn runs one player turn against the active adventure.
func (h *Handlers) ExecuteTurn(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")

	var req turnRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body")
		return
	}
	if req.UserID == "" {
		writeError(w, http.StatusBadRequest, "userId is required")
		return
	}

	session := h.registry.SessionFor(req.UserID)
	if err := session.Controller.ExecuteTurn(r.Context(), req.Message); err != nil {
		writeTurnError(w, err)
		return
	}

	h.writeSnapshot(w, session)
}

// LoadAdventure restores a saved adventure into the user's session.
func (h *Handlers) LoadAdventure(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")

	var req loadAdventureRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body")
		return
	}
	if req.UserID == "" || req.AdventureID == "" {
		writeError(w, http.StatusBadRequest, "userId and adventureId are required")
		return
	}

	session := h.registry.SessionFor(req.UserID)
	if err := session.Engine.Load(r.Context(), req.AdventureID, req.UserID); err != nil {
		if errors.Is(err, engine.ErrAdventureNotFound) {
			writeError(w, http.StatusNotFound, "Adventure not found")
			return
		}
		log.Printf("[Handlers] Load failed for user %s: %v", req.UserID, err)
		writeError(w, http.StatusInternalServerError, "Failed to load adventure")
		return
	}

	h.writeSnapshot(w, session)
}

// ResetAdventure clears the user's in-memory session without touching
// saved documents.
func (h *Handlers) ResetAdventure(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")

	var req resetRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body")
		return
	}
	if req.UserID == "" {
		writeError(w, http.StatusBadRequest, "userId is required")
		return
	}

	session := h.registry.SessionFor(req.UserID)
	session.Engine.Reset()

	w.WriteHeader(http.StatusOK)
	json.NewEncoder(w).Encode(map[string]string{"status": "reset"})
}

// GetCurrentAdventure returns the active adventure snapshot, if any.
func (h *Handlers) GetCurrentAdventure(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")

	userID := r.URL.Query().Get("userId")
	if userID == "" {
		writeError(w, http.StatusBadRequest, "userId is required")
		return
	}

	session := h.registry.SessionFor(userID)
	snapshot := session.Engine.Snapshot()
	if snapshot == nil {
		writeError(w, http.StatusNotFound, "No active adventure")
		return
	}

	w.WriteHeader(http.StatusOK)
	json.NewEncoder(w).Encode(map[string]interface{}{
		"adventureId": session.Engine.AdventureID(),
		"adventure":   snapshot,
		"imageErrors": session.Controller.ImageErrors(),
	})
}

// ListAdventures returns the user's saved adventures, most recent first.
func (h *Handlers) ListAdventures(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")

	userID := r.URL.Query().Get("userId")
	if userID == "" {
		writeError(w, http.StatusBadRequest, "userId is required")
		return
	}

	limit := 10
	if raw := r.URL.Query().Get("limit"); raw != "" {
		if parsed, err := strconv.Atoi(raw); err == nil && parsed > 0 {
			limit = parsed
		}
	}

	session := h.registry.SessionFor(userID)
	docs, err := session.Engine.ListForUser(r.Context(), userID, limit)
	if err != nil {
		log.Printf("[Handlers] List failed for user %s: %v", userID, err)
		writeError(w, http.StatusInternalServerError, "Failed to list adventures")
		return
	}

	w.WriteHeader(http.StatusOK)
	json.NewEncoder(w).Encode(map[string]interface{}{"adventures": docs})
}

// RetryImage re-runs illustration generation for a step whose previous
// attempt failed.
func (h *Handlers) RetryImage(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")

	var req stepMediaRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body")
		return
	}
	if req.UserID == "" {
		writeError(w, http.StatusBadRequest, "userId is required")
		return
	}

	session := h.registry.SessionFor(req.UserID)
	if !session.Engine.HasAdventure() {
		writeError(w, http.StatusConflict, "No active adventure")
		return
	}

	session.Controller.RetryImage(r.Context(), req.StepID)

	w.WriteHeader(http.StatusAccepted)
	json.NewEncoder(w).Encode(map[string]interface{}{
		"status": "generating",
		"stepId": req.StepID,
	})
}

// GenerateAudio synthesizes narration for a step and returns its URL.
// Returns the existing URL when the step has already been voiced.
func (h *Handlers) GenerateAudio(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")

	var req stepMediaRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body")
		return
	}
	if req.UserID == "" {
		writeError(w, http.StatusBadRequest, "userId is required")
		return
	}

	session := h.registry.SessionFor(req.UserID)
	if !session.Engine.HasAdventure() {
		writeError(w, http.StatusConflict, "No active adventure")
		return
	}

	audioURL := session.Controller.GenerateAudio(r.Context(), req.StepID)
	if audioURL == "" {
		writeError(w, http.StatusBadGateway, "Audio generation failed")
		return
	}

	w.WriteHeader(http.StatusOK)
	json.NewEncoder(w).Encode(map[string]interface{}{
		"stepId":   req.StepID,
		"audioUrl": audioURL,
	})
}

// EventStream upgrades the connection to WebSocket and streams the
// user's turn-lifecycle events.
func (h *Handlers) EventStream(w http.ResponseWriter, r *http.Request) {
	userID := r.URL.Query().Get("userId")
	if userID == "" {
		w.Header().Set("Content-Type", "application/json")
		writeError(w, http.StatusBadRequest, "userId is required")
		return
	}

	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		return
	}

	clientID := generateClientID()
	client := &Client{
		ID:     clientID,
		UserID: userID,
		Conn:   conn,
		Send:   make(chan []byte, 256),
		Hub:    h.hub,
		closed: false,
	}

	h.hub.register <- client

	welcomeMsg := map[string]interface{}{
		"type": "connected",
		"id":   clientID,
		"time": time.Now().Unix(),
	}
	welcomeData, _ := json.Marshal(welcomeMsg)
	select {
	case client.Send <- welcomeData:
	default:
	}

	go client.readPump()
}

func (h *Handlers) writeSnapshot(w http.ResponseWriter, session *UserSession) {
	snapshot := session.Engine.Snapshot()
	if snapshot == nil {
		writeError(w, http.StatusInternalServerError, "No adventure after operation")
		return
	}

	w.WriteHeader(http.StatusOK)
	json.NewEncoder(w).Encode(map[string]interface{}{
		"adventureId": session.Engine.AdventureID(),
		"adventure":   snapshot,
		"imageErrors": session.Controller.ImageErrors(),
	})
}

func writeTurnError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, engine.ErrTurnInFlight):
		writeError(w, http.StatusConflict, "A turn is already in progress")
	case errors.Is(err, engine.ErrGameWon):
		writeError(w, http.StatusConflict, "The adventure is already won")
	case errors.Is(err, engine.ErrNoAdventure):
		writeError(w, http.StatusConflict, "No active adventure")
	case errors.Is(err, engine.ErrGenerationFailed):
		writeError(w, http.StatusBadGateway, "Failed to generate the adventure")
	default:
		log.Printf("[Handlers] Turn failed: %v", err)
		writeError(w, http.StatusInternalServerError, "Turn failed")
	}
}

func writeError(w http.ResponseWriter, status int, message string) {
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(map[string]string{"error": message})
}

// generateClientID generates a unique client ID
func generateClientID() string {
	b := make([]byte, 8)
	if _, err := rand.Read(b); err != nil {
		return hex.EncodeToString([]byte(time.Now().String()))[:16]
	}
	return hex.EncodeToString(b)
}
