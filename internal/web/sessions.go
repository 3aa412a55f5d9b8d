package web

import (
	"sync"

	"zork-argento/server/internal/engine"
	"zork-argento/server/internal/interfaces"
)

// UserSession bundles the state machine and turn controller for one user.
type UserSession struct {
	Engine     *engine.SessionEngine
	Controller *engine.TurnController
}

// SessionRegistry hands out one session per user, creating it lazily.
// Wiring a session per user instead of sharing a single engine keeps two
// users from clobbering each other's in-flight adventure.
type SessionRegistry struct {
	store     interfaces.AdventureStore
	narrative interfaces.NarrativeService
	images    interfaces.ImageService
	speech    interfaces.SpeechService
	media     interfaces.MediaStore
	hub       *EventHub

	mu       sync.Mutex
	sessions map[string]*UserSession
}

func NewSessionRegistry(
	store interfaces.AdventureStore,
	narrative interfaces.NarrativeService,
	images interfaces.ImageService,
	speech interfaces.SpeechService,
	media interfaces.MediaStore,
	hub *EventHub,
) *SessionRegistry {
	return &SessionRegistry{
		store:     store,
		narrative: narrative,
		images:    images,
		speech:    speech,
		media:     media,
		hub:       hub,
		sessions: make(map[string]*UserSession),
	}
}

// SessionFor returns the session for userID, creating it on first use.
func (r *SessionRegistry) SessionFor(userID string) *UserSession {
	r.mu.Lock()
	defer r.mu.Unlock()

	if session, ok := r.sessions[userID]; ok {
		return session
	}

	var sink interfaces.EventSink
	if r.hub != nil {
		sink = r.hub.SinkFor(userID)
	}

	sessionEngine := engine.NewSessionEngine(r.store)
	session := &UserSession{
		Engine: sessionEngine,
		Controller: engine.NewTurnController(
			sessionEngine,
			r.narrative,
			r.images,
			r.speech,
			r.media,
			sink,
			userID,
		),
	}
	r.sessions[userID] = session
	return session
}

// SessionCount returns the number of active user sessions.
func (r *SessionRegistry) SessionCount() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.sessions)
}
