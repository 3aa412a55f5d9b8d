package engine

import (
	"context"
	"errors"
	"fmt"
	"log"
	"sort"
	"sync"

	"go.uber.org/atomic"

	"zork-argento/server/internal/interfaces"
	"zork-argento/server/internal/models"
)

var (
	// ErrNoAdventure is returned when an operation requires a current
	// adventure and none is loaded.
	ErrNoAdventure = errors.New("no current adventure")

	// ErrAdventureNotFound signals that a load hit a missing document,
	// as opposed to a store failure.
	ErrAdventureNotFound = errors.New("adventure not found")
)

// StepPatch carries the media-reference fields that may be merged into a
// step after asynchronous generation completes. Nil fields are left
// untouched.
type StepPatch struct {
	ImageURL    *string
	ImageBase64 *string
	AudioURL    *string
}

// SessionEngine owns the canonical in-memory adventure for one play
// session: the adventure itself, the store-assigned document id and
// owning user, and the narrative-service correlation identifiers.
//
// Persistence is deliberately separate from mutation: AppendStep always
// succeeds locally even when the store is unreachable, and the caller
// triggers PersistNew/PersistStepUpdate explicitly. Each persistence
// operation keeps an in-flight guard so overlapping triggers cannot
// create duplicate documents or interleave partial writes.
type SessionEngine struct {
	store interfaces.AdventureStore

	mu             sync.RWMutex
	adventure      *models.Adventure
	adventureID    string
	userID         string
	conversationID string
	threadID       string
	lastError      string

	savingAdventure atomic.Bool
	savingStep      atomic.Bool
}

// NewSessionEngine creates an engine bound to a document store.
func NewSessionEngine(store interfaces.AdventureStore) *SessionEngine {
	return &SessionEngine{store: store}
}

// Initialize replaces the current adventure wholesale with a freshly
// generated one. Any previously bound document id is cleared: a new
// adventure is always unsaved until explicitly persisted.
func (e *SessionEngine) Initialize(adventure *models.Adventure) {
	e.mu.Lock()
	defer e.mu.Unlock()

	e.adventure = adventure
	e.adventureID = ""
	e.userID = ""
	e.conversationID = ""
	e.threadID = ""
	e.lastError = ""
	if adventure != nil {
		if adventure.ConversationID != nil {
			e.conversationID = *adventure.ConversationID
		}
		if adventure.ThreadID != nil {
			e.threadID = *adventure.ThreadID
		}
	}
}

// AppendStep appends a step to the log and advances the current state to
// the step's stateAfter. No-op when no adventure is loaded (guards
// against a race with navigation away from the session).
func (e *SessionEngine) AppendStep(step models.AdventureStep) {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.adventure == nil {
		return
	}
	e.adventure.Steps = append(e.adventure.Steps, step)
	e.adventure.State = step.StateAfter
	if e.conversationID != "" {
		id := e.conversationID
		e.adventure.ConversationID = &id
	}
	if e.threadID != "" {
		id := e.threadID
		e.adventure.ThreadID = &id
	}
}

// UpdateStepFields merges media references into the step with the given
// id. Only imageUrl/imageBase64/audioUrl are mutable after creation;
// stepId, turnIndex, narrative and stateAfter never change. No-op when
// the step is not found.
func (e *SessionEngine) UpdateStepFields(stepID int, patch StepPatch) {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.adventure == nil {
		return
	}
	for i := range e.adventure.Steps {
		if e.adventure.Steps[i].StepID != stepID {
			continue
		}
		if patch.ImageURL != nil {
			e.adventure.Steps[i].ImageURL = patch.ImageURL
		}
		if patch.ImageBase64 != nil {
			e.adventure.Steps[i].ImageBase64 = patch.ImageBase64
		}
		if patch.AudioURL != nil {
			e.adventure.Steps[i].AudioURL = patch.AudioURL
		}
		return
	}
}

// SetCoverImageURL records the adventure's cover illustration once. Later
// calls keep the first value.
func (e *SessionEngine) SetCoverImageURL(url string) {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.adventure == nil || url == "" {
		return
	}
	if e.adventure.CoverImageURL == nil || *e.adventure.CoverImageURL == "" {
		e.adventure.CoverImageURL = &url
	}
}

// SetJuegoGanado flips the terminal victory flag.
func (e *SessionEngine) SetJuegoGanado(won bool) {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.adventure == nil {
		return
	}
	e.adventure.JuegoGanado = won
}

// BindConversation records the correlation identifiers from a narrative
// response. First non-empty value wins; later values are ignored.
func (e *SessionEngine) BindConversation(conversationID, threadID string) {
	e.mu.Lock()
	defer e.mu.Unlock()

	if conversationID != "" && e.conversationID == "" {
		e.conversationID = conversationID
		if e.adventure != nil {
			id := conversationID
			e.adventure.ConversationID = &id
		}
	}
	if threadID != "" && e.threadID == "" {
		e.threadID = threadID
		if e.adventure != nil {
			id := threadID
			e.adventure.ThreadID = &id
		}
	}
}

// PersistNew creates a new document for the current adventure under the
// given user and binds the returned id. A call while another PersistNew
// is in flight is dropped, which is what prevents two documents being
// created for one session by overlapping triggers.
func (e *SessionEngine) PersistNew(ctx context.Context, userID string) error {
	if !e.savingAdventure.CompareAndSwap(false, true) {
		return nil
	}
	defer e.savingAdventure.Store(false)

	doc := e.persistableCopy()
	if doc == nil {
		e.setError("no adventure to save")
		return ErrNoAdventure
	}

	id, err := e.store.Create(ctx, userID, doc)
	if err != nil {
		e.setError(fmt.Sprintf("failed to save adventure: %v", err))
		return err
	}

	e.mu.Lock()
	e.adventureID = id
	e.userID = userID
	e.lastError = ""
	e.mu.Unlock()
	return nil
}

// PersistStepUpdate writes the full steps array, current state, and the
// victory flag to the bound document. Requires a bound document id and
// owning user; otherwise it warns and returns, since the caller is
// expected to run PersistNew first on a session's first step. Overlapping
// calls are dropped by the in-flight guard.
func (e *SessionEngine) PersistStepUpdate(ctx context.Context) error {
	if !e.savingStep.CompareAndSwap(false, true) {
		return nil
	}
	defer e.savingStep.Store(false)

	e.mu.RLock()
	adventureID, userID := e.adventureID, e.userID
	conversationID, threadID := e.conversationID, e.threadID
	e.mu.RUnlock()

	doc := e.persistableCopy()
	if doc == nil || adventureID == "" || userID == "" {
		log.Printf("[engine] skipping step save: adventure=%t id=%q user=%q",
			doc != nil, adventureID, userID)
		return nil
	}

	fields := map[string]interface{}{
		"steps":       doc.Steps,
		"state":       doc.State,
		"juegoGanado": doc.JuegoGanado,
	}
	if conversationID != "" {
		fields["conversationId"] = conversationID
	}
	if threadID != "" {
		fields["threadId"] = threadID
	}
	if doc.CoverImageURL != nil && *doc.CoverImageURL != "" {
		fields["coverImageUrl"] = *doc.CoverImageURL
	}

	if err := e.store.Update(ctx, userID, adventureID, fields); err != nil {
		e.setError(fmt.Sprintf("failed to save step: %v", err))
		return err
	}

	e.mu.Lock()
	e.lastError = ""
	e.mu.Unlock()
	return nil
}

// Load fetches a stored adventure and makes it current, binding the
// document id and owning user and restoring the correlation identifiers.
// Returns ErrAdventureNotFound when the document does not exist, which is
// distinct from a store failure.
func (e *SessionEngine) Load(ctx context.Context, adventureID, userID string) error {
	doc, err := e.store.Get(ctx, userID, adventureID)
	if err != nil {
		e.setError(fmt.Sprintf("failed to load adventure: %v", err))
		return err
	}
	if doc == nil {
		e.setError("adventure not found")
		return ErrAdventureNotFound
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	adventure := doc.Adventure
	e.adventure = &adventure
	e.adventureID = adventureID
	e.userID = userID
	e.conversationID = ""
	e.threadID = ""
	if adventure.ConversationID != nil {
		e.conversationID = *adventure.ConversationID
	}
	if adventure.ThreadID != nil {
		e.threadID = *adventure.ThreadID
	}
	e.lastError = ""
	return nil
}

// Reset clears the current adventure, bound ids, and correlation
// identifiers, returning the engine to the lobby state.
func (e *SessionEngine) Reset() {
	e.mu.Lock()
	defer e.mu.Unlock()

	e.adventure = nil
	e.adventureID = ""
	e.userID = ""
	e.conversationID = ""
	e.threadID = ""
	e.lastError = ""
}

// ListForUser returns a user's adventures ordered by most recently
// updated first. Layout preference (per-user table vs legacy flat table)
// is the store adapter's concern.
func (e *SessionEngine) ListForUser(ctx context.Context, userID string, limit int) ([]*models.AdventureDocument, error) {
	return e.store.ListByUser(ctx, userID, limit)
}

// Snapshot returns a copy of the current adventure with steps sorted by
// stepId, or nil when none is loaded. Appends already happen in order,
// but loaded documents are sorted defensively before display.
func (e *SessionEngine) Snapshot() *models.Adventure {
	e.mu.RLock()
	defer e.mu.RUnlock()

	if e.adventure == nil {
		return nil
	}
	copied := *e.adventure
	copied.Steps = append([]models.AdventureStep(nil), e.adventure.Steps...)
	sort.SliceStable(copied.Steps, func(i, j int) bool {
		return copied.Steps[i].StepID < copied.Steps[j].StepID
	})
	return &copied
}

// HasAdventure reports whether a session is active.
func (e *SessionEngine) HasAdventure() bool {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.adventure != nil
}

// AdventureID returns the bound document id, empty until PersistNew.
func (e *SessionEngine) AdventureID() string {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.adventureID
}

// UserID returns the owning user bound by PersistNew or Load.
func (e *SessionEngine) UserID() string {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.userID
}

// ConversationID returns the bound narrative conversation id.
func (e *SessionEngine) ConversationID() string {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.conversationID
}

// ThreadID returns the bound narrative thread id.
func (e *SessionEngine) ThreadID() string {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.threadID
}

// LastError returns the engine-level error state surfaced to the UI.
// Persistence failures land here and are non-fatal: play continues
// in-memory, and a later successful save carries the accumulated steps.
func (e *SessionEngine) LastError() string {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.lastError
}

func (e *SessionEngine) setError(msg string) {
	e.mu.Lock()
	e.lastError = msg
	e.mu.Unlock()
	log.Printf("[engine] %s", msg)
}

// persistableCopy clones the current adventure for a store write,
// stripping the transient imageBase64 from every step. The document
// store only ever holds durable media references.
func (e *SessionEngine) persistableCopy() *models.Adventure {
	e.mu.RLock()
	defer e.mu.RUnlock()

	if e.adventure == nil {
		return nil
	}
	copied := *e.adventure
	copied.Steps = make([]models.AdventureStep, len(e.adventure.Steps))
	for i, step := range e.adventure.Steps {
		step.ImageBase64 = nil
		copied.Steps[i] = step
	}
	if e.conversationID != "" {
		id := e.conversationID
		copied.ConversationID = &id
	}
	if e.threadID != "" {
		id := e.threadID
		copied.ThreadID = &id
	}
	return &copied
}
