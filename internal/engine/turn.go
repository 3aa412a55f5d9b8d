package engine

import (
	"context"
	"errors"
	"log"
	"strings"
	"sync"
	"time"

	"go.uber.org/atomic"

	"zork-argento/server/internal/interfaces"
	"zork-argento/server/internal/models"
	"zork-argento/server/internal/prompts"
)

// Canned error narratives. The UI filters error steps out of the chat
// history by comparing against these strings, so they must stay stable.
const (
	ConnectionErrorNarrative = "Error al conectar con el servidor. Intentá de nuevo."
	ProcessingErrorNarrative = "Error al procesar la respuesta. Por favor, intentá de nuevo."
)

// retryAction is the single quick-reply offered on a synthesized error step.
const retryAction = "Reintentar"

var (
	// ErrGameWon rejects turns after the narrative signaled victory.
	ErrGameWon = errors.New("game already won")

	// ErrTurnInFlight rejects a turn while another is pending.
	ErrTurnInFlight = errors.New("turn already in progress")

	// ErrGenerationFailed signals that the first-turn adventure
	// generation produced nothing usable.
	ErrGenerationFailed = errors.New("adventure generation failed")
)

// TurnController drives one complete player turn: send the utterance,
// interpret the response, append a step, trigger media generation, and
// persist. Narrative failures are folded into the adventure log as
// visible error steps rather than raised; image failures are tracked in
// a side set so the interface can offer a per-step retry.
type TurnController struct {
	engine    *SessionEngine
	narrative interfaces.NarrativeService
	images    interfaces.ImageService
	speech    interfaces.SpeechService
	media     interfaces.MediaStore
	events    interfaces.EventSink

	userID string

	turnInFlight  atomic.Bool
	imageInFlight atomic.Bool

	mu          sync.Mutex
	imageErrors map[int]bool
}

// NewTurnController wires a controller for one user session. events may
// be nil when no client is listening.
func NewTurnController(
	engine *SessionEngine,
	narrative interfaces.NarrativeService,
	images interfaces.ImageService,
	speech interfaces.SpeechService,
	media interfaces.MediaStore,
	events interfaces.EventSink,
	userID string,
) *TurnController {
	return &TurnController{
		engine:      engine,
		narrative:   narrative,
		images:      images,
		speech:      speech,
		media:       media,
		events:      events,
		userID:      userID,
		imageErrors: make(map[int]bool),
	}
}

// StartAdventure generates a brand-new adventure from a free-text
// description and a length parameter (corta/media/larga), initializes
// the engine with it, persists the new document, and kicks off the first
// step's illustration.
func (c *TurnController) StartAdventure(ctx context.Context, description, length string) error {
	if !c.turnInFlight.CompareAndSwap(false, true) {
		return ErrTurnInFlight
	}
	defer c.turnInFlight.Store(false)

	prompt := prompts.BuildGenerationPrompt(description, length)
	result := c.narrative.Send(ctx, &interfaces.NarrativeRequest{Message: prompt})
	if !result.Success {
		return ErrGenerationFailed
	}

	raw, ok := classifyPayload(result.Payload)
	if !ok {
		log.Printf("[turn] generation payload was not an adventure object")
		return ErrGenerationFailed
	}
	adventure, ok := parseAdventurePayload(raw, stepDefaults{})
	if !ok {
		log.Printf("[turn] generation payload had no usable steps")
		return ErrGenerationFailed
	}

	c.engine.Initialize(adventure)
	c.engine.BindConversation(result.ConversationID, result.ThreadID)

	c.mu.Lock()
	c.imageErrors = make(map[int]bool)
	c.mu.Unlock()

	if err := c.engine.PersistNew(ctx, c.userID); err != nil {
		log.Printf("[turn] initial save failed, continuing in memory: %v", err)
	}

	if len(adventure.Steps) > 0 {
		first := adventure.Steps[len(adventure.Steps)-1]
		if first.ImagePrompt != "" && first.Narrative != "" {
			go c.generateImageForStep(context.Background(), first.StepID, first.ImagePrompt)
		}
	}
	return nil
}

// ExecuteTurn runs spec'd turn steps end to end for one player utterance.
// Empty input, a turn already in flight, a missing adventure, and a won
// game are all no-ops.
func (c *TurnController) ExecuteTurn(ctx context.Context, utterance string) error {
	playerText := strings.TrimSpace(utterance)
	if playerText == "" {
		return nil
	}
	if !c.turnInFlight.CompareAndSwap(false, true) {
		return ErrTurnInFlight
	}
	defer c.turnInFlight.Store(false)

	adventure := c.engine.Snapshot()
	if adventure == nil {
		return ErrNoAdventure
	}
	if adventure.JuegoGanado {
		return ErrGameWon
	}

	nextStepID, nextTurnIndex := 0, 0
	if n := len(adventure.Steps); n > 0 {
		nextStepID = adventure.Steps[n-1].StepID + 1
		nextTurnIndex = adventure.Steps[n-1].TurnIndex + 1
	}

	// With a bound conversation the service already holds the narrative
	// context, so the bare utterance suffices. Without one, the request
	// has to carry the context itself.
	message := playerText
	if c.engine.ConversationID() == "" && c.engine.ThreadID() == "" {
		message = prompts.BuildContinuationPrompt(adventure, playerText, nextStepID, nextTurnIndex)
	}

	req := &interfaces.NarrativeRequest{
		Message:        message,
		ConversationID: c.engine.ConversationID(),
		ThreadID:       c.engine.ThreadID(),
		Step:           &interfaces.StepCoordinates{StepID: nextStepID, TurnIndex: nextTurnIndex},
	}

	result := c.narrative.Send(ctx, req)
	if !result.Success {
		c.appendErrorStep(ctx, playerText, ConnectionErrorNarrative, nextStepID, nextTurnIndex, adventure.State)
		return nil
	}

	c.engine.BindConversation(result.ConversationID, result.ThreadID)

	raw, ok := classifyPayload(result.Payload)
	if !ok {
		log.Printf("[turn] unparseable narrative payload")
		c.appendErrorStep(ctx, playerText, ProcessingErrorNarrative, nextStepID, nextTurnIndex, adventure.State)
		return nil
	}

	candidate, ok := extractCandidateStep(raw)
	if !ok {
		log.Printf("[turn] payload carried no step")
		c.appendErrorStep(ctx, playerText, ProcessingErrorNarrative, nextStepID, nextTurnIndex, adventure.State)
		return nil
	}

	step, ok := normalizeCandidateStep(candidate, stepDefaults{
		StepID:      nextStepID,
		TurnIndex:   nextTurnIndex,
		PlayerInput: playerText,
		State:       adventure.State,
	})
	if !ok {
		log.Printf("[turn] step has no narrative")
		c.appendErrorStep(ctx, playerText, ProcessingErrorNarrative, nextStepID, nextTurnIndex, adventure.State)
		return nil
	}

	// Victory is read once per turn from the raw payload, never inferred
	// from narrative text.
	won := winSignal(raw)
	if won {
		c.engine.SetJuegoGanado(true)
	}

	c.engine.AppendStep(step)
	c.persistAppendedStep(ctx)
	c.publish(interfaces.Event{Type: interfaces.EventStepAppended, StepID: step.StepID, AdventureID: c.engine.AdventureID()})
	if won {
		c.publish(interfaces.Event{Type: interfaces.EventGameWon, StepID: step.StepID, AdventureID: c.engine.AdventureID()})
	}

	if !won && step.ImagePrompt != "" && step.Narrative != "" {
		go c.generateImageForStep(context.Background(), step.StepID, step.ImagePrompt)
	}
	return nil
}

// RetryImage re-runs illustration generation for one step after a
// failure. It repeats only the media leg, never the turn itself.
func (c *TurnController) RetryImage(ctx context.Context, stepID int) {
	adventure := c.engine.Snapshot()
	if adventure == nil {
		return
	}
	for _, step := range adventure.Steps {
		if step.StepID != stepID {
			continue
		}
		if step.ImagePrompt == "" || step.Narrative == "" {
			return
		}
		c.generateImageForStep(ctx, stepID, step.ImagePrompt)
		return
	}
}

// GenerateAudio synthesizes narration for a step on demand, uploads the
// blob, merges the resulting URL into the step, and persists when a
// document is bound. Returns the playable URL, or empty when synthesis
// or the upload failed. Audio is always user-triggered.
func (c *TurnController) GenerateAudio(ctx context.Context, stepID int) string {
	adventure := c.engine.Snapshot()
	if adventure == nil {
		return ""
	}

	var narrative string
	for _, step := range adventure.Steps {
		if step.StepID == stepID {
			if step.AudioURL != nil && *step.AudioURL != "" {
				return *step.AudioURL
			}
			narrative = step.Narrative
			break
		}
	}
	if narrative == "" {
		return ""
	}

	audio := c.speech.Synthesize(ctx, narrative)
	if audio == nil {
		return ""
	}

	// Without a bound document the blob goes under a non-durable path so
	// the listen affordance still works for unsaved sessions.
	adventureID := c.engine.AdventureID()
	pathID := adventureID
	if pathID == "" {
		pathID = "unsaved"
	}

	url := c.media.UploadAudio(ctx, c.userID, pathID, stepID, audio)
	if url == "" {
		return ""
	}

	c.engine.UpdateStepFields(stepID, StepPatch{AudioURL: &url})
	if adventureID != "" {
		if err := c.engine.PersistStepUpdate(ctx); err != nil {
			log.Printf("[turn] failed to persist audio url for step %d: %v", stepID, err)
		}
	}
	c.publish(interfaces.Event{Type: interfaces.EventAudioReady, StepID: stepID, AudioURL: url, AdventureID: adventureID})
	return url
}

// ImageErrored reports whether a step's illustration failed and awaits a
// manual retry. The set is UI-facing only and never persisted.
func (c *TurnController) ImageErrored(stepID int) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.imageErrors[stepID]
}

// ImageErrors lists the steps currently marked as image-errored.
func (c *TurnController) ImageErrors() []int {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]int, 0, len(c.imageErrors))
	for id := range c.imageErrors {
		out = append(out, id)
	}
	return out
}

// appendErrorStep synthesizes a visible error step: the canned narrative,
// a single retry affordance, and the pre-turn state unchanged. It stays
// in the persisted log for diagnostic continuity.
func (c *TurnController) appendErrorStep(ctx context.Context, playerText, narrative string, stepID, turnIndex int, state models.AdventureStateSnapshot) {
	input := playerText
	step := models.AdventureStep{
		StepID:           stepID,
		TurnIndex:        turnIndex,
		Timestamp:        time.Now().UTC().Format(time.RFC3339),
		PlayerInput:      &input,
		Narrative:        narrative,
		ImagePrompt:      "error illustration",
		SuggestedActions: []string{retryAction},
		StateAfter:       state,
	}
	c.engine.AppendStep(step)
	c.persistAppendedStep(ctx)
	c.publish(interfaces.Event{Type: interfaces.EventStepAppended, StepID: stepID, AdventureID: c.engine.AdventureID()})
}

// persistAppendedStep runs the two-phase persistence trigger. The first
// step of a brand-new session has no document to update against yet, so
// creation comes first; creation captures the current steps array, which
// makes an immediate follow-up update redundant.
func (c *TurnController) persistAppendedStep(ctx context.Context) {
	if c.engine.AdventureID() == "" {
		if err := c.engine.PersistNew(ctx, c.userID); err != nil {
			log.Printf("[turn] failed to create adventure document: %v", err)
		}
		return
	}
	if err := c.engine.PersistStepUpdate(ctx); err != nil {
		log.Printf("[turn] failed to save step: %v", err)
	}
}

// generateImageForStep runs the decoupled media leg: render, upload,
// merge, persist. A second, smaller write follows the main turn save so
// the narrative shows immediately while the illustration streams in.
func (c *TurnController) generateImageForStep(ctx context.Context, stepID int, imagePrompt string) {
	if !c.imageInFlight.CompareAndSwap(false, true) {
		// Another step's illustration is still rendering. Mark this one
		// failed so the per-step retry can recover it; dropping it here
		// would leave the step with no image and no affordance.
		c.markImageError(stepID)
		c.publish(interfaces.Event{Type: interfaces.EventImageFailed, StepID: stepID, AdventureID: c.engine.AdventureID()})
		return
	}
	defer c.imageInFlight.Store(false)

	result := c.images.Generate(ctx, imagePrompt)
	if result == nil || result.Base64 == "" {
		c.markImageError(stepID)
		c.publish(interfaces.Event{Type: interfaces.EventImageFailed, StepID: stepID, AdventureID: c.engine.AdventureID()})
		return
	}

	patch := StepPatch{ImageBase64: &result.Base64}
	adventureID := c.engine.AdventureID()

	var url string
	if adventureID != "" && c.userID != "" {
		url = c.media.UploadImage(ctx, c.userID, adventureID, stepID, result.Base64)
		if url != "" {
			patch.ImageURL = &url
		} else {
			log.Printf("[turn] image upload failed for step %d, keeping inline copy", stepID)
		}
	}

	// The step may have been appended on a session the player has since
	// abandoned; UpdateStepFields is a no-op then.
	c.engine.UpdateStepFields(stepID, patch)
	c.clearImageError(stepID)

	if stepID == 0 && adventureID != "" && c.userID != "" {
		if coverURL := c.media.UploadCoverImage(ctx, c.userID, adventureID, result.Base64); coverURL != "" {
			c.engine.SetCoverImageURL(coverURL)
		}
	}

	if adventureID != "" {
		if err := c.engine.PersistStepUpdate(ctx); err != nil {
			log.Printf("[turn] failed to persist image for step %d: %v", stepID, err)
		}
	}
	c.publish(interfaces.Event{Type: interfaces.EventImageReady, StepID: stepID, ImageURL: url, AdventureID: adventureID})
}

func (c *TurnController) markImageError(stepID int) {
	c.mu.Lock()
	c.imageErrors[stepID] = true
	c.mu.Unlock()
}

func (c *TurnController) clearImageError(stepID int) {
	c.mu.Lock()
	delete(c.imageErrors, stepID)
	c.mu.Unlock()
}

func (c *TurnController) publish(event interfaces.Event) {
	if c.events == nil {
		return
	}
	event.Timestamp = time.Now().Unix()
	c.events.Publish(event)
}
