package interfaces

import (
	"context"

	"zork-argento/server/internal/models"
)

// StepCoordinates carries the expected id/turn pair for the step a
// narrative request should produce.
type StepCoordinates struct {
	StepID    int `json:"stepId"`
	TurnIndex int `json:"turnIndex"`
}

// NarrativeRequest is one call to the remote narrative service.
type NarrativeRequest struct {
	Message        string           `json:"message"`
	ConversationID string           `json:"conversationId,omitempty"`
	ThreadID       string           `json:"threadId,omitempty"`
	Step           *StepCoordinates `json:"step,omitempty"`
}

// NarrativeResult is the adapter's canonical view of a narrative response.
// Success false means transport failure or a non-success status; Message
// then holds a user-facing fallback. On success Payload carries the
// effective narrative payload, already unwrapped from the response
// envelope but not yet classified (it may be a full adventure or a single
// step, as a JSON string or structured object).
type NarrativeResult struct {
	Success        bool
	Message        string
	Payload        interface{}
	ConversationID string
	ThreadID       string
	Timestamp      string
}

// NarrativeService generates adventures and continuation steps.
type NarrativeService interface {
	Send(ctx context.Context, req *NarrativeRequest) *NarrativeResult
}

// ImageService renders an illustration for a prompt. A nil result means
// generation failed; adapters never propagate errors past this boundary.
type ImageService interface {
	Generate(ctx context.Context, prompt string) *ImageResult
}

// ImageResult holds the rendered image as inline encoded bytes.
type ImageResult struct {
	Base64 string
}

// SpeechService renders narration audio for a narrative text. Nil means
// synthesis failed.
type SpeechService interface {
	Synthesize(ctx context.Context, text string) []byte
}

// MediaStore persists binary blobs under a content path and returns a
// durable retrieval URL. An empty URL means the upload failed.
type MediaStore interface {
	UploadImage(ctx context.Context, userID, adventureID string, stepID int, imageBase64 string) string
	UploadCoverImage(ctx context.Context, userID, adventureID string, imageBase64 string) string
	UploadAudio(ctx context.Context, userID, adventureID string, stepID int, audio []byte) string
}

// AdventureStore is the document-store contract: per-user create, partial
// update, point read, and an ordered list query. Create returns the
// generated document id; the store sets updatedAt on every write.
type AdventureStore interface {
	Create(ctx context.Context, userID string, adventure *models.Adventure) (string, error)
	Update(ctx context.Context, userID, adventureID string, fields map[string]interface{}) error
	Get(ctx context.Context, userID, adventureID string) (*models.AdventureDocument, error)
	ListByUser(ctx context.Context, userID string, limit int) ([]*models.AdventureDocument, error)
}

// Event names published while a turn runs.
const (
	EventStepAppended = "step_appended"
	EventImageReady   = "image_ready"
	EventImageFailed  = "image_failed"
	EventAudioReady   = "audio_ready"
	EventGameWon      = "game_won"
)

// Event is one turn-lifecycle notification for connected clients.
type Event struct {
	Type        string `json:"type"`
	AdventureID string `json:"adventureId,omitempty"`
	StepID      int    `json:"stepId"`
	ImageURL    string `json:"imageUrl,omitempty"`
	AudioURL    string `json:"audioUrl,omitempty"`
	Timestamp   int64  `json:"timestamp"`
}

// EventSink receives turn-lifecycle events. Implementations must not
// block the caller.
type EventSink interface {
	Publish(event Event)
}
