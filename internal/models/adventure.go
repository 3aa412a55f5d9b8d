package models

import (
	"time"

	"gorm.io/gorm"
)

// AdventureStats holds the numeric player stats tracked per turn.
type AdventureStats struct {
	Salud   int `json:"salud"`
	Lucidez int `json:"lucidez"`
}

// AdventureStateSnapshot is the mutable world state at a point in time.
// Exactly one snapshot is "current" per adventure: the stateAfter of the
// most recently appended step, or the adventure's initial state when no
// steps exist yet.
type AdventureStateSnapshot struct {
	Location  string                 `json:"location"`
	Inventory []string               `json:"inventory"`
	Stats     AdventureStats         `json:"stats"`
	Flags     map[string]interface{} `json:"flags"`
	Objetivos []string               `json:"objetivos"`
}

// AdventureStep is one player-input/narrator-response exchange.
//
// Steps are created by the turn controller from a narrative-service
// response (or synthesized locally as an error placeholder) and are never
// deleted. After creation only the media reference fields (ImageURL,
// ImageBase64, AudioURL) may change.
type AdventureStep struct {
	StepID           int                    `json:"stepId"`
	TurnIndex        int                    `json:"turnIndex"`
	Timestamp        string                 `json:"timestamp"`
	PlayerInput      *string                `json:"playerInput"`
	Narrative        string                 `json:"narrative"`
	ImagePrompt      string                 `json:"imagePrompt"`
	ImageSeed        int                    `json:"imageSeed,omitempty"`
	ImageURL         *string                `json:"imageUrl"`
	ImageBase64      *string                `json:"imageBase64,omitempty"`
	AudioURL         *string                `json:"audioUrl,omitempty"`
	SuggestedActions []string               `json:"suggestedActions"`
	StateAfter       AdventureStateSnapshot `json:"stateAfter"`
}

// Adventure is the aggregate root of a play session: descriptive metadata,
// the current state snapshot, and the append-only step log.
type Adventure struct {
	Version        string                 `json:"version"`
	AdventureID    string                 `json:"adventureId"`
	Title          string                 `json:"title"`
	Genre          string                 `json:"genre"`
	Language       string                 `json:"language"`
	CreatedAt      string                 `json:"createdAt"`
	UpdatedAt      string                 `json:"updatedAt,omitempty"`
	UserID         string                 `json:"userId,omitempty"`
	Seed           int                    `json:"seed,omitempty"`
	State          AdventureStateSnapshot `json:"state"`
	JuegoGanado    bool                   `json:"juegoGanado"`
	Steps          []AdventureStep        `json:"steps"`
	ConversationID *string                `json:"conversationId,omitempty"`
	ThreadID       *string                `json:"threadId,omitempty"`
	CoverImageURL  *string                `json:"coverImageUrl,omitempty"`
}

// AdventureDocument is an Adventure plus its store-assigned id. It only
// exists at the persistence boundary.
type AdventureDocument struct {
	Adventure
	ID string `json:"id,omitempty"`
}

// AdventureRecord is the preferred physical layout of the document store:
// one table per concern, rows scoped by user id. The full adventure
// document is serialized into Document; the columns exist for listing
// without deserializing.
type AdventureRecord struct {
	ID          string         `gorm:"primaryKey;size:64" json:"id"`
	UserID      string         `gorm:"index;size:64" json:"user_id"`
	Title       string         `gorm:"size:255" json:"title"`
	Genre       string         `gorm:"size:64" json:"genre"`
	JuegoGanado bool           `json:"juego_ganado"`
	Document    string         `gorm:"type:mediumtext" json:"-"`
	CreatedAt   time.Time      `json:"created_at"`
	UpdatedAt   time.Time      `gorm:"index" json:"updated_at"`
	DeletedAt   gorm.DeletedAt `gorm:"index" json:"-"`
}

// LegacyAdventureRecord is the older flat layout where every user's
// adventures share one table filtered by an owner column. Reads fall back
// to it when the scoped table has nothing for the user.
type LegacyAdventureRecord struct {
	ID        string    `gorm:"primaryKey;size:64" json:"id"`
	Owner     string    `gorm:"index;size:64" json:"owner"`
	Title     string    `gorm:"size:255" json:"title"`
	Document  string    `gorm:"type:mediumtext" json:"-"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `gorm:"index" json:"updated_at"`
}

func (LegacyAdventureRecord) TableName() string { return "adventures_legacy" }
