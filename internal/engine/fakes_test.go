package engine

import (
	"context"
	"fmt"
	"sync"

	"zork-argento/server/internal/interfaces"
	"zork-argento/server/internal/models"
)

// fakeStore is an in-memory AdventureStore with hooks for error injection
// and for blocking Create to exercise the in-flight guards.
type fakeStore struct {
	mu          sync.Mutex
	docs        map[string]*models.AdventureDocument
	nextID      int
	createCalls int
	updateCalls int
	lastFields  map[string]interface{}

	createErr   error
	updateErr   error
	getErr      error
	blockCreate chan struct{}
}

func newFakeStore() *fakeStore {
	return &fakeStore{docs: make(map[string]*models.AdventureDocument)}
}

func (s *fakeStore) Create(ctx context.Context, userID string, adventure *models.Adventure) (string, error) {
	if s.blockCreate != nil {
		<-s.blockCreate
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	s.createCalls++
	if s.createErr != nil {
		return "", s.createErr
	}

	s.nextID++
	id := fmt.Sprintf("adv-%d", s.nextID)
	copied := *adventure
	copied.UserID = userID
	s.docs[id] = &models.AdventureDocument{ID: id, Adventure: copied}
	return id, nil
}

func (s *fakeStore) Update(ctx context.Context, userID, adventureID string, fields map[string]interface{}) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.updateCalls++
	if s.updateErr != nil {
		return s.updateErr
	}
	s.lastFields = fields

	doc, ok := s.docs[adventureID]
	if !ok {
		return fmt.Errorf("document %s not found", adventureID)
	}
	if steps, ok := fields["steps"].([]models.AdventureStep); ok {
		doc.Steps = steps
	}
	if state, ok := fields["state"].(models.AdventureStateSnapshot); ok {
		doc.State = state
	}
	if won, ok := fields["juegoGanado"].(bool); ok {
		doc.JuegoGanado = won
	}
	return nil
}

func (s *fakeStore) Get(ctx context.Context, userID, adventureID string) (*models.AdventureDocument, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.getErr != nil {
		return nil, s.getErr
	}
	doc, ok := s.docs[adventureID]
	if !ok || doc.UserID != userID {
		return nil, nil
	}
	copied := *doc
	return &copied, nil
}

func (s *fakeStore) ListByUser(ctx context.Context, userID string, limit int) ([]*models.AdventureDocument, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var out []*models.AdventureDocument
	for _, doc := range s.docs {
		if doc.UserID == userID {
			out = append(out, doc)
		}
		if len(out) == limit {
			break
		}
	}
	return out, nil
}

func (s *fakeStore) counts() (creates, updates int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.createCalls, s.updateCalls
}

// fakeNarrative replays queued results in order, recording each request.
type fakeNarrative struct {
	mu       sync.Mutex
	results  []*interfaces.NarrativeResult
	requests []*interfaces.NarrativeRequest
}

func (f *fakeNarrative) queue(results ...*interfaces.NarrativeResult) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.results = append(f.results, results...)
}

func (f *fakeNarrative) Send(ctx context.Context, req *interfaces.NarrativeRequest) *interfaces.NarrativeResult {
	f.mu.Lock()
	defer f.mu.Unlock()

	f.requests = append(f.requests, req)
	if len(f.results) == 0 {
		return &interfaces.NarrativeResult{Success: false, Message: "no result queued"}
	}
	result := f.results[0]
	f.results = f.results[1:]
	return result
}

func (f *fakeNarrative) lastRequest() *interfaces.NarrativeRequest {
	f.mu.Lock()
	defer f.mu.Unlock()
	if len(f.requests) == 0 {
		return nil
	}
	return f.requests[len(f.requests)-1]
}

// fakeImages serves one result per call; nil simulates failure. When
// started/block are set, Generate announces entry and then waits, which
// lets tests hold one render in flight while another is requested.
type fakeImages struct {
	mu      sync.Mutex
	results []*interfaces.ImageResult
	calls   int
	started chan struct{}
	block   chan struct{}
}

func (f *fakeImages) queue(results ...*interfaces.ImageResult) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.results = append(f.results, results...)
}

func (f *fakeImages) Generate(ctx context.Context, prompt string) *interfaces.ImageResult {
	if f.started != nil {
		f.started <- struct{}{}
	}
	if f.block != nil {
		<-f.block
	}

	f.mu.Lock()
	defer f.mu.Unlock()

	f.calls++
	if len(f.results) == 0 {
		return nil
	}
	result := f.results[0]
	f.results = f.results[1:]
	return result
}

type fakeSpeech struct {
	audio []byte
}

func (f *fakeSpeech) Synthesize(ctx context.Context, text string) []byte {
	return f.audio
}

// fakeMedia returns deterministic URLs derived from the upload arguments.
type fakeMedia struct {
	mu           sync.Mutex
	imageUploads int
	coverUploads int
	audioUploads int
	failUploads  bool
}

func (f *fakeMedia) UploadImage(ctx context.Context, userID, adventureID string, stepID int, imageBase64 string) string {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.failUploads {
		return ""
	}
	f.imageUploads++
	return fmt.Sprintf("http://media/%s/%s/step-%d.png", userID, adventureID, stepID)
}

func (f *fakeMedia) UploadCoverImage(ctx context.Context, userID, adventureID string, imageBase64 string) string {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.failUploads {
		return ""
	}
	f.coverUploads++
	return fmt.Sprintf("http://media/%s/%s/cover.png", userID, adventureID)
}

func (f *fakeMedia) UploadAudio(ctx context.Context, userID, adventureID string, stepID int, audio []byte) string {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.failUploads {
		return ""
	}
	f.audioUploads++
	return fmt.Sprintf("http://media/%s/%s/audio-step-%d.mp3", userID, adventureID, stepID)
}

// fakeSink collects events and signals each arrival on a channel so tests
// can wait for the asynchronous media leg.
type fakeSink struct {
	mu     sync.Mutex
	events []interfaces.Event
	ch     chan interfaces.Event
}

func newFakeSink() *fakeSink {
	return &fakeSink{ch: make(chan interfaces.Event, 32)}
}

func (f *fakeSink) Publish(event interfaces.Event) {
	f.mu.Lock()
	f.events = append(f.events, event)
	f.mu.Unlock()
	f.ch <- event
}

func (f *fakeSink) all() []interfaces.Event {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]interfaces.Event(nil), f.events...)
}
