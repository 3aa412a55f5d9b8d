package generators

import (
	"context"
	"encoding/base64"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"strings"
	"time"
)

// DiskMediaStore persists generated media under a content path and hands
// back durable retrieval URLs served by the HTTP shell. Path convention:
//
//	adventures/{userId}/{adventureId}/step-{stepId}-{ts}.png
//	adventures/{userId}/{adventureId}/audio-step-{stepId}-{ts}.mp3
//	adventures/{userId}/{adventureId}/cover-{ts}.png
//
// Upload failures return an empty URL; the caller keeps the transient
// inline copy and the interface offers a retry.
type DiskMediaStore struct {
	directory string
	baseURL   string
}

// NewDiskMediaStore creates a media store rooted at directory. baseURL is
// the externally reachable prefix under which /media is mounted.
func NewDiskMediaStore(directory, baseURL string) *DiskMediaStore {
	return &DiskMediaStore{
		directory: directory,
		baseURL:   strings.TrimRight(baseURL, "/"),
	}
}

// Directory returns the store's root, for mounting the file server.
func (s *DiskMediaStore) Directory() string {
	return s.directory
}

// UploadImage stores a step illustration and returns its durable URL.
func (s *DiskMediaStore) UploadImage(ctx context.Context, userID, adventureID string, stepID int, imageBase64 string) string {
	path := fmt.Sprintf("adventures/%s/%s/step-%d-%d.png", userID, adventureID, stepID, time.Now().UnixMilli())
	return s.writeBase64(path, imageBase64)
}

// UploadCoverImage stores the adventure's cover illustration.
func (s *DiskMediaStore) UploadCoverImage(ctx context.Context, userID, adventureID string, imageBase64 string) string {
	path := fmt.Sprintf("adventures/%s/%s/cover-%d.png", userID, adventureID, time.Now().UnixMilli())
	return s.writeBase64(path, imageBase64)
}

// UploadAudio stores narration audio for a step.
func (s *DiskMediaStore) UploadAudio(ctx context.Context, userID, adventureID string, stepID int, audio []byte) string {
	path := fmt.Sprintf("adventures/%s/%s/audio-step-%d-%d.mp3", userID, adventureID, stepID, time.Now().UnixMilli())
	return s.write(path, audio)
}

func (s *DiskMediaStore) writeBase64(path, imageBase64 string) string {
	// Tolerate data-URI style prefixes.
	if idx := strings.IndexByte(imageBase64, ','); idx >= 0 {
		imageBase64 = imageBase64[idx+1:]
	}
	data, err := base64.StdEncoding.DecodeString(imageBase64)
	if err != nil {
		log.Printf("[media] invalid base64 payload for %s: %v", path, err)
		return ""
	}
	return s.write(path, data)
}

func (s *DiskMediaStore) write(path string, data []byte) string {
	fullPath := filepath.Join(s.directory, filepath.FromSlash(path))
	if err := os.MkdirAll(filepath.Dir(fullPath), 0755); err != nil {
		log.Printf("[media] failed to create directory for %s: %v", path, err)
		return ""
	}
	if err := os.WriteFile(fullPath, data, 0644); err != nil {
		log.Printf("[media] failed to write %s: %v", path, err)
		return ""
	}
	return s.baseURL + "/media/" + path
}
