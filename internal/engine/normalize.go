package engine

import (
	"encoding/json"
	"math/rand"
	"time"

	"zork-argento/server/internal/models"
)

// defaultImagePrompt stands in when a step arrives without one.
const defaultImagePrompt = "fantasy illustration, cinematic, high detail"

// stepDefaults are the values substituted for absent or type-mismatched
// fields when a candidate step is normalized.
type stepDefaults struct {
	StepID      int
	TurnIndex   int
	PlayerInput string
	State       models.AdventureStateSnapshot
	Now         func() time.Time
}

// classifyPayload resolves the union of payload shapes the narrative
// service produces — a JSON-encoded string or an already structured
// object — into one generic object. Returns false when the payload is
// neither.
func classifyPayload(payload interface{}) (map[string]interface{}, bool) {
	switch v := payload.(type) {
	case map[string]interface{}:
		return v, true
	case string:
		var decoded map[string]interface{}
		if err := json.Unmarshal([]byte(v), &decoded); err != nil {
			return nil, false
		}
		return decoded, true
	default:
		return nil, false
	}
}

// extractCandidateStep picks the step object out of a classified payload.
// Generation responses wrap steps in a full adventure whose steps array's
// last element is the one to append; continuation responses return a bare
// step object.
func extractCandidateStep(raw map[string]interface{}) (map[string]interface{}, bool) {
	if steps, ok := raw["steps"].([]interface{}); ok {
		if len(steps) == 0 {
			return nil, false
		}
		last, ok := steps[len(steps)-1].(map[string]interface{})
		return last, ok
	}
	if _, ok := raw["stepId"]; ok {
		return raw, true
	}
	if _, ok := raw["narrative"]; ok {
		return raw, true
	}
	return nil, false
}

// winSignal reads the victory flag from its canonical location: the
// top-level juegoGanado field of the raw payload. The service is not
// strict about the flag's type, so any truthy value counts: a true
// boolean, a nonzero number, or a non-empty string.
func winSignal(raw map[string]interface{}) bool {
	switch v := raw["juegoGanado"].(type) {
	case bool:
		return v
	case float64:
		return v != 0
	case string:
		return v != ""
	default:
		return false
	}
}

// normalizeCandidateStep turns a candidate step object into a fully
// populated AdventureStep, substituting a default for every optional
// field that is absent or of the wrong type. Returns false when the
// candidate has no usable narrative, which callers must treat as a
// malformed response.
func normalizeCandidateStep(candidate map[string]interface{}, d stepDefaults) (models.AdventureStep, bool) {
	narrative, _ := candidate["narrative"].(string)
	if narrative == "" {
		return models.AdventureStep{}, false
	}

	now := time.Now
	if d.Now != nil {
		now = d.Now
	}

	playerInput := d.PlayerInput
	if s, ok := candidate["playerInput"].(string); ok {
		playerInput = s
	}

	imagePrompt, _ := candidate["imagePrompt"].(string)
	if imagePrompt == "" {
		imagePrompt = defaultImagePrompt
	}

	imageSeed, ok := asInt(candidate["imageSeed"])
	if !ok {
		imageSeed = rand.Intn(1000000)
	}

	timestamp, _ := candidate["timestamp"].(string)
	if timestamp == "" {
		timestamp = now().UTC().Format(time.RFC3339)
	}

	stepID, ok := asInt(candidate["stepId"])
	if !ok {
		stepID = d.StepID
	}
	turnIndex, ok := asInt(candidate["turnIndex"])
	if !ok {
		turnIndex = d.TurnIndex
	}

	stateAfter, ok := asSnapshot(candidate["stateAfter"])
	if !ok {
		stateAfter = d.State
	}

	var inputPtr *string
	if playerInput != "" {
		inputPtr = &playerInput
	}

	return models.AdventureStep{
		StepID:           stepID,
		TurnIndex:        turnIndex,
		Timestamp:        timestamp,
		PlayerInput:      inputPtr,
		Narrative:        narrative,
		ImagePrompt:      imagePrompt,
		ImageSeed:        imageSeed,
		SuggestedActions: asStringSlice(candidate["suggestedActions"]),
		StateAfter:       stateAfter,
	}, true
}

// parseAdventurePayload decodes a full-adventure generation payload. The
// steps it carries are normalized through the same defaulting rules as
// continuation steps.
func parseAdventurePayload(raw map[string]interface{}, d stepDefaults) (*models.Adventure, bool) {
	encoded, err := json.Marshal(raw)
	if err != nil {
		return nil, false
	}
	var adventure models.Adventure
	if err := json.Unmarshal(encoded, &adventure); err != nil {
		return nil, false
	}

	rawSteps, _ := raw["steps"].([]interface{})
	if len(rawSteps) == 0 {
		return nil, false
	}
	steps := make([]models.AdventureStep, 0, len(rawSteps))
	for i, rs := range rawSteps {
		candidate, ok := rs.(map[string]interface{})
		if !ok {
			return nil, false
		}
		defaults := d
		defaults.StepID = i
		defaults.TurnIndex = i
		step, ok := normalizeCandidateStep(candidate, defaults)
		if !ok {
			return nil, false
		}
		steps = append(steps, step)
	}
	adventure.Steps = steps
	adventure.State = steps[len(steps)-1].StateAfter
	if adventure.CreatedAt == "" {
		adventure.CreatedAt = time.Now().UTC().Format(time.RFC3339)
	}
	return &adventure, true
}

func asInt(v interface{}) (int, bool) {
	switch n := v.(type) {
	case float64:
		return int(n), true
	case int:
		return n, true
	default:
		return 0, false
	}
}

func asStringSlice(v interface{}) []string {
	items, ok := v.([]interface{})
	if !ok {
		return []string{}
	}
	out := make([]string, 0, len(items))
	for _, item := range items {
		if s, ok := item.(string); ok {
			out = append(out, s)
		}
	}
	return out
}

func asSnapshot(v interface{}) (models.AdventureStateSnapshot, bool) {
	obj, ok := v.(map[string]interface{})
	if !ok {
		return models.AdventureStateSnapshot{}, false
	}
	encoded, err := json.Marshal(obj)
	if err != nil {
		return models.AdventureStateSnapshot{}, false
	}
	var snapshot models.AdventureStateSnapshot
	if err := json.Unmarshal(encoded, &snapshot); err != nil {
		return models.AdventureStateSnapshot{}, false
	}
	if snapshot.Location == "" {
		return models.AdventureStateSnapshot{}, false
	}
	return snapshot, true
}
