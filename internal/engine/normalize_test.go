package engine

import (
	"testing"
	"time"

	"zork-argento/server/internal/models"
)

func TestClassifyPayloadShapes(t *testing.T) {
	if _, ok := classifyPayload(map[string]interface{}{"narrative": "hola"}); !ok {
		t.Error("structured object rejected")
	}
	if _, ok := classifyPayload(`{"narrative":"hola"}`); !ok {
		t.Error("JSON string rejected")
	}
	if _, ok := classifyPayload("no es json"); ok {
		t.Error("plain text accepted")
	}
	if _, ok := classifyPayload(nil); ok {
		t.Error("nil accepted")
	}
	if _, ok := classifyPayload(42); ok {
		t.Error("number accepted")
	}
}

func TestExtractCandidateStep(t *testing.T) {
	// Full adventure: the last element of steps is the candidate.
	raw := map[string]interface{}{
		"steps": []interface{}{
			map[string]interface{}{"narrative": "primero"},
			map[string]interface{}{"narrative": "último"},
		},
	}
	candidate, ok := extractCandidateStep(raw)
	if !ok || candidate["narrative"] != "último" {
		t.Fatalf("expected last step, got %v", candidate)
	}

	// Bare step: the payload itself is the candidate.
	bare := map[string]interface{}{"stepId": float64(3), "narrative": "paso suelto"}
	candidate, ok = extractCandidateStep(bare)
	if !ok || candidate["narrative"] != "paso suelto" {
		t.Fatalf("bare step not recognized: %v", candidate)
	}

	// Narrative alone is enough to qualify as a step.
	if _, ok := extractCandidateStep(map[string]interface{}{"narrative": "sin id"}); !ok {
		t.Error("narrative-only step rejected")
	}

	// Neither steps nor step fields.
	if _, ok := extractCandidateStep(map[string]interface{}{"message": "hola"}); ok {
		t.Error("non-step payload accepted")
	}

	// Empty steps array carries nothing to append.
	if _, ok := extractCandidateStep(map[string]interface{}{"steps": []interface{}{}}); ok {
		t.Error("empty steps array accepted")
	}
}

func TestWinSignalReadsTopLevelFlag(t *testing.T) {
	if !winSignal(map[string]interface{}{"juegoGanado": true}) {
		t.Error("true flag not read")
	}
	if winSignal(map[string]interface{}{"juegoGanado": false}) {
		t.Error("false flag treated as a win")
	}
	if winSignal(map[string]interface{}{}) {
		t.Error("absent flag treated as a win")
	}
	// The flag inside stateAfter is not the canonical location.
	nested := map[string]interface{}{
		"narrative":  "casi",
		"stateAfter": map[string]interface{}{"flags": map[string]interface{}{"juegoGanado": true}},
	}
	if winSignal(nested) {
		t.Error("nested flag read as canonical")
	}
}

func TestWinSignalAcceptsLooselyTypedTruth(t *testing.T) {
	truthy := []interface{}{float64(1), "true", "sí"}
	for _, v := range truthy {
		if !winSignal(map[string]interface{}{"juegoGanado": v}) {
			t.Errorf("truthy %v (%T) not read as a win", v, v)
		}
	}
	falsy := []interface{}{float64(0), "", nil, []interface{}{"x"}}
	for _, v := range falsy {
		if winSignal(map[string]interface{}{"juegoGanado": v}) {
			t.Errorf("falsy %v (%T) read as a win", v, v)
		}
	}
}

func TestNormalizeCandidateStepDefaults(t *testing.T) {
	fixed := time.Date(2026, 3, 14, 12, 0, 0, 0, time.UTC)
	defaults := stepDefaults{
		StepID:      4,
		TurnIndex:   4,
		PlayerInput: "mirar alrededor",
		State: models.AdventureStateSnapshot{
			Location: "plaza",
			Stats:    models.AdventureStats{Salud: 70, Lucidez: 60},
		},
		Now: func() time.Time { return fixed },
	}

	step, ok := normalizeCandidateStep(map[string]interface{}{"narrative": "La plaza está vacía."}, defaults)
	if !ok {
		t.Fatal("minimal step rejected")
	}
	if step.StepID != 4 || step.TurnIndex != 4 {
		t.Errorf("ids not defaulted: %d/%d", step.StepID, step.TurnIndex)
	}
	if step.PlayerInput == nil || *step.PlayerInput != "mirar alrededor" {
		t.Errorf("player input not defaulted: %v", step.PlayerInput)
	}
	if step.ImagePrompt != defaultImagePrompt {
		t.Errorf("image prompt not defaulted: %q", step.ImagePrompt)
	}
	if step.Timestamp != fixed.Format(time.RFC3339) {
		t.Errorf("timestamp not defaulted: %q", step.Timestamp)
	}
	if step.StateAfter.Location != "plaza" {
		t.Errorf("state not defaulted to pre-turn snapshot: %q", step.StateAfter.Location)
	}
	if step.SuggestedActions == nil {
		t.Error("suggested actions should default to an empty slice")
	}
}

func TestNormalizeCandidateStepPrefersProvidedFields(t *testing.T) {
	candidate := map[string]interface{}{
		"stepId":           float64(7),
		"turnIndex":        float64(7),
		"timestamp":        "2026-03-14T12:00:00Z",
		"playerInput":      "abrir el cofre",
		"narrative":        "El cofre se abre con un crujido.",
		"imagePrompt":      "an old chest creaking open",
		"imageSeed":        float64(123),
		"suggestedActions": []interface{}{"Tomar el contenido", 99, "Cerrar el cofre"},
		"stateAfter": map[string]interface{}{
			"location": "sótano",
			"stats":    map[string]interface{}{"salud": float64(80), "lucidez": float64(75)},
		},
	}

	step, ok := normalizeCandidateStep(candidate, stepDefaults{StepID: 1})
	if !ok {
		t.Fatal("complete step rejected")
	}
	if step.StepID != 7 || step.ImageSeed != 123 {
		t.Errorf("provided numeric fields overridden: %d/%d", step.StepID, step.ImageSeed)
	}
	// Non-string entries are dropped, not coerced.
	if len(step.SuggestedActions) != 2 {
		t.Errorf("suggested actions: %v", step.SuggestedActions)
	}
	if step.StateAfter.Stats.Salud != 80 || step.StateAfter.Stats.Lucidez != 75 {
		t.Errorf("stats not decoded: %+v", step.StateAfter.Stats)
	}
}

func TestNormalizeCandidateStepRejectsMissingNarrative(t *testing.T) {
	if _, ok := normalizeCandidateStep(map[string]interface{}{"stepId": float64(1)}, stepDefaults{}); ok {
		t.Error("step without narrative accepted")
	}
	if _, ok := normalizeCandidateStep(map[string]interface{}{"narrative": ""}, stepDefaults{}); ok {
		t.Error("empty narrative accepted")
	}
}

func TestNormalizeCandidateStepIgnoresMalformedState(t *testing.T) {
	pre := models.AdventureStateSnapshot{Location: "plaza"}

	// stateAfter without a location falls back to the pre-turn state.
	candidate := map[string]interface{}{
		"narrative":  "No pasa nada.",
		"stateAfter": map[string]interface{}{"inventory": []interface{}{"mapa"}},
	}
	step, ok := normalizeCandidateStep(candidate, stepDefaults{State: pre})
	if !ok {
		t.Fatal("step rejected")
	}
	if step.StateAfter.Location != "plaza" {
		t.Errorf("malformed state not replaced: %+v", step.StateAfter)
	}

	// Wrong type entirely.
	candidate["stateAfter"] = "no es un objeto"
	step, _ = normalizeCandidateStep(candidate, stepDefaults{State: pre})
	if step.StateAfter.Location != "plaza" {
		t.Errorf("non-object state not replaced: %+v", step.StateAfter)
	}
}

func TestParseAdventurePayloadNormalizesAllSteps(t *testing.T) {
	raw := map[string]interface{}{
		"title": "El subte fantasma",
		"steps": []interface{}{
			map[string]interface{}{"narrative": "Bajás al andén."},
			map[string]interface{}{
				"narrative":  "Llega una formación vacía.",
				"stateAfter": map[string]interface{}{"location": "andén"},
			},
		},
	}

	adventure, ok := parseAdventurePayload(raw, stepDefaults{})
	if !ok {
		t.Fatal("payload rejected")
	}
	if len(adventure.Steps) != 2 {
		t.Fatalf("expected 2 steps, got %d", len(adventure.Steps))
	}
	if adventure.Steps[0].StepID != 0 || adventure.Steps[1].StepID != 1 {
		t.Errorf("step ids not indexed: %d/%d", adventure.Steps[0].StepID, adventure.Steps[1].StepID)
	}
	if adventure.State.Location != "andén" {
		t.Errorf("state not taken from last step: %q", adventure.State.Location)
	}
	if adventure.CreatedAt == "" {
		t.Error("createdAt not defaulted")
	}
}

func TestParseAdventurePayloadRejectsUnusableSteps(t *testing.T) {
	noSteps := map[string]interface{}{"title": "vacío"}
	if _, ok := parseAdventurePayload(noSteps, stepDefaults{}); ok {
		t.Error("payload without steps accepted")
	}

	badStep := map[string]interface{}{
		"steps": []interface{}{map[string]interface{}{"stepId": float64(0)}},
	}
	if _, ok := parseAdventurePayload(badStep, stepDefaults{}); ok {
		t.Error("payload with narrative-less step accepted")
	}
}
