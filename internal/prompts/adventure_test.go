package prompts

import (
	"strings"
	"testing"

	"zork-argento/server/internal/models"
)

func TestNormalizeLength(t *testing.T) {
	cases := map[string]string{
		"corta":   LengthCorta,
		"media":   LengthMedia,
		"larga":   LengthLarga,
		"":        LengthMedia,
		"eterna":  LengthMedia,
		"CORTA":   LengthMedia,
	}
	for in, want := range cases {
		if got := NormalizeLength(in); got != want {
			t.Errorf("NormalizeLength(%q) = %q, want %q", in, got, want)
		}
	}
}

func TestBuildGenerationPromptCarriesParameters(t *testing.T) {
	prompt := BuildGenerationPrompt("una aventura en el subte de Buenos Aires", "larga")

	if !strings.Contains(prompt, `descripción_del_usuario: "una aventura en el subte de Buenos Aires"`) {
		t.Error("user description missing from prompt")
	}
	if !strings.Contains(prompt, `duración: "larga"`) {
		t.Error("length parameter missing from prompt")
	}
	if !strings.Contains(prompt, "SOLO un JSON válido") {
		t.Error("strict-JSON instruction missing")
	}
	if !strings.Contains(prompt, "juegoGanado") {
		t.Error("victory flag not requested from the generator")
	}
}

func TestBuildGenerationPromptNormalizesUnknownLength(t *testing.T) {
	prompt := BuildGenerationPrompt("lo que sea", "gigante")
	if !strings.Contains(prompt, `duración: "media"`) {
		t.Errorf("unknown length not normalized to media")
	}
}

func TestBuildContinuationPromptEmbedsContextAndCoordinates(t *testing.T) {
	adventure := &models.Adventure{
		Title: "El faro",
		State: models.AdventureStateSnapshot{
			Location:  "costa",
			Inventory: []string{"farol", "cuerda"},
			Stats:     models.AdventureStats{Salud: 85, Lucidez: 70},
			Flags:     map[string]interface{}{"puertaAbierta": true, "ruidoEscuchado": false},
			Objetivos: []string{"encender el faro"},
		},
	}

	prompt := BuildContinuationPrompt(adventure, "subir la escalera", 3, 3)

	if !strings.Contains(prompt, "Ubicación: costa") {
		t.Error("location missing from summary")
	}
	if !strings.Contains(prompt, "farol, cuerda") {
		t.Error("inventory missing from summary")
	}
	if !strings.Contains(prompt, "Salud: 85, Lucidez: 70") {
		t.Error("stats missing from summary")
	}
	if !strings.Contains(prompt, "puertaAbierta") {
		t.Error("truthy flag missing from summary")
	}
	if strings.Contains(prompt, "ruidoEscuchado") {
		t.Error("falsy flag leaked into summary")
	}
	if !strings.Contains(prompt, `stepId=3, turnIndex=3, playerInput="subir la escalera"`) {
		t.Error("next-step coordinates missing")
	}
	if !strings.Contains(prompt, `"title":"El faro"`) {
		t.Error("compact adventure JSON missing")
	}
}

func TestBuildContinuationPromptSummarizesLastStepState(t *testing.T) {
	adventure := &models.Adventure{
		State: models.AdventureStateSnapshot{Location: "vieja"},
		Steps: []models.AdventureStep{
			{
				StepID:     0,
				Narrative:  "Avanzás.",
				StateAfter: models.AdventureStateSnapshot{Location: "nueva"},
			},
		},
	}

	prompt := BuildContinuationPrompt(adventure, "seguir", 1, 1)
	if !strings.Contains(prompt, "Ubicación: nueva") {
		t.Error("summary not built from the last step's stateAfter")
	}
}
