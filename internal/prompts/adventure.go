package prompts

import (
	"encoding/json"
	"fmt"
	"math/rand"
	"strings"

	"zork-argento/server/internal/models"
)

// Game length parameters and the decision-point guidance each maps to.
const (
	LengthCorta = "corta"
	LengthMedia = "media"
	LengthLarga = "larga"
)

var lengthGuidance = map[string]string{
	LengthCorta: "5 a 8 decisiones",
	LengthMedia: "9 a 12 decisiones",
	LengthLarga: "13 a 16 decisiones",
}

// NormalizeLength coerces an arbitrary length parameter to a supported
// value, defaulting to media.
func NormalizeLength(length string) string {
	if _, ok := lengthGuidance[length]; ok {
		return length
	}
	return LengthMedia
}

// BuildGenerationPrompt builds the adventure-generation prompt from a
// free-text user description and a length parameter. The content is
// prompt engineering, opaque to the engine: the service is asked for a
// strict JSON adventure document in Spanish.
func BuildGenerationPrompt(userDescription, gameLength string) string {
	gameLength = NormalizeLength(gameLength)
	seed := rand.Intn(1000000)

	var b strings.Builder
	b.WriteString("Sos un generador de aventuras tipo Zork. Devolvé SOLO un JSON válido y nada más, sin explicaciones, sin markdown.\n")
	b.WriteString("Requisitos del objeto JSON:\n")
	b.WriteString("- Campos a nivel raíz que siempre deben estar: version, adventureId, title, genre, language, createdAt, seed, state, juegoGanado, steps\n")
	b.WriteString("- language siempre \"es\" y todo el texto en español.\n")
	b.WriteString("- createdAt y los timestamps en formato ISO 8601.\n")
	b.WriteString("- seed número entero.\n")
	b.WriteString("- state es un snapshot con: location, inventory[], stats{salud, lucidez}, flags{}, objetivos[].\n")
	b.WriteString("- juegoGanado es un booleano que representa si se ganó la partida.\n")
	b.WriteString("- steps es un array con 1 elemento (el ultimo paso generado).\n")
	b.WriteString("- Cada step tiene: stepId, turnIndex, timestamp, playerInput (null en el primer paso), narrative, imagePrompt, imageSeed, imageUrl (null si no está), suggestedActions[], stateAfter (snapshot completo).\n")
	b.WriteString("- stepId y turnIndex comienzan en 0 y se incrementan por paso.\n")
	b.WriteString("\nInstrucciones de contenido:\n")
	b.WriteString("- Usá la descripción del usuario para definir título, género, ubicación inicial y objetivo principal del juego.\n")
	b.WriteString("- El primer step debe presentar la escena inicial y terminar con una pregunta o decisión al jugador.\n")
	b.WriteString("- suggestedActions con 3 a 5 acciones cortas y relevantes.\n")
	b.WriteString("- imagePrompt detallado, estilo ilustración cinematográfica de fantasía, conciso.\n")
	b.WriteString("- imageSeed entero, imageUrl null en el primer paso.\n")
	b.WriteString("- state y stateAfter del primer step deben coincidir.\n")
	b.WriteString("\nPlan narrativo y progresión:\n")
	b.WriteString("- La aventura debe tener una secuencia lógica de progresión hacia un objetivo final claro, definido al inicio.\n")
	b.WriteString("- Dividí internamente la historia en etapas: introducción → desarrollo → clímax → resolución.\n")
	b.WriteString("- En cada paso, asegurate de que las acciones y consecuencias acerquen o alejen al jugador de cumplir su objetivo, evitando desvíos irrelevantes. No permitir tomar atajos del tipo \"ganar juego\" antes de la cantidad de pasos definida segun la duracion del juego elegida, en caso de usarse penalizarlo en algun stat (lucidez o salud).\n")
	b.WriteString("- La narrativa debe reflejar consecuencias de las decisiones del jugador. En caso de que una accion repercuta en los stats (lucidez, salud) ser consistente en los pasos siguientes y explicar brevemente qué causo la modificacion en los stats\n")
	b.WriteString("\nDuración parametrizable:\n")
	b.WriteString("- Parámetro \"duración\": puede ser \"corta\" (5 a 8 decisiones), \"media\" (9 a 12 decisiones) o \"larga\" (13 a 16 decisiones).\n")
	b.WriteString("- Usá este parámetro para planificar la complejidad de los desafíos, el número de ubicaciones y la profundidad del desarrollo narrativo.\n")
	b.WriteString("- En partidas cortas, la historia debe avanzar rápido hacia la resolución; en las largas, incorporar más exploración y subeventos antes del final.\n")
	b.WriteString("\nCoherencia y control:\n")
	b.WriteString("- Evitá cambios bruscos de tono, género o ambientación.\n")
	b.WriteString("- Mantené continuidad en personajes, objetos y objetivos.\n")
	b.WriteString("- Asegurate de que cada historia tenga un posible desenlace donde el jugador gane o fracase según sus decisiones.\n")
	fmt.Fprintf(&b, "\nParámetros:\n- seed: %d\n- duración: \"%s\"\n- descripción_del_usuario: \"%s\"\n", seed, gameLength, userDescription)
	return b.String()
}

// BuildContinuationPrompt builds a context-carrying continuation request
// for sessions with no bound conversation: a compact state summary, the
// serialized adventure, and the exact coordinates the next step must use.
func BuildContinuationPrompt(adventure *models.Adventure, userInput string, nextStepID, nextTurnIndex int) string {
	summary := summarizeState(adventure)
	compact, err := json.Marshal(adventure)
	if err != nil {
		compact = []byte("{}")
	}

	var b strings.Builder
	b.WriteString("Sos un narrador de aventuras tipo Zork. Devolvé SOLO un JSON válido y nada más.\n")
	fmt.Fprintf(&b, "Resumen de contexto: %s\n", summary)
	b.WriteString("Contexto (JSON compacto):\n")
	b.Write(compact)
	b.WriteString("\nGenerá SOLO el próximo step con los campos exactos: stepId, turnIndex, timestamp (ISO), playerInput, narrative, imagePrompt, imageSeed, imageUrl, suggestedActions, stateAfter.\n")
	b.WriteString("Todos los textos deben ser en español.\n")
	fmt.Fprintf(&b, "Usá estos valores: stepId=%d, turnIndex=%d, playerInput=\"%s\".\n", nextStepID, nextTurnIndex, userInput)
	return b.String()
}

// summarizeState renders the current snapshot as a one-line summary:
// location, inventory, objectives, stats, and the truthy flags.
func summarizeState(adventure *models.Adventure) string {
	state := adventure.State
	if n := len(adventure.Steps); n > 0 {
		state = adventure.Steps[n-1].StateAfter
	}

	location := state.Location
	if location == "" {
		location = "desconocida"
	}
	inventory := "ninguno"
	if len(state.Inventory) > 0 {
		inventory = strings.Join(state.Inventory, ", ")
	}
	objetivos := "ninguno"
	if len(state.Objetivos) > 0 {
		objetivos = strings.Join(state.Objetivos, "; ")
	}
	var truthy []string
	for key, value := range state.Flags {
		switch v := value.(type) {
		case bool:
			if v {
				truthy = append(truthy, key)
			}
		case float64:
			if v != 0 {
				truthy = append(truthy, key)
			}
		case string:
			if v != "" {
				truthy = append(truthy, key)
			}
		}
	}

	return fmt.Sprintf("Ubicación: %s. Inventario: %s. Objetivos: %s. Salud: %d, Lucidez: %d. Flags: %s",
		location, inventory, objetivos, state.Stats.Salud, state.Stats.Lucidez, strings.Join(truthy, ", "))
}
