package conversation

import (
	"context"
	"errors"
	"strings"
	"testing"
)

type mapSource map[string]string

func (m mapSource) ActiveTemplate(ctx context.Context, code string) (string, error) {
	body, ok := m[code]
	if !ok {
		return "", ErrTemplateNotFound
	}
	return body, nil
}

func TestBuildRendersAllSections(t *testing.T) {
	source := mapSource{"MOTO_VENTA": "Sos el asistente de ventas de TuVendedor."}
	assembler := NewAssembler(source, "")

	intent := "consulta_precio"
	listingID := int64(42)
	convCtx := &Context{
		ConversationID:   7,
		CurrentStep:      StepConsultandoModelo,
		Intent:           &intent,
		RelatedListingID: &listingID,
		ActivePromptCode: "MOTO_VENTA",
	}
	history := []TranscriptEntry{
		{Sender: SenderCustomer, Text: "Hola"},
		{Sender: SenderAgent, Text: "¡Hola! ¿En qué te puedo ayudar?"},
	}

	prompt, err := assembler.Build(context.Background(), "¿Qué precio tiene la GL 150?", convCtx, history)
	if err != nil {
		t.Fatalf("build: %v", err)
	}

	want := "Sos el asistente de ventas de TuVendedor." +
		"\n\nEstado actual: CONSULTANDO_MODELO" +
		"\nIntención detectada: consulta_precio" +
		"\n\nHistorial de la conversación:\n" +
		"Cliente: Hola\nAgente: ¡Hola! ¿En qué te puedo ayudar?" +
		"\n\nMensaje del cliente: ¿Qué precio tiene la GL 150?"
	if prompt != want {
		t.Fatalf("prompt mismatch:\ngot:\n%s\nwant:\n%s", prompt, want)
	}
}

func TestBuildFirstTurnDefaults(t *testing.T) {
	source := mapSource{DefaultPromptCode: "Plantilla genérica."}
	assembler := NewAssembler(source, "")

	prompt, err := assembler.Build(context.Background(), "Hola", nil, nil)
	if err != nil {
		t.Fatalf("build: %v", err)
	}

	for _, fragment := range []string{
		"Estado actual: " + StepInicio,
		"Intención detectada: (sin clasificar)",
		"(sin mensajes previos)",
		"Mensaje del cliente: Hola",
	} {
		if !strings.Contains(prompt, fragment) {
			t.Fatalf("prompt missing %q:\n%s", fragment, prompt)
		}
	}
}

func TestBuildIsDeterministic(t *testing.T) {
	source := mapSource{DefaultPromptCode: "Plantilla genérica."}
	assembler := NewAssembler(source, "")

	convCtx := &Context{CurrentStep: StepEsperandoDecision}
	history := []TranscriptEntry{{Sender: SenderCustomer, Text: "Hola"}}

	first, err := assembler.Build(context.Background(), "Hola", convCtx, history)
	if err != nil {
		t.Fatalf("build: %v", err)
	}
	second, err := assembler.Build(context.Background(), "Hola", convCtx, history)
	if err != nil {
		t.Fatalf("build: %v", err)
	}
	if first != second {
		t.Fatal("identical inputs produced different prompts")
	}
}

func TestBuildUsesActivePromptCode(t *testing.T) {
	source := mapSource{
		DefaultPromptCode: "Plantilla genérica.",
		"AUTO_CREDITO":    "Plantilla de créditos.",
	}
	assembler := NewAssembler(source, "")

	convCtx := &Context{ActivePromptCode: "AUTO_CREDITO"}
	prompt, err := assembler.Build(context.Background(), "Quiero financiar", convCtx, nil)
	if err != nil {
		t.Fatalf("build: %v", err)
	}
	if !strings.HasPrefix(prompt, "Plantilla de créditos.") {
		t.Fatalf("expected credit template, got:\n%s", prompt)
	}
}

func TestBuildMissingTemplate(t *testing.T) {
	assembler := NewAssembler(mapSource{}, "")

	_, err := assembler.Build(context.Background(), "Hola", nil, nil)
	if !errors.Is(err, ErrTemplateNotFound) {
		t.Fatalf("expected ErrTemplateNotFound, got %v", err)
	}
}
