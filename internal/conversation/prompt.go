package conversation

import (
	"context"
	"strings"
)

// Placeholders rendered when a section has no real content. Fixed strings so
// the assembled prompt stays deterministic.
const (
	placeholderNoHistory = "(sin mensajes previos)"
	placeholderNoIntent  = "(sin clasificar)"
)

// Assembler builds the textual prompt for one turn from a template, the
// conversation context, and the recent transcript.
type Assembler struct {
	templates   TemplateSource
	defaultCode string
}

// NewAssembler creates a prompt assembler. defaultCode is resolved when a
// conversation has no active prompt code of its own.
func NewAssembler(templates TemplateSource, defaultCode string) *Assembler {
	if templates == nil {
		panic("conversation: template source required")
	}
	if defaultCode == "" {
		defaultCode = DefaultPromptCode
	}
	return &Assembler{
		templates:   templates,
		defaultCode: defaultCode,
	}
}

// Build assembles the prompt for userMessage. It is pure with respect to its
// inputs: the same (template, context, history, message) always produces
// byte-identical output. The only I/O is the template read.
func (a *Assembler) Build(ctx context.Context, userMessage string, convCtx *Context, history []TranscriptEntry) (string, error) {
	code := a.defaultCode
	if convCtx != nil && convCtx.ActivePromptCode != "" {
		code = convCtx.ActivePromptCode
	}

	body, err := a.templates.ActiveTemplate(ctx, code)
	if err != nil {
		return "", err
	}

	step := StepInicio
	intent := placeholderNoIntent
	if convCtx != nil {
		if convCtx.CurrentStep != "" {
			step = convCtx.CurrentStep
		}
		if convCtx.Intent != nil && *convCtx.Intent != "" {
			intent = *convCtx.Intent
		}
	}

	var b strings.Builder
	b.WriteString(body)
	b.WriteString("\n\nEstado actual: ")
	b.WriteString(step)
	b.WriteString("\nIntención detectada: ")
	b.WriteString(intent)
	b.WriteString("\n\nHistorial de la conversación:\n")
	b.WriteString(renderHistory(history))
	b.WriteString("\n\nMensaje del cliente: ")
	b.WriteString(userMessage)
	return b.String(), nil
}

func renderHistory(history []TranscriptEntry) string {
	if len(history) == 0 {
		return placeholderNoHistory
	}
	lines := make([]string, 0, len(history))
	for _, entry := range history {
		lines = append(lines, senderLabel(entry.Sender)+": "+entry.Text)
	}
	return strings.Join(lines, "\n")
}

func senderLabel(sender Sender) string {
	switch sender {
	case SenderCustomer:
		return "Cliente"
	case SenderAgent:
		return "Agente"
	default:
		return string(sender)
	}
}
