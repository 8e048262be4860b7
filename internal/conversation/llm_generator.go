package conversation

import (
	"context"
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/ChelochoX/tuvendedor-back-sub000/pkg/logging"
)

const defaultSystemInstruction = "Sos el asistente de ventas de TuVendedor, un marketplace paraguayo de motos y vehículos. " +
	"Respondé en español, con mensajes cortos y concretos, y guiá al cliente hacia una visita o una solicitud de crédito. " +
	"Nunca inventes precios ni condiciones de financiación. " +
	"Al final de tu respuesta agregá, en líneas separadas, los marcadores ESTADO: <token>, INTENCION: <token> y, " +
	"si la consulta refiere a una publicación concreta, PUBLICACION: <id numérico>. " +
	"Esos marcadores no se muestran al cliente."

var (
	stateMarkerRE   = regexp.MustCompile(`(?m)^\s*ESTADO:\s*(\S+)\s*$`)
	intentMarkerRE  = regexp.MustCompile(`(?m)^\s*INTENCION:\s*(\S+)\s*$`)
	listingMarkerRE = regexp.MustCompile(`(?m)^\s*PUBLICACION:\s*(\d+)\s*$`)
)

// LLMGenerator is the AI-backed Generator. It forwards the assembled prompt
// to an LLMClient under a bounded timeout and parses the proposed next state
// out of the reply's marker trailer.
type LLMGenerator struct {
	client          LLMClient
	model           string
	system          string
	timeout         time.Duration
	defaultNextStep string
	logger          *logging.Logger
}

// LLMGeneratorOption configures an LLMGenerator.
type LLMGeneratorOption func(*LLMGenerator)

// WithSystemInstruction overrides the built-in system instruction.
func WithSystemInstruction(system string) LLMGeneratorOption {
	return func(g *LLMGenerator) {
		if strings.TrimSpace(system) != "" {
			g.system = system
		}
	}
}

// WithGenerationTimeout bounds each completion call.
func WithGenerationTimeout(timeout time.Duration) LLMGeneratorOption {
	return func(g *LLMGenerator) {
		if timeout > 0 {
			g.timeout = timeout
		}
	}
}

// WithDefaultNextStep sets the step proposed when the model omits the ESTADO
// marker.
func WithDefaultNextStep(step string) LLMGeneratorOption {
	return func(g *LLMGenerator) {
		if step != "" {
			g.defaultNextStep = step
		}
	}
}

// NewLLMGenerator creates an AI-backed generator over the given client.
func NewLLMGenerator(client LLMClient, model string, logger *logging.Logger, opts ...LLMGeneratorOption) *LLMGenerator {
	if client == nil {
		panic("conversation: llm client required")
	}
	if logger == nil {
		logger = logging.Default()
	}

	g := &LLMGenerator{
		client:          client,
		model:           model,
		system:          defaultSystemInstruction,
		timeout:         30 * time.Second,
		defaultNextStep: StepEsperandoDecision,
		logger:          logger,
	}
	for _, opt := range opts {
		opt(g)
	}
	return g
}

// Generate calls the completion service with the assembled prompt. Timeouts,
// transport errors, and blank replies all surface as ErrGenerationFailed.
func (g *LLMGenerator) Generate(ctx context.Context, prompt string) (Result, error) {
	callCtx, cancel := context.WithTimeout(ctx, g.timeout)
	defer cancel()

	resp, err := g.client.Complete(callCtx, LLMRequest{
		Model:  g.model,
		System: []string{g.system},
		Messages: []ChatMessage{
			{Role: ChatRoleUser, Content: prompt},
		},
	})
	if err != nil {
		return Result{}, fmt.Errorf("%w: %v", ErrGenerationFailed, err)
	}

	reply, result := g.parseReply(resp.Text)
	if reply == "" {
		return Result{}, fmt.Errorf("%w: empty reply", ErrGenerationFailed)
	}

	result.Reply = reply
	return result, nil
}

// parseReply strips the marker trailer from the model output and returns the
// user-facing text plus the proposed state. Missing markers fall back to the
// configured default step; the tokens themselves are not validated here.
func (g *LLMGenerator) parseReply(text string) (string, Result) {
	result := Result{NextStep: g.defaultNextStep}

	if m := stateMarkerRE.FindStringSubmatch(text); m != nil {
		result.NextStep = m[1]
	}
	if m := intentMarkerRE.FindStringSubmatch(text); m != nil {
		result.Intent = m[1]
	}
	if m := listingMarkerRE.FindStringSubmatch(text); m != nil {
		if id, err := strconv.ParseInt(m[1], 10, 64); err == nil {
			result.ListingID = &id
		}
	}

	reply := stateMarkerRE.ReplaceAllString(text, "")
	reply = intentMarkerRE.ReplaceAllString(reply, "")
	reply = listingMarkerRE.ReplaceAllString(reply, "")
	return strings.TrimSpace(reply), result
}
