package conversation

import (
	"context"
	"errors"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"

	"github.com/ChelochoX/tuvendedor-back-sub000/internal/observability/metrics"
	"github.com/ChelochoX/tuvendedor-back-sub000/pkg/logging"
)

var engineTracer = otel.Tracer("tuvendedor.internal.conversation.engine")

// TurnHandler is the inbound boundary consumed by the channel layers.
type TurnHandler interface {
	HandleInboundMessage(ctx context.Context, channel Channel, externalID, text string) (string, error)
}

// ConversationStore is the persistence surface the engine depends on.
type ConversationStore interface {
	ResolveOrCreate(ctx context.Context, channel Channel, externalID string) (int64, error)
	AppendMessage(ctx context.Context, conversationID int64, sender Sender, text string) (int64, error)
	GetContext(ctx context.Context, conversationID int64) (*Context, error)
	UpsertContext(ctx context.Context, conversationID int64, update ContextUpdate) error
}

// HistoryProvider reads the bounded ascending transcript slice for a turn.
type HistoryProvider interface {
	RecentHistory(ctx context.Context, conversationID int64, limit int) ([]TranscriptEntry, error)
}

// PromptBuilder assembles the generator prompt for a turn.
type PromptBuilder interface {
	Build(ctx context.Context, userMessage string, convCtx *Context, history []TranscriptEntry) (string, error)
}

// EngineConfig tunes a conversation engine.
type EngineConfig struct {
	// HistoryLimit bounds how many past messages feed the prompt.
	HistoryLimit int
	// SafeReply is returned when a reply could not be produced at all.
	SafeReply string
}

// Engine runs one request/response cycle per inbound message: resolve
// identity, record the customer message, assemble a prompt, generate a
// reply, record it, and advance the context.
type Engine struct {
	store     ConversationStore
	history   HistoryProvider
	prompts   PromptBuilder
	generator Generator

	// degrade, when non-nil, answers turns whose prompt assembly or
	// generation failed. It is nil when the canned generator is already
	// the configured one.
	degrade *StaticGenerator

	cfg     EngineConfig
	metrics *metrics.ConversationMetrics
	logger  *logging.Logger
}

// NewEngine wires a conversation engine. metrics may be nil.
func NewEngine(store ConversationStore, history HistoryProvider, prompts PromptBuilder, generator Generator, degrade *StaticGenerator, cfg EngineConfig, m *metrics.ConversationMetrics, logger *logging.Logger) *Engine {
	if store == nil {
		panic("conversation: store required")
	}
	if history == nil {
		panic("conversation: history provider required")
	}
	if prompts == nil {
		panic("conversation: prompt builder required")
	}
	if generator == nil {
		panic("conversation: generator required")
	}
	if cfg.HistoryLimit <= 0 {
		cfg.HistoryLimit = 10
	}
	if cfg.SafeReply == "" {
		cfg.SafeReply = "Disculpá, tuvimos un inconveniente procesando tu consulta. ¿Podrías intentar de nuevo en unos minutos?"
	}
	if logger == nil {
		logger = logging.Default()
	}

	return &Engine{
		store:     store,
		history:   history,
		prompts:   prompts,
		generator: generator,
		degrade:   degrade,
		cfg:       cfg,
		metrics:   m,
		logger:    logger,
	}
}

// HandleInboundMessage processes one customer message and returns the reply
// text. Identity resolution and recording of the inbound message are fatal
// on failure; once the customer message is committed, generation-layer
// failures degrade to the canned reply instead of aborting the turn. When
// the canned generator is itself the configured one there is no degrade
// path and those failures abort the turn too.
func (e *Engine) HandleInboundMessage(ctx context.Context, channel Channel, externalID, text string) (string, error) {
	ctx, span := engineTracer.Start(ctx, "conversation.turn")
	defer span.End()
	span.SetAttributes(attribute.String("tuvendedor.channel", string(channel)))

	conversationID, err := e.store.ResolveOrCreate(ctx, channel, externalID)
	if err != nil {
		span.RecordError(err)
		e.metrics.ObserveTurn(string(channel), "error")
		return "", err
	}
	span.SetAttributes(attribute.Int64("tuvendedor.conversation_id", conversationID))

	if _, err := e.store.AppendMessage(ctx, conversationID, SenderCustomer, text); err != nil {
		span.RecordError(err)
		e.metrics.ObserveTurn(string(channel), "error")
		return "", err
	}

	convCtx, err := e.store.GetContext(ctx, conversationID)
	if err != nil {
		span.RecordError(err)
		e.metrics.ObserveTurn(string(channel), "error")
		return "", err
	}

	history, err := e.history.RecentHistory(ctx, conversationID, e.cfg.HistoryLimit)
	if err != nil {
		span.RecordError(err)
		e.metrics.ObserveTurn(string(channel), "error")
		return "", err
	}

	result, outcome, err := e.generate(ctx, text, convCtx, history)
	if err != nil {
		span.RecordError(err)
		e.metrics.ObserveTurn(string(channel), "error")
		return "", err
	}

	if result.Reply == "" {
		e.logger.Warn("generator produced empty reply, substituting safe default",
			"conversation_id", conversationID,
			"channel", channel,
		)
		result.Reply = e.cfg.SafeReply
		outcome = "degraded"
	}

	if _, err := e.store.AppendMessage(ctx, conversationID, SenderAgent, result.Reply); err != nil {
		span.RecordError(err)
		e.metrics.ObserveTurn(string(channel), "error")
		return "", err
	}

	update := ContextUpdate{
		CurrentStep:      result.NextStep,
		Intent:           optionalToken(result.Intent),
		RelatedListingID: result.ListingID,
	}
	// The prompt code is deliberately carried forward unchanged; generators
	// never choose templates.
	if convCtx != nil && convCtx.ActivePromptCode != "" {
		code := convCtx.ActivePromptCode
		update.PromptCode = &code
	}
	if err := e.store.UpsertContext(ctx, conversationID, update); err != nil {
		span.RecordError(err)
		e.metrics.ObserveTurn(string(channel), "error")
		return "", err
	}

	e.metrics.ObserveTurn(string(channel), outcome)
	return result.Reply, nil
}

// generate runs prompt assembly plus generation, degrading to the canned
// generator on failure when one is configured. With no canned generator
// configured the failure surfaces and the turn fails. The returned outcome
// label is "ok" or "degraded".
func (e *Engine) generate(ctx context.Context, text string, convCtx *Context, history []TranscriptEntry) (Result, string, error) {
	ctx, span := engineTracer.Start(ctx, "conversation.generate")
	defer span.End()

	started := time.Now()
	result, err := e.tryGenerate(ctx, text, convCtx, history)
	e.metrics.ObserveGenerationLatency(generatorLabel(e.degrade != nil), time.Since(started).Seconds())
	if err == nil {
		return result, "ok", nil
	}

	span.RecordError(err)
	if e.degrade == nil {
		// The canned generator is already the active one; there is nothing
		// further to fall back to.
		e.logger.Error("generation failed with no degrade path", "error", err)
		return Result{}, "", err
	}

	reason := "generation_failed"
	if errors.Is(err, ErrTemplateNotFound) {
		reason = "template_not_found"
	}
	e.logger.Error("generation failed, using canned fallback", "error", err, "reason", reason)
	e.metrics.ObserveFallback(reason)

	fallback, _ := e.degrade.Generate(ctx, "")
	return fallback, "degraded", nil
}

func (e *Engine) tryGenerate(ctx context.Context, text string, convCtx *Context, history []TranscriptEntry) (Result, error) {
	prompt, err := e.prompts.Build(ctx, text, convCtx, history)
	if err != nil {
		return Result{}, err
	}
	return e.generator.Generate(ctx, prompt)
}

func generatorLabel(aiBacked bool) string {
	if aiBacked {
		return "llm"
	}
	return "static"
}

func optionalToken(token string) *string {
	if token == "" {
		return nil
	}
	return &token
}
