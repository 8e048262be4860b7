package whatsapp

import (
	"context"
	"net/http"
	"time"

	"github.com/ChelochoX/tuvendedor-back-sub000/internal/conversation"
	"github.com/ChelochoX/tuvendedor-back-sub000/internal/observability/metrics"
	"github.com/ChelochoX/tuvendedor-back-sub000/pkg/logging"
)

// messageSender is the outbound surface of the Cloud API client.
type messageSender interface {
	SendTextMessage(ctx context.Context, to, text string) (*SendResponse, error)
}

// Adapter is the WhatsApp channel adapter. Inbound webhook messages run
// through the conversation engine and the reply goes back out through the
// Cloud API.
type Adapter struct {
	engine  conversation.TurnHandler
	client  messageSender
	webhook *WebhookHandler
	logger  *logging.Logger
	metrics *metrics.ConversationMetrics

	turnTimeout time.Duration
}

// AdapterOption customizes an Adapter.
type AdapterOption func(*Adapter)

// WithGraphAPIBase points the outbound client at a non-default Graph API
// base URL, such as a sandbox or proxy.
func WithGraphAPIBase(base string) AdapterOption {
	return func(a *Adapter) {
		if c, ok := a.client.(*Client); ok && base != "" {
			c.SetGraphAPIBase(base)
		}
	}
}

// NewAdapter creates a WhatsApp adapter wired to the given engine.
// m may be nil.
func NewAdapter(engine conversation.TurnHandler, accessToken, phoneNumberID, appSecret, verifyToken string, logger *logging.Logger, m *metrics.ConversationMetrics, opts ...AdapterOption) *Adapter {
	if engine == nil {
		panic("whatsapp: turn handler required")
	}
	if logger == nil {
		logger = logging.Default()
	}

	a := &Adapter{
		engine:      engine,
		client:      NewClient(accessToken, phoneNumberID),
		logger:      logger,
		metrics:     m,
		turnTimeout: 60 * time.Second,
	}
	for _, opt := range opts {
		opt(a)
	}
	a.webhook = NewWebhookHandler(verifyToken, appSecret, a.handleInbound)
	return a
}

// HandleVerification handles GET /webhooks/whatsapp (Meta challenge).
func (a *Adapter) HandleVerification(w http.ResponseWriter, r *http.Request) {
	a.webhook.HandleVerification(w, r)
}

// HandleWebhook handles POST /webhooks/whatsapp (inbound messages).
func (a *Adapter) HandleWebhook(w http.ResponseWriter, r *http.Request) {
	a.webhook.HandleInbound(w, r)
}

// handleInbound runs one inbound message through the engine and sends the
// reply. The webhook request has already been acknowledged by the time this
// runs, so the turn gets its own bounded context.
func (a *Adapter) handleInbound(msg ParsedInboundMessage) {
	ctx, cancel := context.WithTimeout(context.Background(), a.turnTimeout)
	defer cancel()

	reply, err := a.engine.HandleInboundMessage(ctx, conversation.ChannelWhatsApp, msg.From, msg.Text)
	if err != nil {
		a.logger.Error("whatsapp: turn failed",
			"from", msg.From,
			"message_id", msg.MessageID,
			"error", err,
		)
		a.metrics.ObserveInbound(string(conversation.ChannelWhatsApp), "error")
		return
	}

	if _, err := a.client.SendTextMessage(ctx, msg.From, reply); err != nil {
		a.logger.Error("whatsapp: failed to send reply",
			"from", msg.From,
			"error", err,
		)
		a.metrics.ObserveInbound(string(conversation.ChannelWhatsApp), "send_failed")
		return
	}

	a.metrics.ObserveInbound(string(conversation.ChannelWhatsApp), "ok")
}
