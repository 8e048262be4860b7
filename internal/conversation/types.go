package conversation

import "time"

// Sender identifies who authored a message. Agent covers both AI-generated
// and canned replies.
type Sender string

const (
	SenderCustomer Sender = "customer"
	SenderAgent    Sender = "agent"
)

// Channel identifies which transport the conversation is happening on.
type Channel string

const (
	ChannelWhatsApp Channel = "whatsapp"
	ChannelWeb      Channel = "web"
)

// Known step tokens. The step domain is deliberately open: templates evolve
// faster than releases, so unknown tokens coming back from a generator are
// persisted as-is rather than rejected.
const (
	StepInicio             = "INICIO"
	StepEsperandoDecision  = "ESPERANDO_DECISION"
	StepConsultandoModelo  = "CONSULTANDO_MODELO"
	StepSolicitandoCredito = "SOLICITANDO_CREDITO"
)

// DefaultPromptCode is the template resolved when a conversation has never
// been assigned one.
const DefaultPromptCode = "GENERIC"

// Conversation is the durable identity record for one (channel, external
// identifier) pair.
type Conversation struct {
	ID                 int64
	Channel            Channel
	ExternalIdentifier string
	StartedAt          time.Time
	LastMessageAt      time.Time
}

// Message is one append-only entry in a conversation transcript.
type Message struct {
	ID             int64
	ConversationID int64
	Sender         Sender
	Text           string
	Timestamp      time.Time
}

// TranscriptEntry is the minimal (sender, text) pair fed into prompt assembly.
type TranscriptEntry struct {
	Sender Sender
	Text   string
}

// Context is the per-conversation state record. At most one row exists per
// conversation; it is absent until the first response has been generated.
type Context struct {
	ConversationID   int64
	CurrentStep      string
	Intent           *string
	RelatedListingID *int64
	ActivePromptCode string
	UpdatedAt        time.Time
}

// ContextUpdate carries one turn's proposed context changes. Nil optional
// fields leave the stored value untouched rather than erasing it.
type ContextUpdate struct {
	CurrentStep      string
	Intent           *string
	RelatedListingID *int64
	PromptCode       *string
}
