package handlers

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/jackc/pgx/v5"

	"github.com/ChelochoX/tuvendedor-back-sub000/internal/conversation"
	"github.com/ChelochoX/tuvendedor-back-sub000/pkg/logging"
)

// AdminConversationsHandler exposes the back-office read API over the
// conversation tables. All endpoints sit behind the admin JWT middleware.
type AdminConversationsHandler struct {
	db     conversation.Querier
	logger *logging.Logger
}

// NewAdminConversationsHandler creates a new admin conversations handler.
func NewAdminConversationsHandler(db conversation.Querier, logger *logging.Logger) *AdminConversationsHandler {
	if db == nil {
		panic("handlers: pgx querier required")
	}
	if logger == nil {
		logger = logging.Default()
	}
	return &AdminConversationsHandler{
		db:     db,
		logger: logger,
	}
}

// ConversationListItem represents a conversation in list responses.
type ConversationListItem struct {
	ID                 int64  `json:"id"`
	Channel            string `json:"channel"`
	ExternalIdentifier string `json:"external_identifier"`
	CurrentStep        string `json:"current_step,omitempty"`
	StartedAt          string `json:"started_at"`
	LastMessageAt      string `json:"last_message_at"`
}

// ConversationsListResponse is a paginated list of conversations.
type ConversationsListResponse struct {
	Conversations []ConversationListItem `json:"conversations"`
	Total         int                    `json:"total"`
	Page          int                    `json:"page"`
	PageSize      int                    `json:"page_size"`
	TotalPages    int                    `json:"total_pages"`
}

// MessageResponse represents a message in a conversation detail.
type MessageResponse struct {
	ID        int64  `json:"id"`
	Sender    string `json:"sender"`
	Text      string `json:"text"`
	Timestamp string `json:"timestamp"`
}

// ConversationDetailResponse is one conversation with its transcript and
// current context.
type ConversationDetailResponse struct {
	ID                 int64             `json:"id"`
	Channel            string            `json:"channel"`
	ExternalIdentifier string            `json:"external_identifier"`
	StartedAt          string            `json:"started_at"`
	LastMessageAt      string            `json:"last_message_at"`
	CurrentStep        string            `json:"current_step,omitempty"`
	Intent             *string           `json:"intent,omitempty"`
	RelatedListingID   *int64            `json:"related_listing_id,omitempty"`
	ActivePromptCode   string            `json:"active_prompt_code,omitempty"`
	Messages           []MessageResponse `json:"messages"`
}

// ListConversations returns a paginated list of conversations, newest
// activity first.
// GET /admin/conversations
func (h *AdminConversationsHandler) ListConversations(w http.ResponseWriter, r *http.Request) {
	page, _ := strconv.Atoi(r.URL.Query().Get("page"))
	if page < 1 {
		page = 1
	}
	pageSize, _ := strconv.Atoi(r.URL.Query().Get("page_size"))
	if pageSize < 1 || pageSize > 100 {
		pageSize = 20
	}
	channel := r.URL.Query().Get("channel")
	search := r.URL.Query().Get("search")

	offset := (page - 1) * pageSize

	query := `
		SELECT c.id, c.channel, c.external_identifier,
		       COALESCE(cc.current_step, ''),
		       c.started_at, c.last_message_at
		FROM conversations c
		LEFT JOIN conversation_context cc ON cc.conversation_id = c.id
		WHERE 1=1
	`
	countQuery := `SELECT COUNT(*) FROM conversations c WHERE 1=1`
	var args []any
	argNum := 1

	if channel != "" {
		clause := " AND c.channel = $" + strconv.Itoa(argNum)
		query += clause
		countQuery += clause
		args = append(args, channel)
		argNum++
	}
	if search != "" {
		clause := " AND c.external_identifier LIKE $" + strconv.Itoa(argNum)
		query += clause
		countQuery += clause
		args = append(args, "%"+search+"%")
		argNum++
	}

	var total int
	if err := h.db.QueryRow(r.Context(), countQuery, args...).Scan(&total); err != nil {
		h.logger.Error("failed to count conversations", "error", err)
		http.Error(w, "internal error", http.StatusInternalServerError)
		return
	}

	query += " ORDER BY c.last_message_at DESC LIMIT $" + strconv.Itoa(argNum) + " OFFSET $" + strconv.Itoa(argNum+1)
	args = append(args, pageSize, offset)

	rows, err := h.db.Query(r.Context(), query, args...)
	if err != nil {
		h.logger.Error("failed to query conversations", "error", err)
		http.Error(w, "internal error", http.StatusInternalServerError)
		return
	}
	defer rows.Close()

	conversations := []ConversationListItem{}
	for rows.Next() {
		var item ConversationListItem
		var startedAt, lastMessageAt time.Time
		if err := rows.Scan(&item.ID, &item.Channel, &item.ExternalIdentifier, &item.CurrentStep, &startedAt, &lastMessageAt); err != nil {
			h.logger.Error("failed to scan conversation row", "error", err)
			continue
		}
		item.StartedAt = startedAt.Format(time.RFC3339)
		item.LastMessageAt = lastMessageAt.Format(time.RFC3339)
		conversations = append(conversations, item)
	}

	totalPages := (total + pageSize - 1) / pageSize
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(ConversationsListResponse{
		Conversations: conversations,
		Total:         total,
		Page:          page,
		PageSize:      pageSize,
		TotalPages:    totalPages,
	})
}

// GetConversation returns one conversation with its full transcript.
// GET /admin/conversations/{conversationID}
func (h *AdminConversationsHandler) GetConversation(w http.ResponseWriter, r *http.Request) {
	conversationID, err := strconv.ParseInt(chi.URLParam(r, "conversationID"), 10, 64)
	if err != nil {
		http.Error(w, "invalid conversation id", http.StatusBadRequest)
		return
	}

	detail := ConversationDetailResponse{
		ID:       conversationID,
		Messages: []MessageResponse{},
	}

	var startedAt, lastMessageAt time.Time
	var intent *string
	var listingID *int64
	err = h.db.QueryRow(r.Context(), `
		SELECT c.channel, c.external_identifier, c.started_at, c.last_message_at,
		       COALESCE(cc.current_step, ''), cc.intent, cc.related_listing_id,
		       COALESCE(cc.active_prompt_code, '')
		FROM conversations c
		LEFT JOIN conversation_context cc ON cc.conversation_id = c.id
		WHERE c.id = $1
	`, conversationID).Scan(
		&detail.Channel, &detail.ExternalIdentifier, &startedAt, &lastMessageAt,
		&detail.CurrentStep, &intent, &listingID, &detail.ActivePromptCode,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		http.Error(w, "conversation not found", http.StatusNotFound)
		return
	}
	if err != nil {
		h.logger.Error("failed to load conversation", "error", err, "conversation_id", conversationID)
		http.Error(w, "internal error", http.StatusInternalServerError)
		return
	}
	detail.StartedAt = startedAt.Format(time.RFC3339)
	detail.LastMessageAt = lastMessageAt.Format(time.RFC3339)
	detail.Intent = intent
	detail.RelatedListingID = listingID

	messages, err := h.loadMessages(r, conversationID)
	if err != nil {
		h.logger.Error("failed to load messages", "error", err, "conversation_id", conversationID)
		http.Error(w, "internal error", http.StatusInternalServerError)
		return
	}
	detail.Messages = messages

	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(detail)
}

// ExportTranscript exports a conversation transcript as plain text.
// GET /admin/conversations/{conversationID}/export
func (h *AdminConversationsHandler) ExportTranscript(w http.ResponseWriter, r *http.Request) {
	conversationID, err := strconv.ParseInt(chi.URLParam(r, "conversationID"), 10, 64)
	if err != nil {
		http.Error(w, "invalid conversation id", http.StatusBadRequest)
		return
	}

	var channel, externalID string
	var startedAt time.Time
	err = h.db.QueryRow(r.Context(), `
		SELECT channel, external_identifier, started_at
		FROM conversations WHERE id = $1
	`, conversationID).Scan(&channel, &externalID, &startedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		http.Error(w, "conversation not found", http.StatusNotFound)
		return
	}
	if err != nil {
		h.logger.Error("failed to load conversation", "error", err, "conversation_id", conversationID)
		http.Error(w, "internal error", http.StatusInternalServerError)
		return
	}

	messages, err := h.loadMessages(r, conversationID)
	if err != nil {
		h.logger.Error("failed to load messages", "error", err, "conversation_id", conversationID)
		http.Error(w, "internal error", http.StatusInternalServerError)
		return
	}

	transcript := "Transcripción de conversación\n"
	transcript += "=============================\n\n"
	transcript += "Canal: " + channel + "\n"
	transcript += "Cliente: " + externalID + "\n"
	transcript += "Inicio: " + startedAt.Format(time.RFC1123) + "\n\n"

	for _, msg := range messages {
		label := "Cliente"
		if msg.Sender == string(conversation.SenderAgent) {
			label = "Agente"
		}
		transcript += "[" + msg.Timestamp + "] " + label + ":\n"
		transcript += msg.Text + "\n\n"
	}
	if len(messages) == 0 {
		transcript += "(sin mensajes)\n"
	}

	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.Header().Set("Content-Disposition", "attachment; filename=transcript-"+strconv.FormatInt(conversationID, 10)+".txt")
	_, _ = w.Write([]byte(transcript))
}

func (h *AdminConversationsHandler) loadMessages(r *http.Request, conversationID int64) ([]MessageResponse, error) {
	rows, err := h.db.Query(r.Context(), `
		SELECT id, sender, body, created_at
		FROM messages
		WHERE conversation_id = $1
		ORDER BY created_at ASC, id ASC
	`, conversationID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	messages := []MessageResponse{}
	for rows.Next() {
		var msg MessageResponse
		var createdAt time.Time
		if err := rows.Scan(&msg.ID, &msg.Sender, &msg.Text, &createdAt); err != nil {
			return nil, err
		}
		msg.Timestamp = createdAt.Format(time.RFC3339)
		messages = append(messages, msg)
	}
	return messages, rows.Err()
}
