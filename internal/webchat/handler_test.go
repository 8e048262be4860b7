package webchat

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ChelochoX/tuvendedor-back-sub000/internal/conversation"
)

type fakeEngine struct {
	reply string
	err   error

	gotChannel    conversation.Channel
	gotExternalID string
	gotText       string
}

func (f *fakeEngine) HandleInboundMessage(ctx context.Context, channel conversation.Channel, externalID, text string) (string, error) {
	f.gotChannel = channel
	f.gotExternalID = externalID
	f.gotText = text
	if f.err != nil {
		return "", f.err
	}
	return f.reply, nil
}

func postMessage(t *testing.T, h *Handler, payload map[string]string) *httptest.ResponseRecorder {
	t.Helper()
	body, err := json.Marshal(payload)
	require.NoError(t, err)
	req := httptest.NewRequest(http.MethodPost, "/webchat/messages", bytes.NewReader(body))
	rec := httptest.NewRecorder()
	h.HandleMessage(rec, req)
	return rec
}

func TestHandleMessageReturnsReply(t *testing.T) {
	engine := &fakeEngine{reply: "¡Hola! ¿Qué moto te interesa?"}
	h := NewHandler(engine, nil, nil)

	rec := postMessage(t, h, map[string]string{
		"session_id": "visitor-9",
		"text":       "Hola",
	})
	require.Equal(t, http.StatusOK, rec.Code)

	var resp map[string]string
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, "¡Hola! ¿Qué moto te interesa?", resp["reply"])
	assert.Equal(t, "visitor-9", resp["session_id"])

	assert.Equal(t, conversation.ChannelWeb, engine.gotChannel)
	assert.Equal(t, "visitor-9", engine.gotExternalID)
	assert.Equal(t, "Hola", engine.gotText)
}

func TestHandleMessageGeneratesSessionID(t *testing.T) {
	engine := &fakeEngine{reply: "ok"}
	h := NewHandler(engine, nil, nil)

	rec := postMessage(t, h, map[string]string{"text": "Hola"})
	require.Equal(t, http.StatusOK, rec.Code)

	var resp map[string]string
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.NotEmpty(t, resp["session_id"])
	assert.Equal(t, resp["session_id"], engine.gotExternalID)
}

func TestHandleMessageRejectsEmptyText(t *testing.T) {
	h := NewHandler(&fakeEngine{}, nil, nil)

	rec := postMessage(t, h, map[string]string{"session_id": "visitor-9", "text": "   "})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestHandleMessageEngineFailure(t *testing.T) {
	engine := &fakeEngine{err: errors.New("store down")}
	h := NewHandler(engine, nil, nil)

	rec := postMessage(t, h, map[string]string{"session_id": "visitor-9", "text": "Hola"})
	assert.Equal(t, http.StatusInternalServerError, rec.Code)
}

func TestHandleMessageMalformedBody(t *testing.T) {
	h := NewHandler(&fakeEngine{}, nil, nil)

	req := httptest.NewRequest(http.MethodPost, "/webchat/messages", bytes.NewReader([]byte("{not json")))
	rec := httptest.NewRecorder()
	h.HandleMessage(rec, req)

	assert.Equal(t, http.StatusBadRequest, rec.Code)
}
