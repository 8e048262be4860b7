package conversation

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
)

func TestDispatcherRoundTrip(t *testing.T) {
	handler := &fakeTurnHandler{reply: "¡Hola! ¿Qué moto te interesa?"}
	queue := newStubQueue()

	d := NewDispatcher(
		handler,
		queue,
		nil,
		WithWorkerCount(1),
		WithReceiveBatchSize(1),
		WithReceiveWaitSeconds(0),
	)
	t.Cleanup(func() {
		_ = d.Shutdown(context.Background())
	})

	reply, err := d.HandleInboundMessage(context.Background(), ChannelWhatsApp, "+595981123456", "Hola")
	if err != nil {
		t.Fatalf("dispatch: %v", err)
	}
	if reply != "¡Hola! ¿Qué moto te interesa?" {
		t.Fatalf("unexpected reply %q", reply)
	}

	got := handler.last()
	if got.channel != ChannelWhatsApp || got.externalID != "+595981123456" || got.text != "Hola" {
		t.Fatalf("payload did not survive the queue: %+v", got)
	}
}

func TestDispatcherPropagatesEngineError(t *testing.T) {
	handler := &fakeTurnHandler{err: ErrStoreUnavailable}
	queue := newStubQueue()

	d := NewDispatcher(
		handler,
		queue,
		nil,
		WithWorkerCount(1),
		WithReceiveBatchSize(1),
		WithReceiveWaitSeconds(0),
	)
	t.Cleanup(func() {
		_ = d.Shutdown(context.Background())
	})

	_, err := d.HandleInboundMessage(context.Background(), ChannelWeb, "visitor-1", "Hola")
	if !errors.Is(err, ErrStoreUnavailable) {
		t.Fatalf("expected ErrStoreUnavailable, got %v", err)
	}
}

func TestDispatcherSingleWorkerPreservesOrder(t *testing.T) {
	handler := &fakeTurnHandler{reply: "ok"}
	queue := newStubQueue()

	d := NewDispatcher(
		handler,
		queue,
		nil,
		WithWorkerCount(1),
		WithReceiveBatchSize(1),
		WithReceiveWaitSeconds(0),
	)
	t.Cleanup(func() {
		_ = d.Shutdown(context.Background())
	})

	for _, text := range []string{"uno", "dos", "tres"} {
		if _, err := d.HandleInboundMessage(context.Background(), ChannelWeb, "visitor-1", text); err != nil {
			t.Fatalf("dispatch %q: %v", text, err)
		}
	}

	turns := handler.turns()
	if len(turns) != 3 {
		t.Fatalf("expected 3 handled turns, got %d", len(turns))
	}
	for i, want := range []string{"uno", "dos", "tres"} {
		if turns[i].text != want {
			t.Fatalf("turn %d: expected %q, got %q", i, want, turns[i].text)
		}
	}
}

func TestDispatcherCallerContextCancellation(t *testing.T) {
	block := make(chan struct{})
	handler := &blockingTurnHandler{block: block}
	queue := newStubQueue()

	d := NewDispatcher(
		handler,
		queue,
		nil,
		WithWorkerCount(1),
		WithReceiveBatchSize(1),
		WithReceiveWaitSeconds(0),
	)
	t.Cleanup(func() {
		_ = d.Shutdown(context.Background())
	})

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()

	if _, err := d.HandleInboundMessage(ctx, ChannelWeb, "visitor-1", "Hola"); err != context.DeadlineExceeded {
		t.Fatalf("expected context deadline exceeded, got %v", err)
	}

	close(block)
}

func TestDispatcherWorksOverMemoryQueue(t *testing.T) {
	handler := &fakeTurnHandler{reply: "ok"}
	queue := NewMemoryQueue(8)

	d := NewDispatcher(
		handler,
		queue,
		nil,
		WithWorkerCount(1),
		WithReceiveBatchSize(1),
		WithReceiveWaitSeconds(1),
	)
	t.Cleanup(func() {
		_ = d.Shutdown(context.Background())
	})

	reply, err := d.HandleInboundMessage(context.Background(), ChannelWhatsApp, "+595981123456", "Hola")
	if err != nil {
		t.Fatalf("dispatch over memory queue: %v", err)
	}
	if reply != "ok" {
		t.Fatalf("unexpected reply %q", reply)
	}
}

type handledTurn struct {
	channel    Channel
	externalID string
	text       string
}

type fakeTurnHandler struct {
	mu      sync.Mutex
	reply   string
	err     error
	handled []handledTurn
}

func (f *fakeTurnHandler) HandleInboundMessage(ctx context.Context, channel Channel, externalID, text string) (string, error) {
	f.mu.Lock()
	f.handled = append(f.handled, handledTurn{channel: channel, externalID: externalID, text: text})
	f.mu.Unlock()
	if f.err != nil {
		return "", f.err
	}
	return f.reply, nil
}

func (f *fakeTurnHandler) last() handledTurn {
	f.mu.Lock()
	defer f.mu.Unlock()
	if len(f.handled) == 0 {
		return handledTurn{}
	}
	return f.handled[len(f.handled)-1]
}

func (f *fakeTurnHandler) turns() []handledTurn {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]handledTurn, len(f.handled))
	copy(out, f.handled)
	return out
}

type blockingTurnHandler struct {
	block chan struct{}
}

func (b *blockingTurnHandler) HandleInboundMessage(ctx context.Context, channel Channel, externalID, text string) (string, error) {
	select {
	case <-ctx.Done():
		return "", ctx.Err()
	case <-b.block:
		return "desbloqueado", nil
	}
}

type stubQueue struct {
	ch chan QueueMessage
}

func newStubQueue() *stubQueue {
	return &stubQueue{ch: make(chan QueueMessage, 32)}
}

func (s *stubQueue) Send(ctx context.Context, body string) error {
	msg := QueueMessage{
		ID:            uuid.NewString(),
		Body:          body,
		ReceiptHandle: uuid.NewString(),
	}
	select {
	case <-ctx.Done():
		return ctx.Err()
	case s.ch <- msg:
		return nil
	}
}

func (s *stubQueue) Receive(ctx context.Context, maxMessages int, waitSeconds int) ([]QueueMessage, error) {
	timeout := time.Duration(waitSeconds) * time.Millisecond
	if waitSeconds <= 0 {
		timeout = 5 * time.Millisecond
	}

	timer := time.NewTimer(timeout)
	defer timer.Stop()

	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case msg := <-s.ch:
		return []QueueMessage{msg}, nil
	case <-timer.C:
		return nil, nil
	}
}

func (s *stubQueue) Delete(ctx context.Context, receiptHandle string) error {
	return nil
}
