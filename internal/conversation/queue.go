package conversation

import "context"

// Queue moves serialized turn payloads between the dispatcher's producer
// and worker sides. SQSQueue and MemoryQueue both satisfy it.
type Queue interface {
	Send(ctx context.Context, body string) error
	Receive(ctx context.Context, maxMessages int, waitSeconds int) ([]QueueMessage, error)
	Delete(ctx context.Context, receiptHandle string) error
}

// QueueMessage is a single received queue entry.
type QueueMessage struct {
	ID            string
	Body          string
	ReceiptHandle string
}

// turnPayload is one inbound message travelling through the dispatch queue.
type turnPayload struct {
	ID         string  `json:"id"`
	Channel    Channel `json:"channel"`
	ExternalID string  `json:"external_identifier"`
	Text       string  `json:"text"`
}
