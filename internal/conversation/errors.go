package conversation

import "errors"

var (
	// ErrStoreUnavailable wraps any persistence failure other than the
	// expected identity race. The engine does not retry these within a turn.
	ErrStoreUnavailable = errors.New("conversation: store unavailable")

	// ErrTemplateNotFound indicates no active prompt template exists for the
	// resolved code.
	ErrTemplateNotFound = errors.New("conversation: prompt template not found")

	// ErrGenerationFailed indicates the response generator timed out, hit a
	// transport error, or produced an empty reply.
	ErrGenerationFailed = errors.New("conversation: response generation failed")
)
