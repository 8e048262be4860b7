package conversation

import "context"

// StaticGenerator returns a fixed reply and next step. It serves both as the
// configured generator when AI is disabled and as the degrade path when the
// AI-backed generator fails mid-turn.
type StaticGenerator struct {
	reply    string
	nextStep string
}

// NewStaticGenerator creates a canned generator.
func NewStaticGenerator(reply, nextStep string) *StaticGenerator {
	if reply == "" {
		panic("conversation: static reply required")
	}
	if nextStep == "" {
		nextStep = StepEsperandoDecision
	}
	return &StaticGenerator{
		reply:    reply,
		nextStep: nextStep,
	}
}

// Generate returns the canned reply regardless of prompt. It never fails.
func (g *StaticGenerator) Generate(_ context.Context, _ string) (Result, error) {
	return Result{
		Reply:    g.reply,
		NextStep: g.nextStep,
	}, nil
}
