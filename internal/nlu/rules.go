package nlu

import (
	"context"

	"github.com/superst1/chatbot-whatsapp-citas/internal/entities"
)

// RulesExtractor needs no external service. It only classifies intent;
// fields come from the local patterns the dialogue controller always runs.
type RulesExtractor struct{}

func (RulesExtractor) Name() string { return "rules" }

func (RulesExtractor) Extract(_ context.Context, text string) (Result, error) {
	return Result{Intent: entities.DetectIntent(text)}, nil
}
